//go:build linux

package tinyble

import (
	"context"
	"time"

	"tinygo.org/x/bluetooth"

	"receipt-print/internal/printer"
	"receipt-print/internal/printer/bluez"
)

const bluezQueryTimeout = 3 * time.Second

func pairedDevices(ctx context.Context) ([]printer.Device, error) {
	return bluez.PairedDevices(ctx)
}

func parseAddress(s string) (bluetooth.Address, error) {
	mac, err := bluetooth.ParseMAC(s)
	if err != nil {
		return bluetooth.Address{}, err
	}
	return bluetooth.Address{MACAddress: bluetooth.MACAddress{MAC: mac}}, nil
}

func stackConnected(address string) bool {
	ctx, cancel := context.WithTimeout(context.Background(), bluezQueryTimeout)
	defer cancel()
	ok, err := bluez.Connected(ctx, address)
	return err == nil && ok
}

// linkAlive asks the daemon; an unanswered query counts as alive
func linkAlive(address string) bool {
	ctx, cancel := context.WithTimeout(context.Background(), bluezQueryTimeout)
	defer cancel()
	ok, err := bluez.Connected(ctx, address)
	return err != nil || ok
}

func stackDisconnect(ctx context.Context, address string) error {
	return bluez.Disconnect(ctx, address)
}

func currentMTU(c *bluetooth.DeviceCharacteristic) (int, error) {
	mtu, err := c.GetMTU()
	if err != nil {
		return 0, err
	}
	return int(mtu), nil
}
