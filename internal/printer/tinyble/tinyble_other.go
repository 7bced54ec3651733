//go:build !linux

package tinyble

import (
	"context"
	"fmt"

	"tinygo.org/x/bluetooth"

	"receipt-print/internal/printer"
)

// Bonded devices are not enumerable here; discovery falls back to a scan.
func pairedDevices(ctx context.Context) ([]printer.Device, error) {
	return nil, printer.ErrNotSupported
}

// Platform addresses are opaque; only devices seen by a scan can be dialled.
func parseAddress(s string) (bluetooth.Address, error) {
	return bluetooth.Address{}, fmt.Errorf("address %q not seen by a scan", s)
}

func stackConnected(address string) bool {
	return false
}

func linkAlive(address string) bool {
	return true
}

func stackDisconnect(ctx context.Context, address string) error {
	return nil
}

func currentMTU(c *bluetooth.DeviceCharacteristic) (int, error) {
	return 0, printer.ErrNotSupported
}
