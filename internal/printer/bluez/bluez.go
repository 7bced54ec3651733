// Package bluez queries the BlueZ daemon through bluetoothctl for state the
// BLE libraries do not expose: the bonded device list and whether the
// daemon still holds a link to a device.
package bluez

import (
	"bufio"
	"bytes"
	"context"
	"errors"
	"fmt"
	"os/exec"
	"strings"

	"receipt-print/internal/printer"
)

// ErrNotInstalled is returned when bluetoothctl is not on PATH
var ErrNotInstalled = errors.New("bluetoothctl not found - install with: sudo apt install bluez")

// run executes bluetoothctl; replaced in tests
var run = func(ctx context.Context, args ...string) ([]byte, error) {
	if _, err := exec.LookPath("bluetoothctl"); err != nil {
		return nil, ErrNotInstalled
	}
	return exec.CommandContext(ctx, "bluetoothctl", args...).Output()
}

// PairedDevices returns all paired Bluetooth devices
func PairedDevices(ctx context.Context) ([]printer.Device, error) {
	out, err := run(ctx, "devices", "Paired")
	if err != nil {
		if errors.Is(err, ErrNotInstalled) {
			return nil, err
		}
		// bluez < 5.65 only knows the older command
		out, err = run(ctx, "paired-devices")
		if err != nil {
			return nil, fmt.Errorf("failed to list paired devices: %w", err)
		}
	}

	devices := ParseDevices(out)
	for i := range devices {
		devices[i].Paired = true
	}
	return devices, nil
}

// ParseDevices parses bluetoothctl device listings
func ParseDevices(out []byte) []printer.Device {
	var devices []printer.Device
	sc := bufio.NewScanner(bytes.NewReader(out))
	for sc.Scan() {
		line := strings.TrimSpace(sc.Text())
		if !strings.HasPrefix(line, "Device ") {
			continue
		}
		// Format: "Device XX:XX:XX:XX:XX:XX DeviceName"
		parts := strings.SplitN(strings.TrimPrefix(line, "Device "), " ", 2)
		dev := printer.Device{Address: parts[0]}
		if len(parts) == 2 {
			dev.Name = strings.TrimSpace(parts[1])
		}
		// unnamed devices are listed under their dashed address
		if dev.Name == strings.ReplaceAll(dev.Address, ":", "-") {
			dev.Name = ""
		}
		devices = append(devices, dev)
	}
	return devices
}

// Connected reports whether the daemon holds a link to address
func Connected(ctx context.Context, address string) (bool, error) {
	out, err := run(ctx, "info", address)
	if err != nil {
		return false, fmt.Errorf("failed to query %s: %w", address, err)
	}
	return parseConnected(out), nil
}

func parseConnected(out []byte) bool {
	sc := bufio.NewScanner(bytes.NewReader(out))
	for sc.Scan() {
		key, value, ok := strings.Cut(strings.TrimSpace(sc.Text()), ":")
		if ok && key == "Connected" {
			return strings.TrimSpace(value) == "yes"
		}
	}
	return false
}

// Disconnect asks the daemon to drop its link to address
func Disconnect(ctx context.Context, address string) error {
	out, err := run(ctx, "disconnect", address)
	if err != nil {
		return fmt.Errorf("failed to disconnect %s: %w", address, err)
	}
	if bytes.Contains(out, []byte("Failed to disconnect")) {
		return fmt.Errorf("failed to disconnect %s: %s", address, strings.TrimSpace(string(out)))
	}
	return nil
}
