//go:build windows

package serialport

import (
	"sort"
	"strings"

	"golang.org/x/sys/windows/registry"
)

// bluetoothPorts returns COM ports backed by the Bluetooth SPP driver
func bluetoothPorts() []string {
	key, err := registry.OpenKey(registry.LOCAL_MACHINE, `HARDWARE\DEVICEMAP\SERIALCOMM`, registry.READ)
	if err != nil {
		return nil
	}
	defer key.Close()

	names, err := key.ReadValueNames(-1)
	if err != nil {
		return nil
	}

	var ports []string
	for _, name := range names {
		lower := strings.ToLower(name)
		if !strings.Contains(lower, "bth") && !strings.Contains(lower, "bluetooth") {
			continue
		}
		if val, _, err := key.GetStringValue(name); err == nil {
			ports = append(ports, val)
		}
	}
	sort.Strings(ports)
	return ports
}
