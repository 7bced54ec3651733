//go:build linux

package serialport

import (
	"fmt"
	"os"
)

// bluetoothPorts returns bound /dev/rfcommN devices
func bluetoothPorts() []string {
	var ports []string
	for i := 0; i < 10; i++ {
		devPath := fmt.Sprintf("/dev/rfcomm%d", i)
		if _, err := os.Stat(devPath); err == nil {
			ports = append(ports, devPath)
		}
	}
	return ports
}
