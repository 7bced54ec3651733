//go:build !linux && !windows

package serialport

func bluetoothPorts() []string {
	return nil
}
