package printer

import (
	"errors"
	"fmt"

	"github.com/google/uuid"
)

// Common errors
var (
	ErrAdapterOff            = errors.New("bluetooth is turned off")
	ErrDiscoveryEmpty        = errors.New("printer not found")
	ErrConnectExhausted      = errors.New("could not connect to printer")
	ErrLinkNotEstablished    = errors.New("link not established after connect")
	ErrServiceMissing        = errors.New("printer service not found")
	ErrCharacteristicMissing = errors.New("writable characteristic not found")
	ErrWriteFailed           = errors.New("write to printer failed")
	ErrNotReady              = errors.New("printer not connected")
	ErrBusy                  = errors.New("printer busy")
	ErrNotSupported          = errors.New("operation not supported on this platform")
)

// Well-known GATT identifiers of BLE ESC/POS receipt printers
var (
	PrinterServiceUUID = uuid.MustParse("000018f0-0000-1000-8000-00805f9b34fb")
	WriteCharUUID      = uuid.MustParse("00002af1-0000-1000-8000-00805f9b34fb")
)

// Device is a printer the platform can see, paired or advertising.
// Address is the platform handle (MAC, CoreBluetooth UUID or serial port) and
// is what identifies a device; Name is for matching against user input only.
type Device struct {
	Name    string
	Address string
	Paired  bool
}

func (d Device) String() string {
	if d.Name == "" {
		return d.Address
	}
	return fmt.Sprintf("%s (%s)", d.Name, d.Address)
}

// State is the connection state of a Manager
type State uint8

const (
	StateDisconnected State = iota
	StateScanning
	StateConnecting
	StateConnected
	StateServiceResolved
	StateReady
)

func (s State) String() string {
	switch s {
	case StateDisconnected:
		return "DISCONNECTED"
	case StateScanning:
		return "SCANNING"
	case StateConnecting:
		return "CONNECTING"
	case StateConnected:
		return "CONNECTED"
	case StateServiceResolved:
		return "SERVICE_RESOLVED"
	case StateReady:
		return "READY"
	default:
		return "UNKNOWN"
	}
}

// Connection failure hints shown to the user
const (
	HintPairingCache = "Please try:\n1. Turn the printer off and on\n2. If that doesn't work, forget and re-pair the device in Bluetooth settings\n3. Restart your phone if the issue persists"
	HintGeneric      = "Please ensure the printer is turned on and in range, then try again."
)

// ConnectError reports a connection that could not be brought to Ready.
// It matches ErrConnectExhausted with errors.Is.
type ConnectError struct {
	Device   string
	Attempts int
	Hint     string
	Err      error
}

func (e *ConnectError) Error() string {
	return fmt.Sprintf("connect to %q failed after %d attempt(s): %v", e.Device, e.Attempts, e.Err)
}

func (e *ConnectError) Unwrap() error {
	return e.Err
}

func (e *ConnectError) Is(target error) bool {
	return target == ErrConnectExhausted
}

// Message is the user-facing text for an alert
func (e *ConnectError) Message() string {
	return "Could not connect to printer. " + e.Hint
}
