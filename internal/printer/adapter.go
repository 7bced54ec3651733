package printer

import (
	"context"

	"github.com/google/uuid"
)

// Adapter is the platform radio (or port enumerator) a Manager talks to.
// Implementations live in the tinyble, goble and serialport packages.
type Adapter interface {
	// Enable powers up the adapter; it fails with ErrAdapterOff when the
	// radio is unavailable.
	Enable() error

	// Paired lists devices already bonded with the host.
	Paired(ctx context.Context) ([]Device, error)

	// Scan actively discovers advertising devices. The channel is closed when
	// ctx ends or the platform stops scanning.
	Scan(ctx context.Context) (<-chan Device, error)

	// Connect opens a link with auto-reconnect disabled.
	Connect(ctx context.Context, dev Device) (Link, error)

	// IsConnected reports whether the platform still holds a link to dev,
	// including half-open links left behind by a failed attempt.
	IsConnected(dev Device) bool

	// CancelConnection force-disconnects dev.
	CancelConnection(ctx context.Context, dev Device) error
}

// Link is an established connection to one device
type Link interface {
	Connected() bool
	Services(ctx context.Context) ([]GATTService, error)
	// RequestMTU asks for a larger ATT MTU and returns the one in effect.
	RequestMTU(ctx context.Context, mtu int) (int, error)
	Disconnect(ctx context.Context) error
}

// GATTService is a resolved GATT service
type GATTService interface {
	UUID() uuid.UUID
	Characteristics(ctx context.Context) ([]Characteristic, error)
}

// Characteristic is a GATT characteristic used as the command sink
type Characteristic interface {
	UUID() uuid.UUID
	Properties() Property
	Write(ctx context.Context, p []byte, withoutResponse bool) error
}

// Property is a bit set of GATT characteristic properties
type Property uint8

const (
	PropRead Property = 1 << iota
	PropWrite
	PropWriteWithoutResponse
	PropNotify
	PropIndicate
)

// Has reports whether all bits of q are set
func (p Property) Has(q Property) bool {
	return p&q == q
}

// CanWrite reports whether any write mode is supported
func (p Property) CanWrite() bool {
	return p&(PropWrite|PropWriteWithoutResponse) != 0
}
