// Package serialport implements printer.Adapter for printers reachable as a
// serial port: USB receipt printers, Bluetooth SPP bound to /dev/rfcommN on
// Linux, and Bluetooth COM ports on Windows. The port is presented as a
// single service holding a single writable characteristic.
package serialport

import (
	"context"
	"fmt"
	"sync"

	"github.com/google/uuid"
	"go.bug.st/serial"
	"go.bug.st/serial/enumerator"
	"go.uber.org/zap"

	"receipt-print/internal/printer"
)

const DefaultBaudRate = 115200

// Adapter enumerates and opens serial ports
type Adapter struct {
	baud    int
	service uuid.UUID
	char    uuid.UUID
	log     *zap.Logger

	open func(name string, mode *serial.Mode) (serial.Port, error)
	list func() ([]*enumerator.PortDetails, error)

	mu    sync.Mutex
	links map[string]*link
}

// New returns an adapter opening ports at baud. The synthetic service and
// characteristic carry the given UUIDs so resolution picks them directly.
func New(baud int, service, char uuid.UUID, log *zap.Logger) *Adapter {
	if baud <= 0 {
		baud = DefaultBaudRate
	}
	if log == nil {
		log = zap.NewNop()
	}
	return &Adapter{
		baud:    baud,
		service: service,
		char:    char,
		log:     log.Named("serial"),
		open:    serial.Open,
		list:    enumerator.GetDetailedPortsList,
		links:   make(map[string]*link),
	}
}

func (a *Adapter) Enable() error {
	return nil
}

// Paired returns Bluetooth serial ports when the platform reports any,
// otherwise every port.
func (a *Adapter) Paired(ctx context.Context) ([]printer.Device, error) {
	if bt := bluetoothPorts(); len(bt) > 0 {
		devices := make([]printer.Device, 0, len(bt))
		for _, p := range bt {
			devices = append(devices, printer.Device{Name: p, Address: p, Paired: true})
		}
		return devices, nil
	}
	return a.ports()
}

func (a *Adapter) ports() ([]printer.Device, error) {
	details, err := a.list()
	if err != nil {
		return nil, fmt.Errorf("failed to list serial ports: %w", err)
	}
	devices := make([]printer.Device, 0, len(details))
	for _, d := range details {
		name := d.Name
		if d.IsUSB && d.Product != "" {
			name = d.Product
		}
		devices = append(devices, printer.Device{Name: name, Address: d.Name, Paired: true})
	}
	return devices, nil
}

// Scan reports every enumerated port once, then closes
func (a *Adapter) Scan(ctx context.Context) (<-chan printer.Device, error) {
	devices, err := a.ports()
	if err != nil {
		return nil, err
	}
	out := make(chan printer.Device)
	go func() {
		defer close(out)
		for _, d := range devices {
			select {
			case out <- d:
			case <-ctx.Done():
				return
			}
		}
	}()
	return out, nil
}

func (a *Adapter) Connect(ctx context.Context, dev printer.Device) (printer.Link, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	mode := &serial.Mode{
		BaudRate: a.baud,
		DataBits: 8,
		Parity:   serial.NoParity,
		StopBits: serial.OneStopBit,
	}
	port, err := a.open(dev.Address, mode)
	if err != nil {
		return nil, fmt.Errorf("failed to open port %s: %w", dev.Address, err)
	}
	a.log.Debug("port opened", zap.String("port", dev.Address), zap.Int("baud", a.baud))

	l := &link{adapter: a, name: dev.Address, port: port, open: true}
	a.mu.Lock()
	a.links[dev.Address] = l
	a.mu.Unlock()
	return l, nil
}

func (a *Adapter) IsConnected(dev printer.Device) bool {
	a.mu.Lock()
	defer a.mu.Unlock()
	return a.links[dev.Address] != nil
}

func (a *Adapter) CancelConnection(ctx context.Context, dev printer.Device) error {
	a.mu.Lock()
	l := a.links[dev.Address]
	a.mu.Unlock()
	if l == nil {
		return nil
	}
	return l.Disconnect(ctx)
}

type link struct {
	adapter *Adapter
	name    string

	mu   sync.Mutex
	port serial.Port
	open bool
}

func (l *link) Connected() bool {
	l.mu.Lock()
	defer l.mu.Unlock()
	return l.open
}

func (l *link) Services(ctx context.Context) ([]printer.GATTService, error) {
	return []printer.GATTService{&service{link: l}}, nil
}

func (l *link) RequestMTU(ctx context.Context, mtu int) (int, error) {
	return 0, printer.ErrNotSupported
}

func (l *link) Disconnect(ctx context.Context) error {
	l.mu.Lock()
	wasOpen := l.open
	l.open = false
	l.mu.Unlock()

	l.adapter.mu.Lock()
	if l.adapter.links[l.name] == l {
		delete(l.adapter.links, l.name)
	}
	l.adapter.mu.Unlock()

	if !wasOpen {
		return nil
	}
	return l.port.Close()
}

func (l *link) write(p []byte, drain bool) error {
	l.mu.Lock()
	defer l.mu.Unlock()
	if !l.open {
		return printer.ErrNotReady
	}
	for len(p) > 0 {
		n, err := l.port.Write(p)
		if err != nil {
			return fmt.Errorf("write failed: %w", err)
		}
		p = p[n:]
	}
	if drain {
		return l.port.Drain()
	}
	return nil
}

type service struct {
	link *link
}

func (s *service) UUID() uuid.UUID {
	return s.link.adapter.service
}

func (s *service) Characteristics(ctx context.Context) ([]printer.Characteristic, error) {
	return []printer.Characteristic{&characteristic{link: s.link}}, nil
}

type characteristic struct {
	link *link
}

func (c *characteristic) UUID() uuid.UUID {
	return c.link.adapter.char
}

// Properties reports acknowledged writes only; an acknowledged write waits
// for the UART to drain.
func (c *characteristic) Properties() printer.Property {
	return printer.PropWrite
}

func (c *characteristic) Write(ctx context.Context, p []byte, withoutResponse bool) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	return c.link.write(p, !withoutResponse)
}
