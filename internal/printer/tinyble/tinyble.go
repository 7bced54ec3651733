// Package tinyble implements printer.Adapter over tinygo.org/x/bluetooth,
// which drives BlueZ over D-Bus on Linux, CoreBluetooth on macOS and WinRT
// on Windows.
package tinyble

import (
	"context"
	"fmt"
	"sync"

	"github.com/google/uuid"
	"go.uber.org/zap"
	"tinygo.org/x/bluetooth"

	"receipt-print/internal/printer"
)

// Adapter wraps the default host radio
type Adapter struct {
	radio *bluetooth.Adapter
	log   *zap.Logger

	mu      sync.Mutex
	enabled bool
	seen    map[string]bluetooth.Address
	links   map[string]*link
}

func New(log *zap.Logger) *Adapter {
	if log == nil {
		log = zap.NewNop()
	}
	return &Adapter{
		radio: bluetooth.DefaultAdapter,
		log:   log.Named("tinyble"),
		seen:  make(map[string]bluetooth.Address),
		links: make(map[string]*link),
	}
}

func (a *Adapter) Enable() error {
	a.mu.Lock()
	defer a.mu.Unlock()
	if a.enabled {
		return nil
	}
	if err := a.radio.Enable(); err != nil {
		return err
	}
	a.enabled = true
	return nil
}

func (a *Adapter) Paired(ctx context.Context) ([]printer.Device, error) {
	return pairedDevices(ctx)
}

// Scan reports advertisements until ctx ends. Only one scan runs at a time.
func (a *Adapter) Scan(ctx context.Context) (<-chan printer.Device, error) {
	out := make(chan printer.Device)
	stop := make(chan struct{})

	go func() {
		select {
		case <-ctx.Done():
			if err := a.radio.StopScan(); err != nil {
				a.log.Debug("stop scan", zap.Error(err))
			}
		case <-stop:
		}
	}()

	go func() {
		defer close(out)
		defer close(stop)
		err := a.radio.Scan(func(radio *bluetooth.Adapter, result bluetooth.ScanResult) {
			if ctx.Err() != nil {
				_ = radio.StopScan()
				return
			}
			dev := printer.Device{Name: result.LocalName(), Address: result.Address.String()}
			a.remember(dev.Address, result.Address)
			select {
			case out <- dev:
			case <-ctx.Done():
			}
		})
		if err != nil && ctx.Err() == nil {
			a.log.Warn("scan stopped", zap.Error(err))
		}
	}()
	return out, nil
}

func (a *Adapter) remember(address string, addr bluetooth.Address) {
	a.mu.Lock()
	a.seen[address] = addr
	a.mu.Unlock()
}

func (a *Adapter) lookup(address string) (bluetooth.Address, bool) {
	a.mu.Lock()
	defer a.mu.Unlock()
	addr, ok := a.seen[address]
	return addr, ok
}

func (a *Adapter) Connect(ctx context.Context, dev printer.Device) (printer.Link, error) {
	addr, err := a.addressFor(dev)
	if err != nil {
		return nil, err
	}

	type result struct {
		device bluetooth.Device
		err    error
	}
	done := make(chan result, 1)
	go func() {
		d, err := a.radio.Connect(addr, bluetooth.ConnectionParams{})
		done <- result{d, err}
	}()

	select {
	case r := <-done:
		if r.err != nil {
			return nil, r.err
		}
		l := &link{adapter: a, dev: dev, device: r.device, open: true}
		a.mu.Lock()
		a.links[dev.Address] = l
		a.mu.Unlock()
		return l, nil
	case <-ctx.Done():
		// a late success would leave a half-open link behind
		go func() {
			if r := <-done; r.err == nil {
				_ = r.device.Disconnect()
			}
		}()
		return nil, ctx.Err()
	}
}

func (a *Adapter) IsConnected(dev printer.Device) bool {
	a.mu.Lock()
	l := a.links[dev.Address]
	a.mu.Unlock()
	if l != nil && l.isOpen() {
		return true
	}
	return stackConnected(dev.Address)
}

func (a *Adapter) CancelConnection(ctx context.Context, dev printer.Device) error {
	a.mu.Lock()
	l := a.links[dev.Address]
	a.mu.Unlock()
	if l != nil {
		return l.Disconnect(ctx)
	}
	return stackDisconnect(ctx, dev.Address)
}

func (a *Adapter) addressFor(dev printer.Device) (bluetooth.Address, error) {
	if addr, ok := a.lookup(dev.Address); ok {
		return addr, nil
	}
	addr, err := parseAddress(dev.Address)
	if err != nil {
		return bluetooth.Address{}, fmt.Errorf("device %s: %w", dev, err)
	}
	return addr, nil
}

type link struct {
	adapter *Adapter
	dev     printer.Device
	device  bluetooth.Device

	mu   sync.Mutex
	open bool
	last *bluetooth.DeviceCharacteristic
}

func (l *link) isOpen() bool {
	l.mu.Lock()
	defer l.mu.Unlock()
	return l.open
}

func (l *link) Connected() bool {
	return l.isOpen() && linkAlive(l.dev.Address)
}

func (l *link) Services(ctx context.Context) ([]printer.GATTService, error) {
	services, err := l.device.DiscoverServices(nil)
	if err != nil {
		return nil, err
	}
	out := make([]printer.GATTService, 0, len(services))
	for i := range services {
		out = append(out, &service{link: l, svc: services[i]})
	}
	return out, nil
}

// RequestMTU reports the MTU the stack negotiated on its own; the library
// cannot request one.
func (l *link) RequestMTU(ctx context.Context, mtu int) (int, error) {
	l.mu.Lock()
	c := l.last
	l.mu.Unlock()
	if c == nil {
		return 0, printer.ErrNotSupported
	}
	return currentMTU(c)
}

func (l *link) Disconnect(ctx context.Context) error {
	l.mu.Lock()
	wasOpen := l.open
	l.open = false
	l.mu.Unlock()

	l.adapter.mu.Lock()
	if l.adapter.links[l.dev.Address] == l {
		delete(l.adapter.links, l.dev.Address)
	}
	l.adapter.mu.Unlock()

	if !wasOpen {
		return nil
	}
	return l.device.Disconnect()
}

type service struct {
	link *link
	svc  bluetooth.DeviceService
}

func (s *service) UUID() uuid.UUID {
	return toUUID(s.svc.UUID())
}

func (s *service) Characteristics(ctx context.Context) ([]printer.Characteristic, error) {
	chars, err := s.svc.DiscoverCharacteristics(nil)
	if err != nil {
		return nil, err
	}
	out := make([]printer.Characteristic, 0, len(chars))
	for i := range chars {
		out = append(out, &characteristic{c: chars[i]})
	}
	// any characteristic reports the connection MTU
	if len(chars) > 0 {
		s.link.mu.Lock()
		s.link.last = &chars[0]
		s.link.mu.Unlock()
	}
	return out, nil
}

type characteristic struct {
	c bluetooth.DeviceCharacteristic
}

func (c *characteristic) UUID() uuid.UUID {
	return toUUID(c.c.UUID())
}

// Properties reports write-without-response only: the library exposes no
// acknowledged write on every platform.
func (c *characteristic) Properties() printer.Property {
	return printer.PropWriteWithoutResponse
}

func (c *characteristic) Write(ctx context.Context, p []byte, withoutResponse bool) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	_, err := c.c.WriteWithoutResponse(p)
	return err
}

func toUUID(u bluetooth.UUID) uuid.UUID {
	id, err := uuid.Parse(u.String())
	if err != nil {
		return uuid.Nil
	}
	return id
}
