//go:build linux

package goble

import (
	"context"
	"fmt"
	"sync"
	"time"

	"github.com/go-ble/ble"
	"github.com/go-ble/ble/linux"
	"github.com/google/uuid"
	"go.uber.org/zap"

	"receipt-print/internal/printer"
	"receipt-print/internal/printer/bluez"
)

const (
	bluezQueryTimeout = 3 * time.Second
	maxATTMTU         = 515 // 512 byte attribute plus the 3 byte header
)

// Adapter owns one HCI device
type Adapter struct {
	hci int
	log *zap.Logger

	mu      sync.Mutex
	dev     ble.Device
	clients map[string]ble.Client
}

// New returns an adapter for /dev/hci<hci>; the device is opened by Enable
func New(hci int, log *zap.Logger) *Adapter {
	if log == nil {
		log = zap.NewNop()
	}
	return &Adapter{
		hci:     hci,
		log:     log.Named("goble"),
		clients: make(map[string]ble.Client),
	}
}

func (a *Adapter) Enable() error {
	a.mu.Lock()
	defer a.mu.Unlock()
	if a.dev != nil {
		return nil
	}
	d, err := linux.NewDevice(ble.OptDeviceID(a.hci))
	if err != nil {
		return fmt.Errorf("can't open hci%d: %w", a.hci, err)
	}
	ble.SetDefaultDevice(d)
	a.dev = d
	return nil
}

// Close releases the HCI device
func (a *Adapter) Close() error {
	a.mu.Lock()
	defer a.mu.Unlock()
	if a.dev == nil {
		return nil
	}
	err := a.dev.Stop()
	a.dev = nil
	return err
}

func (a *Adapter) Paired(ctx context.Context) ([]printer.Device, error) {
	return bluez.PairedDevices(ctx)
}

func (a *Adapter) Scan(ctx context.Context) (<-chan printer.Device, error) {
	out := make(chan printer.Device)
	go func() {
		defer close(out)
		err := ble.Scan(ctx, false, func(adv ble.Advertisement) {
			dev := printer.Device{Name: adv.LocalName(), Address: adv.Addr().String()}
			select {
			case out <- dev:
			case <-ctx.Done():
			}
		}, nil)
		if err != nil && ctx.Err() == nil {
			a.log.Warn("scan stopped", zap.Error(err))
		}
	}()
	return out, nil
}

func (a *Adapter) Connect(ctx context.Context, dev printer.Device) (printer.Link, error) {
	client, err := ble.Dial(ctx, ble.NewAddr(dev.Address))
	if err != nil {
		return nil, err
	}
	a.mu.Lock()
	a.clients[dev.Address] = client
	a.mu.Unlock()
	return &link{adapter: a, address: dev.Address, client: client}, nil
}

func (a *Adapter) IsConnected(dev printer.Device) bool {
	a.mu.Lock()
	client := a.clients[dev.Address]
	a.mu.Unlock()
	if client != nil && alive(client) {
		return true
	}
	ctx, cancel := context.WithTimeout(context.Background(), bluezQueryTimeout)
	defer cancel()
	ok, err := bluez.Connected(ctx, dev.Address)
	return err == nil && ok
}

func (a *Adapter) CancelConnection(ctx context.Context, dev printer.Device) error {
	a.mu.Lock()
	client := a.clients[dev.Address]
	delete(a.clients, dev.Address)
	a.mu.Unlock()
	if client != nil {
		return client.CancelConnection()
	}
	return bluez.Disconnect(ctx, dev.Address)
}

func alive(client ble.Client) bool {
	select {
	case <-client.Disconnected():
		return false
	default:
		return true
	}
}

type link struct {
	adapter *Adapter
	address string
	client  ble.Client
}

func (l *link) Connected() bool {
	return alive(l.client)
}

func (l *link) Services(ctx context.Context) ([]printer.GATTService, error) {
	profile, err := l.client.DiscoverProfile(true)
	if err != nil {
		return nil, err
	}
	out := make([]printer.GATTService, 0, len(profile.Services))
	for _, s := range profile.Services {
		out = append(out, &service{client: l.client, svc: s})
	}
	return out, nil
}

func (l *link) RequestMTU(ctx context.Context, mtu int) (int, error) {
	if mtu > maxATTMTU {
		mtu = maxATTMTU
	}
	return l.client.ExchangeMTU(mtu)
}

func (l *link) Disconnect(ctx context.Context) error {
	l.adapter.mu.Lock()
	if l.adapter.clients[l.address] == l.client {
		delete(l.adapter.clients, l.address)
	}
	l.adapter.mu.Unlock()

	if !alive(l.client) {
		return nil
	}
	return l.client.CancelConnection()
}

type service struct {
	client ble.Client
	svc    *ble.Service
}

func (s *service) UUID() uuid.UUID {
	return toUUID(s.svc.UUID)
}

func (s *service) Characteristics(ctx context.Context) ([]printer.Characteristic, error) {
	out := make([]printer.Characteristic, 0, len(s.svc.Characteristics))
	for _, c := range s.svc.Characteristics {
		out = append(out, &characteristic{client: s.client, c: c})
	}
	return out, nil
}

type characteristic struct {
	client ble.Client
	c      *ble.Characteristic
}

func (c *characteristic) UUID() uuid.UUID {
	return toUUID(c.c.UUID)
}

func (c *characteristic) Properties() printer.Property {
	return toProperty(c.c.Property)
}

func (c *characteristic) Write(ctx context.Context, p []byte, withoutResponse bool) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	return c.client.WriteCharacteristic(c.c, p, withoutResponse)
}

func toProperty(p ble.Property) printer.Property {
	var out printer.Property
	if p&ble.CharRead != 0 {
		out |= printer.PropRead
	}
	if p&ble.CharWrite != 0 {
		out |= printer.PropWrite
	}
	if p&ble.CharWriteNR != 0 {
		out |= printer.PropWriteWithoutResponse
	}
	if p&ble.CharNotify != 0 {
		out |= printer.PropNotify
	}
	if p&ble.CharIndicate != 0 {
		out |= printer.PropIndicate
	}
	return out
}

// base is the Bluetooth Base UUID 00000000-0000-1000-8000-00805f9b34fb
var base = uuid.MustParse("00000000-0000-1000-8000-00805f9b34fb")

// toUUID converts a little-endian ble.UUID, widening 16 and 32 bit forms
func toUUID(u ble.UUID) uuid.UUID {
	b := ble.Reverse(u)
	switch len(b) {
	case 2, 4:
		id := base
		copy(id[4-len(b):4], b)
		return id
	case 16:
		id, err := uuid.FromBytes(b)
		if err != nil {
			return uuid.Nil
		}
		return id
	}
	return uuid.Nil
}
