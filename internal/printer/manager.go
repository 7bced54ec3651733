package printer

import (
	"context"
	"errors"
	"fmt"
	"sync"

	"github.com/google/uuid"
	"go.uber.org/zap"
)

// Params are the transfer parameters negotiated for one connection
type Params struct {
	ChunkSize            int
	WriteWithoutResponse bool
}

// Manager owns the single printer connection and walks it through
// Disconnected → Scanning → Connecting → Connected → ServiceResolved → Ready.
// Any failure rolls back to Disconnected.
type Manager struct {
	adapter   Adapter
	discovery *Discovery
	cfg       Config
	log       *zap.Logger
	classify  ErrorClassifier
	onState   func(old, new State)

	mu     sync.RWMutex
	state  State
	device Device
	link   Link
	char   Characteristic
	params Params
}

// Option configures a Manager
type Option func(*Manager)

func WithLogger(log *zap.Logger) Option {
	return func(m *Manager) {
		if log != nil {
			m.log = log
		}
	}
}

// WithErrorClassifier replaces the pairing-cache heuristic used to pick the
// hint of a ConnectError.
func WithErrorClassifier(c ErrorClassifier) Option {
	return func(m *Manager) {
		if c != nil {
			m.classify = c
		}
	}
}

// WithStateCallback is invoked after every state change, outside the lock
func WithStateCallback(fn func(old, new State)) Option {
	return func(m *Manager) {
		m.onState = fn
	}
}

func NewManager(adapter Adapter, cfg Config, opts ...Option) *Manager {
	cfg = cfg.withDefaults()
	m := &Manager{
		adapter: adapter,
		cfg:     cfg,
		log:     zap.NewNop(),
		state:   StateDisconnected,
	}
	for _, opt := range opts {
		opt(m)
	}
	if m.classify == nil {
		m.classify = SignatureClassifier(cfg.PairingErrorSignatures...)
	}
	m.discovery = NewDiscovery(adapter, cfg.ScanTimeout, m.log)
	return m
}

// Discovery exposes the manager's device discovery
func (m *Manager) Discovery() *Discovery {
	return m.discovery
}

func (m *Manager) State() State {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return m.state
}

// Params returns the negotiated parameters; zero unless Ready
func (m *Manager) Params() Params {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return m.params
}

// Device returns the connected device; zero when disconnected
func (m *Manager) Device() Device {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return m.device
}

func (m *Manager) setState(s State) {
	m.mu.Lock()
	old := m.state
	m.state = s
	m.mu.Unlock()

	if old != s {
		m.log.Debug("state change", zap.Stringer("from", old), zap.Stringer("to", s))
		if m.onState != nil {
			m.onState(old, s)
		}
	}
}

// ready returns the write target of a Ready connection
func (m *Manager) ready() (Characteristic, Params, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	if m.state != StateReady || m.char == nil {
		return nil, Params{}, ErrNotReady
	}
	return m.char, m.params, nil
}

// Connect finds the printer called name and brings the link to Ready.
// Any previous connection is released first.
func (m *Manager) Connect(ctx context.Context, name string) error {
	if err := m.adapter.Enable(); err != nil {
		return fmt.Errorf("%w: %v", ErrAdapterOff, err)
	}

	m.Disconnect(ctx)

	m.setState(StateScanning)
	dev, err := m.discovery.Find(ctx, name)
	if err != nil {
		m.setState(StateDisconnected)
		return err
	}

	link, err := m.dial(ctx, dev)
	if err != nil {
		m.setState(StateDisconnected)
		return err
	}

	m.mu.Lock()
	m.device = dev
	m.link = link
	m.mu.Unlock()
	m.setState(StateConnected)

	char, err := m.resolve(ctx, link)
	if err != nil {
		m.Disconnect(ctx)
		return &ConnectError{Device: dev.Name, Attempts: 1, Hint: HintGeneric, Err: err}
	}
	m.mu.Lock()
	m.char = char
	m.mu.Unlock()
	m.setState(StateServiceResolved)

	params := m.negotiate(ctx, link, char)

	m.mu.Lock()
	m.params = params
	m.mu.Unlock()
	m.setState(StateReady)

	m.log.Info("printer ready",
		zap.String("device", dev.String()),
		zap.Int("chunk_size", params.ChunkSize),
		zap.Bool("write_without_response", params.WriteWithoutResponse))
	return nil
}

// dial runs the bounded connect loop
func (m *Manager) dial(ctx context.Context, dev Device) (Link, error) {
	if m.adapter.IsConnected(dev) {
		m.log.Debug("device still connected, dropping stale link", zap.String("device", dev.String()))
		m.cancelStale(ctx, dev)
		if err := sleep(ctx, m.cfg.DisconnectDelay); err != nil {
			return nil, err
		}
	}

	m.setState(StateConnecting)

	var lastErr error
	attempts := 0
	for attempt := 1; attempt <= m.cfg.MaxAttempts; attempt++ {
		attempts = attempt
		link, err := m.adapter.Connect(ctx, dev)
		if err == nil {
			if err := sleep(ctx, m.cfg.SettleDelay); err != nil {
				_ = link.Disconnect(context.WithoutCancel(ctx))
				lastErr = err
				break
			}
			if link.Connected() {
				m.log.Info("connected", zap.String("device", dev.String()), zap.Int("attempt", attempt))
				return link, nil
			}
			_ = link.Disconnect(ctx)
			lastErr = ErrLinkNotEstablished
			m.log.Warn("connect returned without a link", zap.Int("attempt", attempt))
			continue
		}

		lastErr = err
		m.log.Warn("connect attempt failed",
			zap.String("device", dev.String()),
			zap.Int("attempt", attempt),
			zap.Int("max_attempts", m.cfg.MaxAttempts),
			zap.Error(err))

		if ctx.Err() != nil {
			lastErr = ctx.Err()
			break
		}
		if attempt < m.cfg.MaxAttempts {
			if m.adapter.IsConnected(dev) {
				m.cancelStale(ctx, dev)
				if err := sleep(ctx, m.cfg.DisconnectDelay); err != nil {
					lastErr = err
					break
				}
			}
			if err := sleep(ctx, m.cfg.RetryDelay); err != nil {
				lastErr = err
				break
			}
		}
	}

	hint := HintGeneric
	if m.classify(lastErr) {
		hint = HintPairingCache
	}
	return nil, &ConnectError{Device: dev.Name, Attempts: attempts, Hint: hint, Err: lastErr}
}

func (m *Manager) cancelStale(ctx context.Context, dev Device) {
	if err := m.adapter.CancelConnection(ctx, dev); err != nil {
		m.log.Debug("forced disconnect failed", zap.Error(err))
	}
}

// resolve picks the target service (or the first one) and then the target
// characteristic (or the first writable one).
func (m *Manager) resolve(ctx context.Context, link Link) (Characteristic, error) {
	services, err := link.Services(ctx)
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrServiceMissing, err)
	}
	svc := pickService(services, m.cfg.ServiceUUID)
	if svc == nil {
		return nil, ErrServiceMissing
	}
	if svc.UUID() != m.cfg.ServiceUUID {
		m.log.Warn("printer service not advertised, using first service", zap.Stringer("service", svc.UUID()))
	}

	chars, err := svc.Characteristics(ctx)
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrCharacteristicMissing, err)
	}
	char := pickCharacteristic(chars, m.cfg.CharacteristicUUID)
	if char == nil {
		return nil, ErrCharacteristicMissing
	}
	return char, nil
}

func pickService(services []GATTService, id uuid.UUID) GATTService {
	for _, s := range services {
		if s.UUID() == id {
			return s
		}
	}
	if len(services) > 0 {
		return services[0]
	}
	return nil
}

func pickCharacteristic(chars []Characteristic, id uuid.UUID) Characteristic {
	for _, c := range chars {
		if c.UUID() == id {
			return c
		}
	}
	for _, c := range chars {
		if c.Properties().CanWrite() {
			return c
		}
	}
	return nil
}

// Disconnect releases the link and returns to Disconnected. It is safe to
// call in any state and any number of times.
func (m *Manager) Disconnect(ctx context.Context) {
	m.mu.Lock()
	link := m.link
	dev := m.device
	m.link = nil
	m.char = nil
	m.device = Device{}
	m.params = Params{}
	m.mu.Unlock()

	if link != nil {
		if err := link.Disconnect(ctx); err != nil && !errors.Is(err, context.Canceled) {
			m.log.Debug("disconnect failed", zap.String("device", dev.String()), zap.Error(err))
		} else {
			m.log.Info("disconnected", zap.String("device", dev.String()))
		}
	}
	m.setState(StateDisconnected)
}
