package printer

import (
	"context"
	"errors"
	"fmt"
	"sync"

	"go.uber.org/zap"
)

// Notifier shows a message to the user. The printer core never renders UI
// itself; front-ends inject their alert surface here.
type Notifier interface {
	Alert(title, message string)
}

// NotifierFunc adapts a function to Notifier
type NotifierFunc func(title, message string)

func (f NotifierFunc) Alert(title, message string) {
	f(title, message)
}

type nopNotifier struct{}

func (nopNotifier) Alert(string, string) {}

// Service is the caller-facing API: every operation reports a plain
// success flag and failures go to the Notifier. Only one operation runs at
// a time; overlapping calls are rejected, not queued.
type Service struct {
	mu      sync.Mutex
	manager *Manager
	session *Session
	notify  Notifier
	log     *zap.Logger
}

func NewService(m *Manager, notify Notifier) *Service {
	if notify == nil {
		notify = nopNotifier{}
	}
	return &Service{
		manager: m,
		session: NewSession(m),
		notify:  notify,
		log:     m.log,
	}
}

// Manager returns the underlying connection manager
func (s *Service) Manager() *Manager {
	return s.manager
}

// State reports the connection state without waiting for a running operation
func (s *Service) State() State {
	return s.manager.State()
}

func (s *Service) acquire() bool {
	if s.mu.TryLock() {
		return true
	}
	s.log.Warn("operation rejected, printer busy")
	s.notify.Alert("Printer Busy", "Another print operation is in progress. Please wait for it to finish.")
	return false
}

// recoverInto turns a panic from a platform adapter into a failed result
func (s *Service) recoverInto(op string, ok *bool, cleanup func()) {
	if r := recover(); r != nil {
		s.log.Error("adapter panic", zap.String("op", op), zap.Any("panic", r))
		*ok = false
		if cleanup != nil {
			cleanup()
		}
	}
}

// PairedDevices returns the names of bonded devices; errors yield an empty list
func (s *Service) PairedDevices(ctx context.Context) (names []string) {
	defer func() {
		if r := recover(); r != nil {
			s.log.Error("adapter panic", zap.String("op", "paired"), zap.Any("panic", r))
			names = nil
		}
	}()

	devices, err := s.manager.Discovery().Paired(ctx)
	if err != nil {
		s.log.Debug("paired device listing failed", zap.Error(err))
		return nil
	}
	names = make([]string, 0, len(devices))
	for _, d := range devices {
		name := d.Name
		if name == "" {
			name = "Unknown Device"
		}
		names = append(names, name)
	}
	return names
}

// Connect brings the named printer to Ready
func (s *Service) Connect(ctx context.Context, name string) (ok bool) {
	if !s.acquire() {
		return false
	}
	defer s.mu.Unlock()
	defer s.recoverInto("connect", &ok, func() { s.manager.Disconnect(context.WithoutCancel(ctx)) })

	err := s.manager.Connect(ctx, name)
	if err == nil {
		return true
	}

	s.log.Warn("connect failed", zap.String("device", name), zap.Error(err))
	var ce *ConnectError
	switch {
	case errors.Is(err, ErrAdapterOff):
		s.notify.Alert("Error", "Bluetooth is turned off")
	case errors.As(err, &ce):
		s.notify.Alert("Connection Failed", ce.Message())
	case errors.Is(err, ErrDiscoveryEmpty):
		s.notify.Alert("Printer Not Found",
			fmt.Sprintf("Could not find %q. Make sure the printer is paired or nearby and turned on.", name))
	default:
		s.notify.Alert("Connection Failed", "Could not connect to printer. "+HintGeneric)
	}
	return false
}

// PrintFormattedText prints lines as one job; see Job for the meaning of isBody
func (s *Service) PrintFormattedText(ctx context.Context, lines []string, fontSize int, centerAlign, isBody bool) (ok bool) {
	if !s.acquire() {
		return false
	}
	defer s.mu.Unlock()
	defer s.recoverInto("print", &ok, nil)

	err := s.session.Print(ctx, Job{
		Lines:       lines,
		FontSize:    fontSize,
		CenterAlign: centerAlign,
		IsBody:      isBody,
	})
	if err == nil {
		return true
	}

	s.log.Warn("print failed", zap.Error(err))
	if errors.Is(err, ErrNotReady) {
		s.notify.Alert("Print Failed", "Printer is not connected.")
	} else {
		s.notify.Alert("Print Failed", "The receipt could not be sent to the printer. Output may be incomplete.")
	}
	return false
}

// Disconnect waits for a running operation, then releases the connection
func (s *Service) Disconnect(ctx context.Context) {
	s.mu.Lock()
	defer s.mu.Unlock()
	defer func() {
		if r := recover(); r != nil {
			s.log.Error("adapter panic", zap.String("op", "disconnect"), zap.Any("panic", r))
		}
	}()
	s.manager.Disconnect(ctx)
}
