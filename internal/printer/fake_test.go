package printer

import (
	"bytes"
	"context"
	"errors"
	"sync"
	"time"

	"github.com/google/uuid"
)

// testConfig is DefaultConfig with every delay removed
func testConfig() Config {
	cfg := DefaultConfig()
	cfg.SettleDelay = 0
	cfg.DisconnectDelay = 0
	cfg.RetryDelay = 0
	cfg.ScanTimeout = 50 * time.Millisecond
	cfg.ThrottleDelay = 0
	cfg.InitDelay = 0
	cfg.CommandDelay = 0
	cfg.LineDelay = 0
	cfg.CutDelay = 0
	return cfg
}

type fakeAdapter struct {
	mu sync.Mutex

	enableErr error
	paired    []Device
	pairedErr error
	scan      []Device
	scanHold  bool // keep the scan open until the context ends
	scanCalls int

	// connectErrs scripts each attempt; attempts past the end succeed
	connectErrs  []error
	connectCalls int
	connectPanic bool

	staleConnected bool // IsConnected result
	cancelCalls    int

	link *fakeLink
}

func newFakeAdapter(link *fakeLink, paired ...Device) *fakeAdapter {
	return &fakeAdapter{link: link, paired: paired}
}

func (a *fakeAdapter) Enable() error {
	return a.enableErr
}

func (a *fakeAdapter) Paired(ctx context.Context) ([]Device, error) {
	return a.paired, a.pairedErr
}

func (a *fakeAdapter) Scan(ctx context.Context) (<-chan Device, error) {
	a.mu.Lock()
	a.scanCalls++
	a.mu.Unlock()

	ch := make(chan Device)
	go func() {
		defer close(ch)
		for _, d := range a.scan {
			select {
			case ch <- d:
			case <-ctx.Done():
				return
			}
		}
		if a.scanHold {
			<-ctx.Done()
		}
	}()
	return ch, nil
}

func (a *fakeAdapter) Connect(ctx context.Context, dev Device) (Link, error) {
	a.mu.Lock()
	defer a.mu.Unlock()
	a.connectCalls++
	if a.connectPanic {
		panic("driver crashed")
	}
	if a.connectCalls <= len(a.connectErrs) {
		if err := a.connectErrs[a.connectCalls-1]; err != nil {
			return nil, err
		}
	}
	a.link.mu.Lock()
	a.link.connected = true
	a.link.mu.Unlock()
	return a.link, nil
}

func (a *fakeAdapter) IsConnected(dev Device) bool {
	a.mu.Lock()
	defer a.mu.Unlock()
	return a.staleConnected
}

func (a *fakeAdapter) CancelConnection(ctx context.Context, dev Device) error {
	a.mu.Lock()
	defer a.mu.Unlock()
	a.cancelCalls++
	a.staleConnected = false
	return nil
}

type fakeLink struct {
	mu sync.Mutex

	connected       bool
	neverConnects   bool
	services        []GATTService
	servicesErr     error
	mtu             int
	mtuErr          error
	mtuCalls        int
	disconnectCalls int
}

func (l *fakeLink) Connected() bool {
	l.mu.Lock()
	defer l.mu.Unlock()
	return l.connected && !l.neverConnects
}

func (l *fakeLink) Services(ctx context.Context) ([]GATTService, error) {
	return l.services, l.servicesErr
}

func (l *fakeLink) RequestMTU(ctx context.Context, mtu int) (int, error) {
	l.mu.Lock()
	defer l.mu.Unlock()
	l.mtuCalls++
	if l.mtuErr != nil {
		return 0, l.mtuErr
	}
	if l.mtu == 0 {
		return mtu, nil
	}
	return l.mtu, nil
}

func (l *fakeLink) Disconnect(ctx context.Context) error {
	l.mu.Lock()
	defer l.mu.Unlock()
	l.disconnectCalls++
	l.connected = false
	return nil
}

type fakeService struct {
	id    uuid.UUID
	chars []Characteristic
}

func (s *fakeService) UUID() uuid.UUID { return s.id }

func (s *fakeService) Characteristics(ctx context.Context) ([]Characteristic, error) {
	return s.chars, nil
}

var errLinkLost = errors.New("link lost")

type fakeChar struct {
	mu sync.Mutex

	id    uuid.UUID
	props Property

	writes  [][]byte
	noResp  []bool
	failAt  int // 1-based write index that fails; 0 never
	block   chan struct{}
	started chan struct{}
}

func (c *fakeChar) UUID() uuid.UUID      { return c.id }
func (c *fakeChar) Properties() Property { return c.props }

func (c *fakeChar) Write(ctx context.Context, p []byte, withoutResponse bool) error {
	if c.started != nil {
		select {
		case c.started <- struct{}{}:
		default:
		}
	}
	if c.block != nil {
		<-c.block
	}
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.failAt > 0 && len(c.writes)+1 == c.failAt {
		c.writes = append(c.writes, nil)
		return errLinkLost
	}
	c.writes = append(c.writes, append([]byte(nil), p...))
	c.noResp = append(c.noResp, withoutResponse)
	return nil
}

// stream concatenates every successful write
func (c *fakeChar) stream() []byte {
	c.mu.Lock()
	defer c.mu.Unlock()
	return bytes.Join(c.writes, nil)
}

func (c *fakeChar) writeCount() int {
	c.mu.Lock()
	defer c.mu.Unlock()
	return len(c.writes)
}

// printerLink is a conforming printer: target service with the target
// characteristic supporting both write modes.
func printerLink() (*fakeLink, *fakeChar) {
	char := &fakeChar{id: WriteCharUUID, props: PropWrite | PropWriteWithoutResponse}
	link := &fakeLink{
		services: []GATTService{
			&fakeService{id: uuid.MustParse("00001800-0000-1000-8000-00805f9b34fb")},
			&fakeService{id: PrinterServiceUUID, chars: []Characteristic{char}},
		},
	}
	return link, char
}

var testDevice = Device{Name: "MPT-II", Address: "86:67:7A:00:11:22", Paired: true}
