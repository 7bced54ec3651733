package printer

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type alert struct {
	title, message string
}

type alerts struct {
	mu   sync.Mutex
	list []alert
}

func (a *alerts) Alert(title, message string) {
	a.mu.Lock()
	defer a.mu.Unlock()
	a.list = append(a.list, alert{title, message})
}

func (a *alerts) titles() []string {
	a.mu.Lock()
	defer a.mu.Unlock()
	var out []string
	for _, x := range a.list {
		out = append(out, x.title)
	}
	return out
}

func (a *alerts) last() alert {
	a.mu.Lock()
	defer a.mu.Unlock()
	if len(a.list) == 0 {
		return alert{}
	}
	return a.list[len(a.list)-1]
}

func newTestService(adapter *fakeAdapter, opts ...Option) (*Service, *alerts) {
	n := &alerts{}
	return NewService(NewManager(adapter, testConfig(), opts...), n), n
}

func TestServiceConnect(t *testing.T) {
	t.Run("Success", func(t *testing.T) {
		link, _ := printerLink()
		s, n := newTestService(newFakeAdapter(link, testDevice))
		assert.True(t, s.Connect(context.Background(), testDevice.Name))
		assert.Equal(t, StateReady, s.State())
		assert.Empty(t, n.titles())
	})

	t.Run("AdapterOff", func(t *testing.T) {
		a := newFakeAdapter(nil)
		a.enableErr = errors.New("powered off")
		s, n := newTestService(a)
		assert.False(t, s.Connect(context.Background(), testDevice.Name))
		assert.Equal(t, alert{"Error", "Bluetooth is turned off"}, n.last())
	})

	t.Run("NotFound", func(t *testing.T) {
		s, n := newTestService(newFakeAdapter(nil))
		assert.False(t, s.Connect(context.Background(), "Ghost"))
		assert.Equal(t, "Printer Not Found", n.last().title)
		assert.Contains(t, n.last().message, "Ghost")
	})

	t.Run("PairingHint", func(t *testing.T) {
		link, _ := printerLink()
		a := newFakeAdapter(link, testDevice)
		a.connectErrs = []error{
			errors.New("gatt status 133"),
			errors.New("gatt status 133"),
			errors.New("gatt status 133"),
		}
		s, n := newTestService(a)
		assert.False(t, s.Connect(context.Background(), testDevice.Name))
		assert.Equal(t, "Connection Failed", n.last().title)
		assert.Equal(t, "Could not connect to printer. "+HintPairingCache, n.last().message)
		assert.Equal(t, StateDisconnected, s.State())
	})

	t.Run("GenericHint", func(t *testing.T) {
		link, _ := printerLink()
		a := newFakeAdapter(link, testDevice)
		a.connectErrs = []error{errors.New("timeout"), errors.New("timeout"), errors.New("timeout")}
		s, n := newTestService(a)
		assert.False(t, s.Connect(context.Background(), testDevice.Name))
		assert.Equal(t, "Could not connect to printer. "+HintGeneric, n.last().message)
	})

	t.Run("AdapterPanic", func(t *testing.T) {
		link, _ := printerLink()
		a := newFakeAdapter(link, testDevice)
		a.connectPanic = true
		s, _ := newTestService(a)
		assert.NotPanics(t, func() {
			assert.False(t, s.Connect(context.Background(), testDevice.Name))
		})
		assert.Equal(t, StateDisconnected, s.State())

		// the lock was released
		a.connectPanic = false
		assert.True(t, s.Connect(context.Background(), testDevice.Name))
	})
}

func TestServicePrint(t *testing.T) {
	t.Run("NotConnected", func(t *testing.T) {
		link, char := printerLink()
		s, n := newTestService(newFakeAdapter(link, testDevice))
		assert.False(t, s.PrintFormattedText(context.Background(), []string{"x"}, 12, true, true))
		assert.Equal(t, alert{"Print Failed", "Printer is not connected."}, n.last())
		assert.Zero(t, char.writeCount())
	})

	t.Run("HeaderThenBody", func(t *testing.T) {
		link, char := printerLink()
		s, n := newTestService(newFakeAdapter(link, testDevice))
		require.True(t, s.Connect(context.Background(), testDevice.Name))

		assert.True(t, s.PrintFormattedText(context.Background(), []string{"SHOP"}, 24, true, false))
		assert.True(t, s.PrintFormattedText(context.Background(), []string{"Milk 1.00", "Bread 2.00"}, 12, false, true))
		assert.Empty(t, n.titles())

		stream := string(char.stream())
		assert.Contains(t, stream, "SHOP\n")
		assert.Contains(t, stream, "Bread 2.00\n")
	})

	t.Run("WriteFailure", func(t *testing.T) {
		link, char := printerLink()
		s, n := newTestService(newFakeAdapter(link, testDevice))
		require.True(t, s.Connect(context.Background(), testDevice.Name))
		char.failAt = 4

		assert.False(t, s.PrintFormattedText(context.Background(), []string{"x"}, 12, false, true))
		assert.Equal(t, "Print Failed", n.last().title)
		assert.Equal(t, StateReady, s.State())
	})

	t.Run("BusyRejected", func(t *testing.T) {
		link, char := printerLink()
		s, n := newTestService(newFakeAdapter(link, testDevice))
		require.True(t, s.Connect(context.Background(), testDevice.Name))

		char.block = make(chan struct{})
		char.started = make(chan struct{}, 1)

		done := make(chan bool)
		go func() {
			done <- s.PrintFormattedText(context.Background(), []string{"slow"}, 12, false, true)
		}()

		select {
		case <-char.started:
		case <-time.After(2 * time.Second):
			t.Fatal("print never started")
		}

		assert.False(t, s.PrintFormattedText(context.Background(), []string{"fast"}, 12, false, true))
		assert.False(t, s.Connect(context.Background(), testDevice.Name))
		assert.Equal(t, []string{"Printer Busy", "Printer Busy"}, n.titles())

		close(char.block)
		assert.True(t, <-done)
		assert.NotContains(t, string(char.stream()), "fast")
	})
}

func TestServicePairedDevices(t *testing.T) {
	a := newFakeAdapter(nil, testDevice, Device{Address: "00:11:22:33:44:55"})
	s, _ := newTestService(a)
	assert.Equal(t, []string{"MPT-II", "Unknown Device"}, s.PairedDevices(context.Background()))

	a.pairedErr = errors.New("no adapter")
	assert.Empty(t, s.PairedDevices(context.Background()))
}

func TestServiceDisconnect(t *testing.T) {
	link, _ := printerLink()
	s, _ := newTestService(newFakeAdapter(link, testDevice))
	require.True(t, s.Connect(context.Background(), testDevice.Name))

	s.Disconnect(context.Background())
	s.Disconnect(context.Background())
	assert.Equal(t, StateDisconnected, s.State())
	assert.Equal(t, 1, link.disconnectCalls)
}
