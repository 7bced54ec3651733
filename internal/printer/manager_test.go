package printer

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestManagerConnect(t *testing.T) {
	t.Run("PairedDeviceReachesReady", func(t *testing.T) {
		link, _ := printerLink()
		a := newFakeAdapter(link, testDevice)

		var mu sync.Mutex
		var states []State
		m := NewManager(a, testConfig(), WithStateCallback(func(_, s State) {
			mu.Lock()
			states = append(states, s)
			mu.Unlock()
		}))

		require.NoError(t, m.Connect(context.Background(), "MPT-II"))
		assert.Equal(t, StateReady, m.State())
		assert.Equal(t, testDevice, m.Device())
		assert.Equal(t, Params{ChunkSize: 480, WriteWithoutResponse: true}, m.Params())
		assert.Equal(t, 1, a.connectCalls)
		assert.Equal(t, 0, a.scanCalls, "paired hit must not scan")
		assert.Equal(t, []State{
			StateScanning, StateConnecting, StateConnected, StateServiceResolved, StateReady,
		}, states)
	})

	t.Run("ScannedDevice", func(t *testing.T) {
		link, _ := printerLink()
		a := newFakeAdapter(link)
		a.scan = []Device{{Name: "Other", Address: "A"}, {Name: "MPT-II", Address: "B"}}
		m := NewManager(a, testConfig())

		require.NoError(t, m.Connect(context.Background(), "MPT-II"))
		assert.Equal(t, "B", m.Device().Address)
		assert.Equal(t, 1, a.scanCalls)
	})

	t.Run("AdapterOff", func(t *testing.T) {
		link, _ := printerLink()
		a := newFakeAdapter(link, testDevice)
		a.enableErr = errors.New("no adapter")
		m := NewManager(a, testConfig())

		err := m.Connect(context.Background(), "MPT-II")
		assert.ErrorIs(t, err, ErrAdapterOff)
		assert.Equal(t, 0, a.connectCalls)
		assert.Equal(t, StateDisconnected, m.State())
	})

	t.Run("UnknownNameSkipsNegotiation", func(t *testing.T) {
		link, _ := printerLink()
		a := newFakeAdapter(link, testDevice)
		a.scan = []Device{{Name: "Speaker", Address: "C"}}
		m := NewManager(a, testConfig())

		err := m.Connect(context.Background(), "Nope")
		assert.ErrorIs(t, err, ErrDiscoveryEmpty)
		assert.Equal(t, 0, a.connectCalls)
		assert.Equal(t, 0, link.mtuCalls)
		assert.Equal(t, StateDisconnected, m.State())
	})
}

func TestManagerRetry(t *testing.T) {
	t.Run("StopsAfterThreeAttempts", func(t *testing.T) {
		link, _ := printerLink()
		a := newFakeAdapter(link, testDevice)
		a.connectErrs = []error{errors.New("timeout"), errors.New("timeout"), errors.New("timeout"), nil}
		m := NewManager(a, testConfig())

		err := m.Connect(context.Background(), "MPT-II")
		require.Error(t, err)
		assert.ErrorIs(t, err, ErrConnectExhausted)

		var ce *ConnectError
		require.ErrorAs(t, err, &ce)
		assert.Equal(t, 3, ce.Attempts)
		assert.Equal(t, HintGeneric, ce.Hint)
		assert.Equal(t, 3, a.connectCalls)
		assert.Equal(t, 0, link.mtuCalls)
		assert.Equal(t, StateDisconnected, m.State())
	})

	t.Run("AttemptsCappedAtThree", func(t *testing.T) {
		link, _ := printerLink()
		a := newFakeAdapter(link, testDevice)
		a.connectErrs = []error{
			errors.New("timeout"), errors.New("timeout"), errors.New("timeout"),
			errors.New("timeout"), nil,
		}
		cfg := testConfig()
		cfg.MaxAttempts = 10
		m := NewManager(a, cfg)

		err := m.Connect(context.Background(), "MPT-II")
		assert.ErrorIs(t, err, ErrConnectExhausted)
		assert.Equal(t, 3, a.connectCalls)
	})

	t.Run("SucceedsOnSecondAttempt", func(t *testing.T) {
		link, _ := printerLink()
		a := newFakeAdapter(link, testDevice)
		a.connectErrs = []error{errors.New("busy")}
		m := NewManager(a, testConfig())

		require.NoError(t, m.Connect(context.Background(), "MPT-II"))
		assert.Equal(t, 2, a.connectCalls)
		assert.Equal(t, StateReady, m.State())
	})

	t.Run("PairingCacheHint", func(t *testing.T) {
		link, _ := printerLink()
		a := newFakeAdapter(link, testDevice)
		gattErr := errors.New("Connection failed with status 133")
		a.connectErrs = []error{gattErr, gattErr, gattErr}
		m := NewManager(a, testConfig())

		err := m.Connect(context.Background(), "MPT-II")
		var ce *ConnectError
		require.ErrorAs(t, err, &ce)
		assert.Equal(t, HintPairingCache, ce.Hint)
		assert.Contains(t, ce.Message(), "re-pair")
		assert.ErrorIs(t, err, gattErr)
	})

	t.Run("CustomClassifier", func(t *testing.T) {
		link, _ := printerLink()
		a := newFakeAdapter(link, testDevice)
		a.connectErrs = []error{errors.New("x"), errors.New("x"), errors.New("x")}
		m := NewManager(a, testConfig(), WithErrorClassifier(func(error) bool { return true }))

		var ce *ConnectError
		require.ErrorAs(t, m.Connect(context.Background(), "MPT-II"), &ce)
		assert.Equal(t, HintPairingCache, ce.Hint)
	})

	t.Run("ForceDisconnectBetweenAttempts", func(t *testing.T) {
		link, _ := printerLink()
		a := newFakeAdapter(link, testDevice)
		a.connectErrs = []error{errors.New("half open")}
		m := NewManager(&staleAfterFailure{fakeAdapter: a}, testConfig())

		require.NoError(t, m.Connect(context.Background(), "MPT-II"))
		assert.Equal(t, 1, a.cancelCalls)
		assert.Equal(t, 2, a.connectCalls)
	})

	t.Run("StaleLinkDroppedBeforeConnect", func(t *testing.T) {
		link, _ := printerLink()
		a := newFakeAdapter(link, testDevice)
		a.staleConnected = true
		m := NewManager(a, testConfig())

		require.NoError(t, m.Connect(context.Background(), "MPT-II"))
		assert.Equal(t, 1, a.cancelCalls)
	})

	t.Run("LinkNeverComesUp", func(t *testing.T) {
		link, _ := printerLink()
		link.neverConnects = true
		a := newFakeAdapter(link, testDevice)
		m := NewManager(a, testConfig())

		err := m.Connect(context.Background(), "MPT-II")
		assert.ErrorIs(t, err, ErrConnectExhausted)
		assert.ErrorIs(t, err, ErrLinkNotEstablished)
		assert.Equal(t, 3, a.connectCalls)
	})

	t.Run("ContextCancelled", func(t *testing.T) {
		link, _ := printerLink()
		a := newFakeAdapter(link, testDevice)
		a.connectErrs = []error{errors.New("timeout"), errors.New("timeout"), errors.New("timeout")}
		cfg := testConfig()
		cfg.RetryDelay = time.Second
		m := NewManager(a, cfg)

		ctx, cancel := context.WithCancel(context.Background())
		cancel()
		err := m.Connect(ctx, "MPT-II")
		assert.ErrorIs(t, err, context.Canceled)
		assert.LessOrEqual(t, a.connectCalls, 1)
	})
}

// staleAfterFailure reports a lingering link after each failed connect
type staleAfterFailure struct {
	*fakeAdapter
}

func (s *staleAfterFailure) Connect(ctx context.Context, dev Device) (Link, error) {
	l, err := s.fakeAdapter.Connect(ctx, dev)
	if err != nil {
		s.fakeAdapter.mu.Lock()
		s.fakeAdapter.staleConnected = true
		s.fakeAdapter.mu.Unlock()
	}
	return l, err
}

func TestManagerResolve(t *testing.T) {
	t.Run("FallsBackToFirstServiceAndWritableCharacteristic", func(t *testing.T) {
		readOnly := &fakeChar{id: uuid.New(), props: PropRead | PropNotify}
		writable := &fakeChar{id: uuid.New(), props: PropWrite}
		link := &fakeLink{services: []GATTService{
			&fakeService{id: uuid.New(), chars: []Characteristic{readOnly, writable}},
			&fakeService{id: uuid.New()},
		}}
		a := newFakeAdapter(link, testDevice)
		m := NewManager(a, testConfig())

		require.NoError(t, m.Connect(context.Background(), "MPT-II"))
		char, params, err := m.ready()
		require.NoError(t, err)
		assert.Same(t, writable, char)
		assert.False(t, params.WriteWithoutResponse)
	})

	t.Run("TargetCharacteristicPreferred", func(t *testing.T) {
		first := &fakeChar{id: uuid.New(), props: PropWrite}
		target := &fakeChar{id: WriteCharUUID, props: PropWriteWithoutResponse}
		link := &fakeLink{services: []GATTService{
			&fakeService{id: PrinterServiceUUID, chars: []Characteristic{first, target}},
		}}
		m := NewManager(newFakeAdapter(link, testDevice), testConfig())

		require.NoError(t, m.Connect(context.Background(), "MPT-II"))
		char, _, err := m.ready()
		require.NoError(t, err)
		assert.Same(t, target, char)
	})

	t.Run("NoServices", func(t *testing.T) {
		link := &fakeLink{}
		a := newFakeAdapter(link, testDevice)
		m := NewManager(a, testConfig())

		err := m.Connect(context.Background(), "MPT-II")
		assert.ErrorIs(t, err, ErrServiceMissing)
		assert.ErrorIs(t, err, ErrConnectExhausted)
		assert.Equal(t, StateDisconnected, m.State())
		assert.Equal(t, 1, link.disconnectCalls)
		assert.Equal(t, 0, link.mtuCalls)
	})

	t.Run("NoWritableCharacteristic", func(t *testing.T) {
		link := &fakeLink{services: []GATTService{
			&fakeService{id: PrinterServiceUUID, chars: []Characteristic{&fakeChar{id: uuid.New(), props: PropRead}}},
		}}
		m := NewManager(newFakeAdapter(link, testDevice), testConfig())

		err := m.Connect(context.Background(), "MPT-II")
		assert.ErrorIs(t, err, ErrCharacteristicMissing)
		assert.ErrorIs(t, err, ErrConnectExhausted)
		assert.Equal(t, StateDisconnected, m.State())
	})
}

func TestManagerNegotiation(t *testing.T) {
	t.Run("MTUFailureKeepsDefault", func(t *testing.T) {
		link, _ := printerLink()
		link.mtuErr = ErrNotSupported
		m := NewManager(newFakeAdapter(link, testDevice), testConfig())

		require.NoError(t, m.Connect(context.Background(), "MPT-II"))
		assert.Equal(t, StateReady, m.State())
		assert.Equal(t, 180, m.Params().ChunkSize)
		assert.True(t, m.Params().WriteWithoutResponse)
	})

	t.Run("SmallMTU", func(t *testing.T) {
		link, _ := printerLink()
		link.mtu = 185
		m := NewManager(newFakeAdapter(link, testDevice), testConfig())

		require.NoError(t, m.Connect(context.Background(), "MPT-II"))
		assert.Equal(t, 153, m.Params().ChunkSize)
	})
}

func TestChunkSizeForMTU(t *testing.T) {
	tests := []struct {
		mtu, want int
	}{
		{512, 480},
		{517, 480},
		{247, 215},
		{23, MinChunkSize},
		{0, MinChunkSize},
	}
	for _, tt := range tests {
		assert.Equal(t, tt.want, ChunkSizeForMTU(tt.mtu, MTUOverhead, MaxChunkSize), "mtu=%d", tt.mtu)
	}
}

func TestManagerDisconnect(t *testing.T) {
	t.Run("FromDisconnected", func(t *testing.T) {
		m := NewManager(newFakeAdapter(&fakeLink{}), testConfig())
		assert.NotPanics(t, func() {
			m.Disconnect(context.Background())
			m.Disconnect(context.Background())
		})
		assert.Equal(t, StateDisconnected, m.State())
	})

	t.Run("FromReadyTwice", func(t *testing.T) {
		link, _ := printerLink()
		m := NewManager(newFakeAdapter(link, testDevice), testConfig())
		require.NoError(t, m.Connect(context.Background(), "MPT-II"))

		m.Disconnect(context.Background())
		m.Disconnect(context.Background())

		assert.Equal(t, StateDisconnected, m.State())
		assert.Equal(t, 1, link.disconnectCalls)
		assert.Equal(t, Device{}, m.Device())
		assert.Equal(t, Params{}, m.Params())
		_, _, err := m.ready()
		assert.ErrorIs(t, err, ErrNotReady)
	})

	t.Run("ReconnectReleasesPreviousLink", func(t *testing.T) {
		link, _ := printerLink()
		m := NewManager(newFakeAdapter(link, testDevice), testConfig())
		require.NoError(t, m.Connect(context.Background(), "MPT-II"))
		require.NoError(t, m.Connect(context.Background(), "MPT-II"))
		assert.Equal(t, 1, link.disconnectCalls)
		assert.Equal(t, StateReady, m.State())
	})
}

func TestStateString(t *testing.T) {
	assert.Equal(t, "DISCONNECTED", StateDisconnected.String())
	assert.Equal(t, "SERVICE_RESOLVED", StateServiceResolved.String())
	assert.Equal(t, "READY", StateReady.String())
	assert.Equal(t, "UNKNOWN", State(42).String())
}

func TestSignatureClassifier(t *testing.T) {
	c := SignatureClassifier(DefaultPairingErrorSignatures...)
	assert.True(t, c(errors.New("GATT error status 133")))
	assert.True(t, c(errors.New("org.bluez.Error.Failed: le-connection-abort-by-local")))
	assert.False(t, c(errors.New("timeout")))
	assert.False(t, c(nil))
	assert.False(t, SignatureClassifier("")(errors.New("anything")))
}
