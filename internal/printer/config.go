package printer

import (
	"context"
	"strings"
	"time"

	"github.com/google/uuid"
)

// Transfer limits
const (
	DefaultChunkSize = 180
	MaxChunkSize     = 480
	MinChunkSize     = 20 // ATT_MTU 23 minus the 3 byte header
	DefaultMTU       = 512
	MTUOverhead      = 32

	MaxConnectAttempts = 3
)

// DefaultPairingErrorSignatures are error fragments that point to a stale
// pairing cache in the platform BLE stack rather than a printer out of range.
// "133" is Android's GATT_ERROR; the others come from BlueZ.
var DefaultPairingErrorSignatures = []string{
	"133",
	"le-connection-abort-by-local",
	"Software caused connection abort",
}

// Config holds identifiers, retry policy, transfer sizing and delays
type Config struct {
	ServiceUUID        uuid.UUID
	CharacteristicUUID uuid.UUID

	MaxAttempts     int
	SettleDelay     time.Duration // after each connect call
	DisconnectDelay time.Duration // after a forced disconnect
	RetryDelay      time.Duration // between attempts
	ScanTimeout     time.Duration

	DefaultChunkSize int
	MaxChunkSize     int
	MTURequest       int
	MTUOverhead      int
	ThrottleEvery    int
	ThrottleDelay    time.Duration

	PairingErrorSignatures []string

	// Settle delays of the print sequence
	InitDelay    time.Duration
	CommandDelay time.Duration
	LineDelay    time.Duration
	CutDelay     time.Duration
}

// DefaultConfig returns the timings known to work with common 58/80mm BLE printers
func DefaultConfig() Config {
	return Config{
		ServiceUUID:            PrinterServiceUUID,
		CharacteristicUUID:     WriteCharUUID,
		MaxAttempts:            MaxConnectAttempts,
		SettleDelay:            300 * time.Millisecond,
		DisconnectDelay:        1000 * time.Millisecond,
		RetryDelay:             2500 * time.Millisecond,
		ScanTimeout:            10 * time.Second,
		DefaultChunkSize:       DefaultChunkSize,
		MaxChunkSize:           MaxChunkSize,
		MTURequest:             DefaultMTU,
		MTUOverhead:            MTUOverhead,
		ThrottleEvery:          5,
		ThrottleDelay:          10 * time.Millisecond,
		PairingErrorSignatures: DefaultPairingErrorSignatures,
		InitDelay:              50 * time.Millisecond,
		CommandDelay:           20 * time.Millisecond,
		LineDelay:              10 * time.Millisecond,
		CutDelay:               50 * time.Millisecond,
	}
}

// withDefaults fills zero values that would make the state machine unusable.
// Delays are left alone: zero is a valid delay.
func (c Config) withDefaults() Config {
	d := DefaultConfig()
	if c.ServiceUUID == uuid.Nil {
		c.ServiceUUID = d.ServiceUUID
	}
	if c.CharacteristicUUID == uuid.Nil {
		c.CharacteristicUUID = d.CharacteristicUUID
	}
	if c.MaxAttempts <= 0 {
		c.MaxAttempts = d.MaxAttempts
	}
	if c.MaxAttempts > MaxConnectAttempts {
		c.MaxAttempts = MaxConnectAttempts
	}
	if c.DefaultChunkSize <= 0 {
		c.DefaultChunkSize = d.DefaultChunkSize
	}
	if c.MaxChunkSize <= 0 {
		c.MaxChunkSize = d.MaxChunkSize
	}
	if c.MTURequest <= 0 {
		c.MTURequest = d.MTURequest
	}
	if c.MTUOverhead < 0 {
		c.MTUOverhead = d.MTUOverhead
	}
	if c.ThrottleEvery <= 0 {
		c.ThrottleEvery = d.ThrottleEvery
	}
	if c.PairingErrorSignatures == nil {
		c.PairingErrorSignatures = d.PairingErrorSignatures
	}
	return c
}

// ErrorClassifier reports whether a connect error looks like a stale
// pairing cache on the host.
type ErrorClassifier func(err error) bool

// SignatureClassifier matches error text against known fragments
func SignatureClassifier(signatures ...string) ErrorClassifier {
	return func(err error) bool {
		if err == nil {
			return false
		}
		msg := err.Error()
		for _, s := range signatures {
			if s != "" && strings.Contains(msg, s) {
				return true
			}
		}
		return false
	}
}

// sleep waits for d or until ctx is done
func sleep(ctx context.Context, d time.Duration) error {
	if d <= 0 {
		return ctx.Err()
	}
	t := time.NewTimer(d)
	defer t.Stop()
	select {
	case <-ctx.Done():
		return ctx.Err()
	case <-t.C:
		return nil
	}
}
