package printer

import (
	"context"
	"fmt"
	"time"

	"go.uber.org/zap"
)

// Discovery finds printers among paired devices and, failing that, by a
// time-boxed active scan.
type Discovery struct {
	adapter Adapter
	timeout time.Duration
	log     *zap.Logger
}

func NewDiscovery(adapter Adapter, scanTimeout time.Duration, log *zap.Logger) *Discovery {
	if log == nil {
		log = zap.NewNop()
	}
	if scanTimeout <= 0 {
		scanTimeout = DefaultConfig().ScanTimeout
	}
	return &Discovery{adapter: adapter, timeout: scanTimeout, log: log}
}

// Paired returns bonded devices
func (d *Discovery) Paired(ctx context.Context) ([]Device, error) {
	devices, err := d.adapter.Paired(ctx)
	if err != nil {
		return nil, fmt.Errorf("failed to list paired devices: %w", err)
	}
	return devices, nil
}

// Nearby scans for the full scan timeout and returns every distinct device seen
func (d *Discovery) Nearby(ctx context.Context) ([]Device, error) {
	ctx, cancel := context.WithTimeout(ctx, d.timeout)
	defer cancel()

	results, err := d.adapter.Scan(ctx)
	if err != nil {
		return nil, fmt.Errorf("failed to start scan: %w", err)
	}

	seen := make(map[string]bool)
	var devices []Device
	for dev := range results {
		if seen[dev.Address] {
			continue
		}
		seen[dev.Address] = true
		devices = append(devices, dev)
	}
	return devices, nil
}

// Find returns the first device named name. The paired list is checked
// first; otherwise a scan runs until a match or the scan timeout.
func (d *Discovery) Find(ctx context.Context, name string) (Device, error) {
	paired, err := d.adapter.Paired(ctx)
	if err != nil {
		d.log.Debug("paired device listing failed, falling back to scan", zap.Error(err))
	}
	for _, dev := range paired {
		if dev.Name == name {
			d.log.Debug("found paired device", zap.String("device", dev.String()))
			return dev, nil
		}
	}

	scanCtx, cancel := context.WithTimeout(ctx, d.timeout)
	defer cancel()

	d.log.Info("scanning for printer", zap.String("name", name), zap.Duration("timeout", d.timeout))
	results, err := d.adapter.Scan(scanCtx)
	if err != nil {
		return Device{}, fmt.Errorf("%w: scan failed: %v", ErrDiscoveryEmpty, err)
	}

	for {
		select {
		case dev, ok := <-results:
			if !ok {
				if err := ctx.Err(); err != nil {
					return Device{}, err
				}
				return Device{}, fmt.Errorf("%w: %q", ErrDiscoveryEmpty, name)
			}
			if dev.Name == name {
				d.log.Info("found device by scan", zap.String("device", dev.String()))
				return dev, nil
			}
		case <-scanCtx.Done():
			if err := ctx.Err(); err != nil {
				return Device{}, err
			}
			return Device{}, fmt.Errorf("%w: %q not seen within %s", ErrDiscoveryEmpty, name, d.timeout)
		}
	}
}
