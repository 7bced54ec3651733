// Package backend builds the printer stack selected by configuration
package backend

import (
	"fmt"
	"io"

	"github.com/google/uuid"
	"go.uber.org/zap"

	"receipt-print/internal/config"
	"receipt-print/internal/printer"
	"receipt-print/internal/printer/serialport"
	"receipt-print/internal/printer/tinyble"
)

type nopCloser struct{}

func (nopCloser) Close() error { return nil }

// NewAdapter returns the platform adapter named by printer.backend. The
// closer releases the radio it holds, if any; call it after disconnecting.
func NewAdapter(cfg *config.Config, log *zap.Logger) (printer.Adapter, io.Closer, error) {
	var (
		adapter printer.Adapter
		err     error
	)
	switch cfg.Printer.Backend {
	case config.BackendTinyBLE:
		adapter = tinyble.New(log)
	case config.BackendGoBLE:
		adapter, err = newGoBLE(cfg.Printer.HCIDevice, log)
	case config.BackendSerial:
		adapter = serialport.New(
			cfg.Printer.SerialBaudRate,
			uuid.MustParse(cfg.Printer.ServiceUUID),
			uuid.MustParse(cfg.Printer.CharacteristicUUID),
			log,
		)
	default:
		err = fmt.Errorf("unknown backend %q", cfg.Printer.Backend)
	}
	if err != nil {
		return nil, nil, err
	}
	if c, ok := adapter.(io.Closer); ok {
		return adapter, c, nil
	}
	return adapter, nopCloser{}, nil
}

// NewService wires adapter, manager and facade. onState may be nil. The
// closer is the adapter's, see NewAdapter.
func NewService(cfg *config.Config, log *zap.Logger, notify printer.Notifier, onState func(old, new printer.State)) (*printer.Service, io.Closer, error) {
	adapter, closer, err := NewAdapter(cfg, log)
	if err != nil {
		return nil, nil, err
	}
	m := printer.NewManager(adapter, cfg.ManagerConfig(),
		printer.WithLogger(log.Named("printer")),
		printer.WithStateCallback(onState),
	)
	log.Debug("printer backend ready", zap.String("backend", cfg.Printer.Backend))
	return printer.NewService(m, notify), closer, nil
}
