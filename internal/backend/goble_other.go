//go:build !linux

package backend

import (
	"fmt"

	"go.uber.org/zap"

	"receipt-print/internal/config"
	"receipt-print/internal/printer"
)

func newGoBLE(hci int, log *zap.Logger) (printer.Adapter, error) {
	return nil, fmt.Errorf("%w: the %s backend needs Linux HCI access", printer.ErrNotSupported, config.BackendGoBLE)
}
