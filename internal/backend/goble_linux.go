//go:build linux

package backend

import (
	"go.uber.org/zap"

	"receipt-print/internal/printer"
	"receipt-print/internal/printer/goble"
)

func newGoBLE(hci int, log *zap.Logger) (printer.Adapter, error) {
	return goble.New(hci, log), nil
}
