package printer

import (
	"context"
	"fmt"

	"go.uber.org/zap"
)

// negotiate picks the write mode and chunk size for a resolved
// characteristic. It never fails: any error keeps the defaults.
func (m *Manager) negotiate(ctx context.Context, link Link, char Characteristic) (p Params) {
	p = Params{ChunkSize: m.cfg.DefaultChunkSize}
	defer func() {
		if r := recover(); r != nil {
			m.log.Debug("parameter negotiation panicked, using defaults", zap.Any("panic", r))
			p = Params{ChunkSize: m.cfg.DefaultChunkSize}
		}
	}()

	p.WriteWithoutResponse = char.Properties().Has(PropWriteWithoutResponse)

	mtu, err := link.RequestMTU(ctx, m.cfg.MTURequest)
	if err != nil {
		m.log.Debug("MTU request failed, keeping default chunk size",
			zap.Int("chunk_size", p.ChunkSize), zap.Error(err))
		return p
	}
	p.ChunkSize = ChunkSizeForMTU(mtu, m.cfg.MTUOverhead, m.cfg.MaxChunkSize)
	m.log.Debug("negotiated MTU", zap.Int("mtu", mtu), zap.Int("chunk_size", p.ChunkSize))
	return p
}

// ChunkSizeForMTU subtracts the protocol overhead from mtu and clamps the
// result to [MinChunkSize, max].
func ChunkSizeForMTU(mtu, overhead, max int) int {
	n := mtu - overhead
	if n < MinChunkSize {
		n = MinChunkSize
	}
	if max > 0 && n > max {
		n = max
	}
	return n
}

func (p Params) String() string {
	mode := "with response"
	if p.WriteWithoutResponse {
		mode = "without response"
	}
	return fmt.Sprintf("chunk=%d, write %s", p.ChunkSize, mode)
}
