package printer

import (
	"context"
	"fmt"
	"time"

	"go.uber.org/zap"

	"receipt-print/internal/escpos"
)

// Job is one block of receipt text. A header (IsBody false) and the body
// that follows it print as one continuous receipt; only the body is fed and cut.
type Job struct {
	Lines       []string
	FontSize    int
	CenterAlign bool
	IsBody      bool
}

// Session prints jobs over the Manager's Ready connection
type Session struct {
	m *Manager
}

func NewSession(m *Manager) *Session {
	return &Session{m: m}
}

// Print sends job to the printer. The connection is left open on failure;
// output already sent is not recalled.
func (s *Session) Print(ctx context.Context, job Job) error {
	char, params, err := s.m.ready()
	if err != nil {
		return err
	}
	cfg := s.m.cfg
	log := s.m.log

	write := func(ctx context.Context, p []byte) error {
		return char.Write(ctx, p, params.WriteWithoutResponse)
	}
	send := func(cmd escpos.Command, settle time.Duration) error {
		if err := write(ctx, cmd); err != nil {
			return fmt.Errorf("%w: %v", ErrWriteFailed, err)
		}
		return sleep(ctx, settle)
	}

	if err := send(escpos.Initialize(), cfg.InitDelay); err != nil {
		return err
	}
	align := escpos.LeftAlign()
	if job.CenterAlign {
		align = escpos.CenterAlign()
	}
	if err := send(align, cfg.CommandDelay); err != nil {
		return err
	}
	if err := send(escpos.SetFontSizeForPointSize(job.FontSize), cfg.CommandDelay); err != nil {
		return err
	}

	total := 0
	for i, line := range job.Lines {
		if line == "" {
			continue
		}
		data := escpos.TextLine(line)
		err := WriteChunked(ctx, write, data, params.ChunkSize, WithThrottle(cfg.ThrottleEvery, cfg.ThrottleDelay))
		if err != nil {
			log.Warn("line write failed", zap.Int("line", i+1), zap.Error(err))
			return err
		}
		total += len(data)
		if err := sleep(ctx, cfg.LineDelay); err != nil {
			return err
		}
	}

	if job.IsBody {
		if err := sleep(ctx, cfg.CutDelay); err != nil {
			return err
		}
		if err := send(escpos.FeedLines(3), cfg.CutDelay); err != nil {
			return err
		}
		if err := send(escpos.FullCut(), cfg.CutDelay); err != nil {
			return err
		}
	}

	log.Info("print job sent",
		zap.Int("lines", len(job.Lines)),
		zap.Int("text_bytes", total),
		zap.Bool("body", job.IsBody))
	return nil
}
