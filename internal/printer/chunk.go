package printer

import (
	"context"
	"fmt"
	"time"
)

// WriteFunc sends one chunk and returns once the transport accepted it
type WriteFunc func(ctx context.Context, p []byte) error

// Split cuts buf into consecutive slices of at most size bytes. The slices
// share buf's backing array. A non-positive size uses DefaultChunkSize.
func Split(buf []byte, size int) [][]byte {
	if size <= 0 {
		size = DefaultChunkSize
	}
	if len(buf) == 0 {
		return nil
	}
	chunks := make([][]byte, 0, (len(buf)+size-1)/size)
	for off := 0; off < len(buf); off += size {
		end := off + size
		if end > len(buf) {
			end = len(buf)
		}
		chunks = append(chunks, buf[off:end:end])
	}
	return chunks
}

type chunkOptions struct {
	every int
	delay time.Duration
}

// ChunkOption tunes WriteChunked
type ChunkOption func(*chunkOptions)

// WithThrottle pauses for delay after every n-th chunk when more chunks remain
func WithThrottle(n int, delay time.Duration) ChunkOption {
	return func(o *chunkOptions) {
		if n > 0 {
			o.every = n
		}
		if delay >= 0 {
			o.delay = delay
		}
	}
}

// WriteChunked writes buf through write in chunks of at most chunkSize bytes,
// one at a time and in order. The first failed chunk aborts the transfer;
// chunks already sent stay sent.
func WriteChunked(ctx context.Context, write WriteFunc, buf []byte, chunkSize int, opts ...ChunkOption) error {
	o := chunkOptions{every: 5, delay: 10 * time.Millisecond}
	for _, opt := range opts {
		opt(&o)
	}

	chunks := Split(buf, chunkSize)
	for i, c := range chunks {
		if err := ctx.Err(); err != nil {
			return err
		}
		if err := write(ctx, c); err != nil {
			return fmt.Errorf("%w: chunk %d/%d: %v", ErrWriteFailed, i+1, len(chunks), err)
		}
		written := i + 1
		if written < len(chunks) && written%o.every == 0 {
			if err := sleep(ctx, o.delay); err != nil {
				return err
			}
		}
	}
	return nil
}
