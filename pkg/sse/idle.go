package sse

import (
	"context"
	"errors"
	"io"
	"sync/atomic"
	"time"
)

// ErrIdleTimeout reports a stream that produced no bytes for too long.
var ErrIdleTimeout = errors.New("stream idle timeout")

// IdleReader cancels its stream when no read completes within the timeout.
type IdleReader struct {
	r       io.Reader
	timeout time.Duration
	timer   *time.Timer
	fired   atomic.Bool
}

// WithIdleTimeout wraps r; cancel should abort whatever blocks r.Read, usually
// the request context. A zero timeout disables the watchdog.
func WithIdleTimeout(r io.Reader, timeout time.Duration, cancel context.CancelFunc) *IdleReader {
	ir := &IdleReader{r: r, timeout: timeout}
	if timeout > 0 {
		ir.timer = time.AfterFunc(timeout, func() {
			ir.fired.Store(true)
			cancel()
		})
	}
	return ir
}

func (ir *IdleReader) Read(p []byte) (int, error) {
	n, err := ir.r.Read(p)
	if ir.fired.Load() {
		return n, ErrIdleTimeout
	}
	if n > 0 && ir.timer != nil {
		ir.timer.Reset(ir.timeout)
	}
	return n, err
}

// Stop disarms the watchdog.
func (ir *IdleReader) Stop() {
	if ir.timer != nil {
		ir.timer.Stop()
	}
}
