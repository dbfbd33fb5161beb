// Package coalesce debounces and serialises persistence writes.
//
// A Writer turns a burst of Trigger calls into a single call of its write
// function. At most one write runs at a time; a trigger that arrives while a
// write is in flight queues exactly one follow-up write, however many
// triggers arrive.
//
//	idle --Trigger--> (delay) --> writing --done--> idle
//	                               |  ^
//	                       Trigger |  | done, follow-up queued
//	                               v  |
//	                          writing, again
package coalesce

import (
	"context"
	"sync"
	"time"

	"github.com/nerrad567/fieldgate/internal/metrics"
)

// WriteFunc persists the current state. It is never called concurrently
// with itself for the same Writer.
type WriteFunc func(ctx context.Context) error

// Logger is the logging surface the writer needs.
type Logger interface {
	Debug(msg string, args ...any)
	Error(msg string, args ...any)
}

type noopLogger struct{}

func (noopLogger) Debug(string, ...any) {}
func (noopLogger) Error(string, ...any) {}

// Writer coalesces write requests.
type Writer struct {
	name   string
	delay  time.Duration
	fn     WriteFunc
	logger Logger

	mu      sync.Mutex
	timer   *time.Timer
	gen     uint64
	writing bool
	again   bool
	closed  bool
	idle    chan struct{}
}

// New creates a Writer. With delay <= 0 a trigger starts a write
// immediately (or queues the follow-up); otherwise each trigger re-arms a
// timer and the write starts once triggers stop for delay.
func New(name string, delay time.Duration, fn WriteFunc, logger Logger) *Writer {
	if logger == nil {
		logger = noopLogger{}
	}
	return &Writer{
		name:   name,
		delay:  delay,
		fn:     fn,
		logger: logger,
	}
}

// Trigger requests a write. It never blocks on the write itself.
func (w *Writer) Trigger() {
	w.mu.Lock()
	defer w.mu.Unlock()

	if w.closed {
		return
	}
	if w.delay <= 0 {
		w.requestLocked()
		return
	}

	if w.timer != nil {
		w.timer.Stop()
	}
	w.gen++
	gen := w.gen
	w.timer = time.AfterFunc(w.delay, func() { w.fire(gen) })
}

// Flush starts any debounced write now and waits until the writer is idle.
func (w *Writer) Flush(ctx context.Context) error {
	w.mu.Lock()
	idle := w.drainLocked()
	w.mu.Unlock()
	return wait(ctx, idle)
}

// Close flushes pending work and rejects further triggers.
func (w *Writer) Close(ctx context.Context) error {
	w.mu.Lock()
	w.closed = true
	idle := w.drainLocked()
	w.mu.Unlock()
	return wait(ctx, idle)
}

// Pending reports whether a write is scheduled or running.
func (w *Writer) Pending() bool {
	w.mu.Lock()
	defer w.mu.Unlock()
	return w.timer != nil || w.writing
}

func (w *Writer) fire(gen uint64) {
	w.mu.Lock()
	defer w.mu.Unlock()

	// A newer trigger re-armed the timer after this one fired.
	if gen != w.gen || w.timer == nil {
		return
	}
	w.timer = nil
	w.requestLocked()
}

// drainLocked promotes a pending timer to a write and returns the channel
// closed on idle, or nil if nothing is running.
func (w *Writer) drainLocked() <-chan struct{} {
	if w.timer != nil {
		w.timer.Stop()
		w.timer = nil
		w.gen++
		w.requestLocked()
	}
	if !w.writing {
		return nil
	}
	return w.idle
}

func (w *Writer) requestLocked() {
	if w.writing {
		w.again = true
		return
	}
	w.writing = true
	w.idle = make(chan struct{})
	go w.run()
}

func (w *Writer) run() {
	for {
		w.write()

		w.mu.Lock()
		if w.again {
			w.again = false
			w.mu.Unlock()
			continue
		}
		w.writing = false
		close(w.idle)
		w.mu.Unlock()
		return
	}
}

func (w *Writer) write() {
	start := time.Now()
	if err := w.fn(context.Background()); err != nil {
		metrics.WritesTotal.WithLabelValues(w.name, metrics.ResultError).Inc()
		w.logger.Error("write failed", "writer", w.name, "error", err)
		return
	}
	metrics.WritesTotal.WithLabelValues(w.name, metrics.ResultOK).Inc()
	w.logger.Debug("write complete", "writer", w.name, "duration", time.Since(start))
}

func wait(ctx context.Context, idle <-chan struct{}) error {
	if idle == nil {
		return nil
	}
	select {
	case <-idle:
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}
