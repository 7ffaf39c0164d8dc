// Package telemetry holds TelemetrySink implementations and helpers shared by
// the storage-backed sinks.
package telemetry

import (
	"context"
	"encoding/json"
	"errors"
	"log/slog"
	"sync"
	"sync/atomic"
	"time"

	"github.com/krlsedu/aicore"
)

var (
	// ErrQueueFull is returned by Async.Record when the event was dropped.
	ErrQueueFull = errors.New("aicore/telemetry: queue full")

	// ErrClosed is returned by Async.Record after Close.
	ErrClosed = errors.New("aicore/telemetry: sink closed")
)

const (
	defaultQueueSize    = 256
	defaultWriteTimeout = 5 * time.Second
)

// Async decouples callers from a slow sink. Events are queued on a bounded
// channel and written by a single worker; when the queue is full the event
// is dropped rather than blocking the request path.
type Async struct {
	sink    aicore.TelemetrySink
	logger  *slog.Logger
	timeout time.Duration

	mu     sync.RWMutex
	closed bool
	queue  chan aicore.TelemetryEvent
	done   chan struct{}

	dropped atomic.Int64
	failed  atomic.Int64
}

var _ aicore.TelemetrySink = (*Async)(nil)

// AsyncOption configures Async.
type AsyncOption func(*Async)

// WithQueueSize sets the queue capacity (default 256).
func WithQueueSize(n int) AsyncOption {
	return func(a *Async) {
		if n > 0 {
			a.queue = make(chan aicore.TelemetryEvent, n)
		}
	}
}

// WithLogger sets the logger used for write failures.
func WithLogger(l *slog.Logger) AsyncOption {
	return func(a *Async) { a.logger = l }
}

// WithWriteTimeout bounds each write to the underlying sink.
func WithWriteTimeout(d time.Duration) AsyncOption {
	return func(a *Async) { a.timeout = d }
}

// NewAsync starts the worker. Call Close to drain and stop it.
func NewAsync(sink aicore.TelemetrySink, opts ...AsyncOption) *Async {
	a := &Async{
		sink:    sink,
		logger:  slog.Default(),
		timeout: defaultWriteTimeout,
		queue:   make(chan aicore.TelemetryEvent, defaultQueueSize),
		done:    make(chan struct{}),
	}
	for _, opt := range opts {
		opt(a)
	}
	go a.run()
	return a
}

// Record enqueues the event without blocking.
func (a *Async) Record(_ context.Context, event aicore.TelemetryEvent) error {
	a.mu.RLock()
	defer a.mu.RUnlock()

	if a.closed {
		return ErrClosed
	}
	select {
	case a.queue <- event:
		return nil
	default:
		a.dropped.Add(1)
		return ErrQueueFull
	}
}

// Close stops accepting events and waits until the queue is drained or ctx
// is done.
func (a *Async) Close(ctx context.Context) error {
	a.mu.Lock()
	if !a.closed {
		a.closed = true
		close(a.queue)
	}
	a.mu.Unlock()

	select {
	case <-a.done:
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}

// Dropped returns the number of events discarded because the queue was full.
func (a *Async) Dropped() int64 { return a.dropped.Load() }

// Failed returns the number of events the underlying sink rejected.
func (a *Async) Failed() int64 { return a.failed.Load() }

func (a *Async) run() {
	defer close(a.done)
	for event := range a.queue {
		ctx, cancel := context.WithTimeout(context.Background(), a.timeout)
		err := a.sink.Record(ctx, event)
		cancel()
		if err != nil {
			a.failed.Add(1)
			a.logger.Warn("telemetry write failed",
				"correlation_id", event.CorrelationID,
				"attempt", event.Attempt,
				"error", err,
			)
		}
	}
}

// Payload encodes the prompt the way the analytical store keeps it: a JSON
// string value.
func Payload(event aicore.TelemetryEvent) string {
	b, _ := json.Marshal(event.Prompt)
	return string(b)
}
