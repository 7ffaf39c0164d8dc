package telemetry_test

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/krlsedu/aicore"
	"github.com/krlsedu/aicore/telemetry"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type recordingSink struct {
	mu     sync.Mutex
	events []aicore.TelemetryEvent
	block  chan struct{}
	err    error
}

func (s *recordingSink) Record(_ context.Context, e aicore.TelemetryEvent) error {
	if s.block != nil {
		<-s.block
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	s.events = append(s.events, e)
	return s.err
}

func (s *recordingSink) len() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return len(s.events)
}

func TestAsync_DrainsOnClose(t *testing.T) {
	sink := &recordingSink{}
	a := telemetry.NewAsync(sink)

	for i := 1; i <= 10; i++ {
		require.NoError(t, a.Record(context.Background(), aicore.TelemetryEvent{Attempt: i}))
	}

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	require.NoError(t, a.Close(ctx))

	assert.Equal(t, 10, sink.len())
	assert.Equal(t, 1, sink.events[0].Attempt)
	assert.Equal(t, 10, sink.events[9].Attempt)

	assert.ErrorIs(t, a.Record(context.Background(), aicore.TelemetryEvent{}), telemetry.ErrClosed)
	require.NoError(t, a.Close(ctx))
}

func TestAsync_DropsWhenFull(t *testing.T) {
	sink := &recordingSink{block: make(chan struct{})}
	a := telemetry.NewAsync(sink, telemetry.WithQueueSize(1))

	// The worker takes at most one event and blocks; the queue holds one more.
	var full int
	for i := 0; i < 5; i++ {
		if err := a.Record(context.Background(), aicore.TelemetryEvent{Attempt: i}); err != nil {
			assert.ErrorIs(t, err, telemetry.ErrQueueFull)
			full++
		}
	}
	assert.GreaterOrEqual(t, full, 3)
	assert.Equal(t, int64(full), a.Dropped())

	close(sink.block)
	require.NoError(t, a.Close(context.Background()))
	assert.Equal(t, 5-full, sink.len())
}

func TestAsync_CountsFailures(t *testing.T) {
	sink := &recordingSink{err: errors.New("disk full")}
	a := telemetry.NewAsync(sink)

	require.NoError(t, a.Record(context.Background(), aicore.TelemetryEvent{CorrelationID: "c"}))
	require.NoError(t, a.Close(context.Background()))

	assert.Equal(t, int64(1), a.Failed())
}

func TestPayload(t *testing.T) {
	assert.Equal(t, `"line\n\"q\""`, telemetry.Payload(aicore.TelemetryEvent{Prompt: "line\n\"q\""}))
}
