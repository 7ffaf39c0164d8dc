// Package redis publishes telemetry events to a Redis stream so that any
// number of consumers can load them into an analytical store.
package redis

import (
	"context"
	"fmt"
	"strconv"
	"time"

	goredis "github.com/redis/go-redis/v9"

	"github.com/krlsedu/aicore"
	"github.com/krlsedu/aicore/telemetry"
)

// Sink appends one stream entry per attempt.
type Sink struct {
	client goredis.Cmdable
	stream string
	maxLen int64
}

var _ aicore.TelemetrySink = (*Sink)(nil)

// Option configures Sink.
type Option func(*Sink)

// WithStream sets the stream key (default "aicore:events").
func WithStream(key string) Option {
	return func(s *Sink) { s.stream = key }
}

// WithMaxLen caps the stream at approximately n entries (default 100000).
func WithMaxLen(n int64) Option {
	return func(s *Sink) { s.maxLen = n }
}

// New creates a Redis stream sink.
// The client must be a connected *goredis.Client or *goredis.ClusterClient.
func New(client goredis.Cmdable, opts ...Option) *Sink {
	s := &Sink{
		client: client,
		stream: "aicore:events",
		maxLen: 100000,
	}
	for _, opt := range opts {
		opt(s)
	}
	return s
}

// Record appends the event to the stream.
func (s *Sink) Record(ctx context.Context, e aicore.TelemetryEvent) error {
	err := s.client.XAdd(ctx, &goredis.XAddArgs{
		Stream: s.stream,
		MaxLen: s.maxLen,
		Approx: true,
		Values: map[string]any{
			"timestamp":     e.Timestamp.UTC().Format(time.RFC3339Nano),
			"event_id":      e.CorrelationID,
			"attempt":       strconv.Itoa(e.Attempt),
			"tier":          e.Tier.String(),
			"credential_id": e.CredentialID,
			"tokens_input":  strconv.FormatInt(e.Usage.InputTokens, 10),
			"tokens_image":  strconv.FormatInt(e.Usage.ImageTokens, 10),
			"tokens_output": strconv.FormatInt(e.Usage.OutputTokens, 10),
			"payload":       telemetry.Payload(e),
			"result":        e.Result,
			"model":         e.ModelLabel(),
			"task":          e.Task,
			"outcome":       string(e.Outcome),
			"error":         e.Error,
		},
	}).Err()
	if err != nil {
		return fmt.Errorf("aicore/redis: xadd: %w", err)
	}
	return nil
}
