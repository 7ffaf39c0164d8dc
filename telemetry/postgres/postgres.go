// Package postgres persists telemetry events to PostgreSQL.
package postgres

import (
	"context"
	"fmt"

	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/krlsedu/aicore"
	"github.com/krlsedu/aicore/telemetry"
)

// Sink writes one row per attempt.
type Sink struct {
	pool  *pgxpool.Pool
	table string
}

var _ aicore.TelemetrySink = (*Sink)(nil)

// Option configures Sink.
type Option func(*Sink)

// WithTable sets the table name (default "ai_events").
func WithTable(name string) Option {
	return func(s *Sink) { s.table = name }
}

// New creates a PostgreSQL-backed sink. Call EnsureSchema once before use.
func New(pool *pgxpool.Pool, opts ...Option) *Sink {
	s := &Sink{
		pool:  pool,
		table: "ai_events",
	}
	for _, opt := range opts {
		opt(s)
	}
	return s
}

// EnsureSchema creates the events table if it doesn't exist.
func (s *Sink) EnsureSchema(ctx context.Context) error {
	q := fmt.Sprintf(`
		CREATE TABLE IF NOT EXISTS %[1]s (
			id BIGSERIAL PRIMARY KEY,
			timestamp TIMESTAMPTZ NOT NULL,
			event_id TEXT NOT NULL,
			attempt INT NOT NULL DEFAULT 1,
			tier TEXT NOT NULL,
			credential_id TEXT NOT NULL,
			tokens_input BIGINT NOT NULL DEFAULT 0,
			tokens_image BIGINT NOT NULL DEFAULT 0,
			tokens_output BIGINT NOT NULL DEFAULT 0,
			payload TEXT,
			result TEXT,
			model TEXT NOT NULL,
			task TEXT,
			outcome TEXT NOT NULL,
			error TEXT
		);
		CREATE INDEX IF NOT EXISTS %[1]s_event_id_idx ON %[1]s (event_id);
	`, s.table)
	if _, err := s.pool.Exec(ctx, q); err != nil {
		return fmt.Errorf("aicore/postgres: ensure schema: %w", err)
	}
	return nil
}

// Record inserts the event.
func (s *Sink) Record(ctx context.Context, e aicore.TelemetryEvent) error {
	q := fmt.Sprintf(`
		INSERT INTO %s (
			timestamp, event_id, attempt, tier, credential_id,
			tokens_input, tokens_image, tokens_output,
			payload, result, model, task, outcome, error
		) VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11, $12, $13, $14)`, s.table)
	_, err := s.pool.Exec(ctx, q,
		e.Timestamp, e.CorrelationID, e.Attempt, e.Tier.String(), e.CredentialID,
		e.Usage.InputTokens, e.Usage.ImageTokens, e.Usage.OutputTokens,
		telemetry.Payload(e), e.Result, e.ModelLabel(), e.Task, string(e.Outcome), e.Error,
	)
	if err != nil {
		return fmt.Errorf("aicore/postgres: insert event: %w", err)
	}
	return nil
}

// Attempts returns the stored outcomes of one call, in attempt order.
func (s *Sink) Attempts(ctx context.Context, eventID string) ([]aicore.Outcome, error) {
	q := fmt.Sprintf(`SELECT outcome FROM %s WHERE event_id = $1 ORDER BY attempt, id`, s.table)
	rows, err := s.pool.Query(ctx, q, eventID)
	if err != nil {
		return nil, fmt.Errorf("aicore/postgres: query attempts: %w", err)
	}
	defer rows.Close()

	var out []aicore.Outcome
	for rows.Next() {
		var o string
		if err := rows.Scan(&o); err != nil {
			return nil, fmt.Errorf("aicore/postgres: scan attempt: %w", err)
		}
		out = append(out, aicore.Outcome(o))
	}
	return out, rows.Err()
}
