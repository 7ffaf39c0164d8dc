// Package sqlite persists telemetry events to a local SQLite file.
package sqlite

import (
	"context"
	"database/sql"
	"fmt"
	"os"
	"path/filepath"
	"time"

	"github.com/krlsedu/aicore"
	"github.com/krlsedu/aicore/telemetry"

	// Import modernc.org/sqlite as a blank import to register the driver
	_ "modernc.org/sqlite"
)

// Sink writes one row per attempt into the ai_events table.
type Sink struct {
	db *sql.DB
}

var _ aicore.TelemetrySink = (*Sink)(nil)

// Open creates the database file if needed and ensures the schema.
func Open(ctx context.Context, path string) (*Sink, error) {
	dir := filepath.Dir(path)
	if dir != "" && dir != "." {
		if err := os.MkdirAll(dir, 0o750); err != nil {
			return nil, fmt.Errorf("aicore/sqlite: create directory: %w", err)
		}
	}

	db, err := sql.Open("sqlite", path)
	if err != nil {
		return nil, fmt.Errorf("aicore/sqlite: open: %w", err)
	}
	if err := db.PingContext(ctx); err != nil {
		_ = db.Close()
		return nil, fmt.Errorf("aicore/sqlite: connect: %w", err)
	}

	s := &Sink{db: db}
	if err := s.configure(ctx); err != nil {
		_ = db.Close()
		return nil, err
	}
	if err := s.ensureSchema(ctx); err != nil {
		_ = db.Close()
		return nil, err
	}
	return s, nil
}

func (s *Sink) configure(ctx context.Context) error {
	pragmas := []string{
		"PRAGMA journal_mode=WAL",
		"PRAGMA synchronous=NORMAL",
		"PRAGMA busy_timeout=5000",
	}
	for _, pragma := range pragmas {
		if _, err := s.db.ExecContext(ctx, pragma); err != nil {
			return fmt.Errorf("aicore/sqlite: %s: %w", pragma, err)
		}
	}
	return nil
}

func (s *Sink) ensureSchema(ctx context.Context) error {
	_, err := s.db.ExecContext(ctx, `
	CREATE TABLE IF NOT EXISTS ai_events (
		id INTEGER PRIMARY KEY AUTOINCREMENT,
		timestamp DATETIME NOT NULL,
		event_id TEXT NOT NULL,
		attempt INTEGER NOT NULL DEFAULT 1,
		tier TEXT NOT NULL,
		credential_id TEXT NOT NULL,
		tokens_input INTEGER DEFAULT 0,
		tokens_image INTEGER DEFAULT 0,
		tokens_output INTEGER DEFAULT 0,
		payload TEXT,
		result TEXT,
		model TEXT NOT NULL,
		task TEXT,
		outcome TEXT NOT NULL,
		error TEXT
	);
	CREATE INDEX IF NOT EXISTS idx_ai_events_event_id ON ai_events(event_id);
	CREATE INDEX IF NOT EXISTS idx_ai_events_timestamp ON ai_events(timestamp);
	`)
	if err != nil {
		return fmt.Errorf("aicore/sqlite: ensure schema: %w", err)
	}
	return nil
}

// Record inserts the event.
func (s *Sink) Record(ctx context.Context, e aicore.TelemetryEvent) error {
	_, err := s.db.ExecContext(ctx, `
		INSERT INTO ai_events (
			timestamp, event_id, attempt, tier, credential_id,
			tokens_input, tokens_image, tokens_output,
			payload, result, model, task, outcome, error
		) VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)`,
		e.Timestamp.UTC().Format(time.RFC3339Nano), e.CorrelationID, e.Attempt, e.Tier.String(), e.CredentialID,
		e.Usage.InputTokens, e.Usage.ImageTokens, e.Usage.OutputTokens,
		telemetry.Payload(e), e.Result, e.ModelLabel(), e.Task, string(e.Outcome), e.Error,
	)
	if err != nil {
		return fmt.Errorf("aicore/sqlite: insert event: %w", err)
	}
	return nil
}

// Row is a stored event as read back from the table.
type Row struct {
	Timestamp    time.Time
	EventID      string
	Attempt      int
	Tier         string
	CredentialID string
	Usage        aicore.TokenUsage
	Payload      string
	Result       string
	Model        string
	Task         string
	Outcome      string
	Error        string
}

// Events returns every stored attempt of one call, in attempt order.
func (s *Sink) Events(ctx context.Context, eventID string) ([]Row, error) {
	rows, err := s.db.QueryContext(ctx, `
		SELECT timestamp, event_id, attempt, tier, credential_id,
			tokens_input, tokens_image, tokens_output,
			COALESCE(payload, ''), COALESCE(result, ''), model, COALESCE(task, ''), outcome, COALESCE(error, '')
		FROM ai_events WHERE event_id = ? ORDER BY attempt, id`, eventID)
	if err != nil {
		return nil, fmt.Errorf("aicore/sqlite: query events: %w", err)
	}
	defer rows.Close()

	var out []Row
	for rows.Next() {
		var r Row
		var ts string
		if err := rows.Scan(&ts, &r.EventID, &r.Attempt, &r.Tier, &r.CredentialID,
			&r.Usage.InputTokens, &r.Usage.ImageTokens, &r.Usage.OutputTokens,
			&r.Payload, &r.Result, &r.Model, &r.Task, &r.Outcome, &r.Error); err != nil {
			return nil, fmt.Errorf("aicore/sqlite: scan event: %w", err)
		}
		r.Timestamp, _ = time.Parse(time.RFC3339Nano, ts)
		out = append(out, r)
	}
	return out, rows.Err()
}

// Close closes the database.
func (s *Sink) Close() error {
	return s.db.Close()
}
