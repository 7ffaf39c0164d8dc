package aicore

import (
	"context"
	"time"
)

// Outcome classifies a transport attempt.
type Outcome string

const (
	OutcomeSuccess       Outcome = "success"
	OutcomeQuotaExceeded Outcome = "quota_exceeded"
	OutcomeAuthFailed    Outcome = "auth_failed"
	OutcomeFailure       Outcome = "failure"
)

// TelemetrySink persists usage events. Recording is best-effort: an error
// is logged by the caller and never fails the request.
type TelemetrySink interface {
	Record(ctx context.Context, event TelemetryEvent) error
}

// TelemetryEvent is one attempt of one logical call. All attempts of a call
// share the CorrelationID.
type TelemetryEvent struct {
	CorrelationID string
	Attempt       int
	Tier          Tier
	CredentialID  string
	Model         string
	Task          string
	Prompt        string
	InputText     string
	Result        string
	Usage         TokenUsage
	Timestamp     time.Time
	Outcome       Outcome
	Error         string
}

// ModelLabel returns the model name suffixed with the tier, the label the
// analytical store groups by.
func (e TelemetryEvent) ModelLabel() string {
	return e.Model + "-" + e.Tier.String()
}

type noopSink struct{}

func (noopSink) Record(context.Context, TelemetryEvent) error { return nil }
