package meter

import (
	"log/slog"

	"github.com/krlsedu/aicore"
)

// LogMeter logs rotation events using slog.
type LogMeter struct {
	Logger *slog.Logger
}

var _ aicore.Meter = (*LogMeter)(nil)

// NewLogMeter creates a LogMeter with the given logger.
// If logger is nil, slog.Default() is used.
func NewLogMeter(logger *slog.Logger) *LogMeter {
	if logger == nil {
		logger = slog.Default()
	}
	return &LogMeter{Logger: logger}
}

func (m *LogMeter) OnAcquire(e aicore.AcquireEvent) {
	if e.Exhausted {
		m.Logger.Warn("acquire_exhausted",
			"correlation_id", e.CorrelationID,
			"scanned", e.Scanned,
		)
		return
	}
	m.Logger.Info("acquire",
		"correlation_id", e.CorrelationID,
		"credential", e.CredentialID,
		"tier", e.Tier.String(),
		"model", e.Model,
		"scanned", e.Scanned,
	)
}

func (m *LogMeter) OnResult(e aicore.ResultEvent) {
	if e.Outcome == aicore.OutcomeSuccess {
		m.Logger.Info("result",
			"correlation_id", e.CorrelationID,
			"credential", e.CredentialID,
			"tier", e.Tier.String(),
			"model", e.Model,
			"attempt", e.Attempt,
			"duration_ms", e.Duration.Milliseconds(),
			"input_tokens", e.Usage.InputTokens,
			"output_tokens", e.Usage.OutputTokens,
		)
	} else {
		m.Logger.Warn("result_error",
			"correlation_id", e.CorrelationID,
			"credential", e.CredentialID,
			"tier", e.Tier.String(),
			"model", e.Model,
			"attempt", e.Attempt,
			"outcome", string(e.Outcome),
			"duration_ms", e.Duration.Milliseconds(),
			"error", e.Error,
		)
	}
}

func (m *LogMeter) OnSuspend(e aicore.SuspendEvent) {
	m.Logger.Warn("suspend",
		"correlation_id", e.CorrelationID,
		"credential", e.CredentialID,
		"tier", e.Tier.String(),
		"model", e.Model,
		"window", e.Window.String(),
		"until", e.Until,
	)
}
