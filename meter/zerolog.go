package meter

import (
	"github.com/krlsedu/aicore"
	"github.com/rs/zerolog"
)

// ZerologMeter writes rotation events as zerolog events.
type ZerologMeter struct {
	logger zerolog.Logger
}

var _ aicore.Meter = (*ZerologMeter)(nil)

// NewZerologMeter creates a meter over the given logger.
func NewZerologMeter(logger zerolog.Logger) *ZerologMeter {
	return &ZerologMeter{logger: logger}
}

func (m *ZerologMeter) OnAcquire(e aicore.AcquireEvent) {
	if e.Exhausted {
		m.logger.Warn().
			Str("correlation_id", e.CorrelationID).
			Int("scanned", e.Scanned).
			Msg("acquire_exhausted")
		return
	}
	m.logger.Debug().
		Str("correlation_id", e.CorrelationID).
		Str("credential", e.CredentialID).
		Str("tier", e.Tier.String()).
		Str("model", e.Model).
		Int("scanned", e.Scanned).
		Msg("acquire")
}

func (m *ZerologMeter) OnResult(e aicore.ResultEvent) {
	event := m.logger.Info()
	if e.Outcome != aicore.OutcomeSuccess {
		event = m.logger.Warn().Err(e.Error)
	}
	event.
		Str("correlation_id", e.CorrelationID).
		Str("credential", e.CredentialID).
		Str("tier", e.Tier.String()).
		Str("model", e.Model).
		Int("attempt", e.Attempt).
		Str("outcome", string(e.Outcome)).
		Dur("duration", e.Duration).
		Int64("input_tokens", e.Usage.InputTokens).
		Int64("output_tokens", e.Usage.OutputTokens).
		Msg("result")
}

func (m *ZerologMeter) OnSuspend(e aicore.SuspendEvent) {
	m.logger.Warn().
		Str("correlation_id", e.CorrelationID).
		Str("credential", e.CredentialID).
		Str("tier", e.Tier.String()).
		Str("model", e.Model).
		Dur("window", e.Window).
		Time("until", e.Until).
		Msg("suspend")
}
