package aicore

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/google/uuid"
)

// Payload is the transport-facing part of a logical call.
type Payload struct {
	Prompt        string // text sent to the model
	TelemetryText string // prompt as recorded in telemetry; defaults to Prompt
	InputText     string
	ImageBase64   string
	MimeType      string
	Task          string
	Structured    bool
	CorrelationID string
}

// Execution is the result of a successful Execute.
type Execution struct {
	Text          string
	Usage         TokenUsage
	CorrelationID string
	Routing       RoutingInfo
}

// RetryDriver runs one logical call against the rotator, suspending pairs
// the provider rejects and retrying until success or the attempt budget is
// spent.
type RetryDriver struct {
	rotator   *Rotator
	ledger    *QuotaLedger
	transport Transport
	sink      TelemetrySink
	meter     Meter
	backoff   BackoffPolicy
	now       func() time.Time
	logger    *slog.Logger
}

// NewRetryDriver creates a driver with a fixed default backoff, no telemetry
// and no meter.
func NewRetryDriver(rotator *Rotator, transport Transport) *RetryDriver {
	return &RetryDriver{
		rotator:   rotator,
		ledger:    rotator.ledger,
		transport: transport,
		sink:      noopSink{},
		meter:     noopMeter{},
		backoff:   FixedBackoff(DefaultBackoffWindow),
		now:       time.Now,
		logger:    slog.Default(),
	}
}

// attemptState is the state of the per-call machine.
type attemptState int

const (
	stateAttempt attemptState = iota
	stateSuccess
	stateQuotaRejected
	stateAuthRejected
	stateOtherFailure
	stateExhausted
)

func classify(err error) attemptState {
	switch {
	case err == nil:
		return stateSuccess
	case errors.Is(err, ErrQuotaExceeded):
		return stateQuotaRejected
	case errors.Is(err, ErrAuthFailed):
		return stateAuthRejected
	default:
		return stateOtherFailure
	}
}

// Execute runs the call. maxAttempts <= 0 uses the rotator capacity plus two.
func (d *RetryDriver) Execute(ctx context.Context, p Payload, c Constraints, maxAttempts int) (Execution, error) {
	if maxAttempts <= 0 {
		maxAttempts = d.rotator.Capacity() + 2
	}

	correlationID := p.CorrelationID
	if correlationID == "" {
		correlationID = uuid.New().String()
	}

	var lastErr error
	attempt := 0
	state := stateAttempt

	for state == stateAttempt {
		if attempt >= maxAttempts {
			state = stateExhausted
			break
		}
		if err := ctx.Err(); err != nil {
			return Execution{}, err
		}
		attempt++

		lease, err := d.rotator.acquire(correlationID, c, d.now())
		if err != nil {
			if errors.Is(err, ErrConfiguration) || lastErr == nil {
				return Execution{}, err
			}
			lastErr = err
			state = stateExhausted
			break
		}

		start := time.Now()
		resp, err := d.transport.Send(ctx, TransportRequest{
			Credential:  lease.Credential,
			Model:       lease.Model.Name,
			Prompt:      p.Prompt,
			InputText:   p.InputText,
			ImageBase64: p.ImageBase64,
			MimeType:    p.MimeType,
			Structured:  p.Structured,
		})
		if err == nil && p.Structured && !json.Valid([]byte(resp.Text)) {
			err = fmt.Errorf("%w: model %s returned non-JSON text", ErrInvalidOutput, lease.Model.Name)
		}
		duration := time.Since(start)

		next := classify(err)
		d.settle(ctx, correlationID, attempt, lease, p, resp, err, next, duration)

		switch next {
		case stateSuccess:
			return Execution{
				Text:          resp.Text,
				Usage:         resp.Usage,
				CorrelationID: correlationID,
				Routing: RoutingInfo{
					CredentialID: lease.Credential.ID(),
					Tier:         lease.Credential.Tier,
					Model:        lease.Model.Name,
					Attempts:     attempt,
				},
			}, nil
		default:
			lastErr = err
			state = stateAttempt
		}
	}

	d.logger.Error("all attempts failed",
		"correlation_id", correlationID,
		"attempts", attempt,
		"error", lastErr,
	)
	return Execution{}, &RetryBudgetExhaustedError{
		CorrelationID: correlationID,
		Attempts:      attempt,
		Last:          lastErr,
	}
}

// settle hands the lease back according to the attempt outcome and records
// the attempt.
func (d *RetryDriver) settle(
	ctx context.Context,
	correlationID string,
	attempt int,
	lease Lease,
	p Payload,
	resp TransportResponse,
	err error,
	state attemptState,
	duration time.Duration,
) {
	log := d.logger.With(
		"correlation_id", correlationID,
		"attempt", attempt,
		"tier", lease.Credential.Tier.String(),
		"credential", lease.Credential.Redacted(),
		"model", lease.Model.Name,
	)

	var outcome Outcome
	var settleErr error
	switch state {
	case stateSuccess:
		outcome = OutcomeSuccess
		settleErr = d.ledger.Release(lease)
	case stateQuotaRejected:
		outcome = OutcomeQuotaExceeded
		now := d.now()
		window := d.backoff.Window(err, now)
		var until time.Time
		until, settleErr = d.ledger.Suspend(lease, now, window)
		if settleErr != nil {
			break
		}
		log.Warn("quota exceeded, suspending pair", "window", window, "until", until, "error", err)
		d.meter.OnSuspend(SuspendEvent{
			CorrelationID: correlationID,
			CredentialID:  lease.Credential.ID(),
			Tier:          lease.Credential.Tier,
			Model:         lease.Model.Name,
			Window:        window,
			Until:         until,
		})
	case stateAuthRejected:
		outcome = OutcomeAuthFailed
		settleErr = d.ledger.Release(lease)
		d.ledger.Disable(lease.Credential)
		log.Error("invalid credential, disabling", "error", err)
	default:
		outcome = OutcomeFailure
		settleErr = d.ledger.Release(lease)
		log.Warn("attempt failed", "error", err)
	}
	if settleErr != nil {
		log.Error("lease settlement failed", "error", settleErr)
	}

	d.meter.OnResult(ResultEvent{
		CorrelationID: correlationID,
		CredentialID:  lease.Credential.ID(),
		Tier:          lease.Credential.Tier,
		Model:         lease.Model.Name,
		Attempt:       attempt,
		Outcome:       outcome,
		Duration:      duration,
		Usage:         resp.Usage,
		Error:         err,
	})

	prompt := p.TelemetryText
	if prompt == "" {
		prompt = p.Prompt
	}
	event := TelemetryEvent{
		CorrelationID: correlationID,
		Attempt:       attempt,
		Tier:          lease.Credential.Tier,
		CredentialID:  lease.Credential.ID(),
		Model:         lease.Model.Name,
		Task:          p.Task,
		Prompt:        prompt,
		InputText:     p.InputText,
		Result:        resp.Text,
		Usage:         resp.Usage,
		Timestamp:     d.now(),
		Outcome:       outcome,
	}
	if err != nil {
		event.Error = err.Error()
	}
	if recErr := d.sink.Record(ctx, event); recErr != nil {
		log.Warn("telemetry record failed", "error", recErr)
	}
}
