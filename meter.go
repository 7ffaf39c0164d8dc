package aicore

import "time"

// Meter observes rotator and driver events for monitoring/logging.
type Meter interface {
	// OnAcquire is called after every Rotator.Acquire, successful or not.
	OnAcquire(event AcquireEvent)

	// OnResult is called when a transport attempt finishes.
	OnResult(event ResultEvent)

	// OnSuspend is called when a pair is suspended after a quota rejection.
	OnSuspend(event SuspendEvent)
}

// AcquireEvent describes a candidate scan.
type AcquireEvent struct {
	CorrelationID string
	CredentialID  string
	Tier          Tier
	Model         string
	Scanned       int // candidates tried before success or exhaustion
	Exhausted     bool
}

// ResultEvent describes the outcome of a transport attempt.
type ResultEvent struct {
	CorrelationID string
	CredentialID  string
	Tier          Tier
	Model         string
	Attempt       int
	Outcome       Outcome
	Duration      time.Duration
	Usage         TokenUsage
	Error         error
}

// SuspendEvent describes a pair suspension.
type SuspendEvent struct {
	CorrelationID string
	CredentialID  string
	Tier          Tier
	Model         string
	Window        time.Duration
	Until         time.Time
}

// noopMeter is a meter that does nothing.
type noopMeter struct{}

func (noopMeter) OnAcquire(AcquireEvent) {}
func (noopMeter) OnResult(ResultEvent)   {}
func (noopMeter) OnSuspend(SuspendEvent) {}
