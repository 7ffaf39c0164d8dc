package aicore

import (
	"regexp"
	"time"
)

// DefaultBackoffWindow is the suspension applied after a quota rejection.
const DefaultBackoffWindow = 60 * time.Second

// BackoffPolicy decides how long a pair stays suspended after the provider
// rejected it with err.
type BackoffPolicy interface {
	Window(err error, now time.Time) time.Duration
}

// FixedBackoff suspends every rejected pair for the same window.
type FixedBackoff time.Duration

func (b FixedBackoff) Window(error, time.Time) time.Duration {
	return time.Duration(b)
}

var (
	reLimitZero = regexp.MustCompile(`(?i)limit:\s*0`)
	rePerDay    = regexp.MustCompile(`(?i)(PerDay|Quota.*Day)`)
	rePerMinute = regexp.MustCompile(`(?i)(PerMinute|Quota.*Minute)`)
)

// QuotaClassBackoff reads the provider's rejection message and picks a
// window matching the quota that was hit.
type QuotaClassBackoff struct {
	Default   time.Duration // unclassified rejection
	PerMinute time.Duration
	LimitZero time.Duration // the key has no quota at all for the model
	// Daily quotas renew at ResetHourUTC; Grace is added after the reset.
	ResetHourUTC int
	Grace        time.Duration
}

// NewQuotaClassBackoff returns the windows observed for Gemini keys.
func NewQuotaClassBackoff() QuotaClassBackoff {
	return QuotaClassBackoff{
		Default:      DefaultBackoffWindow,
		PerMinute:    120 * time.Second,
		LimitZero:    24 * time.Hour,
		ResetHourUTC: 8,
		Grace:        5 * time.Minute,
	}
}

func (b QuotaClassBackoff) Window(err error, now time.Time) time.Duration {
	if err == nil {
		return b.Default
	}
	msg := err.Error()
	switch {
	case reLimitZero.MatchString(msg):
		return b.LimitZero
	case rePerDay.MatchString(msg):
		return b.untilDailyReset(now)
	case rePerMinute.MatchString(msg):
		return b.PerMinute
	default:
		return b.Default
	}
}

func (b QuotaClassBackoff) untilDailyReset(now time.Time) time.Duration {
	utc := now.UTC()
	target := time.Date(utc.Year(), utc.Month(), utc.Day(), b.ResetHourUTC, 0, 0, 0, time.UTC)
	if !utc.Before(target) {
		target = target.AddDate(0, 0, 1)
	}
	return target.Sub(utc) + b.Grace
}
