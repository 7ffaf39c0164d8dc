package aicore

import (
	"fmt"
	"sort"
	"sync"
	"time"

	"github.com/google/uuid"
)

// Lease is a reserved admission slot against a (credential, model) pair.
// It must be handed back exactly once, via Release or Suspend.
type Lease struct {
	ID         string
	Credential Credential
	Model      ModelSpec
	AcquiredAt time.Time
}

// PairState is a read-only view of one ledger entry.
type PairState struct {
	CredentialID   string
	Tier           Tier
	Model          string
	InFlight       int
	Limit          int
	SuspendedUntil time.Time // zero when not suspended
	Disabled       bool
}

// QuotaLedger tracks in-flight counts and suspensions per (credential, model)
// pair. All methods are safe for concurrent use.
type QuotaLedger struct {
	mu       sync.Mutex
	pairs    map[pairKey]*quotaState
	leases   map[string]pairKey // outstanding lease IDs
	disabled map[string]bool    // credential secrets
}

type pairKey struct {
	secret string
	model  string
}

type quotaState struct {
	tier           Tier
	limit          int
	inFlight       int
	suspendedUntil time.Time
}

// NewQuotaLedger creates an empty ledger.
func NewQuotaLedger() *QuotaLedger {
	return &QuotaLedger{
		pairs:    make(map[pairKey]*quotaState),
		leases:   make(map[string]pairKey),
		disabled: make(map[string]bool),
	}
}

// TryAcquire reserves a slot on the pair, or reports false when the pair is
// suspended, saturated, or its credential is disabled.
func (l *QuotaLedger) TryAcquire(cred Credential, model ModelSpec, now time.Time) (Lease, bool) {
	l.mu.Lock()
	defer l.mu.Unlock()

	if l.disabled[cred.Secret] {
		return Lease{}, false
	}

	st := l.getOrCreate(cred, model)

	if !st.suspendedUntil.IsZero() {
		if st.suspendedUntil.After(now) {
			return Lease{}, false
		}
		st.suspendedUntil = time.Time{}
	}

	if st.inFlight >= st.limit {
		return Lease{}, false
	}
	st.inFlight++

	lease := Lease{
		ID:         uuid.New().String(),
		Credential: cred,
		Model:      model,
		AcquiredAt: now,
	}
	l.leases[lease.ID] = pairKey{secret: cred.Secret, model: model.Name}
	return lease, true
}

// Release returns the lease's slot. Releasing a lease twice is an error and
// leaves the counters untouched.
func (l *QuotaLedger) Release(lease Lease) error {
	l.mu.Lock()
	defer l.mu.Unlock()

	_, err := l.settle(lease)
	return err
}

// Suspend returns the lease's slot and bans the pair until now+window. A
// longer suspension already in place is kept. The returned time is the
// pair's effective suspension deadline.
func (l *QuotaLedger) Suspend(lease Lease, now time.Time, window time.Duration) (time.Time, error) {
	l.mu.Lock()
	defer l.mu.Unlock()

	st, err := l.settle(lease)
	if err != nil {
		return time.Time{}, err
	}

	until := now.Add(window)
	if st.suspendedUntil.After(until) {
		return st.suspendedUntil, nil
	}
	st.suspendedUntil = until
	return until, nil
}

// Disable removes every pair of cred from selection for the lifetime of the
// ledger. Outstanding leases can still be released.
func (l *QuotaLedger) Disable(cred Credential) {
	l.mu.Lock()
	defer l.mu.Unlock()
	l.disabled[cred.Secret] = true
}

// InFlight returns the current in-flight count for a pair.
func (l *QuotaLedger) InFlight(cred Credential, model string) int {
	l.mu.Lock()
	defer l.mu.Unlock()

	st, ok := l.pairs[pairKey{secret: cred.Secret, model: model}]
	if !ok {
		return 0
	}
	return st.inFlight
}

// SuspendedUntil returns the end of the pair's suspension, if one is set.
func (l *QuotaLedger) SuspendedUntil(cred Credential, model string) (time.Time, bool) {
	l.mu.Lock()
	defer l.mu.Unlock()

	st, ok := l.pairs[pairKey{secret: cred.Secret, model: model}]
	if !ok || st.suspendedUntil.IsZero() {
		return time.Time{}, false
	}
	return st.suspendedUntil, true
}

// Snapshot returns every known pair, sorted by credential then model.
func (l *QuotaLedger) Snapshot() []PairState {
	l.mu.Lock()
	defer l.mu.Unlock()

	out := make([]PairState, 0, len(l.pairs))
	for k, st := range l.pairs {
		cred := Credential{Secret: k.secret, Tier: st.tier}
		out = append(out, PairState{
			CredentialID:   cred.ID(),
			Tier:           st.tier,
			Model:          k.model,
			InFlight:       st.inFlight,
			Limit:          st.limit,
			SuspendedUntil: st.suspendedUntil,
			Disabled:       l.disabled[k.secret],
		})
	}
	sort.Slice(out, func(i, j int) bool {
		if out[i].CredentialID != out[j].CredentialID {
			return out[i].CredentialID < out[j].CredentialID
		}
		return out[i].Model < out[j].Model
	})
	return out
}

// settle drops the lease and decrements its pair. Must be called with lock held.
func (l *QuotaLedger) settle(lease Lease) (*quotaState, error) {
	key, ok := l.leases[lease.ID]
	if !ok {
		return nil, fmt.Errorf("%w: lease %s on model %s", ErrLeaseReleased, lease.ID, lease.Model.Name)
	}
	delete(l.leases, lease.ID)

	st := l.pairs[key]
	if st.inFlight > 0 {
		st.inFlight--
	}
	return st, nil
}

// getOrCreate must be called with lock held.
func (l *QuotaLedger) getOrCreate(cred Credential, model ModelSpec) *quotaState {
	key := pairKey{secret: cred.Secret, model: model.Name}
	st, ok := l.pairs[key]
	if !ok {
		st = &quotaState{tier: cred.Tier, limit: model.ConcurrencyLimit}
		l.pairs[key] = st
	}
	return st
}
