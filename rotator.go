package aicore

import (
	"fmt"
	"iter"
	"log/slog"
	"time"
)

// Rotator picks the (credential, model) pair for the next attempt. It is a
// priority-ordered scan, not a load balancer: free before paid, cheap before
// expensive, first available credential wins.
type Rotator struct {
	pool    *CredentialPool
	catalog *ModelCatalog
	ledger  *QuotaLedger
	meter   Meter
	logger  *slog.Logger
}

// NewRotator creates a Rotator over a shared ledger.
func NewRotator(pool *CredentialPool, catalog *ModelCatalog, ledger *QuotaLedger) *Rotator {
	return &Rotator{
		pool:    pool,
		catalog: catalog,
		ledger:  ledger,
		meter:   noopMeter{},
		logger:  slog.Default(),
	}
}

// Scan returns the candidate pairs for c in the order Acquire tries them.
func (r *Rotator) Scan(c Constraints) (iter.Seq[Candidate], error) {
	models, err := r.catalog.Candidates(c.ModelFilter)
	if err != nil {
		return nil, err
	}
	return scanCandidates(r.pool, models, c.TierOverride), nil
}

// Acquire leases the first available pair at time now.
func (r *Rotator) Acquire(c Constraints, now time.Time) (Lease, error) {
	return r.acquire("", c, now)
}

func (r *Rotator) acquire(correlationID string, c Constraints, now time.Time) (Lease, error) {
	seq, err := r.Scan(c)
	if err != nil {
		return Lease{}, err
	}

	scanned := 0
	for cand := range seq {
		scanned++
		lease, ok := r.ledger.TryAcquire(cand.Credential, cand.Model, now)
		if !ok {
			continue
		}

		r.logger.Debug("slot acquired",
			"correlation_id", correlationID,
			"tier", cand.Credential.Tier.String(),
			"credential", cand.Credential.Redacted(),
			"model", cand.Model.Name,
		)
		r.meter.OnAcquire(AcquireEvent{
			CorrelationID: correlationID,
			CredentialID:  cand.Credential.ID(),
			Tier:          cand.Credential.Tier,
			Model:         cand.Model.Name,
			Scanned:       scanned,
		})
		return lease, nil
	}

	r.meter.OnAcquire(AcquireEvent{
		CorrelationID: correlationID,
		Scanned:       scanned,
		Exhausted:     true,
	})
	return Lease{}, fmt.Errorf("%w: override=%s filter=%q scanned=%d",
		ErrAllCredentialsExhausted, c.TierOverride, c.ModelFilter, scanned)
}

// Capacity returns the number of (credential, model) pairs, at least 1.
func (r *Rotator) Capacity() int {
	return max(1, r.pool.Size()*r.catalog.Len())
}
