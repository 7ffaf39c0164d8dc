package aicore

import "iter"

// Candidate is one (credential, model) pair in scan order.
type Candidate struct {
	Credential Credential
	Model      ModelSpec
}

// tierOrder returns the tiers to search for an override.
func tierOrder(o TierOverride) []Tier {
	switch o {
	case ForceFree:
		return []Tier{TierFree}
	case ForcePaid:
		return []Tier{TierPaid}
	default:
		return []Tier{TierFree, TierPaid}
	}
}

// scanCandidates yields pairs in priority order: tier, then credential in
// pool order, then model cheapest first.
func scanCandidates(pool *CredentialPool, models []ModelSpec, o TierOverride) iter.Seq[Candidate] {
	return func(yield func(Candidate) bool) {
		for _, tier := range tierOrder(o) {
			for _, cred := range pool.List(tier) {
				for _, m := range models {
					if !yield(Candidate{Credential: cred, Model: m}) {
						return
					}
				}
			}
		}
	}
}
