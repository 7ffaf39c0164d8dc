package aicore

import "strings"

// CredentialPool holds the configured credentials partitioned by tier.
// It is immutable after construction.
type CredentialPool struct {
	free []Credential
	paid []Credential
}

// NewCredentialPool builds a pool from raw secrets. Secrets are trimmed,
// blanks dropped and duplicates removed keeping the first occurrence. A
// secret listed as both free and paid is kept as free only.
func NewCredentialPool(free, paid []string) (*CredentialPool, error) {
	seen := make(map[string]bool, len(free)+len(paid))
	p := &CredentialPool{
		free: collect(free, TierFree, seen),
		paid: collect(paid, TierPaid, seen),
	}
	if len(p.free) == 0 && len(p.paid) == 0 {
		return nil, configErrorf("at least one free or paid credential is required")
	}
	return p, nil
}

func collect(secrets []string, tier Tier, seen map[string]bool) []Credential {
	var out []Credential
	for _, s := range secrets {
		s = strings.TrimSpace(s)
		if s == "" || seen[s] {
			continue
		}
		seen[s] = true
		out = append(out, Credential{Secret: s, Tier: tier})
	}
	return out
}

// List returns the credentials of a tier in configuration order.
func (p *CredentialPool) List(tier Tier) []Credential {
	var src []Credential
	switch tier {
	case TierFree:
		src = p.free
	case TierPaid:
		src = p.paid
	}
	out := make([]Credential, len(src))
	copy(out, src)
	return out
}

// Size returns the number of credentials across both tiers.
func (p *CredentialPool) Size() int {
	return len(p.free) + len(p.paid)
}

// SplitKeys splits a comma-separated key list.
func SplitKeys(s string) []string {
	if strings.TrimSpace(s) == "" {
		return nil
	}
	return strings.Split(s, ",")
}
