package aicore_test

import (
	"slices"
	"testing"
	"time"

	"github.com/krlsedu/aicore"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func newRotator(t *testing.T, free, paid []string, models ...aicore.ModelSpec) (*aicore.Rotator, *aicore.QuotaLedger) {
	t.Helper()
	pool, err := aicore.NewCredentialPool(free, paid)
	require.NoError(t, err)
	catalog, err := aicore.NewModelCatalog(models)
	require.NoError(t, err)
	ledger := aicore.NewQuotaLedger()
	return aicore.NewRotator(pool, catalog, ledger), ledger
}

type pair struct {
	secret string
	model  string
}

func scanPairs(t *testing.T, r *aicore.Rotator, c aicore.Constraints) []pair {
	t.Helper()
	seq, err := r.Scan(c)
	require.NoError(t, err)
	var out []pair
	for cand := range seq {
		out = append(out, pair{cand.Credential.Secret, cand.Model.Name})
	}
	return out
}

func TestCredentialPool(t *testing.T) {
	pool, err := aicore.NewCredentialPool(
		[]string{" f1 ", "", "f2", "f1"},
		[]string{"p1", "f2", "p1 "},
	)
	require.NoError(t, err)

	secrets := func(cs []aicore.Credential) []string {
		var out []string
		for _, c := range cs {
			out = append(out, c.Secret)
		}
		return out
	}
	assert.Equal(t, []string{"f1", "f2"}, secrets(pool.List(aicore.TierFree)))
	assert.Equal(t, []string{"p1"}, secrets(pool.List(aicore.TierPaid)), "f2 stays free only")
	assert.Equal(t, 3, pool.Size())

	// List returns a copy.
	list := pool.List(aicore.TierFree)
	list[0].Secret = "mutated"
	assert.Equal(t, "f1", pool.List(aicore.TierFree)[0].Secret)

	_, err = aicore.NewCredentialPool([]string{" "}, nil)
	assert.ErrorIs(t, err, aicore.ErrConfiguration)
}

func TestSplitKeys(t *testing.T) {
	assert.Nil(t, aicore.SplitKeys("   "))
	assert.Equal(t, []string{"a", " b", ""}, aicore.SplitKeys("a, b,"))
}

func TestCredential_IDAndRedacted(t *testing.T) {
	c := aicore.Credential{Secret: "AIzaSyD-1234567890abcdef"}
	assert.Len(t, c.ID(), 8)
	assert.Equal(t, c.ID(), aicore.Credential{Secret: c.Secret, Tier: aicore.TierPaid}.ID())
	assert.NotEqual(t, c.ID(), aicore.Credential{Secret: "other"}.ID())
	assert.Equal(t, "AIzaSyD-12...", c.Redacted())
	assert.Equal(t, "***", aicore.Credential{Secret: "short"}.Redacted())
}

func TestModelCatalog_Validation(t *testing.T) {
	tests := []struct {
		name  string
		specs []aicore.ModelSpec
	}{
		{"empty", nil},
		{"no name", []aicore.ModelSpec{{ConcurrencyLimit: 1}}},
		{"duplicate", []aicore.ModelSpec{{Name: "m", ConcurrencyLimit: 1}, {Name: "m", ConcurrencyLimit: 2}}},
		{"zero limit", []aicore.ModelSpec{{Name: "m"}}},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := aicore.NewModelCatalog(tt.specs)
			assert.ErrorIs(t, err, aicore.ErrConfiguration)
		})
	}
}

func TestModelCatalog_CandidatesCheapestFirst(t *testing.T) {
	c, err := aicore.NewModelCatalog([]aicore.ModelSpec{
		{Name: "gemini-2.5-pro", ConcurrencyLimit: 1, CostRank: 80},
		{Name: "gemini-2.5-flash", ConcurrencyLimit: 1, CostRank: 10},
		{Name: "gemini-3-flash-preview", ConcurrencyLimit: 1, CostRank: 10},
	})
	require.NoError(t, err)

	all, err := c.Candidates("")
	require.NoError(t, err)
	var names []string
	for _, m := range all {
		names = append(names, m.Name)
	}
	assert.Equal(t, []string{"gemini-2.5-flash", "gemini-3-flash-preview", "gemini-2.5-pro"}, names)

	pro, err := c.Candidates("PRO")
	require.NoError(t, err)
	require.Len(t, pro, 1)
	assert.Equal(t, "gemini-2.5-pro", pro[0].Name)

	_, err = c.Candidates("ultra")
	assert.ErrorIs(t, err, aicore.ErrConfiguration)

	m, ok := c.Lookup("gemini-2.5-pro")
	assert.True(t, ok)
	assert.Equal(t, 80, m.CostRank)
	_, ok = c.Lookup("gemini")
	assert.False(t, ok)
}

func TestDefaultCostRank(t *testing.T) {
	assert.Equal(t, 10, aicore.DefaultCostRank("gemini-2.5-flash"))
	assert.Equal(t, 80, aicore.DefaultCostRank("gemini-2.5-pro"))
	assert.Equal(t, 100, aicore.DefaultCostRank("gemini-ultra"))
	assert.Equal(t, 50, aicore.DefaultCostRank("gemma-3"))
}

func TestScan_FreeBeforePaidThenCost(t *testing.T) {
	cheap := aicore.ModelSpec{Name: "cheap", ConcurrencyLimit: 1, CostRank: 1}
	mid := aicore.ModelSpec{Name: "mid", ConcurrencyLimit: 1, CostRank: 5}
	dear := aicore.ModelSpec{Name: "dear", ConcurrencyLimit: 1, CostRank: 9}

	// Every permutation of the configured model order yields the same scan.
	for _, models := range [][]aicore.ModelSpec{
		{cheap, mid, dear}, {dear, mid, cheap}, {mid, dear, cheap},
	} {
		r, _ := newRotator(t, []string{"f1", "f2"}, []string{"p1"}, models...)
		got := scanPairs(t, r, aicore.Constraints{})
		assert.Equal(t, []pair{
			{"f1", "cheap"}, {"f1", "mid"}, {"f1", "dear"},
			{"f2", "cheap"}, {"f2", "mid"}, {"f2", "dear"},
			{"p1", "cheap"}, {"p1", "mid"}, {"p1", "dear"},
		}, got)
	}
}

func TestScan_Overrides(t *testing.T) {
	m := aicore.ModelSpec{Name: "m", ConcurrencyLimit: 1}
	r, _ := newRotator(t, []string{"f1"}, []string{"p1"}, m)

	assert.Equal(t, []pair{{"f1", "m"}}, scanPairs(t, r, aicore.Constraints{TierOverride: aicore.ForceFree}))
	assert.Equal(t, []pair{{"p1", "m"}}, scanPairs(t, r, aicore.Constraints{TierOverride: aicore.ForcePaid}))
}

func TestScan_IsLazy(t *testing.T) {
	m := aicore.ModelSpec{Name: "m", ConcurrencyLimit: 1}
	r, _ := newRotator(t, []string{"f1", "f2", "f3"}, nil, m)

	seq, err := r.Scan(aicore.Constraints{})
	require.NoError(t, err)

	var seen int
	for range seq {
		seen++
		break
	}
	assert.Equal(t, 1, seen)
	assert.Len(t, slices.Collect(seq), 3, "sequence is reusable")
}

func TestAcquire_FallsThroughToPaidWhenFreeBusy(t *testing.T) {
	m1 := aicore.ModelSpec{Name: "m1", ConcurrencyLimit: 1}
	r, ledger := newRotator(t, []string{"A"}, []string{"B"}, m1)

	first, err := r.Acquire(aicore.Constraints{}, t0)
	require.NoError(t, err)
	assert.Equal(t, "A", first.Credential.Secret)

	second, err := r.Acquire(aicore.Constraints{}, t0)
	require.NoError(t, err)
	assert.Equal(t, "B", second.Credential.Secret)
	assert.Equal(t, aicore.TierPaid, second.Credential.Tier)

	_, err = r.Acquire(aicore.Constraints{}, t0)
	assert.ErrorIs(t, err, aicore.ErrAllCredentialsExhausted)

	require.NoError(t, ledger.Release(first))
	third, err := r.Acquire(aicore.Constraints{}, t0)
	require.NoError(t, err)
	assert.Equal(t, "A", third.Credential.Secret)
}

func TestAcquire_ForcePaidWithFreeOnlyPool(t *testing.T) {
	r, ledger := newRotator(t, []string{"A"}, nil, flash)

	_, err := r.Acquire(aicore.Constraints{TierOverride: aicore.ForcePaid}, t0)
	assert.ErrorIs(t, err, aicore.ErrAllCredentialsExhausted)
	assert.Empty(t, ledger.Snapshot(), "no free pair touched")
}

func TestAcquire_SkipsSuspendedPair(t *testing.T) {
	cheap := aicore.ModelSpec{Name: "flash", ConcurrencyLimit: 5, CostRank: 10}
	dear := aicore.ModelSpec{Name: "pro", ConcurrencyLimit: 5, CostRank: 80}
	r, ledger := newRotator(t, nil, []string{"B"}, dear, cheap)

	lease, err := r.Acquire(aicore.Constraints{}, t0)
	require.NoError(t, err)
	assert.Equal(t, "flash", lease.Model.Name, "cheaper model first within paid")
	_, err = ledger.Suspend(lease, t0, aicore.DefaultBackoffWindow)
	require.NoError(t, err)

	lease, err = r.Acquire(aicore.Constraints{}, t0.Add(time.Second))
	require.NoError(t, err)
	assert.Equal(t, "pro", lease.Model.Name)

	assert.Equal(t, 2, r.Capacity())
}
