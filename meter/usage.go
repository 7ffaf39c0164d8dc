package meter

import (
	"sort"
	"sync"
	"time"

	"github.com/krlsedu/aicore"
)

// UsageMeter tallies tokens of successful attempts per credential, resetting
// at UTC midnight.
type UsageMeter struct {
	mu       sync.Mutex
	now      func() time.Time
	day      string
	accounts map[usageKey]*CredentialUsage
}

var _ aicore.Meter = (*UsageMeter)(nil)

// CredentialUsage is one row of UsageMeter.Report.
type CredentialUsage struct {
	CredentialID string            `json:"credential_id"`
	Tier         string            `json:"tier"`
	Usage        aicore.TokenUsage `json:"usage"`
	Calls        int64             `json:"calls"`
}

type usageKey struct {
	credentialID string
	tier         aicore.Tier
}

// NewUsageMeter creates a UsageMeter. A nil clock means time.Now.
func NewUsageMeter(now func() time.Time) *UsageMeter {
	if now == nil {
		now = time.Now
	}
	return &UsageMeter{
		now:      now,
		day:      now().UTC().Format(time.DateOnly),
		accounts: make(map[usageKey]*CredentialUsage),
	}
}

func (m *UsageMeter) OnAcquire(aicore.AcquireEvent) {}
func (m *UsageMeter) OnSuspend(aicore.SuspendEvent) {}

func (m *UsageMeter) OnResult(e aicore.ResultEvent) {
	if e.Outcome != aicore.OutcomeSuccess {
		return
	}
	m.mu.Lock()
	defer m.mu.Unlock()

	m.checkReset()

	k := usageKey{credentialID: e.CredentialID, tier: e.Tier}
	cu, ok := m.accounts[k]
	if !ok {
		cu = &CredentialUsage{CredentialID: e.CredentialID, Tier: e.Tier.String()}
		m.accounts[k] = cu
	}
	cu.Calls++
	cu.Usage.InputTokens += e.Usage.InputTokens
	cu.Usage.OutputTokens += e.Usage.OutputTokens
	cu.Usage.ImageTokens += e.Usage.ImageTokens
}

// Report returns today's usage for every credential seen, sorted by ID.
func (m *UsageMeter) Report() []CredentialUsage {
	m.mu.Lock()
	defer m.mu.Unlock()

	m.checkReset()

	out := make([]CredentialUsage, 0, len(m.accounts))
	for _, cu := range m.accounts {
		out = append(out, *cu)
	}
	sort.Slice(out, func(i, j int) bool {
		if out[i].CredentialID != out[j].CredentialID {
			return out[i].CredentialID < out[j].CredentialID
		}
		return out[i].Tier < out[j].Tier
	})
	return out
}

// checkReset drops all tallies when the UTC day has changed. Must be called
// with lock held.
func (m *UsageMeter) checkReset() {
	today := m.now().UTC().Format(time.DateOnly)
	if today != m.day {
		m.accounts = make(map[usageKey]*CredentialUsage)
		m.day = today
	}
}
