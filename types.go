package aicore

import (
	"encoding/hex"
	"encoding/json"
	"fmt"
	"hash/fnv"
	"strings"
)

// Tier is the billing class of a credential.
type Tier int

const (
	TierFree Tier = iota
	TierPaid
)

func (t Tier) String() string {
	switch t {
	case TierFree:
		return "free"
	case TierPaid:
		return "paid"
	default:
		return "unknown"
	}
}

// TierOverride restricts the tiers searched for a single call.
type TierOverride int

const (
	OverrideNone TierOverride = iota
	ForceFree
	ForcePaid
)

func (o TierOverride) String() string {
	switch o {
	case ForceFree:
		return "force_free"
	case ForcePaid:
		return "force_paid"
	default:
		return "none"
	}
}

// ParseTierOverride accepts "", "none", "free", "paid" and the
// "force_free"/"force_paid" spellings, case-insensitively.
func ParseTierOverride(s string) (TierOverride, error) {
	switch strings.ToLower(strings.TrimSpace(s)) {
	case "", "none":
		return OverrideNone, nil
	case "free", "force_free":
		return ForceFree, nil
	case "paid", "force_paid":
		return ForcePaid, nil
	default:
		return OverrideNone, fmt.Errorf("%w: unknown tier override %q", ErrInvalidRequest, s)
	}
}

// Credential is an API key and the tier it bills against.
type Credential struct {
	Secret string
	Tier   Tier
}

// ID returns a stable identifier for logs and metrics. It is derived from
// the secret but does not reveal it.
func (c Credential) ID() string {
	h := fnv.New64a()
	_, _ = h.Write([]byte(c.Secret))
	return hex.EncodeToString(h.Sum(nil))[:8]
}

// Redacted returns the first characters of the secret, enough to recognise
// a key in a console without printing it.
func (c Credential) Redacted() string {
	if len(c.Secret) <= 10 {
		return "***"
	}
	return c.Secret[:10] + "..."
}

// ModelSpec describes a model variant the rotator may pick.
type ModelSpec struct {
	Name             string
	ConcurrencyLimit int
	CostRank         int // lower is cheaper
}

// Constraints narrows the candidate scan for one call.
type Constraints struct {
	TierOverride TierOverride
	ModelFilter  string
}

// TokenUsage reports token accounting for a model call.
type TokenUsage struct {
	InputTokens  int64 `json:"input_tokens"`
	OutputTokens int64 `json:"output_tokens"`
	ImageTokens  int64 `json:"image_tokens"`
}

// Total returns input plus output tokens. Image tokens are already counted
// in the input by the provider.
func (u TokenUsage) Total() int64 {
	return u.InputTokens + u.OutputTokens
}

// AnalyzeRequest is a single logical call made by a broker client.
type AnalyzeRequest struct {
	InputText     string
	Prompt        string
	ImageBase64   string
	MimeType      string // defaults to image/jpeg
	Task          string
	ModelFilter   string
	TierOverride  TierOverride
	Structured    bool   // ask for a JSON object response
	CorrelationID string // generated when empty
}

// AnalyzeResult is a successful Analyze call.
type AnalyzeResult struct {
	Text          string
	JSON          json.RawMessage // set when the request was structured
	Usage         TokenUsage
	CorrelationID string
	Routing       RoutingInfo
}

// RoutingInfo describes which credential/model served the call.
type RoutingInfo struct {
	CredentialID string
	Tier         Tier
	Model        string
	Attempts     int
}
