package mock

import (
	"context"
	"sync"
	"sync/atomic"
	"time"

	"github.com/krlsedu/aicore"
)

// Call records one request the mock received.
type Call struct {
	CredentialID string
	Tier         aicore.Tier
	Model        string
	Prompt       string
}

// Transport is a mock generative-AI transport for testing.
type Transport struct {
	name      string
	latency   time.Duration
	callCount atomic.Int64
	staticErr error
	text      string
	usage     aicore.TokenUsage
	script    []error
	errByKey  map[string]error
	respFunc  func(aicore.TransportRequest) (aicore.TransportResponse, error)

	mu    sync.Mutex
	calls []Call
}

var _ aicore.Transport = (*Transport)(nil)

// Option configures a mock Transport.
type Option func(*Transport)

// New creates a mock transport with the given options.
func New(opts ...Option) *Transport {
	t := &Transport{
		name: "mock",
		text: "Hello from mock transport",
		usage: aicore.TokenUsage{
			InputTokens:  10,
			OutputTokens: 20,
		},
		errByKey: make(map[string]error),
	}
	for _, opt := range opts {
		opt(t)
	}
	return t
}

// WithName sets the transport name.
func WithName(name string) Option {
	return func(t *Transport) { t.name = name }
}

// WithLatency adds simulated latency to each call.
func WithLatency(d time.Duration) Option {
	return func(t *Transport) { t.latency = d }
}

// WithError makes every call return err.
func WithError(err error) Option {
	return func(t *Transport) { t.staticErr = err }
}

// WithScript makes the n-th call return script[n-1]. A nil entry succeeds.
// Calls past the end of the script succeed.
func WithScript(script ...error) Option {
	return func(t *Transport) { t.script = script }
}

// WithKeyError makes every call made with the given secret return err.
func WithKeyError(secret string, err error) Option {
	return func(t *Transport) { t.errByKey[secret] = err }
}

// WithText sets the response text.
func WithText(text string) Option {
	return func(t *Transport) { t.text = text }
}

// WithUsage sets the usage returned by the mock.
func WithUsage(u aicore.TokenUsage) Option {
	return func(t *Transport) { t.usage = u }
}

// WithResponseFunc sets a custom response function.
func WithResponseFunc(fn func(aicore.TransportRequest) (aicore.TransportResponse, error)) Option {
	return func(t *Transport) { t.respFunc = fn }
}

func (t *Transport) Name() string { return t.name }

func (t *Transport) Send(ctx context.Context, req aicore.TransportRequest) (aicore.TransportResponse, error) {
	if t.latency > 0 {
		select {
		case <-time.After(t.latency):
		case <-ctx.Done():
			return aicore.TransportResponse{}, ctx.Err()
		}
	}

	n := t.callCount.Add(1)

	t.mu.Lock()
	t.calls = append(t.calls, Call{
		CredentialID: req.Credential.ID(),
		Tier:         req.Credential.Tier,
		Model:        req.Model,
		Prompt:       req.Prompt,
	})
	t.mu.Unlock()

	if t.staticErr != nil {
		return aicore.TransportResponse{}, t.staticErr
	}
	if err, ok := t.errByKey[req.Credential.Secret]; ok {
		return aicore.TransportResponse{}, err
	}
	if int(n) <= len(t.script) && t.script[n-1] != nil {
		return aicore.TransportResponse{}, t.script[n-1]
	}

	if t.respFunc != nil {
		return t.respFunc(req)
	}

	return aicore.TransportResponse{Text: t.text, Usage: t.usage}, nil
}

// CallCount returns the number of calls made to the transport.
func (t *Transport) CallCount() int64 { return t.callCount.Load() }

// Calls returns a copy of the recorded calls in arrival order.
func (t *Transport) Calls() []Call {
	t.mu.Lock()
	defer t.mu.Unlock()
	out := make([]Call, len(t.calls))
	copy(out, t.calls)
	return out
}
