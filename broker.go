package aicore

import (
	"context"
	"encoding/base64"
	"encoding/json"
	"fmt"
	"log/slog"
	"time"

	"github.com/google/uuid"
)

// Broker is the caller-facing entry point: one Analyze operation over a pool
// of credentials and model variants.
type Broker struct {
	cfg         Config
	transport   Transport
	ledger      *QuotaLedger
	rotator     *Rotator
	driver      *RetryDriver
	meter       Meter
	sink        TelemetrySink
	backoff     BackoffPolicy
	now         func() time.Time
	logger      *slog.Logger
	maxAttempts int
}

// Option configures a Broker.
type Option func(*Broker)

// WithLedger shares an existing ledger, e.g. between several brokers over the
// same keys.
func WithLedger(l *QuotaLedger) Option {
	return func(b *Broker) { b.ledger = l }
}

// WithMeter sets the meter.
func WithMeter(m Meter) Option {
	return func(b *Broker) { b.meter = m }
}

// WithTelemetry sets the telemetry sink.
func WithTelemetry(s TelemetrySink) Option {
	return func(b *Broker) { b.sink = s }
}

// WithLogger sets the logger.
func WithLogger(l *slog.Logger) Option {
	return func(b *Broker) { b.logger = l }
}

// WithBackoff overrides the suspension policy from the config.
func WithBackoff(p BackoffPolicy) Option {
	return func(b *Broker) { b.backoff = p }
}

// WithClock sets the time source used for leases and suspensions.
func WithClock(now func() time.Time) Option {
	return func(b *Broker) { b.now = now }
}

// WithMaxAttempts overrides the attempt budget per call.
func WithMaxAttempts(n int) Option {
	return func(b *Broker) { b.maxAttempts = n }
}

// NewBroker creates a Broker from a validated config and a transport.
// Defaults (fresh ledger, no meter, no telemetry, slog.Default) apply unless
// overridden via options.
func NewBroker(cfg Config, transport Transport, opts ...Option) (*Broker, error) {
	if transport == nil {
		return nil, configErrorf("a transport is required")
	}
	if err := cfg.Validate(); err != nil {
		return nil, err
	}

	pool, err := NewCredentialPool(SplitAll(cfg.FreeKeys), SplitAll(cfg.PaidKeys))
	if err != nil {
		return nil, err
	}
	catalog, err := NewModelCatalog(cfg.ModelSpecs())
	if err != nil {
		return nil, err
	}

	b := &Broker{
		cfg:         cfg,
		transport:   transport,
		maxAttempts: cfg.MaxAttempts,
	}
	for _, opt := range opts {
		opt(b)
	}

	// Apply defaults after options.
	if b.ledger == nil {
		b.ledger = NewQuotaLedger()
	}
	if b.meter == nil {
		b.meter = noopMeter{}
	}
	if b.sink == nil {
		b.sink = noopSink{}
	}
	if b.backoff == nil {
		b.backoff = cfg.Backoff()
	}
	if b.now == nil {
		b.now = time.Now
	}
	if b.logger == nil {
		b.logger = slog.Default()
	}

	b.rotator = NewRotator(pool, catalog, b.ledger)
	b.rotator.meter = b.meter
	b.rotator.logger = b.logger

	b.driver = NewRetryDriver(b.rotator, transport)
	b.driver.sink = b.sink
	b.driver.meter = b.meter
	b.driver.backoff = b.backoff
	b.driver.now = b.now
	b.driver.logger = b.logger

	b.logger.Info("broker started",
		"transport", transport.Name(),
		"free_keys", len(pool.List(TierFree)),
		"paid_keys", len(pool.List(TierPaid)),
		"models", catalog.Len(),
	)
	return b, nil
}

// Analyze sends one logical request through the rotator and returns the
// model output with token accounting and the correlation ID.
func (b *Broker) Analyze(ctx context.Context, req AnalyzeRequest) (AnalyzeResult, error) {
	if req.ImageBase64 != "" {
		if _, err := base64.StdEncoding.DecodeString(req.ImageBase64); err != nil {
			return AnalyzeResult{}, fmt.Errorf("%w: image is not valid base64: %v", ErrInvalidRequest, err)
		}
	}

	mimeType := req.MimeType
	if mimeType == "" {
		mimeType = DefaultMimeType
	}
	correlationID := req.CorrelationID
	if correlationID == "" {
		correlationID = uuid.New().String()
	}

	final := composePrompt(req.Prompt, req.InputText, b.now())
	b.logger.Debug("token estimate",
		"correlation_id", correlationID,
		"task", req.Task,
		"estimated_tokens", EstimateTokens(final),
	)

	exec, err := b.driver.Execute(ctx, Payload{
		Prompt:        modelPrompt(final, req.Structured, req.ImageBase64 != ""),
		TelemetryText: final,
		InputText:     req.InputText,
		ImageBase64:   req.ImageBase64,
		MimeType:      mimeType,
		Task:          req.Task,
		Structured:    req.Structured,
		CorrelationID: correlationID,
	}, Constraints{
		TierOverride: req.TierOverride,
		ModelFilter:  req.ModelFilter,
	}, b.maxAttempts)
	if err != nil {
		return AnalyzeResult{}, err
	}

	result := AnalyzeResult{
		Text:          exec.Text,
		Usage:         exec.Usage,
		CorrelationID: exec.CorrelationID,
		Routing:       exec.Routing,
	}
	if req.Structured {
		result.JSON = json.RawMessage(exec.Text)
	}
	return result, nil
}

// Ledger returns the shared quota ledger.
func (b *Broker) Ledger() *QuotaLedger { return b.ledger }

// Rotator returns the broker's rotator.
func (b *Broker) Rotator() *Rotator { return b.rotator }

// Config returns the config the broker was built from.
func (b *Broker) Config() Config { return b.cfg }
