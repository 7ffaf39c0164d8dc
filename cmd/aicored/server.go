package main

import (
	"encoding/json"
	"errors"
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"github.com/rs/zerolog"

	"github.com/krlsedu/aicore"
	"github.com/krlsedu/aicore/meter"
)

const maxRequestBody = 20 << 20

type server struct {
	broker   *aicore.Broker
	usage    *meter.UsageMeter
	registry *prometheus.Registry
	log      zerolog.Logger
}

func newServer(broker *aicore.Broker, usage *meter.UsageMeter, registry *prometheus.Registry, log zerolog.Logger) *server {
	return &server{broker: broker, usage: usage, registry: registry, log: log}
}

func (s *server) routes() http.Handler {
	r := chi.NewRouter()
	r.Use(middleware.RequestID)
	r.Use(middleware.Recoverer)
	r.Use(s.accessLog)

	r.Get("/healthz", func(w http.ResponseWriter, _ *http.Request) {
		writeJSON(w, http.StatusOK, map[string]string{"status": "ok"})
	})
	r.Handle("/metrics", promhttp.HandlerFor(s.registry, promhttp.HandlerOpts{}))

	r.Route("/v1", func(r chi.Router) {
		r.Post("/analyze", s.handleAnalyze)
		r.Get("/ledger", s.handleLedger)
		r.Get("/usage", func(w http.ResponseWriter, _ *http.Request) {
			writeJSON(w, http.StatusOK, s.usage.Report())
		})
	})
	return r
}

type analyzeRequest struct {
	InputText     string `json:"input_text"`
	Prompt        string `json:"prompt"`
	ImageBase64   string `json:"image_base64"`
	MimeType      string `json:"mime_type"`
	Task          string `json:"task"`
	ModelFilter   string `json:"model_filter"`
	TierOverride  string `json:"tier_override"`
	Structured    bool   `json:"structured"`
	CorrelationID string `json:"correlation_id"`
}

type analyzeResponse struct {
	Text          string            `json:"text,omitempty"`
	JSON          json.RawMessage   `json:"json,omitempty"`
	Usage         aicore.TokenUsage `json:"usage"`
	CorrelationID string            `json:"correlation_id"`
	Routing       routingResponse   `json:"routing"`
}

type routingResponse struct {
	CredentialID string `json:"credential_id"`
	Tier         string `json:"tier"`
	Model        string `json:"model"`
	Attempts     int    `json:"attempts"`
}

type pairResponse struct {
	CredentialID   string     `json:"credential_id"`
	Tier           string     `json:"tier"`
	Model          string     `json:"model"`
	InFlight       int        `json:"in_flight"`
	Limit          int        `json:"limit"`
	SuspendedUntil *time.Time `json:"suspended_until,omitempty"`
	Disabled       bool       `json:"disabled"`
}

func (s *server) handleAnalyze(w http.ResponseWriter, r *http.Request) {
	var req analyzeRequest
	if err := json.NewDecoder(http.MaxBytesReader(w, r.Body, maxRequestBody)).Decode(&req); err != nil {
		writeError(w, http.StatusBadRequest, "invalid JSON body: "+err.Error())
		return
	}
	override, err := aicore.ParseTierOverride(req.TierOverride)
	if err != nil {
		writeError(w, http.StatusBadRequest, err.Error())
		return
	}

	result, err := s.broker.Analyze(r.Context(), aicore.AnalyzeRequest{
		InputText:     req.InputText,
		Prompt:        req.Prompt,
		ImageBase64:   req.ImageBase64,
		MimeType:      req.MimeType,
		Task:          req.Task,
		ModelFilter:   req.ModelFilter,
		TierOverride:  override,
		Structured:    req.Structured,
		CorrelationID: req.CorrelationID,
	})
	if err != nil {
		status := statusFor(err)
		s.log.Warn().Err(err).Int("status", status).Str("task", req.Task).Msg("analyze failed")
		writeError(w, status, err.Error())
		return
	}

	resp := analyzeResponse{
		JSON:          result.JSON,
		Usage:         result.Usage,
		CorrelationID: result.CorrelationID,
		Routing: routingResponse{
			CredentialID: result.Routing.CredentialID,
			Tier:         result.Routing.Tier.String(),
			Model:        result.Routing.Model,
			Attempts:     result.Routing.Attempts,
		},
	}
	if result.JSON == nil {
		resp.Text = result.Text
	}
	writeJSON(w, http.StatusOK, resp)
}

func (s *server) handleLedger(w http.ResponseWriter, _ *http.Request) {
	snapshot := s.broker.Ledger().Snapshot()
	out := make([]pairResponse, 0, len(snapshot))
	for _, p := range snapshot {
		pr := pairResponse{
			CredentialID: p.CredentialID,
			Tier:         p.Tier.String(),
			Model:        p.Model,
			InFlight:     p.InFlight,
			Limit:        p.Limit,
			Disabled:     p.Disabled,
		}
		if !p.SuspendedUntil.IsZero() {
			until := p.SuspendedUntil
			pr.SuspendedUntil = &until
		}
		out = append(out, pr)
	}
	writeJSON(w, http.StatusOK, out)
}

// statusFor maps broker errors onto HTTP status codes.
func statusFor(err error) int {
	switch {
	case errors.Is(err, aicore.ErrInvalidRequest), errors.Is(err, aicore.ErrConfiguration):
		return http.StatusBadRequest
	case errors.Is(err, aicore.ErrAllCredentialsExhausted), errors.Is(err, aicore.ErrRetryBudgetExhausted):
		return http.StatusServiceUnavailable
	default:
		return http.StatusBadGateway
	}
}

func (s *server) accessLog(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		ww := middleware.NewWrapResponseWriter(w, r.ProtoMajor)
		start := time.Now()
		next.ServeHTTP(ww, r)
		s.log.Info().
			Str("request_id", middleware.GetReqID(r.Context())).
			Str("method", r.Method).
			Str("path", r.URL.Path).
			Int("status", ww.Status()).
			Int("bytes", ww.BytesWritten()).
			Dur("duration", time.Since(start)).
			Msg("http")
	})
}

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(v)
}

func writeError(w http.ResponseWriter, status int, msg string) {
	writeJSON(w, status, map[string]string{"error": msg})
}
