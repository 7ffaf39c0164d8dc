package gemini

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"regexp"
	"strings"

	"github.com/krlsedu/aicore"
)

const defaultBaseURL = "https://generativelanguage.googleapis.com/v1beta"

const defaultTemperature = 0.1

var (
	reQuota      = regexp.MustCompile(`\bRESOURCE_EXHAUSTED\b`)
	reInvalidKey = regexp.MustCompile(`(?i)(API_KEY_INVALID|key not valid|unauthorized)`)
)

// Transport is the Gemini generateContent adapter.
type Transport struct {
	baseURL     string
	httpClient  *http.Client
	temperature float64
}

var _ aicore.Transport = (*Transport)(nil)

// Option configures the transport.
type Option func(*Transport)

// WithBaseURL sets a custom base URL.
func WithBaseURL(url string) Option {
	return func(t *Transport) { t.baseURL = strings.TrimRight(url, "/") }
}

// WithHTTPClient sets a custom HTTP client.
func WithHTTPClient(c *http.Client) Option {
	return func(t *Transport) { t.httpClient = c }
}

// WithTemperature sets the sampling temperature (default 0.1).
func WithTemperature(v float64) Option {
	return func(t *Transport) { t.temperature = v }
}

// New creates a new Gemini transport.
func New(opts ...Option) *Transport {
	t := &Transport{
		baseURL:     defaultBaseURL,
		httpClient:  http.DefaultClient,
		temperature: defaultTemperature,
	}
	for _, opt := range opts {
		opt(t)
	}
	return t
}

func (t *Transport) Name() string { return "gemini" }

// Gemini API types.
type geminiRequest struct {
	Contents         []geminiContent         `json:"contents"`
	GenerationConfig *geminiGenerationConfig `json:"generationConfig,omitempty"`
}

type geminiContent struct {
	Role  string       `json:"role"`
	Parts []geminiPart `json:"parts"`
}

type geminiPart struct {
	Text       string      `json:"text,omitempty"`
	InlineData *inlineData `json:"inlineData,omitempty"`
}

type inlineData struct {
	MimeType string `json:"mimeType"`
	Data     string `json:"data"`
}

type geminiGenerationConfig struct {
	Temperature      float64 `json:"temperature"`
	ResponseMimeType string  `json:"responseMimeType,omitempty"`
}

type geminiResponse struct {
	Candidates []struct {
		Content      geminiContent `json:"content"`
		FinishReason string        `json:"finishReason"`
	} `json:"candidates"`
	UsageMetadata struct {
		PromptTokenCount     int64 `json:"promptTokenCount"`
		CandidatesTokenCount int64 `json:"candidatesTokenCount"`
		PromptTokensDetails  []struct {
			Modality   string `json:"modality"`
			TokenCount int64  `json:"tokenCount"`
		} `json:"promptTokensDetails"`
	} `json:"usageMetadata"`
}

func (t *Transport) Send(ctx context.Context, req aicore.TransportRequest) (aicore.TransportResponse, error) {
	body := t.buildRequest(req)
	url := fmt.Sprintf("%s/models/%s:generateContent", t.baseURL, req.Model)

	httpResp, err := t.doRequest(ctx, url, req.Credential.Secret, body)
	if err != nil {
		return aicore.TransportResponse{}, err
	}
	defer httpResp.Body.Close()

	if err := mapHTTPError(httpResp); err != nil {
		return aicore.TransportResponse{}, err
	}

	var resp geminiResponse
	if err := json.NewDecoder(httpResp.Body).Decode(&resp); err != nil {
		return aicore.TransportResponse{}, fmt.Errorf("%w: decode gemini response: %v", aicore.ErrTransport, err)
	}

	if len(resp.Candidates) == 0 {
		return aicore.TransportResponse{}, fmt.Errorf("%w: empty candidates in gemini response", aicore.ErrTransport)
	}

	var text strings.Builder
	for _, p := range resp.Candidates[0].Content.Parts {
		text.WriteString(p.Text)
	}

	usage := aicore.TokenUsage{
		InputTokens:  resp.UsageMetadata.PromptTokenCount,
		OutputTokens: resp.UsageMetadata.CandidatesTokenCount,
	}
	for _, d := range resp.UsageMetadata.PromptTokensDetails {
		if strings.EqualFold(d.Modality, "IMAGE") {
			usage.ImageTokens = d.TokenCount
		}
	}

	return aicore.TransportResponse{Text: text.String(), Usage: usage}, nil
}

func (t *Transport) buildRequest(req aicore.TransportRequest) geminiRequest {
	parts := []geminiPart{{Text: req.Prompt}}
	if req.ImageBase64 != "" {
		mimeType := req.MimeType
		if mimeType == "" {
			mimeType = aicore.DefaultMimeType
		}
		parts = append(parts, geminiPart{InlineData: &inlineData{MimeType: mimeType, Data: req.ImageBase64}})
	}

	responseType := "text/plain"
	if req.Structured {
		responseType = "application/json"
	}

	return geminiRequest{
		Contents: []geminiContent{{Role: "user", Parts: parts}},
		GenerationConfig: &geminiGenerationConfig{
			Temperature:      t.temperature,
			ResponseMimeType: responseType,
		},
	}
}

func (t *Transport) doRequest(ctx context.Context, url, apiKey string, body geminiRequest) (*http.Response, error) {
	jsonBody, err := json.Marshal(body)
	if err != nil {
		return nil, fmt.Errorf("%w: marshal gemini request: %v", aicore.ErrTransport, err)
	}

	httpReq, err := http.NewRequestWithContext(ctx, http.MethodPost, url, bytes.NewReader(jsonBody))
	if err != nil {
		return nil, fmt.Errorf("%w: create gemini request: %v", aicore.ErrTransport, err)
	}

	httpReq.Header.Set("Content-Type", "application/json")
	httpReq.Header.Set("x-goog-api-key", apiKey)

	resp, err := t.httpClient.Do(httpReq)
	if err != nil {
		return nil, fmt.Errorf("%w: %v", aicore.ErrTransport, err)
	}

	return resp, nil
}

func mapHTTPError(resp *http.Response) error {
	if resp.StatusCode >= 200 && resp.StatusCode < 300 {
		return nil
	}

	raw, _ := io.ReadAll(io.LimitReader(resp.Body, 4096))
	body := string(raw)

	// Match the RPC status name only; messages may carry request IDs.

	switch {
	case resp.StatusCode == http.StatusTooManyRequests || reQuota.MatchString(body):
		return fmt.Errorf("%w: %s", aicore.ErrQuotaExceeded, body)
	case resp.StatusCode == http.StatusUnauthorized,
		resp.StatusCode == http.StatusForbidden,
		reInvalidKey.MatchString(body):
		return fmt.Errorf("%w: %s", aicore.ErrAuthFailed, body)
	default:
		return fmt.Errorf("%w: status %d: %s", aicore.ErrTransport, resp.StatusCode, body)
	}
}
