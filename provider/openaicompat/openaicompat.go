package openaicompat

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"strings"

	"github.com/krlsedu/aicore"
)

// DefaultBaseURL is Gemini's OpenAI-compatible endpoint.
const DefaultBaseURL = "https://generativelanguage.googleapis.com/v1beta/openai"

// Transport is a universal OpenAI-compatible chat completions adapter.
// Works with Gemini's compatibility layer, OpenAI, Ollama, and others.
type Transport struct {
	name        string
	baseURL     string
	httpClient  *http.Client
	temperature float64
}

var _ aicore.Transport = (*Transport)(nil)

// Option configures the transport.
type Option func(*Transport)

// WithHTTPClient sets a custom HTTP client.
func WithHTTPClient(c *http.Client) Option {
	return func(t *Transport) { t.httpClient = c }
}

// WithTemperature sets the sampling temperature (default 0.1).
func WithTemperature(v float64) Option {
	return func(t *Transport) { t.temperature = v }
}

// New creates a new OpenAI-compatible transport.
func New(name, baseURL string, opts ...Option) *Transport {
	t := &Transport{
		name:        name,
		baseURL:     strings.TrimRight(baseURL, "/"),
		httpClient:  http.DefaultClient,
		temperature: 0.1,
	}
	for _, opt := range opts {
		opt(t)
	}
	return t
}

// NewGemini creates a transport for Gemini's OpenAI-compatible endpoint.
func NewGemini(opts ...Option) *Transport {
	return New("gemini-openai", DefaultBaseURL, opts...)
}

func (t *Transport) Name() string { return t.name }

// apiRequest is the OpenAI chat completion request format.
type apiRequest struct {
	Model          string          `json:"model"`
	Messages       []apiMessage    `json:"messages"`
	Temperature    float64         `json:"temperature"`
	ResponseFormat *responseFormat `json:"response_format,omitempty"`
}

// apiMessage content is either a plain string or a list of content parts.
type apiMessage struct {
	Role    string `json:"role"`
	Content any    `json:"content"`
}

type contentPart struct {
	Type     string    `json:"type"`
	Text     string    `json:"text,omitempty"`
	ImageURL *imageURL `json:"image_url,omitempty"`
}

type imageURL struct {
	URL string `json:"url"`
}

type responseFormat struct {
	Type string `json:"type"`
}

// apiResponse is the OpenAI chat completion response format.
type apiResponse struct {
	Choices []struct {
		Message struct {
			Content string `json:"content"`
		} `json:"message"`
		FinishReason string `json:"finish_reason"`
	} `json:"choices"`
	Usage struct {
		PromptTokens        int64 `json:"prompt_tokens"`
		CompletionTokens    int64 `json:"completion_tokens"`
		PromptTokensDetails *struct {
			ImageTokens int64 `json:"image_tokens"`
		} `json:"prompt_tokens_details,omitempty"`
	} `json:"usage"`
}

func (t *Transport) Send(ctx context.Context, req aicore.TransportRequest) (aicore.TransportResponse, error) {
	httpResp, err := t.doRequest(ctx, req.Credential.Secret, t.buildRequest(req))
	if err != nil {
		return aicore.TransportResponse{}, err
	}
	defer httpResp.Body.Close()

	if err := mapHTTPError(httpResp); err != nil {
		return aicore.TransportResponse{}, err
	}

	var resp apiResponse
	if err := json.NewDecoder(httpResp.Body).Decode(&resp); err != nil {
		return aicore.TransportResponse{}, fmt.Errorf("%w: decode response: %v", aicore.ErrTransport, err)
	}

	if len(resp.Choices) == 0 {
		return aicore.TransportResponse{}, fmt.Errorf("%w: empty choices in response", aicore.ErrTransport)
	}

	usage := aicore.TokenUsage{
		InputTokens:  resp.Usage.PromptTokens,
		OutputTokens: resp.Usage.CompletionTokens,
	}
	if d := resp.Usage.PromptTokensDetails; d != nil {
		usage.ImageTokens = d.ImageTokens
	}

	return aicore.TransportResponse{Text: resp.Choices[0].Message.Content, Usage: usage}, nil
}

func (t *Transport) buildRequest(req aicore.TransportRequest) apiRequest {
	msg := apiMessage{Role: "user", Content: req.Prompt}
	if req.ImageBase64 != "" {
		mimeType := req.MimeType
		if mimeType == "" {
			mimeType = aicore.DefaultMimeType
		}
		msg.Content = []contentPart{
			{Type: "text", Text: req.Prompt},
			{Type: "image_url", ImageURL: &imageURL{URL: "data:" + mimeType + ";base64," + req.ImageBase64}},
		}
	}

	body := apiRequest{
		Model:       req.Model,
		Messages:    []apiMessage{msg},
		Temperature: t.temperature,
	}
	if req.Structured {
		body.ResponseFormat = &responseFormat{Type: "json_object"}
	}
	return body
}

func (t *Transport) doRequest(ctx context.Context, apiKey string, body apiRequest) (*http.Response, error) {
	jsonBody, err := json.Marshal(body)
	if err != nil {
		return nil, fmt.Errorf("%w: marshal request: %v", aicore.ErrTransport, err)
	}

	url := t.baseURL + "/chat/completions"
	httpReq, err := http.NewRequestWithContext(ctx, http.MethodPost, url, bytes.NewReader(jsonBody))
	if err != nil {
		return nil, fmt.Errorf("%w: create request: %v", aicore.ErrTransport, err)
	}

	httpReq.Header.Set("Content-Type", "application/json")
	httpReq.Header.Set("Authorization", "Bearer "+apiKey)

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

	// Read body for error context, but don't fail if we can't.
	raw, _ := io.ReadAll(io.LimitReader(resp.Body, 1024))
	body := string(raw)

	switch {
	case resp.StatusCode == http.StatusTooManyRequests, strings.Contains(body, "RESOURCE_EXHAUSTED"):
		return fmt.Errorf("%w: %s", aicore.ErrQuotaExceeded, body)
	case resp.StatusCode == http.StatusUnauthorized, resp.StatusCode == http.StatusForbidden,
		strings.Contains(body, "API_KEY_INVALID"):
		return fmt.Errorf("%w: %s", aicore.ErrAuthFailed, body)
	default:
		return fmt.Errorf("%w: status %d: %s", aicore.ErrTransport, resp.StatusCode, body)
	}
}
