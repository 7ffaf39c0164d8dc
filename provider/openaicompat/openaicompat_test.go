package openaicompat

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/krlsedu/aicore"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestSend_StructuredWithImage(t *testing.T) {
	var auth string
	var raw map[string]any
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, "/chat/completions", r.URL.Path)
		auth = r.Header.Get("Authorization")
		require.NoError(t, json.NewDecoder(r.Body).Decode(&raw))
		_, _ = w.Write([]byte(`{
			"choices":[{"message":{"role":"assistant","content":"{\"ok\":true}"},"finish_reason":"stop"}],
			"usage":{"prompt_tokens":100,"completion_tokens":5,"prompt_tokens_details":{"image_tokens":64}}
		}`))
	}))
	defer srv.Close()

	tr := New("test", srv.URL+"/", WithHTTPClient(srv.Client()))
	resp, err := tr.Send(context.Background(), aicore.TransportRequest{
		Credential:  aicore.Credential{Secret: "sk-test"},
		Model:       "gemini-2.5-flash",
		Prompt:      "what is this",
		ImageBase64: "aGVsbG8=",
		MimeType:    "image/png",
		Structured:  true,
	})
	require.NoError(t, err)

	assert.Equal(t, `{"ok":true}`, resp.Text)
	assert.Equal(t, aicore.TokenUsage{InputTokens: 100, OutputTokens: 5, ImageTokens: 64}, resp.Usage)
	assert.Equal(t, "Bearer sk-test", auth)
	assert.Equal(t, "gemini-2.5-flash", raw["model"])
	assert.Equal(t, map[string]any{"type": "json_object"}, raw["response_format"])

	msgs := raw["messages"].([]any)
	require.Len(t, msgs, 1)
	parts := msgs[0].(map[string]any)["content"].([]any)
	require.Len(t, parts, 2)
	img := parts[1].(map[string]any)["image_url"].(map[string]any)
	assert.Equal(t, "data:image/png;base64,aGVsbG8=", img["url"])
}

func TestSend_PlainText(t *testing.T) {
	var raw map[string]any
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		_ = json.NewDecoder(r.Body).Decode(&raw)
		_, _ = w.Write([]byte(`{"choices":[{"message":{"content":"hi"}}],"usage":{"prompt_tokens":3,"completion_tokens":1}}`))
	}))
	defer srv.Close()

	tr := New("test", srv.URL)
	resp, err := tr.Send(context.Background(), aicore.TransportRequest{Model: "m", Prompt: "hello"})
	require.NoError(t, err)

	assert.Equal(t, "hi", resp.Text)
	assert.NotContains(t, raw, "response_format")
	msgs := raw["messages"].([]any)
	assert.Equal(t, "hello", msgs[0].(map[string]any)["content"])
}

func TestSend_ErrorMapping(t *testing.T) {
	tests := []struct {
		status int
		body   string
		want   error
	}{
		{http.StatusTooManyRequests, `rate limited`, aicore.ErrQuotaExceeded},
		{http.StatusUnauthorized, `bad key`, aicore.ErrAuthFailed},
		{http.StatusBadRequest, `[{"error":{"details":[{"reason":"API_KEY_INVALID"}]}}]`, aicore.ErrAuthFailed},
		{http.StatusBadGateway, `upstream`, aicore.ErrTransport},
	}

	for _, tt := range tests {
		t.Run(http.StatusText(tt.status), func(t *testing.T) {
			srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
				w.WriteHeader(tt.status)
				_, _ = w.Write([]byte(tt.body))
			}))
			defer srv.Close()

			_, err := New("test", srv.URL).Send(context.Background(), aicore.TransportRequest{Model: "m", Prompt: "p"})
			assert.ErrorIs(t, err, tt.want)
		})
	}
}

func TestNewGemini(t *testing.T) {
	tr := NewGemini()
	assert.Equal(t, "gemini-openai", tr.Name())
	assert.Equal(t, DefaultBaseURL, tr.baseURL)
}
