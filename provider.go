package aicore

import "context"

// Transport is the interface generative-AI provider adapters implement.
type Transport interface {
	// Name returns the adapter identifier (e.g. "gemini").
	Name() string

	// Send performs one model call with the leased credential. Errors must
	// wrap ErrQuotaExceeded for provider rate limits, ErrAuthFailed for an
	// invalid key, and ErrTransport otherwise.
	Send(ctx context.Context, req TransportRequest) (TransportResponse, error)
}

// TransportRequest is the request sent to a transport adapter.
type TransportRequest struct {
	Credential  Credential
	Model       string
	Prompt      string // final text sent to the model
	InputText   string
	ImageBase64 string
	MimeType    string
	Structured  bool
}

// TransportResponse is the response from a transport adapter.
type TransportResponse struct {
	Text  string
	Usage TokenUsage
}
