package client

import (
	"context"
	"encoding/json"
	"time"
)

// Request describes a single call through the dispatcher.
type Request struct {
	// Path is the API path, e.g. "/dataset/abc".
	Path string
	// Method is the HTTP method. Default: GET.
	Method string
	// Params are query parameters. Values must be scalars (string, bool, numbers).
	Params map[string]any
	// Body is marshalled as JSON when non-nil.
	Body any
	// Headers are extra request headers. Authorization and User-Agent are always set by the client.
	Headers map[string]string
	// MaxRetries overrides the client's total attempt count when > 0.
	MaxRetries int
	// BackoffFactor overrides the client's backoff factor when > 0.
	BackoffFactor float64
}

// Tokens are the credentials returned by the authentication collaborator.
type Tokens struct {
	IDToken      string `json:"id_token"`
	AccessToken  string `json:"access_token,omitempty"`
	RefreshToken string `json:"refresh_token,omitempty"`
}

// TokenProvider supplies fresh tokens for every call.
// Implementations must be safe for concurrent use and should return *AuthError
// for credential misconfiguration.
type TokenProvider interface {
	Tokens(ctx context.Context) (Tokens, error)
}

// TokenProviderFunc adapts a function to TokenProvider.
type TokenProviderFunc func(ctx context.Context) (Tokens, error)

// Tokens implements TokenProvider.
func (f TokenProviderFunc) Tokens(ctx context.Context) (Tokens, error) {
	return f(ctx)
}

// Frame is a decoded message from the log subscription stream.
type Frame map[string]any

// Type returns the frame's "type" field.
func (f Frame) Type() string {
	s, _ := f["type"].(string)
	return s
}

// Stream returns the frame's "stream" field (stdout/stderr/worker id).
func (f Frame) Stream() string {
	s, _ := f["stream"].(string)
	return s
}

// Message returns the frame's "msg" field.
func (f Frame) Message() string {
	s, _ := f["msg"].(string)
	return s
}

// Time returns the frame timestamp. The server sends milliseconds since epoch,
// either as a number or as a numeric string.
func (f Frame) Time() time.Time {
	var ms int64
	switch v := f["time"].(type) {
	case float64:
		ms = int64(v)
	case json.Number:
		ms, _ = v.Int64()
	case string:
		var n json.Number = json.Number(v)
		ms, _ = n.Int64()
	default:
		return time.Time{}
	}
	return time.UnixMilli(ms)
}

// FrameHandler receives every non-terminal frame of a subscription.
type FrameHandler func(Frame)
