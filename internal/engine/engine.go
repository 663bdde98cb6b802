package engine

import (
	"context"
	"errors"
)

// Engine abstracts the LLM inference provider. The answer generator and the
// query normalizer depend on this interface instead of a concrete client.
type Engine interface {
	// Complete returns the full assistant response for req.
	Complete(ctx context.Context, req Request) (string, error)

	// Stream returns an incremental token stream for req. The caller must
	// Close it.
	Stream(ctx context.Context, req Request) (TokenStream, error)
}

// TokenStream yields response fragments in order. Next returns io.EOF once
// the provider signals completion.
type TokenStream interface {
	Next() (string, error)
	Close() error
}

// Message represents a chat message.
type Message struct {
	Role    string `json:"role"`
	Content string `json:"content"`
}

// Request is a provider-neutral completion request. An empty Model selects
// the engine's default model.
type Request struct {
	Model       string
	Messages    []Message
	Temperature float64
	MaxTokens   int
}

// Provider errors, wrapped by the concrete engines so callers can classify
// failures with errors.Is.
var (
	ErrAuth        = errors.New("provider rejected credentials")
	ErrRateLimited = errors.New("provider rate limit exceeded")
)
