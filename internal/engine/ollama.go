package engine

import (
	"context"

	"github.com/kalambet/twind/internal/ollama"
)

// OllamaEngine adapts the internal/ollama.Client to the Engine interface.
type OllamaEngine struct {
	client *ollama.Client
	model  string
}

// NewOllamaEngine creates an OllamaEngine that uses model when a request does
// not name one.
func NewOllamaEngine(c *ollama.Client, model string) *OllamaEngine {
	return &OllamaEngine{client: c, model: model}
}

func (e *OllamaEngine) Complete(ctx context.Context, req Request) (string, error) {
	model, msgs, opts := e.convert(req)
	return e.client.Chat(ctx, model, msgs, opts)
}

func (e *OllamaEngine) Stream(ctx context.Context, req Request) (TokenStream, error) {
	model, msgs, opts := e.convert(req)
	s, err := e.client.ChatStream(ctx, model, msgs, opts)
	if err != nil {
		return nil, err
	}
	return s, nil
}

func (e *OllamaEngine) convert(req Request) (string, []ollama.Message, *ollama.Options) {
	model := req.Model
	if model == "" {
		model = e.model
	}
	msgs := make([]ollama.Message, len(req.Messages))
	for i, m := range req.Messages {
		msgs[i] = ollama.Message{Role: m.Role, Content: m.Content}
	}
	return model, msgs, &ollama.Options{Temperature: req.Temperature, NumPredict: req.MaxTokens}
}
