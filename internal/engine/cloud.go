package engine

import (
	"context"
	"fmt"

	"github.com/kalambet/twind/internal/cloud"
)

// CloudEngine adapts cloud.Client to the Engine interface.
type CloudEngine struct {
	client *cloud.Client
	model  string
}

// NewCloudEngine creates a CloudEngine that uses model when a request does
// not name one.
func NewCloudEngine(c *cloud.Client, model string) *CloudEngine {
	return &CloudEngine{client: c, model: model}
}

func (e *CloudEngine) Complete(ctx context.Context, req Request) (string, error) {
	out, err := e.client.Complete(ctx, e.toChat(req))
	if err != nil {
		return "", classifyCloud(err)
	}
	return out, nil
}

func (e *CloudEngine) Stream(ctx context.Context, req Request) (TokenStream, error) {
	s, err := e.client.Stream(ctx, e.toChat(req))
	if err != nil {
		return nil, classifyCloud(err)
	}
	return s, nil
}

func (e *CloudEngine) toChat(req Request) cloud.ChatRequest {
	model := req.Model
	if model == "" {
		model = e.model
	}
	msgs := make([]cloud.Message, len(req.Messages))
	for i, m := range req.Messages {
		msgs[i] = cloud.Message{Role: m.Role, Content: m.Content}
	}
	return cloud.ChatRequest{
		Model:       model,
		Messages:    msgs,
		Temperature: cloud.Float(req.Temperature),
		MaxTokens:   req.MaxTokens,
	}
}

func classifyCloud(err error) error {
	switch {
	case cloud.IsAuth(err):
		return fmt.Errorf("%w: %v", ErrAuth, err)
	case cloud.IsRateLimit(err):
		return fmt.Errorf("%w: %v", ErrRateLimited, err)
	}
	return err
}
