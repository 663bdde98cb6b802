package engine

import (
	"context"
	"fmt"
	"io"
	"time"

	"github.com/kalambet/twind/internal/ollama"
)

// ModelHost is the subset of the Ollama client used to prepare local models.
type ModelHost interface {
	IsRunning(ctx context.Context) bool
	HasModel(ctx context.Context, name string) bool
	PullModel(ctx context.Context, name string, onProgress func(ollama.PullProgress)) error
	Chat(ctx context.Context, model string, messages []ollama.Message, opts *ollama.Options) (string, error)
}

// EnsureReady checks that Ollama is reachable and the required models are
// available, pulling missing ones with progress written to w. The embed
// model is always required because both index backends embed through
// Ollama. When the provider is ollama the chat model is also pulled and
// then warmed up so the first question does not pay the cold-load penalty.
func EnsureReady(ctx context.Context, h ModelHost, provider, chatModel, embedModel string, w io.Writer) error {
	if !h.IsRunning(ctx) {
		return fmt.Errorf("Ollama is not running. Start it with: ollama serve")
	}

	models := make([]string, 0, 2)
	if provider == ProviderOllama && chatModel != "" {
		models = append(models, chatModel)
	}
	if embedModel != "" && embedModel != chatModel {
		models = append(models, embedModel)
	}

	for _, model := range models {
		if h.HasModel(ctx, model) {
			fmt.Fprintf(w, "model %s: ready\n", model)
			continue
		}

		fmt.Fprintf(w, "model %s: pulling...\n", model)
		err := h.PullModel(ctx, model, func(p ollama.PullProgress) {
			if p.Total > 0 {
				pct := float64(p.Completed) / float64(p.Total) * 100
				fmt.Fprintf(w, "  %s %.0f%%\n", p.Status, pct)
			} else {
				fmt.Fprintf(w, "  %s\n", p.Status)
			}
		})
		if err != nil {
			return fmt.Errorf("pulling model %s: %w", model, err)
		}
		fmt.Fprintf(w, "model %s: ready\n", model)
	}

	if provider != ProviderOllama || chatModel == "" {
		return nil
	}

	fmt.Fprintf(w, "model %s: warming up...\n", chatModel)
	warmCtx, cancel := context.WithTimeout(ctx, 30*time.Second)
	defer cancel()
	if _, err := h.Chat(warmCtx, chatModel, []ollama.Message{{Role: "user", Content: "ping"}}, nil); err != nil {
		fmt.Fprintf(w, "model %s: warm-up failed (non-fatal): %v\n", chatModel, err)
	} else {
		fmt.Fprintf(w, "model %s: warm\n", chatModel)
	}
	return nil
}
