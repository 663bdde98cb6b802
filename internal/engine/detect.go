package engine

import (
	"fmt"

	"github.com/kalambet/twind/internal/cloud"
	"github.com/kalambet/twind/internal/ollama"
)

const (
	ProviderCloud  = "cloud"
	ProviderOllama = "ollama"
)

// DetectConfig holds parameters for provider selection.
type DetectConfig struct {
	Provider     string
	CloudBaseURL string
	CloudAPIKey  string
	CloudModel   string
	Ollama       *ollama.Client
	OllamaModel  string
}

// Detect returns the Engine for the configured provider.
func Detect(cfg DetectConfig) (Engine, error) {
	switch cfg.Provider {
	case ProviderCloud, "":
		if cfg.CloudAPIKey == "" {
			return nil, fmt.Errorf("cloud provider requires an API key")
		}
		return NewCloudEngine(cloud.NewClient(cfg.CloudAPIKey, cfg.CloudBaseURL), cfg.CloudModel), nil
	case ProviderOllama:
		if cfg.Ollama == nil {
			return nil, fmt.Errorf("ollama provider requires a client")
		}
		return NewOllamaEngine(cfg.Ollama, cfg.OllamaModel), nil
	}
	return nil, fmt.Errorf("unknown provider %q", cfg.Provider)
}
