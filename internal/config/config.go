package config

import (
	"fmt"
	"os"
	"path/filepath"
)

type Config struct {
	Server    ServerConfig
	LLM       LLMConfig
	Ollama    OllamaConfig
	Index     IndexConfig
	Storage   StorageConfig
	Pipeline  PipelineConfig
	Profile   ProfileConfig
	Log       LogConfig
	RateLimit RateLimitConfig
}

type ServerConfig struct {
	Port int
}

// LLMConfig selects the inference provider used for normalization and
// answer generation. Provider is "cloud" (any OpenAI-compatible API) or "ollama".
type LLMConfig struct {
	Provider      string
	BaseURL       string
	APIKey        string
	Model         string
	AnalysisModel string
}

type OllamaConfig struct {
	BaseURL    string
	ChatModel  string
	EmbedModel string
}

// IndexConfig selects the semantic index backend: "chromem" (embedded,
// persisted under the data dir) or "qdrant".
type IndexConfig struct {
	Backend      string
	Collection   string
	QdrantHost   string
	QdrantPort   int
	QdrantAPIKey string
	QdrantTLS    bool
}

type StorageConfig struct {
	DataDir string
}

type PipelineConfig struct {
	TopK             int
	RelevanceFloor   float64
	MaxContextTokens int
	Timezone         string
}

type ProfileConfig struct {
	Name      string
	Location  string
	Path      string
	ResumePDF string
}

type LogConfig struct {
	Level string
}

type RateLimitConfig struct {
	RequestsPerMinute int
	Burst             int
}

func defaults() Config {
	dataDir := defaultDataDir()
	return Config{
		Server: ServerConfig{
			Port: 4100,
		},
		LLM: LLMConfig{
			Provider:      "cloud",
			BaseURL:       "https://api.groq.com/openai/v1",
			Model:         "llama-3.1-8b-instant",
			AnalysisModel: "llama-3.3-70b-versatile",
		},
		Ollama: OllamaConfig{
			BaseURL:    "http://localhost:11434",
			ChatModel:  "llama3.1",
			EmbedModel: "nomic-embed-text",
		},
		Index: IndexConfig{
			Backend:    "chromem",
			Collection: "twin",
			QdrantHost: "localhost",
			QdrantPort: 6334,
		},
		Storage: StorageConfig{
			DataDir: dataDir,
		},
		Pipeline: PipelineConfig{
			TopK:             3,
			RelevanceFloor:   0.5,
			MaxContextTokens: 2000,
			Timezone:         "Australia/Sydney",
		},
		Log: LogConfig{
			Level: "info",
		},
		RateLimit: RateLimitConfig{
			RequestsPerMinute: 60,
			Burst:             10,
		},
	}
}

// Load reads configuration from the JSON config file, environment variables,
// and the local secrets file.
//
// The config file lives at $XDG_CONFIG_HOME/twind/config.json. Environment
// variables (TWIND_*) override file values. Secrets (API keys) are never read
// from the config file.
func Load() (Config, error) {
	return loadWith(newPlatformBackend(), secretsReader{})
}

// keychain abstracts secret lookup for testing.
type keychain interface {
	Get(service, account string) (string, error)
}

func loadWith(b ConfigBackend, kc keychain) (Config, error) {
	cfg := defaults()

	if err := applyBackend(&cfg, b); err != nil {
		return Config{}, err
	}

	applyEnvOverrides(&cfg)

	if cfg.LLM.APIKey == "" {
		if key, err := kc.Get("twind", "llm_api_key"); err == nil && key != "" {
			cfg.LLM.APIKey = key
		}
	}

	if cfg.Profile.Path == "" {
		cfg.Profile.Path = filepath.Join(cfg.Storage.DataDir, "profile.json")
	}

	if err := cfg.validate(); err != nil {
		return Config{}, err
	}
	return cfg, nil
}

func (c Config) validate() error {
	switch c.LLM.Provider {
	case "cloud":
		if c.LLM.APIKey == "" {
			return fmt.Errorf("missing required config: LLM API key. " +
				"Set it via environment variable TWIND_LLM_API_KEY or the secrets file (service: twind, account: llm_api_key)")
		}
	case "ollama":
	default:
		return fmt.Errorf("invalid llm.provider %q: want cloud or ollama", c.LLM.Provider)
	}

	switch c.Index.Backend {
	case "chromem", "qdrant":
	default:
		return fmt.Errorf("invalid index.backend %q: want chromem or qdrant", c.Index.Backend)
	}

	if c.Pipeline.RelevanceFloor < 0 || c.Pipeline.RelevanceFloor > 1 {
		return fmt.Errorf("pipeline.relevance_floor must be within [0,1], got %v", c.Pipeline.RelevanceFloor)
	}
	return nil
}

func defaultDataDir() string {
	dir := os.Getenv("XDG_DATA_HOME")
	if dir == "" {
		if home, err := os.UserHomeDir(); err == nil {
			dir = filepath.Join(home, ".local", "share")
		} else {
			return "twind-data"
		}
	}
	return filepath.Join(dir, "twind")
}
