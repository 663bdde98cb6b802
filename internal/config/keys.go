package config

import (
	"fmt"
	"os"
	"strconv"
)

type keyType int

const (
	kString keyType = iota
	kInt
	kBool
	kFloat
)

type keySpec struct {
	key     string
	typ     keyType
	env     string
	secret  bool
	apply   func(cfg *Config, v any)
	extract func(cfg Config) any
}

var specs = []keySpec{
	{
		key: "server.port", typ: kInt, env: "TWIND_SERVER_PORT",
		apply:   func(cfg *Config, v any) { cfg.Server.Port = v.(int) },
		extract: func(cfg Config) any { return cfg.Server.Port },
	},
	{
		key: "llm.provider", typ: kString, env: "TWIND_LLM_PROVIDER",
		apply:   func(cfg *Config, v any) { cfg.LLM.Provider = v.(string) },
		extract: func(cfg Config) any { return cfg.LLM.Provider },
	},
	{
		key: "llm.base_url", typ: kString, env: "TWIND_LLM_BASE_URL",
		apply:   func(cfg *Config, v any) { cfg.LLM.BaseURL = v.(string) },
		extract: func(cfg Config) any { return cfg.LLM.BaseURL },
	},
	{
		key: "llm.api_key", typ: kString, env: "TWIND_LLM_API_KEY",
		secret:  true,
		apply:   func(cfg *Config, v any) { cfg.LLM.APIKey = v.(string) },
		extract: func(cfg Config) any { return cfg.LLM.APIKey },
	},
	{
		key: "llm.model", typ: kString, env: "TWIND_LLM_MODEL",
		apply:   func(cfg *Config, v any) { cfg.LLM.Model = v.(string) },
		extract: func(cfg Config) any { return cfg.LLM.Model },
	},
	{
		key: "llm.analysis_model", typ: kString, env: "TWIND_LLM_ANALYSIS_MODEL",
		apply:   func(cfg *Config, v any) { cfg.LLM.AnalysisModel = v.(string) },
		extract: func(cfg Config) any { return cfg.LLM.AnalysisModel },
	},
	{
		key: "ollama.base_url", typ: kString, env: "TWIND_OLLAMA_BASE_URL",
		apply:   func(cfg *Config, v any) { cfg.Ollama.BaseURL = v.(string) },
		extract: func(cfg Config) any { return cfg.Ollama.BaseURL },
	},
	{
		key: "ollama.chat_model", typ: kString, env: "TWIND_OLLAMA_CHAT_MODEL",
		apply:   func(cfg *Config, v any) { cfg.Ollama.ChatModel = v.(string) },
		extract: func(cfg Config) any { return cfg.Ollama.ChatModel },
	},
	{
		key: "ollama.embed_model", typ: kString, env: "TWIND_OLLAMA_EMBED_MODEL",
		apply:   func(cfg *Config, v any) { cfg.Ollama.EmbedModel = v.(string) },
		extract: func(cfg Config) any { return cfg.Ollama.EmbedModel },
	},
	{
		key: "index.backend", typ: kString, env: "TWIND_INDEX_BACKEND",
		apply:   func(cfg *Config, v any) { cfg.Index.Backend = v.(string) },
		extract: func(cfg Config) any { return cfg.Index.Backend },
	},
	{
		key: "index.collection", typ: kString, env: "TWIND_INDEX_COLLECTION",
		apply:   func(cfg *Config, v any) { cfg.Index.Collection = v.(string) },
		extract: func(cfg Config) any { return cfg.Index.Collection },
	},
	{
		key: "index.qdrant_host", typ: kString, env: "TWIND_INDEX_QDRANT_HOST",
		apply:   func(cfg *Config, v any) { cfg.Index.QdrantHost = v.(string) },
		extract: func(cfg Config) any { return cfg.Index.QdrantHost },
	},
	{
		key: "index.qdrant_port", typ: kInt, env: "TWIND_INDEX_QDRANT_PORT",
		apply:   func(cfg *Config, v any) { cfg.Index.QdrantPort = v.(int) },
		extract: func(cfg Config) any { return cfg.Index.QdrantPort },
	},
	{
		key: "index.qdrant_api_key", typ: kString, env: "TWIND_INDEX_QDRANT_API_KEY",
		secret:  true,
		apply:   func(cfg *Config, v any) { cfg.Index.QdrantAPIKey = v.(string) },
		extract: func(cfg Config) any { return cfg.Index.QdrantAPIKey },
	},
	{
		key: "index.qdrant_tls", typ: kBool, env: "TWIND_INDEX_QDRANT_TLS",
		apply:   func(cfg *Config, v any) { cfg.Index.QdrantTLS = v.(bool) },
		extract: func(cfg Config) any { return cfg.Index.QdrantTLS },
	},
	{
		key: "storage.data_dir", typ: kString, env: "TWIND_STORAGE_DATA_DIR",
		apply:   func(cfg *Config, v any) { cfg.Storage.DataDir = v.(string) },
		extract: func(cfg Config) any { return cfg.Storage.DataDir },
	},
	{
		key: "pipeline.top_k", typ: kInt, env: "TWIND_PIPELINE_TOP_K",
		apply:   func(cfg *Config, v any) { cfg.Pipeline.TopK = v.(int) },
		extract: func(cfg Config) any { return cfg.Pipeline.TopK },
	},
	{
		key: "pipeline.relevance_floor", typ: kFloat, env: "TWIND_PIPELINE_RELEVANCE_FLOOR",
		apply:   func(cfg *Config, v any) { cfg.Pipeline.RelevanceFloor = v.(float64) },
		extract: func(cfg Config) any { return cfg.Pipeline.RelevanceFloor },
	},
	{
		key: "pipeline.max_context_tokens", typ: kInt, env: "TWIND_PIPELINE_MAX_CONTEXT_TOKENS",
		apply:   func(cfg *Config, v any) { cfg.Pipeline.MaxContextTokens = v.(int) },
		extract: func(cfg Config) any { return cfg.Pipeline.MaxContextTokens },
	},
	{
		key: "pipeline.timezone", typ: kString, env: "TWIND_PIPELINE_TIMEZONE",
		apply:   func(cfg *Config, v any) { cfg.Pipeline.Timezone = v.(string) },
		extract: func(cfg Config) any { return cfg.Pipeline.Timezone },
	},
	{
		key: "profile.name", typ: kString, env: "TWIND_PROFILE_NAME",
		apply:   func(cfg *Config, v any) { cfg.Profile.Name = v.(string) },
		extract: func(cfg Config) any { return cfg.Profile.Name },
	},
	{
		key: "profile.location", typ: kString, env: "TWIND_PROFILE_LOCATION",
		apply:   func(cfg *Config, v any) { cfg.Profile.Location = v.(string) },
		extract: func(cfg Config) any { return cfg.Profile.Location },
	},
	{
		key: "profile.path", typ: kString, env: "TWIND_PROFILE_PATH",
		apply:   func(cfg *Config, v any) { cfg.Profile.Path = v.(string) },
		extract: func(cfg Config) any { return cfg.Profile.Path },
	},
	{
		key: "profile.resume_pdf", typ: kString, env: "TWIND_PROFILE_RESUME_PDF",
		apply:   func(cfg *Config, v any) { cfg.Profile.ResumePDF = v.(string) },
		extract: func(cfg Config) any { return cfg.Profile.ResumePDF },
	},
	{
		key: "log.level", typ: kString, env: "TWIND_LOG_LEVEL",
		apply:   func(cfg *Config, v any) { cfg.Log.Level = v.(string) },
		extract: func(cfg Config) any { return cfg.Log.Level },
	},
	{
		key: "ratelimit.requests_per_minute", typ: kInt, env: "TWIND_RATELIMIT_REQUESTS_PER_MINUTE",
		apply:   func(cfg *Config, v any) { cfg.RateLimit.RequestsPerMinute = v.(int) },
		extract: func(cfg Config) any { return cfg.RateLimit.RequestsPerMinute },
	},
	{
		key: "ratelimit.burst", typ: kInt, env: "TWIND_RATELIMIT_BURST",
		apply:   func(cfg *Config, v any) { cfg.RateLimit.Burst = v.(int) },
		extract: func(cfg Config) any { return cfg.RateLimit.Burst },
	},
}

func applyBackend(cfg *Config, b ConfigBackend) error {
	for _, s := range specs {
		if s.secret {
			continue
		}
		switch s.typ {
		case kString:
			v, ok, err := b.GetString(s.key)
			if err != nil {
				return fmt.Errorf("reading %s: %w", s.key, err)
			}
			if ok {
				s.apply(cfg, v)
			}
		case kInt:
			v, ok, err := b.GetInt(s.key)
			if err != nil {
				return fmt.Errorf("reading %s: %w", s.key, err)
			}
			if ok {
				s.apply(cfg, v)
			}
		case kBool:
			v, ok, err := b.GetString(s.key)
			if err != nil {
				return fmt.Errorf("reading %s: %w", s.key, err)
			}
			if ok && v != "" {
				if bv, err := strconv.ParseBool(v); err == nil {
					s.apply(cfg, bv)
				} else {
					fmt.Fprintf(os.Stderr, "[WARN] could not parse bool from config key %s=%q: %v. Using default value.\n", s.key, v, err)
				}
			}
		case kFloat:
			v, ok, err := b.GetString(s.key)
			if err != nil {
				return fmt.Errorf("reading %s: %w", s.key, err)
			}
			if ok && v != "" {
				if f, err := strconv.ParseFloat(v, 64); err == nil {
					s.apply(cfg, f)
				} else {
					fmt.Fprintf(os.Stderr, "[WARN] could not parse float from config key %s=%q: %v. Using default value.\n", s.key, v, err)
				}
			}
		}
	}
	return nil
}

func applyEnvOverrides(cfg *Config) {
	for _, s := range specs {
		if s.env == "" {
			continue
		}
		raw := os.Getenv(s.env)
		if raw == "" {
			continue
		}
		switch s.typ {
		case kString:
			s.apply(cfg, raw)
		case kInt:
			if i, err := strconv.Atoi(raw); err == nil {
				s.apply(cfg, i)
			} else {
				fmt.Fprintf(os.Stderr, "[WARN] could not parse integer from env var %s=%q: %v. Using default value.\n", s.env, raw, err)
			}
		case kBool:
			if b, err := strconv.ParseBool(raw); err == nil {
				s.apply(cfg, b)
			} else {
				fmt.Fprintf(os.Stderr, "[WARN] could not parse bool from env var %s=%q: %v. Using default value.\n", s.env, raw, err)
			}
		case kFloat:
			if f, err := strconv.ParseFloat(raw, 64); err == nil {
				s.apply(cfg, f)
			} else {
				fmt.Fprintf(os.Stderr, "[WARN] could not parse float from env var %s=%q: %v. Using default value.\n", s.env, raw, err)
			}
		}
	}
}
