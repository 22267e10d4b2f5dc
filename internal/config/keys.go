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
		key: "server.port", typ: kInt, env: "SVERKA_SERVER_PORT",
		apply:   func(cfg *Config, v any) { cfg.Server.Port = v.(int) },
		extract: func(cfg Config) any { return cfg.Server.Port },
	},
	{
		key: "server.api_token", typ: kString, env: "SVERKA_API_TOKEN",
		secret: true,
		apply:   func(cfg *Config, v any) { cfg.Server.APIToken = v.(string) },
		extract: func(cfg Config) any { return cfg.Server.APIToken },
	},
	{
		key: "ollama.base_url", typ: kString, env: "SVERKA_OLLAMA_BASE_URL",
		apply:   func(cfg *Config, v any) { cfg.Ollama.BaseURL = v.(string) },
		extract: func(cfg Config) any { return cfg.Ollama.BaseURL },
	},
	{
		key: "ollama.chat_model", typ: kString, env: "SVERKA_OLLAMA_CHAT_MODEL",
		apply:   func(cfg *Config, v any) { cfg.Ollama.ChatModel = v.(string) },
		extract: func(cfg Config) any { return cfg.Ollama.ChatModel },
	},
	{
		key: "ollama.embed_model", typ: kString, env: "SVERKA_OLLAMA_EMBED_MODEL",
		apply:   func(cfg *Config, v any) { cfg.Ollama.EmbedModel = v.(string) },
		extract: func(cfg Config) any { return cfg.Ollama.EmbedModel },
	},
	{
		key: "ollama.temperature", typ: kFloat, env: "SVERKA_OLLAMA_TEMPERATURE",
		apply:   func(cfg *Config, v any) { cfg.Ollama.Temperature = v.(float64) },
		extract: func(cfg Config) any { return cfg.Ollama.Temperature },
	},
	{
		key: "ollama.top_p", typ: kFloat, env: "SVERKA_OLLAMA_TOP_P",
		apply:   func(cfg *Config, v any) { cfg.Ollama.TopP = v.(float64) },
		extract: func(cfg Config) any { return cfg.Ollama.TopP },
	},
	{
		key: "ollama.repeat_penalty", typ: kFloat, env: "SVERKA_OLLAMA_REPEAT_PENALTY",
		apply:   func(cfg *Config, v any) { cfg.Ollama.RepeatPenalty = v.(float64) },
		extract: func(cfg Config) any { return cfg.Ollama.RepeatPenalty },
	},
	{
		key: "governor.max_concurrent", typ: kInt, env: "SVERKA_MAX_CONCURRENT",
		apply:   func(cfg *Config, v any) { cfg.Governor.MaxConcurrent = v.(int) },
		extract: func(cfg Config) any { return cfg.Governor.MaxConcurrent },
	},
	{
		key: "governor.request_delay_seconds", typ: kFloat, env: "SVERKA_REQUEST_DELAY_SECONDS",
		apply:   func(cfg *Config, v any) { cfg.Governor.RequestDelaySeconds = v.(float64) },
		extract: func(cfg Config) any { return cfg.Governor.RequestDelaySeconds },
	},
	{
		key: "governor.request_timeout_seconds", typ: kFloat, env: "SVERKA_REQUEST_TIMEOUT_SECONDS",
		apply:   func(cfg *Config, v any) { cfg.Governor.RequestTimeoutSeconds = v.(float64) },
		extract: func(cfg Config) any { return cfg.Governor.RequestTimeoutSeconds },
	},
	{
		key: "retrieval.top_k", typ: kInt, env: "SVERKA_RETRIEVAL_TOP_K",
		apply:   func(cfg *Config, v any) { cfg.Retrieval.TopK = v.(int) },
		extract: func(cfg Config) any { return cfg.Retrieval.TopK },
	},
	{
		key: "retrieval.chunk_size", typ: kInt, env: "SVERKA_RETRIEVAL_CHUNK_SIZE",
		apply:   func(cfg *Config, v any) { cfg.Retrieval.ChunkSize = v.(int) },
		extract: func(cfg Config) any { return cfg.Retrieval.ChunkSize },
	},
	{
		key: "retrieval.chunk_overlap", typ: kInt, env: "SVERKA_RETRIEVAL_CHUNK_OVERLAP",
		apply:   func(cfg *Config, v any) { cfg.Retrieval.ChunkOverlap = v.(int) },
		extract: func(cfg Config) any { return cfg.Retrieval.ChunkOverlap },
	},
	{
		key: "clustering.distance_threshold", typ: kFloat, env: "SVERKA_DISTANCE_THRESHOLD",
		apply:   func(cfg *Config, v any) { cfg.Clustering.DistanceThreshold = v.(float64) },
		extract: func(cfg Config) any { return cfg.Clustering.DistanceThreshold },
	},
	{
		key: "clustering.max_per_synthesis", typ: kInt, env: "SVERKA_MAX_PER_SYNTHESIS",
		apply:   func(cfg *Config, v any) { cfg.Clustering.MaxPerSynthesis = v.(int) },
		extract: func(cfg Config) any { return cfg.Clustering.MaxPerSynthesis },
	},
	{
		key: "classification.confidence_threshold", typ: kFloat, env: "SVERKA_CONFIDENCE_THRESHOLD",
		apply:   func(cfg *Config, v any) { cfg.Classification.ConfidenceThreshold = v.(float64) },
		extract: func(cfg Config) any { return cfg.Classification.ConfidenceThreshold },
	},
	{
		key: "classification.taxonomy_path", typ: kString, env: "SVERKA_TAXONOMY_PATH",
		apply:   func(cfg *Config, v any) { cfg.Classification.TaxonomyPath = v.(string) },
		extract: func(cfg Config) any { return cfg.Classification.TaxonomyPath },
	},
	{
		key: "storage.data_dir", typ: kString, env: "SVERKA_STORAGE_DATA_DIR",
		apply:   func(cfg *Config, v any) { cfg.Storage.DataDir = v.(string) },
		extract: func(cfg Config) any { return cfg.Storage.DataDir },
	},
	{
		key: "log.level", typ: kString, env: "SVERKA_LOG_LEVEL",
		apply:   func(cfg *Config, v any) { cfg.Log.Level = v.(string) },
		extract: func(cfg Config) any { return cfg.Log.Level },
	},
	{
		key: "log.format", typ: kString, env: "SVERKA_LOG_FORMAT",
		apply:   func(cfg *Config, v any) { cfg.Log.Format = v.(string) },
		extract: func(cfg Config) any { return cfg.Log.Format },
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
