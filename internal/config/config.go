package config

import (
	"fmt"
	"path/filepath"
	"time"
)

type Config struct {
	Server         ServerConfig
	Ollama         OllamaConfig
	Governor       GovernorConfig
	Retrieval      RetrievalConfig
	Clustering     ClusteringConfig
	Classification ClassificationConfig
	Storage        StorageConfig
	Log            LogConfig
}

type ServerConfig struct {
	Port     int
	APIToken string
}

type OllamaConfig struct {
	BaseURL       string
	ChatModel     string
	EmbedModel    string
	Temperature   float64
	TopP          float64
	RepeatPenalty float64
}

type GovernorConfig struct {
	MaxConcurrent         int
	RequestDelaySeconds   float64
	RequestTimeoutSeconds float64
}

// RequestDelay is the pacing delay held after each call.
func (g GovernorConfig) RequestDelay() time.Duration { return seconds(g.RequestDelaySeconds) }

// RequestTimeout bounds every language model call.
func (g GovernorConfig) RequestTimeout() time.Duration { return seconds(g.RequestTimeoutSeconds) }

type RetrievalConfig struct {
	TopK         int
	ChunkSize    int
	ChunkOverlap int
}

type ClusteringConfig struct {
	DistanceThreshold float64
	MaxPerSynthesis   int
}

type ClassificationConfig struct {
	ConfidenceThreshold float64
	TaxonomyPath        string
}

type StorageConfig struct {
	DataDir string
}

type LogConfig struct {
	Level  string
	Format string
}

func defaults() Config {
	return Config{
		Server: ServerConfig{
			Port: 4000,
		},
		Ollama: OllamaConfig{
			BaseURL:       "http://localhost:11434",
			ChatModel:     "qwen3:8b",
			EmbedModel:    "bge-m3",
			Temperature:   0.2,
			TopP:          0.9,
			RepeatPenalty: 1.05,
		},
		Governor: GovernorConfig{
			MaxConcurrent:         1,
			RequestDelaySeconds:   0.5,
			RequestTimeoutSeconds: 300,
		},
		Retrieval: RetrievalConfig{
			TopK:         5,
			ChunkSize:    700,
			ChunkOverlap: 150,
		},
		Clustering: ClusteringConfig{
			DistanceThreshold: 0.18,
			MaxPerSynthesis:   10,
		},
		Classification: ClassificationConfig{
			ConfidenceThreshold: 0.75,
		},
		Storage: StorageConfig{
			DataDir: defaultDataDir(),
		},
		Log: LogConfig{
			Level:  "info",
			Format: "text",
		},
	}
}

// Load reads configuration from the JSON file at
// $XDG_CONFIG_HOME/sverka/config.json, then applies SVERKA_* environment
// overrides and validates the result. Secrets come from the environment
// only.
func Load() (Config, error) {
	return loadWith(newPlatformBackend())
}

func loadWith(b ConfigBackend) (Config, error) {
	cfg := defaults()

	if err := applyBackend(&cfg, b); err != nil {
		return Config{}, err
	}

	applyEnvOverrides(&cfg)

	if cfg.Classification.TaxonomyPath == "" {
		cfg.Classification.TaxonomyPath = filepath.Join(cfg.Storage.DataDir, "taxonomy.json")
	}

	if err := cfg.Validate(); err != nil {
		return Config{}, err
	}
	return cfg, nil
}

// Validate reports the first out-of-range value, naming its key.
func (c Config) Validate() error {
	switch {
	case c.Server.Port < 1 || c.Server.Port > 65535:
		return invalid("server.port", c.Server.Port, "must be a TCP port")
	case c.Ollama.BaseURL == "":
		return invalid("ollama.base_url", c.Ollama.BaseURL, "must not be empty")
	case c.Ollama.ChatModel == "":
		return invalid("ollama.chat_model", c.Ollama.ChatModel, "must not be empty")
	case c.Ollama.EmbedModel == "":
		return invalid("ollama.embed_model", c.Ollama.EmbedModel, "must not be empty")
	case c.Governor.MaxConcurrent < 1:
		return invalid("governor.max_concurrent", c.Governor.MaxConcurrent, "must be at least 1")
	case c.Governor.RequestDelaySeconds < 0:
		return invalid("governor.request_delay_seconds", c.Governor.RequestDelaySeconds, "must not be negative")
	case c.Governor.RequestTimeoutSeconds <= 0:
		return invalid("governor.request_timeout_seconds", c.Governor.RequestTimeoutSeconds, "must be positive")
	case c.Retrieval.TopK < 1:
		return invalid("retrieval.top_k", c.Retrieval.TopK, "must be at least 1")
	case c.Retrieval.ChunkSize < 1:
		return invalid("retrieval.chunk_size", c.Retrieval.ChunkSize, "must be at least 1")
	case c.Retrieval.ChunkOverlap < 0 || c.Retrieval.ChunkOverlap >= c.Retrieval.ChunkSize:
		return invalid("retrieval.chunk_overlap", c.Retrieval.ChunkOverlap, "must be below retrieval.chunk_size")
	case c.Clustering.DistanceThreshold <= 0 || c.Clustering.DistanceThreshold > 2:
		return invalid("clustering.distance_threshold", c.Clustering.DistanceThreshold, "must be in (0, 2]")
	case c.Clustering.MaxPerSynthesis < 1:
		return invalid("clustering.max_per_synthesis", c.Clustering.MaxPerSynthesis, "must be at least 1")
	case c.Classification.ConfidenceThreshold <= 0 || c.Classification.ConfidenceThreshold > 1:
		return invalid("classification.confidence_threshold", c.Classification.ConfidenceThreshold, "must be in (0, 1]")
	}
	switch c.Log.Level {
	case "debug", "info", "warn", "error":
	default:
		return invalid("log.level", c.Log.Level, "must be debug, info, warn or error")
	}
	switch c.Log.Format {
	case "text", "json":
	default:
		return invalid("log.format", c.Log.Format, "must be text or json")
	}
	return nil
}

func invalid(key string, v any, why string) error {
	return fmt.Errorf("invalid config %s=%v: %s", key, v, why)
}

func seconds(s float64) time.Duration {
	return time.Duration(s * float64(time.Second))
}
