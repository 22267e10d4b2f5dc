package config

import (
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"
)

// memBackend is an in-memory ConfigBackend.
type memBackend struct {
	strs map[string]string
	ints map[string]int
}

func newMemBackend() *memBackend {
	return &memBackend{strs: map[string]string{}, ints: map[string]int{}}
}

func (m *memBackend) GetString(key string) (string, bool, error) {
	v, ok := m.strs[key]
	return v, ok, nil
}

func (m *memBackend) GetInt(key string) (int, bool, error) {
	v, ok := m.ints[key]
	return v, ok, nil
}

func (m *memBackend) SetString(key, val string) error { m.strs[key] = val; return nil }
func (m *memBackend) SetInt(key string, val int) error { m.ints[key] = val; return nil }

func (m *memBackend) Delete(key string) error {
	delete(m.strs, key)
	delete(m.ints, key)
	return nil
}

func clearEnv(t *testing.T) {
	t.Helper()
	for _, s := range specs {
		t.Setenv(s.env, "")
	}
}

func TestLoad_Defaults(t *testing.T) {
	clearEnv(t)
	cfg, err := loadWith(newMemBackend())
	if err != nil {
		t.Fatalf("loadWith: %v", err)
	}
	if cfg.Ollama.ChatModel != "qwen3:8b" || cfg.Ollama.EmbedModel != "bge-m3" {
		t.Errorf("models = %q/%q", cfg.Ollama.ChatModel, cfg.Ollama.EmbedModel)
	}
	if cfg.Governor.MaxConcurrent != 1 {
		t.Errorf("max_concurrent = %d, want 1", cfg.Governor.MaxConcurrent)
	}
	if cfg.Governor.RequestDelay() != 500*time.Millisecond {
		t.Errorf("request delay = %v, want 500ms", cfg.Governor.RequestDelay())
	}
	if cfg.Governor.RequestTimeout() != 300*time.Second {
		t.Errorf("request timeout = %v, want 300s", cfg.Governor.RequestTimeout())
	}
	if cfg.Retrieval.TopK != 5 || cfg.Retrieval.ChunkSize != 700 || cfg.Retrieval.ChunkOverlap != 150 {
		t.Errorf("retrieval = %+v", cfg.Retrieval)
	}
	if cfg.Clustering.DistanceThreshold != 0.18 || cfg.Clustering.MaxPerSynthesis != 10 {
		t.Errorf("clustering = %+v", cfg.Clustering)
	}
	if cfg.Classification.ConfidenceThreshold != 0.75 {
		t.Errorf("confidence threshold = %v", cfg.Classification.ConfidenceThreshold)
	}
	want := filepath.Join(cfg.Storage.DataDir, "taxonomy.json")
	if cfg.Classification.TaxonomyPath != want {
		t.Errorf("taxonomy path = %q, want %q", cfg.Classification.TaxonomyPath, want)
	}
}

func TestLoad_BackendValues(t *testing.T) {
	clearEnv(t)
	b := newMemBackend()
	b.ints["retrieval.top_k"] = 8
	b.strs["clustering.distance_threshold"] = "0.25"
	b.strs["storage.data_dir"] = "/tmp/sverka-test"
	b.strs["server.api_token"] = "ignored"

	cfg, err := loadWith(b)
	if err != nil {
		t.Fatalf("loadWith: %v", err)
	}
	if cfg.Retrieval.TopK != 8 {
		t.Errorf("top_k = %d, want 8", cfg.Retrieval.TopK)
	}
	if cfg.Clustering.DistanceThreshold != 0.25 {
		t.Errorf("distance threshold = %v, want 0.25", cfg.Clustering.DistanceThreshold)
	}
	if cfg.Classification.TaxonomyPath != filepath.Join("/tmp/sverka-test", "taxonomy.json") {
		t.Errorf("taxonomy path = %q", cfg.Classification.TaxonomyPath)
	}
	if cfg.Server.APIToken != "" {
		t.Error("api token read from the config file, want environment only")
	}
}

func TestLoad_EnvOverridesBackend(t *testing.T) {
	clearEnv(t)
	b := newMemBackend()
	b.ints["governor.max_concurrent"] = 2
	t.Setenv("SVERKA_MAX_CONCURRENT", "4")
	t.Setenv("SVERKA_REQUEST_DELAY_SECONDS", "0")
	t.Setenv("SVERKA_API_TOKEN", "s3cret")
	t.Setenv("SVERKA_RETRIEVAL_TOP_K", "not-a-number")

	cfg, err := loadWith(b)
	if err != nil {
		t.Fatalf("loadWith: %v", err)
	}
	if cfg.Governor.MaxConcurrent != 4 {
		t.Errorf("max_concurrent = %d, want 4", cfg.Governor.MaxConcurrent)
	}
	if cfg.Governor.RequestDelay() != 0 {
		t.Errorf("request delay = %v, want 0", cfg.Governor.RequestDelay())
	}
	if cfg.Server.APIToken != "s3cret" {
		t.Errorf("api token = %q", cfg.Server.APIToken)
	}
	if cfg.Retrieval.TopK != 5 {
		t.Errorf("top_k = %d, want default 5 on unparsable env", cfg.Retrieval.TopK)
	}
}

func TestLoad_Validation(t *testing.T) {
	tests := []struct {
		name string
		env  map[string]string
		key  string
	}{
		{"zero concurrency", map[string]string{"SVERKA_MAX_CONCURRENT": "0"}, "governor.max_concurrent"},
		{"negative delay", map[string]string{"SVERKA_REQUEST_DELAY_SECONDS": "-1"}, "governor.request_delay_seconds"},
		{"overlap too large", map[string]string{"SVERKA_RETRIEVAL_CHUNK_OVERLAP": "700"}, "retrieval.chunk_overlap"},
		{"threshold above one", map[string]string{"SVERKA_CONFIDENCE_THRESHOLD": "1.5"}, "classification.confidence_threshold"},
		{"unknown log level", map[string]string{"SVERKA_LOG_LEVEL": "verbose"}, "log.level"},
		{"unknown log format", map[string]string{"SVERKA_LOG_FORMAT": "xml"}, "log.format"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			clearEnv(t)
			for k, v := range tt.env {
				t.Setenv(k, v)
			}
			_, err := loadWith(newMemBackend())
			if err == nil {
				t.Fatal("expected validation error")
			}
			if !strings.Contains(err.Error(), tt.key) {
				t.Errorf("error %q does not name %s", err, tt.key)
			}
		})
	}
}

func TestFileBackend_RoundTrip(t *testing.T) {
	clearEnv(t)
	path := filepath.Join(t.TempDir(), "sverka", "config.json")
	b := openFileBackend(path)

	if err := setKey(b, "retrieval.top_k", "7"); err != nil {
		t.Fatalf("setKey int: %v", err)
	}
	if err := setKey(b, "ollama.temperature", "0.4"); err != nil {
		t.Fatalf("setKey float: %v", err)
	}
	if err := setKey(b, "ollama.chat_model", "llama3"); err != nil {
		t.Fatalf("setKey string: %v", err)
	}
	if _, err := os.Stat(path); err != nil {
		t.Fatalf("config file not written: %v", err)
	}

	cfg, err := loadWith(openFileBackend(path))
	if err != nil {
		t.Fatalf("loadWith: %v", err)
	}
	if cfg.Retrieval.TopK != 7 || cfg.Ollama.Temperature != 0.4 || cfg.Ollama.ChatModel != "llama3" {
		t.Errorf("reloaded config = %+v / %+v", cfg.Retrieval, cfg.Ollama)
	}
}

func TestSetKey_Rejects(t *testing.T) {
	b := newMemBackend()
	tests := []struct {
		key, value string
	}{
		{"server.api_token", "x"},
		{"nope.key", "1"},
		{"retrieval.top_k", "many"},
		{"ollama.top_p", "high"},
	}
	for _, tt := range tests {
		if err := setKey(b, tt.key, tt.value); err == nil {
			t.Errorf("setKey(%q, %q) = nil, want error", tt.key, tt.value)
		}
	}
}

func TestShowAll_HidesSecrets(t *testing.T) {
	cfg := defaults()
	cfg.Server.APIToken = "s3cret"
	for _, k := range ShowAll(cfg) {
		if k.Key == "server.api_token" || strings.Contains(k.Value, "s3cret") {
			t.Errorf("secret exposed: %+v", k)
		}
	}
	if len(ValidKeys()) != len(specs)-1 {
		t.Errorf("ValidKeys() = %d keys, want %d", len(ValidKeys()), len(specs)-1)
	}
}
