package engine

// DetectConfig holds parameters for backend detection.
type DetectConfig struct {
	OllamaBaseURL string
	Sampling      SamplingOptions
}

// Detect returns the inference backend for the given configuration.
// Ollama is the only backend.
func Detect(cfg DetectConfig) (Engine, error) {
	return NewOllamaEngine(cfg.OllamaBaseURL, cfg.Sampling), nil
}
