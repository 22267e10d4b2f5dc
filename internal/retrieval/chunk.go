package retrieval

import "errors"

// ErrNoDocuments is returned when an index would be built from zero chunks.
var ErrNoDocuments = errors.New("no documents to index")

// Chunk is a bounded unit of source text with provenance. Page and Slide are
// 1-based; zero means the source has no such notion.
type Chunk struct {
	Content  string `json:"content"`
	SourceID string `json:"source_id"`
	Page     int    `json:"page,omitempty"`
	Slide    int    `json:"slide,omitempty"`
}

// ScoredChunk is a retrieved chunk with its merged relevance score in [0, 1].
type ScoredChunk struct {
	Chunk
	Score float64 `json:"score"`
}
