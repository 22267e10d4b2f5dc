package storage

import (
	"errors"
	"time"
)

// ErrNotFound is returned when a requested record does not exist.
var ErrNotFound = errors.New("not found")

// IndexInfo describes a persisted project index.
type IndexInfo struct {
	Project    string
	DocsDir    string
	ChunkCount int
	Dimension  int
	BuiltAt    time.Time
}
