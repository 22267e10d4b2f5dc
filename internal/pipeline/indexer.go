package pipeline

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"path/filepath"
	"sync"
	"time"

	"golang.org/x/sync/singleflight"

	"github.com/kalambet/sverka/internal/corpus"
	"github.com/kalambet/sverka/internal/retrieval"
	"github.com/kalambet/sverka/internal/storage"
)

// IndexStore persists built project indexes.
type IndexStore interface {
	SaveIndex(ctx context.Context, project, docsDir string, chunks []retrieval.Chunk, vectors [][]float32) error
	LoadIndex(ctx context.Context, project, docsDir string) ([]retrieval.Chunk, [][]float32, error)
}

// Indexer provides one hybrid index per project and documents folder: from
// memory, then from the store, and otherwise built from the folder and saved.
type Indexer struct {
	embedder retrieval.CorpusEmbedder
	chunker  *corpus.Chunker
	store    IndexStore
	group    singleflight.Group

	mu    sync.Mutex
	cache map[string]*retrieval.HybridIndex
}

// NewIndexer returns an Indexer. store may be nil to keep indexes in memory
// only.
func NewIndexer(emb retrieval.CorpusEmbedder, chunker *corpus.Chunker, store IndexStore) *Indexer {
	return &Indexer{
		embedder: emb,
		chunker:  chunker,
		store:    store,
		cache:    make(map[string]*retrieval.HybridIndex),
	}
}

// Index returns the index of project built from docsDir, building it when
// no cached or stored index of that folder exists. An empty folder fails
// with retrieval.ErrNoDocuments. Concurrent calls for one project and
// folder share a load.
func (x *Indexer) Index(ctx context.Context, project, docsDir string) (*retrieval.HybridIndex, error) {
	dir, err := absDir(docsDir)
	if err != nil {
		return nil, err
	}
	key := cacheKey(project, dir)

	x.mu.Lock()
	ix, ok := x.cache[key]
	x.mu.Unlock()
	if ok {
		return ix, nil
	}

	res, err, _ := x.group.Do(key, func() (any, error) {
		return x.load(ctx, project, dir)
	})
	if err != nil {
		return nil, err
	}
	return res.(*retrieval.HybridIndex), nil
}

func (x *Indexer) load(ctx context.Context, project, docsDir string) (*retrieval.HybridIndex, error) {
	if x.store != nil {
		chunks, vectors, err := x.store.LoadIndex(ctx, project, docsDir)
		switch {
		case err == nil:
			ix, err := retrieval.Restore(chunks, vectors, x.embedder)
			if err != nil {
				return nil, fmt.Errorf("restoring index %q: %w", project, err)
			}
			slog.Info("index loaded", "project", project, "docs", docsDir, "chunks", ix.Len())
			x.remember(project, docsDir, ix)
			return ix, nil
		case !errors.Is(err, storage.ErrNotFound):
			slog.Warn("stored index unreadable, rebuilding", "project", project, "error", err)
		}
	}
	return x.Rebuild(ctx, project, docsDir)
}

// Rebuild builds the index of project from docsDir, replacing any cached
// or stored index.
func (x *Indexer) Rebuild(ctx context.Context, project, docsDir string) (*retrieval.HybridIndex, error) {
	docsDir, err := absDir(docsDir)
	if err != nil {
		return nil, err
	}
	start := time.Now()
	units, err := corpus.Load(docsDir)
	if err != nil {
		return nil, err
	}
	chunks := x.chunker.Split(units)
	ix, err := retrieval.Build(ctx, chunks, x.embedder)
	if err != nil {
		return nil, fmt.Errorf("project %q: %w", project, err)
	}

	if x.store != nil {
		if err := x.store.SaveIndex(ctx, project, docsDir, ix.Chunks(), ix.Vectors()); err != nil {
			slog.Warn("index not persisted", "project", project, "error", err)
		}
	}
	slog.Info("index built", "project", project, "units", len(units), "chunks", ix.Len(), "duration", time.Since(start))
	x.remember(project, docsDir, ix)
	return ix, nil
}

func (x *Indexer) remember(project, docsDir string, ix *retrieval.HybridIndex) {
	x.mu.Lock()
	x.cache[cacheKey(project, docsDir)] = ix
	x.mu.Unlock()
}

func cacheKey(project, docsDir string) string {
	return project + "\x00" + docsDir
}

func absDir(docsDir string) (string, error) {
	dir, err := filepath.Abs(docsDir)
	if err != nil {
		return "", fmt.Errorf("resolving documents folder %q: %w", docsDir, err)
	}
	return dir, nil
}
