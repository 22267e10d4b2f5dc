package main

import (
	"context"
	"fmt"
	"os"

	"github.com/kalambet/sverka/internal/api"
	"github.com/kalambet/sverka/internal/config"
	"github.com/kalambet/sverka/internal/corpus"
	"github.com/kalambet/sverka/internal/engine"
	"github.com/kalambet/sverka/internal/governor"
	"github.com/kalambet/sverka/internal/metrics"
	"github.com/kalambet/sverka/internal/pipeline"
	"github.com/kalambet/sverka/internal/retrieval"
	"github.com/kalambet/sverka/internal/storage"
	"github.com/kalambet/sverka/internal/verify"
)

// app is the wired set of components shared by all commands.
type app struct {
	cfg       config.Config
	engine    engine.Engine
	store     *storage.Store
	metrics   *metrics.Metrics
	indexer   *pipeline.Indexer
	checklist *pipeline.Checklist
	remarks   *pipeline.Remarks
}

func newEngine(cfg config.Config) (engine.Engine, error) {
	eng, err := engine.Detect(engine.DetectConfig{
		OllamaBaseURL: cfg.Ollama.BaseURL,
		Sampling: engine.SamplingOptions{
			Temperature:   cfg.Ollama.Temperature,
			TopP:          cfg.Ollama.TopP,
			RepeatPenalty: cfg.Ollama.RepeatPenalty,
		},
	})
	if err != nil {
		return nil, fmt.Errorf("detecting inference engine: %w", err)
	}
	return eng, nil
}

// newApp wires the pipelines around eng. Every chat call goes through one
// governor; criteria additionally pass through a lane that holds a slot for
// the pacing delay after each criterion.
func newApp(cfg config.Config, eng engine.Engine, m *metrics.Metrics) (*app, error) {
	store, err := storage.Open(cfg.Storage.DataDir)
	if err != nil {
		return nil, fmt.Errorf("opening storage: %w", err)
	}

	gov := governor.New(eng, governor.Config{
		MaxConcurrent: cfg.Governor.MaxConcurrent,
		Delay:         cfg.Governor.RequestDelay(),
		Timeout:       cfg.Governor.RequestTimeout(),
	}, m)
	lane := governor.New(nil, governor.Config{
		MaxConcurrent: cfg.Governor.MaxConcurrent,
		Delay:         cfg.Governor.RequestDelay(),
	}, nil)

	emb := retrieval.NewEmbedder(eng, cfg.Ollama.EmbedModel)
	chunker := corpus.NewChunker(
		corpus.WithSize(cfg.Retrieval.ChunkSize),
		corpus.WithOverlap(cfg.Retrieval.ChunkOverlap),
	)
	indexer := pipeline.NewIndexer(emb, chunker, store)
	verifier := verify.NewVerifier(gov, cfg.Ollama.ChatModel, cfg.Retrieval.TopK, m)

	return &app{
		cfg:       cfg,
		engine:    eng,
		store:     store,
		metrics:   m,
		indexer:   indexer,
		checklist: pipeline.NewChecklist(indexer, verifier, lane),
		remarks: pipeline.NewRemarks(pipeline.RemarksConfig{
			Chat:                gov,
			Model:               cfg.Ollama.ChatModel,
			Embedder:            emb,
			DistanceThreshold:   cfg.Clustering.DistanceThreshold,
			MaxPerSynthesis:     cfg.Clustering.MaxPerSynthesis,
			ConfidenceThreshold: cfg.Classification.ConfidenceThreshold,
			TaxonomyPath:        cfg.Classification.TaxonomyPath,
			Metrics:             m,
		}),
	}, nil
}

// openApp loads config, checks the backend and wires the app.
func openApp(ctx context.Context) (*app, error) {
	cfg, err := loadConfig()
	if err != nil {
		return nil, err
	}
	eng, err := newEngine(cfg)
	if err != nil {
		return nil, err
	}
	if err := engine.EnsureReady(ctx, eng, cfg.Ollama.ChatModel, cfg.Ollama.EmbedModel, os.Stderr); err != nil {
		return nil, err
	}
	return newApp(cfg, eng, metrics.New())
}

func (a *app) apiDeps() api.Deps {
	return api.Deps{
		Checklist: a.checklist,
		Remarks:   a.remarks,
		Metrics:   a.metrics,
		Token:     a.cfg.Server.APIToken,
	}
}

func (a *app) Close() {
	if err := a.store.Close(); err != nil {
		printWarning("closing storage: %v", err)
	}
}
