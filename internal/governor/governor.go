// Package governor bounds and paces calls to the language model backend.
//
// A Governor holds a fixed number of permits. Each call acquires a permit,
// runs under the configured request timeout, and after it returns keeps the
// permit for the pacing delay before releasing it. With N permits and delay D
// there are never more than N calls in flight, and each permit starts at most
// one call per D plus the call duration.
package governor

import (
	"context"
	"errors"
	"fmt"
	"time"

	"golang.org/x/sync/semaphore"

	"github.com/kalambet/sverka/internal/engine"
	"github.com/kalambet/sverka/internal/metrics"
)

// ErrTimeout is returned when a call exceeds the request timeout.
var ErrTimeout = errors.New("language model request timed out")

// Backend is the subset of engine.Engine the governor fronts.
type Backend interface {
	Chat(ctx context.Context, model string, messages []engine.Message, jsonSchema *engine.Schema) (string, error)
}

// Config sets the permit count, pacing delay and per-call timeout.
// A zero Timeout disables the deadline.
type Config struct {
	MaxConcurrent int
	Delay         time.Duration
	Timeout       time.Duration
}

// Governor admits work under a fixed permit count with post-call pacing.
type Governor struct {
	backend Backend
	sem     *semaphore.Weighted
	cfg     Config
	metrics *metrics.Metrics
}

// New creates a Governor. backend may be nil when only Do is used.
func New(backend Backend, cfg Config, m *metrics.Metrics) *Governor {
	if cfg.MaxConcurrent < 1 {
		cfg.MaxConcurrent = 1
	}
	return &Governor{
		backend: backend,
		sem:     semaphore.NewWeighted(int64(cfg.MaxConcurrent)),
		cfg:     cfg,
		metrics: m,
	}
}

// Do runs fn while holding a permit. fn receives a context carrying the
// request timeout. The permit is released only after the pacing delay, or
// earlier if ctx is cancelled.
func (g *Governor) Do(ctx context.Context, fn func(ctx context.Context) error) error {
	if err := g.sem.Acquire(ctx, 1); err != nil {
		return fmt.Errorf("waiting for governor permit: %w", err)
	}
	defer g.sem.Release(1)

	callCtx, cancel := ctx, context.CancelFunc(func() {})
	if g.cfg.Timeout > 0 {
		callCtx, cancel = context.WithTimeout(ctx, g.cfg.Timeout)
	}
	err := fn(callCtx)
	timedOut := g.cfg.Timeout > 0 && errors.Is(callCtx.Err(), context.DeadlineExceeded) && ctx.Err() == nil
	cancel()

	g.pace(ctx)

	if timedOut {
		return fmt.Errorf("%w after %s", ErrTimeout, g.cfg.Timeout)
	}
	return err
}

func (g *Governor) pace(ctx context.Context) {
	if g.cfg.Delay <= 0 {
		return
	}
	t := time.NewTimer(g.cfg.Delay)
	defer t.Stop()
	select {
	case <-t.C:
	case <-ctx.Done():
	}
}

// Chat forwards a chat request to the backend under the governor.
func (g *Governor) Chat(ctx context.Context, model string, messages []engine.Message, jsonSchema *engine.Schema) (string, error) {
	if g.backend == nil {
		return "", errors.New("governor has no backend")
	}
	var out string
	err := g.Do(ctx, func(callCtx context.Context) error {
		g.metrics.RequestStarted()
		start := time.Now()
		var err error
		out, err = g.backend.Chat(callCtx, model, messages, jsonSchema)
		g.metrics.RequestFinished(outcome(callCtx, err), time.Since(start))
		return err
	})
	if err != nil {
		return "", err
	}
	return out, nil
}

func outcome(ctx context.Context, err error) string {
	switch {
	case err == nil:
		return metrics.OutcomeOK
	case errors.Is(ctx.Err(), context.DeadlineExceeded):
		return metrics.OutcomeTimeout
	default:
		return metrics.OutcomeError
	}
}
