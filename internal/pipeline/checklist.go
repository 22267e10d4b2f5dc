// Package pipeline runs whole checklist verifications and remark batches
// on top of the retrieval, verification, clustering and classification
// components.
package pipeline

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/google/uuid"
	"golang.org/x/sync/errgroup"

	"github.com/kalambet/sverka/internal/governor"
	"github.com/kalambet/sverka/internal/retrieval"
	"github.com/kalambet/sverka/internal/verify"
)

// ErrNoCriteria is returned for a project whose checklist has no criteria.
var ErrNoCriteria = errors.New("no criteria to verify")

// Project is one unit of checklist work.
type Project struct {
	Name     string
	DocsDir  string
	Criteria []string
}

// Outcome is the result of one project in a multi-project run.
type Outcome struct {
	Project string
	Report  *VerificationReport
	Err     error
}

// Skipped reports whether the project was skipped for missing input.
func (o Outcome) Skipped() bool {
	return errors.Is(o.Err, retrieval.ErrNoDocuments) || errors.Is(o.Err, ErrNoCriteria)
}

// Checklist verifies project checklists. Criteria run in a governed lane
// that holds a slot for the configured delay after each criterion.
type Checklist struct {
	indexer  *Indexer
	verifier *verify.Verifier
	lane     *governor.Governor
}

// NewChecklist returns a Checklist. lane bounds concurrent criteria and
// paces them; it should have no timeout of its own.
func NewChecklist(indexer *Indexer, verifier *verify.Verifier, lane *governor.Governor) *Checklist {
	return &Checklist{indexer: indexer, verifier: verifier, lane: lane}
}

// Run verifies every criterion of p. It fails only when p has no criteria
// or no documents; model failures are reported inside verdicts.
func (c *Checklist) Run(ctx context.Context, p Project) (*VerificationReport, error) {
	if len(p.Criteria) == 0 {
		return nil, fmt.Errorf("project %q: %w", p.Name, ErrNoCriteria)
	}
	ix, err := c.indexer.Index(ctx, p.Name, p.DocsDir)
	if err != nil {
		return nil, err
	}

	runID := uuid.NewString()
	start := time.Now()
	slog.Info("checklist run started", "run_id", runID, "project", p.Name, "criteria", len(p.Criteria))

	verdicts := make([]verify.Verdict, len(p.Criteria))
	var g errgroup.Group
	for i, criterion := range p.Criteria {
		g.Go(func() error {
			err := c.lane.Do(ctx, func(ctx context.Context) error {
				verdicts[i] = c.verifier.Verify(ctx, ix, criterion)
				return nil
			})
			if err != nil {
				verdicts[i] = verify.FailedVerdict(err)
			}
			return nil
		})
	}
	g.Wait()

	report := &VerificationReport{RunID: runID, Project: p.Name, Entries: make([]Entry, len(p.Criteria))}
	for i, criterion := range p.Criteria {
		report.Entries[i] = Entry{Criterion: criterion, Verdict: verdicts[i]}
	}
	slog.Info("checklist run finished", "run_id", runID, "project", p.Name, "duration", time.Since(start))
	return report, nil
}

// RunAll runs projects one after another. A project without documents or
// criteria is skipped and the others still run.
func (c *Checklist) RunAll(ctx context.Context, projects []Project) []Outcome {
	out := make([]Outcome, 0, len(projects))
	for _, p := range projects {
		if ctx.Err() != nil {
			out = append(out, Outcome{Project: p.Name, Err: ctx.Err()})
			continue
		}
		report, err := c.Run(ctx, p)
		o := Outcome{Project: p.Name, Report: report, Err: err}
		switch {
		case o.Skipped():
			slog.Warn("project skipped", "project", p.Name, "reason", err)
		case err != nil:
			slog.Error("project failed", "project", p.Name, "error", err)
		}
		out = append(out, o)
	}
	return out
}
