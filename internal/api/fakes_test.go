package api

import (
	"context"

	"github.com/kalambet/sverka/internal/pipeline"
	"github.com/kalambet/sverka/internal/taxonomy"
	"github.com/kalambet/sverka/internal/verify"
)

type fakeChecklist struct {
	runFn func(ctx context.Context, p pipeline.Project) (*pipeline.VerificationReport, error)
}

func (f *fakeChecklist) Run(ctx context.Context, p pipeline.Project) (*pipeline.VerificationReport, error) {
	return f.runFn(ctx, p)
}

type fakeRemarks struct {
	runFn      func(ctx context.Context, b pipeline.Batch) (*pipeline.RemarksReport, error)
	classifyFn func(ctx context.Context, text string) (taxonomy.Assignment, error)
}

func (f *fakeRemarks) Run(ctx context.Context, b pipeline.Batch) (*pipeline.RemarksReport, error) {
	return f.runFn(ctx, b)
}

func (f *fakeRemarks) Classify(ctx context.Context, text string) (taxonomy.Assignment, error) {
	return f.classifyFn(ctx, text)
}

// confirmAll answers every criterion with a confirmed verdict.
func confirmAll() *fakeChecklist {
	return &fakeChecklist{runFn: func(_ context.Context, p pipeline.Project) (*pipeline.VerificationReport, error) {
		if len(p.Criteria) == 0 {
			return nil, pipeline.ErrNoCriteria
		}
		r := &pipeline.VerificationReport{RunID: "run-1", Project: p.Name}
		for _, c := range p.Criteria {
			r.Entries = append(r.Entries, pipeline.Entry{
				Criterion: c,
				Verdict: verify.Verdict{
					Status:  verify.StatusConfirmed,
					Answer:  "yes",
					Sources: []verify.Source{{SourceID: "spec.pdf", Page: 2, Snippet: "pressure 25 MPa"}},
				},
			})
		}
		return r, nil
	}}
}

func fixedRemarks() *fakeRemarks {
	return &fakeRemarks{
		runFn: func(_ context.Context, b pipeline.Batch) (*pipeline.RemarksReport, error) {
			return &pipeline.RemarksReport{RunID: "run-2", Classification: []pipeline.CategoryItems{}}, nil
		},
		classifyFn: func(_ context.Context, text string) (taxonomy.Assignment, error) {
			return taxonomy.Assignment{Major: "Safety", Sub: "Fire exits"}, nil
		},
	}
}
