package batch

import (
	"context"
	"sync/atomic"

	"github.com/rotisserie/eris"
	"go.uber.org/zap"
	"golang.org/x/sync/errgroup"

	"github.com/sells-group/ecm-cli/internal/model"
)

// Recommender answers a single query.
type Recommender interface {
	Recommend(ctx context.Context, q model.Query) (*model.Recommendation, error)
}

// Recorder persists run lifecycles. store.Store satisfies it.
type Recorder interface {
	CreateRun(ctx context.Context, q model.Query) (*model.Run, error)
	CompleteRun(ctx context.Context, runID string, rec *model.Recommendation) error
	FailRun(ctx context.Context, runID string, cause error) error
}

// Execute answers q and, when recorder is non-nil, records the outcome as
// a run. The returned run reflects the final status. A query error is
// returned alongside the run; recording errors take precedence.
func Execute(ctx context.Context, r Recommender, recorder Recorder, q model.Query) (*model.Run, error) {
	run := &model.Run{Query: q, Status: model.RunStatusRunning}
	if err := q.ValidateLimits(); err != nil {
		run.Status = model.RunStatusFailed
		run.Error = err.Error()
		return run, err
	}
	if recorder != nil {
		created, err := recorder.CreateRun(ctx, q)
		if err != nil {
			return nil, eris.Wrap(err, "batch: create run")
		}
		run = created
	}

	rec, qerr := r.Recommend(ctx, q)
	if qerr != nil {
		run.Status = model.StatusForError(qerr)
		run.Error = qerr.Error()
		if recorder != nil {
			// The run is closed out even if the caller's context is done.
			if err := recorder.FailRun(context.WithoutCancel(ctx), run.ID, qerr); err != nil {
				return run, eris.Wrap(err, "batch: fail run")
			}
		}
		return run, qerr
	}

	run.Status = model.RunStatusComplete
	run.Result = rec
	if recorder != nil {
		if err := recorder.CompleteRun(ctx, run.ID, rec); err != nil {
			return run, eris.Wrap(err, "batch: complete run")
		}
	}
	return run, nil
}

// Summary counts batch outcomes.
type Summary struct {
	Succeeded  int64
	Infeasible int64
	Failed     int64
}

// Runner solves queries concurrently.
type Runner struct {
	Recommender Recommender
	Recorder    Recorder // optional
	Concurrency int
}

// Run solves every query. Individual query failures are recorded on their
// runs and do not abort the batch; the returned runs follow input order.
func (r *Runner) Run(ctx context.Context, queries []model.Query) ([]*model.Run, Summary, error) {
	concurrency := r.Concurrency
	if concurrency < 1 {
		concurrency = 1
	}
	zap.L().Info("processing batch",
		zap.Int("queries", len(queries)),
		zap.Int("concurrency", concurrency),
	)

	g, gctx := errgroup.WithContext(ctx)
	g.SetLimit(concurrency)

	var succeeded, infeasible, failed atomic.Int64
	runs := make([]*model.Run, len(queries))

	for i, q := range queries {
		g.Go(func() error {
			log := zap.L().With(zap.String("query", q.Name))

			run, err := Execute(gctx, r.Recommender, r.Recorder, q)
			runs[i] = run
			if run == nil {
				// Nothing could be recorded; the store is unusable.
				return err
			}
			switch {
			case err == nil:
				succeeded.Add(1)
				log.Info("query complete",
					zap.Ints("chosen_ecms", run.Result.ChosenECMs),
					zap.Float64("objective_value", run.Result.ObjectiveValue),
				)
			case model.IsInfeasible(err):
				infeasible.Add(1)
				log.Warn("query infeasible", zap.Error(err))
			default:
				failed.Add(1)
				log.Error("query failed", zap.Error(err))
			}
			return nil // don't abort batch on individual failure
		})
	}

	sum := func() Summary {
		return Summary{Succeeded: succeeded.Load(), Infeasible: infeasible.Load(), Failed: failed.Load()}
	}
	if err := g.Wait(); err != nil {
		return runs, sum(), eris.Wrap(err, "batch processing")
	}

	s := sum()
	zap.L().Info("batch complete",
		zap.Int64("succeeded", s.Succeeded),
		zap.Int64("infeasible", s.Infeasible),
		zap.Int64("failed", s.Failed),
	)
	return runs, s, nil
}
