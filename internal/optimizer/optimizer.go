package optimizer

import (
	"context"
	"time"

	"github.com/rotisserie/eris"
	"go.uber.org/zap"

	"github.com/sells-group/ecm-cli/internal/lookup"
	"github.com/sells-group/ecm-cli/internal/model"
	"github.com/sells-group/ecm-cli/internal/report"
	"github.com/sells-group/ecm-cli/internal/solver"
)

// Options configures an Optimizer.
type Options struct {
	Builder BuilderOptions
	// Timeout bounds each solve. Zero means no limit beyond the caller's
	// context.
	Timeout time.Duration
}

// Optimizer answers queries against one immutable set of lookup tables.
// It is safe for concurrent use.
type Optimizer struct {
	tables  *lookup.Tables
	builder *Builder
	solver  solver.Solver
	log     *zap.Logger
}

// New creates an Optimizer backed by s.
func New(tables *lookup.Tables, s solver.Solver, opts Options) *Optimizer {
	return &Optimizer{
		tables:  tables,
		builder: NewBuilder(tables, opts.Builder),
		solver:  solver.WithTimeout(s, opts.Timeout),
		log:     zap.L().With(zap.String("component", "optimizer")),
	}
}

// Tables returns the lookup tables the optimizer reads.
func (o *Optimizer) Tables() *lookup.Tables { return o.tables }

// Recommend builds, solves and reports q. An infeasible program yields an
// *model.InfeasibleModelError; no fallback recommendation is produced.
func (o *Optimizer) Recommend(ctx context.Context, q model.Query) (*model.Recommendation, error) {
	log := o.log.With(
		zap.String("query", q.Name),
		zap.Int("building_type", q.Context.BuildingType),
		zap.Int("vintage", q.Context.Vintage),
		zap.Int("climate_zone", q.Context.ClimateZone),
		zap.String("objective", string(q.Objective)),
	)

	p, err := o.builder.Build(q)
	if err != nil {
		return nil, err
	}
	if q.PaybackYears > 0 {
		log.Warn("payback limit is not modeled; payback row has zero coefficients",
			zap.Float64("payback_years", q.PaybackYears))
	}

	start := time.Now()
	sol, err := o.solver.Solve(ctx, p)
	if err != nil {
		log.Error("solve failed", zap.Error(err), zap.Duration("elapsed", time.Since(start)))
		return nil, eris.Wrapf(err, "optimizer: solve %s", p.Name)
	}
	if sol.IsInfeasible() {
		log.Info("program infeasible", zap.Int("rows", p.NumRows()), zap.Int("nodes", sol.Nodes))
		return nil, &model.InfeasibleModelError{
			Program: p.Name,
			Rows:    p.NumRows(),
			Reason:  "no binary assignment satisfies every row",
		}
	}
	if !sol.IsOptimal() {
		return nil, eris.Errorf("optimizer: solve %s ended with status %s", p.Name, sol.Status)
	}

	rec, err := report.Report(o.tables, q, sol.Values, sol.Objective)
	if err != nil {
		return nil, eris.Wrap(err, "optimizer: report")
	}
	rec.SolverNodes = sol.Nodes

	log.Info("recommendation ready",
		zap.Ints("chosen_ecms", rec.ChosenECMs),
		zap.Float64("objective_value", rec.ObjectiveValue),
		zap.Float64("total_cost", rec.TotalCost),
		zap.Int("nodes", sol.Nodes),
		zap.Duration("elapsed", time.Since(start)),
	)
	return rec, nil
}
