// Package optimizer assembles the ECM selection program for a query,
// dispatches it to a solver and interprets the result.
package optimizer

import (
	"fmt"

	"github.com/rotisserie/eris"
	"go.uber.org/zap"

	"github.com/sells-group/ecm-cli/internal/lookup"
	"github.com/sells-group/ecm-cli/internal/model"
	"github.com/sells-group/ecm-cli/internal/program"
)

// Row names of the fixed rows.
const (
	RowBudget         = "budget"
	RowPaybackYear    = "payback_year"
	rowCompatPrefix   = "building_type_compatibility_"
	rowConflictPrefix = "ecm_conflict_"
)

// BuilderOptions tunes model assembly.
type BuilderOptions struct {
	// CollapseConflicts emits one row per unordered conflicting pair
	// instead of one row per ordered pair. The feasible region is the same.
	CollapseConflicts bool
	// RequireCoverage rejects contexts with no savings records or no
	// baseline instead of optimizing over zero-filled rows.
	RequireCoverage bool
}

// Builder turns queries into integer programs over shared lookup tables.
type Builder struct {
	tables *lookup.Tables
	opts   BuilderOptions
}

// NewBuilder creates a Builder. The tables are read, never modified.
func NewBuilder(tables *lookup.Tables, opts BuilderOptions) *Builder {
	return &Builder{tables: tables, opts: opts}
}

// ExpectedRows returns 2 + n + n(n-1), the row count of the ordered-pair
// encoding.
func ExpectedRows(n int) int {
	return 2 + n + n*(n-1)
}

// Build validates q and assembles its program. Variable j is ECM j+1.
func (b *Builder) Build(q model.Query) (*program.IntegerProgram, error) {
	dims := b.tables.Dimensions()
	if err := q.Validate(dims); err != nil {
		return nil, eris.Wrap(err, "optimizer: validate query")
	}
	ctx := q.Context

	if b.opts.RequireCoverage {
		if err := b.checkCoverage(ctx); err != nil {
			return nil, err
		}
	}

	n := b.tables.NumECM()
	name := fmt.Sprintf("ECM_optimization_obj_max_%s", q.Objective)
	p := program.New(name, program.Maximize, n)

	var (
		obj []float64
		err error
	)
	switch q.Objective {
	case model.ObjectiveEnergySaving:
		obj, err = b.tables.SavingPctVector(ctx)
	case model.ObjectiveCO2Reduction:
		obj, err = b.tables.CO2Vector(ctx)
	}
	if err != nil {
		return nil, eris.Wrap(err, "optimizer: objective coefficients")
	}
	if err := p.SetObjective(obj); err != nil {
		return nil, eris.Wrap(err, "optimizer: set objective")
	}

	costs, err := b.tables.CostVector(ctx)
	if err != nil {
		return nil, eris.Wrap(err, "optimizer: cost coefficients")
	}
	if _, err := p.AddDenseRow(RowBudget, costs, q.Budget); err != nil {
		return nil, eris.Wrap(err, "optimizer: budget row")
	}

	// No payback cost model exists yet: the row is kept with zero
	// coefficients so downstream row indices stay fixed.
	if _, err := p.AddDenseRow(RowPaybackYear, make([]float64, n), q.PaybackYears); err != nil {
		return nil, eris.Wrap(err, "optimizer: payback row")
	}

	for i := 0; i < n; i++ {
		ok, err := b.tables.Compatible(model.ToID(i), ctx.BuildingType)
		if err != nil {
			return nil, eris.Wrapf(err, "optimizer: compatibility of ecm %d", model.ToID(i))
		}
		var upper float64
		if ok {
			upper = 1
		}
		if _, err := p.AddSparseRow(fmt.Sprintf("%s%d", rowCompatPrefix, i), []program.Nonzero{{Col: i, Val: 1}}, upper); err != nil {
			return nil, eris.Wrap(err, "optimizer: compatibility row")
		}
	}

	if err := b.addConflictRows(p, n); err != nil {
		return nil, err
	}

	zap.L().Debug("program assembled",
		zap.String("program", p.Name),
		zap.Int("vars", p.NumVars()),
		zap.Int("rows", p.NumRows()),
		zap.Bool("collapse_conflicts", b.opts.CollapseConflicts),
	)
	return p, nil
}

func (b *Builder) addConflictRows(p *program.IntegerProgram, n int) error {
	k := 0
	for i := 0; i < n; i++ {
		for j := 0; j < n; j++ {
			if i == j {
				continue
			}
			if b.opts.CollapseConflicts && j < i {
				continue
			}
			f, err := b.tables.Conflict(model.ToID(i), model.ToID(j))
			if err != nil {
				return eris.Wrapf(err, "optimizer: conflict %d/%d", model.ToID(i), model.ToID(j))
			}
			if b.opts.CollapseConflicts && f != lookup.Conflicting {
				continue
			}
			coefs := []program.Nonzero{{Col: i, Val: 1}, {Col: j, Val: 1}}
			if _, err := p.AddSparseRow(fmt.Sprintf("%s%d", rowConflictPrefix, k), coefs, float64(f)); err != nil {
				return eris.Wrap(err, "optimizer: conflict row")
			}
			k++
		}
	}
	return nil
}

func (b *Builder) checkCoverage(ctx model.Context) error {
	covered, err := b.tables.Covered(ctx)
	if err != nil {
		return eris.Wrap(err, "optimizer: coverage")
	}
	if !covered {
		return &model.DataIntegrityError{
			Table:  "savings",
			Detail: fmt.Sprintf("no records for building type %d, vintage %d, climate zone %d", ctx.BuildingType, ctx.Vintage, ctx.ClimateZone),
		}
	}
	ok, err := b.tables.HasBaseline(ctx)
	if err != nil {
		return eris.Wrap(err, "optimizer: coverage")
	}
	if !ok {
		return &model.DataIntegrityError{
			Table:  "baseline",
			Detail: fmt.Sprintf("no record for building type %d, vintage %d, climate zone %d", ctx.BuildingType, ctx.Vintage, ctx.ClimateZone),
		}
	}
	return nil
}
