// Package report turns a solver assignment into a recommendation and
// renders recommendations for people and spreadsheets.
package report

import (
	"github.com/rotisserie/eris"
	"gonum.org/v1/gonum/floats"

	"github.com/sells-group/ecm-cli/internal/lookup"
	"github.com/sells-group/ecm-cli/internal/model"
)

// Report interprets values (one per ECM in catalog order) for q. The total
// matching the active objective is set to objective exactly; the other is
// recomputed from the assignment.
func Report(tables *lookup.Tables, q model.Query, values []float64, objective float64) (*model.Recommendation, error) {
	n := tables.NumECM()
	if len(values) != n {
		return nil, eris.Errorf("report: assignment has %d values, want %d", len(values), n)
	}
	ctx := q.Context

	costs, err := tables.CostVector(ctx)
	if err != nil {
		return nil, eris.Wrap(err, "report: costs")
	}
	savings, err := tables.SavingPctVector(ctx)
	if err != nil {
		return nil, eris.Wrap(err, "report: savings")
	}
	co2, err := tables.CO2Vector(ctx)
	if err != nil {
		return nil, eris.Wrap(err, "report: co2")
	}
	baseline, err := tables.Baseline(ctx)
	if err != nil {
		return nil, eris.Wrap(err, "report: baseline")
	}

	x := make([]float64, n)
	chosen := []int{}
	for i, v := range values {
		// Solvers may return values within tolerance of 0 or 1.
		if v >= 0.5 {
			x[i] = 1
			chosen = append(chosen, model.ToID(i))
		}
	}

	rec := &model.Recommendation{
		Query:          q,
		ChosenECMs:     chosen,
		ObjectiveValue: objective,
		TotalCost:      floats.Dot(x, costs),
		BaselineEnergy: baseline,
	}
	switch q.Objective {
	case model.ObjectiveCO2Reduction:
		rec.TotalCO2Reduction = objective
		rec.TotalEnergySavingPct = floats.Dot(x, savings)
	default:
		rec.TotalEnergySavingPct = objective
		rec.TotalCO2Reduction = floats.Dot(x, co2)
	}
	rec.EnergySaved = rec.TotalEnergySavingPct / 100 * baseline
	return rec, nil
}
