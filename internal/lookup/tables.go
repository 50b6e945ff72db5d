// Package lookup holds the immutable tables an optimization query reads:
// measure compatibility, pairwise conflicts, per-context savings, CO2
// reduction and cost, and baseline energy.
package lookup

import (
	"fmt"

	"github.com/rotisserie/eris"
	"go.uber.org/zap"

	"github.com/sells-group/ecm-cli/internal/dataset"
	"github.com/sells-group/ecm-cli/internal/model"
)

// Conflict table values.
const (
	Conflicting    = 1
	NotConflicting = 2
)

// Tables is safe for concurrent readers; nothing mutates it after New.
type Tables struct {
	dims model.Dimensions

	compat   []bool  // ecm * BuildingTypes + b
	conflict []uint8 // a * ECMs + b

	saving []float64 // ctx * ECMs + ecm
	co2    []float64
	cost   []float64

	baseline    []float64 // ctx
	hasBaseline []bool
	covered     []bool
}

// New builds Tables from parsed datasets. The measures dataset must hold
// exactly dims.ECMs records; every id in every record must be in range.
func New(dims model.Dimensions, ds *dataset.Dataset) (*Tables, error) {
	if err := dims.Validate(); err != nil {
		return nil, eris.Wrap(err, "lookup: dimensions")
	}
	if ds == nil {
		return nil, eris.New("lookup: nil dataset")
	}
	if len(ds.Measures) != dims.ECMs {
		return nil, &model.DataIntegrityError{
			Table:  "measures",
			Detail: fmt.Sprintf("catalog has %d measures, expected %d", len(ds.Measures), dims.ECMs),
		}
	}

	n := dims.ECMs
	nctx := dims.Contexts()
	t := &Tables{
		dims:        dims,
		compat:      make([]bool, n*dims.BuildingTypes),
		conflict:    make([]uint8, n*n),
		saving:      make([]float64, nctx*n),
		co2:         make([]float64, nctx*n),
		cost:        make([]float64, nctx*n),
		baseline:    make([]float64, nctx),
		hasBaseline: make([]bool, nctx),
		covered:     make([]bool, nctx),
	}

	for i := range t.conflict {
		t.conflict[i] = NotConflicting
	}

	for i, m := range ds.Measures {
		id := model.ToID(i)
		row := t.compat[i*dims.BuildingTypes : (i+1)*dims.BuildingTypes]
		if m.AllBuildingTypes {
			for b := range row {
				row[b] = true
			}
		}
		for _, b := range m.BuildingTypes {
			if b < 1 || b > dims.BuildingTypes {
				return nil, &model.DataIntegrityError{
					Table:  "measures",
					Detail: fmt.Sprintf("measure %d (%s): building type %d out of range [1, %d]", id, m.Key, b, dims.BuildingTypes),
				}
			}
			row[model.ToIndex(b)] = true
		}

		t.conflict[i*n+i] = Conflicting
		for _, c := range m.ConflictIDs {
			if c < 1 || c > n {
				return nil, &model.DataIntegrityError{
					Table:  "measures",
					Detail: fmt.Sprintf("measure %d (%s): conflict id %d out of range [1, %d]", id, m.Key, c, n),
				}
			}
			j := model.ToIndex(c)
			// Either side listing the other constrains the pair.
			t.conflict[i*n+j] = Conflicting
			t.conflict[j*n+i] = Conflicting
		}
	}

	var overwritten int
	seen := make(map[int]bool, len(ds.Savings))
	for _, s := range ds.Savings {
		c := model.Context{BuildingType: s.BuildingType, Vintage: s.Vintage, ClimateZone: s.ClimateZone}
		ci, err := t.contextIndex(c)
		if err != nil {
			return nil, &model.DataIntegrityError{Table: "savings", Detail: fmt.Sprintf("measure %d: %v", s.MeasureID, err)}
		}
		if s.MeasureID < 1 || s.MeasureID > n {
			return nil, &model.DataIntegrityError{
				Table:  "savings",
				Detail: fmt.Sprintf("measure id %d out of range [1, %d]", s.MeasureID, n),
			}
		}
		off := ci*n + model.ToIndex(s.MeasureID)
		if seen[off] {
			overwritten++
		}
		seen[off] = true
		t.saving[off] = s.SavingPct
		t.co2[off] = s.CO2ReductionKlbs
		t.cost[off] = s.Cost
		t.covered[ci] = true
	}

	for _, b := range ds.Baselines {
		c := model.Context{BuildingType: b.BuildingType, Vintage: b.Vintage, ClimateZone: b.ClimateZone}
		ci, err := t.contextIndex(c)
		if err != nil {
			return nil, &model.DataIntegrityError{Table: "baseline", Detail: err.Error()}
		}
		t.baseline[ci] = b.Energy
		t.hasBaseline[ci] = true
	}

	zap.L().Debug("lookup tables built",
		zap.Int("ecms", n),
		zap.Int("savings", len(ds.Savings)),
		zap.Int("baselines", len(ds.Baselines)),
		zap.Int("savings_overwritten", overwritten),
	)
	return t, nil
}

// Dimensions returns the table dimensions.
func (t *Tables) Dimensions() model.Dimensions { return t.dims }

// NumECM returns the catalog size.
func (t *Tables) NumECM() int { return t.dims.ECMs }

func (t *Tables) checkECM(ecm int) error {
	if ecm < 1 || ecm > t.dims.ECMs {
		return &model.RangeError{Dimension: "ecm", Value: ecm, Min: 1, Max: t.dims.ECMs}
	}
	return nil
}

func (t *Tables) contextIndex(c model.Context) (int, error) {
	for _, f := range []struct {
		name string
		v    int
		max  int
	}{
		{"building_type", c.BuildingType, t.dims.BuildingTypes},
		{"vintage", c.Vintage, t.dims.Vintages},
		{"climate_zone", c.ClimateZone, t.dims.ClimateZones},
	} {
		if f.v < 1 || f.v > f.max {
			return 0, &model.RangeError{Dimension: f.name, Value: f.v, Min: 1, Max: f.max}
		}
	}
	b := model.ToIndex(c.BuildingType)
	v := model.ToIndex(c.Vintage)
	z := model.ToIndex(c.ClimateZone)
	return (b*t.dims.Vintages+v)*t.dims.ClimateZones + z, nil
}

// Compatibility returns a copy of the per-building-type flags of an ECM,
// indexed by building type - 1.
func (t *Tables) Compatibility(ecm int) ([]bool, error) {
	if err := t.checkECM(ecm); err != nil {
		return nil, err
	}
	i := model.ToIndex(ecm)
	out := make([]bool, t.dims.BuildingTypes)
	copy(out, t.compat[i*t.dims.BuildingTypes:])
	return out, nil
}

// Compatible reports whether an ECM may be used for a building type.
func (t *Tables) Compatible(ecm, buildingType int) (bool, error) {
	if err := t.checkECM(ecm); err != nil {
		return false, err
	}
	if buildingType < 1 || buildingType > t.dims.BuildingTypes {
		return false, &model.RangeError{Dimension: "building_type", Value: buildingType, Min: 1, Max: t.dims.BuildingTypes}
	}
	return t.compat[model.ToIndex(ecm)*t.dims.BuildingTypes+model.ToIndex(buildingType)], nil
}

// Conflict returns Conflicting (1) or NotConflicting (2) for a pair of ECMs.
// An ECM always conflicts with itself.
func (t *Tables) Conflict(a, b int) (int, error) {
	if err := t.checkECM(a); err != nil {
		return 0, err
	}
	if err := t.checkECM(b); err != nil {
		return 0, err
	}
	return int(t.conflict[model.ToIndex(a)*t.dims.ECMs+model.ToIndex(b)]), nil
}

// ConflictsWith returns the 1-indexed ids an ECM conflicts with, excluding itself.
func (t *Tables) ConflictsWith(ecm int) ([]int, error) {
	if err := t.checkECM(ecm); err != nil {
		return nil, err
	}
	n := t.dims.ECMs
	i := model.ToIndex(ecm)
	var out []int
	for j := 0; j < n; j++ {
		if j != i && t.conflict[i*n+j] == Conflicting {
			out = append(out, model.ToID(j))
		}
	}
	return out, nil
}

func (t *Tables) cell(table []float64, c model.Context, ecm int) (float64, error) {
	ci, err := t.contextIndex(c)
	if err != nil {
		return 0, err
	}
	if err := t.checkECM(ecm); err != nil {
		return 0, err
	}
	return table[ci*t.dims.ECMs+model.ToIndex(ecm)], nil
}

func (t *Tables) vector(table []float64, c model.Context) ([]float64, error) {
	ci, err := t.contextIndex(c)
	if err != nil {
		return nil, err
	}
	out := make([]float64, t.dims.ECMs)
	copy(out, table[ci*t.dims.ECMs:])
	return out, nil
}

// SavingPct returns the energy-saving percentage of an ECM in a context.
func (t *Tables) SavingPct(c model.Context, ecm int) (float64, error) {
	return t.cell(t.saving, c, ecm)
}

// CO2Reduction returns the CO2 reduction (klbs) of an ECM in a context.
func (t *Tables) CO2Reduction(c model.Context, ecm int) (float64, error) {
	return t.cell(t.co2, c, ecm)
}

// Cost returns the financial cost of an ECM in a context.
func (t *Tables) Cost(c model.Context, ecm int) (float64, error) {
	return t.cell(t.cost, c, ecm)
}

// SavingPctVector returns a copy of the saving percentages of every ECM in
// a context, in catalog order.
func (t *Tables) SavingPctVector(c model.Context) ([]float64, error) {
	return t.vector(t.saving, c)
}

// CO2Vector returns a copy of the CO2 reductions of every ECM in a context.
func (t *Tables) CO2Vector(c model.Context) ([]float64, error) {
	return t.vector(t.co2, c)
}

// CostVector returns a copy of the costs of every ECM in a context.
func (t *Tables) CostVector(c model.Context) ([]float64, error) {
	return t.vector(t.cost, c)
}

// Baseline returns the baseline energy use of a context (0 when absent).
func (t *Tables) Baseline(c model.Context) (float64, error) {
	ci, err := t.contextIndex(c)
	if err != nil {
		return 0, err
	}
	return t.baseline[ci], nil
}

// HasBaseline reports whether the baseline dataset had a record for c.
func (t *Tables) HasBaseline(c model.Context) (bool, error) {
	ci, err := t.contextIndex(c)
	if err != nil {
		return false, err
	}
	return t.hasBaseline[ci], nil
}

// Covered reports whether any savings record exists for c.
func (t *Tables) Covered(c model.Context) (bool, error) {
	ci, err := t.contextIndex(c)
	if err != nil {
		return false, err
	}
	return t.covered[ci], nil
}
