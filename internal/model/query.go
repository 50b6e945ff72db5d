package model

import (
	"math"
	"strconv"
	"strings"

	"github.com/rotisserie/eris"
)

// Context selects which per-ECM numeric row applies.
type Context struct {
	BuildingType int `json:"building_type" yaml:"building_type"`
	Vintage      int `json:"vintage" yaml:"vintage"`
	ClimateZone  int `json:"climate_zone" yaml:"climate_zone"`
}

// Validate checks every index against the catalog dimensions.
func (c Context) Validate(d Dimensions) error {
	for _, f := range []struct {
		name string
		v    int
		max  int
	}{
		{"building_type", c.BuildingType, d.BuildingTypes},
		{"vintage", c.Vintage, d.Vintages},
		{"climate_zone", c.ClimateZone, d.ClimateZones},
	} {
		if f.v < 1 || f.v > f.max {
			return &ValidationError{Field: f.name, Value: float64(f.v), Min: 1, Max: float64(f.max)}
		}
	}
	return nil
}

// Objective is the quantity a query maximizes.
type Objective string

const (
	ObjectiveEnergySaving Objective = "energy_saving"
	ObjectiveCO2Reduction Objective = "co2_reduction"
)

// ParseObjective accepts the canonical names plus the numeric menu choices
// "1" (energy saving) and "2" (CO2 reduction).
func ParseObjective(s string) (Objective, error) {
	switch strings.ToLower(strings.TrimSpace(s)) {
	case "", "1", "energy", "energy_saving", "energysaving":
		return ObjectiveEnergySaving, nil
	case "2", "co2", "co2_reduction", "co2reduction":
		return ObjectiveCO2Reduction, nil
	default:
		return "", eris.Wrapf(&ValidationError{Field: "objective", Msg: "unknown objective " + s}, "model: parse objective")
	}
}

// Valid reports whether o is one of the supported objectives.
func (o Objective) Valid() bool {
	return o == ObjectiveEnergySaving || o == ObjectiveCO2Reduction
}

// Query is a single optimization request.
type Query struct {
	Name         string    `json:"name,omitempty" yaml:"name"`
	Context      Context   `json:"context" yaml:",inline"`
	Objective    Objective `json:"objective" yaml:"objective"`
	Budget       float64   `json:"budget" yaml:"budget"`
	PaybackYears float64   `json:"payback_years" yaml:"payback_years"`
}

// Validate checks the query before any model assembly takes place.
func (q Query) Validate(d Dimensions) error {
	if err := q.Context.Validate(d); err != nil {
		return err
	}
	if !q.Objective.Valid() {
		return &ValidationError{Field: "objective", Msg: "unknown objective " + string(q.Objective)}
	}
	return q.ValidateLimits()
}

// ValidateLimits rejects NaN and infinite budget or payback limits, which
// can be neither solved against nor stored.
func (q Query) ValidateLimits() error {
	if !finite(q.Budget) {
		return &ValidationError{Field: "budget", Msg: "must be finite, got " + strconv.FormatFloat(q.Budget, 'g', -1, 64)}
	}
	if !finite(q.PaybackYears) {
		return &ValidationError{Field: "payback_years", Msg: "must be finite, got " + strconv.FormatFloat(q.PaybackYears, 'g', -1, 64)}
	}
	return nil
}

func finite(f float64) bool {
	return !math.IsNaN(f) && !math.IsInf(f, 0)
}
