// Package dataset parses the measure, savings and baseline JSON datasets into
// plain records. Range checks against the catalog happen in package lookup.
package dataset

import (
	"context"
	"io"
	"os"

	"github.com/rotisserie/eris"
	"go.uber.org/zap"
)

// Measure is one catalog entry in document order.
type Measure struct {
	Key string `json:"key"`
	// AllBuildingTypes is set when the record carries no Bldg_type field.
	AllBuildingTypes bool  `json:"all_building_types"`
	BuildingTypes    []int `json:"building_types,omitempty"`
	ConflictIDs      []int `json:"conflict_ids,omitempty"`
}

// Saving holds the per-context figures of one measure.
type Saving struct {
	MeasureID        int     `json:"measure_id"`
	BuildingType     int     `json:"building_type_id"`
	Vintage          int     `json:"vintage_id"`
	ClimateZone      int     `json:"climate_zone"`
	SavingPct        float64 `json:"saving_pct"`
	CO2ReductionKlbs float64 `json:"co2_reduction_klbs"`
	Cost             float64 `json:"cost"`
}

// Baseline holds the reference energy use of one context.
type Baseline struct {
	BuildingType int     `json:"building_type_id"`
	Vintage      int     `json:"vintage_id"`
	ClimateZone  int     `json:"climate_zone"`
	Energy       float64 `json:"energy"`
}

// Dataset bundles the three source datasets.
type Dataset struct {
	Measures  []Measure  `json:"measures"`
	Savings   []Saving   `json:"savings"`
	Baselines []Baseline `json:"baselines"`
}

// Paths locates the three dataset files.
type Paths struct {
	Measures string
	Savings  string
	Baseline string
}

// Opener returns a reader for a dataset location.
type Opener func(ctx context.Context, location string) (io.ReadCloser, error)

// LoadFiles reads and parses all three datasets from local files.
func LoadFiles(paths Paths) (*Dataset, error) {
	return Load(context.Background(), paths, openFile)
}

// Load reads and parses all three datasets through open.
func Load(ctx context.Context, paths Paths, open Opener) (*Dataset, error) {
	log := zap.L().With(zap.String("component", "dataset"))

	measures, err := read(ctx, open, paths.Measures, ParseMeasures)
	if err != nil {
		return nil, err
	}
	savings, err := read(ctx, open, paths.Savings, ParseSavings)
	if err != nil {
		return nil, err
	}
	baselines, err := read(ctx, open, paths.Baseline, ParseBaselines)
	if err != nil {
		return nil, err
	}

	log.Info("datasets loaded",
		zap.Int("measures", len(measures)),
		zap.Int("savings", len(savings)),
		zap.Int("baselines", len(baselines)),
	)
	return &Dataset{Measures: measures, Savings: savings, Baselines: baselines}, nil
}

func openFile(_ context.Context, path string) (io.ReadCloser, error) {
	return os.Open(path)
}

func read[T any](ctx context.Context, open Opener, location string, parse func([]byte) ([]T, error)) ([]T, error) {
	rc, err := open(ctx, location)
	if err != nil {
		return nil, eris.Wrapf(err, "dataset: read %s", location)
	}
	defer rc.Close() //nolint:errcheck

	data, err := io.ReadAll(rc)
	if err != nil {
		return nil, eris.Wrapf(err, "dataset: read %s", location)
	}
	out, err := parse(data)
	if err != nil {
		return nil, eris.Wrapf(err, "dataset: parse %s", location)
	}
	return out, nil
}
