package dataset

import (
	"context"
	"errors"
	"io"
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/sells-group/ecm-cli/internal/model"
)

const measuresFixture = `{
	"wall_insulation": {"Bldg_type": "1;3; 5", "conflict_measure_ids": "1,2"},
	"roof_insulation": {"conflict_measure_ids": "2,1"},
	"led_lighting":    {"Bldg_type": "2"}
}`

func TestParseMeasures(t *testing.T) {
	t.Parallel()

	ms, err := ParseMeasures([]byte(measuresFixture))
	require.NoError(t, err)
	require.Len(t, ms, 3)

	// Document order is catalog order.
	assert.Equal(t, "wall_insulation", ms[0].Key)
	assert.Equal(t, "roof_insulation", ms[1].Key)
	assert.Equal(t, "led_lighting", ms[2].Key)

	assert.False(t, ms[0].AllBuildingTypes)
	assert.Equal(t, []int{1, 3, 5}, ms[0].BuildingTypes)
	assert.Equal(t, []int{1, 2}, ms[0].ConflictIDs)

	assert.True(t, ms[1].AllBuildingTypes, "missing Bldg_type means every building type")
	assert.Nil(t, ms[1].BuildingTypes)

	assert.Nil(t, ms[2].ConflictIDs)
}

func TestParseMeasures_Array(t *testing.T) {
	t.Parallel()

	ms, err := ParseMeasures([]byte(`[{"Bldg_type": "4"}, {}]`))
	require.NoError(t, err)
	require.Len(t, ms, 2)
	assert.Equal(t, "0", ms[0].Key)
	assert.Equal(t, []int{4}, ms[0].BuildingTypes)
	assert.True(t, ms[1].AllBuildingTypes)
}

func TestParseMeasures_Errors(t *testing.T) {
	t.Parallel()

	tests := []struct {
		name string
		data string
		want string
	}{
		{name: "invalid json", data: `{"a": `, want: "invalid JSON"},
		{name: "scalar root", data: `42`, want: "expected an object"},
		{name: "non-object record", data: `{"a": 1}`, want: "not an object"},
		{name: "bad building type", data: `{"a": {"Bldg_type": "1;x"}}`, want: "Bldg_type"},
		{name: "bad conflict id", data: `{"a": {"conflict_measure_ids": "2,?"}}`, want: "conflict_measure_ids"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			t.Parallel()
			_, err := ParseMeasures([]byte(tt.data))
			require.Error(t, err)
			assert.True(t, model.IsDataIntegrity(err))
			assert.Contains(t, err.Error(), tt.want)
		})
	}
}

func TestParseSavings_StringAndNumberFields(t *testing.T) {
	t.Parallel()

	data := `{
		"1": {"measure_id": "3", "building_type_id": "2", "vintage_id": "1", "climate_zone": "4",
		      "saving_pct": "5.5", "co2_reduction_klbs": "1.25", "cost": "1000"},
		"2": {"measure_id": 1, "building_type_id": 1, "vintage_id": 5, "climate_zone": 9,
		      "saving_pct": 2, "co2_reduction_klbs": 0.5, "cost": 20.5}
	}`
	ss, err := ParseSavings([]byte(data))
	require.NoError(t, err)
	require.Len(t, ss, 2)

	assert.Equal(t, Saving{
		MeasureID: 3, BuildingType: 2, Vintage: 1, ClimateZone: 4,
		SavingPct: 5.5, CO2ReductionKlbs: 1.25, Cost: 1000,
	}, ss[0])
	assert.Equal(t, 9, ss[1].ClimateZone)
	assert.InDelta(t, 20.5, ss[1].Cost, 1e-9)
}

func TestParseBaselines(t *testing.T) {
	t.Parallel()

	bs, err := ParseBaselines([]byte(`{"a": {"building_type_id": "1", "vintage_id": "2", "climate_zone": "3", "energy": "12345.6"}}`))
	require.NoError(t, err)
	require.Len(t, bs, 1)
	assert.Equal(t, Baseline{BuildingType: 1, Vintage: 2, ClimateZone: 3, Energy: 12345.6}, bs[0])
}

func TestParseIDList(t *testing.T) {
	t.Parallel()

	ids, err := ParseIDList(" 1, 2,,10 ,", ",")
	require.NoError(t, err)
	assert.Equal(t, []int{1, 2, 10}, ids)

	ids, err = ParseIDList("", ";")
	require.NoError(t, err)
	assert.Empty(t, ids)

	_, err = ParseIDList("1;two", ";")
	assert.Error(t, err)
}

func TestLoadFiles(t *testing.T) {
	dir := t.TempDir()
	paths := Paths{
		Measures: filepath.Join(dir, "Measures.json"),
		Savings:  filepath.Join(dir, "measure_savings.json"),
		Baseline: filepath.Join(dir, "baseline.json"),
	}
	require.NoError(t, os.WriteFile(paths.Measures, []byte(measuresFixture), 0o644))
	require.NoError(t, os.WriteFile(paths.Savings, []byte(`{"x": {"measure_id": 1, "building_type_id": 1, "vintage_id": 1, "climate_zone": 1, "saving_pct": 3}}`), 0o644))
	require.NoError(t, os.WriteFile(paths.Baseline, []byte(`{"x": {"building_type_id": 1, "vintage_id": 1, "climate_zone": 1, "energy": 100}}`), 0o644))

	ds, err := LoadFiles(paths)
	require.NoError(t, err)
	assert.Len(t, ds.Measures, 3)
	assert.Len(t, ds.Savings, 1)
	assert.Len(t, ds.Baselines, 1)

	paths.Savings = filepath.Join(dir, "missing.json")
	_, err = LoadFiles(paths)
	require.Error(t, err)
	assert.Contains(t, err.Error(), "missing.json")
}

func TestLoad_CustomOpener(t *testing.T) {
	sources := map[string]string{
		"mem://measures": measuresFixture,
		"mem://savings":  `[{"measure_id": 2, "building_type_id": 1, "vintage_id": 1, "climate_zone": 1, "cost": "12.5"}]`,
		"mem://baseline": `{}`,
	}
	var opened []string
	open := func(_ context.Context, location string) (io.ReadCloser, error) {
		opened = append(opened, location)
		body, ok := sources[location]
		if !ok {
			return nil, errors.New("no such source")
		}
		return io.NopCloser(strings.NewReader(body)), nil
	}

	ds, err := Load(context.Background(), Paths{Measures: "mem://measures", Savings: "mem://savings", Baseline: "mem://baseline"}, open)
	require.NoError(t, err)
	assert.Equal(t, []string{"mem://measures", "mem://savings", "mem://baseline"}, opened)
	assert.Len(t, ds.Measures, 3)
	require.Len(t, ds.Savings, 1)
	assert.InDelta(t, 12.5, ds.Savings[0].Cost, 1e-9)
	assert.Empty(t, ds.Baselines)

	_, err = Load(context.Background(), Paths{Measures: "mem://nope"}, open)
	require.Error(t, err)
	assert.Contains(t, err.Error(), "dataset: read mem://nope")
}
