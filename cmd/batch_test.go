package main

import (
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/sells-group/ecm-cli/internal/model"
	"github.com/sells-group/ecm-cli/internal/sheet"
	"github.com/sells-group/ecm-cli/internal/store"
)

const batchYAML = `
defaults:
  objective: energy_saving
queries:
  - name: office
    building_type: 1
    vintage: 1
    climate_zone: 1
    budget: 15
  - name: warehouse
    building_type: 2
    vintage: 1
    climate_zone: 1
    objective: co2
  - name: overdrawn
    building_type: 1
    vintage: 1
    climate_zone: 1
    budget: -1
`

func writeBatchFile(t *testing.T, content string) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), "queries.yaml")
	require.NoError(t, os.WriteFile(path, []byte(content), 0o644))
	return path
}

func TestBatchCmd_SaveAndExport(t *testing.T) {
	cfg = testConfig(t)
	xlsxPath := filepath.Join(t.TempDir(), "batch.xlsx")

	out, err := runCmd(t, batchCmd, map[string]string{"save": "true", "xlsx": xlsxPath}, writeBatchFile(t, batchYAML))
	require.NoError(t, err)
	assert.Contains(t, out, "2 succeeded, 1 infeasible, 0 failed")
	assert.Contains(t, out, "office")
	assert.Contains(t, out, "warehouse")
	assert.Contains(t, out, "infeasible")

	rows, err := sheet.Read(xlsxPath, sheet.ReadOptions{})
	require.NoError(t, err)
	require.Len(t, rows, 4)
	assert.Equal(t, "office", rows[1][1])
	assert.Equal(t, "warehouse", rows[2][1])
	assert.Equal(t, "overdrawn", rows[3][1])

	out, err = runCmd(t, runsListCmd, map[string]string{"status": "infeasible"})
	require.NoError(t, err)
	assert.Contains(t, out, "overdrawn")
	assert.NotContains(t, out, "office")

	out, err = runCmd(t, runsStatsCmd, map[string]string{"since": "0s"})
	require.NoError(t, err)
	assert.Contains(t, out, "Total runs:")
	assert.Contains(t, out, "Infeasible:")
	assert.Contains(t, out, "energy_saving:")
	assert.Contains(t, out, "co2_reduction:")
}

func TestBatchCmd_WithoutSave(t *testing.T) {
	cfg = testConfig(t)

	out, err := runCmd(t, batchCmd, nil, writeBatchFile(t, batchYAML))
	require.NoError(t, err)
	assert.Contains(t, out, "2 succeeded, 1 infeasible, 0 failed")

	st, err := store.NewSQLite(cfg.Store.DatabaseURL)
	require.NoError(t, err)
	defer st.Close() //nolint:errcheck
	require.NoError(t, st.Migrate(t.Context()))
	runs, err := st.ListRuns(t.Context(), store.RunFilter{})
	require.NoError(t, err)
	assert.Empty(t, runs)
}

func TestBatchCmd_FailedQuery(t *testing.T) {
	cfg = testConfig(t)

	out, err := runCmd(t, batchCmd, nil, writeBatchFile(t, `
queries:
  - name: good
    building_type: 1
    vintage: 1
    climate_zone: 1
  - name: bad-context
    building_type: 5
    vintage: 1
    climate_zone: 1
`))
	require.Error(t, err)
	assert.Contains(t, err.Error(), "1 of 2 queries failed")
	assert.Contains(t, out, "1 succeeded, 0 infeasible, 1 failed")
}

func TestBatchCmd_MissingFile(t *testing.T) {
	cfg = testConfig(t)

	_, err := runCmd(t, batchCmd, nil, filepath.Join(t.TempDir(), "nope.yaml"))
	require.Error(t, err)
}

func TestFormatRunsList(t *testing.T) {
	runs := []model.Run{
		{
			ID:     "abc12345-6789-0000-0000-000000000000",
			Query:  model.Query{Name: "office", Context: model.Context{BuildingType: 3, Vintage: 2, ClimateZone: 5}, Objective: model.ObjectiveEnergySaving},
			Status: model.RunStatusComplete,
			Result: &model.Recommendation{ChosenECMs: []int{4, 17, 60}, ObjectiveValue: 12.5},
		},
		{
			ID:     "def12345-6789-0000-0000-000000000000",
			Query:  model.Query{Name: "school", Objective: model.ObjectiveCO2Reduction},
			Status: model.RunStatusInfeasible,
		},
	}

	var buf strings.Builder
	formatRunsList(&buf, runs)

	output := buf.String()
	assert.Contains(t, output, "ID")
	assert.Contains(t, output, "STATUS")
	assert.Contains(t, output, "abc12345")
	assert.NotContains(t, output, "abc12345-6789")
	assert.Contains(t, output, "3/2/5")
	assert.Contains(t, output, "4,17,60")
	assert.Contains(t, output, "12.50")
	assert.Contains(t, output, "infeasible")
	assert.Contains(t, output, "co2_reduction")
}

func TestFormatIDs(t *testing.T) {
	assert.Equal(t, "none", formatIDs(nil))
	assert.Equal(t, "1,2", formatIDs([]int{1, 2}))

	long := make([]int, 20)
	for i := range long {
		long[i] = 10 + i
	}
	got := formatIDs(long)
	assert.Len(t, got, 30)
	assert.Equal(t, "...", got[27:])
}

func TestTruncateID(t *testing.T) {
	assert.Equal(t, "-", truncateID(""))
	assert.Equal(t, "abc", truncateID("abc"))
	assert.Equal(t, "abcdefgh", truncateID("abcdefghij"))
}
