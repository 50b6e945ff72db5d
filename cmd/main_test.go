package main

import (
	"bytes"
	"context"
	"path/filepath"
	"testing"

	"github.com/spf13/cobra"
	"github.com/spf13/pflag"
	"github.com/stretchr/testify/require"

	"github.com/sells-group/ecm-cli/internal/config"
	"github.com/sells-group/ecm-cli/internal/model"
)

// testConfig points every command at the three-measure fixture in
// testdata and a fresh SQLite database.
func testConfig(t *testing.T) *config.Config {
	t.Helper()
	return &config.Config{
		Store: config.StoreConfig{Driver: "sqlite", DatabaseURL: filepath.Join(t.TempDir(), "ecm.db")},
		Data: config.DataConfig{
			Source:       config.SourceFiles,
			MeasuresPath: filepath.Join("testdata", "Measures.json"),
			SavingsPath:  filepath.Join("testdata", "measure_savings.json"),
			BaselinePath: filepath.Join("testdata", "baseline.json"),
		},
		Catalog:  model.Dimensions{ECMs: 3, BuildingTypes: 2, Vintages: 1, ClimateZones: 1},
		Solver:   config.SolverConfig{TimeoutSecs: 10},
		Optimize: config.OptimizeConfig{UnboundedBudget: 1e12},
		Batch:    config.BatchConfig{MaxConcurrentQueries: 2},
		Server:   config.ServerConfig{Port: 8080, RateLimit: 100, Burst: 100, AllowedOrigins: []string{"*"}},
		Log:      config.LogConfig{Level: "info", Format: "json"},
	}
}

// runCmd resets cmd's flags, applies flags and invokes RunE with the
// output captured.
func runCmd(t *testing.T, cmd *cobra.Command, flags map[string]string, args ...string) (string, error) {
	t.Helper()
	cmd.Flags().VisitAll(func(f *pflag.Flag) {
		require.NoError(t, f.Value.Set(f.DefValue))
		f.Changed = false
	})
	for name, v := range flags {
		require.NoError(t, cmd.Flags().Set(name, v))
	}

	var out bytes.Buffer
	cmd.SetOut(&out)
	cmd.SetErr(&out)
	cmd.SetContext(context.Background())
	t.Cleanup(func() {
		cmd.SetOut(nil)
		cmd.SetErr(nil)
	})

	err := cmd.RunE(cmd, args)
	return out.String(), err
}
