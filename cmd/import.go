package main

import (
	"github.com/rotisserie/eris"
	"github.com/spf13/cobra"
	"go.uber.org/zap"

	"github.com/sells-group/ecm-cli/internal/dataset"
	"github.com/sells-group/ecm-cli/internal/lookup"
)

var importCmd = &cobra.Command{
	Use:   "import",
	Short: "Import the measure, savings and baseline datasets into the store",
	Long:  "Reads the datasets named by data.measures_path, data.savings_path and data.baseline_path (local paths or http(s) URLs), checks them against the catalog dimensions and replaces the stored dataset.",
	RunE: func(cmd *cobra.Command, _ []string) error {
		ctx := cmd.Context()

		if err := cfg.Validate("import"); err != nil {
			return err
		}

		ds, err := dataset.Load(ctx, cfg.Data.Paths(), newFetcher().Open)
		if err != nil {
			return eris.Wrap(err, "import: load files")
		}
		// Reject data the optimizer could not load later.
		if _, err := lookup.New(cfg.Catalog, ds); err != nil {
			return eris.Wrap(err, "import: check dataset")
		}

		st, err := initStore(ctx)
		if err != nil {
			return err
		}
		defer st.Close() //nolint:errcheck

		if err := st.ReplaceDataset(ctx, ds); err != nil {
			return eris.Wrap(err, "import: replace dataset")
		}

		zap.L().Info("import complete",
			zap.Int("measures", len(ds.Measures)),
			zap.Int("savings", len(ds.Savings)),
			zap.Int("baselines", len(ds.Baselines)),
			zap.String("driver", cfg.Store.Driver),
		)
		return nil
	},
}

func init() {
	rootCmd.AddCommand(importCmd)
}
