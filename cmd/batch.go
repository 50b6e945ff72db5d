package main

import (
	"fmt"
	"os/signal"
	"syscall"

	"github.com/rotisserie/eris"
	"github.com/spf13/cobra"
	"go.uber.org/zap"

	"github.com/sells-group/ecm-cli/internal/batch"
	"github.com/sells-group/ecm-cli/internal/model"
	"github.com/sells-group/ecm-cli/internal/report"
)

var (
	batchSave bool
	batchXLSX string
)

var batchCmd = &cobra.Command{
	Use:   "batch <file>",
	Short: "Answer every query in a YAML or .xlsx batch file",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		ctx, stop := signal.NotifyContext(cmd.Context(), syscall.SIGINT, syscall.SIGTERM)
		defer stop()

		queries, err := batch.LoadFile(args[0], cfg.Optimize.UnboundedBudget)
		if err != nil {
			return err
		}

		env, err := initRecommend(ctx, "batch", batchSave)
		if err != nil {
			return err
		}
		defer env.Close()

		runner := &batch.Runner{
			Recommender: env.Optimizer,
			Concurrency: cfg.Batch.MaxConcurrentQueries,
		}
		if batchSave {
			runner.Recorder = env.Store
		}

		runs, sum, err := runner.Run(ctx, queries)
		if err != nil {
			return err
		}

		done := make([]model.Run, 0, len(runs))
		for _, r := range runs {
			if r != nil {
				done = append(done, *r)
			}
		}
		formatRunsList(cmd.OutOrStdout(), done)
		_, _ = fmt.Fprintf(cmd.OutOrStdout(), "\n%d succeeded, %d infeasible, %d failed\n",
			sum.Succeeded, sum.Infeasible, sum.Failed)

		if batchXLSX != "" {
			if err := report.WriteXLSX(batchXLSX, runs); err != nil {
				return err
			}
			zap.L().Info("wrote workbook", zap.String("path", batchXLSX), zap.Int("runs", len(runs)))
		}

		if sum.Failed > 0 {
			return eris.Errorf("batch: %d of %d queries failed", sum.Failed, len(queries))
		}
		return nil
	},
}

func init() {
	batchCmd.Flags().BoolVar(&batchSave, "save", false, "record every run in the store")
	batchCmd.Flags().StringVar(&batchXLSX, "xlsx", "", "write all results to this .xlsx path")
	rootCmd.AddCommand(batchCmd)
}
