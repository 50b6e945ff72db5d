package main

import (
	"encoding/json"

	"github.com/rotisserie/eris"
	"github.com/spf13/cobra"
	"go.uber.org/zap"

	"github.com/sells-group/ecm-cli/internal/batch"
	"github.com/sells-group/ecm-cli/internal/model"
	"github.com/sells-group/ecm-cli/internal/report"
)

var (
	recBuildingType int
	recVintage      int
	recClimateZone  int
	recObjective    string
	recBudget       float64
	recPayback      float64
	recName         string
	recSave         bool
	recJSON         bool
	recXLSX         string
)

var recommendCmd = &cobra.Command{
	Use:   "recommend",
	Short: "Recommend measures for one building context",
	Example: `  ecm-cli recommend --building-type 3 --vintage 2 --climate-zone 5 --budget 1500000
  ecm-cli recommend --building-type 3 --vintage 2 --climate-zone 5 --objective co2 --json`,
	RunE: func(cmd *cobra.Command, _ []string) error {
		ctx := cmd.Context()

		q, err := recommendQuery(cmd)
		if err != nil {
			return err
		}

		env, err := initRecommend(ctx, "recommend", recSave)
		if err != nil {
			return err
		}
		defer env.Close()

		var recorder batch.Recorder
		if env.Store != nil && recSave {
			recorder = env.Store
		}

		run, err := batch.Execute(ctx, env.Optimizer, recorder, q)
		if err != nil {
			if run != nil && run.ID != "" {
				zap.L().Info("run recorded", zap.String("run_id", run.ID), zap.String("status", string(run.Status)))
			}
			return eris.Wrap(err, "recommend")
		}

		if recXLSX != "" {
			if err := report.WriteXLSX(recXLSX, []*model.Run{run}); err != nil {
				return err
			}
			zap.L().Info("wrote workbook", zap.String("path", recXLSX))
		}

		out := cmd.OutOrStdout()
		if recJSON {
			enc := json.NewEncoder(out)
			enc.SetIndent("", "  ")
			return enc.Encode(run)
		}
		return report.Render(out, run.Result)
	},
}

// recommendQuery assembles the query from flags. Limits left unset fall
// back to the unbounded sentinel.
func recommendQuery(cmd *cobra.Command) (model.Query, error) {
	obj, err := model.ParseObjective(recObjective)
	if err != nil {
		return model.Query{}, err
	}
	q := model.Query{
		Name: recName,
		Context: model.Context{
			BuildingType: recBuildingType,
			Vintage:      recVintage,
			ClimateZone:  recClimateZone,
		},
		Objective:    obj,
		Budget:       cfg.Optimize.UnboundedBudget,
		PaybackYears: cfg.Optimize.UnboundedBudget,
	}
	if cmd.Flags().Changed("budget") {
		q.Budget = recBudget
	}
	if cmd.Flags().Changed("payback-years") {
		q.PaybackYears = recPayback
	}
	return q, nil
}

func init() {
	f := recommendCmd.Flags()
	f.IntVar(&recBuildingType, "building-type", 0, "building type id (1-based, required)")
	f.IntVar(&recVintage, "vintage", 0, "vintage id (1-based, required)")
	f.IntVar(&recClimateZone, "climate-zone", 0, "climate zone id (1-based, required)")
	f.StringVar(&recObjective, "objective", string(model.ObjectiveEnergySaving), "objective: energy_saving (1) or co2_reduction (2)")
	f.Float64Var(&recBudget, "budget", 0, "maximum total cost (default unbounded)")
	f.Float64Var(&recPayback, "payback-years", 0, "payback limit in years; accepted but not enforced (default unbounded)")
	f.StringVar(&recName, "name", "", "label stored with the run")
	f.BoolVar(&recSave, "save", false, "record the run in the store")
	f.BoolVar(&recJSON, "json", false, "print the run as JSON")
	f.StringVar(&recXLSX, "xlsx", "", "also write the result to this .xlsx path")
	_ = recommendCmd.MarkFlagRequired("building-type")
	_ = recommendCmd.MarkFlagRequired("vintage")
	_ = recommendCmd.MarkFlagRequired("climate-zone")
	rootCmd.AddCommand(recommendCmd)
}
