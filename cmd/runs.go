package main

import (
	"encoding/json"
	"fmt"
	"io"
	"strconv"
	"strings"
	"text/tabwriter"
	"time"

	"github.com/rotisserie/eris"
	"github.com/spf13/cobra"

	"github.com/sells-group/ecm-cli/internal/model"
	"github.com/sells-group/ecm-cli/internal/monitoring"
	"github.com/sells-group/ecm-cli/internal/store"
)

var runsCmd = &cobra.Command{
	Use:   "runs",
	Short: "Inspect recorded recommendation runs",
}

// -- runs list --

var runsListCmd = &cobra.Command{
	Use:   "list",
	Short: "List recommendation runs",
	RunE: func(cmd *cobra.Command, _ []string) error {
		ctx := cmd.Context()

		if err := cfg.Validate("runs"); err != nil {
			return err
		}
		st, err := initStore(ctx)
		if err != nil {
			return err
		}
		defer st.Close() //nolint:errcheck

		status, _ := cmd.Flags().GetString("status")
		bt, _ := cmd.Flags().GetInt("building-type")
		limit, _ := cmd.Flags().GetInt("limit")

		runs, err := st.ListRuns(ctx, store.RunFilter{
			Status:       model.RunStatus(status),
			BuildingType: bt,
			Limit:        limit,
		})
		if err != nil {
			return eris.Wrap(err, "runs list")
		}

		if len(runs) == 0 {
			_, _ = fmt.Fprintln(cmd.ErrOrStderr(), "No runs found.")
			return nil
		}

		formatRunsList(cmd.OutOrStdout(), runs)
		return nil
	},
}

// -- runs show --

var runsShowCmd = &cobra.Command{
	Use:   "show <run-id>",
	Short: "Show full details of a run",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		ctx := cmd.Context()

		if err := cfg.Validate("runs"); err != nil {
			return err
		}
		st, err := initStore(ctx)
		if err != nil {
			return err
		}
		defer st.Close() //nolint:errcheck

		run, err := st.GetRun(ctx, args[0])
		if err != nil {
			return eris.Wrap(err, "runs show")
		}

		enc := json.NewEncoder(cmd.OutOrStdout())
		enc.SetIndent("", "  ")
		return enc.Encode(run)
	},
}

// -- runs stats --

var runsStatsCmd = &cobra.Command{
	Use:   "stats",
	Short: "Show aggregate run statistics",
	RunE: func(cmd *cobra.Command, _ []string) error {
		ctx := cmd.Context()

		if err := cfg.Validate("runs"); err != nil {
			return err
		}
		st, err := initStore(ctx)
		if err != nil {
			return err
		}
		defer st.Close() //nolint:errcheck

		since, _ := cmd.Flags().GetDuration("since")
		snap, err := monitoring.NewCollector(st).Collect(ctx, int(since.Hours()))
		if err != nil {
			return eris.Wrap(err, "runs stats")
		}

		formatRunStats(cmd.OutOrStdout(), snap)
		return nil
	},
}

func init() {
	runsStatsCmd.Flags().Duration("since", 24*time.Hour, "time window for stats (e.g. 24h, 168h); 0 covers every run")

	runsListCmd.Flags().String("status", "", "filter by run status (running, complete, infeasible, failed)")
	runsListCmd.Flags().Int("building-type", 0, "filter by building type id")
	runsListCmd.Flags().Int("limit", 50, "max number of runs to display")

	runsCmd.AddCommand(runsListCmd)
	runsCmd.AddCommand(runsShowCmd)
	runsCmd.AddCommand(runsStatsCmd)
	rootCmd.AddCommand(runsCmd)
}

// formatRunsList writes a tabular list of runs to out.
func formatRunsList(out io.Writer, runs []model.Run) {
	w := tabwriter.NewWriter(out, 0, 0, 2, ' ', 0)
	_, _ = fmt.Fprintln(w, "ID\tNAME\tSTATUS\tCONTEXT\tOBJECTIVE\tCHOSEN\tVALUE\tCREATED")
	_, _ = fmt.Fprintln(w, "--\t----\t------\t-------\t---------\t------\t-----\t-------")

	for _, r := range runs {
		chosen, value := "-", "-"
		if r.Result != nil {
			chosen = formatIDs(r.Result.ChosenECMs)
			value = strconv.FormatFloat(r.Result.ObjectiveValue, 'f', 2, 64)
		}
		created := "-"
		if !r.CreatedAt.IsZero() {
			created = r.CreatedAt.Format("2006-01-02 15:04")
		}

		_, _ = fmt.Fprintf(w, "%s\t%s\t%s\t%d/%d/%d\t%s\t%s\t%s\t%s\n",
			truncateID(r.ID),
			r.Query.Name,
			r.Status,
			r.Query.Context.BuildingType, r.Query.Context.Vintage, r.Query.Context.ClimateZone,
			r.Query.Objective,
			chosen,
			value,
			created,
		)
	}
	_ = w.Flush()
}

// formatRunStats writes aggregate stats to out.
func formatRunStats(out io.Writer, s *monitoring.Snapshot) {
	w := tabwriter.NewWriter(out, 0, 0, 2, ' ', 0)
	_, _ = fmt.Fprintf(w, "Total runs:\t%d\n", s.Total)
	_, _ = fmt.Fprintf(w, "Complete:\t%d\n", s.Complete)
	_, _ = fmt.Fprintf(w, "Infeasible:\t%d (%.1f%%)\n", s.Infeasible, s.InfeasibleRate*100)
	_, _ = fmt.Fprintf(w, "Failed:\t%d (%.1f%%)\n", s.Failed, s.FailRate*100)
	_, _ = fmt.Fprintf(w, "Running:\t%d\n", s.Running)
	for _, obj := range []model.Objective{model.ObjectiveEnergySaving, model.ObjectiveCO2Reduction} {
		if n := s.ByObjective[obj]; n > 0 {
			_, _ = fmt.Fprintf(w, "  %s:\t%d\n", obj, n)
		}
	}
	if s.Complete > 0 {
		_, _ = fmt.Fprintf(w, "Avg ECMs chosen:\t%.1f\n", s.AvgChosenECMs)
		_, _ = fmt.Fprintf(w, "Avg solver nodes:\t%.0f\n", s.AvgSolverNodes)
		_, _ = fmt.Fprintf(w, "Avg duration:\t%.2fs\n", s.AvgDurationSecs)
	}
	_ = w.Flush()
}

func formatIDs(ids []int) string {
	if len(ids) == 0 {
		return "none"
	}
	parts := make([]string, len(ids))
	for i, id := range ids {
		parts[i] = strconv.Itoa(id)
	}
	s := strings.Join(parts, ",")
	if len(s) > 30 {
		s = s[:27] + "..."
	}
	return s
}

// truncateID returns the first 8 characters of a UUID for compact display.
func truncateID(id string) string {
	if id == "" {
		return "-"
	}
	if len(id) > 8 {
		return id[:8]
	}
	return id
}
