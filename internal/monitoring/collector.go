// Package monitoring summarizes recorded recommendation runs.
package monitoring

import (
	"context"
	"time"

	"github.com/rotisserie/eris"

	"github.com/sells-group/ecm-cli/internal/model"
	"github.com/sells-group/ecm-cli/internal/store"
)

// maxRuns caps how many runs one snapshot scans.
const maxRuns = 10000

// Snapshot is a point-in-time view of run outcomes within a lookback window.
type Snapshot struct {
	Total      int `json:"total"`
	Complete   int `json:"complete"`
	Infeasible int `json:"infeasible"`
	Failed     int `json:"failed"`
	Running    int `json:"running"`

	// FailRate is failed / finished; infeasible runs count as finished.
	FailRate       float64 `json:"fail_rate"`
	InfeasibleRate float64 `json:"infeasible_rate"`

	AvgChosenECMs   float64 `json:"avg_chosen_ecms"`
	AvgSolverNodes  float64 `json:"avg_solver_nodes"`
	AvgDurationSecs float64 `json:"avg_duration_secs"`

	// ByObjective counts completed runs per objective.
	ByObjective map[model.Objective]int `json:"by_objective"`

	LookbackHours int       `json:"lookback_hours"`
	CollectedAt   time.Time `json:"collected_at"`
}

// RunLister is the part of store.Store the collector reads.
type RunLister interface {
	ListRuns(ctx context.Context, filter store.RunFilter) ([]model.Run, error)
}

// Collector gathers run metrics from the store.
type Collector struct {
	runs RunLister
	now  func() time.Time
}

// NewCollector creates a new metrics collector.
func NewCollector(runs RunLister) *Collector {
	return &Collector{runs: runs, now: time.Now}
}

// Collect summarizes runs created within the last lookbackHours. A
// non-positive lookback covers every run.
func (c *Collector) Collect(ctx context.Context, lookbackHours int) (*Snapshot, error) {
	now := c.now().UTC()
	snap := &Snapshot{
		ByObjective:   map[model.Objective]int{},
		LookbackHours: lookbackHours,
		CollectedAt:   now,
	}

	filter := store.RunFilter{Limit: maxRuns}
	if lookbackHours > 0 {
		filter.CreatedAfter = now.Add(-time.Duration(lookbackHours) * time.Hour)
	}
	runs, err := c.runs.ListRuns(ctx, filter)
	if err != nil {
		return nil, eris.Wrap(err, "monitoring: list runs")
	}

	snap.Total = len(runs)
	var chosen, nodes int
	var duration time.Duration
	for _, r := range runs {
		switch r.Status {
		case model.RunStatusComplete:
			snap.Complete++
			snap.ByObjective[r.Query.Objective]++
			duration += r.UpdatedAt.Sub(r.CreatedAt)
			if r.Result != nil {
				chosen += len(r.Result.ChosenECMs)
				nodes += r.Result.SolverNodes
			}
		case model.RunStatusInfeasible:
			snap.Infeasible++
		case model.RunStatusFailed:
			snap.Failed++
		case model.RunStatusRunning:
			snap.Running++
		}
	}

	if finished := snap.Complete + snap.Infeasible + snap.Failed; finished > 0 {
		snap.FailRate = float64(snap.Failed) / float64(finished)
		snap.InfeasibleRate = float64(snap.Infeasible) / float64(finished)
	}
	if snap.Complete > 0 {
		n := float64(snap.Complete)
		snap.AvgChosenECMs = float64(chosen) / n
		snap.AvgSolverNodes = float64(nodes) / n
		snap.AvgDurationSecs = duration.Seconds() / n
	}
	return snap, nil
}
