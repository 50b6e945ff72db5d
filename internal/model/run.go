package model

import "time"

// RunStatus represents the current state of a recommendation run.
type RunStatus string

const (
	RunStatusRunning    RunStatus = "running"
	RunStatusComplete   RunStatus = "complete"
	RunStatusInfeasible RunStatus = "infeasible"
	RunStatusFailed     RunStatus = "failed"
)

// Recommendation is the interpreted outcome of one solve.
type Recommendation struct {
	Query          Query   `json:"query"`
	ChosenECMs     []int   `json:"chosen_ecms"`
	ObjectiveValue float64 `json:"objective_value"`
	TotalCost      float64 `json:"total_cost"`
	// TotalCO2Reduction is expressed in klbs.
	TotalCO2Reduction    float64 `json:"total_co2_reduction_klbs"`
	TotalEnergySavingPct float64 `json:"total_energy_saving_pct"`
	BaselineEnergy       float64 `json:"baseline_energy"`
	EnergySaved          float64 `json:"energy_saved"`
	// PaybackEnforced is false until a payback cost model exists; the
	// payback row is carried with zero coefficients.
	PaybackEnforced bool `json:"payback_enforced"`
	SolverNodes     int  `json:"solver_nodes,omitempty"`
}

// Run records a recommendation request and its outcome.
type Run struct {
	ID        string          `json:"id"`
	Query     Query           `json:"query"`
	Status    RunStatus       `json:"status"`
	Result    *Recommendation `json:"result,omitempty"`
	Error     string          `json:"error,omitempty"`
	CreatedAt time.Time       `json:"created_at"`
	UpdatedAt time.Time       `json:"updated_at"`
}

// StatusForError classifies a failed run.
func StatusForError(err error) RunStatus {
	if IsInfeasible(err) {
		return RunStatusInfeasible
	}
	return RunStatusFailed
}
