// Package solver searches binary integer programs for an optimal assignment.
package solver

import (
	"context"
	"errors"
	"time"

	"github.com/sells-group/ecm-cli/internal/program"
)

// Status is the outcome of a solve.
type Status int

const (
	StatusOptimal Status = iota
	StatusInfeasible
	StatusInterrupted
)

func (s Status) String() string {
	switch s {
	case StatusOptimal:
		return "optimal"
	case StatusInfeasible:
		return "infeasible"
	case StatusInterrupted:
		return "interrupted"
	default:
		return "unknown"
	}
}

// ErrNodeLimit is returned when a search exhausts its node budget before
// proving optimality.
var ErrNodeLimit = errors.New("solver: node limit reached")

// Solution is the raw solver result. Values holds one entry per variable
// and is only meaningful when Status is StatusOptimal.
type Solution struct {
	Status    Status
	Values    []float64
	Objective float64
	Nodes     int
}

// IsOptimal returns true if the solution is optimal.
func (s *Solution) IsOptimal() bool { return s.Status == StatusOptimal }

// IsInfeasible returns true if the program has no feasible assignment.
func (s *Solution) IsInfeasible() bool { return s.Status == StatusInfeasible }

// Solver finds an optimal assignment for a binary integer program.
// Infeasibility is reported through Solution.Status with a nil error;
// a non-nil error means the search did not complete.
type Solver interface {
	Solve(ctx context.Context, p *program.IntegerProgram) (*Solution, error)
}

type timeoutSolver struct {
	inner   Solver
	timeout time.Duration
}

// WithTimeout bounds every Solve call on s by d. A non-positive d returns s.
func WithTimeout(s Solver, d time.Duration) Solver {
	if d <= 0 {
		return s
	}
	return &timeoutSolver{inner: s, timeout: d}
}

func (t *timeoutSolver) Solve(ctx context.Context, p *program.IntegerProgram) (*Solution, error) {
	ctx, cancel := context.WithTimeout(ctx, t.timeout)
	defer cancel()
	return t.inner.Solve(ctx, p)
}
