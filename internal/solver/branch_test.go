package solver

import (
	"context"
	"errors"
	"fmt"
	"math"
	"math/rand/v2"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/sells-group/ecm-cli/internal/program"
)

func conflictKnapsack(t *testing.T, budget float64) *program.IntegerProgram {
	t.Helper()
	p := program.New("scenario", program.Maximize, 3)
	require.NoError(t, p.SetObjective([]float64{5, 8, 3}))
	_, err := p.AddDenseRow("budget", []float64{10, 10, 10}, budget)
	require.NoError(t, err)
	_, err = p.AddSparseRow("conflict_0_1", []program.Nonzero{{Col: 0, Val: 1}, {Col: 1, Val: 1}}, 1)
	require.NoError(t, err)
	return p
}

func TestBranchAndBound_ConflictKnapsack(t *testing.T) {
	t.Parallel()

	sol, err := NewBranchAndBound(Options{}).Solve(context.Background(), conflictKnapsack(t, 15))
	require.NoError(t, err)
	require.True(t, sol.IsOptimal())
	assert.Equal(t, []float64{0, 1, 0}, sol.Values)
	assert.Equal(t, 8.0, sol.Objective)
	assert.Positive(t, sol.Nodes)
}

func TestBranchAndBound_ZeroBudget(t *testing.T) {
	t.Parallel()

	sol, err := NewBranchAndBound(Options{}).Solve(context.Background(), conflictKnapsack(t, 0))
	require.NoError(t, err)
	require.True(t, sol.IsOptimal())
	assert.Equal(t, []float64{0, 0, 0}, sol.Values)
	assert.Zero(t, sol.Objective)
}

func TestBranchAndBound_Infeasible(t *testing.T) {
	t.Parallel()

	// An empty row with a negative bound can never hold.
	p := conflictKnapsack(t, 15)
	_, err := p.AddDenseRow("payback_year", []float64{0, 0, 0}, -1)
	require.NoError(t, err)

	sol, err := NewBranchAndBound(Options{}).Solve(context.Background(), p)
	require.NoError(t, err)
	assert.True(t, sol.IsInfeasible())
	assert.Equal(t, "infeasible", sol.Status.String())
}

func TestBranchAndBound_InfeasibleAfterSearch(t *testing.T) {
	t.Parallel()

	// x0 + x1 >= 1 written as -x0 - x1 <= -1, while both are forced to 0.
	p := program.New("cover", program.Maximize, 2)
	require.NoError(t, p.SetObjective([]float64{1, 1}))
	_, _ = p.AddDenseRow("cover", []float64{-1, -1}, -1)
	_, _ = p.AddDenseRow("x0_off", []float64{1, 0}, 0)
	_, _ = p.AddDenseRow("x1_off", []float64{0, 1}, 0)

	sol, err := NewBranchAndBound(Options{}).Solve(context.Background(), p)
	require.NoError(t, err)
	assert.True(t, sol.IsInfeasible())
}

func TestBranchAndBound_Minimize(t *testing.T) {
	t.Parallel()

	// Minimum-cost cover of at least two items.
	p := program.New("min", program.Minimize, 4)
	require.NoError(t, p.SetObjective([]float64{4, 1, 3, 2}))
	_, _ = p.AddDenseRow("at_least_two", []float64{-1, -1, -1, -1}, -2)

	sol, err := NewBranchAndBound(Options{}).Solve(context.Background(), p)
	require.NoError(t, err)
	require.True(t, sol.IsOptimal())
	assert.Equal(t, []float64{0, 1, 0, 1}, sol.Values)
	assert.Equal(t, 3.0, sol.Objective)
}

func TestBranchAndBound_RejectsNonBinary(t *testing.T) {
	t.Parallel()

	p := program.New("bad", program.Maximize, 1)
	p.VarKinds[0] = program.VarKind(7)
	_, err := NewBranchAndBound(Options{}).Solve(context.Background(), p)
	assert.Error(t, err)
}

func TestBranchAndBound_NodeLimit(t *testing.T) {
	t.Parallel()

	p := program.New("wide", program.Maximize, 20)
	obj := make([]float64, 20)
	for j := range obj {
		obj[j] = 1
	}
	require.NoError(t, p.SetObjective(obj))

	sol, err := NewBranchAndBound(Options{NodeLimit: 5}).Solve(context.Background(), p)
	require.Error(t, err)
	assert.True(t, errors.Is(err, ErrNodeLimit))
	assert.Equal(t, StatusInterrupted, sol.Status)
}

func TestBranchAndBound_CancelledContext(t *testing.T) {
	t.Parallel()

	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	sol, err := NewBranchAndBound(Options{}).Solve(ctx, conflictKnapsack(t, 15))
	require.Error(t, err)
	assert.True(t, errors.Is(err, context.Canceled))
	assert.Equal(t, "interrupted", sol.Status.String())
}

func TestWithTimeout(t *testing.T) {
	t.Parallel()

	inner := NewBranchAndBound(Options{})
	assert.Same(t, Solver(inner), WithTimeout(inner, 0))

	wrapped := WithTimeout(inner, time.Minute)
	sol, err := wrapped.Solve(context.Background(), conflictKnapsack(t, 15))
	require.NoError(t, err)
	assert.Equal(t, 8.0, sol.Objective)

	expired := WithTimeout(inner, time.Nanosecond)
	time.Sleep(time.Millisecond)
	_, err = expired.Solve(context.Background(), conflictKnapsack(t, 15))
	require.Error(t, err)
	assert.True(t, errors.Is(err, context.DeadlineExceeded))
}

// bruteForce enumerates every assignment of a small program.
func bruteForce(p *program.IntegerProgram) (float64, bool) {
	n := p.NumVars()
	best := math.Inf(-1)
	found := false
	x := make([]float64, n)
	for mask := 0; mask < 1<<n; mask++ {
		for j := range x {
			x[j] = float64((mask >> j) & 1)
		}
		if !p.Feasible(x, 1e-9) {
			continue
		}
		v := p.Evaluate(x)
		if p.Direction == program.Minimize {
			v = -v
		}
		if v > best {
			best = v
		}
		found = true
	}
	if p.Direction == program.Minimize {
		best = -best
	}
	return best, found
}

func TestBranchAndBound_MatchesBruteForce(t *testing.T) {
	t.Parallel()

	rng := rand.New(rand.NewPCG(7, 11))
	for trial := 0; trial < 200; trial++ {
		n := 2 + rng.IntN(8)
		dir := program.Maximize
		if trial%3 == 0 {
			dir = program.Minimize
		}
		p := program.New("random", dir, n)
		obj := make([]float64, n)
		for j := range obj {
			obj[j] = float64(rng.IntN(21) - 5)
		}
		require.NoError(t, p.SetObjective(obj))

		rows := 1 + rng.IntN(5)
		for r := 0; r < rows; r++ {
			coefs := make([]float64, n)
			for j := range coefs {
				if rng.IntN(3) > 0 {
					coefs[j] = float64(rng.IntN(13) - 3)
				}
			}
			_, err := p.AddDenseRow("r", coefs, float64(rng.IntN(15)-2))
			require.NoError(t, err)
		}

		want, feasible := bruteForce(p)
		sol, err := NewBranchAndBound(Options{}).Solve(context.Background(), p)
		require.NoError(t, err)
		if !feasible {
			assert.True(t, sol.IsInfeasible(), "trial %d", trial)
			continue
		}
		require.True(t, sol.IsOptimal(), "trial %d", trial)
		assert.True(t, p.Feasible(sol.Values, 1e-9), "trial %d", trial)
		assert.InDelta(t, want, sol.Objective, 1e-9, "trial %d", trial)
	}
}

// groupedCatalog is an 82-variable program whose variables fall into
// disjoint groups of mutually conflicting measures. Costs are whole
// hundreds so the optimum can be checked by dynamic programming.
func groupedCatalog(t *testing.T, size int, budget float64, seed uint64) (*program.IntegerProgram, [][]int, []float64, []int) {
	t.Helper()
	const n = 82
	rng := rand.New(rand.NewPCG(seed, uint64(size)))
	obj := make([]float64, n)
	cost := make([]int, n)
	costs := make([]float64, n)
	for j := range obj {
		obj[j] = rng.Float64() * 10
		cost[j] = 10 + rng.IntN(90)
		costs[j] = float64(cost[j] * 100)
	}

	p := program.New("grouped", program.Maximize, n)
	require.NoError(t, p.SetObjective(obj))
	_, err := p.AddDenseRow("budget", costs, budget)
	require.NoError(t, err)
	_, err = p.AddDenseRow("payback_year", make([]float64, n), 1e12)
	require.NoError(t, err)

	var groups [][]int
	for start := 0; start < n; start += size {
		var g []int
		for j := start; j < min(start+size, n); j++ {
			g = append(g, j)
		}
		groups = append(groups, g)
		for _, a := range g {
			for _, b := range g {
				if a == b {
					continue
				}
				_, err := p.AddSparseRow(fmt.Sprintf("conflict_%d_%d", a, b), []program.Nonzero{{Col: a, Val: 1}, {Col: b, Val: 1}}, 1)
				require.NoError(t, err)
			}
		}
	}
	return p, groups, obj, cost
}

// bestPerGroup solves the grouped program exactly: at most one member per
// group within capacity hundreds.
func bestPerGroup(groups [][]int, obj []float64, cost []int, capacity int) float64 {
	dp := make([]float64, capacity+1)
	for _, g := range groups {
		next := append([]float64(nil), dp...)
		for c := 0; c <= capacity; c++ {
			for _, j := range g {
				if cost[j] <= c && obj[j] > 0 {
					next[c] = max(next[c], dp[c-cost[j]]+obj[j])
				}
			}
		}
		dp = next
	}
	return dp[capacity]
}

func TestBranchAndBound_GroupedConflicts(t *testing.T) {
	t.Parallel()

	for _, size := range []int{2, 3, 4} {
		for _, budget := range []float64{1e12, 150000, 60000} {
			t.Run(fmt.Sprintf("groups_of_%d/budget_%g", size, budget), func(t *testing.T) {
				t.Parallel()
				p, groups, obj, cost := groupedCatalog(t, size, budget, 42)

				capacity := 82 * 100
				if budget < 1e12 {
					capacity = int(budget / 100)
				}
				want := bestPerGroup(groups, obj, cost, capacity)

				ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
				defer cancel()
				sol, err := NewBranchAndBound(Options{}).Solve(ctx, p)
				require.NoError(t, err)
				require.True(t, sol.IsOptimal())
				assert.InDelta(t, want, sol.Objective, 1e-6)
				assert.True(t, p.Feasible(sol.Values, 1e-9))
			})
		}
	}
}

func TestBranchAndBound_UnboundedBudgetStopsAtRelaxation(t *testing.T) {
	t.Parallel()

	p, groups, obj, _ := groupedCatalog(t, 4, 1e12, 7)
	var want float64
	for _, g := range groups {
		var top float64
		for _, j := range g {
			top = max(top, obj[j])
		}
		want += top
	}

	sol, err := NewBranchAndBound(Options{NodeLimit: 1000}).Solve(context.Background(), p)
	require.NoError(t, err)
	assert.InDelta(t, want, sol.Objective, 1e-9)
	assert.LessOrEqual(t, sol.Nodes, 82+1)
}
