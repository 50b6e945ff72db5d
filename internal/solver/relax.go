package solver

import (
	"gonum.org/v1/gonum/mat"
	"gonum.org/v1/gonum/optimize/convex/lp"
)

// simplexTol is the reduced-cost tolerance handed to lp.Simplex.
const simplexTol = 1e-10

// relaxation solves the LP relaxation of the program at the root with
// gonum's simplex and returns its optimal value. It keeps only the
// profitable variables that can be 1 on their own, one row per conflict
// group and every nonnegative knapsack row that is not redundant; dropping
// rows and unprofitable variables only loosens the relaxation, so the value
// stays a valid upper bound. ok is false when the LP could not be solved.
func (s *search) relaxation() (float64, bool) {
	col := make(map[int]int)
	var vars []int
	for _, j := range s.order {
		if s.obj[j] > 0 && s.addable(j) {
			col[j] = len(vars)
			vars = append(vars, j)
		}
	}
	if len(vars) == 0 {
		return 0, true
	}

	var rows [][]float64
	var rhs []float64
	inGroup := make([]bool, len(vars))
	for _, g := range s.groups {
		row := make([]float64, len(vars))
		members := 0
		for _, j := range g {
			if c, ok := col[j]; ok {
				row[c] = 1
				members++
			}
		}
		if members < 2 {
			continue
		}
		for c, v := range row {
			if v != 0 {
				inGroup[c] = true
			}
		}
		rows = append(rows, row)
		rhs = append(rhs, 1)
	}
	for c := range vars {
		if inGroup[c] {
			continue
		}
		row := make([]float64, len(vars))
		row[c] = 1
		rows = append(rows, row)
		rhs = append(rhs, 1)
	}
	for _, kr := range s.knap {
		row := make([]float64, len(vars))
		var total, largest float64
		for c, j := range vars {
			row[c] = kr.coef[j]
			total += kr.coef[j]
			largest = max(largest, kr.coef[j])
		}
		upper := max(s.upper[kr.row], 0)
		if total <= upper || largest == 0 {
			continue
		}
		for c := range row {
			row[c] /= largest
		}
		rows = append(rows, row)
		rhs = append(rhs, upper/largest)
	}

	// Standard form: [G I][x; slack] = h, slack basis is feasible since h >= 0.
	m, k := len(rows), len(vars)
	a := mat.NewDense(m, k+m, nil)
	c := make([]float64, k+m)
	basic := make([]int, m)
	for i, row := range rows {
		a.SetRow(i, append(row, make([]float64, m)...))
		a.Set(i, k+i, 1)
		basic[i] = k + i
	}
	for ci, j := range vars {
		c[ci] = -s.obj[j]
	}

	opt, _, err := lp.Simplex(c, a, rhs, simplexTol, basic)
	if err != nil {
		return 0, false
	}
	return -opt, true
}
