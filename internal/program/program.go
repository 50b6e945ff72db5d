// Package program describes a binary integer program independently of the
// solver that will search it.
//
// A program has the form
//
//	maximize (or minimize)  c · x
//	subject to              A_r · x <= u_r   for every row r
//	                        x_j in {0, 1}
//
// Rows are stored sparsely; a row whose coefficients are all zero is still
// kept so row indices stay stable.
package program

import (
	"fmt"
	"math"

	"github.com/rotisserie/eris"
	"gonum.org/v1/gonum/floats"
)

// Direction is the optimization sense.
type Direction int

const (
	Maximize Direction = iota
	Minimize
)

func (d Direction) String() string {
	if d == Minimize {
		return "minimize"
	}
	return "maximize"
}

// VarKind is the domain of a decision variable.
type VarKind int

const (
	// Binary variables take values in {0, 1}.
	Binary VarKind = iota
)

// Nonzero is one coefficient of a sparse row.
type Nonzero struct {
	Col int
	Val float64
}

// Row is an upper-bounded linear constraint.
type Row struct {
	Name  string
	Coefs []Nonzero
	Upper float64
}

// IntegerProgram is the full model handed to a solver.
type IntegerProgram struct {
	Name      string
	Direction Direction
	VarNames  []string
	VarKinds  []VarKind
	Objective []float64
	Rows      []Row
}

// New creates an empty program over n binary variables named x_0..x_{n-1}.
func New(name string, dir Direction, n int) *IntegerProgram {
	p := &IntegerProgram{
		Name:      name,
		Direction: dir,
		VarNames:  make([]string, n),
		VarKinds:  make([]VarKind, n),
		Objective: make([]float64, n),
	}
	for j := range n {
		p.VarNames[j] = fmt.Sprintf("x_%d", j)
		p.VarKinds[j] = Binary
	}
	return p
}

// NumVars returns the number of decision variables.
func (p *IntegerProgram) NumVars() int { return len(p.Objective) }

// NumRows returns the number of constraint rows.
func (p *IntegerProgram) NumRows() int { return len(p.Rows) }

// SetObjective copies coefs into the objective vector.
func (p *IntegerProgram) SetObjective(coefs []float64) error {
	if len(coefs) != p.NumVars() {
		return eris.Errorf("program %s: objective has %d coefficients, want %d", p.Name, len(coefs), p.NumVars())
	}
	copy(p.Objective, coefs)
	return nil
}

// AddDenseRow appends a row from a dense coefficient vector, dropping zeros.
// It returns the index of the new row.
func (p *IntegerProgram) AddDenseRow(name string, coefs []float64, upper float64) (int, error) {
	if len(coefs) != p.NumVars() {
		return 0, eris.Errorf("program %s: row %s has %d coefficients, want %d", p.Name, name, len(coefs), p.NumVars())
	}
	row := Row{Name: name, Upper: upper}
	for col, v := range coefs {
		if v != 0 {
			row.Coefs = append(row.Coefs, Nonzero{Col: col, Val: v})
		}
	}
	p.Rows = append(p.Rows, row)
	return len(p.Rows) - 1, nil
}

// AddSparseRow appends a row from explicit nonzeros.
func (p *IntegerProgram) AddSparseRow(name string, coefs []Nonzero, upper float64) (int, error) {
	for _, nz := range coefs {
		if nz.Col < 0 || nz.Col >= p.NumVars() {
			return 0, eris.Errorf("program %s: row %s references column %d of %d", p.Name, name, nz.Col, p.NumVars())
		}
	}
	p.Rows = append(p.Rows, Row{Name: name, Coefs: coefs, Upper: upper})
	return len(p.Rows) - 1, nil
}

// Activity returns A_r · x.
func (p *IntegerProgram) Activity(r int, x []float64) float64 {
	var sum float64
	for _, nz := range p.Rows[r].Coefs {
		sum += nz.Val * x[nz.Col]
	}
	return sum
}

// Evaluate returns c · x.
func (p *IntegerProgram) Evaluate(x []float64) float64 {
	return floats.Dot(p.Objective, x)
}

// Violation describes a row or variable an assignment breaks.
type Violation struct {
	Row      int
	Name     string
	Activity float64
	Upper    float64
}

// Violations lists every constraint x breaks, including non-binary values.
func (p *IntegerProgram) Violations(x []float64, tol float64) []Violation {
	var out []Violation
	for j, v := range x {
		if math.Abs(v) > tol && math.Abs(v-1) > tol {
			out = append(out, Violation{Row: -1, Name: p.VarNames[j], Activity: v, Upper: 1})
		}
	}
	for r, row := range p.Rows {
		a := p.Activity(r, x)
		if a > row.Upper+tol {
			out = append(out, Violation{Row: r, Name: row.Name, Activity: a, Upper: row.Upper})
		}
	}
	return out
}

// Feasible reports whether x satisfies every row and is binary.
func (p *IntegerProgram) Feasible(x []float64, tol float64) bool {
	if len(x) != p.NumVars() {
		return false
	}
	return len(p.Violations(x, tol)) == 0
}

// Dense expands the constraint matrix, one slice per row.
func (p *IntegerProgram) Dense() [][]float64 {
	out := make([][]float64, len(p.Rows))
	for r, row := range p.Rows {
		out[r] = make([]float64, p.NumVars())
		for _, nz := range row.Coefs {
			out[r][nz.Col] = nz.Val
		}
	}
	return out
}

// Uppers returns the row upper bounds in row order.
func (p *IntegerProgram) Uppers() []float64 {
	out := make([]float64, len(p.Rows))
	for r, row := range p.Rows {
		out[r] = row.Upper
	}
	return out
}
