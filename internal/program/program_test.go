package program

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestNew(t *testing.T) {
	t.Parallel()

	p := New("demo", Maximize, 3)
	assert.Equal(t, 3, p.NumVars())
	assert.Equal(t, 0, p.NumRows())
	assert.Equal(t, []string{"x_0", "x_1", "x_2"}, p.VarNames)
	assert.Equal(t, []VarKind{Binary, Binary, Binary}, p.VarKinds)
	assert.Equal(t, "maximize", p.Direction.String())
	assert.Equal(t, "minimize", Minimize.String())
}

func TestAddDenseRow_KeepsZeroRow(t *testing.T) {
	t.Parallel()

	p := New("demo", Maximize, 3)
	r0, err := p.AddDenseRow("budget", []float64{10, 0, 5}, 15)
	require.NoError(t, err)
	r1, err := p.AddDenseRow("empty", []float64{0, 0, 0}, 4)
	require.NoError(t, err)

	assert.Equal(t, 0, r0)
	assert.Equal(t, 1, r1)
	assert.Equal(t, []Nonzero{{Col: 0, Val: 10}, {Col: 2, Val: 5}}, p.Rows[0].Coefs)
	assert.Empty(t, p.Rows[1].Coefs)
	assert.Equal(t, [][]float64{{10, 0, 5}, {0, 0, 0}}, p.Dense())
	assert.Equal(t, []float64{15, 4}, p.Uppers())

	_, err = p.AddDenseRow("short", []float64{1}, 1)
	assert.Error(t, err)
}

func TestAddSparseRow_ValidatesColumns(t *testing.T) {
	t.Parallel()

	p := New("demo", Maximize, 2)
	_, err := p.AddSparseRow("pair", []Nonzero{{Col: 0, Val: 1}, {Col: 1, Val: 1}}, 1)
	require.NoError(t, err)
	_, err = p.AddSparseRow("bad", []Nonzero{{Col: 2, Val: 1}}, 1)
	assert.Error(t, err)
}

func TestFeasibleAndEvaluate(t *testing.T) {
	t.Parallel()

	p := New("demo", Maximize, 3)
	require.NoError(t, p.SetObjective([]float64{5, 8, 3}))
	_, _ = p.AddDenseRow("budget", []float64{10, 10, 10}, 15)
	_, _ = p.AddSparseRow("conflict", []Nonzero{{Col: 0, Val: 1}, {Col: 1, Val: 1}}, 1)

	assert.True(t, p.Feasible([]float64{0, 1, 0}, 1e-9))
	assert.Equal(t, 8.0, p.Evaluate([]float64{0, 1, 0}))

	v := p.Violations([]float64{1, 1, 0}, 1e-9)
	require.Len(t, v, 2)
	assert.Equal(t, "budget", v[0].Name)
	assert.Equal(t, 20.0, v[0].Activity)
	assert.Equal(t, "conflict", v[1].Name)

	v = p.Violations([]float64{0.5, 0, 0}, 1e-9)
	require.Len(t, v, 1)
	assert.Equal(t, -1, v[0].Row)

	assert.False(t, p.Feasible([]float64{1}, 1e-9))
	assert.Error(t, p.SetObjective([]float64{1}))
}
