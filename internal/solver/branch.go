package solver

import (
	"context"
	"math"
	"sort"

	"github.com/rotisserie/eris"
	"go.uber.org/zap"

	"github.com/sells-group/ecm-cli/internal/program"
)

// Options tunes the branch-and-bound search.
type Options struct {
	// NodeLimit caps explored nodes. Zero means unlimited.
	NodeLimit int
	// Tolerance is the relative feasibility and optimality tolerance.
	// Default: 1e-9.
	Tolerance float64
}

// BranchAndBound is a depth-first branch-and-bound search over binary
// variables. It keeps row activities incrementally and prunes a branch as
// soon as some row can no longer be satisfied.
//
// Pairwise conflict rows are merged into groups of mutually exclusive
// variables. A node is bounded by the best addable gain per group and by
// the multiple-choice knapsack relaxation of every dense nonnegative row
// over those groups. The LP relaxation solved once at the root lets the
// search stop as soon as an incumbent reaches it.
type BranchAndBound struct {
	opts Options
}

// NewBranchAndBound creates a BranchAndBound solver.
func NewBranchAndBound(opts Options) *BranchAndBound {
	if opts.Tolerance <= 0 {
		opts.Tolerance = 1e-9
	}
	return &BranchAndBound{opts: opts}
}

// knapsackMinCoefs is the number of nonzeros from which a nonnegative row
// gets its own fractional bound. Sparser rows are covered by addability.
const knapsackMinCoefs = 3

// ctxCheckInterval is how often, in nodes, the context is polled.
const ctxCheckInterval = 256

type entry struct {
	row int
	val float64
}

type knapRow struct {
	row  int
	coef []float64 // dense, by column
}

// point is a (weight, gain) candidate of one group within a knapsack row.
type point struct {
	w, v float64
}

// step is one segment of a group's upper hull.
type step struct {
	w, v, slope float64
}

type search struct {
	ctx       context.Context
	nodeLimit int

	n       int
	obj     []float64 // maximize sense
	order   []int
	cols    [][]entry
	upper   []float64
	rowTol  []float64
	objTol  float64
	knap    []knapRow
	act     []float64
	minRest []float64

	conflict []map[int]bool
	groups   [][]int // members in descending objective order

	rootBound    float64
	hasRootBound bool
	done         bool

	x       []float64
	free    []bool
	cur     float64
	canTake []bool

	best    []float64
	bestObj float64
	hasBest bool

	nodes int
	err   error

	pts   []point
	hull  []point
	steps []step
}

// Solve runs the search. Programs must be all-binary.
func (b *BranchAndBound) Solve(ctx context.Context, p *program.IntegerProgram) (*Solution, error) {
	for j, k := range p.VarKinds {
		if k != program.Binary {
			return nil, eris.Errorf("solver: variable %s is not binary", p.VarNames[j])
		}
	}

	s := b.newSearch(ctx, p)
	log := zap.L().With(zap.String("component", "solver"), zap.String("program", p.Name))

	if !s.rootFeasible() {
		log.Debug("program infeasible at root", zap.Int("rows", p.NumRows()))
		return &Solution{Status: StatusInfeasible, Nodes: 0}, nil
	}

	s.rootBound, s.hasRootBound = s.relaxation()
	if s.hasRootBound {
		log.Debug("root relaxation", zap.Float64("bound", s.rootBound), zap.Int("groups", len(s.groups)))
	}

	s.dfs(0)

	if s.err != nil {
		log.Warn("search interrupted", zap.Int("nodes", s.nodes), zap.Error(s.err))
		return &Solution{Status: StatusInterrupted, Nodes: s.nodes}, eris.Wrapf(s.err, "solver: interrupted after %d nodes", s.nodes)
	}
	if !s.hasBest {
		return &Solution{Status: StatusInfeasible, Nodes: s.nodes}, nil
	}

	log.Debug("search complete", zap.Int("nodes", s.nodes), zap.Float64("objective", p.Evaluate(s.best)))
	return &Solution{
		Status:    StatusOptimal,
		Values:    s.best,
		Objective: p.Evaluate(s.best),
		Nodes:     s.nodes,
	}, nil
}

func (b *BranchAndBound) newSearch(ctx context.Context, p *program.IntegerProgram) *search {
	n := p.NumVars()
	m := p.NumRows()
	tol := b.opts.Tolerance

	s := &search{
		ctx:       ctx,
		nodeLimit: b.opts.NodeLimit,
		n:         n,
		obj:       make([]float64, n),
		cols:      make([][]entry, n),
		upper:     make([]float64, m),
		rowTol:    make([]float64, m),
		act:       make([]float64, m),
		minRest:   make([]float64, m),
		x:         make([]float64, n),
		free:      make([]bool, n),
		canTake:   make([]bool, n),
		conflict:  make([]map[int]bool, n),
	}

	var maxObj float64
	for j, c := range p.Objective {
		if p.Direction == program.Minimize {
			c = -c
		}
		s.obj[j] = c
		maxObj = math.Max(maxObj, math.Abs(c))
		s.free[j] = true
	}
	s.objTol = tol * math.Max(1, maxObj)

	for r, row := range p.Rows {
		s.upper[r] = row.Upper
		s.rowTol[r] = tol * math.Max(1, math.Abs(row.Upper))
		nonneg := true
		for _, nz := range row.Coefs {
			s.cols[nz.Col] = append(s.cols[nz.Col], entry{row: r, val: nz.Val})
			if nz.Val < 0 {
				s.minRest[r] += nz.Val
				nonneg = false
			}
		}
		if nonneg && len(row.Coefs) >= knapsackMinCoefs {
			s.knap = append(s.knap, s.newKnapRow(r, row))
		}
		if a, b, ok := pairConflict(row, s.rowTol[r]); ok {
			s.addConflict(a, b)
		}
	}

	s.order = make([]int, n)
	for j := range s.order {
		s.order[j] = j
	}
	sort.SliceStable(s.order, func(a, b int) bool {
		return s.obj[s.order[a]] > s.obj[s.order[b]]
	})
	s.buildGroups()
	if kr, ok := s.bindingRow(); ok {
		s.orderByRatio(kr)
	}
	return s
}

// bindingRow returns the first knapsack row that cannot hold the best member
// of every group at once.
func (s *search) bindingRow() (knapRow, bool) {
	for _, kr := range s.knap {
		var need float64
		for _, g := range s.groups {
			need += kr.coef[g[0]]
		}
		if need > s.upper[kr.row]+s.rowTol[kr.row] {
			return kr, true
		}
	}
	return knapRow{}, false
}

// orderByRatio branches on the best gain per unit of kr first. Variables
// that do not use kr come first.
func (s *search) orderByRatio(kr knapRow) {
	ratio := make([]float64, s.n)
	for j := range ratio {
		switch {
		case s.obj[j] <= 0:
			ratio[j] = math.Inf(-1)
		case kr.coef[j] <= 0:
			ratio[j] = math.Inf(1)
		default:
			ratio[j] = s.obj[j] / kr.coef[j]
		}
	}
	sort.SliceStable(s.order, func(a, b int) bool {
		return ratio[s.order[a]] > ratio[s.order[b]]
	})
}

func (s *search) newKnapRow(r int, row program.Row) knapRow {
	kr := knapRow{row: r, coef: make([]float64, s.n)}
	for _, nz := range row.Coefs {
		kr.coef[nz.Col] += nz.Val
	}
	return kr
}

// pairConflict reports whether row forbids its two variables from both
// being 1 while allowing either one alone.
func pairConflict(row program.Row, tol float64) (int, int, bool) {
	if len(row.Coefs) != 2 {
		return 0, 0, false
	}
	a, b := row.Coefs[0], row.Coefs[1]
	if a.Col == b.Col || a.Val <= 0 || b.Val <= 0 {
		return 0, 0, false
	}
	if a.Val > row.Upper+tol || b.Val > row.Upper+tol || a.Val+b.Val <= row.Upper+tol {
		return 0, 0, false
	}
	return a.Col, b.Col, true
}

func (s *search) addConflict(a, b int) {
	if s.conflict[a] == nil {
		s.conflict[a] = map[int]bool{}
	}
	if s.conflict[b] == nil {
		s.conflict[b] = map[int]bool{}
	}
	s.conflict[a][b] = true
	s.conflict[b][a] = true
}

// buildGroups greedily partitions the profitable variables into cliques of
// the conflict graph. At most one member of a group can be 1.
func (s *search) buildGroups() {
	for _, j := range s.order {
		if s.obj[j] <= 0 {
			continue
		}
		placed := false
		for g, members := range s.groups {
			if s.conflictsWithAll(j, members) {
				s.groups[g] = append(members, j)
				placed = true
				break
			}
		}
		if !placed {
			s.groups = append(s.groups, []int{j})
		}
	}
}

func (s *search) conflictsWithAll(j int, members []int) bool {
	for _, m := range members {
		if !s.conflict[j][m] {
			return false
		}
	}
	return true
}

func (s *search) rootFeasible() bool {
	for r := range s.upper {
		if s.act[r]+s.minRest[r] > s.upper[r]+s.rowTol[r] {
			return false
		}
	}
	return true
}

// fix sets x_j = v and reports whether every touched row remains
// satisfiable. The update is applied even when it fails; unfix reverts it.
func (s *search) fix(j int, v float64) bool {
	s.free[j] = false
	s.x[j] = v
	s.cur += s.obj[j] * v
	ok := true
	for _, e := range s.cols[j] {
		if e.val < 0 {
			s.minRest[e.row] -= e.val
		}
		s.act[e.row] += e.val * v
		if s.act[e.row]+s.minRest[e.row] > s.upper[e.row]+s.rowTol[e.row] {
			ok = false
		}
	}
	return ok
}

func (s *search) unfix(j int, v float64) {
	for _, e := range s.cols[j] {
		s.act[e.row] -= e.val * v
		if e.val < 0 {
			s.minRest[e.row] += e.val
		}
	}
	s.cur -= s.obj[j] * v
	s.x[j] = 0
	s.free[j] = true
}

// addable reports whether x_j = 1 keeps every row of j satisfiable given
// the current partial assignment.
func (s *search) addable(j int) bool {
	for _, e := range s.cols[j] {
		if s.act[e.row]+s.minRest[e.row]+math.Max(e.val, 0) > s.upper[e.row]+s.rowTol[e.row] {
			return false
		}
	}
	return true
}

func (s *search) bound() float64 {
	for j := 0; j < s.n; j++ {
		s.canTake[j] = s.free[j] && s.obj[j] > 0 && s.addable(j)
	}

	best := s.cur
	for _, g := range s.groups {
		for _, j := range g {
			if s.canTake[j] {
				best += s.obj[j]
				break
			}
		}
	}

	for _, kr := range s.knap {
		if sum := s.choiceKnapsack(kr); sum < best {
			best = sum
		}
	}
	return best
}

// choiceKnapsack is the LP bound of picking at most one addable variable
// per group under the remaining capacity of row kr.
func (s *search) choiceKnapsack(kr knapRow) float64 {
	capacity := math.Max(s.upper[kr.row]-s.act[kr.row], 0)
	sum := s.cur
	s.steps = s.steps[:0]
	for _, g := range s.groups {
		s.pts = s.pts[:0]
		for _, j := range g {
			if s.canTake[j] {
				s.pts = append(s.pts, point{w: kr.coef[j], v: s.obj[j]})
			}
		}
		if len(s.pts) > 0 {
			sum += s.hullSteps()
		}
	}

	sort.Slice(s.steps, func(a, b int) bool {
		return s.steps[a].slope > s.steps[b].slope
	})
	for _, st := range s.steps {
		if st.w <= capacity {
			sum += st.v
			capacity -= st.w
			continue
		}
		sum += st.v * capacity / st.w
		break
	}
	return sum
}

// hullSteps appends the segments of the upper concave hull of s.pts to
// s.steps and returns the gain available at zero weight.
func (s *search) hullSteps() float64 {
	var base float64
	for _, p := range s.pts {
		if p.w <= 0 && p.v > base {
			base = p.v
		}
	}
	sort.Slice(s.pts, func(a, b int) bool {
		if s.pts[a].w != s.pts[b].w {
			return s.pts[a].w < s.pts[b].w
		}
		return s.pts[a].v > s.pts[b].v
	})

	s.hull = append(s.hull[:0], point{v: base})
	for _, p := range s.pts {
		if p.w <= 0 || p.v <= s.hull[len(s.hull)-1].v {
			continue
		}
		for len(s.hull) >= 2 {
			a, b := s.hull[len(s.hull)-2], s.hull[len(s.hull)-1]
			if (b.v-a.v)*(p.w-a.w) > (p.v-a.v)*(b.w-a.w) {
				break
			}
			s.hull = s.hull[:len(s.hull)-1]
		}
		s.hull = append(s.hull, p)
	}
	for i := 1; i < len(s.hull); i++ {
		w := s.hull[i].w - s.hull[i-1].w
		v := s.hull[i].v - s.hull[i-1].v
		s.steps = append(s.steps, step{w: w, v: v, slope: v / w})
	}
	return base
}

func (s *search) dfs(k int) {
	if s.err != nil || s.done {
		return
	}
	s.nodes++
	if (s.nodes-1)%ctxCheckInterval == 0 {
		if err := s.ctx.Err(); err != nil {
			s.err = err
			return
		}
	}
	if s.nodeLimit > 0 && s.nodes > s.nodeLimit {
		s.err = ErrNodeLimit
		return
	}

	if k == s.n {
		if !s.hasBest || s.cur > s.bestObj+s.objTol {
			s.best = append(s.best[:0], s.x...)
			s.bestObj = s.cur
			s.hasBest = true
			s.done = s.hasRootBound && s.bestObj >= s.rootBound-s.objTol
		}
		return
	}

	if s.hasBest && s.bound() <= s.bestObj+s.objTol {
		return
	}

	j := s.order[k]
	branches := [2]float64{1, 0}
	if s.obj[j] <= 0 {
		branches = [2]float64{0, 1}
	}
	for _, v := range branches {
		if s.fix(j, v) {
			s.dfs(k + 1)
		}
		s.unfix(j, v)
		if s.err != nil || s.done {
			return
		}
	}
}
