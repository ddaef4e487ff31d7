package equation

import (
	"context"
	"github.com/notargets/gocbs/assembler"
	"github.com/notargets/gocbs/conditions"
	"github.com/notargets/gocbs/element"
	"github.com/notargets/gocbs/mesh"
	"github.com/notargets/gocbs/solver"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/goleak"
	"go.uber.org/zap/zaptest"
	"gonum.org/v1/gonum/mat"
	"sync"
	"sync/atomic"
	"testing"
)

func TestMain(m *testing.M) {
	goleak.VerifyTestMain(m)
}

func square(t *testing.T) *mesh.Mesh {
	t.Helper()
	m, err := mesh.New(mesh.Import{
		Points: [][]float64{{0, 0, 0}, {1, 0, 0}, {1, 1, 0}, {0, 1, 0}},
		Cells: []mesh.CellBlock{
			{Type: element.Line, Connectivity: [][]int{{0, 1}}, Physical: []int{1}, Geometrical: []int{1}},
			{Type: element.Tri, Connectivity: [][]int{{0, 1, 2}, {0, 2, 3}}, Physical: []int{5, 5}, Geometrical: []int{1, 1}},
		},
		NamedGroups: map[string]mesh.NamedGroup{"wall": {Dim: element.D1, Tag: 1}},
	}, zaptest.NewLogger(t))
	require.NoError(t, err)
	return m
}

// kernels assemble a diagonal "mass" of 1 per element and node, and a load
// of 1 for the first field and 2 for the second
type kernels struct {
	lhsCalls atomic.Int64
	rhsCalls atomic.Int64
}

func (k *kernels) lhs(e *element.Element, _ *mesh.Nodes, _ assembler.Parameters) (*mat.Dense, error) {
	k.lhsCalls.Add(1)
	return mat.NewDense(3, 3, []float64{1, 0, 0, 0, 1, 0, 0, 0, 1}), nil
}

func (k *kernels) rhs(e *element.Element, _ *mesh.Nodes, _ assembler.Parameters) (*mat.Dense, error) {
	k.rhsCalls.Add(1)
	return mat.NewDense(2, 3, []float64{1, 1, 1, 2, 2, 2}), nil
}

type debugRecorder struct {
	mu   sync.Mutex
	keys []string
}

func (d *debugRecorder) WriteDebug(key string, _ interface{}) error {
	d.mu.Lock()
	defer d.mu.Unlock()
	d.keys = append(d.keys, key)
	return nil
}

func setup(t *testing.T) (*mesh.Mesh, *assembler.Assembler, *conditions.DomainConditions, *Equation, *kernels) {
	m := square(t)
	defaults := map[string]float64{"a": 0, "b": 0}
	dc, err := conditions.New(m, defaults, nil,
		[]conditions.Directive{{GroupName: "wall", Field: "a", Kind: conditions.Dirichlet, Value: 7}}, nil)
	require.NoError(t, err)
	require.NoError(t, dc.ApplyInitialConditions(m.Nodes))

	a := assembler.New(zaptest.NewLogger(t))
	k := &kernels{}
	eq, err := New("step x", []string{"a", "b"}, a, zaptest.NewLogger(t),
		Registration{Geometry: element.Tri, LHS: k.lhs, RHS: k.rhs})
	require.NoError(t, err)
	return m, a, dc, eq, k
}

func TestCalculateSolution(t *testing.T) {
	m, a, dc, eq, k := setup(t)
	settings := solver.Settings{Tolerance: 1e-12, MaxIterations: 100, Preconditioner: solver.Jacobi}
	rec := &debugRecorder{}

	sol, reports, err := eq.CalculateSolution(context.Background(), m, a, dc, nil, settings, true, true, rec)
	require.NoError(t, err)

	// Nodes 0 and 2 belong to both triangles: diagonal and load both double
	assert.True(t, reports["a"].Success)
	assert.True(t, reports["b"].Success)
	assert.InDeltaSlice(t, []float64{7, 7, 1, 1}, sol["a"], 1e-12)
	assert.InDeltaSlice(t, []float64{2, 2, 2, 2}, sol["b"], 1e-12)

	// Node values are left to the caller
	a0, _ := m.Nodes.Values("a")
	assert.Equal(t, []float64{7, 7, 0, 0}, a0)

	assert.Equal(t, []string{
		"step x/lhs_assembled",
		"step x/rhs_assembled",
		"step x/a/lhs_condition_applied",
		"step x/a/rhs_condition_applied",
		"step x/b/lhs_condition_applied",
		"step x/b/rhs_condition_applied",
	}, rec.keys)

	// Cached LHS is reused when not flagged
	lhsCalls := k.lhsCalls.Load()
	_, reports, err = eq.CalculateSolution(context.Background(), m, a, dc, nil, settings, false, true, nil)
	require.NoError(t, err)
	assert.Equal(t, lhsCalls, k.lhsCalls.Load())
	assert.Equal(t, int64(4), k.rhsCalls.Load())
	assert.True(t, reports["a"].Success)
}

func TestCalculateSolutionReportsIllegalInput(t *testing.T) {
	m, a, dc, eq, _ := setup(t)
	sol, reports, err := eq.CalculateSolution(context.Background(), m, a, dc, nil,
		solver.Settings{Tolerance: -1}, true, true, nil)
	require.NoError(t, err)
	assert.False(t, reports["b"].Success)
	assert.Equal(t, solver.StatusIllegalInput, reports["b"].ExitStatus)
	assert.Nil(t, sol["b"])
}

func TestDuplicateLabel(t *testing.T) {
	a := assembler.New(nil)
	k := &kernels{}
	_, err := New("step 1", []string{"u_1"}, a, nil, Registration{Geometry: element.Tri, LHS: k.lhs, RHS: k.rhs})
	require.NoError(t, err)
	_, err = New("step 1", []string{"u_1"}, a, nil, Registration{Geometry: element.Tri, LHS: k.lhs, RHS: k.rhs})
	assert.ErrorIs(t, err, assembler.ErrDuplicateEquation)
}

func TestUnregisteredKernel(t *testing.T) {
	m := square(t)
	a := assembler.New(nil)
	eq, err := New("bare", []string{"a"}, a, nil)
	require.NoError(t, err)
	dc, err := conditions.New(m, map[string]float64{"a": 0}, nil, nil, nil)
	require.NoError(t, err)
	_, _, err = eq.CalculateSolution(context.Background(), m, a, dc, nil, solver.Settings{}, true, true, nil)
	assert.ErrorIs(t, err, assembler.ErrKernelNotRegistered)
}
