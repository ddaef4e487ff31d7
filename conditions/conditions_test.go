package conditions

import (
	"github.com/notargets/gocbs/assembler"
	"github.com/notargets/gocbs/element"
	"github.com/notargets/gocbs/mesh"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap/zaptest"
	"testing"
)

// square is the unit square split in two triangles, with a named "wall" on
// the bottom edge (nodes 0,1) and "lid" on the top edge (nodes 2,3)
func square(t *testing.T) *mesh.Mesh {
	t.Helper()
	m, err := mesh.New(mesh.Import{
		Points: [][]float64{{0, 0, 0}, {1, 0, 0}, {1, 1, 0}, {0, 1, 0}},
		Cells: []mesh.CellBlock{
			{Type: element.Line, Connectivity: [][]int{{0, 1}}, Physical: []int{1}, Geometrical: []int{1}},
			{Type: element.Line, Connectivity: [][]int{{2, 3}}, Physical: []int{2}, Geometrical: []int{2}},
			{Type: element.Tri, Connectivity: [][]int{{0, 1, 2}, {0, 2, 3}}, Physical: []int{5, 5}, Geometrical: []int{1, 1}},
		},
		NamedGroups: map[string]mesh.NamedGroup{
			"wall": {Dim: element.D1, Tag: 1},
			"lid":  {Dim: element.D1, Tag: 2},
		},
	}, zaptest.NewLogger(t))
	require.NoError(t, err)
	return m
}

var defaults = map[string]float64{"u_1": 0, "u_2": 0, "p": 0.0001}

// dense4 is a full 4x4 matrix with entry (i,j) = 10*(i+1) + (j+1)
func dense4() []assembler.Triplet {
	var t []assembler.Triplet
	for i := 0; i < 4; i++ {
		for j := 0; j < 4; j++ {
			t = append(t, assembler.Triplet{Row: i, Col: j, Value: float64(10*(i+1) + (j + 1))})
		}
	}
	return t
}

func TestNewResolvesGroups(t *testing.T) {
	m := square(t)
	dc, err := New(m, defaults,
		[]Directive{{GroupName: "", Field: "p", Kind: Dirichlet, Value: 3}},
		[]Directive{
			{GroupName: "wall", Field: "u_1", Kind: Dirichlet, Value: 0},
			{GroupName: "lid", Field: "u_1", Kind: Dirichlet, Value: 1},
			{GroupName: "lid", Field: "p", Kind: Neumann, Value: 0},
		}, zaptest.NewLogger(t))
	require.NoError(t, err)

	// Defaults first, then the user directive
	p := dc.Initial[Key{"p", Dirichlet}]
	assert.Equal(t, []int{0, 1, 2, 3, 0, 1, 2, 3}, p.Indices)
	assert.Equal(t, []float64{1e-4, 1e-4, 1e-4, 1e-4, 3, 3, 3, 3}, p.Values)

	u1 := dc.Boundary[Key{"u_1", Dirichlet}]
	assert.Equal(t, []int{0, 1, 2, 3}, u1.Indices)
	assert.Equal(t, []float64{0, 0, 1, 1}, u1.Values)
	assert.Equal(t, []int{2, 3}, dc.Boundary[Key{"p", Neumann}].Indices)

	ids, vals := dc.DirichletNodes("u_1")
	assert.Equal(t, []int{0, 1, 2, 3}, ids)
	assert.Equal(t, []float64{0, 0, 1, 1}, vals)
	ids, _ = dc.DirichletNodes("p")
	assert.Empty(t, ids)
}

func TestSharedCornersFollowHigherGroup(t *testing.T) {
	m, err := mesh.New(mesh.Import{
		Points: [][]float64{{0, 0, 0}, {1, 0, 0}, {1, 1, 0}, {0, 1, 0}},
		Cells: []mesh.CellBlock{
			{Type: element.Line, Connectivity: [][]int{{0, 1}, {1, 2}, {3, 0}}, Physical: []int{1, 1, 1}, Geometrical: []int{1, 2, 4}},
			{Type: element.Line, Connectivity: [][]int{{2, 3}}, Physical: []int{2}, Geometrical: []int{3}},
			{Type: element.Tri, Connectivity: [][]int{{0, 1, 2}, {0, 2, 3}}, Physical: []int{5, 5}, Geometrical: []int{1, 1}},
		},
		NamedGroups: map[string]mesh.NamedGroup{
			"wall": {Dim: element.D1, Tag: 1},
			"lid":  {Dim: element.D1, Tag: 2},
		},
	}, zaptest.NewLogger(t))
	require.NoError(t, err)

	// The wall directive comes last, the top corners still carry the lid value
	dc, err := New(m, defaults, nil, []Directive{
		{GroupName: "lid", Field: "u_1", Kind: Dirichlet, Value: 1},
		{GroupName: "wall", Field: "u_1", Kind: Dirichlet, Value: 0},
	}, zaptest.NewLogger(t))
	require.NoError(t, err)

	ids, vals := dc.DirichletNodes("u_1")
	assert.Equal(t, []int{0, 1, 2, 3}, ids)
	assert.Equal(t, []float64{0, 0, 1, 1}, vals)
}

func TestNewErrors(t *testing.T) {
	m := square(t)
	tests := []struct {
		name string
		d    Directive
		want error
	}{
		{"UnknownGroup", Directive{GroupName: "inlet", Field: "u_1", Kind: Dirichlet}, ErrUnknownGroup},
		{"UnknownField", Directive{GroupName: "wall", Field: "T", Kind: Dirichlet}, ErrUnknownField},
		{"UnknownKind", Directive{GroupName: "wall", Field: "u_1", Kind: 3}, ErrUnknownKind},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := New(m, defaults, nil, []Directive{tt.d}, nil)
			assert.ErrorIs(t, err, tt.want)
		})
	}
	_, err := New(m, defaults, nil, []Directive{{GroupName: "inlet", Field: "u_1", Kind: Dirichlet}}, nil)
	assert.ErrorIs(t, err, mesh.ErrUnknownGroup)
}

func TestApplyInitialConditions(t *testing.T) {
	m := square(t)
	dc, err := New(m, defaults,
		[]Directive{{GroupName: "lid", Field: "u_2", Kind: Dirichlet, Value: -2}},
		[]Directive{
			{GroupName: "lid", Field: "u_1", Kind: Dirichlet, Value: 1},
			{GroupName: "wall", Field: "p", Kind: Neumann, Value: 9},
		}, nil)
	require.NoError(t, err)
	require.NoError(t, dc.ApplyInitialConditions(m.Nodes))

	u1, _ := m.Nodes.Values("u_1")
	u2, _ := m.Nodes.Values("u_2")
	p, _ := m.Nodes.Values("p")
	assert.Equal(t, []float64{0, 0, 1, 1}, u1)
	assert.Equal(t, []float64{0, 0, -2, -2}, u2)
	// Neumann values never reach the field
	assert.Equal(t, []float64{1e-4, 1e-4, 1e-4, 1e-4}, p)
}

func TestLHSWithBoundaryCondition(t *testing.T) {
	m := square(t)
	dc, err := New(m, defaults, nil,
		[]Directive{{GroupName: "wall", Field: "u_1", Kind: Dirichlet, Value: 2}}, nil)
	require.NoError(t, err)

	raw := dense4()
	raw = append(raw, assembler.Triplet{Row: 3, Col: 2, Value: -43})
	lhs := assembler.Compress(4, 4, raw)

	applied := dc.LHSWithBoundaryCondition(lhs, "u_1")
	for _, id := range []int{0, 1} {
		for j := 0; j < 4; j++ {
			want := 0.0
			if j == id {
				want = 1
			}
			assert.Equal(t, want, applied.At(id, j), "row %d col %d", id, j)
			assert.Equal(t, want, applied.At(j, id), "row %d col %d", j, id)
		}
	}
	assert.Equal(t, 33.0, applied.At(2, 2))
	assert.Equal(t, 44.0, applied.At(3, 3))
	// (3,2) summed to zero and is not stored
	assert.Equal(t, 3+2, applied.NNZ())

	// Idempotent
	again := dc.LHSWithBoundaryCondition(applied, "u_1")
	assert.Equal(t, assembler.Triplets(applied), assembler.Triplets(again))

	// A field without Dirichlet entries is copied unchanged
	untouched := dc.LHSWithBoundaryCondition(lhs, "p")
	assert.Equal(t, 4*4-1, untouched.NNZ())
}

func TestRHSWithBoundaryCondition(t *testing.T) {
	m := square(t)
	dc, err := New(m, defaults, nil, []Directive{
		{GroupName: "wall", Field: "u_1", Kind: Dirichlet, Value: 5},
		// node 1 listed again: the last value wins and it is counted once
		{GroupName: "", Field: "u_1", Kind: Dirichlet, Value: 0},
		{GroupName: "wall", Field: "u_2", Kind: Dirichlet, Value: 2},
	}, nil)
	require.NoError(t, err)
	lhs := assembler.Compress(4, 4, dense4())
	rhs := []float64{1, 1, 1, 1}

	got, err := dc.RHSWithBoundaryCondition(lhs, rhs, "u_2")
	require.NoError(t, err)
	// offset_i = -(a_i0 + a_i1)*2 on free rows
	assert.Equal(t, []float64{2, 2, 1 - 2*(31+32), 1 - 2*(41+42)}, got)
	assert.Equal(t, []float64{1, 1, 1, 1}, rhs)

	got, err = dc.RHSWithBoundaryCondition(lhs, rhs, "u_1")
	require.NoError(t, err)
	assert.Equal(t, []float64{0, 0, 0, 0}, got)

	got, err = dc.RHSWithBoundaryCondition(lhs, rhs, "p")
	require.NoError(t, err)
	assert.Equal(t, rhs, got)

	_, err = dc.RHSWithBoundaryCondition(lhs, []float64{1}, "p")
	assert.ErrorIs(t, err, ErrShape)
}
