package mesh

import (
	"errors"
	"github.com/notargets/gocbs/element"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap/zaptest"
	"math/rand"
	"testing"
)

// unitSquare is two triangles with a "wall" on the bottom edge and a "lid" on top
func unitSquare() Import {
	return Import{
		Points: [][]float64{
			{0, 0, 0},
			{1, 0, 0},
			{1, 1, 0},
			{0, 1, 0},
		},
		Cells: []CellBlock{
			{
				Type:         element.Line,
				Connectivity: [][]int{{0, 1}},
				Physical:     []int{1},
				Geometrical:  []int{1},
			},
			{
				Type:         element.Line,
				Connectivity: [][]int{{2, 3}},
				Physical:     []int{2},
				Geometrical:  []int{3},
			},
			{
				Type:         element.Tri,
				Connectivity: [][]int{{0, 1, 2}, {0, 2, 3}},
				Physical:     []int{5, 5},
				Geometrical:  []int{1, 1},
			},
		},
		NamedGroups: map[string]NamedGroup{
			"wall": {Dim: element.D1, Tag: 1},
			"lid":  {Dim: element.D1, Tag: 2},
		},
	}
}

func TestInferDimension(t *testing.T) {
	assert.Equal(t, element.D1, InferDimension([][]float64{{0, 0, 0}, {1, 0, 0}}))
	assert.Equal(t, element.D2, InferDimension([][]float64{{0, 0, 0}, {1, 1e-3, 0}}))
	assert.Equal(t, element.D3, InferDimension([][]float64{{0, 0, 0}, {1, 0, 2}}))
	// Round-off below the isclose tolerance still counts as zero
	assert.Equal(t, element.D2, InferDimension([][]float64{{0, 0, 1e-12}, {1, 1, 0}}))
}

func TestNewMesh(t *testing.T) {
	m, err := New(unitSquare(), zaptest.NewLogger(t))
	require.NoError(t, err)

	assert.Equal(t, element.D2, m.Dimension)
	assert.Equal(t, 4, m.Nodes.Len())
	assert.Equal(t, 2, m.Nodes.Dimension())
	assert.Equal(t, 4, m.TotalElements())
	assert.Equal(t, 2, m.Containers[element.Line].Len())
	assert.Equal(t, []string{"lid", "wall"}, m.GroupNames())

	// Physical tags of the interior triangles win over boundary tags
	for i := 0; i < 4; i++ {
		assert.Equal(t, 5, m.Nodes.Group(element.Physical, i))
	}
	// Named channel only sees tags that carry a name
	assert.Equal(t, []int{1, 1, 2, 2}, m.Nodes.Named)
	assert.Equal(t, 0, m.Containers[element.Tri].At(0).NamedGroup)
	assert.Equal(t, 2, m.Containers[element.Line].At(1).NamedGroup)
	assert.Equal(t, 3, m.Nodes.Group(element.Geometrical, 2))

	cs, err := m.AssembledContainers()
	require.NoError(t, err)
	require.Len(t, cs, 1)
	assert.Equal(t, element.Tri, cs[0].Type)
}

func TestNodesInGroup(t *testing.T) {
	m, err := New(unitSquare(), nil)
	require.NoError(t, err)

	ids, err := m.NodesInGroup("wall")
	require.NoError(t, err)
	assert.Equal(t, []int{0, 1}, ids)

	ids, err = m.NodesInGroup("")
	require.NoError(t, err)
	assert.Equal(t, []int{0, 1, 2, 3}, ids)

	_, err = m.NodesInGroup("inlet")
	assert.True(t, errors.Is(err, ErrUnknownGroup))
}

// cavity is the unit square with "wall" on three sides, "lid" on top and a
// surface group "fluid" sharing the wall tag in another dimension
func cavity() Import {
	return Import{
		Points: [][]float64{{0, 0, 0}, {1, 0, 0}, {1, 1, 0}, {0, 1, 0}},
		Cells: []CellBlock{
			{
				Type:         element.Line,
				Connectivity: [][]int{{0, 1}, {1, 2}, {3, 0}},
				Physical:     []int{1, 1, 1},
				Geometrical:  []int{1, 2, 4},
			},
			{
				Type:         element.Line,
				Connectivity: [][]int{{2, 3}},
				Physical:     []int{2},
				Geometrical:  []int{3},
			},
			{
				Type:         element.Tri,
				Connectivity: [][]int{{0, 1, 2}, {0, 2, 3}},
				Physical:     []int{1, 1},
				Geometrical:  []int{1, 1},
			},
		},
		NamedGroups: map[string]NamedGroup{
			"wall":  {Dim: element.D1, Tag: 1},
			"lid":   {Dim: element.D1, Tag: 2},
			"fluid": {Dim: element.D2, Tag: 1},
		},
	}
}

func TestNodesInGroupSharedNodes(t *testing.T) {
	m, err := New(cavity(), zaptest.NewLogger(t))
	require.NoError(t, err)

	// The surface group does not write the node channel
	assert.Equal(t, []int{1, 1, 2, 2}, m.Nodes.Named)
	assert.Equal(t, 1, m.Containers[element.Tri].At(0).Group(element.Named))

	tests := []struct {
		group string
		want  []int
	}{
		{"wall", []int{0, 1}},
		{"lid", []int{2, 3}},
		{"fluid", []int{0, 1, 2, 3}},
	}
	for _, tt := range tests {
		t.Run(tt.group, func(t *testing.T) {
			ids, err := m.NodesInGroup(tt.group)
			require.NoError(t, err)
			assert.Equal(t, tt.want, ids)
		})
	}
}

func TestNewMeshErrors(t *testing.T) {
	_, err := New(Import{}, nil)
	assert.True(t, errors.Is(err, ErrEmptyMesh))

	imp := unitSquare()
	imp.Cells[2].Connectivity[0][2] = 9
	_, err = New(imp, nil)
	assert.Error(t, err)

	line := Import{
		Points: [][]float64{{0, 0, 0}, {1, 0, 0}},
		Cells: []CellBlock{{
			Type: element.Line, Connectivity: [][]int{{0, 1}},
			Physical: []int{1}, Geometrical: []int{1},
		}},
	}
	m, err := New(line, nil)
	require.NoError(t, err)
	_, err = m.AssembledContainers()
	assert.True(t, errors.Is(err, element.ErrNotImplemented))
}

// TestNodeGroupMonotonicOverride tests that interleaved node group writes keep the maximum
func TestNodeGroupMonotonicOverride(t *testing.T) {
	m, err := New(unitSquare(), nil)
	require.NoError(t, err)
	rng := rand.New(rand.NewSource(11))
	want := make([]int, m.Nodes.Len())
	copy(want, m.Nodes.Physical)
	for i := 0; i < 500; i++ {
		node, value := rng.Intn(m.Nodes.Len()), rng.Intn(40)
		m.Nodes.SetGroup(element.Physical, node, value)
		if value > want[node] {
			want[node] = value
		}
	}
	assert.Equal(t, want, m.Nodes.Physical)
}

func TestNodeFields(t *testing.T) {
	m, err := New(unitSquare(), nil)
	require.NoError(t, err)
	n := m.Nodes

	n.InitField("p", 0.0001)
	require.NoError(t, n.SetValues("p", []float64{1, 2, 3, 4}))
	require.NoError(t, n.SnapshotPrevious([]string{"p"}))
	require.NoError(t, n.SetValues("p", []float64{5, 6, 7, 8}))

	cur, err := n.Gather("p", []int{3, 0}, nil)
	require.NoError(t, err)
	assert.Equal(t, []float64{8, 5}, cur)
	prev, err := n.GatherPrevious("p", []int{3, 0}, cur)
	require.NoError(t, err)
	assert.Equal(t, []float64{4, 1}, prev)

	assert.True(t, errors.Is(n.SetValues("p", []float64{1}), ErrFieldLength))
	_, err = n.Values("u_9")
	assert.True(t, errors.Is(err, ErrUnknownField))

	x := m.ElementCoordinates(m.Containers[element.Tri].At(1))
	assert.Equal(t, []float64{1, 1}, x.RawRowView(1))
	assert.True(t, n.Moved)
	n.Move()
	assert.False(t, n.Moved)
}
