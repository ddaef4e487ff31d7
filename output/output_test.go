package output

import (
	sparsearr "github.com/ctessum/sparse"
	"github.com/notargets/gocbs/assembler"
	"github.com/notargets/gocbs/element"
	"github.com/notargets/gocbs/equation"
	"github.com/notargets/gocbs/mesh"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap/zaptest"
	"gonum.org/v1/gonum/mat"
	"path/filepath"
	"testing"
	"time"
)

var _ equation.DebugWriter = (*StepWriter)(nil)
var _ equation.DebugWriter = (*Writer)(nil)

func TestStore(t *testing.T) {
	s, err := OpenStore(filepath.Join(t.TempDir(), "store.db"))
	require.NoError(t, err)
	defer s.Close()

	t.Run("Vector", func(t *testing.T) {
		require.NoError(t, s.Put("/a/b/", []float64{1, 2, 3}))
		d, err := s.Get("a/b")
		require.NoError(t, err)
		assert.Equal(t, KindVector, d.Kind)
		assert.Equal(t, 3, d.Rows)
		assert.Equal(t, []float64{1, 2, 3}, d.Vector())
	})

	t.Run("Scalar", func(t *testing.T) {
		require.NoError(t, s.Put("dt", 0.25))
		d, err := s.Get("dt")
		require.NoError(t, err)
		assert.Equal(t, KindScalar, d.Kind)
		assert.Equal(t, []float64{0.25}, d.Vector())
	})

	t.Run("Sparse", func(t *testing.T) {
		lhs := assembler.Compress(3, 3, []assembler.Triplet{
			{Row: 0, Col: 0, Value: 4},
			{Row: 1, Col: 2, Value: -1},
			{Row: 2, Col: 1, Value: -1},
		})
		require.NoError(t, s.Put("lhs", lhs))
		d, err := s.Get("lhs")
		require.NoError(t, err)
		assert.Equal(t, KindSparse, d.Kind)
		assert.Equal(t, 3, d.Rows)
		assert.Equal(t, 3, d.Cols)
		assert.True(t, mat.Equal(mat.NewDense(3, 3, []float64{
			0, 0, 4,
			1, 2, -1,
			2, 1, -1,
		}), d.Data))
	})

	t.Run("DenseArray", func(t *testing.T) {
		rhs := sparsearr.ZerosDense(2, 2)
		rhs.AddVal(5, 1, 0)
		require.NoError(t, s.Put("rhs", rhs))
		d, err := s.Get("rhs")
		require.NoError(t, err)
		assert.Equal(t, KindDense, d.Kind)
		assert.Equal(t, 5., d.Data.At(1, 0))
	})

	t.Run("Replace", func(t *testing.T) {
		require.NoError(t, s.Put("dt", 0.5))
		d, err := s.Get("dt")
		require.NoError(t, err)
		assert.Equal(t, []float64{0.5}, d.Vector())
	})

	t.Run("Keys", func(t *testing.T) {
		keys, err := s.Keys("")
		require.NoError(t, err)
		assert.Equal(t, []string{"a/b", "dt", "lhs", "rhs"}, keys)
		keys, err = s.Keys("a/")
		require.NoError(t, err)
		assert.Equal(t, []string{"a/b"}, keys)
	})

	t.Run("Errors", func(t *testing.T) {
		_, err := s.Get("missing")
		assert.ErrorIs(t, err, ErrNotFound)
		assert.ErrorIs(t, s.Put("x", []float64{}), ErrEmptyValue)
		assert.ErrorIs(t, s.Put("x", "text"), ErrUnsupportedValue)
		_, err = s.Metadata("missing")
		assert.ErrorIs(t, err, ErrNotFound)
	})
}

func squareMesh(t *testing.T) *mesh.Mesh {
	t.Helper()
	m, err := mesh.New(mesh.Import{
		Points: [][]float64{{0, 0, 0}, {1, 0, 0}, {1, 1, 0}, {0, 1, 0}},
		Cells: []mesh.CellBlock{{
			Type:         element.Tri,
			Connectivity: [][]int{{0, 1, 2}, {0, 2, 3}},
			Physical:     []int{1, 1},
			Geometrical:  []int{1, 1},
		}},
		NamedGroups: map[string]mesh.NamedGroup{"fluid": {Dim: element.D2, Tag: 1}},
	}, zaptest.NewLogger(t))
	require.NoError(t, err)
	return m
}

func TestWriter(t *testing.T) {
	dir := t.TempDir()
	w, err := NewWriter(dir, "cavity", Options{SaveResult: true, SaveDebug: true}, zaptest.NewLogger(t))
	require.NoError(t, err)

	require.NoError(t, w.WriteMesh(squareMesh(t)))
	require.NoError(t, w.WriteResult(10, map[string][]float64{"p": {1, 2, 3, 4}, "u_1": {0, 0, 0, 0}}))
	require.NoError(t, w.StepDebug(11).WriteDebug("step 2/rhs_assembled", []float64{7}))
	require.NoError(t, w.WriteDebug("step 1/lhs_assembled", []float64{8}))
	// numeric store disabled
	require.NoError(t, w.WriteNumeric("dt", 0.1))
	require.NoError(t, w.Close())

	result, err := ReadStore(filepath.Join(dir, ResultFilename))
	require.NoError(t, err)
	defer result.Close()
	for k, want := range map[string]string{"version": "1", "description": "cavity", "run_id": w.RunID} {
		got, err := result.Metadata(k)
		require.NoError(t, err)
		assert.Equal(t, want, got, k)
	}
	p, err := result.Get("result/t_10/p")
	require.NoError(t, err)
	assert.Equal(t, []float64{1, 2, 3, 4}, p.Vector())
	conn, err := result.Get("mesh/triangle/connectivity")
	require.NoError(t, err)
	assert.Equal(t, []float64{0, 1, 2, 0, 2, 3}, conn.Vector())
	coords, err := result.Get("mesh/coordinates")
	require.NoError(t, err)
	assert.Equal(t, 2, coords.Cols)

	debug, err := ReadStore(filepath.Join(dir, DebugFilename))
	require.NoError(t, err)
	defer debug.Close()
	keys, err := debug.Keys("t_")
	require.NoError(t, err)
	assert.Equal(t, []string{"t_10/step 1/lhs_assembled", "t_11/step 2/rhs_assembled"}, keys)

	assert.NoFileExists(t, filepath.Join(dir, NumericFilename))
}

func TestDisabledDebug(t *testing.T) {
	w, err := NewWriter(t.TempDir(), "", Options{}, nil)
	require.NoError(t, err)
	defer w.Close()
	sw := w.StepDebug(3)
	assert.Nil(t, sw)
	assert.NoError(t, sw.WriteDebug("k", []float64{1}))
}

func TestSummary(t *testing.T) {
	path := filepath.Join(t.TempDir(), SummaryFilename)
	want := Summary{
		RunID:     "run",
		Title:     "lid driven cavity",
		Alias:     "cavity",
		Model:     "semi_implicit",
		Steps:     42,
		Converged: true,
		Status:    "The current iteration CONVERGED.",
		Started:   time.Date(2024, 5, 1, 12, 0, 0, 0, time.UTC),
		Elapsed:   1500 * time.Millisecond,
	}
	require.NoError(t, WriteSummary(path, want))
	got, err := ReadSummary(path)
	require.NoError(t, err)
	assert.True(t, want.Started.Equal(got.Started))
	got.Started = want.Started
	assert.Equal(t, want, got)
}
