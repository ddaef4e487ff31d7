package convergence

import (
	"github.com/notargets/gocbs/mesh"
	"github.com/notargets/gocbs/report"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"math"
	"testing"
)

func nodesWith(t *testing.T, cur, prev map[string][]float64) *mesh.Nodes {
	t.Helper()
	n, err := mesh.NewNodes(2, [][]float64{{0, 0}, {1, 0}, {0, 1}})
	require.NoError(t, err)
	for f, v := range cur {
		n.InitField(f, 0)
		require.NoError(t, n.SetValues(f, v))
	}
	for f, v := range prev {
		n.Previous[f] = v
	}
	return n
}

func TestAllClose(t *testing.T) {
	tol := Tolerance{Relative: 1e-3, Absolute: 1e-6}
	assert.True(t, AllClose([]float64{1, 2}, []float64{1, 2}, tol))
	assert.True(t, AllClose([]float64{1.0005}, []float64{1}, tol))
	assert.False(t, AllClose([]float64{1.01}, []float64{1}, tol))
	// Reference is the second argument
	assert.True(t, AllClose([]float64{0}, []float64{5e-7}, tol))
	assert.False(t, AllClose([]float64{math.NaN()}, []float64{math.NaN()}, tol))
	assert.True(t, AllClose([]float64{math.Inf(1)}, []float64{math.Inf(1)}, tol))
	assert.False(t, AllClose([]float64{math.Inf(1)}, []float64{1}, tol))
	assert.False(t, AllClose([]float64{1}, []float64{1, 1}, tol))
}

func TestCheck(t *testing.T) {
	tols := map[string]Tolerance{
		"u_1": {Relative: 0, Absolute: 1e-8},
		"p":   {Relative: 1e-2, Absolute: 0},
	}
	fields := []string{"u_1", "p"}

	t.Run("IdenticalConvergesImmediately", func(t *testing.T) {
		v := []float64{0.3, -1, 2}
		n := nodesWith(t,
			map[string][]float64{"u_1": v, "p": {1, 1, 1}},
			map[string][]float64{"u_1": append([]float64(nil), v...), "p": {1, 1, 1}})
		r, err := Check(n, fields, tols)
		require.NoError(t, err)
		assert.Equal(t, report.Converged(), r)
	})

	t.Run("FirstFailingFieldContinues", func(t *testing.T) {
		n := nodesWith(t,
			map[string][]float64{"u_1": {0, 0, 1e-6}, "p": {1, 1, 1}},
			map[string][]float64{"u_1": {0, 0, 0}, "p": {1, 1, 1}})
		r, err := Check(n, fields, tols)
		require.NoError(t, err)
		assert.False(t, r.Converged)
		assert.False(t, r.StopSimulation)
		assert.Equal(t, string(report.StatusNormal), r.StatusMessage)
	})

	t.Run("MissingTolerance", func(t *testing.T) {
		n := nodesWith(t, map[string][]float64{"u_1": {0, 0, 0}, "p": {0, 0, 0}}, nil)
		_, err := Check(n, fields, map[string]Tolerance{"u_1": {}})
		assert.ErrorIs(t, err, ErrMissingTolerance)
	})

	t.Run("UnknownField", func(t *testing.T) {
		n := nodesWith(t, nil, nil)
		_, err := Check(n, []string{"T"}, map[string]Tolerance{"T": {}})
		assert.ErrorIs(t, err, mesh.ErrUnknownField)
	})
}
