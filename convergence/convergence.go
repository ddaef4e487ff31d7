// Package convergence decides whether a timestep reached steady state.
package convergence

import (
	"errors"
	"fmt"
	"github.com/notargets/gocbs/mesh"
	"github.com/notargets/gocbs/report"
	"math"
)

var ErrMissingTolerance = errors.New("missing tolerance for field")

// Tolerance is the allclose pair of one field
type Tolerance struct {
	Relative float64
	Absolute float64
}

// AllClose reports whether |a-b| <= atol + rtol·|b| element-wise. Equal
// infinities are close; NaN never is.
func AllClose(a, b []float64, tol Tolerance) bool {
	if len(a) != len(b) {
		return false
	}
	for i := range a {
		if a[i] == b[i] {
			continue
		}
		if math.IsInf(a[i], 0) || math.IsInf(b[i], 0) {
			return false
		}
		if !(math.Abs(a[i]-b[i]) <= tol.Absolute+tol.Relative*math.Abs(b[i])) {
			return false
		}
	}
	return true
}

// Check compares current against previous values of every field, in order.
// The first field out of tolerance yields a normal, non-stopping report.
func Check(nodes *mesh.Nodes, fields []string, tolerances map[string]Tolerance) (report.IterationReport, error) {
	for _, f := range fields {
		if _, ok := tolerances[f]; !ok {
			return report.IterationReport{}, fmt.Errorf("%w %q", ErrMissingTolerance, f)
		}
	}
	for _, f := range fields {
		cur, err := nodes.Values(f)
		if err != nil {
			return report.IterationReport{}, err
		}
		prev, err := nodes.PreviousValues(f)
		if err != nil {
			return report.IterationReport{}, err
		}
		if !AllClose(cur, prev, tolerances[f]) {
			return report.Normal(), nil
		}
	}
	return report.Converged(), nil
}
