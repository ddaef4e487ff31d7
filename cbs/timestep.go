package cbs

import (
	"fmt"
	"github.com/notargets/gocbs/mesh"
	"math"
)

// velocityEpsilon is the nodal speed below which the convective limit is skipped
const velocityEpsilon = 1e-12

// LocalTimestep is safety·min((Re/2)·h², h/|u|max). The convective limit is
// dropped when the element is at rest.
func LocalTimestep(h, re, uMax, safety float64) float64 {
	dt := 0.5 * re * h * h
	if uMax > velocityEpsilon {
		dt = math.Min(dt, h/uMax)
	}
	return safety * dt
}

// maxSpeed is the largest nodal velocity magnitude over ids
func maxSpeed(velocity [][]float64, ids []int) float64 {
	var uMax float64
	for _, id := range ids {
		var s float64
		for _, u := range velocity {
			s += u[id] * u[id]
		}
		uMax = math.Max(uMax, math.Sqrt(s))
	}
	return uMax
}

// RefreshGeometry recomputes, for every assembled element, the measures, the
// local timestep and the shape factors, in that order
func RefreshGeometry(m *mesh.Mesh, re, safety float64) error {
	containers, err := m.AssembledContainers()
	if err != nil {
		return err
	}
	dim := m.Nodes.Dimension()
	velocity := make([][]float64, 0, dim)
	for _, f := range VelocityFields(dim) {
		v, err := m.Nodes.Values(f)
		if err != nil {
			return err
		}
		velocity = append(velocity, v)
	}

	for _, c := range containers {
		for k := range c.Elements {
			e := &c.Elements[k]
			x := m.ElementCoordinates(e)
			if err := e.UpdateMeasures(c.Type, x); err != nil {
				return fmt.Errorf("element %d: %w", k, err)
			}
			h, err := e.SpecificSize(c.Type, x)
			if err != nil {
				return fmt.Errorf("element %d: %w", k, err)
			}
			e.Dt = LocalTimestep(h, re, maxSpeed(velocity, e.NodeIDs), safety)
			if err := e.UpdateShapeFactors(c.Type, x); err != nil {
				return fmt.Errorf("element %d: %w", k, err)
			}
		}
	}
	return nil
}
