package element

import (
	"errors"
	"fmt"
	"gonum.org/v1/gonum/floats"
	"gonum.org/v1/gonum/mat"
	"math"
)

// ErrNotImplemented marks topologies outside the supported discretization
var ErrNotImplemented = errors.New("not implemented")

// Geometry kernels take the element node coordinates as rows of x: x.At(i, d)
// is coordinate d of local node i.

func row(x mat.Matrix, i int) []float64 {
	_, nd := x.Dims()
	r := make([]float64, nd)
	for d := 0; d < nd; d++ {
		r[d] = x.At(i, d)
	}
	return r
}

// SegmentLength is the Euclidean distance between the two segment nodes
func SegmentLength(x mat.Matrix) float64 {
	return floats.Distance(row(x, 0), row(x, 1), 2)
}

// TriangleArea is half the magnitude of the cross product of two edge vectors
func TriangleArea(x mat.Matrix) float64 {
	x0, y0 := x.At(0, 0), x.At(0, 1)
	x1, y1 := x.At(1, 0), x.At(1, 1)
	x2, y2 := x.At(2, 0), x.At(2, 1)
	return 0.5 * math.Abs((x1-x0)*(y2-y0)-(x2-x0)*(y1-y0))
}

// QuadrilateralArea approximates the area as half the product of the diagonals
func QuadrilateralArea(x mat.Matrix) float64 {
	d1 := floats.Distance(row(x, 0), row(x, 2), 2)
	d2 := floats.Distance(row(x, 1), row(x, 3), 2)
	return 0.5 * d1 * d2
}

// TriangleSpecificSize is h = 2*area / longest edge
func TriangleSpecificSize(area float64, x mat.Matrix) float64 {
	p0, p1, p2 := row(x, 0), row(x, 1), row(x, 2)
	longest := math.Max(floats.Distance(p0, p1, 2),
		math.Max(floats.Distance(p1, p2, 2), floats.Distance(p2, p0, 2)))
	return 2. * area / longest
}

// TriangleShapeFactors returns the linear shape function derivative
// coefficients b (d/dx) and c (d/dy), scaled by 1/(2*area)
func TriangleShapeFactors(area float64, x mat.Matrix) (b, c []float64) {
	x0, y0 := x.At(0, 0), x.At(0, 1)
	x1, y1 := x.At(1, 0), x.At(1, 1)
	x2, y2 := x.At(2, 0), x.At(2, 1)
	b = []float64{y1 - y2, y2 - y0, y0 - y1}
	c = []float64{x2 - x1, x0 - x2, x1 - x0}
	floats.Scale(1./(2.*area), b)
	floats.Scale(1./(2.*area), c)
	return
}

// UpdateMeasures refreshes the length, area and volume of e for its topology.
// Unused measures stay at Unset.
func (e *Element) UpdateMeasures(g ElementGeometry, x mat.Matrix) error {
	e.Length, e.Area, e.Volume = Unset, Unset, Unset
	switch g {
	case Line:
		e.Length = SegmentLength(x)
	case Tri:
		e.Area = TriangleArea(x)
	case Quad:
		e.Area = QuadrilateralArea(x)
	default:
		return fmt.Errorf("%w: measures of %s", ErrNotImplemented, g)
	}
	return nil
}

// SpecificSize returns the characteristic size used by the adaptive timestep
func (e *Element) SpecificSize(g ElementGeometry, x mat.Matrix) (float64, error) {
	if g != Tri {
		return 0, fmt.Errorf("%w: specific size of %s", ErrNotImplemented, g)
	}
	return TriangleSpecificSize(e.Area, x), nil
}

// UpdateShapeFactors refreshes b and c from the current area
func (e *Element) UpdateShapeFactors(g ElementGeometry, x mat.Matrix) error {
	if g != Tri {
		return fmt.Errorf("%w: shape factors of %s", ErrNotImplemented, g)
	}
	e.B, e.C = TriangleShapeFactors(e.Area, x)
	return nil
}
