package element

import "fmt"

// ElementProperties contains metadata describing an element type
type ElementProperties struct {
	Name       string          // Full descriptive name (e.g., "Linear Triangle")
	ShortName  string          // Abbreviated name (e.g., "Tri1")
	Type       ElementGeometry // Element shape
	Order      int             // Interpolation order
	Np         int             // Number of nodes per element
	NEdges     int             // Number of edges in each element
	Dimensions Dimensionality
}

var properties = map[ElementGeometry]ElementProperties{
	Vertex: {Name: "Point", ShortName: "Pt", Type: Vertex, Order: 0, Np: 1, NEdges: 0, Dimensions: D0},
	Line:   {Name: "Linear Segment", ShortName: "Line1", Type: Line, Order: 1, Np: 2, NEdges: 1, Dimensions: D1},
	Tri:    {Name: "Linear Triangle", ShortName: "Tri1", Type: Tri, Order: 1, Np: 3, NEdges: 3, Dimensions: D2},
	Quad:   {Name: "Bilinear Quadrilateral", ShortName: "Quad1", Type: Quad, Order: 1, Np: 4, NEdges: 4, Dimensions: D2},
}

// GetProperties returns the metadata of a supported topology
func GetProperties(g ElementGeometry) (ElementProperties, error) {
	p, ok := properties[g]
	if !ok {
		return ElementProperties{}, fmt.Errorf("%w: %s", ErrNotImplemented, g)
	}
	return p, nil
}

// AssembledGeometries lists the topologies that carry the discretization for
// a mesh of the given dimension. Lower-dimensional cells are boundary entities.
func AssembledGeometries(dim Dimensionality) ([]ElementGeometry, error) {
	switch dim {
	case D2:
		return []ElementGeometry{Tri, Quad}, nil
	default:
		return nil, fmt.Errorf("%w: assembling a %dD mesh", ErrNotImplemented, dim)
	}
}
