package element

import "fmt"

// Dimensionality represents the spatial dimension of an element
type Dimensionality uint8

const (
	D0 Dimensionality = iota // points
	D1                       // segments
	D2                       // triangles, quadrilaterals
	D3
)

// ElementGeometry identifies the topology of an element
type ElementGeometry uint8

const (
	Vertex ElementGeometry = iota
	Line
	Tri
	Quad
)

func (g ElementGeometry) String() string {
	switch g {
	case Vertex:
		return "vertex"
	case Line:
		return "line"
	case Tri:
		return "triangle"
	case Quad:
		return "quadrilateral"
	default:
		return fmt.Sprintf("ElementGeometry(%d)", uint8(g))
	}
}

// GroupKind selects one of the three independent group-tag channels
type GroupKind uint8

const (
	Geometrical GroupKind = iota
	Physical
	Named
)

func (k GroupKind) String() string {
	switch k {
	case Geometrical:
		return "geometrical"
	case Physical:
		return "physical"
	case Named:
		return "named"
	default:
		return fmt.Sprintf("GroupKind(%d)", uint8(k))
	}
}

// Unset is the sentinel for derived quantities that do not apply to a topology
const Unset = -1.0

// Element is a single mesh cell. It references nodes by index only.
type Element struct {
	NodeIDs []int

	GeometricalGroup int
	PhysicalGroup    int
	NamedGroup       int

	// Shape factors, one entry per local node
	B, C []float64

	Length, Area, Volume float64
	Dt                   float64 // Local adaptive timestep
}

// NewElement allocates an element with derived quantities at their sentinel values
func NewElement(nodeIDs []int, physical, geometrical int) Element {
	n := len(nodeIDs)
	return Element{
		NodeIDs:          nodeIDs,
		PhysicalGroup:    physical,
		GeometricalGroup: geometrical,
		B:                make([]float64, n),
		C:                make([]float64, n),
		Length:           Unset,
		Area:             Unset,
		Volume:           Unset,
		Dt:               Unset,
	}
}

// NodesPerElement returns the local node count of the element
func (e *Element) NodesPerElement() int { return len(e.NodeIDs) }

// Group returns the group id stored in the given channel
func (e *Element) Group(kind GroupKind) int {
	switch kind {
	case Physical:
		return e.PhysicalGroup
	case Named:
		return e.NamedGroup
	default:
		return e.GeometricalGroup
	}
}

// SetGroup overrides the channel only when value is strictly greater than
// the stored id. It reports whether the stored id changed.
func (e *Element) SetGroup(kind GroupKind, value int) bool {
	var dst *int
	switch kind {
	case Physical:
		dst = &e.PhysicalGroup
	case Named:
		dst = &e.NamedGroup
	default:
		dst = &e.GeometricalGroup
	}
	return RaiseGroup(dst, value)
}

// RaiseGroup applies the monotonic override rule to a stored group id
func RaiseGroup(dst *int, value int) bool {
	if value > *dst {
		*dst = value
		return true
	}
	return false
}
