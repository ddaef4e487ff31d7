package mesh

import (
	"errors"
	"fmt"
	"github.com/notargets/gocbs/element"
	"gonum.org/v1/gonum/mat"
)

var (
	ErrUnknownField  = errors.New("unknown field")
	ErrUnknownGroup  = errors.New("unknown named group")
	ErrFieldLength   = errors.New("field length mismatch")
	ErrEmptyMesh     = errors.New("mesh has no nodes")
	ErrNoAssembledEl = errors.New("mesh has no assembled elements")
)

// Nodes stores the node set as a structure of arrays indexed by node id
type Nodes struct {
	X *mat.Dense // [N × D] positions

	Current  map[string][]float64 // field name → value per node
	Previous map[string][]float64 // snapshot taken once per timestep

	Geometrical []int
	Physical    []int
	Named       []int

	// Moved forces geometry refresh and LHS reassembly. Initially true.
	Moved bool
}

// NewNodes keeps the first dim coordinates of every point
func NewNodes(dim int, points [][]float64) (*Nodes, error) {
	N := len(points)
	if N == 0 {
		return nil, ErrEmptyMesh
	}
	X := mat.NewDense(N, dim, nil)
	for i, p := range points {
		if len(p) < dim {
			return nil, fmt.Errorf("node %d has %d coordinates, need %d", i, len(p), dim)
		}
		X.SetRow(i, p[:dim])
	}
	return &Nodes{
		X:           X,
		Current:     make(map[string][]float64),
		Previous:    make(map[string][]float64),
		Geometrical: make([]int, N),
		Physical:    make([]int, N),
		Named:       make([]int, N),
		Moved:       true,
	}, nil
}

func (n *Nodes) Len() int {
	r, _ := n.X.Dims()
	return r
}

func (n *Nodes) Dimension() int {
	_, c := n.X.Dims()
	return c
}

// Coordinates gathers the positions of ids as rows of a new matrix
func (n *Nodes) Coordinates(ids []int) *mat.Dense {
	x := mat.NewDense(len(ids), n.Dimension(), nil)
	for i, id := range ids {
		x.SetRow(i, n.X.RawRowView(id))
	}
	return x
}

// InitField creates or overwrites a field with a uniform value on every node
func (n *Nodes) InitField(field string, value float64) {
	v := make([]float64, n.Len())
	for i := range v {
		v[i] = value
	}
	n.Current[field] = v
	if _, ok := n.Previous[field]; !ok {
		n.Previous[field] = make([]float64, n.Len())
	}
}

// Values returns the live slice of current values of a field
func (n *Nodes) Values(field string) ([]float64, error) {
	v, ok := n.Current[field]
	if !ok {
		return nil, fmt.Errorf("%w: %s", ErrUnknownField, field)
	}
	return v, nil
}

// PreviousValues returns the live slice of the previous-step values of a field
func (n *Nodes) PreviousValues(field string) ([]float64, error) {
	v, ok := n.Previous[field]
	if !ok {
		return nil, fmt.Errorf("%w: %s (previous)", ErrUnknownField, field)
	}
	return v, nil
}

// SetValues copies values into the current field
func (n *Nodes) SetValues(field string, values []float64) error {
	v, err := n.Values(field)
	if err != nil {
		return err
	}
	if len(values) != len(v) {
		return fmt.Errorf("%w: %s has %d nodes, got %d values", ErrFieldLength, field, len(v), len(values))
	}
	copy(v, values)
	return nil
}

// Gather copies the current values of field at ids into dst, growing it as needed
func (n *Nodes) Gather(field string, ids []int, dst []float64) ([]float64, error) {
	v, err := n.Values(field)
	if err != nil {
		return nil, err
	}
	return gather(v, ids, dst), nil
}

// GatherPrevious is Gather over the previous-step snapshot
func (n *Nodes) GatherPrevious(field string, ids []int, dst []float64) ([]float64, error) {
	v, err := n.PreviousValues(field)
	if err != nil {
		return nil, err
	}
	return gather(v, ids, dst), nil
}

func gather(v []float64, ids []int, dst []float64) []float64 {
	if cap(dst) < len(ids) {
		dst = make([]float64, len(ids))
	}
	dst = dst[:len(ids)]
	for i, id := range ids {
		dst[i] = v[id]
	}
	return dst
}

// SnapshotPrevious copies current into previous for the listed fields
func (n *Nodes) SnapshotPrevious(fields []string) error {
	for _, f := range fields {
		cur, err := n.Values(f)
		if err != nil {
			return err
		}
		prev := n.Previous[f]
		if len(prev) != len(cur) {
			prev = make([]float64, len(cur))
		}
		copy(prev, cur)
		n.Previous[f] = prev
	}
	return nil
}

func (n *Nodes) groups(kind element.GroupKind) []int {
	switch kind {
	case element.Physical:
		return n.Physical
	case element.Named:
		return n.Named
	default:
		return n.Geometrical
	}
}

// Group returns the group id of node i in the given channel
func (n *Nodes) Group(kind element.GroupKind, i int) int {
	return n.groups(kind)[i]
}

// SetGroup applies the monotonic override to node i
func (n *Nodes) SetGroup(kind element.GroupKind, i, value int) bool {
	return element.RaiseGroup(&n.groups(kind)[i], value)
}

// Move is the mesh deformation hook. Nodes never move; it only clears the
// Moved flag once the first timestep has consumed it.
func (n *Nodes) Move() {
	n.Moved = false
}
