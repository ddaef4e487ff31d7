package mesh

import (
	"fmt"
	"github.com/notargets/gocbs/element"
	"go.uber.org/zap"
	"gonum.org/v1/gonum/mat"
	"math"
	"sort"
)

// zeroAxisTolerance matches the default absolute tolerance of an isclose test
const zeroAxisTolerance = 1e-8

// CellBlock is one block of same-topology cells handed over by a mesh importer
type CellBlock struct {
	Type         element.ElementGeometry
	Connectivity [][]int // [K][Np] node ids, zero based
	Physical     []int   // Length K
	Geometrical  []int   // Length K
}

// NamedGroup is a labelled physical group. Gmsh numbers physical groups per
// dimension, so the tag alone does not identify a group.
type NamedGroup struct {
	Dim element.Dimensionality
	Tag int
}

// Import is the data consumed from a mesh-import collaborator
type Import struct {
	Points      [][]float64 // [N][3]
	Cells       []CellBlock
	NamedGroups map[string]NamedGroup
}

// Mesh aggregates the node set and the element containers of each topology
type Mesh struct {
	Nodes       *Nodes
	Containers  map[element.ElementGeometry]*element.Container
	NamedGroups map[string]NamedGroup
	Dimension   element.Dimensionality

	logger *zap.Logger
}

// InferDimension returns D1 when y and z are uniformly zero, D2 when only z
// is, and D3 otherwise
func InferDimension(points [][]float64) element.Dimensionality {
	axisZero := func(d int) bool {
		for _, p := range points {
			if d < len(p) && math.Abs(p[d]) > zeroAxisTolerance {
				return false
			}
		}
		return true
	}
	yZero, zZero := axisZero(1), axisZero(2)
	switch {
	case yZero && zZero:
		return element.D1
	case zZero:
		return element.D2
	default:
		return element.D3
	}
}

// New builds a mesh from imported data. Element tags propagate to their nodes
// through the monotonic override. Only boundary elements, those of lower
// dimension than the mesh, write the named node channel.
func New(imp Import, logger *zap.Logger) (*Mesh, error) {
	if logger == nil {
		logger = zap.NewNop()
	}
	dim := InferDimension(imp.Points)
	nodes, err := NewNodes(int(dim), imp.Points)
	if err != nil {
		return nil, err
	}

	m := &Mesh{
		Nodes:       nodes,
		Containers:  make(map[element.ElementGeometry]*element.Container),
		NamedGroups: make(map[string]NamedGroup, len(imp.NamedGroups)),
		Dimension:   dim,
		logger:      logger,
	}
	named := make(map[NamedGroup]bool, len(imp.NamedGroups))
	for name, g := range imp.NamedGroups {
		m.NamedGroups[name] = g
		named[g] = true
	}

	// Merge blocks of the same topology, preserving import order
	merged := make(map[element.ElementGeometry]*CellBlock)
	var order []element.ElementGeometry
	for _, blk := range imp.Cells {
		for k, row := range blk.Connectivity {
			for _, id := range row {
				if id < 0 || id >= nodes.Len() {
					return nil, fmt.Errorf("%s cell %d references node %d, mesh has %d nodes",
						blk.Type, k, id, nodes.Len())
				}
			}
		}
		mb, ok := merged[blk.Type]
		if !ok {
			mb = &CellBlock{Type: blk.Type}
			merged[blk.Type] = mb
			order = append(order, blk.Type)
		}
		mb.Connectivity = append(mb.Connectivity, blk.Connectivity...)
		mb.Physical = append(mb.Physical, blk.Physical...)
		mb.Geometrical = append(mb.Geometrical, blk.Geometrical...)
	}

	for _, g := range order {
		blk := merged[g]
		props, err := element.GetProperties(g)
		if err != nil {
			return nil, fmt.Errorf("building mesh: %w", err)
		}
		c, err := element.NewContainer(g, blk.Connectivity, blk.Physical, blk.Geometrical)
		if err != nil {
			return nil, fmt.Errorf("building mesh: %w", err)
		}
		boundary := props.Dimensions < dim
		for k := range c.Elements {
			el := c.At(k)
			if named[NamedGroup{Dim: props.Dimensions, Tag: el.PhysicalGroup}] {
				c.SetGroup(element.Named, k, el.PhysicalGroup)
			}
			for _, id := range el.NodeIDs {
				nodes.SetGroup(element.Physical, id, el.PhysicalGroup)
				nodes.SetGroup(element.Geometrical, id, el.GeometricalGroup)
				if boundary {
					nodes.SetGroup(element.Named, id, el.NamedGroup)
				}
			}
		}
		m.Containers[g] = c
	}

	logger.Info("mesh created",
		zap.Int("nodes", nodes.Len()),
		zap.Int("dimension", int(dim)),
		zap.Int("elements", m.TotalElements()),
		zap.Int("named_groups", len(m.NamedGroups)))
	return m, nil
}

// TotalElements counts the elements of all containers
func (m *Mesh) TotalElements() int {
	total := 0
	for _, c := range m.Containers {
		total += c.Len()
	}
	return total
}

// AssembledContainers returns the containers carrying the discretization for
// the mesh dimension, in a stable topology order
func (m *Mesh) AssembledContainers() ([]*element.Container, error) {
	geoms, err := element.AssembledGeometries(m.Dimension)
	if err != nil {
		return nil, err
	}
	var out []*element.Container
	for _, g := range geoms {
		if c, ok := m.Containers[g]; ok && c.Len() > 0 {
			out = append(out, c)
		}
	}
	if len(out) == 0 {
		return nil, ErrNoAssembledEl
	}
	return out, nil
}

// NodesInGroup resolves a named group into ascending, unique node indices.
// A volume group selects every node of its elements. A boundary group keeps
// only the nodes whose named channel it holds, so a node shared by two
// boundary groups belongs to the higher tag. An empty name selects every node.
func (m *Mesh) NodesInGroup(name string) ([]int, error) {
	N := m.Nodes.Len()
	if name == "" {
		ids := make([]int, N)
		for i := range ids {
			ids[i] = i
		}
		return ids, nil
	}
	g, ok := m.NamedGroups[name]
	if !ok {
		return nil, fmt.Errorf("%w: %q", ErrUnknownGroup, name)
	}
	member := make([]bool, N)
	for geom, c := range m.Containers {
		props, err := element.GetProperties(geom)
		if err != nil {
			return nil, err
		}
		if props.Dimensions != g.Dim {
			continue
		}
		for k := range c.Elements {
			el := c.At(k)
			if el.Group(element.Named) != g.Tag {
				continue
			}
			for _, n := range el.NodeIDs {
				member[n] = true
			}
		}
	}
	boundary := g.Dim < m.Dimension
	var ids []int
	for i, in := range member {
		if in && (!boundary || m.Nodes.Group(element.Named, i) == g.Tag) {
			ids = append(ids, i)
		}
	}
	return ids, nil
}

// GroupNames returns the named group labels sorted alphabetically
func (m *Mesh) GroupNames() []string {
	names := make([]string, 0, len(m.NamedGroups))
	for name := range m.NamedGroups {
		names = append(names, name)
	}
	sort.Strings(names)
	return names
}

// ElementCoordinates gathers the node positions of e
func (m *Mesh) ElementCoordinates(e *element.Element) *mat.Dense {
	return m.Nodes.Coordinates(e.NodeIDs)
}
