// Package conditions resolves initial and boundary directives against a mesh
// and applies Dirichlet elimination to assembled systems.
package conditions

import (
	"errors"
	"fmt"
	"github.com/james-bowman/sparse"
	"github.com/notargets/gocbs/assembler"
	"github.com/notargets/gocbs/mesh"
	"go.uber.org/zap"
	"sort"
)

var (
	ErrUnknownGroup = errors.New("condition references an unknown group")
	ErrUnknownField = errors.New("condition references an unknown field")
	ErrUnknownKind  = errors.New("unknown condition type")
	ErrShape        = errors.New("system shape mismatch")
)

// Kind is the condition type as written in conditions.toml
type Kind int

const (
	Dirichlet Kind = 1 // prescribed value
	Neumann   Kind = 2 // prescribed normal derivative, stored only
)

func (k Kind) String() string {
	switch k {
	case Dirichlet:
		return "dirichlet"
	case Neumann:
		return "neumann"
	default:
		return fmt.Sprintf("Kind(%d)", int(k))
	}
}

// Key identifies the condition list of one field and kind
type Key struct {
	Field string
	Kind  Kind
}

// Condition holds node indices and their prescribed values, in directive order
type Condition struct {
	Indices []int
	Values  []float64
}

func (c *Condition) add(ids []int, value float64) {
	for _, id := range ids {
		c.Indices = append(c.Indices, id)
		c.Values = append(c.Values, value)
	}
}

// Directive is one [[initial]] or [[boundary]] entry. An empty GroupName
// selects every node.
type Directive struct {
	GroupName string
	Field     string
	Kind      Kind
	Value     float64
}

// dirichletSet is the deduplicated view of one field's Dirichlet boundary
// entries: ascending node ids, the last listed value winning.
type dirichletSet struct {
	index  map[int]int // node id → position in ids
	ids    []int
	values []float64
}

func (d *dirichletSet) contains(id int) bool {
	_, ok := d.index[id]
	return ok
}

// DomainConditions holds the resolved initial and boundary conditions
type DomainConditions struct {
	Initial  map[Key]*Condition
	Boundary map[Key]*Condition

	dirichlet map[string]*dirichletSet
	logger    *zap.Logger
}

// New resolves directives through the mesh named groups. defaults holds the
// model default value of every field and seeds an all-node initial Dirichlet
// condition per field, ahead of the user initial directives.
func New(m *mesh.Mesh, defaults map[string]float64, initial, boundary []Directive, logger *zap.Logger) (*DomainConditions, error) {
	if logger == nil {
		logger = zap.NewNop()
	}
	dc := &DomainConditions{
		Initial:   make(map[Key]*Condition),
		Boundary:  make(map[Key]*Condition),
		dirichlet: make(map[string]*dirichletSet),
		logger:    logger,
	}

	all, _ := m.NodesInGroup("")
	fields := make([]string, 0, len(defaults))
	for f := range defaults {
		fields = append(fields, f)
	}
	sort.Strings(fields)
	for _, f := range fields {
		c := &Condition{}
		c.add(all, defaults[f])
		dc.Initial[Key{f, Dirichlet}] = c
	}

	resolve := func(section string, dst map[Key]*Condition, ds []Directive) error {
		for i, d := range ds {
			if _, ok := defaults[d.Field]; !ok {
				return fmt.Errorf("%s directive %d: %w: %q", section, i, ErrUnknownField, d.Field)
			}
			if d.Kind != Dirichlet && d.Kind != Neumann {
				return fmt.Errorf("%s directive %d: %w: %d", section, i, ErrUnknownKind, int(d.Kind))
			}
			ids, err := m.NodesInGroup(d.GroupName)
			if err != nil {
				return fmt.Errorf("%s directive %d: %w: %w", section, i, ErrUnknownGroup, err)
			}
			key := Key{d.Field, d.Kind}
			c, ok := dst[key]
			if !ok {
				c = &Condition{}
				dst[key] = c
			}
			c.add(ids, d.Value)
		}
		return nil
	}
	if err := resolve("initial", dc.Initial, initial); err != nil {
		return nil, err
	}
	if err := resolve("boundary", dc.Boundary, boundary); err != nil {
		return nil, err
	}

	for key, c := range dc.Boundary {
		switch key.Kind {
		case Dirichlet:
			dc.dirichlet[key.Field] = newDirichletSet(c)
		case Neumann:
			logger.Warn("neumann conditions are stored but not applied",
				zap.String("field", key.Field),
				zap.Int("nodes", len(c.Indices)))
		}
	}
	logger.Info("domain conditions resolved",
		zap.Int("initial", len(dc.Initial)),
		zap.Int("boundary", len(dc.Boundary)))
	return dc, nil
}

func newDirichletSet(c *Condition) *dirichletSet {
	last := make(map[int]float64, len(c.Indices))
	for i, id := range c.Indices {
		last[id] = c.Values[i]
	}
	d := &dirichletSet{index: make(map[int]int, len(last))}
	for id := range last {
		d.ids = append(d.ids, id)
	}
	sort.Ints(d.ids)
	d.values = make([]float64, len(d.ids))
	for k, id := range d.ids {
		d.index[id] = k
		d.values[k] = last[id]
	}
	return d
}

// DirichletNodes returns the deduplicated Dirichlet node ids and values of a field
func (dc *DomainConditions) DirichletNodes(field string) (ids []int, values []float64) {
	d, ok := dc.dirichlet[field]
	if !ok {
		return nil, nil
	}
	return d.ids, d.values
}

// ApplyInitialConditions writes every initial entry, then every Dirichlet
// boundary entry, into the current node values. Fields are created on first use.
func (dc *DomainConditions) ApplyInitialConditions(nodes *mesh.Nodes) error {
	apply := func(conds map[Key]*Condition, onlyDirichlet bool) error {
		keys := make([]Key, 0, len(conds))
		for k := range conds {
			if onlyDirichlet && k.Kind != Dirichlet {
				continue
			}
			keys = append(keys, k)
		}
		sort.Slice(keys, func(i, j int) bool {
			if keys[i].Field != keys[j].Field {
				return keys[i].Field < keys[j].Field
			}
			return keys[i].Kind < keys[j].Kind
		})
		for _, k := range keys {
			if _, ok := nodes.Current[k.Field]; !ok {
				nodes.InitField(k.Field, 0)
			}
			v, _ := nodes.Values(k.Field)
			c := conds[k]
			for i, id := range c.Indices {
				if id < 0 || id >= len(v) {
					return fmt.Errorf("%s: node %d out of range", k.Field, id)
				}
				v[id] = c.Values[i]
			}
		}
		return nil
	}
	if err := apply(dc.Initial, false); err != nil {
		return err
	}
	return apply(dc.Boundary, true)
}

// LHSWithBoundaryCondition returns a copy of lhs in which the rows and columns
// of the Dirichlet nodes of field are zeroed, with a unit diagonal. Explicit
// zeros are dropped. Applying it to its own output is a no-op.
func (dc *DomainConditions) LHSWithBoundaryCondition(lhs *sparse.CSR, field string) *sparse.CSR {
	r, c := lhs.Dims()
	d := dc.dirichlet[field]
	src := assembler.Triplets(lhs)
	out := src[:0]
	for _, t := range src {
		if t.Value == 0 {
			continue
		}
		if d != nil && (d.contains(t.Row) || d.contains(t.Col)) {
			continue
		}
		out = append(out, t)
	}
	if d != nil {
		for _, id := range d.ids {
			out = append(out, assembler.Triplet{Row: id, Col: id, Value: 1})
		}
	}
	return assembler.Compress(r, c, out)
}

// RHSWithBoundaryCondition moves the known Dirichlet columns of lhs to the
// right hand side and then overwrites the Dirichlet positions with their
// values. lhs is the assembled matrix before elimination.
func (dc *DomainConditions) RHSWithBoundaryCondition(lhs *sparse.CSR, rhs []float64, field string) ([]float64, error) {
	r, c := lhs.Dims()
	if r != len(rhs) || c != len(rhs) {
		return nil, fmt.Errorf("%w: lhs is %dx%d, rhs has %d entries", ErrShape, r, c, len(rhs))
	}
	out := make([]float64, len(rhs))
	copy(out, rhs)
	d := dc.dirichlet[field]
	if d == nil {
		return out, nil
	}

	offset := make([]float64, len(rhs))
	lhs.DoNonZero(func(i, j int, v float64) {
		if k, ok := d.index[j]; ok {
			offset[i] -= v * d.values[k]
		}
	})
	for i := range out {
		out[i] += offset[i]
	}
	for k, id := range d.ids {
		out[id] = d.values[k]
	}
	return out, nil
}
