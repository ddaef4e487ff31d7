// Package assembler scatters elemental contributions into global systems.
package assembler

import (
	"context"
	"errors"
	"fmt"
	sparsearr "github.com/ctessum/sparse"
	"github.com/james-bowman/sparse"
	"github.com/notargets/gocbs/element"
	"github.com/notargets/gocbs/mesh"
	"github.com/notargets/gocbs/partitions"
	"go.uber.org/zap"
	"golang.org/x/sync/errgroup"
	"gonum.org/v1/gonum/mat"
	"runtime"
)

var (
	ErrKernelNotRegistered        = errors.New("there is no assembling function registered for")
	ErrVariableCountNotRegistered = errors.New("variable count not registered")
	ErrDuplicateEquation          = errors.New("duplicated equation label")
	ErrKernelShape                = errors.New("kernel returned a matrix of unexpected shape")
	ErrMissingParameter           = errors.New("missing parameter")
)

// Side selects the left or right hand side of an equation
type Side uint8

const (
	LHS Side = iota
	RHS
)

func (s Side) String() string {
	if s == LHS {
		return "lhs"
	}
	return "rhs"
}

// Parameters are the scalar model parameters handed to every kernel
type Parameters map[string]float64

// Get returns a named parameter or ErrMissingParameter
func (p Parameters) Get(name string) (float64, error) {
	v, ok := p[name]
	if !ok {
		return 0, fmt.Errorf("%w: %s", ErrMissingParameter, name)
	}
	return v, nil
}

// Kernel computes the local contribution of one element. LHS kernels return
// an [Np × Np] matrix; RHS kernels return [nvar × Np], row v holding the
// local vector of solved variable v. Kernels may run concurrently and must
// only read from nodes.
type Kernel func(e *element.Element, nodes *mesh.Nodes, params Parameters) (*mat.Dense, error)

type registryKey struct {
	label    string
	side     Side
	geometry element.ElementGeometry
}

func (k registryKey) String() string {
	return fmt.Sprintf("%s/%s/%s", k.label, k.side, k.geometry)
}

// Assembler maps (equation label, side, element type) to elemental kernels
type Assembler struct {
	logger *zap.Logger

	kernels       map[registryKey]Kernel
	variableCount map[string]int
	equations     map[string]bool

	partitionSize int
	workers       int
}

// Option configures an Assembler
type Option func(*Assembler)

// WithPartitionSize sets the target element count per assembly partition
func WithPartitionSize(n int) Option {
	return func(a *Assembler) {
		if n > 0 {
			a.partitionSize = n
		}
	}
}

// WithWorkers bounds the number of partitions assembled concurrently
func WithWorkers(n int) Option {
	return func(a *Assembler) {
		if n > 0 {
			a.workers = n
		}
	}
}

// New creates an empty registry
func New(logger *zap.Logger, opts ...Option) *Assembler {
	if logger == nil {
		logger = zap.NewNop()
	}
	a := &Assembler{
		logger:        logger,
		kernels:       make(map[registryKey]Kernel),
		variableCount: make(map[string]int),
		equations:     make(map[string]bool),
		partitionSize: partitions.DefaultPartitionSize,
		workers:       runtime.GOMAXPROCS(0),
	}
	for _, opt := range opts {
		opt(a)
	}
	return a
}

// RegisterEquation claims a label. Labels are unique within one Assembler.
func (a *Assembler) RegisterEquation(label string) error {
	if a.equations[label] {
		return fmt.Errorf("%w: %q", ErrDuplicateEquation, label)
	}
	a.equations[label] = true
	return nil
}

// RegisterKernel binds fn to an (equation, side, element type) combination
func (a *Assembler) RegisterKernel(label string, side Side, g element.ElementGeometry, fn Kernel) error {
	if fn == nil {
		return fmt.Errorf("nil kernel for %s", registryKey{label, side, g})
	}
	a.kernels[registryKey{label, side, g}] = fn
	return nil
}

// RegisterVariableCount records how many variables the RHS of label carries
func (a *Assembler) RegisterVariableCount(label string, n int) error {
	if n <= 0 {
		return fmt.Errorf("equation %q: variable count must be positive, got %d", label, n)
	}
	a.variableCount[label] = n
	return nil
}

// VariableCount returns the registered RHS width of an equation
func (a *Assembler) VariableCount(label string) (int, error) {
	n, ok := a.variableCount[label]
	if !ok {
		return 0, fmt.Errorf("%w: %q", ErrVariableCountNotRegistered, label)
	}
	return n, nil
}

func (a *Assembler) kernel(label string, side Side, g element.ElementGeometry) (Kernel, error) {
	k := registryKey{label, side, g}
	fn, ok := a.kernels[k]
	if !ok {
		return nil, fmt.Errorf("%w %s", ErrKernelNotRegistered, k)
	}
	return fn, nil
}

func (a *Assembler) layout(c *element.Container) (*partitions.PartitionLayout, error) {
	pb := &partitions.PartitionBuilder{
		NumElements:         c.Len(),
		TargetPartitionSize: a.partitionSize,
		Strategy:            partitions.BlockPartition,
	}
	return pb.BuildPartitions()
}

// scatter runs fn on every element of c, one goroutine per partition, and
// returns the per-partition triplet lists concatenated in partition order
func (a *Assembler) scatter(ctx context.Context, c *element.Container, nodes *mesh.Nodes,
	params Parameters, fn Kernel, emit func(e *element.Element, local *mat.Dense, out []Triplet) ([]Triplet, error)) ([]Triplet, error) {

	layout, err := a.layout(c)
	if err != nil {
		return nil, err
	}

	lists := make([][]Triplet, layout.NumPartitions)
	eg, egCtx := errgroup.WithContext(ctx)
	eg.SetLimit(a.workers)
	for _, part := range layout.Partitions {
		part := part
		eg.Go(func() error {
			var out []Triplet
			for _, k := range part.Elements {
				if err := egCtx.Err(); err != nil {
					return err
				}
				e := c.At(k)
				local, err := fn(e, nodes, params)
				if err != nil {
					return fmt.Errorf("%s element %d: %w", c.Type, k, err)
				}
				if out, err = emit(e, local, out); err != nil {
					return fmt.Errorf("%s element %d: %w", c.Type, k, err)
				}
			}
			lists[part.ID] = out
			return nil
		})
	}
	if err := eg.Wait(); err != nil {
		return nil, err
	}

	total := 0
	for _, l := range lists {
		total += len(l)
	}
	merged := make([]Triplet, 0, total)
	for _, l := range lists {
		merged = append(merged, l...)
	}
	return merged, nil
}

// AssembleLHS builds the global [N × N] matrix of an equation
func (a *Assembler) AssembleLHS(ctx context.Context, label string, m *mesh.Mesh, params Parameters) (*sparse.CSR, error) {
	containers, err := m.AssembledContainers()
	if err != nil {
		return nil, err
	}
	N := m.Nodes.Len()

	var all []Triplet
	for _, c := range containers {
		fn, err := a.kernel(label, LHS, c.Type)
		if err != nil {
			return nil, err
		}
		t, err := a.scatter(ctx, c, m.Nodes, params, fn,
			func(e *element.Element, local *mat.Dense, out []Triplet) ([]Triplet, error) {
				np := e.NodesPerElement()
				if r, cc := local.Dims(); r != np || cc != np {
					return nil, fmt.Errorf("%w: lhs is %dx%d, want %dx%d", ErrKernelShape, r, cc, np, np)
				}
				for i, row := range e.NodeIDs {
					for j, col := range e.NodeIDs {
						out = append(out, Triplet{Row: row, Col: col, Value: local.At(i, j)})
					}
				}
				return out, nil
			})
		if err != nil {
			return nil, fmt.Errorf("assembling %s lhs: %w", label, err)
		}
		all = append(all, t...)
	}

	lhs := Compress(N, N, all)
	a.logger.Debug("assembled lhs",
		zap.String("equation", label),
		zap.Int("contributions", len(all)),
		zap.Int("nnz", lhs.NNZ()))
	return lhs, nil
}

// AssembleRHS builds the global [N × nvar] right hand side of an equation
func (a *Assembler) AssembleRHS(ctx context.Context, label string, m *mesh.Mesh, params Parameters) (*sparsearr.DenseArray, error) {
	nvar, err := a.VariableCount(label)
	if err != nil {
		return nil, err
	}
	containers, err := m.AssembledContainers()
	if err != nil {
		return nil, err
	}
	N := m.Nodes.Len()
	rhs := sparsearr.ZerosDense(N, nvar)

	for _, c := range containers {
		fn, err := a.kernel(label, RHS, c.Type)
		if err != nil {
			return nil, err
		}
		// Row is the global node, Col the variable
		t, err := a.scatter(ctx, c, m.Nodes, params, fn,
			func(e *element.Element, local *mat.Dense, out []Triplet) ([]Triplet, error) {
				np := e.NodesPerElement()
				if r, cc := local.Dims(); r != nvar || cc != np {
					return nil, fmt.Errorf("%w: rhs is %dx%d, want %dx%d", ErrKernelShape, r, cc, nvar, np)
				}
				for v := 0; v < nvar; v++ {
					for i, node := range e.NodeIDs {
						out = append(out, Triplet{Row: node, Col: v, Value: local.At(v, i)})
					}
				}
				return out, nil
			})
		if err != nil {
			return nil, fmt.Errorf("assembling %s rhs: %w", label, err)
		}
		for _, tr := range t {
			rhs.AddVal(tr.Value, tr.Row, tr.Col)
		}
	}

	a.logger.Debug("assembled rhs",
		zap.String("equation", label),
		zap.Int("nodes", N),
		zap.Int("variables", nvar))
	return rhs, nil
}

// Column extracts variable v of an [N × nvar] right hand side
func Column(rhs *sparsearr.DenseArray, v int) []float64 {
	N := rhs.Shape[0]
	col := make([]float64, N)
	for i := range col {
		col[i] = rhs.Get(i, v)
	}
	return col
}
