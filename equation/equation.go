// Package equation couples an assembled system to its solved fields:
// assemble, eliminate Dirichlet nodes, solve each field.
package equation

import (
	"context"
	"fmt"
	sparsearr "github.com/ctessum/sparse"
	"github.com/james-bowman/sparse"
	"github.com/notargets/gocbs/assembler"
	"github.com/notargets/gocbs/conditions"
	"github.com/notargets/gocbs/element"
	"github.com/notargets/gocbs/mesh"
	"github.com/notargets/gocbs/report"
	"github.com/notargets/gocbs/solver"
	"go.uber.org/zap"
	"golang.org/x/sync/errgroup"
)

// Registration binds the elemental kernels of one element type
type Registration struct {
	Geometry element.ElementGeometry
	LHS      assembler.Kernel
	RHS      assembler.Kernel
}

// DebugWriter receives intermediate systems keyed "<label>/<artifact>"
type DebugWriter interface {
	WriteDebug(key string, value interface{}) error
}

// Equation is one linear system solved for one or more fields sharing the LHS
type Equation struct {
	Label  string
	Fields []string

	lhs        *sparse.CSR
	rhs        *sparsearr.DenseArray
	lhsApplied map[string]*sparse.CSR

	logger *zap.Logger
}

// New registers the equation and its kernels with a. The label must be
// unique within a.
func New(label string, fields []string, a *assembler.Assembler, logger *zap.Logger, regs ...Registration) (*Equation, error) {
	if logger == nil {
		logger = zap.NewNop()
	}
	if len(fields) == 0 {
		return nil, fmt.Errorf("equation %q solves no field", label)
	}
	if err := a.RegisterEquation(label); err != nil {
		return nil, err
	}
	if err := a.RegisterVariableCount(label, len(fields)); err != nil {
		return nil, err
	}
	for _, r := range regs {
		if err := a.RegisterKernel(label, assembler.LHS, r.Geometry, r.LHS); err != nil {
			return nil, err
		}
		if err := a.RegisterKernel(label, assembler.RHS, r.Geometry, r.RHS); err != nil {
			return nil, err
		}
	}
	return &Equation{
		Label:      label,
		Fields:     append([]string(nil), fields...),
		lhsApplied: make(map[string]*sparse.CSR),
		logger:     logger.With(zap.String("equation", label)),
	}, nil
}

type fieldResult struct {
	lhs    *sparse.CSR
	rhs    []float64
	x      []float64
	report report.SolverReport
}

// CalculateSolution assembles what is flagged, applies the Dirichlet
// conditions field by field and solves every field concurrently, seeding CG
// with the current field values. Node values are not modified. Solver
// failures are returned as reports; the error is reserved for setup faults
// and cancellation.
func (eq *Equation) CalculateSolution(ctx context.Context, m *mesh.Mesh, a *assembler.Assembler,
	dc *conditions.DomainConditions, params assembler.Parameters, settings solver.Settings,
	mustUpdateLHS, mustUpdateRHS bool, debug DebugWriter) (map[string][]float64, map[string]report.SolverReport, error) {

	var err error
	if mustUpdateLHS || eq.lhs == nil {
		eq.logger.Debug("updating LHS")
		if eq.lhs, err = a.AssembleLHS(ctx, eq.Label, m, params); err != nil {
			return nil, nil, err
		}
		mustUpdateLHS = true
	}
	if mustUpdateRHS || eq.rhs == nil {
		eq.logger.Debug("updating RHS")
		if eq.rhs, err = a.AssembleRHS(ctx, eq.Label, m, params); err != nil {
			return nil, nil, err
		}
	}

	results := make([]fieldResult, len(eq.Fields))
	eg, egCtx := errgroup.WithContext(ctx)
	for v, field := range eq.Fields {
		v, field := v, field
		eg.Go(func() error {
			res := &results[v]
			res.lhs = eq.lhsApplied[field]
			if mustUpdateLHS || res.lhs == nil {
				res.lhs = dc.LHSWithBoundaryCondition(eq.lhs, field)
			}
			rhs, err := dc.RHSWithBoundaryCondition(eq.lhs, assembler.Column(eq.rhs, v), field)
			if err != nil {
				return fmt.Errorf("%s/%s: %w", eq.Label, field, err)
			}
			res.rhs = rhs

			x0, err := m.Nodes.Values(field)
			if err != nil {
				return fmt.Errorf("%s: %w", eq.Label, err)
			}
			out, err := solver.ConjugateGradient(egCtx, res.lhs, rhs, x0, settings)
			if err != nil {
				return fmt.Errorf("%s/%s: %w", eq.Label, field, err)
			}
			res.x = out.X
			res.report = report.FromExitStatus(out.Status, out.Iterations)
			return nil
		})
	}
	if err := eg.Wait(); err != nil {
		return nil, nil, err
	}

	solutions := make(map[string][]float64, len(eq.Fields))
	reports := make(map[string]report.SolverReport, len(eq.Fields))
	for v, field := range eq.Fields {
		res := results[v]
		eq.lhsApplied[field] = res.lhs
		solutions[field] = res.x
		reports[field] = res.report
		eq.logger.Debug("solved field",
			zap.String("field", field),
			zap.Int("iterations", res.report.Iterations),
			zap.Int("status", res.report.ExitStatus))
	}

	if debug != nil {
		if err := eq.writeDebug(debug, results); err != nil {
			return nil, nil, err
		}
	}
	return solutions, reports, nil
}

func (eq *Equation) writeDebug(debug DebugWriter, results []fieldResult) error {
	if err := debug.WriteDebug(eq.Label+"/lhs_assembled", eq.lhs); err != nil {
		return err
	}
	if err := debug.WriteDebug(eq.Label+"/rhs_assembled", eq.rhs); err != nil {
		return err
	}
	for v, field := range eq.Fields {
		if err := debug.WriteDebug(eq.Label+"/"+field+"/lhs_condition_applied", results[v].lhs); err != nil {
			return err
		}
		if err := debug.WriteDebug(eq.Label+"/"+field+"/rhs_condition_applied", results[v].rhs); err != nil {
			return err
		}
	}
	return nil
}
