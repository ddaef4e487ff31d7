package cbs

import (
	"context"
	"fmt"
	"github.com/notargets/gocbs/assembler"
	"github.com/notargets/gocbs/conditions"
	"github.com/notargets/gocbs/convergence"
	"github.com/notargets/gocbs/element"
	"github.com/notargets/gocbs/equation"
	"github.com/notargets/gocbs/mesh"
	"github.com/notargets/gocbs/report"
	"go.uber.org/zap"
)

const SemiImplicitName = "semi_implicit"

// Equation labels of the three CBS steps
const (
	LabelStep1 = "step 1"
	LabelStep2 = "step 2"
	LabelStep3 = "step 3"
)

// SemiImplicit is the three-step CBS scheme with an implicit pressure solve
type SemiImplicit struct {
	logger    *zap.Logger
	settings  Settings
	dim       int
	assembler *assembler.Assembler
	equations []*equation.Equation
}

func (s *SemiImplicit) Name() string { return SemiImplicitName }

func (s *SemiImplicit) Variables(dim int) []string { return Variables(dim) }

func (s *SemiImplicit) DefaultInitialValues(dim int) map[string]float64 {
	return DefaultInitialValues(dim)
}

// Setup registers the three equations on a fresh assembler
func (s *SemiImplicit) Setup(dim int, settings Settings, logger *zap.Logger) error {
	if logger == nil {
		logger = zap.NewNop()
	}
	if dim != 2 {
		return fmt.Errorf("%s model in %dD: %w", SemiImplicitName, dim, element.ErrNotImplemented)
	}
	re, err := settings.Parameters.Get(ParamReynolds)
	if err != nil {
		return err
	}
	if re <= 0 {
		return fmt.Errorf("%w, got %g", ErrReynolds, re)
	}
	s.logger = logger.With(zap.String("model", SemiImplicitName))
	s.settings = settings
	s.dim = dim
	s.assembler = assembler.New(s.logger,
		assembler.WithPartitionSize(settings.PartitionSize),
		assembler.WithWorkers(settings.Workers))

	mass := MassLumpedLHS
	if settings.Transient {
		mass = MassLHS
	}
	velocity := VelocityFields(dim)
	specs := []struct {
		label  string
		fields []string
		reg    equation.Registration
	}{
		{LabelStep1, velocity, equation.Registration{Geometry: element.Tri, LHS: mass, RHS: Step1RHS}},
		{LabelStep2, []string{fieldP}, equation.Registration{Geometry: element.Tri, LHS: StiffnessLHS, RHS: Step2RHS}},
		{LabelStep3, velocity, equation.Registration{Geometry: element.Tri, LHS: mass, RHS: Step3RHS}},
	}
	s.equations = s.equations[:0]
	for _, spec := range specs {
		eq, err := equation.New(spec.label, spec.fields, s.assembler, s.logger, spec.reg)
		if err != nil {
			return err
		}
		s.equations = append(s.equations, eq)
	}
	s.logger.Info("model setup done",
		zap.Int("equations", len(s.equations)),
		zap.Bool("transient", settings.Transient))
	return nil
}

// RunIteration advances one timestep. A failed linear solve stops the run
// with a report naming the equation and field.
func (s *SemiImplicit) RunIteration(ctx context.Context, m *mesh.Mesh, dc *conditions.DomainConditions,
	debug equation.DebugWriter) (report.IterationReport, error) {

	if s.assembler == nil {
		return report.IterationReport{}, ErrNotSetup
	}
	variables := s.Variables(s.dim)
	mustUpdateLHS := m.Nodes.Moved
	if mustUpdateLHS {
		re, _ := s.settings.Parameters.Get(ParamReynolds)
		if err := RefreshGeometry(m, re, s.settings.SafetyFactor); err != nil {
			return report.IterationReport{}, err
		}
	}
	if err := m.Nodes.SnapshotPrevious(variables); err != nil {
		return report.IterationReport{}, err
	}

	for _, eq := range s.equations {
		s.logger.Debug("solving equation", zap.String("equation", eq.Label))
		solutions, reports, err := eq.CalculateSolution(ctx, m, s.assembler, dc,
			s.settings.Parameters, s.settings.Solver, mustUpdateLHS, true, debug)
		if err != nil {
			return report.IterationReport{}, fmt.Errorf("equation %q: %w", eq.Label, err)
		}
		for _, field := range eq.Fields {
			if x := solutions[field]; x != nil {
				if err := m.Nodes.SetValues(field, x); err != nil {
					return report.IterationReport{}, err
				}
			}
			if sr := reports[field]; !sr.Success {
				s.logger.Error("linear solve failed",
					zap.String("equation", eq.Label),
					zap.String("field", field),
					zap.Int("status", sr.ExitStatus))
				return report.Failure(eq.Label, field, sr), nil
			}
		}
	}

	m.Nodes.Move()
	return convergence.Check(m.Nodes, variables, s.settings.Tolerances)
}
