// Package simulator drives a case: it builds the mesh, the model and the
// domain conditions from the case files and runs the timestep loop.
package simulator

import (
	"context"
	"fmt"
	"github.com/notargets/gocbs/cbs"
	"github.com/notargets/gocbs/conditions"
	"github.com/notargets/gocbs/config"
	"github.com/notargets/gocbs/element"
	"github.com/notargets/gocbs/equation"
	"github.com/notargets/gocbs/gmsh"
	"github.com/notargets/gocbs/mesh"
	"github.com/notargets/gocbs/output"
	"go.uber.org/zap"
	"path/filepath"
	"time"
)

// Options tune the assembly of every equation
type Options struct {
	PartitionSize int
	Workers       int
}

type Simulator struct {
	Case       *config.Case
	Mesh       *mesh.Mesh
	Model      cbs.Model
	Conditions *conditions.DomainConditions
	Output     *output.Writer

	variables []string
	unknowns  []string
	logger    *zap.Logger
}

// New reads the mesh, resolves the conditions, sets the model up and opens
// the output stores of c
func New(c *config.Case, opts Options, logger *zap.Logger) (*Simulator, error) {
	if logger == nil {
		logger = zap.NewNop()
	}
	sim := c.Simulation
	logger = logger.With(zap.String("case", sim.General.Alias))
	logger.Info("setting up simulator",
		zap.String("title", sim.General.Title),
		zap.String("model", sim.Simulation.Model),
		zap.String("mesh", sim.Mesh.Filename))

	changed, err := c.UpdateCacheInfo()
	if err != nil {
		return nil, err
	}
	if !changed {
		logger.Info("no input file has changed since the last run")
	}

	if sim.Mesh.InterpolationOrder != 1 {
		return nil, fmt.Errorf("interpolation order %d: %w", sim.Mesh.InterpolationOrder, element.ErrNotImplemented)
	}
	imp, err := gmsh.ReadFile(c.MeshFile(), logger)
	if err != nil {
		return nil, err
	}
	m, err := mesh.New(imp, logger)
	if err != nil {
		return nil, err
	}
	dim := int(m.Dimension)

	model, err := cbs.NewModel(sim.Simulation.Model)
	if err != nil {
		return nil, err
	}
	variables := model.Variables(dim)
	settings, err := sim.ModelSettings(variables)
	if err != nil {
		return nil, err
	}
	settings.PartitionSize = opts.PartitionSize
	settings.Workers = opts.Workers
	if err := model.Setup(dim, settings, logger); err != nil {
		return nil, err
	}

	initial, boundary := c.Conditions.Directives()
	dc, err := conditions.New(m, model.DefaultInitialValues(dim), initial, boundary, logger)
	if err != nil {
		return nil, err
	}

	w, err := output.NewWriter(c.ResultDir(), sim.General.Description, output.Options{
		SaveResult:  sim.Output.SaveResult,
		SaveNumeric: sim.Output.SaveNumeric,
		SaveDebug:   sim.Output.SaveDebug,
	}, logger)
	if err != nil {
		return nil, err
	}
	if err := w.WriteMesh(m); err != nil {
		w.Close()
		return nil, err
	}

	unknowns := sim.Output.Unknowns
	if len(unknowns) == 0 {
		unknowns = variables
	}
	logger.Info("simulator ready",
		zap.Int("dimension", dim),
		zap.Strings("variables", variables),
		zap.String("run_id", w.RunID))
	return &Simulator{
		Case:       c,
		Mesh:       m,
		Model:      model,
		Conditions: dc,
		Output:     w,
		variables:  variables,
		unknowns:   unknowns,
		logger:     logger,
	}, nil
}

// writeResult saves the output unknowns and, into the numeric store, the
// local timestep of every assembled element
func (s *Simulator) writeResult(step int) error {
	fields := make(map[string][]float64, len(s.unknowns))
	for _, u := range s.unknowns {
		v, err := s.Mesh.Nodes.Values(u)
		if err != nil {
			return err
		}
		fields[u] = v
	}
	if err := s.Output.WriteResult(step, fields); err != nil {
		return err
	}
	cs, err := s.Mesh.AssembledContainers()
	if err != nil {
		return err
	}
	var dt []float64
	for _, c := range cs {
		for k := range c.Elements {
			dt = append(dt, c.At(k).Dt)
		}
	}
	return s.Output.WriteNumeric("dt", dt)
}

// Run applies the initial conditions and iterates until the model stops the
// simulation or the step limit is reached. The summary is written to the
// result directory in both cases.
func (s *Simulator) Run(ctx context.Context) (output.Summary, error) {
	sim := s.Case.Simulation
	summary := output.Summary{
		RunID:   s.Output.RunID,
		Title:   sim.General.Title,
		Alias:   sim.General.Alias,
		Model:   s.Model.Name(),
		Started: time.Now(),
	}
	if err := s.Conditions.ApplyInitialConditions(s.Mesh.Nodes); err != nil {
		return summary, err
	}

	limit, frequency := sim.Simulation.StepsLimit, sim.Output.Frequency
	s.logger.Info("starting main loop", zap.Int("steps_limit", limit))
	stopped := false
	for step := 0; step < limit && !stopped; step++ {
		s.logger.Debug("solving time step", zap.Int("step", step), zap.Int("steps_limit", limit))
		var debug equation.DebugWriter
		if sw := s.Output.StepDebug(step); sw != nil {
			debug = sw
		}
		rep, err := s.Model.RunIteration(ctx, s.Mesh, s.Conditions, debug)
		if err != nil {
			return summary, fmt.Errorf("step %d: %w", step, err)
		}
		summary.Steps = step + 1
		summary.Status = rep.StatusMessage

		saved := step%frequency == 0
		if saved {
			if err := s.writeResult(step); err != nil {
				return summary, err
			}
			summary.LastSavedStep = step
		}
		if !rep.StopSimulation {
			continue
		}
		stopped = true
		summary.Converged = rep.Converged
		if rep.Converged {
			s.logger.Info(rep.StatusMessage, zap.Int("step", step))
		} else {
			s.logger.Error(rep.StatusMessage, zap.Int("step", step))
		}
		if !saved {
			if err := s.writeResult(step); err != nil {
				return summary, err
			}
			summary.LastSavedStep = step
		}
	}
	if !stopped {
		s.logger.Error("maximum time step was reached without convergence", zap.Int("steps_limit", limit))
	}

	summary.Elapsed = time.Since(summary.Started)
	if err := output.WriteSummary(filepath.Join(s.Case.ResultDir(), output.SummaryFilename), summary); err != nil {
		return summary, err
	}
	s.logger.Info("simulation finished",
		zap.Int("steps", summary.Steps),
		zap.Bool("converged", summary.Converged),
		zap.Duration("elapsed", summary.Elapsed))
	return summary, nil
}

func (s *Simulator) Close() error {
	return s.Output.Close()
}
