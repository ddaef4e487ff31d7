// Package cbs implements the Characteristic-Based Split models for
// incompressible flow on linear triangles.
package cbs

import (
	"context"
	"errors"
	"fmt"
	"github.com/notargets/gocbs/assembler"
	"github.com/notargets/gocbs/conditions"
	"github.com/notargets/gocbs/convergence"
	"github.com/notargets/gocbs/equation"
	"github.com/notargets/gocbs/mesh"
	"github.com/notargets/gocbs/report"
	"github.com/notargets/gocbs/solver"
	"go.uber.org/zap"
	"sort"
	"strings"
)

const (
	fieldU1 = "u_1"
	fieldU2 = "u_2"
	fieldU3 = "u_3"
	fieldP  = "p"

	// ParamReynolds is the [parameter] key of the Reynolds number
	ParamReynolds = "Re"
)

var (
	ErrUnknownModel = errors.New("model not available")
	ErrNotSetup     = errors.New("model used before Setup")
	ErrReynolds     = errors.New("Reynolds number must be positive")
)

// defaultInitialValues covers every variable up to three dimensions
var defaultInitialValues = map[string]float64{
	fieldU1: 0,
	fieldU2: 0,
	fieldU3: 0,
	fieldP:  0.0001,
}

// Settings is everything a model needs from the simulation configuration
type Settings struct {
	Transient    bool
	SafetyFactor float64
	Parameters   assembler.Parameters
	Solver       solver.Settings
	Tolerances   map[string]convergence.Tolerance

	PartitionSize int
	Workers       int
}

// Model is a CBS variant: it wires its equations in Setup and advances the
// solution by one timestep per RunIteration. RunIteration never writes results.
type Model interface {
	Name() string
	Variables(dim int) []string
	DefaultInitialValues(dim int) map[string]float64
	Setup(dim int, s Settings, logger *zap.Logger) error
	RunIteration(ctx context.Context, m *mesh.Mesh, dc *conditions.DomainConditions, debug equation.DebugWriter) (report.IterationReport, error)
}

// Models returns the name → constructor table of every available model
func Models() map[string]func() Model {
	return map[string]func() Model{
		SemiImplicitName: func() Model { return &SemiImplicit{} },
	}
}

// ModelNames lists the registered model names, sorted
func ModelNames() []string {
	models := Models()
	names := make([]string, 0, len(models))
	for name := range models {
		names = append(names, name)
	}
	sort.Strings(names)
	return names
}

// NewModel instantiates a registered model
func NewModel(name string) (Model, error) {
	ctor, ok := Models()[name]
	if !ok {
		return nil, fmt.Errorf("%w: %q, available: %s", ErrUnknownModel, name, strings.Join(ModelNames(), ", "))
	}
	return ctor(), nil
}

// VelocityFields returns u_1..u_dim
func VelocityFields(dim int) []string {
	fields := make([]string, dim)
	for d := range fields {
		fields[d] = fmt.Sprintf("u_%d", d+1)
	}
	return fields
}

// Variables returns the velocity components followed by the pressure
func Variables(dim int) []string {
	return append(VelocityFields(dim), fieldP)
}

// DefaultInitialValues drops the velocity components beyond dim
func DefaultInitialValues(dim int) map[string]float64 {
	out := make(map[string]float64, dim+1)
	for _, f := range Variables(dim) {
		out[f] = defaultInitialValues[f]
	}
	return out
}
