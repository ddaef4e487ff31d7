// Package config loads and validates the two input files of a simulation
// case, simulation.toml and conditions.toml.
package config

import (
	"errors"
	"fmt"
	"github.com/BurntSushi/toml"
	"github.com/notargets/gocbs/assembler"
	"github.com/notargets/gocbs/cbs"
	"github.com/notargets/gocbs/convergence"
	"github.com/notargets/gocbs/solver"
	"github.com/spf13/cast"
	"regexp"
	"sort"
	"strings"
)

var (
	ErrInvalid            = errors.New("invalid input file")
	ErrUnknownKeys        = errors.New("unknown keys in input file")
	ErrUnsupportedVersion = errors.New("unsupported input file version")
	ErrToleranceKeys      = errors.New("tolerance keys do not match the model variables")
	ErrUnknownOutput      = errors.New("output unknown is not a model variable")
)

// CurrentVersion is the only [general] version understood
const CurrentVersion = 1

var aliasPattern = regexp.MustCompile(`^[a-zA-Z0-9_]+$`)

type General struct {
	Version     int    `toml:"version"`
	Title       string `toml:"title"`
	Alias       string `toml:"alias"`
	Description string `toml:"description"`
}

type SimulationSection struct {
	Model             string             `toml:"model"`
	StepsLimit        int                `toml:"steps_limit"`
	Transient         bool               `toml:"transient"`
	SafetyDtFactor    float64            `toml:"safety_dt_factor"`
	ToleranceAbsolute map[string]float64 `toml:"tolerance_absolute"`
	ToleranceRelative map[string]float64 `toml:"tolerance_relative"`
}

type MeshSection struct {
	Filename           string `toml:"filename"`
	InterpolationOrder int    `toml:"interpolation_order"`
}

type SolverSection struct {
	Name              string  `toml:"name"`
	Preconditioner    string  `toml:"preconditioner"`
	StepsLimit        int     `toml:"steps_limit"`
	ToleranceAbsolute float64 `toml:"tolerance_absolute"`
	ToleranceRelative float64 `toml:"tolerance_relative"`
}

type OutputSection struct {
	Frequency   int      `toml:"frequency"`
	SaveResult  bool     `toml:"save_result"`
	SaveNumeric bool     `toml:"save_numeric"`
	SaveDebug   bool     `toml:"save_debug"`
	Unknowns    []string `toml:"unknowns"`
}

// Simulation is the content of simulation.toml
type Simulation struct {
	General    General                `toml:"general"`
	Simulation SimulationSection      `toml:"simulation"`
	Mesh       MeshSection            `toml:"mesh"`
	Parameter  map[string]interface{} `toml:"parameter"`
	Solver     SolverSection          `toml:"solver"`
	Output     OutputSection          `toml:"output"`

	// Parameters is Parameter coerced to float64
	Parameters assembler.Parameters `toml:"-"`
}

// LoadSimulation decodes and validates a simulation.toml file
func LoadSimulation(path string) (*Simulation, error) {
	s := &Simulation{}
	meta, err := toml.DecodeFile(path, s)
	if err != nil {
		return nil, fmt.Errorf("%s: %w", path, err)
	}
	if err := rejectUndecoded(meta); err != nil {
		return nil, fmt.Errorf("%s: %w", path, err)
	}
	if err := s.Validate(); err != nil {
		return nil, fmt.Errorf("%s: %w", path, err)
	}
	return s, nil
}

func rejectUndecoded(meta toml.MetaData) error {
	undecoded := meta.Undecoded()
	if len(undecoded) == 0 {
		return nil
	}
	keys := make([]string, len(undecoded))
	for i, k := range undecoded {
		keys[i] = k.String()
	}
	return fmt.Errorf("%w: %s", ErrUnknownKeys, strings.Join(keys, ", "))
}

func invalid(format string, args ...interface{}) error {
	return fmt.Errorf("%w: %s", ErrInvalid, fmt.Sprintf(format, args...))
}

// Validate checks ranges and names that do not depend on the mesh, and fills
// Parameters
func (s *Simulation) Validate() error {
	g := s.General
	if g.Version != CurrentVersion {
		return fmt.Errorf("%w: %d", ErrUnsupportedVersion, g.Version)
	}
	if !aliasPattern.MatchString(g.Alias) {
		return invalid("general.alias %q must match %s", g.Alias, aliasPattern)
	}

	sim := s.Simulation
	if _, err := cbs.NewModel(sim.Model); err != nil {
		return err
	}
	if sim.StepsLimit <= 0 {
		return invalid("simulation.steps_limit must be positive, got %d", sim.StepsLimit)
	}
	if sim.SafetyDtFactor <= 0 || sim.SafetyDtFactor > 1 {
		return invalid("simulation.safety_dt_factor must be in (0, 1], got %g", sim.SafetyDtFactor)
	}
	for _, k := range sortedKeys(sim.ToleranceRelative) {
		if v := sim.ToleranceRelative[k]; v < 0 || v > 1 {
			return invalid("simulation.tolerance_relative.%s must be in [0, 1], got %g", k, v)
		}
	}
	for _, k := range sortedKeys(sim.ToleranceAbsolute) {
		if v := sim.ToleranceAbsolute[k]; v < 0 {
			return invalid("simulation.tolerance_absolute.%s must be non negative, got %g", k, v)
		}
	}

	if s.Mesh.Filename == "" {
		return invalid("mesh.filename is required")
	}
	if o := s.Mesh.InterpolationOrder; o < 1 || o > 3 {
		return invalid("mesh.interpolation_order must be in 1..3, got %d", o)
	}

	sol := s.Solver
	if err := solver.ValidateSolverName(sol.Name); err != nil {
		return err
	}
	if _, err := solver.ParsePreconditioner(sol.Preconditioner); err != nil {
		return err
	}
	if sol.StepsLimit <= 0 {
		return invalid("solver.steps_limit must be positive, got %d", sol.StepsLimit)
	}
	if sol.ToleranceRelative < 0 || sol.ToleranceRelative > 1 {
		return invalid("solver.tolerance_relative must be in [0, 1], got %g", sol.ToleranceRelative)
	}
	if sol.ToleranceAbsolute < 0 {
		return invalid("solver.tolerance_absolute must be non negative, got %g", sol.ToleranceAbsolute)
	}

	if s.Output.Frequency <= 0 {
		return invalid("output.frequency must be positive, got %d", s.Output.Frequency)
	}
	for _, u := range s.Output.Unknowns {
		if !aliasPattern.MatchString(u) {
			return invalid("output.unknowns entry %q must match %s", u, aliasPattern)
		}
	}

	s.Parameters = make(assembler.Parameters, len(s.Parameter))
	for k, v := range s.Parameter {
		f, err := cast.ToFloat64E(v)
		if err != nil {
			return invalid("parameter.%s: %v", k, err)
		}
		s.Parameters[k] = f
	}
	if re, ok := s.Parameters[cbs.ParamReynolds]; ok && re <= 0 {
		return invalid("parameter.%s must be positive, got %g", cbs.ParamReynolds, re)
	}
	return nil
}

// ModelSettings checks the per-field sections against the model variables
// and builds the model settings
func (s *Simulation) ModelSettings(variables []string) (cbs.Settings, error) {
	sim := s.Simulation
	want := append([]string(nil), variables...)
	sort.Strings(want)
	sections := []struct {
		name string
		m    map[string]float64
	}{
		{"tolerance_relative", sim.ToleranceRelative},
		{"tolerance_absolute", sim.ToleranceAbsolute},
	}
	for _, sec := range sections {
		if got := sortedKeys(sec.m); !equalStrings(got, want) {
			return cbs.Settings{}, fmt.Errorf("%w: simulation.%s has [%s], want [%s]",
				ErrToleranceKeys, sec.name, strings.Join(got, ", "), strings.Join(want, ", "))
		}
	}
	for _, u := range s.Output.Unknowns {
		if i := sort.SearchStrings(want, u); i == len(want) || want[i] != u {
			return cbs.Settings{}, fmt.Errorf("%w: %q", ErrUnknownOutput, u)
		}
	}

	pc, err := solver.ParsePreconditioner(s.Solver.Preconditioner)
	if err != nil {
		return cbs.Settings{}, err
	}
	tolerances := make(map[string]convergence.Tolerance, len(variables))
	for _, v := range variables {
		tolerances[v] = convergence.Tolerance{
			Relative: sim.ToleranceRelative[v],
			Absolute: sim.ToleranceAbsolute[v],
		}
	}
	return cbs.Settings{
		Transient:    sim.Transient,
		SafetyFactor: sim.SafetyDtFactor,
		Parameters:   s.Parameters,
		Solver: solver.Settings{
			Tolerance:         s.Solver.ToleranceRelative,
			AbsoluteTolerance: s.Solver.ToleranceAbsolute,
			MaxIterations:     s.Solver.StepsLimit,
			Preconditioner:    pc,
		},
		Tolerances: tolerances,
	}, nil
}

func sortedKeys(m map[string]float64) []string {
	keys := make([]string, 0, len(m))
	for k := range m {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	return keys
}

func equalStrings(a, b []string) bool {
	if len(a) != len(b) {
		return false
	}
	for i := range a {
		if a[i] != b[i] {
			return false
		}
	}
	return true
}
