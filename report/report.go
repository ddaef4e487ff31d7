// Package report carries the outcome of one model iteration and of one
// linear solve.
package report

import "fmt"

// IterationStatus is the user facing message of an iteration outcome
type IterationStatus string

const (
	StatusNormal    IterationStatus = "Iteration step succeeded, not converged yet."
	StatusConverged IterationStatus = "The current iteration CONVERGED."
	// StatusDiverged is reserved; no divergence detector exists
	StatusDiverged IterationStatus = "The current iteration of the model DIVERGED!"
)

// SolverStatus is the user facing message of a linear solve outcome
type SolverStatus string

const (
	SolverSuccess        SolverStatus = "Linear solve succeeded."
	SolverMaxIterReached SolverStatus = "The maximum number of iterations was reached by the solver (status > 0)."
	SolverIllegalInput   SolverStatus = "Illegal input or breakdown in the solver (status < 0)."
)

// IterationReport is returned by every model iteration
type IterationReport struct {
	Converged      bool
	StopSimulation bool
	StatusMessage  string
}

// Normal is the report of an iteration that neither converged nor failed
func Normal() IterationReport {
	return IterationReport{StatusMessage: string(StatusNormal)}
}

// Converged is the report of a converged iteration
func Converged() IterationReport {
	return IterationReport{Converged: true, StopSimulation: true, StatusMessage: string(StatusConverged)}
}

// Failure stops the simulation with a message naming the equation and field
func Failure(equation, field string, sr SolverReport) IterationReport {
	return IterationReport{
		StopSimulation: true,
		StatusMessage: fmt.Sprintf("an issue was detected in equation %q for variable %q: %s",
			equation, field, sr.Status),
	}
}

// SolverReport is the per-field outcome of a linear solve
type SolverReport struct {
	Success    bool
	Status     SolverStatus
	ExitStatus int
	Iterations int
}

// FromExitStatus interprets a conjugate gradient exit code: 0 success,
// positive iteration cap reached, negative illegal input
func FromExitStatus(code, iterations int) SolverReport {
	sr := SolverReport{ExitStatus: code, Iterations: iterations}
	switch {
	case code == 0:
		sr.Success, sr.Status = true, SolverSuccess
	case code > 0:
		sr.Status = SolverMaxIterReached
	default:
		sr.Status = SolverIllegalInput
	}
	return sr
}
