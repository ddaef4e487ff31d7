// Package solver holds the preconditioned conjugate gradient used for every
// equation of the CBS step.
package solver

import (
	"context"
	"errors"
	"fmt"
	"github.com/james-bowman/sparse"
	"gonum.org/v1/gonum/floats"
	"math"
)

// Exit statuses. Positive values are the iteration count at which the cap
// was hit.
const (
	StatusSuccess      = 0
	StatusIllegalInput = -1
	StatusBreakdown    = -10
)

// Names accepted in simulation.toml
const (
	ConjugateGradientName = "Conjugate Gradient"
	JacobiName            = "Jacobi"
)

var ErrUnsupported = errors.New("unsupported solver option")

type Preconditioner uint8

const (
	NoPreconditioner Preconditioner = iota
	Jacobi
)

func (p Preconditioner) String() string {
	switch p {
	case Jacobi:
		return JacobiName
	default:
		return "None"
	}
}

// ParsePreconditioner maps a configured name to a Preconditioner
func ParsePreconditioner(name string) (Preconditioner, error) {
	switch name {
	case JacobiName:
		return Jacobi, nil
	case "", "None":
		return NoPreconditioner, nil
	}
	return 0, fmt.Errorf("%w: preconditioner %q, available: %s", ErrUnsupported, name, JacobiName)
}

// ValidateSolverName rejects every solver except the conjugate gradient
func ValidateSolverName(name string) error {
	if name != ConjugateGradientName {
		return fmt.Errorf("%w: solver %q, available: %s", ErrUnsupported, name, ConjugateGradientName)
	}
	return nil
}

// Settings bound one solve. The solve stops once
// ||r|| <= max(Tolerance·||b||, AbsoluteTolerance).
type Settings struct {
	Tolerance         float64
	AbsoluteTolerance float64
	MaxIterations     int // 0 selects 10·N
	Preconditioner    Preconditioner
}

// Result of a solve. Status follows the convention in the Status constants.
type Result struct {
	X          []float64
	Status     int
	Iterations int
	Residual   float64
}

// csr is the row compressed copy used for repeated products
type csr struct {
	n      int
	indptr []int
	ind    []int
	data   []float64
	diag   []float64
}

func newCSR(a *sparse.CSR) *csr {
	n, _ := a.Dims()
	m := &csr{
		n:      n,
		indptr: make([]int, n+1),
		ind:    make([]int, 0, a.NNZ()),
		data:   make([]float64, 0, a.NNZ()),
		diag:   make([]float64, n),
	}
	a.DoNonZero(func(i, j int, v float64) {
		m.indptr[i+1]++
		m.ind = append(m.ind, j)
		m.data = append(m.data, v)
		if i == j {
			m.diag[i] += v
		}
	})
	for i := 0; i < n; i++ {
		m.indptr[i+1] += m.indptr[i]
	}
	return m
}

// mulVec sets y = A·x
func (m *csr) mulVec(y, x []float64) {
	for i := 0; i < m.n; i++ {
		var s float64
		for k := m.indptr[i]; k < m.indptr[i+1]; k++ {
			s += m.data[k] * x[m.ind[k]]
		}
		y[i] = s
	}
}

// ConjugateGradient solves A·x = b for a symmetric positive definite A,
// starting from x0 (nil for zero). The returned error is non-nil only when
// ctx is cancelled; numerical failures are reported through Result.Status.
func ConjugateGradient(ctx context.Context, a *sparse.CSR, b, x0 []float64, s Settings) (Result, error) {
	r, c := a.Dims()
	n := len(b)
	if r != c || r != n || (x0 != nil && len(x0) != n) || s.Tolerance < 0 || s.AbsoluteTolerance < 0 || s.MaxIterations < 0 {
		return Result{Status: StatusIllegalInput}, nil
	}
	maxIter := s.MaxIterations
	if maxIter == 0 {
		maxIter = 10 * n
	}

	x := make([]float64, n)
	bnrm := floats.Norm(b, 2)
	if bnrm == 0 {
		return Result{X: x, Status: StatusSuccess}, nil
	}
	if x0 != nil {
		copy(x, x0)
	}

	A := newCSR(a)
	var minv []float64
	if s.Preconditioner == Jacobi {
		minv = make([]float64, n)
		for i, d := range A.diag {
			if d == 0 || math.IsNaN(d) {
				return Result{X: x, Status: StatusIllegalInput}, nil
			}
			minv[i] = 1 / d
		}
	}
	precondition := func(z, r []float64) {
		if minv == nil {
			copy(z, r)
			return
		}
		floats.MulTo(z, minv, r)
	}

	res := make([]float64, n)
	A.mulVec(res, x)
	floats.SubTo(res, b, res)
	atol := math.Max(s.Tolerance*bnrm, s.AbsoluteTolerance)
	rnrm := floats.Norm(res, 2)
	if rnrm <= atol {
		return Result{X: x, Status: StatusSuccess, Residual: rnrm}, nil
	}

	z := make([]float64, n)
	p := make([]float64, n)
	q := make([]float64, n)
	precondition(z, res)
	copy(p, z)
	rho := floats.Dot(res, z)

	for iter := 1; iter <= maxIter; iter++ {
		if err := ctx.Err(); err != nil {
			return Result{X: x, Status: StatusIllegalInput, Iterations: iter - 1, Residual: rnrm}, err
		}
		A.mulVec(q, p)
		pq := floats.Dot(p, q)
		if pq <= 0 || math.IsNaN(pq) {
			return Result{X: x, Status: StatusBreakdown, Iterations: iter, Residual: rnrm}, nil
		}
		alpha := rho / pq
		floats.AddScaled(x, alpha, p)
		floats.AddScaled(res, -alpha, q)

		rnrm = floats.Norm(res, 2)
		if rnrm <= atol {
			return Result{X: x, Status: StatusSuccess, Iterations: iter, Residual: rnrm}, nil
		}

		precondition(z, res)
		rhoNext := floats.Dot(res, z)
		beta := rhoNext / rho
		rho = rhoNext
		// p = z + beta·p
		floats.Scale(beta, p)
		floats.Add(p, z)
	}
	return Result{X: x, Status: maxIter, Iterations: maxIter, Residual: rnrm}, nil
}
