package element

import (
	"errors"
	"fmt"
	"gonum.org/v1/gonum/mat"
	"math"
)

var ErrQuadrature = errors.New("quadrature rule construction failed")

// JacobiGQ returns the N+1 point Gauss rule for the weight
// (1-x)^alpha·(1+x)^beta on [-1, 1]. Nodes are the eigenvalues of the
// symmetric Jacobi matrix, weights the squared first eigenvector components
// times the weight integral (Golub-Welsch).
func JacobiGQ(alpha, beta float64, N int) (x, w []float64, err error) {
	if N < 0 {
		return nil, nil, fmt.Errorf("%w: %d points", ErrQuadrature, N+1)
	}
	if N == 0 {
		return []float64{-(alpha - beta) / (alpha + beta + 2.)}, []float64{gamma0(alpha, beta)}, nil
	}

	h1 := make([]float64, N+1)
	for i := range h1 {
		h1[i] = 2*float64(i) + alpha + beta
	}
	J := mat.NewSymDense(N+1, nil)
	fac := beta*beta - alpha*alpha
	for i := 0; i <= N; i++ {
		d := fac / (h1[i] * (h1[i] + 2.))
		if i == 0 && alpha+beta < 1e-15 {
			d = 0
		}
		J.SetSym(i, i, d)
	}
	for i := 0; i < N; i++ {
		ip1 := float64(i + 1)
		J.SetSym(i, i+1, 2.0/(h1[i]+2.0)*math.Sqrt(
			ip1*(ip1+alpha+beta)*(ip1+alpha)*(ip1+beta)/(h1[i]+1)/(h1[i]+3)))
	}

	var eig mat.EigenSym
	if ok := eig.Factorize(J, true); !ok {
		return nil, nil, fmt.Errorf("%w: Jacobi matrix eigen decomposition", ErrQuadrature)
	}
	x = eig.Values(nil)
	var V mat.Dense
	eig.VectorsTo(&V)
	g := gamma0(alpha, beta)
	w = make([]float64, N+1)
	for i := range w {
		v := V.At(0, i)
		w[i] = v * v * g
	}
	return x, w, nil
}

// gamma0 is the integral of (1-x)^alpha·(1+x)^beta over [-1, 1]
func gamma0(alpha, beta float64) float64 {
	ab1 := alpha + beta + 1.
	return math.Gamma(alpha+1.) * math.Gamma(beta+1.) * math.Pow(2, ab1) / ab1 / math.Gamma(ab1)
}

// TriangleRule is the collapsed Gauss rule on the unit triangle
// (0,0), (1,0), (0,1) with (N+1)² points, exact to degree 2N+1. Weights sum
// to the area 1/2.
func TriangleRule(N int) (xi, eta, w []float64, err error) {
	a, wa, err := JacobiGQ(0, 0, N)
	if err != nil {
		return nil, nil, nil, err
	}
	b, wb, err := JacobiGQ(1, 0, N)
	if err != nil {
		return nil, nil, nil, err
	}
	for i := range a {
		for j := range b {
			r := 0.5*(1+a[i])*(1-b[j]) - 1
			xi = append(xi, 0.5*(1+r))
			eta = append(eta, 0.5*(1+b[j]))
			// the (1-b)/2 Duffy factor is carried by the Jacobi weight
			w = append(w, wa[i]*wb[j]/8.)
		}
	}
	return xi, eta, w, nil
}

// LinearShape evaluates the three linear triangle shape functions
func LinearShape(xi, eta float64) [3]float64 {
	return [3]float64{1 - xi - eta, xi, eta}
}

// TriangleMassMatrix integrates N_i·N_j over a linear triangle of the given
// area
func TriangleMassMatrix(area float64) (*mat.Dense, error) {
	xi, eta, w, err := TriangleRule(1)
	if err != nil {
		return nil, err
	}
	M := mat.NewDense(3, 3, nil)
	for q := range w {
		N := LinearShape(xi[q], eta[q])
		for i := 0; i < 3; i++ {
			for j := 0; j < 3; j++ {
				// the unit triangle has area 1/2
				M.Set(i, j, M.At(i, j)+2*area*w[q]*N[i]*N[j])
			}
		}
	}
	return M, nil
}
