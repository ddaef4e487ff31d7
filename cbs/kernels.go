package cbs

import (
	"github.com/notargets/gocbs/assembler"
	"github.com/notargets/gocbs/element"
	"github.com/notargets/gocbs/mesh"
	"gonum.org/v1/gonum/floats"
	"gonum.org/v1/gonum/mat"
	"sync"
)

// Elemental kernels of the semi-implicit CBS scheme on linear triangles.
// Ref: Nithiarasu, Lewis & Zienkiewicz, The Finite Element Method for Fluid
// Dynamics, ch. 7.

const nodesPerTri = 3

// unitMass is the consistent mass of a unit-area triangle
var unitMass = sync.OnceValues(func() (*mat.Dense, error) {
	return element.TriangleMassMatrix(1)
})

// local gathers the current and previous nodal values of one element
type local struct {
	u1, u2, p          []float64
	u1Old, u2Old, pOld []float64
}

func gatherLocal(e *element.Element, nodes *mesh.Nodes, withPressure bool) (*local, error) {
	l := &local{}
	var err error
	if l.u1, err = nodes.Gather(fieldU1, e.NodeIDs, nil); err != nil {
		return nil, err
	}
	if l.u2, err = nodes.Gather(fieldU2, e.NodeIDs, nil); err != nil {
		return nil, err
	}
	if l.u1Old, err = nodes.GatherPrevious(fieldU1, e.NodeIDs, nil); err != nil {
		return nil, err
	}
	if l.u2Old, err = nodes.GatherPrevious(fieldU2, e.NodeIDs, nil); err != nil {
		return nil, err
	}
	if !withPressure {
		return l, nil
	}
	if l.p, err = nodes.Gather(fieldP, e.NodeIDs, nil); err != nil {
		return nil, err
	}
	if l.pOld, err = nodes.GatherPrevious(fieldP, e.NodeIDs, nil); err != nil {
		return nil, err
	}
	return l, nil
}

func mean(v []float64) float64 {
	return floats.Sum(v) / float64(len(v))
}

// MassLumpedLHS is the diagonal mass matrix scaled by the local timestep, used
// for steady runs
func MassLumpedLHS(e *element.Element, _ *mesh.Nodes, _ assembler.Parameters) (*mat.Dense, error) {
	f := e.Area / e.Dt / 3.
	return mat.NewDense(nodesPerTri, nodesPerTri, []float64{
		f, 0, 0,
		0, f, 0,
		0, 0, f,
	}), nil
}

// MassLHS is the consistent mass matrix, area/12·[2 1 1; 1 2 1; 1 1 2],
// scaled by the local timestep, used for transient runs
func MassLHS(e *element.Element, _ *mesh.Nodes, _ assembler.Parameters) (*mat.Dense, error) {
	unit, err := unitMass()
	if err != nil {
		return nil, err
	}
	var M mat.Dense
	M.Scale(e.Area/e.Dt, unit)
	return &M, nil
}

// StiffnessLHS is dt·area·(b⊗b + c⊗c)
func StiffnessLHS(e *element.Element, _ *mesh.Nodes, _ assembler.Parameters) (*mat.Dense, error) {
	f := e.Dt * e.Area
	K := mat.NewDense(nodesPerTri, nodesPerTri, nil)
	for i := 0; i < nodesPerTri; i++ {
		for j := 0; j < nodesPerTri; j++ {
			K.Set(i, j, f*(e.B[i]*e.B[j]+e.C[i]*e.C[j]))
		}
	}
	return K, nil
}

// Step1RHS is the intermediate momentum balance: convection, diffusion and the
// characteristic stabilization, one row per velocity component
func Step1RHS(e *element.Element, nodes *mesh.Nodes, params assembler.Parameters) (*mat.Dense, error) {
	Re, err := params.Get(ParamReynolds)
	if err != nil {
		return nil, err
	}
	l, err := gatherLocal(e, nodes, false)
	if err != nil {
		return nil, err
	}
	b, c, A, dt := e.B, e.C, e.Area, e.Dt
	u1Sum, u2Sum := floats.Sum(l.u1), floats.Sum(l.u2)
	u1Mean, u2Mean := mean(l.u1), mean(l.u2)

	K := mat.NewDense(nodesPerTri, nodesPerTri, nil)
	for i := 0; i < nodesPerTri; i++ {
		for j := 0; j < nodesPerTri; j++ {
			// convection, detJ/24
			ce := ((u1Sum+l.u1[i])*b[j] + (u2Sum+l.u2[i])*c[j]) * (2. * A) / 24.
			// diffusion
			kme := (A / Re) * (b[i]*b[j] + c[i]*c[j])
			// stabilization, (dt/2)·detJ/6
			kse := u1Mean*(u1Sum*b[i]*b[j]+u2Sum*b[i]*c[j]) +
				u2Mean*(u1Sum*b[j]*c[i]+u2Sum*c[i]*c[j])
			kse *= (dt / 2.) * (2. * A / 6.)
			K.Set(i, j, -(ce + kme + kse))
		}
	}

	rhs := mat.NewDense(2, nodesPerTri, nil)
	var r mat.VecDense
	r.MulVec(K, mat.NewVecDense(nodesPerTri, l.u1))
	rhs.SetRow(0, r.RawVector().Data)
	r.MulVec(K, mat.NewVecDense(nodesPerTri, l.u2))
	rhs.SetRow(1, r.RawVector().Data)
	return rhs, nil
}

// Step2RHS is the divergence of the velocity increment plus the previous
// velocity divergence; dt is already carried by the stiffness LHS
func Step2RHS(e *element.Element, nodes *mesh.Nodes, _ assembler.Parameters) (*mat.Dense, error) {
	l, err := gatherLocal(e, nodes, false)
	if err != nil {
		return nil, err
	}
	b, c, A := e.B, e.C, e.Area
	du1 := floats.Sum(l.u1) - floats.Sum(l.u1Old)
	du2 := floats.Sum(l.u2) - floats.Sum(l.u2Old)
	div := floats.Dot(b, l.u1Old) + floats.Dot(c, l.u2Old)

	rhs := mat.NewDense(1, nodesPerTri, nil)
	for i := 0; i < nodesPerTri; i++ {
		rhs.Set(0, i, (A/3.)*(b[i]*du1+c[i]*du2)-(A/3.)*div)
	}
	return rhs, nil
}

// Step3RHS is the pressure gradient correction with the previous-step
// stabilization, one row per velocity component
func Step3RHS(e *element.Element, nodes *mesh.Nodes, _ assembler.Parameters) (*mat.Dense, error) {
	l, err := gatherLocal(e, nodes, true)
	if err != nil {
		return nil, err
	}
	b, c, A, dt := e.B, e.C, e.Area, e.Dt
	grad := [2]float64{
		floats.Dot(b, l.p) * (A / 3.),
		floats.Dot(c, l.p) * (A / 3.),
	}
	gradOld := [2]float64{
		floats.Dot(b, l.pOld) * (dt / 2.) * A,
		floats.Dot(c, l.pOld) * (dt / 2.) * A,
	}
	u1Mean, u2Mean := mean(l.u1Old), mean(l.u2Old)

	rhs := mat.NewDense(2, nodesPerTri, nil)
	for k := 0; k < 2; k++ {
		for i := 0; i < nodesPerTri; i++ {
			rhs.Set(k, i, -(grad[k] + (b[i]*u1Mean+c[i]*u2Mean)*gradOld[k]))
		}
	}
	return rhs, nil
}
