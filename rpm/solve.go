package rpm

import (
	"fmt"
	"math"

	"gonum.org/v1/gonum/mat"
)

// estimateTransform refits the spline parameters of params to the
// correspondence-weighted target. m is the K x N correspondence, yh the
// homogeneous target set and lambda the current bending-energy weight.
//
// The non-affine part is solved in the Q2 null-space basis of the reference
// set, which enforces X^T*w = 0 by construction; the affine part is then
// solved against the residual in the R1 basis. Both solves go through the
// normal equations with a Cholesky factorization, which is positive
// definite for lambda > 0.
func estimateTransform(yh, m *mat.Dense, lambda float64, cfg Config, params *TPSParams) error {
	k, _ := params.x.Dims()
	n, _ := yh.Dims()
	if mr, mc := m.Dims(); mr != k || mc != n {
		return fmt.Errorf("%w: correspondence is %dx%d, want %dx%d", ErrInvalidInput, mr, mc, k, n)
	}
	dim := Dim + 1

	yhat := applyCorrespondence(yh, m, cfg)

	q1 := params.q.Slice(0, k, 0, dim)
	q2 := params.q.Slice(0, k, dim, k)
	r1 := params.r.Slice(0, dim, 0, dim)

	// Non-affine part: (L^T L) gamma = L^T Q2^T yhat with
	// L = Q2^T phi Q2 + K*lambda*I.
	var lmat mat.Dense
	{
		var t1 mat.Dense
		t1.Mul(q2.T(), params.phi)
		lmat.Mul(&t1, q2)
	}
	reg := float64(k) * lambda
	for i := 0; i < k-dim; i++ {
		lmat.Set(i, i, lmat.At(i, i)+reg)
	}

	var b mat.Dense
	b.Mul(q2.T(), yhat)

	gamma, err := solveNormal(&lmat, &b)
	if err != nil {
		return fmt.Errorf("non-affine solve: %w", err)
	}
	params.w.Mul(q2, gamma)

	// Affine part against the residual.
	var resid mat.Dense
	resid.Mul(params.phi, params.w)
	resid.Sub(yhat, &resid)
	var b2 mat.Dense
	b2.Mul(q1.T(), &resid)

	var l2 mat.Dense
	rhs := &b2
	if cfg.AffineReg {
		lambdaD := 0.01 * float64(k) * lambda
		regI := mat.NewDense(dim, dim, nil)
		for i := 0; i < dim; i++ {
			regI.Set(i, i, lambdaD)
		}
		l2.Stack(r1, regI)
		var stacked mat.Dense
		stacked.Stack(&b2, regI)
		rhs = &stacked
	} else {
		l2.CloneFrom(r1)
	}

	d, err := solveNormal(&l2, rhs)
	if err != nil {
		return fmt.Errorf("affine solve: %w", err)
	}
	params.d.Copy(d)

	return nil
}

// applyCorrespondence maps the target through the correspondence: M*Y.
// Under BothSideOutlier each row is additionally normalized by its
// correspondence mass so source outliers do not shrink toward the origin.
func applyCorrespondence(yh, m *mat.Dense, cfg Config) *mat.Dense {
	var yhat mat.Dense
	yhat.Mul(m, yh)
	if !cfg.BothSideOutlier {
		return &yhat
	}

	k, cols := yhat.Dims()
	_, n := m.Dims()
	for r := 0; r < k; r++ {
		sum := 0.0
		for c := 0; c < n; c++ {
			sum += m.At(r, c)
		}
		inv := 1 / math.Max(sum, cfg.Epsilon1)
		for c := 0; c < cols; c++ {
			yhat.Set(r, c, yhat.At(r, c)*inv)
		}
	}
	return &yhat
}

// solveNormal solves the least-squares system L*x = b through the normal
// equations (L^T L) x = L^T b with a Cholesky factorization.
func solveNormal(l, b mat.Matrix) (*mat.Dense, error) {
	var ata mat.SymDense
	ata.SymOuterK(1, l.T())

	var chol mat.Cholesky
	if !chol.Factorize(&ata) {
		return nil, ErrDecomposition
	}

	var atb mat.Dense
	atb.Mul(l.T(), b)

	var x mat.Dense
	if err := chol.SolveTo(&x, &atb); err != nil {
		return nil, fmt.Errorf("%w: %v", ErrDecomposition, err)
	}
	return &x, nil
}
