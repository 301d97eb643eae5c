package rpm

import (
	"fmt"
	"math"

	"gonum.org/v1/gonum/mat"
)

// kernelEpsilon is the radius below which the thin-plate kernel is clamped
// to zero. r^2*log(r) -> 0 as r -> 0, but the naive expression produces NaN
// at r = 0.
const kernelEpsilon = 1e-5

// tpsKernel is the 2D thin-plate radial basis r^2 * log(r) expressed on the
// squared distance.
func tpsKernel(d2 float64) float64 {
	if d2 <= kernelEpsilon*kernelEpsilon {
		return 0
	}
	return d2 * math.Log(math.Sqrt(d2))
}

// TPSParams holds a thin-plate spline warp anchored on a reference source
// set: f(p) = p~*d + phi(p)*w, with p~ the homogeneous coordinates of p.
//
// The kernel matrix and the QR factors of the reference set are fixed at
// construction; only d and w evolve during estimation. The affine part d is
// initialized to the identity and the non-affine part w to zero, so a fresh
// TPSParams is the identity warp.
type TPSParams struct {
	x   *mat.Dense // reference set, K x 3 homogeneous
	phi *mat.Dense // thin-plate kernel, K x K
	q   *mat.Dense // full Q of the QR of x, K x K
	r   *mat.Dense // R of the QR of x, K x 3

	d *mat.Dense // affine part, 3 x 3
	w *mat.Dense // non-affine part, K x 3

	workers int
}

// NewTPSParams builds the spline state for a (K, 2) reference set. The
// kernel rows are built by a fixed worker pool.
func NewTPSParams(x2d *mat.Dense, workers int) (*TPSParams, error) {
	if err := checkPointSet(x2d); err != nil {
		return nil, err
	}
	k, _ := x2d.Dims()
	if k < Dim+2 {
		return nil, fmt.Errorf("%w: need at least %d source points, got %d", ErrInvalidInput, Dim+2, k)
	}
	if k > 1<<24 {
		return nil, fmt.Errorf("%w: %d source points", ErrResourceExhaustion, k)
	}

	x := Homogenize(x2d)

	phi := mat.NewDense(k, k, nil)
	parallelRows(workers, k, func(start, end int) {
		for a := start; a < end; a++ {
			ax, ay := x.At(a, 0), x.At(a, 1)
			for b := 0; b < k; b++ {
				if b == a {
					continue
				}
				dx := x.At(b, 0) - ax
				dy := x.At(b, 1) - ay
				phi.Set(a, b, tpsKernel(dx*dx+dy*dy))
			}
		}
	})

	var qr mat.QR
	qr.Factorize(x)
	var q, r mat.Dense
	qr.QTo(&q)
	qr.RTo(&r)

	d := mat.NewDense(Dim+1, Dim+1, nil)
	for i := 0; i <= Dim; i++ {
		d.Set(i, i, 1)
	}

	return &TPSParams{
		x:       x,
		phi:     phi,
		q:       &q,
		r:       &r,
		d:       d,
		w:       mat.NewDense(k, Dim+1, nil),
		workers: workers,
	}, nil
}

// Transform applies the warp to the reference set and returns the result,
// K x 3 homogeneous or K x 2 when hnormalize is set. The receiver is not
// modified.
func (p *TPSParams) Transform(hnormalize bool) *mat.Dense {
	var xt mat.Dense
	xt.Mul(p.x, p.d)
	var bend mat.Dense
	bend.Mul(p.phi, p.w)
	xt.Add(&xt, &bend)
	if hnormalize {
		return HNormalize(&xt)
	}
	return &xt
}

// TransformPoints applies the warp to an arbitrary (n, 2) point batch. The
// cross-kernel between the batch and the reference set is built by the same
// worker pool as the constructor.
func (p *TPSParams) TransformPoints(pts *mat.Dense, hnormalize bool) (*mat.Dense, error) {
	if err := checkPointSet(pts); err != nil {
		return nil, err
	}
	n, _ := pts.Dims()
	k, _ := p.x.Dims()

	ph := Homogenize(pts)

	phiPX := mat.NewDense(n, k, nil)
	parallelRows(p.workers, n, func(start, end int) {
		for i := start; i < end; i++ {
			px, py := ph.At(i, 0), ph.At(i, 1)
			for j := 0; j < k; j++ {
				dx := p.x.At(j, 0) - px
				dy := p.x.At(j, 1) - py
				phiPX.Set(i, j, tpsKernel(dx*dx+dy*dy))
			}
		}
	})

	var pt mat.Dense
	pt.Mul(ph, p.d)
	var bend mat.Dense
	bend.Mul(phiPX, p.w)
	pt.Add(&pt, &bend)
	if hnormalize {
		return HNormalize(&pt), nil
	}
	return &pt, nil
}

// TransformPoint applies the warp to a single point.
func (p *TPSParams) TransformPoint(pt Point) Point {
	k, _ := p.x.Dims()

	out := [Dim + 1]float64{}
	ph := [Dim + 1]float64{pt.X, pt.Y, 1}
	for c := 0; c <= Dim; c++ {
		for r := 0; r <= Dim; r++ {
			out[c] += ph[r] * p.d.At(r, c)
		}
	}
	for j := 0; j < k; j++ {
		dx := p.x.At(j, 0) - pt.X
		dy := p.x.At(j, 1) - pt.Y
		kv := tpsKernel(dx*dx + dy*dy)
		if kv == 0 {
			continue
		}
		for c := 0; c <= Dim; c++ {
			out[c] += kv * p.w.At(j, c)
		}
	}
	return Point{X: out[0] / out[2], Y: out[1] / out[2]}
}

// Reference returns the homogeneous reference set the spline is anchored on.
// Callers must not modify the returned matrix.
func (p *TPSParams) Reference() *mat.Dense { return p.x }

// Phi returns the reference kernel matrix. Callers must not modify it.
func (p *TPSParams) Phi() *mat.Dense { return p.phi }

// Affine returns the affine part d. Callers must not modify it.
func (p *TPSParams) Affine() *mat.Dense { return p.d }

// Warp returns the non-affine part w. Callers must not modify it.
func (p *TPSParams) Warp() *mat.Dense { return p.w }
