package rpm

import (
	"errors"
	"math"
	"testing"

	"gonum.org/v1/gonum/mat"
)

func unitCorners() *mat.Dense {
	return mat.NewDense(4, 2, []float64{
		0, 0,
		1, 0,
		0, 1,
		1, 1,
	})
}

func TestNewTPSParamsKernel(t *testing.T) {
	x := mat.NewDense(5, 2, []float64{
		0, 0,
		1, 0,
		0, 1,
		1, 1,
		0.3, 0.7,
	})
	params, err := NewTPSParams(x, 1)
	if err != nil {
		t.Fatalf("NewTPSParams() error = %v", err)
	}

	phi := params.Phi()
	k, _ := phi.Dims()
	for a := 0; a < k; a++ {
		if phi.At(a, a) != 0 {
			t.Errorf("phi[%d,%d] = %v, want exactly 0", a, a, phi.At(a, a))
		}
		for b := 0; b < k; b++ {
			if phi.At(a, b) != phi.At(b, a) {
				t.Errorf("phi not symmetric at (%d,%d): %v vs %v", a, b, phi.At(a, b), phi.At(b, a))
			}
		}
	}

	// Spot-check the kernel value for the unit-distance pair (0,0)-(1,0):
	// r = 1 so r^2*log(r) = 0.
	if !almostEqual(phi.At(0, 1), 0) {
		t.Errorf("phi for unit distance = %v, want 0", phi.At(0, 1))
	}
	// Pair (0,0)-(1,1): r^2 = 2, value = 2*log(sqrt(2)) = log(2).
	if diff := math.Abs(phi.At(0, 3) - math.Log(2)); diff > 1e-12 {
		t.Errorf("phi for sqrt(2) distance = %v, want log(2)", phi.At(0, 3))
	}
}

func TestNewTPSParamsTooFewPoints(t *testing.T) {
	x := mat.NewDense(3, 2, []float64{0, 0, 1, 0, 0, 1})
	if _, err := NewTPSParams(x, 0); !errors.Is(err, ErrInvalidInput) {
		t.Errorf("NewTPSParams(3 points) error = %v, want ErrInvalidInput", err)
	}
}

func TestNullSpaceSeparation(t *testing.T) {
	x := mat.NewDense(6, 2, []float64{
		0, 0,
		1, 0,
		0, 1,
		1, 1,
		0.2, 0.8,
		0.9, 0.4,
	})
	params, err := NewTPSParams(x, 0)
	if err != nil {
		t.Fatalf("NewTPSParams() error = %v", err)
	}

	k, _ := params.x.Dims()
	dim := Dim + 1

	// Q2^T * X must vanish: that is what makes w = Q2*gamma satisfy the
	// side condition X^T*w = 0.
	q2 := params.q.Slice(0, k, dim, k)
	var prod mat.Dense
	prod.Mul(q2.T(), params.x)
	if norm := mat.Norm(&prod, math.Inf(1)); norm > 1e-10 {
		t.Errorf("||Q2^T X||_inf = %v, want ~0", norm)
	}
}

func TestFreshParamsAreIdentityWarp(t *testing.T) {
	x := unitCorners()
	params, err := NewTPSParams(x, 0)
	if err != nil {
		t.Fatalf("NewTPSParams() error = %v", err)
	}

	out := params.Transform(true)
	if !mat.EqualApprox(out, x, 1e-12) {
		t.Errorf("fresh params warp reference set:\n%v", mat.Formatted(out))
	}

	pts := mat.NewDense(2, 2, []float64{0.5, 0.5, 0.1, 0.9})
	warped, err := params.TransformPoints(pts, true)
	if err != nil {
		t.Fatalf("TransformPoints() error = %v", err)
	}
	if !mat.EqualApprox(warped, pts, 1e-12) {
		t.Errorf("fresh params warp arbitrary points:\n%v", mat.Formatted(warped))
	}

	p := params.TransformPoint(Point{X: 0.25, Y: 0.75})
	if !pointsEqual(p, Point{X: 0.25, Y: 0.75}) {
		t.Errorf("TransformPoint() = %v, want unchanged", p)
	}
}

func TestTransformPointMatchesBatch(t *testing.T) {
	x := unitCorners()
	params, err := NewTPSParams(x, 0)
	if err != nil {
		t.Fatalf("NewTPSParams() error = %v", err)
	}

	// Perturb the spline away from identity.
	params.d.Set(0, 0, 1.2)
	params.d.Set(2, 1, 0.1)
	params.w.Set(0, 0, 0.05)
	params.w.Set(3, 1, -0.03)

	pts := mat.NewDense(3, 2, []float64{0.5, 0.5, 0.2, 0.1, 0.8, 0.9})
	batch, err := params.TransformPoints(pts, true)
	if err != nil {
		t.Fatalf("TransformPoints() error = %v", err)
	}

	for i := 0; i < 3; i++ {
		single := params.TransformPoint(Point{X: pts.At(i, 0), Y: pts.At(i, 1)})
		if math.Abs(single.X-batch.At(i, 0)) > 1e-12 || math.Abs(single.Y-batch.At(i, 1)) > 1e-12 {
			t.Errorf("point %d: single = %v, batch = (%v, %v)", i, single, batch.At(i, 0), batch.At(i, 1))
		}
	}
}

func TestTransformIsPure(t *testing.T) {
	x := unitCorners()
	params, err := NewTPSParams(x, 0)
	if err != nil {
		t.Fatalf("NewTPSParams() error = %v", err)
	}

	dBefore := mat.DenseCopyOf(params.d)
	wBefore := mat.DenseCopyOf(params.w)

	params.Transform(true)
	params.Transform(false)
	if _, err := params.TransformPoints(mat.NewDense(1, 2, []float64{0.3, 0.3}), true); err != nil {
		t.Fatalf("TransformPoints() error = %v", err)
	}
	params.TransformPoint(Point{X: 0.1, Y: 0.2})

	if !mat.Equal(params.d, dBefore) || !mat.Equal(params.w, wBefore) {
		t.Error("transform application mutated the spline parameters")
	}
}
