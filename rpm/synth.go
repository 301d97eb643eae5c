package rpm

import (
	"math"
	"math/rand"

	"gonum.org/v1/gonum/mat"
)

// Synthetic point-set generation for demos and tests. Every generator takes
// an explicit *rand.Rand so runs are reproducible (pass nil for a fixed
// default seed).

// GenerateRandomPoints returns n points drawn uniformly from the square
// [min, max) x [min, max).
func GenerateRandomPoints(rng *rand.Rand, n int, min, max float64) *mat.Dense {
	if rng == nil {
		rng = newRNG(1)
	}
	x := mat.NewDense(n, Dim, nil)
	for i := 0; i < n; i++ {
		x.Set(i, 0, min+rng.Float64()*(max-min))
		x.Set(i, 1, min+rng.Float64()*(max-min))
	}
	return x
}

// AddGaussianNoise returns a copy of x with N(mu, sigma) jitter added to
// every coordinate.
func AddGaussianNoise(rng *rand.Rand, x *mat.Dense, mu, sigma float64) *mat.Dense {
	if rng == nil {
		rng = newRNG(1)
	}
	rows, cols := x.Dims()
	y := mat.DenseCopyOf(x)
	for i := 0; i < rows; i++ {
		for j := 0; j < cols; j++ {
			y.Set(i, j, y.At(i, j)+mu+rng.NormFloat64()*sigma)
		}
	}
	return y
}

// AddOutliers returns x extended by num points drawn uniformly from the
// bounding box of x.
func AddOutliers(rng *rand.Rand, x *mat.Dense, num int) *mat.Dense {
	if rng == nil {
		rng = newRNG(1)
	}
	rows, _ := x.Dims()
	minX, maxX := colMin(x, 0), colMax(x, 0)
	minY, maxY := colMin(x, 1), colMax(x, 1)

	out := mat.NewDense(rows+num, Dim, nil)
	out.Slice(0, rows, 0, Dim).(*mat.Dense).Copy(x)
	for i := 0; i < num; i++ {
		out.Set(rows+i, 0, minX+rng.Float64()*(maxX-minX))
		out.Set(rows+i, 1, minY+rng.Float64()*(maxY-minY))
	}
	return out
}

// Subsample keeps at most n points of x, taken at a uniform stride.
func Subsample(x *mat.Dense, n int) *mat.Dense {
	rows, _ := x.Dims()
	if rows <= n {
		return mat.DenseCopyOf(x)
	}
	out := mat.NewDense(n, Dim, nil)
	step := float64(rows-1) / float64(n-1)
	for i := 0; i < n; i++ {
		idx := int(float64(i) * step)
		out.Set(i, 0, x.At(idx, 0))
		out.Set(i, 1, x.At(idx, 1))
	}
	return out
}

// SegmentPoints samples n points evenly along the segment from a to b.
func SegmentPoints(n int, a, b Point) *mat.Dense {
	x := mat.NewDense(n, Dim, nil)
	for i := 0; i < n; i++ {
		t := float64(i) / float64(n-1)
		x.Set(i, 0, a.X+t*(b.X-a.X))
		x.Set(i, 1, a.Y+t*(b.Y-a.Y))
	}
	return x
}

// SineCurvePoints samples n points along y = base + amplitude*sin over
// [x0, x1] with the given number of periods.
func SineCurvePoints(n int, x0, x1, base, amplitude, periods float64) *mat.Dense {
	x := mat.NewDense(n, Dim, nil)
	for i := 0; i < n; i++ {
		t := float64(i) / float64(n-1)
		px := x0 + t*(x1-x0)
		x.Set(i, 0, px)
		x.Set(i, 1, base+amplitude*math.Sin(2*math.Pi*periods*t))
	}
	return x
}

// WarpAffineSet returns a copy of x with the affine transform applied.
func WarpAffineSet(x *mat.Dense, t AffineMatrix) *mat.Dense {
	y := mat.DenseCopyOf(x)
	applyAffine(y, t)
	return y
}
