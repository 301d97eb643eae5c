package rpm

import (
	"context"
	"fmt"

	"gonum.org/v1/gonum/mat"
)

// Result is the outcome of a successful Estimate call.
type Result struct {
	// M is the K x N soft correspondence between the source and target
	// sets. Row and column sums are at most one; missing mass is outlier
	// mass that escaped into the slack lines during estimation.
	M *mat.Dense

	// Params is the fitted thin-plate spline, anchored on the
	// preprocessed source set. Apply it in the unit-normalized frame and
	// map back through the inverse of Preprocess.
	Params *TPSParams

	// Preprocess is the unit-square normalization that was applied to
	// both sets before estimation.
	Preprocess AffineMatrix
}

// Estimate computes the soft correspondence and the thin-plate spline warp
// registering the source set x onto the target set y. Both are (count, 2)
// matrices; the inputs are not modified. Pinned pairs force entries of the
// correspondence to one.
//
// The deterministic-annealing loop alternates correspondence and transform
// estimation while cooling the temperature geometrically. Cancellation is
// cooperative: the context is checked between annealing steps, and a
// canceled call returns the context error with no partial result.
func Estimate(ctx context.Context, x, y *mat.Dense, pinned []PinnedPair, cfg Config) (*Result, error) {
	cfg = cfg.withDefaults()
	if cfg.AnnealingRatio <= 0 || cfg.AnnealingRatio >= 1 {
		return nil, fmt.Errorf("%w: annealing ratio %v outside (0, 1)", ErrInvalidInput, cfg.AnnealingRatio)
	}
	if err := checkPointSet(x); err != nil {
		return nil, fmt.Errorf("source: %w", err)
	}
	if err := checkPointSet(y); err != nil {
		return nil, fmt.Errorf("target: %w", err)
	}
	k, _ := x.Dims()
	n, _ := y.Dims()
	if k < Dim+2 || n < Dim+2 {
		return nil, fmt.Errorf("%w: need at least %d points per set, got %d and %d", ErrInvalidInput, Dim+2, k, n)
	}

	xn := mat.DenseCopyOf(x)
	yn := mat.DenseCopyOf(y)
	pre, err := Preprocess(xn, yn)
	if err != nil {
		return nil, err
	}

	xh := Homogenize(xn)
	yh := Homogenize(yn)

	tStart := cfg.TStart
	if tStart <= 0 {
		tStart = averageSquaredDistance(xh, yh, cfg.Workers)
	}
	tEnd := cfg.TEndRatio * tStart
	lambda := cfg.LambdaStart
	if lambda <= 0 {
		lambda = tStart
	}

	params, err := NewTPSParams(xn, cfg.Workers)
	if err != nil {
		return nil, err
	}

	// Trivial start; the first correspondence step overwrites it.
	m := mat.NewDense(k, n, nil)
	for i := 0; i < k && i < n; i++ {
		m.Set(i, i, 1)
	}

	for tCur := tStart; tCur >= tEnd; tCur *= cfg.AnnealingRatio {
		if err := ctx.Err(); err != nil {
			return nil, err
		}

		for iter := 0; iter < cfg.InnerIters; iter++ {
			m, err = estimateCorrespondence(xh, yh, params, pinned, tCur, cfg)
			if err != nil {
				return nil, fmt.Errorf("T=%.3g: %w", tCur, err)
			}
			if err := estimateTransform(yh, m, lambda, cfg, params); err != nil {
				return nil, fmt.Errorf("T=%.3g: %w", tCur, err)
			}
		}

		lambda *= cfg.AnnealingRatio
	}

	return &Result{M: m, Params: params, Preprocess: pre}, nil
}

// averageSquaredDistance is the mean squared distance over all source/target
// pairs; the annealing schedule is derived from it so the starting
// temperature matches the data scale.
func averageSquaredDistance(xh, yh *mat.Dense, workers int) float64 {
	k, _ := xh.Dims()
	n, _ := yh.Dims()

	sums := make([]float64, k)
	parallelRows(workers, k, func(start, end int) {
		for r := start; r < end; r++ {
			xx, xy := xh.At(r, 0), xh.At(r, 1)
			s := 0.0
			for c := 0; c < n; c++ {
				dx := yh.At(c, 0) - xx
				dy := yh.At(c, 1) - xy
				s += dx*dx + dy*dy
			}
			sums[r] = s
		}
	})

	total := 0.0
	for _, s := range sums {
		total += s
	}
	return total / float64(k*n)
}

// WarpSource applies the fitted warp to the original source set and maps the
// result back to input coordinates.
func (r *Result) WarpSource() *mat.Dense {
	warped := r.Params.Transform(true)
	inv := InvertMatrix(r.Preprocess)
	applyAffine(warped, inv)
	return warped
}

// WarpPoints warps arbitrary points given in input coordinates.
func (r *Result) WarpPoints(pts *mat.Dense) (*mat.Dense, error) {
	local := mat.DenseCopyOf(pts)
	applyAffine(local, r.Preprocess)
	warped, err := r.Params.TransformPoints(local, true)
	if err != nil {
		return nil, err
	}
	applyAffine(warped, InvertMatrix(r.Preprocess))
	return warped, nil
}
