package rpm

import (
	"fmt"
	"math"

	"gonum.org/v1/gonum/mat"
)

// expCeiling bounds the largest exponent handed to math.Exp. Exponents above
// ~709 overflow float64; when the affinity build would cross that, the whole
// exponent field is shifted down uniformly. Row and column normalization is
// invariant under a uniform scale of the non-slack block only up to the
// fixed slack entries, so the shift is applied only when overflow is
// otherwise certain.
const expCeiling = 700.0

// estimateCorrespondence builds the temperature-T soft correspondence
// between the warped source set and the target set.
//
// xh and yh are the preprocessed homogeneous sets (K x 3, N x 3). The
// returned matrix is the trimmed K x N non-slack block after SoftAssign,
// with pinned pairs re-asserted to exactly one.
func estimateCorrespondence(xh, yh *mat.Dense, params *TPSParams, pinned []PinnedPair, t float64, cfg Config) (*mat.Dense, error) {
	k, _ := xh.Dims()
	n, _ := yh.Dims()

	xt := params.Transform(false)

	stride := n + 1
	a := make([]float64, (k+1)*stride)

	// Exponents first, so a single overflow guard can shift the whole field.
	maxExp := make([]float64, k)
	parallelRows(cfg.Workers, k, func(start, end int) {
		for r := start; r < end; r++ {
			// Full homogeneous distance: the third component is normally
			// 1 on both sides, but a warped row that degenerated keeps a
			// unit offset here and stays an outlier.
			xx, xy, xz := xt.At(r, 0), xt.At(r, 1), xt.At(r, 2)
			rowMax := math.Inf(-1)
			for c := 0; c < n; c++ {
				dx := yh.At(c, 0) - xx
				dy := yh.At(c, 1) - xy
				dz := yh.At(c, 2) - xz
				e := (cfg.Alpha - (dx*dx + dy*dy + dz*dz)) / t
				a[r*stride+c] = e
				if e > rowMax {
					rowMax = e
				}
			}
			maxExp[r] = rowMax
		}
	})

	shift := 0.0
	for _, e := range maxExp {
		if e-shift > expCeiling {
			shift = e - expCeiling
		}
	}

	parallelRows(cfg.Workers, k, func(start, end int) {
		for r := start; r < end; r++ {
			for c := 0; c < n; c++ {
				a[r*stride+c] = math.Exp(a[r*stride+c] - shift)
			}
		}
	})

	pins := validPins(pinned, k, n)
	applyPins(a, stride, k, n, pins)

	// Slack row and column.
	for c := 0; c < n; c++ {
		a[k*stride+c] = 1 / float64(n+1)
	}
	for r := 0; r < k; r++ {
		a[r*stride+n] = 1 / float64(k+1)
	}
	a[k*stride+n] = 1 / float64(max(k, n)+1)

	if err := checkCollapse(a, stride, k, n); err != nil {
		return nil, err
	}

	softAssign(a, k, n, cfg.SinkhornIters, cfg.Epsilon1, cfg.Workers)

	m := mat.NewDense(k, n, nil)
	for r := 0; r < k; r++ {
		for c := 0; c < n; c++ {
			m.Set(r, c, a[r*stride+c])
		}
	}

	// Re-assert pins so forced matches hold exactly after normalization.
	for _, p := range pins {
		for c := 0; c < n; c++ {
			m.Set(p.Source, c, 0)
		}
		for r := 0; r < k; r++ {
			m.Set(r, p.Target, 0)
		}
		m.Set(p.Source, p.Target, 1)
	}

	return m, nil
}

// validPins drops pairs with out-of-range indices. Lenient by design: bad
// pins are caller hints, not structural input.
func validPins(pinned []PinnedPair, k, n int) []PinnedPair {
	var pins []PinnedPair
	for _, p := range pinned {
		if p.Source < 0 || p.Source >= k || p.Target < 0 || p.Target >= n {
			continue
		}
		pins = append(pins, p)
	}
	return pins
}

// applyPins zeroes the non-slack row and column of each pinned pair and
// plants the pinned entry, overriding the Gibbs weights.
func applyPins(a []float64, stride, k, n int, pins []PinnedPair) {
	for _, p := range pins {
		for c := 0; c < n; c++ {
			a[p.Source*stride+c] = 0
		}
		for r := 0; r < k; r++ {
			a[r*stride+p.Target] = 0
		}
		a[p.Source*stride+p.Target] = 1
	}
}

// checkCollapse fails when the whole non-slack block carries no mass before
// normalization. Individual all-zero rows or columns are legitimate: they
// are outliers whose mass lives in the slack lines. An empty block means
// every Gibbs weight underflowed and no pin recovered any of them; there is
// no assignment left to estimate.
func checkCollapse(a []float64, stride, k, n int) error {
	total := 0.0
	for r := 0; r < k; r++ {
		for c := 0; c < n; c++ {
			total += a[r*stride+c]
		}
	}
	if total == 0 {
		return fmt.Errorf("%w: assignment matrix collapsed to zero", ErrNumericInstability)
	}
	return nil
}
