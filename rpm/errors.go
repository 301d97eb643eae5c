package rpm

import "errors"

// Error kinds surfaced by Estimate. Sub-solver failures are wrapped with
// context and short-circuit to the caller; no partial result is returned.
var (
	// ErrInvalidInput reports point sets that are not 2D, are empty, or
	// carry fewer than Dim+2 points (too few to constrain the affine part).
	ErrInvalidInput = errors.New("rpm: invalid input point set")

	// ErrNumericInstability reports an assignment matrix whose whole
	// non-slack block collapsed to zero without pin recovery. A single
	// all-zero row or column is not an error.
	ErrNumericInstability = errors.New("rpm: numeric instability")

	// ErrDecomposition reports a failed matrix factorization in the
	// spline fit.
	ErrDecomposition = errors.New("rpm: decomposition failed")

	// ErrResourceExhaustion reports working buffers whose size cannot be
	// represented or allocated.
	ErrResourceExhaustion = errors.New("rpm: working buffer too large")
)
