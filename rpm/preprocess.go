package rpm

import (
	"fmt"
	"math"

	"gonum.org/v1/gonum/mat"
)

// Preprocess translates and uniformly scales x and y in place so their joint
// bounding box fits the unit square. It returns the transform that was
// applied; callers invert it with InvertMatrix to map results back to input
// coordinates.
func Preprocess(x, y *mat.Dense) (AffineMatrix, error) {
	if err := checkPointSet(x); err != nil {
		return Identity(), fmt.Errorf("source: %w", err)
	}
	if err := checkPointSet(y); err != nil {
		return Identity(), fmt.Errorf("target: %w", err)
	}

	minX := math.Min(colMin(x, 0), colMin(y, 0))
	maxX := math.Max(colMax(x, 0), colMax(y, 0))
	minY := math.Min(colMin(x, 1), colMin(y, 1))
	maxY := math.Max(colMax(x, 1), colMax(y, 1))

	maxLen := math.Max(maxX-minX, maxY-minY)
	if maxLen <= 0 {
		return Identity(), fmt.Errorf("%w: all points coincide", ErrInvalidInput)
	}

	transform := MultiplyMatrices(Scale(1/maxLen, 1/maxLen), Translation(-minX, -minY))
	applyAffine(x, transform)
	applyAffine(y, transform)

	return transform, nil
}

// checkPointSet verifies a (n, 2) point matrix.
func checkPointSet(m *mat.Dense) error {
	rows, cols := m.Dims()
	if cols != Dim {
		return fmt.Errorf("%w: want %d columns, got %d", ErrInvalidInput, Dim, cols)
	}
	if rows == 0 {
		return fmt.Errorf("%w: empty point set", ErrInvalidInput)
	}
	return nil
}

// applyAffine transforms every row of a (n, 2) matrix in place.
func applyAffine(m *mat.Dense, t AffineMatrix) {
	rows, _ := m.Dims()
	for i := 0; i < rows; i++ {
		p := TransformPoint(Point{X: m.At(i, 0), Y: m.At(i, 1)}, t)
		m.Set(i, 0, p.X)
		m.Set(i, 1, p.Y)
	}
}

func colMin(m *mat.Dense, j int) float64 {
	rows, _ := m.Dims()
	min := m.At(0, j)
	for i := 1; i < rows; i++ {
		if v := m.At(i, j); v < min {
			min = v
		}
	}
	return min
}

func colMax(m *mat.Dense, j int) float64 {
	rows, _ := m.Dims()
	max := m.At(0, j)
	for i := 1; i < rows; i++ {
		if v := m.At(i, j); v > max {
			max = v
		}
	}
	return max
}

// Homogenize appends a unit third coordinate: (n, 2) -> (n, 3).
func Homogenize(m *mat.Dense) *mat.Dense {
	rows, cols := m.Dims()
	if cols == Dim+1 {
		return mat.DenseCopyOf(m)
	}
	h := mat.NewDense(rows, Dim+1, nil)
	for i := 0; i < rows; i++ {
		h.Set(i, 0, m.At(i, 0))
		h.Set(i, 1, m.At(i, 1))
		h.Set(i, 2, 1)
	}
	return h
}

// HNormalize divides each row by its third coordinate and strips it:
// (n, 3) -> (n, 2).
func HNormalize(m *mat.Dense) *mat.Dense {
	rows, cols := m.Dims()
	if cols == Dim {
		return mat.DenseCopyOf(m)
	}
	out := mat.NewDense(rows, Dim, nil)
	for i := 0; i < rows; i++ {
		w := m.At(i, 2)
		out.Set(i, 0, m.At(i, 0)/w)
		out.Set(i, 1, m.At(i, 1)/w)
	}
	return out
}
