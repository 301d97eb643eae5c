package rpm

import (
	"math"
	"testing"
)

func TestGenerateRandomPointsBounds(t *testing.T) {
	rng := newRNG(3)
	x := GenerateRandomPoints(rng, 50, -2, 5)

	rows, cols := x.Dims()
	if rows != 50 || cols != 2 {
		t.Fatalf("dims = %dx%d, want 50x2", rows, cols)
	}
	for i := 0; i < rows; i++ {
		for j := 0; j < cols; j++ {
			v := x.At(i, j)
			if v < -2 || v >= 5 {
				t.Errorf("point [%d,%d] = %v outside [-2, 5)", i, j, v)
			}
		}
	}
}

func TestGenerateRandomPointsDeterministic(t *testing.T) {
	a := GenerateRandomPoints(newRNG(9), 10, 0, 1)
	b := GenerateRandomPoints(newRNG(9), 10, 0, 1)
	for i := 0; i < 10; i++ {
		if a.At(i, 0) != b.At(i, 0) || a.At(i, 1) != b.At(i, 1) {
			t.Fatal("same seed produced different point sets")
		}
	}
}

func TestAddGaussianNoise(t *testing.T) {
	x := unitCorners()
	y := AddGaussianNoise(newRNG(5), x, 0, 0.01)

	if y == x {
		t.Fatal("AddGaussianNoise returned the input matrix")
	}
	rows, _ := x.Dims()
	moved := false
	for i := 0; i < rows; i++ {
		dx := math.Abs(y.At(i, 0) - x.At(i, 0))
		dy := math.Abs(y.At(i, 1) - x.At(i, 1))
		if dx > 0 || dy > 0 {
			moved = true
		}
		if dx > 0.1 || dy > 0.1 {
			t.Errorf("point %d moved too far for sigma 0.01: (%v, %v)", i, dx, dy)
		}
	}
	if !moved {
		t.Error("no point moved")
	}
}

func TestAddOutliersStaysInBounds(t *testing.T) {
	x := unitCorners()
	y := AddOutliers(newRNG(6), x, 3)

	rows, _ := y.Dims()
	if rows != 7 {
		t.Fatalf("rows = %d, want 7", rows)
	}
	// Originals preserved.
	for i := 0; i < 4; i++ {
		if y.At(i, 0) != x.At(i, 0) || y.At(i, 1) != x.At(i, 1) {
			t.Errorf("original point %d changed", i)
		}
	}
	// Outliers drawn inside the bounding box.
	for i := 4; i < 7; i++ {
		for j := 0; j < 2; j++ {
			if v := y.At(i, j); v < 0 || v > 1 {
				t.Errorf("outlier [%d,%d] = %v outside bounding box", i, j, v)
			}
		}
	}
}

func TestSubsample(t *testing.T) {
	x := SegmentPoints(100, Point{X: 0, Y: 0}, Point{X: 1, Y: 0})

	sub := Subsample(x, 10)
	rows, _ := sub.Dims()
	if rows != 10 {
		t.Fatalf("rows = %d, want 10", rows)
	}
	// First and last points survive.
	if sub.At(0, 0) != 0 || sub.At(9, 0) != 1 {
		t.Errorf("endpoints = %v, %v, want 0 and 1", sub.At(0, 0), sub.At(9, 0))
	}

	// No-op when already small enough.
	same := Subsample(x, 200)
	if r, _ := same.Dims(); r != 100 {
		t.Errorf("rows = %d, want 100", r)
	}
}

func TestSegmentAndSineSamplers(t *testing.T) {
	seg := SegmentPoints(5, Point{X: 0, Y: 1}, Point{X: 2, Y: 1})
	if seg.At(2, 0) != 1 || seg.At(2, 1) != 1 {
		t.Errorf("segment midpoint = (%v, %v), want (1, 1)", seg.At(2, 0), seg.At(2, 1))
	}

	sine := SineCurvePoints(9, 0, 1, 0.5, 0.1, 1)
	// Endpoints and midpoint sit on the base line for one full period.
	if math.Abs(sine.At(0, 1)-0.5) > 1e-12 {
		t.Errorf("sine start y = %v, want 0.5", sine.At(0, 1))
	}
	if math.Abs(sine.At(8, 1)-0.5) > 1e-9 {
		t.Errorf("sine end y = %v, want 0.5", sine.At(8, 1))
	}
	// Quarter period reaches the full amplitude.
	if math.Abs(sine.At(2, 1)-0.6) > 1e-9 {
		t.Errorf("sine quarter y = %v, want 0.6", sine.At(2, 1))
	}
}
