package rpm

import (
	"errors"
	"testing"

	"gonum.org/v1/gonum/mat"
)

// cornerSetup builds preprocessed homogeneous corner sets and fresh params
// for correspondence tests.
func cornerSetup(t *testing.T) (xh, yh *mat.Dense, params *TPSParams) {
	t.Helper()
	x := unitCorners()
	y := unitCorners()
	if _, err := Preprocess(x, y); err != nil {
		t.Fatalf("Preprocess() error = %v", err)
	}
	params, err := NewTPSParams(x, 1)
	if err != nil {
		t.Fatalf("NewTPSParams() error = %v", err)
	}
	return Homogenize(x), Homogenize(y), params
}

func TestEstimateCorrespondenceIdentity(t *testing.T) {
	xh, yh, params := cornerSetup(t)
	cfg := DefaultConfig()

	// Low temperature sharpens the assignment onto the zero-distance pairs.
	m, err := estimateCorrespondence(xh, yh, params, nil, 1e-3, cfg)
	if err != nil {
		t.Fatalf("estimateCorrespondence() error = %v", err)
	}

	k, n := m.Dims()
	if k != 4 || n != 4 {
		t.Fatalf("M dims = %dx%d, want 4x4", k, n)
	}
	for i := 0; i < 4; i++ {
		if m.At(i, i) < 0.5 {
			t.Errorf("M[%d,%d] = %v, want > 0.5", i, i, m.At(i, i))
		}
	}
}

func TestEstimateCorrespondencePins(t *testing.T) {
	xh, yh, params := cornerSetup(t)
	cfg := DefaultConfig()

	// Pin point 0 to target 3, against the distance evidence.
	pins := []PinnedPair{{Source: 0, Target: 3}}
	m, err := estimateCorrespondence(xh, yh, params, pins, 0.05, cfg)
	if err != nil {
		t.Fatalf("estimateCorrespondence() error = %v", err)
	}

	if got := m.At(0, 3); got != 1 {
		t.Errorf("pinned entry M[0,3] = %v, want exactly 1", got)
	}
	for c := 0; c < 4; c++ {
		if c != 3 && m.At(0, c) != 0 {
			t.Errorf("pinned row entry M[0,%d] = %v, want 0", c, m.At(0, c))
		}
	}
	for r := 0; r < 4; r++ {
		if r != 0 && m.At(r, 3) != 0 {
			t.Errorf("pinned column entry M[%d,3] = %v, want 0", r, m.At(r, 3))
		}
	}
}

func TestEstimateCorrespondenceIgnoresBadPins(t *testing.T) {
	xh, yh, params := cornerSetup(t)
	cfg := DefaultConfig()

	pins := []PinnedPair{
		{Source: -1, Target: 2},
		{Source: 0, Target: 99},
		{Source: 42, Target: 42},
	}
	m, err := estimateCorrespondence(xh, yh, params, pins, 1e-3, cfg)
	if err != nil {
		t.Fatalf("estimateCorrespondence() error = %v", err)
	}

	// Out-of-range pins are skipped; the identity assignment survives.
	for i := 0; i < 4; i++ {
		if m.At(i, i) < 0.5 {
			t.Errorf("M[%d,%d] = %v, want > 0.5", i, i, m.At(i, i))
		}
	}
}

func TestEstimateCorrespondenceOverflowGuard(t *testing.T) {
	xh, yh, params := cornerSetup(t)
	cfg := DefaultConfig()

	// A temperature this small pushes the matched-pair exponent far past
	// float64 range; the guard must keep every entry finite.
	m, err := estimateCorrespondence(xh, yh, params, nil, 1e-9, cfg)
	if err != nil {
		t.Fatalf("estimateCorrespondence() error = %v", err)
	}

	k, n := m.Dims()
	for r := 0; r < k; r++ {
		for c := 0; c < n; c++ {
			v := m.At(r, c)
			if v < 0 || v > 1 || v != v {
				t.Fatalf("M[%d,%d] = %v, want finite in [0,1]", r, c, v)
			}
		}
	}
	for i := 0; i < 4; i++ {
		if m.At(i, i) < 0.5 {
			t.Errorf("M[%d,%d] = %v, want > 0.5", i, i, m.At(i, i))
		}
	}
}

func TestEstimateCorrespondenceCollapse(t *testing.T) {
	xh, yh, params := cornerSetup(t)

	cfg := DefaultConfig()
	// A large negative alpha drives every affinity to zero at low
	// temperature: all mass underflows and no pin recovers it.
	cfg.Alpha = -100
	_, err := estimateCorrespondence(xh, yh, params, nil, 1e-3, cfg)
	if !errors.Is(err, ErrNumericInstability) {
		t.Errorf("estimateCorrespondence() error = %v, want ErrNumericInstability", err)
	}
}

func TestEstimateCorrespondenceCollapseRecoveredByPin(t *testing.T) {
	xh, yh, params := cornerSetup(t)

	cfg := DefaultConfig()
	cfg.Alpha = -100
	pins := []PinnedPair{{0, 0}, {1, 1}, {2, 2}, {3, 3}}
	m, err := estimateCorrespondence(xh, yh, params, pins, 1e-3, cfg)
	if err != nil {
		t.Fatalf("estimateCorrespondence() with full pinning error = %v", err)
	}
	for i := 0; i < 4; i++ {
		if m.At(i, i) != 1 {
			t.Errorf("M[%d,%d] = %v, want 1", i, i, m.At(i, i))
		}
	}
}
