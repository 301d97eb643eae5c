package rpm

import (
	"bytes"
	"context"
	"image/png"
	"strings"
	"testing"

	"gonum.org/v1/gonum/mat"
)

func testResult(t *testing.T) (*ResultRenderer, *Result) {
	t.Helper()
	x := unitCorners()
	y := WarpAffineSet(unitCorners(), Translation(0.1, 0.05))

	result, err := Estimate(context.Background(), x, y, nil, DefaultConfig())
	if err != nil {
		t.Fatalf("Estimate() error = %v", err)
	}
	return NewResultRenderer(x, y, result), result
}

func TestRenderToPNG(t *testing.T) {
	renderer, _ := testResult(t)

	var buf bytes.Buffer
	if err := renderer.RenderToPNG(&buf); err != nil {
		t.Fatalf("RenderToPNG() error = %v", err)
	}

	img, err := png.Decode(&buf)
	if err != nil {
		t.Fatalf("output is not a decodable PNG: %v", err)
	}
	bounds := img.Bounds()
	if bounds.Dx() == 0 || bounds.Dy() == 0 {
		t.Errorf("empty image: %v", bounds)
	}
}

func TestRenderToSVG(t *testing.T) {
	renderer, _ := testResult(t)

	var buf bytes.Buffer
	if err := renderer.RenderToSVG(&buf); err != nil {
		t.Fatalf("RenderToSVG() error = %v", err)
	}

	out := buf.String()
	if !strings.Contains(out, "<svg") {
		t.Errorf("output does not look like SVG: %q", out[:min(len(out), 80)])
	}
}

func TestRenderWithoutResult(t *testing.T) {
	// A nil result renders the raw sets without a warp.
	renderer := NewResultRenderer(unitCorners(), unitCorners(), nil)

	var buf bytes.Buffer
	if err := renderer.RenderToSVG(&buf); err != nil {
		t.Fatalf("RenderToSVG() without result error = %v", err)
	}
	if buf.Len() == 0 {
		t.Error("empty SVG output")
	}
}

func TestRenderRejectsBadInput(t *testing.T) {
	renderer, _ := testResult(t)
	renderer.Source = mat.NewDense(2, 3, nil)

	var buf bytes.Buffer
	if err := renderer.RenderToSVG(&buf); err == nil {
		t.Error("RenderToSVG() with non-2D source: want error")
	}
}
