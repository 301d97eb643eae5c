package rpm

import (
	"fmt"
	"image"
	"image/color"
	"image/png"
	"io"
	"math"

	"github.com/tdewolff/canvas"
	"github.com/tdewolff/canvas/renderers/rasterizer"
	"github.com/tdewolff/canvas/renderers/svg"
	"golang.org/x/image/font"
	"golang.org/x/image/font/basicfont"
	"golang.org/x/image/math/fixed"
	"gonum.org/v1/gonum/mat"
)

// Plot colors. Target points are drawn large and dark, warped source points
// small and bright on top, matching the original demo output.
var (
	colorTarget = color.RGBA{R: 35, G: 105, B: 176, A: 255}
	colorSource = color.RGBA{R: 235, G: 87, B: 72, A: 255}
	colorGrid   = color.RGBA{R: 150, G: 150, B: 150, A: 255}
	colorMatch  = color.RGBA{R: 60, G: 60, B: 60, A: 255}
)

// ResultRenderer draws a registration result: the target set, the warped
// source set, the warped regular grid showing the spline deformation, and
// line segments for confident correspondences.
type ResultRenderer struct {
	Source *mat.Dense // source set in input coordinates
	Target *mat.Dense // target set in input coordinates
	Result *Result    // fitted registration; nil draws the raw sets

	Padding        float64           // canvas padding in input units; 0 = auto
	GridSpacing    float64           // warped-grid spacing in input units; 0 = auto, negative disables
	MatchThreshold float64           // draw correspondence lines above this confidence
	Resolution     canvas.Resolution // PNG output resolution
}

// NewResultRenderer creates a renderer with default settings.
func NewResultRenderer(source, target *mat.Dense, result *Result) *ResultRenderer {
	return &ResultRenderer{
		Source:         source,
		Target:         target,
		Result:         result,
		MatchThreshold: 0.5,
		Resolution:     canvas.DPI(150),
	}
}

// canvasRenderer is the interface both the svg and rasterizer backends
// implement.
type canvasRenderer interface {
	RenderPath(path *canvas.Path, style canvas.Style, m canvas.Matrix)
}

// RenderToSVG writes the plot as an SVG to the provided writer.
func (r *ResultRenderer) RenderToSVG(w io.Writer) error {
	sc, err := r.buildScene()
	if err != nil {
		return err
	}

	svgRenderer := svg.New(w, sc.width, sc.height, nil)
	r.renderToCanvas(svgRenderer, sc)
	return svgRenderer.Close()
}

// RenderToPNG writes the plot as a PNG to the provided writer, with a small
// text legend in the corner.
func (r *ResultRenderer) RenderToPNG(w io.Writer) error {
	sc, err := r.buildScene()
	if err != nil {
		return err
	}

	rast := rasterizer.New(sc.width, sc.height, r.Resolution, canvas.DefaultColorSpace)
	r.renderToCanvas(rast, sc)

	drawLabel(rast, 8, 16, colorSource, "source (warped)")
	drawLabel(rast, 8, 30, colorTarget, "target")

	return png.Encode(w, rast)
}

// scene carries the precomputed world geometry shared by both backends.
type scene struct {
	warpedSource  *mat.Dense
	gridPoints    *mat.Dense
	minX, minY    float64
	width, height float64
	padding       float64
}

func (r *ResultRenderer) buildScene() (*scene, error) {
	if err := checkPointSet(r.Source); err != nil {
		return nil, fmt.Errorf("source: %w", err)
	}
	if err := checkPointSet(r.Target); err != nil {
		return nil, fmt.Errorf("target: %w", err)
	}

	warped := r.Source
	if r.Result != nil {
		warped = r.Result.WarpSource()
	}

	minX := math.Min(colMin(warped, 0), colMin(r.Target, 0))
	maxX := math.Max(colMax(warped, 0), colMax(r.Target, 0))
	minY := math.Min(colMin(warped, 1), colMin(r.Target, 1))
	maxY := math.Max(colMax(warped, 1), colMax(r.Target, 1))

	span := math.Max(maxX-minX, maxY-minY)
	if span <= 0 {
		span = 1
	}

	padding := r.Padding
	if padding <= 0 {
		padding = span / 20
	}

	var grid *mat.Dense
	spacing := r.GridSpacing
	if spacing == 0 {
		spacing = span / 12
	}
	if spacing > 0 {
		grid = r.buildGrid(minX, minY, maxX, maxY, spacing)
		if grid != nil {
			minX = math.Min(minX, colMin(grid, 0))
			maxX = math.Max(maxX, colMax(grid, 0))
			minY = math.Min(minY, colMin(grid, 1))
			maxY = math.Max(maxY, colMax(grid, 1))
		}
	}

	return &scene{
		warpedSource: warped,
		gridPoints:   grid,
		minX:         minX,
		minY:         minY,
		width:        (maxX - minX) + 2*padding,
		height:       (maxY - minY) + 2*padding,
		padding:      padding,
	}, nil
}

// buildGrid samples a regular grid over the joint bounding box and pushes it
// through the fitted warp, visualizing the spline as a deformed lattice.
func (r *ResultRenderer) buildGrid(minX, minY, maxX, maxY, spacing float64) *mat.Dense {
	var pts []Point
	for y := minY; y <= maxY+spacing/2; y += spacing {
		for x := minX; x <= maxX+spacing/2; x += spacing {
			pts = append(pts, Point{X: x, Y: y})
		}
	}
	if len(pts) == 0 {
		return nil
	}

	grid := PointsToDense(pts)
	if r.Result == nil {
		return grid
	}
	warped, err := r.Result.WarpPoints(grid)
	if err != nil {
		return grid
	}
	return warped
}

func (r *ResultRenderer) renderToCanvas(renderer canvasRenderer, sc *scene) {
	toCanvas := func(p Point) (float64, float64) {
		return (p.X - sc.minX) + sc.padding, (p.Y - sc.minY) + sc.padding
	}

	// White background.
	bgStyle := canvas.DefaultStyle
	bgStyle.Fill = canvas.Paint{Color: canvas.White}
	renderer.RenderPath(canvas.Rectangle(sc.width, sc.height), bgStyle, canvas.Identity)

	markerRadius := sc.width / 160

	// Warped grid dots.
	if sc.gridPoints != nil {
		gridStyle := canvas.DefaultStyle
		gridStyle.Fill = canvas.Paint{Color: colorGrid}
		gridStyle.Stroke = canvas.Paint{Color: canvas.Transparent}

		rows, _ := sc.gridPoints.Dims()
		for i := 0; i < rows; i++ {
			cx, cy := toCanvas(Point{X: sc.gridPoints.At(i, 0), Y: sc.gridPoints.At(i, 1)})
			dot := canvas.Circle(markerRadius / 2).Translate(cx, cy)
			renderer.RenderPath(dot, gridStyle, canvas.Identity)
		}
	}

	// Correspondence segments for confident matches.
	if r.Result != nil && r.MatchThreshold > 0 {
		matchStyle := canvas.DefaultStyle
		matchStyle.Fill = canvas.Paint{Color: canvas.Transparent}
		matchStyle.Stroke = canvas.Paint{Color: colorMatch}
		matchStyle.StrokeWidth = markerRadius / 4

		k, n := r.Result.M.Dims()
		for src := 0; src < k; src++ {
			for tgt := 0; tgt < n; tgt++ {
				if r.Result.M.At(src, tgt) <= r.MatchThreshold {
					continue
				}
				x1, y1 := toCanvas(Point{X: sc.warpedSource.At(src, 0), Y: sc.warpedSource.At(src, 1)})
				x2, y2 := toCanvas(Point{X: r.Target.At(tgt, 0), Y: r.Target.At(tgt, 1)})
				line := &canvas.Path{}
				line.MoveTo(x1, y1)
				line.LineTo(x2, y2)
				renderer.RenderPath(line, matchStyle, canvas.Identity)
			}
		}
	}

	// Target points.
	targetStyle := canvas.DefaultStyle
	targetStyle.Fill = canvas.Paint{Color: colorTarget}
	targetStyle.Stroke = canvas.Paint{Color: canvas.Transparent}

	rows, _ := r.Target.Dims()
	for i := 0; i < rows; i++ {
		cx, cy := toCanvas(Point{X: r.Target.At(i, 0), Y: r.Target.At(i, 1)})
		dot := canvas.Circle(markerRadius * 1.4).Translate(cx, cy)
		renderer.RenderPath(dot, targetStyle, canvas.Identity)
	}

	// Warped source points on top.
	sourceStyle := canvas.DefaultStyle
	sourceStyle.Fill = canvas.Paint{Color: colorSource}
	sourceStyle.Stroke = canvas.Paint{Color: canvas.Black}
	sourceStyle.StrokeWidth = markerRadius / 5

	rows, _ = sc.warpedSource.Dims()
	for i := 0; i < rows; i++ {
		cx, cy := toCanvas(Point{X: sc.warpedSource.At(i, 0), Y: sc.warpedSource.At(i, 1)})
		dot := canvas.Circle(markerRadius).Translate(cx, cy)
		renderer.RenderPath(dot, sourceStyle, canvas.Identity)
	}
}

// drawLabel renders a small legend string onto the rasterized image.
func drawLabel(dst *rasterizer.Rasterizer, x, y int, col color.RGBA, label string) {
	d := font.Drawer{
		Dst:  dst,
		Src:  image.NewUniform(col),
		Face: basicfont.Face7x13,
		Dot:  fixed.P(x, y),
	}
	d.DrawString(label)
}
