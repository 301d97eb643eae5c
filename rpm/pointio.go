package rpm

import (
	"bufio"
	"bytes"
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"strconv"
	"strings"

	"github.com/paulmach/orb"
	"github.com/paulmach/orb/geojson"
	"gonum.org/v1/gonum/mat"
)

// Point-set interchange. Two formats are supported: the plain text format of
// one "x y" pair per line, and GeoJSON FeatureCollections of Point features
// (MultiPoint features are flattened). File extension selects the format.

// LoadPoints reads a point set from a file. Files ending in .json or
// .geojson are parsed as GeoJSON; anything else as whitespace-separated
// pairs.
func LoadPoints(path string) (*mat.Dense, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("reading point file: %w", err)
	}

	switch strings.ToLower(filepath.Ext(path)) {
	case ".json", ".geojson":
		return parseGeoJSONPoints(data)
	default:
		return parseTextPoints(data)
	}
}

// SavePoints writes a point set, format chosen by extension as in
// LoadPoints.
func SavePoints(path string, x *mat.Dense) error {
	if err := checkPointSet(x); err != nil {
		return err
	}

	var data []byte
	var err error
	switch strings.ToLower(filepath.Ext(path)) {
	case ".json", ".geojson":
		data, err = marshalGeoJSONPoints(x)
	default:
		data = marshalTextPoints(x)
	}
	if err != nil {
		return err
	}

	if err := os.WriteFile(path, data, 0o644); err != nil {
		return fmt.Errorf("writing point file: %w", err)
	}
	return nil
}

// parseTextPoints parses one "x y" pair per line. Blank lines and lines
// starting with '#' are skipped.
func parseTextPoints(data []byte) (*mat.Dense, error) {
	var points []Point

	scanner := bufio.NewScanner(bytes.NewReader(data))
	line := 0
	for scanner.Scan() {
		line++
		text := strings.TrimSpace(scanner.Text())
		if text == "" || strings.HasPrefix(text, "#") {
			continue
		}
		fields := strings.Fields(text)
		if len(fields) < 2 {
			return nil, fmt.Errorf("%w: line %d: want two coordinates, got %q", ErrInvalidInput, line, text)
		}
		x, err := strconv.ParseFloat(fields[0], 64)
		if err != nil {
			return nil, fmt.Errorf("%w: line %d: %v", ErrInvalidInput, line, err)
		}
		y, err := strconv.ParseFloat(fields[1], 64)
		if err != nil {
			return nil, fmt.Errorf("%w: line %d: %v", ErrInvalidInput, line, err)
		}
		points = append(points, Point{X: x, Y: y})
	}
	if err := scanner.Err(); err != nil {
		return nil, fmt.Errorf("scanning point file: %w", err)
	}
	if len(points) == 0 {
		return nil, fmt.Errorf("%w: no points found", ErrInvalidInput)
	}

	return PointsToDense(points), nil
}

func marshalTextPoints(x *mat.Dense) []byte {
	rows, _ := x.Dims()
	var sb strings.Builder
	for i := 0; i < rows; i++ {
		fmt.Fprintf(&sb, "%g %g", x.At(i, 0), x.At(i, 1))
		if i != rows-1 {
			sb.WriteByte('\n')
		}
	}
	return []byte(sb.String())
}

// parseGeoJSONPoints extracts Point and MultiPoint features from a GeoJSON
// FeatureCollection, in feature order.
func parseGeoJSONPoints(data []byte) (*mat.Dense, error) {
	fc, err := geojson.UnmarshalFeatureCollection(data)
	if err != nil {
		return nil, fmt.Errorf("parsing GeoJSON: %w", err)
	}

	var points []Point
	for _, f := range fc.Features {
		switch g := f.Geometry.(type) {
		case orb.Point:
			points = append(points, Point{X: g[0], Y: g[1]})
		case orb.MultiPoint:
			for _, p := range g {
				points = append(points, Point{X: p[0], Y: p[1]})
			}
		}
	}
	if len(points) == 0 {
		return nil, fmt.Errorf("%w: no point features in collection", ErrInvalidInput)
	}

	return PointsToDense(points), nil
}

func marshalGeoJSONPoints(x *mat.Dense) ([]byte, error) {
	rows, _ := x.Dims()
	fc := geojson.NewFeatureCollection()
	for i := 0; i < rows; i++ {
		f := geojson.NewFeature(orb.Point{x.At(i, 0), x.At(i, 1)})
		f.Properties["index"] = i
		fc.Append(f)
	}
	data, err := json.Marshal(fc)
	if err != nil {
		return nil, fmt.Errorf("marshaling GeoJSON: %w", err)
	}
	return data, nil
}

// DecodePointsPayload decodes a point set from a message payload: a GeoJSON
// FeatureCollection, a bare JSON array of [x, y] pairs, or the plain text
// format.
func DecodePointsPayload(payload []byte) (*mat.Dense, error) {
	trimmed := bytes.TrimSpace(payload)
	if len(trimmed) == 0 {
		return nil, fmt.Errorf("%w: empty payload", ErrInvalidInput)
	}

	switch trimmed[0] {
	case '{':
		return parseGeoJSONPoints(trimmed)
	case '[':
		var pairs [][2]float64
		if err := json.Unmarshal(trimmed, &pairs); err != nil {
			return nil, fmt.Errorf("%w: parsing JSON pairs: %v", ErrInvalidInput, err)
		}
		if len(pairs) == 0 {
			return nil, fmt.Errorf("%w: empty point array", ErrInvalidInput)
		}
		x := mat.NewDense(len(pairs), Dim, nil)
		for i, p := range pairs {
			x.Set(i, 0, p[0])
			x.Set(i, 1, p[1])
		}
		return x, nil
	default:
		return parseTextPoints(trimmed)
	}
}

// EncodePointsGeoJSON renders a point set as a GeoJSON FeatureCollection
// payload, the format published by the service.
func EncodePointsGeoJSON(x *mat.Dense) ([]byte, error) {
	return marshalGeoJSONPoints(x)
}
