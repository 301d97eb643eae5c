package rpm

import (
	"math/rand"

	"gonum.org/v1/gonum/mat"
)

// Dim is the spatial dimension of the engine. The kernel, the homogeneous
// coordinate handling and the null-space split are all 2D-specific.
const Dim = 2

// Point represents a 2D coordinate
type Point struct {
	X float64 `json:"x"`
	Y float64 `json:"y"`
}

// PinnedPair forces the correspondence M[Source, Target] = 1 regardless of
// distance. Pairs with out-of-range indices are silently skipped.
type PinnedPair struct {
	Source int `json:"source" yaml:"source"`
	Target int `json:"target" yaml:"target"`
}

// Config holds the tuning parameters of the annealing loop, the SoftAssign
// normalization and the spline fit. The zero value selects defaults via
// withDefaults; distances are in the unit-normalized frame the preprocessing
// step establishes.
type Config struct {
	// TStart overrides the starting temperature. 0 means auto: the mean
	// squared pairwise distance between the preprocessed sets.
	TStart float64 `yaml:"tStart,omitempty" json:"tStart,omitempty"`
	// AnnealingRatio is the geometric cooling factor r, 0 < r < 1.
	AnnealingRatio float64 `yaml:"annealingRatio,omitempty" json:"annealingRatio,omitempty"`
	// TEndRatio sets the final temperature as a fraction of TStart.
	TEndRatio float64 `yaml:"tEndRatio,omitempty" json:"tEndRatio,omitempty"`
	// InnerIters is the number of correspondence/transform alternations per
	// temperature step.
	InnerIters int `yaml:"innerIters,omitempty" json:"innerIters,omitempty"`
	// SinkhornIters is the number of full row/column normalization sweeps
	// per SoftAssign call.
	SinkhornIters int `yaml:"sinkhornIters,omitempty" json:"sinkhornIters,omitempty"`
	// Alpha is the outlier rejection threshold on squared distance.
	Alpha float64 `yaml:"alpha,omitempty" json:"alpha,omitempty"`
	// LambdaStart is the initial bending-energy weight. 0 means equal to
	// the starting temperature.
	LambdaStart float64 `yaml:"lambdaStart,omitempty" json:"lambdaStart,omitempty"`
	// Epsilon1 is the mass floor below which a SoftAssign row or column is
	// treated as already zero.
	Epsilon1 float64 `yaml:"epsilon1,omitempty" json:"epsilon1,omitempty"`
	// AffineReg adds the lambda_d = 0.01*K*lambda regularizer to the
	// affine solve, biasing d toward the identity.
	AffineReg bool `yaml:"affineReg,omitempty" json:"affineReg,omitempty"`
	// BothSideOutlier divides each correspondence-weighted target row by
	// its correspondence mass in the transform step.
	BothSideOutlier bool `yaml:"bothSideOutlier,omitempty" json:"bothSideOutlier,omitempty"`
	// Workers bounds the row-parallel fan-out. 0 means GOMAXPROCS.
	Workers int `yaml:"workers,omitempty" json:"workers,omitempty"`
}

// DefaultConfig returns the tuning used by the demo and the service.
func DefaultConfig() Config {
	return Config{
		AnnealingRatio: 0.90,
		TEndRatio:      1e-3,
		InnerIters:     5,
		SinkhornIters:  10,
		Alpha:          0.1,
		Epsilon1:       1e-4,
	}
}

// withDefaults fills zero-valued fields so a partially specified Config
// (e.g. one loaded from YAML) behaves like DefaultConfig.
func (c Config) withDefaults() Config {
	def := DefaultConfig()
	if c.AnnealingRatio == 0 {
		c.AnnealingRatio = def.AnnealingRatio
	}
	if c.TEndRatio == 0 {
		c.TEndRatio = def.TEndRatio
	}
	if c.InnerIters == 0 {
		c.InnerIters = def.InnerIters
	}
	if c.SinkhornIters == 0 {
		c.SinkhornIters = def.SinkhornIters
	}
	if c.Alpha == 0 {
		c.Alpha = def.Alpha
	}
	if c.Epsilon1 == 0 {
		c.Epsilon1 = def.Epsilon1
	}
	return c
}

// SourceConfig defines a point source from the config file
type SourceConfig struct {
	ID    string `yaml:"id" json:"id"`
	Topic string `yaml:"topic" json:"topic"`
	Color string `yaml:"color,omitempty" json:"color,omitempty"`
}

// MQTTConfig holds MQTT connection settings
type MQTTConfig struct {
	Broker        string `yaml:"broker" json:"broker"`
	PublishPrefix string `yaml:"publishPrefix" json:"publishPrefix"`
	ClientID      string `yaml:"clientId" json:"clientId"`
	Username      string `yaml:"username,omitempty" json:"username,omitempty"`
	Password      string `yaml:"password,omitempty" json:"password,omitempty"`
}

// ServiceConfig represents the full configuration file for service mode.
// The reference source provides the target set; every other source is
// registered onto it as it publishes.
type ServiceConfig struct {
	MQTT      MQTTConfig     `yaml:"mqtt" json:"mqtt"`
	Reference string         `yaml:"reference" json:"reference"`
	Sources   []SourceConfig `yaml:"sources" json:"sources"`
	Engine    Config         `yaml:"engine,omitempty" json:"engine,omitempty"`
}

// GetSourceByID returns the source config for the given ID
func (c *ServiceConfig) GetSourceByID(id string) *SourceConfig {
	for i := range c.Sources {
		if c.Sources[i].ID == id {
			return &c.Sources[i]
		}
	}
	return nil
}

// PointsToDense converts a point slice to a (n, 2) matrix.
func PointsToDense(points []Point) *mat.Dense {
	m := mat.NewDense(len(points), Dim, nil)
	for i, p := range points {
		m.Set(i, 0, p.X)
		m.Set(i, 1, p.Y)
	}
	return m
}

// DenseToPoints converts the first two columns of a matrix to a point slice.
func DenseToPoints(m *mat.Dense) []Point {
	rows, _ := m.Dims()
	points := make([]Point, rows)
	for i := range points {
		points[i] = Point{X: m.At(i, 0), Y: m.At(i, 1)}
	}
	return points
}

// newRNG is the fallback generator for synthesis helpers called with a nil
// *rand.Rand.
func newRNG(seed int64) *rand.Rand {
	return rand.New(rand.NewSource(seed))
}
