package rpm

import (
	"sync"
	"time"

	"gonum.org/v1/gonum/mat"
)

// Registration is the tracked outcome of registering one source onto the
// reference set.
type Registration struct {
	SourceID  string    `json:"sourceId"`
	Result    *Result   `json:"-"`
	Summary   Summary   `json:"summary"`
	Timestamp time.Time `json:"timestamp"`
}

// Summary condenses a correspondence matrix into the numbers the service
// publishes: how many source points found a confident match, how much mass
// escaped to the outlier slack, and the mean residual of matched points in
// input coordinates.
type Summary struct {
	SourceCount  int     `json:"sourceCount"`
	TargetCount  int     `json:"targetCount"`
	Matched      int     `json:"matched"`
	OutlierMass  float64 `json:"outlierMass"`
	MeanResidual float64 `json:"meanResidual"`
}

// Summarize computes the published summary for a result, using the given
// confidence threshold for the matched count.
func Summarize(res *Result, target *mat.Dense, threshold float64) Summary {
	k, n := res.M.Dims()
	warped := res.WarpSource()

	s := Summary{SourceCount: k, TargetCount: n}
	residual := 0.0
	for src := 0; src < k; src++ {
		rowSum := 0.0
		best, bestTgt := 0.0, -1
		for tgt := 0; tgt < n; tgt++ {
			v := res.M.At(src, tgt)
			rowSum += v
			if v > best {
				best, bestTgt = v, tgt
			}
		}
		s.OutlierMass += 1 - rowSum
		if best > threshold && bestTgt >= 0 {
			s.Matched++
			residual += Distance(
				Point{X: warped.At(src, 0), Y: warped.At(src, 1)},
				Point{X: target.At(bestTgt, 0), Y: target.At(bestTgt, 1)},
			)
		}
	}
	if s.Matched > 0 {
		s.MeanResidual = residual / float64(s.Matched)
	}
	return s
}

// StateTracker keeps the latest point set per source and the latest
// registration per non-reference source for the HTTP endpoints.
type StateTracker struct {
	mu            sync.RWMutex
	points        map[string]*mat.Dense
	registrations map[string]*Registration
	colors        map[string]string
}

// NewStateTracker creates a new state tracker
func NewStateTracker() *StateTracker {
	return &StateTracker{
		points:        make(map[string]*mat.Dense),
		registrations: make(map[string]*Registration),
		colors:        make(map[string]string),
	}
}

// SetColor sets the display color for a source
func (st *StateTracker) SetColor(sourceID, hexColor string) {
	st.mu.Lock()
	defer st.mu.Unlock()
	st.colors[sourceID] = hexColor
}

// UpdatePoints stores the latest point set for a source
func (st *StateTracker) UpdatePoints(sourceID string, x *mat.Dense) {
	st.mu.Lock()
	defer st.mu.Unlock()
	st.points[sourceID] = x
}

// Points returns the latest point set for a source
func (st *StateTracker) Points(sourceID string) (*mat.Dense, bool) {
	st.mu.RLock()
	defer st.mu.RUnlock()
	x, ok := st.points[sourceID]
	return x, ok
}

// UpdateRegistration stores the latest registration for a source
func (st *StateTracker) UpdateRegistration(reg *Registration) {
	st.mu.Lock()
	defer st.mu.Unlock()
	st.registrations[reg.SourceID] = reg
}

// Registration returns the latest registration for a source
func (st *StateTracker) Registration(sourceID string) (*Registration, bool) {
	st.mu.RLock()
	defer st.mu.RUnlock()
	reg, ok := st.registrations[sourceID]
	return reg, ok
}

// Registrations returns all current registrations keyed by source ID
func (st *StateTracker) Registrations() map[string]*Registration {
	st.mu.RLock()
	defer st.mu.RUnlock()

	result := make(map[string]*Registration, len(st.registrations))
	for id, reg := range st.registrations {
		result[id] = reg
	}
	return result
}

// SourceIDs returns the IDs of all sources that have published a point set
func (st *StateTracker) SourceIDs() []string {
	st.mu.RLock()
	defer st.mu.RUnlock()

	ids := make([]string, 0, len(st.points))
	for id := range st.points {
		ids = append(ids, id)
	}
	return ids
}
