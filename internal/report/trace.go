// Package report turns the per-frame trace of a batch run into a summary,
// a PNG angle plot and an interactive HTML chart.
package report

import (
	"sort"
	"sync"

	"gonum.org/v1/gonum/stat"

	"repcount/internal/exercise"
	"repcount/internal/pipeline"
)

// Trace collects batch samples. Record can be passed to pipeline.RunBatch.
type Trace struct {
	Profile exercise.Profile

	mu      sync.Mutex
	samples []pipeline.Sample
}

// NewTrace creates an empty trace for profile.
func NewTrace(profile exercise.Profile) *Trace {
	return &Trace{Profile: profile}
}

// Record appends one sample.
func (t *Trace) Record(s pipeline.Sample) {
	t.mu.Lock()
	t.samples = append(t.samples, s)
	t.mu.Unlock()
}

// Samples returns a copy of the recorded samples.
func (t *Trace) Samples() []pipeline.Sample {
	t.mu.Lock()
	defer t.mu.Unlock()
	out := make([]pipeline.Sample, len(t.samples))
	copy(out, t.samples)
	return out
}

// Summary describes the angle distribution over a batch run.
type Summary struct {
	Exercise  string  `json:"exercise"`
	Frames    int     `json:"frames"`
	Detected  int     `json:"detected"`
	Count     int     `json:"count"`
	MinAngle  float64 `json:"min_angle"`
	MaxAngle  float64 `json:"max_angle"`
	MeanAngle float64 `json:"mean_angle"`
	StdDev    float64 `json:"std_dev"`
	Median    float64 `json:"median"`
	BelowDown int     `json:"frames_below_down"`
	AboveUp   int     `json:"frames_above_up"`
}

// Summarize computes angle statistics over frames with a detection.
func (t *Trace) Summarize() Summary {
	samples := t.Samples()
	sum := Summary{
		Exercise: t.Profile.ID,
		Frames:   len(samples),
	}
	if len(samples) > 0 {
		sum.Count = samples[len(samples)-1].Count
	}

	angles := make([]float64, 0, len(samples))
	for _, s := range samples {
		if !s.HasAngle {
			continue
		}
		angles = append(angles, s.Angle)
		if s.Angle < t.Profile.Down {
			sum.BelowDown++
		}
		if s.Angle > t.Profile.Up {
			sum.AboveUp++
		}
	}
	sum.Detected = len(angles)
	if len(angles) == 0 {
		return sum
	}

	sum.MeanAngle, sum.StdDev = stat.MeanStdDev(angles, nil)
	if len(angles) == 1 {
		sum.StdDev = 0
	}

	sorted := make([]float64, len(angles))
	copy(sorted, angles)
	sort.Float64s(sorted)
	sum.MinAngle = sorted[0]
	sum.MaxAngle = sorted[len(sorted)-1]
	sum.Median = stat.Quantile(0.5, stat.Empirical, sorted, nil)
	return sum
}
