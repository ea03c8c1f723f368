// Package stats provides the per-worker travel time accumulator and the
// pooled reduction that merges the per-worker results into one global
// mean/variance at the end of a run.
package stats

import "math"

// Accumulator is a single pass (count, mean, variance) collector.
// Variance is the population variance so that pooled combination
// over disjoint sample groups stays exact.
type Accumulator struct {
	n    int64
	mean float64
	m2   float64
}

func (a *Accumulator) Add(value float64) {
	// Welford update
	a.n++
	delta := value - a.mean
	a.mean += delta / float64(a.n)
	a.m2 += delta * (value - a.mean)
}

func (a *Accumulator) Count() int64 { return a.n }

func (a *Accumulator) Mean() float64 {
	if a.n == 0 {
		return 0
	}
	return a.mean
}

func (a *Accumulator) Variance() float64 {
	if a.n == 0 {
		return 0
	}
	return a.m2 / float64(a.n)
}

// Sample is the wire-friendly snapshot of one worker's accumulator.
type Sample struct {
	Mean     float64
	Variance float64
	Count    float64
}

func (a *Accumulator) Sample() Sample {
	return Sample{Mean: a.Mean(), Variance: a.Variance(), Count: float64(a.n)}
}

// Combine pools the per-worker samples into one global sample. The result
// equals a single pass computation over the union of all underlying values
// as long as each input holds the exact population mean/variance of its
// own group.
func Combine(samples []Sample) Sample {
	var totalCount, totalSum, totalSquaredSum float64
	for i := range samples {
		s := &samples[i]
		totalCount += s.Count
		totalSum += s.Mean * s.Count
		totalSquaredSum += s.Variance*s.Count + s.Mean*s.Mean*s.Count
	}
	if totalCount == 0 {
		return Sample{}
	}
	mean := totalSum / totalCount
	return Sample{
		Mean:     mean,
		Variance: totalSquaredSum/totalCount - mean*mean,
		Count:    totalCount,
	}
}

// StdDev is a convenience for reporting.
func (s Sample) StdDev() float64 {
	if s.Variance <= 0 {
		return 0
	}
	return math.Sqrt(s.Variance)
}
