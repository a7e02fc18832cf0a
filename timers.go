package statsagg

import (
	"strings"
)

// Timers stores the durations observed within the current interval by key.
type Timers map[string][]float64

// MetricsName returns the name of the aggregated metrics collection.
func (t Timers) MetricsName() string {
	return "Timers"
}

// Delete deletes the metric from the collection.
func (t Timers) Delete(k string) {
	delete(t, k)
}

// Has returns whether the key is present in the collection.
func (t Timers) Has(k string) bool {
	_, ok := t[k]
	return ok
}

// Copy returns a copy of the collection. Value slices are copied too.
func (t Timers) Copy() Timers {
	n := make(Timers, len(t))
	for k, v := range t {
		values := make([]float64, len(v))
		copy(values, v)
		n[k] = values
	}
	return n
}

// TimerData is used for storing the derived statistics of a timer.
type TimerData struct {
	Count       int         // The number of timings in the series
	PerSecond   float64     // The calculated per second rate
	Mean        float64     // The mean time of the series
	Median      float64     // The median time of the series
	Min         float64     // The minimum time of the series
	Max         float64     // The maximum time of the series
	StdDev      float64     // The standard deviation for the series
	Sum         float64     // The sum for the series
	SumSquares  float64     // The sum squares for the series
	Percentiles Percentiles // The percentile aggregations of the series
}

// Percentiles represents an array of percentiles.
type Percentiles []Percentile

// Percentile is used to store the aggregation for a percentile.
type Percentile struct {
	Float float64
	Str   string
}

// Set appends a percentile aggregation to the percentiles.
func (p *Percentiles) Set(s string, f float64) {
	*p = append(*p, Percentile{f, strings.Replace(s, ".", "_", -1)})
}

// Get returns the value of the named percentile aggregation.
func (p Percentiles) Get(s string) (float64, bool) {
	for _, pct := range p {
		if pct.Str == s {
			return pct.Float, true
		}
	}
	return 0, false
}
