package statsagg

import (
	"time"
)

// MetricsBundle is the immutable view of one flush interval handed to every backend.
// Raw maps are a snapshot taken before the store was reset, so backends may keep reading
// them after the flush cycle has moved on.
type MetricsBundle struct {
	Counters          Counters
	Gauges            Gauges
	Timers            Timers
	Sets              Sets
	SuperSets         SuperSets
	CounterRates      CounterRates
	TimerData         map[string]*TimerData
	PercentThresholds []float64
	FlushInterval     time.Duration
}

// NumMetrics returns the number of keys across the raw families of the bundle.
func (mb *MetricsBundle) NumMetrics() int {
	return len(mb.Counters) + len(mb.Gauges) + len(mb.Timers) + len(mb.Sets)
}
