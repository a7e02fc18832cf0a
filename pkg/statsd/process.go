package statsd

import (
	"math"
	"sort"
	"strconv"
	"time"

	"github.com/atlassian/statsagg"
)

// percentStruct is a cache of percentile names to avoid creating them for each timer.
type percentStruct struct {
	pct   float64
	count string
	mean  string
	sum   string
	upper string
	lower string
}

func newPercentStructs(thresholds []float64) []percentStruct {
	result := make([]percentStruct, 0, len(thresholds))
	for _, pct := range thresholds {
		sPct := strconv.FormatFloat(pct, 'f', -1, 64)
		result = append(result, percentStruct{
			pct:   pct,
			count: "count_" + sPct,
			mean:  "mean_" + sPct,
			sum:   "sum_" + sPct,
			upper: "upper_" + sPct,
			lower: "lower_" + sPct,
		})
	}
	return result
}

// round rounds a number to its nearest integer value.
// poor man's math.Round(x) = math.Floor(x + 0.5).
func round(v float64) float64 {
	return math.Floor(v + 0.5)
}

// ProcessMetrics computes the derived statistics of a bundle in place: a per-second rate for
// every counter and descriptive plus percentile statistics for every timer. The raw maps are
// only read. The bundle's PercentThresholds select the percentiles.
func ProcessMetrics(bundle *statsagg.MetricsBundle, flushInterval time.Duration) {
	flushInSeconds := float64(flushInterval) / float64(time.Second)
	bundle.FlushInterval = flushInterval

	bundle.CounterRates = make(statsagg.CounterRates, len(bundle.Counters))
	for key, value := range bundle.Counters {
		bundle.CounterRates[key] = value / flushInSeconds
	}

	pcts := newPercentStructs(bundle.PercentThresholds)
	bundle.TimerData = make(map[string]*statsagg.TimerData, len(bundle.Timers))
	for key, values := range bundle.Timers {
		bundle.TimerData[key] = processTimer(values, pcts, flushInSeconds)
	}
}

func processTimer(raw []float64, pcts []percentStruct, flushInSeconds float64) *statsagg.TimerData {
	timer := &statsagg.TimerData{}
	n := len(raw)
	if n == 0 {
		return timer
	}
	values := make([]float64, n)
	copy(values, raw)
	sort.Float64s(values)

	timer.Min = values[0]
	timer.Max = values[n-1]
	count := float64(n)

	cumulativeValues := make([]float64, n)
	cumulSumSquaresValues := make([]float64, n)
	cumulativeValues[0] = timer.Min
	cumulSumSquaresValues[0] = timer.Min * timer.Min
	for i := 1; i < n; i++ {
		cumulativeValues[i] = values[i] + cumulativeValues[i-1]
		cumulSumSquaresValues[i] = values[i]*values[i] + cumulSumSquaresValues[i-1]
	}

	for _, ps := range pcts {
		sum := timer.Min
		mean := timer.Min
		thresholdBoundary := timer.Max
		numInThreshold := n
		if n > 1 {
			numInThreshold = int(round(math.Abs(ps.pct) / 100 * count))
			if numInThreshold == 0 {
				continue
			}
			if numInThreshold > n {
				numInThreshold = n
			}
			if ps.pct > 0 {
				thresholdBoundary = values[numInThreshold-1]
				sum = cumulativeValues[numInThreshold-1]
			} else {
				thresholdBoundary = values[n-numInThreshold]
				sum = cumulativeValues[n-1]
				if numInThreshold < n {
					sum -= cumulativeValues[n-numInThreshold-1]
				}
			}
			mean = sum / float64(numInThreshold)
		}

		timer.Percentiles.Set(ps.count, float64(numInThreshold))
		timer.Percentiles.Set(ps.mean, mean)
		timer.Percentiles.Set(ps.sum, sum)
		if ps.pct > 0 {
			timer.Percentiles.Set(ps.upper, thresholdBoundary)
		} else {
			timer.Percentiles.Set(ps.lower, thresholdBoundary)
		}
	}

	sum := cumulativeValues[n-1]
	mean := sum / count

	var sumOfDiffs float64
	for i := 0; i < n; i++ {
		sumOfDiffs += (values[i] - mean) * (values[i] - mean)
	}

	mid := int(math.Floor(count / 2))
	if math.Mod(count, 2) == 0 {
		timer.Median = (values[mid-1] + values[mid]) / 2
	} else {
		timer.Median = values[mid]
	}

	timer.Mean = mean
	timer.StdDev = math.Sqrt(sumOfDiffs / count)
	timer.Sum = sum
	timer.SumSquares = cumulSumSquaresValues[n-1]
	timer.Count = n
	timer.PerSecond = count / flushInSeconds
	return timer
}
