package main

import (
	"fmt"
	"math/rand"
	"strconv"
	"strings"
	"sync/atomic"
)

type metricData struct {
	count           uint64 // atomic
	nameFormat      string
	nameCardinality uint
	valueLimit      uint
}

type metricGenerator struct {
	rnd *rand.Rand

	counterRate float64
	timerValues uint
	counters    metricData
	gauges      metricData
	sets        metricData
	timers      metricData
}

func (md *metricData) genName(sb *strings.Builder, r *rand.Rand) {
	sb.WriteString(fmt.Sprintf(md.nameFormat, r.Intn(int(md.nameCardinality))))
	sb.WriteByte(':')
}

func (mg *metricGenerator) nextCounter(sb *strings.Builder) {
	atomic.AddUint64(&mg.counters.count, ^uint64(0))
	mg.counters.genName(sb, mg.rnd)
	sb.WriteString(strconv.Itoa(1 + mg.rnd.Intn(int(mg.counters.valueLimit+1))))
	sb.WriteString("|c")
	if mg.counterRate < 1 {
		sb.WriteString("|@")
		sb.WriteString(strconv.FormatFloat(mg.counterRate, 'f', -1, 64))
	}
	sb.WriteByte('\n')
}

func (mg *metricGenerator) nextGauge(sb *strings.Builder) {
	atomic.AddUint64(&mg.gauges.count, ^uint64(0))
	mg.gauges.genName(sb, mg.rnd)
	sb.WriteString(strconv.Itoa(mg.rnd.Intn(int(mg.gauges.valueLimit))))
	sb.WriteString("|g\n")
}

func (mg *metricGenerator) nextSet(sb *strings.Builder) {
	atomic.AddUint64(&mg.sets.count, ^uint64(0))
	mg.sets.genName(sb, mg.rnd)
	sb.WriteString(strconv.Itoa(mg.rnd.Intn(int(mg.sets.valueLimit))))
	sb.WriteString("|s\n")
}

// nextTimer packs up to timerValues samples of one timer into a single record, name:v1|ms:v2|ms.
func (mg *metricGenerator) nextTimer(sb *strings.Builder) {
	atomic.AddUint64(&mg.timers.count, ^uint64(0))
	mg.timers.genName(sb, mg.rnd)
	for i := uint(0); i < mg.timerValues; i++ {
		if i > 0 {
			sb.WriteByte(':')
		}
		sb.WriteString(strconv.FormatFloat(mg.rnd.Float64()*float64(mg.timers.valueLimit), 'f', 3, 64))
		sb.WriteString("|ms")
	}
	sb.WriteByte('\n')
}

func (mg *metricGenerator) next(sb *strings.Builder) bool {
	// We can safely read these non-atomically, because this goroutine is the only one that writes to them.
	total := mg.counters.count + mg.gauges.count + mg.sets.count + mg.timers.count
	if total == 0 {
		return false
	}

	n := uint64(mg.rnd.Int63n(int64(total)))
	if n < mg.counters.count {
		mg.nextCounter(sb)
	} else if n < mg.counters.count+mg.gauges.count {
		mg.nextGauge(sb)
	} else if n < mg.counters.count+mg.gauges.count+mg.sets.count {
		mg.nextSet(sb)
	} else {
		mg.nextTimer(sb)
	}
	return true
}

func newMetricGenerator(opts commandOptions, seed int64) *metricGenerator {
	setSuffix := opts.MetricSuffix
	if opts.Sampling.SetWindow != "" {
		setSuffix += "." + opts.Sampling.SetWindow
	}
	timerValues := opts.Sampling.TimerSplit
	if timerValues == 0 {
		timerValues = 1
	}
	workers := uint64(opts.Workers)
	return &metricGenerator{
		rnd:         rand.New(rand.NewSource(seed)),
		counterRate: opts.Sampling.CounterRate,
		timerValues: timerValues,
		counters: metricData{
			nameFormat:      fmt.Sprintf("%scounter%s", opts.MetricPrefix, opts.MetricSuffix),
			count:           opts.Counts.Counter / workers,
			nameCardinality: opts.NameCard.Counter,
			valueLimit:      opts.ValueRange.Counter,
		},
		gauges: metricData{
			nameFormat:      fmt.Sprintf("%sgauge%s", opts.MetricPrefix, opts.MetricSuffix),
			count:           opts.Counts.Gauge / workers,
			nameCardinality: opts.NameCard.Gauge,
			valueLimit:      opts.ValueRange.Gauge,
		},
		sets: metricData{
			nameFormat:      fmt.Sprintf("%sset%s", opts.MetricPrefix, setSuffix),
			count:           opts.Counts.Set / workers,
			nameCardinality: opts.NameCard.Set,
			valueLimit:      opts.ValueRange.Set,
		},
		timers: metricData{
			nameFormat:      fmt.Sprintf("%stimer%s", opts.MetricPrefix, opts.MetricSuffix),
			count:           opts.Counts.Timer / workers,
			nameCardinality: opts.NameCard.Timer,
			valueLimit:      opts.ValueRange.Timer,
		},
	}
}
