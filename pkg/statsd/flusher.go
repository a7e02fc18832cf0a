package statsd

import (
	"context"
	"time"

	"github.com/sirupsen/logrus"
	"github.com/tilinna/clock"
)

// MetricFlusher periodically hands a snapshot of the Store to every backend.
type MetricFlusher struct {
	flushInterval     time.Duration // How often to flush metrics to the backends
	percentThresholds []float64
	store             *Store
	hub               *Hub
	logger            logrus.FieldLogger
}

// NewMetricFlusher creates a new MetricFlusher with provided configuration.
func NewMetricFlusher(flushInterval time.Duration, percentThresholds []float64, store *Store, hub *Hub, logger logrus.FieldLogger) *MetricFlusher {
	return &MetricFlusher{
		flushInterval:     flushInterval,
		percentThresholds: percentThresholds,
		store:             store,
		hub:               hub,
		logger:            logger,
	}
}

// Run runs the MetricFlusher.
func (f *MetricFlusher) Run(ctx context.Context) {
	clck := clock.FromContext(ctx)
	flushTicker := clck.NewTicker(f.flushInterval)
	defer flushTicker.Stop()

	// Let backends finish the last bundle before the server goes down
	defer f.hub.Wait()

	for {
		select {
		case <-ctx.Done():
			return
		case <-flushTicker.C: // Time to flush to the backends
			f.Flush(ctx)
		}
	}
}

// Flush runs a single flush cycle: snapshot and reset the store, compute the derived
// statistics from the snapshot, then publish it. Backends complete in the background.
func (f *MetricFlusher) Flush(ctx context.Context) {
	now := clock.FromContext(ctx).Now()
	bundle := f.store.SnapshotAndReset(now)
	bundle.PercentThresholds = f.percentThresholds
	ProcessMetrics(bundle, f.flushInterval)

	ts := now.Round(time.Second)
	f.hub.EmitFlush(ctx, ts, bundle)
	f.logger.WithFields(logrus.Fields{
		"timestamp": ts.Unix(),
		"metrics":   bundle.NumMetrics(),
	}).Debug("Flushed metrics")
}
