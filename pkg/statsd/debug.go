package statsd

import (
	"context"
	"time"

	"github.com/sirupsen/logrus"
	"github.com/tilinna/clock"
)

// DebugDumper periodically logs the aggregated state at debug level.
type DebugDumper struct {
	interval time.Duration
	store    *Store
	logger   logrus.FieldLogger
}

// NewDebugDumper creates a DebugDumper logging every interval.
func NewDebugDumper(interval time.Duration, store *Store, logger logrus.FieldLogger) *DebugDumper {
	return &DebugDumper{
		interval: interval,
		store:    store,
		logger:   logger,
	}
}

// Run runs the DebugDumper until the context is done.
func (d *DebugDumper) Run(ctx context.Context) {
	ticker := clock.FromContext(ctx).NewTicker(d.interval)
	defer ticker.Stop()
	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			d.Dump()
		}
	}
}

// Dump logs counters, timers and gauges once.
func (d *DebugDumper) Dump() {
	snapshot := d.store.Snapshot()
	d.logger.WithFields(logrus.Fields{
		"counters": snapshot.Counters,
		"timers":   snapshot.Timers,
		"gauges":   snapshot.Gauges,
	}).Debug("Aggregated state")
}
