package console

import (
	"context"
	"sync/atomic"
	"time"

	"github.com/sirupsen/logrus"
	"github.com/spf13/viper"

	"github.com/atlassian/statsagg"
)

const (
	// BackendName is the name of this backend.
	BackendName = "console"
	// DefaultPrettyPrint controls whether the raw families are logged as well.
	DefaultPrettyPrint = false
)

// Client logs every flushed bundle.
type Client struct {
	flushes     uint64 // Accessed atomically
	prettyPrint bool
	logger      logrus.FieldLogger
}

// Init creates a Client from the console section and subscribes it to p.
func Init(startup time.Time, v *viper.Viper, logger logrus.FieldLogger, p statsagg.Publisher) error {
	v.SetDefault("pretty-print", DefaultPrettyPrint)
	client := NewClient(v.GetBool("pretty-print"), logger)
	p.OnFlush(BackendName, client.Flush)
	p.OnStatus(BackendName, client.Status)
	return nil
}

// NewClient creates a Client.
func NewClient(prettyPrint bool, logger logrus.FieldLogger) *Client {
	return &Client{
		prettyPrint: prettyPrint,
		logger:      logger,
	}
}

// Flush logs the derived statistics of the bundle, and the raw families if prettyPrint is set.
func (c *Client) Flush(ctx context.Context, ts time.Time, bundle *statsagg.MetricsBundle) {
	atomic.AddUint64(&c.flushes, 1)
	fields := logrus.Fields{
		"timestamp":     ts.Unix(),
		"counter_rates": bundle.CounterRates,
		"timer_data":    bundle.TimerData,
		"pctThreshold":  bundle.PercentThresholds,
	}
	if c.prettyPrint {
		sets := make(map[string][]string, len(bundle.Sets))
		for key, set := range bundle.Sets {
			sets[key] = set.Values()
		}
		fields["counters"] = bundle.Counters
		fields["timers"] = bundle.Timers
		fields["gauges"] = bundle.Gauges
		fields["sets"] = sets
	}
	c.logger.WithFields(fields).Info("Flushing stats")
}

// Status reports the number of flushes logged so far.
func (c *Client) Status(ctx context.Context, report statsagg.StatusReporter) {
	report(nil, BackendName, "flushes", float64(atomic.LoadUint64(&c.flushes)))
}
