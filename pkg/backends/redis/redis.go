package redis

import (
	"context"
	"fmt"
	"sync"
	"time"

	"github.com/go-redis/redis/v8"
	jsoniter "github.com/json-iterator/go"
	"github.com/sirupsen/logrus"
	"github.com/spf13/viper"

	"github.com/atlassian/statsagg"
)

const (
	// BackendName is the name of this backend.
	BackendName = "redis"
	// DefaultAddress is the default address of the Redis server.
	DefaultAddress = "127.0.0.1:6379"
	// DefaultKey is the default list the history is pushed to.
	DefaultKey = "statsd:history"
	// DefaultHistoryDepth is the default number of bundles kept in the list.
	DefaultHistoryDepth = 9600
	// DefaultTimeout is the default timeout of a single flush.
	DefaultTimeout = 5 * time.Second
)

// dateTimeLayout renders timestamps like a JavaScript Date string.
const dateTimeLayout = "Mon Jan 02 2006 15:04:05 GMT-0700 (MST)"

var json = jsoniter.ConfigCompatibleWithStandardLibrary

// Publish is one entry of the history list.
type Publish struct {
	Counters     map[string]float64            `json:"counters"`
	CounterRates map[string]float64            `json:"counter_rates"`
	Timers       map[string]map[string]float64 `json:"timers"`
	Gauges       map[string]float64            `json:"gauges"`
	Sets         map[string]int                `json:"sets"`
	PctThreshold []float64                     `json:"pctThreshold"`
	TimeStamp    int64                         `json:"timestamp"`
	DateTime     string                        `json:"datetime"`
}

// Client pushes every flushed bundle as JSON onto a capped Redis list, newest first.
type Client struct {
	redis   redis.UniversalClient
	key     string
	depth   int64
	timeout time.Duration
	logger  logrus.FieldLogger

	mu            sync.Mutex
	lastFlush     int64
	lastException int64
}

// Init creates a Client from the redis section and subscribes it to p.
func Init(startup time.Time, v *viper.Viper, logger logrus.FieldLogger, p statsagg.Publisher) error {
	v.SetDefault("address", DefaultAddress)
	v.SetDefault("password", "")
	v.SetDefault("db", 0)
	v.SetDefault("key", DefaultKey)
	v.SetDefault("history-depth", DefaultHistoryDepth)
	v.SetDefault("timeout", DefaultTimeout)

	rc := redis.NewClient(&redis.Options{
		Addr:     v.GetString("address"),
		Password: v.GetString("password"),
		DB:       v.GetInt("db"),
	})
	client, err := NewClient(rc, v.GetString("key"), v.GetInt64("history-depth"), v.GetDuration("timeout"), logger)
	if err != nil {
		return err
	}
	client.lastFlush = startup.Unix()
	client.lastException = startup.Unix()
	p.OnFlush(BackendName, client.Flush)
	p.OnStatus(BackendName, client.Status)
	return nil
}

// NewClient constructs a Redis backend.
func NewClient(rc redis.UniversalClient, key string, depth int64, timeout time.Duration, logger logrus.FieldLogger) (*Client, error) {
	if key == "" {
		return nil, fmt.Errorf("[%s] key is required", BackendName)
	}
	if depth < 1 {
		return nil, fmt.Errorf("[%s] history-depth must be positive", BackendName)
	}
	if timeout <= 0 {
		return nil, fmt.Errorf("[%s] timeout must be positive", BackendName)
	}
	return &Client{
		redis:   rc,
		key:     key,
		depth:   depth,
		timeout: timeout,
		logger:  logger,
	}, nil
}

// Flush pushes the bundle and trims the list to the configured depth.
func (c *Client) Flush(ctx context.Context, ts time.Time, bundle *statsagg.MetricsBundle) {
	err := c.writePayload(ctx, ts, bundle)

	c.mu.Lock()
	defer c.mu.Unlock()
	if err != nil {
		c.lastException = ts.Unix()
		c.logger.WithError(err).Error("Failed to push metrics")
		return
	}
	c.lastFlush = ts.Unix()
}

// Status reports when the backend last succeeded and failed.
func (c *Client) Status(ctx context.Context, report statsagg.StatusReporter) {
	c.mu.Lock()
	lastFlush, lastException := c.lastFlush, c.lastException
	c.mu.Unlock()
	report(nil, BackendName, "last_flush", float64(lastFlush))
	report(nil, BackendName, "last_exception", float64(lastException))
}

func (c *Client) writePayload(ctx context.Context, ts time.Time, bundle *statsagg.MetricsBundle) error {
	payload, err := json.Marshal(preparePayload(bundle, ts))
	if err != nil {
		return err
	}
	ctx, cancel := context.WithTimeout(ctx, c.timeout)
	defer cancel()
	_, err = c.redis.TxPipelined(ctx, func(pipe redis.Pipeliner) error {
		pipe.LPush(ctx, c.key, payload)
		pipe.LTrim(ctx, c.key, 0, c.depth-1)
		return nil
	})
	return err
}

func preparePayload(bundle *statsagg.MetricsBundle, ts time.Time) *Publish {
	p := &Publish{
		Counters:     make(map[string]float64, len(bundle.Counters)),
		CounterRates: make(map[string]float64, len(bundle.CounterRates)),
		Timers:       make(map[string]map[string]float64, len(bundle.TimerData)),
		Gauges:       make(map[string]float64, len(bundle.Gauges)),
		Sets:         make(map[string]int, len(bundle.Sets)),
		PctThreshold: bundle.PercentThresholds,
		TimeStamp:    ts.Unix(),
		DateTime:     ts.Format(dateTimeLayout),
	}
	for key, value := range bundle.Counters {
		p.Counters[key] = value
	}
	for key, value := range bundle.CounterRates {
		p.CounterRates[key] = value
	}
	for key, timer := range bundle.TimerData {
		t := map[string]float64{
			"lower":       timer.Min,
			"upper":       timer.Max,
			"count":       float64(timer.Count),
			"count_ps":    timer.PerSecond,
			"mean":        timer.Mean,
			"median":      timer.Median,
			"std":         timer.StdDev,
			"sum":         timer.Sum,
			"sum_squares": timer.SumSquares,
		}
		for _, pct := range timer.Percentiles {
			t[pct.Str] = pct.Float
		}
		p.Timers[key] = t
	}
	for key, value := range bundle.Gauges {
		p.Gauges[key] = value
	}
	for key, set := range bundle.Sets {
		p.Sets[key] = len(set)
	}
	if p.PctThreshold == nil {
		p.PctThreshold = []float64{}
	}
	return p
}
