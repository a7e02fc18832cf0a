package graphite

import (
	"bytes"
	"context"
	"fmt"
	"net"
	"strconv"
	"strings"
	"sync"
	"time"

	"github.com/cenkalti/backoff"
	"github.com/sirupsen/logrus"
	"github.com/spf13/viper"
	"github.com/tilinna/clock"

	"github.com/atlassian/statsagg"
	"github.com/atlassian/statsagg/internal/util"
	"github.com/atlassian/statsagg/pkg/pool"
)

const (
	// BackendName is the name of this backend.
	BackendName = "graphite"
	// DefaultAddress is the default address of Graphite server.
	DefaultAddress = "localhost:2003"
	// DefaultDialTimeout is the default net.Dial timeout.
	DefaultDialTimeout = 5 * time.Second
	// DefaultWriteTimeout is the default socket write timeout.
	DefaultWriteTimeout = 30 * time.Second
	// DefaultGlobalPrefix is the default global prefix.
	DefaultGlobalPrefix = "stats"
	// DefaultPrefixCounter is the default counters prefix.
	DefaultPrefixCounter = "counters"
	// DefaultPrefixTimer is the default timers prefix.
	DefaultPrefixTimer = "timers"
	// DefaultPrefixGauge is the default gauges prefix.
	DefaultPrefixGauge = "gauges"
	// DefaultPrefixSet is the default sets prefix.
	DefaultPrefixSet = "sets"
	// DefaultGlobalSuffix is the default global suffix.
	DefaultGlobalSuffix = ""
	// DefaultMode controls whether to use the legacy namespace or the configurable one.
	DefaultMode = "legacy"
)

// legacyCounterCounts is the namespace of raw counter values in legacy mode.
const legacyCounterCounts = "stats_counts"

// Client sends every flushed bundle to a Graphite server's TCP line interface.
// The connection is kept open between flushes and re-dialled with backoff after a failure.
type Client struct {
	address          string
	dialTimeout      time.Duration
	writeTimeout     time.Duration
	counterNamespace string // all strings have . stripped off start and end, and are normalized.
	timerNamespace   string
	gaugesNamespace  string
	setsNamespace    string
	globalSuffix     string
	legacyNamespace  bool
	backoff          util.BackoffFactory
	dial             func(network, address string, timeout time.Duration) (net.Conn, error)
	buffers          *pool.BytesBuffer
	logger           logrus.FieldLogger

	connMu sync.Mutex
	conn   net.Conn

	statsMu sync.Mutex
	stats   stats
}

type stats struct {
	lastFlush     int64 // Unix seconds of the last successful flush
	lastException int64 // Unix seconds of the last failed flush
	flushTime     int64 // Milliseconds the last successful flush took
	flushLength   int   // Bytes sent by the last successful flush
}

// Init creates a Client from the graphite section and subscribes it to p.
func Init(startup time.Time, v *viper.Viper, logger logrus.FieldLogger, p statsagg.Publisher) error {
	client, err := NewClientFromViper(v, logger)
	if err != nil {
		return err
	}
	client.stats.lastFlush = startup.Unix()
	client.stats.lastException = startup.Unix()
	p.OnFlush(BackendName, client.Flush)
	p.OnStatus(BackendName, client.Status)
	return nil
}

// NewClientFromViper constructs a Client object using configuration provided by Viper
func NewClientFromViper(g *viper.Viper, logger logrus.FieldLogger) (*Client, error) {
	g.SetDefault("address", DefaultAddress)
	g.SetDefault("dial-timeout", DefaultDialTimeout)
	g.SetDefault("write-timeout", DefaultWriteTimeout)
	g.SetDefault("global-prefix", DefaultGlobalPrefix)
	g.SetDefault("prefix-counter", DefaultPrefixCounter)
	g.SetDefault("prefix-timer", DefaultPrefixTimer)
	g.SetDefault("prefix-gauge", DefaultPrefixGauge)
	g.SetDefault("prefix-set", DefaultPrefixSet)
	g.SetDefault("global-suffix", DefaultGlobalSuffix)
	g.SetDefault("mode", DefaultMode)
	bf, err := util.GetRetryFromViper(g)
	if err != nil {
		return nil, fmt.Errorf("[%s] %v", BackendName, err)
	}
	return NewClient(
		g.GetString("address"),
		g.GetDuration("dial-timeout"),
		g.GetDuration("write-timeout"),
		g.GetString("global-prefix"),
		g.GetString("prefix-counter"),
		g.GetString("prefix-timer"),
		g.GetString("prefix-gauge"),
		g.GetString("prefix-set"),
		g.GetString("global-suffix"),
		g.GetString("mode"),
		bf,
		logger,
	)
}

// NewClient constructs a Graphite backend object.
func NewClient(
	address string,
	dialTimeout time.Duration,
	writeTimeout time.Duration,
	globalPrefix string,
	prefixCounter string,
	prefixTimer string,
	prefixGauge string,
	prefixSet string,
	globalSuffix string,
	mode string,
	bf util.BackoffFactory,
	logger logrus.FieldLogger,
) (*Client, error) {
	if address == "" {
		return nil, fmt.Errorf("[%s] address is required", BackendName)
	}
	if dialTimeout <= 0 {
		return nil, fmt.Errorf("[%s] dialTimeout should be positive", BackendName)
	}
	if writeTimeout < 0 {
		return nil, fmt.Errorf("[%s] writeTimeout should be non-negative", BackendName)
	}

	var counterNamespace, timerNamespace, gaugesNamespace, setsNamespace string
	var legacyNamespace bool
	switch mode {
	case "legacy":
		legacyNamespace = true
		counterNamespace = globalPrefix
		timerNamespace = combine(globalPrefix, "timers")
		gaugesNamespace = combine(globalPrefix, "gauges")
		setsNamespace = combine(globalPrefix, "sets")
	case "basic":
		counterNamespace = combine(globalPrefix, prefixCounter)
		timerNamespace = combine(globalPrefix, prefixTimer)
		gaugesNamespace = combine(globalPrefix, prefixGauge)
		setsNamespace = combine(globalPrefix, prefixSet)
	default:
		return nil, fmt.Errorf("[%s] mode must be one of 'legacy' or 'basic'", BackendName)
	}

	client := &Client{
		address:          address,
		dialTimeout:      dialTimeout,
		writeTimeout:     writeTimeout,
		counterNamespace: normalizeNamespace(counterNamespace),
		timerNamespace:   normalizeNamespace(timerNamespace),
		gaugesNamespace:  normalizeNamespace(gaugesNamespace),
		setsNamespace:    normalizeNamespace(setsNamespace),
		globalSuffix:     normalizeNamespace(globalSuffix),
		legacyNamespace:  legacyNamespace,
		backoff:          bf,
		dial:             net.DialTimeout,
		buffers:          pool.NewBytesBuffer(),
		logger:           logger,
	}

	logger.WithFields(logrus.Fields{
		"address":           address,
		"dial-timeout":      dialTimeout,
		"write-timeout":     writeTimeout,
		"counter-namespace": client.counterNamespace,
		"timer-namespace":   client.timerNamespace,
		"gauges-namespace":  client.gaugesNamespace,
		"sets-namespace":    client.setsNamespace,
		"global-suffix":     client.globalSuffix,
		"mode":              mode,
	}).Info("created backend")

	return client, nil
}

// Flush renders the bundle and delivers it, retrying with backoff. It returns once the payload
// is delivered or the retries are exhausted.
func (client *Client) Flush(ctx context.Context, ts time.Time, bundle *statsagg.MetricsBundle) {
	clck := clock.FromContext(ctx)
	start := clck.Now()
	buf := client.preparePayload(bundle, ts)
	defer client.buffers.Put(buf)

	err := client.send(ctx, buf.Bytes())

	client.statsMu.Lock()
	defer client.statsMu.Unlock()
	if err != nil {
		client.stats.lastException = ts.Unix()
		client.logger.WithError(err).Error("Failed to send metrics")
		return
	}
	client.stats.lastFlush = ts.Unix()
	client.stats.flushTime = clck.Now().Sub(start).Milliseconds()
	client.stats.flushLength = buf.Len()
}

// Status reports the delivery statistics of the backend.
func (client *Client) Status(ctx context.Context, report statsagg.StatusReporter) {
	client.statsMu.Lock()
	s := client.stats
	client.statsMu.Unlock()
	report(nil, BackendName, "last_flush", float64(s.lastFlush))
	report(nil, BackendName, "last_exception", float64(s.lastException))
	report(nil, BackendName, "flush_time", float64(s.flushTime))
	report(nil, BackendName, "flush_length", float64(s.flushLength))
}

// Close drops the cached connection.
func (client *Client) Close() error {
	client.connMu.Lock()
	defer client.connMu.Unlock()
	return client.closeConn()
}

func (client *Client) send(ctx context.Context, payload []byte) error {
	client.connMu.Lock()
	defer client.connMu.Unlock()

	bo := backoff.WithContext(client.backoff(), ctx)
	return backoff.RetryNotify(func() error {
		return client.write(payload)
	}, bo, func(err error, d time.Duration) {
		client.logger.WithError(err).Warnf("Failed to send metrics, retrying in %v", d)
	})
}

// write sends payload on the cached connection, dialling if needed. Must be called with connMu held.
func (client *Client) write(payload []byte) error {
	if client.conn == nil {
		conn, err := client.dial("tcp", client.address, client.dialTimeout)
		if err != nil {
			return err
		}
		client.conn = conn
	}
	if client.writeTimeout > 0 {
		if err := client.conn.SetWriteDeadline(time.Now().Add(client.writeTimeout)); err != nil {
			client.logger.WithError(err).Warn("Failed to set write deadline")
		}
	}
	if _, err := client.conn.Write(payload); err != nil {
		if closeErr := client.closeConn(); closeErr != nil {
			client.logger.WithError(closeErr).Debug("Failed to close connection")
		}
		return err
	}
	return nil
}

func (client *Client) closeConn() error {
	if client.conn == nil {
		return nil
	}
	err := client.conn.Close()
	client.conn = nil
	return err
}

// prepareName joins namespace, key, the optional suffix and the global suffix with dots.
func (client *Client) prepareName(namespace, key, suffix string) string {
	var sb strings.Builder
	if namespace != "" {
		sb.WriteString(namespace)
		sb.WriteByte('.')
	}
	sb.WriteString(key)
	if suffix != "" {
		sb.WriteByte('.')
		sb.WriteString(suffix)
	}
	if client.globalSuffix != "" {
		sb.WriteByte('.')
		sb.WriteString(client.globalSuffix)
	}
	return sb.String()
}

func writeLine(buf *bytes.Buffer, name string, value float64, now int64) {
	buf.WriteString(name)
	buf.WriteByte(' ')
	buf.WriteString(strconv.FormatFloat(value, 'f', -1, 64))
	buf.WriteByte(' ')
	buf.WriteString(strconv.FormatInt(now, 10))
	buf.WriteByte('\n')
}

func (client *Client) preparePayload(bundle *statsagg.MetricsBundle, ts time.Time) *bytes.Buffer {
	buf := client.buffers.Get()
	now := ts.Unix()
	numStats := 0

	for key, value := range bundle.Counters {
		rate := bundle.CounterRates[key]
		if client.legacyNamespace {
			writeLine(buf, client.prepareName(client.counterNamespace, key, ""), rate, now)
			writeLine(buf, client.prepareName(legacyCounterCounts, key, ""), value, now)
		} else {
			writeLine(buf, client.prepareName(client.counterNamespace, key, "rate"), rate, now)
			writeLine(buf, client.prepareName(client.counterNamespace, key, "count"), value, now)
		}
		numStats++
	}
	for key, timer := range bundle.TimerData {
		writeLine(buf, client.prepareName(client.timerNamespace, key, "lower"), timer.Min, now)
		writeLine(buf, client.prepareName(client.timerNamespace, key, "upper"), timer.Max, now)
		writeLine(buf, client.prepareName(client.timerNamespace, key, "count"), float64(timer.Count), now)
		writeLine(buf, client.prepareName(client.timerNamespace, key, "count_ps"), timer.PerSecond, now)
		writeLine(buf, client.prepareName(client.timerNamespace, key, "mean"), timer.Mean, now)
		writeLine(buf, client.prepareName(client.timerNamespace, key, "median"), timer.Median, now)
		writeLine(buf, client.prepareName(client.timerNamespace, key, "std"), timer.StdDev, now)
		writeLine(buf, client.prepareName(client.timerNamespace, key, "sum"), timer.Sum, now)
		writeLine(buf, client.prepareName(client.timerNamespace, key, "sum_squares"), timer.SumSquares, now)
		for _, pct := range timer.Percentiles {
			writeLine(buf, client.prepareName(client.timerNamespace, key, pct.Str), pct.Float, now)
		}
		numStats++
	}
	for key, value := range bundle.Gauges {
		writeLine(buf, client.prepareName(client.gaugesNamespace, key, ""), value, now)
		numStats++
	}
	for key, set := range bundle.Sets {
		writeLine(buf, client.prepareName(client.setsNamespace, key, "count"), float64(len(set)), now)
		numStats++
	}
	writeLine(buf, client.prepareName(client.counterNamespace, "statsd.numStats", ""), float64(numStats), now)
	return buf
}

// normalizeNamespace trims surrounding dots and sanitizes every segment of a namespace.
func normalizeNamespace(ns string) string {
	return statsagg.SanitizeKey(strings.Trim(ns, "."))
}

func combine(prefix, suffix string) string {
	prefix = strings.Trim(prefix, ".")
	suffix = strings.Trim(suffix, ".")
	if prefix != "" && suffix != "" {
		return prefix + "." + suffix
	}
	if prefix != "" {
		return prefix
	}
	return suffix
}
