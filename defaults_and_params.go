package statsagg

import (
	"strconv"
	"strings"
	"time"

	"github.com/spf13/pflag"
)

// DefaultBackends is the list of default backends' names.
var DefaultBackends = []string{"graphite"}

// DefaultPercentThreshold is the default list of applied percentiles.
var DefaultPercentThreshold = []float64{90}

const (
	// DefaultMetricsAddr is the default address on which to listen for metrics.
	DefaultMetricsAddr = ":8125"
	// DefaultConsoleAddr is the default address on which to listen for console sessions.
	DefaultConsoleAddr = ":8126"
	// DefaultWebConsoleAddr is the default address of the web console (disabled).
	DefaultWebConsoleAddr = ""
	// DefaultFlushInterval is the default metrics flush interval.
	DefaultFlushInterval = 10 * time.Second
	// DefaultDeleteCounters is whether counters are deleted rather than zeroed on flush.
	DefaultDeleteCounters = false
	// DefaultMaxReaders is the default number of socket reading goroutines.
	DefaultMaxReaders = 1
	// DefaultConnPerReader is the default for having a socket per reader.
	DefaultConnPerReader = false
	// DefaultReceiveBufferSize is the size of the buffer each reader reads datagrams into.
	DefaultReceiveBufferSize = 65535
	// DefaultMaxConsoleConns is the maximum number of concurrent console sessions.
	DefaultMaxConsoleConns = 64
	// DefaultKeyFlushInterval is the key frequency sampling interval (disabled).
	DefaultKeyFlushInterval = time.Duration(0)
	// DefaultKeyFlushPercent is the share of the most frequent keys written per key flush.
	DefaultKeyFlushPercent = 100
	// DefaultKeyFlushLog is the key frequency log file, empty means stdout.
	DefaultKeyFlushLog = ""
	// DefaultDebug is whether the periodic debug dump is enabled.
	DefaultDebug = false
	// DefaultDebugInterval is the interval of the debug dump.
	DefaultDebugInterval = 10 * time.Second
	// DefaultDumpMessages is whether every received record is logged.
	DefaultDumpMessages = false
	// DefaultBadLinesPerMinute is the limit of bad line log entries per minute.
	DefaultBadLinesPerMinute = 1000
)

const (
	// ParamBackends is the name of parameter with backends.
	ParamBackends = "backends"
	// ParamMetricsAddr is the name of parameter with address on which to listen for metrics.
	ParamMetricsAddr = "metrics-addr"
	// ParamConsoleAddr is the name of parameter with console address.
	ParamConsoleAddr = "console-addr"
	// ParamWebAddr is the name of parameter with the address of the web-based console.
	ParamWebAddr = "web-addr"
	// ParamFlushInterval is the name of parameter with metrics flush interval.
	ParamFlushInterval = "flush-interval"
	// ParamPercentThreshold is the name of parameter with list of applied percentiles.
	ParamPercentThreshold = "percent-threshold"
	// ParamDeleteCounters is the name of parameter switching counters from zeroing to deletion.
	ParamDeleteCounters = "delete-counters"
	// ParamMaxReaders is the name of parameter with number of socket readers.
	ParamMaxReaders = "max-readers"
	// ParamConnPerReader is the name of parameter with whether each reader gets its own socket.
	ParamConnPerReader = "conn-per-reader"
	// ParamReceiveBufferSize is the name of parameter with the datagram buffer size.
	ParamReceiveBufferSize = "receive-buffer-size"
	// ParamMaxConsoleConns is the name of parameter with the console session limit.
	ParamMaxConsoleConns = "max-console-conns"
	// ParamKeyFlushInterval is the name of parameter with the key frequency sampling interval.
	ParamKeyFlushInterval = "key-flush-interval"
	// ParamKeyFlushPercent is the name of parameter with the share of keys written per key flush.
	ParamKeyFlushPercent = "key-flush-percent"
	// ParamKeyFlushLog is the name of parameter with the key frequency log file.
	ParamKeyFlushLog = "key-flush-log"
	// ParamDebug is the name of parameter enabling the debug dump.
	ParamDebug = "debug"
	// ParamDebugInterval is the name of parameter with the debug dump interval.
	ParamDebugInterval = "debug-interval"
	// ParamDumpMessages is the name of parameter enabling the logging of every record.
	ParamDumpMessages = "dump-messages"
	// ParamBadLinesPerMinute is the name of parameter with the bad line log limit.
	ParamBadLinesPerMinute = "bad-lines-per-minute"
)

// AddFlags adds flags to the specified FlagSet.
func AddFlags(fs *pflag.FlagSet) {
	fs.String(ParamMetricsAddr, DefaultMetricsAddr, "Address on which to listen for metrics")
	fs.String(ParamConsoleAddr, DefaultConsoleAddr, "If set, use as the address of the telnet-based console")
	fs.String(ParamWebAddr, DefaultWebConsoleAddr, "If set, use as the address of the web-based console")
	fs.Duration(ParamFlushInterval, DefaultFlushInterval, "How often to flush metrics to the backends")
	fs.Bool(ParamDeleteCounters, DefaultDeleteCounters, "Delete counters on flush instead of resetting them to 0")
	fs.Int(ParamMaxReaders, DefaultMaxReaders, "Maximum number of socket readers")
	fs.Bool(ParamConnPerReader, DefaultConnPerReader, "Create a separate connection per reader (requires system support for reusing addresses)")
	fs.Int(ParamReceiveBufferSize, DefaultReceiveBufferSize, "Size of the buffer datagrams are read into")
	fs.Int(ParamMaxConsoleConns, DefaultMaxConsoleConns, "Maximum number of concurrent console sessions")
	fs.Duration(ParamKeyFlushInterval, DefaultKeyFlushInterval, "How often to write key frequencies (0 to disable)")
	fs.Int(ParamKeyFlushPercent, DefaultKeyFlushPercent, "Percentage of the most frequent keys to write")
	fs.String(ParamKeyFlushLog, DefaultKeyFlushLog, "File to append key frequencies to, stdout if empty")
	fs.Bool(ParamDebug, DefaultDebug, "Periodically log the aggregated state")
	fs.Duration(ParamDebugInterval, DefaultDebugInterval, "How often to log the aggregated state in debug mode")
	fs.Bool(ParamDumpMessages, DefaultDumpMessages, "Log every received record")
	fs.Int(ParamBadLinesPerMinute, DefaultBadLinesPerMinute, "Maximum number of bad lines logged per minute")
	//TODO Remove workaround when https://github.com/spf13/viper/issues/112 is fixed
	// https://github.com/spf13/viper/issues/200
	fs.String(ParamBackends, strings.Join(DefaultBackends, ","), "Comma-separated list of backends")
	fs.String(ParamPercentThreshold, strings.Join(toStringSlice(DefaultPercentThreshold), ","), "Comma-separated list of percentiles")
}

func toStringSlice(fs []float64) []string {
	s := make([]string, len(fs))
	for i, f := range fs {
		s[i] = strconv.FormatFloat(f, 'f', -1, 64)
	}
	return s
}

// ParsePercentThreshold parses a comma separated list of percentiles.
func ParsePercentThreshold(s string) ([]float64, error) {
	var result []float64
	for _, part := range strings.Split(s, ",") {
		part = strings.TrimSpace(part)
		if part == "" {
			continue
		}
		f, err := strconv.ParseFloat(part, 64)
		if err != nil {
			return nil, err
		}
		result = append(result, f)
	}
	return result, nil
}

// SplitList flattens list settings. Items may themselves be comma separated, which is how
// they arrive from flags and environment variables, while config files give proper lists.
func SplitList(items []string) []string {
	var result []string
	for _, item := range items {
		for _, part := range strings.Split(item, ",") {
			if part = strings.TrimSpace(part); part != "" {
				result = append(result, part)
			}
		}
	}
	return result
}
