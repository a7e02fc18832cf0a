package statsagg

import (
	"fmt"
)

// MetricType is an enumeration of all the possible types of Sample.
type MetricType byte

const (
	_ = iota
	// COUNTER is statsd counter type
	COUNTER MetricType = iota
	// TIMER is statsd timer type
	TIMER
	// GAUGE is statsd gauge type
	GAUGE
	// SET is statsd set type
	SET
)

func (m MetricType) String() string {
	switch m {
	case SET:
		return "set"
	case GAUGE:
		return "gauge"
	case TIMER:
		return "timer"
	case COUNTER:
		return "counter"
	}
	return "unknown"
}

// TypeFromTag maps a wire type tag to a MetricType. Every tag that is not one of the
// timer, gauge or set tags is a counter.
func TypeFromTag(tag string) MetricType {
	switch tag {
	case "ms":
		return TIMER
	case "g":
		return GAUGE
	case "s":
		return SET
	}
	return COUNTER
}

// Sample represents a single parsed value|type[|@rate] group for a key.
type Sample struct {
	Key         string     // Sanitized key
	Type        MetricType // The type of sample
	Value       float64    // The numeric value, already defaulted for the type
	StringValue string     // The raw value, used as the member of a Set
	Rate        float64    // The sampling rate of a counter, above zero
}

func (s *Sample) String() string {
	return fmt.Sprintf("{%s, %s, %f, %s, %f}", s.Type, s.Key, s.Value, s.StringValue, s.Rate)
}

// Weight returns the inverse sampling weight applied to a counter increment.
func (s *Sample) Weight() float64 {
	if s.Rate <= 0 {
		return 1
	}
	return 1 / s.Rate
}
