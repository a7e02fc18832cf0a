package statsagg

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestMetricString(t *testing.T) {
	types := []MetricType{COUNTER, TIMER, SET, GAUGE, 42}
	names := []string{"counter", "timer", "set", "gauge", "unknown"}
	for idx, name := range names {
		require.Equal(t, name, types[idx].String())
	}
}

func TestTypeFromTag(t *testing.T) {
	t.Parallel()
	input := map[string]MetricType{
		"ms": TIMER,
		"g":  GAUGE,
		"s":  SET,
		"c":  COUNTER,
		"h":  COUNTER,
		"":   COUNTER,
	}
	for tag, expected := range input {
		assert.Equal(t, expected, TypeFromTag(tag), tag)
	}
}

func TestSampleWeight(t *testing.T) {
	t.Parallel()
	assert.Equal(t, 1.0, (&Sample{Rate: 1}).Weight())
	assert.Equal(t, 2.0, (&Sample{Rate: 0.5}).Weight())
	assert.Equal(t, 10.0, (&Sample{Rate: 0.1}).Weight())
	assert.Equal(t, 1.0, (&Sample{}).Weight())
}
