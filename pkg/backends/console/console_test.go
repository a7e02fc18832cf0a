package console

import (
	"context"
	"testing"
	"time"

	"github.com/sirupsen/logrus"
	"github.com/sirupsen/logrus/hooks/test"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/atlassian/statsagg"
)

func testBundle() *statsagg.MetricsBundle {
	set := statsagg.NewSet()
	set.Insert("a")
	return &statsagg.MetricsBundle{
		Counters:          statsagg.Counters{"c": 10},
		CounterRates:      statsagg.CounterRates{"c": 1},
		Timers:            statsagg.Timers{"t": {1}},
		Gauges:            statsagg.Gauges{"g": 2},
		Sets:              statsagg.Sets{"s": set},
		TimerData:         map[string]*statsagg.TimerData{"t": {Count: 1}},
		PercentThresholds: []float64{90},
	}
}

func TestFlushLogsBundle(t *testing.T) {
	t.Parallel()
	logger, hook := test.NewNullLogger()
	c := NewClient(false, logger)
	c.Flush(context.Background(), time.Unix(100, 0), testBundle())

	entry := hook.LastEntry()
	require.NotNil(t, entry)
	assert.Equal(t, logrus.InfoLevel, entry.Level)
	assert.EqualValues(t, 100, entry.Data["timestamp"])
	assert.Equal(t, statsagg.CounterRates{"c": 1}, entry.Data["counter_rates"])
	assert.NotContains(t, entry.Data, "counters")
}

func TestFlushPrettyPrint(t *testing.T) {
	t.Parallel()
	logger, hook := test.NewNullLogger()
	c := NewClient(true, logger)
	c.Flush(context.Background(), time.Unix(100, 0), testBundle())

	entry := hook.LastEntry()
	require.NotNil(t, entry)
	assert.Equal(t, statsagg.Counters{"c": 10}, entry.Data["counters"])
	assert.Equal(t, map[string][]string{"s": {"a"}}, entry.Data["sets"])
}

func TestStatus(t *testing.T) {
	t.Parallel()
	logger, _ := test.NewNullLogger()
	c := NewClient(false, logger)
	c.Flush(context.Background(), time.Unix(100, 0), testBundle())
	c.Flush(context.Background(), time.Unix(110, 0), testBundle())

	var got float64
	c.Status(context.Background(), func(err error, backend, stat string, value float64) {
		assert.NoError(t, err)
		assert.Equal(t, BackendName, backend)
		assert.Equal(t, "flushes", stat)
		got = value
	})
	assert.Equal(t, 2.0, got)
}
