package statsd

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/tilinna/clock"

	"github.com/atlassian/statsagg"
	"github.com/atlassian/statsagg/internal/fixtures"
)

func TestFlusherFlush(t *testing.T) {
	t.Parallel()
	store := newTestStore(false)
	hub := NewHub(fixtures.NewTestLogger(t))
	var got *statsagg.MetricsBundle
	var gotTs time.Time
	hub.OnFlush("test", func(ctx context.Context, ts time.Time, b *statsagg.MetricsBundle) {
		gotTs = ts
		got = b
	})
	apply(store, time.Unix(1000, 0), "a:1|c", "b:2|ms")

	f := NewMetricFlusher(10*time.Second, []float64{90}, store, hub, fixtures.NewTestLogger(t))
	ctx := clock.Context(context.Background(), clock.NewMock(time.Unix(1010, 600*int64(time.Millisecond))))
	f.Flush(ctx)
	hub.Wait()

	require.NotNil(t, got)
	assert.EqualValues(t, 1011, gotTs.Unix())
	assert.Equal(t, []float64{90}, got.PercentThresholds)
	assert.Equal(t, 10*time.Second, got.FlushInterval)
	assert.Equal(t, 0.1, got.CounterRates["a"])
	require.Contains(t, got.TimerData, "b")
	assert.Equal(t, 1, got.TimerData["b"].Count)
	assert.Zero(t, store.Counters()["a"])
}

func TestFlusherRun(t *testing.T) {
	t.Parallel()
	store := newTestStore(false)
	hub := NewHub(fixtures.NewTestLogger(t))
	flushed := make(chan float64, 10)
	hub.OnFlush("test", func(ctx context.Context, ts time.Time, b *statsagg.MetricsBundle) {
		flushed <- b.Counters["a"]
	})
	apply(store, time.Unix(1, 0), "a:3|c")

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	mockClock := clock.NewMock(time.Unix(1, 0))
	ctx = clock.Context(ctx, mockClock)

	f := NewMetricFlusher(time.Second, nil, store, hub, fixtures.NewTestLogger(t))
	done := make(chan struct{})
	go func() {
		defer close(done)
		f.Run(ctx)
	}()

	fixtures.NextStep(ctx, mockClock)
	select {
	case v := <-flushed:
		assert.Equal(t, 3.0, v)
	case <-ctx.Done():
		t.Fatal("no flush")
	}
	cancel()
	<-done
	assert.EqualValues(t, 1, hub.Flushes())
}
