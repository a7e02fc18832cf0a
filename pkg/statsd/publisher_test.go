package statsd

import (
	"context"
	"errors"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/tilinna/clock"

	"github.com/atlassian/statsagg"
	"github.com/atlassian/statsagg/internal/fixtures"
)

func TestHubEmitFlushReachesEverySubscriber(t *testing.T) {
	t.Parallel()
	hub := NewHub(fixtures.NewTestLogger(t))
	calls := make(chan string, 3)
	bundle := &statsagg.MetricsBundle{}
	ts := time.Unix(1234, 0)
	for _, name := range []string{"first", "second", "third"} {
		name := name
		hub.OnFlush(name, func(ctx context.Context, got time.Time, b *statsagg.MetricsBundle) {
			assert.Equal(t, ts, got)
			assert.Same(t, bundle, b)
			calls <- name
		})
	}

	hub.EmitFlush(context.Background(), ts, bundle)
	hub.Wait()
	close(calls)
	var names []string
	for name := range calls {
		names = append(names, name)
	}
	assert.ElementsMatch(t, []string{"first", "second", "third"}, names)
	assert.Equal(t, ts, hub.LastFlush())
	assert.EqualValues(t, 1, hub.Flushes())
}

func TestHubEmitFlushDoesNotWaitForSlowBackend(t *testing.T) {
	t.Parallel()
	hub := NewHub(fixtures.NewTestLogger(t))
	release := make(chan struct{})
	var slowCalls int32
	hub.OnFlush("slow", func(context.Context, time.Time, *statsagg.MetricsBundle) {
		atomic.AddInt32(&slowCalls, 1)
		<-release
	})
	fast := make(chan time.Time, 2)
	hub.OnFlush("fast", func(ctx context.Context, ts time.Time, b *statsagg.MetricsBundle) {
		fast <- ts
	})

	store := newTestStore(false)
	f := NewMetricFlusher(10*time.Second, nil, store, hub, fixtures.NewTestLogger(t))
	mockClock := clock.NewMock(time.Unix(1000, 0))
	ctx := clock.Context(context.Background(), mockClock)

	flushed := make(chan struct{})
	go func() {
		defer close(flushed)
		f.Flush(ctx)
		mockClock.Add(10 * time.Second)
		f.Flush(ctx)
	}()
	select {
	case <-flushed:
	case <-time.After(5 * time.Second):
		t.Fatal("Flush blocked on a slow backend")
	}
	for _, want := range []int64{1000, 1010} {
		select {
		case ts := <-fast:
			assert.EqualValues(t, want, ts.Unix())
		case <-time.After(5 * time.Second):
			t.Fatal("fast backend was not flushed")
		}
	}
	assert.EqualValues(t, 2, hub.Flushes())
	assert.EqualValues(t, 1010, hub.LastFlush().Unix())

	close(release)
	hub.Wait()
	// The second bundle was skipped for the backend that was still busy
	assert.EqualValues(t, 1, atomic.LoadInt32(&slowCalls))
}

func TestHubEmitStatusSkipsErrors(t *testing.T) {
	t.Parallel()
	hub := NewHub(fixtures.NewTestLogger(t))
	hub.OnStatus("graphite", func(ctx context.Context, report statsagg.StatusReporter) {
		report(nil, "graphite", "last_flush", 10)
		report(errors.New("boom"), "graphite", "flush_time", 0)
	})
	hub.OnStatus("console", func(ctx context.Context, report statsagg.StatusReporter) {
		report(nil, "console", "lines", 2)
	})

	type stat struct {
		backend, name string
		value         float64
	}
	var stats []stat
	hub.EmitStatus(context.Background(), func(backend, name string, value float64) {
		stats = append(stats, stat{backend, name, value})
	})
	assert.Equal(t, []stat{
		{"graphite", "last_flush", 10},
		{"console", "lines", 2},
	}, stats)
}

func TestHubBackends(t *testing.T) {
	t.Parallel()
	hub := NewHub(fixtures.NewTestLogger(t))
	noFlush := func(context.Context, time.Time, *statsagg.MetricsBundle) {}
	noStatus := func(context.Context, statsagg.StatusReporter) {}
	hub.OnFlush("graphite", noFlush)
	hub.OnStatus("graphite", noStatus)
	hub.OnStatus("redis", noStatus)
	hub.OnFlush("console", noFlush)
	assert.Equal(t, []string{"graphite", "console", "redis"}, hub.Backends())
}
