package statsd

import (
	"context"
	"math/rand"
	"runtime"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/sirupsen/logrus"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/atlassian/statsagg"
	"github.com/atlassian/statsagg/internal/fixtures"
	"github.com/atlassian/statsagg/pkg/fakesocket"
	"github.com/atlassian/statsagg/pkg/ready"
)

// TestStatsaggThroughput emulates the daemon using fake network sockets and a counting
// backend to measure throughput.
func TestStatsaggThroughput(t *testing.T) {
	rand.Seed(time.Now().UnixNano())
	var memStatsStart, memStatsFinish runtime.MemStats
	runtime.ReadMemStats(&memStatsStart)

	backend := &countingBackend{}
	hub := NewHub(logrus.StandardLogger())
	hub.OnFlush("counting", backend.flush)
	s := NewServer(NewStore(time.Now(), false), hub, logrus.StandardLogger())
	s.ConsoleAddr = ""
	s.FlushInterval = 100 * time.Millisecond
	s.ConnPerReader = false
	s.KeyFlushInterval = 0

	ctx, cancelFunc := context.WithTimeout(context.Background(), 2*time.Second)
	defer cancelFunc()
	start := time.Now()
	err := s.RunWithCustomSocket(ctx, fakesocket.Factory)
	if err != nil && err != context.Canceled && err != context.DeadlineExceeded {
		t.Errorf("statsagg run failed: %v", err)
	}
	duration := float64(time.Since(start)) / float64(time.Second)

	runtime.ReadMemStats(&memStatsFinish)
	totalAlloc := memStatsFinish.TotalAlloc - memStatsStart.TotalAlloc
	numMetrics := atomic.LoadUint64(&backend.metrics)
	require.NotZero(t, numMetrics)
	assert.NotZero(t, hub.Flushes())
	t.Logf(`Processed metrics: %d (%f per second)
	TotalAlloc: %d (%d per metric)
	NumGC: %d`,
		numMetrics, float64(numMetrics)/duration,
		totalAlloc, totalAlloc/numMetrics,
		memStatsFinish.NumGC-memStatsStart.NumGC)
}

func TestServerRunsRunnables(t *testing.T) {
	t.Parallel()
	hub := NewHub(fixtures.NewTestLogger(t))
	s := NewServer(NewStore(time.Now(), false), hub, fixtures.NewTestLogger(t))
	s.ConsoleAddr = "127.0.0.1:0"
	s.KeyFlushInterval = time.Hour
	s.Debug = true
	started := make(chan struct{})
	s.Runnables = append(s.Runnables, func(ctx context.Context) {
		close(started)
		<-ctx.Done()
	})

	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	done := make(chan error, 1)
	go func() {
		done <- s.RunWithCustomSocket(ctx, fakesocket.Factory)
	}()
	select {
	case <-started:
	case <-ctx.Done():
		t.Fatal("runnable not started")
	}
	cancel()
	assert.Equal(t, context.Canceled, <-done)
}

func TestServerSignalsReady(t *testing.T) {
	t.Parallel()
	s := NewServer(NewStore(time.Now(), false), NewHub(fixtures.NewTestLogger(t)), fixtures.NewTestLogger(t))
	s.ConsoleAddr = "127.0.0.1:0"

	var wg sync.WaitGroup
	wg.Add(1)
	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	done := make(chan error, 1)
	go func() {
		done <- s.RunWithCustomSocket(ready.WithWaitGroup(ctx, &wg), fakesocket.Factory)
	}()
	wg.Wait()
	require.NoError(t, ctx.Err())
	cancel()
	assert.Equal(t, context.Canceled, <-done)
}

func TestServerRejectsBadConfig(t *testing.T) {
	t.Parallel()
	s := NewServer(NewStore(time.Now(), false), NewHub(fixtures.NewTestLogger(t)), fixtures.NewTestLogger(t))
	s.FlushInterval = 0
	assert.Error(t, s.RunWithCustomSocket(context.Background(), fakesocket.Factory))
	s.FlushInterval = time.Second
	s.MaxReaders = 0
	assert.Error(t, s.RunWithCustomSocket(context.Background(), fakesocket.Factory))
	s.MaxReaders = 1
	s.Hub = nil
	assert.Error(t, s.RunWithCustomSocket(context.Background(), fakesocket.Factory))
}

type countingBackend struct {
	metrics uint64
}

func (cb *countingBackend) flush(ctx context.Context, ts time.Time, bundle *statsagg.MetricsBundle) {
	atomic.AddUint64(&cb.metrics, uint64(bundle.NumMetrics()))
}
