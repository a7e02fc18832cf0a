package statsd

import (
	"bytes"
	"context"
	"testing"
	"time"

	"github.com/sirupsen/logrus"
	"github.com/sirupsen/logrus/hooks/test"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/tilinna/clock"

	"github.com/atlassian/statsagg/internal/fixtures"
	"github.com/atlassian/statsagg/pkg/fakesocket"
)

func TestReceiverHandlePacket(t *testing.T) {
	t.Parallel()
	store := newTestStore(false)
	logger, hook := test.NewNullLogger()
	mr := NewMetricReceiver(store, nil, false, 1024, 60, logger)
	ctx := clock.Context(context.Background(), clock.NewMock(time.Unix(1234, 0)))

	mr.HandlePacket(ctx, fakesocket.FakeAddr, fakesocket.FakeMetric)
	mr.HandlePacket(ctx, fakesocket.FakeAddr, []byte("bad\nfoo.bar.baz:1|ms\nx:1|c|@0"))

	counters := store.Counters()
	assert.Equal(t, 4.0, counters["foo.bar.baz"])
	assert.Equal(t, 1.0, counters["bad"])
	assert.NotContains(t, counters, "x")
	assert.Equal(t, 2.0, counters[PacketsReceivedCounter])
	assert.Equal(t, 1.0, counters[BadLinesSeenCounter])
	assert.Equal(t, []float64{320}, store.Timers()["foo.bar.timer"])
	assert.NotContains(t, store.Timers(), "foo.bar.baz")
	assert.Equal(t, 7.0, store.Gauges()["foo.bar.gauge"])
	assert.Equal(t, []string{"joe"}, store.Sets()["foo.bar.users.minutely"].Values())
	assert.Contains(t, store.SuperSets(), "foo.bar.users.minutely")
	stats := store.MessageStats()
	assert.EqualValues(t, 1234, stats.LastMsgSeen)
	assert.EqualValues(t, 1, stats.BadLinesSeen)
	assert.EqualValues(t, 1, stats.FamilyConflicts)

	var warnings []string
	for _, entry := range hook.AllEntries() {
		if entry.Level == logrus.WarnLevel {
			warnings = append(warnings, entry.Message)
		}
	}
	require.Len(t, warnings, 2)
	assert.Contains(t, warnings[0], "Bad line: 1|c|@0")
	assert.Contains(t, warnings[1], "Rejected")
}

func TestReceiverObservesKeys(t *testing.T) {
	t.Parallel()
	store := newTestStore(false)
	kc := NewKeyCounter(time.Second, 100, "", fixtures.NewTestLogger(t))
	out := new(bytes.Buffer)
	kc.stdout = out
	mr := NewMetricReceiver(store, kc, true, 1024, 0, fixtures.NewTestLogger(t))

	mr.HandlePacket(context.Background(), fakesocket.FakeAddr, []byte("a:1|c\na:bad\nb:1|g"))
	require.NoError(t, kc.Flush(time.Unix(0, 0).UTC()))
	assert.Contains(t, out.String(), "count=2 key=a\n")
	assert.Contains(t, out.String(), "count=1 key=b\n")
}

func TestReceiverReceive(t *testing.T) {
	t.Parallel()
	store := newTestStore(false)
	mr := NewMetricReceiver(store, nil, false, 1024, 0, fixtures.NewTestLogger(t))
	c := fakesocket.NewFakePacketConn()

	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	received := make(chan error, 1)
	go func() {
		received <- mr.Receive(ctx, c)
	}()
	for c.Reads() < 10 && ctx.Err() == nil {
		time.Sleep(time.Millisecond)
	}
	cancel()
	require.NoError(t, c.Close())
	assert.NoError(t, <-received)
	assert.True(t, store.Counters()[PacketsReceivedCounter] >= 10)
}

func TestReceiverReceiveClosed(t *testing.T) {
	t.Parallel()
	mr := NewMetricReceiver(newTestStore(false), nil, false, 1024, 0, fixtures.NewTestLogger(t))
	c := fakesocket.NewFakePacketConn()
	require.NoError(t, c.Close())
	assert.Error(t, mr.Receive(context.Background(), c))
}

func BenchmarkHandlePacket(b *testing.B) {
	store := NewStore(time.Unix(0, 0), false)
	mr := NewMetricReceiver(store, nil, false, 1024, 0, fixtures.NewTestLogger(b))
	ctx := context.Background()
	b.ReportAllocs()
	b.ResetTimer()
	for n := 0; n < b.N; n++ {
		mr.HandlePacket(ctx, fakesocket.FakeAddr, fakesocket.FakeMetric)
	}
}
