package fixtures

import (
	"context"
	"testing"
	"time"

	"github.com/tilinna/clock"
)

// NextStep will advance the supplied clock.Mock until it moves, or the context.Context is canceled (which typically
// means it timed out in wall-time).  This is useful when testing things that exist inside goroutines, when it's not
// possible to tell when the goroutine is ready to consume mock time.
func NextStep(ctx context.Context, clck *clock.Mock) {
	for _, d := clck.AddNext(); d == 0 && ctx.Err() == nil; _, d = clck.AddNext() {
		time.Sleep(1) // Allows the system to actually idle, runtime.Gosched() does not.
	}
}

// MockClockContext returns a context carrying a mock clock started at the given unix second.
func MockClockContext(ctx context.Context, sec int64) (context.Context, *clock.Mock) {
	clck := clock.NewMock(time.Unix(sec, 0))
	return clock.Context(ctx, clck), clck
}

// TestContext returns a context that will timeout and fail the test if not canceled. Used to
// enforce a timeout on tests.
func TestContext(tb testing.TB) (context.Context, func()) {
	ctxTest, completeTest := context.WithTimeout(context.Background(), 5*time.Second)
	go func() {
		<-ctxTest.Done()
		if ctxTest.Err() == context.DeadlineExceeded {
			tb.Errorf("test timed out")
		}
	}()
	return ctxTest, completeTest
}
