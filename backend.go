package statsagg

import (
	"context"
	"time"

	"github.com/sirupsen/logrus"
	"github.com/spf13/viper"
)

// FlushHandler is invoked once per flush cycle with the interval timestamp and the bundle.
// It must not mutate the bundle, other backends receive the same one.
type FlushHandler func(ctx context.Context, ts time.Time, bundle *MetricsBundle)

// StatusReporter accepts one status line from a backend. A non-nil err is logged against
// the backend and the stat is skipped.
type StatusReporter func(err error, backend, stat string, value float64)

// StatusHandler is invoked when somebody asks for the daemon's status, e.g. the console's
// stats command. Handlers call report once per stat they want to expose.
type StatusHandler func(ctx context.Context, report StatusReporter)

// Publisher is what a backend subscribes to.
type Publisher interface {
	// OnFlush registers a handler for the flush signal.
	OnFlush(backend string, h FlushHandler)
	// OnStatus registers a handler for the status signal.
	OnStatus(backend string, h StatusHandler)
}

// BackendInitFunc initialises a backend. It receives the daemon start time, the backend's own
// configuration section and the publisher to subscribe to. Returning an error aborts startup.
type BackendInitFunc func(startup time.Time, v *viper.Viper, logger logrus.FieldLogger, p Publisher) error
