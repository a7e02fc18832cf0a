package healthcheck

import (
	"fmt"
	"time"
)

// HealthcheckFunc is a function that returns a status message, and if the check if healthy or not (false).
// healthchecks must not block, and downstream dependencies should be reported on via a watchdog style, and not by
// making a roundtrip.
type HealthcheckFunc func() (string, HealthyStatus)

type HealthyStatus bool

const (
	Healthy   = HealthyStatus(true)
	Unhealthy = HealthyStatus(false)
)

// FlushRecency is healthy while the last flush happened within maxAge. A daemon that never
// flushed is given maxAge from startup.
func FlushRecency(startup time.Time, lastFlush func() time.Time, now func() time.Time, maxAge time.Duration) HealthcheckFunc {
	return func() (string, HealthyStatus) {
		last := lastFlush()
		if last.Before(startup) {
			last = startup
		}
		age := now().Sub(last)
		if age > maxAge {
			return fmt.Sprintf("no flush for %v", age.Truncate(time.Second)), Unhealthy
		}
		return fmt.Sprintf("last flush %v ago", age.Truncate(time.Second)), Healthy
	}
}

// BackendDelivery is healthy unless the backend's last failure is more recent than its last
// success. Both are unix seconds.
func BackendDelivery(backend string, lastFlush, lastException float64) (string, HealthyStatus) {
	if lastException > lastFlush {
		return fmt.Sprintf("%s: failing since %d", backend, int64(lastException)), Unhealthy
	}
	return fmt.Sprintf("%s: ok", backend), Healthy
}
