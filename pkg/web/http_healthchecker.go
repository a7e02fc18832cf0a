package web

import (
	"context"
	"net/http"
	"sort"
	"time"

	jsoniter "github.com/json-iterator/go"
	"github.com/sirupsen/logrus"
	"github.com/tilinna/clock"

	"github.com/atlassian/statsagg/pkg/healthcheck"
	"github.com/atlassian/statsagg/pkg/statsd"
)

type healthChecker struct {
	logger      logrus.FieldLogger
	startup     time.Time
	hub         *statsd.Hub
	maxFlushAge time.Duration
}

func runHealthChecks(checks []healthcheck.HealthcheckFunc) (good []string, bad []string) {
	// Force it render as an array, not null
	good = []string{}
	bad = []string{}
	for _, check := range checks {
		report, isHealthy := check()
		if isHealthy == healthcheck.Healthy {
			good = append(good, report)
		} else {
			bad = append(bad, report)
		}
	}
	return good, bad
}

func respondToHealthChecks(resp http.ResponseWriter, checks []healthcheck.HealthcheckFunc) {
	good, bad := runHealthChecks(checks)
	resp.Header().Set("content-type", "application/json")
	if len(bad) > 0 {
		resp.WriteHeader(http.StatusInternalServerError)
	} else {
		resp.WriteHeader(http.StatusOK)
	}

	enc := jsoniter.NewEncoder(resp)
	_ = enc.Encode(map[string][]string{
		"ok":     good,
		"failed": bad,
	})
}

// healthCheck reports if the daemon is still flushing.
func (hc *healthChecker) healthCheck(resp http.ResponseWriter, req *http.Request) {
	hc.logger.Debug("healthCheck")
	now := clock.FromContext(req.Context()).Now
	respondToHealthChecks(resp, []healthcheck.HealthcheckFunc{
		healthcheck.FlushRecency(hc.startup, hc.hub.LastFlush, now, hc.maxFlushAge),
	})
}

// deepCheck reports if every backend exposing last_flush and last_exception is delivering.
func (hc *healthChecker) deepCheck(resp http.ResponseWriter, req *http.Request) {
	hc.logger.Debug("deepCheck")
	respondToHealthChecks(resp, hc.backendChecks(req.Context()))
}

func (hc *healthChecker) backendChecks(ctx context.Context) []healthcheck.HealthcheckFunc {
	type delivery struct {
		lastFlush, lastException float64
		seen                     int
	}
	backends := map[string]*delivery{}
	hc.hub.EmitStatus(ctx, func(backend, stat string, value float64) {
		d := backends[backend]
		if d == nil {
			d = &delivery{}
			backends[backend] = d
		}
		switch stat {
		case "last_flush":
			d.lastFlush = value
			d.seen++
		case "last_exception":
			d.lastException = value
			d.seen++
		}
	})

	names := make([]string, 0, len(backends))
	for name, d := range backends {
		if d.seen == 2 {
			names = append(names, name)
		}
	}
	sort.Strings(names)

	checks := make([]healthcheck.HealthcheckFunc, 0, len(names))
	for _, name := range names {
		name, d := name, backends[name]
		checks = append(checks, func() (string, healthcheck.HealthyStatus) {
			return healthcheck.BackendDelivery(name, d.lastFlush, d.lastException)
		})
	}
	return checks
}
