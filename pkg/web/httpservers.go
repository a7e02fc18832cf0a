package web

import (
	"context"
	"expvar"
	"fmt"
	"net"
	"net/http"
	"strings"
	"time"

	"github.com/gorilla/mux"
	"github.com/sirupsen/logrus"
	"github.com/spf13/viper"

	"github.com/atlassian/statsagg/internal/util"
	"github.com/atlassian/statsagg/pkg/statsd"
)

// DefaultFlushAgeFactor is how many flush intervals may pass without a flush before the
// healthcheck fails.
const DefaultFlushAgeFactor = 3

// HttpServer serves the HTTP flavour of the management console, healthchecks and
// optionally profiling endpoints.
type HttpServer struct {
	logger  logrus.FieldLogger
	address string
	Router  *mux.Router
}

type route struct {
	path    string
	handler http.HandlerFunc
	method  string
	name    string
}

var done = struct{}{}

// NewHttpServerFromViper creates an HttpServer listening on address, configured from the web section of v.
func NewHttpServerFromViper(
	v *viper.Viper,
	logger logrus.FieldLogger,
	address string,
	flushInterval time.Duration,
	startup time.Time,
	store *statsd.Store,
	hub *statsd.Hub,
) (*HttpServer, error) {
	vSub := util.GetSubViper(v, "web")
	vSub.SetDefault("enable-prof", false)
	vSub.SetDefault("enable-expvar", false)
	vSub.SetDefault("max-flush-age", DefaultFlushAgeFactor*flushInterval)

	return NewHttpServer(
		logger.WithField("component", "web"),
		startup,
		store,
		hub,
		address,
		vSub.GetBool("enable-prof"),
		vSub.GetBool("enable-expvar"),
		vSub.GetDuration("max-flush-age"),
	)
}

// NewHttpServer creates an HttpServer.
func NewHttpServer(
	logger logrus.FieldLogger,
	startup time.Time,
	store *statsd.Store,
	hub *statsd.Hub,
	address string,
	enableProf,
	enableExpVar bool,
	maxFlushAge time.Duration,
) (*HttpServer, error) {
	if maxFlushAge <= 0 {
		return nil, fmt.Errorf("max-flush-age must be positive")
	}

	server := &HttpServer{
		logger:  logger,
		address: address,
	}

	console := &consoleHandler{
		startup: startup,
		store:   store,
		hub:     hub,
		logger:  logger,
	}
	hc := &healthChecker{
		logger:      logger,
		startup:     startup,
		hub:         hub,
		maxFlushAge: maxFlushAge,
	}
	routes := []route{
		{path: "/counters", handler: console.counters, method: "GET", name: "counters_get"},
		{path: "/timers", handler: console.timers, method: "GET", name: "timers_get"},
		{path: "/gauges", handler: console.gauges, method: "GET", name: "gauges_get"},
		{path: "/sets", handler: console.sets, method: "GET", name: "sets_get"},
		{path: "/stats", handler: console.stats, method: "GET", name: "stats_get"},
		{path: "/{family:counters|timers|gauges|sets}/{key}", handler: console.delete, method: "DELETE", name: "metric_delete"},
		{path: "/healthcheck", handler: hc.healthCheck, method: "GET", name: "healthcheck_get"},
		{path: "/deepcheck", handler: hc.deepCheck, method: "GET", name: "deepcheck_get"},
	}

	if enableProf {
		profiler := &traceProfiler{}
		routes = append(routes,
			route{path: "/memprof", handler: profiler.MemProf, method: "POST", name: "profmem_post"},
			route{path: "/pprof", handler: profiler.PProf, method: "POST", name: "profpprof_post"},
			route{path: "/trace", handler: profiler.Trace, method: "POST", name: "proftrace_post"},
		)
	}

	if enableExpVar {
		routes = append(routes,
			route{path: "/expvar", handler: expvar.Handler().ServeHTTP, method: "GET", name: "expvar_get"},
		)
	}

	router, err := createRoutes(routes)
	if err != nil {
		return nil, err
	}
	router.NotFoundHandler = server.logRequest(http.HandlerFunc(server.notFound))
	router.Use(server.logRequest)
	server.Router = router

	logger.WithFields(logrus.Fields{
		"address":       address,
		"enable-pprof":  enableProf,
		"enable-expvar": enableExpVar,
		"max-flush-age": maxFlushAge,
	}).Info("Created server")

	return server, nil
}

func (hs *HttpServer) notFound(w http.ResponseWriter, req *http.Request) {
	w.WriteHeader(http.StatusNotFound)
	_, _ = w.Write([]byte("not found"))
}

func createRoutes(routes []route) (*mux.Router, error) {
	router := mux.NewRouter()

	for _, route := range routes {
		r := router.HandleFunc(route.path, route.handler).Methods(route.method).Name(route.name)
		if err := r.GetError(); err != nil {
			return nil, fmt.Errorf("error creating route %s: %v", route.name, err)
		}
	}

	return router, nil
}

func (hs *HttpServer) logRequest(handler http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, req *http.Request) {
		logFields := logrus.Fields{
			"srcip": strings.Split(req.RemoteAddr, ":")[0],
			"path":  req.URL.Path,
		}
		if route := mux.CurrentRoute(req); route == nil {
			logFields["method"] = req.Method
		} else {
			logFields["route"] = route.GetName()
		}
		if source := req.Header.Get("X-Forwarded-For"); source != "" {
			logFields["forwarded_for"] = source
		}

		start := time.Now()
		handler.ServeHTTP(w, req)
		dur := time.Since(start)

		logFields["duration"] = float64(dur) / float64(time.Millisecond)
		hs.logger.WithFields(logFields).Debug("request")
	})
}

// Run serves until ctx is done. Handlers see ctx as the base of every request context.
func (hs *HttpServer) Run(ctx context.Context) {
	server := &http.Server{
		Addr:    hs.address,
		Handler: hs.Router,
		BaseContext: func(net.Listener) context.Context {
			return ctx
		},
	}

	chStopped := make(chan struct{}, 1)
	go hs.waitAndStop(ctx, server, chStopped)

	hs.logger.WithField("address", server.Addr).Info("listening")

	err := server.ListenAndServe()
	if err != http.ErrServerClosed {
		hs.logger.WithError(err).Error("web server failed")
		return
	}

	// Wait for graceful shutdown of existing connections
	select {
	case <-chStopped:
	case <-time.After(6 * time.Second):
		hs.logger.Info("timeout waiting for webserver to stop")
	}
}

// waitAndStop will gracefully shut down the Server when the Context passed is cancelled.  It signals
// on chStopped when it is done.  There is no guarantee that it will actually signal, if the server
// does not shutdown.
func (hs *HttpServer) waitAndStop(ctx context.Context, server *http.Server, chStopped chan<- struct{}) {
	<-ctx.Done()

	hs.logger.Info("shutting down web server")
	timeoutCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	err := server.Shutdown(timeoutCtx)
	if err != nil {
		hs.logger.WithError(err).Warn("failed to stop web server")
	}
	chStopped <- done
}
