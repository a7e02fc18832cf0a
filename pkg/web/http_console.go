package web

import (
	"net/http"
	"strings"
	"time"

	"github.com/gorilla/mux"
	jsoniter "github.com/json-iterator/go"
	"github.com/sirupsen/logrus"
	"github.com/tilinna/clock"

	"github.com/atlassian/statsagg/pkg/statsd"
)

type consoleHandler struct {
	startup time.Time
	store   *statsd.Store
	hub     *statsd.Hub
	logger  logrus.FieldLogger
}

func (ch *consoleHandler) counters(w http.ResponseWriter, req *http.Request) {
	ch.respond(w, http.StatusOK, ch.store.Counters())
}

func (ch *consoleHandler) timers(w http.ResponseWriter, req *http.Request) {
	ch.respond(w, http.StatusOK, ch.store.Timers())
}

func (ch *consoleHandler) gauges(w http.ResponseWriter, req *http.Request) {
	ch.respond(w, http.StatusOK, ch.store.Gauges())
}

func (ch *consoleHandler) sets(w http.ResponseWriter, req *http.Request) {
	sets := ch.store.Sets()
	dump := make(map[string][]string, len(sets))
	for key, set := range sets {
		dump[key] = set.Values()
	}
	ch.respond(w, http.StatusOK, dump)
}

// stats reports the same figures as the console's stats command, grouped by their prefix.
func (ch *consoleHandler) stats(w http.ResponseWriter, req *http.Request) {
	now := clock.FromContext(req.Context()).Now().Round(time.Second).Unix()
	result := map[string]interface{}{
		"uptime": now - ch.startup.Round(time.Second).Unix(),
	}
	add := func(group, metric string, value float64) {
		if strings.HasPrefix(metric, "last_") {
			value = float64(now) - value
		}
		g, ok := result[group].(map[string]float64)
		if !ok {
			g = map[string]float64{}
			result[group] = g
		}
		g[metric] = value
	}

	ms := ch.store.MessageStats()
	add("messages", "last_msg_seen", float64(ms.LastMsgSeen))
	add("messages", "bad_lines_seen", float64(ms.BadLinesSeen))
	add("messages", "family_conflicts", float64(ms.FamilyConflicts))
	ch.hub.EmitStatus(req.Context(), add)

	ch.respond(w, http.StatusOK, result)
}

func (ch *consoleHandler) delete(w http.ResponseWriter, req *http.Request) {
	vars := mux.Vars(req)
	key := vars["key"]
	switch vars["family"] {
	case "counters":
		ch.store.DeleteCounters(key)
	case "timers":
		ch.store.DeleteTimers(key)
	case "gauges":
		ch.store.DeleteGauges(key)
	case "sets":
		ch.store.DeleteSets(key)
	}
	ch.respond(w, http.StatusOK, map[string][]string{"deleted": {key}})
}

func (ch *consoleHandler) respond(w http.ResponseWriter, status int, v interface{}) {
	w.Header().Set("content-type", "application/json")
	w.WriteHeader(status)
	if err := jsoniter.NewEncoder(w).Encode(v); err != nil {
		ch.logger.WithError(err).Warn("Failed to write response")
	}
}
