package statsd

import (
	"context"
	"sync"
	"sync/atomic"
	"time"

	"github.com/sirupsen/logrus"

	"github.com/atlassian/statsagg"
)

type flushSubscriber struct {
	busy    int32 // 1 while a flush of this backend is in flight. Atomic.
	backend string
	handler statsagg.FlushHandler
}

type statusSubscriber struct {
	backend string
	handler statsagg.StatusHandler
}

// Hub is the Publisher backends subscribe to. Each flush handler runs on its own goroutine
// so a slow backend holds up neither the flusher nor the other backends. A backend still busy
// with the previous bundle is skipped for the current one.
type Hub struct {
	// Counter fields below must be read/written only using atomic instructions.
	// 64-bit fields must be the first fields in the struct to guarantee proper memory alignment.
	// See https://golang.org/pkg/sync/atomic/#pkg-note-BUG
	lastFlush int64 // When the last flush was emitted. Unix timestamp in nsec.
	flushes   uint64

	logger logrus.FieldLogger
	wg     sync.WaitGroup // in-flight flush handlers

	mu     sync.RWMutex
	flush  []*flushSubscriber
	status []statusSubscriber
}

var _ statsagg.Publisher = (*Hub)(nil)

// NewHub creates a Hub without any subscribers.
func NewHub(logger logrus.FieldLogger) *Hub {
	return &Hub{
		logger: logger,
	}
}

// OnFlush registers a handler for the flush signal.
func (h *Hub) OnFlush(backend string, fh statsagg.FlushHandler) {
	h.mu.Lock()
	defer h.mu.Unlock()
	h.flush = append(h.flush, &flushSubscriber{backend: backend, handler: fh})
}

// OnStatus registers a handler for the status signal.
func (h *Hub) OnStatus(backend string, sh statsagg.StatusHandler) {
	h.mu.Lock()
	defer h.mu.Unlock()
	h.status = append(h.status, statusSubscriber{backend, sh})
}

// EmitFlush hands the bundle to every flush subscriber and returns without waiting for them.
// Handlers must treat the bundle as read-only since they share it.
func (h *Hub) EmitFlush(ctx context.Context, ts time.Time, bundle *statsagg.MetricsBundle) {
	h.mu.RLock()
	subscribers := h.flush
	h.mu.RUnlock()
	for _, sub := range subscribers {
		if !atomic.CompareAndSwapInt32(&sub.busy, 0, 1) {
			h.logger.WithFields(logrus.Fields{
				"backend":   sub.backend,
				"timestamp": ts.Unix(),
			}).Warn("Backend is still flushing the previous bundle, skipping")
			continue
		}
		h.wg.Add(1)
		go func(sub *flushSubscriber) {
			defer h.wg.Done()
			defer atomic.StoreInt32(&sub.busy, 0)
			sub.handler(ctx, ts, bundle)
		}(sub)
	}
	atomic.StoreInt64(&h.lastFlush, ts.UnixNano())
	atomic.AddUint64(&h.flushes, 1)
}

// Wait blocks until every flush handler started by EmitFlush has returned.
func (h *Hub) Wait() {
	h.wg.Wait()
}

// LastFlush returns the timestamp of the last emitted flush. Safe for concurrent use.
func (h *Hub) LastFlush() time.Time {
	return time.Unix(0, atomic.LoadInt64(&h.lastFlush))
}

// Flushes returns the number of emitted flushes. Safe for concurrent use.
func (h *Hub) Flushes() uint64 {
	return atomic.LoadUint64(&h.flushes)
}

// EmitStatus asks every status subscriber to report through report. Errors passed to the
// reporter are logged against the backend and never reach report.
func (h *Hub) EmitStatus(ctx context.Context, report func(backend, stat string, value float64)) {
	h.mu.RLock()
	subscribers := h.status
	h.mu.RUnlock()
	reporter := func(err error, backend, stat string, value float64) {
		if err != nil {
			h.logger.WithError(err).WithField("backend", backend).Warn("Failed to read stats for backend")
			return
		}
		report(backend, stat, value)
	}
	for _, sub := range subscribers {
		sub.handler(ctx, reporter)
	}
}

// Backends returns the names of the backends subscribed to any signal.
func (h *Hub) Backends() []string {
	h.mu.RLock()
	defer h.mu.RUnlock()
	seen := make(map[string]struct{})
	var names []string
	add := func(name string) {
		if _, ok := seen[name]; !ok {
			seen[name] = struct{}{}
			names = append(names, name)
		}
	}
	for _, sub := range h.flush {
		add(sub.backend)
	}
	for _, sub := range h.status {
		add(sub.backend)
	}
	return names
}
