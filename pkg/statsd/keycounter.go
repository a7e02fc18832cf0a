package statsd

import (
	"bytes"
	"context"
	"fmt"
	"io"
	"math"
	"os"
	"sort"
	"sync"
	"time"

	"github.com/sirupsen/logrus"
	"github.com/tilinna/clock"
)

// keyFlushTimeLayout renders timestamps like a JavaScript Date string.
const keyFlushTimeLayout = "Mon Jan 02 2006 15:04:05 GMT-0700 (MST)"

// KeyCounter counts how often each key is seen and periodically writes the most frequent ones.
// It is diagnostic only and never feeds backends.
type KeyCounter struct {
	interval time.Duration
	percent  float64
	logPath  string // Appended to on every flush, stdout if empty
	stdout   io.Writer
	logger   logrus.FieldLogger

	mu     sync.Mutex
	counts map[string]uint64
}

// NewKeyCounter creates a KeyCounter writing the top percent of keys every interval.
func NewKeyCounter(interval time.Duration, percent int, logPath string, logger logrus.FieldLogger) *KeyCounter {
	return &KeyCounter{
		interval: interval,
		percent:  float64(percent),
		logPath:  logPath,
		stdout:   os.Stdout,
		logger:   logger,
		counts:   make(map[string]uint64),
	}
}

// Observe counts one occurrence of every key.
func (kc *KeyCounter) Observe(keys []string) {
	kc.mu.Lock()
	defer kc.mu.Unlock()
	for _, key := range keys {
		kc.counts[key]++
	}
}

// Run writes and clears the key table every interval until the context is done.
func (kc *KeyCounter) Run(ctx context.Context) {
	clck := clock.FromContext(ctx)
	ticker := clck.NewTicker(kc.interval)
	defer ticker.Stop()
	for {
		select {
		case <-ctx.Done():
			return
		case now := <-ticker.C:
			if err := kc.Flush(now); err != nil {
				kc.logger.WithError(err).Error("Failed to write key frequencies")
			}
		}
	}
}

type keyCount struct {
	key   string
	count uint64
}

// Flush writes the most frequent keys observed since the previous flush and clears the table.
func (kc *KeyCounter) Flush(now time.Time) error {
	kc.mu.Lock()
	counts := kc.counts
	kc.counts = make(map[string]uint64)
	kc.mu.Unlock()

	sorted := make([]keyCount, 0, len(counts))
	for key, count := range counts {
		sorted = append(sorted, keyCount{key, count})
	}
	sort.Slice(sorted, func(i, j int) bool {
		if sorted[i].count == sorted[j].count {
			return sorted[i].key < sorted[j].key
		}
		return sorted[i].count > sorted[j].count
	})

	limit := int(math.Ceil(float64(len(sorted)) * kc.percent / 100))
	if limit > len(sorted) {
		limit = len(sorted)
	}
	if limit <= 0 {
		return nil
	}

	timeString := now.Format(keyFlushTimeLayout)
	buf := new(bytes.Buffer)
	for _, kv := range sorted[:limit] {
		_, _ = fmt.Fprintf(buf, "%s count=%d key=%s\n", timeString, kv.count, kv.key)
	}
	return kc.write(buf.Bytes())
}

func (kc *KeyCounter) write(p []byte) (retErr error) {
	if kc.logPath == "" {
		_, err := kc.stdout.Write(p)
		return err
	}
	f, err := os.OpenFile(kc.logPath, os.O_APPEND|os.O_CREATE|os.O_WRONLY, 0644)
	if err != nil {
		return err
	}
	defer func() {
		if err := f.Close(); err != nil && retErr == nil {
			retErr = err
		}
	}()
	_, err = f.Write(p)
	return err
}
