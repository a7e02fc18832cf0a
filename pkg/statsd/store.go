package statsd

import (
	"sync"
	"time"

	"github.com/atlassian/statsagg"
)

const (
	// PacketsReceivedCounter is the internal counter incremented once per datagram.
	PacketsReceivedCounter = "statsd.packets_received"
	// BadLinesSeenCounter is the internal counter incremented once per malformed bit.
	BadLinesSeenCounter = "statsd.bad_lines_seen"
)

// MessageStats holds the process-wide ingestion health indicators. They are never reset.
type MessageStats struct {
	LastMsgSeen     int64 // Unix seconds of the last datagram
	BadLinesSeen    uint64
	FamilyConflicts uint64
}

// Conflict describes a sample that was rejected because its key already belongs to another family.
type Conflict struct {
	Key    string
	Family statsagg.MetricType // The family the key belongs to
	Got    statsagg.MetricType // The family of the rejected sample
}

// Store is the aggregation state shared by ingestion, the flusher and the consoles.
// Every method is safe for concurrent use; all mutation and snapshotting is serialised
// on a single mutex.
type Store struct {
	mu             sync.Mutex
	deleteCounters bool

	counters  statsagg.Counters
	timers    statsagg.Timers
	gauges    statsagg.Gauges
	sets      statsagg.Sets
	superSets statsagg.SuperSets
	stats     MessageStats
}

// NewStore creates an empty Store. If deleteCounters is true counters are deleted on flush
// instead of being reset to 0.
func NewStore(startup time.Time, deleteCounters bool) *Store {
	return &Store{
		deleteCounters: deleteCounters,
		counters: statsagg.Counters{
			PacketsReceivedCounter: 0,
			BadLinesSeenCounter:    0,
		},
		timers:    statsagg.Timers{},
		gauges:    statsagg.Gauges{},
		sets:      statsagg.Sets{},
		superSets: statsagg.SuperSets{},
		stats: MessageStats{
			LastMsgSeen: unixSeconds(startup),
		},
	}
}

// unixSeconds rounds t to whole seconds.
func unixSeconds(t time.Time) int64 {
	return t.Round(time.Second).Unix()
}

// Apply records one parsed datagram received at now. It returns the samples rejected because of
// a family conflict so the caller can log them.
func (s *Store) Apply(now time.Time, p *Packet) []Conflict {
	ts := unixSeconds(now)
	var conflicts []Conflict

	s.mu.Lock()
	defer s.mu.Unlock()

	s.counters[PacketsReceivedCounter]++
	for range p.BadBits {
		s.counters[BadLinesSeenCounter]++
		s.stats.BadLinesSeen++
	}
	for i := range p.Samples {
		sample := &p.Samples[i]
		if family, ok := s.family(sample.Key); ok && family != sample.Type {
			s.stats.FamilyConflicts++
			conflicts = append(conflicts, Conflict{
				Key:    sample.Key,
				Family: family,
				Got:    sample.Type,
			})
			continue
		}
		s.apply(ts, sample)
	}
	s.stats.LastMsgSeen = ts
	return conflicts
}

func (s *Store) apply(ts int64, sample *statsagg.Sample) {
	switch sample.Type {
	case statsagg.COUNTER:
		s.counters[sample.Key] += sample.Value * sample.Weight()
	case statsagg.TIMER:
		s.timers[sample.Key] = append(s.timers[sample.Key], sample.Value)
	case statsagg.GAUGE:
		s.gauges[sample.Key] = sample.Value
	case statsagg.SET:
		set, ok := s.sets[sample.Key]
		if !ok {
			set = statsagg.NewSet()
			s.sets[sample.Key] = set
			if interval, ok := statsagg.SuperSetInterval(sample.Key); ok {
				s.superSets[sample.Key] = statsagg.NewSuperSet(interval, ts)
			}
		}
		superSet := s.superSets[sample.Key]
		if superSet == nil {
			set.Insert(sample.StringValue)
			return
		}
		if !superSet.Values.Has(sample.StringValue) {
			set.Insert(sample.StringValue)
			superSet.Values.Insert(sample.StringValue)
		}
	}
}

// family returns the family the key currently belongs to.
func (s *Store) family(key string) (statsagg.MetricType, bool) {
	if _, ok := s.counters[key]; ok {
		return statsagg.COUNTER, true
	}
	if _, ok := s.timers[key]; ok {
		return statsagg.TIMER, true
	}
	if _, ok := s.gauges[key]; ok {
		return statsagg.GAUGE, true
	}
	if _, ok := s.sets[key]; ok {
		return statsagg.SET, true
	}
	return 0, false
}

// SnapshotAndReset hands the current interval over to the caller and applies the reset policy
// in the same critical section, so no sample can land between the two.
// Counters are zeroed (or deleted), timers and sets emptied, super-sets whose window has
// elapsed at now are emptied and moved to their next window, gauges are kept.
// The returned bundle shares no mutable state with the Store.
func (s *Store) SnapshotAndReset(now time.Time) *statsagg.MetricsBundle {
	ts := unixSeconds(now)

	s.mu.Lock()
	defer s.mu.Unlock()

	bundle := &statsagg.MetricsBundle{
		Counters:  s.counters,
		Gauges:    s.gauges.Copy(),
		Timers:    s.timers,
		Sets:      s.sets,
		SuperSets: s.superSets.Copy(),
	}

	counters := make(statsagg.Counters, len(s.counters))
	if !s.deleteCounters {
		for key := range s.counters {
			counters[key] = 0
		}
	}
	s.counters = counters

	timers := make(statsagg.Timers, len(s.timers))
	for key := range s.timers {
		timers[key] = []float64{}
	}
	s.timers = timers

	for _, superSet := range s.superSets {
		if superSet.Expired(ts) {
			superSet.Reset(ts)
		}
	}

	sets := make(statsagg.Sets, len(s.sets))
	for key := range s.sets {
		sets[key] = statsagg.NewSet()
	}
	s.sets = sets

	return bundle
}

// Snapshot returns a copy of the current state without resetting anything.
func (s *Store) Snapshot() *statsagg.MetricsBundle {
	s.mu.Lock()
	defer s.mu.Unlock()
	return &statsagg.MetricsBundle{
		Counters:  s.counters.Copy(),
		Gauges:    s.gauges.Copy(),
		Timers:    s.timers.Copy(),
		Sets:      s.sets.Copy(),
		SuperSets: s.superSets.Copy(),
	}
}

// Counters returns a copy of the counters.
func (s *Store) Counters() statsagg.Counters {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.counters.Copy()
}

// Timers returns a copy of the timers.
func (s *Store) Timers() statsagg.Timers {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.timers.Copy()
}

// Gauges returns a copy of the gauges.
func (s *Store) Gauges() statsagg.Gauges {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.gauges.Copy()
}

// Sets returns a copy of the sets.
func (s *Store) Sets() statsagg.Sets {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.sets.Copy()
}

// SuperSets returns a copy of the super-sets.
func (s *Store) SuperSets() statsagg.SuperSets {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.superSets.Copy()
}

// MessageStats returns the ingestion health indicators.
func (s *Store) MessageStats() MessageStats {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.stats
}

// DeleteCounters removes the counters with the given keys. Missing keys are ignored.
func (s *Store) DeleteCounters(keys ...string) {
	s.deleteKeys(func() deleter { return s.counters }, keys)
}

// DeleteTimers removes the timers with the given keys. Missing keys are ignored.
func (s *Store) DeleteTimers(keys ...string) {
	s.deleteKeys(func() deleter { return s.timers }, keys)
}

// DeleteGauges removes the gauges with the given keys. Missing keys are ignored.
func (s *Store) DeleteGauges(keys ...string) {
	s.deleteKeys(func() deleter { return s.gauges }, keys)
}

// DeleteSets removes the sets with the given keys along with their super-sets.
func (s *Store) DeleteSets(keys ...string) {
	s.mu.Lock()
	defer s.mu.Unlock()
	for _, key := range keys {
		s.sets.Delete(key)
		delete(s.superSets, key)
	}
}

type deleter interface {
	Delete(string)
}

// deleteKeys resolves the family map under the lock, the flusher swaps maps on every flush.
func (s *Store) deleteKeys(family func() deleter, keys []string) {
	s.mu.Lock()
	defer s.mu.Unlock()
	metrics := family()
	for _, key := range keys {
		metrics.Delete(key)
	}
}
