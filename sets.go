package statsagg

import (
	"sort"
)

// Set is a collection of distinct string values. Only membership matters.
type Set map[string]struct{}

// NewSet returns an empty Set.
func NewSet() Set {
	return make(Set)
}

// Has reports whether v is a member of the set.
func (s Set) Has(v string) bool {
	_, ok := s[v]
	return ok
}

// Insert adds v to the set, duplicates collapse.
func (s Set) Insert(v string) {
	s[v] = struct{}{}
}

// Values returns the members in sorted order.
func (s Set) Values() []string {
	values := make([]string, 0, len(s))
	for v := range s {
		values = append(values, v)
	}
	sort.Strings(values)
	return values
}

// Copy returns a copy of the set.
func (s Set) Copy() Set {
	n := make(Set, len(s))
	for v := range s {
		n[v] = struct{}{}
	}
	return n
}

// Sets stores the distinct values observed within the current interval by key.
type Sets map[string]Set

// MetricsName returns the name of the aggregated metrics collection.
func (s Sets) MetricsName() string {
	return "Sets"
}

// Delete deletes the metric from the collection.
func (s Sets) Delete(k string) {
	delete(s, k)
}

// Has returns whether the key is present in the collection.
func (s Sets) Has(k string) bool {
	_, ok := s[k]
	return ok
}

// Copy returns a deep copy of the collection.
func (s Sets) Copy() Sets {
	n := make(Sets, len(s))
	for k, v := range s {
		n[k] = v.Copy()
	}
	return n
}

// SuperSetIntervals maps a key suffix to the length of its rolling window in seconds.
var SuperSetIntervals = map[string]int64{
	"daily":    24 * 60 * 60,
	"hourly":   60 * 60,
	"minutely": 60,
}

// SuperSet is a Set whose members survive flushes until its window boundary passes.
type SuperSet struct {
	Values       Set
	ResetTime    int64 // Unix seconds, a multiple of IntervalTime
	IntervalTime int64 // Window length in seconds
}

// NewSuperSet creates an empty SuperSet whose window ends at the first interval boundary >= now.
func NewSuperSet(interval, now int64) *SuperSet {
	return &SuperSet{
		Values:       NewSet(),
		ResetTime:    NextBoundary(now, interval),
		IntervalTime: interval,
	}
}

// Expired reports whether the window has elapsed at now.
func (ss *SuperSet) Expired(now int64) bool {
	return now >= ss.ResetTime
}

// Reset empties the set and moves the window to the next boundary >= now.
func (ss *SuperSet) Reset(now int64) {
	ss.Values = NewSet()
	ss.ResetTime = NextBoundary(now, ss.IntervalTime)
}

// NextBoundary returns the smallest multiple of interval that is >= now.
// A now that sits exactly on a boundary is returned as is, so a window reset on a boundary
// is already expired at the next flush.
func NextBoundary(now, interval int64) int64 {
	if interval <= 0 {
		return now
	}
	q := now / interval
	if now%interval != 0 && now > 0 {
		q++
	}
	return q * interval
}

// SuperSetInterval returns the window length for a key whose last dot-separated segment names
// one of SuperSetIntervals.
func SuperSetInterval(key string) (int64, bool) {
	idx := -1
	for i := len(key) - 1; i >= 0; i-- {
		if key[i] == '.' {
			idx = i
			break
		}
	}
	if idx == -1 || idx == len(key)-1 {
		return 0, false
	}
	interval, ok := SuperSetIntervals[key[idx+1:]]
	return interval, ok
}

// SuperSets stores the rolling-window sets by key.
type SuperSets map[string]*SuperSet

// Copy returns a deep copy of the collection.
func (s SuperSets) Copy() SuperSets {
	n := make(SuperSets, len(s))
	for k, v := range s {
		n[k] = &SuperSet{
			Values:       v.Values.Copy(),
			ResetTime:    v.ResetTime,
			IntervalTime: v.IntervalTime,
		}
	}
	return n
}
