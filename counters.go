package statsagg

// Counters stores the accumulated value of every counter by key.
type Counters map[string]float64

// MetricsName returns the name of the aggregated metrics collection.
func (c Counters) MetricsName() string {
	return "Counters"
}

// Delete deletes the metric from the collection.
func (c Counters) Delete(k string) {
	delete(c, k)
}

// Has returns whether the key is present in the collection.
func (c Counters) Has(k string) bool {
	_, ok := c[k]
	return ok
}

// Copy returns a shallow copy of the collection.
func (c Counters) Copy() Counters {
	n := make(Counters, len(c))
	for k, v := range c {
		n[k] = v
	}
	return n
}

// CounterRates stores the per-second rate of every counter by key.
type CounterRates map[string]float64
