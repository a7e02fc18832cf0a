package statsagg

// Gauges stores the last written value of every gauge by key.
type Gauges map[string]float64

// MetricsName returns the name of the aggregated metrics collection.
func (g Gauges) MetricsName() string {
	return "Gauges"
}

// Delete deletes the metric from the collection.
func (g Gauges) Delete(k string) {
	delete(g, k)
}

// Has returns whether the key is present in the collection.
func (g Gauges) Has(k string) bool {
	_, ok := g[k]
	return ok
}

// Copy returns a shallow copy of the collection.
func (g Gauges) Copy() Gauges {
	n := make(Gauges, len(g))
	for k, v := range g {
		n[k] = v
	}
	return n
}
