package polycache

// Metrics is a point-in-time copy of the cache counters and gauges.
type Metrics struct {
	Hits          uint64
	Misses        uint64
	Evictions     uint64 // capacity evictions only; deletes are counted in Deletes
	Expirations   uint64
	Sets          uint64
	Deletes       uint64
	FlushedWrites uint64

	DirtyWritesPending int
	CurrentItems       int
	TotalBytes         int64
}

// HitRatio is Hits/(Hits+Misses), or 0 before the first read.
func (m Metrics) HitRatio() float64 {
	total := m.Hits + m.Misses
	if total == 0 {
		return 0
	}
	return float64(m.Hits) / float64(total)
}

func (m Metrics) fields() Fields {
	return Fields{
		"hits":                 m.Hits,
		"misses":               m.Misses,
		"evictions":            m.Evictions,
		"expirations":          m.Expirations,
		"sets":                 m.Sets,
		"deletes":              m.Deletes,
		"flushed_writes":       m.FlushedWrites,
		"dirty_writes_pending": m.DirtyWritesPending,
		"current_items":        m.CurrentItems,
		"total_bytes":          m.TotalBytes,
		"hit_ratio":            m.HitRatio(),
	}
}

// counters are the monotonic part of Metrics; gauges are derived from state.
type counters struct {
	hits, misses, evictions, expirations uint64
	sets, deletes, flushed               uint64
}
