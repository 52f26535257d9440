// Package prom exports polycache metrics to Prometheus.
//
//	c := prom.NewCollector("app", "user", cache)
//	prometheus.MustRegister(c)
package prom

import (
	"github.com/prometheus/client_golang/prometheus"

	"github.com/unkn0wn-root/polycache"
)

// Source is anything that can report polycache metrics. polycache.Manager
// satisfies it.
type Source interface {
	Metrics() polycache.Metrics
}

var _ prometheus.Collector = (*Collector)(nil)

// Collector reads Source on every scrape. Counters and gauges are emitted as
// const metrics so the cache keeps no Prometheus state of its own.
type Collector struct {
	src Source

	hits        *prometheus.Desc
	misses      *prometheus.Desc
	evictions   *prometheus.Desc
	expirations *prometheus.Desc
	sets        *prometheus.Desc
	deletes     *prometheus.Desc
	flushed     *prometheus.Desc

	dirty    *prometheus.Desc
	items    *prometheus.Desc
	bytes    *prometheus.Desc
	hitRatio *prometheus.Desc
}

// NewCollector builds a collector for src. cache is attached as a const
// label so several caches can share one registry.
func NewCollector(namespace, cache string, src Source) *Collector {
	labels := prometheus.Labels{"cache": cache}
	desc := func(name, help string) *prometheus.Desc {
		return prometheus.NewDesc(
			prometheus.BuildFQName(namespace, "polycache", name),
			help, nil, labels,
		)
	}
	return &Collector{
		src: src,

		hits:        desc("hits_total", "Total number of cache hits"),
		misses:      desc("misses_total", "Total number of cache misses, expired reads included"),
		evictions:   desc("evictions_total", "Total number of capacity evictions"),
		expirations: desc("expirations_total", "Total number of entries removed on expiry"),
		sets:        desc("sets_total", "Total number of successful sets"),
		deletes:     desc("deletes_total", "Total number of deletes of present keys"),
		flushed:     desc("flushed_writes_total", "Total number of deferred writes flushed to the store"),

		dirty:    desc("dirty_writes_pending", "Entries awaiting a flush to the store"),
		items:    desc("items", "Entries currently resident"),
		bytes:    desc("bytes", "Sum of resident entry sizes in bytes"),
		hitRatio: desc("hit_ratio", "Hits divided by hits plus misses"),
	}
}

func (c *Collector) Describe(ch chan<- *prometheus.Desc) {
	for _, d := range []*prometheus.Desc{
		c.hits, c.misses, c.evictions, c.expirations, c.sets, c.deletes, c.flushed,
		c.dirty, c.items, c.bytes, c.hitRatio,
	} {
		ch <- d
	}
}

func (c *Collector) Collect(ch chan<- prometheus.Metric) {
	m := c.src.Metrics()

	counter := func(d *prometheus.Desc, v uint64) {
		ch <- prometheus.MustNewConstMetric(d, prometheus.CounterValue, float64(v))
	}
	gauge := func(d *prometheus.Desc, v float64) {
		ch <- prometheus.MustNewConstMetric(d, prometheus.GaugeValue, v)
	}

	counter(c.hits, m.Hits)
	counter(c.misses, m.Misses)
	counter(c.evictions, m.Evictions)
	counter(c.expirations, m.Expirations)
	counter(c.sets, m.Sets)
	counter(c.deletes, m.Deletes)
	counter(c.flushed, m.FlushedWrites)

	gauge(c.dirty, float64(m.DirtyWritesPending))
	gauge(c.items, float64(m.CurrentItems))
	gauge(c.bytes, float64(m.TotalBytes))
	gauge(c.hitRatio, m.HitRatio())
}
