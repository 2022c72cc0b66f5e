// Package gcmetrics exposes a collector's running counters as a
// prometheus.Collector, so a host that already runs a Prometheus registry
// can register congc's stats without congc itself opening a listener.
package gcmetrics

import "github.com/prometheus/client_golang/prometheus"

// Source is read by Collect on every scrape. The driver implements it
// directly over its own registry and counters.
type Source interface {
	Live() uint64
	Capacity() uint64
	CyclesRun() uint64
	BytesReclaimed() uint64
	LastSweepSeconds() float64
}

// Collector adapts a Source to prometheus.Collector.
type Collector struct {
	src Source

	live           *prometheus.Desc
	capacity       *prometheus.Desc
	cycles         *prometheus.Desc
	bytesReclaimed *prometheus.Desc
	lastSweep      *prometheus.Desc
}

// New builds a Collector over src. Register it with
// prometheus.Registerer.MustRegister.
func New(src Source) *Collector {
	ns := "congc"
	return &Collector{
		src:            src,
		live:           prometheus.NewDesc(ns+"_live_objects", "Number of live managed allocations.", nil, nil),
		capacity:       prometheus.NewDesc(ns+"_registry_capacity", "Current bucket count of the allocation registry.", nil, nil),
		cycles:         prometheus.NewDesc(ns+"_cycles_total", "Number of mark/sweep cycles run.", nil, nil),
		bytesReclaimed: prometheus.NewDesc(ns+"_bytes_reclaimed_total", "Cumulative bytes reclaimed by sweep.", nil, nil),
		lastSweep:      prometheus.NewDesc(ns+"_last_sweep_seconds", "Wall time of the most recent sweep.", nil, nil),
	}
}

// Describe implements prometheus.Collector.
func (c *Collector) Describe(ch chan<- *prometheus.Desc) {
	ch <- c.live
	ch <- c.capacity
	ch <- c.cycles
	ch <- c.bytesReclaimed
	ch <- c.lastSweep
}

// Collect implements prometheus.Collector.
func (c *Collector) Collect(ch chan<- prometheus.Metric) {
	ch <- prometheus.MustNewConstMetric(c.live, prometheus.GaugeValue, float64(c.src.Live()))
	ch <- prometheus.MustNewConstMetric(c.capacity, prometheus.GaugeValue, float64(c.src.Capacity()))
	ch <- prometheus.MustNewConstMetric(c.cycles, prometheus.CounterValue, float64(c.src.CyclesRun()))
	ch <- prometheus.MustNewConstMetric(c.bytesReclaimed, prometheus.CounterValue, float64(c.src.BytesReclaimed()))
	ch <- prometheus.MustNewConstMetric(c.lastSweep, prometheus.GaugeValue, c.src.LastSweepSeconds())
}
