// Package metrics exports nanoio loop activity as Prometheus metrics.
package metrics

import (
	"time"

	"github.com/prometheus/client_golang/prometheus"

	"github.com/webriots/nanoio"
)

// Collector implements nanoio.Observer and prometheus.Collector. One
// Collector may observe any number of loops, including loops running
// on different goroutines.
type Collector struct {
	spawned  prometheus.Counter
	finished *prometheus.CounterVec
	traps    *prometheus.CounterVec
	woken    prometheus.Histogram
	pollWait prometheus.Histogram
}

var _ nanoio.Observer = (*Collector)(nil)
var _ prometheus.Collector = (*Collector)(nil)

// New returns a Collector whose metric names are prefixed with
// namespace.
func New(namespace string) *Collector {
	return &Collector{
		spawned: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "tasks_spawned_total",
			Help:      "Tasks queued on a loop.",
		}),
		finished: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "tasks_finished_total",
			Help:      "Tasks that finished, by outcome.",
		}, []string{"outcome"}),
		traps: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "traps_total",
			Help:      "Traps yielded by tasks, by kind.",
		}, []string{"kind"}),
		woken: prometheus.NewHistogram(prometheus.HistogramOpts{
			Namespace: namespace,
			Name:      "poll_woken_tasks",
			Help:      "Tasks woken by one reactor poll.",
			Buckets:   prometheus.ExponentialBuckets(1, 2, 8),
		}),
		pollWait: prometheus.NewHistogram(prometheus.HistogramOpts{
			Namespace: namespace,
			Name:      "poll_wait_seconds",
			Help:      "Time spent blocked in a reactor poll.",
			Buckets:   prometheus.DefBuckets,
		}),
	}
}

// TaskSpawned implements nanoio.Observer.
func (c *Collector) TaskSpawned(*nanoio.Task) {
	c.spawned.Inc()
}

// TaskFinished implements nanoio.Observer.
func (c *Collector) TaskFinished(task *nanoio.Task) {
	c.finished.WithLabelValues(task.State().String()).Inc()
}

// TrapYielded implements nanoio.Observer.
func (c *Collector) TrapYielded(kind nanoio.TrapKind) {
	c.traps.WithLabelValues(kind.String()).Inc()
}

// Polled implements nanoio.Observer.
func (c *Collector) Polled(woken int, wait time.Duration) {
	c.woken.Observe(float64(woken))
	c.pollWait.Observe(wait.Seconds())
}

// Describe implements prometheus.Collector.
func (c *Collector) Describe(ch chan<- *prometheus.Desc) {
	c.spawned.Describe(ch)
	c.finished.Describe(ch)
	c.traps.Describe(ch)
	c.woken.Describe(ch)
	c.pollWait.Describe(ch)
}

// Collect implements prometheus.Collector.
func (c *Collector) Collect(ch chan<- prometheus.Metric) {
	c.spawned.Collect(ch)
	c.finished.Collect(ch)
	c.traps.Collect(ch)
	c.woken.Collect(ch)
	c.pollWait.Collect(ch)
}
