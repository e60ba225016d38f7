// Copyright (c) 2025 The btcsuite developers
// Use of this source code is governed by an ISC
// license that can be found in the LICENSE file.

package workpool

import "github.com/prometheus/client_golang/prometheus"

const (
	metricsNamespace = "txprep"
	metricsSubsystem = "pool"
)

// metrics holds the collectors of one pool.  Every collector carries a
// constant "pool" label so several pools can share a registry.
type metrics struct {
	queued    prometheus.Gauge
	workers   prometheus.Gauge
	active    prometheus.Gauge
	completed prometheus.Counter
	failed    prometheus.Counter
	duration  prometheus.Histogram
}

func newMetrics(pool string) *metrics {
	labels := prometheus.Labels{"pool": pool}

	return &metrics{
		queued: prometheus.NewGauge(prometheus.GaugeOpts{
			Namespace:   metricsNamespace,
			Subsystem:   metricsSubsystem,
			Name:        "queued_tasks",
			Help:        "Number of tasks waiting for a worker",
			ConstLabels: labels,
		}),
		workers: prometheus.NewGauge(prometheus.GaugeOpts{
			Namespace:   metricsNamespace,
			Subsystem:   metricsSubsystem,
			Name:        "workers",
			Help:        "Number of live workers",
			ConstLabels: labels,
		}),
		active: prometheus.NewGauge(prometheus.GaugeOpts{
			Namespace:   metricsNamespace,
			Subsystem:   metricsSubsystem,
			Name:        "active_workers",
			Help:        "Number of workers running a task",
			ConstLabels: labels,
		}),
		completed: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace:   metricsNamespace,
			Subsystem:   metricsSubsystem,
			Name:        "tasks_completed_total",
			Help:        "Total number of tasks that succeeded",
			ConstLabels: labels,
		}),
		failed: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace:   metricsNamespace,
			Subsystem:   metricsSubsystem,
			Name:        "tasks_failed_total",
			Help:        "Total number of tasks that returned an error",
			ConstLabels: labels,
		}),
		duration: prometheus.NewHistogram(prometheus.HistogramOpts{
			Namespace:   metricsNamespace,
			Subsystem:   metricsSubsystem,
			Name:        "task_duration_seconds",
			Help:        "Time taken to run a task",
			Buckets:     prometheus.DefBuckets,
			ConstLabels: labels,
		}),
	}
}

// collectors returns every collector of the pool.
func (m *metrics) collectors() []prometheus.Collector {
	return []prometheus.Collector{
		m.queued, m.workers, m.active, m.completed, m.failed,
		m.duration,
	}
}

// register adds the collectors to reg.
func (m *metrics) register(reg prometheus.Registerer) error {
	for _, c := range m.collectors() {
		if err := reg.Register(c); err != nil {
			return err
		}
	}
	return nil
}
