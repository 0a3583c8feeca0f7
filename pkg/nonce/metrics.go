package nonce

import (
	"errors"

	"github.com/prometheus/client_golang/prometheus"
)

type guardMetrics struct {
	size     prometheus.Gauge
	evicted  prometheus.Counter
	replayed prometheus.Counter
	full     prometheus.Counter
}

func newGuardMetrics(reg prometheus.Registerer, backend string) *guardMetrics {
	if reg == nil {
		return nil
	}
	labels := prometheus.Labels{"backend": backend}
	m := &guardMetrics{
		size: prometheus.NewGauge(prometheus.GaugeOpts{
			Name:        "hawk_nonce_guard_size",
			Help:        "Number of nonces tracked by the replay guard.",
			ConstLabels: labels,
		}),
		evicted: prometheus.NewCounter(prometheus.CounterOpts{
			Name:        "hawk_nonce_guard_evicted_total",
			Help:        "Number of expired nonce entries removed.",
			ConstLabels: labels,
		}),
		replayed: prometheus.NewCounter(prometheus.CounterOpts{
			Name:        "hawk_nonce_guard_replays_total",
			Help:        "Number of nonces rejected because they were already recorded.",
			ConstLabels: labels,
		}),
		full: prometheus.NewCounter(prometheus.CounterOpts{
			Name:        "hawk_nonce_guard_full_total",
			Help:        "Number of nonces refused because the guard held only live entries.",
			ConstLabels: labels,
		}),
	}
	m.size = register(reg, m.size).(prometheus.Gauge)
	m.evicted = register(reg, m.evicted).(prometheus.Counter)
	m.replayed = register(reg, m.replayed).(prometheus.Counter)
	m.full = register(reg, m.full).(prometheus.Counter)
	return m
}

// register returns the already registered collector when an identical one
// exists, so several guards can share a registry.
func register(reg prometheus.Registerer, c prometheus.Collector) prometheus.Collector {
	if err := reg.Register(c); err != nil {
		var are prometheus.AlreadyRegisteredError
		if errors.As(err, &are) {
			return are.ExistingCollector
		}
		panic(err)
	}
	return c
}

func (m *guardMetrics) observeSize(size int) {
	if m == nil {
		return
	}
	m.size.Set(float64(size))
}

func (m *guardMetrics) observeEvicted(delta int) {
	if m == nil || delta <= 0 {
		return
	}
	m.evicted.Add(float64(delta))
}

func (m *guardMetrics) observeReplay() {
	if m == nil {
		return
	}
	m.replayed.Inc()
}

func (m *guardMetrics) observeFull() {
	if m == nil {
		return
	}
	m.full.Inc()
}
