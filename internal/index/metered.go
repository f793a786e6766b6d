package index

import (
	"time"

	"github.com/prometheus/client_golang/prometheus"

	"github.com/aleksaelezovic/tupleindex/internal/tuple"
)

// Metrics holds the collectors shared by every Metered index of a process
type Metrics struct {
	operations *prometheus.CounterVec
	failures   *prometheus.CounterVec
	tuples     *prometheus.CounterVec
	findTime   *prometheus.HistogramVec
}

// NewMetrics creates the index collectors and registers them with reg
func NewMetrics(reg prometheus.Registerer) *Metrics {
	m := &Metrics{
		operations: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: "tupleindex",
			Subsystem: "index",
			Name:      "operations_total",
			Help:      "Index operations by index and operation.",
		}, []string{"index", "op"}),
		failures: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: "tupleindex",
			Subsystem: "index",
			Name:      "failures_total",
			Help:      "Index operations that returned an error.",
		}, []string{"index", "op"}),
		tuples: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: "tupleindex",
			Subsystem: "index",
			Name:      "tuples_written_total",
			Help:      "Tuples passed to add and delete operations.",
		}, []string{"index", "op"}),
		findTime: prometheus.NewHistogramVec(prometheus.HistogramOpts{
			Namespace: "tupleindex",
			Subsystem: "index",
			Name:      "find_seconds",
			Help:      "Time to plan a find and open its scan.",
			Buckets:   prometheus.ExponentialBuckets(0.00001, 4, 10),
		}, []string{"index"}),
	}
	reg.MustRegister(m.operations, m.failures, m.tuples, m.findTime)
	return m
}

// Metered is a Wrapper that counts operations and times Find
type Metered struct {
	*Wrapper
	metrics *Metrics
}

func NewMetered(inner TupleIndex, metrics *Metrics) *Metered {
	return &Metered{Wrapper: NewWrapper(inner), metrics: metrics}
}

func (m *Metered) observe(op string, tuples int, err error) error {
	name := m.Name()
	m.metrics.operations.WithLabelValues(name, op).Inc()
	if tuples > 0 {
		m.metrics.tuples.WithLabelValues(name, op).Add(float64(tuples))
	}
	if err != nil {
		m.metrics.failures.WithLabelValues(name, op).Inc()
	}
	return err
}

func (m *Metered) Add(t tuple.Tuple) error {
	return m.observe("add", 1, m.Wrapper.Add(t))
}

func (m *Metered) Delete(t tuple.Tuple) error {
	return m.observe("delete", 1, m.Wrapper.Delete(t))
}

func (m *Metered) AddAll(tuples []tuple.Tuple) error {
	return m.observe("add_all", len(tuples), m.Wrapper.AddAll(tuples))
}

func (m *Metered) DeleteAll(tuples []tuple.Tuple) error {
	return m.observe("delete_all", len(tuples), m.Wrapper.DeleteAll(tuples))
}

func (m *Metered) Find(pattern tuple.Tuple) (tuple.Iterator, error) {
	start := time.Now()
	it, err := m.Wrapper.Find(pattern)
	m.metrics.findTime.WithLabelValues(m.Name()).Observe(time.Since(start).Seconds())
	return it, m.observe("find", 0, err)
}

func (m *Metered) All() (tuple.Iterator, error) {
	it, err := m.Wrapper.All()
	return it, m.observe("all", 0, err)
}

func (m *Metered) Clear() error {
	return m.observe("clear", 0, m.Wrapper.Clear())
}

func (m *Metered) Sync() error {
	return m.observe("sync", 0, m.Wrapper.Sync())
}
