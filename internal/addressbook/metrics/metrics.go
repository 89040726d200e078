package metrics

import (
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

// Metrics provides observability for the address book.
type Metrics struct {
	Mutations         *prometheus.CounterVec
	Lookups           *prometheus.CounterVec
	OperationDuration *prometheus.HistogramVec
}

func New(reg prometheus.Registerer) *Metrics {
	factory := promauto.With(reg)
	return &Metrics{
		Mutations: factory.NewCounterVec(prometheus.CounterOpts{
			Name: "dab_address_book_mutations_total",
			Help: "Address book mutations by operation",
		}, []string{"operation"}),
		Lookups: factory.NewCounterVec(prometheus.CounterOpts{
			Name: "dab_address_book_lookups_total",
			Help: "Address lookups by outcome (hit or miss)",
		}, []string{"outcome"}),
		OperationDuration: factory.NewHistogramVec(prometheus.HistogramOpts{
			Name:    "dab_address_book_operation_duration_seconds",
			Help:    "Duration of address book operations",
			Buckets: []float64{0.0005, 0.001, 0.005, 0.01, 0.025, 0.05, 0.1, 0.25, 0.5, 1},
		}, []string{"operation"}),
	}
}

func (m *Metrics) IncrementMutation(operation string) {
	m.Mutations.WithLabelValues(operation).Inc()
}

func (m *Metrics) IncrementLookup(hit bool) {
	outcome := "miss"
	if hit {
		outcome = "hit"
	}
	m.Lookups.WithLabelValues(outcome).Inc()
}

func (m *Metrics) ObserveOperation(operation string, start time.Time) {
	m.OperationDuration.WithLabelValues(operation).Observe(time.Since(start).Seconds())
}
