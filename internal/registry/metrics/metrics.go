package metrics

import (
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

// Metrics provides observability for the named registry.
type Metrics struct {
	Mutations         *prometheus.CounterVec
	DeniedMutations   prometheus.Counter
	Entries           prometheus.Gauge
	OperationDuration *prometheus.HistogramVec
}

// New registers the registry metrics on reg. Pass prometheus.DefaultRegisterer
// in production and a fresh prometheus.NewRegistry() in tests.
func New(reg prometheus.Registerer) *Metrics {
	factory := promauto.With(reg)
	return &Metrics{
		Mutations: factory.NewCounterVec(prometheus.CounterOpts{
			Name: "dab_registry_mutations_total",
			Help: "Successful named registry mutations by operation",
		}, []string{"operation"}),
		DeniedMutations: factory.NewCounter(prometheus.CounterOpts{
			Name: "dab_registry_mutations_denied_total",
			Help: "Mutations rejected because the caller is not the controller",
		}),
		Entries: factory.NewGauge(prometheus.GaugeOpts{
			Name: "dab_registry_entries",
			Help: "Number of descriptors currently in the named registry",
		}),
		OperationDuration: factory.NewHistogramVec(prometheus.HistogramOpts{
			Name:    "dab_registry_operation_duration_seconds",
			Help:    "Duration of named registry operations",
			Buckets: []float64{0.0005, 0.001, 0.005, 0.01, 0.025, 0.05, 0.1, 0.25, 0.5, 1},
		}, []string{"operation"}),
	}
}

func (m *Metrics) IncrementMutation(operation string) {
	m.Mutations.WithLabelValues(operation).Inc()
}

func (m *Metrics) IncrementDenied() {
	m.DeniedMutations.Inc()
}

func (m *Metrics) SetEntries(n int) {
	m.Entries.Set(float64(n))
}

// ObserveOperation records the duration of an operation.
// Call with time.Now() at the start of the operation.
func (m *Metrics) ObserveOperation(operation string, start time.Time) {
	m.OperationDuration.WithLabelValues(operation).Observe(time.Since(start).Seconds())
}
