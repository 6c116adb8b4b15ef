package metrics

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

const namespace = "stremarr"

// Addon query outcomes
const (
	AddonOK      = "ok"
	AddonError   = "error"
	AddonTimeout = "timeout"
)

// Metrics holds the Prometheus collectors of the availability pipeline
type Metrics struct {
	ProbesTotal        *prometheus.CounterVec
	ProbeDuration      prometheus.Histogram
	AddonQueriesTotal  *prometheus.CounterVec
	StreamsMatched     prometheus.Counter
	RecheckPasses      prometheus.Counter
	RecheckItems       prometheus.Counter
	NotificationsTotal *prometheus.CounterVec
}

// New registers the collectors on reg
func New(reg prometheus.Registerer) *Metrics {
	factory := promauto.With(reg)

	return &Metrics{
		ProbesTotal: factory.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "probes_total",
			Help:      "Probe cycles by outcome.",
		}, []string{"available"}),
		ProbeDuration: factory.NewHistogram(prometheus.HistogramOpts{
			Namespace: namespace,
			Name:      "probe_duration_seconds",
			Help:      "Duration of one probe cycle.",
			Buckets:   []float64{0.1, 0.25, 0.5, 1, 2.5, 5, 10, 20, 40},
		}),
		AddonQueriesTotal: factory.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "addon_queries_total",
			Help:      "Addon stream queries by addon and result.",
		}, []string{"addon", "result"}),
		StreamsMatched: factory.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "streams_matched_total",
			Help:      "Streams that passed classification and filters.",
		}),
		RecheckPasses: factory.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "recheck_passes_total",
			Help:      "Completed scheduled recheck passes.",
		}),
		RecheckItems: factory.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "recheck_items_total",
			Help:      "Items re-probed by the scheduler.",
		}),
		NotificationsTotal: factory.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "notifications_total",
			Help:      "Availability notifications by result.",
		}, []string{"result"}),
	}
}

// NewRegistry returns a registry carrying the Go runtime and process
// collectors together with the pipeline metrics
func NewRegistry() (*prometheus.Registry, *Metrics) {
	reg := prometheus.NewRegistry()
	reg.MustRegister(
		collectors.NewGoCollector(),
		collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}),
	)
	return reg, New(reg)
}

// NewNop returns metrics registered on a throwaway registry, for tests and CLI commands
func NewNop() *Metrics {
	return New(prometheus.NewRegistry())
}
