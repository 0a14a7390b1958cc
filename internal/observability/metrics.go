package observability

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

// Metrics contains all Prometheus metrics for the research analytics
// service. Metrics are organized by subsystem: queries, facets, exports and
// streams. All collectors are registered via promauto with the default
// registry.
type Metrics struct {
	// QueriesTotal counts list queries, labeled by entity and scope kind.
	QueriesTotal *prometheus.CounterVec

	// QueryDuration observes list query duration in seconds, labeled by
	// entity and scope kind.
	QueryDuration *prometheus.HistogramVec

	// QueryErrors counts failed queries, labeled by entity and error kind.
	QueryErrors *prometheus.CounterVec

	// FacetQueriesTotal counts facet fan-out requests.
	FacetQueriesTotal prometheus.Counter

	// FacetDimensionFailures counts facet sub-pipelines that failed and
	// were omitted from the payload, labeled by dimension.
	FacetDimensionFailures *prometheus.CounterVec

	// FacetDuration observes the duration of the whole facet fan-out.
	FacetDuration prometheus.Histogram

	// CSVExportsTotal counts CSV export requests, labeled by entity.
	CSVExportsTotal *prometheus.CounterVec

	// CSVRowsStreamed counts rows written across all CSV exports.
	CSVRowsStreamed prometheus.Counter

	// DocumentsStreamed counts documents decoded by lazy result streams.
	DocumentsStreamed prometheus.Counter

	// StreamDecodeFailures counts documents that failed to decode inside a
	// result stream.
	StreamDecodeFailures prometheus.Counter
}

// NewMetrics creates a new Metrics instance with all metrics initialized.
// The namespace is used as a prefix for all metric names.
func NewMetrics(namespace string) *Metrics {
	return &Metrics{
		QueriesTotal: promauto.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "queries_total",
			Help:      "Total number of list queries executed",
		}, []string{"entity", "scope"}),
		QueryDuration: promauto.NewHistogramVec(prometheus.HistogramOpts{
			Namespace: namespace,
			Name:      "query_duration_seconds",
			Help:      "List query duration in seconds",
			Buckets:   prometheus.DefBuckets,
		}, []string{"entity", "scope"}),
		QueryErrors: promauto.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "query_errors_total",
			Help:      "Total number of failed queries",
		}, []string{"entity", "kind"}),
		FacetQueriesTotal: promauto.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "facet_queries_total",
			Help:      "Total number of facet fan-out requests",
		}),
		FacetDimensionFailures: promauto.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "facet_dimension_failures_total",
			Help:      "Total number of facet sub-pipelines omitted after failure",
		}, []string{"dimension"}),
		FacetDuration: promauto.NewHistogram(prometheus.HistogramOpts{
			Namespace: namespace,
			Name:      "facet_duration_seconds",
			Help:      "Facet fan-out duration in seconds",
			Buckets:   prometheus.DefBuckets,
		}),
		CSVExportsTotal: promauto.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "csv_exports_total",
			Help:      "Total number of CSV export requests",
		}, []string{"entity"}),
		CSVRowsStreamed: promauto.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "csv_rows_streamed_total",
			Help:      "Total number of CSV rows written",
		}),
		DocumentsStreamed: promauto.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "documents_streamed_total",
			Help:      "Total number of documents decoded by result streams",
		}),
		StreamDecodeFailures: promauto.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "stream_decode_failures_total",
			Help:      "Total number of documents that failed to decode in a result stream",
		}),
	}
}
