package metrics

import (
	"net/http"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

// Dispatch holds the counters for every dispatch outcome and failure class.
type Dispatch struct {
	Submitted         prometheus.Counter
	Duplicates        prometheus.Counter
	Conflicts         prometheus.Counter
	DecodeFailures    prometheus.Counter
	RetryableFailures prometheus.Counter
	OrphanedJobs      prometheus.Counter
	BatchSize         prometheus.Histogram
}

// NewDispatch registers the dispatch collectors on the default registry.
func NewDispatch() *Dispatch {
	return NewDispatchWith(prometheus.DefaultRegisterer)
}

// NewDispatchWith registers the dispatch collectors on reg.
func NewDispatchWith(reg prometheus.Registerer) *Dispatch {
	factory := promauto.With(reg)
	return &Dispatch{
		Submitted: factory.NewCounter(prometheus.CounterOpts{
			Name: "transcribeflow_dispatch_submitted_total",
			Help: "Transcription jobs submitted and recorded.",
		}),
		Duplicates: factory.NewCounter(prometheus.CounterOpts{
			Name: "transcribeflow_dispatch_duplicates_total",
			Help: "Events skipped because a job record already existed.",
		}),
		Conflicts: factory.NewCounter(prometheus.CounterOpts{
			Name: "transcribeflow_dispatch_conflicts_total",
			Help: "Submissions that lost the record race to a concurrent dispatch.",
		}),
		DecodeFailures: factory.NewCounter(prometheus.CounterOpts{
			Name: "transcribeflow_dispatch_decode_failures_total",
			Help: "Messages dropped as undecodable.",
		}),
		RetryableFailures: factory.NewCounter(prometheus.CounterOpts{
			Name: "transcribeflow_dispatch_retryable_failures_total",
			Help: "Events routed to the retry topic.",
		}),
		OrphanedJobs: factory.NewCounter(prometheus.CounterOpts{
			Name: "transcribeflow_dispatch_orphaned_jobs_total",
			Help: "Submitted jobs whose record write failed; need manual reconciliation.",
		}),
		BatchSize: factory.NewHistogram(prometheus.HistogramOpts{
			Name:    "transcribeflow_intake_batch_size",
			Help:    "Messages per intake batch.",
			Buckets: prometheus.LinearBuckets(1, 1, 10),
		}),
	}
}

// Handler exposes the default registry for scraping.
func Handler() http.Handler {
	return promhttp.Handler()
}
