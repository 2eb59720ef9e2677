package combiner

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

// These metrics mirror go/bindings/combine.go's per-binding combine
// counters, renamed out of the flow_ namespace since this module isn't
// the CGO-bound bindings layer the name referred to there.

var addDocsCounter = promauto.NewCounterVec(prometheus.CounterOpts{
	Name: "combine_add_docs_total",
	Help: "Count of documents passed to Combiner.Add",
}, []string{"binding"})

var addBytesCounter = promauto.NewCounterVec(prometheus.CounterOpts{
	Name: "combine_add_bytes_total",
	Help: "Number of document bytes passed to Combiner.Add",
}, []string{"binding"})

var ackDroppedCounter = promauto.NewCounterVec(prometheus.CounterOpts{
	Name: "combine_ack_dropped_total",
	Help: "Count of documents silently dropped because their UUID carried an ACK flag",
}, []string{"binding"})

var spillRunsCounter = promauto.NewCounterVec(prometheus.CounterOpts{
	Name: "combine_spill_runs_total",
	Help: "Count of spill runs written by a Combiner",
}, []string{"binding"})

var drainDocsCounter = promauto.NewCounterVec(prometheus.CounterOpts{
	Name: "combine_drain_docs_total",
	Help: "Count of documents emitted from Combiner.Drain",
}, []string{"binding"})

var drainBytesCounter = promauto.NewCounterVec(prometheus.CounterOpts{
	Name: "combine_drain_bytes_total",
	Help: "Number of document bytes emitted from Combiner.Drain",
}, []string{"binding"})

// bindingMetrics bundles one binding's counter handles, resolved once
// at Open time rather than re-resolved (a WithLabelValues lookup) on
// every Add/Drain call.
type bindingMetrics struct {
	addDocs      prometheus.Counter
	addBytes     prometheus.Counter
	ackDropped   prometheus.Counter
	spillRuns    prometheus.Counter
	drainDocs    prometheus.Counter
	drainBytes   prometheus.Counter
}

func newBindingMetrics(label string) bindingMetrics {
	return bindingMetrics{
		addDocs:    addDocsCounter.WithLabelValues(label),
		addBytes:   addBytesCounter.WithLabelValues(label),
		ackDropped: ackDroppedCounter.WithLabelValues(label),
		spillRuns:  spillRunsCounter.WithLabelValues(label),
		drainDocs:  drainDocsCounter.WithLabelValues(label),
		drainBytes: drainBytesCounter.WithLabelValues(label),
	}
}
