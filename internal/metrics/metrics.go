// Package metrics holds the Prometheus collectors for the order ticket and
// the paper backend.
//
//   - orderdesk_submissions_total{outcome}       executed|cancelled|duplicate|failed
//   - orderdesk_stale_results_total{source}      chain|analysis
//   - orderdesk_chain_fetches_total{level,result} expirations|strikes, ok|error
//   - orderdesk_analysis_fetches_total{result}   ok|error
//   - orderdesk_template_use_failures_total
//   - orderdesk_backend_executions_total{result} accepted|rejected|duplicate|dry_run
//
// Collectors are registered on the default registry in init(). The backend
// serves them with promhttp.Handler() on /metrics; the short-lived CLI writes
// them to a textfile for node_exporter with WriteTextfile.
package metrics

import "github.com/prometheus/client_golang/prometheus"

var (
	Submissions = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "orderdesk_submissions_total",
			Help: "Order submissions by outcome as seen by the ticket.",
		},
		[]string{"outcome"},
	)

	StaleResults = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "orderdesk_stale_results_total",
			Help: "Responses discarded because the form moved on before they arrived.",
		},
		[]string{"source"},
	)

	ChainFetches = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "orderdesk_chain_fetches_total",
			Help: "Option chain requests by level and result.",
		},
		[]string{"level", "result"},
	)

	AnalysisFetches = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "orderdesk_analysis_fetches_total",
			Help: "Analysis snapshot requests by result.",
		},
		[]string{"result"},
	)

	TemplateUseFailures = prometheus.NewCounter(
		prometheus.CounterOpts{
			Name: "orderdesk_template_use_failures_total",
			Help: "Fire-and-forget template usage stamps that failed.",
		},
	)

	BackendExecutions = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "orderdesk_backend_executions_total",
			Help: "Execution requests handled by the paper backend, by result.",
		},
		[]string{"result"},
	)
)

func init() {
	prometheus.MustRegister(Submissions, StaleResults, ChainFetches, AnalysisFetches)
	prometheus.MustRegister(TemplateUseFailures, BackendExecutions)
}

func IncSubmission(outcome string) { Submissions.WithLabelValues(outcome).Inc() }
func IncStale(source string)       { StaleResults.WithLabelValues(source).Inc() }
func IncTemplateUseFailure()       { TemplateUseFailures.Inc() }
func IncBackendExecution(r string) { BackendExecutions.WithLabelValues(r).Inc() }

// IncChainFetch records one option chain request.
func IncChainFetch(level string, err error) {
	ChainFetches.WithLabelValues(level, result(err)).Inc()
}

// IncAnalysisFetch records one analysis request.
func IncAnalysisFetch(err error) {
	AnalysisFetches.WithLabelValues(result(err)).Inc()
}

// WriteTextfile writes every collector on the default registry to path in
// the text exposition format. The file is replaced atomically.
func WriteTextfile(path string) error {
	return prometheus.WriteToTextfile(path, prometheus.DefaultGatherer)
}

func result(err error) string {
	if err != nil {
		return "error"
	}
	return "ok"
}
