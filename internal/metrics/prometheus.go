package metrics

import (
	"net/http"
	"strconv"

	prom "github.com/prometheus/client_golang/prometheus"
	promhttp "github.com/prometheus/client_golang/prometheus/promhttp"
)

type promRecorder struct {
	dbTotal    *prom.CounterVec
	dbSeconds  *prom.HistogramVec
	llmTotal   *prom.CounterVec
	llmSeconds *prom.HistogramVec
	degraded   prom.Counter
}

func (p *promRecorder) IncDBOpTotal(op string, success bool) {
	p.dbTotal.WithLabelValues(op, strconv.FormatBool(success)).Inc()
}

func (p *promRecorder) ObserveDBOpSeconds(op string, success bool, seconds float64) {
	p.dbSeconds.WithLabelValues(op, strconv.FormatBool(success)).Observe(seconds)
}

func (p *promRecorder) IncLLMCallTotal(provider string, success bool) {
	p.llmTotal.WithLabelValues(provider, strconv.FormatBool(success)).Inc()
}

func (p *promRecorder) ObserveLLMCallSeconds(provider string, success bool, seconds float64) {
	p.llmSeconds.WithLabelValues(provider, strconv.FormatBool(success)).Observe(seconds)
}

func (p *promRecorder) IncMemoryContextDegraded() {
	p.degraded.Inc()
}

// EnablePrometheus installs a Prometheus recorder on a fresh registry and
// returns the handler exposing it.
func EnablePrometheus() http.Handler {
	registry := prom.NewRegistry()
	p := &promRecorder{
		dbTotal: prom.NewCounterVec(prom.CounterOpts{
			Name: "db_ops_total",
			Help: "Total number of DB operations",
		}, []string{"op", "success"}),
		dbSeconds: prom.NewHistogramVec(prom.HistogramOpts{
			Name:    "db_op_seconds",
			Help:    "DB operation duration in seconds",
			Buckets: prom.DefBuckets,
		}, []string{"op", "success"}),
		llmTotal: prom.NewCounterVec(prom.CounterOpts{
			Name: "llm_calls_total",
			Help: "Total number of chat-completion calls",
		}, []string{"provider", "success"}),
		llmSeconds: prom.NewHistogramVec(prom.HistogramOpts{
			Name:    "llm_call_seconds",
			Help:    "Chat-completion call duration in seconds",
			Buckets: []float64{0.25, 0.5, 1, 2, 5, 10, 30, 60, 90},
		}, []string{"provider", "success"}),
		degraded: prom.NewCounter(prom.CounterOpts{
			Name: "memory_context_degraded_total",
			Help: "Memory context builds that fell back to the default text",
		}),
	}

	registry.MustRegister(p.dbTotal, p.dbSeconds, p.llmTotal, p.llmSeconds, p.degraded)
	SetRecorder(p)

	return promhttp.HandlerFor(registry, promhttp.HandlerOpts{})
}
