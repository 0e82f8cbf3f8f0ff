package pipeline

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

var (
	QueriesCompiled = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "ekaya_insights_queries_compiled_total", Help: "Statements produced, by tenant and dialect.",
	}, []string{"tenant", "dialect"})

	QueriesRejected = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "ekaya_insights_queries_rejected_total", Help: "Intents rejected, by pipeline stage and error kind.",
	}, []string{"stage", "kind"})

	PolicyFilters = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "ekaya_insights_policy_filters_total", Help: "Row-level predicates added to compiled statements.",
	}, []string{"tenant"})

	CompileDuration = promauto.NewHistogramVec(prometheus.HistogramOpts{
		Name:    "ekaya_insights_compile_duration_seconds",
		Help:    "Time from intent to rendered SQL.",
		Buckets: []float64{.0005, .001, .0025, .005, .01, .025, .05, .1},
	}, []string{"dialect"})

	Extractions = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "ekaya_insights_intent_extractions_total", Help: "Intent extractor calls, by result.",
	}, []string{"result"})
)
