package engine

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

type Metrics struct {
	// Latency: сколько времени занял прогон пайплайна целиком
	PipelineDuration *prometheus.HistogramVec

	// Traffic: финальные решения по статусам
	DecisionsTotal *prometheus.CounterVec

	// Сработавшие правила комплаенса
	PolicyViolations *prometheus.CounterVec

	// Деградации скоринга (бэкенд недоступен или упал)
	ScorerFallbacks prometheus.Counter

	// Saturation: состояние Circuit Breaker скорера (0 - ок, 1 - выбило)
	ScorerBreakerState prometheus.Gauge

	// Несостоявшиеся записи трейса (решение при этом отдается)
	JournalWriteErrors prometheus.Counter
}

func NewMetrics(reg prometheus.Registerer) *Metrics {
	// Null Object Pattern - Если рег не передан, используем локальный, который никуда не подключен
	if reg == nil {
		reg = prometheus.NewRegistry()
	}

	return &Metrics{
		PipelineDuration: promauto.With(reg).NewHistogramVec(prometheus.HistogramOpts{
			Name:    "fds_pipeline_duration_seconds",
			Help:    "Histogram of full pipeline run latencies.",
			Buckets: []float64{.005, .01, .025, .05, .1, .25, .5, 1, 2.5, 5, 10},
		}, []string{"status"}),

		DecisionsTotal: promauto.With(reg).NewCounterVec(prometheus.CounterOpts{
			Name: "fds_decisions_total",
			Help: "Total number of final decisions by status.",
		}, []string{"status"}),

		PolicyViolations: promauto.With(reg).NewCounterVec(prometheus.CounterOpts{
			Name: "fds_policy_violations_total",
			Help: "Total number of matched policy rules.",
		}, []string{"rule_id"}),

		ScorerFallbacks: promauto.With(reg).NewCounter(prometheus.CounterOpts{
			Name: "fds_scorer_fallbacks_total",
			Help: "Total number of runs resolved with the default risk score.",
		}),

		ScorerBreakerState: promauto.With(reg).NewGauge(prometheus.GaugeOpts{
			Name: "fds_scorer_circuit_breaker_state",
			Help: "Current state of the scorer circuit breaker (0=closed, 1=open).",
		}),

		JournalWriteErrors: promauto.With(reg).NewCounter(prometheus.CounterOpts{
			Name: "fds_journal_write_errors_total",
			Help: "Total number of trace steps that failed to persist.",
		}),
	}
}
