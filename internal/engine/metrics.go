package engine

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

type Metrics struct {
	// Latency: сколько заняла каждая фаза (включая паузы темпа)
	PhaseDuration *prometheus.HistogramVec

	// Исходы транзакций: completed, no_candidates, no_proposals, no_logistics, no_buyer
	RunsTotal *prometheus.CounterVec

	// Busy: попытки запуска при активной транзакции
	StartRejections prometheus.Counter

	// Котировки поставщиков: offered / failed
	Quotes *prometheus.CounterVec

	// Последняя цена за единицу по каждому поставщику
	LastQuotePrice *prometheus.GaugeVec

	// Saturation: состояние Circuit Breaker (0 - closed, 0.5 - half-open, 1 - open)
	CircuitBreakerState *prometheus.GaugeVec

	// Audit: заполненность буфера журнала (backpressure)
	JournalBufferFill prometheus.Gauge
}

func NewMetrics(reg prometheus.Registerer) *Metrics {
	// Null Object Pattern - если реестр не передан, используем локальный, никуда не подключенный
	if reg == nil {
		reg = prometheus.NewRegistry()
	}

	return &Metrics{
		PhaseDuration: promauto.With(reg).NewHistogramVec(prometheus.HistogramOpts{
			Name:    "nexusflow_phase_duration_seconds",
			Help:    "Histogram of workflow phase durations.",
			Buckets: []float64{.001, .01, .05, .1, .25, .5, 1, 2.5, 5, 10},
		}, []string{"phase"}),

		RunsTotal: promauto.With(reg).NewCounterVec(prometheus.CounterOpts{
			Name: "nexusflow_workflow_runs_total",
			Help: "Total number of finished workflow runs by outcome.",
		}, []string{"outcome"}),

		StartRejections: promauto.With(reg).NewCounter(prometheus.CounterOpts{
			Name: "nexusflow_start_rejections_total",
			Help: "Start requests rejected because a workflow was already running.",
		}),

		Quotes: promauto.With(reg).NewCounterVec(prometheus.CounterOpts{
			Name: "nexusflow_quotes_total",
			Help: "Supplier quotes by result.",
		}, []string{"result"}),

		LastQuotePrice: promauto.With(reg).NewGaugeVec(prometheus.GaugeOpts{
			Name: "nexusflow_last_quote_price",
			Help: "Last quoted price per unit by supplier node.",
		}, []string{"node_id"}),

		CircuitBreakerState: promauto.With(reg).NewGaugeVec(prometheus.GaugeOpts{
			Name: "nexusflow_circuit_breaker_state",
			Help: "Current state of the circuit breaker (0=closed, 0.5=half-open, 1=open).",
		}, []string{"breaker"}),

		JournalBufferFill: promauto.With(reg).NewGauge(prometheus.GaugeOpts{
			Name: "nexusflow_journal_buffer_utilization",
			Help: "Current number of ledger entries waiting in the audit journal buffer.",
		}),
	}
}
