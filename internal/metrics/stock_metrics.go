package metrics

import (
	"time"

	"github.com/prometheus/client_golang/prometheus"
)

// StockMetrics — метрики проверки наличия и списания остатков.
type StockMetrics struct {
	availabilityChecks *prometheus.CounterVec
	commits            *prometheus.CounterVec
	commitDuration     *prometheus.HistogramVec
	compensations      prometheus.Counter
	degradedMode       prometheus.Gauge
}

// NewStockMetrics регистрирует метрики в DefaultRegisterer.
func NewStockMetrics() *StockMetrics {
	return NewStockMetricsWithRegisterer(prometheus.DefaultRegisterer)
}

// NewStockMetricsWithRegisterer регистрирует метрики в переданном реестре.
func NewStockMetricsWithRegisterer(registerer prometheus.Registerer) *StockMetrics {
	if registerer == nil {
		registerer = prometheus.DefaultRegisterer
	}

	return &StockMetrics{
		availabilityChecks: registerCounterVec(registerer, prometheus.CounterOpts{
			Name: "storefront_stock_availability_checks_total",
			Help: "Availability checks by outcome (ok, shortfall, error)",
		}, []string{"outcome"}),
		commits: registerCounterVec(registerer, prometheus.CounterOpts{
			Name: "storefront_stock_commits_total",
			Help: "Stock commits by mode and outcome",
		}, []string{"mode", "outcome"}),
		commitDuration: registerHistogramVec(registerer, prometheus.HistogramOpts{
			Name:    "storefront_stock_commit_duration_seconds",
			Help:    "Duration of stock commits in seconds",
			Buckets: []float64{0.001, 0.005, 0.01, 0.025, 0.05, 0.1, 0.25, 0.5, 1.0, 2.5, 5.0},
		}, []string{"mode"}),
		compensations: registerCounter(registerer, prometheus.CounterOpts{
			Name: "storefront_stock_compensations_total",
			Help: "Stock decrements reverted by best-effort commits",
		}),
		degradedMode: registerGauge(registerer, prometheus.GaugeOpts{
			Name: "storefront_stock_commit_degraded",
			Help: "1 when stock commits run without store transactions",
		}),
	}
}

// RecordAvailabilityCheck учитывает результат проверки наличия.
func (m *StockMetrics) RecordAvailabilityCheck(outcome string) {
	m.availabilityChecks.WithLabelValues(outcome).Inc()
}

// RecordCommit учитывает результат коммита и его длительность.
func (m *StockMetrics) RecordCommit(mode, outcome string, duration time.Duration) {
	m.commits.WithLabelValues(mode, outcome).Inc()
	m.commitDuration.WithLabelValues(mode).Observe(duration.Seconds())
}

func (m *StockMetrics) RecordCompensation() {
	m.compensations.Inc()
}

// SetDegraded переключает индикатор работы без транзакций.
func (m *StockMetrics) SetDegraded(degraded bool) {
	if degraded {
		m.degradedMode.Set(1)
		return
	}
	m.degradedMode.Set(0)
}
