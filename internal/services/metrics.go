package services

import (
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
)

// Metrics holds the service's Prometheus collectors on their own registry.
type Metrics struct {
	Registry *prometheus.Registry

	SolveDuration   prometheus.Histogram
	SquadsGenerated *prometheus.CounterVec
	BacktestRuns    *prometheus.CounterVec
	RoundsProcessed *prometheus.CounterVec
	CacheHits       *prometheus.CounterVec
	CacheMisses     *prometheus.CounterVec
	PredictedRound  prometheus.Gauge
}

func NewMetrics() *Metrics {
	m := &Metrics{
		Registry: prometheus.NewRegistry(),
		SolveDuration: prometheus.NewHistogram(prometheus.HistogramOpts{
			Name:    "cartola_squad_solve_duration_seconds",
			Help:    "Wall time of squad optimizations",
			Buckets: []float64{0.001, 0.005, 0.01, 0.025, 0.05, 0.1, 0.25, 0.5, 1, 2.5, 5, 10},
		}),
		SquadsGenerated: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "cartola_squads_generated_total",
			Help: "Squad generation requests by formation and result",
		}, []string{"formation", "result"}),
		BacktestRuns: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "cartola_backtest_runs_total",
			Help: "Backtest runs by result",
		}, []string{"result"}),
		RoundsProcessed: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "cartola_backtest_rounds_total",
			Help: "Backtest rounds by status",
		}, []string{"status"}),
		CacheHits: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "cartola_cache_hits_total",
			Help: "Cache hits by cache type",
		}, []string{"cache_type"}),
		CacheMisses: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "cartola_cache_misses_total",
			Help: "Cache misses by cache type",
		}, []string{"cache_type"}),
		PredictedRound: prometheus.NewGauge(prometheus.GaugeOpts{
			Name: "cartola_predicted_round",
			Help: "Round number of the current prediction snapshot",
		}),
	}

	m.Registry.MustRegister(
		collectors.NewGoCollector(),
		collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}),
		m.SolveDuration,
		m.SquadsGenerated,
		m.BacktestRuns,
		m.RoundsProcessed,
		m.CacheHits,
		m.CacheMisses,
		m.PredictedRound,
	)
	return m
}

// ObserveSolve records one optimizer run.
func (m *Metrics) ObserveSolve(d time.Duration) {
	m.SolveDuration.Observe(d.Seconds())
}

func (m *Metrics) cacheResult(cacheType string, hit bool) {
	if hit {
		m.CacheHits.WithLabelValues(cacheType).Inc()
		return
	}
	m.CacheMisses.WithLabelValues(cacheType).Inc()
}
