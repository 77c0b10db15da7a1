package resolution

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

//nolint:gochecknoglobals // Prometheus metrics
var (
	ChecksTotal = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "polymarket_resolution_checks_total",
		Help: "Total number of settlement checks by kind (scheduled, forced)",
	}, []string{"scheduler", "kind"})

	CheckErrorsTotal = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "polymarket_resolution_check_errors_total",
		Help: "Total number of failed settlement checks",
	}, []string{"scheduler"})

	ResolvedTotal = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "polymarket_resolution_resolved_total",
		Help: "Total number of positions settled",
	}, []string{"scheduler"})

	NextCheckSeconds = promauto.NewGaugeVec(prometheus.GaugeOpts{
		Name: "polymarket_resolution_next_check_seconds",
		Help: "Delay until the next scheduled settlement check",
	}, []string{"scheduler"})

	SchedulerRunning = promauto.NewGaugeVec(prometheus.GaugeOpts{
		Name: "polymarket_resolution_scheduler_running",
		Help: "Whether the resolution scheduler is active",
	}, []string{"scheduler"})
)
