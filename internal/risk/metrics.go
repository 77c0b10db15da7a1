package risk

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

//nolint:gochecknoglobals // Prometheus metrics
var (
	ValidationsTotal = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "polymarket_risk_validations_total",
		Help: "Total number of trade validations by result (approved, adjusted, rejected)",
	}, []string{"result"})
)
