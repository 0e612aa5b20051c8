package ledger

import "github.com/prometheus/client_golang/prometheus"

var (
	deductTotal = prometheus.NewCounterVec(prometheus.CounterOpts{
		Name: "ledger_deduct_total",
		Help: "Balance deductions by action and outcome.",
	}, []string{"action", "outcome"})
	pricingCacheHits = prometheus.NewCounter(prometheus.CounterOpts{Name: "pricing_cache_hits_total"})
	pricingCacheMiss = prometheus.NewCounter(prometheus.CounterOpts{Name: "pricing_cache_miss_total"})
)

// Collectors returns the ledger metrics for registration.
func Collectors() []prometheus.Collector {
	return []prometheus.Collector{deductTotal, pricingCacheHits, pricingCacheMiss}
}
