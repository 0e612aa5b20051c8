package httpapi

import (
	"promoflow/pkg/health"

	"github.com/gin-gonic/gin"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"go.uber.org/fx"
)

// Module exposes the operational endpoints: probes and prometheus scrape.
var Module = fx.Module("httpapi",
	fx.Invoke(registerOperationalEndpoints),
)

type params struct {
	fx.In

	Engine   *gin.Engine
	Health   health.HealthService
	Gatherer prometheus.Gatherer `optional:"true"`
}

func registerOperationalEndpoints(p params) {
	p.Engine.GET("/healthz", p.Health.Liveness)
	p.Engine.GET("/readyz", p.Health.Readiness)

	gatherer := p.Gatherer
	if gatherer == nil {
		gatherer = prometheus.DefaultGatherer
	}
	p.Engine.GET("/metrics", gin.WrapH(promhttp.HandlerFor(gatherer, promhttp.HandlerOpts{})))
}
