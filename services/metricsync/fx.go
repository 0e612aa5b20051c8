package metricsync

import (
	"promoflow/services/task"

	"go.uber.org/fx"
)

var Module = fx.Module("metricsync.service",
	fx.Provide(
		NewAdPlatformSource,
		NewService,
	),
	fx.Invoke(func(tasks *task.Service, s *Service) {
		RegisterHandlers(tasks, s)
	}),
)
