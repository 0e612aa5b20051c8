package campaign

import (
	"promoflow/services/task"

	"go.uber.org/fx"
)

var Module = fx.Module("campaign.service",
	fx.Provide(NewService),
	fx.Invoke(func(tasks *task.Service, s *Service) {
		RegisterHandlers(tasks, s)
	}),
)
