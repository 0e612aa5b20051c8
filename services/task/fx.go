package task

import (
	asynqpkg "promoflow/pkg/asynq"

	"github.com/hibiken/asynq"
	"go.uber.org/fx"
)

var Module = fx.Module("task.service",
	fx.Provide(NewService),
)

// AsynqBeat routes the redis periodic beat to ProcessDue.
var AsynqBeat = fx.Module("task.beat.asynq",
	asynqpkg.Server,
	asynqpkg.Scheduler,
	fx.Invoke(func(mux *asynq.ServeMux, s *Service) {
		mux.HandleFunc(asynqpkg.ProcessDueTask, s.HandleProcessDueTask)
	}),
)

// LocalBeat drains due tasks from an in-process ticker.
var LocalBeat = fx.Module("task.beat.local",
	fx.Provide(NewScheduler),
	fx.Invoke(StartScheduler),
)
