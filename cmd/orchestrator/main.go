package main

import (
	"log"

	"github.com/prometheus/client_golang/prometheus"
	"go.uber.org/fx"
	"go.uber.org/fx/fxevent"
	"go.uber.org/zap"

	"promoflow/internal/httpapi"
	"promoflow/pkg/adplatform"
	"promoflow/pkg/config"
	"promoflow/pkg/db"
	"promoflow/pkg/gen"
	"promoflow/pkg/health"
	ophttp "promoflow/pkg/httpapi"
	"promoflow/pkg/logger"
	"promoflow/pkg/otelcol"
	"promoflow/pkg/profiling"
	"promoflow/pkg/redis"
	"promoflow/pkg/secretmanager"
	"promoflow/pkg/sequence"
	"promoflow/pkg/server"
	"promoflow/services/campaign"
	"promoflow/services/ledger"
	"promoflow/services/metricsync"
	"promoflow/services/task"
)

func main() {
	opts := []fx.Option{
		secretmanager.Module,
		config.Module,
		logger.Module,
		otelcol.Module,
		profiling.Module,
		db.Module,
		redis.Module,
		sequence.Module,
		adplatform.Module,
		health.Module,
		gen.Module,
		task.Module,
		ledger.Module,
		campaign.Module,
		metricsync.Module,
		beatModule(),
		server.Module,
		ophttp.Module,
		httpapi.Module,
		fx.Invoke(
			registerCollectors,
			validateHandlers,
		),
		fxLogger,
	}

	if err := fx.ValidateApp(opts...); err != nil {
		log.Fatalf("fx validation failed: %v", err)
	}

	app := fx.New(opts...)

	app.Run()
}

var fxLogger = fx.WithLogger(func(cfg *config.Config, logger *zap.Logger) fxevent.Logger {
	return fxevent.NopLogger
})

// beatModule picks what drives ProcessDue. It reads config on its own since
// the fx graph is not built yet.
func beatModule() fx.Option {
	cfg, err := config.Load(".")
	if err != nil {
		log.Fatalf("load config: %v", err)
	}

	switch cfg.Scheduler.BeatMode {
	case "local":
		return task.LocalBeat
	case "", "asynq":
		return task.AsynqBeat
	default:
		log.Fatalf("unknown SCHEDULER.BEAT_MODE %q", cfg.Scheduler.BeatMode)
		return nil
	}
}

func registerCollectors() error {
	collectors := append(ledger.Collectors(), task.Collectors()...)
	for _, c := range collectors {
		if err := prometheus.Register(c); err != nil {
			return err
		}
	}
	return nil
}

// validateHandlers fails startup when a task type has no handler.
func validateHandlers(tasks *task.Service) error {
	if err := tasks.Validate(); err != nil {
		zap.L().Error("task handlers incomplete", zap.Error(err))
		return err
	}
	return nil
}
