package task

import (
	"context"
	"encoding/json"
	"time"

	asynqpkg "promoflow/pkg/asynq"
	"promoflow/pkg/config"

	"github.com/hibiken/asynq"
	"go.uber.org/fx"
	"go.uber.org/zap"
)

// HandleProcessDueTask is the asynq handler for the periodic beat.
func (s *Service) HandleProcessDueTask(ctx context.Context, t *asynq.Task) error {
	var payload asynqpkg.ProcessDuePayload
	if len(t.Payload()) > 0 {
		if err := json.Unmarshal(t.Payload(), &payload); err != nil {
			zap.L().Error("invalid process_due payload", zap.Error(err))
			return err
		}
	}

	_, err := s.ProcessDue(ctx, payload.BatchSize)
	return err
}

// Scheduler is the in-process beat used when SCHEDULER.BEAT_MODE is "local".
// It drains due tasks every BEAT_EVERY until the app stops.
type Scheduler struct {
	service *Service
	every   time.Duration
	stop    chan struct{}
	done    chan struct{}
}

func NewScheduler(svc *Service, cfg *config.Config) *Scheduler {
	return &Scheduler{
		service: svc,
		every:   cfg.Scheduler.BeatEvery,
		stop:    make(chan struct{}),
		done:    make(chan struct{}),
	}
}

func StartScheduler(lc fx.Lifecycle, s *Scheduler) {
	lc.Append(fx.Hook{
		OnStart: func(ctx context.Context) error {
			go s.run()
			return nil
		},
		OnStop: func(ctx context.Context) error {
			close(s.stop)
			select {
			case <-s.done:
			case <-ctx.Done():
			}
			return nil
		},
	})
}

func (s *Scheduler) run() {
	defer close(s.done)
	zap.L().Info("[Scheduler] started local beat", zap.Duration("every", s.every))

	ticker := time.NewTicker(s.every)
	defer ticker.Stop()

	for {
		select {
		case <-ticker.C:
			s.tick()
		case <-s.stop:
			zap.L().Info("[Scheduler] stopped")
			return
		}
	}
}

func (s *Scheduler) tick() {
	start := time.Now()
	res, err := s.service.ProcessDue(context.Background(), 0)
	if err != nil {
		zap.L().Error("[Scheduler] failed to process due tasks", zap.Error(err))
		return
	}

	if res.Processed > 0 {
		zap.L().Info("[Scheduler] batch finished",
			zap.Int("processed", res.Processed),
			zap.Duration("duration", time.Since(start)),
		)
	}
}
