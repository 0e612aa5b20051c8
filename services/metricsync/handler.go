package metricsync

import (
	"context"
	"fmt"

	"promoflow/pkg/errutil"
	"promoflow/pkg/logger"
	"promoflow/services/task"

	"go.uber.org/zap"
)

func RegisterHandlers(r interface {
	Register(typ task.Type, h task.HandlerFunc)
}, s *Service) {
	r.Register(task.TypeSyncWorkMetrics, s.handleSync)
}

func (s *Service) handleSync(ctx context.Context, t *task.Task) (any, error) {
	if t.WorkID == "" {
		return nil, fmt.Errorf("%w: %s task %s has no work_id", task.ErrSkipRetry, t.Type, t.ID)
	}

	p, err := task.DecodeParams[task.SyncWorkMetricsParams](t)
	if err != nil {
		return nil, fmt.Errorf("%w: %w", task.ErrSkipRetry, err)
	}

	res, err := s.Sync(ctx, t.WorkID, p.Attempt)
	if err != nil {
		switch errutil.StatusOf(err) {
		case errutil.StatusNotFound, errutil.StatusUnprocessableEntity:
			return nil, fmt.Errorf("%w: %w", task.ErrSkipRetry, err)
		}
		if t.RetryCount >= t.MaxRetries {
			if _, rerr := s.reseed(context.WithoutCancel(ctx), t); rerr != nil {
				logger.L(ctx).Error("failed to reseed metrics sync", zap.String("work_id", t.WorkID), zap.Error(rerr))
			}
		}
		return nil, err
	}
	return res, nil
}
