package campaign

import (
	"context"
	"fmt"

	"promoflow/services/task"
)

// Registrar is the subset of the task service handlers are registered on.
type Registrar interface {
	Register(typ task.Type, h task.HandlerFunc)
}

// RegisterHandlers binds the campaign task types to this service.
func RegisterHandlers(r Registrar, s *Service) {
	r.Register(task.TypeCheckCampaign, s.handleCheck(false))
	r.Register(task.TypeCheckManagedCampaign, s.handleCheck(true))
	r.Register(task.TypeRestartCampaign, s.handleRestart)
	r.Register(task.TypeSwitchWork, s.handleSwitch)
	r.Register(task.TypePauseCampaign, s.handlePause)
	r.Register(task.TypeSyncAccount, s.handleSyncAccount)
}

// skipIfFinal marks errors a retry cannot fix as terminal.
func skipIfFinal(err error) error {
	if err == nil || !isBusinessError(err) {
		return err
	}
	return fmt.Errorf("%w: %w", task.ErrSkipRetry, err)
}

func missingRef(t *task.Task, ref string) error {
	return fmt.Errorf("%w: %s task %s has no %s", task.ErrSkipRetry, t.Type, t.ID, ref)
}

func (s *Service) handleCheck(managed bool) task.HandlerFunc {
	return func(ctx context.Context, t *task.Task) (any, error) {
		if t.CampaignID == "" {
			return nil, missingRef(t, "campaign_id")
		}
		if t.WorkID == "" {
			return nil, missingRef(t, "work_id")
		}

		p, err := task.DecodeParams[task.CheckCampaignParams](t)
		if err != nil {
			return nil, fmt.Errorf("%w: %w", task.ErrSkipRetry, err)
		}

		res, err := s.CheckCampaign(ctx, CheckRequest{
			CampaignID: t.CampaignID,
			WorkID:     t.WorkID,
			Batch:      p.Batch,
			Managed:    managed,
		})
		return res, skipIfFinal(err)
	}
}

func (s *Service) handleRestart(ctx context.Context, t *task.Task) (any, error) {
	if t.WorkID == "" {
		return nil, missingRef(t, "work_id")
	}

	p, err := task.DecodeParams[task.RestartCampaignParams](t)
	if err != nil {
		return nil, fmt.Errorf("%w: %w", task.ErrSkipRetry, err)
	}
	if p.PreviousCampaignID == "" {
		p.PreviousCampaignID = t.CampaignID
	}

	res, err := s.RestartCampaign(ctx, t.WorkID, p)
	if err != nil {
		return nil, skipIfFinal(err)
	}
	if !res.Success {
		return res, fmt.Errorf("%w: %s", task.ErrSkipRetry, res.Error)
	}
	return res, nil
}

func (s *Service) handleSwitch(ctx context.Context, t *task.Task) (any, error) {
	if t.AccountID == "" {
		return nil, missingRef(t, "account_id")
	}

	p, err := task.DecodeParams[task.SwitchWorkParams](t)
	if err != nil {
		return nil, fmt.Errorf("%w: %w", task.ErrSkipRetry, err)
	}
	if p.FromWorkID == "" {
		p.FromWorkID = t.WorkID
	}

	res, err := s.SwitchWork(ctx, t.AccountID, p)
	if err != nil {
		return nil, skipIfFinal(err)
	}
	if res.Submit != nil && !res.Submit.Success {
		return res, fmt.Errorf("%w: %s", task.ErrSkipRetry, res.Submit.Error)
	}
	return res, nil
}

func (s *Service) handlePause(ctx context.Context, t *task.Task) (any, error) {
	if t.CampaignID == "" {
		return nil, missingRef(t, "campaign_id")
	}

	p, err := task.DecodeParams[task.PauseCampaignParams](t)
	if err != nil {
		return nil, fmt.Errorf("%w: %w", task.ErrSkipRetry, err)
	}

	c, err := s.PauseDelivery(ctx, t.CampaignID, p.Reason)
	return c, skipIfFinal(err)
}

func (s *Service) handleSyncAccount(ctx context.Context, t *task.Task) (any, error) {
	if t.AccountID == "" {
		return nil, missingRef(t, "account_id")
	}

	a, err := s.SyncAccount(ctx, t.AccountID)
	if err != nil {
		return nil, skipIfFinal(err)
	}
	return map[string]any{"account_id": a.ID, "last_synced_at": a.LastSyncedAt}, nil
}
