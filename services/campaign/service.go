package campaign

import (
	"context"
	"errors"
	"fmt"
	"math"
	"time"

	"promoflow/pkg/adplatform"
	"promoflow/pkg/config"
	"promoflow/pkg/db/option"
	"promoflow/pkg/errutil"
	"promoflow/pkg/logger"
	"promoflow/pkg/repository"
	"promoflow/pkg/sequence"
	"promoflow/services/account"
	"promoflow/services/ledger"
	"promoflow/services/task"
	"promoflow/services/work"

	"github.com/bwmarrin/snowflake"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.uber.org/fx"
	"go.uber.org/zap"
	"gorm.io/gorm"
)

var tracer = otel.Tracer("promoflow/services/campaign")

// Enqueuer schedules follow-up tasks.
type Enqueuer interface {
	Enqueue(ctx context.Context, typ task.Type, refs task.Refs, params any, opts ...task.EnqueueOption) (string, error)
}

// Ledger charges paid actions.
type Ledger interface {
	Deduct(ctx context.Context, accountID string, action ledger.Action, dc ledger.DeductContext) (*ledger.Result, error)
	Refund(ctx context.Context, accountID string, action ledger.Action, amount int64, dc ledger.DeductContext) (*ledger.Result, error)
}

type Service struct {
	db   *gorm.DB
	node *snowflake.Node
	seq  sequence.Generator
	now  func() time.Time

	ads    adplatform.Client
	ledger Ledger
	tasks  Enqueuer

	thresholds Thresholds
	intervals  map[Interval]time.Duration
	budget     int64
	bid        int64
	objective  string

	campaign repository.Repository[Campaign]
	work     repository.Repository[work.Work]
	account  repository.Repository[account.Account]
	logs     repository.Repository[DeliveryLog]
}

type ServiceParams struct {
	fx.In

	DB     *gorm.DB
	Node   *snowflake.Node
	Seq    sequence.Generator
	Config *config.Config
	Ads    adplatform.Client
	Ledger *ledger.Service
	Tasks  *task.Service
}

func NewService(p ServiceParams) *Service {
	return newService(p.DB, p.Node, p.Seq, p.Config, p.Ads, p.Ledger, p.Tasks)
}

func newService(db *gorm.DB, node *snowflake.Node, seq sequence.Generator, cfg *config.Config, ads adplatform.Client, l Ledger, tasks Enqueuer) *Service {
	d := cfg.Decision
	return &Service{
		db:     db,
		node:   node,
		seq:    seq,
		now:    time.Now,
		ads:    ads,
		ledger: l,
		tasks:  tasks,

		thresholds: Thresholds{
			MinConsumption: d.MinConsumption,
			MaxCostPerLead: d.MaxCostPerLead,
			MaxFailRetries: d.MaxFailRetries,
		},
		intervals: map[Interval]time.Duration{
			IntervalShort: d.ShortInterval,
			IntervalLong:  d.LongInterval,
			IntervalQuick: d.QuickInterval,
		},
		budget:    d.DefaultBudget,
		bid:       d.DefaultBid,
		objective: d.Objective,

		campaign: repository.ProvideStore[Campaign](db),
		work:     repository.ProvideStore[work.Work](db),
		account:  repository.ProvideStore[account.Account](db),
		logs:     repository.ProvideStore[DeliveryLog](db),
	}
}

func credentials(a *account.Account) adplatform.Credentials {
	return adplatform.Credentials{AdvertiserID: a.AdvertiserID, AccessToken: a.AccessToken}
}

// CheckCampaign evaluates the current batch of an active campaign, applies
// the decision and records it in the delivery log.
func (s *Service) CheckCampaign(ctx context.Context, req CheckRequest) (*CheckResult, error) {
	ctx, span := tracer.Start(ctx, "campaign.CheckCampaign")
	defer span.End()
	span.SetAttributes(attribute.String("campaign_id", req.CampaignID), attribute.String("work_id", req.WorkID))

	log := logger.L(ctx).With(zap.String("campaign_id", req.CampaignID), zap.String("work_id", req.WorkID))

	c, err := s.getCampaign(ctx, req.CampaignID)
	if err != nil {
		return nil, err
	}
	if c.WorkID != req.WorkID {
		return nil, errutil.UnprocessableEntity(fmt.Sprintf("campaign %s does not belong to work %s", c.ID, req.WorkID), nil)
	}

	result := &CheckResult{CampaignID: c.ID, WorkID: c.WorkID}
	if c.Status != StatusActive {
		result.Skipped = true
		result.Reason = fmt.Sprintf("campaign is %s", c.Status)
		return result, nil
	}
	if req.Batch != 0 && req.Batch != c.CurrentBatch {
		result.Skipped = true
		result.Reason = fmt.Sprintf("check scheduled for batch %d, campaign is on batch %d", req.Batch, c.CurrentBatch)
		return result, nil
	}

	w, err := s.getWork(ctx, c.WorkID)
	if err != nil {
		return nil, err
	}
	acct, err := s.getAccount(ctx, c.AccountID)
	if err != nil {
		return nil, err
	}
	if !acct.HasDeliveryCredentials() {
		return nil, errutil.UnprocessableEntity(fmt.Sprintf("account %s has no delivery credentials", acct.ID), nil)
	}

	now := s.now()
	var m Metrics
	report, err := s.ads.GetReportData(ctx, adplatform.ReportRequest{
		Credentials: credentials(acct),
		CampaignID:  c.ExternalCampaignID,
		StartDate:   c.BatchStartAt,
		EndDate:     now,
	})
	if err != nil {
		log.Warn("report fetch failed, evaluating with zero metrics", zap.Error(err))
	} else {
		m = Metrics{Spent: report.Spent, Impressions: report.Impressions, Clicks: report.Clicks, Leads: report.Leads}
	}

	th := s.thresholds.ForAccount(acct)
	d := Decide(m, th, w.ConsecutiveFailures)
	span.SetAttributes(attribute.String("decision", string(d.Action)))

	switch d.Action {
	case ActionRestart:
		if err := s.ads.PauseCampaign(ctx, adplatform.CampaignRequest{Credentials: credentials(acct), CampaignID: c.ExternalCampaignID}); err != nil {
			log.Warn("failed to pause campaign on ad platform", zap.Error(err))
		}
	case ActionSwitchWork:
		s.stopExternal(ctx, log, acct, c)
	}

	c.BatchSpent, c.BatchImpressions, c.BatchClicks, c.BatchLeads = m.Spent, m.Impressions, m.Clicks, m.Leads

	entry := &DeliveryLog{
		ID:             s.node.Generate().String(),
		AccountID:      c.AccountID,
		WorkID:         c.WorkID,
		CampaignID:     c.ID,
		PeriodStart:    c.BatchStartAt,
		PeriodEnd:      now,
		Spent:          m.Spent,
		Impressions:    m.Impressions,
		Clicks:         m.Clicks,
		Leads:          m.Leads,
		ConversionRate: m.ConversionRate(),
		IsEffective:    d.IsEffective,
		Decision:       d.Action,
		DecisionReason: d.Reason,
	}
	if cpl := m.CostPerLead(); !math.IsInf(cpl, 1) {
		entry.CostPerLead = &cpl
	}

	var nextID string
	err = s.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		campaignUpdates := map[string]any{
			"batch_spent":       c.BatchSpent,
			"batch_impressions": c.BatchImpressions,
			"batch_clicks":      c.BatchClicks,
			"batch_leads":       c.BatchLeads,
		}
		workUpdates := map[string]any{"consecutive_failures": d.ConsecutiveFailures}

		var (
			next   task.Type
			params any
			refs   = task.Refs{AccountID: c.AccountID, WorkID: c.WorkID, CampaignID: c.ID}
			delay  = s.intervals[d.Next]
		)

		switch d.Action {
		case ActionContinue:
			next = task.TypeCheckCampaign
			if req.Managed {
				next = task.TypeCheckManagedCampaign
			}
			params = task.CheckCampaignParams{Batch: c.CurrentBatch}

		case ActionRestart:
			campaignUpdates["status"] = StatusPaused
			campaignUpdates["paused_at"] = now
			foldBatch(w, c, workUpdates)

			next = task.TypeRestartCampaign
			params = task.RestartCampaignParams{PreviousCampaignID: c.ID}

		case ActionSwitchWork:
			campaignUpdates["status"] = StatusFailed
			workUpdates["status"] = work.StatusArchived
			foldBatch(w, c, workUpdates)

			next = task.TypeSwitchWork
			params = task.SwitchWorkParams{FromWorkID: c.WorkID, FailedCampaignID: c.ID}
			refs.CampaignID = ""
		}

		if err := s.campaign.WithTrx(tx).Update(ctx, c.ID, campaignUpdates); err != nil {
			return fmt.Errorf("update campaign: %w", err)
		}
		if err := s.work.WithTrx(tx).Update(ctx, w.ID, workUpdates); err != nil {
			return fmt.Errorf("update work: %w", err)
		}
		if err := s.logs.WithTrx(tx).Create(ctx, entry); err != nil {
			return fmt.Errorf("append delivery log: %w", err)
		}

		id, err := s.tasks.Enqueue(ctx, next, refs, params, task.ScheduleAt(now.Add(delay)), task.InTx(tx))
		if err != nil {
			return fmt.Errorf("enqueue %s: %w", next, err)
		}
		nextID = id
		return nil
	})
	if err != nil {
		log.Error("failed to apply decision", zap.String("decision", string(d.Action)), zap.Error(err))
		return nil, err
	}

	log.Info("campaign checked",
		zap.String("decision", string(d.Action)),
		zap.Float64("spent", m.Spent),
		zap.Int64("leads", m.Leads),
		zap.Int("consecutive_failures", d.ConsecutiveFailures),
		zap.String("reason", d.Reason),
	)

	result.Decision = d.Action
	result.Reason = d.Reason
	result.DeliveryLogID = entry.ID
	result.NextTaskID = nextID
	result.Spent = m.Spent
	result.Leads = m.Leads
	return result, nil
}

// foldBatch closes the campaign's batch into the work aggregates.
func foldBatch(w *work.Work, c *Campaign, updates map[string]any) {
	w.AddBatch(c.BatchSpent, c.BatchImpressions, c.BatchClicks, c.BatchLeads)

	updates["total_spent"] = w.TotalSpent
	updates["total_impressions"] = w.TotalImpressions
	updates["total_clicks"] = w.TotalClicks
	updates["total_leads"] = w.TotalLeads
	updates["avg_cost_per_lead"] = w.AvgCostPerLead
	updates["performance_score"] = w.PerformanceScore
}

func (s *Service) stopExternal(ctx context.Context, log *zap.Logger, acct *account.Account, c *Campaign) {
	if err := s.ads.PauseCampaign(ctx, adplatform.CampaignRequest{Credentials: credentials(acct), CampaignID: c.ExternalCampaignID}); err != nil {
		log.Warn("failed to pause campaign on ad platform", zap.Error(err))
	}
	if c.OrderNo == "" {
		return
	}
	if err := s.ads.CancelOrder(ctx, adplatform.CancelOrderRequest{Credentials: credentials(acct), OrderNo: c.OrderNo}); err != nil {
		log.Warn("failed to cancel order on ad platform", zap.String("order_no", c.OrderNo), zap.Error(err))
	}
}

// SubmitDelivery starts a campaign for a work. The campaign_create charge is
// taken before the ad platform call and refunded if that call fails.
func (s *Service) SubmitDelivery(ctx context.Context, req SubmitRequest) (*SubmitResult, error) {
	ctx, span := tracer.Start(ctx, "campaign.SubmitDelivery")
	defer span.End()

	log := logger.L(ctx).With(zap.String("account_id", req.AccountID), zap.String("work_id", req.WorkID))

	w, err := s.getWork(ctx, req.WorkID)
	if err != nil {
		return nil, err
	}
	if req.AccountID == "" {
		req.AccountID = w.AccountID
	}
	if w.AccountID != req.AccountID {
		return nil, errutil.UnprocessableEntity(fmt.Sprintf("work %s does not belong to account %s", w.ID, req.AccountID), nil)
	}

	if req.PreviousCampaignID != "" {
		prev, err := s.campaign.FindOne(ctx, &Campaign{PreviousCampaignID: req.PreviousCampaignID})
		if err != nil {
			return nil, err
		}
		if prev != nil {
			return &SubmitResult{Success: true, Idempotent: true, Campaign: prev}, nil
		}
	}

	active, err := s.campaign.FindOne(ctx, &Campaign{WorkID: w.ID, Status: StatusActive})
	if err != nil {
		return nil, err
	}
	if active != nil {
		return &SubmitResult{Success: true, Idempotent: true, Campaign: active}, nil
	}

	switch w.Status {
	case work.StatusPublished, work.StatusPromoting, work.StatusPaused:
	default:
		return nil, errutil.UnprocessableEntity(fmt.Sprintf("work %s is %s and cannot be promoted", w.ID, w.Status), nil)
	}

	acct, err := s.getAccount(ctx, req.AccountID)
	if err != nil {
		return nil, err
	}
	if !acct.HasDeliveryCredentials() {
		return nil, errutil.UnprocessableEntity(fmt.Sprintf("account %s has no delivery credentials", acct.ID), nil)
	}

	budget, bid := req.Budget, req.BidAmount
	if budget <= 0 {
		budget = s.budget
	}
	if bid <= 0 {
		bid = s.bid
	}

	id := s.node.Generate().String()
	charge, err := s.ledger.Deduct(ctx, acct.ID, ledger.ActionCampaignCreate, ledger.DeductContext{
		RelatedID:   id,
		RelatedType: "campaign",
		Description: fmt.Sprintf("create campaign for work %s", w.ID),
		Metadata:    map[string]any{"work_id": w.ID, "budget": budget},
	})
	if err != nil {
		return nil, err
	}
	if !charge.Success {
		log.Info("campaign not created", zap.String("reason", charge.Error))
		return &SubmitResult{Success: false, Error: charge.Error}, nil
	}

	refund := func(reason string) {
		if charge.Price == 0 {
			return
		}
		if _, err := s.ledger.Refund(ctx, acct.ID, ledger.ActionCampaignCreate, charge.Price, ledger.DeductContext{
			RelatedID:   charge.TransactionID,
			RelatedType: "transaction",
			Description: reason,
		}); err != nil {
			log.Error("failed to refund campaign charge", zap.Int64("amount", charge.Price), zap.Error(err))
		}
	}

	orderNo, err := s.seq.NextOrderNo(ctx, acct.ID)
	if err != nil {
		refund("order number unavailable")
		return nil, fmt.Errorf("next order no: %w", err)
	}

	created, err := s.ads.CreateCampaign(ctx, adplatform.CreateCampaignRequest{
		Credentials: credentials(acct),
		NoteID:      w.NoteID,
		OrderNo:     orderNo,
		Budget:      budget,
		BidAmount:   bid,
		Objective:   s.objective,
	})
	if err != nil {
		refund("ad platform rejected campaign")
		log.Error("failed to create campaign on ad platform", zap.Error(err))
		return nil, fmt.Errorf("create campaign: %w", err)
	}

	now := s.now()
	c := &Campaign{
		ID:                 id,
		AccountID:          acct.ID,
		WorkID:             w.ID,
		ExternalCampaignID: created.CampaignID,
		UnitID:             created.UnitID,
		OrderNo:            orderNo,
		Budget:             budget,
		BidAmount:          bid,
		Status:             StatusActive,
		CurrentBatch:       1,
		BatchStartAt:       now,
		PreviousCampaignID: req.PreviousCampaignID,
	}

	var checkID string
	err = s.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		if err := s.campaign.WithTrx(tx).Create(ctx, c); err != nil {
			return err
		}
		if err := s.work.WithTrx(tx).Update(ctx, w.ID, map[string]any{"status": work.StatusPromoting}); err != nil {
			return err
		}

		id, err := s.tasks.Enqueue(ctx, task.TypeCheckCampaign,
			task.Refs{AccountID: acct.ID, WorkID: w.ID, CampaignID: c.ID},
			task.CheckCampaignParams{Batch: 1},
			task.ScheduleAt(now.Add(s.intervals[IntervalShort])),
			task.InTx(tx),
		)
		checkID = id
		return err
	})
	if err != nil {
		// The external campaign exists but could not be recorded; stop it so
		// it does not spend untracked.
		s.stopExternal(ctx, log, acct, c)
		refund("campaign could not be recorded")
		log.Error("failed to persist campaign", zap.Error(err))
		return nil, errutil.Internal("campaign could not be recorded", err)
	}

	log.Info("campaign created", zap.String("campaign_id", c.ID), zap.String("order_no", orderNo), zap.Int64("budget", budget))
	return &SubmitResult{Success: true, Campaign: c, CheckID: checkID}, nil
}

// RestartCampaign replaces a paused campaign of the work with a new one.
func (s *Service) RestartCampaign(ctx context.Context, workID string, p task.RestartCampaignParams) (*SubmitResult, error) {
	w, err := s.getWork(ctx, workID)
	if err != nil {
		return nil, err
	}
	if w.Status == work.StatusArchived {
		return &SubmitResult{Success: false, Error: fmt.Sprintf("work %s is archived", w.ID)}, nil
	}

	return s.SubmitDelivery(ctx, SubmitRequest{
		AccountID:          w.AccountID,
		WorkID:             w.ID,
		Budget:             p.Budget,
		BidAmount:          p.BidAmount,
		PreviousCampaignID: p.PreviousCampaignID,
	})
}

// NextWork picks the best published work of the account to promote next,
// or nil when none qualifies.
func (s *Service) NextWork(ctx context.Context, accountID, excludeWorkID string, maxFailRetries int) (*work.Work, error) {
	opts := []option.QueryOption{
		option.ApplyOperator(option.Condition{Field: "consecutive_failures", Operator: option.LT, Value: maxFailRetries}),
		option.WithOrderBy(
			option.QuerySortBy{SortBy: "performance_score", OrderBy: "desc"},
			option.QuerySortBy{SortBy: "consecutive_failures", OrderBy: "asc"},
			option.QuerySortBy{SortBy: "created_at", OrderBy: "desc"},
		),
	}
	if excludeWorkID != "" {
		opts = append(opts, option.ApplyOperator(option.Condition{Field: "id", Operator: option.NEQ, Value: excludeWorkID}))
	}

	return s.work.FindOne(ctx, &work.Work{AccountID: accountID, Status: work.StatusPublished}, opts...)
}

// SwitchWork moves promotion to the next eligible work. Running out of works
// is a normal outcome, not an error.
func (s *Service) SwitchWork(ctx context.Context, accountID string, p task.SwitchWorkParams) (*SwitchResult, error) {
	acct, err := s.getAccount(ctx, accountID)
	if err != nil {
		return nil, err
	}

	if p.FailedCampaignID != "" {
		done, err := s.campaign.FindOne(ctx, &Campaign{PreviousCampaignID: p.FailedCampaignID})
		if err != nil {
			return nil, err
		}
		if done != nil {
			return &SwitchResult{
				WorkID: done.WorkID,
				Submit: &SubmitResult{Success: true, Idempotent: true, Campaign: done},
			}, nil
		}
	}

	th := s.thresholds.ForAccount(acct)
	next, err := s.NextWork(ctx, acct.ID, p.FromWorkID, th.MaxFailRetries)
	if err != nil {
		return nil, err
	}
	if next == nil {
		logger.L(ctx).Info("no work available to switch to", zap.String("account_id", acct.ID), zap.String("from_work_id", p.FromWorkID))
		return &SwitchResult{NoWorkAvailable: true, Message: "no work available"}, nil
	}

	submit, err := s.SubmitDelivery(ctx, SubmitRequest{
		AccountID:          acct.ID,
		WorkID:             next.ID,
		PreviousCampaignID: p.FailedCampaignID,
	})
	if err != nil {
		return nil, err
	}

	return &SwitchResult{WorkID: next.ID, Submit: submit}, nil
}

// PauseDelivery pauses an active campaign regardless of its performance.
// Pausing a campaign that is not active is a no-op.
func (s *Service) PauseDelivery(ctx context.Context, campaignID, reason string) (*Campaign, error) {
	c, err := s.getCampaign(ctx, campaignID)
	if err != nil {
		return nil, err
	}
	if c.Status != StatusActive {
		return c, nil
	}

	log := logger.L(ctx).With(zap.String("campaign_id", c.ID))
	acct, err := s.getAccount(ctx, c.AccountID)
	if err != nil {
		return nil, err
	}
	w, err := s.getWork(ctx, c.WorkID)
	if err != nil {
		return nil, err
	}

	if err := s.ads.PauseCampaign(ctx, adplatform.CampaignRequest{Credentials: credentials(acct), CampaignID: c.ExternalCampaignID}); err != nil {
		log.Warn("failed to pause campaign on ad platform", zap.Error(err))
	}

	now := s.now()
	err = s.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		// totals are folded from the locked row, not the pre-read copy
		locked, err := s.work.WithTrx(tx).FindByID(ctx, w.ID, option.WithLockingUpdate())
		if err != nil {
			return err
		}
		if locked == nil {
			return errutil.NotFound(fmt.Sprintf("work %s not found", w.ID), nil)
		}
		workUpdates := map[string]any{"status": work.StatusPaused}
		foldBatch(locked, c, workUpdates)

		if err := s.campaign.WithTrx(tx).Update(ctx, c.ID, map[string]any{
			"status":    StatusPaused,
			"paused_at": now,
		}); err != nil {
			return err
		}
		return s.work.WithTrx(tx).Update(ctx, w.ID, workUpdates)
	})
	if err != nil {
		return nil, err
	}

	log.Info("campaign paused", zap.String("reason", reason))
	c.Status = StatusPaused
	c.PausedAt = &now
	return c, nil
}

// ResumeDelivery reactivates a paused campaign on a fresh batch and
// schedules its next check. The work's failure streak is left untouched.
func (s *Service) ResumeDelivery(ctx context.Context, campaignID string) (*Campaign, error) {
	c, err := s.getCampaign(ctx, campaignID)
	if err != nil {
		return nil, err
	}
	switch c.Status {
	case StatusActive:
		return c, nil
	case StatusFailed:
		return nil, errutil.UnprocessableEntity(fmt.Sprintf("campaign %s has failed and cannot be resumed", c.ID), nil)
	}

	log := logger.L(ctx).With(zap.String("campaign_id", c.ID))
	w, err := s.getWork(ctx, c.WorkID)
	if err != nil {
		return nil, err
	}
	if w.Status == work.StatusArchived {
		return nil, errutil.UnprocessableEntity(fmt.Sprintf("work %s is archived", w.ID), nil)
	}

	active, err := s.campaign.Count(ctx, &Campaign{WorkID: c.WorkID, Status: StatusActive})
	if err != nil {
		return nil, err
	}
	if active > 0 {
		return nil, errutil.Conflict(fmt.Sprintf("work %s already has an active campaign", c.WorkID), nil)
	}

	acct, err := s.getAccount(ctx, c.AccountID)
	if err != nil {
		return nil, err
	}
	if err := s.ads.ResumeCampaign(ctx, adplatform.CampaignRequest{Credentials: credentials(acct), CampaignID: c.ExternalCampaignID}); err != nil {
		log.Warn("failed to resume campaign on ad platform", zap.Error(err))
	}

	now := s.now()
	batch := c.CurrentBatch + 1
	err = s.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		if err := s.campaign.WithTrx(tx).Update(ctx, c.ID, map[string]any{
			"status":            StatusActive,
			"current_batch":     batch,
			"batch_start_at":    now,
			"paused_at":         nil,
			"batch_spent":       0,
			"batch_impressions": 0,
			"batch_clicks":      0,
			"batch_leads":       0,
		}); err != nil {
			return err
		}
		if err := s.work.WithTrx(tx).Update(ctx, w.ID, map[string]any{"status": work.StatusPromoting}); err != nil {
			return err
		}

		_, err := s.tasks.Enqueue(ctx, task.TypeCheckCampaign,
			task.Refs{AccountID: c.AccountID, WorkID: c.WorkID, CampaignID: c.ID},
			task.CheckCampaignParams{Batch: batch},
			task.ScheduleAt(now.Add(s.intervals[IntervalShort])),
			task.InTx(tx),
		)
		return err
	})
	if err != nil {
		return nil, err
	}

	log.Info("campaign resumed", zap.Int("batch", batch))
	c.Status = StatusActive
	c.CurrentBatch = batch
	c.BatchStartAt = now
	c.PausedAt = nil
	c.BatchSpent, c.BatchImpressions, c.BatchClicks, c.BatchLeads = 0, 0, 0, 0
	return c, nil
}

// SyncAccount refreshes external account metadata. Only the sync time is
// tracked today.
func (s *Service) SyncAccount(ctx context.Context, accountID string) (*account.Account, error) {
	acct, err := s.getAccount(ctx, accountID)
	if err != nil {
		return nil, err
	}

	now := s.now()
	if err := s.account.Update(ctx, acct.ID, map[string]any{"last_synced_at": now}); err != nil {
		return nil, err
	}
	acct.LastSyncedAt = &now
	return acct, nil
}

func (s *Service) ListDeliveryLogs(ctx context.Context, workID string, limit int) ([]*DeliveryLog, error) {
	if limit <= 0 || limit > 200 {
		limit = 50
	}
	return s.logs.Find(ctx, &DeliveryLog{WorkID: workID},
		option.WithSortBy(option.QuerySortBy{SortBy: "created_at", OrderBy: "desc"}),
		option.WithLimit(limit),
	)
}

func (s *Service) GetCampaign(ctx context.Context, id string) (*Campaign, error) {
	return s.getCampaign(ctx, id)
}

func (s *Service) getCampaign(ctx context.Context, id string) (*Campaign, error) {
	c, err := s.campaign.FindByID(ctx, id)
	if err != nil {
		return nil, err
	}
	if c == nil {
		return nil, errutil.NotFound(fmt.Sprintf("campaign %s not found", id), nil)
	}
	return c, nil
}

func (s *Service) getWork(ctx context.Context, id string) (*work.Work, error) {
	w, err := s.work.FindByID(ctx, id)
	if err != nil {
		return nil, err
	}
	if w == nil {
		return nil, errutil.NotFound(fmt.Sprintf("work %s not found", id), nil)
	}
	return w, nil
}

func (s *Service) getAccount(ctx context.Context, id string) (*account.Account, error) {
	a, err := s.account.FindByID(ctx, id)
	if err != nil {
		return nil, err
	}
	if a == nil {
		return nil, errutil.NotFound(fmt.Sprintf("account %s not found", id), nil)
	}
	return a, nil
}

// isBusinessError reports errors a retry cannot fix.
func isBusinessError(err error) bool {
	switch errutil.StatusOf(err) {
	case errutil.StatusNotFound, errutil.StatusUnprocessableEntity, errutil.StatusBadRequest, errutil.StatusConflict:
		return true
	}
	return errors.Is(err, task.ErrSkipRetry)
}
