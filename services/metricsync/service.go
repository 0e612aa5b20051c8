package metricsync

import (
	"context"
	"fmt"
	"time"

	"promoflow/pkg/adplatform"
	"promoflow/pkg/config"
	"promoflow/pkg/db/option"
	"promoflow/pkg/errutil"
	"promoflow/pkg/logger"
	"promoflow/pkg/repository"
	"promoflow/services/account"
	"promoflow/services/task"
	"promoflow/services/work"

	"github.com/bwmarrin/snowflake"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.uber.org/fx"
	"go.uber.org/zap"
	"gorm.io/gorm"
)

var tracer = otel.Tracer("promoflow/services/metricsync")

// Tasks is the slice of the task service the sync loop needs.
type Tasks interface {
	Enqueue(ctx context.Context, typ task.Type, refs task.Refs, params any, opts ...task.EnqueueOption) (string, error)
	List(ctx context.Context, f task.Filter) ([]*task.Task, error)
}

type Service struct {
	db     *gorm.DB
	node   *snowflake.Node
	now    func() time.Time
	policy Policy

	source MetricsSource
	tasks  Tasks

	snapshot repository.Repository[MetricSnapshot]
	work     repository.Repository[work.Work]
	account  repository.Repository[account.Account]
}

type Params struct {
	fx.In

	DB     *gorm.DB
	Node   *snowflake.Node
	Config *config.Config
	Source MetricsSource
	Tasks  *task.Service
}

func NewService(p Params) *Service {
	return newService(p.DB, p.Node, PolicyFromConfig(p.Config), p.Source, p.Tasks)
}

func newService(db *gorm.DB, node *snowflake.Node, policy Policy, source MetricsSource, tasks Tasks) *Service {
	return &Service{
		db:     db,
		node:   node,
		now:    time.Now,
		policy: policy,
		source: source,
		tasks:  tasks,

		snapshot: repository.ProvideStore[MetricSnapshot](db),
		work:     repository.ProvideStore[work.Work](db),
		account:  repository.ProvideStore[account.Account](db),
	}
}

// RecordSnapshot appends an engagement reading for the work.
func (s *Service) RecordSnapshot(ctx context.Context, workID string, m Metrics) (*MetricSnapshot, error) {
	snap := &MetricSnapshot{
		ID:           s.node.Generate().String(),
		WorkID:       workID,
		Impressions:  m.Impressions,
		Reads:        m.Reads,
		Interactions: m.Interactions,
		CapturedAt:   s.now(),
	}
	if err := s.snapshot.Create(ctx, snap); err != nil {
		return nil, fmt.Errorf("record snapshot: %w", err)
	}
	return snap, nil
}

// RecentSnapshots returns up to limit snapshots of the work, newest first.
func (s *Service) RecentSnapshots(ctx context.Context, workID string, limit int) ([]*MetricSnapshot, error) {
	return s.snapshot.Find(ctx, &MetricSnapshot{WorkID: workID},
		option.WithOrderBy(option.QuerySortBy{SortBy: "captured_at", OrderBy: "desc"}),
		option.WithLimit(limit),
	)
}

// NextSyncAt computes when the work's metrics should next be refreshed.
func (s *Service) NextSyncAt(ctx context.Context, workID string, now time.Time) (time.Time, error) {
	w, err := s.getWork(ctx, workID)
	if err != nil {
		return time.Time{}, err
	}
	interval, err := s.interval(ctx, w, now)
	if err != nil {
		return time.Time{}, err
	}
	return now.Add(interval), nil
}

func (s *Service) interval(ctx context.Context, w *work.Work, now time.Time) (time.Duration, error) {
	snaps, err := s.RecentSnapshots(ctx, w.ID, stableSnapshots)
	if err != nil {
		return 0, err
	}
	return NextInterval(now.Sub(publishedAt(w)), snaps, s.policy), nil
}

func publishedAt(w *work.Work) time.Time {
	if w.PublishedAt != nil {
		return *w.PublishedAt
	}
	return w.CreatedAt
}

func syncable(st work.Status) bool {
	switch st {
	case work.StatusPublished, work.StatusPromoting, work.StatusPaused:
		return true
	}
	return false
}

// Schedule starts the sync loop for a work unless one is already pending or
// running. A running sync enqueues its own successor.
func (s *Service) Schedule(ctx context.Context, workID string) (string, error) {
	w, err := s.getWork(ctx, workID)
	if err != nil {
		return "", err
	}
	if !syncable(w.Status) {
		return "", errutil.UnprocessableEntity(fmt.Sprintf("work %s is %s and has no metrics to sync", w.ID, w.Status), nil)
	}

	active, err := s.activeSync(ctx, w.ID)
	if err != nil {
		return "", err
	}
	if active != "" {
		return active, nil
	}

	return s.tasks.Enqueue(ctx, task.TypeSyncWorkMetrics,
		task.Refs{AccountID: w.AccountID, WorkID: w.ID},
		task.SyncWorkMetricsParams{},
		task.ScheduleAt(s.now()),
	)
}

func (s *Service) activeSync(ctx context.Context, workID string) (string, error) {
	for _, st := range []task.Status{task.StatusRunning, task.StatusPending} {
		found, err := s.tasks.List(ctx, task.Filter{
			Status: st,
			Type:   task.TypeSyncWorkMetrics,
			WorkID: workID,
			Limit:  1,
		})
		if err != nil {
			return "", err
		}
		if len(found) > 0 {
			return found[0].ID, nil
		}
	}
	return "", nil
}

// reseed restarts a loop whose sync task has run out of retries, at the
// slowest cadence so a broken source is not hammered.
func (s *Service) reseed(ctx context.Context, t *task.Task) (string, error) {
	next := s.now().Add(MaxInterval)
	id, err := s.tasks.Enqueue(ctx, task.TypeSyncWorkMetrics,
		t.Refs(),
		task.SyncWorkMetricsParams{},
		task.ScheduleAt(next),
	)
	if err != nil {
		return "", err
	}
	logger.L(ctx).Warn("metrics sync exhausted retries, loop reseeded",
		zap.String("work_id", t.WorkID),
		zap.String("failed_task_id", t.ID),
		zap.String("next_task_id", id),
		zap.Time("next_sync_at", next),
	)
	return id, nil
}

// Sync refreshes the work's engagement, stores a snapshot and schedules the
// next sync at the adaptive interval.
func (s *Service) Sync(ctx context.Context, workID string, attempt int) (*SyncResult, error) {
	ctx, span := tracer.Start(ctx, "metricsync.Sync")
	defer span.End()
	span.SetAttributes(attribute.String("work_id", workID))

	log := logger.L(ctx).With(zap.String("work_id", workID))

	w, err := s.getWork(ctx, workID)
	if err != nil {
		return nil, err
	}
	if !syncable(w.Status) {
		return &SyncResult{WorkID: w.ID, Skipped: true, Reason: fmt.Sprintf("work is %s", w.Status)}, nil
	}

	acct, err := s.account.FindByID(ctx, w.AccountID)
	if err != nil {
		return nil, err
	}
	if acct == nil {
		return nil, errutil.NotFound(fmt.Sprintf("account %s not found", w.AccountID), nil)
	}
	if !acct.HasDeliveryCredentials() {
		return nil, errutil.UnprocessableEntity(fmt.Sprintf("account %s has no delivery credentials", acct.ID), nil)
	}

	m, err := s.source.NoteMetrics(ctx, adplatform.Credentials{AdvertiserID: acct.AdvertiserID, AccessToken: acct.AccessToken}, w.NoteID)
	if err != nil {
		return nil, fmt.Errorf("fetch note metrics: %w", err)
	}

	snap, err := s.RecordSnapshot(ctx, w.ID, *m)
	if err != nil {
		return nil, err
	}

	now := s.now()
	interval, err := s.interval(ctx, w, now)
	if err != nil {
		return nil, err
	}
	next := now.Add(interval)

	var nextID string
	err = s.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		if err := s.work.WithTrx(tx).Update(ctx, w.ID, map[string]any{"next_sync_at": next}); err != nil {
			return err
		}

		id, err := s.tasks.Enqueue(ctx, task.TypeSyncWorkMetrics,
			task.Refs{AccountID: w.AccountID, WorkID: w.ID},
			task.SyncWorkMetricsParams{Attempt: attempt + 1},
			task.ScheduleAt(next),
			task.InTx(tx),
		)
		nextID = id
		return err
	})
	if err != nil {
		return nil, err
	}

	log.Debug("work metrics synced",
		zap.Int64("total", snap.Total()),
		zap.Duration("interval", interval),
		zap.Time("next_sync_at", next),
	)

	return &SyncResult{
		WorkID:     w.ID,
		SnapshotID: snap.ID,
		Interval:   interval.String(),
		NextSyncAt: next,
		NextTaskID: nextID,
	}, nil
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
