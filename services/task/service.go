package task

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"runtime/debug"
	"time"

	"promoflow/pkg/config"
	"promoflow/pkg/db/option"
	"promoflow/pkg/errutil"
	"promoflow/pkg/logger"
	"promoflow/pkg/repository"

	"github.com/bwmarrin/snowflake"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.uber.org/fx"
	"go.uber.org/zap"
	"golang.org/x/sync/errgroup"
	"gorm.io/datatypes"
	"gorm.io/gorm"
)

var tracer = otel.Tracer("promoflow/services/task")

// ErrSkipRetry marks a handler error as terminal. Wrap it for business
// failures a retry cannot fix (missing entities, missing credentials,
// insufficient balance).
var ErrSkipRetry = errors.New("skip retry")

// ErrTaskNotClaimable is returned by Execute when the task is not pending.
var ErrTaskNotClaimable = errors.New("task is not pending")

// HandlerFunc executes one task. The returned value is stored as the task
// result; a non-nil error sends the task through retry-or-fail.
type HandlerFunc func(ctx context.Context, t *Task) (any, error)

type Service struct {
	db   *gorm.DB
	node *snowflake.Node
	now  func() time.Time

	tasks    repository.Repository[Task]
	handlers map[Type]HandlerFunc

	batchSize   int
	parallelism int
	retryDelay  time.Duration
	taskTimeout time.Duration
}

type Params struct {
	fx.In
	DB     *gorm.DB
	Node   *snowflake.Node
	Config *config.Config
}

func NewService(p Params) *Service {
	return &Service{
		db:       p.DB,
		node:     p.Node,
		now:      time.Now,
		tasks:    repository.ProvideStore[Task](p.DB),
		handlers: make(map[Type]HandlerFunc),

		batchSize:   p.Config.Scheduler.BatchSize,
		parallelism: p.Config.Scheduler.Parallelism,
		retryDelay:  p.Config.Scheduler.RetryDelay,
		taskTimeout: p.Config.Scheduler.TaskTimeout,
	}
}

// Register binds a handler to a task type. It is not safe to call once the
// scheduler is processing.
func (s *Service) Register(typ Type, h HandlerFunc) {
	s.handlers[typ] = h
}

// Validate reports every task type without a handler.
func (s *Service) Validate() error {
	var missing []error
	for _, typ := range Types {
		if _, ok := s.handlers[typ]; !ok {
			missing = append(missing, fmt.Errorf("no handler registered for %s", typ))
		}
	}
	return errors.Join(missing...)
}

type enqueueOptions struct {
	priority    int
	scheduledAt time.Time
	delay       time.Duration
	maxRetries  int
	tx          *gorm.DB
}

type EnqueueOption func(*enqueueOptions)

func WithPriority(p int) EnqueueOption {
	return func(o *enqueueOptions) { o.priority = p }
}

func ScheduleAt(at time.Time) EnqueueOption {
	return func(o *enqueueOptions) { o.scheduledAt = at }
}

func ScheduleIn(d time.Duration) EnqueueOption {
	return func(o *enqueueOptions) { o.delay = d }
}

// InTx writes the task inside the caller's transaction so it commits or
// rolls back with the state change that produced it.
func InTx(tx *gorm.DB) EnqueueOption {
	return func(o *enqueueOptions) { o.tx = tx }
}

func WithMaxRetries(n int) EnqueueOption {
	return func(o *enqueueOptions) {
		if n >= 0 {
			o.maxRetries = n
		}
	}
}

// Enqueue persists a pending task and returns its id.
func (s *Service) Enqueue(ctx context.Context, typ Type, refs Refs, params any, opts ...EnqueueOption) (string, error) {
	if !typ.Valid() {
		return "", errutil.BadRequest(fmt.Sprintf("unknown task type %q", typ), nil)
	}

	o := enqueueOptions{
		priority:   DefaultPriority,
		maxRetries: DefaultMaxRetries,
	}
	for _, opt := range opts {
		opt(&o)
	}
	if o.scheduledAt.IsZero() {
		o.scheduledAt = s.now().Add(o.delay)
	}

	var envelope datatypes.JSON
	if params != nil {
		b, err := json.Marshal(params)
		if err != nil {
			return "", errutil.BadRequest("invalid task params", err)
		}
		envelope = b
	}

	t := &Task{
		ID:          s.node.Generate().String(),
		Type:        typ,
		Status:      StatusPending,
		Priority:    o.priority,
		ScheduledAt: o.scheduledAt,
		MaxRetries:  o.maxRetries,
		Params:      envelope,
		AccountID:   refs.AccountID,
		WorkID:      refs.WorkID,
		CampaignID:  refs.CampaignID,
	}
	if err := s.tasks.WithTrx(o.tx).Create(ctx, t); err != nil {
		logger.L(ctx).Error("failed to enqueue task", zap.String("type", string(typ)), zap.Error(err))
		return "", err
	}

	logger.L(ctx).Debug("task enqueued",
		zap.String("task_id", t.ID),
		zap.String("type", string(typ)),
		zap.Time("scheduled_at", t.ScheduledAt),
	)
	return t.ID, nil
}

// ClaimDueTasks returns up to limit due tasks in (priority, scheduled_at)
// order, each already moved to running. A candidate claimed by another
// scheduler in between is skipped.
func (s *Service) ClaimDueTasks(ctx context.Context, limit int) ([]*Task, error) {
	if limit <= 0 {
		limit = s.batchSize
	}

	now := s.now()
	candidates, err := s.tasks.Find(ctx, &Task{Status: StatusPending},
		option.ApplyOperator(option.Condition{Field: "scheduled_at", Operator: option.LTE, Value: now}),
		option.WithOrderBy(
			option.QuerySortBy{SortBy: "priority", OrderBy: "asc"},
			option.QuerySortBy{SortBy: "scheduled_at", OrderBy: "asc"},
		),
		option.WithLimit(limit),
	)
	if err != nil {
		return nil, fmt.Errorf("find due tasks: %w", err)
	}

	claimed := make([]*Task, 0, len(candidates))
	for _, t := range candidates {
		ok, err := s.claim(ctx, t)
		if err != nil {
			return claimed, err
		}
		if ok {
			claimed = append(claimed, t)
		}
	}

	return claimed, nil
}

func (s *Service) claim(ctx context.Context, t *Task) (bool, error) {
	now := s.now()
	res := s.db.WithContext(ctx).Model(&Task{}).
		Where("id = ? AND status = ?", t.ID, StatusPending).
		Updates(map[string]any{
			"status":     StatusRunning,
			"started_at": now,
		})
	if res.Error != nil {
		return false, fmt.Errorf("claim task %s: %w", t.ID, res.Error)
	}
	if res.RowsAffected != 1 {
		return false, nil
	}

	t.Status = StatusRunning
	t.StartedAt = &now
	return true, nil
}

// Execute claims a single pending task and runs it.
func (s *Service) Execute(ctx context.Context, id string) (*ExecResult, error) {
	t, err := s.Get(ctx, id)
	if err != nil {
		return nil, err
	}

	ok, err := s.claim(ctx, t)
	if err != nil {
		return nil, err
	}
	if !ok {
		return nil, ErrTaskNotClaimable
	}

	return s.run(ctx, t), nil
}

// ProcessDue claims up to batchSize due tasks and runs them, at most
// parallelism at a time. Handler failures are recorded on the tasks, not
// returned.
func (s *Service) ProcessDue(ctx context.Context, batchSize int) (*BatchResult, error) {
	ctx, span := tracer.Start(ctx, "task.ProcessDue")
	defer span.End()

	claimed, err := s.ClaimDueTasks(ctx, batchSize)
	if err != nil && len(claimed) == 0 {
		return nil, err
	}
	if err != nil {
		logger.L(ctx).Warn("partial claim", zap.Int("claimed", len(claimed)), zap.Error(err))
	}
	span.SetAttributes(attribute.Int("claimed", len(claimed)))

	results := make([]*ExecResult, len(claimed))

	g := new(errgroup.Group)
	g.SetLimit(max(s.parallelism, 1))
	for i, t := range claimed {
		g.Go(func() error {
			results[i] = s.run(ctx, t)
			return nil
		})
	}
	_ = g.Wait()

	if len(claimed) > 0 {
		logger.L(ctx).Info("processed due tasks", zap.Int("processed", len(claimed)))
	}

	return &BatchResult{Processed: len(claimed), Results: results}, nil
}

// run executes a claimed (running) task and records the outcome.
func (s *Service) run(ctx context.Context, t *Task) *ExecResult {
	log := logger.L(ctx).With(zap.String("task_id", t.ID), zap.String("type", string(t.Type)))
	ctx, span := tracer.Start(ctx, "task."+string(t.Type))
	defer span.End()

	out, err := s.invoke(ctx, t)
	if err == nil {
		return s.complete(ctx, log, t, out)
	}

	span.RecordError(err)
	return s.fail(ctx, log, t, err)
}

func (s *Service) invoke(ctx context.Context, t *Task) (out any, err error) {
	h, ok := s.handlers[t.Type]
	if !ok {
		return nil, fmt.Errorf("no handler registered for %s: %w", t.Type, ErrSkipRetry)
	}

	if s.taskTimeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, s.taskTimeout)
		defer cancel()
	}

	defer func() {
		if r := recover(); r != nil {
			zap.L().Error("task handler panicked", zap.String("task_id", t.ID), zap.Any("panic", r), zap.ByteString("stack", debug.Stack()))
			err = fmt.Errorf("handler panic: %v", r)
		}
	}()

	return h(ctx, t)
}

func (s *Service) complete(ctx context.Context, log *zap.Logger, t *Task, out any) *ExecResult {
	var result datatypes.JSON
	if out != nil {
		b, err := json.Marshal(out)
		if err != nil {
			log.Warn("failed to marshal task result", zap.Error(err))
		} else {
			result = b
		}
	}

	now := s.now()
	if err := s.transition(ctx, t, map[string]any{
		"status":       StatusCompleted,
		"completed_at": now,
		"result":       result,
		"error":        "",
	}); err != nil {
		log.Error("failed to mark task completed", zap.Error(err))
	}

	t.Status = StatusCompleted
	t.CompletedAt = &now
	t.Result = result
	executionsTotal.WithLabelValues(string(t.Type), "completed").Inc()
	log.Info("task completed")

	return &ExecResult{TaskID: t.ID, Type: t.Type, Status: StatusCompleted, Result: json.RawMessage(result)}
}

func (s *Service) fail(ctx context.Context, log *zap.Logger, t *Task, cause error) *ExecResult {
	now := s.now()
	msg := cause.Error()

	if errors.Is(cause, ErrSkipRetry) || t.RetryCount >= t.MaxRetries {
		if err := s.transition(ctx, t, map[string]any{
			"status":       StatusFailed,
			"completed_at": now,
			"error":        msg,
		}); err != nil {
			log.Error("failed to mark task failed", zap.Error(err))
		}

		t.Status = StatusFailed
		t.CompletedAt = &now
		t.Error = msg
		executionsTotal.WithLabelValues(string(t.Type), "failed").Inc()
		log.Warn("task failed", zap.Int("retry_count", t.RetryCount), zap.Error(cause))

		return &ExecResult{TaskID: t.ID, Type: t.Type, Status: StatusFailed, Error: msg}
	}

	next := now.Add(s.retryDelay)
	if err := s.transition(ctx, t, map[string]any{
		"status":       StatusPending,
		"scheduled_at": next,
		"retry_count":  t.RetryCount + 1,
		"error":        msg,
	}); err != nil {
		log.Error("failed to reschedule task", zap.Error(err))
	}

	t.Status = StatusPending
	t.ScheduledAt = next
	t.RetryCount++
	t.Error = msg
	executionsTotal.WithLabelValues(string(t.Type), "retry").Inc()
	log.Info("task scheduled for retry", zap.Int("retry_count", t.RetryCount), zap.Time("scheduled_at", next), zap.Error(cause))

	return &ExecResult{TaskID: t.ID, Type: t.Type, Status: StatusPending, Error: msg}
}

// transition moves a running task on. The status guard keeps terminal
// tasks immutable.
func (s *Service) transition(ctx context.Context, t *Task, updates map[string]any) error {
	res := s.db.WithContext(context.WithoutCancel(ctx)).Model(&Task{}).
		Where("id = ? AND status = ?", t.ID, StatusRunning).
		Updates(updates)
	if res.Error != nil {
		return res.Error
	}
	if res.RowsAffected == 0 {
		return fmt.Errorf("task %s is no longer running", t.ID)
	}
	return nil
}

// Cancel fails a pending task with "manually cancelled". It reports whether
// the task was cancelled; tasks in any other status are left untouched.
func (s *Service) Cancel(ctx context.Context, id string) (bool, error) {
	res := s.db.WithContext(ctx).Model(&Task{}).
		Where("id = ? AND status = ?", id, StatusPending).
		Updates(map[string]any{
			"status":       StatusFailed,
			"error":        cancelledReason,
			"completed_at": s.now(),
		})
	if res.Error != nil {
		return false, res.Error
	}
	return res.RowsAffected == 1, nil
}

func (s *Service) Get(ctx context.Context, id string) (*Task, error) {
	t, err := s.tasks.FindByID(ctx, id)
	if err != nil {
		return nil, err
	}
	if t == nil {
		return nil, errutil.NotFound(fmt.Sprintf("task %s not found", id), nil)
	}
	return t, nil
}

func (s *Service) List(ctx context.Context, f Filter) ([]*Task, error) {
	limit := f.Limit
	if limit <= 0 || limit > 200 {
		limit = 50
	}

	return s.tasks.Find(ctx, &Task{
		Status:    f.Status,
		Type:      f.Type,
		AccountID: f.AccountID,
		WorkID:    f.WorkID,
	},
		option.WithSortBy(option.QuerySortBy{SortBy: "created_at", OrderBy: "desc"}),
		option.WithLimit(limit),
	)
}
