package task

import (
	"context"
	"errors"
	"fmt"
	"sync/atomic"
	"testing"
	"time"

	"github.com/bwmarrin/snowflake"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
	"gorm.io/gorm"

	"promoflow/pkg/config"
	"promoflow/pkg/errutil"
	"promoflow/services/testutil"
)

func init() {
	zap.ReplaceGlobals(zap.NewNop())
}

type clock struct {
	now time.Time
}

func (c *clock) Now() time.Time { return c.now }

func (c *clock) Advance(d time.Duration) { c.now = c.now.Add(d) }

func newTestService(t *testing.T) (*Service, *clock) {
	t.Helper()

	db := testutil.NewTestDB(t, &Task{})
	node, err := snowflake.NewNode(1)
	require.NoError(t, err)

	cfg := &config.Config{}
	cfg.Scheduler.BatchSize = 5
	cfg.Scheduler.Parallelism = 1
	cfg.Scheduler.RetryDelay = 5 * time.Minute

	c := &clock{now: time.Date(2025, 3, 1, 10, 0, 0, 0, time.UTC)}
	s := NewService(Params{DB: db, Node: node, Config: cfg})
	s.now = c.Now
	return s, c
}

func reload(t *testing.T, s *Service, id string) *Task {
	t.Helper()
	got, err := s.Get(context.Background(), id)
	require.NoError(t, err)
	return got
}

func TestEnqueueDefaults(t *testing.T) {
	s, c := newTestService(t)

	id, err := s.Enqueue(context.Background(), TypeCheckCampaign,
		Refs{AccountID: "a1", WorkID: "w1", CampaignID: "c1"},
		CheckCampaignParams{Batch: 2},
	)
	require.NoError(t, err)

	got := reload(t, s, id)
	require.Equal(t, StatusPending, got.Status)
	require.Equal(t, DefaultPriority, got.Priority)
	require.Equal(t, DefaultMaxRetries, got.MaxRetries)
	require.True(t, got.ScheduledAt.Equal(c.now))
	require.Equal(t, "c1", got.CampaignID)

	params, err := DecodeParams[CheckCampaignParams](got)
	require.NoError(t, err)
	require.Equal(t, 2, params.Batch)
}

func TestEnqueueUnknownType(t *testing.T) {
	s, _ := newTestService(t)

	_, err := s.Enqueue(context.Background(), "launch_rocket", Refs{}, nil)
	require.True(t, errutil.IsStatus(err, errutil.StatusBadRequest))
}

func TestClaimDueTasksOrdering(t *testing.T) {
	s, c := newTestService(t)
	ctx := context.Background()

	low, err := s.Enqueue(ctx, TypeSyncAccount, Refs{}, nil, WithPriority(3), ScheduleAt(c.now.Add(-3*time.Minute)))
	require.NoError(t, err)
	urgentLate, err := s.Enqueue(ctx, TypeSyncAccount, Refs{}, nil, WithPriority(1), ScheduleAt(c.now.Add(-1*time.Minute)))
	require.NoError(t, err)
	urgentEarly, err := s.Enqueue(ctx, TypeSyncAccount, Refs{}, nil, WithPriority(1), ScheduleAt(c.now.Add(-2*time.Minute)))
	require.NoError(t, err)
	future, err := s.Enqueue(ctx, TypeSyncAccount, Refs{}, nil, WithPriority(0), ScheduleIn(time.Hour))
	require.NoError(t, err)

	claimed, err := s.ClaimDueTasks(ctx, 10)
	require.NoError(t, err)
	require.Len(t, claimed, 3)
	require.Equal(t, []string{urgentEarly, urgentLate, low}, []string{claimed[0].ID, claimed[1].ID, claimed[2].ID})

	for _, task := range claimed {
		require.Equal(t, StatusRunning, reload(t, s, task.ID).Status)
	}
	require.Equal(t, StatusPending, reload(t, s, future).Status)

	again, err := s.ClaimDueTasks(ctx, 10)
	require.NoError(t, err)
	require.Empty(t, again)
}

func TestClaimIsExclusive(t *testing.T) {
	s, _ := newTestService(t)
	ctx := context.Background()

	id, err := s.Enqueue(ctx, TypeSyncAccount, Refs{}, nil)
	require.NoError(t, err)

	first := reload(t, s, id)
	second := reload(t, s, id)

	ok, err := s.claim(ctx, first)
	require.NoError(t, err)
	require.True(t, ok)

	ok, err = s.claim(ctx, second)
	require.NoError(t, err)
	require.False(t, ok)
}

func TestSuccessStoresResult(t *testing.T) {
	s, _ := newTestService(t)
	ctx := context.Background()
	s.Register(TypeSyncAccount, func(ctx context.Context, task *Task) (any, error) {
		return map[string]string{"synced": task.AccountID}, nil
	})

	id, err := s.Enqueue(ctx, TypeSyncAccount, Refs{AccountID: "a1"}, SyncAccountParams{})
	require.NoError(t, err)

	res, err := s.ProcessDue(ctx, 0)
	require.NoError(t, err)
	require.Equal(t, 1, res.Processed)
	require.Equal(t, StatusCompleted, res.Results[0].Status)

	got := reload(t, s, id)
	require.Equal(t, StatusCompleted, got.Status)
	require.NotNil(t, got.CompletedAt)
	require.JSONEq(t, `{"synced":"a1"}`, string(got.Result))
}

func TestRetryBound(t *testing.T) {
	s, c := newTestService(t)
	ctx := context.Background()

	var attempts int
	s.Register(TypeCheckCampaign, func(context.Context, *Task) (any, error) {
		attempts++
		return nil, errors.New("report service unavailable")
	})

	id, err := s.Enqueue(ctx, TypeCheckCampaign, Refs{CampaignID: "c1", WorkID: "w1"}, nil, WithMaxRetries(3))
	require.NoError(t, err)

	for i := 0; i < 10; i++ {
		_, err := s.ProcessDue(ctx, 5)
		require.NoError(t, err)

		got := reload(t, s, id)
		require.LessOrEqual(t, got.RetryCount, got.MaxRetries)
		if got.Status == StatusPending {
			require.True(t, got.ScheduledAt.Equal(c.now.Add(5*time.Minute)))
		}
		c.Advance(5 * time.Minute)
	}

	require.Equal(t, 4, attempts)
	got := reload(t, s, id)
	require.Equal(t, StatusFailed, got.Status)
	require.Equal(t, 3, got.RetryCount)
	require.Equal(t, "report service unavailable", got.Error)
	require.NotNil(t, got.CompletedAt)
}

func TestSkipRetryIsTerminal(t *testing.T) {
	s, _ := newTestService(t)
	ctx := context.Background()

	s.Register(TypeRestartCampaign, func(context.Context, *Task) (any, error) {
		return nil, fmt.Errorf("work w1 not found: %w", ErrSkipRetry)
	})

	id, err := s.Enqueue(ctx, TypeRestartCampaign, Refs{WorkID: "w1"}, nil)
	require.NoError(t, err)

	_, err = s.ProcessDue(ctx, 0)
	require.NoError(t, err)

	got := reload(t, s, id)
	require.Equal(t, StatusFailed, got.Status)
	require.Equal(t, 0, got.RetryCount)
}

func TestMissingHandlerFailsTask(t *testing.T) {
	s, _ := newTestService(t)
	ctx := context.Background()

	id, err := s.Enqueue(ctx, TypePauseCampaign, Refs{CampaignID: "c1"}, nil)
	require.NoError(t, err)

	_, err = s.ProcessDue(ctx, 0)
	require.NoError(t, err)
	require.Equal(t, StatusFailed, reload(t, s, id).Status)
}

func TestHandlerPanicIsRetried(t *testing.T) {
	s, _ := newTestService(t)
	ctx := context.Background()
	s.Register(TypeSyncAccount, func(context.Context, *Task) (any, error) {
		panic("nil account")
	})

	id, err := s.Enqueue(ctx, TypeSyncAccount, Refs{}, nil)
	require.NoError(t, err)

	_, err = s.ProcessDue(ctx, 0)
	require.NoError(t, err)

	got := reload(t, s, id)
	require.Equal(t, StatusPending, got.Status)
	require.Equal(t, 1, got.RetryCount)
	require.Contains(t, got.Error, "nil account")
}

func TestCancel(t *testing.T) {
	s, _ := newTestService(t)
	ctx := context.Background()
	s.Register(TypeSyncAccount, func(context.Context, *Task) (any, error) { return nil, nil })

	pending, err := s.Enqueue(ctx, TypeSyncAccount, Refs{}, nil, ScheduleIn(time.Hour))
	require.NoError(t, err)
	done, err := s.Enqueue(ctx, TypeSyncAccount, Refs{}, nil)
	require.NoError(t, err)
	_, err = s.ProcessDue(ctx, 0)
	require.NoError(t, err)

	ok, err := s.Cancel(ctx, pending)
	require.NoError(t, err)
	require.True(t, ok)
	got := reload(t, s, pending)
	require.Equal(t, StatusFailed, got.Status)
	require.Equal(t, "manually cancelled", got.Error)

	ok, err = s.Cancel(ctx, done)
	require.NoError(t, err)
	require.False(t, ok)
	require.Equal(t, StatusCompleted, reload(t, s, done).Status)

	ok, err = s.Cancel(ctx, "missing")
	require.NoError(t, err)
	require.False(t, ok)
}

func TestExecute(t *testing.T) {
	s, _ := newTestService(t)
	ctx := context.Background()
	s.Register(TypeSyncAccount, func(context.Context, *Task) (any, error) { return nil, nil })

	id, err := s.Enqueue(ctx, TypeSyncAccount, Refs{}, nil, ScheduleIn(time.Hour))
	require.NoError(t, err)

	res, err := s.Execute(ctx, id)
	require.NoError(t, err)
	require.Equal(t, StatusCompleted, res.Status)

	_, err = s.Execute(ctx, id)
	require.ErrorIs(t, err, ErrTaskNotClaimable)

	_, err = s.Execute(ctx, "missing")
	require.True(t, errutil.IsStatus(err, errutil.StatusNotFound))
}

func TestProcessDueParallel(t *testing.T) {
	s, _ := newTestService(t)
	s.parallelism = 3
	ctx := context.Background()

	var calls atomic.Int32
	s.Register(TypeSyncAccount, func(context.Context, *Task) (any, error) {
		calls.Add(1)
		return nil, nil
	})

	for i := 0; i < 6; i++ {
		_, err := s.Enqueue(ctx, TypeSyncAccount, Refs{}, nil)
		require.NoError(t, err)
	}

	res, err := s.ProcessDue(ctx, 5)
	require.NoError(t, err)
	require.Equal(t, 5, res.Processed)
	require.Equal(t, int32(5), calls.Load())
	for _, r := range res.Results {
		require.Equal(t, StatusCompleted, r.Status)
	}

	pending, err := s.List(ctx, Filter{Status: StatusPending})
	require.NoError(t, err)
	require.Len(t, pending, 1)
}

func TestValidate(t *testing.T) {
	s, _ := newTestService(t)
	require.Error(t, s.Validate())

	for _, typ := range Types {
		s.Register(typ, func(context.Context, *Task) (any, error) { return nil, nil })
	}
	require.NoError(t, s.Validate())
}

func TestDecodeParamsEmpty(t *testing.T) {
	p, err := DecodeParams[RestartCampaignParams](&Task{Type: TypeRestartCampaign})
	require.NoError(t, err)
	require.Empty(t, p.PreviousCampaignID)

	_, err = DecodeParams[RestartCampaignParams](&Task{Type: TypeRestartCampaign, Params: []byte(`{"budget":"x"}`)})
	require.Error(t, err)
}

func TestEnqueueInTxRollsBack(t *testing.T) {
	s, _ := newTestService(t)
	ctx := context.Background()

	boom := errors.New("rollback")
	err := s.db.Transaction(func(tx *gorm.DB) error {
		if _, err := s.Enqueue(ctx, TypeSyncAccount, Refs{}, nil, InTx(tx)); err != nil {
			return err
		}
		return boom
	})
	require.ErrorIs(t, err, boom)

	all, err := s.List(ctx, Filter{})
	require.NoError(t, err)
	require.Empty(t, all)
}
