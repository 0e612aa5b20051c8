package metricsync

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/bwmarrin/snowflake"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"

	"promoflow/pkg/adplatform"
	"promoflow/pkg/config"
	"promoflow/pkg/errutil"
	"promoflow/services/account"
	"promoflow/services/task"
	"promoflow/services/testutil"
	"promoflow/services/work"
)

func init() {
	zap.ReplaceGlobals(zap.NewNop())
}

type fakeSource struct {
	readings []Metrics
	err      error
	calls    int
}

func (f *fakeSource) NoteMetrics(_ context.Context, _ adplatform.Credentials, _ string) (*Metrics, error) {
	if f.err != nil {
		return nil, f.err
	}
	m := f.readings[f.calls%len(f.readings)]
	f.calls++
	return &m, nil
}

type fixture struct {
	svc    *Service
	source *fakeSource
	tasks  *task.Service
	now    time.Time
}

func newFixture(t *testing.T, readings ...Metrics) *fixture {
	t.Helper()

	db := testutil.NewTestDB(t, &account.Account{}, &work.Work{}, &task.Task{}, &MetricSnapshot{})
	node, err := snowflake.NewNode(1)
	require.NoError(t, err)

	require.NoError(t, db.Create(&account.Account{ID: "acct-1", AdvertiserID: "adv-1", AccessToken: "token"}).Error)

	f := &fixture{
		source: &fakeSource{readings: readings},
		tasks:  task.NewService(task.Params{DB: db, Node: node, Config: &config.Config{}}),
		now:    time.Date(2025, 3, 10, 10, 0, 0, 0, time.UTC),
	}
	f.svc = newService(db, node, DefaultPolicy, f.source, f.tasks)
	f.svc.now = func() time.Time { return f.now }
	return f
}

func (f *fixture) addWork(t *testing.T, id string, status work.Status, publishedAgo time.Duration) {
	t.Helper()
	published := f.now.Add(-publishedAgo)
	require.NoError(t, f.svc.db.Create(&work.Work{
		ID:          id,
		AccountID:   "acct-1",
		NoteID:      "note-" + id,
		Status:      status,
		PublishedAt: &published,
	}).Error)
}

func (f *fixture) pendingSyncs(t *testing.T, workID string) []*task.Task {
	t.Helper()
	out, err := f.tasks.List(context.Background(), task.Filter{Status: task.StatusPending, Type: task.TypeSyncWorkMetrics, WorkID: workID})
	require.NoError(t, err)
	return out
}

func TestSyncSchedulesNextAtTierInterval(t *testing.T) {
	f := newFixture(t, Metrics{Impressions: 100, Reads: 20, Interactions: 5})
	f.addWork(t, "w1", work.StatusPublished, 2*time.Hour)

	res, err := f.svc.Sync(context.Background(), "w1", 0)
	require.NoError(t, err)
	require.NotEmpty(t, res.SnapshotID)
	require.True(t, res.NextSyncAt.Equal(f.now.Add(30*time.Minute)))

	pending := f.pendingSyncs(t, "w1")
	require.Len(t, pending, 1)
	require.Equal(t, res.NextTaskID, pending[0].ID)
	require.True(t, pending[0].ScheduledAt.Equal(res.NextSyncAt))

	p, err := task.DecodeParams[task.SyncWorkMetricsParams](pending[0])
	require.NoError(t, err)
	require.Equal(t, 1, p.Attempt)

	w, err := f.svc.getWork(context.Background(), "w1")
	require.NoError(t, err)
	require.NotNil(t, w.NextSyncAt)
	require.True(t, w.NextSyncAt.Equal(res.NextSyncAt))
}

func TestSyncAdaptsToEngagement(t *testing.T) {
	f := newFixture(t,
		Metrics{Impressions: 1000},
		Metrics{Impressions: 1000},
		Metrics{Impressions: 1000},
		Metrics{Impressions: 2000},
	)
	f.addWork(t, "w1", work.StatusPromoting, 3*24*time.Hour)

	var intervals []string
	for i := 0; i < 4; i++ {
		res, err := f.svc.Sync(context.Background(), "w1", i)
		require.NoError(t, err)
		intervals = append(intervals, res.Interval)
		f.now = f.now.Add(time.Hour)
	}

	require.Equal(t, []string{"2h0m0s", "2h0m0s", "3h0m0s", "1h0m0s"}, intervals)
}

func TestNextSyncAt(t *testing.T) {
	f := newFixture(t)
	f.addWork(t, "w1", work.StatusPublished, 10*24*time.Hour)

	next, err := f.svc.NextSyncAt(context.Background(), "w1", f.now)
	require.NoError(t, err)
	require.True(t, next.Equal(f.now.Add(6*time.Hour)))

	_, err = f.svc.NextSyncAt(context.Background(), "missing", f.now)
	require.True(t, errutil.IsStatus(err, errutil.StatusNotFound))
}

func TestSyncSkipsArchivedWork(t *testing.T) {
	f := newFixture(t, Metrics{Impressions: 1})
	f.addWork(t, "w1", work.StatusArchived, time.Hour)

	res, err := f.svc.Sync(context.Background(), "w1", 0)
	require.NoError(t, err)
	require.True(t, res.Skipped)
	require.Zero(t, f.source.calls)
	require.Empty(t, f.pendingSyncs(t, "w1"))
}

func TestScheduleIsIdempotent(t *testing.T) {
	f := newFixture(t)
	f.addWork(t, "w1", work.StatusPublished, time.Hour)

	first, err := f.svc.Schedule(context.Background(), "w1")
	require.NoError(t, err)
	second, err := f.svc.Schedule(context.Background(), "w1")
	require.NoError(t, err)
	require.Equal(t, first, second)
	require.Len(t, f.pendingSyncs(t, "w1"), 1)
}

func TestSyncHandlerRetriesSourceFailure(t *testing.T) {
	f := newFixture(t)
	f.source.err = errors.New("upstream unavailable")
	f.addWork(t, "w1", work.StatusPublished, time.Hour)
	RegisterHandlers(f.tasks, f.svc)

	id, err := f.svc.Schedule(context.Background(), "w1")
	require.NoError(t, err)

	res, err := f.tasks.Execute(context.Background(), id)
	require.NoError(t, err)
	require.Equal(t, task.StatusPending, res.Status)
	require.Contains(t, res.Error, "upstream unavailable")
}

func TestSyncHandlerMissingWorkIsTerminal(t *testing.T) {
	f := newFixture(t)
	RegisterHandlers(f.tasks, f.svc)

	id, err := f.tasks.Enqueue(context.Background(), task.TypeSyncWorkMetrics, task.Refs{WorkID: "missing"}, nil)
	require.NoError(t, err)

	res, err := f.tasks.Execute(context.Background(), id)
	require.NoError(t, err)
	require.Equal(t, task.StatusFailed, res.Status)
}

func TestScheduleReusesRunningSync(t *testing.T) {
	f := newFixture(t)
	f.addWork(t, "w1", work.StatusPublished, time.Hour)
	ctx := context.Background()

	first, err := f.svc.Schedule(ctx, "w1")
	require.NoError(t, err)

	claimed, err := f.tasks.ClaimDueTasks(ctx, 1)
	require.NoError(t, err)
	require.Len(t, claimed, 1)
	require.Equal(t, first, claimed[0].ID)

	second, err := f.svc.Schedule(ctx, "w1")
	require.NoError(t, err)
	require.Equal(t, first, second)
	require.Empty(t, f.pendingSyncs(t, "w1"))
}

func TestSyncHandlerReseedsAfterLastRetry(t *testing.T) {
	f := newFixture(t)
	f.source.err = errors.New("upstream unavailable")
	f.addWork(t, "w1", work.StatusPublished, time.Hour)
	RegisterHandlers(f.tasks, f.svc)

	id, err := f.tasks.Enqueue(context.Background(), task.TypeSyncWorkMetrics,
		task.Refs{AccountID: "acct-1", WorkID: "w1"},
		task.SyncWorkMetricsParams{Attempt: 4},
		task.WithMaxRetries(0),
	)
	require.NoError(t, err)

	res, err := f.tasks.Execute(context.Background(), id)
	require.NoError(t, err)
	require.Equal(t, task.StatusFailed, res.Status)

	pending := f.pendingSyncs(t, "w1")
	require.Len(t, pending, 1)
	require.NotEqual(t, id, pending[0].ID)
	require.True(t, pending[0].ScheduledAt.Equal(f.now.Add(MaxInterval)))

	p, err := task.DecodeParams[task.SyncWorkMetricsParams](pending[0])
	require.NoError(t, err)
	require.Zero(t, p.Attempt)
}
