package task

import (
	"context"
	"encoding/json"
	"sync/atomic"
	"testing"
	"time"

	"github.com/hibiken/asynq"
	"github.com/stretchr/testify/require"

	asynqpkg "promoflow/pkg/asynq"
	"promoflow/pkg/config"
)

func TestHandleProcessDueTask(t *testing.T) {
	s, _ := newTestService(t)
	ctx := context.Background()

	var runs atomic.Int32
	s.Register(TypeSyncAccount, func(context.Context, *Task) (any, error) {
		runs.Add(1)
		return nil, nil
	})

	for i := 0; i < 3; i++ {
		_, err := s.Enqueue(ctx, TypeSyncAccount, Refs{AccountID: "a1"}, nil)
		require.NoError(t, err)
	}

	payload, err := json.Marshal(asynqpkg.ProcessDuePayload{BatchSize: 2})
	require.NoError(t, err)

	require.NoError(t, s.HandleProcessDueTask(ctx, asynq.NewTask(asynqpkg.ProcessDueTask, payload)))
	require.Equal(t, int32(2), runs.Load())

	require.NoError(t, s.HandleProcessDueTask(ctx, asynq.NewTask(asynqpkg.ProcessDueTask, nil)))
	require.Equal(t, int32(3), runs.Load())

	err = s.HandleProcessDueTask(ctx, asynq.NewTask(asynqpkg.ProcessDueTask, []byte("{")))
	require.Error(t, err)
}

func TestLocalSchedulerTick(t *testing.T) {
	s, _ := newTestService(t)

	done := make(chan struct{})
	s.Register(TypeSyncAccount, func(context.Context, *Task) (any, error) {
		close(done)
		return nil, nil
	})

	id, err := s.Enqueue(context.Background(), TypeSyncAccount, Refs{AccountID: "a1"}, nil)
	require.NoError(t, err)

	cfg := &config.Config{}
	cfg.Scheduler.BeatEvery = 10 * time.Millisecond
	sched := NewScheduler(s, cfg)
	go sched.run()

	select {
	case <-done:
	case <-time.After(2 * time.Second):
		t.Fatal("local beat did not run the due task")
	}

	close(sched.stop)
	<-sched.done

	require.Equal(t, StatusCompleted, reload(t, s, id).Status)
}
