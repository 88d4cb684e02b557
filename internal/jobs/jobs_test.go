package jobs_test

import (
	"context"
	"errors"
	"io"
	"log/slog"
	"testing"
	"time"

	"freight/internal/jobs"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/mock"
	"github.com/stretchr/testify/require"
)

type MockEngine struct{ mock.Mock }

func (m *MockEngine) Recover(ctx context.Context) (int, error) {
	args := m.Called(ctx)
	return args.Int(0), args.Error(1)
}

func (m *MockEngine) Compact(ctx context.Context, retention time.Duration) (int64, error) {
	args := m.Called(ctx, retention)
	return args.Get(0).(int64), args.Error(1)
}

func discardLogger() *slog.Logger {
	return slog.New(slog.NewTextHandler(io.Discard, nil))
}

func notify(ch chan struct{}) {
	select {
	case ch <- struct{}{}:
	default:
	}
}

func TestRunRecoveryJob_Run(t *testing.T) {
	engine := new(MockEngine)
	engine.On("Recover", mock.Anything).Return(2, nil).Once()
	engine.On("Recover", mock.Anything).Return(0, errors.New("journal unavailable")).Once()

	job := jobs.NewRunRecoveryJob(engine, "@every 1h", discardLogger())
	job.Run(t.Context())
	job.Run(t.Context())

	engine.AssertExpectations(t)
}

func TestJobManager_RecoverNowSurvivesFailedPass(t *testing.T) {
	engine := new(MockEngine)
	retried := make(chan struct{}, 8)
	engine.On("Recover", mock.Anything).Return(1, errors.New("journal unavailable")).Once()
	engine.On("Recover", mock.Anything).Return(1, nil).Run(func(mock.Arguments) { notify(retried) })

	manager, err := jobs.NewJobManager(engine, jobs.Schedules{
		Recovery:   "* * * * * *",
		Compaction: "@every 1h",
	}, time.Hour, discardLogger())
	require.NoError(t, err)

	manager.RecoverNow(t.Context())
	require.NoError(t, manager.StartAll())
	defer manager.StopAll()

	select {
	case <-retried:
	case <-time.After(3 * time.Second):
		t.Fatal("failed runs were not retried by the scheduled job")
	}
}

func TestJournalCompactionJob_Run(t *testing.T) {
	engine := new(MockEngine)
	engine.On("Compact", mock.Anything, 48*time.Hour).Return(int64(5), nil).Once()

	job := jobs.NewJournalCompactionJob(engine, "@every 1h", 48*time.Hour, discardLogger())
	job.Run(t.Context())

	engine.AssertExpectations(t)
}

func TestJobManager_RunsScheduledJobs(t *testing.T) {
	engine := new(MockEngine)
	recovered := make(chan struct{}, 8)
	compacted := make(chan struct{}, 8)
	engine.On("Recover", mock.Anything).Return(0, nil).Run(func(mock.Arguments) { notify(recovered) })
	engine.On("Compact", mock.Anything, time.Hour).Return(int64(0), nil).Run(func(mock.Arguments) { notify(compacted) })

	manager, err := jobs.NewJobManager(engine, jobs.Schedules{
		Recovery:   "* * * * * *",
		Compaction: "* * * * * *",
	}, time.Hour, discardLogger())
	require.NoError(t, err)

	require.NoError(t, manager.StartAll())
	defer manager.StopAll()

	for name, ch := range map[string]chan struct{}{"recovery": recovered, "compaction": compacted} {
		select {
		case <-ch:
		case <-time.After(3 * time.Second):
			t.Fatalf("%s job did not run", name)
		}
	}
}

func TestJobManager_RejectsBadConfiguration(t *testing.T) {
	_, err := jobs.NewJobManager(new(MockEngine), jobs.Schedules{Recovery: "@every 1m", Compaction: "@every 1m"}, 0, discardLogger())
	require.Error(t, err)

	manager, err := jobs.NewJobManager(new(MockEngine), jobs.Schedules{Recovery: "@every 1m", Compaction: "not a schedule"}, time.Hour, discardLogger())
	require.NoError(t, err)

	err = manager.StartAll()
	assert.Error(t, err)
}
