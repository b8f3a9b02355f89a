package scheduler

import (
	"context"
	"errors"
	"sync"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/ternarybob/arbor"
)

func TestRegisterJob(t *testing.T) {
	s := NewService(arbor.NewNoOpLogger())
	noop := func(ctx context.Context) error { return nil }

	tests := []struct {
		name     string
		job      string
		schedule string
		wantErr  bool
	}{
		{name: "daily", job: "cleanup", schedule: "0 3 * * *"},
		{name: "duplicate", job: "cleanup", schedule: "0 4 * * *", wantErr: true},
		{name: "every minute rejected", job: "fast", schedule: "* * * * *", wantErr: true},
		{name: "short interval rejected", job: "faster", schedule: "*/2 * * * *", wantErr: true},
		{name: "malformed", job: "broken", schedule: "not a schedule", wantErr: true},
		{name: "every fifteen minutes", job: "quarter", schedule: "*/15 * * * *"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			err := s.RegisterJob(tt.job, tt.schedule, noop)
			if tt.wantErr {
				assert.Error(t, err)
				return
			}
			assert.NoError(t, err)
		})
	}
}

func TestRunNow(t *testing.T) {
	s := NewService(arbor.NewNoOpLogger())
	calls := 0
	require.NoError(t, s.RegisterJob("cleanup", "0 3 * * *", func(ctx context.Context) error {
		calls++
		return nil
	}))

	require.NoError(t, s.RunNow("cleanup"))
	require.NoError(t, s.RunNow("cleanup"))
	assert.Equal(t, 2, calls)

	status, err := s.GetJobStatus("cleanup")
	require.NoError(t, err)
	assert.Equal(t, 2, status.Runs)
	assert.NotNil(t, status.LastRun)
	assert.Empty(t, status.LastError)
	assert.Nil(t, status.NextRun, "no next run before Start")

	assert.Error(t, s.RunNow("missing"))
}

func TestRunNow_RecordsFailureAndPanic(t *testing.T) {
	s := NewService(arbor.NewNoOpLogger())
	require.NoError(t, s.RegisterJob("failing", "0 3 * * *", func(ctx context.Context) error {
		return errors.New("lock held")
	}))
	require.NoError(t, s.RegisterJob("panicking", "0 4 * * *", func(ctx context.Context) error {
		panic("boom")
	}))

	err := s.RunNow("failing")
	require.Error(t, err)
	assert.Contains(t, err.Error(), "lock held")

	err = s.RunNow("panicking")
	require.Error(t, err)
	assert.Contains(t, err.Error(), "panic: boom")

	status, err := s.GetJobStatus("panicking")
	require.NoError(t, err)
	assert.False(t, status.IsRunning)
}

func TestExecuteJob_NeverOverlaps(t *testing.T) {
	s := NewService(arbor.NewNoOpLogger())
	started := make(chan struct{})
	release := make(chan struct{})
	calls := 0
	var mu sync.Mutex

	require.NoError(t, s.RegisterJob("slow", "0 3 * * *", func(ctx context.Context) error {
		mu.Lock()
		calls++
		mu.Unlock()
		close(started)
		<-release
		return nil
	}))

	done := make(chan struct{})
	go func() {
		s.executeJob("slow")
		close(done)
	}()
	<-started

	s.executeJob("slow")
	close(release)
	<-done

	mu.Lock()
	defer mu.Unlock()
	assert.Equal(t, 1, calls)
}

func TestStartStop(t *testing.T) {
	s := NewService(arbor.NewNoOpLogger())
	var seen context.Context
	require.NoError(t, s.RegisterJob("cleanup", "0 3 * * *", func(ctx context.Context) error {
		seen = ctx
		return nil
	}))

	require.NoError(t, s.Start(context.Background()))
	assert.True(t, s.IsRunning())
	assert.Error(t, s.Start(context.Background()))

	status, err := s.GetJobStatus("cleanup")
	require.NoError(t, err)
	assert.NotNil(t, status.NextRun)

	require.NoError(t, s.RunNow("cleanup"))
	s.Stop()
	assert.False(t, s.IsRunning())
	require.NotNil(t, seen)
	assert.Error(t, seen.Err(), "job context is cancelled by Stop")

	s.Stop()
}
