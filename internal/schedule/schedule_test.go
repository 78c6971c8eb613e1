package schedule

import (
	"context"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func noopRun(context.Context) error { return nil }

func TestAddValidatesJobs(t *testing.T) {
	t.Parallel()

	tests := []struct {
		name    string
		job     Job
		wantErr string
	}{
		{
			name:    "nil run",
			job:     Job{Name: "build", Spec: "0 6 * * *"},
			wantErr: "run function cannot be nil",
		},
		{
			name:    "empty spec",
			job:     Job{Name: "build", Run: noopRun},
			wantErr: "no schedule",
		},
		{
			name:    "malformed spec",
			job:     Job{Name: "build", Spec: "not a cron line", Run: noopRun},
			wantErr: "parse schedule",
		},
		{
			name:    "seconds field rejected",
			job:     Job{Name: "build", Spec: "*/5 * * * * *", Run: noopRun},
			wantErr: "parse schedule",
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			t.Parallel()

			err := NewScheduler(nil).Add(tt.job)
			require.Error(t, err)
			assert.Contains(t, err.Error(), tt.wantErr)
		})
	}
}

func TestAddRegistersJobs(t *testing.T) {
	t.Parallel()

	s := NewScheduler(nil)

	require.NoError(t, s.Add(Job{Name: "build", Spec: "0 6 * * *", Run: noopRun}))
	require.NoError(t, s.Add(Job{Name: "extract", Spec: "30 6 * * *", Run: noopRun}))

	s.mu.Lock()
	defer s.mu.Unlock()
	assert.Len(t, s.entries, 2)
	assert.Contains(t, s.entries, "build")
	assert.Contains(t, s.entries, "extract")
}

func TestStartTwiceFails(t *testing.T) {
	t.Parallel()

	s := NewScheduler(nil)
	require.NoError(t, s.Start())

	err := s.Start()
	require.Error(t, err)
	assert.Contains(t, err.Error(), "already running")

	require.NoError(t, s.Stop(context.Background()))
}

func TestTriggerSkipsOverlappingRuns(t *testing.T) {
	t.Parallel()

	s := NewScheduler(nil)

	started := make(chan struct{}, 1)
	release := make(chan struct{})
	var runs atomic.Int32
	run := func(context.Context) error {
		runs.Add(1)
		started <- struct{}{}
		<-release
		return nil
	}

	done := make(chan struct{})
	go func() {
		defer close(done)
		s.trigger("build", run)
	}()
	<-started

	// Fires while the first run is still in flight, so it must skip.
	s.trigger("build", run)
	assert.EqualValues(t, 1, runs.Load())

	close(release)
	<-done

	s.trigger("build", run)
	assert.EqualValues(t, 2, runs.Load())
}

func TestStopCancelsRunningJobs(t *testing.T) {
	t.Parallel()

	s := NewScheduler(nil)
	require.NoError(t, s.Start())

	entered := make(chan struct{})
	done := make(chan struct{})
	go func() {
		defer close(done)
		s.trigger("extract", func(ctx context.Context) error {
			close(entered)
			<-ctx.Done()
			return ctx.Err()
		})
	}()
	<-entered

	require.NoError(t, s.Stop(context.Background()))

	select {
	case <-done:
	case <-time.After(2 * time.Second):
		t.Fatal("running job was not cancelled by Stop")
	}
}
