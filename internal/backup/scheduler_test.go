package backup

import (
	"context"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestSchedulerRejectsInvalidCronExpression(t *testing.T) {
	s := NewScheduler(testLogger(t))

	err := s.AddJob("bad", "not a cron spec", func(ctx context.Context) error { return nil })
	require.Error(t, err)
	assert.True(t, IsValidationError(err))
	assert.Contains(t, err.Error(), "bad")
}

func TestSchedulerFiresRegisteredJob(t *testing.T) {
	s := NewScheduler(testLogger(t))

	fired := make(chan struct{}, 1)
	err := s.AddJob("tick", "@every 1s", func(ctx context.Context) error {
		select {
		case fired <- struct{}{}:
		default:
		}
		return nil
	})
	require.NoError(t, err)

	s.Start()
	defer s.Stop()

	select {
	case <-fired:
	case <-time.After(3 * time.Second):
		t.Fatal("scheduled job never fired")
	}
}

func TestSchedulerSkipsOverlappingRuns(t *testing.T) {
	s := NewScheduler(testLogger(t))

	var runs atomic.Int32
	release := make(chan struct{})
	err := s.AddJob("slow", "@every 1s", func(ctx context.Context) error {
		runs.Add(1)
		<-release
		return nil
	})
	require.NoError(t, err)

	s.Start()

	// Let several ticks elapse while the first run is still blocked. The
	// overlapping ticks must be skipped, not queued.
	time.Sleep(3500 * time.Millisecond)
	assert.Equal(t, int32(1), runs.Load())

	close(release)
	s.Stop()
	assert.Equal(t, int32(1), runs.Load())
}

func TestSchedulerStopWaitsForRunningJob(t *testing.T) {
	s := NewScheduler(testLogger(t))

	done := make(chan struct{})
	err := s.AddJob("slow", "@every 1s", func(ctx context.Context) error {
		time.Sleep(200 * time.Millisecond)
		close(done)
		return nil
	})
	require.NoError(t, err)

	s.Start()
	time.Sleep(1200 * time.Millisecond)
	s.Stop()

	select {
	case <-done:
	default:
		t.Fatal("Stop returned before the running job finished")
	}
}
