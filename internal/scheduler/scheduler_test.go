package scheduler

import (
	"context"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestStartRunsImmediatelyThenOnInterval(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	var runs atomic.Int32
	s := NewIntervalScheduler(ctx, "test", 10*time.Millisecond)
	s.RunImmediately = true

	done := make(chan struct{})
	go func() {
		s.Start(func() {
			if runs.Add(1) >= 3 {
				cancel()
			}
		})
		close(done)
	}()

	select {
	case <-done:
	case <-time.After(2 * time.Second):
		t.Fatal("scheduler did not stop after cancel")
	}
	assert.GreaterOrEqual(t, runs.Load(), int32(3))
}

func TestStartWithoutImmediateWaitsFirstInterval(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())

	var runs atomic.Int32
	s := NewIntervalScheduler(ctx, "test", 50*time.Millisecond)

	go s.Start(func() { runs.Add(1) })
	time.Sleep(10 * time.Millisecond)
	assert.Equal(t, int32(0), runs.Load(), "first run only fires after one interval")
	cancel()
}

func TestSetInterval(t *testing.T) {
	s := NewIntervalScheduler(context.Background(), "test", time.Minute)
	require.Equal(t, time.Minute, s.Interval())

	s.SetInterval(30 * time.Second)
	assert.Equal(t, 30*time.Second, s.Interval())

	s.SetInterval(0)
	assert.Equal(t, 30*time.Second, s.Interval(), "non-positive values are ignored")

	var nilSched *IntervalScheduler
	nilSched.SetInterval(time.Second) // must not panic
}

func TestStartRejectsInvalidSetup(t *testing.T) {
	s := NewIntervalScheduler(context.Background(), "test", 0)
	s.Start(func() {}) // returns immediately, no panic

	s2 := NewIntervalScheduler(context.Background(), "test", time.Second)
	s2.Start(nil)
}
