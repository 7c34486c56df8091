package driver

import (
	"context"
	"sync/atomic"
	"testing"
	"time"

	"github.com/ethereum/go-ethereum/log"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestScheduler_RequiresCallback(t *testing.T) {
	s := NewDefaultSuiteScheduler(0, true, log.New())
	err := s.Start(context.Background())
	require.Error(t, err)
	assert.Contains(t, err.Error(), "callback must be registered")
}

func TestScheduler_RunOnce(t *testing.T) {
	s := NewDefaultSuiteScheduler(0, true, log.New())

	var calls atomic.Int32
	s.RegisterCallback(func() error {
		calls.Add(1)
		return nil
	})

	require.NoError(t, s.Start(context.Background()))
	assert.Equal(t, int32(1), calls.Load(), "run-once mode must invoke the callback exactly once")

	// Give the (nonexistent) periodic goroutine a chance to misbehave
	time.Sleep(50 * time.Millisecond)
	assert.Equal(t, int32(1), calls.Load())
}

func TestScheduler_RunOnce_PropagatesError(t *testing.T) {
	s := NewDefaultSuiteScheduler(0, true, log.New())

	wantErr := NewRuntimeError(assert.AnError)
	s.RegisterCallback(func() error { return wantErr })

	err := s.Start(context.Background())
	require.Error(t, err)
	assert.True(t, IsRuntimeError(err))
}

func TestScheduler_Periodic(t *testing.T) {
	s := NewDefaultSuiteScheduler(20*time.Millisecond, false, log.New())

	var calls atomic.Int32
	s.RegisterCallback(func() error {
		calls.Add(1)
		return nil
	})

	ctx, cancel := context.WithTimeout(context.Background(), 2*time.Second)
	defer cancel()

	require.NoError(t, s.Start(ctx))

	// First run happens synchronously on Start
	assert.GreaterOrEqual(t, calls.Load(), int32(1))

	require.Eventually(t, func() bool {
		return calls.Load() >= 3
	}, time.Second, 5*time.Millisecond, "expected periodic reruns at the configured interval")

	require.NoError(t, s.Stop())
	assert.True(t, s.Stopped())
	require.NoError(t, s.WaitForShutdown(ctx))

	// No runs after Stop
	after := calls.Load()
	time.Sleep(60 * time.Millisecond)
	assert.Equal(t, after, calls.Load())
}

func TestScheduler_Stop_Idempotent(t *testing.T) {
	s := NewDefaultSuiteScheduler(time.Hour, false, log.New())
	s.RegisterCallback(func() error { return nil })

	require.NoError(t, s.Start(context.Background()))
	require.NoError(t, s.Stop())
	require.NoError(t, s.Stop())
	assert.True(t, s.Stopped())
}

func TestScheduler_ContextCancelStopsPeriodicRuns(t *testing.T) {
	s := NewDefaultSuiteScheduler(10*time.Millisecond, false, log.New())

	var calls atomic.Int32
	s.RegisterCallback(func() error {
		calls.Add(1)
		return nil
	})

	ctx, cancel := context.WithCancel(context.Background())
	require.NoError(t, s.Start(ctx))
	cancel()

	wait, waitCancel := context.WithTimeout(context.Background(), time.Second)
	defer waitCancel()
	require.NoError(t, s.WaitForShutdown(wait))
	assert.True(t, s.Stopped())
}
