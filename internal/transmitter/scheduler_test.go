package transmitter

import (
	"context"
	"math"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestIntervalScheduler_FiresOnlyWhenElapsed(t *testing.T) {
	s := NewIntervalScheduler(NewManualClock(0), 120*time.Second, 0)

	assert.False(t, s.Due(0))
	assert.False(t, s.Due(119999))
	assert.True(t, s.Due(120000))
	assert.Equal(t, uint32(120000), s.LastSend())

	assert.False(t, s.Due(120001))
	assert.False(t, s.Due(239999))
	assert.True(t, s.Due(240000))
}

func TestIntervalScheduler_LateFireRebasesOnNow(t *testing.T) {
	s := NewIntervalScheduler(nil, 18*time.Second, 0)
	assert.True(t, s.Due(50000))
	assert.False(t, s.Due(67999))
	assert.True(t, s.Due(68000))
}

func TestIntervalScheduler_Wraparound(t *testing.T) {
	s := NewIntervalScheduler(nil, 120*time.Second, 0)
	start := uint32(math.MaxUint32 - 60000)
	s.lastSend = start

	// 60s before the wrap, then the counter rolls over.
	assert.False(t, s.Due(math.MaxUint32))
	assert.False(t, s.Due(0))
	assert.False(t, s.Due(59998))
	assert.True(t, s.Due(59999), "start+120000 wraps to 59999")
	assert.Equal(t, uint32(59999), s.LastSend())
}

func TestIntervalScheduler_Run(t *testing.T) {
	clock := NewManualClock(0)
	s := NewIntervalScheduler(clock, time.Second, time.Millisecond)

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	var ticks atomic.Int32
	done := make(chan error, 1)
	go func() {
		done <- s.Run(ctx, func(context.Context) {
			if ticks.Add(1) == 2 {
				cancel()
			}
		})
	}()

	time.Sleep(10 * time.Millisecond)
	assert.Equal(t, int32(0), ticks.Load())

	clock.Set(1000)
	require.Eventually(t, func() bool { return ticks.Load() == 1 }, time.Second, time.Millisecond)
	clock.Set(2000)

	select {
	case err := <-done:
		assert.ErrorIs(t, err, context.Canceled)
	case <-time.After(time.Second):
		t.Fatal("scheduler did not stop")
	}
	assert.Equal(t, int32(2), ticks.Load())
}

func TestPollScheduler_DelaysAfterSuccessRetriesAfterFailure(t *testing.T) {
	s := NewPollScheduler(10*time.Second, 0)

	var waits []time.Duration
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	s.sleep = func(_ context.Context, d time.Duration) error {
		waits = append(waits, d)
		if len(waits) == 3 {
			cancel()
		}
		return nil
	}

	polls := []bool{true, false, true}
	i := 0
	err := s.Run(ctx, func(context.Context) bool {
		ok := polls[i]
		i++
		return ok
	})

	assert.ErrorIs(t, err, context.Canceled)
	assert.Equal(t, []time.Duration{10 * time.Second, DefaultRetryDelay, 10 * time.Second}, waits)
}

func TestPollScheduler_StopsOnCancelledSleep(t *testing.T) {
	s := NewPollScheduler(time.Hour, time.Hour)
	ctx, cancel := context.WithCancel(context.Background())

	cycles := 0
	go func() {
		time.Sleep(5 * time.Millisecond)
		cancel()
	}()
	err := s.Run(ctx, func(context.Context) bool {
		cycles++
		return true
	})
	assert.ErrorIs(t, err, context.Canceled)
	assert.Equal(t, 1, cycles)
}

func TestSystemClock_Advances(t *testing.T) {
	c := NewSystemClock()
	a := c.NowMillis()
	time.Sleep(3 * time.Millisecond)
	assert.GreaterOrEqual(t, c.NowMillis()-a, uint32(1))
}
