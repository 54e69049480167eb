package transmitter

import (
	"context"
	"time"
)

const (
	// DefaultPass is how long the interval loop idles between control-loop passes.
	DefaultPass = 50 * time.Millisecond
	// DefaultRetryDelay is the pause after a failed poll; DHT22 parts need 2s between samples.
	DefaultRetryDelay = 2 * time.Second
)

// TickFunc runs one evaluation cycle to completion.
type TickFunc func(ctx context.Context)

// IntervalScheduler fires at most one tick per interval.
type IntervalScheduler struct {
	clock    Clock
	interval uint32
	pass     time.Duration
	lastSend uint32
}

// NewIntervalScheduler schedules ticks every interval; lastSendTime starts at
// zero, so the first tick fires one full interval after the clock origin.
func NewIntervalScheduler(clock Clock, interval time.Duration, pass time.Duration) *IntervalScheduler {
	if clock == nil {
		clock = NewSystemClock()
	}
	if pass <= 0 {
		pass = DefaultPass
	}
	return &IntervalScheduler{
		clock:    clock,
		interval: uint32(interval.Milliseconds()),
		pass:     pass,
	}
}

// Due is one control-loop pass at time now. It reports whether a tick should
// fire and, if so, records now as the last send time.
func (s *IntervalScheduler) Due(now uint32) bool {
	if now-s.lastSend < s.interval {
		return false
	}
	s.lastSend = now
	return true
}

func (s *IntervalScheduler) LastSend() uint32 { return s.lastSend }

// Run polls Due once per pass and runs tick inline until ctx is done.
func (s *IntervalScheduler) Run(ctx context.Context, tick TickFunc) error {
	t := time.NewTicker(s.pass)
	defer t.Stop()

	for {
		if s.Due(s.clock.NowMillis()) {
			tick(ctx)
		}
		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-t.C:
		}
	}
}

// PollFunc runs one poll-driven cycle: acquire a reading and, if it is usable,
// evaluate it. It returns false when the sensor read failed.
type PollFunc func(ctx context.Context) bool

// PollScheduler runs a cycle on every poll, pausing a fixed delay after each
// successful one. The pause is a plain sleep, not a rate limit: cycle time adds
// to the period. A failed poll skips the delay and retries after retryDelay.
type PollScheduler struct {
	delay      time.Duration
	retryDelay time.Duration
	sleep      func(ctx context.Context, d time.Duration) error
}

func NewPollScheduler(delay, retryDelay time.Duration) *PollScheduler {
	if retryDelay <= 0 {
		retryDelay = DefaultRetryDelay
	}
	return &PollScheduler{delay: delay, retryDelay: retryDelay, sleep: sleepCtx}
}

func (s *PollScheduler) Run(ctx context.Context, cycle PollFunc) error {
	for {
		if err := ctx.Err(); err != nil {
			return err
		}

		wait := s.retryDelay
		if cycle(ctx) {
			wait = s.delay
		}
		if err := s.sleep(ctx, wait); err != nil {
			return err
		}
	}
}

func sleepCtx(ctx context.Context, d time.Duration) error {
	if d <= 0 {
		return ctx.Err()
	}
	t := time.NewTimer(d)
	defer t.Stop()
	select {
	case <-ctx.Done():
		return ctx.Err()
	case <-t.C:
		return nil
	}
}
