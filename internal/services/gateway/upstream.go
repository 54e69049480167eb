package gateway

import (
	"context"
	"time"

	"github.com/sony/gobreaker"

	"github.com/LeonardoBeccarini/field-telemetry/internal/transport"
)

// NewBreaker trips after fails consecutive failures and stays open for openFor.
func NewBreaker(name string, fails int, openFor, interval time.Duration) *gobreaker.CircuitBreaker {
	return gobreaker.NewCircuitBreaker(gobreaker.Settings{
		Name:     name,
		Interval: interval,
		Timeout:  openFor,
		ReadyToTrip: func(c gobreaker.Counts) bool {
			return c.ConsecutiveFailures >= uint32(fails)
		},
	})
}

// Upstream sends gateway URLs through a sink guarded by a circuit breaker.
type Upstream struct {
	sink    transport.Sink
	breaker *gobreaker.CircuitBreaker
}

func NewUpstream(sink transport.Sink, breaker *gobreaker.CircuitBreaker) *Upstream {
	return &Upstream{sink: sink, breaker: breaker}
}

// Forward fails fast with gobreaker.ErrOpenState while the breaker is open.
func (u *Upstream) Forward(ctx context.Context, url string) error {
	_, err := u.breaker.Execute(func() (any, error) {
		return nil, u.sink.Send(ctx, []byte(url))
	})
	return err
}

func (u *Upstream) State() gobreaker.State { return u.breaker.State() }
