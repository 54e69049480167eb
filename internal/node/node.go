// Package node ties a sensor source, the power monitor, the transmission gate
// and one transport sink into the field node's evaluation cycle.
package node

import (
	"context"
	"fmt"
	"log/slog"
	"sync"
	"time"

	"github.com/LeonardoBeccarini/field-telemetry/internal/model"
	"github.com/LeonardoBeccarini/field-telemetry/internal/power"
	"github.com/LeonardoBeccarini/field-telemetry/internal/transmitter"
	"github.com/LeonardoBeccarini/field-telemetry/internal/transport"
	"github.com/LeonardoBeccarini/field-telemetry/pkg/metrics"
)

// Source produces one reading per call.
type Source interface {
	Read(ctx context.Context) (model.Reading, error)
}

type Options struct {
	Transport transport.Kind
	Gate      *transmitter.Gate
	Source    Source
	Power     power.Monitor
	Sink      transport.Sink
	Logger    *slog.Logger
	Metrics   *metrics.Node
	Now       func() time.Time
}

type Node struct {
	kind    transport.Kind
	gate    *transmitter.Gate
	source  Source
	power   power.Monitor
	sink    transport.Sink
	log     *slog.Logger
	metrics *metrics.Node
	now     func() time.Time

	mu     sync.Mutex
	status Status
}

// Status is a snapshot served on /healthz.
type Status struct {
	Transport     string            `json:"transport"`
	Driver        string            `json:"driver"`
	PowerPresent  bool              `json:"power_present"`
	Ticks         uint64            `json:"ticks"`
	Outcomes      map[string]uint64 `json:"outcomes"`
	SendFailures  uint64            `json:"send_failures"`
	LastOutcome   string            `json:"last_outcome,omitempty"`
	LastError     string            `json:"last_error,omitempty"`
	LastTick      time.Time         `json:"last_tick,omitempty"`
	LastValue     float64           `json:"last_value"`
	HaveLastValue bool              `json:"have_last_value"`
}

func New(o Options) *Node {
	if o.Power == nil {
		o.Power = power.Absent{}
	}
	if o.Logger == nil {
		o.Logger = slog.Default()
	}
	if o.Now == nil {
		o.Now = time.Now
	}
	return &Node{
		kind:    o.Transport,
		gate:    o.Gate,
		source:  o.Source,
		power:   o.Power,
		sink:    o.Sink,
		log:     o.Logger,
		metrics: o.Metrics,
		now:     o.Now,
		status: Status{
			Transport:    string(o.Transport),
			Driver:       o.Gate.Config().Driver.String(),
			PowerPresent: o.Power.Present(),
			Outcomes:     map[string]uint64{},
		},
	}
}

// Tick runs one evaluation cycle: read, attach battery telemetry, evaluate,
// and hand any payload to the sink. A failed send is logged and counted but
// the committed value stays.
func (n *Node) Tick(ctx context.Context) transmitter.Decision {
	r, err := n.source.Read(ctx)
	if err != nil {
		d := transmitter.Decision{
			Outcome: transmitter.OutcomeAborted,
			Err:     fmt.Errorf("sensor read failed: %w", err),
		}
		n.log.Warn("node: sensor read failed", "err", err)
		n.record(d, nil)
		return d
	}

	r.Battery = n.power.Read()
	d := n.gate.Evaluate(r)

	var sendErr error
	switch d.Outcome {
	case transmitter.OutcomeAborted:
		n.log.Warn("node: reading rejected", "driver", n.gate.Config().Driver, "value", d.Value, "err", d.Err)
	case transmitter.OutcomeSuppressed:
		n.log.Info("node: no significant change",
			"diff", d.Diff, "previous", d.Previous, "current", d.Value)
	default:
		sendErr = n.sink.Send(ctx, d.Payload)
		if sendErr != nil {
			n.log.Error("node: send failed", "outcome", d.Outcome, "transport", n.kind, "err", sendErr)
		} else {
			n.log.Info("node: sent", "outcome", d.Outcome, "transport", n.kind,
				"value", d.Value, "diff", d.Diff, "bytes", len(d.Payload))
		}
	}

	n.record(d, sendErr)
	if n.metrics != nil && r.Battery != (model.BatteryTelemetry{}) {
		n.metrics.BatteryLevel.Set(float64(r.Battery.Level))
	}
	return d
}

// Poll is the poll-driven cycle: false means no usable reading was taken.
func (n *Node) Poll(ctx context.Context) bool {
	d := n.Tick(ctx)
	return d.Outcome != transmitter.OutcomeAborted
}

func (n *Node) record(d transmitter.Decision, sendErr error) {
	last, have := n.gate.Store().Last()

	n.mu.Lock()
	s := &n.status
	s.Ticks++
	s.Outcomes[d.Outcome.String()]++
	s.LastOutcome = d.Outcome.String()
	s.LastTick = n.now()
	s.LastValue, s.HaveLastValue = last, have
	s.LastError = ""
	if d.Err != nil {
		s.LastError = d.Err.Error()
	}
	if sendErr != nil {
		s.SendFailures++
		s.LastError = sendErr.Error()
	}
	n.mu.Unlock()

	if n.metrics == nil {
		return
	}
	n.metrics.Decisions.WithLabelValues(d.Outcome.String()).Inc()
	if sendErr != nil {
		n.metrics.SendFailures.Inc()
	}
	if have {
		n.metrics.LastValue.Set(last)
	}
}

func (n *Node) Status() Status {
	n.mu.Lock()
	defer n.mu.Unlock()
	s := n.status
	s.Outcomes = make(map[string]uint64, len(n.status.Outcomes))
	for k, v := range n.status.Outcomes {
		s.Outcomes[k] = v
	}
	return s
}

// Schedule drives a node until ctx ends.
type Schedule func(ctx context.Context, n *Node) error

func IntervalSchedule(s *transmitter.IntervalScheduler) Schedule {
	return func(ctx context.Context, n *Node) error {
		return s.Run(ctx, func(ctx context.Context) { n.Tick(ctx) })
	}
}

func PollSchedule(s *transmitter.PollScheduler) Schedule {
	return func(ctx context.Context, n *Node) error {
		return s.Run(ctx, n.Poll)
	}
}

func (n *Node) Run(ctx context.Context, sched Schedule) error {
	n.log.Info("node: started", "transport", n.kind, "driver", n.gate.Config().Driver,
		"threshold", n.gate.Config().Threshold, "policy", n.gate.Config().Policy)
	err := sched(ctx, n)
	n.log.Info("node: stopped", "ticks", n.Status().Ticks)
	return err
}
