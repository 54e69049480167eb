package transmitter

import (
	"errors"
	"fmt"
	"math"
	"strings"

	"github.com/LeonardoBeccarini/field-telemetry/internal/model"
)

// ErrInvalidReading marks a tick abandoned because the driver value was unusable.
var ErrInvalidReading = errors.New("invalid reading")

// ProximityPolicy decides what happens to a reading that is not a significant change.
type ProximityPolicy int

const (
	// ResendPrevious re-emits the payload stored at the last commit, unchanged.
	ResendPrevious ProximityPolicy = iota
	// Suppress transmits nothing.
	Suppress
)

func ParsePolicy(s string) (ProximityPolicy, error) {
	switch strings.ToLower(strings.TrimSpace(s)) {
	case "resend_previous", "resend":
		return ResendPrevious, nil
	case "suppress":
		return Suppress, nil
	default:
		return ResendPrevious, fmt.Errorf("unknown proximity policy %q (allowed: resend_previous, suppress)", s)
	}
}

func (p ProximityPolicy) String() string {
	switch p {
	case ResendPrevious:
		return "resend_previous"
	case Suppress:
		return "suppress"
	default:
		return fmt.Sprintf("policy(%d)", int(p))
	}
}

// Outcome is the fate of one tick.
type Outcome int

const (
	OutcomeSendNew Outcome = iota
	OutcomeResendPrevious
	OutcomeSuppressed
	OutcomeAborted
)

func (o Outcome) String() string {
	switch o {
	case OutcomeSendNew:
		return "send_new"
	case OutcomeResendPrevious:
		return "resend_previous"
	case OutcomeSuppressed:
		return "suppressed"
	case OutcomeAborted:
		return "aborted"
	default:
		return fmt.Sprintf("outcome(%d)", int(o))
	}
}

// Transmits reports whether the outcome carries a payload to the transport.
func (o Outcome) Transmits() bool {
	return o == OutcomeSendNew || o == OutcomeResendPrevious
}

// Decision is the result of Gate.Evaluate.
type Decision struct {
	Outcome  Outcome
	Payload  []byte  // set when Outcome.Transmits()
	Value    float64 // driver value of the evaluated reading
	Previous float64 // last committed value before this evaluation
	Diff     float64 // |Value - Previous|, zero on bootstrap
	Err      error   // set on OutcomeAborted
}

// Formatter turns a reading into a transport-ready payload.
type Formatter interface {
	Format(r model.Reading) ([]byte, error)
}

// FormatterFunc adapts a plain function to Formatter.
type FormatterFunc func(r model.Reading) ([]byte, error)

func (f FormatterFunc) Format(r model.Reading) ([]byte, error) { return f(r) }

type GateConfig struct {
	Driver    model.DriverField
	Threshold float64 // minimum meaningful delta, in driver units
	Policy    ProximityPolicy

	// Gating disabled turns every valid reading into a new send.
	Gating bool

	// RejectNonPositive treats driver values <= 0 as invalid.
	RejectNonPositive bool
}

// Gate applies the significant-change policy against a Store.
type Gate struct {
	cfg    GateConfig
	store  *Store
	format Formatter
}

func NewGate(cfg GateConfig, store *Store, format Formatter) *Gate {
	if store == nil {
		store = NewStore()
	}
	return &Gate{cfg: cfg, store: store, format: format}
}

func (g *Gate) Config() GateConfig { return g.cfg }

func (g *Gate) Store() *Store { return g.store }

// Evaluate decides the fate of one reading. A SendNew decision is committed to
// the store before it is returned, so a failed send never leaves the next
// comparison running against stale data.
func (g *Gate) Evaluate(r model.Reading) Decision {
	v := g.cfg.Driver.Value(r)
	if !g.valid(r, v) {
		return Decision{
			Outcome: OutcomeAborted,
			Value:   v,
			Err:     fmt.Errorf("%w: %s=%v", ErrInvalidReading, g.cfg.Driver, v),
		}
	}

	g.store.mu.Lock()
	defer g.store.mu.Unlock()

	prev, have := g.store.value, g.store.valid
	d := Decision{Value: v, Previous: prev}
	if have {
		d.Diff = math.Abs(v - prev)
	}

	if g.cfg.Gating && have && d.Diff <= g.cfg.Threshold {
		switch g.cfg.Policy {
		case Suppress:
			d.Outcome = OutcomeSuppressed
		default:
			d.Outcome = OutcomeResendPrevious
			d.Payload = clone(g.store.payload)
		}
		return d
	}

	payload, err := g.format.Format(r)
	if err != nil {
		d.Outcome = OutcomeAborted
		d.Err = fmt.Errorf("format reading: %w", err)
		return d
	}
	g.store.commitLocked(v, payload)
	d.Outcome = OutcomeSendNew
	d.Payload = clone(payload)
	return d
}

func (g *Gate) valid(r model.Reading, v float64) bool {
	if !g.cfg.Driver.Valid(r) {
		return false
	}
	if g.cfg.RejectNonPositive && v <= 0 {
		return false
	}
	return true
}
