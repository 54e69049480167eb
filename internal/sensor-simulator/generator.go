package sensor_simulator

import (
	"context"
	"math/rand"
	"sync"
	"time"

	"github.com/LeonardoBeccarini/field-telemetry/internal/model"
)

// Range is a half-open interval [Min, Max).
type Range struct {
	Min float64 `yaml:"min"`
	Max float64 `yaml:"max"`
}

// Ranges bounds every metric the generator produces.
type Ranges struct {
	Humidity    Range `yaml:"humidity"`
	Temperature Range `yaml:"temperature"`
	EC          Range `yaml:"ec"`
	PH          Range `yaml:"ph"`
	Nitrogen    Range `yaml:"nitrogen"`
	Phosphorus  Range `yaml:"phosphorus"`
	Potassium   Range `yaml:"potassium"`
}

// DefaultRanges are the bounds the field nodes were tested with.
var DefaultRanges = Ranges{
	Humidity:    Range{20, 35},
	Temperature: Range{20, 35},
	EC:          Range{0, 100},
	PH:          Range{0, 14},
	Nitrogen:    Range{0, 5},
	Phosphorus:  Range{0, 10},
	Potassium:   Range{0, 15},
}

// DataGenerator produces simulated readings for one field.
type DataGenerator struct {
	mu      sync.Mutex
	rng     *rand.Rand
	fieldID int
	ranges  Ranges
	integer bool
	now     func() time.Time
}

type Option func(*DataGenerator)

// WithSeed makes the sequence reproducible.
func WithSeed(seed int64) Option {
	return func(g *DataGenerator) { g.rng = rand.New(rand.NewSource(seed)) }
}

func WithRanges(r Ranges) Option {
	return func(g *DataGenerator) { g.ranges = r }
}

// WithIntegerValues draws whole numbers only, like the time-based nodes did.
func WithIntegerValues() Option {
	return func(g *DataGenerator) { g.integer = true }
}

func WithClock(now func() time.Time) Option {
	return func(g *DataGenerator) { g.now = now }
}

func NewDataGenerator(fieldID int, opts ...Option) *DataGenerator {
	g := &DataGenerator{
		fieldID: fieldID,
		ranges:  DefaultRanges,
		now:     func() time.Time { return time.Now().UTC() },
	}
	for _, o := range opts {
		o(g)
	}
	if g.rng == nil {
		g.rng = rand.New(rand.NewSource(time.Now().UnixNano()))
	}
	return g
}

// Next draws a full reading.
func (g *DataGenerator) Next() model.Reading {
	g.mu.Lock()
	defer g.mu.Unlock()

	r := model.Reading{
		FieldID:     g.fieldID,
		Humidity:    g.draw(g.ranges.Humidity),
		Temperature: g.draw(g.ranges.Temperature),
		Timestamp:   g.now(),
	}
	return r.WithSoil(g.soilLocked())
}

// Soil draws only the soil metrics. The DHT bridge uses it to complete real
// air readings.
func (g *DataGenerator) Soil() model.Soil {
	g.mu.Lock()
	defer g.mu.Unlock()
	return g.soilLocked()
}

// Read implements the node source contract; the simulator never fails.
func (g *DataGenerator) Read(ctx context.Context) (model.Reading, error) {
	if err := ctx.Err(); err != nil {
		return model.Reading{}, err
	}
	return g.Next(), nil
}

func (g *DataGenerator) soilLocked() model.Soil {
	return model.Soil{
		EC:         g.draw(g.ranges.EC),
		PH:         g.draw(g.ranges.PH),
		Nitrogen:   g.draw(g.ranges.Nitrogen),
		Phosphorus: g.draw(g.ranges.Phosphorus),
		Potassium:  g.draw(g.ranges.Potassium),
	}
}

// draw picks a value in [min, max) with two-decimal resolution, or a whole
// number in integer mode.
func (g *DataGenerator) draw(r Range) float64 {
	scale := 100.0
	if g.integer {
		scale = 1
	}
	lo, hi := int64(r.Min*scale), int64(r.Max*scale)
	if hi <= lo {
		return float64(lo) / scale
	}
	return float64(lo+g.rng.Int63n(hi-lo)) / scale
}
