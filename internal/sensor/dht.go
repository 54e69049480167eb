// Package sensor reads air temperature and humidity from a DHT22 bridged over UART.
//
// The bridge answers each "READ" request with one "temperature,humidity" line.
// A failed DHT read is reported by the bridge as "nan,nan".
package sensor

import (
	"context"
	"errors"
	"fmt"
	"io"
	"math"
	"strconv"
	"strings"
	"sync"
	"time"

	"github.com/LeonardoBeccarini/field-telemetry/internal/model"
	"github.com/LeonardoBeccarini/field-telemetry/pkg/serialport"
)

const DefaultReplyTimeout = 3 * time.Second

var readCommand = []byte("READ\n")

// ErrMalformed is returned for bridge replies that are not two numbers.
var ErrMalformed = errors.New("sensor: malformed bridge reply")

// SoilSource fills in the metrics the node has no probe for.
type SoilSource interface {
	Soil() model.Soil
}

type DHT struct {
	mu      sync.Mutex
	w       io.Writer
	lines   *serialport.LineReader
	closer  io.Closer
	fieldID int
	soil    SoilSource
	timeout time.Duration
	now     func() time.Time
}

// NewDHT wraps an open bridge connection. soil may be nil.
func NewDHT(conn io.ReadWriter, fieldID int, soil SoilSource, timeout time.Duration) *DHT {
	if timeout <= 0 {
		timeout = DefaultReplyTimeout
	}
	d := &DHT{
		w:       conn,
		lines:   serialport.NewLineReader(conn),
		fieldID: fieldID,
		soil:    soil,
		timeout: timeout,
		now:     func() time.Time { return time.Now().UTC() },
	}
	if c, ok := conn.(io.Closer); ok {
		d.closer = c
	}
	return d
}

// OpenDHT opens the bridge UART.
func OpenDHT(cfg serialport.Config, fieldID int, soil SoilSource) (*DHT, error) {
	port, err := serialport.Open(cfg)
	if err != nil {
		return nil, err
	}
	return NewDHT(port, fieldID, soil, 0), nil
}

// Read requests one sample. A "nan" from the bridge comes back as a reading
// whose air values are NaN, with a nil error; the gate rejects it.
func (d *DHT) Read(ctx context.Context) (model.Reading, error) {
	d.mu.Lock()
	defer d.mu.Unlock()

	d.lines.Discard()
	if _, err := d.w.Write(readCommand); err != nil {
		return model.Reading{}, fmt.Errorf("sensor: request sample: %w", err)
	}
	line, err := d.lines.ReadLine(ctx, d.timeout)
	if err != nil {
		return model.Reading{}, fmt.Errorf("sensor: await sample: %w", err)
	}
	temp, hum, err := ParseSample(line)
	if err != nil {
		return model.Reading{}, err
	}

	r := model.Reading{
		FieldID:     d.fieldID,
		Temperature: temp,
		Humidity:    hum,
		Timestamp:   d.now(),
	}
	if d.soil != nil {
		r = r.WithSoil(d.soil.Soil())
	}
	return r, nil
}

func (d *DHT) Close() error {
	if d.closer == nil {
		return nil
	}
	return d.closer.Close()
}

// ParseSample parses "temperature,humidity". NaN tokens are accepted.
func ParseSample(line string) (temperature, humidity float64, err error) {
	parts := strings.Split(strings.TrimSpace(line), ",")
	if len(parts) != 2 {
		return 0, 0, fmt.Errorf("%w: %q", ErrMalformed, line)
	}
	temperature, err = parseValue(parts[0])
	if err != nil {
		return 0, 0, fmt.Errorf("%w: %q", ErrMalformed, line)
	}
	humidity, err = parseValue(parts[1])
	if err != nil {
		return 0, 0, fmt.Errorf("%w: %q", ErrMalformed, line)
	}
	return temperature, humidity, nil
}

func parseValue(s string) (float64, error) {
	s = strings.TrimSpace(s)
	if strings.EqualFold(s, "nan") {
		return math.NaN(), nil
	}
	return strconv.ParseFloat(s, 64)
}
