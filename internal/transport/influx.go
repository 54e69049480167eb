package transport

import (
	"context"
	"fmt"
	"strconv"
	"strings"
	"time"

	influxdb2 "github.com/influxdata/influxdb-client-go/v2"
	"github.com/influxdata/influxdb-client-go/v2/api"
	"github.com/influxdata/influxdb-client-go/v2/api/write"

	"github.com/LeonardoBeccarini/field-telemetry/internal/model"
)

const DefaultMeasurement = "field_reading"

type InfluxConfig struct {
	URL         string `yaml:"url"`
	Token       string `yaml:"token"`
	Org         string `yaml:"org"`
	Bucket      string `yaml:"bucket"`
	Measurement string `yaml:"measurement"`
}

func (c InfluxConfig) Validate() error {
	if c.URL == "" || c.Token == "" || c.Org == "" || c.Bucket == "" {
		return fmt.Errorf("influx config incomplete")
	}
	return nil
}

// LineProtocol renders a reading as one InfluxDB line.
type LineProtocol struct {
	Measurement string
	Now         func() time.Time
}

func (f LineProtocol) Format(r model.Reading) ([]byte, error) {
	return []byte(write.PointToLineProtocol(f.point(r), time.Nanosecond)), nil
}

func (f LineProtocol) point(r model.Reading) *write.Point {
	name := f.Measurement
	if name == "" {
		name = DefaultMeasurement
	}
	t := r.Timestamp
	if t.IsZero() {
		if f.Now != nil {
			t = f.Now()
		} else {
			t = time.Now()
		}
	}
	return ReadingPoint(SanitizeMeasurement(name), r, t)
}

// ReadingPoint builds the point shared by nodes and the gateway.
func ReadingPoint(measurement string, r model.Reading, t time.Time) *write.Point {
	tags := map[string]string{
		"field_id": strconv.Itoa(r.FieldID),
	}
	fields := map[string]interface{}{
		"humidity":        r.Humidity,
		"temperature":     r.Temperature,
		"ec":              r.EC,
		"ph":              r.PH,
		"nitrogen":        r.Nitrogen,
		"phosphorus":      r.Phosphorus,
		"potassium":       r.Potassium,
		"battery_voltage": r.Battery.Voltage,
		"battery_level":   r.Battery.Level,
	}
	return influxdb2.NewPoint(measurement, tags, fields, t)
}

// SanitizeMeasurement replaces anything outside [A-Za-z0-9_:-] with '_'.
func SanitizeMeasurement(s string) string {
	var b strings.Builder
	for _, r := range s {
		switch {
		case r >= 'a' && r <= 'z',
			r >= 'A' && r <= 'Z',
			r >= '0' && r <= '9',
			r == '_', r == ':', r == '-':
			b.WriteRune(r)
		default:
			b.WriteByte('_')
		}
	}
	return b.String()
}

type InfluxSink struct {
	w api.WriteAPIBlocking
}

func NewInfluxSink(w api.WriteAPIBlocking) *InfluxSink {
	return &InfluxSink{w: w}
}

func (s *InfluxSink) Send(ctx context.Context, payload []byte) error {
	line := strings.TrimRight(string(payload), "\n")
	if err := s.w.WriteRecord(ctx, line); err != nil {
		return fmt.Errorf("influx: write: %w", err)
	}
	return nil
}
