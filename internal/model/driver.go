package model

import (
	"fmt"
	"math"
	"strings"
)

// DriverField names the reading attribute used by the significant-change test.
type DriverField string

const (
	DriverTemperature DriverField = "temperature"
	DriverHumidity    DriverField = "humidity"
)

// ParseDriverField accepts the profile spelling of a driver field.
func ParseDriverField(s string) (DriverField, error) {
	switch DriverField(strings.ToLower(strings.TrimSpace(s))) {
	case DriverTemperature:
		return DriverTemperature, nil
	case DriverHumidity:
		return DriverHumidity, nil
	default:
		return "", fmt.Errorf("unknown driver field %q (allowed: temperature, humidity)", s)
	}
}

// Value extracts the driver value from r.
func (d DriverField) Value(r Reading) float64 {
	switch d {
	case DriverTemperature:
		return r.Temperature
	case DriverHumidity:
		return r.Humidity
	default:
		return math.NaN()
	}
}

// Valid reports whether the driver value of r can take part in a comparison.
func (d DriverField) Valid(r Reading) bool {
	v := d.Value(r)
	return !math.IsNaN(v) && !math.IsInf(v, 0)
}

func (d DriverField) String() string { return string(d) }
