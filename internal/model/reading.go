package model

import "time"

// Reading is one snapshot of a field station: the sensed quantities plus the
// battery telemetry of the node that took it.
type Reading struct {
	FieldID     int              `json:"field_id"` // "lahan" identifier of the plot
	Humidity    float64          `json:"humidity"`
	Temperature float64          `json:"temperature"`
	EC          float64          `json:"ec"`
	PH          float64          `json:"ph"`
	Nitrogen    float64          `json:"nitrogen"`
	Phosphorus  float64          `json:"phosphorus"`
	Potassium   float64          `json:"potassium"`
	Battery     BatteryTelemetry `json:"battery"`
	Timestamp   time.Time        `json:"timestamp"`
}

// Soil holds the soil metrics that are simulated on every deployment.
type Soil struct {
	EC         float64
	PH         float64
	Nitrogen   float64
	Phosphorus float64
	Potassium  float64
}

// WithSoil copies the soil metrics into the reading.
func (r Reading) WithSoil(s Soil) Reading {
	r.EC = s.EC
	r.PH = s.PH
	r.Nitrogen = s.Nitrogen
	r.Phosphorus = s.Phosphorus
	r.Potassium = s.Potassium
	return r
}
