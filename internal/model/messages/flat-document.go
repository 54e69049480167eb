package messages

import "github.com/LeonardoBeccarini/field-telemetry/internal/model"

// FlatDocument is the JSON document published by broker-connected nodes.
// Key names are the deployed wire format.
type FlatDocument struct {
	LahanID              int     `json:"lahanID"`
	Humidity             float64 `json:"humidity"`
	Temperature          float64 `json:"temperature"`
	EC                   float64 `json:"ec"`
	PH                   float64 `json:"ph"`
	Nitrogen             float64 `json:"nitrogen"`
	Phosphorus           float64 `json:"phosphorus"`
	Potassium            float64 `json:"potassium"`
	BatteryVoltage       float64 `json:"batteryVoltage"`
	BatteryCurrent       float64 `json:"batteryCurrent"`
	BatteryPower         float64 `json:"batteryPower"`
	BatteryChargeCurrent int     `json:"batteryChargeCurrent"`
	BatteryLevel         int     `json:"batteryLevel"`
}

func NewFlatDocument(r model.Reading) FlatDocument {
	return FlatDocument{
		LahanID:              r.FieldID,
		Humidity:             r.Humidity,
		Temperature:          r.Temperature,
		EC:                   r.EC,
		PH:                   r.PH,
		Nitrogen:             r.Nitrogen,
		Phosphorus:           r.Phosphorus,
		Potassium:            r.Potassium,
		BatteryVoltage:       r.Battery.Voltage,
		BatteryCurrent:       r.Battery.DischargeCurrent,
		BatteryPower:         r.Battery.Power,
		BatteryChargeCurrent: int(r.Battery.ChargeCurrent),
		BatteryLevel:         r.Battery.Level,
	}
}
