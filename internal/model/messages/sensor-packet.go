package messages

import (
	"math"

	"github.com/LeonardoBeccarini/field-telemetry/internal/model"
)

// PacketTypeSensor is the only packet type nodes put on the air.
const PacketTypeSensor = "sensor"

// SensorPacket is the JSON frame carried over the radio link.
// "Phosporus" and "Kalium" are spelled as deployed gateways expect them.
type SensorPacket struct {
	Type    string        `json:"type"`
	LahanID int           `json:"lahanID"`
	Sensor  PacketSensor  `json:"sensor"`
	Battery PacketBattery `json:"battery"`
}

type PacketSensor struct {
	Humidity    float64 `json:"Humidity"`
	Temperature float64 `json:"Temperature"`
	Ec          float64 `json:"Ec"`
	Ph          float64 `json:"Ph"`
	Nitrogen    float64 `json:"Nitrogen"`
	Phosphorus  float64 `json:"Phosporus"`
	Potassium   float64 `json:"Kalium"`
}

// PacketBattery reports voltage in mV, unlike the flat document.
type PacketBattery struct {
	Voltage          float64 `json:"voltage"`
	DischargeCurrent float64 `json:"dischargeCurrent"`
	Percentage       float64 `json:"percentage"`
	ChargeCurrent    float64 `json:"chargeCurrent"`
}

func NewSensorPacket(r model.Reading) SensorPacket {
	return SensorPacket{
		Type:    PacketTypeSensor,
		LahanID: r.FieldID,
		Sensor: PacketSensor{
			Humidity:    r.Humidity,
			Temperature: r.Temperature,
			Ec:          r.EC,
			Ph:          r.PH,
			Nitrogen:    r.Nitrogen,
			Phosphorus:  r.Phosphorus,
			Potassium:   r.Potassium,
		},
		Battery: NewPacketBattery(r.Battery),
	}
}

// NewPacketBattery rounds to two decimals so a full frame stays well inside
// one radio payload.
func NewPacketBattery(b model.BatteryTelemetry) PacketBattery {
	return PacketBattery{
		Voltage:          round2(b.Millivolts()),
		DischargeCurrent: round2(b.DischargeCurrent),
		Percentage:       round2(b.Percentage()),
		ChargeCurrent:    round2(b.ChargeCurrent),
	}
}

func round2(v float64) float64 {
	return math.Round(v*100) / 100
}

// Reading converts the packet back into a reading. Battery telemetry is left
// empty: the receiving side reports its own.
func (p SensorPacket) Reading() model.Reading {
	return model.Reading{
		FieldID:     p.LahanID,
		Humidity:    p.Sensor.Humidity,
		Temperature: p.Sensor.Temperature,
		EC:          p.Sensor.Ec,
		PH:          p.Sensor.Ph,
		Nitrogen:    p.Sensor.Nitrogen,
		Phosphorus:  p.Sensor.Phosphorus,
		Potassium:   p.Sensor.Potassium,
	}
}
