package messages

import (
	"encoding/json"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/LeonardoBeccarini/field-telemetry/internal/model"
)

func sampleReading() model.Reading {
	return model.Reading{
		FieldID:     1,
		Humidity:    27.5,
		Temperature: 24.25,
		EC:          50,
		PH:          6.5,
		Nitrogen:    2,
		Phosphorus:  4,
		Potassium:   8,
		Battery: model.BatteryTelemetry{
			Voltage:          3.75,
			DischargeCurrent: 120.5,
			Power:            450,
			ChargeCurrent:    80.9,
			Level:            50,
		},
	}
}

func TestFlatDocument_Keys(t *testing.T) {
	b, err := json.Marshal(NewFlatDocument(sampleReading()))
	require.NoError(t, err)

	var m map[string]any
	require.NoError(t, json.Unmarshal(b, &m))
	for _, k := range []string{"lahanID", "humidity", "temperature", "ec", "ph", "nitrogen",
		"phosphorus", "potassium", "batteryVoltage", "batteryCurrent", "batteryPower",
		"batteryChargeCurrent", "batteryLevel"} {
		assert.Contains(t, m, k)
	}
	assert.Len(t, m, 13)
	assert.Equal(t, 80.0, m["batteryChargeCurrent"])
	assert.Equal(t, 120.5, m["batteryCurrent"])
}

func TestSensorPacket_WireFormat(t *testing.T) {
	b, err := json.Marshal(NewSensorPacket(sampleReading()))
	require.NoError(t, err)

	var m map[string]any
	require.NoError(t, json.Unmarshal(b, &m))
	assert.Equal(t, "sensor", m["type"])
	assert.Equal(t, 1.0, m["lahanID"])

	sensor := m["sensor"].(map[string]any)
	assert.Contains(t, sensor, "Phosporus")
	assert.Contains(t, sensor, "Kalium")
	assert.Equal(t, 27.5, sensor["Humidity"])

	battery := m["battery"].(map[string]any)
	assert.InDelta(t, 3750.0, battery["voltage"].(float64), 1e-9)
	assert.InDelta(t, 50.0, battery["percentage"].(float64), 1e-9)
}

func TestSensorPacket_Reading(t *testing.T) {
	raw := `{"type":"sensor","lahanID":3,"sensor":{"Humidity":30.1,"Temperature":21,"Ec":10,"Ph":7,"Nitrogen":1,"Phosporus":2,"Kalium":3},"battery":{"voltage":4000}}`
	var p SensorPacket
	require.NoError(t, json.Unmarshal([]byte(raw), &p))

	r := p.Reading()
	assert.Equal(t, 3, r.FieldID)
	assert.Equal(t, 30.1, r.Humidity)
	assert.Equal(t, 2.0, r.Phosphorus)
	assert.Equal(t, 3.0, r.Potassium)
	assert.Equal(t, model.BatteryTelemetry{}, r.Battery)
}
