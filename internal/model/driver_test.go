package model

import (
	"math"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestParseDriverField(t *testing.T) {
	d, err := ParseDriverField(" Humidity ")
	require.NoError(t, err)
	assert.Equal(t, DriverHumidity, d)

	d, err = ParseDriverField("temperature")
	require.NoError(t, err)
	assert.Equal(t, DriverTemperature, d)

	_, err = ParseDriverField("ph")
	assert.Error(t, err)
}

func TestDriverField_ValueAndValid(t *testing.T) {
	r := Reading{Humidity: 27.5, Temperature: 22.1}

	assert.Equal(t, 27.5, DriverHumidity.Value(r))
	assert.Equal(t, 22.1, DriverTemperature.Value(r))
	assert.True(t, DriverHumidity.Valid(r))

	r.Temperature = math.NaN()
	assert.False(t, DriverTemperature.Valid(r))
	assert.True(t, DriverHumidity.Valid(r))

	r.Humidity = math.Inf(1)
	assert.False(t, DriverHumidity.Valid(r))

	assert.False(t, DriverField("bogus").Valid(r))
}

func TestReading_WithSoil(t *testing.T) {
	r := Reading{Humidity: 30}.WithSoil(Soil{EC: 1, PH: 2, Nitrogen: 3, Phosphorus: 4, Potassium: 5})
	assert.Equal(t, 30.0, r.Humidity)
	assert.Equal(t, 1.0, r.EC)
	assert.Equal(t, 5.0, r.Potassium)
}
