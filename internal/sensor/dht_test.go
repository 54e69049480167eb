package sensor

import (
	"bytes"
	"context"
	"math"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/LeonardoBeccarini/field-telemetry/internal/model"
)

// fakeBridge answers every READ with the next canned reply.
type fakeBridge struct {
	mu      sync.Mutex
	replies []string
	out     bytes.Buffer
	written bytes.Buffer
}

func (f *fakeBridge) Write(p []byte) (int, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.written.Write(p)
	if len(f.replies) > 0 {
		f.out.WriteString(f.replies[0])
		f.replies = f.replies[1:]
	}
	return len(p), nil
}

func (f *fakeBridge) Read(p []byte) (int, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.out.Len() == 0 {
		return 0, nil
	}
	return f.out.Read(p)
}

type fixedSoil struct{}

func (fixedSoil) Soil() model.Soil {
	return model.Soil{EC: 40, PH: 6.5, Nitrogen: 2, Phosphorus: 4, Potassium: 7}
}

func TestDHT_Read(t *testing.T) {
	bridge := &fakeBridge{replies: []string{"24.30,61.20\r\n"}}
	d := NewDHT(bridge, 5, fixedSoil{}, time.Second)

	r, err := d.Read(context.Background())
	require.NoError(t, err)
	assert.Equal(t, "READ\n", bridge.written.String())
	assert.Equal(t, 5, r.FieldID)
	assert.Equal(t, 24.3, r.Temperature)
	assert.Equal(t, 61.2, r.Humidity)
	assert.Equal(t, 6.5, r.PH)
	assert.False(t, r.Timestamp.IsZero())
}

func TestDHT_NanIsInvalidReading(t *testing.T) {
	bridge := &fakeBridge{replies: []string{"nan,nan\n"}}
	d := NewDHT(bridge, 1, nil, time.Second)

	r, err := d.Read(context.Background())
	require.NoError(t, err)
	assert.True(t, math.IsNaN(r.Humidity))
	assert.False(t, model.DriverHumidity.Valid(r))
	assert.False(t, model.DriverTemperature.Valid(r))
}

func TestDHT_NoReplyTimesOut(t *testing.T) {
	d := NewDHT(&fakeBridge{}, 1, nil, 20*time.Millisecond)
	_, err := d.Read(context.Background())
	assert.Error(t, err)
}

func TestParseSample(t *testing.T) {
	tests := []struct {
		in      string
		temp    float64
		hum     float64
		wantErr bool
	}{
		{in: "21.5,40", temp: 21.5, hum: 40},
		{in: " 21.5 , 40.25 ", temp: 21.5, hum: 40.25},
		{in: "NaN,40", temp: math.NaN(), hum: 40},
		{in: "21.5", wantErr: true},
		{in: "a,b", wantErr: true},
		{in: "1,2,3", wantErr: true},
	}
	for _, tt := range tests {
		t.Run(tt.in, func(t *testing.T) {
			temp, hum, err := ParseSample(tt.in)
			if tt.wantErr {
				assert.ErrorIs(t, err, ErrMalformed)
				return
			}
			require.NoError(t, err)
			if math.IsNaN(tt.temp) {
				assert.True(t, math.IsNaN(temp))
			} else {
				assert.Equal(t, tt.temp, temp)
			}
			assert.Equal(t, tt.hum, hum)
		})
	}
}
