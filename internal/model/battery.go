package model

// BatteryTelemetry is the telemetry read from the power-management chip.
// The zero value is what a node without the chip reports.
type BatteryTelemetry struct {
	Voltage          float64 `json:"voltage"`           // V
	DischargeCurrent float64 `json:"discharge_current"` // mA
	Power            float64 `json:"power"`             // mW
	ChargeCurrent    float64 `json:"charge_current"`    // mA
	Level            int     `json:"level"`             // 0..100
}

// Millivolts returns the battery voltage in mV, the unit used on the radio link.
func (b BatteryTelemetry) Millivolts() float64 {
	return b.Voltage * 1000
}

const (
	emptyMillivolts = 3300
	fullMillivolts  = 4200
)

// LevelFromMillivolts maps a battery voltage onto 0..100 with integer
// arithmetic, truncating like the firmware's map()/constrain() pair.
func LevelFromMillivolts(mv float64) int {
	x := int64(mv)
	lvl := (x - emptyMillivolts) * 100 / (fullMillivolts - emptyMillivolts)
	switch {
	case lvl < 0:
		return 0
	case lvl > 100:
		return 100
	}
	return int(lvl)
}

// PercentageFromMillivolts is the fractional variant reported on the radio link.
func PercentageFromMillivolts(mv float64) float64 {
	p := (mv - emptyMillivolts) / (fullMillivolts - emptyMillivolts) * 100
	if p > 100 {
		p = 100
	}
	if p < 0 {
		p = 0
	}
	return p
}

// Percentage is PercentageFromMillivolts applied to b.
func (b BatteryTelemetry) Percentage() float64 {
	return PercentageFromMillivolts(b.Millivolts())
}
