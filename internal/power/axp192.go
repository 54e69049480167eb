package power

import (
	"errors"
	"fmt"
	"log/slog"
	"sync"

	"periph.io/x/conn/v3/i2c"

	"github.com/LeonardoBeccarini/field-telemetry/internal/model"
)

const AXP192Address uint16 = 0x34

const (
	regChipID       = 0x03
	regPowerOutput  = 0x12
	regBattPower    = 0x70
	regBattVoltage  = 0x78
	regChargeCur    = 0x7A
	regDischargeCur = 0x7C

	axp192ChipID = 0x03

	// DCDC1 | LDO2 | LDO3 | DCDC2 | EXTEN
	outputsOn = 0x01 | 0x04 | 0x08 | 0x10 | 0x40

	voltageStep = 1.1                   // mV/LSB
	currentStep = 0.5                   // mA/LSB
	powerStep   = 2 * 1.1 * 0.5 / 1000 // mW/LSB
)

var ErrUnknownChip = errors.New("power: unexpected chip id")

// AXP192 is the X-Powers PMU found on T-Beam boards.
type AXP192 struct {
	mu  sync.Mutex
	dev *i2c.Dev
	log *slog.Logger
}

// NewAXP192 checks the chip id and switches on the rails the radio and
// sensors hang off.
func NewAXP192(bus i2c.Bus, addr uint16, log *slog.Logger) (*AXP192, error) {
	if log == nil {
		log = slog.Default()
	}
	a := &AXP192{dev: &i2c.Dev{Bus: bus, Addr: addr}, log: log}

	id, err := a.readByte(regChipID)
	if err != nil {
		return nil, fmt.Errorf("power: probe: %w", err)
	}
	if id != axp192ChipID {
		return nil, fmt.Errorf("%w: 0x%02x", ErrUnknownChip, id)
	}

	out, err := a.readByte(regPowerOutput)
	if err != nil {
		return nil, fmt.Errorf("power: read output control: %w", err)
	}
	if err := a.dev.Tx([]byte{regPowerOutput, out | outputsOn}, nil); err != nil {
		return nil, fmt.Errorf("power: enable outputs: %w", err)
	}
	return a, nil
}

func (a *AXP192) Present() bool { return true }

// Read samples the battery ADCs. A failed transfer is logged and reported as
// zero telemetry for this tick.
func (a *AXP192) Read() model.BatteryTelemetry {
	a.mu.Lock()
	defer a.mu.Unlock()

	b, err := a.read()
	if err != nil {
		a.log.Warn("power: battery read failed", "err", err)
		return model.BatteryTelemetry{}
	}
	return b
}

func (a *AXP192) read() (model.BatteryTelemetry, error) {
	var buf [3]byte

	if err := a.dev.Tx([]byte{regBattVoltage}, buf[:2]); err != nil {
		return model.BatteryTelemetry{}, err
	}
	mv := float64(uint16(buf[0])<<4|uint16(buf[1]&0x0F)) * voltageStep

	if err := a.dev.Tx([]byte{regChargeCur}, buf[:2]); err != nil {
		return model.BatteryTelemetry{}, err
	}
	charge := float64(h8l5(buf[0], buf[1])) * currentStep

	if err := a.dev.Tx([]byte{regDischargeCur}, buf[:2]); err != nil {
		return model.BatteryTelemetry{}, err
	}
	discharge := float64(h8l5(buf[0], buf[1])) * currentStep

	if err := a.dev.Tx([]byte{regBattPower}, buf[:3]); err != nil {
		return model.BatteryTelemetry{}, err
	}
	raw := uint32(buf[0])<<16 | uint32(buf[1])<<8 | uint32(buf[2])

	return model.BatteryTelemetry{
		Voltage:          mv / 1000,
		DischargeCurrent: discharge,
		Power:            float64(raw) * powerStep,
		ChargeCurrent:    charge,
		Level:            model.LevelFromMillivolts(mv),
	}, nil
}

func (a *AXP192) readByte(reg byte) (byte, error) {
	var b [1]byte
	if err := a.dev.Tx([]byte{reg}, b[:]); err != nil {
		return 0, err
	}
	return b[0], nil
}

func h8l5(h, l byte) uint16 {
	return uint16(h)<<5 | uint16(l&0x1F)
}
