// Package power reads battery telemetry from the node's power-management chip.
package power

import (
	"fmt"
	"log/slog"

	"periph.io/x/conn/v3/i2c/i2creg"
	"periph.io/x/host/v3"

	"github.com/LeonardoBeccarini/field-telemetry/internal/model"
)

// Monitor is a source of battery telemetry. Read never fails: a chip that
// stops answering reports zero values.
type Monitor interface {
	Read() model.BatteryTelemetry
	Present() bool
}

// Absent is the monitor of a node without a power chip.
type Absent struct{}

func (Absent) Read() model.BatteryTelemetry { return model.BatteryTelemetry{} }

func (Absent) Present() bool { return false }

type Config struct {
	Enabled bool   `yaml:"enabled"`
	Bus     string `yaml:"bus"` // "" selects the first bus, usually /dev/i2c-1
	Address uint16 `yaml:"address"`
}

// Open probes the chip once. Any failure is logged and yields Absent; it is
// not retried.
func Open(cfg Config, log *slog.Logger) Monitor {
	if !cfg.Enabled {
		return Absent{}
	}
	if cfg.Address == 0 {
		cfg.Address = AXP192Address
	}

	if _, err := host.Init(); err != nil {
		log.Warn("power: host init failed, running without battery telemetry", "err", err)
		return Absent{}
	}
	bus, err := i2creg.Open(cfg.Bus)
	if err != nil {
		log.Warn("power: i2c bus unavailable, running without battery telemetry", "bus", cfg.Bus, "err", err)
		return Absent{}
	}
	axp, err := NewAXP192(bus, cfg.Address, log)
	if err != nil {
		_ = bus.Close()
		log.Warn("power: AXP192 not found", "addr", fmt.Sprintf("0x%02x", cfg.Address), "err", err)
		return Absent{}
	}
	log.Info("power: AXP192 initialized", "addr", fmt.Sprintf("0x%02x", cfg.Address))
	return axp
}
