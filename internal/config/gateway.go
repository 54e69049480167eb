package config

import (
	"errors"
	"time"

	"github.com/LeonardoBeccarini/field-telemetry/internal/power"
	"github.com/LeonardoBeccarini/field-telemetry/internal/transport"
	"github.com/LeonardoBeccarini/field-telemetry/pkg/rylr896"
	"github.com/LeonardoBeccarini/field-telemetry/pkg/serialport"
)

type BreakerConfig struct {
	Failures int           `yaml:"failures"`
	OpenFor  time.Duration `yaml:"open_for"`
	Interval time.Duration `yaml:"interval"`
}

// GatewayProfile configures the radio gateway.
type GatewayProfile struct {
	LoRa     rylr896.Config         `yaml:"lora"`
	HTTP     transport.SheetConfig  `yaml:"http"`
	Influx   transport.InfluxConfig `yaml:"influx"`
	Power    power.Config           `yaml:"power"`
	Breaker  BreakerConfig          `yaml:"breaker"`
	GRPCPort string                 `yaml:"grpc_port"`

	CORSOrigins []string `yaml:"cors_origins"`

	// ReadyErrorAge is how long the Influx writer must be error free for /readyz.
	ReadyErrorAge time.Duration `yaml:"ready_error_age"`
}

func (g GatewayProfile) InfluxEnabled() bool {
	return g.Influx.URL != ""
}

func DefaultGatewayProfile() GatewayProfile {
	return GatewayProfile{
		LoRa: rylr896.Config{
			Serial:    serialport.Config{Device: "/dev/ttyS0", BaudRate: serialport.DefaultBaudRate},
			Address:   2,
			NetworkID: 6,
			Band:      915000000,
		},
		HTTP:          transport.SheetConfig{BaseURL: transport.DefaultSheetBase, Timeout: transport.DefaultTimeout},
		Influx:        transport.InfluxConfig{Measurement: transport.DefaultMeasurement},
		Power:         power.Config{Enabled: true, Address: power.AXP192Address},
		Breaker:       BreakerConfig{Failures: 5, OpenFor: 30 * time.Second, Interval: 60 * time.Second},
		GRPCPort:      "50051",
		CORSOrigins:   []string{"*"},
		ReadyErrorAge: 30 * time.Second,
	}
}

type Gateway struct {
	Common
	Profile GatewayProfile
}

func LoadGateway() (Gateway, error) {
	if err := loadDotEnv(); err != nil {
		return Gateway{}, err
	}
	common, err := loadCommon(":8080")
	if err != nil {
		return Gateway{}, err
	}
	doc, err := readProfile()
	if err != nil {
		return Gateway{}, err
	}

	p := DefaultGatewayProfile()
	if err := decodeInto(doc, &p); err != nil {
		return Gateway{}, err
	}

	var e envReader
	applyLoRaEnv(&e, &p.LoRa)
	e.str("SCRIPT_ID", &p.HTTP.ScriptID)
	e.str("SHEET_BASE_URL", &p.HTTP.BaseURL)
	e.duration("HTTP_TIMEOUT", &p.HTTP.Timeout)
	applyInfluxEnv(&e, &p.Influx)
	applyPowerEnv(&e, &p.Power)
	e.integer("CB_FAILS", &p.Breaker.Failures)
	e.duration("CB_OPEN_FOR", &p.Breaker.OpenFor)
	e.duration("CB_INTERVAL", &p.Breaker.Interval)
	e.str("GRPC_PORT", &p.GRPCPort)
	e.duration("READY_ERROR_AGE", &p.ReadyErrorAge)
	e.list("CORS_ORIGINS", &p.CORSOrigins)
	if err := e.err(); err != nil {
		return Gateway{}, err
	}

	if err := p.validate(); err != nil {
		return Gateway{}, err
	}
	return Gateway{Common: common, Profile: p}, nil
}

func (g GatewayProfile) validate() error {
	var errs []error
	add := func(err error) {
		if err != nil {
			errs = append(errs, err)
		}
	}
	add(required("http.script_id", g.HTTP.ScriptID))
	add(required("lora.serial.device", g.LoRa.Serial.Device))
	add(required("grpc_port", g.GRPCPort))
	if g.Breaker.Failures < 1 {
		add(errors.New("breaker.failures must be at least 1"))
	}
	add(positive("breaker.open_for", g.Breaker.OpenFor))
	if g.InfluxEnabled() {
		add(g.Influx.Validate())
	}
	return errors.Join(errs...)
}
