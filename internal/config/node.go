package config

import (
	"errors"
	"fmt"
	"strings"
	"time"

	"gopkg.in/yaml.v3"

	"github.com/LeonardoBeccarini/field-telemetry/internal/model"
	"github.com/LeonardoBeccarini/field-telemetry/internal/power"
	"github.com/LeonardoBeccarini/field-telemetry/internal/transmitter"
	"github.com/LeonardoBeccarini/field-telemetry/internal/transport"
	"github.com/LeonardoBeccarini/field-telemetry/pkg/broker"
	"github.com/LeonardoBeccarini/field-telemetry/pkg/rylr896"
	"github.com/LeonardoBeccarini/field-telemetry/pkg/serialport"
)

type Schedule string

const (
	ScheduleInterval Schedule = "interval"
	SchedulePoll     Schedule = "poll"
)

type SensorSource string

const (
	SourceSimulator SensorSource = "simulator"
	SourceDHT       SensorSource = "dht"
)

type SensorConfig struct {
	Source  SensorSource      `yaml:"source"`
	Serial  serialport.Config `yaml:"serial"`
	Seed    int64             `yaml:"seed"` // 0 seeds from the clock
	Integer bool              `yaml:"integer"`
}

// Profile is one deployment variant of a field node.
type Profile struct {
	Transport         string        `yaml:"transport"`
	FieldID           int           `yaml:"field_id"`
	Driver            string        `yaml:"driver"`
	Threshold         float64       `yaml:"threshold"`
	Policy            string        `yaml:"policy"`
	Gating            bool          `yaml:"gating"`
	RejectNonPositive bool          `yaml:"reject_non_positive"`
	Schedule          Schedule      `yaml:"schedule"`
	SendInterval      time.Duration `yaml:"send_interval"`
	PollDelay         time.Duration `yaml:"poll_delay"`
	RetryDelay        time.Duration `yaml:"retry_delay"`

	HTTP   transport.SheetConfig  `yaml:"http"`
	MQTT   broker.Config          `yaml:"mqtt"`
	LoRa   rylr896.Config         `yaml:"lora"`
	Influx transport.InfluxConfig `yaml:"influx"`
	Power  power.Config           `yaml:"power"`
	Sensor SensorConfig           `yaml:"sensor"`
}

// DefaultProfile returns the settings each transport variant shipped with.
func DefaultProfile(kind transport.Kind) Profile {
	p := Profile{
		Transport:  string(kind),
		FieldID:    1,
		Driver:     string(model.DriverHumidity),
		Threshold:  1.0,
		Gating:     true,
		Schedule:   ScheduleInterval,
		RetryDelay: transmitter.DefaultRetryDelay,
		Power:      power.Config{Enabled: true, Address: power.AXP192Address},
		Sensor:     SensorConfig{Source: SourceSimulator},
		HTTP:       transport.SheetConfig{BaseURL: transport.DefaultSheetBase, Timeout: transport.DefaultTimeout},
		MQTT: broker.Config{
			Host:           "broker.emqx.io",
			Port:           1883,
			User:           "emqx",
			Password:       "public",
			ClientIDPrefix: "ESP32Client",
			Topic:          "EventBasedMqtt",
		},
		LoRa: rylr896.Config{
			Serial:    serialport.Config{Device: "/dev/ttyS0", BaudRate: serialport.DefaultBaudRate},
			Address:   1,
			NetworkID: 6,
			Band:      915000000,
		},
		Influx: transport.InfluxConfig{Measurement: transport.DefaultMeasurement},
	}

	switch kind {
	case transport.KindHTTP:
		p.Driver = string(model.DriverTemperature)
		p.Threshold = 0.8
		p.Policy = transmitter.ResendPrevious.String()
		p.Schedule = SchedulePoll
		p.PollDelay = 10 * time.Second
	case transport.KindMQTT:
		p.Policy = transmitter.Suppress.String()
		p.RejectNonPositive = true
		p.SendInterval = 120 * time.Second
	case transport.KindLoRa:
		p.Policy = transmitter.ResendPrevious.String()
		p.RejectNonPositive = true
		p.SendInterval = 18 * time.Second
	default:
		p.Policy = transmitter.Suppress.String()
		p.SendInterval = 120 * time.Second
	}
	return p
}

// Node is the validated configuration of the field node binary.
type Node struct {
	Common
	Profile Profile

	Kind transport.Kind
	Gate transmitter.GateConfig
}

// LoadNode resolves the transport first, since it picks the defaults the
// profile and environment then override.
func LoadNode() (Node, error) {
	if err := loadDotEnv(); err != nil {
		return Node{}, err
	}
	common, err := loadCommon(":9100")
	if err != nil {
		return Node{}, err
	}
	doc, err := readProfile()
	if err != nil {
		return Node{}, err
	}

	var head struct {
		Transport string `yaml:"transport"`
	}
	if err := decodeInto(doc, &head); err != nil {
		return Node{}, err
	}
	if v, ok := lookup("TRANSPORT"); ok {
		head.Transport = v
	}
	if head.Transport == "" {
		head.Transport = string(transport.KindLoRa)
	}
	kind, err := transport.ParseKind(head.Transport)
	if err != nil {
		return Node{}, err
	}

	p := DefaultProfile(kind)
	if err := decodeInto(doc, &p); err != nil {
		return Node{}, err
	}
	p.Transport = string(kind)
	if err := applyNodeEnv(&p); err != nil {
		return Node{}, err
	}

	n := Node{Common: common, Profile: p, Kind: kind}
	if n.Gate, err = p.validate(kind); err != nil {
		return Node{}, err
	}
	return n, nil
}

// ParseProfile decodes a YAML profile over the defaults of its transport,
// without consulting the environment.
func ParseProfile(doc []byte) (Profile, transmitter.GateConfig, error) {
	var head struct {
		Transport string `yaml:"transport"`
	}
	if err := yaml.Unmarshal(doc, &head); err != nil {
		return Profile{}, transmitter.GateConfig{}, fmt.Errorf("parse profile: %w", err)
	}
	kind, err := transport.ParseKind(head.Transport)
	if err != nil {
		return Profile{}, transmitter.GateConfig{}, err
	}
	p := DefaultProfile(kind)
	if err := decodeInto(doc, &p); err != nil {
		return Profile{}, transmitter.GateConfig{}, err
	}
	g, err := p.validate(kind)
	return p, g, err
}

func applyNodeEnv(p *Profile) error {
	var e envReader
	e.integer("FIELD_ID", &p.FieldID)
	e.str("DRIVER", &p.Driver)
	e.decimal("THRESHOLD", &p.Threshold)
	e.str("POLICY", &p.Policy)
	e.flag("GATING", &p.Gating)
	e.flag("REJECT_NON_POSITIVE", &p.RejectNonPositive)
	var sched string
	e.str("SCHEDULE", &sched)
	if sched != "" {
		p.Schedule = Schedule(strings.ToLower(sched))
	}
	e.duration("SEND_INTERVAL", &p.SendInterval)
	e.duration("POLL_DELAY", &p.PollDelay)
	e.duration("RETRY_DELAY", &p.RetryDelay)

	e.str("SCRIPT_ID", &p.HTTP.ScriptID)
	e.str("SHEET_BASE_URL", &p.HTTP.BaseURL)
	e.duration("HTTP_TIMEOUT", &p.HTTP.Timeout)

	e.str("MQTT_HOST", &p.MQTT.Host)
	e.integer("MQTT_PORT", &p.MQTT.Port)
	e.str("MQTT_USER", &p.MQTT.User)
	e.str("MQTT_PASSWORD", &p.MQTT.Password)
	e.str("MQTT_TOPIC", &p.MQTT.Topic)
	e.str("MQTT_CLIENT_ID_PREFIX", &p.MQTT.ClientIDPrefix)
	e.flag("MQTT_ECHO", &p.MQTT.Echo)

	applyLoRaEnv(&e, &p.LoRa)
	e.integer("LORA_DESTINATION", &p.LoRa.Destination)

	applyInfluxEnv(&e, &p.Influx)
	applyPowerEnv(&e, &p.Power)

	var src string
	e.str("SENSOR_SOURCE", &src)
	if src != "" {
		p.Sensor.Source = SensorSource(strings.ToLower(src))
	}
	e.str("SENSOR_DEVICE", &p.Sensor.Serial.Device)
	e.integer("SENSOR_BAUD_RATE", &p.Sensor.Serial.BaudRate)
	e.integer64("SENSOR_SEED", &p.Sensor.Seed)
	e.flag("SENSOR_INTEGER", &p.Sensor.Integer)
	return e.err()
}

func applyLoRaEnv(e *envReader, c *rylr896.Config) {
	e.str("LORA_DEVICE", &c.Serial.Device)
	e.integer("LORA_BAUD_RATE", &c.Serial.BaudRate)
	e.integer("LORA_ADDRESS", &c.Address)
	e.integer("LORA_NETWORK_ID", &c.NetworkID)
	e.integer("LORA_BAND", &c.Band)
}

func applyInfluxEnv(e *envReader, c *transport.InfluxConfig) {
	e.str("INFLUX_URL", &c.URL)
	e.str("INFLUX_TOKEN", &c.Token)
	e.str("INFLUX_ORG", &c.Org)
	e.str("INFLUX_BUCKET", &c.Bucket)
	e.str("INFLUX_MEASUREMENT", &c.Measurement)
}

func applyPowerEnv(e *envReader, c *power.Config) {
	e.flag("POWER_ENABLED", &c.Enabled)
	e.str("POWER_I2C_BUS", &c.Bus)
	e.address("POWER_I2C_ADDRESS", &c.Address)
}

func (p Profile) validate(kind transport.Kind) (transmitter.GateConfig, error) {
	var errs []error
	add := func(err error) {
		if err != nil {
			errs = append(errs, err)
		}
	}

	driver, err := model.ParseDriverField(p.Driver)
	add(err)
	policy, err := transmitter.ParsePolicy(p.Policy)
	add(err)
	add(finiteNonNegative("threshold", p.Threshold))

	switch p.Schedule {
	case ScheduleInterval:
		add(positive("send_interval", p.SendInterval))
	case SchedulePoll:
		if p.PollDelay < 0 {
			add(fmt.Errorf("poll_delay must not be negative, got %v", p.PollDelay))
		}
	default:
		add(fmt.Errorf("invalid schedule %q (allowed: interval, poll)", p.Schedule))
	}

	switch kind {
	case transport.KindHTTP:
		add(required("http.script_id", p.HTTP.ScriptID))
	case transport.KindMQTT:
		add(required("mqtt.host", p.MQTT.Host))
		add(required("mqtt.topic", p.MQTT.Topic))
	case transport.KindLoRa:
		add(required("lora.serial.device", p.LoRa.Serial.Device))
	case transport.KindInflux:
		add(p.Influx.Validate())
	}

	switch p.Sensor.Source {
	case SourceSimulator:
	case SourceDHT:
		add(required("sensor.serial.device", p.Sensor.Serial.Device))
	default:
		add(fmt.Errorf("invalid sensor source %q (allowed: simulator, dht)", p.Sensor.Source))
	}

	if err := errors.Join(errs...); err != nil {
		return transmitter.GateConfig{}, err
	}
	return transmitter.GateConfig{
		Driver:            driver,
		Threshold:         p.Threshold,
		Policy:            policy,
		Gating:            p.Gating,
		RejectNonPositive: p.RejectNonPositive,
	}, nil
}
