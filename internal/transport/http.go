package transport

import (
	"context"
	"fmt"
	"strconv"
	"strings"
	"time"

	"github.com/go-resty/resty/v2"

	"github.com/LeonardoBeccarini/field-telemetry/internal/model"
	"github.com/LeonardoBeccarini/field-telemetry/internal/model/messages"
)

const (
	DefaultSheetBase = "https://script.google.com/macros/s/"
	DefaultTimeout   = 10 * time.Second
)

type SheetConfig struct {
	BaseURL  string        `yaml:"base_url"`
	ScriptID string        `yaml:"script_id"`
	Timeout  time.Duration `yaml:"timeout"`
}

// Endpoint is the web app's /exec URL.
func (c SheetConfig) Endpoint() string {
	base := c.BaseURL
	if base == "" {
		base = DefaultSheetBase
	}
	return strings.TrimRight(base, "/") + "/" + c.ScriptID + "/exec"
}

// StatusError is a completed request that the web app did not accept.
type StatusError struct {
	Code int
	Body string
}

func (e *StatusError) Error() string {
	return fmt.Sprintf("http: unexpected status %d", e.Code)
}

// SheetFormatter renders a reading as the web app's GET URL. The payload is
// the URL itself, so a resend repeats the exact same request.
type SheetFormatter struct {
	Endpoint string
}

func (f SheetFormatter) Format(r model.Reading) ([]byte, error) {
	q := newQuery(f.Endpoint)
	q.integer("lahanID", r.FieldID)
	addAir(q, r)
	q.decimal("batteryVoltage", r.Battery.Voltage)
	q.decimal("batteryCurrent", r.Battery.DischargeCurrent)
	q.decimal("batteryPower", r.Battery.Power)
	q.integer("batteryChargeCurrent", int(r.Battery.ChargeCurrent))
	q.integer("batteryLevel", r.Battery.Level)
	return []byte(q.String()), nil
}

// GatewayURL renders a relayed packet together with the gateway's own
// battery, as the radio gateway forwards it.
func GatewayURL(endpoint string, p messages.SensorPacket, gw messages.PacketBattery) string {
	q := newQuery(endpoint)
	q.integer("lahanID", p.LahanID)
	addAir(q, p.Reading())
	q.decimal("batteryVoltage", gw.Voltage)
	q.decimal("batteryPercentage", gw.Percentage)
	q.decimal("batteryChargeCurrent", gw.ChargeCurrent)
	q.decimal("batteryDischargeCurrent", gw.DischargeCurrent)
	return q.String()
}

func addAir(q *query, r model.Reading) {
	q.decimal("humidity", r.Humidity)
	q.decimal("temperature", r.Temperature)
	q.decimal("ec", r.EC)
	q.decimal("ph", r.PH)
	q.decimal("nitrogen", r.Nitrogen)
	q.decimal("phosphorus", r.Phosphorus)
	q.decimal("potassium", r.Potassium)
}

// query keeps parameters in insertion order; url.Values would sort them.
type query struct {
	b   strings.Builder
	sep byte
}

func newQuery(endpoint string) *query {
	q := &query{sep: '?'}
	q.b.WriteString(endpoint)
	return q
}

func (q *query) add(k, v string) {
	q.b.WriteByte(q.sep)
	q.b.WriteString(k)
	q.b.WriteByte('=')
	q.b.WriteString(v)
	q.sep = '&'
}

// decimal uses two decimals, the resolution the sheet has always stored.
func (q *query) decimal(k string, v float64) { q.add(k, strconv.FormatFloat(v, 'f', 2, 64)) }

func (q *query) integer(k string, v int) { q.add(k, strconv.Itoa(v)) }

func (q *query) String() string { return q.b.String() }

// HTTPSink issues a GET for the URL carried in the payload.
type HTTPSink struct {
	client *resty.Client
}

func NewHTTPSink(timeout time.Duration) *HTTPSink {
	if timeout <= 0 {
		timeout = DefaultTimeout
	}
	client := resty.New().
		SetTimeout(timeout).
		SetRedirectPolicy(resty.FlexibleRedirectPolicy(10))
	return &HTTPSink{client: client}
}

// Send succeeds only on a final 200, after redirects.
func (s *HTTPSink) Send(ctx context.Context, payload []byte) error {
	resp, err := s.client.R().SetContext(ctx).Get(string(payload))
	if err != nil {
		return fmt.Errorf("http: GET: %w", err)
	}
	if resp.StatusCode() != 200 {
		return &StatusError{Code: resp.StatusCode(), Body: resp.String()}
	}
	return nil
}
