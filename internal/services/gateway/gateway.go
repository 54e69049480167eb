// Package gateway relays radio packets from field nodes to the sheet endpoint
// and, when configured, to InfluxDB.
package gateway

import (
	"context"
	"encoding/json"
	"errors"
	"log/slog"
	"sync"
	"time"

	"github.com/LeonardoBeccarini/field-telemetry/internal/model/messages"
	"github.com/LeonardoBeccarini/field-telemetry/internal/power"
	"github.com/LeonardoBeccarini/field-telemetry/internal/transport"
	"github.com/LeonardoBeccarini/field-telemetry/pkg/metrics"
	"github.com/LeonardoBeccarini/field-telemetry/pkg/rylr896"
)

// receiveRetry is the pause after a radio read error that is not a bad frame.
const receiveRetry = time.Second

type Receiver interface {
	Receive(ctx context.Context) (rylr896.Packet, error)
}

type Options struct {
	Radio       Receiver
	Upstream    *Upstream
	Endpoint    string
	Writer      *Writer // nil when InfluxDB is not configured
	Measurement string
	Power       power.Monitor
	Metrics     *metrics.Gateway
	Logger      *slog.Logger
	Now         func() time.Time
}

// Received is the last packet the gateway handled, served on /packets/latest.
type Received struct {
	Packet    messages.SensorPacket  `json:"packet"`
	Battery   messages.PacketBattery `json:"gateway_battery"`
	From      int                    `json:"from"`
	RSSI      int                    `json:"rssi"`
	SNR       int                    `json:"snr"`
	At        time.Time              `json:"received_at"`
	Forwarded bool                   `json:"forwarded"`
	Error     string                 `json:"error,omitempty"`
}

type Gateway struct {
	radio       Receiver
	upstream    *Upstream
	endpoint    string
	writer      *Writer
	measurement string
	power       power.Monitor
	metrics     *metrics.Gateway
	log         *slog.Logger
	now         func() time.Time

	mu     sync.RWMutex
	latest *Received
}

func New(o Options) *Gateway {
	if o.Power == nil {
		o.Power = power.Absent{}
	}
	if o.Logger == nil {
		o.Logger = slog.Default()
	}
	if o.Now == nil {
		o.Now = time.Now
	}
	if o.Measurement == "" {
		o.Measurement = transport.DefaultMeasurement
	}
	return &Gateway{
		radio:       o.Radio,
		upstream:    o.Upstream,
		endpoint:    o.Endpoint,
		writer:      o.Writer,
		measurement: transport.SanitizeMeasurement(o.Measurement),
		power:       o.Power,
		metrics:     o.Metrics,
		log:         o.Logger,
		now:         o.Now,
	}
}

// Run receives and relays packets until ctx ends. Bad frames and radio
// errors are logged and the loop keeps listening.
func (g *Gateway) Run(ctx context.Context) error {
	g.log.Info("gateway: listening for packets")
	for {
		pkt, err := g.radio.Receive(ctx)
		if err != nil {
			if ctx.Err() != nil {
				return ctx.Err()
			}
			if errors.Is(err, rylr896.ErrMalformedRCV) {
				g.log.Warn("gateway: malformed frame", "err", err)
				g.count("malformed")
				continue
			}
			g.log.Error("gateway: radio read failed", "err", err)
			select {
			case <-ctx.Done():
				return ctx.Err()
			case <-time.After(receiveRetry):
			}
			continue
		}
		_ = g.Handle(ctx, pkt)
	}
}

// Handle relays one radio packet. Packets whose data is not a sensor frame
// are dropped.
func (g *Gateway) Handle(ctx context.Context, pkt rylr896.Packet) error {
	if g.metrics != nil {
		g.metrics.LastRSSI.Set(float64(pkt.RSSI))
	}
	g.log.Debug("gateway: received", "from", pkt.Address, "rssi", pkt.RSSI, "snr", pkt.SNR, "data", string(pkt.Data))

	var sp messages.SensorPacket
	if err := json.Unmarshal(pkt.Data, &sp); err != nil {
		g.log.Warn("gateway: failed to parse packet", "from", pkt.Address, "err", err)
		g.count("invalid")
		return err
	}

	rec := Received{
		Packet:  sp,
		Battery: messages.NewPacketBattery(g.power.Read()),
		From:    pkt.Address,
		RSSI:    pkt.RSSI,
		SNR:     pkt.SNR,
		At:      g.now(),
	}

	if g.writer != nil {
		g.writer.Write(g.measurement, sp.Reading(), rec.At)
	}

	start := time.Now()
	err := g.upstream.Forward(ctx, transport.GatewayURL(g.endpoint, sp, rec.Battery))
	if g.metrics != nil {
		g.metrics.ForwardTimes.Observe(time.Since(start).Seconds())
	}
	if err != nil {
		rec.Error = err.Error()
		g.log.Error("gateway: forward failed", "lahanID", sp.LahanID, "breaker", g.upstream.State().String(), "err", err)
		g.count("forward_failed")
	} else {
		rec.Forwarded = true
		g.log.Info("gateway: forwarded", "lahanID", sp.LahanID, "rssi", pkt.RSSI,
			"humidity", sp.Sensor.Humidity, "temperature", sp.Sensor.Temperature)
		g.count("forwarded")
	}

	g.mu.Lock()
	g.latest = &rec
	g.mu.Unlock()
	return err
}

// Latest returns the last handled packet, if any.
func (g *Gateway) Latest() (Received, bool) {
	g.mu.RLock()
	defer g.mu.RUnlock()
	if g.latest == nil {
		return Received{}, false
	}
	return *g.latest, true
}

func (g *Gateway) count(result string) {
	if g.metrics != nil {
		g.metrics.Packets.WithLabelValues(result).Inc()
	}
}
