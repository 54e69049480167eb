package main

import (
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	mqtt "github.com/eclipse/paho.mqtt.golang"
	influxdb2 "github.com/influxdata/influxdb-client-go/v2"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"

	"github.com/LeonardoBeccarini/field-telemetry/internal/config"
	"github.com/LeonardoBeccarini/field-telemetry/internal/node"
	"github.com/LeonardoBeccarini/field-telemetry/internal/power"
	"github.com/LeonardoBeccarini/field-telemetry/internal/sensor"
	simulator "github.com/LeonardoBeccarini/field-telemetry/internal/sensor-simulator"
	"github.com/LeonardoBeccarini/field-telemetry/internal/transmitter"
	"github.com/LeonardoBeccarini/field-telemetry/internal/transport"
	"github.com/LeonardoBeccarini/field-telemetry/pkg/broker"
	"github.com/LeonardoBeccarini/field-telemetry/pkg/logging"
	"github.com/LeonardoBeccarini/field-telemetry/pkg/metrics"
	"github.com/LeonardoBeccarini/field-telemetry/pkg/rylr896"
)

var version = "dev"

func main() {
	cfg, err := config.LoadNode()
	if err != nil {
		fmt.Fprintln(os.Stderr, "config:", err)
		os.Exit(1)
	}
	log := logging.New(cfg.LogLevel, cfg.Version(version), "field-node")

	if err := run(cfg, log); err != nil && !errors.Is(err, context.Canceled) {
		log.Error("field-node: exited", "err", err)
		os.Exit(1)
	}
}

func run(cfg config.Node, log *slog.Logger) error {
	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	reg := prometheus.NewRegistry()
	reg.MustRegister(collectors.NewGoCollector(), collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}))
	m := metrics.NewNode(reg)

	p := cfg.Profile
	src, closeSrc, err := openSource(p)
	if err != nil {
		return err
	}
	defer closeSrc()

	mon := power.Open(p.Power, log)

	sink, format, closeSink, err := openTransport(ctx, cfg, log)
	if err != nil {
		return err
	}
	defer closeSink()

	gate := transmitter.NewGate(cfg.Gate, transmitter.NewStore(), format)
	n := node.New(node.Options{
		Transport: cfg.Kind,
		Gate:      gate,
		Source:    src,
		Power:     mon,
		Sink:      sink,
		Logger:    log,
		Metrics:   m,
	})

	hs := &http.Server{
		Addr:              cfg.HTTPAddr,
		Handler:           node.NewHandler(n, reg),
		ReadHeaderTimeout: 5 * time.Second,
	}
	go func() {
		log.Info("field-node: HTTP listening", "addr", cfg.HTTPAddr)
		if err := hs.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			log.Error("field-node: http server error", "err", err)
		}
	}()
	defer func() {
		shCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		_ = hs.Shutdown(shCtx)
	}()

	var sched node.Schedule
	switch p.Schedule {
	case config.SchedulePoll:
		sched = node.PollSchedule(transmitter.NewPollScheduler(p.PollDelay, p.RetryDelay))
	default:
		sched = node.IntervalSchedule(transmitter.NewIntervalScheduler(nil, p.SendInterval, 0))
	}
	return n.Run(ctx, sched)
}

func openSource(p config.Profile) (node.Source, func(), error) {
	var opts []simulator.Option
	if p.Sensor.Seed != 0 {
		opts = append(opts, simulator.WithSeed(p.Sensor.Seed))
	}
	if p.Sensor.Integer {
		opts = append(opts, simulator.WithIntegerValues())
	}
	gen := simulator.NewDataGenerator(p.FieldID, opts...)

	if p.Sensor.Source != config.SourceDHT {
		return gen, func() {}, nil
	}
	dht, err := sensor.OpenDHT(p.Sensor.Serial, p.FieldID, gen)
	if err != nil {
		return nil, nil, err
	}
	return dht, func() { _ = dht.Close() }, nil
}

// openTransport builds the sink and the payload formatter of the configured
// variant. The returned func releases the connection.
func openTransport(ctx context.Context, cfg config.Node, log *slog.Logger) (transport.Sink, transmitter.Formatter, func(), error) {
	p := cfg.Profile
	switch cfg.Kind {
	case transport.KindHTTP:
		f := transport.SheetFormatter{Endpoint: p.HTTP.Endpoint()}
		return transport.NewHTTPSink(p.HTTP.Timeout), f, func() {}, nil

	case transport.KindMQTT:
		client, err := broker.Connect(ctx, p.MQTT, log)
		if err != nil {
			return nil, nil, nil, err
		}
		if p.MQTT.Echo {
			c := broker.NewConsumer(client, p.MQTT.Topic, func(topic string, msg mqtt.Message) error {
				log.Info("mqtt: message arrived", "topic", topic, "payload", string(msg.Payload()))
				return nil
			}, log)
			go func() {
				if err := c.ConsumeMessage(ctx); err != nil && !errors.Is(err, context.Canceled) {
					log.Error("mqtt: echo subscription failed", "err", err)
				}
			}()
		}
		pub := broker.NewPublisher(client, p.MQTT.Topic)
		return transport.NewMQTTSink(pub), transport.FlatJSON{}, func() { broker.Close(client, log) }, nil

	case transport.KindLoRa:
		radio, err := rylr896.Open(ctx, p.LoRa, log)
		if err != nil {
			return nil, nil, nil, err
		}
		return transport.NewLoRaSink(radio, p.LoRa.Destination), transport.PacketJSON{}, closer(radio, log), nil

	case transport.KindInflux:
		client := influxdb2.NewClient(p.Influx.URL, p.Influx.Token)
		w := client.WriteAPIBlocking(p.Influx.Org, p.Influx.Bucket)
		f := transport.LineProtocol{Measurement: p.Influx.Measurement}
		return transport.NewInfluxSink(w), f, client.Close, nil
	}
	return nil, nil, nil, fmt.Errorf("unsupported transport %q", cfg.Kind)
}

func closer(c io.Closer, log *slog.Logger) func() {
	return func() {
		if err := c.Close(); err != nil {
			log.Warn("field-node: close failed", "err", err)
		}
	}
}
