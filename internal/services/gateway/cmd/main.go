package main

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	influxdb2 "github.com/influxdata/influxdb-client-go/v2"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"google.golang.org/grpc"
	"google.golang.org/grpc/health"
	healthpb "google.golang.org/grpc/health/grpc_health_v1"

	"github.com/LeonardoBeccarini/field-telemetry/internal/config"
	"github.com/LeonardoBeccarini/field-telemetry/internal/power"
	"github.com/LeonardoBeccarini/field-telemetry/internal/services/gateway"
	"github.com/LeonardoBeccarini/field-telemetry/internal/transport"
	"github.com/LeonardoBeccarini/field-telemetry/pkg/logging"
	"github.com/LeonardoBeccarini/field-telemetry/pkg/metrics"
	"github.com/LeonardoBeccarini/field-telemetry/pkg/rylr896"
)

var version = "dev"

func main() {
	cfg, err := config.LoadGateway()
	if err != nil {
		fmt.Fprintln(os.Stderr, "config:", err)
		os.Exit(1)
	}
	log := logging.New(cfg.LogLevel, cfg.Version(version), "lora-gateway")

	if err := run(cfg, log); err != nil && !errors.Is(err, context.Canceled) {
		log.Error("gateway: exited", "err", err)
		os.Exit(1)
	}
}

func run(cfg config.Gateway, log *slog.Logger) error {
	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	p := cfg.Profile
	reg := prometheus.NewRegistry()
	reg.MustRegister(collectors.NewGoCollector(), collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}))

	radio, err := rylr896.Open(ctx, p.LoRa, log)
	if err != nil {
		return err
	}
	defer radio.Close()

	// === InfluxDB (optional) ===
	var writer *gateway.Writer
	if p.InfluxEnabled() {
		influx := influxdb2.NewClient(p.Influx.URL, p.Influx.Token)
		defer influx.Close()
		writer = gateway.NewWriter(influx.WriteAPI(p.Influx.Org, p.Influx.Bucket), log)
		defer writer.Flush()
	}

	cb := gateway.NewBreaker("sheet", p.Breaker.Failures, p.Breaker.OpenFor, p.Breaker.Interval)
	gw := gateway.New(gateway.Options{
		Radio:       radio,
		Upstream:    gateway.NewUpstream(transport.NewHTTPSink(p.HTTP.Timeout), cb),
		Endpoint:    p.HTTP.Endpoint(),
		Writer:      writer,
		Measurement: p.Influx.Measurement,
		Power:       power.Open(p.Power, log),
		Metrics:     metrics.NewGateway(reg),
		Logger:      log,
	})

	// === HTTP ===
	hs := &http.Server{
		Addr:              cfg.HTTPAddr,
		Handler:           gateway.NewRouter(gw, reg, p.ReadyErrorAge, p.CORSOrigins),
		ReadHeaderTimeout: 5 * time.Second,
	}
	go func() {
		log.Info("gateway: HTTP listening", "addr", cfg.HTTPAddr)
		if err := hs.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			log.Error("gateway: http server error", "err", err)
		}
	}()

	// === gRPC health ===
	lis, err := net.Listen("tcp", ":"+p.GRPCPort)
	if err != nil {
		return fmt.Errorf("listen grpc: %w", err)
	}
	grpcServer := grpc.NewServer()
	hsrv := health.NewServer()
	healthpb.RegisterHealthServer(grpcServer, hsrv)
	go gateway.WatchHealth(ctx, gw, hsrv, p.ReadyErrorAge, 5*time.Second)
	go func() {
		log.Info("gateway: gRPC health listening", "port", p.GRPCPort)
		if err := grpcServer.Serve(lis); err != nil {
			log.Error("gateway: grpc server error", "err", err)
		}
	}()

	err = gw.Run(ctx)
	log.Info("gateway: shutting down")

	shCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	_ = hs.Shutdown(shCtx)
	grpcServer.GracefulStop()
	return err
}

