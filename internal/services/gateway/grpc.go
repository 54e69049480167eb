package gateway

import (
	"context"
	"time"

	"google.golang.org/grpc/health"
	healthpb "google.golang.org/grpc/health/grpc_health_v1"
)

// ServiceName is the name probes ask the gRPC health service about.
const ServiceName = "fieldtelemetry.Gateway"

// WatchHealth mirrors the readiness of g into hs every period until ctx ends.
func WatchHealth(ctx context.Context, g *Gateway, hs *health.Server, readyAge, period time.Duration) {
	set := func() {
		st := healthpb.HealthCheckResponse_NOT_SERVING
		if _, ok := g.healthy(readyAge); ok {
			st = healthpb.HealthCheckResponse_SERVING
		}
		hs.SetServingStatus("", st)
		hs.SetServingStatus(ServiceName, st)
	}

	set()
	t := time.NewTicker(period)
	defer t.Stop()
	for {
		select {
		case <-ctx.Done():
			hs.Shutdown()
			return
		case <-t.C:
			set()
		}
	}
}
