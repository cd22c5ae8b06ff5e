package mockapi

import (
	"context"
	"log/slog"
	"time"

	"google.golang.org/grpc"
	"google.golang.org/grpc/health"
	healthpb "google.golang.org/grpc/health/grpc_health_v1"
)

// registryHealthService is the gRPC health service name of the node registry.
// The empty name reports the same status for the server as a whole.
const registryHealthService = "nodeagent.mockapi.NodeRegistry"

const healthRefreshInterval = 10 * time.Second

type pinger interface {
	Ping() error
}

// grpcHealth serves the standard grpc.health.v1 service next to the HTTP API,
// backed by the same registry check as /healthz.
type grpcHealth struct {
	server *grpc.Server
	health *health.Server
	store  pinger
	log    *slog.Logger
}

func newGRPCHealth(st pinger, logger *slog.Logger) *grpcHealth {
	g := &grpcHealth{
		server: grpc.NewServer(),
		health: health.NewServer(),
		store:  st,
		log:    logger,
	}
	healthpb.RegisterHealthServer(g.server, g.health)
	g.refresh()
	return g
}

func (g *grpcHealth) refresh() {
	status := healthpb.HealthCheckResponse_SERVING
	if err := g.store.Ping(); err != nil {
		g.log.Warn("node registry unhealthy", "error", err)
		status = healthpb.HealthCheckResponse_NOT_SERVING
	}
	g.health.SetServingStatus("", status)
	g.health.SetServingStatus(registryHealthService, status)
}

func (g *grpcHealth) watch(ctx context.Context, interval time.Duration) {
	ticker := time.NewTicker(interval)
	defer ticker.Stop()
	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			g.refresh()
		}
	}
}

func (g *grpcHealth) stop() {
	g.health.Shutdown()
	g.server.GracefulStop()
}
