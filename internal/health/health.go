// Package health serves the gRPC health protocol for the screen server.
package health

import (
	"context"
	"time"

	"go.uber.org/zap"
	"google.golang.org/grpc"
	grpchealth "google.golang.org/grpc/health"
	healthpb "google.golang.org/grpc/health/grpc_health_v1"
)

// Service is the name probes ask about; the empty name covers the whole server.
const Service = "selfie.Screen"

// Pinger is anything whose reachability decides serving status.
type Pinger interface {
	Ping(ctx context.Context) error
}

// Checker keeps the gRPC health status in line with client storage reachability.
type Checker struct {
	server   *grpchealth.Server
	pinger   Pinger
	interval time.Duration
	timeout  time.Duration
	logger   *zap.Logger
}

// NewChecker creates a checker that starts out NOT_SERVING.
func NewChecker(pinger Pinger, interval time.Duration, logger *zap.Logger) *Checker {
	c := &Checker{
		server:   grpchealth.NewServer(),
		pinger:   pinger,
		interval: interval,
		timeout:  2 * time.Second,
		logger:   logger.Named("health"),
	}
	c.set(healthpb.HealthCheckResponse_NOT_SERVING)
	return c
}

// Register attaches the health service to srv.
func (c *Checker) Register(srv *grpc.Server) {
	healthpb.RegisterHealthServer(srv, c.server)
}

// Check pings once and updates the status.
func (c *Checker) Check(ctx context.Context) healthpb.HealthCheckResponse_ServingStatus {
	pingCtx, cancel := context.WithTimeout(ctx, c.timeout)
	defer cancel()

	status := healthpb.HealthCheckResponse_SERVING
	if err := c.pinger.Ping(pingCtx); err != nil {
		c.logger.Warn("client storage unreachable", zap.Error(err))
		status = healthpb.HealthCheckResponse_NOT_SERVING
	}
	c.set(status)
	return status
}

// Run checks every interval until ctx ends, then marks everything NOT_SERVING.
func (c *Checker) Run(ctx context.Context) error {
	c.Check(ctx)
	ticker := time.NewTicker(c.interval)
	defer ticker.Stop()
	for {
		select {
		case <-ctx.Done():
			c.server.Shutdown()
			return nil
		case <-ticker.C:
			c.Check(ctx)
		}
	}
}

func (c *Checker) set(status healthpb.HealthCheckResponse_ServingStatus) {
	c.server.SetServingStatus("", status)
	c.server.SetServingStatus(Service, status)
}
