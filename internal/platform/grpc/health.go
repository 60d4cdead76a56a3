package grpc

import (
	"context"
	"fmt"
	"time"

	"github.com/cenkalti/backoff/v5"
	gogrpc "google.golang.org/grpc"
	grpc_health_v1 "google.golang.org/grpc/health/grpc_health_v1"
)

const (
	healthCheckTimeout     = time.Second
	healthInitialInterval  = 200 * time.Millisecond
	healthMaxCheckInterval = time.Second
)

// WaitForHealth polls the health service until service reports SERVING or ctx ends.
func WaitForHealth(ctx context.Context, conn *gogrpc.ClientConn, service string, logf func(string, ...any)) error {
	if conn == nil {
		return fmt.Errorf("gRPC connection is not configured")
	}
	if ctx == nil {
		ctx = context.Background()
	}
	if logf == nil {
		logf = func(string, ...any) {}
	}

	client := grpc_health_v1.NewHealthClient(conn)
	delays := backoff.NewExponentialBackOff()
	delays.InitialInterval = healthInitialInterval
	delays.MaxInterval = healthMaxCheckInterval
	delays.Multiplier = 2
	delays.RandomizationFactor = 0
	delays.Reset()

	for {
		status, err := checkHealth(ctx, client, service)
		switch {
		case err != nil:
			logf("waiting for gRPC health of %q: %v", service, err)
		case status == grpc_health_v1.HealthCheckResponse_SERVING:
			logf("gRPC health of %q is SERVING", service)
			return nil
		default:
			logf("waiting for gRPC health of %q: status %s", service, status)
		}

		select {
		case <-ctx.Done():
			return fmt.Errorf("wait for gRPC health: %w", ctx.Err())
		case <-time.After(delays.NextBackOff()):
		}
	}
}

func checkHealth(ctx context.Context, client grpc_health_v1.HealthClient, service string) (grpc_health_v1.HealthCheckResponse_ServingStatus, error) {
	callCtx, cancel := context.WithTimeout(ctx, healthCheckTimeout)
	defer cancel()
	response, err := client.Check(callCtx, &grpc_health_v1.HealthCheckRequest{Service: service})
	if err != nil {
		return grpc_health_v1.HealthCheckResponse_UNKNOWN, err
	}
	return response.GetStatus(), nil
}
