package grpc

import (
	"context"
	"fmt"
	"net"
	"strings"
	"sync"
	"testing"
	"time"

	gogrpc "google.golang.org/grpc"
	"google.golang.org/grpc/credentials/insecure"
	"google.golang.org/grpc/health"
	grpc_health_v1 "google.golang.org/grpc/health/grpc_health_v1"
)

const testService = "notifier.runtime"

func TestWaitForHealth(t *testing.T) {
	tests := []struct {
		name    string
		server  grpc_health_v1.HealthCheckResponse_ServingStatus
		named   grpc_health_v1.HealthCheckResponse_ServingStatus
		service string
		wantErr bool
	}{
		{name: "server serving", server: grpc_health_v1.HealthCheckResponse_SERVING, named: grpc_health_v1.HealthCheckResponse_SERVING},
		{name: "named serving", server: grpc_health_v1.HealthCheckResponse_SERVING, named: grpc_health_v1.HealthCheckResponse_SERVING, service: testService},
		{name: "named not serving", server: grpc_health_v1.HealthCheckResponse_SERVING, named: grpc_health_v1.HealthCheckResponse_NOT_SERVING, service: testService, wantErr: true},
		{name: "server not serving", server: grpc_health_v1.HealthCheckResponse_NOT_SERVING, named: grpc_health_v1.HealthCheckResponse_SERVING, wantErr: true},
		{name: "unknown service", server: grpc_health_v1.HealthCheckResponse_SERVING, named: grpc_health_v1.HealthCheckResponse_SERVING, service: "missing", wantErr: true},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			addr, setStatus, stop := startHealthServer(t, tt.server)
			defer stop()
			setStatus(testService, tt.named)

			conn := dialHealthServer(t, addr)
			defer conn.Close()

			ctx, cancel := context.WithTimeout(context.Background(), 400*time.Millisecond)
			defer cancel()

			err := WaitForHealth(ctx, conn, tt.service, nil)
			if tt.wantErr && err == nil {
				t.Fatal("expected error")
			}
			if !tt.wantErr && err != nil {
				t.Fatalf("wait for health: %v", err)
			}
		})
	}
}

func TestWaitForHealthTransitionsToServing(t *testing.T) {
	addr, setStatus, stop := startHealthServer(t, grpc_health_v1.HealthCheckResponse_SERVING)
	defer stop()
	setStatus(testService, grpc_health_v1.HealthCheckResponse_NOT_SERVING)

	conn := dialHealthServer(t, addr)
	defer conn.Close()

	go func() {
		time.Sleep(200 * time.Millisecond)
		setStatus(testService, grpc_health_v1.HealthCheckResponse_SERVING)
	}()

	ctx, cancel := context.WithTimeout(context.Background(), 2*time.Second)
	defer cancel()

	var mu sync.Mutex
	var lines []string
	logf := func(format string, args ...any) {
		mu.Lock()
		defer mu.Unlock()
		lines = append(lines, fmt.Sprintf(format, args...))
	}
	if err := WaitForHealth(ctx, conn, testService, logf); err != nil {
		t.Fatalf("wait for health after transition: %v", err)
	}

	mu.Lock()
	defer mu.Unlock()
	if len(lines) < 2 {
		t.Fatalf("log lines = %v, want waiting and serving lines", lines)
	}
	if last := lines[len(lines)-1]; !strings.Contains(last, "SERVING") {
		t.Fatalf("last log line = %q, want SERVING", last)
	}
}

func TestWaitForHealthRequiresConnection(t *testing.T) {
	if err := WaitForHealth(context.Background(), nil, "", nil); err == nil {
		t.Fatal("expected error for nil connection")
	}
}

func startHealthServer(t *testing.T, status grpc_health_v1.HealthCheckResponse_ServingStatus) (string, func(string, grpc_health_v1.HealthCheckResponse_ServingStatus), func()) {
	t.Helper()

	listener, err := net.Listen("tcp", "127.0.0.1:0")
	if err != nil {
		t.Fatalf("listen: %v", err)
	}

	grpcServer := gogrpc.NewServer()
	healthServer := health.NewServer()
	grpc_health_v1.RegisterHealthServer(grpcServer, healthServer)
	healthServer.SetServingStatus("", status)

	serveErr := make(chan error, 1)
	go func() {
		serveErr <- grpcServer.Serve(listener)
	}()

	stop := func() {
		grpcServer.Stop()
		select {
		case <-serveErr:
		case <-time.After(2 * time.Second):
		}
	}
	return listener.Addr().String(), healthServer.SetServingStatus, stop
}

func dialHealthServer(t *testing.T, addr string) *gogrpc.ClientConn {
	t.Helper()

	conn, err := gogrpc.NewClient(addr, gogrpc.WithTransportCredentials(insecure.NewCredentials()))
	if err != nil {
		t.Fatalf("dial health server: %v", err)
	}
	return conn
}
