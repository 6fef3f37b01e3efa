package server

import (
	"context"
	"errors"
	"testing"
	"time"

	"google.golang.org/grpc"
	"google.golang.org/grpc/credentials/insecure"
	"google.golang.org/grpc/health/grpc_health_v1"
)

func startServer(t *testing.T) (*HealthServer, grpc_health_v1.HealthClient) {
	t.Helper()
	s, err := NewHealthServer("127.0.0.1:0")
	if err != nil {
		t.Fatalf("NewHealthServer() error = %v, want nil", err)
	}
	if err := s.Listen(); err != nil {
		t.Fatalf("Listen() error = %v, want nil", err)
	}
	served := make(chan error, 1)
	go func() { served <- s.Serve() }()

	conn, err := grpc.NewClient(s.Addr(), grpc.WithTransportCredentials(insecure.NewCredentials()))
	if err != nil {
		t.Fatalf("grpc.NewClient() error = %v, want nil", err)
	}
	t.Cleanup(func() {
		conn.Close()
		ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		if err := s.Shutdown(ctx); err != nil {
			t.Errorf("Shutdown() error = %v, want nil", err)
		}
		if err := <-served; err != nil && !errors.Is(err, grpc.ErrServerStopped) {
			t.Errorf("Serve() error = %v", err)
		}
	})
	return s, grpc_health_v1.NewHealthClient(conn)
}

func check(t *testing.T, client grpc_health_v1.HealthClient, service string) grpc_health_v1.HealthCheckResponse_ServingStatus {
	t.Helper()
	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	resp, err := client.Check(ctx, &grpc_health_v1.HealthCheckRequest{Service: service})
	if err != nil {
		t.Fatalf("Check(%q) error = %v, want nil", service, err)
	}
	return resp.GetStatus()
}

func TestHealthServer_NotServingUntilReady(t *testing.T) {
	s, client := startServer(t)

	for _, svc := range []string{"", ServiceName} {
		if got := check(t, client, svc); got != grpc_health_v1.HealthCheckResponse_NOT_SERVING {
			t.Errorf("Check(%q) = %v, want NOT_SERVING", svc, got)
		}
	}

	s.SetServing(true)

	for _, svc := range []string{"", ServiceName} {
		if got := check(t, client, svc); got != grpc_health_v1.HealthCheckResponse_SERVING {
			t.Errorf("Check(%q) = %v, want SERVING", svc, got)
		}
	}
}

func TestNewHealthServer_EmptyAddr(t *testing.T) {
	if _, err := NewHealthServer(""); err == nil {
		t.Error("NewHealthServer(\"\") error = nil, want error")
	}
}

func TestListen_BadAddr(t *testing.T) {
	s, err := NewHealthServer("256.0.0.1:bad")
	if err != nil {
		t.Fatalf("NewHealthServer() error = %v, want nil", err)
	}
	if err := s.Listen(); err == nil {
		t.Error("Listen() error = nil, want error")
	}
}
