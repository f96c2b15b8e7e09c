package httpapi

import (
	"context"
	"errors"
	"testing"

	"google.golang.org/grpc/codes"
	"google.golang.org/grpc/health/grpc_health_v1"
	"google.golang.org/grpc/status"
)

type fakeReadiness struct {
	err error
}

func (f fakeReadiness) Check(ctx context.Context) error { return f.err }

func TestGRPCHealthServing(t *testing.T) {
	srv := NewGRPCServer(fakeReadiness{})
	resp, err := srv.Check(context.Background(), &grpc_health_v1.HealthCheckRequest{})
	if err != nil {
		t.Fatalf("Check: %v", err)
	}
	if resp.Status != grpc_health_v1.HealthCheckResponse_SERVING {
		t.Fatalf("status = %v, want SERVING", resp.Status)
	}
}

func TestGRPCHealthNotServing(t *testing.T) {
	srv := NewGRPCServer(fakeReadiness{err: errors.New("db down")})
	resp, err := srv.Check(context.Background(), &grpc_health_v1.HealthCheckRequest{})
	if err != nil {
		t.Fatalf("Check: %v", err)
	}
	if resp.Status != grpc_health_v1.HealthCheckResponse_NOT_SERVING {
		t.Fatalf("status = %v, want NOT_SERVING", resp.Status)
	}
}

func TestGRPCHealthWatchUnimplemented(t *testing.T) {
	srv := NewGRPCServer(fakeReadiness{})
	err := srv.Watch(&grpc_health_v1.HealthCheckRequest{}, nil)
	if status.Code(err) != codes.Unimplemented {
		t.Fatalf("expected Unimplemented, got %v", err)
	}
}
