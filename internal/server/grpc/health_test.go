package grpcserver

import (
	"context"
	"errors"
	"net"
	"sync"
	"testing"
	"time"

	"go.uber.org/zap/zaptest"
	"google.golang.org/grpc"
	"google.golang.org/grpc/credentials/insecure"
	healthpb "google.golang.org/grpc/health/grpc_health_v1"
	"google.golang.org/grpc/test/bufconn"
)

type fakePinger struct {
	mu  sync.Mutex
	err error
	n   int
}

func (p *fakePinger) Ping(context.Context) error {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.n++
	return p.err
}

func (p *fakePinger) set(err error) {
	p.mu.Lock()
	p.err = err
	p.mu.Unlock()
}

const bufSize = 1 << 20

func startHealth(t *testing.T, h *Health) healthpb.HealthClient {
	t.Helper()
	lis := bufconn.Listen(bufSize)
	s := NewServer(h, NewInterceptors(zaptest.NewLogger(t), nil))
	go func() { _ = s.Serve(lis) }()
	t.Cleanup(s.Stop)

	dialer := func(context.Context, string) (net.Conn, error) { return lis.Dial() }
	cc, err := grpc.NewClient("passthrough:///bufnet",
		grpc.WithContextDialer(dialer), grpc.WithTransportCredentials(insecure.NewCredentials()))
	if err != nil {
		t.Fatalf("NewClient: %v", err)
	}
	t.Cleanup(func() { _ = cc.Close() })
	return healthpb.NewHealthClient(cc)
}

func servingStatus(t *testing.T, c healthpb.HealthClient, svc string) healthpb.HealthCheckResponse_ServingStatus {
	t.Helper()
	ctx, cancel := context.WithTimeout(context.Background(), 2*time.Second)
	defer cancel()
	resp, err := c.Check(ctx, &healthpb.HealthCheckRequest{Service: svc})
	if err != nil {
		t.Fatalf("Check(%q): %v", svc, err)
	}
	return resp.GetStatus()
}

func TestHealth_FollowsPinger(t *testing.T) {
	t.Parallel()

	p := &fakePinger{}
	h := NewHealth(p, time.Hour, zaptest.NewLogger(t))
	c := startHealth(t, h)

	if got := h.Check(context.Background()); got != healthpb.HealthCheckResponse_SERVING {
		t.Fatalf("want SERVING, got %v", got)
	}
	if got := servingStatus(t, c, ServiceName); got != healthpb.HealthCheckResponse_SERVING {
		t.Fatalf("client: want SERVING, got %v", got)
	}

	p.set(errors.New("db down"))
	h.Check(context.Background())
	if got := servingStatus(t, c, ""); got != healthpb.HealthCheckResponse_NOT_SERVING {
		t.Fatalf("client: want NOT_SERVING, got %v", got)
	}
}

func TestHealth_NilPingerServes(t *testing.T) {
	t.Parallel()

	h := NewHealth(nil, 0, nil)
	if got := h.Check(context.Background()); got != healthpb.HealthCheckResponse_SERVING {
		t.Fatalf("want SERVING, got %v", got)
	}
}

func TestHealth_RunStopsOnCancel(t *testing.T) {
	t.Parallel()

	p := &fakePinger{}
	h := NewHealth(p, time.Millisecond, zaptest.NewLogger(t))
	c := startHealth(t, h)

	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan struct{})
	go func() {
		h.Run(ctx)
		close(done)
	}()
	time.Sleep(20 * time.Millisecond)
	cancel()
	select {
	case <-done:
	case <-time.After(time.Second):
		t.Fatalf("Run did not return")
	}

	p.mu.Lock()
	n := p.n
	p.mu.Unlock()
	if n < 2 {
		t.Fatalf("expected periodic pings, got %d", n)
	}
	if got := servingStatus(t, c, ServiceName); got != healthpb.HealthCheckResponse_NOT_SERVING {
		t.Fatalf("want NOT_SERVING after shutdown, got %v", got)
	}
}
