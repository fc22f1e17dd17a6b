package phototheory

import (
	"context"
	"testing"
	"time"
)

func TestTimeoutForContext(t *testing.T) {
	cfg := normalizeTimeoutConfig(TimeoutConfig{
		OperationTimeouts: map[string]time.Duration{"POST:/api/image/upload": 5 * time.Minute},
	})
	if cfg.DefaultTimeout != 30*time.Second || cfg.TimeoutMessage != messageTimeout {
		t.Fatalf("unexpected defaults: %+v", cfg)
	}

	shortCtx, cancel := context.WithTimeout(context.Background(), time.Second)
	defer cancel()

	cases := []struct {
		name     string
		ctx      *Context
		min, max time.Duration
	}{
		{"default", &Context{Request: Request{Method: "GET", Path: "/ping"}}, 30 * time.Second, 30 * time.Second},
		{"override", &Context{Request: Request{Method: "POST", Path: "/api/image/upload"}}, 5 * time.Minute, 5 * time.Minute},
		{"caller deadline", &Context{ctx: shortCtx, Request: Request{Method: "GET", Path: "/ping"}}, time.Nanosecond, time.Second},
	}
	for _, tc := range cases {
		if got := timeoutForContext(tc.ctx, cfg); got < tc.min || got > tc.max {
			t.Fatalf("%s: got %v, want between %v and %v", tc.name, got, tc.min, tc.max)
		}
	}
}

func TestTimeoutMiddleware(t *testing.T) {
	app := New().Use(TimeoutMiddleware(TimeoutConfig{DefaultTimeout: 10 * time.Millisecond}))

	cancelled, release := make(chan struct{}), make(chan struct{})
	defer close(release)
	app.Get("/slow", func(ctx *Context) (*Response, error) {
		<-ctx.Context().Done()
		close(cancelled)
		<-release
		return Stream(200, nil, "image/png"), nil
	})
	app.Get("/panic", func(*Context) (*Response, error) { panic("boom") })
	app.Get("/fast", okHandler("ok"))

	cases := []struct {
		path   string
		status int
	}{
		{"/slow", 408},
		{"/panic", 500},
		{"/fast", 200},
	}
	for _, tc := range cases {
		if resp := app.Serve(context.Background(), Request{Method: "GET", Path: tc.path}); resp.Status != tc.status {
			t.Fatalf("%s: expected %d, got %d", tc.path, tc.status, resp.Status)
		}
	}

	select {
	case <-cancelled:
	case <-time.After(time.Second):
		t.Fatal("slow handler never saw its context cancelled")
	}
}

func TestTimeoutMiddleware_CallerGoneIsUnavailable(t *testing.T) {
	app := New().Use(TimeoutMiddleware(TimeoutConfig{DefaultTimeout: time.Minute}))
	started, release := make(chan struct{}), make(chan struct{})
	defer close(release)
	app.Get("/wait", func(ctx *Context) (*Response, error) {
		close(started)
		<-release
		return nil, ctx.Context().Err()
	})

	ctx, cancel := context.WithCancel(context.Background())
	go func() {
		<-started
		cancel()
	}()
	if resp := app.Serve(ctx, Request{Method: "GET", Path: "/wait"}); resp.Status != 503 {
		t.Fatalf("expected 503 when the caller cancels, got %d", resp.Status)
	}
}
