package phototheory

import (
	"context"
	"encoding/json"
	"errors"
	"strings"
	"testing"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/testutil"

	"github.com/theory-cloud/phototheory/pkg/observability"
)

func fixedIDGenerator(id string) IDGenerator {
	return IDFunc(func() string { return id })
}

type stepClock struct {
	now  time.Time
	step time.Duration
}

func (c *stepClock) Now() time.Time {
	c.now = c.now.Add(c.step)
	return c.now
}

func decodeError(t *testing.T, resp Response) map[string]any {
	t.Helper()
	var body struct {
		Error map[string]any `json:"error"`
	}
	if err := json.Unmarshal(resp.Body, &body); err != nil {
		t.Fatalf("decode error body: %v (%s)", err, resp.Body)
	}
	return body.Error
}

func TestServe_NotFoundAndMethodNotAllowed(t *testing.T) {
	app := New(WithIDGenerator(fixedIDGenerator("req_1")))
	app.Post("/api/image/resolve", okHandler("ok"))

	resp := app.Serve(context.Background(), Request{Method: "GET", Path: "/api/image/resolve"})
	if resp.Status != 405 {
		t.Fatalf("expected 405, got %d", resp.Status)
	}
	if allow := resp.Headers["allow"]; len(allow) != 1 || allow[0] != "POST" {
		t.Fatalf("unexpected allow header: %v", allow)
	}

	resp = app.Serve(context.Background(), Request{Method: "GET", Path: "/missing"})
	if resp.Status != 404 {
		t.Fatalf("expected 404, got %d", resp.Status)
	}
	body := decodeError(t, resp)
	if body["code"] != CodeNotFound || body["request_id"] != "req_1" {
		t.Fatalf("unexpected error body: %v", body)
	}
}

func TestServe_RequestIDPropagation(t *testing.T) {
	app := New(WithIDGenerator(fixedIDGenerator("generated")))
	var seen string
	app.Get("/ping", func(ctx *Context) (*Response, error) {
		seen = ctx.RequestID
		return Text(200, "pong"), nil
	})

	resp := app.Serve(context.Background(), Request{Method: "GET", Path: "/ping"})
	if seen != "generated" || resp.Headers["x-request-id"][0] != "generated" {
		t.Fatalf("expected generated request id, got ctx=%q header=%v", seen, resp.Headers["x-request-id"])
	}

	resp = app.Serve(context.Background(), Request{
		Method:  "GET",
		Path:    "/ping",
		Headers: map[string][]string{"X-Request-Id": {"incoming"}},
	})
	if seen != "incoming" || resp.Headers["x-request-id"][0] != "incoming" {
		t.Fatalf("expected incoming request id, got ctx=%q header=%v", seen, resp.Headers["x-request-id"])
	}
}

func TestServe_HandlerErrorsAndPanics(t *testing.T) {
	logger := observability.NewTestLogger()
	app := New(WithLogger(logger))
	app.Get("/conflict", func(*Context) (*Response, error) {
		return nil, Conflict("image exists")
	})
	app.Get("/wrapped", func(*Context) (*Response, error) {
		return nil, errors.Join(errors.New("context"), NotFound("no current image"))
	})
	app.Get("/boom", func(*Context) (*Response, error) {
		return nil, errors.New("disk on fire")
	})
	app.Get("/panic", func(*Context) (*Response, error) {
		panic("boom")
	})
	app.Get("/nil", func(*Context) (*Response, error) {
		return nil, nil
	})

	cases := []struct {
		path   string
		status int
		code   string
	}{
		{"/conflict", 409, CodeConflict},
		{"/wrapped", 404, CodeNotFound},
		{"/boom", 500, CodeInternal},
		{"/panic", 500, CodeInternal},
		{"/nil", 500, CodeInternal},
	}
	for _, tc := range cases {
		resp := app.Serve(context.Background(), Request{Method: "GET", Path: tc.path})
		if resp.Status != tc.status {
			t.Fatalf("%s: expected %d, got %d", tc.path, tc.status, resp.Status)
		}
		if code := decodeError(t, resp)["code"]; code != tc.code {
			t.Fatalf("%s: expected code %q, got %v", tc.path, tc.code, code)
		}
	}

	body := string(app.Serve(context.Background(), Request{Method: "GET", Path: "/boom"}).Body)
	if strings.Contains(body, "disk on fire") {
		t.Fatalf("internal error leaked to client: %s", body)
	}

	var panics int
	for _, entry := range logger.EntriesAt("error") {
		if entry.Message == "handler panic" {
			panics++
		}
	}
	if panics != 1 {
		t.Fatalf("expected one logged panic, got %d", panics)
	}
}

func TestServe_RequestSizeLimit(t *testing.T) {
	app := New(WithLimits(Limits{MaxRequestBytes: 4}))
	app.Post("/upload", okHandler("ok"))

	resp := app.Serve(context.Background(), Request{Method: "POST", Path: "/upload", Body: []byte("12345")})
	if resp.Status != 413 {
		t.Fatalf("expected 413, got %d", resp.Status)
	}
	resp = app.Serve(context.Background(), Request{Method: "POST", Path: "/upload", Body: []byte("1234")})
	if resp.Status != 200 {
		t.Fatalf("expected 200, got %d", resp.Status)
	}
}

func TestServe_MiddlewareOrder(t *testing.T) {
	var trace []string
	mark := func(name string) Middleware {
		return func(next Handler) Handler {
			return func(ctx *Context) (*Response, error) {
				trace = append(trace, name)
				return next(ctx)
			}
		}
	}

	app := New()
	app.Use(mark("m1")).Use(mark("m2"))
	app.Get("/", func(*Context) (*Response, error) {
		trace = append(trace, "handler")
		return Text(200, "ok"), nil
	})

	app.Serve(context.Background(), Request{Method: "GET", Path: "/"})
	if strings.Join(trace, ",") != "m1,m2,handler" {
		t.Fatalf("unexpected middleware order: %v", trace)
	}
}

func TestServe_AccessLogAndMetrics(t *testing.T) {
	reg := prometheus.NewRegistry()
	metrics, err := NewRequestMetrics(reg)
	if err != nil {
		t.Fatalf("NewRequestMetrics: %v", err)
	}
	logger := observability.NewTestLogger()

	app := New(
		WithLogger(logger),
		WithMetrics(metrics),
		WithClock(&stepClock{now: time.Unix(0, 0), step: 5 * time.Millisecond}),
		WithIDGenerator(fixedIDGenerator("req_9")),
	)
	app.Get("/images/{name+}", func(ctx *Context) (*Response, error) {
		return nil, NotFound("image not found")
	})

	app.Serve(context.Background(), Request{Method: "GET", Path: "/images/a.jpg"})

	if got := testutil.ToFloat64(metrics.requests.WithLabelValues("GET", "/images/{name+}", "404")); got != 1 {
		t.Fatalf("expected one counted request, got %v", got)
	}

	warns := logger.EntriesAt("warn")
	if len(warns) != 1 {
		t.Fatalf("expected one warn entry, got %d", len(warns))
	}
	entry := warns[0]
	if entry.RequestID != "req_9" || entry.Fields["route"] != "/images/{name+}" || entry.Fields["error_code"] != CodeNotFound {
		t.Fatalf("unexpected access log entry: %#v", entry)
	}

	again, err := NewRequestMetrics(reg)
	if err != nil {
		t.Fatalf("second NewRequestMetrics: %v", err)
	}
	if again.requests != metrics.requests {
		t.Fatal("expected collectors to be reused from the registry")
	}
}

func TestContext_HelpersAndBindJSON(t *testing.T) {
	ctx := &Context{
		Request: Request{
			Query:   map[string][]string{"count": {"5", "6"}},
			Headers: map[string][]string{"content-type": {"application/json"}},
			Body:    []byte(`{"fileName":"a.jpg"}`),
		},
		Params: map[string]string{"name": "a.jpg"},
	}
	if ctx.Query("count") != "5" || ctx.Query("after") != "" {
		t.Fatalf("unexpected query helpers")
	}
	if ctx.Param("name") != "a.jpg" || ctx.Header("Content-Type") != "application/json" {
		t.Fatalf("unexpected param/header helpers")
	}

	var body struct {
		FileName string `json:"fileName"`
	}
	if err := ctx.BindJSON(&body); err != nil || body.FileName != "a.jpg" {
		t.Fatalf("BindJSON: %v %#v", err, body)
	}

	ctx.Request.Headers = map[string][]string{"content-type": {"text/plain"}}
	var appErr *AppError
	if err := ctx.BindJSON(&body); !errors.As(err, &appErr) || appErr.Code != CodeBadRequest {
		t.Fatalf("expected bad request for non-json content type, got %v", err)
	}
}

func TestJSONHandler(t *testing.T) {
	type req struct {
		Name string `json:"name"`
	}
	type resp struct {
		Greeting string `json:"greeting"`
	}

	app := New()
	app.Post("/hello", JSONHandler(func(_ *Context, in req) (resp, error) {
		if in.Name == "" {
			return resp{}, BadRequest("name required")
		}
		return resp{Greeting: "hi " + in.Name}, nil
	}))

	out := app.Serve(context.Background(), Request{Method: "POST", Path: "/hello", Body: []byte(`{"name":"ana"}`)})
	if out.Status != 200 || string(out.Body) != `{"greeting":"hi ana"}` {
		t.Fatalf("unexpected response: %d %s", out.Status, out.Body)
	}

	for _, body := range []string{"", "{", `{"name":""}`} {
		out = app.Serve(context.Background(), Request{Method: "POST", Path: "/hello", Body: []byte(body)})
		if out.Status != 400 {
			t.Fatalf("body %q: expected 400, got %d", body, out.Status)
		}
	}
}

func TestServe_HeadUsesGetRouteWithoutBody(t *testing.T) {
	app := New()
	app.Get("/images/{name+}", func(ctx *Context) (*Response, error) {
		return Binary(200, []byte("png-bytes"), "image/png"), nil
	})

	resp := app.Serve(context.Background(), Request{Method: "HEAD", Path: "/images/a.png"})
	if resp.Status != 200 {
		t.Fatalf("expected 200, got %d", resp.Status)
	}
	if len(resp.Body) != 0 || resp.BodyReader != nil {
		t.Fatalf("expected no body for HEAD, got %q", resp.Body)
	}
	if got := resp.Headers["content-type"]; len(got) != 1 || got[0] != "image/png" {
		t.Fatalf("unexpected content-type: %v", got)
	}
}
