package limited

import (
	"strconv"
	"strings"

	"github.com/theory-cloud/phototheory/pkg/observability"
	phototheory "github.com/theory-cloud/phototheory/runtime"
)

// MiddlewareOptions configures Middleware.
type MiddlewareOptions struct {
	Limiter Limiter
	Logger  observability.StructuredLogger

	// Identify returns the client identifier. Defaults to ClientIP.
	Identify func(*phototheory.Context) string
	// Skip exempts a request. Defaults to skipping GET and HEAD.
	Skip func(*phototheory.Context) bool
}

// Middleware counts each request against the limiter keyed by client and path. Denied requests
// get app.rate_limited with retry-after; limiter errors let the request through.
func Middleware(opts MiddlewareOptions) phototheory.Middleware {
	if opts.Identify == nil {
		opts.Identify = ClientIP
	}
	if opts.Skip == nil {
		opts.Skip = readOnly
	}
	logger := observability.OrNoOp(opts.Logger).WithField("component", "limited")

	return func(next phototheory.Handler) phototheory.Handler {
		return func(ctx *phototheory.Context) (*phototheory.Response, error) {
			if opts.Limiter == nil || opts.Skip(ctx) {
				return next(ctx)
			}

			key := Key{Identifier: opts.Identify(ctx), Resource: ctx.Request.Path}
			decision, err := opts.Limiter.Allow(ctx.Context(), key)
			if err != nil {
				logger.WithRequestID(ctx.RequestID).Warn("rate limit check failed", map[string]any{
					"identifier": key.Identifier,
					"resource":   key.Resource,
					"error":      err,
				})
				return next(ctx)
			}

			if !decision.Allowed {
				logger.WithRequestID(ctx.RequestID).Info("rate limited", map[string]any{
					"identifier": key.Identifier,
					"resource":   key.Resource,
					"count":      decision.Count,
					"limit":      decision.Limit,
				})
				appErr := phototheory.NewError(phototheory.CodeRateLimited, "rate limit exceeded")
				appErr.Headers = rateLimitHeaders(decision)
				return nil, appErr
			}

			resp, err := next(ctx)
			if resp != nil {
				if resp.Headers == nil {
					resp.Headers = map[string][]string{}
				}
				for k, v := range rateLimitHeaders(decision) {
					resp.Headers[k] = v
				}
			}
			return resp, err
		}
	}
}

func rateLimitHeaders(d Decision) map[string][]string {
	remaining := d.Limit - d.Count
	if remaining < 0 {
		remaining = 0
	}
	headers := map[string][]string{
		"x-ratelimit-limit":     {strconv.Itoa(d.Limit)},
		"x-ratelimit-remaining": {strconv.Itoa(remaining)},
		"x-ratelimit-reset":     {strconv.FormatInt(d.ResetsAt.Unix(), 10)},
	}
	if d.RetryAfter > 0 {
		seconds := int(d.RetryAfter.Seconds())
		if seconds < 1 {
			seconds = 1
		}
		headers["retry-after"] = []string{strconv.Itoa(seconds)}
	}
	return headers
}

// ClientIP prefers the first x-forwarded-for hop, then the transport source address.
func ClientIP(ctx *phototheory.Context) string {
	if forwarded := ctx.Header("x-forwarded-for"); forwarded != "" {
		first, _, _ := strings.Cut(forwarded, ",")
		if ip := strings.TrimSpace(first); ip != "" {
			return ip
		}
	}
	if ctx.Request.SourceIP != "" {
		return ctx.Request.SourceIP
	}
	return "unknown"
}

func readOnly(ctx *phototheory.Context) bool {
	return ctx.Request.Method == "GET" || ctx.Request.Method == "HEAD"
}
