package phototheory

import (
	"context"
	"fmt"
	"time"
)

type TimeoutConfig struct {
	DefaultTimeout time.Duration
	// OperationTimeouts overrides DefaultTimeout per "METHOD:/path".
	OperationTimeouts map[string]time.Duration
	TimeoutMessage    string
}

type outcome struct {
	resp *Response
	err  error
}

// TimeoutMiddleware answers app.timeout once a request's budget is spent and cancels the
// handler's context at that moment. A handler that finishes late has its body discarded. When
// the caller's own context ends first the answer is app.unavailable instead.
func TimeoutMiddleware(config TimeoutConfig) Middleware {
	cfg := normalizeTimeoutConfig(config)

	return func(next Handler) Handler {
		return func(ctx *Context) (*Response, error) {
			budget := timeoutForContext(ctx, cfg)
			if budget <= 0 {
				return next(ctx)
			}

			parent := ctx.Context()
			limited, cancel := context.WithTimeout(parent, budget)
			defer cancel()

			done := make(chan outcome, 1)
			go runGuarded(next, ctx.withContext(limited), done)

			select {
			case res := <-done:
				return res.resp, res.err
			case <-limited.Done():
			}

			go func() { discardBody((<-done).resp) }()
			if parent.Err() != nil {
				return nil, NewError(CodeUnavailable, "request cancelled")
			}
			return nil, NewError(CodeTimeout, cfg.TimeoutMessage)
		}
	}
}

// runGuarded runs next on its own goroutine, so a panic there cannot reach the App's recovery.
// It is reported as app.internal instead.
func runGuarded(next Handler, ctx *Context, done chan<- outcome) {
	defer func() {
		if r := recover(); r != nil {
			ctx.Logger().Error("handler panic", map[string]any{"panic": fmt.Sprint(r)})
			done <- outcome{err: NewError(CodeInternal, messageInternal)}
		}
	}()
	resp, err := next(ctx)
	done <- outcome{resp: resp, err: err}
}

func (c *Context) withContext(ctx context.Context) *Context {
	clone := *c
	clone.ctx = ctx
	return &clone
}

func normalizeTimeoutConfig(cfg TimeoutConfig) TimeoutConfig {
	if cfg.DefaultTimeout == 0 {
		cfg.DefaultTimeout = 30 * time.Second
	}
	if cfg.TimeoutMessage == "" {
		cfg.TimeoutMessage = messageTimeout
	}
	return cfg
}

// timeoutForContext is the per-operation budget, clamped to whatever remains of the caller's
// deadline. A negative DefaultTimeout disables the middleware.
func timeoutForContext(ctx *Context, cfg TimeoutConfig) time.Duration {
	budget := cfg.DefaultTimeout
	if override, ok := cfg.OperationTimeouts[ctx.Request.Method+":"+ctx.Request.Path]; ok {
		budget = override
	}
	if deadline, ok := ctx.Context().Deadline(); ok {
		if remaining := time.Until(deadline); remaining > 0 && remaining < budget {
			budget = remaining
		}
	}
	return budget
}
