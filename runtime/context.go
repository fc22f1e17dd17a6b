package phototheory

import (
	"context"
	"encoding/json"
	"time"

	"github.com/theory-cloud/phototheory/pkg/observability"
)

// Context carries one request through middleware and its handler. The zero value is usable:
// every accessor falls back to a sensible default.
type Context struct {
	ctx     context.Context
	clock   Clock
	ids     IDGenerator
	logger  observability.StructuredLogger
	Request Request
	Params  map[string]string

	RequestID string
}

// Context returns the request's context.Context, cancelled when the request deadline passes.
func (c *Context) Context() context.Context {
	if c.ctx != nil {
		return c.ctx
	}
	return context.Background()
}

func (c *Context) Now() time.Time {
	if c.clock != nil {
		return c.clock.Now()
	}
	return time.Now()
}

func (c *Context) NewID() string {
	if c.ids != nil {
		return c.ids.NewID()
	}
	return ULIDGenerator{}.NewID()
}

// Logger is already tagged with the request ID.
func (c *Context) Logger() observability.StructuredLogger {
	return observability.OrNoOp(c.logger)
}

func (c *Context) Param(name string) string {
	return c.Params[name]
}

// Query returns the first value of the named query parameter.
func (c *Context) Query(name string) string {
	if values := c.Request.Query[name]; len(values) > 0 {
		return values[0]
	}
	return ""
}

func (c *Context) Header(name string) string {
	return c.Request.Header(name)
}

// BindJSON decodes the body into out. The request must declare a JSON content-type and carry
// a non-empty body.
func (c *Context) BindJSON(out any) error {
	if mediaType, _ := c.Request.MediaType(); mediaType != "application/json" {
		return BadRequest(messageInvalidJSON)
	}
	return decodeJSONBody(c.Request.Body, out)
}

func decodeJSONBody(body []byte, out any) error {
	if len(body) == 0 {
		return BadRequest("request body is empty")
	}
	if err := json.Unmarshal(body, out); err != nil {
		return BadRequest(messageInvalidJSON)
	}
	return nil
}
