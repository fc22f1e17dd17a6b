package phototheory

import (
	"context"
	"fmt"
	"strings"
)

// exchange is what Serve learns about one request, for the access log and metrics.
type exchange struct {
	method    string
	path      string
	route     string
	requestID string
	errorCode string
}

// fail turns err into the error envelope and remembers its code.
func (x *exchange) fail(err error) Response {
	x.errorCode = errorCodeForError(err)
	return responseForError(err, x.requestID)
}

// Serve runs req through routing, middleware and the matched handler. Every response carries
// x-request-id, taken from the request or minted. A handler panic becomes app.internal.
func (a *App) Serve(ctx context.Context, req Request) (resp Response) {
	if ctx == nil {
		ctx = context.Background()
	}
	started := a.clock.Now()
	x := &exchange{
		method:    strings.ToUpper(strings.TrimSpace(req.Method)),
		path:      normalizePath(req.Path),
		requestID: firstHeaderValue(canonicalizeHeaders(req.Headers), "x-request-id"),
	}
	if x.requestID == "" {
		x.requestID = a.ids.NewID()
	}

	defer func() {
		if r := recover(); r != nil {
			a.logger.WithRequestID(x.requestID).Error("handler panic", map[string]any{
				"panic": fmt.Sprint(r),
				"route": x.route,
			})
			resp = x.fail(NewError(CodeInternal, messageInternal))
		}
		resp.Headers = canonicalizeHeaders(resp.Headers)
		resp.Headers["x-request-id"] = []string{x.requestID}
		a.recordRequest(x, resp.Status, a.clock.Now().Sub(started))
	}()

	return a.dispatch(ctx, req, x)
}

func (a *App) dispatch(ctx context.Context, req Request, x *exchange) Response {
	normalized, err := normalizeRequest(req)
	if err != nil {
		return x.fail(err)
	}
	if limit := a.limits.MaxRequestBytes; limit > 0 && len(normalized.Body) > limit {
		return x.fail(NewError(CodeTooLarge, messageRequestTooLarge))
	}

	match, allowed := a.router.match(x.method, x.path)
	switch {
	case match == nil && len(allowed) > 0:
		return x.fail(&AppError{
			Code:    CodeMethodNotAllowed,
			Message: messageMethodNotAllowed,
			Headers: map[string][]string{"allow": {formatAllowHeader(allowed)}},
		})
	case match == nil:
		return x.fail(NewError(CodeNotFound, messageNotFound))
	}
	x.route = match.Route.Pattern

	rc := &Context{
		ctx:       ctx,
		clock:     a.clock,
		ids:       a.ids,
		logger:    a.logger.WithRequestID(x.requestID),
		Request:   normalized,
		Params:    match.Params,
		RequestID: x.requestID,
	}
	out, err := a.applyMiddlewares(match.Route.Handler)(rc)
	if err != nil {
		discardBody(out)
		resp := x.fail(err)
		if x.errorCode == CodeInternal {
			rc.Logger().Error("handler failed", map[string]any{"error": err.Error()})
		}
		return resp
	}
	if out == nil {
		return x.fail(NewError(CodeInternal, messageInternal))
	}

	resp := normalizeResponse(out)
	if limit := a.limits.MaxResponseBytes; limit > 0 && len(resp.Body) > limit {
		discardBody(&resp)
		return x.fail(NewError(CodeTooLarge, messageResponseTooLarge))
	}
	if x.method == "HEAD" {
		discardBody(&resp)
		resp.Body, resp.BodyReader = nil, nil
	}
	return resp
}
