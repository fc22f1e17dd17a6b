package phototheory

import (
	"context"
	"encoding/base64"
	"net/url"
	"slices"
	"strings"

	"github.com/aws/aws-lambda-go/events"
)

// httpEvent is the part of an API Gateway v2 or function URL event that becomes a Request.
// Both share the payload v2 shape.
type httpEvent struct {
	method   string
	rawPath  string
	path     string
	rawQuery string
	query    map[string]string
	headers  map[string]string
	cookies  []string
	body     string
	isBase64 bool
	sourceIP string
}

func (e httpEvent) request() (Request, error) {
	query, err := queryFromEvent(e.rawQuery, e.query)
	if err != nil {
		return Request{}, err
	}
	headers := headersFromEvent(e.headers, e.cookies)
	path := e.rawPath
	if path == "" {
		path = e.path
	}
	return Request{
		Method:   e.method,
		Path:     path,
		Query:    query,
		Headers:  headers,
		Body:     []byte(e.body),
		IsBase64: e.isBase64,
		SourceIP: e.sourceIP,
	}, nil
}

// ServeAPIGatewayV2 serves an HTTP API (payload v2) event.
func (a *App) ServeAPIGatewayV2(ctx context.Context, event events.APIGatewayV2HTTPRequest) events.APIGatewayV2HTTPResponse {
	rc := event.RequestContext.HTTP
	return toAPIGatewayV2(a.serveEvent(ctx, httpEvent{
		method:   rc.Method,
		rawPath:  event.RawPath,
		path:     rc.Path,
		rawQuery: event.RawQueryString,
		query:    event.QueryStringParameters,
		headers:  event.Headers,
		cookies:  event.Cookies,
		body:     event.Body,
		isBase64: event.IsBase64Encoded,
		sourceIP: rc.SourceIP,
	}))
}

// ServeLambdaFunctionURL serves a Lambda function URL event.
func (a *App) ServeLambdaFunctionURL(ctx context.Context, event events.LambdaFunctionURLRequest) events.LambdaFunctionURLResponse {
	rc := event.RequestContext.HTTP
	return toFunctionURL(a.serveEvent(ctx, httpEvent{
		method:   rc.Method,
		rawPath:  event.RawPath,
		path:     rc.Path,
		rawQuery: event.RawQueryString,
		query:    event.QueryStringParameters,
		headers:  event.Headers,
		cookies:  event.Cookies,
		body:     event.Body,
		isBase64: event.IsBase64Encoded,
		sourceIP: rc.SourceIP,
	}))
}

// serveEvent returns a fully buffered response. A body that fails to read becomes app.internal.
func (a *App) serveEvent(ctx context.Context, event httpEvent) Response {
	req, err := event.request()
	if err != nil {
		return responseForError(err, "")
	}
	resp := a.Serve(ctx, req)
	buffered, err := drainBody(resp)
	if err != nil {
		return errorResponse(CodeInternal, messageInternal, nil, firstHeaderValue(resp.Headers, "x-request-id"))
	}
	return buffered
}

func encodeBody(resp Response) string {
	if resp.IsBase64 {
		return base64.StdEncoding.EncodeToString(resp.Body)
	}
	return string(resp.Body)
}

func toAPIGatewayV2(resp Response) events.APIGatewayV2HTTPResponse {
	out := events.APIGatewayV2HTTPResponse{
		StatusCode:        resp.Status,
		Headers:           make(map[string]string, len(resp.Headers)),
		MultiValueHeaders: make(map[string][]string, len(resp.Headers)),
		Body:              encodeBody(resp),
		IsBase64Encoded:   resp.IsBase64,
	}
	for name, values := range resp.Headers {
		if len(values) > 0 {
			out.Headers[name] = values[0]
			out.MultiValueHeaders[name] = slices.Clone(values)
		}
	}
	return out
}

// toFunctionURL folds repeated headers into one comma-separated value; function URLs have no
// multi-value headers.
func toFunctionURL(resp Response) events.LambdaFunctionURLResponse {
	out := events.LambdaFunctionURLResponse{
		StatusCode:      resp.Status,
		Headers:         make(map[string]string, len(resp.Headers)),
		Body:            encodeBody(resp),
		IsBase64Encoded: resp.IsBase64,
	}
	for name, values := range resp.Headers {
		if len(values) > 0 {
			out.Headers[name] = strings.Join(values, ",")
		}
	}
	return out
}

// headersFromEvent lifts single-value headers. Payload v2 moves cookies to their own list,
// which replaces any cookie header.
func headersFromEvent(single map[string]string, cookies []string) map[string][]string {
	out := make(map[string][]string, len(single)+1)
	for name, value := range single {
		if len(cookies) > 0 && strings.EqualFold(name, "cookie") {
			continue
		}
		out[name] = []string{value}
	}
	if len(cookies) > 0 {
		out["cookie"] = slices.Clone(cookies)
	}
	return out
}

// queryFromEvent prefers the raw query string, which keeps repeated keys. The single-value map
// is the fallback when the raw string is absent.
func queryFromEvent(raw string, single map[string]string) (map[string][]string, error) {
	if raw = strings.TrimPrefix(raw, "?"); raw != "" {
		values, err := url.ParseQuery(raw)
		if err != nil {
			return nil, BadRequest(messageInvalidQueryString)
		}
		return map[string][]string(values), nil
	}
	out := make(map[string][]string, len(single))
	for key, value := range single {
		out[key] = []string{value}
	}
	return out, nil
}
