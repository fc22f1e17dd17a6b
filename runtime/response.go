package phototheory

import (
	"cmp"
	"encoding/json"
	"io"
	"slices"
)

// Response is what handlers return. Header names are lower-cased before the response leaves
// the App.
type Response struct {
	Status  int
	Headers map[string][]string
	Body    []byte

	// BodyReader is streamed after Body. Transports that cannot stream read it to the end.
	BodyReader io.Reader
	IsBase64   bool
}

func withContentType(status int, contentType string, body []byte) *Response {
	resp := &Response{Status: status, Headers: map[string][]string{}, Body: body}
	if contentType != "" {
		resp.Headers["content-type"] = []string{contentType}
	}
	return resp
}

func Text(status int, body string) *Response {
	return withContentType(status, "text/plain; charset=utf-8", []byte(body))
}

// JSON fails only when value cannot be marshalled.
func JSON(status int, value any) (*Response, error) {
	body, err := json.Marshal(value)
	if err != nil {
		return nil, err
	}
	return withContentType(status, "application/json; charset=utf-8", body), nil
}

// MustJSON is JSON for values known to marshal. It panics otherwise.
func MustJSON(status int, value any) *Response {
	resp, err := JSON(status, value)
	if err != nil {
		panic(err)
	}
	return resp
}

// Binary copies body and marks the response for base64 transport.
func Binary(status int, body []byte, contentType string) *Response {
	resp := withContentType(status, contentType, slices.Clone(body))
	resp.IsBase64 = true
	return resp
}

// Stream is Binary with the body read from r. If r is an io.Closer it is closed once the body
// has been written or discarded.
func Stream(status int, r io.Reader, contentType string) *Response {
	resp := Binary(status, nil, contentType)
	resp.BodyReader = r
	return resp
}

func normalizeResponse(in *Response) Response {
	if in == nil {
		return errorResponse(CodeInternal, messageInternal, nil, "")
	}
	out := *in
	out.Status = cmp.Or(out.Status, 200)
	out.Headers = canonicalizeHeaders(out.Headers)
	out.Body = slices.Clone(out.Body)
	return out
}

// drainBody buffers BodyReader into Body.
func drainBody(resp Response) (Response, error) {
	r := resp.BodyReader
	if r == nil {
		return resp, nil
	}
	if c, ok := r.(io.Closer); ok {
		defer c.Close()
	}

	rest, err := io.ReadAll(r)
	resp.Body = append(resp.Body, rest...)
	resp.BodyReader = nil
	return resp, err
}

// discardBody closes BodyReader when it is an io.Closer.
func discardBody(resp *Response) {
	if resp == nil {
		return
	}
	if c, ok := resp.BodyReader.(io.Closer); ok {
		_ = c.Close()
	}
}
