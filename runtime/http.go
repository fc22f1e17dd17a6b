package phototheory

import (
	"io"
	"net"
	"net/http"
)

// ServeHTTP adapts the App to net/http so it can run behind http.Server.
func (a *App) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	body, err := a.readBody(r.Body)
	if err != nil {
		writeResponse(w, errorResponse(CodeBadRequest, "unreadable request body", nil, ""))
		return
	}

	req := Request{
		Method:  r.Method,
		Path:    r.URL.Path,
		Query:   map[string][]string(r.URL.Query()),
		Headers: map[string][]string(r.Header),
		Body:    body,
	}
	if host, _, err := net.SplitHostPort(r.RemoteAddr); err == nil {
		req.SourceIP = host
	} else {
		req.SourceIP = r.RemoteAddr
	}
	writeResponse(w, a.Serve(r.Context(), req))
}

// readBody reads at most one byte past the request limit so Serve can reject oversize bodies
// without buffering all of them.
func (a *App) readBody(body io.ReadCloser) ([]byte, error) {
	if body == nil {
		return nil, nil
	}
	defer body.Close()

	var reader io.Reader = body
	if a != nil && a.limits.MaxRequestBytes > 0 {
		reader = io.LimitReader(body, int64(a.limits.MaxRequestBytes)+1)
	}
	return io.ReadAll(reader)
}

// writeResponse streams BodyReader after Body. Once headers are sent a write error cannot be
// reported to the client, so the remaining body is only closed.
func writeResponse(w http.ResponseWriter, resp Response) {
	defer discardBody(&resp)

	header := w.Header()
	for name, values := range resp.Headers {
		for _, value := range values {
			header.Add(name, value)
		}
	}
	w.WriteHeader(resp.Status)

	if _, err := w.Write(resp.Body); err != nil || resp.BodyReader == nil {
		return
	}
	_, _ = io.Copy(w, resp.BodyReader)
}
