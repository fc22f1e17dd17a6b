package phototheory

import (
	"encoding/base64"
	"fmt"
	"maps"
	"mime"
	"slices"
	"strings"
)

// Request is the transport-neutral HTTP request handlers see. Header names are lower case
// once the request reaches a handler.
type Request struct {
	Method   string
	Path     string
	Query    map[string][]string
	Headers  map[string][]string
	Body     []byte
	IsBase64 bool

	// SourceIP is the peer address reported by the transport, without a port.
	SourceIP string
}

// Header returns the first value of the named header.
func (r Request) Header(name string) string {
	return firstHeaderValue(r.Headers, name)
}

func firstHeaderValue(headers map[string][]string, name string) string {
	if values := headers[strings.ToLower(strings.TrimSpace(name))]; len(values) > 0 {
		return values[0]
	}
	return ""
}

// MediaType returns the content-type without parameters, lower case, and its parameters.
// A missing or malformed header yields "".
func (r Request) MediaType() (string, map[string]string) {
	mediaType, params, err := mime.ParseMediaType(r.Header("content-type"))
	if err != nil {
		return "", nil
	}
	return mediaType, params
}

// normalizeRequest returns a copy safe to hand to handlers: method upper case, path rooted,
// headers lower case, body decoded.
func normalizeRequest(in Request) (Request, error) {
	body := slices.Clone(in.Body)
	if in.IsBase64 {
		decoded, err := base64.StdEncoding.DecodeString(string(in.Body))
		if err != nil {
			return Request{}, BadRequest(fmt.Sprintf("invalid base64 body: %v", err))
		}
		body = decoded
	}

	query := make(map[string][]string, len(in.Query))
	for key, values := range in.Query {
		query[key] = slices.Clone(values)
	}

	return Request{
		Method:   strings.ToUpper(strings.TrimSpace(in.Method)),
		Path:     normalizePath(in.Path),
		Query:    query,
		Headers:  canonicalizeHeaders(in.Headers),
		Body:     body,
		IsBase64: in.IsBase64,
		SourceIP: strings.Trim(strings.TrimSpace(in.SourceIP), "[]"),
	}, nil
}

// normalizePath drops any query string and ensures a leading slash.
func normalizePath(path string) string {
	path, _, _ = strings.Cut(strings.TrimSpace(path), "?")
	if !strings.HasPrefix(path, "/") {
		path = "/" + path
	}
	return path
}

// canonicalizeHeaders lower-cases names. Values of names differing only in case are merged in
// sorted name order so the result does not depend on map iteration.
func canonicalizeHeaders(in map[string][]string) map[string][]string {
	out := make(map[string][]string, len(in))
	for _, key := range slices.Sorted(maps.Keys(in)) {
		name := strings.ToLower(strings.TrimSpace(key))
		if name == "" {
			continue
		}
		out[name] = append(out[name], in[key]...)
	}
	return out
}
