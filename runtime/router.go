package phototheory

import (
	"fmt"
	"slices"
	"strings"
)

// Handler is the request handler signature.
type Handler func(*Context) (*Response, error)

// Patterns are slash-separated segments. A segment is literal, "{name}" for exactly one path
// segment, or "{name+}" (last only) for one or more trailing segments joined by "/".
type segmentKind uint8

const (
	segmentLiteral segmentKind = iota
	segmentParam
	segmentRest
)

type segment struct {
	kind segmentKind
	text string
}

type route struct {
	Method  string
	Pattern string
	Handler Handler

	segments []segment
	literals int
	params   int
	rest     bool
	order    int
}

// beats reports whether rt should win over other when both match the same path: more literal
// segments first, then more single params, then no rest segment, then registration order.
func (rt route) beats(other route) bool {
	switch {
	case rt.literals != other.literals:
		return rt.literals > other.literals
	case rt.params != other.params:
		return rt.params > other.params
	case rt.rest != other.rest:
		return !rt.rest
	default:
		return rt.order < other.order
	}
}

// bind matches path segments against the route and returns the captured params.
func (rt route) bind(parts []string) (map[string]string, bool) {
	fixed := len(rt.segments)
	if rt.rest {
		fixed--
		if len(parts) <= fixed {
			return nil, false
		}
	} else if len(parts) != fixed {
		return nil, false
	}

	params := make(map[string]string, rt.params+1)
	for i := 0; i < fixed; i++ {
		seg, part := rt.segments[i], parts[i]
		if part == "" {
			return nil, false
		}
		if seg.kind == segmentLiteral {
			if seg.text != part {
				return nil, false
			}
			continue
		}
		params[seg.text] = part
	}
	if rt.rest {
		params[rt.segments[fixed].text] = strings.Join(parts[fixed:], "/")
	}
	return params, true
}

type router struct {
	routes []route
}

func newRouter() *router {
	return &router{}
}

func (r *router) add(method, pattern string, handler Handler) error {
	if handler == nil {
		return fmt.Errorf("phototheory: nil handler for %s %s", method, pattern)
	}
	rt, err := compileRoute(pattern)
	if err != nil {
		return err
	}
	rt.Method = strings.ToUpper(strings.TrimSpace(method))
	rt.Handler = handler
	rt.order = len(r.routes)
	r.routes = append(r.routes, rt)
	return nil
}

func compileRoute(pattern string) (route, error) {
	parts := splitPath(normalizePath(pattern))
	rt := route{segments: make([]segment, 0, len(parts))}
	canonical := make([]string, 0, len(parts))

	for i, part := range parts {
		seg, err := compileSegment(part)
		if err != nil {
			return route{}, fmt.Errorf("phototheory: route %q: %w", pattern, err)
		}
		switch seg.kind {
		case segmentLiteral:
			rt.literals++
			canonical = append(canonical, seg.text)
		case segmentParam:
			rt.params++
			canonical = append(canonical, "{"+seg.text+"}")
		case segmentRest:
			if i != len(parts)-1 {
				return route{}, fmt.Errorf("phototheory: route %q: {%s+} must be the last segment", pattern, seg.text)
			}
			rt.rest = true
			canonical = append(canonical, "{"+seg.text+"+}")
		}
		rt.segments = append(rt.segments, seg)
	}

	rt.Pattern = "/" + strings.Join(canonical, "/")
	return rt, nil
}

func compileSegment(raw string) (segment, error) {
	part := strings.TrimSpace(raw)
	if part == "" {
		return segment{}, fmt.Errorf("empty segment")
	}
	inner, ok := strings.CutPrefix(part, "{")
	if !ok {
		return segment{kind: segmentLiteral, text: part}, nil
	}
	inner, ok = strings.CutSuffix(inner, "}")
	if !ok {
		return segment{}, fmt.Errorf("unterminated segment %q", part)
	}

	kind := segmentParam
	inner = strings.TrimSpace(inner)
	if name, isRest := strings.CutSuffix(inner, "+"); isRest {
		kind, inner = segmentRest, name
	}
	name := strings.TrimSpace(inner)
	if name == "" {
		return segment{}, fmt.Errorf("unnamed segment %q", part)
	}
	return segment{kind: kind, text: name}, nil
}

type routeMatch struct {
	Route  route
	Params map[string]string
}

// match picks the best route for method and path. HEAD falls back to the GET route when no
// HEAD route matches. allowed lists the methods of every route matching the path, for 405
// responses.
func (r *router) match(method, path string) (*routeMatch, []string) {
	method = strings.ToUpper(strings.TrimSpace(method))
	parts := splitPath(path)

	var (
		best, fallback *routeMatch
		allowed        []string
	)
	for _, rt := range r.routes {
		params, ok := rt.bind(parts)
		if !ok {
			continue
		}
		allowed = append(allowed, rt.Method)

		switch {
		case rt.Method == method:
			if best == nil || rt.beats(best.Route) {
				best = &routeMatch{Route: rt, Params: params}
			}
		case method == "HEAD" && rt.Method == "GET":
			if fallback == nil || rt.beats(fallback.Route) {
				fallback = &routeMatch{Route: rt, Params: params}
			}
		}
	}
	if best == nil {
		best = fallback
	}
	return best, allowed
}

func splitPath(path string) []string {
	path = strings.TrimPrefix(strings.TrimSpace(path), "/")
	if path == "" {
		return nil
	}
	return strings.Split(path, "/")
}

// formatAllowHeader dedupes and sorts methods. GET implies HEAD.
func formatAllowHeader(methods []string) string {
	var out []string
	for _, m := range methods {
		m = strings.ToUpper(strings.TrimSpace(m))
		if m == "" {
			continue
		}
		out = append(out, m)
		if m == "GET" {
			out = append(out, "HEAD")
		}
	}
	slices.Sort(out)
	return strings.Join(slices.Compact(out), ", ")
}
