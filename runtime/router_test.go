package phototheory

import "testing"

func okHandler(body string) Handler {
	return func(*Context) (*Response, error) { return Text(200, body), nil }
}

func TestCompileSegment(t *testing.T) {
	cases := []struct {
		raw  string
		kind segmentKind
		text string
	}{
		{"images", segmentLiteral, "images"},
		{"{name}", segmentParam, "name"},
		{"{ name }", segmentParam, "name"},
		{"{name+}", segmentRest, "name"},
		{"{ name+ }", segmentRest, "name"},
		{"{ name + }", segmentRest, "name"},
	}
	for _, tc := range cases {
		seg, err := compileSegment(tc.raw)
		if err != nil {
			t.Fatalf("compileSegment(%q) returned error: %v", tc.raw, err)
		}
		if seg.kind != tc.kind || seg.text != tc.text {
			t.Fatalf("compileSegment(%q) = %#v", tc.raw, seg)
		}
	}

	for _, raw := range []string{"", " ", "{}", "{ }", "{+}", "{name"} {
		if _, err := compileSegment(raw); err == nil {
			t.Fatalf("expected compileSegment(%q) to fail", raw)
		}
	}
}

func TestCompileRoute_CanonicalPattern(t *testing.T) {
	rt, err := compileRoute("images/{ name+ }")
	if err != nil {
		t.Fatalf("compileRoute returned error: %v", err)
	}
	if rt.Pattern != "/images/{name+}" || !rt.rest || rt.literals != 1 {
		t.Fatalf("unexpected route: %#v", rt)
	}

	root, err := compileRoute("")
	if err != nil || root.Pattern != "/" {
		t.Fatalf("unexpected root route: %#v err=%v", root, err)
	}
}

func TestRouterAdd_RejectsRestNotLastAndNilHandler(t *testing.T) {
	r := newRouter()
	if err := r.add("GET", "/images/{name+}/x", okHandler("x")); err == nil {
		t.Fatal("expected rest segment not last to be rejected")
	}
	if err := r.add("GET", "/ping", nil); err == nil {
		t.Fatal("expected nil handler to be rejected")
	}
	if len(r.routes) != 0 {
		t.Fatalf("expected no routes, got %d", len(r.routes))
	}
}

func TestRouterMatch_MostSpecificRouteWins(t *testing.T) {
	r := newRouter()
	_ = r.add("GET", "/api/{area}/{action}", okHandler("params"))
	_ = r.add("GET", "/api/image/{action}", okHandler("param"))
	_ = r.add("GET", "/api/image/current", okHandler("static"))
	_ = r.add("POST", "/api/image/current", okHandler("post"))

	match, allowed := r.match("get", "/api/image/current")
	if match == nil {
		t.Fatal("expected route match")
	}
	if match.Route.Pattern != "/api/image/current" {
		t.Fatalf("expected /api/image/current route, got %q", match.Route.Pattern)
	}
	if len(allowed) != 4 {
		t.Fatalf("expected 4 allowed methods, got %v", allowed)
	}

	match, _ = r.match("GET", "/api/image/paginated")
	if match == nil || match.Route.Pattern != "/api/image/{action}" || match.Params["action"] != "paginated" {
		t.Fatalf("unexpected match: %#v", match)
	}
}

func TestRouterMatch_RestParams(t *testing.T) {
	r := newRouter()
	_ = r.add("GET", "/images/{name+}", okHandler("ok"))

	match, _ := r.match("GET", "/images/a/b.jpg")
	if match == nil {
		t.Fatal("expected route match")
	}
	if match.Params["name"] != "a/b.jpg" {
		t.Fatalf("expected rest param 'a/b.jpg', got %q", match.Params["name"])
	}

	if match, _ := r.match("GET", "/images"); match != nil {
		t.Fatal("expected rest route to require at least one segment")
	}
	if match, _ := r.match("GET", "/images//x"); match == nil || match.Params["name"] != "/x" {
		t.Fatalf("expected rest route to keep inner empty segments, got %#v", match)
	}
}

func TestRouterMatch_HeadFallsBackToGet(t *testing.T) {
	r := newRouter()
	_ = r.add("GET", "/images/{name+}", okHandler("get"))

	match, _ := r.match("HEAD", "/images/a.png")
	if match == nil || match.Route.Method != "GET" {
		t.Fatalf("expected HEAD to use the GET route, got %#v", match)
	}

	_ = r.add("HEAD", "/images/{name+}", okHandler("head"))
	match, _ = r.match("HEAD", "/images/a.png")
	if match == nil || match.Route.Method != "HEAD" {
		t.Fatalf("expected explicit HEAD route to win, got %#v", match)
	}

	if match, _ := r.match("POST", "/images/a.png"); match != nil {
		t.Fatal("expected POST not to fall back")
	}
}

func TestFormatAllowHeader_DedupAndSort(t *testing.T) {
	if got := formatAllowHeader([]string{"post", "GET", "  ", "get"}); got != "GET, HEAD, POST" {
		t.Fatalf("unexpected allow header: %q", got)
	}
	if got := formatAllowHeader([]string{"POST"}); got != "POST" {
		t.Fatalf("unexpected allow header: %q", got)
	}
}
