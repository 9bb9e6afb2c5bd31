package metadata

import (
	"context"
	"errors"
	"io"
	"net/http"
	"strings"
	"sync"
	"testing"
	"time"
)

// routeTransport answers requests by host. Handlers returning a nil response
// block until the request context is done.
type routeTransport struct {
	mu       sync.Mutex
	routes   map[string]func(*http.Request) *http.Response
	requests []*http.Request
}

func (rt *routeTransport) RoundTrip(req *http.Request) (*http.Response, error) {
	rt.mu.Lock()
	rt.requests = append(rt.requests, req)
	handler, ok := rt.routes[req.URL.Host]
	rt.mu.Unlock()

	if !ok {
		return nil, errors.New("no route for " + req.URL.Host)
	}
	resp := handler(req)
	if resp == nil {
		<-req.Context().Done()
		return nil, req.Context().Err()
	}
	resp.Request = req
	return resp, nil
}

func (rt *routeTransport) hosts() []string {
	rt.mu.Lock()
	defer rt.mu.Unlock()
	var hosts []string
	for _, r := range rt.requests {
		hosts = append(hosts, r.URL.Host)
	}
	return hosts
}

func respond(status int, body string) func(*http.Request) *http.Response {
	return func(*http.Request) *http.Response {
		return &http.Response{
			StatusCode: status,
			Header:     http.Header{"Content-Type": {"text/html; charset=utf-8"}},
			Body:       io.NopCloser(strings.NewReader(body)),
		}
	}
}

func hang() func(*http.Request) *http.Response {
	return func(*http.Request) *http.Response { return nil }
}

func newTestResolver(routes map[string]func(*http.Request) *http.Response, timeout time.Duration) (*Resolver, *routeTransport) {
	rt := &routeTransport{routes: routes}
	return NewResolver(&http.Client{Transport: rt}, timeout), rt
}

func TestResolverYouTubeOEmbed(t *testing.T) {
	var seen *http.Request
	r, _ := newTestResolver(map[string]func(*http.Request) *http.Response{
		"www.youtube.com": func(req *http.Request) *http.Response {
			seen = req
			return respond(200, `{"title":"Never Gonna Give You Up","thumbnail_url":"https://i.ytimg.com/vi/dQw4w9WgXcQ/hqdefault.jpg"}`)(req)
		},
	}, time.Second)

	got, err := r.Lookup(context.Background(), "https://www.youtube.com/watch?v=dQw4w9WgXcQ")
	if err != nil {
		t.Fatalf("lookup: %v", err)
	}
	if got.Title != "Never Gonna Give You Up" {
		t.Fatalf("unexpected title %q", got.Title)
	}
	if got.ThumbnailURL == nil || *got.ThumbnailURL != "https://i.ytimg.com/vi/dQw4w9WgXcQ/hqdefault.jpg" {
		t.Fatalf("unexpected thumbnail %v", got.ThumbnailURL)
	}

	if seen.URL.Path != "/oembed" {
		t.Fatalf("expected oembed path got %s", seen.URL.Path)
	}
	if seen.URL.Query().Get("url") != "https://www.youtube.com/watch?v=dQw4w9WgXcQ" || seen.URL.Query().Get("format") != "json" {
		t.Fatalf("unexpected oembed query %s", seen.URL.RawQuery)
	}
	if seen.Header.Get("Accept") != "application/json" {
		t.Fatalf("unexpected accept header %q", seen.Header.Get("Accept"))
	}
	if !strings.Contains(seen.Header.Get("User-Agent"), "(link preview)") {
		t.Fatalf("unexpected user agent %q", seen.Header.Get("User-Agent"))
	}
}

func TestResolverYouTubeEmptyTitleUsesHostname(t *testing.T) {
	r, _ := newTestResolver(map[string]func(*http.Request) *http.Response{
		"www.youtube.com": respond(200, `{"title":"   "}`),
	}, time.Second)

	got, err := r.Lookup(context.Background(), "https://www.youtube.com/watch?v=x")
	if err != nil {
		t.Fatalf("lookup: %v", err)
	}
	if got.Title != "www.youtube.com" || got.ThumbnailURL != nil {
		t.Fatalf("unexpected result %+v", got)
	}
}

func TestResolverSpotifyFallsBackToHTML(t *testing.T) {
	page := `<html><head><meta property="og:title" content="Song Title"><meta property="og:image" content="https://i.scdn.co/image/abc"></head></html>`
	r, rt := newTestResolver(map[string]func(*http.Request) *http.Response{
		"open.spotify.com": func(req *http.Request) *http.Response {
			if req.URL.Path == "/oembed" {
				return respond(500, "boom")(req)
			}
			return respond(200, page)(req)
		},
	}, time.Second)

	got, err := r.Lookup(context.Background(), "https://open.spotify.com/track/123")
	if err != nil {
		t.Fatalf("lookup: %v", err)
	}
	if got.Title != "Song Title" {
		t.Fatalf("unexpected title %q", got.Title)
	}
	if got.ThumbnailURL == nil || *got.ThumbnailURL != "https://i.scdn.co/image/abc" {
		t.Fatalf("unexpected thumbnail %v", got.ThumbnailURL)
	}
	if n := len(rt.hosts()); n != 2 {
		t.Fatalf("expected exactly two attempts got %d", n)
	}
}

func TestResolverAppleMusicPage(t *testing.T) {
	page := `<html><head><title>Album - Apple Music</title><meta name="twitter:image" content="https://is1.mzstatic.com/a.jpg"></head></html>`
	r, _ := newTestResolver(map[string]func(*http.Request) *http.Response{
		"music.apple.com": respond(200, page),
	}, time.Second)

	got, err := r.Lookup(context.Background(), "https://music.apple.com/us/album/x/1")
	if err != nil {
		t.Fatalf("lookup: %v", err)
	}
	if got.Title != "Album - Apple Music" {
		t.Fatalf("unexpected title %q", got.Title)
	}
	if got.ThumbnailURL == nil || *got.ThumbnailURL != "https://is1.mzstatic.com/a.jpg" {
		t.Fatalf("unexpected thumbnail %v", got.ThumbnailURL)
	}
}

func TestResolverAppleMusicLiteralTitle(t *testing.T) {
	r, _ := newTestResolver(map[string]func(*http.Request) *http.Response{
		"music.apple.com": respond(200, `<html><head></head><body></body></html>`),
	}, time.Second)

	got, err := r.Lookup(context.Background(), "https://music.apple.com/us/album/x/1")
	if err != nil {
		t.Fatalf("lookup: %v", err)
	}
	if got.Title != "Apple Music" {
		t.Fatalf("unexpected title %q", got.Title)
	}
}

func TestResolverGenericPrecedenceAndRelativeImage(t *testing.T) {
	page := `<html><head>
<title>Document Title</title>
<meta name="twitter:title" content="Twitter Title">
<meta property="og:title" content="">
<meta property="og:image" content="/img.png">
</head></html>`
	r, _ := newTestResolver(map[string]func(*http.Request) *http.Response{
		"example.com": respond(200, page),
	}, time.Second)

	got, err := r.Lookup(context.Background(), "https://example.com/articles/1")
	if err != nil {
		t.Fatalf("lookup: %v", err)
	}
	if got.Title != "Twitter Title" {
		t.Fatalf("expected empty og:title to fall through, got %q", got.Title)
	}
	if got.ThumbnailURL == nil || *got.ThumbnailURL != "https://example.com/img.png" {
		t.Fatalf("expected absolutized thumbnail got %v", got.ThumbnailURL)
	}
}

func TestResolverGenericTitleCapped(t *testing.T) {
	long := strings.Repeat("가", 250)
	r, _ := newTestResolver(map[string]func(*http.Request) *http.Response{
		"example.com": respond(200, "<html><head><title>"+long+"</title></head></html>"),
	}, time.Second)

	got, err := r.Lookup(context.Background(), "https://example.com/")
	if err != nil {
		t.Fatalf("lookup: %v", err)
	}
	if n := len([]rune(got.Title)); n != 200 {
		t.Fatalf("expected 200 characters got %d", n)
	}
}

func TestResolverGenericHostnameFallback(t *testing.T) {
	r, _ := newTestResolver(map[string]func(*http.Request) *http.Response{
		"blog.example.org": respond(200, "<html><body>nothing here</body></html>"),
	}, time.Second)

	got, err := r.Lookup(context.Background(), "https://blog.example.org/p")
	if err != nil {
		t.Fatalf("lookup: %v", err)
	}
	if got.Title != "blog.example.org" || got.ThumbnailURL != nil {
		t.Fatalf("unexpected result %+v", got)
	}
}

func TestResolverGenericStatusError(t *testing.T) {
	r, _ := newTestResolver(map[string]func(*http.Request) *http.Response{
		"example.com": respond(404, "missing"),
	}, time.Second)

	_, err := r.Lookup(context.Background(), "https://example.com/gone")
	var statusErr *StatusError
	if !errors.As(err, &statusErr) || statusErr.StatusCode != 404 {
		t.Fatalf("expected status error got %v", err)
	}

	got := Resolve(context.Background(), r, "https://example.com/gone")
	if got.Title != "example.com" || got.ThumbnailURL != nil {
		t.Fatalf("expected degraded result got %+v", got)
	}
}

func TestResolverTimeoutDegradesToHostname(t *testing.T) {
	r, rt := newTestResolver(map[string]func(*http.Request) *http.Response{
		"www.youtube.com": hang(),
	}, 20*time.Millisecond)

	start := time.Now()
	got := Resolve(context.Background(), r, "https://www.youtube.com/watch?v=slow")
	if elapsed := time.Since(start); elapsed > time.Second {
		t.Fatalf("resolution took too long: %v", elapsed)
	}
	if got.Title != "www.youtube.com" || got.ThumbnailURL != nil {
		t.Fatalf("expected hostname fallback got %+v", got)
	}
	if n := len(rt.hosts()); n != 2 {
		t.Fatalf("expected oembed then html attempts got %d", n)
	}
}

func TestResolverOEmbedTimeoutFallsBackToHTML(t *testing.T) {
	page := respond(200, `<html><head><meta property="og:title" content="From HTML"><meta property="og:image" content="/img.png"></head></html>`)
	r, rt := newTestResolver(map[string]func(*http.Request) *http.Response{
		"www.youtube.com": func(req *http.Request) *http.Response {
			if strings.HasPrefix(req.URL.Path, "/oembed") {
				return nil
			}
			return page(req)
		},
	}, 20*time.Millisecond)

	got, err := r.Lookup(context.Background(), "https://www.youtube.com/watch?v=slow")
	if err != nil {
		t.Fatalf("lookup: %v", err)
	}
	if got.Title != "From HTML" {
		t.Fatalf("expected html title got %+v", got)
	}
	if got.ThumbnailURL == nil || *got.ThumbnailURL != "https://www.youtube.com/img.png" {
		t.Fatalf("expected absolute og:image got %v", got.ThumbnailURL)
	}
	if n := len(rt.hosts()); n != 2 {
		t.Fatalf("expected oembed then html attempts got %d", n)
	}
}

func TestResolverInvalidURL(t *testing.T) {
	r, _ := newTestResolver(nil, time.Second)
	if _, err := r.Lookup(context.Background(), "not a url"); !errors.Is(err, ErrInvalidURL) {
		t.Fatalf("expected invalid url got %v", err)
	}
	if got := Resolve(context.Background(), r, "not a url"); got.Title != "Link" {
		t.Fatalf("expected literal fallback got %+v", got)
	}
}

func TestResolveNilProvider(t *testing.T) {
	got := Resolve(context.Background(), nil, "https://example.com/x")
	if got.Title != "example.com" || got.ThumbnailURL != nil {
		t.Fatalf("unexpected result %+v", got)
	}
}
