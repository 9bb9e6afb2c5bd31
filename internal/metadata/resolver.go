package metadata

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strings"
	"time"
	"unicode/utf8"

	"github.com/PuerkitoBio/goquery"

	"github.com/moolinks/backend/internal/linkurl"
	"github.com/moolinks/backend/internal/logging"
	"github.com/moolinks/backend/internal/metrics"
)

const (
	// DefaultTimeout bounds every individual network attempt.
	DefaultTimeout = 8 * time.Second

	// YouTubeOEmbedEndpoint is YouTube's public oEmbed endpoint.
	YouTubeOEmbedEndpoint = "https://www.youtube.com/oembed"
	// SpotifyOEmbedEndpoint is Spotify's public oEmbed endpoint.
	SpotifyOEmbedEndpoint = "https://open.spotify.com/oembed"

	maxTitleLength = 200
	maxBodyBytes   = 2 << 20

	userAgent      = "Mozilla/5.0 (Windows NT 10.0; rv:109.0) Gecko/20100101 Firefox/119.0 (link preview)"
	acceptHTML     = "text/html,application/xhtml+xml,application/xml;q=0.9,*/*;q=0.8"
	acceptJSON     = "application/json"
	acceptLanguage = "en-US,en;q=0.9,ko;q=0.8"

	youtubeTitle    = "YouTube"
	spotifyTitle    = "Spotify"
	appleMusicTitle = "Apple Music"
)

// Resolver fetches link metadata with the cheapest reliable method per
// provider: oEmbed for video and music streaming links, page HTML otherwise.
// A failed provider-specific step falls through to the generic HTML scrape;
// each step runs at most once.
type Resolver struct {
	Client  *http.Client
	Timeout time.Duration

	YouTubeEndpoint string
	SpotifyEndpoint string
}

// NewResolver constructs a Resolver using client (http.DefaultClient when nil)
// and a per-attempt timeout (DefaultTimeout when not positive).
func NewResolver(client *http.Client, timeout time.Duration) *Resolver {
	if client == nil {
		client = http.DefaultClient
	}
	if timeout <= 0 {
		timeout = DefaultTimeout
	}
	return &Resolver{
		Client:          client,
		Timeout:         timeout,
		YouTubeEndpoint: YouTubeOEmbedEndpoint,
		SpotifyEndpoint: SpotifyOEmbedEndpoint,
	}
}

// Lookup resolves metadata for a canonical URL. Provider-specific failures are
// absorbed; a failure of the generic HTML fetch is returned as an error
// (a *StatusError for non-2xx responses). Callers that need the never-fail
// contract use Resolve.
func (r *Resolver) Lookup(ctx context.Context, rawURL string) (Result, error) {
	if r == nil {
		return Result{}, ErrProviderUnavailable
	}

	page, err := url.Parse(rawURL)
	if err != nil || page.Hostname() == "" {
		return Result{}, fmt.Errorf("%w: %q", ErrInvalidURL, rawURL)
	}

	ctx, span := logging.StartSpan(ctx, "metadata.lookup")
	defer span.End()
	logger := logging.FromContext(ctx)

	provider := linkurl.Classify(rawURL)

	var (
		result  Result
		stepErr error
		method  string
	)
	switch provider {
	case linkurl.ProviderVideo:
		method = "oembed"
		result, stepErr = r.oEmbed(ctx, r.youtubeEndpoint(), page, youtubeTitle, url.Values{"format": {"json"}})
	case linkurl.ProviderMusicStreaming:
		method = "oembed"
		result, stepErr = r.oEmbed(ctx, r.spotifyEndpoint(), page, spotifyTitle, nil)
	case linkurl.ProviderMusicRetail:
		method = "html"
		result, stepErr = r.retailPage(ctx, page)
	}
	if method != "" {
		if stepErr == nil {
			metrics.ObserveResolution(string(provider), method)
			return result, nil
		}
		logger.Info("provider metadata failed, falling back to html", "provider", provider, "error", stepErr)
	}

	result, err = r.genericPage(ctx, page)
	if err != nil {
		metrics.ObserveResolution(string(provider), "error")
		return Result{}, err
	}
	metrics.ObserveResolution(string(provider), "html")
	return result, nil
}

type oEmbedPayload struct {
	Title        string `json:"title"`
	ThumbnailURL string `json:"thumbnail_url"`
}

func (r *Resolver) oEmbed(ctx context.Context, endpoint string, page *url.URL, literal string, extra url.Values) (Result, error) {
	target, err := url.Parse(endpoint)
	if err != nil {
		return Result{}, fmt.Errorf("parse oembed endpoint: %w", err)
	}
	query := target.Query()
	query.Set("url", page.String())
	for key, values := range extra {
		for _, v := range values {
			query.Add(key, v)
		}
	}
	target.RawQuery = query.Encode()

	body, err := r.fetch(ctx, target.String(), acceptJSON)
	if err != nil {
		return Result{}, err
	}
	defer body.Close()

	var payload oEmbedPayload
	if err := json.NewDecoder(body).Decode(&payload); err != nil {
		return Result{}, fmt.Errorf("decode oembed response: %w", err)
	}

	return Result{
		Title:        pickTitle(literal, payload.Title, page.Hostname()),
		ThumbnailURL: absoluteURL(page, payload.ThumbnailURL),
	}, nil
}

func (r *Resolver) retailPage(ctx context.Context, page *url.URL) (Result, error) {
	doc, err := r.document(ctx, page)
	if err != nil {
		return Result{}, err
	}
	return Result{
		Title: pickTitle(appleMusicTitle,
			metaContent(doc, "property", "og:title"),
			titleText(doc),
		),
		ThumbnailURL: absoluteURL(page, firstNonEmpty(
			metaContent(doc, "property", "og:image"),
			metaContent(doc, "name", "twitter:image"),
		)),
	}, nil
}

func (r *Resolver) genericPage(ctx context.Context, page *url.URL) (Result, error) {
	doc, err := r.document(ctx, page)
	if err != nil {
		return Result{}, err
	}
	return Result{
		Title: pickTitle(degradedTitle,
			metaContent(doc, "property", "og:title"),
			metaContent(doc, "name", "twitter:title"),
			titleText(doc),
			page.Hostname(),
		),
		ThumbnailURL: absoluteURL(page, firstNonEmpty(
			metaContent(doc, "property", "og:image"),
			metaContent(doc, "name", "twitter:image"),
		)),
	}, nil
}

func (r *Resolver) document(ctx context.Context, page *url.URL) (*goquery.Document, error) {
	body, err := r.fetch(ctx, page.String(), acceptHTML)
	if err != nil {
		return nil, err
	}
	defer body.Close()

	doc, err := goquery.NewDocumentFromReader(body)
	if err != nil {
		return nil, fmt.Errorf("parse html %s: %w", page.String(), err)
	}
	return doc, nil
}

// fetch issues a GET bounded by the per-attempt timeout. The returned body
// keeps the timeout context alive until closed.
func (r *Resolver) fetch(ctx context.Context, target, accept string) (io.ReadCloser, error) {
	ctx, cancel := context.WithTimeout(ctx, r.timeout())

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, target, nil)
	if err != nil {
		cancel()
		return nil, fmt.Errorf("build request %s: %w", target, err)
	}
	req.Header.Set("User-Agent", userAgent)
	req.Header.Set("Accept", accept)
	req.Header.Set("Accept-Language", acceptLanguage)

	resp, err := r.client().Do(req)
	if err != nil {
		cancel()
		return nil, fmt.Errorf("fetch %s: %w", target, err)
	}
	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		resp.Body.Close()
		cancel()
		return nil, &StatusError{URL: target, StatusCode: resp.StatusCode}
	}

	return &limitedBody{Reader: io.LimitReader(resp.Body, maxBodyBytes), body: resp.Body, cancel: cancel}, nil
}

type limitedBody struct {
	io.Reader
	body   io.Closer
	cancel context.CancelFunc
}

func (b *limitedBody) Close() error {
	err := b.body.Close()
	b.cancel()
	return err
}

func (r *Resolver) client() *http.Client {
	if r.Client == nil {
		return http.DefaultClient
	}
	return r.Client
}

func (r *Resolver) timeout() time.Duration {
	if r.Timeout <= 0 {
		return DefaultTimeout
	}
	return r.Timeout
}

func (r *Resolver) youtubeEndpoint() string {
	if r.YouTubeEndpoint == "" {
		return YouTubeOEmbedEndpoint
	}
	return r.YouTubeEndpoint
}

func (r *Resolver) spotifyEndpoint() string {
	if r.SpotifyEndpoint == "" {
		return SpotifyOEmbedEndpoint
	}
	return r.SpotifyEndpoint
}

func metaContent(doc *goquery.Document, attr, key string) string {
	content, _ := doc.Find(fmt.Sprintf(`meta[%s="%s"]`, attr, key)).First().Attr("content")
	return strings.TrimSpace(content)
}

func titleText(doc *goquery.Document) string {
	return strings.TrimSpace(doc.Find("title").First().Text())
}

// pickTitle returns the first non-empty candidate capped at maxTitleLength,
// or literal when every candidate is empty.
func pickTitle(literal string, candidates ...string) string {
	if title := truncate(firstNonEmpty(candidates...), maxTitleLength); title != "" {
		return title
	}
	return literal
}

func firstNonEmpty(values ...string) string {
	for _, v := range values {
		if v = strings.TrimSpace(v); v != "" {
			return v
		}
	}
	return ""
}

// truncate caps s at n runes and trims what remains.
func truncate(s string, n int) string {
	s = strings.TrimSpace(s)
	if utf8.RuneCountInString(s) <= n {
		return s
	}
	runes := []rune(s)
	return strings.TrimSpace(string(runes[:n]))
}

// absoluteURL resolves ref against page. Empty or unparseable references yield nil.
func absoluteURL(page *url.URL, ref string) *string {
	ref = strings.TrimSpace(ref)
	if ref == "" {
		return nil
	}
	parsed, err := url.Parse(ref)
	if err != nil {
		return nil
	}
	resolved := page.ResolveReference(parsed)
	if !resolved.IsAbs() || resolved.Host == "" {
		return nil
	}
	abs := resolved.String()
	return &abs
}
