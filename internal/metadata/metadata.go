package metadata

import (
	"context"

	"github.com/moolinks/backend/internal/linkurl"
	"github.com/moolinks/backend/internal/logging"
)

// degradedTitle is used when not even a hostname can be derived from the URL.
const degradedTitle = "Link"

// Result is the display metadata of a link. ThumbnailURL is nil or an absolute URL.
type Result struct {
	Title        string  `json:"title"`
	ThumbnailURL *string `json:"thumbnail_url"`
}

// Provider returns metadata for the supplied canonical URL.
type Provider interface {
	Lookup(ctx context.Context, url string) (Result, error)
}

// ProviderFunc adapts a function to the Provider interface.
type ProviderFunc func(ctx context.Context, url string) (Result, error)

// Lookup implements Provider.
func (f ProviderFunc) Lookup(ctx context.Context, url string) (Result, error) {
	return f(ctx, url)
}

// Degraded is the result used when no richer strategy succeeded: the
// hostname as title and no thumbnail.
func Degraded(rawURL string) Result {
	title := linkurl.Hostname(rawURL)
	if title == "" {
		title = degradedTitle
	}
	return Result{Title: title}
}

// Resolve looks up metadata through p and never fails: any lookup error,
// including a missing provider, yields Degraded(url).
func Resolve(ctx context.Context, p Provider, url string) Result {
	if p == nil {
		return Degraded(url)
	}
	result, err := p.Lookup(ctx, url)
	if err != nil {
		logging.FromContext(ctx).Warn("metadata lookup failed, using hostname", "url", url, "error", err)
		return Degraded(url)
	}
	return result
}
