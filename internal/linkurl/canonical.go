// Package linkurl turns pasted text into a single canonical link URL and
// classifies links by hosting provider.
//
// Everything here is pure: no I/O, no configuration, no errors. The same
// Canonicalize is used before metadata lookups and before links are persisted.
package linkurl

import (
	"net/url"
	"strings"
)

const (
	httpPrefix  = "http://"
	httpsPrefix = "https://"

	watchURLPrefix = "https://www.youtube.com/watch?v="
	shortsMarker   = "/shorts/"
)

var youtubeHosts = map[string]struct{}{
	"youtube.com":     {},
	"www.youtube.com": {},
	"m.youtube.com":   {},
}

const youtubeShortHost = "youtu.be"

// Canonicalize extracts exactly one URL from raw pasted text and rewrites
// known short-video forms to the long "watch" form.
//
// Only the first line is considered. A clipboard holding the same URL twice
// without a separator yields the first copy. Input that cannot be repaired is
// returned as its trimmed first line; whitespace-only input yields "".
func Canonicalize(raw string) string {
	line := FirstLine(raw)
	if line == "" {
		return ""
	}
	return rewrite(SingleURL(line))
}

// FirstLine returns the first CR/LF-delimited line of raw, trimmed.
func FirstLine(raw string) string {
	trimmed := strings.TrimSpace(raw)
	if i := strings.IndexAny(trimmed, "\r\n"); i >= 0 {
		trimmed = trimmed[:i]
	}
	return strings.TrimSpace(trimmed)
}

// SingleURL isolates the first URL of a line that may hold several URLs
// pasted back to back. The line is returned unchanged when it is already a
// single URL or when no repair produces one.
func SingleURL(line string) string {
	if isSingleAbsoluteURL(line) {
		return line
	}

	prefix := schemePrefix(line)
	if prefix == "" {
		return line
	}

	rest := line[len(prefix):]
	next := nextSchemeIndex(rest)
	if next <= 0 {
		return line
	}

	candidate := prefix + rest[:next]
	if !isSingleAbsoluteURL(candidate) {
		return line
	}
	return candidate
}

// IsHTTPURL reports whether s is an absolute http or https URL with a host.
func IsHTTPURL(s string) bool {
	u, err := url.Parse(s)
	if err != nil {
		return false
	}
	return (u.Scheme == "http" || u.Scheme == "https") && u.Host != ""
}

// Hostname returns the lower-cased host of rawURL without port, or "" when
// rawURL does not parse.
func Hostname(rawURL string) string {
	u, err := url.Parse(rawURL)
	if err != nil {
		return ""
	}
	return strings.ToLower(u.Hostname())
}

func rewrite(single string) string {
	u, err := url.Parse(single)
	if err != nil {
		return single
	}

	host := strings.ToLower(u.Hostname())
	var id string
	switch {
	case host == youtubeShortHost && strings.HasPrefix(u.Path, shortsMarker):
		id = pathSegment(strings.TrimPrefix(u.Path, shortsMarker))
	case host == youtubeShortHost && len(u.Path) > 1:
		id = pathSegment(u.Path[1:])
	case isYouTubeHost(host) && strings.HasPrefix(u.Path, shortsMarker):
		id = pathSegment(strings.TrimPrefix(u.Path, shortsMarker))
	default:
		return single
	}

	if id == "" {
		return single
	}
	return watchURLPrefix + id
}

func isYouTubeHost(host string) bool {
	_, ok := youtubeHosts[host]
	return ok
}

// pathSegment cuts s at the first "/" or "?".
func pathSegment(s string) string {
	if i := strings.IndexAny(s, "/?"); i >= 0 {
		return s[:i]
	}
	return s
}

func isSingleAbsoluteURL(s string) bool {
	if s == "" || strings.ContainsAny(s, " \t\r\n") {
		return false
	}
	u, err := url.Parse(s)
	if err != nil || u.Scheme == "" || u.Host == "" {
		return false
	}
	prefix := schemePrefix(s)
	if prefix == "" {
		prefix = u.Scheme + "://"
	}
	if len(prefix) > len(s) {
		return false
	}
	return nextSchemeIndex(s[len(prefix):]) < 0
}

func schemePrefix(s string) string {
	switch {
	case strings.HasPrefix(s, httpsPrefix):
		return httpsPrefix
	case strings.HasPrefix(s, httpPrefix):
		return httpPrefix
	default:
		return ""
	}
}

// nextSchemeIndex returns the index of the first http:// or https:// prefix
// in s that starts another pasted URL, or -1. A prefix that is the value of a
// query parameter (right after "=" past the first "?") belongs to s itself.
func nextSchemeIndex(s string) int {
	query := strings.IndexByte(s, '?')
	for from := 0; from < len(s); {
		i := earliestScheme(s[from:])
		if i < 0 {
			return -1
		}
		i += from
		if query < 0 || i < query || s[i-1] != '=' {
			return i
		}
		from = i + 1
	}
	return -1
}

func earliestScheme(s string) int {
	a := strings.Index(s, httpsPrefix)
	b := strings.Index(s, httpPrefix)
	switch {
	case a < 0:
		return b
	case b < 0:
		return a
	case a < b:
		return a
	default:
		return b
	}
}
