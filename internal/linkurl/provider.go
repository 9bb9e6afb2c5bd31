package linkurl

import "strings"

// Provider identifies the hosting platform of a link and selects the metadata
// strategy used for it.
type Provider string

const (
	ProviderGeneric        Provider = "generic"
	ProviderVideo          Provider = "video"
	ProviderMusicStreaming Provider = "music_streaming"
	ProviderMusicRetail    Provider = "music_retail"
)

var providerDomains = []struct {
	provider Provider
	domains  []string
}{
	{ProviderVideo, []string{"youtube.com", "youtu.be"}},
	{ProviderMusicStreaming, []string{"spotify.com"}},
	{ProviderMusicRetail, []string{"music.apple.com", "apple.co"}},
}

// Classify maps the host of rawURL to a Provider. A host matches a domain
// when it equals it or is a subdomain of it. Unknown or unparseable hosts are
// ProviderGeneric.
func Classify(rawURL string) Provider {
	return ClassifyHost(Hostname(rawURL))
}

// ClassifyHost is Classify for an already extracted hostname.
func ClassifyHost(host string) Provider {
	host = strings.TrimSuffix(strings.ToLower(host), ".")
	if host == "" {
		return ProviderGeneric
	}
	for _, entry := range providerDomains {
		for _, domain := range entry.domains {
			if host == domain || strings.HasSuffix(host, "."+domain) {
				return entry.provider
			}
		}
	}
	return ProviderGeneric
}
