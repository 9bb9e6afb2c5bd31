package metadata

import (
	"errors"
	"fmt"
)

var (
	// ErrProviderUnavailable indicates the metadata provider is not configured.
	ErrProviderUnavailable = errors.New("metadata provider unavailable")
	// ErrInvalidURL indicates the URL has no host to fetch from.
	ErrInvalidURL = errors.New("metadata: invalid url")
)

// StatusError reports a non-success HTTP status from an upstream fetch.
type StatusError struct {
	URL        string
	StatusCode int
}

func (e *StatusError) Error() string {
	return fmt.Sprintf("fetch %s: unexpected status %d", e.URL, e.StatusCode)
}
