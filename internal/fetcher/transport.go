package fetcher

import (
	"context"
	"strings"

	"golang.org/x/text/encoding/unicode"
)

// Response is the raw result of a single GET.
type Response struct {
	StatusCode int
	Body       []byte
}

// Transport issues one GET request. Non-2xx statuses are returned as
// responses; only transport-level failures are errors.
type Transport interface {
	Get(ctx context.Context, url string) (Response, error)
}

// TransportFunc adapts a function to the Transport interface.
type TransportFunc func(ctx context.Context, url string) (Response, error)

// Get calls f.
func (f TransportFunc) Get(ctx context.Context, url string) (Response, error) {
	return f(ctx, url)
}

// decodeLossy converts body to a UTF-8 string, replacing invalid sequences
// with U+FFFD instead of failing.
func decodeLossy(body []byte) string {
	decoded, err := unicode.UTF8.NewDecoder().Bytes(body)
	if err != nil {
		return strings.ToValidUTF8(string(body), "\uFFFD")
	}
	return string(decoded)
}
