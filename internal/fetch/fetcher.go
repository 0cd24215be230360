// Package fetch issues single byte-range reads against a log resource.
package fetch

import (
	"context"
	"fmt"
	"net/http"
	"net/url"
	"strings"
	"time"

	"github.com/labstack/gommon/log"
)

// RangeFetcher reads bytes [start, endInclusive] of a resource in one round trip.
// Implementations never retry and never cache.
type RangeFetcher interface {
	Fetch(ctx context.Context, resource string, start, endInclusive int64) ([]byte, error)
}

// Options configures the fetchers built by New.
type Options struct {
	Client *http.Client
	Logger *log.Logger
}

// New picks a fetcher for the resource scheme: http(s) URLs get an HTTPFetcher,
// file:// URLs and bare paths a FileFetcher.
func New(resource string, opts Options) (RangeFetcher, error) {
	u, err := url.Parse(resource)
	if err != nil {
		return nil, fmt.Errorf("invalid resource url %q: %w", resource, err)
	}

	switch strings.ToLower(u.Scheme) {
	case "http", "https":
		return NewHTTPFetcher(opts.Client, opts.Logger), nil
	case "file", "":
		return NewFileFetcher(opts.Logger), nil
	default:
		return nil, fmt.Errorf("unsupported resource scheme %q", u.Scheme)
	}
}

// DefaultClient is used when no client is supplied. Deadlines come from the caller's context.
var DefaultClient = &http.Client{
	Transport: &http.Transport{
		Proxy:               http.ProxyFromEnvironment,
		MaxIdleConnsPerHost: 2,
		IdleConnTimeout:     90 * time.Second,
		// Compression would make byte offsets refer to the encoded body.
		DisableCompression: true,
	},
}
