package fetch

import (
	"context"
	"fmt"
	"io"
	"net/http"

	"github.com/labstack/gommon/log"
	"github.com/ndjson-viewer/backend/internal/logging"
)

// HTTPFetcher reads byte ranges with the HTTP Range header.
type HTTPFetcher struct {
	client *http.Client
	log    *log.Logger
}

// NewHTTPFetcher creates a fetcher. A nil client uses DefaultClient.
func NewHTTPFetcher(client *http.Client, logger *log.Logger) *HTTPFetcher {
	if client == nil {
		client = DefaultClient
	}
	if logger == nil {
		logger = logging.New("fetch")
	}
	return &HTTPFetcher{client: client, log: logger}
}

// Fetch requests bytes=start-endInclusive.
//
// 206 is the expected answer. A 200 means the server ignored Range, so the body is
// skipped forward to start. 416 means start is past the end of the resource and yields
// an empty chunk.
func (f *HTTPFetcher) Fetch(ctx context.Context, resource string, start, endInclusive int64) ([]byte, error) {
	if err := validateRange(resource, start, endInclusive); err != nil {
		return nil, err
	}
	want := endInclusive - start + 1

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, resource, nil)
	if err != nil {
		return nil, &FetchError{Kind: KindTransport, Resource: resource, Start: start, End: endInclusive, Reason: "building request", Err: err}
	}
	req.Header.Set("Range", fmt.Sprintf("bytes=%d-%d", start, endInclusive))
	req.Header.Set("Accept-Encoding", "identity")

	resp, err := f.client.Do(req)
	if err != nil {
		return nil, &FetchError{Kind: KindTransport, Resource: resource, Start: start, End: endInclusive, Reason: err.Error(), Err: err}
	}
	defer resp.Body.Close()

	var body io.Reader
	switch resp.StatusCode {
	case http.StatusPartialContent:
		body = io.LimitReader(resp.Body, want)
	case http.StatusOK:
		f.log.Warnf("server ignored Range for %s, skipping %d bytes", resource, start)
		if _, err := io.CopyN(io.Discard, resp.Body, start); err != nil {
			if err == io.EOF {
				return []byte{}, nil
			}
			return nil, &FetchError{Kind: KindIO, Resource: resource, Start: start, End: endInclusive, Reason: "skipping to range start", Err: err}
		}
		body = io.LimitReader(resp.Body, want)
	case http.StatusRequestedRangeNotSatisfiable:
		f.log.Debugf("range %d-%d not satisfiable for %s, treating as end of resource", start, endInclusive, resource)
		return []byte{}, nil
	default:
		return nil, &FetchError{
			Kind:     KindStatus,
			Resource: resource,
			Start:    start,
			End:      endInclusive,
			Status:   resp.StatusCode,
			Reason:   http.StatusText(resp.StatusCode),
		}
	}

	data, err := io.ReadAll(body)
	if err != nil {
		return nil, &FetchError{Kind: KindIO, Resource: resource, Start: start, End: endInclusive, Reason: "reading body", Err: err}
	}

	f.log.Debugf("fetched %s bytes=%d-%d: %d bytes", resource, start, endInclusive, len(data))
	return data, nil
}
