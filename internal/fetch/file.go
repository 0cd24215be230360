package fetch

import (
	"context"
	"errors"
	"io"
	"net/url"
	"os"

	"github.com/labstack/gommon/log"
	"github.com/ndjson-viewer/backend/internal/logging"
)

// FileFetcher reads byte ranges from a local file. Each call opens the file so a
// session holds no descriptor between cycles.
type FileFetcher struct {
	log *log.Logger
}

// NewFileFetcher creates a file-backed fetcher.
func NewFileFetcher(logger *log.Logger) *FileFetcher {
	if logger == nil {
		logger = logging.New("fetch")
	}
	return &FileFetcher{log: logger}
}

// Fetch reads [start, endInclusive] of the file named by resource (file:// URL or path).
// Reading past the end returns the available bytes; starting past the end returns none.
func (f *FileFetcher) Fetch(ctx context.Context, resource string, start, endInclusive int64) ([]byte, error) {
	if err := validateRange(resource, start, endInclusive); err != nil {
		return nil, err
	}
	if err := ctx.Err(); err != nil {
		return nil, &FetchError{Kind: KindTransport, Resource: resource, Start: start, End: endInclusive, Reason: err.Error(), Err: err}
	}

	path := filePath(resource)
	file, err := os.Open(path)
	if err != nil {
		return nil, &FetchError{Kind: KindIO, Resource: resource, Start: start, End: endInclusive, Reason: "opening file", Err: err}
	}
	defer file.Close()

	want := endInclusive - start + 1
	if info, err := file.Stat(); err == nil && start+want > info.Size() {
		want = max(info.Size()-start, 0)
	}
	if want == 0 {
		return []byte{}, nil
	}
	section := io.NewSectionReader(file, start, want)

	buf := make([]byte, want)
	n, err := io.ReadFull(section, buf)
	if err != nil && !errors.Is(err, io.EOF) && !errors.Is(err, io.ErrUnexpectedEOF) {
		return nil, &FetchError{Kind: KindIO, Resource: resource, Start: start, End: endInclusive, Reason: "reading file", Err: err}
	}

	f.log.Debugf("read %s bytes=%d-%d: %d bytes", path, start, endInclusive, n)
	return buf[:n], nil
}

func filePath(resource string) string {
	u, err := url.Parse(resource)
	if err != nil || u.Scheme != "file" {
		return resource
	}
	if u.Path != "" {
		return u.Path
	}
	return u.Opaque
}
