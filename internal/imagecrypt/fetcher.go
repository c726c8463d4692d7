package imagecrypt

import (
	"context"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"net/url"
	"time"

	"github.com/starford/evolve/internal/apperr"
)

// MaxBlobSize caps how many bytes are read from one encrypted blob.
const MaxBlobSize = 10 << 20

// Fetcher retrieves an encrypted blob.
type Fetcher interface {
	Fetch(ctx context.Context, url string) ([]byte, error)
}

// HTTPFetcher fetches blobs over HTTP(S).
type HTTPFetcher struct {
	Client *http.Client
}

// NewHTTPFetcher returns an HTTPFetcher with the given request timeout.
func NewHTTPFetcher(timeout time.Duration) *HTTPFetcher {
	return &HTTPFetcher{Client: &http.Client{Timeout: timeout}}
}

// Fetch GETs rawURL and returns the body. Any transport failure or non-2xx
// status is reported as apperr.ErrFetch.
func (f *HTTPFetcher) Fetch(ctx context.Context, rawURL string) ([]byte, error) {
	u, err := url.Parse(rawURL)
	if err != nil {
		return nil, fmt.Errorf("%w: invalid url: %v", apperr.ErrFetch, err)
	}
	if u.Scheme != "http" && u.Scheme != "https" {
		return nil, fmt.Errorf("%w: unsupported scheme %q", apperr.ErrFetch, u.Scheme)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, rawURL, nil)
	if err != nil {
		return nil, fmt.Errorf("%w: %v", apperr.ErrFetch, err)
	}
	resp, err := f.Client.Do(req)
	if err != nil {
		return nil, fmt.Errorf("%w: %v", apperr.ErrFetch, err)
	}
	defer resp.Body.Close()

	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		slog.Debug("blob fetch rejected",
			slog.String("url", u.Scheme+"://"+u.Host+u.Path),
			slog.Int("status", resp.StatusCode))
		return nil, fmt.Errorf("%w: HTTP %s", apperr.ErrFetch, resp.Status)
	}

	data, err := io.ReadAll(io.LimitReader(resp.Body, MaxBlobSize+1))
	if err != nil {
		return nil, fmt.Errorf("%w: read body: %v", apperr.ErrFetch, err)
	}
	if len(data) > MaxBlobSize {
		return nil, fmt.Errorf("%w: blob exceeds %d bytes", apperr.ErrFetch, MaxBlobSize)
	}
	return data, nil
}
