// Package source fetches client records from the record source API.
package source

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"time"

	"github.com/starford/evolve/internal/apperr"
	"github.com/starford/evolve/internal/models"
)

const maxBodySize = 32 << 20

// Client reads the full record list from a URL serving a JSON array.
type Client struct {
	url  string
	http *http.Client
}

// New returns a Client for the given clients URL.
func New(url string, timeout time.Duration) *Client {
	if timeout <= 0 {
		timeout = 10 * time.Second
	}
	return &Client{url: url, http: &http.Client{Timeout: timeout}}
}

// URL returns the clients URL.
func (c *Client) URL() string { return c.url }

// FetchClients returns every record in source order. Transport failures,
// non-2xx responses and undecodable bodies wrap apperr.ErrFetch.
func (c *Client) FetchClients(ctx context.Context) ([]models.Client, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, c.url, nil)
	if err != nil {
		return nil, fmt.Errorf("%w: %v", apperr.ErrFetch, err)
	}
	req.Header.Set("Accept", "application/json")

	resp, err := c.http.Do(req)
	if err != nil {
		return nil, fmt.Errorf("%w: %v", apperr.ErrFetch, err)
	}
	defer resp.Body.Close()

	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		return nil, fmt.Errorf("%w: HTTP %s", apperr.ErrFetch, resp.Status)
	}

	var clients []models.Client
	if err := json.NewDecoder(io.LimitReader(resp.Body, maxBodySize)).Decode(&clients); err != nil {
		return nil, fmt.Errorf("%w: decode: %v", apperr.ErrFetch, err)
	}
	if clients == nil {
		clients = []models.Client{}
	}
	return clients, nil
}

// ReadFile decodes a JSON array of records from r. Used by the import command.
func ReadFile(r io.Reader) ([]models.Client, error) {
	var clients []models.Client
	if err := json.NewDecoder(r).Decode(&clients); err != nil {
		return nil, fmt.Errorf("source: decode records: %w", err)
	}
	return clients, nil
}
