package scraper

import (
	"context"
	"fmt"
	"io"
	"net/http"
)

const maxBodyBytes = 5 * 1024 * 1024

// HTTPRenderer fetches raw HTML with a plain HTTP GET.
type HTTPRenderer struct {
	client *http.Client
}

// NewHTTPRenderer uses client, or http.DefaultClient when nil.
// Timeouts come from the request context.
func NewHTTPRenderer(client *http.Client) *HTTPRenderer {
	if client == nil {
		client = http.DefaultClient
	}
	return &HTTPRenderer{client: client}
}

func (r *HTTPRenderer) Render(ctx context.Context, url string) (string, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, url, nil)
	if err != nil {
		return "", fmt.Errorf("create request: %w", err)
	}
	req.Header.Set("User-Agent", UserAgent)
	req.Header.Set("Accept", "text/html,application/xhtml+xml,application/xml;q=0.9,*/*;q=0.8")
	req.Header.Set("Accept-Language", "en-US,en;q=0.9,ko;q=0.8")

	resp, err := r.client.Do(req)
	if err != nil {
		return "", fmt.Errorf("fetch: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		return "", fmt.Errorf("HTTP %d: %s", resp.StatusCode, resp.Status)
	}

	body, err := io.ReadAll(io.LimitReader(resp.Body, maxBodyBytes))
	if err != nil {
		return "", fmt.Errorf("read body: %w", err)
	}
	return string(body), nil
}
