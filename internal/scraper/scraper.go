package scraper

import "context"

// FallbackTitle marks metadata that could not be fetched.
const FallbackTitle = "Unable to fetch title"

// UntitledTitle is used when a page was fetched but carries no title.
const UntitledTitle = "Untitled"

// UserAgent is sent with every fetch; some sites refuse non-browser agents.
const UserAgent = "Mozilla/5.0 (Macintosh; Intel Mac OS X 10_15_7) AppleWebKit/537.36 (KHTML, like Gecko) Chrome/120.0.0.0 Safari/537.36"

// Metadata is the best-effort description of a page.
// Error is set when the fetch failed; the other fields then hold fallbacks.
type Metadata struct {
	Title       string `json:"title"`
	Description string `json:"description"`
	Image       string `json:"image"`
	URL         string `json:"url"`
	Text        string `json:"-"`
	Error       string `json:"error,omitempty"`
}

// OK reports whether the fetch succeeded.
func (m Metadata) OK() bool { return m.Error == "" }

// Fetcher returns metadata for a URL. It never fails; failures are
// reported in Metadata.Error.
type Fetcher interface {
	Fetch(ctx context.Context, url string) Metadata
}

// Renderer loads a page and returns its HTML.
type Renderer interface {
	Render(ctx context.Context, url string) (string, error)
}

// Failed builds the fallback metadata for url.
func Failed(url string, err error) Metadata {
	return Metadata{Title: FallbackTitle, URL: url, Error: err.Error()}
}
