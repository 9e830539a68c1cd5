package ingest

import (
	"bytes"
	"context"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strings"
	"time"

	readability "github.com/go-shiori/go-readability"
)

const excerptRunes = 160

// Page is a fetched article page.
type Page struct {
	URL  string
	HTML []byte
	Text string
}

// Fetcher downloads article pages and extracts their readable text.
type Fetcher struct {
	client *http.Client
}

// NewFetcher creates a Fetcher with the given per-request timeout.
func NewFetcher(timeout time.Duration) *Fetcher {
	if timeout == 0 {
		timeout = 15 * time.Second
	}
	return &Fetcher{
		client: &http.Client{
			Timeout: timeout,
			CheckRedirect: func(req *http.Request, via []*http.Request) error {
				if len(via) >= 10 {
					return http.ErrUseLastResponse
				}
				return nil
			},
		},
	}
}

// Fetch downloads a page. HTTP status >= 400 is an error. Readability
// failures are not: the page is returned with empty Text.
func (f *Fetcher) Fetch(ctx context.Context, pageURL string) (*Page, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, pageURL, nil)
	if err != nil {
		return nil, err
	}
	req.Header.Set("User-Agent", "siteassist/1.0 (site indexer)")

	resp, err := f.client.Do(req)
	if err != nil {
		return nil, err
	}
	defer resp.Body.Close()

	if resp.StatusCode >= 400 {
		return nil, fmt.Errorf("fetching %s: %s", pageURL, http.StatusText(resp.StatusCode))
	}

	body, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, err
	}

	page := &Page{URL: pageURL, HTML: body}
	parsedURL, _ := url.Parse(pageURL)
	article, err := readability.FromReader(bytes.NewReader(body), parsedURL)
	if err == nil {
		page.Text = strings.Join(strings.Fields(article.TextContent), " ")
	}
	return page, nil
}

// Excerpt shortens text to a search excerpt on a rune boundary.
func Excerpt(text string) string {
	text = strings.Join(strings.Fields(text), " ")
	runes := []rune(text)
	if len(runes) <= excerptRunes {
		return text
	}
	return strings.TrimSpace(string(runes[:excerptRunes])) + "…"
}
