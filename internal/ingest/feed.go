package ingest

import (
	"context"
	"net/url"
	"path"
	"strings"
	"time"

	"github.com/mmcdole/gofeed"
	"go.uber.org/zap"
)

const maxPerFeed = 200

// FeedItem is one article announced by a site feed.
type FeedItem struct {
	URL        string
	Slug       string
	Title      string
	Summary    string
	Categories []string
	Updated    time.Time
	Source     string
}

// FeedConfig is a single feed to index.
type FeedConfig struct {
	URL  string
	Name string
}

// FeedParser reads RSS/Atom feeds of the site.
type FeedParser struct {
	feeds  []FeedConfig
	parser *gofeed.Parser
	log    *zap.SugaredLogger
}

// NewFeedParser creates a FeedParser.
func NewFeedParser(feeds []FeedConfig, log *zap.SugaredLogger) *FeedParser {
	return &FeedParser{feeds: feeds, parser: gofeed.NewParser(), log: log}
}

// ParseAll parses every configured feed. A broken feed is logged and skipped.
// Items are deduplicated by slug; the first occurrence wins.
func (fp *FeedParser) ParseAll(ctx context.Context) []FeedItem {
	seen := make(map[string]bool)
	var all []FeedItem

	for _, fc := range fp.feeds {
		name := fc.Name
		if name == "" {
			name = extractSourceName(fc.URL)
		}

		feed, err := fp.parser.ParseURLWithContext(fc.URL, ctx)
		if err != nil {
			fp.log.Warnw("failed to parse feed", "url", fc.URL, "error", err)
			continue
		}

		count := 0
		for _, item := range feed.Items {
			if count >= maxPerFeed {
				break
			}
			fi := parseItem(item, name)
			if fi == nil || seen[fi.Slug] {
				continue
			}
			seen[fi.Slug] = true
			all = append(all, *fi)
			count++
		}
		fp.log.Infow("parsed feed", "source", name, "items", count)
	}
	return all
}

func parseItem(item *gofeed.Item, source string) *FeedItem {
	itemURL := item.Link
	if itemURL == "" {
		itemURL = item.GUID
	}
	slug := SlugFromURL(itemURL)
	title := strings.TrimSpace(item.Title)
	if slug == "" || title == "" {
		return nil
	}

	var updated time.Time
	if item.UpdatedParsed != nil {
		updated = *item.UpdatedParsed
	} else if item.PublishedParsed != nil {
		updated = *item.PublishedParsed
	}

	summary := item.Description
	if summary == "" {
		summary = item.Content
	}

	return &FeedItem{
		URL:        itemURL,
		Slug:       slug,
		Title:      title,
		Summary:    strings.TrimSpace(summary),
		Categories: item.Categories,
		Updated:    updated,
		Source:     source,
	}
}

// SlugFromURL returns the last non-empty path segment of an article URL.
func SlugFromURL(raw string) string {
	u, err := url.Parse(strings.TrimSpace(raw))
	if err != nil {
		return ""
	}
	p := strings.TrimSuffix(u.Path, "/")
	if p == "" {
		return ""
	}
	slug := path.Base(p)
	slug = strings.TrimSuffix(slug, path.Ext(slug))
	if slug == "." || slug == "/" {
		return ""
	}
	return slug
}

func extractSourceName(feedURL string) string {
	u, err := url.Parse(feedURL)
	if err != nil || u.Hostname() == "" {
		return feedURL
	}
	host := strings.ToLower(u.Hostname())

	for _, prefix := range []string{"www.", "blog.", "feeds."} {
		host = strings.TrimPrefix(host, prefix)
	}

	parts := strings.Split(host, ".")
	if len(parts) >= 2 {
		return parts[len(parts)-2]
	}
	return host
}
