package ingest

import (
	"context"
	"errors"
	"fmt"
	"net/url"
	"strings"
	"time"

	"go.uber.org/zap"

	"github.com/TobiSchelling/siteassist/internal/database"
)

// StepResult holds the result of a single indexing step.
type StepResult struct {
	Name    string
	Summary string
	Err     error
}

// Result holds the results of a full indexing run.
type Result struct {
	Steps   []StepResult
	Indexed int
}

// Err returns the first step error, if any.
func (r *Result) Err() error {
	for _, s := range r.Steps {
		if s.Err != nil {
			return s.Err
		}
	}
	return nil
}

// Indexer rebuilds the article index from the site's own feeds.
type Indexer struct {
	store    Store
	parser   *FeedParser
	fetcher  *Fetcher
	featured map[string]bool
	log      *zap.SugaredLogger
	now      func() time.Time
}

// NewIndexer creates an indexer. featured lists the slugs flagged for the
// zero-hit fallback.
func NewIndexer(store Store, feeds []FeedConfig, featured []string, timeout time.Duration, log *zap.SugaredLogger) *Indexer {
	flags := make(map[string]bool, len(featured))
	for _, slug := range featured {
		flags[strings.TrimSpace(slug)] = true
	}
	return &Indexer{
		store:    store,
		parser:   NewFeedParser(feeds, log),
		fetcher:  NewFetcher(timeout),
		featured: flags,
		log:      log,
		now:      time.Now,
	}
}

// Run executes collect, fetch, link and store. An empty collect stops the run.
func (ix *Indexer) Run(ctx context.Context) *Result {
	r := &Result{}

	ix.log.Info("Step 1/4: Collecting feed items...")
	items := ix.parser.ParseAll(ctx)
	if len(items) == 0 {
		r.Steps = append(r.Steps, StepResult{Name: "Collect", Err: errors.New("no feed items found")})
		return r
	}
	r.Steps = append(r.Steps, StepResult{
		Name:    "Collect",
		Summary: fmt.Sprintf("Found %d articles", len(items)),
	})

	ix.log.Info("Step 2/4: Fetching article pages...")
	pages, step := ix.fetchPages(ctx, items)
	r.Steps = append(r.Steps, step)

	ix.log.Info("Step 3/4: Counting internal links...")
	targets := make(map[string]string, len(items))
	for _, item := range items {
		targets[item.URL] = item.Slug
	}
	backlinks := CountBacklinks(pages, targets)
	linked := 0
	for _, n := range backlinks {
		if n > 0 {
			linked++
		}
	}
	r.Steps = append(r.Steps, StepResult{
		Name:    "Link",
		Summary: fmt.Sprintf("%d articles have backlinks", linked),
	})

	ix.log.Info("Step 4/4: Updating article index...")
	text := make(map[string]string, len(pages))
	for _, p := range pages {
		text[p.URL] = p.Text
	}
	for _, item := range items {
		if err := ctx.Err(); err != nil {
			r.Steps = append(r.Steps, StepResult{Name: "Store", Err: err})
			return r
		}
		a := ix.article(item, text[item.URL], backlinks[item.Slug])
		if _, err := ix.store.UpsertArticle(ctx, a); err != nil {
			r.Steps = append(r.Steps, StepResult{Name: "Store", Err: fmt.Errorf("storing %s: %w", item.Slug, err)})
			return r
		}
		r.Indexed++
	}
	r.Steps = append(r.Steps, StepResult{
		Name:    "Store",
		Summary: fmt.Sprintf("Indexed %d articles", r.Indexed),
	})
	return r
}

// fetchPages downloads every item page. After one failure the rest of that
// host is skipped.
func (ix *Indexer) fetchPages(ctx context.Context, items []FeedItem) ([]Page, StepResult) {
	var pages []Page
	failedHosts := make(map[string]bool)
	failed := 0

	for _, item := range items {
		host := ""
		if u, err := url.Parse(item.URL); err == nil {
			host = strings.ToLower(u.Host)
		}
		if failedHosts[host] {
			failed++
			continue
		}

		page, err := ix.fetcher.Fetch(ctx, item.URL)
		if err != nil {
			failed++
			if host != "" {
				failedHosts[host] = true
			}
			ix.log.Warnw("fetch failed, skipping remaining pages from host", "url", item.URL, "host", host, "error", err)
			continue
		}
		pages = append(pages, *page)
	}

	return pages, StepResult{
		Name:    "Fetch",
		Summary: fmt.Sprintf("Fetched %d pages, %d failed", len(pages), failed),
	}
}

func (ix *Indexer) article(item FeedItem, pageText string, backlinks int) database.Article {
	excerpt := PlainText(item.Summary)
	if excerpt == "" {
		excerpt = pageText
	}

	var keywords []string
	for _, c := range item.Categories {
		if c = strings.TrimSpace(c); c != "" {
			keywords = append(keywords, strings.ToLower(c))
		}
	}

	updated := item.Updated
	if updated.IsZero() {
		updated = ix.now()
	}

	a := database.Article{
		URL:           item.URL,
		Slug:          item.Slug,
		Title:         item.Title,
		Keywords:      keywords,
		Tags:          item.Categories,
		Featured:      ix.featured[item.Slug],
		BacklinkCount: backlinks,
		UpdatedAt:     updated,
	}
	if excerpt != "" {
		e := Excerpt(excerpt)
		a.Excerpt = &e
	}
	return a
}
