package ingest

import (
	"context"
	"fmt"
	"os"
	"strings"
	"time"

	"gopkg.in/yaml.v3"

	"github.com/TobiSchelling/siteassist/internal/database"
)

// Store is the write side of the article index.
type Store interface {
	UpsertArticle(ctx context.Context, a database.Article) (int64, error)
}

// Entry is one article in an import file.
type Entry struct {
	URL           string    `yaml:"url"`
	Slug          string    `yaml:"slug"`
	Title         string    `yaml:"title"`
	Excerpt       string    `yaml:"excerpt"`
	Keywords      []string  `yaml:"keywords"`
	Tags          []string  `yaml:"tags"`
	Featured      bool      `yaml:"featured"`
	BacklinkCount int       `yaml:"backlink_count"`
	UpdatedAt     time.Time `yaml:"updated_at"`
}

// ImportResult summarises an import run.
type ImportResult struct {
	Imported int
	Skipped  int
}

// ImportFile upserts every entry of a YAML article list by slug.
func ImportFile(ctx context.Context, store Store, path string) (*ImportResult, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("reading import file: %w", err)
	}

	var entries []Entry
	if err := yaml.Unmarshal(data, &entries); err != nil {
		return nil, fmt.Errorf("parsing import file: %w", err)
	}
	return Import(ctx, store, entries, time.Now())
}

// Import upserts entries. Entries without a slug or title are skipped.
// Entries without a timestamp are stamped with now.
func Import(ctx context.Context, store Store, entries []Entry, now time.Time) (*ImportResult, error) {
	result := &ImportResult{}
	for _, e := range entries {
		slug := strings.TrimSpace(e.Slug)
		if slug == "" {
			slug = SlugFromURL(e.URL)
		}
		if slug == "" || strings.TrimSpace(e.Title) == "" {
			result.Skipped++
			continue
		}

		updated := e.UpdatedAt
		if updated.IsZero() {
			updated = now
		}
		a := database.Article{
			URL:           e.URL,
			Slug:          slug,
			Title:         strings.TrimSpace(e.Title),
			Keywords:      e.Keywords,
			Tags:          e.Tags,
			Featured:      e.Featured,
			BacklinkCount: e.BacklinkCount,
			UpdatedAt:     updated,
		}
		if excerpt := strings.TrimSpace(e.Excerpt); excerpt != "" {
			a.Excerpt = &excerpt
		}
		if _, err := store.UpsertArticle(ctx, a); err != nil {
			return result, fmt.Errorf("importing %s: %w", slug, err)
		}
		result.Imported++
	}
	return result, nil
}
