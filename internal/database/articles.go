package database

import (
	"context"
	"database/sql"
	"fmt"
	"strings"
	"time"
)

const articleColumns = `id, url, slug, title, excerpt, keywords, tags, featured, backlink_count, updated_at`

// UpsertArticle inserts an article or replaces the one with the same slug.
// Keywords are stored lowercased. Returns the row ID.
func (db *DB) UpsertArticle(ctx context.Context, a Article) (int64, error) {
	if strings.TrimSpace(a.Slug) == "" {
		return 0, fmt.Errorf("article slug is required")
	}
	if a.BacklinkCount < 0 {
		return 0, fmt.Errorf("article %s: negative backlink count", a.Slug)
	}

	keywords := make([]string, 0, len(a.Keywords))
	for _, k := range a.Keywords {
		if k = strings.ToLower(strings.TrimSpace(k)); k != "" {
			keywords = append(keywords, k)
		}
	}
	kwJSON, err := encodeList(keywords)
	if err != nil {
		return 0, err
	}
	tagJSON, err := encodeList(a.Tags)
	if err != nil {
		return 0, err
	}
	updated := a.UpdatedAt
	if updated.IsZero() {
		updated = time.Now()
	}

	var id int64
	err = db.conn.QueryRowContext(ctx,
		`INSERT INTO articles (url, slug, title, excerpt, keywords, tags, featured, backlink_count, updated_at)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?)
		ON CONFLICT(slug) DO UPDATE SET
			url = excluded.url,
			title = excluded.title,
			excerpt = excluded.excerpt,
			keywords = excluded.keywords,
			tags = excluded.tags,
			featured = excluded.featured,
			backlink_count = excluded.backlink_count,
			updated_at = excluded.updated_at
		RETURNING id`,
		a.URL, a.Slug, a.Title, a.Excerpt, kwJSON, tagJSON, boolToInt(a.Featured), a.BacklinkCount, toMillis(updated),
	).Scan(&id)
	if err != nil {
		return 0, fmt.Errorf("upserting article %s: %w", a.Slug, err)
	}
	return id, nil
}

// ListArticles returns the whole index in insertion order.
func (db *DB) ListArticles(ctx context.Context) ([]Article, error) {
	rows, err := db.conn.QueryContext(ctx, `SELECT `+articleColumns+` FROM articles ORDER BY id`)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	return scanArticles(rows)
}

// LatestFeaturedArticle returns the most recently updated featured article, or nil.
func (db *DB) LatestFeaturedArticle(ctx context.Context) (*Article, error) {
	row := db.conn.QueryRowContext(ctx,
		`SELECT `+articleColumns+` FROM articles WHERE featured = 1
		ORDER BY updated_at DESC, id DESC LIMIT 1`,
	)
	a, err := scanArticle(row)
	if err == sql.ErrNoRows {
		return nil, nil
	}
	if err != nil {
		return nil, err
	}
	return a, nil
}

// GetArticleBySlug returns a single article, or nil if the slug is unknown.
func (db *DB) GetArticleBySlug(ctx context.Context, slug string) (*Article, error) {
	row := db.conn.QueryRowContext(ctx, `SELECT `+articleColumns+` FROM articles WHERE slug = ?`, slug)
	a, err := scanArticle(row)
	if err == sql.ErrNoRows {
		return nil, nil
	}
	if err != nil {
		return nil, err
	}
	return a, nil
}

// DeleteArticle removes an article by slug.
func (db *DB) DeleteArticle(ctx context.Context, slug string) error {
	_, err := db.conn.ExecContext(ctx, "DELETE FROM articles WHERE slug = ?", slug)
	return err
}

type rowScanner interface {
	Scan(dest ...any) error
}

func scanArticleRow(s rowScanner) (*Article, error) {
	var a Article
	var kwJSON, tagJSON *string
	var featured int
	var updated int64
	if err := s.Scan(&a.ID, &a.URL, &a.Slug, &a.Title, &a.Excerpt, &kwJSON, &tagJSON,
		&featured, &a.BacklinkCount, &updated); err != nil {
		return nil, err
	}
	a.Keywords = decodeList(kwJSON)
	a.Tags = decodeList(tagJSON)
	a.Featured = featured != 0
	a.UpdatedAt = fromMillis(updated)
	return &a, nil
}

func scanArticles(rows *sql.Rows) ([]Article, error) {
	var articles []Article
	for rows.Next() {
		a, err := scanArticleRow(rows)
		if err != nil {
			return nil, err
		}
		articles = append(articles, *a)
	}
	return articles, rows.Err()
}

func scanArticle(row *sql.Row) (*Article, error) {
	return scanArticleRow(row)
}
