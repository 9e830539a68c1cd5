package ingest

import (
	"context"
	"fmt"
	"net/http"
	"net/http/httptest"
	"os"
	"path/filepath"
	"strings"
	"sync/atomic"
	"testing"
	"time"

	"github.com/TobiSchelling/siteassist/internal/database"
	"github.com/TobiSchelling/siteassist/internal/logger"
)

func openTestDB(t *testing.T) *database.DB {
	t.Helper()
	db, err := database.Open(filepath.Join(t.TempDir(), "test.db"))
	if err != nil {
		t.Fatalf("failed to open test db: %v", err)
	}
	t.Cleanup(func() { db.Close() })
	return db
}

const feedTemplate = `<?xml version="1.0" encoding="UTF-8"?>
<rss version="2.0">
<channel>
  <title>Nursing Aide Notes</title>
  <link>%[1]s</link>
  <description>test</description>
  <item>
    <title>夜勤の始め方</title>
    <link>%[1]s/posts/a</link>
    <description>&lt;p&gt;夜勤の&lt;b&gt;シフト&lt;/b&gt;について&lt;/p&gt;</description>
    <category>シフト</category>
    <category>Night</category>
    <pubDate>Mon, 01 Jan 2024 09:00:00 GMT</pubDate>
  </item>
  <item>
    <title>資格ガイド</title>
    <link>%[1]s/posts/b/</link>
    <category>資格</category>
    <pubDate>Tue, 02 Jan 2024 09:00:00 GMT</pubDate>
  </item>
  <item>
    <title>はじめての方へ</title>
    <link>%[1]s/posts/c</link>
    <description>入門ガイド</description>
    <pubDate>Wed, 03 Jan 2024 09:00:00 GMT</pubDate>
  </item>
</channel>
</rss>`

func page(nav, body string) string {
	return `<html><head><title>t</title></head><body><nav>` + nav + `</nav><article><h1>Heading</h1><p>` +
		strings.Repeat("本文のテキストです。", 30) + `</p>` + body + `</article></body></html>`
}

func newSite(t *testing.T) *httptest.Server {
	t.Helper()
	var srv *httptest.Server
	mux := http.NewServeMux()
	mux.HandleFunc("/feed.xml", func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "application/rss+xml")
		fmt.Fprintf(w, feedTemplate, srv.URL)
	})
	mux.HandleFunc("/posts/a", func(w http.ResponseWriter, r *http.Request) {
		fmt.Fprint(w, page(`<a href="/posts/c">c</a>`, `<a href="/posts/b/">b</a><a href="/posts/c#top">c</a><a href="/posts/c?ref=a">c again</a>`))
	})
	mux.HandleFunc("/posts/b/", func(w http.ResponseWriter, r *http.Request) {
		fmt.Fprint(w, page("", `<a href="`+srv.URL+`/posts/c/">c</a><a href="/posts/b">self</a><a href="https://elsewhere.example/x">out</a>`))
	})
	mux.HandleFunc("/posts/c", func(w http.ResponseWriter, r *http.Request) {
		fmt.Fprint(w, page(`<a href="/posts/a">a</a>`, ""))
	})
	srv = httptest.NewServer(mux)
	t.Cleanup(srv.Close)
	return srv
}

func TestIndexerRun(t *testing.T) {
	srv := newSite(t)
	db := openTestDB(t)
	ctx := context.Background()

	ix := NewIndexer(db, []FeedConfig{{URL: srv.URL + "/feed.xml", Name: "notes"}}, []string{"c"}, 5*time.Second, logger.Nop())
	result := ix.Run(ctx)
	if err := result.Err(); err != nil {
		t.Fatalf("indexing failed: %v", err)
	}
	if result.Indexed != 3 {
		t.Fatalf("expected 3 indexed, got %d", result.Indexed)
	}
	if len(result.Steps) != 4 {
		t.Errorf("expected 4 steps, got %d", len(result.Steps))
	}

	want := map[string]int{"a": 0, "b": 1, "c": 2}
	for slug, backlinks := range want {
		a, err := db.GetArticleBySlug(ctx, slug)
		if err != nil || a == nil {
			t.Fatalf("article %s missing: %v", slug, err)
		}
		if a.BacklinkCount != backlinks {
			t.Errorf("%s: expected %d backlinks, got %d", slug, backlinks, a.BacklinkCount)
		}
		if a.Featured != (slug == "c") {
			t.Errorf("%s: unexpected featured=%v", slug, a.Featured)
		}
	}

	a, _ := db.GetArticleBySlug(ctx, "a")
	if a.Excerpt == nil || *a.Excerpt != "夜勤のシフトについて" {
		t.Errorf("expected markup stripped from excerpt, got %v", a.Excerpt)
	}
	if len(a.Keywords) != 2 || a.Keywords[1] != "night" {
		t.Errorf("expected lowercased category keywords, got %v", a.Keywords)
	}
	if a.Tags[1] != "Night" {
		t.Errorf("expected tags kept as published, got %v", a.Tags)
	}
	if !a.UpdatedAt.Equal(time.Date(2024, 1, 1, 9, 0, 0, 0, time.UTC)) {
		t.Errorf("expected feed date, got %v", a.UpdatedAt)
	}

	latest, err := db.LatestFeaturedArticle(ctx)
	if err != nil || latest == nil || latest.Slug != "c" {
		t.Errorf("expected c as featured fallback, got %+v (%v)", latest, err)
	}
}

func TestIndexerStopsWithoutItems(t *testing.T) {
	srv := httptest.NewServer(http.NotFoundHandler())
	defer srv.Close()

	ix := NewIndexer(openTestDB(t), []FeedConfig{{URL: srv.URL + "/feed.xml"}}, nil, time.Second, logger.Nop())
	result := ix.Run(context.Background())
	if result.Err() == nil {
		t.Fatal("expected an error with no feed items")
	}
	if len(result.Steps) != 1 || result.Indexed != 0 {
		t.Errorf("expected the run to stop after collect, got %+v", result)
	}
}

func TestFetchSkipsFailedHost(t *testing.T) {
	var hits atomic.Int32
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		hits.Add(1)
		http.Error(w, "gone", http.StatusGone)
	}))
	defer srv.Close()

	ix := NewIndexer(nil, nil, nil, time.Second, logger.Nop())
	items := []FeedItem{{URL: srv.URL + "/posts/x", Slug: "x"}, {URL: srv.URL + "/posts/y", Slug: "y"}}
	pages, step := ix.fetchPages(context.Background(), items)
	if len(pages) != 0 || hits.Load() != 1 {
		t.Errorf("expected one request and no pages, got %d pages after %d requests", len(pages), hits.Load())
	}
	if step.Summary != "Fetched 0 pages, 2 failed" {
		t.Errorf("unexpected summary %q", step.Summary)
	}
}

func TestImportFile(t *testing.T) {
	db := openTestDB(t)
	ctx := context.Background()
	path := filepath.Join(t.TempDir(), "articles.yaml")
	data := `
- url: https://example.com/posts/night-shift
  title: 夜勤の始め方
  excerpt: 夜勤シフトの基本
  keywords: [シフト, 夜勤]
  tags: [work]
  featured: true
  backlink_count: 4
  updated_at: 2024-01-05T10:00:00Z
- slug: license
  url: https://example.com/license
  title: 資格ガイド
- url: https://example.com/
  title: no slug
- slug: untitled
`
	if err := os.WriteFile(path, []byte(data), 0o644); err != nil {
		t.Fatal(err)
	}

	result, err := ImportFile(ctx, db, path)
	if err != nil {
		t.Fatalf("ImportFile failed: %v", err)
	}
	if result.Imported != 2 || result.Skipped != 2 {
		t.Errorf("expected 2 imported and 2 skipped, got %+v", result)
	}

	a, err := db.GetArticleBySlug(ctx, "night-shift")
	if err != nil || a == nil {
		t.Fatalf("expected slug derived from url: %v", err)
	}
	if !a.Featured || a.BacklinkCount != 4 || a.Excerpt == nil || len(a.Keywords) != 2 {
		t.Errorf("unexpected article %+v", a)
	}

	// Re-importing replaces by slug.
	if _, err := ImportFile(ctx, db, path); err != nil {
		t.Fatal(err)
	}
	all, err := db.ListArticles(ctx)
	if err != nil {
		t.Fatal(err)
	}
	if len(all) != 2 {
		t.Errorf("expected 2 articles after re-import, got %d", len(all))
	}
}

func TestSlugFromURL(t *testing.T) {
	tests := map[string]string{
		"https://example.com/posts/night-shift":   "night-shift",
		"https://example.com/posts/night-shift/":  "night-shift",
		"https://example.com/posts/page.html?x=1": "page",
		"https://example.com/":                    "",
		"https://example.com":                     "",
		"/relative/slug":                          "slug",
	}
	for in, want := range tests {
		if got := SlugFromURL(in); got != want {
			t.Errorf("SlugFromURL(%q) = %q, want %q", in, got, want)
		}
	}
}

func TestCountBacklinks(t *testing.T) {
	targets := map[string]string{
		"https://example.com/a": "a",
		"https://example.com/b": "b",
	}
	pages := []Page{
		{URL: "https://example.com/a", HTML: []byte(`<main><a href="b">b</a><a href="/b/">b</a><a href="/a">self</a></main>`)},
		{URL: "https://example.com/x", HTML: []byte(`<p><a href="https://EXAMPLE.com/b">b</a><a href="/a#h">a</a></p>`)},
	}
	got := CountBacklinks(pages, targets)
	if got["a"] != 1 || got["b"] != 2 {
		t.Errorf("expected a=1 b=2, got %v", got)
	}
}

func TestPlainTextAndExcerpt(t *testing.T) {
	if got := PlainText("<p>Hello <b>world</b> &amp; more</p>"); got != "Hello world & more" {
		t.Errorf("unexpected plain text %q", got)
	}
	if got := PlainText("  plain   text "); got != "plain text" {
		t.Errorf("unexpected plain text %q", got)
	}

	long := strings.Repeat("あ", 200)
	got := Excerpt(long)
	if n := len([]rune(got)); n != excerptRunes+1 || !strings.HasSuffix(got, "…") {
		t.Errorf("expected %d runes with ellipsis, got %d", excerptRunes+1, n)
	}
}
