package ingest

import (
	"bytes"
	"net/url"
	"strings"

	"github.com/PuerkitoBio/goquery"
)

// contentSelectors narrow link counting to the article body so site-wide
// navigation does not count as a backlink.
var contentSelectors = []string{"article", "main", "body"}

// CountBacklinks returns, per target slug, the number of distinct other pages
// that link to it. targets maps an article URL to its slug.
func CountBacklinks(pages []Page, targets map[string]string) map[string]int {
	bySlug := make(map[string]int, len(targets))
	index := make(map[string]string, len(targets))
	for rawURL, slug := range targets {
		if key := linkKey(rawURL); key != "" {
			index[key] = slug
		}
		bySlug[slug] = 0
	}

	for _, page := range pages {
		base, err := url.Parse(page.URL)
		if err != nil {
			continue
		}
		self := index[linkKey(page.URL)]

		linked := make(map[string]bool)
		for _, href := range pageLinks(page.HTML) {
			ref, err := url.Parse(strings.TrimSpace(href))
			if err != nil {
				continue
			}
			slug, ok := index[linkKey(base.ResolveReference(ref).String())]
			if !ok || slug == self {
				continue
			}
			linked[slug] = true
		}
		for slug := range linked {
			bySlug[slug]++
		}
	}
	return bySlug
}

func pageLinks(html []byte) []string {
	doc, err := goquery.NewDocumentFromReader(bytes.NewReader(html))
	if err != nil {
		return nil
	}

	scope := doc.Selection
	for _, sel := range contentSelectors {
		if found := doc.Find(sel).First(); found.Length() > 0 {
			scope = found
			break
		}
	}

	var hrefs []string
	scope.Find("a[href]").Each(func(_ int, s *goquery.Selection) {
		if href, ok := s.Attr("href"); ok {
			hrefs = append(hrefs, href)
		}
	})
	return hrefs
}

// linkKey reduces a URL to host and path so fragments, queries and trailing
// slashes do not split one article into several targets.
func linkKey(raw string) string {
	u, err := url.Parse(raw)
	if err != nil || u.Host == "" {
		return ""
	}
	return strings.ToLower(u.Host) + strings.TrimSuffix(u.EscapedPath(), "/")
}

// PlainText strips markup from an HTML fragment.
func PlainText(fragment string) string {
	if !strings.Contains(fragment, "<") && !strings.Contains(fragment, "&") {
		return strings.Join(strings.Fields(fragment), " ")
	}
	doc, err := goquery.NewDocumentFromReader(strings.NewReader(fragment))
	if err != nil {
		return fragment
	}
	return strings.Join(strings.Fields(doc.Text()), " ")
}
