// Package search implements the rule-based article retrieval used by the
// site assistant: synonym expansion, weighted substring scoring over the
// article index, a featured-article fallback, and the miss log that feeds
// new synonym rules.
package search

import (
	"context"
	"math"
	"sort"
	"strings"
	"time"

	"go.uber.org/zap"

	"github.com/TobiSchelling/siteassist/internal/apperr"
	"github.com/TobiSchelling/siteassist/internal/database"
)

// Scoring weights per expansion term.
const (
	titleWeight   = 10.0
	keywordWeight = 5.0
	excerptWeight = 2.0
	featuredBoost = 1.5
)

// DefaultLimit is the number of results returned when the caller gives none.
const DefaultLimit = 3

// ArticleIndex is the read side of the article index.
type ArticleIndex interface {
	ListArticles(ctx context.Context) ([]database.Article, error)
	LatestFeaturedArticle(ctx context.Context) (*database.Article, error)
}

// RuleSet supplies the synonym rules consulted at query time.
type RuleSet interface {
	EnabledSynonymRules(ctx context.Context) ([]database.SynonymRule, error)
}

// MissStore persists queries that found nothing.
type MissStore interface {
	RecordMiss(ctx context.Context, query, normalized string, at time.Time) error
}

// Hit is one returned article with its score. A fallback hit carries no score.
type Hit struct {
	Article  database.Article
	Score    float64
	Fallback bool
}

// Result is the outcome of one search.
type Result struct {
	Query    string
	Terms    []string
	Hits     []Hit
	Fallback bool
}

// Ranked reports whether the search produced at least one scored match.
// Callers use it to decide whether to log a miss.
func (r *Result) Ranked() bool {
	return len(r.Hits) > 0 && !r.Fallback
}

// Engine answers free-text queries against the article index.
type Engine struct {
	index        ArticleIndex
	rules        RuleSet
	misses       MissStore
	log          *zap.SugaredLogger
	defaultLimit int
	maxLimit     int
	now          func() time.Time
}

// Option configures an Engine.
type Option func(*Engine)

// WithLimits overrides the default and maximum result counts.
func WithLimits(defaultLimit, maxLimit int) Option {
	return func(e *Engine) {
		if defaultLimit > 0 {
			e.defaultLimit = defaultLimit
		}
		if maxLimit >= e.defaultLimit {
			e.maxLimit = maxLimit
		}
	}
}

// WithClock replaces time.Now for miss timestamps.
func WithClock(now func() time.Time) Option {
	return func(e *Engine) { e.now = now }
}

// NewEngine creates a search engine. Any of the stores may be the same *database.DB.
func NewEngine(index ArticleIndex, rules RuleSet, misses MissStore, log *zap.SugaredLogger, opts ...Option) *Engine {
	e := &Engine{
		index:        index,
		rules:        rules,
		misses:       misses,
		log:          log,
		defaultLimit: DefaultLimit,
		maxLimit:     20,
		now:          time.Now,
	}
	for _, opt := range opts {
		opt(e)
	}
	return e
}

// Normalize trims and lowercases a raw query.
func Normalize(query string) string {
	return strings.ToLower(strings.TrimSpace(query))
}

// Search scores every indexed article against the expanded query and returns
// the top matches. With no match it returns the newest featured article, if any.
// An empty query returns an empty result without touching the stores.
func (e *Engine) Search(ctx context.Context, query string, limit int) (*Result, error) {
	normalized := Normalize(query)
	res := &Result{Query: normalized}
	if normalized == "" {
		return res, nil
	}

	rules, err := e.rules.EnabledSynonymRules(ctx)
	if err != nil {
		e.log.Warnw("loading synonym rules failed", "error", err)
		return nil, apperr.Store("loading synonym rules", err)
	}
	res.Terms = Expand(normalized, rules)

	articles, err := e.index.ListArticles(ctx)
	if err != nil {
		e.log.Warnw("loading article index failed", "error", err)
		return nil, apperr.Store("loading article index", err)
	}

	res.Hits = Rank(articles, res.Terms, e.clampLimit(limit))
	if len(res.Hits) > 0 {
		e.log.Debugw("search ranked", "query", normalized, "terms", len(res.Terms), "hits", len(res.Hits))
		return res, nil
	}

	featured, err := e.index.LatestFeaturedArticle(ctx)
	if err != nil {
		e.log.Warnw("loading featured fallback failed", "error", err)
		return nil, apperr.Store("loading featured article", err)
	}
	if featured != nil {
		res.Hits = []Hit{{Article: *featured, Fallback: true}}
		res.Fallback = true
	}
	e.log.Debugw("search fell back", "query", normalized, "featured", featured != nil)
	return res, nil
}

// RecordMiss logs a query that produced no ranked results. Repeated misses
// for the same normalized text increment one row.
func (e *Engine) RecordMiss(ctx context.Context, query string) error {
	normalized := Normalize(query)
	if normalized == "" {
		return apperr.Validation("query is empty")
	}
	if err := e.misses.RecordMiss(ctx, query, normalized, e.now()); err != nil {
		e.log.Warnw("recording search miss failed", "query", normalized, "error", err)
		return apperr.Store("recording search miss", err)
	}
	return nil
}

func (e *Engine) clampLimit(limit int) int {
	if limit <= 0 {
		return e.defaultLimit
	}
	if limit > e.maxLimit {
		return e.maxLimit
	}
	return limit
}

// Expand returns the normalized query followed by the additions of every
// enabled rule whose trigger occurs in it. Duplicates are dropped.
func Expand(normalized string, rules []database.SynonymRule) []string {
	terms := []string{normalized}
	seen := map[string]struct{}{normalized: {}}

	for _, r := range rules {
		trigger := strings.ToLower(r.Trigger)
		if !r.Enabled || trigger == "" || !strings.Contains(normalized, trigger) {
			continue
		}
		for _, add := range r.Adds {
			w := strings.ToLower(strings.TrimSpace(add))
			if w == "" {
				continue
			}
			if _, ok := seen[w]; ok {
				continue
			}
			seen[w] = struct{}{}
			terms = append(terms, w)
		}
	}
	return terms
}

// BaseScore sums the title, keyword, and excerpt signals of every term and
// applies the featured multiplier.
func BaseScore(a database.Article, terms []string) float64 {
	title := strings.ToLower(a.Title)
	excerpt := ""
	if a.Excerpt != nil {
		excerpt = strings.ToLower(*a.Excerpt)
	}
	keywords := make(map[string]struct{}, len(a.Keywords))
	for _, k := range a.Keywords {
		keywords[strings.ToLower(k)] = struct{}{}
	}

	var score float64
	for _, term := range terms {
		if strings.Contains(title, term) {
			score += titleWeight
		}
		if _, ok := keywords[term]; ok {
			score += keywordWeight
		}
		if excerpt != "" && strings.Contains(excerpt, term) {
			score += excerptWeight
		}
	}

	if a.Featured {
		score *= featuredBoost
	}
	return score
}

// Popularity is the backlink adjustment, ln(1 + backlinks).
func Popularity(backlinks int) float64 {
	if backlinks <= 0 {
		return 0
	}
	return math.Log1p(float64(backlinks))
}

// Rank scores articles, keeps those with a positive base score, and returns
// the best limit of them. Equal scores keep index order.
func Rank(articles []database.Article, terms []string, limit int) []Hit {
	var hits []Hit
	for _, a := range articles {
		base := BaseScore(a, terms)
		if base <= 0 {
			continue
		}
		hits = append(hits, Hit{Article: a, Score: base + Popularity(a.BacklinkCount)})
	}

	sort.SliceStable(hits, func(i, j int) bool { return hits[i].Score > hits[j].Score })

	if limit > 0 && len(hits) > limit {
		hits = hits[:limit]
	}
	return hits
}
