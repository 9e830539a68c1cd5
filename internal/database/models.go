package database

import "time"

// Article is a denormalised, searchable entry of the article index.
type Article struct {
	ID            int64
	URL           string
	Slug          string
	Title         string
	Excerpt       *string
	Keywords      []string
	Tags          []string
	Featured      bool
	BacklinkCount int
	UpdatedAt     time.Time
}

// Synonym rule sources.
const (
	SourceManual = "manual"
	SourceAuto   = "auto"
)

// SynonymRule adds search terms to any query containing Trigger.
type SynonymRule struct {
	ID        int64
	Trigger   string
	Adds      []string
	Enabled   bool
	Source    string
	UpdatedAt time.Time
}

// Search miss statuses.
const (
	MissPending  = "pending"
	MissResolved = "resolved"
	MissIgnored  = "ignored"
)

// SearchMiss is a deduplicated record of a query that found nothing.
type SearchMiss struct {
	ID           int64
	Query        string
	Normalized   string
	Count        int
	Status       string
	LastHappened time.Time
}

// QuizQuestion is a curated multiple-choice question.
type QuizQuestion struct {
	QID          string
	Prompt       string
	Choices      []string
	CorrectIndex int
	Explanation  *string
	Category     *string
	Difficulty   *string
	Tags         []string
	IsPublished  bool
	UpdatedAt    time.Time
}

// QuizSession tracks what a client was recently served in one mode.
type QuizSession struct {
	ID         string
	ClientID   string
	Mode       string
	RecentQIDs []string
	CurrentQID *string
	CreatedAt  time.Time
	UpdatedAt  time.Time
}

// QuizAnswer is an immutable answer record.
type QuizAnswer struct {
	ID            string
	ClientID      string
	SessionID     string
	QID           string
	SelectedIndex int
	IsCorrect     bool
	AnsweredAt    time.Time
	Category      *string
	Difficulty    *string
}

// QuizStats are the cumulative and daily counters for one client.
type QuizStats struct {
	ClientID        string
	Total           int
	Correct         int
	Streak          int
	DailyCount      int
	LastAnsweredDay *string
	LastAnsweredAt  *time.Time
	UpdatedAt       time.Time
}

// Stats contains aggregate database statistics.
type Stats struct {
	Articles           int
	FeaturedArticles   int
	SynonymRules       int
	EnabledRules       int
	Misses             int
	PendingMisses      int
	Questions          int
	PublishedQuestions int
	Sessions           int
	Answers            int
}
