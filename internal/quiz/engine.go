// Package quiz serves curated multiple-choice questions to anonymous clients.
//
// Each (client, mode) pair owns one session that remembers the outstanding
// question and a bounded window of recently served ones. Answers are recorded
// together with the client's cumulative, streak and daily counters in a single
// transaction.
package quiz

import (
	"context"
	"errors"
	"fmt"
	"math/rand/v2"
	"slices"
	"strings"
	"time"

	"github.com/google/uuid"
	"go.uber.org/zap"

	"github.com/TobiSchelling/siteassist/internal/apperr"
	"github.com/TobiSchelling/siteassist/internal/database"
)

// Defaults used when no option overrides them.
const (
	DefaultMode         = "quick"
	DefaultRecentWindow = 30
	DefaultDailyLimit   = 10
)

// Store is the persistence the engine needs. *database.DB satisfies it.
type Store interface {
	WithTx(ctx context.Context, fn func(tx *database.Tx) error) error
	GetQuizStats(ctx context.Context, clientID string) (*database.QuizStats, error)
}

// NextRequest asks for the client's current or next question.
type NextRequest struct {
	ClientID   string
	Mode       string
	Category   string
	Difficulty string
}

// Question is a served question. The correct index and explanation are
// withheld until the client answers.
type Question struct {
	SessionID  string
	QID        string
	Prompt     string
	Choices    []string
	Category   *string
	Difficulty *string
}

// AnswerRequest submits one answer for the outstanding question.
type AnswerRequest struct {
	ClientID      string
	SessionID     string
	QID           string
	SelectedIndex int
}

// Stats is the client-facing view of QuizStats.
type Stats struct {
	Total           int
	Correct         int
	Streak          int
	DailyCount      int
	LastAnsweredDay string
}

// AnswerResult is returned after an answer has been recorded.
type AnswerResult struct {
	IsCorrect    bool
	CorrectIndex int
	Explanation  *string
	Stats        Stats
}

// Engine implements question selection and answer bookkeeping.
type Engine struct {
	store       Store
	log         *zap.SugaredLogger
	window      int
	dailyLimit  int
	loc         *time.Location
	defaultMode string
	now         func() time.Time
	intn        func(n int) int
	newID       func() string
}

// Option configures an Engine.
type Option func(*Engine)

// WithRecentWindow sets how many served qids are remembered per session.
func WithRecentWindow(n int) Option {
	return func(e *Engine) {
		if n > 0 {
			e.window = n
		}
	}
}

// WithDailyLimit sets the number of answers allowed per calendar day. Zero disables the limit.
func WithDailyLimit(n int) Option {
	return func(e *Engine) {
		if n >= 0 {
			e.dailyLimit = n
		}
	}
}

// WithLocation sets the timezone that defines a calendar day.
func WithLocation(loc *time.Location) Option {
	return func(e *Engine) {
		if loc != nil {
			e.loc = loc
		}
	}
}

// WithDefaultMode sets the mode used when a request names none.
func WithDefaultMode(mode string) Option {
	return func(e *Engine) {
		if mode != "" {
			e.defaultMode = mode
		}
	}
}

// WithClock replaces time.Now.
func WithClock(now func() time.Time) Option {
	return func(e *Engine) { e.now = now }
}

// WithRand replaces the uniform picker. intn must return a value in [0, n).
func WithRand(intn func(n int) int) Option {
	return func(e *Engine) { e.intn = intn }
}

// WithIDs replaces the session and answer ID generator.
func WithIDs(newID func() string) Option {
	return func(e *Engine) { e.newID = newID }
}

// NewEngine creates a quiz engine over store.
func NewEngine(store Store, log *zap.SugaredLogger, opts ...Option) *Engine {
	e := &Engine{
		store:       store,
		log:         log,
		window:      DefaultRecentWindow,
		dailyLimit:  DefaultDailyLimit,
		loc:         time.UTC,
		defaultMode: DefaultMode,
		now:         time.Now,
		intn:        rand.IntN,
		newID:       uuid.NewString,
	}
	for _, opt := range opts {
		opt(e)
	}
	return e
}

// NextQuestion returns the client's outstanding question, or picks a new one
// uniformly from published questions outside the recency window. The session
// is created on first use.
func (e *Engine) NextQuestion(ctx context.Context, req NextRequest) (*Question, error) {
	clientID := strings.TrimSpace(req.ClientID)
	if clientID == "" {
		return nil, apperr.Validation("clientId is required")
	}
	mode := strings.TrimSpace(req.Mode)
	if mode == "" {
		mode = e.defaultMode
	}

	now := e.now()
	today := database.CalendarDay(now, e.loc)

	var served *Question
	err := e.store.WithTx(ctx, func(tx *database.Tx) error {
		stats, err := tx.GetQuizStats(ctx, clientID)
		if err != nil {
			return apperr.Store("loading stats", err)
		}
		if e.limitReached(stats, today) {
			return apperr.ErrLimitReached
		}

		session, err := tx.GetSessionByClient(ctx, clientID, mode)
		if err != nil {
			return apperr.Store("loading session", err)
		}

		if session != nil && session.CurrentQID != nil {
			current, err := tx.GetQuestion(ctx, *session.CurrentQID)
			if err != nil {
				return apperr.Store("loading current question", err)
			}
			if current != nil && current.IsPublished {
				served = toQuestion(session.ID, current)
				return nil
			}
			e.log.Debugw("outstanding question withdrawn, picking another",
				"client", clientID, "qid", *session.CurrentQID)
		}

		published, err := tx.PublishedQuestions(ctx)
		if err != nil {
			return apperr.Store("loading questions", err)
		}
		if len(published) == 0 {
			return apperr.ErrNotAvailable
		}

		var recent []string
		if session != nil {
			recent = session.RecentQIDs
		}
		candidates := Candidates(published, recent, req.Category, req.Difficulty)
		pick := candidates[e.intn(len(candidates))]

		created := session == nil
		if created {
			session = &database.QuizSession{
				ID:        e.newID(),
				ClientID:  clientID,
				Mode:      mode,
				CreatedAt: now,
			}
		}
		qid := pick.QID
		session.CurrentQID = &qid
		session.RecentQIDs = PushRecent(session.RecentQIDs, qid, e.window)
		session.UpdatedAt = now

		if created {
			if err := tx.InsertSession(ctx, session); err != nil {
				return apperr.Store("creating session", err)
			}
			e.log.Infow("quiz session created", "client", clientID, "mode", mode, "session", session.ID)
		} else if err := tx.UpdateSession(ctx, session); err != nil {
			return apperr.Store("updating session", err)
		}

		served = toQuestion(session.ID, &pick)
		return nil
	})
	if err != nil {
		return nil, classify("next question", err)
	}
	return served, nil
}

// SubmitAnswer records an answer for the session's outstanding question and
// updates the client's stats. The answer row, the stats and the cleared
// session all commit together.
func (e *Engine) SubmitAnswer(ctx context.Context, req AnswerRequest) (*AnswerResult, error) {
	clientID := strings.TrimSpace(req.ClientID)
	switch {
	case clientID == "":
		return nil, apperr.Validation("clientId is required")
	case req.SessionID == "":
		return nil, apperr.Validation("sessionId is required")
	case req.QID == "":
		return nil, apperr.Validation("qid is required")
	case req.SelectedIndex < 0:
		return nil, apperr.Validation("selectedIndex must not be negative")
	}

	now := e.now()
	today := database.CalendarDay(now, e.loc)

	var result *AnswerResult
	err := e.store.WithTx(ctx, func(tx *database.Tx) error {
		question, err := tx.GetQuestion(ctx, req.QID)
		if err != nil {
			return apperr.Store("loading question", err)
		}
		if question == nil || !question.IsPublished {
			return fmt.Errorf("question %s: %w", req.QID, apperr.ErrNotFound)
		}
		if req.SelectedIndex >= len(question.Choices) {
			return apperr.Validation("selectedIndex %d out of range for %d choices", req.SelectedIndex, len(question.Choices))
		}

		session, err := tx.GetSession(ctx, req.SessionID)
		if err != nil {
			return apperr.Store("loading session", err)
		}
		if session == nil || session.ClientID != clientID {
			return fmt.Errorf("session %s: %w", req.SessionID, apperr.ErrNotFound)
		}
		if session.CurrentQID == nil || *session.CurrentQID != req.QID {
			return fmt.Errorf("question %s is not outstanding for this session: %w", req.QID, apperr.ErrConflict)
		}

		stats, err := tx.GetQuizStats(ctx, clientID)
		if err != nil {
			return apperr.Store("loading stats", err)
		}
		if e.limitReached(stats, today) {
			return apperr.ErrLimitReached
		}

		correct := req.SelectedIndex == question.CorrectIndex
		if err := tx.InsertAnswer(ctx, &database.QuizAnswer{
			ID:            e.newID(),
			ClientID:      clientID,
			SessionID:     session.ID,
			QID:           question.QID,
			SelectedIndex: req.SelectedIndex,
			IsCorrect:     correct,
			AnsweredAt:    now,
			Category:      question.Category,
			Difficulty:    question.Difficulty,
		}); err != nil {
			return apperr.Store("recording answer", err)
		}

		stats = ApplyAnswer(stats, clientID, correct, now, today)
		if err := tx.SaveQuizStats(ctx, stats); err != nil {
			return apperr.Store("saving stats", err)
		}

		session.CurrentQID = nil
		session.UpdatedAt = now
		if err := tx.UpdateSession(ctx, session); err != nil {
			return apperr.Store("clearing session", err)
		}

		result = &AnswerResult{
			IsCorrect:    correct,
			CorrectIndex: question.CorrectIndex,
			Explanation:  question.Explanation,
			Stats:        toStats(stats),
		}
		return nil
	})
	if err != nil {
		return nil, classify("submit answer", err)
	}

	e.log.Debugw("answer recorded", "client", clientID, "qid", req.QID,
		"correct", result.IsCorrect, "streak", result.Stats.Streak)
	return result, nil
}

// Stats returns a client's counters. A client that never answered gets zeros.
func (e *Engine) Stats(ctx context.Context, clientID string) (Stats, error) {
	clientID = strings.TrimSpace(clientID)
	if clientID == "" {
		return Stats{}, apperr.Validation("clientId is required")
	}
	stats, err := e.store.GetQuizStats(ctx, clientID)
	if err != nil {
		return Stats{}, apperr.Store("loading stats", err)
	}
	if stats == nil {
		return Stats{}, nil
	}
	return toStats(stats), nil
}

func (e *Engine) limitReached(stats *database.QuizStats, today string) bool {
	if e.dailyLimit == 0 || stats == nil || stats.LastAnsweredDay == nil {
		return false
	}
	return *stats.LastAnsweredDay == today && stats.DailyCount >= e.dailyLimit
}

// ApplyAnswer returns stats updated for one answer given at now on calendar
// day today. A nil stats starts a new record for clientID.
func ApplyAnswer(stats *database.QuizStats, clientID string, correct bool, now time.Time, today string) *database.QuizStats {
	next := database.QuizStats{ClientID: clientID}
	if stats != nil {
		next = *stats
	}

	next.Total++
	if correct {
		next.Correct++
		next.Streak++
	} else {
		next.Streak = 0
	}

	if next.LastAnsweredDay == nil || *next.LastAnsweredDay != today {
		next.DailyCount = 1
	} else {
		next.DailyCount++
	}
	day := today
	at := now
	next.LastAnsweredDay = &day
	next.LastAnsweredAt = &at
	next.UpdatedAt = now
	return &next
}

// Candidates returns the questions eligible for the next pick: published
// questions outside recent that match the optional filters. When that set is
// empty every published question is eligible. published must not be empty.
func Candidates(published []database.QuizQuestion, recent []string, category, difficulty string) []database.QuizQuestion {
	var out []database.QuizQuestion
	for _, q := range published {
		if slices.Contains(recent, q.QID) {
			continue
		}
		if category != "" && (q.Category == nil || *q.Category != category) {
			continue
		}
		if difficulty != "" && (q.Difficulty == nil || *q.Difficulty != difficulty) {
			continue
		}
		out = append(out, q)
	}
	if len(out) == 0 {
		return published
	}
	return out
}

// PushRecent appends qid to recent, moving it to the end if it was already
// present, and keeps at most window entries by dropping the oldest.
func PushRecent(recent []string, qid string, window int) []string {
	out := make([]string, 0, len(recent)+1)
	for _, r := range recent {
		if r != qid {
			out = append(out, r)
		}
	}
	out = append(out, qid)
	if window > 0 && len(out) > window {
		out = out[len(out)-window:]
	}
	return out
}

func toQuestion(sessionID string, q *database.QuizQuestion) *Question {
	return &Question{
		SessionID:  sessionID,
		QID:        q.QID,
		Prompt:     q.Prompt,
		Choices:    q.Choices,
		Category:   q.Category,
		Difficulty: q.Difficulty,
	}
}

func toStats(s *database.QuizStats) Stats {
	out := Stats{
		Total:      s.Total,
		Correct:    s.Correct,
		Streak:     s.Streak,
		DailyCount: s.DailyCount,
	}
	if s.LastAnsweredDay != nil {
		out.LastAnsweredDay = *s.LastAnsweredDay
	}
	return out
}

// classify keeps taxonomy errors as they are and reports anything else,
// such as a failed begin or commit, as a store failure.
func classify(op string, err error) error {
	for _, sentinel := range []error{
		apperr.ErrValidation, apperr.ErrNotFound, apperr.ErrNotAvailable,
		apperr.ErrConflict, apperr.ErrLimitReached, apperr.ErrStoreUnavailable,
	} {
		if errors.Is(err, sentinel) {
			return err
		}
	}
	return apperr.Store(op, err)
}
