package quiz

import (
	"context"
	"errors"
	"fmt"
	"math/rand/v2"
	"path/filepath"
	"testing"
	"time"
	_ "time/tzdata"

	"github.com/TobiSchelling/siteassist/internal/apperr"
	"github.com/TobiSchelling/siteassist/internal/database"
	"github.com/TobiSchelling/siteassist/internal/logger"
)

type clock struct{ t time.Time }

func (c *clock) now() time.Time { return c.t }

func ptr(s string) *string { return &s }

func openTestDB(t *testing.T) *database.DB {
	t.Helper()
	db, err := database.Open(filepath.Join(t.TempDir(), "test.db"))
	if err != nil {
		t.Fatalf("failed to open test db: %v", err)
	}
	t.Cleanup(func() { db.Close() })
	return db
}

func seedQuestions(t *testing.T, db *database.DB, n int) map[string]int {
	t.Helper()
	answers := make(map[string]int, n)
	for i := 1; i <= n; i++ {
		q := database.QuizQuestion{
			QID:          fmt.Sprintf("q-%02d", i),
			Prompt:       fmt.Sprintf("Question %d", i),
			Choices:      []string{"a", "b", "c", "d"},
			CorrectIndex: i % 4,
			Explanation:  ptr("because"),
			Category:     ptr("vitals"),
			Difficulty:   ptr("easy"),
			IsPublished:  true,
		}
		if err := db.UpsertQuestion(context.Background(), q); err != nil {
			t.Fatalf("seeding %s: %v", q.QID, err)
		}
		answers[q.QID] = q.CorrectIndex
	}
	return answers
}

func newTestEngine(t *testing.T, db *database.DB, c *clock, opts ...Option) *Engine {
	t.Helper()
	ids := 0
	base := []Option{
		WithClock(c.now),
		WithRand(func(int) int { return 0 }),
		WithIDs(func() string { ids++; return fmt.Sprintf("id-%d", ids) }),
		WithLocation(time.UTC),
	}
	return NewEngine(db, logger.Nop(), append(base, opts...)...)
}

func answer(t *testing.T, e *Engine, q *Question, index int) *AnswerResult {
	t.Helper()
	res, err := e.SubmitAnswer(context.Background(), AnswerRequest{
		ClientID: "client-1", SessionID: q.SessionID, QID: q.QID, SelectedIndex: index,
	})
	if err != nil {
		t.Fatalf("SubmitAnswer(%s) failed: %v", q.QID, err)
	}
	return res
}

func next(t *testing.T, e *Engine) *Question {
	t.Helper()
	q, err := e.NextQuestion(context.Background(), NextRequest{ClientID: "client-1"})
	if err != nil {
		t.Fatalf("NextQuestion failed: %v", err)
	}
	return q
}

func TestNextQuestionIsStable(t *testing.T) {
	db := openTestDB(t)
	seedQuestions(t, db, 3)
	e := newTestEngine(t, db, &clock{t: time.Now()}, WithRand(rand.New(rand.NewPCG(7, 11)).IntN))

	first := next(t, e)
	second := next(t, e)
	if first.QID != second.QID || first.SessionID != second.SessionID {
		t.Errorf("expected identical question, got %s/%s then %s/%s",
			first.SessionID, first.QID, second.SessionID, second.QID)
	}
	if first.Prompt == "" || len(first.Choices) != 4 {
		t.Errorf("expected prompt and choices, got %+v", first)
	}
}

func TestNextQuestionAvoidsRecent(t *testing.T) {
	db := openTestDB(t)
	answers := seedQuestions(t, db, 6)
	e := newTestEngine(t, db, &clock{t: time.Now()},
		WithRand(rand.New(rand.NewPCG(1, 2)).IntN), WithDailyLimit(0))

	seen := map[string]bool{}
	for range 6 {
		q := next(t, e)
		if seen[q.QID] {
			t.Fatalf("question %s served twice inside the window", q.QID)
		}
		seen[q.QID] = true
		answer(t, e, q, answers[q.QID])
	}

	// Every published question is now recent, so the full set is used.
	q := next(t, e)
	if _, ok := answers[q.QID]; !ok {
		t.Errorf("expected a published question, got %q", q.QID)
	}
}

func TestRecencyWindowIsBounded(t *testing.T) {
	db := openTestDB(t)
	answers := seedQuestions(t, db, 3)
	e := newTestEngine(t, db, &clock{t: time.Now()}, WithRecentWindow(2), WithDailyLimit(0))

	want := []string{"q-01", "q-02", "q-03", "q-01", "q-02"}
	for i, qid := range want {
		q := next(t, e)
		if q.QID != qid {
			t.Fatalf("pick %d: expected %s, got %s", i+1, qid, q.QID)
		}
		answer(t, e, q, answers[q.QID])
	}

	var session *database.QuizSession
	err := db.WithTx(context.Background(), func(tx *database.Tx) error {
		var err error
		session, err = tx.GetSessionByClient(context.Background(), "client-1", DefaultMode)
		return err
	})
	if err != nil {
		t.Fatal(err)
	}
	if len(session.RecentQIDs) != 2 || session.RecentQIDs[0] != "q-01" || session.RecentQIDs[1] != "q-02" {
		t.Errorf("expected recent [q-01 q-02], got %v", session.RecentQIDs)
	}
	if session.CurrentQID != nil {
		t.Errorf("expected current qid cleared after answer, got %s", *session.CurrentQID)
	}
}

func TestNextQuestionNotAvailable(t *testing.T) {
	db := openTestDB(t)
	e := newTestEngine(t, db, &clock{t: time.Now()})
	ctx := context.Background()

	if _, err := e.NextQuestion(ctx, NextRequest{ClientID: "client-1"}); !errors.Is(err, apperr.ErrNotAvailable) {
		t.Errorf("expected ErrNotAvailable on empty bank, got %v", err)
	}

	hidden := database.QuizQuestion{QID: "draft", Prompt: "p", Choices: []string{"a", "b"}, IsPublished: false}
	if err := db.UpsertQuestion(ctx, hidden); err != nil {
		t.Fatal(err)
	}
	if _, err := e.NextQuestion(ctx, NextRequest{ClientID: "client-1"}); !errors.Is(err, apperr.ErrNotAvailable) {
		t.Errorf("expected ErrNotAvailable with only unpublished questions, got %v", err)
	}
}

func TestNextQuestionValidation(t *testing.T) {
	e := NewEngine(nil, logger.Nop())
	if _, err := e.NextQuestion(context.Background(), NextRequest{ClientID: "  "}); !errors.Is(err, apperr.ErrValidation) {
		t.Errorf("expected ErrValidation, got %v", err)
	}
}

func TestModesHaveSeparateSessions(t *testing.T) {
	db := openTestDB(t)
	seedQuestions(t, db, 3)
	e := newTestEngine(t, db, &clock{t: time.Now()})
	ctx := context.Background()

	quick, err := e.NextQuestion(ctx, NextRequest{ClientID: "client-1", Mode: "quick"})
	if err != nil {
		t.Fatal(err)
	}
	daily, err := e.NextQuestion(ctx, NextRequest{ClientID: "client-1", Mode: "daily"})
	if err != nil {
		t.Fatal(err)
	}
	if quick.SessionID == daily.SessionID {
		t.Errorf("expected separate sessions per mode, both got %s", quick.SessionID)
	}
}

func TestStreakResetsOnIncorrectAnswer(t *testing.T) {
	db := openTestDB(t)
	answers := seedQuestions(t, db, 5)
	e := newTestEngine(t, db, &clock{t: time.Now()})

	for i := 1; i <= 3; i++ {
		q := next(t, e)
		res := answer(t, e, q, answers[q.QID])
		if !res.IsCorrect || res.Stats.Streak != i {
			t.Fatalf("answer %d: expected correct with streak %d, got %+v", i, i, res)
		}
	}

	q := next(t, e)
	wrong := (answers[q.QID] + 1) % 4
	res := answer(t, e, q, wrong)
	if res.IsCorrect {
		t.Fatal("expected incorrect answer")
	}
	if res.Stats.Streak != 0 || res.Stats.Total != 4 || res.Stats.Correct != 3 {
		t.Errorf("expected streak 0, total 4, correct 3, got %+v", res.Stats)
	}
	if res.CorrectIndex != answers[q.QID] || res.Explanation == nil || *res.Explanation != "because" {
		t.Errorf("expected correct index and explanation, got %+v", res)
	}

	recorded, err := db.GetAnswersForClient(context.Background(), "client-1", 0)
	if err != nil {
		t.Fatal(err)
	}
	if len(recorded) != 4 {
		t.Errorf("expected 4 answer rows, got %d", len(recorded))
	}
	if recorded[0].Category == nil || *recorded[0].Category != "vitals" {
		t.Errorf("expected category copied onto the answer, got %v", recorded[0].Category)
	}
}

func TestDailyCountResetsOnNewDay(t *testing.T) {
	db := openTestDB(t)
	answers := seedQuestions(t, db, 3)
	c := &clock{t: time.Date(2024, 1, 2, 9, 0, 0, 0, time.UTC)}
	e := newTestEngine(t, db, c)
	ctx := context.Background()

	err := db.WithTx(ctx, func(tx *database.Tx) error {
		at := time.Date(2024, 1, 1, 22, 0, 0, 0, time.UTC)
		return tx.SaveQuizStats(ctx, &database.QuizStats{
			ClientID: "client-1", Total: 5, Correct: 5, Streak: 5, DailyCount: 5,
			LastAnsweredDay: ptr("2024-01-01"), LastAnsweredAt: &at, UpdatedAt: at,
		})
	})
	if err != nil {
		t.Fatal(err)
	}

	q := next(t, e)
	res := answer(t, e, q, answers[q.QID])
	if res.Stats.DailyCount != 1 {
		t.Errorf("expected daily count 1 on a new day, got %d", res.Stats.DailyCount)
	}
	if res.Stats.LastAnsweredDay != "2024-01-02" || res.Stats.Total != 6 || res.Stats.Streak != 6 {
		t.Errorf("unexpected stats %+v", res.Stats)
	}

	q = next(t, e)
	res = answer(t, e, q, answers[q.QID])
	if res.Stats.DailyCount != 2 {
		t.Errorf("expected daily count 2 on the same day, got %d", res.Stats.DailyCount)
	}
}

func TestCalendarDayUsesConfiguredZone(t *testing.T) {
	db := openTestDB(t)
	answers := seedQuestions(t, db, 1)
	tokyo, err := time.LoadLocation("Asia/Tokyo")
	if err != nil {
		t.Fatal(err)
	}
	c := &clock{t: time.Date(2024, 1, 1, 20, 0, 0, 0, time.UTC)}
	e := newTestEngine(t, db, c, WithLocation(tokyo))

	q := next(t, e)
	res := answer(t, e, q, answers[q.QID])
	if res.Stats.LastAnsweredDay != "2024-01-02" {
		t.Errorf("expected Tokyo day 2024-01-02, got %s", res.Stats.LastAnsweredDay)
	}
}

func TestDailyLimit(t *testing.T) {
	db := openTestDB(t)
	answers := seedQuestions(t, db, 5)
	c := &clock{t: time.Date(2024, 3, 1, 8, 0, 0, 0, time.UTC)}
	e := newTestEngine(t, db, c, WithDailyLimit(2))
	ctx := context.Background()

	for range 2 {
		q := next(t, e)
		answer(t, e, q, answers[q.QID])
	}
	if _, err := e.NextQuestion(ctx, NextRequest{ClientID: "client-1"}); !errors.Is(err, apperr.ErrLimitReached) {
		t.Fatalf("expected ErrLimitReached, got %v", err)
	}

	c.t = c.t.Add(24 * time.Hour)
	q := next(t, e)
	res := answer(t, e, q, answers[q.QID])
	if res.Stats.DailyCount != 1 || res.Stats.Total != 3 {
		t.Errorf("expected a fresh allowance the next day, got %+v", res.Stats)
	}
}

func TestDailyLimitBlocksOutstandingAnswer(t *testing.T) {
	db := openTestDB(t)
	answers := seedQuestions(t, db, 3)
	e := newTestEngine(t, db, &clock{t: time.Now()}, WithDailyLimit(1))
	ctx := context.Background()

	q := next(t, e)
	answer(t, e, q, answers[q.QID])

	// A question left outstanding in another mode cannot be answered past the limit.
	err := db.WithTx(ctx, func(tx *database.Tx) error {
		qid := "q-02"
		return tx.InsertSession(ctx, &database.QuizSession{
			ID: "other", ClientID: "client-1", Mode: "daily", CurrentQID: &qid,
			CreatedAt: time.Now(), UpdatedAt: time.Now(),
		})
	})
	if err != nil {
		t.Fatal(err)
	}
	_, err = e.SubmitAnswer(ctx, AnswerRequest{ClientID: "client-1", SessionID: "other", QID: "q-02", SelectedIndex: 0})
	if !errors.Is(err, apperr.ErrLimitReached) {
		t.Errorf("expected ErrLimitReached, got %v", err)
	}
}

func TestDoubleSubmitIsRejected(t *testing.T) {
	db := openTestDB(t)
	answers := seedQuestions(t, db, 3)
	e := newTestEngine(t, db, &clock{t: time.Now()})
	ctx := context.Background()

	q := next(t, e)
	answer(t, e, q, answers[q.QID])

	_, err := e.SubmitAnswer(ctx, AnswerRequest{
		ClientID: "client-1", SessionID: q.SessionID, QID: q.QID, SelectedIndex: answers[q.QID],
	})
	if !errors.Is(err, apperr.ErrConflict) {
		t.Fatalf("expected ErrConflict on resubmit, got %v", err)
	}

	stats, err := e.Stats(ctx, "client-1")
	if err != nil {
		t.Fatal(err)
	}
	if stats.Total != 1 || stats.Correct != 1 {
		t.Errorf("expected the resubmit to leave stats unchanged, got %+v", stats)
	}
}

func TestSubmitAnswerErrors(t *testing.T) {
	db := openTestDB(t)
	seedQuestions(t, db, 2)
	e := newTestEngine(t, db, &clock{t: time.Now()})
	ctx := context.Background()
	q := next(t, e)

	tests := []struct {
		name string
		req  AnswerRequest
		want error
	}{
		{"missing client", AnswerRequest{SessionID: q.SessionID, QID: q.QID}, apperr.ErrValidation},
		{"missing session", AnswerRequest{ClientID: "client-1", QID: q.QID}, apperr.ErrValidation},
		{"negative index", AnswerRequest{ClientID: "client-1", SessionID: q.SessionID, QID: q.QID, SelectedIndex: -1}, apperr.ErrValidation},
		{"index out of range", AnswerRequest{ClientID: "client-1", SessionID: q.SessionID, QID: q.QID, SelectedIndex: 4}, apperr.ErrValidation},
		{"unknown question", AnswerRequest{ClientID: "client-1", SessionID: q.SessionID, QID: "nope"}, apperr.ErrNotFound},
		{"unknown session", AnswerRequest{ClientID: "client-1", SessionID: "nope", QID: q.QID}, apperr.ErrNotFound},
		{"foreign session", AnswerRequest{ClientID: "client-2", SessionID: q.SessionID, QID: q.QID}, apperr.ErrNotFound},
		{"not outstanding", AnswerRequest{ClientID: "client-1", SessionID: q.SessionID, QID: otherQID(q.QID)}, apperr.ErrConflict},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := e.SubmitAnswer(ctx, tt.req)
			if !errors.Is(err, tt.want) {
				t.Errorf("expected %v, got %v", tt.want, err)
			}
		})
	}

	stats, err := e.Stats(ctx, "client-1")
	if err != nil {
		t.Fatal(err)
	}
	if stats.Total != 0 {
		t.Errorf("expected no answers recorded, got %+v", stats)
	}
}

func otherQID(qid string) string {
	if qid == "q-01" {
		return "q-02"
	}
	return "q-01"
}

func TestSubmitAnswerValidatesBeforeStoreAccess(t *testing.T) {
	e := NewEngine(nil, logger.Nop())
	_, err := e.SubmitAnswer(context.Background(), AnswerRequest{
		ClientID: "c", SessionID: "s", QID: "q", SelectedIndex: -3,
	})
	if !errors.Is(err, apperr.ErrValidation) {
		t.Errorf("expected ErrValidation, got %v", err)
	}
}

func TestStatsForUnknownClient(t *testing.T) {
	db := openTestDB(t)
	e := newTestEngine(t, db, &clock{t: time.Now()})

	stats, err := e.Stats(context.Background(), "nobody")
	if err != nil {
		t.Fatal(err)
	}
	if stats != (Stats{}) {
		t.Errorf("expected zero stats, got %+v", stats)
	}
}

func TestApplyAnswer(t *testing.T) {
	now := time.Date(2024, 1, 2, 10, 0, 0, 0, time.UTC)

	fresh := ApplyAnswer(nil, "c", false, now, "2024-01-02")
	if fresh.Total != 1 || fresh.Correct != 0 || fresh.Streak != 0 || fresh.DailyCount != 1 {
		t.Errorf("unexpected first stats %+v", fresh)
	}

	prev := &database.QuizStats{ClientID: "c", Total: 10, Correct: 7, Streak: 2, DailyCount: 5, LastAnsweredDay: ptr("2024-01-01")}
	got := ApplyAnswer(prev, "c", true, now, "2024-01-02")
	if got.Total != 11 || got.Correct != 8 || got.Streak != 3 || got.DailyCount != 1 {
		t.Errorf("unexpected stats after day change %+v", got)
	}
	if *got.LastAnsweredDay != "2024-01-02" || !got.LastAnsweredAt.Equal(now) {
		t.Errorf("expected last answered fields updated, got %+v", got)
	}
	if prev.Total != 10 {
		t.Error("ApplyAnswer must not modify its input")
	}
}

func TestCandidates(t *testing.T) {
	published := []database.QuizQuestion{
		{QID: "a", Category: ptr("vitals"), Difficulty: ptr("easy")},
		{QID: "b", Category: ptr("ethics"), Difficulty: ptr("easy")},
		{QID: "c", Category: ptr("vitals"), Difficulty: ptr("hard")},
	}
	qids := func(qs []database.QuizQuestion) string {
		out := ""
		for _, q := range qs {
			out += q.QID
		}
		return out
	}

	tests := []struct {
		name       string
		recent     []string
		category   string
		difficulty string
		want       string
	}{
		{"no filters", nil, "", "", "abc"},
		{"recent excluded", []string{"a"}, "", "", "bc"},
		{"category", nil, "vitals", "", "ac"},
		{"category and difficulty", nil, "vitals", "hard", "c"},
		{"filtered set recent", []string{"c"}, "vitals", "hard", "abc"},
		{"all recent", []string{"a", "b", "c"}, "", "", "abc"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if got := qids(Candidates(published, tt.recent, tt.category, tt.difficulty)); got != tt.want {
				t.Errorf("expected %s, got %s", tt.want, got)
			}
		})
	}
}

func TestPushRecent(t *testing.T) {
	got := PushRecent([]string{"a", "b", "c"}, "d", 3)
	if fmt.Sprint(got) != "[b c d]" {
		t.Errorf("expected oldest dropped, got %v", got)
	}
	got = PushRecent([]string{"a", "b"}, "a", 3)
	if fmt.Sprint(got) != "[b a]" {
		t.Errorf("expected repeat moved to the end, got %v", got)
	}
}
