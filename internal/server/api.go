package server

import (
	"encoding/json"
	"errors"
	"net/http"
	"reflect"
	"strconv"
	"strings"

	"github.com/go-playground/validator/v10"

	"github.com/TobiSchelling/siteassist/internal/apperr"
	"github.com/TobiSchelling/siteassist/internal/quiz"
)

const maxBodyBytes = 1 << 16

// Neutral messages shown instead of internal error text.
const (
	neutralSearch = "Please try another keyword."
	neutralQuiz   = "Please try again later."
)

type articleRef struct {
	URL      string   `json:"url"`
	Slug     string   `json:"slug"`
	Title    string   `json:"title"`
	Excerpt  *string  `json:"excerpt,omitempty"`
	Tags     []string `json:"tags"`
	Featured bool     `json:"featured"`
	Score    float64  `json:"score"`
}

type searchResponse struct {
	Query    string       `json:"query"`
	Results  []articleRef `json:"results"`
	Fallback bool         `json:"fallback"`
}

type missRequest struct {
	Query string `json:"query" validate:"required,max=500"`
}

type nextRequest struct {
	ClientID   string `json:"clientId" validate:"required,max=128"`
	Mode       string `json:"mode" validate:"omitempty,max=32"`
	Category   string `json:"category" validate:"omitempty,max=64"`
	Difficulty string `json:"difficulty" validate:"omitempty,max=64"`
}

type questionResponse struct {
	Status     string   `json:"status"`
	SessionID  string   `json:"sessionId"`
	QID        string   `json:"qid"`
	Prompt     string   `json:"prompt"`
	Choices    []string `json:"choices"`
	Category   *string  `json:"category,omitempty"`
	Difficulty *string  `json:"difficulty,omitempty"`
}

type answerRequest struct {
	ClientID      string `json:"clientId" validate:"required,max=128"`
	SessionID     string `json:"sessionId" validate:"required,max=128"`
	QID           string `json:"qid" validate:"required,max=128"`
	SelectedIndex *int   `json:"selectedIndex" validate:"required,min=0"`
}

type statsResponse struct {
	Total           int    `json:"total"`
	Correct         int    `json:"correct"`
	Streak          int    `json:"streak"`
	DailyCount      int    `json:"dailyCount"`
	LastAnsweredDay string `json:"lastAnsweredDay,omitempty"`
}

type answerResponse struct {
	Status          string        `json:"status"`
	IsCorrect       bool          `json:"isCorrect"`
	CorrectIndex    int           `json:"correctIndex"`
	Explanation     *string       `json:"explanation,omitempty"`
	ExplanationHTML string        `json:"explanationHtml,omitempty"`
	Stats           statsResponse `json:"stats"`
}

func (s *Server) handleSearch(w http.ResponseWriter, r *http.Request) {
	q := r.URL.Query()
	limit := 0
	if raw := q.Get("limit"); raw != "" {
		n, err := strconv.Atoi(raw)
		if err != nil || n < 1 {
			writeJSON(w, http.StatusBadRequest, map[string]string{"error": "limit must be a positive integer"})
			return
		}
		limit = n
	}

	res, err := s.search.Search(r.Context(), q.Get("q"), limit)
	if err != nil {
		s.writeError(w, err, neutralSearch)
		return
	}

	resp := searchResponse{Query: res.Query, Results: []articleRef{}, Fallback: res.Fallback}
	for _, h := range res.Hits {
		resp.Results = append(resp.Results, articleRef{
			URL:      h.Article.URL,
			Slug:     h.Article.Slug,
			Title:    h.Article.Title,
			Excerpt:  h.Article.Excerpt,
			Tags:     h.Article.Tags,
			Featured: h.Article.Featured,
			Score:    h.Score,
		})
	}
	writeJSON(w, http.StatusOK, resp)
}

func (s *Server) handleRecordMiss(w http.ResponseWriter, r *http.Request) {
	var req missRequest
	if !s.decode(w, r, &req) {
		return
	}
	if err := s.search.RecordMiss(r.Context(), req.Query); err != nil {
		s.writeError(w, err, neutralSearch)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

func (s *Server) handleNextQuestion(w http.ResponseWriter, r *http.Request) {
	var req nextRequest
	if !s.decode(w, r, &req) {
		return
	}

	q, err := s.quiz.NextQuestion(r.Context(), quiz.NextRequest{
		ClientID:   req.ClientID,
		Mode:       req.Mode,
		Category:   req.Category,
		Difficulty: req.Difficulty,
	})
	if err != nil {
		s.writeError(w, err, neutralQuiz)
		return
	}

	writeJSON(w, http.StatusOK, questionResponse{
		Status:     "ok",
		SessionID:  q.SessionID,
		QID:        q.QID,
		Prompt:     q.Prompt,
		Choices:    q.Choices,
		Category:   q.Category,
		Difficulty: q.Difficulty,
	})
}

func (s *Server) handleSubmitAnswer(w http.ResponseWriter, r *http.Request) {
	var req answerRequest
	if !s.decode(w, r, &req) {
		return
	}

	res, err := s.quiz.SubmitAnswer(r.Context(), quiz.AnswerRequest{
		ClientID:      req.ClientID,
		SessionID:     req.SessionID,
		QID:           req.QID,
		SelectedIndex: *req.SelectedIndex,
	})
	if err != nil {
		s.writeError(w, err, neutralQuiz)
		return
	}

	resp := answerResponse{
		Status:       "ok",
		IsCorrect:    res.IsCorrect,
		CorrectIndex: res.CorrectIndex,
		Explanation:  res.Explanation,
		Stats:        toStatsResponse(res.Stats),
	}
	if res.Explanation != nil {
		resp.ExplanationHTML = string(renderMarkdown(*res.Explanation))
	}
	writeJSON(w, http.StatusOK, resp)
}

func (s *Server) handleQuizStats(w http.ResponseWriter, r *http.Request) {
	stats, err := s.quiz.Stats(r.Context(), r.URL.Query().Get("clientId"))
	if err != nil {
		s.writeError(w, err, neutralQuiz)
		return
	}
	writeJSON(w, http.StatusOK, toStatsResponse(stats))
}

func toStatsResponse(st quiz.Stats) statsResponse {
	return statsResponse{
		Total:           st.Total,
		Correct:         st.Correct,
		Streak:          st.Streak,
		DailyCount:      st.DailyCount,
		LastAnsweredDay: st.LastAnsweredDay,
	}
}

// decode reads and validates a JSON body. On failure it writes a 400 and
// returns false.
func (s *Server) decode(w http.ResponseWriter, r *http.Request, dst any) bool {
	dec := json.NewDecoder(http.MaxBytesReader(w, r.Body, maxBodyBytes))
	if err := dec.Decode(dst); err != nil {
		writeJSON(w, http.StatusBadRequest, map[string]string{"error": "invalid JSON body"})
		return false
	}
	if err := s.validate.Struct(dst); err != nil {
		writeJSON(w, http.StatusBadRequest, map[string]string{"error": validationMessage(err)})
		return false
	}
	return true
}

func validationMessage(err error) string {
	var verrs validator.ValidationErrors
	if !errors.As(err, &verrs) {
		return "invalid request"
	}
	fields := make([]string, 0, len(verrs))
	for _, fe := range verrs {
		fields = append(fields, fe.Field()+" "+fe.Tag())
	}
	return "invalid request: " + strings.Join(fields, ", ")
}

// newValidator reports fields by their JSON names.
func newValidator() *validator.Validate {
	v := validator.New(validator.WithRequiredStructEnabled())
	v.RegisterTagNameFunc(func(fld reflect.StructField) string {
		name, _, _ := strings.Cut(fld.Tag.Get("json"), ",")
		if name == "-" {
			return ""
		}
		return name
	})
	return v
}

// writeError maps the error taxonomy onto HTTP. Internal text never reaches
// the client; store failures get the neutral message.
func (s *Server) writeError(w http.ResponseWriter, err error, neutral string) {
	switch {
	case errors.Is(err, apperr.ErrValidation):
		writeJSON(w, http.StatusBadRequest, map[string]string{"status": "invalid", "error": strings.TrimPrefix(err.Error(), "invalid input: ")})
	case errors.Is(err, apperr.ErrNotAvailable):
		writeJSON(w, http.StatusNotFound, map[string]string{"status": "unavailable", "error": neutral})
	case errors.Is(err, apperr.ErrNotFound):
		writeJSON(w, http.StatusNotFound, map[string]string{"status": "not_found", "error": neutral})
	case errors.Is(err, apperr.ErrConflict):
		writeJSON(w, http.StatusConflict, map[string]string{"status": "conflict", "error": "This question has already been answered."})
	case errors.Is(err, apperr.ErrLimitReached):
		writeJSON(w, http.StatusTooManyRequests, map[string]string{"status": "limit_reached", "error": "You have reached today's limit. Come back tomorrow."})
	case errors.Is(err, apperr.ErrRateLimited):
		writeJSON(w, http.StatusTooManyRequests, map[string]string{"status": "rate_limited", "error": neutral})
	default:
		s.log.Errorw("request failed", "error", err)
		writeJSON(w, http.StatusServiceUnavailable, map[string]string{"status": "error", "error": neutral})
	}
}

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	json.NewEncoder(w).Encode(v)
}
