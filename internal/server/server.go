package server

import (
	"bytes"
	"context"
	"embed"
	"errors"
	"fmt"
	"html/template"
	"io/fs"
	"net/http"
	"strconv"
	"strings"
	"time"

	"github.com/go-playground/validator/v10"
	"github.com/yuin/goldmark"
	"go.uber.org/zap"

	"github.com/TobiSchelling/siteassist/internal/database"
	"github.com/TobiSchelling/siteassist/internal/quiz"
	"github.com/TobiSchelling/siteassist/internal/ratelimit"
	"github.com/TobiSchelling/siteassist/internal/search"
)

//go:embed templates/*.html
var templateFS embed.FS

//go:embed static/*
var staticFS embed.FS

var md = goldmark.New()

// Server serves the assistant API and the search and miss-log pages.
type Server struct {
	db       *database.DB
	search   *search.Engine
	quiz     *quiz.Engine
	limiter  ratelimit.Limiter
	log      *zap.SugaredLogger
	validate *validator.Validate
	pages    map[string]*template.Template
	mux      *http.ServeMux
}

// New creates a Server. limiter may be nil to disable rate limiting.
func New(db *database.DB, searchEngine *search.Engine, quizEngine *quiz.Engine, limiter ratelimit.Limiter, log *zap.SugaredLogger) (*Server, error) {
	funcMap := template.FuncMap{
		"markdown": renderMarkdown,
		"deref": func(s *string) string {
			if s == nil {
				return ""
			}
			return *s
		},
		"score": func(f float64) string { return strconv.FormatFloat(f, 'f', 2, 64) },
		"date":  func(t time.Time) string { return t.Format("2006-01-02 15:04") },
	}

	// Parse base template first
	base, err := template.New("base.html").Funcs(funcMap).ParseFS(templateFS, "templates/base.html")
	if err != nil {
		return nil, fmt.Errorf("parsing base template: %w", err)
	}

	// Each page gets its own clone of base so {{define "content"}} does not collide.
	pageNames := []string{"index.html", "misses.html"}
	pages := make(map[string]*template.Template, len(pageNames))
	for _, name := range pageNames {
		clone, err := base.Clone()
		if err != nil {
			return nil, fmt.Errorf("cloning base for %s: %w", name, err)
		}
		_, err = clone.ParseFS(templateFS, "templates/"+name)
		if err != nil {
			return nil, fmt.Errorf("parsing template %s: %w", name, err)
		}
		pages[name] = clone
	}

	s := &Server{
		db:       db,
		search:   searchEngine,
		quiz:     quizEngine,
		limiter:  limiter,
		log:      log,
		validate: newValidator(),
		pages:    pages,
		mux:      http.NewServeMux(),
	}
	s.routes()
	return s, nil
}

// Handler returns the HTTP handler for the server.
func (s *Server) Handler() http.Handler {
	return s.mux
}

func (s *Server) routes() {
	// Static files
	staticSub, _ := fs.Sub(staticFS, "static")
	s.mux.Handle("/static/", http.StripPrefix("/static/", http.FileServer(http.FS(staticSub))))

	// API
	s.mux.Handle("GET /api/search", s.api(s.handleSearch))
	s.mux.Handle("POST /api/misses", s.api(s.handleRecordMiss))
	s.mux.Handle("POST /api/quiz/next", s.api(s.handleNextQuestion))
	s.mux.Handle("POST /api/quiz/answer", s.api(s.handleSubmitAnswer))
	s.mux.Handle("GET /api/quiz/stats", s.api(s.handleQuizStats))
	s.mux.HandleFunc("GET /healthz", s.handleHealth)

	// Pages
	s.mux.HandleFunc("/", s.handleIndex)
	s.mux.HandleFunc("/misses", s.handleMisses)
	s.mux.HandleFunc("/misses/status", s.handleMissStatus)
}

// api applies the rate limiter, when configured, to an API handler.
func (s *Server) api(h http.HandlerFunc) http.Handler {
	if s.limiter == nil {
		return h
	}
	return ratelimit.Middleware(s.limiter, s.log)(h)
}

func (s *Server) handleHealth(w http.ResponseWriter, r *http.Request) {
	if err := s.db.Ping(r.Context()); err != nil {
		writeJSON(w, http.StatusServiceUnavailable, map[string]string{"status": "unavailable"})
		return
	}
	writeJSON(w, http.StatusOK, map[string]string{"status": "ok"})
}

func (s *Server) handleIndex(w http.ResponseWriter, r *http.Request) {
	if r.URL.Path != "/" {
		http.NotFound(w, r)
		return
	}

	query := strings.TrimSpace(r.URL.Query().Get("q"))
	data := map[string]any{"Query": query}
	if query == "" {
		s.render(w, "index.html", data)
		return
	}

	res, err := s.search.Search(r.Context(), query, 0)
	if err != nil {
		s.log.Warnw("search page failed", "query", query, "error", err)
		data["Error"] = neutralSearch
		s.render(w, "index.html", data)
		return
	}
	if !res.Ranked() {
		if err := s.search.RecordMiss(r.Context(), query); err != nil {
			s.log.Warnw("recording miss failed", "query", query, "error", err)
		}
	}

	data["Hits"] = res.Hits
	data["Fallback"] = res.Fallback
	s.render(w, "index.html", data)
}

func (s *Server) handleMisses(w http.ResponseWriter, r *http.Request) {
	status := r.URL.Query().Get("status")
	if status == "" {
		status = database.MissPending
	}
	if status == "all" {
		status = ""
	}

	misses, err := s.db.ListMisses(r.Context(), status, 200)
	if err != nil {
		s.log.Warnw("listing misses failed", "error", err)
		http.Error(w, "Internal server error", http.StatusInternalServerError)
		return
	}
	rules, err := s.db.GetAllSynonymRules(r.Context())
	if err != nil {
		s.log.Warnw("listing synonym rules failed", "error", err)
		http.Error(w, "Internal server error", http.StatusInternalServerError)
		return
	}

	s.render(w, "misses.html", map[string]any{
		"Misses": misses,
		"Rules":  rules,
		"Status": r.URL.Query().Get("status"),
	})
}

func (s *Server) handleMissStatus(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodPost {
		http.Redirect(w, r, "/misses", http.StatusFound)
		return
	}

	normalized := strings.TrimSpace(r.FormValue("normalized"))
	status := r.FormValue("status")
	if normalized != "" {
		if _, err := s.db.SetMissStatus(r.Context(), normalized, status); err != nil {
			s.log.Warnw("updating miss status failed", "query", normalized, "status", status, "error", err)
		}
	}

	// Resolving a miss with terms adds a manual synonym rule for it.
	if status == database.MissResolved {
		if adds := splitTerms(r.FormValue("adds")); len(adds) > 0 {
			if _, err := s.db.InsertSynonymRule(r.Context(), normalized, adds, database.SourceManual); err != nil {
				s.log.Warnw("adding synonym rule failed", "trigger", normalized, "error", err)
			}
		}
	}

	http.Redirect(w, r, "/misses", http.StatusFound)
}

func (s *Server) render(w http.ResponseWriter, name string, data any) {
	tmpl, ok := s.pages[name]
	if !ok {
		s.log.Errorw("template not found", "template", name)
		http.Error(w, "Internal server error", http.StatusInternalServerError)
		return
	}

	w.Header().Set("Content-Type", "text/html; charset=utf-8")
	if err := tmpl.ExecuteTemplate(w, "base.html", data); err != nil {
		s.log.Errorw("rendering template failed", "template", name, "error", err)
	}
}

func renderMarkdown(text string) template.HTML {
	var buf bytes.Buffer
	if err := md.Convert([]byte(text), &buf); err != nil {
		return template.HTML(template.HTMLEscapeString(text))
	}
	return template.HTML(buf.String()) //nolint: gosec
}

func splitTerms(raw string) []string {
	var terms []string
	for _, t := range strings.FieldsFunc(raw, func(r rune) bool { return r == ',' || r == '、' || r == '\n' }) {
		if t = strings.TrimSpace(t); t != "" {
			terms = append(terms, t)
		}
	}
	return terms
}

// Serve listens on addr until ctx is cancelled, then shuts down gracefully.
func Serve(ctx context.Context, handler http.Handler, addr string, log *zap.SugaredLogger) error {
	srv := &http.Server{
		Addr:              addr,
		Handler:           handler,
		ReadHeaderTimeout: 10 * time.Second,
	}

	errCh := make(chan error, 1)
	go func() {
		log.Infow("server listening", "url", "http://"+addr)
		errCh <- srv.ListenAndServe()
	}()

	select {
	case err := <-errCh:
		if errors.Is(err, http.ErrServerClosed) {
			return nil
		}
		return err
	case <-ctx.Done():
		log.Info("shutting down server")
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		return srv.Shutdown(shutdownCtx)
	}
}
