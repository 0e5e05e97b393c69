// Package web serves the browser review UI. It is one of two presentation
// adapters over the session engine; the handlers translate HTTP calls into
// the same prompt/reveal/grade/skip surface the terminal UI uses.
package web

import (
	"embed"
	"encoding/json"
	"errors"
	"html/template"
	"log/slog"
	"net/http"
	"sync"
	"time"

	"github.com/conorfennell/mochirev/internal/domain"
	"github.com/conorfennell/mochirev/internal/gradesync"
	"github.com/conorfennell/mochirev/internal/session"
)

//go:embed all:templates
var templateFiles embed.FS

// Server holds the dependencies for the review HTTP server.
type Server struct {
	session   *session.Session
	queue     *gradesync.Queue
	deckName  string
	router    *http.ServeMux
	templates *template.Template

	idleTimeout time.Duration
	shutdown    chan struct{}
	once        sync.Once

	mu           sync.Mutex
	lastActivity time.Time
}

// NewServer creates and configures a review server for one session. The
// shutdown channel closes when the review finishes or the server idles
// out; the host uses it to stop listening.
func NewServer(sess *session.Session, queue *gradesync.Queue, deckName string, idleTimeout time.Duration) (*Server, error) {
	tpl, err := template.ParseFS(templateFiles, "templates/*.html")
	if err != nil {
		return nil, err
	}

	s := &Server{
		session:      sess,
		queue:        queue,
		deckName:     deckName,
		router:       http.NewServeMux(),
		templates:    tpl,
		idleTimeout:  idleTimeout,
		shutdown:     make(chan struct{}),
		lastActivity: time.Now(),
	}
	s.routes()
	if idleTimeout > 0 {
		go s.watchIdle()
	}
	return s, nil
}

// ServeHTTP implements the http.Handler interface.
func (s *Server) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	s.touch()
	s.router.ServeHTTP(w, r)
}

// Done closes when the session has been completed via the UI or the
// server idled out.
func (s *Server) Done() <-chan struct{} {
	return s.shutdown
}

func (s *Server) routes() {
	s.router.HandleFunc("/", s.handleIndex())
	s.router.HandleFunc("/api/prompt", s.handlePrompt())
	s.router.HandleFunc("/api/reveal", s.handleReveal())
	s.router.HandleFunc("/api/review", s.handleReview())
	s.router.HandleFunc("/api/stats", s.handleStats())
	s.router.HandleFunc("/api/done", s.handleDone())
}

func (s *Server) touch() {
	s.mu.Lock()
	s.lastActivity = time.Now()
	s.mu.Unlock()
}

// watchIdle shuts the server down after a stretch with no requests, so an
// abandoned browser tab does not keep the process alive.
func (s *Server) watchIdle() {
	ticker := time.NewTicker(30 * time.Second)
	defer ticker.Stop()
	for {
		select {
		case <-ticker.C:
			s.mu.Lock()
			idle := time.Since(s.lastActivity)
			s.mu.Unlock()
			if idle > s.idleTimeout {
				slog.Info("idle timeout reached, shutting down review server", "idle", idle)
				s.session.Abort()
				s.signalShutdown()
				return
			}
		case <-s.shutdown:
			return
		}
	}
}

func (s *Server) signalShutdown() {
	s.once.Do(func() { close(s.shutdown) })
}

func (s *Server) handleIndex() http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		if r.URL.Path != "/" {
			http.NotFound(w, r)
			return
		}
		data := map[string]any{
			"DeckName": s.deckName,
		}
		if err := s.templates.ExecuteTemplate(w, "review.html", data); err != nil {
			slog.Error("failed to render review page", "error", err)
		}
	}
}

type promptResponse struct {
	Complete bool   `json:"complete"`
	CardID   string `json:"card_id,omitempty"`
	Front    string `json:"front,omitempty"`
	Index    int    `json:"index,omitempty"`
	Total    int    `json:"total,omitempty"`
}

func (s *Server) handlePrompt() http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		prompt, err := s.session.Prompt()
		if errors.Is(err, session.ErrCompleted) {
			writeJSON(w, http.StatusOK, promptResponse{Complete: true})
			return
		}
		if err != nil {
			writeError(w, http.StatusConflict, err)
			return
		}
		writeJSON(w, http.StatusOK, promptResponse{
			CardID: prompt.CardID,
			Front:  prompt.Front,
			Index:  prompt.Index,
			Total:  prompt.Total,
		})
	}
}

func (s *Server) handleReveal() http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		if r.Method != http.MethodPost {
			http.Error(w, "Method not allowed", http.StatusMethodNotAllowed)
			return
		}
		back, err := s.session.Reveal()
		if err != nil {
			writeError(w, http.StatusConflict, err)
			return
		}
		writeJSON(w, http.StatusOK, map[string]string{"back": back})
	}
}

type reviewRequest struct {
	Remembered *bool `json:"remembered"`
	Skipped    bool  `json:"skipped"`
}

func (s *Server) handleReview() http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		if r.Method != http.MethodPost {
			http.Error(w, "Method not allowed", http.StatusMethodNotAllowed)
			return
		}
		var req reviewRequest
		if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
			writeError(w, http.StatusBadRequest, err)
			return
		}

		if req.Skipped {
			if err := s.session.Skip(); err != nil {
				writeError(w, http.StatusConflict, err)
				return
			}
			writeJSON(w, http.StatusOK, map[string]string{"status": "skipped"})
			return
		}

		if req.Remembered == nil {
			http.Error(w, "Missing remembered or skipped", http.StatusBadRequest)
			return
		}
		outcome := domain.Again
		if *req.Remembered {
			outcome = domain.Good
		}
		if err := s.session.Grade(outcome); err != nil {
			writeError(w, http.StatusConflict, err)
			return
		}
		writeJSON(w, http.StatusOK, map[string]string{"status": "ok"})
	}
}

type statsResponse struct {
	Index   int `json:"index"`
	Total   int `json:"total"`
	Good    int `json:"good"`
	Again   int `json:"again"`
	Skipped int `json:"skipped"`
	Pending int `json:"pending_sync"`
	Failed  int `json:"failed_sync"`
}

func (s *Server) handleStats() http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		progress := s.session.Progress()
		resp := statsResponse{
			Index:   progress.Index,
			Total:   progress.Total,
			Good:    progress.Good,
			Again:   progress.Again,
			Skipped: progress.Skipped,
		}
		if s.queue != nil {
			resp.Pending = s.queue.Pending()
			resp.Failed = len(s.queue.Failed())
		}
		writeJSON(w, http.StatusOK, resp)
	}
}

func (s *Server) handleDone() http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		if r.Method != http.MethodPost {
			http.Error(w, "Method not allowed", http.StatusMethodNotAllowed)
			return
		}
		if s.session.State() != session.Completed {
			s.session.Abort()
		}
		writeJSON(w, http.StatusOK, map[string]string{"status": "shutting_down"})
		s.signalShutdown()
	}
}

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	if err := json.NewEncoder(w).Encode(v); err != nil {
		slog.Error("failed to encode response", "error", err)
	}
}

func writeError(w http.ResponseWriter, status int, err error) {
	writeJSON(w, status, map[string]string{"error": err.Error()})
}
