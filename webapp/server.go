package webapp

import (
	"context"
	"embed"
	"encoding/json"
	"errors"
	"fmt"
	"html/template"
	"log/slog"
	"net/http"
	"strconv"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"github.com/gorilla/websocket"

	"chunk-quiz/quiz"
)

//go:embed templates/index.html
var templatesFS embed.FS

// fadeKick is the pause between showing a panel and starting its fade-in.
const fadeKick = 50 * time.Millisecond

type Options struct {
	Content    *quiz.Content
	Mode       quiz.Mode
	SessionTTL time.Duration
	Fade       time.Duration
	Logger     *slog.Logger
}

type Server struct {
	content  *quiz.Content
	mode     quiz.Mode
	fade     time.Duration
	sessions *sessionStore
	md       *markdown
	page     *template.Template
	upgrader websocket.Upgrader
	log      *slog.Logger
}

func New(opts Options) (*Server, error) {
	if opts.Content == nil {
		return nil, errors.New("webapp: no quiz content")
	}
	if opts.Mode == quiz.ModeChoice && !opts.Content.HasOptions() {
		return nil, fmt.Errorf("webapp: %w: choice mode needs options", quiz.ErrInvalidContent)
	}
	logger := opts.Logger
	if logger == nil {
		logger = slog.Default()
	}
	page, err := template.ParseFS(templatesFS, "templates/index.html")
	if err != nil {
		return nil, fmt.Errorf("webapp: parse page: %w", err)
	}
	content, mode := opts.Content, opts.Mode
	sessions := newSessionStore(opts.SessionTTL, func() (*quiz.Session, error) {
		return quiz.NewSession(content, mode)
	})
	return &Server{
		content:  content,
		mode:     mode,
		fade:     opts.Fade,
		sessions: sessions,
		md:       newMarkdown(),
		page:     page,
		log:      logger,
	}, nil
}

// Router returns the HTTP handler for the page, the JSON API and the stream.
func (s *Server) Router() http.Handler {
	r := chi.NewRouter()

	r.Use(middleware.RequestID)
	r.Use(middleware.RequestLogger(&middleware.DefaultLogFormatter{
		Logger:  slog.NewLogLogger(s.log.Handler(), slog.LevelInfo),
		NoColor: true,
	}))
	r.Use(middleware.Recoverer)

	r.Get("/", s.handleHome)
	r.Get("/healthz", s.handleHealth)

	r.Route("/api", func(r chi.Router) {
		r.Get("/state", s.handleState)
		r.Post("/breaks/{id}/toggle", s.handleToggle)
		r.Post("/select", s.handleSelect)
		r.Post("/submit", s.handleSubmit)
		r.Post("/back", s.handleBack)
		r.Post("/reset", s.handleReset)
		r.Get("/ws", s.handleStream)
	})
	return r
}

// Run serves until ctx is cancelled, then shuts down gracefully.
func Run(ctx context.Context, addr string, s *Server) error {
	server := &http.Server{
		Addr:         addr,
		Handler:      s.Router(),
		ReadTimeout:  5 * time.Second,
		WriteTimeout: 10 * time.Second,
	}
	errc := make(chan error, 1)
	go func() {
		s.log.Info("chunking quiz available", "addr", "http://"+addr, "mode", s.mode)
		errc <- server.ListenAndServe()
	}()

	select {
	case err := <-errc:
		return err
	case <-ctx.Done():
	}
	shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	s.log.Info("shutting down")
	if err := server.Shutdown(shutdownCtx); err != nil {
		return err
	}
	if err := <-errc; !errors.Is(err, http.ErrServerClosed) {
		return err
	}
	return nil
}

type stateResponse struct {
	quiz.Snapshot
	HTML htmlPayload `json:"html"`
}

// htmlPayload carries the markdown fields of a snapshot rendered to HTML.
type htmlPayload struct {
	Instructions    string   `json:"instructions,omitempty"`
	Summary         string   `json:"summary,omitempty"`
	Feedback        string   `json:"feedback,omitempty"`
	CorrectFeedback string   `json:"correctFeedback,omitempty"`
	Reasoning       []string `json:"reasoning,omitempty"`
}

type selectRequest struct {
	Option string `json:"option"`
}

type errorResponse struct {
	Error  string `json:"error"`
	Prompt string `json:"prompt,omitempty"`
}

type pageData struct {
	Title  string
	FadeMS int64
	KickMS int64
}

func (s *Server) handleHome(w http.ResponseWriter, r *http.Request) {
	// Issue the session cookie with the page so the stream and API share it.
	if _, err := s.sessions.get(w, r); err != nil {
		s.writeError(w, err)
		return
	}
	w.Header().Set("Content-Type", "text/html; charset=utf-8")
	data := pageData{
		Title:  s.content.Title,
		FadeMS: s.fade.Milliseconds(),
		KickMS: fadeKick.Milliseconds(),
	}
	if err := s.page.Execute(w, data); err != nil {
		s.log.Error("render page", "err", err)
	}
}

func (s *Server) handleHealth(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, map[string]string{"status": "ok"})
}

func (s *Server) handleState(w http.ResponseWriter, r *http.Request) {
	session, err := s.sessions.get(w, r)
	if err != nil {
		s.writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, s.buildState(session))
}

func (s *Server) handleToggle(w http.ResponseWriter, r *http.Request) {
	id, err := strconv.Atoi(chi.URLParam(r, "id"))
	if err != nil {
		writeJSON(w, http.StatusBadRequest, errorResponse{Error: "break id must be an integer"})
		return
	}
	s.mutate(w, r, func(session *quiz.Session) error {
		_, err := session.ToggleBreak(id)
		return err
	})
}

func (s *Server) handleSelect(w http.ResponseWriter, r *http.Request) {
	var req selectRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeJSON(w, http.StatusBadRequest, errorResponse{Error: "invalid request body"})
		return
	}
	s.mutate(w, r, func(session *quiz.Session) error {
		return session.SelectOption(req.Option)
	})
}

func (s *Server) handleSubmit(w http.ResponseWriter, r *http.Request) {
	s.mutate(w, r, func(session *quiz.Session) error {
		_, err := session.Submit()
		return err
	})
}

func (s *Server) handleBack(w http.ResponseWriter, r *http.Request) {
	s.mutate(w, r, func(session *quiz.Session) error {
		session.Back()
		return nil
	})
}

func (s *Server) handleReset(w http.ResponseWriter, r *http.Request) {
	s.mutate(w, r, func(session *quiz.Session) error {
		session.Reset()
		return nil
	})
}

// mutate runs one transition on the caller's session and answers with the
// resulting state.
func (s *Server) mutate(w http.ResponseWriter, r *http.Request, fn func(*quiz.Session) error) {
	session, err := s.sessions.get(w, r)
	if err != nil {
		s.writeError(w, err)
		return
	}
	if err := fn(session); err != nil {
		s.writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, s.buildState(session))
}

func (s *Server) buildState(session *quiz.Session) stateResponse {
	snap := session.Snapshot()
	resp := stateResponse{Snapshot: snap}
	resp.HTML.Instructions = s.md.render(snap.Instructions)
	if res := snap.Result; res != nil {
		resp.HTML.Summary = fmt.Sprintf("<strong>Your chunking:</strong> %s<br><strong>Model's chunking:</strong> %s",
			chunkCount(res.UserChunkCount), chunkCount(res.ReferenceChunkCount))
		resp.HTML.Feedback = s.md.render(res.Feedback)
		if res.CorrectAnswer != nil {
			resp.HTML.CorrectFeedback = s.md.render(res.CorrectAnswer.Feedback)
		}
		for _, c := range res.ReferenceChunks {
			resp.HTML.Reasoning = append(resp.HTML.Reasoning, s.md.render(c.Reasoning))
		}
	}
	return resp
}

func chunkCount(n int) string {
	if n == 1 {
		return "1 chunk"
	}
	return strconv.Itoa(n) + " chunks"
}

func (s *Server) writeError(w http.ResponseWriter, err error) {
	switch {
	case errors.Is(err, quiz.ErrNoSelection):
		writeJSON(w, http.StatusUnprocessableEntity, errorResponse{Error: "no option selected", Prompt: err.Error()})
	case errors.Is(err, quiz.ErrInvalidBreak), errors.Is(err, quiz.ErrUnknownOption), errors.Is(err, quiz.ErrWrongMode):
		writeJSON(w, http.StatusBadRequest, errorResponse{Error: err.Error()})
	default:
		s.log.Error("request failed", "err", err)
		writeJSON(w, http.StatusInternalServerError, errorResponse{Error: "internal error"})
	}
}

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	enc := json.NewEncoder(w)
	enc.SetIndent("", "  ")
	_ = enc.Encode(v)
}
