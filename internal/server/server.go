// Package server exposes the import workflow over HTTP so the practice
// management UI can drive preflight, review, and commit remotely.
package server

import (
	"context"
	"encoding/json"
	"net/http"
	"sync"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"github.com/go-chi/cors"
	"go.uber.org/zap"

	"github.com/dentexa/import-cli/internal/commit"
	"github.com/dentexa/import-cli/internal/model"
	"github.com/dentexa/import-cli/internal/reconcile"
	"github.com/dentexa/import-cli/internal/report"
	"github.com/dentexa/import-cli/internal/store"
)

// maxUploadSize caps import file uploads at 50MB.
const maxUploadSize = 50 << 20

// Server drives import sessions over HTTP. One session is one uploaded
// file held in memory from preflight through commit.
type Server struct {
	st        store.RecordStore
	engineCfg commit.Config
	encoding  string
	router    *chi.Mux
	log       *zap.Logger

	mu       sync.Mutex
	sessions map[string]*session
}

type sessionState string

const (
	statePreflight  sessionState = "preflight"
	stateCommitting sessionState = "committing"
	stateDone       sessionState = "done"
)

type session struct {
	id     string
	entity store.Entity
	pol    reconcile.Policy
	pre    *reconcile.PreflightResult
	rep    *report.Report
	engine *commit.Engine
	cancel context.CancelFunc

	mu     sync.Mutex
	state  sessionState
	result *commit.Result
}

// New creates a Server backed by the given record store.
func New(st store.RecordStore, engineCfg commit.Config, encoding string) *Server {
	s := &Server{
		st:        st,
		engineCfg: engineCfg,
		encoding:  encoding,
		router:    chi.NewRouter(),
		log:       zap.L().Named("server"),
		sessions:  make(map[string]*session),
	}
	s.setupMiddleware()
	s.setupRoutes()
	return s
}

func (s *Server) setupMiddleware() {
	s.router.Use(middleware.RequestID)
	s.router.Use(middleware.RealIP)
	s.router.Use(middleware.Recoverer)
	s.router.Use(middleware.Timeout(120 * time.Second))
	s.router.Use(cors.Handler(cors.Options{
		AllowedOrigins: []string{"*"},
		AllowedMethods: []string{"GET", "POST", "OPTIONS"},
		AllowedHeaders: []string{"Accept", "Authorization", "Content-Type"},
	}))
}

func (s *Server) setupRoutes() {
	s.router.Get("/health", func(w http.ResponseWriter, r *http.Request) {
		writeJSON(w, http.StatusOK, map[string]string{"status": "ok"})
	})

	s.router.Route("/api/imports", func(r chi.Router) {
		r.Post("/", s.handleCreateImport)
		r.Get("/{sessionID}/report", s.handleReport)
		r.Get("/{sessionID}/report.csv", s.handleReportCSV)
		r.Post("/{sessionID}/commit", s.handleCommit)
		r.Get("/{sessionID}/progress", s.handleProgress)
		r.Post("/{sessionID}/cancel", s.handleCancel)
	})
}

// Handler returns the HTTP handler for mounting.
func (s *Server) Handler() http.Handler {
	return s.router
}

func (s *Server) session(r *http.Request) (*session, bool) {
	s.mu.Lock()
	defer s.mu.Unlock()
	sess, ok := s.sessions[chi.URLParam(r, "sessionID")]
	return sess, ok
}

// Shutdown cancels every in-flight commit.
func (s *Server) Shutdown() {
	s.mu.Lock()
	defer s.mu.Unlock()
	for _, sess := range s.sessions {
		sess.mu.Lock()
		cancel := sess.cancel
		sess.mu.Unlock()
		if cancel != nil {
			cancel()
		}
	}
}

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	json.NewEncoder(w).Encode(v) //nolint:errcheck
}

func writeError(w http.ResponseWriter, status int, msg string) {
	writeJSON(w, status, map[string]string{"error": msg})
}

func (sess *session) snapshotState() (sessionState, *commit.Result) {
	sess.mu.Lock()
	defer sess.mu.Unlock()
	return sess.state, sess.result
}

func (sess *session) beginCommit() bool {
	sess.mu.Lock()
	defer sess.mu.Unlock()
	if sess.state != statePreflight {
		return false
	}
	sess.state = stateCommitting
	return true
}

func (sess *session) finishCommit(res commit.Result) {
	sess.mu.Lock()
	defer sess.mu.Unlock()
	sess.state = stateDone
	sess.result = &res
}

// overridesFromRequest decodes the optional override selection body.
func overridesFromRequest(r *http.Request) (model.OverrideSelection, error) {
	var sel model.OverrideSelection
	if r.Body == nil || r.ContentLength == 0 {
		return sel, nil
	}
	err := json.NewDecoder(r.Body).Decode(&sel)
	return sel, err
}
