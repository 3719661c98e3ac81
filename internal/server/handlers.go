package server

import (
	"context"
	"fmt"
	"io"
	"net/http"
	"os"
	"path/filepath"
	"strconv"

	"github.com/go-chi/chi/v5"
	"github.com/google/uuid"
	"go.uber.org/zap"

	"github.com/dentexa/import-cli/internal/commit"
	"github.com/dentexa/import-cli/internal/parse"
	"github.com/dentexa/import-cli/internal/reconcile"
	"github.com/dentexa/import-cli/internal/report"
	"github.com/dentexa/import-cli/internal/store"
)

// handleCreateImport accepts a multipart upload ("file" plus an "entity"
// form value) and runs preflight against a fresh store snapshot.
func (s *Server) handleCreateImport(w http.ResponseWriter, r *http.Request) {
	r.Body = http.MaxBytesReader(w, r.Body, maxUploadSize)
	if err := r.ParseMultipartForm(maxUploadSize); err != nil {
		writeError(w, http.StatusBadRequest, "file too large or invalid form")
		return
	}

	entity := store.Entity(r.FormValue("entity"))
	if !entity.Valid() {
		writeError(w, http.StatusBadRequest, "entity must be clients or patients")
		return
	}

	file, header, err := r.FormFile("file")
	if err != nil {
		writeError(w, http.StatusBadRequest, "no file provided")
		return
	}
	defer file.Close() //nolint:errcheck

	rows, err := s.readUpload(file, header.Filename)
	if err != nil {
		writeError(w, http.StatusUnprocessableEntity, err.Error())
		return
	}

	pol, snap, err := reconcile.Load(r.Context(), s.st, entity)
	if err != nil {
		writeError(w, http.StatusBadGateway, err.Error())
		return
	}

	pre := reconcile.Classify(rows, snap, pol)
	sess := &session{
		id:     uuid.NewString(),
		entity: entity,
		pol:    pol,
		pre:    pre,
		rep:    report.New(pre),
		state:  statePreflight,
	}

	s.mu.Lock()
	s.sessions[sess.id] = sess
	s.mu.Unlock()

	s.log.Info("preflight complete",
		zap.String("session", sess.id),
		zap.String("entity", string(entity)),
		zap.String("file", header.Filename),
		zap.Int("total", pre.Total))

	writeJSON(w, http.StatusCreated, map[string]any{
		"session_id": sess.id,
		"entity":     entity,
		"summary":    sess.rep.Summary,
	})
}

// readUpload spools the multipart file to disk so the extension-dispatched
// reader can open it.
func (s *Server) readUpload(file io.Reader, name string) ([][]string, error) {
	tmp, err := os.CreateTemp("", "import-*"+filepath.Ext(name))
	if err != nil {
		return nil, err
	}
	defer os.Remove(tmp.Name()) //nolint:errcheck

	if _, err := io.Copy(tmp, file); err != nil {
		tmp.Close()
		return nil, err
	}
	if err := tmp.Close(); err != nil {
		return nil, err
	}
	return parse.ReadRows(tmp.Name(), parse.Options{Encoding: s.encoding})
}

func (s *Server) handleReport(w http.ResponseWriter, r *http.Request) {
	sess, ok := s.session(r)
	if !ok {
		writeError(w, http.StatusNotFound, "session not found")
		return
	}

	offset, _ := strconv.Atoi(r.URL.Query().Get("offset"))
	limit, _ := strconv.Atoi(r.URL.Query().Get("limit"))

	writeJSON(w, http.StatusOK, map[string]any{
		"entity":  sess.entity,
		"summary": sess.rep.Summary,
		"rows":    sess.rep.Page(offset, limit),
	})
}

func (s *Server) handleReportCSV(w http.ResponseWriter, r *http.Request) {
	sess, ok := s.session(r)
	if !ok {
		writeError(w, http.StatusNotFound, "session not found")
		return
	}

	w.Header().Set("Content-Type", "text/csv; charset=utf-8")
	w.Header().Set("Content-Disposition",
		fmt.Sprintf(`attachment; filename="preflight-%s.csv"`, chi.URLParam(r, "sessionID")))
	if err := sess.rep.WriteCSV(w); err != nil {
		s.log.Error("report export failed", zap.Error(err))
	}
}

// handleCommit starts the commit engine in the background and returns
// immediately; progress is polled separately.
func (s *Server) handleCommit(w http.ResponseWriter, r *http.Request) {
	sess, ok := s.session(r)
	if !ok {
		writeError(w, http.StatusNotFound, "session not found")
		return
	}

	sel, err := overridesFromRequest(r)
	if err != nil {
		writeError(w, http.StatusBadRequest, "invalid override selection")
		return
	}

	if !sess.beginCommit() {
		writeError(w, http.StatusConflict, "commit already started")
		return
	}

	updates, creates := commit.Plan(sess.pre, sel, sess.pol)
	ctx, cancel := context.WithCancel(context.Background())
	eng := commit.NewEngine(s.st, sess.entity, s.engineCfg)

	sess.mu.Lock()
	sess.cancel = cancel
	sess.engine = eng
	sess.mu.Unlock()

	go func() {
		defer cancel()
		res := eng.Run(ctx, updates, creates)
		sess.finishCommit(res)
		s.log.Info("commit finished",
			zap.String("session", sess.id),
			zap.Int("created", res.Created),
			zap.Int("updated", res.Updated),
			zap.Int("failed", len(res.Failures)),
			zap.Bool("cancelled", res.Cancelled))
	}()

	writeJSON(w, http.StatusAccepted, map[string]any{
		"session_id": sess.id,
		"updates":    len(updates),
		"creates":    len(creates),
	})
}

func (s *Server) handleProgress(w http.ResponseWriter, r *http.Request) {
	sess, ok := s.session(r)
	if !ok {
		writeError(w, http.StatusNotFound, "session not found")
		return
	}

	state, result := sess.snapshotState()
	sess.mu.Lock()
	eng := sess.engine
	sess.mu.Unlock()

	resp := map[string]any{"state": state}
	if eng != nil {
		completed, total := eng.Progress()
		resp["completed"] = completed
		resp["total"] = total
	}
	if result != nil {
		resp["result"] = map[string]any{
			"created":   result.Created,
			"updated":   result.Updated,
			"failures":  result.Failures,
			"cancelled": result.Cancelled,
		}
	}
	writeJSON(w, http.StatusOK, resp)
}

func (s *Server) handleCancel(w http.ResponseWriter, r *http.Request) {
	sess, ok := s.session(r)
	if !ok {
		writeError(w, http.StatusNotFound, "session not found")
		return
	}

	sess.mu.Lock()
	cancel := sess.cancel
	sess.mu.Unlock()
	if cancel != nil {
		cancel()
	}
	writeJSON(w, http.StatusAccepted, map[string]string{"status": "cancelling"})
}
