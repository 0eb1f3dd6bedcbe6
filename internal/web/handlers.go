package web

import (
	"crypto/subtle"
	"encoding/json"
	"errors"
	"fmt"
	"html/template"
	"net/http"
	"strings"
	"time"

	"newsdesk/internal/model"
	"newsdesk/internal/pagination"
	"newsdesk/internal/scheduler"
	"newsdesk/internal/store"

	"github.com/google/uuid"
	"github.com/gorilla/mux"
	"go.uber.org/zap"
)

type pageData struct {
	Title string
	Page  pagination.Page
	Flash string
}

func (s *Server) handleIndex(w http.ResponseWriter, r *http.Request) {
	page := 1
	if raw, ok := mux.Vars(r)["page"]; ok {
		page = pagination.ParsePageToken(raw)
	}

	data := pageData{
		Title: s.opts.Title,
		Page:  s.pages.RenderPage(r.Context(), page),
		Flash: s.flashes.pop(w, r),
	}
	s.render(w, s.indexTmpl, "layout", data)
}

// handleAjax renders only the articles block for the pagination script. The
// page value is sanitized exactly like the one in /page/{page}.
func (s *Server) handleAjax(w http.ResponseWriter, r *http.Request) {
	if r.FormValue("action") != AjaxAction {
		http.Error(w, "Unknown action", http.StatusBadRequest)
		return
	}

	page := pagination.ParsePageToken(r.FormValue("page"))
	data := pageData{
		Title: s.opts.Title,
		Page:  s.pages.RenderPage(r.Context(), page),
	}
	s.render(w, s.indexTmpl, "articles", data)
}

func (s *Server) handleView(w http.ResponseWriter, r *http.Request) {
	id, err := uuid.Parse(mux.Vars(r)["id"])
	if err != nil {
		http.Error(w, "Invalid ID", http.StatusBadRequest)
		return
	}

	article, err := s.articles.Get(r.Context(), id)
	if errors.Is(err, store.ErrNotFound) {
		http.NotFound(w, r)
		return
	}
	if err != nil {
		s.logger.Error("Failed to load article", zap.String("id", id.String()), zap.Error(err))
		http.Error(w, "Database error", http.StatusInternalServerError)
		return
	}

	data := struct {
		Title   string
		Article *model.Article
	}{
		Title:   article.Title,
		Article: article,
	}
	s.render(w, s.viewTmpl, "layout", data)
}

// handleFetch triggers a manual run. Browsers get a flash message and a
// redirect home; API clients get the result as JSON.
//
// A run is bounded by the upstream timeout, not the server's write timeout,
// so the write deadline is lifted before running.
func (s *Server) handleFetch(w http.ResponseWriter, r *http.Request) {
	if err := http.NewResponseController(w).SetWriteDeadline(time.Time{}); err != nil && !errors.Is(err, http.ErrNotSupported) {
		s.logger.Warn("Failed to lift write deadline", zap.Error(err))
	}
	result := s.jobs.RunNow(r.Context())

	if wantsHTML(r) {
		s.flashes.set(w, fetchMessage(result))
		http.Redirect(w, r, "/", http.StatusSeeOther)
		return
	}
	writeJSON(w, http.StatusOK, result)
}

func (s *Server) handleStatus(w http.ResponseWriter, r *http.Request) {
	reg, err := s.jobs.Registration(r.Context())
	if err != nil {
		s.logger.Error("Failed to read registration", zap.Error(err))
		http.Error(w, "Scheduler state unavailable", http.StatusInternalServerError)
		return
	}
	last, err := s.jobs.LastRun(r.Context())
	if err != nil {
		s.logger.Error("Failed to read last run", zap.Error(err))
		http.Error(w, "Scheduler state unavailable", http.StatusInternalServerError)
		return
	}

	writeJSON(w, http.StatusOK, struct {
		Registration *scheduler.Registration `json:"registration"`
		LastRun      *scheduler.LastRun      `json:"last_run"`
	}{reg, last})
}

func (s *Server) requireAdmin(next http.HandlerFunc) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		if s.opts.AdminToken != "" {
			token := r.Header.Get("X-Admin-Token")
			if token == "" {
				token = r.FormValue("token")
			}
			if subtle.ConstantTimeCompare([]byte(token), []byte(s.opts.AdminToken)) != 1 {
				http.Error(w, "Unauthorized", http.StatusUnauthorized)
				return
			}
		}
		next(w, r)
	}
}

func (s *Server) render(w http.ResponseWriter, tmpl *template.Template, name string, data any) {
	w.Header().Set("Content-Type", "text/html; charset=utf-8")
	if err := tmpl.ExecuteTemplate(w, name, data); err != nil {
		s.logger.Error("Template error", zap.String("template", name), zap.Error(err))
	}
}

func fetchMessage(r model.FetchResult) string {
	if !r.OK {
		return fmt.Sprintf("Fetch failed (%s): %s", r.Reason, r.Error)
	}
	return fmt.Sprintf("Fetch complete: %d new, %d already stored", r.Inserted, r.Skipped)
}

func wantsHTML(r *http.Request) bool {
	return strings.Contains(r.Header.Get("Accept"), "text/html")
}

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	json.NewEncoder(w).Encode(v)
}
