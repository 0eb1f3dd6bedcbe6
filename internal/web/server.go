package web

import (
	"context"
	"embed"
	"html/template"
	"io/fs"
	"net/http"
	"time"

	"newsdesk/internal/model"
	"newsdesk/internal/pagination"
	"newsdesk/internal/scheduler"

	"github.com/google/uuid"
	"github.com/gorilla/mux"
	"go.uber.org/zap"
)

// AjaxAction is the action name the pagination script posts with.
const AjaxAction = "articles_pagination"

//go:embed templates static
var assets embed.FS

// ArticleGetter loads a single article for the detail page.
type ArticleGetter interface {
	Get(ctx context.Context, id uuid.UUID) (*model.Article, error)
}

// Jobs is the fetch control surface: manual runs and schedule status.
type Jobs interface {
	RunNow(ctx context.Context) model.FetchResult
	LastRun(ctx context.Context) (*scheduler.LastRun, error)
	Registration(ctx context.Context) (*scheduler.Registration, error)
}

type Options struct {
	Title        string
	AdminToken   string        // empty disables the admin token check
	WriteTimeout time.Duration // default 15s; manual fetches are exempt
}

type Server struct {
	pages    *pagination.Service
	articles ArticleGetter
	jobs     Jobs
	logger   *zap.Logger
	opts     Options
	router   *mux.Router
	server   *http.Server
	flashes  *flashes

	indexTmpl *template.Template
	viewTmpl  *template.Template
}

func NewServer(pages *pagination.Service, articles ArticleGetter, jobs Jobs, logger *zap.Logger, opts Options) *Server {
	if opts.Title == "" {
		opts.Title = "News"
	}
	if opts.WriteTimeout <= 0 {
		opts.WriteTimeout = 15 * time.Second
	}
	if opts.AdminToken == "" {
		logger.Warn("No admin token configured, /admin endpoints are open to anyone")
	}
	s := &Server{
		pages:    pages,
		articles: articles,
		jobs:     jobs,
		logger:   logger,
		opts:     opts,
		router:   mux.NewRouter(),
		flashes:  newFlashes(),

		indexTmpl: parseTemplates("templates/layout.html", "templates/index.html", "templates/partials/articles.html"),
		viewTmpl:  parseTemplates("templates/layout.html", "templates/view.html"),
	}
	s.routes()
	return s
}

func parseTemplates(files ...string) *template.Template {
	funcs := template.FuncMap{
		// Content is sanitized before it is stored.
		"trusted": func(s string) template.HTML { return template.HTML(s) },
		"date":    func(t time.Time) string { return t.Format("Jan 02, 2006") },
	}
	return template.Must(template.New("layout").Funcs(funcs).ParseFS(assets, files...))
}

func (s *Server) routes() {
	s.router.Use(s.recoverPanics, s.logRequests)

	// Static Files (pagination script)
	static, _ := fs.Sub(assets, "static")
	s.router.PathPrefix("/static/").Handler(http.StripPrefix("/static/", http.FileServer(http.FS(static))))

	// App Routes
	s.router.HandleFunc("/", s.handleIndex).Methods("GET")
	s.router.HandleFunc("/page/{page}", s.handleIndex).Methods("GET")
	s.router.HandleFunc("/ajax", s.handleAjax).Methods("POST")
	s.router.HandleFunc("/article/{id}", s.handleView).Methods("GET")

	// Admin Routes
	s.router.HandleFunc("/admin/fetch", s.requireAdmin(s.handleFetch)).Methods("POST")
	s.router.HandleFunc("/admin/status", s.requireAdmin(s.handleStatus)).Methods("GET")
}

// Handler exposes the router, mostly for tests.
func (s *Server) Handler() http.Handler {
	return s.router
}

func (s *Server) httpServer(addr string) *http.Server {
	return &http.Server{
		Addr:         addr,
		Handler:      s.router,
		ReadTimeout:  15 * time.Second,
		WriteTimeout: s.opts.WriteTimeout,
	}
}

// Start launches the HTTP server
func (s *Server) Start(addr string) error {
	s.server = s.httpServer(addr)

	s.logger.Info("Web server listening", zap.String("addr", addr))
	return s.server.ListenAndServe()
}

// Stop gracefully shuts down
func (s *Server) Stop(ctx context.Context) error {
	if s.server == nil {
		return nil
	}
	return s.server.Shutdown(ctx)
}
