// Package api serves roster and download statistics over a read-only JSON
// HTTP API.
//
// Routes:
//
//	GET /healthz
//	GET /metrics
//	GET /starred                    active stargazers, newest first
//	GET /unstarred                  departed stargazers, most recent first
//	GET /stars/count                starred, unstarred and total ever
//	GET /stars/daily?days=          star count deltas and summary
//	GET /roster/events?from=&to=    joined/left events
//	GET /roster/daily?days=         per-day reconciliation counts
//	GET /packages/{id}              package statistics
//	GET /downloads/daily?days=      download deltas
//	GET /downloads/summary?days=    download aggregates
//
// Errors are returned as {"error": CODE, "message": "..."}.
package api

import (
	"context"
	"encoding/json"
	"net/http"
	"time"

	"github.com/charmbracelet/log"
	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"

	"github.com/matzehuels/pkgpulse/pkg/daily"
	"github.com/matzehuels/pkgpulse/pkg/errors"
	"github.com/matzehuels/pkgpulse/pkg/packagestats"
	"github.com/matzehuels/pkgpulse/pkg/roster"
)

const (
	defaultDays = 30
	maxDays     = 365
)

// Store is the storage the API reads from.
type Store interface {
	daily.SnapshotSource

	Starred(ctx context.Context, project string) ([]roster.Account, error)
	Unstarred(ctx context.Context, project string) ([]roster.Account, error)
	Accounts(ctx context.Context, project string) ([]roster.Account, error)
	Summary(ctx context.Context, project string) (roster.Summary, error)
	RosterDaily(ctx context.Context, project string, days int) ([]roster.DailyStats, error)
	Ping(ctx context.Context) error
}

// StatsProvider returns package statistics. *packagestats.Provider
// implements it.
type StatsProvider interface {
	Statistics(ctx context.Context, pkg string) (*packagestats.PackageStatistics, error)
}

// Options configures a Server.
type Options struct {
	Project string // owner/repo whose roster is served
	Package string // default package for download routes

	// Metrics is mounted at /metrics when non-nil.
	Metrics http.Handler

	Now    func() time.Time
	Logger *log.Logger
}

// Server holds the API dependencies.
type Server struct {
	store   Store
	stats   StatsProvider
	project string
	pkg     string
	metrics http.Handler
	now     func() time.Time
	logger  *log.Logger
}

// New creates a Server.
func New(store Store, stats StatsProvider, opts Options) *Server {
	if opts.Now == nil {
		opts.Now = time.Now
	}
	if opts.Logger == nil {
		opts.Logger = log.Default()
	}
	return &Server{
		store:   store,
		stats:   stats,
		project: opts.Project,
		pkg:     opts.Package,
		metrics: opts.Metrics,
		now:     opts.Now,
		logger:  opts.Logger,
	}
}

// Handler returns the router.
func (s *Server) Handler() http.Handler {
	r := chi.NewRouter()
	r.Use(middleware.RequestID)
	r.Use(middleware.Recoverer)
	r.Use(s.logRequests)

	r.Get("/healthz", s.health)
	if s.metrics != nil {
		r.Method(http.MethodGet, "/metrics", s.metrics)
	}

	r.Get("/starred", s.starred)
	r.Get("/unstarred", s.unstarred)
	r.Route("/stars", func(r chi.Router) {
		r.Get("/count", s.starCount)
		r.Get("/daily", s.starDaily)
	})
	r.Route("/roster", func(r chi.Router) {
		r.Get("/events", s.rosterEvents)
		r.Get("/daily", s.rosterDaily)
	})
	r.Get("/packages/{id}", s.packageStats)
	r.Route("/downloads", func(r chi.Router) {
		r.Get("/daily", s.downloadDaily)
		r.Get("/summary", s.downloadSummary)
	})
	return r
}

func (s *Server) logRequests(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		ww := middleware.NewWrapResponseWriter(w, r.ProtoMajor)
		start := time.Now()
		next.ServeHTTP(ww, r)
		s.logger.Debug("http",
			"method", r.Method,
			"path", r.URL.Path,
			"status", ww.Status(),
			"duration", time.Since(start).Round(time.Microsecond),
			"request_id", middleware.GetReqID(r.Context()),
		)
	})
}

type errorBody struct {
	Error   errors.Code `json:"error"`
	Message string      `json:"message"`
}

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(v)
}

// writeError maps a coded error to an HTTP status.
func (s *Server) writeError(w http.ResponseWriter, r *http.Request, err error) {
	code := errors.GetCode(err)
	status := http.StatusInternalServerError
	switch code {
	case errors.ErrCodeInvalidInput, errors.ErrCodeInvalidPackage, errors.ErrCodeInvalidProject:
		status = http.StatusBadRequest
	case errors.ErrCodeNoVersionsFound:
		status = http.StatusNotFound
	case errors.ErrCodeSourceUnavailable:
		status = http.StatusBadGateway
	case "":
		code = errors.ErrCodeInternal
	}
	if status >= 500 {
		s.logger.Error("request failed", "path", r.URL.Path, "err", err)
	}
	writeJSON(w, status, errorBody{Error: code, Message: errors.UserMessage(err)})
}
