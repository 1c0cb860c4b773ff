// Package server exposes the session pipeline over HTTP. Error responses
// carry the machine-checkable kind tag alongside the message so clients
// never parse error text.
package server

import (
	"context"
	"encoding/json"
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"

	"github.com/datasage-io/datasage/internal/config"
	"github.com/datasage-io/datasage/internal/errs"
	"github.com/datasage-io/datasage/internal/logger"
	"github.com/datasage-io/datasage/internal/session"
	"github.com/datasage-io/datasage/internal/viz"
)

// Server is the HTTP boundary. Each request runs against the session named
// by its X-Session-Id header; requests without one share the default session.
type Server struct {
	cfg      *config.Config
	log      *logger.Logger
	sessions *session.Manager
	selector *viz.Selector
	http     *http.Server
}

// New wires a server around the given session manager.
func New(cfg *config.Config, log *logger.Logger, sessions *session.Manager) *Server {
	if cfg == nil {
		cfg = config.Default()
	}
	if log == nil {
		log = logger.New(nil)
	}

	s := &Server{
		cfg:      cfg,
		log:      log,
		sessions: sessions,
		selector: viz.NewSelector(viz.Config{
			NumericThreshold:    cfg.Viz.NumericThreshold,
			IntegralThreshold:   cfg.Viz.IntegralThreshold,
			NumericSampleCap:    cfg.Viz.NumericSampleCap,
			TemporalSampleCap:   cfg.Viz.TemporalSampleCap,
			PreAggregatedRowCap: cfg.Viz.PreAggregatedRowCap,
		}),
	}

	r := chi.NewRouter()
	r.Use(middleware.Recoverer)
	r.Use(s.requestLogger)

	r.Get("/healthz", s.handleHealth)
	r.Post("/upload", s.handleUpload)
	r.Post("/query", s.handleQuery)
	r.Post("/visualize", s.handleVisualize)
	r.Get("/export", s.handleExport)
	r.Get("/dataset", s.handleDataset)

	s.http = &http.Server{
		Addr:         cfg.Server.Addr,
		Handler:      r,
		ReadTimeout:  cfg.Server.ReadTimeout.Std(),
		WriteTimeout: cfg.Server.WriteTimeout.Std(),
	}
	return s
}

// ListenAndServe blocks until the server stops.
func (s *Server) ListenAndServe() error {
	s.log.With().Str("addr", s.cfg.Server.Addr).Logger().Info("http server listening")
	return s.http.ListenAndServe()
}

// Shutdown drains in-flight requests within the configured grace period.
func (s *Server) Shutdown(ctx context.Context) error {
	ctx, cancel := context.WithTimeout(ctx, s.cfg.Server.ShutdownTimeout.Std())
	defer cancel()
	return s.http.Shutdown(ctx)
}

// Handler exposes the router, used by tests.
func (s *Server) Handler() http.Handler {
	return s.http.Handler
}

// sessionFor picks the request's session from the X-Session-Id header; an
// absent header maps to the shared default session.
func (s *Server) sessionFor(r *http.Request) *session.Session {
	return s.sessions.Get(r.Header.Get("X-Session-Id"))
}

func (s *Server) requestLogger(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		ww := middleware.NewWrapResponseWriter(w, r.ProtoMajor)
		start := time.Now()
		next.ServeHTTP(ww, r)
		s.log.With().
			Str("method", r.Method).
			Str("path", r.URL.Path).
			Int("status", ww.Status()).
			Dur("duration", time.Since(start)).
			Logger().Info("request")
	})
}

// errorBody is the JSON shape of every failure response.
type errorBody struct {
	Error struct {
		Kind    string `json:"kind"`
		Message string `json:"message"`
	} `json:"error"`
}

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	json.NewEncoder(w).Encode(v)
}

func (s *Server) writeError(w http.ResponseWriter, err error) {
	kind := errs.KindOf(err)

	var body errorBody
	body.Error.Kind = kind.String()
	body.Error.Message = err.Error()

	writeJSON(w, statusFor(kind), body)
}

// statusFor maps error kinds to HTTP statuses. Query-shape problems are
// client errors; engine runtime failures are not.
func statusFor(kind errs.ErrKind) int {
	switch kind {
	case errs.ErrKindNoDataset:
		return http.StatusConflict
	case errs.ErrKindEmptyQuestion, errs.ErrKindInvalidInput:
		return http.StatusBadRequest
	case errs.ErrKindUnsafeQuery, errs.ErrKindBinder, errs.ErrKindCatalog:
		return http.StatusUnprocessableEntity
	case errs.ErrKindTranslationUnavailable:
		return http.StatusBadGateway
	case errs.ErrKindTimeout:
		return http.StatusGatewayTimeout
	default:
		return http.StatusInternalServerError
	}
}
