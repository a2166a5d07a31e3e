// Package server wires the relay HTTP service: health and version
// endpoints, the render API and the embedded demo page.
package server

import (
	"context"
	"errors"
	"fmt"
	"io/fs"
	"net"
	"net/http"
	"strconv"
	"time"

	"github.com/go-chi/chi/v5"
	chimw "github.com/go-chi/chi/v5/middleware"
	"go.uber.org/zap"

	webassets "github.com/3leaps/renderstack/internal/assets/web"
	apperrors "github.com/3leaps/renderstack/internal/errors"
	"github.com/3leaps/renderstack/internal/server/handlers"
	"github.com/3leaps/renderstack/internal/server/middleware"
	"github.com/3leaps/renderstack/pkg/render"
)

// Default HTTP timeouts. WriteTimeout must outlast the render wait bound.
const (
	DefaultReadTimeout  = 15 * time.Second
	DefaultWriteTimeout = 11 * time.Minute
	DefaultIdleTimeout  = 60 * time.Second
)

// Server is the relay HTTP server.
type Server struct {
	host   string
	port   int
	router chi.Router
	http   *http.Server
	logger *zap.Logger

	renderSvc  render.Service
	renderOpts handlers.RenderOptions
	submitRate int

	readTimeout  time.Duration
	writeTimeout time.Duration
	idleTimeout  time.Duration
}

// Option configures a Server.
type Option func(*Server)

// WithRenderService enables the render API backed by svc.
func WithRenderService(svc render.Service, opts handlers.RenderOptions) Option {
	return func(s *Server) {
		s.renderSvc = svc
		s.renderOpts = opts
	}
}

// WithSubmitRate limits render submissions per client IP and minute.
func WithSubmitRate(perMinute int) Option {
	return func(s *Server) { s.submitRate = perMinute }
}

// WithLogger sets the request and server logger.
func WithLogger(l *zap.Logger) Option {
	return func(s *Server) {
		if l != nil {
			s.logger = l
		}
	}
}

// WithTimeouts overrides the HTTP timeouts. Zero values keep the defaults.
func WithTimeouts(read, write, idle time.Duration) Option {
	return func(s *Server) {
		if read > 0 {
			s.readTimeout = read
		}
		if write > 0 {
			s.writeTimeout = write
		}
		if idle > 0 {
			s.idleTimeout = idle
		}
	}
}

// New creates a server listening on host:port once started.
func New(host string, port int, opts ...Option) *Server {
	s := &Server{
		host:         host,
		port:         port,
		logger:       zap.NewNop(),
		readTimeout:  DefaultReadTimeout,
		writeTimeout: DefaultWriteTimeout,
		idleTimeout:  DefaultIdleTimeout,
	}
	for _, opt := range opts {
		opt(s)
	}
	s.router = s.routes()
	s.http = &http.Server{
		Addr:              s.Addr(),
		Handler:           s.router,
		ReadTimeout:       s.readTimeout,
		ReadHeaderTimeout: s.readTimeout,
		WriteTimeout:      s.writeTimeout,
		IdleTimeout:       s.idleTimeout,
	}
	return s
}

func (s *Server) routes() chi.Router {
	r := chi.NewRouter()

	r.Use(middleware.RequestID)
	r.Use(chimw.RealIP)
	r.Use(middleware.RequestLogger(s.logger))
	r.Use(middleware.Recovery)

	r.NotFound(func(w http.ResponseWriter, req *http.Request) {
		apperrors.RespondWithError(w, req, apperrors.NewNotFoundError("route not found: "+req.URL.Path))
	})
	r.MethodNotAllowed(func(w http.ResponseWriter, req *http.Request) {
		apperrors.RespondWithError(w, req, apperrors.NewMethodNotAllowedError("method "+req.Method+" not allowed on "+req.URL.Path))
	})

	r.Get("/health", handlers.HealthHandler)
	r.Get("/health/live", handlers.LivenessHandler)
	r.Get("/health/ready", handlers.ReadinessHandler)
	r.Get("/health/startup", handlers.StartupHandler)
	r.Get("/version", handlers.VersionHandler)

	r.Get("/", serveAsset("index.html", "text/html; charset=utf-8"))
	r.Get("/app.js", serveAsset("app.js", "application/javascript"))

	r.Route("/api", func(api chi.Router) {
		if s.renderSvc == nil {
			unavailable := func(w http.ResponseWriter, req *http.Request) {
				apperrors.RespondWithError(w, req, apperrors.NewUnavailableError("render service not configured", nil))
			}
			api.Post("/render", unavailable)
			api.Post("/render/wait", unavailable)
			api.Get("/progress", unavailable)
			return
		}

		rh := handlers.NewRenderHandler(s.renderSvc, s.renderOpts)
		// Both submit routes draw from one per-client budget.
		limit := middleware.RateLimit(s.submitRate)
		api.With(limit).Post("/render", rh.Submit)
		api.With(limit).Post("/render/wait", rh.SubmitAndWait)
		api.Get("/progress", rh.Progress)
	})

	return r
}

func serveAsset(name, contentType string) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		b, err := fs.ReadFile(webassets.FS, name)
		if err != nil {
			apperrors.RespondWithError(w, r, apperrors.WrapInternal(r.Context(), err, "asset unavailable"))
			return
		}
		w.Header().Set("Content-Type", contentType)
		w.Header().Set("Cache-Control", "no-cache")
		_, _ = w.Write(b)
	}
}

// Handler returns the root HTTP handler.
func (s *Server) Handler() http.Handler {
	return s.router
}

// Port returns the configured port.
func (s *Server) Port() int {
	return s.port
}

// Addr returns host:port.
func (s *Server) Addr() string {
	return net.JoinHostPort(s.host, strconv.Itoa(s.port))
}

// Start listens and serves until Shutdown. It returns nil after a clean
// shutdown.
func (s *Server) Start() error {
	s.logger.Info("relay listening", zap.String("addr", s.http.Addr))

	if err := s.http.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
		return fmt.Errorf("listen on %s: %w", s.http.Addr, err)
	}
	return nil
}

// Shutdown gracefully stops the server.
func (s *Server) Shutdown(ctx context.Context) error {
	return s.http.Shutdown(ctx)
}
