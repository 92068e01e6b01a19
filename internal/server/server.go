// Package server exposes spoolwatch queries, controls and live watch streams
// over HTTP.
package server

import (
	"context"
	"errors"
	"fmt"
	"net"
	"net/http"
	"strconv"
	"time"

	"github.com/go-chi/chi/v5"
	"go.uber.org/zap"

	apperrors "github.com/3leaps/spoolwatch/internal/errors"
	"github.com/3leaps/spoolwatch/internal/metrics"
	"github.com/3leaps/spoolwatch/internal/server/handlers"
	"github.com/3leaps/spoolwatch/internal/server/middleware"
	"github.com/3leaps/spoolwatch/pkg/monitor"
	"github.com/3leaps/spoolwatch/pkg/provider"
	"github.com/3leaps/spoolwatch/pkg/spool"
)

// Timeouts configures the underlying http.Server.
type Timeouts struct {
	Read     time.Duration
	Write    time.Duration
	Idle     time.Duration
	Shutdown time.Duration
}

// DefaultTimeouts match the config defaults.
var DefaultTimeouts = Timeouts{
	Read:     30 * time.Second,
	Write:    30 * time.Second,
	Idle:     120 * time.Second,
	Shutdown: 10 * time.Second,
}

// Server is the spoolwatch HTTP server.
type Server struct {
	host     string
	port     int
	logger   *zap.Logger
	timeouts Timeouts

	devices     *handlers.DeviceHandlers
	watch       *handlers.WatchHandler
	watchReader *spool.Reader
	watchOpts   monitor.Options
	metrics     *metrics.Collector
	metricsPath string
	httpServer  *http.Server
	router      chi.Router
}

// Option configures a Server.
type Option func(*Server)

// WithLogger sets the request and watch logger.
func WithLogger(l *zap.Logger) Option {
	return func(s *Server) {
		if l != nil {
			s.logger = l
		}
	}
}

func WithTimeouts(t Timeouts) Option {
	return func(s *Server) { s.timeouts = t }
}

// WithDevices enables the /devices and /sessions endpoints.
func WithDevices(h *handlers.DeviceHandlers) Option {
	return func(s *Server) { s.devices = h }
}

// WithWatch enables GET /devices/{name}/watch. defaults seeds each
// connection's monitor options.
func WithWatch(reader *spool.Reader, defaults monitor.Options) Option {
	return func(s *Server) {
		s.watchReader = reader
		s.watchOpts = defaults
	}
}

// WithMetrics serves c at path and reports watch sessions into it.
func WithMetrics(c *metrics.Collector, path string) Option {
	return func(s *Server) {
		s.metrics = c
		s.metricsPath = path
	}
}

// New builds a server listening on host:port once Start is called.
func New(host string, port int, opts ...Option) *Server {
	s := &Server{
		host:        host,
		port:        port,
		logger:      zap.NewNop(),
		timeouts:    DefaultTimeouts,
		metricsPath: "/metrics",
	}
	for _, opt := range opts {
		opt(s)
	}
	if s.watchReader != nil {
		var observer monitor.Observer
		if s.metrics != nil {
			observer = s.metrics
		}
		s.watch = handlers.NewWatchHandler(s.watchReader, observer, s.logger, s.watchOpts)
	}

	s.router = s.routes()
	s.httpServer = &http.Server{
		Addr:         net.JoinHostPort(host, strconv.Itoa(port)),
		Handler:      s.router,
		ReadTimeout:  s.timeouts.Read,
		WriteTimeout: s.timeouts.Write,
		IdleTimeout:  s.timeouts.Idle,
	}
	return s
}

func (s *Server) routes() chi.Router {
	r := chi.NewRouter()
	r.Use(middleware.RequestID)
	r.Use(middleware.RequestLogger(s.logger))
	r.Use(middleware.ErrorHandler)

	r.NotFound(func(w http.ResponseWriter, req *http.Request) {
		apperrors.Write(w, http.StatusNotFound, apperrors.HTTPError{
			Code:      apperrors.CodeNotFound,
			Message:   fmt.Sprintf("no route for %s %s", req.Method, req.URL.Path),
			RequestID: apperrors.RequestIDFromContext(req.Context()),
		})
	})
	r.MethodNotAllowed(func(w http.ResponseWriter, req *http.Request) {
		apperrors.Write(w, http.StatusMethodNotAllowed, apperrors.HTTPError{
			Code:      apperrors.CodeMethodNotAllowed,
			Message:   fmt.Sprintf("method %s not allowed for %s", req.Method, req.URL.Path),
			RequestID: apperrors.RequestIDFromContext(req.Context()),
		})
	})

	r.Get("/health", handlers.HealthHandler)
	r.Get("/health/live", handlers.LivenessHandler)
	r.Get("/health/ready", handlers.ReadinessHandler)
	r.Get("/health/startup", handlers.StartupHandler)
	r.Get("/version", handlers.VersionHandler)

	if s.metrics != nil {
		r.Method(http.MethodGet, s.metricsPath, s.metrics.Handler())
	}

	if s.devices != nil {
		d := s.devices
		r.Get("/sessions", d.SessionList)
		r.Route("/devices", func(r chi.Router) {
			r.Get("/", d.List)
			r.Route("/{name}", func(r chi.Router) {
				r.Get("/status", d.Status)
				r.Get("/paper", d.Paper)
				r.Get("/history", d.History)
				r.Get("/events", d.Events)
				r.Post("/pause", d.DeviceControl(provider.DevicePause))
				r.Post("/resume", d.DeviceControl(provider.DeviceResume))
				r.Post("/purge", d.DeviceControl(provider.DevicePurge))
				r.Get("/jobs", d.Jobs)
				r.Get("/jobs/{id}", d.Job)
				r.Post("/jobs/{id}/{action}", d.JobControl)
				if s.watch != nil {
					r.Method(http.MethodGet, "/watch", s.watch)
				}
			})
		})
	}
	return r
}

// Handler returns the router.
func (s *Server) Handler() http.Handler { return s.router }

// Port returns the configured port.
func (s *Server) Port() int { return s.port }

// Addr returns the listen address.
func (s *Server) Addr() string { return s.httpServer.Addr }

// Start serves until Shutdown. It returns nil after a clean shutdown.
func (s *Server) Start() error {
	s.logger.Info("HTTP server listening", zap.String("addr", s.httpServer.Addr))
	if err := s.httpServer.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
		return err
	}
	return nil
}

// Shutdown drains in-flight requests and disconnects watch clients.
func (s *Server) Shutdown(ctx context.Context) error {
	if s.timeouts.Shutdown > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, s.timeouts.Shutdown)
		defer cancel()
	}
	if s.watch != nil {
		s.watch.Close()
	}
	return s.httpServer.Shutdown(ctx)
}
