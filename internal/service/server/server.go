package server

import (
	"context"
	"encoding/json"
	"errors"
	"net"
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"go.uber.org/zap"

	"github.com/otaupdater/ota-download-manager/internal/domain"
	"github.com/otaupdater/ota-download-manager/internal/domain/service"
	"github.com/otaupdater/ota-download-manager/internal/port"
)

// Config contains HTTP server configuration
type Config struct {
	BindAddr     string
	Username     string
	Password     string
	ReadTimeout  time.Duration
	WriteTimeout time.Duration
	IdleTimeout  time.Duration
}

// DefaultConfig returns default server configuration
func DefaultConfig() *Config {
	return &Config{
		BindAddr:     "127.0.0.1:8080",
		ReadTimeout:  30 * time.Second,
		WriteTimeout: 30 * time.Second,
		IdleTimeout:  60 * time.Second,
	}
}

// Queue is the queue manager surface the API exposes
type Queue interface {
	Enqueue(spec domain.TransferSpec) (int64, error)
	Pause(id int64) error
	Resume(id int64) error
	Cancel(id int64) error
	Retry(id int64) error
	PauseAll()
	ResumeAll()
	CancelAll()
	Transfer(id int64) *domain.TransferRecord
	List(filter domain.Filter) []domain.TransferRecord
	ConnectivityChanged()
	NetworkSettings() service.NetworkSettings
	SetNetworkSettings(s service.NetworkSettings)
}

// Connectivity is a connectivity source whose value can be overridden
type Connectivity interface {
	port.ConnectivitySource
	Set(c domain.Connectivity)
	ClearOverride()
}

// Pinger reports whether the backing store is reachable
type Pinger interface {
	Ping() error
}

// Deps are the collaborators the server routes to
type Deps struct {
	Queue        Queue
	Preferences  port.PreferenceRepository
	Connectivity Connectivity
	Store        Pinger
	Hub          *Hub
	// Metrics is mounted at /metrics when set
	Metrics http.Handler
	// Middleware wraps every route after logging
	Middleware []func(http.Handler) http.Handler
}

// Server represents the HTTP API server
type Server struct {
	config   *Config
	deps     Deps
	logger   *zap.Logger
	server   *http.Server
	handler  http.Handler
	transfer *TransferHandler
	settings *SettingsHandler
}

// New creates a new HTTP server
func New(cfg *Config, deps Deps, logger *zap.Logger) *Server {
	if cfg == nil {
		cfg = DefaultConfig()
	}
	if logger == nil {
		logger = zap.NewNop()
	}

	s := &Server{
		config: cfg,
		deps:   deps,
		logger: logger,
	}
	s.transfer = NewTransferHandler(deps.Queue, logger)
	s.settings = NewSettingsHandler(deps.Queue, deps.Preferences, deps.Connectivity, logger)

	r := chi.NewRouter()
	r.Use(middleware.Recoverer)
	r.Use(LoggingMiddleware(logger))
	r.Use(deps.Middleware...)

	r.Get("/health", s.handleHealth)
	if deps.Metrics != nil {
		r.Method(http.MethodGet, "/metrics", deps.Metrics)
	}

	r.Group(func(r chi.Router) {
		if cfg.Username != "" {
			r.Use(BasicAuthMiddleware(cfg.Username, cfg.Password, logger))
		}
		r.Mount("/api", s.apiRoutes())
		if deps.Hub != nil {
			r.Get("/ws", deps.Hub.HandleWebSocket)
		}
	})

	s.handler = r
	s.server = &http.Server{
		Addr:         cfg.BindAddr,
		Handler:      r,
		ReadTimeout:  cfg.ReadTimeout,
		WriteTimeout: cfg.WriteTimeout,
		IdleTimeout:  cfg.IdleTimeout,
	}

	return s
}

func (s *Server) apiRoutes() http.Handler {
	r := chi.NewRouter()
	r.Mount("/transfers", s.transfer.Routes())
	r.Post("/queue/pause-all", s.transfer.HandlePauseAll)
	r.Post("/queue/resume-all", s.transfer.HandleResumeAll)
	r.Post("/queue/cancel-all", s.transfer.HandleCancelAll)
	s.settings.Register(r)
	return r
}

// Handler returns the router, for tests and embedding
func (s *Server) Handler() http.Handler {
	return s.handler
}

// Start starts the HTTP server and blocks until it stops
func (s *Server) Start(ctx context.Context) error {
	s.server.BaseContext = func(net.Listener) context.Context { return ctx }
	s.logger.Info("starting HTTP server", zap.String("addr", s.server.Addr))
	if err := s.server.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
		return err
	}
	return nil
}

// Stop gracefully stops the HTTP server
func (s *Server) Stop(ctx context.Context) error {
	s.logger.Info("stopping HTTP server")
	return s.server.Shutdown(ctx)
}

// handleHealth handles health check requests
func (s *Server) handleHealth(w http.ResponseWriter, r *http.Request) {
	if s.deps.Store != nil {
		if err := s.deps.Store.Ping(); err != nil {
			s.logger.Error("health check failed", zap.Error(err))
			writeError(w, http.StatusServiceUnavailable, "database connection failed")
			return
		}
	}

	writeJSON(w, http.StatusOK, map[string]string{
		"status": "healthy",
		"time":   time.Now().UTC().Format(time.RFC3339),
	})
}

func writeJSON(w http.ResponseWriter, status int, v interface{}) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	json.NewEncoder(w).Encode(v)
}

func writeError(w http.ResponseWriter, status int, msg string) {
	writeJSON(w, status, map[string]string{"error": msg})
}
