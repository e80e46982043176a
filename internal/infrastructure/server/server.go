package server

import (
	"context"
	"fmt"
	"net"
	"net/http"
	"strconv"
	"time"

	"github.com/rs/cors"
	"github.com/sirupsen/logrus"

	"github.com/eslsoft/chordnet/internal/infrastructure/config"
	"github.com/eslsoft/chordnet/internal/infrastructure/metrics"
	"github.com/eslsoft/chordnet/internal/infrastructure/reminder"
)

// Server represents the application server
type Server struct {
	config     *config.Config
	httpServer *http.Server
	reminder   *reminder.Reminder
	logger     *logrus.Logger
}

// NewServer mounts api and the metrics endpoint behind CORS and access
// logging. The /v1 API requires a bearer token when a JWT secret is set. rem
// may be nil when reminders are disabled.
func NewServer(cfg *config.Config, logger *logrus.Logger, api http.Handler, rem *reminder.Reminder) *Server {
	mux := http.NewServeMux()
	mux.Handle("/metrics", metrics.Handler())
	mux.Handle("/", Authenticate(cfg.Server.JWTSecret)(api))

	c := cors.New(cors.Options{
		AllowedOrigins: cfg.Server.CORSOrigins,
		AllowedMethods: []string{http.MethodGet, http.MethodPost, http.MethodOptions},
		AllowedHeaders: []string{"Authorization", "Content-Type", "X-Request-Id"},
	})

	httpServer := &http.Server{
		Addr:              net.JoinHostPort(cfg.Server.Host, strconv.Itoa(cfg.Server.HTTPPort)),
		Handler:           AccessLog(logger)(c.Handler(mux)),
		ReadHeaderTimeout: 10 * time.Second,
	}

	return &Server{
		config:     cfg,
		httpServer: httpServer,
		reminder:   rem,
		logger:     logger,
	}
}

// Handler returns the fully wrapped HTTP handler.
func (s *Server) Handler() http.Handler {
	return s.httpServer.Handler
}

// Start starts the reminder job and serves HTTP until shutdown.
func (s *Server) Start() error {
	if s.reminder != nil {
		if err := s.reminder.Start(); err != nil {
			return err
		}
	}

	s.logger.Infof("HTTP server starting on %s", s.httpServer.Addr)

	if err := s.httpServer.ListenAndServe(); err != nil && err != http.ErrServerClosed {
		return fmt.Errorf("failed to serve HTTP: %w", err)
	}

	return nil
}

// Shutdown gracefully shuts down the server
func (s *Server) Shutdown(ctx context.Context) error {
	s.logger.Info("Shutting down server...")

	if s.reminder != nil {
		s.reminder.Stop()
	}

	if err := s.httpServer.Shutdown(ctx); err != nil {
		s.logger.Errorf("Failed to shutdown HTTP server: %v", err)
		return err
	}

	s.logger.Info("Server shutdown complete")
	return nil
}
