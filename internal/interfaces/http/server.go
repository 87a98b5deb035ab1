// Package http exposes the claim lifecycle over a JSON HTTP API.
package http

import (
	"context"
	"fmt"
	"net/http"
	"time"

	"github.com/gin-contrib/cors"
	"github.com/gin-gonic/gin"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"go.uber.org/zap"

	"github.com/garyjia/medical-claims/internal/application/service"
	"github.com/garyjia/medical-claims/internal/application/workflow"
	"github.com/garyjia/medical-claims/internal/domain/entity"
)

// ServerConfig holds HTTP server configuration
type ServerConfig struct {
	Host            string
	Port            int
	ReadTimeout     time.Duration
	WriteTimeout    time.Duration
	ShutdownTimeout time.Duration
	AllowedOrigins  []string
	Auth            AuthConfig
	MetricsPath     string
	Version         string
}

// DefaultServerConfig returns default server configuration
func DefaultServerConfig() ServerConfig {
	return ServerConfig{
		Host:            "0.0.0.0",
		Port:            8080,
		ReadTimeout:     30 * time.Second,
		WriteTimeout:    30 * time.Second,
		ShutdownTimeout: 10 * time.Second,
		MetricsPath:     "/metrics",
	}
}

// Deps are the application services the server routes to
type Deps struct {
	Engine   workflow.ClaimEngine
	Queries  service.ClaimQueryService
	Register RegisterWriter
	Health   func(ctx context.Context) error
	// Gatherer serves /metrics when set
	Gatherer prometheus.Gatherer
}

// Server is the HTTP server adapter
type Server struct {
	config     ServerConfig
	deps       Deps
	httpServer *http.Server
	router     *gin.Engine
	logger     *zap.Logger
}

// NewServer creates a new HTTP server with the given services
func NewServer(config ServerConfig, deps Deps, logger *zap.Logger) *Server {
	gin.SetMode(gin.ReleaseMode)

	server := &Server{
		config: config,
		deps:   deps,
		router: gin.New(),
		logger: logger,
	}

	server.setupMiddleware()
	server.setupRoutes()

	return server
}

// setupMiddleware configures middleware for the router
func (s *Server) setupMiddleware() {
	s.router.Use(gin.Recovery())
	s.router.Use(requestIDMiddleware())

	if len(s.config.AllowedOrigins) > 0 {
		corsConfig := cors.DefaultConfig()
		corsConfig.AllowOrigins = s.config.AllowedOrigins
		corsConfig.AllowHeaders = []string{"Origin", "Content-Length", "Content-Type", "Authorization", "Accept", headerRequestID}
		corsConfig.AllowMethods = []string{"GET", "POST", "PUT", "DELETE", "OPTIONS"}
		corsConfig.ExposeHeaders = []string{headerRequestID, "Location", "Content-Disposition"}
		s.router.Use(cors.New(corsConfig))
	}

	s.router.Use(loggingMiddleware(s.logger))
}

// setupRoutes configures all HTTP routes
func (s *Server) setupRoutes() {
	h := NewHandlers(s.deps.Engine, s.deps.Queries, s.deps.Register, s.deps.Health, s.config.Version, s.logger)

	s.router.GET("/health", h.HealthCheck)
	if s.deps.Gatherer != nil && s.config.MetricsPath != "" {
		s.router.GET(s.config.MetricsPath, gin.WrapH(promhttp.HandlerFor(s.deps.Gatherer, promhttp.HandlerOpts{})))
	}

	authed := s.router.Group("/", authMiddleware(s.config.Auth))
	authed.GET("/whoami", h.WhoAmI)

	read := requireAnyRole(readRoles...)
	write := requireAnyRole(writeRoles...)

	claims := authed.Group("/api/claims")
	{
		claims.POST("", write, h.CreateClaim)
		claims.POST("/search", read, h.Search)
		claims.POST("/search/export", read, h.ExportSearch)
		claims.GET("/fifo/:status", read, h.ListFIFO)

		claims.GET("/:claimId", read, h.GetClaim)
		claims.PUT("/:claimId", write, h.UpdateClaim)
		claims.DELETE("/:claimId", write, h.DeleteClaim)
		claims.GET("/:claimId/events", read, h.ListEvents)
		claims.GET("/:claimId/transitions", h.AvailableTransitions)

		// The rule table decides who may take each edge
		claims.POST("/:claimId/transition", h.Transition)
		claims.POST("/:claimId/submit", write, h.Action(entity.StatusSubmitted, "Submitted"))
		claims.POST("/:claimId/hospital-review", read, h.Action(entity.StatusUnderHospitalReview, ""))
		claims.POST("/:claimId/hospital-verified", write, h.Action(entity.StatusUnderSMBReview, ""))
		claims.POST("/:claimId/smb", write, h.Action(entity.StatusUnderSMBReview, ""))
		claims.POST("/:claimId/approve", write, h.Action(entity.StatusApproved, "Approved"))
		claims.POST("/:claimId/reject", write, h.Action(entity.StatusRejected, ""))
		claims.POST("/:claimId/return", write, h.Action(entity.StatusReturned, ""))
	}
}

// Start starts the HTTP server and blocks until ctx is cancelled or the listener fails
func (s *Server) Start(ctx context.Context) error {
	addr := s.Address()

	s.httpServer = &http.Server{
		Addr:         addr,
		Handler:      s.router,
		ReadTimeout:  s.config.ReadTimeout,
		WriteTimeout: s.config.WriteTimeout,
	}

	s.logger.Info("Starting HTTP server", zap.String("address", addr))

	errCh := make(chan error, 1)
	go func() {
		if err := s.httpServer.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			errCh <- err
		}
	}()

	select {
	case <-ctx.Done():
		s.logger.Info("HTTP server shutdown requested")
		return s.Stop()
	case err := <-errCh:
		s.logger.Error("HTTP server error", zap.Error(err))
		return err
	}
}

// Stop gracefully stops the HTTP server
func (s *Server) Stop() error {
	if s.httpServer == nil {
		return nil
	}

	s.logger.Info("Stopping HTTP server")

	timeout := s.config.ShutdownTimeout
	if timeout <= 0 {
		timeout = 10 * time.Second
	}
	ctx, cancel := context.WithTimeout(context.Background(), timeout)
	defer cancel()

	if err := s.httpServer.Shutdown(ctx); err != nil {
		s.logger.Error("HTTP server shutdown error", zap.Error(err))
		return err
	}

	s.logger.Info("HTTP server stopped")
	return nil
}

// Router returns the underlying gin router (for testing)
func (s *Server) Router() *gin.Engine {
	return s.router
}

// Address returns the server address
func (s *Server) Address() string {
	return fmt.Sprintf("%s:%d", s.config.Host, s.config.Port)
}
