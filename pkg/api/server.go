// Package api provides the HTTP admin API for a courier server
package api

import (
	"context"
	"fmt"
	"net/http"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"github.com/sirupsen/logrus"

	"github.com/courierhq/courier/pkg/server"
	"github.com/courierhq/courier/pkg/storage"
)

// Server exposes health, status and metrics endpoints for a running
// courier node over HTTP
type Server struct {
	core         *server.Server
	store        *storage.Store
	router       *gin.Engine
	log          *logrus.Logger
	limiter      *RateLimiter
	host         string
	port         int
	readTimeout  time.Duration
	writeTimeout time.Duration
	httpServer   *http.Server
	gatherer     prometheus.Gatherer
}

// Config holds admin API configuration
type Config struct {
	Host         string
	Port         int
	EnableCORS   bool
	RateLimit    int // requests per minute per IP
	ReadTimeout  time.Duration
	WriteTimeout time.Duration
}

// DefaultConfig returns default admin API configuration
func DefaultConfig() *Config {
	return &Config{
		Host:         "",
		Port:         8080,
		EnableCORS:   true,
		RateLimit:    100,
		ReadTimeout:  30 * time.Second,
		WriteTimeout: 30 * time.Second,
	}
}

// NewServer creates the admin API around a courier server and its
// store. The config may be nil for defaults.
func NewServer(core *server.Server, store *storage.Store, config *Config) *Server {
	if config == nil {
		config = DefaultConfig()
	}

	gin.SetMode(gin.ReleaseMode)
	router := gin.New()

	s := &Server{
		core:         core,
		store:        store,
		router:       router,
		log:          logrus.StandardLogger(),
		host:         config.Host,
		port:         config.Port,
		readTimeout:  config.ReadTimeout,
		writeTimeout: config.WriteTimeout,
	}

	s.setupMiddleware(config)
	s.setupRoutes()

	return s
}

// SetLogger replaces the default logger
func (s *Server) SetLogger(log *logrus.Logger) {
	s.log = log
}

// AttachMetricsGatherer enables the /metrics endpoint backed by the
// given registry
func (s *Server) AttachMetricsGatherer(g prometheus.Gatherer) {
	s.gatherer = g
}

// setupMiddleware configures middleware
func (s *Server) setupMiddleware(config *Config) {
	if config.EnableCORS {
		s.router.Use(CORSMiddleware())
	}

	if config.RateLimit > 0 {
		s.limiter = NewRateLimiter(config.RateLimit)
		s.router.Use(RateLimitMiddleware(s.limiter))
	}

	s.router.Use(LoggingMiddleware(s))
	s.router.Use(gin.Recovery())
}

// setupRoutes configures API routes
func (s *Server) setupRoutes() {
	s.router.GET("/health", s.handleHealth)

	v1 := s.router.Group("/api/v1")
	{
		v1.GET("/status", s.handleStatus)
		v1.GET("/clients", s.handleClients)
	}

	s.router.GET("/metrics", func(c *gin.Context) {
		if s.gatherer == nil {
			c.JSON(http.StatusNotFound, ErrorResponse{
				Error:   "Metrics disabled",
				Message: "no metrics registry attached",
			})
			return
		}
		promhttp.HandlerFor(s.gatherer, promhttp.HandlerOpts{}).ServeHTTP(c.Writer, c.Request)
	})
}

// Start runs the HTTP server until the context is cancelled, then
// shuts it down gracefully.
func (s *Server) Start(ctx context.Context) error {
	s.httpServer = &http.Server{
		Addr:         fmt.Sprintf("%s:%d", s.host, s.port),
		Handler:      s.router,
		ReadTimeout:  s.readTimeout,
		WriteTimeout: s.writeTimeout,
		IdleTimeout:  60 * time.Second,
	}

	errCh := make(chan error, 1)
	go func() {
		s.log.WithField("addr", s.httpServer.Addr).Info("admin API listening")
		if err := s.httpServer.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			errCh <- err
		}
	}()

	select {
	case err := <-errCh:
		return err
	case <-ctx.Done():
	}

	s.log.Info("shutting down admin API")
	shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()

	return s.httpServer.Shutdown(shutdownCtx)
}

// Stop shuts the HTTP server down without waiting for the context
func (s *Server) Stop() error {
	if s.httpServer != nil {
		ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		return s.httpServer.Shutdown(ctx)
	}
	return nil
}
