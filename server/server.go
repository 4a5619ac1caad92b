// Package server exposes the journal over HTTP.
package server

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"time"

	"github.com/gin-contrib/cors"
	"github.com/gin-gonic/gin"
	"github.com/google/uuid"
	"github.com/rs/zerolog"

	"github.com/rustyeddy/futures-journal/analytics"
	"github.com/rustyeddy/futures-journal/ingest"
	"github.com/rustyeddy/futures-journal/journal"
)

// HeaderRequestID carries the per-request correlation id.
const HeaderRequestID = "X-Request-ID"

// DefaultMaxBodyBytes bounds an import request body.
const DefaultMaxBodyBytes = 32 << 20

// Ingester runs imports and trade deletions.
type Ingester interface {
	Ingest(ctx context.Context, req ingest.Request) (*ingest.BatchResult, error)
	DeleteTrade(ctx context.Context, userID, tradeID string) (*ingest.DeleteResult, error)
}

// Analytics reads and rebuilds snapshots.
type Analytics interface {
	Recompute(ctx context.Context, userID string) (*analytics.Snapshot, error)
	Load(ctx context.Context, userID string) (*analytics.Snapshot, error)
}

// Deps are the services the handlers call.
type Deps struct {
	Store     journal.Store
	Pipeline  Ingester
	Analytics Analytics
}

// Options configures the HTTP layer.
type Options struct {
	Addr         string
	CORSOrigins  []string
	MaxBodyBytes int64
	Logger       zerolog.Logger
}

// Server is the HTTP API server
type Server struct {
	router     *gin.Engine
	httpServer *http.Server
	deps       Deps
	maxBody    int64
	log        zerolog.Logger
}

// New creates a new API server
func New(deps Deps, opts Options) *Server {
	if gin.Mode() != gin.TestMode {
		gin.SetMode(gin.ReleaseMode)
	}

	router := gin.New()
	router.Use(gin.Recovery())

	s := &Server{
		router:  router,
		deps:    deps,
		maxBody: opts.MaxBodyBytes,
		log:     opts.Logger.With().Str("component", "http").Logger(),
	}
	if s.maxBody <= 0 {
		s.maxBody = DefaultMaxBodyBytes
	}

	router.Use(s.requestLogger())
	if len(opts.CORSOrigins) > 0 {
		corsConfig := cors.DefaultConfig()
		corsConfig.AllowOrigins = opts.CORSOrigins
		corsConfig.AllowMethods = []string{"GET", "POST", "DELETE", "OPTIONS"}
		corsConfig.AllowHeaders = []string{"Origin", "Content-Type", HeaderRequestID}
		corsConfig.ExposeHeaders = []string{"Content-Length", HeaderRequestID}
		router.Use(cors.New(corsConfig))
	}

	s.setupRoutes()

	s.httpServer = &http.Server{
		Addr:         opts.Addr,
		Handler:      router,
		ReadTimeout:  15 * time.Second,
		WriteTimeout: 60 * time.Second,
		IdleTimeout:  60 * time.Second,
	}
	return s
}

func (s *Server) setupRoutes() {
	s.router.GET("/health", s.handleHealth)

	api := s.router.Group("/api/v1")
	{
		api.POST("/users", s.handleCreateUser)

		user := api.Group("/users/:user")
		{
			user.GET("/accounts", s.handleListAccounts)
			user.POST("/imports/:platform", s.handleImport)
			user.GET("/trades", s.handleListTrades)
			user.GET("/trades/:id", s.handleGetTrade)
			user.DELETE("/trades/:id", s.handleDeleteTrade)
			user.GET("/analytics", s.handleGetAnalytics)
			user.POST("/analytics/recompute", s.handleRecompute)
		}
	}
}

// Handler returns the router, for tests and embedding.
func (s *Server) Handler() http.Handler {
	return s.router
}

// Start blocks serving HTTP until Shutdown.
func (s *Server) Start() error {
	s.log.Info().Str("addr", s.httpServer.Addr).Msg("starting HTTP server")

	if err := s.httpServer.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
		return fmt.Errorf("failed to start server: %w", err)
	}
	return nil
}

// Shutdown gracefully shuts down the server
func (s *Server) Shutdown(ctx context.Context) error {
	s.log.Info().Msg("shutting down HTTP server")
	return s.httpServer.Shutdown(ctx)
}

// requestLogger tags every request with an id and logs its outcome.
func (s *Server) requestLogger() gin.HandlerFunc {
	return func(c *gin.Context) {
		start := time.Now()

		rid := c.GetHeader(HeaderRequestID)
		if rid == "" {
			rid = uuid.NewString()
		}
		c.Set("request_id", rid)
		c.Header(HeaderRequestID, rid)

		c.Next()

		status := c.Writer.Status()
		ev := s.log.Info()
		if status >= http.StatusInternalServerError {
			ev = s.log.Error()
		}
		ev.Str("request_id", rid).
			Str("method", c.Request.Method).
			Str("route", c.FullPath()).
			Int("status", status).
			Dur("latency", time.Since(start)).
			Msg("request")
	}
}

// errorResponse is a helper to send error responses
func errorResponse(c *gin.Context, statusCode int, message string) {
	c.JSON(statusCode, gin.H{
		"error":   true,
		"message": message,
	})
}

// successResponse is a helper to send success responses
func successResponse(c *gin.Context, data interface{}) {
	c.JSON(http.StatusOK, gin.H{
		"success": true,
		"data":    data,
	})
}

// statusOf maps domain errors to HTTP status codes.
func statusOf(err error) int {
	switch {
	case errors.Is(err, ingest.ErrUserNotFound), errors.Is(err, journal.ErrNotFound):
		return http.StatusNotFound
	case errors.Is(err, ingest.ErrUnknownPlatform):
		return http.StatusBadRequest
	case errors.Is(err, ingest.ErrBatchTooLarge):
		return http.StatusRequestEntityTooLarge
	case errors.Is(err, ingest.ErrAccountResolutionFailed):
		return http.StatusUnprocessableEntity
	case errors.Is(err, journal.ErrDuplicate):
		return http.StatusConflict
	default:
		return http.StatusInternalServerError
	}
}

func (s *Server) fail(c *gin.Context, err error) {
	status := statusOf(err)
	if status >= http.StatusInternalServerError {
		s.log.Error().Err(err).Str("request_id", c.GetString("request_id")).Msg("request failed")
	}
	errorResponse(c, status, err.Error())
}
