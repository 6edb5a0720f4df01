// Package server exposes the local HTTP API the browser extension and
// scripts use to push usage pages and manage settings.
package server

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/google/uuid"

	"github.com/j-veylop/claude-usage-monitor/internal/logger"
	"github.com/j-veylop/claude-usage-monitor/internal/models"
	"github.com/j-veylop/claude-usage-monitor/internal/services/notify"
)

// maxBodyBytes bounds POST /api/usage. A usage page is a few kilobytes.
const maxBodyBytes = 1 << 20

const requestIDHeader = "X-Request-ID"

// Backend is what the API needs from the service layer. *services.Manager
// implements it.
type Backend interface {
	Ingest(ctx context.Context, snap *models.UsageSnapshot) (*models.UsageSnapshot, error)
	IngestText(ctx context.Context, text, source string, capturedAt time.Time) (*models.UsageSnapshot, error)
	Latest(ctx context.Context) (*models.UsageSnapshot, error)
	Snapshot(ctx context.Context, accountID string) (*models.UsageSnapshot, error)
	Accounts(ctx context.Context) ([]models.AccountUsage, error)
	ForgetAccount(ctx context.Context, accountID string) error
	CurrentAccount() string
	LastUpdate() time.Time
	Settings(ctx context.Context) (models.Settings, error)
	UpdateSettings(ctx context.Context, patch models.SettingsPatch) (models.Settings, error)
	SendTestNotification(ctx context.Context) notify.Result
}

// Server serves the ingest API.
type Server struct {
	backend Backend
	engine  *gin.Engine
	http    *http.Server
	now     func() time.Time
}

// New creates the API server for addr. It does not listen until ListenAndServe.
func New(addr string, backend Backend) *Server {
	s := &Server{
		backend: backend,
		now:     time.Now,
	}

	engine := gin.New()
	engine.Use(gin.Recovery(), requestID(), requestLogger())
	s.routes(engine)
	s.engine = engine

	s.http = &http.Server{
		Addr:              addr,
		Handler:           engine,
		ReadHeaderTimeout: 10 * time.Second,
		ReadTimeout:       30 * time.Second,
		WriteTimeout:      90 * time.Second,
	}
	return s
}

func (s *Server) routes(r *gin.Engine) {
	r.GET("/healthz", s.health)

	api := r.Group("/api")
	api.POST("/usage", s.postUsage)
	api.GET("/usage", s.getLatestUsage)
	api.GET("/usage/:accountId", s.getAccountUsage)
	api.DELETE("/usage/:accountId", s.deleteAccountUsage)
	api.GET("/accounts", s.getAccounts)
	api.GET("/settings", s.getSettings)
	api.PUT("/settings", s.putSettings)
	api.POST("/notifications/test", s.postTestNotification)
}

// Handler returns the HTTP handler, for tests and embedding.
func (s *Server) Handler() http.Handler {
	return s.engine
}

// Addr returns the listen address.
func (s *Server) Addr() string {
	return s.http.Addr
}

// ListenAndServe blocks until the server stops. It returns nil after Shutdown.
func (s *Server) ListenAndServe() error {
	logger.Info("ingest API listening", "addr", s.http.Addr)
	if err := s.http.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
		return fmt.Errorf("failed to serve ingest API: %w", err)
	}
	return nil
}

// Shutdown stops accepting requests and waits for in-flight ones.
func (s *Server) Shutdown(ctx context.Context) error {
	return s.http.Shutdown(ctx)
}

// requestID tags every request with an id, reusing the caller's if present.
func requestID() gin.HandlerFunc {
	return func(c *gin.Context) {
		id := c.GetHeader(requestIDHeader)
		if id == "" {
			id = uuid.NewString()
		}
		c.Set("request_id", id)
		c.Header(requestIDHeader, id)
		c.Next()
	}
}

func requestLogger() gin.HandlerFunc {
	return func(c *gin.Context) {
		start := time.Now()
		c.Next()

		args := []any{
			"request_id", c.GetString("request_id"),
			"method", c.Request.Method,
			"path", c.FullPath(),
			"status", c.Writer.Status(),
			"duration", time.Since(start),
		}
		if len(c.Errors) > 0 {
			args = append(args, "error", c.Errors.String())
		}

		if c.Writer.Status() >= http.StatusInternalServerError {
			logger.Error("request failed", args...)
		} else {
			logger.Debug("request served", args...)
		}
	}
}

// errorResponse writes {"error": msg} and records err for the request log.
func errorResponse(c *gin.Context, status int, err error) {
	_ = c.Error(err)
	c.AbortWithStatusJSON(status, gin.H{
		"error":     err.Error(),
		"requestId": c.GetString("request_id"),
	})
}
