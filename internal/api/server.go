// Package api exposes the worker's operational HTTP surface: health,
// Prometheus metrics, recent activity and the realtime event feed.
package api

import (
	"context"
	"database/sql"
	"fmt"
	"log"
	"net/http"
	"os"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"github.com/inboxpilot/inboxpilot/internal/config"
	"github.com/inboxpilot/inboxpilot/internal/events"
	"github.com/inboxpilot/inboxpilot/internal/models"
)

type activityReader interface {
	ListRecent(ctx context.Context, accountID string, limit int) ([]*models.ActivityLog, error)
}

// Server is the operational HTTP listener.
type Server struct {
	cfg      config.ServerConfig
	metrics  config.MetricsConfig
	db       *sql.DB
	activity activityReader
	hub      *events.Hub
	logger   *log.Logger
	http     *http.Server
}

// NewServer builds the listener. hub may be nil when the event feed is
// disabled.
func NewServer(cfg config.ServerConfig, metricsCfg config.MetricsConfig, db *sql.DB, activity activityReader, hub *events.Hub) *Server {
	s := &Server{
		cfg:      cfg,
		metrics:  metricsCfg,
		db:       db,
		activity: activity,
		hub:      hub,
		logger:   log.New(os.Stdout, "[API] ", log.LstdFlags),
	}

	gin.SetMode(gin.ReleaseMode)
	router := gin.New()
	router.Use(gin.Recovery())
	s.routes(router)

	s.http = &http.Server{
		Addr:         cfg.Addr(),
		Handler:      router,
		ReadTimeout:  cfg.ReadTimeout,
		WriteTimeout: cfg.WriteTimeout,
	}
	return s
}

func (s *Server) routes(router *gin.Engine) {
	router.GET("/healthz", s.handleHealth)

	if s.metrics.Enabled {
		path := s.metrics.Path
		if path == "" {
			path = "/metrics"
		}
		router.GET(path, gin.WrapH(promhttp.Handler()))
	}
	if s.hub != nil {
		router.GET("/ws/events", s.hub.Handler)
	}
	router.GET("/api/activity", s.handleActivity)
}

func (s *Server) handleHealth(c *gin.Context) {
	ctx, cancel := context.WithTimeout(c.Request.Context(), 2*time.Second)
	defer cancel()

	if s.db != nil {
		if err := s.db.PingContext(ctx); err != nil {
			c.JSON(http.StatusServiceUnavailable, gin.H{
				"status": "degraded",
				"error":  "database unreachable",
			})
			return
		}
	}
	c.JSON(http.StatusOK, gin.H{"status": "ok"})
}

func (s *Server) handleActivity(c *gin.Context) {
	accountID := c.Query("account_id")
	if accountID == "" {
		c.JSON(http.StatusBadRequest, gin.H{"error": "account_id is required"})
		return
	}

	entries, err := s.activity.ListRecent(c.Request.Context(), accountID, 50)
	if err != nil {
		s.logger.Printf("failed to list activity for %s: %v", accountID, err)
		c.JSON(http.StatusInternalServerError, gin.H{"error": "failed to load activity"})
		return
	}
	c.JSON(http.StatusOK, gin.H{"activity": entries})
}

// Start serves until the listener fails or Shutdown is called.
func (s *Server) Start() error {
	s.logger.Printf("listening on %s", s.http.Addr)
	if err := s.http.ListenAndServe(); err != nil && err != http.ErrServerClosed {
		return fmt.Errorf("http server failed: %w", err)
	}
	return nil
}

// Shutdown drains in-flight requests.
func (s *Server) Shutdown(ctx context.Context) error {
	return s.http.Shutdown(ctx)
}

// Handler exposes the router for tests.
func (s *Server) Handler() http.Handler {
	return s.http.Handler
}
