// Package api implements the read-only HTTP surface for operators:
// ledger counts, limiter pause state and target listings. Nothing here
// mutates the pipeline.
package api

import (
	"net/http"
	"strconv"
	"time"

	"github.com/gin-gonic/gin"

	"github.com/jonesrussell/gointel/internal/config"
	"github.com/jonesrussell/gointel/internal/domain"
	"github.com/jonesrussell/gointel/internal/logger"
	"github.com/jonesrussell/gointel/internal/ratelimit"
	"github.com/jonesrussell/gointel/internal/store"
)

// TargetReader is the slice of the ledger the API reads.
type TargetReader interface {
	Stats() store.Stats
	List(status string, limit int) []*domain.Target
	Get(id string) (*domain.Target, bool)
}

// LimiterReader exposes the rate limiter's per-upstream state.
type LimiterReader interface {
	Snapshot() []ratelimit.State
}

const (
	readHeaderTimeout = 10 * time.Second

	// defaultListLimit bounds /targets responses unless the caller asks
	// for more; maxListLimit is the hard cap.
	defaultListLimit = 100
	maxListLimit     = 1000
)

// StatusResponse is the body of GET /api/v1/status.
type StatusResponse struct {
	Targets   store.Stats       `json:"targets"`
	Upstreams []ratelimit.State `json:"upstreams"`
}

// TargetsResponse is the body of GET /api/v1/targets.
type TargetsResponse struct {
	Targets []*domain.Target `json:"targets"`
	Count   int              `json:"count"`
}

// SetupRouter creates and configures the Gin router with all routes.
func SetupRouter(log logger.Interface, targets TargetReader, limiter LimiterReader) *gin.Engine {
	if log == nil {
		log = logger.NewNoOp()
	}

	// Disable Gin's default logging
	gin.SetMode(gin.ReleaseMode)

	router := gin.New()
	router.Use(gin.Recovery())
	router.Use(loggingMiddleware(log))
	router.Use(corsMiddleware())

	router.GET("/health", func(c *gin.Context) {
		c.JSON(http.StatusOK, gin.H{"status": "ok"})
	})

	v1 := router.Group("/api/v1")
	v1.GET("/status", handleStatus(targets, limiter))
	v1.GET("/targets", handleListTargets(targets))
	v1.GET("/targets/:id", handleGetTarget(targets))

	return router
}

// loggingMiddleware creates a middleware that logs HTTP requests.
func loggingMiddleware(log logger.Interface) gin.HandlerFunc {
	return func(c *gin.Context) {
		start := time.Now()
		path := c.Request.URL.Path
		query := c.Request.URL.RawQuery

		c.Next()

		latency := time.Since(start)
		statusCode := c.Writer.Status()

		log.Info("HTTP Request",
			"method", c.Request.Method,
			"path", path,
			"query", query,
			"status", statusCode,
			"latency", latency,
		)
	}
}

// corsMiddleware adds CORS headers so a dashboard can read the API.
func corsMiddleware() gin.HandlerFunc {
	return func(c *gin.Context) {
		c.Writer.Header().Set("Access-Control-Allow-Origin", "*")
		c.Writer.Header().Set("Access-Control-Allow-Headers",
			"Content-Type, Content-Length, Accept-Encoding, Authorization, accept, origin, Cache-Control, X-Requested-With")
		c.Writer.Header().Set("Access-Control-Allow-Methods", "GET, OPTIONS")

		if c.Request.Method == http.MethodOptions {
			c.AbortWithStatus(http.StatusNoContent)
			return
		}

		c.Next()
	}
}

// handleStatus reports ledger counts and the limiter snapshot.
func handleStatus(targets TargetReader, limiter LimiterReader) gin.HandlerFunc {
	return func(c *gin.Context) {
		c.JSON(http.StatusOK, StatusResponse{
			Targets:   targets.Stats(),
			Upstreams: limiter.Snapshot(),
		})
	}
}

// handleListTargets lists targets, optionally filtered by status.
func handleListTargets(targets TargetReader) gin.HandlerFunc {
	return func(c *gin.Context) {
		status := c.Query("status")
		if status != "" && !domain.ValidStatus(status) {
			c.JSON(http.StatusBadRequest, gin.H{
				"error": "unknown status " + strconv.Quote(status),
			})
			return
		}

		limit := defaultListLimit
		if raw := c.Query("limit"); raw != "" {
			parsed, err := strconv.Atoi(raw)
			if err != nil || parsed < 1 {
				c.JSON(http.StatusBadRequest, gin.H{
					"error": "limit must be a positive integer",
				})
				return
			}
			limit = min(parsed, maxListLimit)
		}

		list := targets.List(status, limit)
		c.JSON(http.StatusOK, TargetsResponse{
			Targets: list,
			Count:   len(list),
		})
	}
}

// handleGetTarget returns one target by id.
func handleGetTarget(targets TargetReader) gin.HandlerFunc {
	return func(c *gin.Context) {
		t, ok := targets.Get(c.Param("id"))
		if !ok {
			c.JSON(http.StatusNotFound, gin.H{"error": "target not found"})
			return
		}
		c.JSON(http.StatusOK, t)
	}
}

// NewHTTPServer builds the HTTP server around the router with the
// configured timeouts.
func NewHTTPServer(
	log logger.Interface,
	cfg *config.ServerConfig,
	targets TargetReader,
	limiter LimiterReader,
) *http.Server {
	router := SetupRouter(log, targets, limiter)

	return &http.Server{
		Addr:              cfg.Address,
		Handler:           router,
		ReadTimeout:       cfg.ReadTimeout,
		WriteTimeout:      cfg.WriteTimeout,
		IdleTimeout:       cfg.IdleTimeout,
		ReadHeaderTimeout: readHeaderTimeout,
	}
}
