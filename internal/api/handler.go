package api

import (
	"context"
	"errors"
	"log/slog"
	"net/http"

	"github.com/gin-gonic/gin"
	"github.com/lold2424/LessURL-Service/internal/analytics"
	"github.com/lold2424/LessURL-Service/internal/model"
	"github.com/lold2424/LessURL-Service/internal/service"
)

// retryAfterSeconds is sent with 503 responses so clients back off
const retryAfterSeconds = "5"

// Handler holds HTTP handlers and dependencies.
// It receives interfaces rather than concrete implementations for testability.
type Handler struct {
	links   service.LinkServiceInterface    // Shortening, public list and redirects
	stats   service.StatsServiceInterface   // Per-link statistics
	monitor service.MonitorServiceInterface // Admin dashboard
	db      DBInterface                     // Database connection for health checks
	cache   CacheInterface                  // Cache connection for health checks
	broker  BrokerInterface                 // Optional; nil when clicks are recorded in-process
	logger  *slog.Logger
}

// DBInterface defines the database operations needed by the handler.
type DBInterface interface {
	Ping(ctx context.Context) error
	Close()
}

// CacheInterface defines the cache operations needed by the handler.
type CacheInterface interface {
	Ping(ctx context.Context) error
}

// BrokerInterface reports whether the click queue is reachable.
type BrokerInterface interface {
	Ping(ctx context.Context) error
}

// NewHandler creates a new handler instance with the provided dependencies.
// broker may be nil.
func NewHandler(
	links service.LinkServiceInterface,
	stats service.StatsServiceInterface,
	monitor service.MonitorServiceInterface,
	db DBInterface,
	cache CacheInterface,
	broker BrokerInterface,
	logger *slog.Logger,
) *Handler {
	return &Handler{
		links:   links,
		stats:   stats,
		monitor: monitor,
		db:      db,
		cache:   cache,
		broker:  broker,
		logger:  logger,
	}
}

// RegisterRoutes registers all route definitions on the given Gin engine.
// The caller creates the engine and adds global middleware first. Extra
// middleware for /shorten (rate limiting) and /admin (token check) is passed in.
// The redirect route is registered last so fixed paths take precedence.
func (h *Handler) RegisterRoutes(r *gin.Engine, shortenMW []gin.HandlerFunc, adminMW []gin.HandlerFunc) {
	r.GET("/health", h.healthCheck)

	r.POST("/shorten", append(append([]gin.HandlerFunc{}, shortenMW...), h.shorten)...)
	r.GET("/public-urls", h.publicURLs)
	r.GET("/stats/:shortId", h.getStats)

	admin := r.Group("/admin", adminMW...)
	admin.GET("/metrics", h.adminMetrics)

	r.GET("/:shortId", h.redirect)
}

// healthCheck handles GET /health
// Response codes:
//   - 200 OK: database and cache are up; a down broker only marks the status degraded
//   - 503 Service Unavailable: database or cache is down
func (h *Handler) healthCheck(c *gin.Context) {
	ctx := c.Request.Context()

	status := "ok"
	code := http.StatusOK
	deps := gin.H{"cache": "up", "database": "up", "broker": "disabled"}

	if err := h.cache.Ping(ctx); err != nil {
		status, code = "degraded", http.StatusServiceUnavailable
		deps["cache"] = "down"
	}
	if err := h.db.Ping(ctx); err != nil {
		status, code = "degraded", http.StatusServiceUnavailable
		deps["database"] = "down"
	}
	if h.broker != nil {
		deps["broker"] = "up"
		if err := h.broker.Ping(ctx); err != nil {
			// clicks still get recorded synchronously
			status = "degraded"
			deps["broker"] = "down"
		}
	}

	c.JSON(code, gin.H{"status": status, "dependencies": deps})
}

// shorten handles POST /shorten
// Response codes:
//   - 200 OK: {shortId, shortUrl}
//   - 400 Bad Request: Invalid body, URL, title or visibility; malicious URL
//   - 503 Service Unavailable: Storage unreachable
func (h *Handler) shorten(c *gin.Context) {
	ctx := c.Request.Context()
	var req model.ShortenRequest

	if err := c.ShouldBindJSON(&req); err != nil {
		h.logger.WarnContext(ctx, "invalid request body",
			slog.String("error", err.Error()),
			slog.String("path", c.Request.URL.Path))
		h.errorResponse(c, http.StatusBadRequest, "Invalid request body")
		return
	}

	resp, err := h.links.Shorten(ctx, &req)
	if err != nil {
		switch {
		case errors.Is(err, service.ErrMaliciousURL):
			h.errorResponse(c, http.StatusBadRequest, "URL was flagged as malicious")
		default:
			h.serviceError(c, err, "shorten")
		}
		return
	}

	c.JSON(http.StatusOK, resp)
}

// publicURLs handles GET /public-urls
func (h *Handler) publicURLs(c *gin.Context) {
	links, err := h.links.ListPublic(c.Request.Context())
	if err != nil {
		h.serviceError(c, err, "list public links")
		return
	}
	c.JSON(http.StatusOK, links)
}

// getStats handles GET /stats/:shortId
// Response codes:
//   - 200 OK: {clicks, stats}
//   - 404 Not Found: Short ID does not exist
//   - 503 Service Unavailable: Storage unreachable
func (h *Handler) getStats(c *gin.Context) {
	shortID := c.Param("shortId")

	resp, err := h.stats.GetStats(c.Request.Context(), shortID)
	if err != nil {
		h.serviceError(c, err, "get stats", slog.String("short_id", shortID))
		return
	}
	c.JSON(http.StatusOK, resp)
}

// adminMetrics handles GET /admin/metrics
func (h *Handler) adminMetrics(c *gin.Context) {
	resp, err := h.monitor.AdminMetrics(c.Request.Context())
	if err != nil {
		h.serviceError(c, err, "admin metrics")
		return
	}
	c.JSON(http.StatusOK, resp)
}

// redirect handles GET /:shortId
// Response codes:
//   - 301 Moved Permanently: Redirects to the original URL
//   - 404 Not Found: Short ID does not exist
//   - 503 Service Unavailable: Storage unreachable
func (h *Handler) redirect(c *gin.Context) {
	ctx := c.Request.Context()
	shortID := c.Param("shortId")

	visit := service.Visit{
		Referer:   c.GetHeader("Referer"),
		IP:        c.ClientIP(),
		UserAgent: c.GetHeader("User-Agent"),
		Country:   analytics.Country(c.Request.Header),
	}

	url, err := h.links.Resolve(ctx, shortID, visit)
	if err != nil {
		h.serviceError(c, err, "redirect", slog.String("short_id", shortID))
		return
	}

	// browsers must come back through us so every visit is counted
	c.Header("Cache-Control", "no-cache, no-store, must-revalidate")
	c.Redirect(http.StatusMovedPermanently, url)
}

// serviceError maps service sentinels onto HTTP responses
func (h *Handler) serviceError(c *gin.Context, err error, op string, attrs ...any) {
	ctx := c.Request.Context()
	switch {
	case errors.Is(err, service.ErrValidation):
		h.errorResponse(c, http.StatusBadRequest, err.Error())
	case errors.Is(err, service.ErrNotFound):
		h.errorResponse(c, http.StatusNotFound, "Short link not found")
	case errors.Is(err, service.ErrInternal), errors.Is(err, service.ErrShortIDGeneration):
		h.logger.ErrorContext(ctx, op+" failed",
			append(attrs, slog.String("error", err.Error()))...)
		c.Header("Retry-After", retryAfterSeconds)
		h.errorResponse(c, http.StatusServiceUnavailable, "Service temporarily unavailable")
	default:
		h.logger.ErrorContext(ctx, "unexpected error during "+op,
			append(attrs, slog.String("error", err.Error()))...)
		h.errorResponse(c, http.StatusInternalServerError, "Internal server error")
	}
}

// errorResponse sends a standardized JSON error response.
func (h *Handler) errorResponse(c *gin.Context, status int, message string) {
	c.JSON(status, model.ErrorResponse{
		Error:   http.StatusText(status),
		Message: message,
	})
}
