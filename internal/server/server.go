package server

import (
	"context"
	"net/http"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/lold2424/LessURL-Service/internal/analytics"
	"github.com/lold2424/LessURL-Service/internal/api"
	"github.com/lold2424/LessURL-Service/internal/config"
	"github.com/lold2424/LessURL-Service/internal/gemini"
	"github.com/lold2424/LessURL-Service/internal/middleware"
	"github.com/lold2424/LessURL-Service/internal/observability"
	"github.com/lold2424/LessURL-Service/internal/queue"
	"github.com/lold2424/LessURL-Service/internal/repository"
	"github.com/lold2424/LessURL-Service/internal/safety"
	"github.com/lold2424/LessURL-Service/internal/service"
	"github.com/redis/go-redis/v9"
	"go.opentelemetry.io/contrib/instrumentation/github.com/gin-gonic/gin/otelgin"
)

// redisPinger adapts *redis.Client to api.CacheInterface.
type redisPinger struct{ client *redis.Client }

func (r *redisPinger) Ping(ctx context.Context) error {
	return r.client.Ping(ctx).Err()
}

// NewRouter wires repositories, services and middleware and returns the
// Gin engine. publisher may be nil, in which case clicks are recorded
// in-process.
func NewRouter(cfg *config.Config, db *pgxpool.Pool, cache *redis.Client, publisher *queue.Publisher, obs *observability.Observability) *gin.Engine {
	logger := obs.Logger
	loc := cfg.App.Location()

	// Repositories
	linkRepo := repository.NewCachedLinkRepository(repository.NewLinkRepository(db), cache, cfg.Cache.TTL)
	clickRepo := repository.NewClickRepository(db)
	insightRepo := repository.NewInsightRepository(db)
	monitorRepo := repository.NewMonitorRepository(db)
	snapshots := repository.NewSnapshotCache(cache, cfg.Cache.SnapshotTTL)

	// Upstream clients
	geminiClient := gemini.NewClient(cfg.Insight.GeminiAPIKey, cfg.Insight.GeminiEndpoint, cfg.Insight.GeminiModel)

	var checkers []safety.Checker
	if geminiClient.Enabled() {
		checkers = append(checkers, safety.NewGeminiChecker(geminiClient))
	}
	if cfg.Safety.SafeBrowsingAPIKey != "" {
		checkers = append(checkers, safety.NewSafeBrowsingChecker(cfg.Safety.SafeBrowsingAPIKey, cfg.Safety.SafeBrowsingEndpoint))
	}
	screener := safety.NewScreener(cfg.Safety.Timeout, logger, checkers...)

	template := analytics.TemplateGenerator{Location: loc}
	var primary analytics.Generator
	if geminiClient.Enabled() {
		primary = analytics.NewExternalGenerator(geminiClient)
	}
	insights := analytics.NewFallbackGenerator(primary, template, cfg.Insight.Timeout, logger)

	// Services
	recorder := service.NewClickRecorder(clickRepo, snapshots, logger)

	var (
		clickPublisher service.ClickPublisher
		broker         api.BrokerInterface
	)
	if publisher != nil {
		clickPublisher = publisher
		broker = publisher
	}

	linkService := service.NewLinkService(linkRepo, clickPublisher, recorder, screener, monitorRepo, service.LinkOptions{
		BaseURL:        cfg.App.BaseURL,
		ShortIDLen:     cfg.App.ShortIDLen,
		ShortIDRetries: cfg.App.ShortIDRetries,
		PublicListSize: cfg.App.PublicListSize,
		MaxTitleLen:    cfg.App.MaxTitleLen,
	}, logger)

	statsService := service.NewStatsService(linkRepo, clickRepo, insightRepo, insights, snapshots, monitorRepo, service.StatsOptions{
		Aggregation:     analytics.Options{Location: loc, DailyWindow: analytics.DefaultDailyWindow},
		InsightCacheFor: cfg.Insight.CacheFor,
		InsightModel:    geminiClient.Model(),
	}, logger)

	monitorService := service.NewMonitorService(monitorRepo, logger)

	handler := api.NewHandler(linkService, statsService, monitorService, db, &redisPinger{client: cache}, broker, logger)

	// Middleware order: tracing, logging, CORS, slow request capture
	router := gin.New()
	router.Use(gin.Recovery())
	router.Use(otelgin.Middleware(cfg.Observability.ServiceName))
	router.Use(middleware.Logging(logger))
	router.Use(middleware.CORS(cfg.Server.CORSAllowedOrigin))
	router.Use(middleware.SlowRequests(monitorService, time.Duration(cfg.Server.SlowRequestMillis)*time.Millisecond))

	if obs.Registry != nil {
		router.GET("/metrics", gin.WrapH(obs.MetricsHandler()))
	}

	limiter := middleware.NewRateLimiter(cache, cfg.Server.RateLimitRequests, cfg.Server.RateLimitWindow, "shorten", logger)
	handler.RegisterRoutes(router,
		[]gin.HandlerFunc{limiter.Middleware()},
		[]gin.HandlerFunc{middleware.AdminToken(cfg.Admin.Token)},
	)

	return router
}

// NewServer returns an HTTP server around NewRouter with timeouts set.
func NewServer(cfg *config.Config, db *pgxpool.Pool, cache *redis.Client, publisher *queue.Publisher, obs *observability.Observability) *http.Server {
	router := NewRouter(cfg, db, cache, publisher, obs)

	return &http.Server{
		Addr:         ":" + cfg.Server.Port,
		Handler:      router,
		ReadTimeout:  10 * time.Second,
		WriteTimeout: 10 * time.Second,
		IdleTimeout:  60 * time.Second,
	}
}
