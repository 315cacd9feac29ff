package main

import (
	"context"
	"net/http"
	"os/signal"
	"syscall"
	"time"

	"github.com/gofiber/fiber/v2"
	"github.com/gofiber/fiber/v2/middleware/adaptor"
	"github.com/gofiber/fiber/v2/middleware/logger"
	"github.com/gofiber/fiber/v2/middleware/recover"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"github.com/redis/go-redis/v9"
	"github.com/sirupsen/logrus"

	httpapi "github.com/i474232898/treemap/internal/api/http"
	"github.com/i474232898/treemap/internal/config"
	"github.com/i474232898/treemap/internal/district"
	"github.com/i474232898/treemap/internal/geocoding"
	"github.com/i474232898/treemap/internal/logging"
	"github.com/i474232898/treemap/internal/overlay"
	"github.com/i474232898/treemap/internal/posts"
	"github.com/i474232898/treemap/internal/scheduler"
	"github.com/i474232898/treemap/internal/store"
)

func main() {
	// Load configuration.
	cfg, err := config.Load()
	if err != nil {
		logrus.Fatalf("failed to load config: %v", err)
	}
	logging.Setup(cfg.LogLevel, cfg.LogFormat)
	log := logging.Component("main")

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	// Shared HTTP client for outbound boundary API calls.
	httpClient := &http.Client{
		Timeout: cfg.HTTPTimeout,
	}

	// VWorld client with resilience (backoff + circuit breaker), behind a response cache.
	vworld := geocoding.NewVWorld(httpClient, cfg.VWorldKey, cfg.VWorldDomain,
		geocoding.WithVWorldBaseURL(cfg.VWorldBaseURL))
	if cfg.VWorldKey == "" {
		log.Warn("VWORLD_KEY is not set; boundary lookups will fail")
	}

	var respCache geocoding.ResponseCache = geocoding.NewMemoryCache()
	if cfg.RedisAddr != "" {
		rc := redis.NewClient(&redis.Options{
			Addr:     cfg.RedisAddr,
			Password: cfg.RedisPassword,
			DB:       cfg.RedisDB,
		})
		defer rc.Close()
		if err := rc.Ping(ctx).Err(); err != nil {
			log.WithError(err).Warn("redis unavailable; caching responses in memory")
		} else {
			respCache = geocoding.NewRedisCache(rc)
		}
	}
	geocoder := geocoding.NewCached(vworld, respCache, cfg.UpstreamTTL)

	// Post store: PostgreSQL when configured, in-memory otherwise.
	var postStore posts.Store
	if cfg.DatabaseURL != "" {
		pg, err := store.Connect(ctx, cfg.DatabaseURL)
		if err != nil {
			log.Fatalf("failed to connect to postgres: %v", err)
		}
		defer pg.Close()
		postStore = pg
	} else {
		postStore = store.NewMemoryStore(cfg.StoreMaxPerDistrict)
	}

	postsSvc := posts.NewService(postStore, geocoder, cfg.StatsInterval)
	overlays := overlay.NewSet(geocoder, district.NewBoundaryCache(), overlay.WithConcurrency(cfg.OverlayConcurrency))

	// Scheduler that periodically refreshes stats and warms the boundary overlays.
	sched := scheduler.New(cfg.StatsInterval, postsSvc, overlays)
	if err := sched.Start(); err != nil {
		log.Fatalf("failed to start scheduler: %v", err)
	}
	defer sched.Stop()

	// Basic app configuration
	app := fiber.New(fiber.Config{
		AppName:               "treemap",
		DisableStartupMessage: true,
		ReadTimeout:           10 * time.Second,
		WriteTimeout:          20 * time.Second,
		ErrorHandler:          httpapi.ErrorHandler,
	})

	// Global middleware
	app.Use(logger.New())
	app.Use(recover.New())

	// Basic health endpoint
	app.Get("/health", func(c *fiber.Ctx) error {
		return c.JSON(fiber.Map{
			"status":  "ok",
			"service": "treemap",
		})
	})
	app.Get("/metrics", adaptor.HTTPHandler(promhttp.Handler()))

	// API routes.
	httpapi.RegisterRoutes(app, geocoder, postsSvc, overlays)

	go func() {
		log.WithField("port", cfg.Port).Info("listening")
		if err := app.Listen(":" + cfg.Port); err != nil {
			log.WithError(err).Error("fiber server stopped")
		}
	}()

	// Wait for termination signal
	<-ctx.Done()

	shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()

	if err := app.ShutdownWithContext(shutdownCtx); err != nil {
		log.WithError(err).Error("error during shutdown")
	}
}
