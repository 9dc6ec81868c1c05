package main

import (
	"context"
	"log/slog"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/getsentry/sentry-go"
	sentryfiber "github.com/getsentry/sentry-go/fiber"
	"github.com/gofiber/fiber/v2"
	fiberlogger "github.com/gofiber/fiber/v2/middleware/logger"
	"github.com/gofiber/fiber/v2/middleware/recover"
	"github.com/gofiber/fiber/v2/middleware/requestid"
	"github.com/redis/go-redis/v9"

	"github.com/ahmetcoskunkizilkaya/safeguard/internal/config"
	"github.com/ahmetcoskunkizilkaya/safeguard/internal/database"
	"github.com/ahmetcoskunkizilkaya/safeguard/internal/handlers"
	"github.com/ahmetcoskunkizilkaya/safeguard/internal/logging"
	"github.com/ahmetcoskunkizilkaya/safeguard/internal/metrics"
	"github.com/ahmetcoskunkizilkaya/safeguard/internal/middleware"
	"github.com/ahmetcoskunkizilkaya/safeguard/internal/orchestrator"
	"github.com/ahmetcoskunkizilkaya/safeguard/internal/resources"
	"github.com/ahmetcoskunkizilkaya/safeguard/internal/routes"
	"github.com/ahmetcoskunkizilkaya/safeguard/internal/safety"
	"github.com/ahmetcoskunkizilkaya/safeguard/internal/services"
	"github.com/ahmetcoskunkizilkaya/safeguard/internal/tenant"
	"github.com/ahmetcoskunkizilkaya/safeguard/internal/transparency"
)

func main() {
	// Structured logging (JSON to stdout)
	logging.Setup()

	cfg := config.Load()

	if cfg.JWTSecret == "" {
		slog.Error("JWT_SECRET environment variable is required")
		os.Exit(1)
	}
	if cfg.DBPassword == "" {
		slog.Error("DB_PASSWORD environment variable is required")
		os.Exit(1)
	}
	if cfg.ContentHashKey == "" {
		slog.Warn("CONTENT_HASH_KEY is not set; content hashes are unkeyed")
	}

	// App registry
	registry, err := tenant.LoadFromFile(cfg.AppsConfigPath)
	if err != nil {
		slog.Error("failed to load app registry", "path", cfg.AppsConfigPath, "error", err)
		os.Exit(1)
	}
	slog.Info("app registry loaded", "apps", len(registry.All()))

	// Safety policy and pattern library (embedded defaults unless overridden)
	policy := safety.DefaultPolicy()
	if cfg.PolicyPath != "" {
		if policy, err = safety.LoadPolicy(cfg.PolicyPath); err != nil {
			slog.Error("failed to load safety policy", "path", cfg.PolicyPath, "error", err)
			os.Exit(1)
		}
	}
	patterns := safety.DefaultPatternLibrary()
	if cfg.PatternsPath != "" {
		if patterns, err = safety.LoadPatternLibrary(cfg.PatternsPath); err != nil {
			slog.Error("failed to load pattern library", "path", cfg.PatternsPath, "error", err)
			os.Exit(1)
		}
	}
	slog.Info("safety policy loaded", "policy_version", policy.Version, "pattern_version", patterns.Version)

	// Database
	if err := database.Connect(cfg); err != nil {
		slog.Error("database connection failed", "error", err)
		os.Exit(1)
	}
	if err := database.Migrate(); err != nil {
		slog.Error("migration failed", "error", err)
		os.Exit(1)
	}

	// PostgreSQL log handler (ERROR+ async batch)
	pgLogHandler := logging.NewPGHandler(database.DB)
	logging.WithPostgres(pgLogHandler)

	// Retention purge
	retention, err := logging.StartRetention(logging.NewPurger(database.DB), cfg.RetentionCron, 10*time.Minute)
	if err != nil {
		slog.Error("retention scheduling failed", "error", err)
		os.Exit(1)
	}

	// Sentry error tracking
	if cfg.SentryDSN != "" {
		if err := sentry.Init(sentry.ClientOptions{
			Dsn:              cfg.SentryDSN,
			EnableTracing:    true,
			TracesSampleRate: 0.2,
			Environment:      cfg.Environment,
		}); err != nil {
			slog.Error("sentry init failed", "error", err)
		} else {
			defer sentry.Flush(2 * time.Second)
		}
	}

	m := metrics.New()

	// Optional trailing-risk cache
	var rdb *redis.Client
	var historyCache services.HistoryCache
	if cfg.RedisAddr != "" {
		rdb = redis.NewClient(&redis.Options{
			Addr:     cfg.RedisAddr,
			Password: cfg.RedisPassword,
			DB:       cfg.RedisDB,
		})
		ctx, cancel := context.WithTimeout(context.Background(), 2*time.Second)
		if err := rdb.Ping(ctx).Err(); err != nil {
			slog.Warn("redis unavailable at startup; history falls back to postgres", "error", err)
		}
		cancel()
		historyCache = services.NewRedisHistoryCache(rdb, time.Duration(policy.History.WindowDays)*24*time.Hour)
	}

	// Crisis resources
	var source resources.Source = resources.NewStaticSource(resources.DefaultRegistry())
	if cfg.ResourcesPath != "" {
		source = resources.NewFileSource(cfg.ResourcesPath, slog.Default())
	}
	finder := resources.NewFinder(source, resources.FinderConfig{
		Timeout:        cfg.ResourceTimeout,
		DefaultCountry: cfg.DefaultCountry,
	}, slog.Default())
	finder.OnFallback = func(error) { m.ResourceFallback() }

	// Services
	store := services.NewGormSafetyStore(database.DB)
	recorder := transparency.NewRecorder(store, transparency.Config{Timeout: cfg.StoreTimeout}, slog.Default())
	recorder.OnFailure = func(transparency.EventType, error) { m.PersistenceError("transparency") }

	analyzer := safety.NewAnalyzer(patterns, policy,
		safety.WithLogger(slog.Default()),
		safety.WithFailureHook(func(stage string, _ error) { m.ExtractorFailed(stage) }),
	)
	safetyService := services.NewSafetyService(services.SafetyDeps{
		Analyzer: analyzer,
		Finder:   finder,
		Store:    store,
		Cache:    historyCache,
		Recorder: recorder,
		Apps:     registry,
		Metrics:  m,
		Logger:   slog.Default(),
	}, services.SafetyConfig{
		StoreTimeout:   cfg.StoreTimeout,
		ContentHashKey: cfg.ContentHashKey,
	})
	reviewService := services.NewReviewService(store, recorder, slog.Default())

	// Validation pipeline
	mode, err := orchestrator.ParseMode(cfg.ValidationMode)
	if err != nil {
		slog.Error("invalid validation mode", "error", err)
		os.Exit(1)
	}
	validators := []orchestrator.Validator{services.NewContentGuidelines(0)}
	orchOpts := []orchestrator.Option{
		orchestrator.WithLogger(slog.Default()),
		orchestrator.WithMetrics(m),
		orchestrator.WithPolicy(policy),
	}
	orch := orchestrator.New(safetyService, validators, orchestrator.Config{
		Mode:    mode,
		Timeout: cfg.ValidateTimeout,
	}, orchOpts...)
	early := orchestrator.New(safetyService, validators, orchestrator.Config{
		Mode:          orchestrator.ModeParallel,
		Timeout:       cfg.ValidateTimeout,
		DispatchEarly: true,
	}, orchOpts...)

	// Handlers
	healthHandler := handlers.NewHealthHandler(registry, finder, database.Ping, rdb)
	safetyHandler := handlers.NewSafetyHandler(safetyService, orch, early, registry)
	reviewHandler := handlers.NewReviewHandler(reviewService)

	// Fiber app
	app := fiber.New(fiber.Config{
		BodyLimit:    1 * 1024 * 1024,
		ErrorHandler: customErrorHandler,
	})

	// Sentry middleware
	app.Use(sentryfiber.New(sentryfiber.Options{
		Repanic:         true,
		WaitForDelivery: false,
	}))

	// Global middleware
	app.Use(recover.New())
	app.Use(requestid.New())
	app.Use(fiberlogger.New(fiberlogger.Config{
		Format: "${time} | ${status} | ${latency} | ${ip} | ${method} | ${path}\n",
	}))
	app.Use(middleware.CORS(cfg))
	app.Use(func(c *fiber.Ctx) error {
		c.Set("X-Content-Type-Options", "nosniff")
		c.Set("X-Frame-Options", "DENY")
		c.Set("Cache-Control", "no-store")
		return c.Next()
	})
	app.Use(middleware.TenantMiddleware(registry))

	// Routes
	routes.Setup(app, cfg, m, healthHandler, safetyHandler, reviewHandler)

	// Graceful shutdown
	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)

	go func() {
		slog.Info("server starting", "port", cfg.Port)
		if err := app.Listen(":" + cfg.Port); err != nil {
			slog.Error("server failed to start", "error", err)
			os.Exit(1)
		}
	}()

	<-quit
	slog.Info("shutting down server...")

	if err := app.ShutdownWithTimeout(10 * time.Second); err != nil {
		slog.Error("server shutdown error", "error", err)
	}

	// Drain post-response writes before closing their connections
	safetyService.Wait()
	<-retention.Stop().Done()
	pgLogHandler.Stop()
	sentry.Flush(2 * time.Second)

	if rdb != nil {
		if err := rdb.Close(); err != nil {
			slog.Error("redis close error", "error", err)
		}
	}
	if sqlDB, err := database.DB.DB(); err == nil {
		if err := sqlDB.Close(); err != nil {
			slog.Error("database close error", "error", err)
		}
	}

	slog.Info("server stopped")
}

func customErrorHandler(c *fiber.Ctx, err error) error {
	code := fiber.StatusInternalServerError
	message := "Internal server error"
	if e, ok := err.(*fiber.Error); ok {
		code = e.Code
		message = e.Message
	}

	// Only expose error details for client errors (4xx), not server errors (5xx)
	if code >= 500 {
		slog.Error("unhandled server error", "method", c.Method(), "path", c.Path(), "error", err.Error())
		message = "Internal server error"
	}

	return c.Status(code).JSON(fiber.Map{
		"error":   true,
		"message": message,
	})
}
