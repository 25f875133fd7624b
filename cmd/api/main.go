package main

import (
	"context"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"go.uber.org/zap"

	"github.com/linkkey/linkkey/internal/config"
	"github.com/linkkey/linkkey/internal/geoip"
	"github.com/linkkey/linkkey/internal/infrastructure/db"
	"github.com/linkkey/linkkey/internal/infrastructure/logger"
	"github.com/linkkey/linkkey/internal/infrastructure/telemetry"
	"github.com/linkkey/linkkey/internal/processing/analytics"
	"github.com/linkkey/linkkey/internal/processing/links"
	"github.com/linkkey/linkkey/internal/storage/mongo"
	"github.com/linkkey/linkkey/internal/storage/postgres"
	redisStorage "github.com/linkkey/linkkey/internal/storage/redis"
	httpTransport "github.com/linkkey/linkkey/internal/transport/http"
	"github.com/linkkey/linkkey/internal/transport/http/middleware"
)

func main() {
	cfg, err := config.Load()
	if err != nil {
		fmt.Fprintf(os.Stderr, "Failed to load configuration: %v\n", err)
		os.Exit(1)
	}

	if err := logger.Init(cfg.App.Env); err != nil {
		fmt.Fprintf(os.Stderr, "Failed to initialize logger: %v\n", err)
		os.Exit(1)
	}
	defer logger.Sync()

	logger.Info("Starting application",
		zap.String("name", cfg.App.Name),
		zap.String("version", cfg.App.Version),
		zap.String("env", cfg.App.Env),
		zap.String("backend", cfg.Storage.Backend),
		zap.String("analytics", cfg.Analytics.Mode),
	)

	var shutdownTracer func(context.Context) error
	if cfg.OTel.Enabled {
		var err error
		shutdownTracer, err = telemetry.InitTracer(cfg.OTel.Endpoint, cfg.App.Name, cfg.App.Version)
		if err != nil {
			logger.Warn("Failed to initialize tracer, continuing without tracing", zap.Error(err))
		} else {
			logger.Info("OpenTelemetry tracer initialized", zap.String("endpoint", cfg.OTel.Endpoint))
		}
	}

	ctx := context.Background()

	var (
		linkRepo  links.LinkRepository
		tagRepo   links.TagRepository
		clickRepo analytics.ClickRepository
		statsRepo analytics.StatsRepository
		recorder  httpTransport.VisitRecorder
		cleanup   func()
	)

	switch cfg.Storage.Backend {
	case config.BackendPostgres:
		if cfg.Postgres.MigrateOnStart {
			if err := postgres.Migrate(ctx, cfg.Postgres.DSN); err != nil {
				logger.Fatal("Failed to run migrations", zap.Error(err))
			}
		}

		pg, err := db.ConnectPostgres(ctx, cfg.Postgres.DSN)
		if err != nil {
			logger.Fatal("Failed to connect to Postgres", zap.Error(err))
		}
		cleanup = pg.Close

		pgLinks, err := postgres.NewLinksRepository(pg)
		if err != nil {
			logger.Fatal("Failed to initialize links repository", zap.Error(err))
		}
		pgTags, err := postgres.NewTagsRepository(pg)
		if err != nil {
			logger.Fatal("Failed to initialize tags repository", zap.Error(err))
		}
		pgAnalytics, err := postgres.NewAnalyticsRepository(pg)
		if err != nil {
			logger.Fatal("Failed to initialize analytics repository", zap.Error(err))
		}

		linkRepo, tagRepo, clickRepo, statsRepo = pgLinks, pgTags, pgAnalytics, pgAnalytics

		if cfg.Analytics.Mode == config.AnalyticsOutbox {
			outbox, err := postgres.NewVisitOutboxRepository(pg)
			if err != nil {
				logger.Fatal("Failed to initialize outbox repository", zap.Error(err))
			}
			recorder, err = postgres.NewOutboxVisitRecorder(outbox)
			if err != nil {
				logger.Fatal("Failed to initialize outbox recorder", zap.Error(err))
			}
		}

	case config.BackendMongo:
		mongoConn, err := db.ConnectMongo(cfg.MongoDB.URI, cfg.MongoDB.Database)
		if err != nil {
			logger.Fatal("Failed to connect to MongoDB", zap.Error(err))
		}
		cleanup = func() { _ = mongoConn.Disconnect() }

		mLinks, err := mongo.NewLinksRepository(mongoConn)
		if err != nil {
			logger.Fatal("Failed to initialize links repository", zap.Error(err))
		}
		mTags, err := mongo.NewTagsRepository(mongoConn)
		if err != nil {
			logger.Fatal("Failed to initialize tags repository", zap.Error(err))
		}
		mAnalytics, err := mongo.NewAnalyticsRepository(mongoConn)
		if err != nil {
			logger.Fatal("Failed to initialize analytics repository", zap.Error(err))
		}

		linkRepo, tagRepo, clickRepo, statsRepo = mLinks, mTags, mAnalytics, mAnalytics

	default:
		logger.Fatal("Unknown storage backend", zap.String("backend", cfg.Storage.Backend))
	}
	defer cleanup()

	var geo analytics.GeoResolver = geoip.Noop{}
	if cfg.GeoIP.Enabled {
		resolver, err := geoip.NewHTTPResolver(geoip.Config{
			Endpoint: cfg.GeoIP.Endpoint,
			Timeout:  cfg.GeoIP.Timeout,
		})
		if err != nil {
			logger.Fatal("Failed to initialize geo resolver", zap.Error(err))
		}
		geo = resolver
	}

	pipeline := analytics.NewPipeline(clickRepo, statsRepo, geo, cfg.Shortener.ServiceDomain)
	if recorder == nil {
		recorder = pipeline
	}

	keygen := links.NewRandomKeyGenerator(cfg.Shortener.KeyAlphabet)
	linkSvc := links.NewService(linkRepo, tagRepo, keygen, links.Config{
		KeyLength:     cfg.Shortener.KeyLength,
		MaxTags:       cfg.Shortener.MaxTags,
		ServiceDomain: cfg.Shortener.ServiceDomain,
	})

	redisClient, err := redisStorage.New(redisStorage.Config{
		Addr:     cfg.Redis.Addr,
		Password: cfg.Redis.Password,
		DB:       cfg.Redis.DB,
	})
	if err != nil {
		logger.Fatal("Failed to connect to Redis", zap.Error(err))
	}
	defer func() { _ = redisClient.Close() }()

	cache := redisStorage.NewLinkCache(redisClient, cfg.Shortener.CacheMaxAge)

	redisLimiterStore := redisStorage.NewFixedWindowLimiter(redisClient, "rl:create", time.Minute)
	opts := httpTransport.DefaultRouterOptions()
	opts.RateLimiter = middleware.NewRedisFixedWindowLimiter(redisLimiterStore, cfg.Security.CreateRatePerMinute)

	router := httpTransport.NewRouterWithOptions(cfg, linkSvc, recorder, pipeline, cache, opts)

	server := &http.Server{
		Addr:         fmt.Sprintf(":%s", cfg.Server.Port),
		Handler:      router,
		ReadTimeout:  15 * time.Second,
		WriteTimeout: 15 * time.Second,
		IdleTimeout:  60 * time.Second,
	}

	go func() {
		sigChan := make(chan os.Signal, 1)
		signal.Notify(sigChan, syscall.SIGINT, syscall.SIGTERM)
		<-sigChan

		logger.Info("Shutting down server...")

		shutdownCtx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
		defer cancel()

		if shutdownTracer != nil {
			_ = shutdownTracer(shutdownCtx)
		}

		if err := server.Shutdown(shutdownCtx); err != nil {
			logger.Error("Server shutdown error", zap.Error(err))
		}
	}()

	logger.Info("Server starting",
		zap.String("port", cfg.Server.Port),
		zap.String("env", cfg.App.Env),
		zap.String("address", fmt.Sprintf("%s:%s", cfg.Server.Host, cfg.Server.Port)),
	)

	if err := server.ListenAndServe(); err != http.ErrServerClosed {
		logger.Fatal("Server error", zap.Error(err))
	}

	logger.Info("Server stopped gracefully")
}
