package http

import (
	"net/http"
	"strings"

	"go.opentelemetry.io/contrib/instrumentation/net/http/otelhttp"

	"github.com/linkkey/linkkey/internal/config"
	"github.com/linkkey/linkkey/internal/infrastructure/telemetry"
	"github.com/linkkey/linkkey/internal/processing/links"
	"github.com/linkkey/linkkey/internal/storage/redis"
	"github.com/linkkey/linkkey/internal/transport/http/middleware"
)

var spanNames = map[string]string{
	"GET /health":                "health",
	"GET /metrics":               "metrics",
	"POST /api/links":            "links.create",
	"GET /api/links/{key}":       "links.get",
	"PATCH /api/links/{key}":     "links.edit",
	"DELETE /api/links/{key}":    "links.delete",
	"GET /api/links/{key}/stats": "links.stats",
	"GET /{key}":                 "links.redirect",
}

type RouterOptions struct {
	EnableCORS    bool
	EnableLogging bool
	EnableMetrics bool

	RateLimiter *middleware.RedisFixedWindowLimiter
}

func DefaultRouterOptions() RouterOptions {
	return RouterOptions{
		EnableCORS:    true,
		EnableLogging: true,
		EnableMetrics: true,
	}
}

func NewRouter(cfg *config.Config, linkService *links.Service, recorder VisitRecorder, stats StatsReader, cache *redis.LinkCache) http.Handler {
	return NewRouterWithOptions(cfg, linkService, recorder, stats, cache, DefaultRouterOptions())
}

func NewRouterWithOptions(
	cfg *config.Config,
	linkService *links.Service,
	recorder VisitRecorder,
	stats StatsReader,
	cache *redis.LinkCache,
	opts RouterOptions,
) http.Handler {
	mux := http.NewServeMux()

	healthHandler := NewHealthHandler()
	linksHandler := NewLinksHandler(cfg, linkService, recorder, stats, cache)

	mux.HandleFunc("GET /health", healthHandler.Health)
	mux.Handle("GET /metrics", healthHandler.Metrics())

	createMiddlewares := []func(http.Handler) http.Handler{}
	if opts.RateLimiter != nil {
		createMiddlewares = append(createMiddlewares, middleware.RateLimitMiddleware(opts.RateLimiter))
	}

	mux.Handle("POST /api/links", middleware.Chain(
		http.HandlerFunc(linksHandler.Create),
		createMiddlewares...,
	))

	mux.HandleFunc("GET /api/links/{key}", linksHandler.Get)
	mux.HandleFunc("PATCH /api/links/{key}", linksHandler.Edit)
	mux.HandleFunc("DELETE /api/links/{key}", linksHandler.Delete)
	mux.HandleFunc("GET /api/links/{key}/stats", linksHandler.Stats)
	mux.HandleFunc("GET /{key}", linksHandler.Redirect)

	var innerHandler http.Handler = mux
	innerHandler = middleware.AuthMiddleware(cfg.Auth.JWTSecret)(innerHandler)
	if opts.EnableCORS {
		innerHandler = middleware.CORSMiddleware(innerHandler)
	}
	if opts.EnableLogging {
		innerHandler = middleware.LoggingMiddleware(innerHandler)
	}
	if opts.EnableMetrics {
		innerHandler = middleware.MetricsMiddleware(innerHandler)
	}

	otelOptions := []otelhttp.Option{
		otelhttp.WithSpanNameFormatter(func(operation string, r *http.Request) string {
			key := r.Method + " " + r.Pattern
			if name, ok := spanNames[key]; ok {
				return name
			}
			if r.Pattern != "" {
				return r.Pattern
			}
			path := strings.TrimSpace(r.URL.Path)
			if path == "" {
				path = "/"
			}
			return path
		}),
	}

	if telemetry.TracerProvider != nil {
		otelOptions = append(otelOptions, otelhttp.WithTracerProvider(telemetry.TracerProvider))
	}

	return otelhttp.NewHandler(innerHandler, cfg.App.Name, otelOptions...)
}
