package config

import (
	"fmt"
	"strings"
	"time"

	"github.com/joho/godotenv"
)

// Storage backends and analytics modes accepted by Load.
const (
	BackendPostgres = "postgres"
	BackendMongo    = "mongo"

	AnalyticsDirect = "direct"
	AnalyticsOutbox = "outbox"
)

type Config struct {
	App       AppConfig
	Server    ServerConfig
	Storage   StorageConfig
	Postgres  PostgresConfig
	MongoDB   MongoDBConfig
	Redis     RedisConfig
	Shortener ShortenerConfig
	Analytics AnalyticsConfig
	GeoIP     GeoIPConfig
	Auth      AuthConfig
	Security  SecurityConfig
	OTel      OTelConfig
}

type AppConfig struct {
	Name     string
	Version  string
	Env      string
	LogLevel string
}

type ServerConfig struct {
	Port string
	Host string
}

type StorageConfig struct {
	Backend string // postgres | mongo
}

type PostgresConfig struct {
	DSN            string
	MigrateOnStart bool
}

type MongoDBConfig struct {
	URI      string
	Database string
}

type RedisConfig struct {
	Addr     string
	Password string
	DB       int
}

type ShortenerConfig struct {
	BaseURL        string
	ServiceDomain  string // own domain: rejected as destination, coerced to direct traffic as referer
	KeyLength      int
	KeyAlphabet    string
	MaxTags        int
	RedirectStatus int // 301 or 302
	CacheMaxAge    time.Duration
}

type AnalyticsConfig struct {
	Mode         string // direct | outbox
	ClickTimeout time.Duration
}

type GeoIPConfig struct {
	Enabled  bool
	Endpoint string
	Timeout  time.Duration
}

type AuthConfig struct {
	JWTSecret string
}

type SecurityConfig struct {
	CreateRatePerMinute int
}

type OTelConfig struct {
	Enabled  bool
	Endpoint string
}

func Load() (*Config, error) {
	if err := godotenv.Load(); err != nil {
		fmt.Println("Warning: .env file not found, using environment variables")
	}

	cfg := &Config{
		App: AppConfig{
			Name:     GetEnv("APP_NAME", "linkkey"),
			Version:  GetEnv("APP_VERSION", "0.1.0"),
			Env:      GetEnv("APP_ENV", "development"),
			LogLevel: GetEnv("LOG_LEVEL", "info"),
		},
		Server: ServerConfig{
			Port: GetEnv("APP_PORT", "8080"),
			Host: GetEnv("APP_HOST", "localhost"),
		},
		Storage: StorageConfig{
			Backend: strings.ToLower(GetEnv("STORAGE_BACKEND", BackendPostgres)),
		},
		Postgres: PostgresConfig{
			DSN:            GetEnv("DB_DSN", DefaultPostgresDSN()),
			MigrateOnStart: GetEnvBool("DB_MIGRATE_ON_START", true),
		},
		MongoDB: MongoDBConfig{
			URI:      GetEnv("MONGODB_URI", "mongodb://localhost:27017"),
			Database: GetEnv("MONGODB_DATABASE", "linkkey"),
		},
		Redis: RedisConfig{
			Addr:     GetEnv("REDIS_ADDR", "localhost:6379"),
			Password: GetEnv("REDIS_PASSWORD", ""),
			DB:       GetEnvInt("REDIS_DB", 0),
		},
		Shortener: ShortenerConfig{
			BaseURL:        GetEnv("SHORTENER_BASE_URL", "http://localhost:8080"),
			ServiceDomain:  GetEnv("SERVICE_DOMAIN", "localhost"),
			KeyLength:      GetEnvInt("KEY_LENGTH", 6),
			KeyAlphabet:    GetEnv("KEY_ALPHABET", ""),
			MaxTags:        GetEnvInt("MAX_TAGS_PER_LINK", 8),
			RedirectStatus: GetEnvInt("REDIRECT_STATUS", 301),
			CacheMaxAge:    GetEnvDuration("REDIRECT_CACHE_MAX_AGE", 60*time.Second),
		},
		Analytics: AnalyticsConfig{
			Mode:         strings.ToLower(GetEnv("ANALYTICS_MODE", AnalyticsDirect)),
			ClickTimeout: GetEnvDuration("ANALYTICS_CLICK_TIMEOUT", 2*time.Second),
		},
		GeoIP: GeoIPConfig{
			Enabled:  GetEnvBool("GEOIP_ENABLED", false),
			Endpoint: GetEnv("GEOIP_ENDPOINT", ""),
			Timeout:  GetEnvDuration("GEOIP_TIMEOUT", 1500*time.Millisecond),
		},
		Auth: AuthConfig{
			JWTSecret: GetEnv("AUTH_JWT_SECRET", ""),
		},
		Security: SecurityConfig{
			CreateRatePerMinute: GetEnvInt("CREATE_RATE_PER_MINUTE", 60),
		},
		OTel: OTelConfig{
			Enabled:  GetEnvBool("OTEL_ENABLED", false),
			Endpoint: GetEnv("OTEL_EXPORTER_OTLP_ENDPOINT", "http://localhost:4318"),
		},
	}

	if cfg.Storage.Backend != BackendPostgres && cfg.Storage.Backend != BackendMongo {
		return nil, fmt.Errorf("STORAGE_BACKEND must be %q or %q (got %q)", BackendPostgres, BackendMongo, cfg.Storage.Backend)
	}
	if cfg.Analytics.Mode != AnalyticsDirect && cfg.Analytics.Mode != AnalyticsOutbox {
		return nil, fmt.Errorf("ANALYTICS_MODE must be %q or %q (got %q)", AnalyticsDirect, AnalyticsOutbox, cfg.Analytics.Mode)
	}
	if cfg.Analytics.Mode == AnalyticsOutbox && cfg.Storage.Backend != BackendPostgres {
		return nil, fmt.Errorf("ANALYTICS_MODE=outbox requires the postgres backend")
	}
	if cfg.Shortener.RedirectStatus != 301 && cfg.Shortener.RedirectStatus != 302 {
		return nil, fmt.Errorf("REDIRECT_STATUS must be 301 or 302 (got %d)", cfg.Shortener.RedirectStatus)
	}
	if cfg.Shortener.KeyLength < 4 || cfg.Shortener.KeyLength > 32 {
		return nil, fmt.Errorf("KEY_LENGTH must be between 4 and 32 (got %d)", cfg.Shortener.KeyLength)
	}
	if cfg.Shortener.MaxTags <= 0 {
		return nil, fmt.Errorf("MAX_TAGS_PER_LINK must be > 0 (got %d)", cfg.Shortener.MaxTags)
	}
	if cfg.GeoIP.Enabled && strings.TrimSpace(cfg.GeoIP.Endpoint) == "" {
		return nil, fmt.Errorf("GEOIP_ENDPOINT must be set when GEOIP_ENABLED is true")
	}

	return cfg, nil
}
