package config

import (
	"fmt"
	"os"
	"strconv"
	"time"

	"github.com/joho/godotenv"
)

// Config holds all application configuration
type Config struct {
	Server        ServerConfig
	Database      DatabaseConfig
	Cache         CacheConfig
	Broker        BrokerConfig
	App           AppConfig
	Insight       InsightConfig
	Safety        SafetyConfig
	Admin         AdminConfig
	Observability ObservabilityConfig
}

// ServerConfig holds HTTP server configuration
type ServerConfig struct {
	Port              string
	CORSAllowedOrigin string
	RateLimitRequests int
	RateLimitWindow   time.Duration
	SlowRequestMillis int64
	WorkerMetricsPort string // analytics worker /metrics listener
}

// DatabaseConfig holds database connection configuration
type DatabaseConfig struct {
	Host           string
	Port           string
	User           string
	Password       string
	DBName         string
	SSLMode        string
	MigrationsPath string
}

// CacheConfig holds the Redis caching layer configuration
type CacheConfig struct {
	Host        string
	Port        string
	User        string
	Password    string
	TTL         time.Duration
	SnapshotTTL time.Duration
}

// BrokerConfig holds RabbitMQ configuration for the click pipeline
type BrokerConfig struct {
	Host      string
	Port      string
	User      string
	Password  string
	Queue     string
	Prefetch  int
	MaxLength int // 0 leaves the click queue unbounded
}

// AppConfig holds application-specific configuration
type AppConfig struct {
	BaseURL        string // Base URL for generating short links
	ShortIDLen     int
	ShortIDRetries int
	PublicListSize int
	StatsTimezone  string
	MaxTitleLen    int
}

// InsightConfig holds the insight generator configuration.
// An empty GeminiAPIKey disables the external generator.
type InsightConfig struct {
	GeminiAPIKey   string
	GeminiModel    string
	GeminiEndpoint string
	Timeout        time.Duration
	CacheFor       time.Duration
}

// SafetyConfig holds URL screening configuration.
// Each checker is skipped when its key is empty.
type SafetyConfig struct {
	SafeBrowsingAPIKey   string
	SafeBrowsingEndpoint string
	Timeout              time.Duration
}

// AdminConfig holds the admin dashboard token
type AdminConfig struct {
	Token string
}

// ObservabilityConfig holds logging and telemetry settings
type ObservabilityConfig struct {
	ServiceName  string
	Environment  string
	OTLPEndpoint string
}

// Load loads configuration from environment variables
func Load() *Config {
	_ = godotenv.Load()
	return &Config{
		Server: ServerConfig{
			Port:              getEnv("PORT", "8080"),
			CORSAllowedOrigin: getEnv("CORS_ALLOWED_ORIGIN", "*"),
			RateLimitRequests: getEnvInt("RATE_LIMIT_REQUESTS", 20),
			RateLimitWindow:   getEnvDuration("RATE_LIMIT_WINDOW", time.Minute),
			SlowRequestMillis: int64(getEnvInt("SLOW_REQUEST_MS", 500)),
			WorkerMetricsPort: getEnv("WORKER_METRICS_PORT", "9091"),
		},
		Database: DatabaseConfig{
			Host:           getEnv("DB_HOST", "localhost"),
			Port:           getEnv("DB_PORT", "5432"),
			User:           getEnv("DB_USER", "lessurl"),
			Password:       getEnv("DB_PASSWORD", "lessurl_secret"),
			DBName:         getEnv("DB_NAME", "lessurl"),
			SSLMode:        getEnv("DB_SSLMODE", "disable"),
			MigrationsPath: getEnv("DB_MIGRATIONS_PATH", "migrations/schema"),
		},
		Cache: CacheConfig{
			Host:        getEnv("RDB_HOST", "localhost"),
			Port:        getEnv("RDB_PORT", "6379"),
			User:        getEnv("RDB_USER", ""),
			Password:    getEnv("RDB_PASSWORD", ""),
			TTL:         getEnvDuration("CACHE_TTL", 10*time.Minute),
			SnapshotTTL: getEnvDuration("STATS_CACHE_TTL", 30*time.Second),
		},
		Broker: BrokerConfig{
			Host:      getEnv("AMQP_HOST", "localhost"),
			Port:      getEnv("AMQP_PORT", "5672"),
			User:      getEnv("AMQP_USER", "guest"),
			Password:  getEnv("AMQP_PASSWORD", "guest"),
			Queue:     getEnv("CLICK_QUEUE", "click_events"),
			Prefetch:  getEnvInt("CLICK_PREFETCH", 32),
			MaxLength: getEnvInt("CLICK_QUEUE_MAX_LENGTH", 0),
		},
		App: AppConfig{
			BaseURL:        getEnv("BASE_URL", "http://localhost:8080"),
			ShortIDLen:     getEnvInt("SHORT_ID_LENGTH", 8),
			ShortIDRetries: getEnvInt("SHORT_ID_MAX_RETRIES", 5),
			PublicListSize: getEnvInt("PUBLIC_LIST_SIZE", 10),
			StatsTimezone:  getEnv("STATS_TIMEZONE", "UTC"),
			MaxTitleLen:    200,
		},
		Insight: InsightConfig{
			GeminiAPIKey:   getEnv("GEMINI_API_KEY", ""),
			GeminiModel:    getEnv("GEMINI_MODEL", "gemini-2.5-flash"),
			GeminiEndpoint: getEnv("GEMINI_ENDPOINT", "https://generativelanguage.googleapis.com/v1beta"),
			Timeout:        getEnvDuration("INSIGHT_TIMEOUT", 3*time.Second),
			CacheFor:       getEnvDuration("INSIGHT_CACHE_FOR", 24*time.Hour),
		},
		Safety: SafetyConfig{
			SafeBrowsingAPIKey:   getEnv("SAFE_BROWSING_API_KEY", ""),
			SafeBrowsingEndpoint: getEnv("SAFE_BROWSING_ENDPOINT", "https://safebrowsing.googleapis.com/v4"),
			Timeout:              getEnvDuration("SAFETY_TIMEOUT", 3*time.Second),
		},
		Admin: AdminConfig{
			Token: getEnv("ADMIN_TOKEN", ""),
		},
		Observability: ObservabilityConfig{
			ServiceName:  getEnv("OTEL_SERVICE_NAME", "lessurl"),
			Environment:  getEnv("ENVIRONMENT", "development"),
			OTLPEndpoint: getEnv("OTEL_EXPORTER_OTLP_ENDPOINT", ""),
		},
	}
}

// ConnectionString returns the PostgreSQL connection string
func (d *DatabaseConfig) ConnectionString() string {
	return fmt.Sprintf("postgres://%s:%s@%s:%s/%s?sslmode=%s", d.User, d.Password, d.Host, d.Port, d.DBName, d.SSLMode)
}

// ConnectionString returns the Redis connection URL
func (c *CacheConfig) ConnectionString() string {
	return fmt.Sprintf("redis://%s:%s@%s:%s/0", c.User, c.Password, c.Host, c.Port)
}

// ConnectionString returns the AMQP connection URL
func (b *BrokerConfig) ConnectionString() string {
	return fmt.Sprintf("amqp://%s:%s@%s:%s/", b.User, b.Password, b.Host, b.Port)
}

// Location resolves the configured stats timezone, falling back to UTC
func (a *AppConfig) Location() *time.Location {
	loc, err := time.LoadLocation(a.StatsTimezone)
	if err != nil {
		return time.UTC
	}
	return loc
}

func getEnv(key, defaultVal string) string {
	if val, ok := os.LookupEnv(key); ok {
		return val
	}
	return defaultVal
}

func getEnvInt(key string, defaultVal int) int {
	if val := os.Getenv(key); val != "" {
		if i, err := strconv.Atoi(val); err == nil {
			return i
		}
	}
	return defaultVal
}

func getEnvDuration(key string, defaultVal time.Duration) time.Duration {
	if val := os.Getenv(key); val != "" {
		if d, err := time.ParseDuration(val); err == nil {
			return d
		}
	}
	return defaultVal
}
