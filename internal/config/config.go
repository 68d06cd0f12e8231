package config

import (
	"fmt"
	"os"
	"strconv"
	"strings"
	"time"
)

// EnvironmentProduction は本番環境を表すENVIRONMENTの値。
const EnvironmentProduction = "production"

// Config はアプリケーション全体の設定を保持する。
// 環境変数から起動時に1回読み込み、イミュータブルとして扱う。
type Config struct {
	// Database
	DatabaseURL string

	// Moderator auth
	ModeratorJWTSecret string
	ModeratorJWTIssuer string

	// Server
	ServerPort  string
	Environment string

	// CORS
	CORSAllowedOrigins []string

	// Rate Limit
	RedisURL            string
	RateLimitWindow     time.Duration
	RateLimitSubmit     int
	RateLimitModerator  int
	RateLimitPublicRead int
	BurstRatePerSecond  float64
	BurstSize           int

	// Backend
	BackendTimeout time.Duration

	// Client identity
	IPHashSecret      string
	TrustProxyHeaders bool

	// Listing cache
	PublicCacheTTL time.Duration

	// Retention
	IPHashRetentionDays int
	RetentionInterval   time.Duration

	// Error tracking
	SentryDSN string
}

// IsProduction は本番環境かどうかを返す。
func (c *Config) IsProduction() bool {
	return c.Environment == EnvironmentProduction
}

// Load は環境変数からConfigを読み込む。
// 必須環境変数が未設定の場合はエラーを返す。
func Load() (*Config, error) {
	cfg := &Config{}

	// Required fields
	var missing []string

	cfg.DatabaseURL = os.Getenv("DATABASE_URL")
	if cfg.DatabaseURL == "" {
		missing = append(missing, "DATABASE_URL")
	}

	cfg.ModeratorJWTSecret = os.Getenv("MODERATOR_JWT_SECRET")
	if cfg.ModeratorJWTSecret == "" {
		missing = append(missing, "MODERATOR_JWT_SECRET")
	}

	if len(missing) > 0 {
		return nil, fmt.Errorf("required environment variables are not set: %v", missing)
	}

	// Optional fields with defaults
	cfg.ModeratorJWTIssuer = getEnvString("MODERATOR_JWT_ISSUER", "")
	cfg.ServerPort = getEnvString("SERVER_PORT", "8080")
	cfg.Environment = getEnvString("ENVIRONMENT", "development")
	cfg.CORSAllowedOrigins = getEnvList("CORS_ALLOWED_ORIGINS", []string{"http://localhost:3000", "http://localhost:5173"})
	cfg.RedisURL = getEnvString("REDIS_URL", "")
	cfg.RateLimitWindow = getEnvDuration("RATE_LIMIT_WINDOW", time.Hour)
	cfg.RateLimitSubmit = getEnvInt("RATE_LIMIT_SUBMIT", 5)
	cfg.RateLimitModerator = getEnvInt("RATE_LIMIT_MODERATOR", 100)
	cfg.RateLimitPublicRead = getEnvInt("RATE_LIMIT_PUBLIC_READ", 1000)
	cfg.BurstRatePerSecond = getEnvFloat("BURST_RATE_PER_SECOND", 10)
	cfg.BurstSize = getEnvInt("BURST_SIZE", 20)
	cfg.BackendTimeout = getEnvDuration("BACKEND_TIMEOUT", 5*time.Second)
	cfg.IPHashSecret = getEnvString("IP_HASH_SECRET", "")
	cfg.TrustProxyHeaders = getEnvBool("TRUST_PROXY_HEADERS", false)
	cfg.PublicCacheTTL = getEnvDuration("PUBLIC_CACHE_TTL", 60*time.Second)
	cfg.IPHashRetentionDays = getEnvInt("IP_HASH_RETENTION_DAYS", 90)
	cfg.RetentionInterval = getEnvDuration("RETENTION_INTERVAL", 24*time.Hour)
	cfg.SentryDSN = getEnvString("SENTRY_DSN", "")

	return cfg, nil
}

func getEnvString(key, defaultVal string) string {
	if v := os.Getenv(key); v != "" {
		return v
	}
	return defaultVal
}

func getEnvInt(key string, defaultVal int) int {
	v := os.Getenv(key)
	if v == "" {
		return defaultVal
	}
	i, err := strconv.Atoi(v)
	if err != nil {
		return defaultVal
	}
	return i
}

func getEnvFloat(key string, defaultVal float64) float64 {
	v := os.Getenv(key)
	if v == "" {
		return defaultVal
	}
	f, err := strconv.ParseFloat(v, 64)
	if err != nil {
		return defaultVal
	}
	return f
}

func getEnvBool(key string, defaultVal bool) bool {
	v := os.Getenv(key)
	if v == "" {
		return defaultVal
	}
	b, err := strconv.ParseBool(v)
	if err != nil {
		return defaultVal
	}
	return b
}

func getEnvDuration(key string, defaultVal time.Duration) time.Duration {
	v := os.Getenv(key)
	if v == "" {
		return defaultVal
	}
	d, err := time.ParseDuration(v)
	if err != nil {
		return defaultVal
	}
	return d
}

// getEnvList はカンマ区切りの値を分割する。空要素は捨てる。
func getEnvList(key string, defaultVal []string) []string {
	v := os.Getenv(key)
	if v == "" {
		return defaultVal
	}
	var out []string
	for _, part := range strings.Split(v, ",") {
		if part = strings.TrimSpace(part); part != "" {
			out = append(out, part)
		}
	}
	if len(out) == 0 {
		return defaultVal
	}
	return out
}
