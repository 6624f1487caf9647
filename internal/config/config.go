package config

import (
	"context"
	"errors"
	"os"
	"runtime"
	"strconv"
	"strings"
	"time"

	"github.com/joho/godotenv"
)

type Config struct {
	Env  string
	Port int

	DBURL string

	// Two independent signing secrets so a leaked refresh key cannot
	// mint access tokens (and vice versa).
	AccessSecret  string
	RefreshSecret string
	AccessTTL     time.Duration
	RefreshTTL    time.Duration

	CORSAllowedOrigins []string

	// Optional collaborators.
	RedisAddr    string
	OTLPEndpoint string

	// bcrypt backpressure: max concurrent hash/verify computations.
	HashConcurrency int

	// Credential-endpoint rate limiting (per client IP).
	LoginRateLimit  int
	LoginRateWindow time.Duration

	// Seeded operator account; skipped when email or password is empty.
	AdminEmail    string
	AdminPassword string
	AdminName     string
}

func Load() Config {
	// .env is a dev convenience; real deployments use the environment.
	_ = godotenv.Load()

	return Config{
		Env:   getEnv("APP_ENV", "dev"),
		Port:  getEnvInt("PORT", 8080),
		DBURL: buildDBURL(),

		AccessSecret:  getEnv("JWT_ACCESS_SECRET", ""),
		RefreshSecret: getEnv("JWT_REFRESH_SECRET", ""),
		AccessTTL:     time.Duration(getEnvInt("ACCESS_TTL_MINUTES", 15)) * time.Minute,
		RefreshTTL:    time.Duration(getEnvInt("REFRESH_TTL_DAYS", 7)) * 24 * time.Hour,

		CORSAllowedOrigins: splitCSV(getEnv("CORS_ALLOWED_ORIGINS", "")),

		RedisAddr:    getEnv("REDIS_ADDR", ""),
		OTLPEndpoint: getEnv("OTEL_EXPORTER_OTLP_ENDPOINT", ""),

		HashConcurrency: getEnvInt("HASH_CONCURRENCY", 2*runtime.NumCPU()),

		LoginRateLimit:  getEnvInt("LOGIN_RATE_LIMIT", 10),
		LoginRateWindow: time.Duration(getEnvInt("LOGIN_RATE_WINDOW_SECONDS", 60)) * time.Second,

		AdminEmail:    getEnv("ADMIN_EMAIL", ""),
		AdminPassword: getEnv("ADMIN_PASSWORD", ""),
		AdminName:     getEnv("ADMIN_NAME", "Operator"),
	}
}

// Validate catches misconfiguration that must never reach production:
// missing or shared signing secrets make token types interchangeable.
func (c Config) Validate() error {
	if c.AccessSecret == "" || c.RefreshSecret == "" {
		return errors.New("config: JWT_ACCESS_SECRET and JWT_REFRESH_SECRET are required")
	}

	if c.AccessSecret == c.RefreshSecret {
		return errors.New("config: access and refresh secrets must differ")
	}

	if c.AccessTTL <= 0 || c.RefreshTTL <= 0 {
		return errors.New("config: token lifetimes must be positive")
	}

	if c.HashConcurrency < 1 {
		return errors.New("config: HASH_CONCURRENCY must be at least 1")
	}

	return nil
}

func (c Config) IsProd() bool {
	return c.Env == "prod"
}

func buildDBURL() string {
	host := getEnv("DB_HOST", "127.0.0.1")
	port := getEnv("DB_PORT", "5432")
	user := getEnv("DB_USER", "authsvc")
	pass := getEnv("DB_PASSWORD", "authsvc")
	name := getEnv("DB_NAME", "authsvc")
	ssl := getEnv("DB_SSLMODE", "disable")

	return "postgres://" + user + ":" + pass + "@" + host + ":" + port + "/" + name + "?sslmode=" + ssl
}

func WithTimeout(duration time.Duration) (context.Context, context.CancelFunc) {
	return context.WithTimeout(context.Background(), duration)
}

func getEnv(key, fallback string) string {
	if v := os.Getenv(key); v != "" {
		return v
	}

	return fallback
}

func getEnvInt(key string, fallback int) int {
	if v := os.Getenv(key); v != "" {
		num, err := strconv.Atoi(v)

		if err != nil {
			return fallback
		}

		return num
	}
	return fallback
}

func splitCSV(v string) []string {
	if v == "" {
		return nil
	}

	parts := strings.Split(v, ",")
	out := make([]string, 0, len(parts))

	for _, p := range parts {
		p = strings.TrimSpace(p)
		if p != "" {
			out = append(out, p)
		}
	}

	return out
}
