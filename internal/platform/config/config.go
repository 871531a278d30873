package config

import (
	"errors"
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/joho/godotenv"
)

type HTTPConfig struct {
	Addr           string
	AllowedOrigins string
	RateLimitRPS   float64
	RateLimitBurst int
}

type StoreConfig struct {
	DatabaseURL string
	Timeout     time.Duration
	MaxRetries  int
}

type AppConfig struct {
	ServiceName string
	LogLevel    string
	Env         string
	JWTSecret   string
	GRPCAddr    string
	RedisURL    string
	NATSURL     string
	CacheTTL    time.Duration
	HTTP        HTTPConfig
	Store       StoreConfig
}

// IsProduction reports whether APP_ENV selects production mode.
func (c AppConfig) IsProduction() bool {
	return strings.EqualFold(c.Env, "production")
}

// Load reads configuration from the environment. A .env file in the working
// directory is applied first when present; real env vars take precedence.
func Load() (AppConfig, error) {
	_ = godotenv.Load()

	cfg := AppConfig{
		ServiceName: env("SERVICE_NAME"),
		LogLevel:    env("LOG_LEVEL"),
		Env:         env("APP_ENV"),
		JWTSecret:   env("JWT_SECRET"),
		GRPCAddr:    env("GRPC_ADDR"),
		RedisURL:    env("REDIS_URL"),
		NATSURL:     env("NATS_URL"),
		CacheTTL:    envDuration("CACHE_TTL", 30*time.Second),
		HTTP: HTTPConfig{
			Addr:           env("HTTP_ADDR"),
			AllowedOrigins: env("CORS_ALLOWED_ORIGINS"),
			RateLimitRPS:   envFloat("RATE_LIMIT_RPS", 5),
			RateLimitBurst: envInt("RATE_LIMIT_BURST", 20),
		},
		Store: StoreConfig{
			DatabaseURL: env("DATABASE_URL"),
			Timeout:     envDuration("STORE_TIMEOUT", 5*time.Second),
			MaxRetries:  envInt("STORE_MAX_RETRIES", 3),
		},
	}
	if cfg.ServiceName == "" {
		return AppConfig{}, errors.New("SERVICE_NAME is required")
	}
	if cfg.HTTP.Addr == "" {
		cfg.HTTP.Addr = ":8080"
	}
	if cfg.GRPCAddr == "" {
		cfg.GRPCAddr = ":9090"
	}
	if cfg.LogLevel == "" {
		cfg.LogLevel = "info"
	}
	if cfg.IsProduction() && cfg.JWTSecret == "" {
		return AppConfig{}, errors.New("JWT_SECRET is required in production")
	}
	return cfg, nil
}

func env(key string) string {
	return strings.TrimSpace(os.Getenv(key))
}

func envInt(key string, fallback int) int {
	v := env(key)
	if v == "" {
		return fallback
	}
	n, err := strconv.Atoi(v)
	if err != nil || n < 0 {
		return fallback
	}
	return n
}

func envFloat(key string, fallback float64) float64 {
	v := env(key)
	if v == "" {
		return fallback
	}
	f, err := strconv.ParseFloat(v, 64)
	if err != nil || f <= 0 {
		return fallback
	}
	return f
}

func envDuration(key string, fallback time.Duration) time.Duration {
	v := env(key)
	if v == "" {
		return fallback
	}
	d, err := time.ParseDuration(v)
	if err != nil || d <= 0 {
		return fallback
	}
	return d
}
