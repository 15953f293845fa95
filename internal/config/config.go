package config

import (
	"os"
	"strconv"
	"time"
)

// Config holds application level configuration loaded from environment variables.
type Config struct {
	ServerPort  string
	MySQLDSN    string
	RedisAddr   string
	RedisDB     int
	RedisPass   string
	JWTSecret   string
	SwaggerHost string

	GatewayBaseURL string
	GatewayAPIKey  string
	GatewayTimeout time.Duration

	// Webhook abuse protection (fixed window per caller).
	WebhookRateLimit  int
	WebhookRateWindow time.Duration

	// Pending payments older than PendingExpiry are swept to cancelled.
	PendingExpiry time.Duration
	SweepInterval time.Duration
}

// Load builds Config from environment with sensible defaults.
func Load() *Config {
	return &Config{
		ServerPort:  getEnv("SERVER_PORT", "8080"),
		MySQLDSN:    getEnv("MYSQL_DSN", "user:password@tcp(localhost:3306)/app?charset=utf8mb4&parseTime=True&loc=Local"),
		RedisAddr:   getEnv("REDIS_ADDR", "localhost:6379"),
		RedisDB:     getEnvInt("REDIS_DB", 0),
		RedisPass:   os.Getenv("REDIS_PASSWORD"),
		JWTSecret:   getEnv("JWT_SECRET", "change-me"),
		SwaggerHost: os.Getenv("SWAGGER_HOST"),

		GatewayBaseURL: getEnv("GATEWAY_BASE_URL", "https://api.gateway.example"),
		GatewayAPIKey:  os.Getenv("GATEWAY_API_KEY"),
		GatewayTimeout: getEnvDuration("GATEWAY_TIMEOUT", 15*time.Second),

		WebhookRateLimit:  getEnvInt("WEBHOOK_RATE_LIMIT", 60),
		WebhookRateWindow: getEnvDuration("WEBHOOK_RATE_WINDOW", time.Minute),

		PendingExpiry: getEnvDuration("PENDING_EXPIRY", 6*time.Hour),
		SweepInterval: getEnvDuration("SWEEP_INTERVAL", 10*time.Minute),
	}
}

func getEnv(key, def string) string {
	if v := os.Getenv(key); v != "" {
		return v
	}
	return def
}

func getEnvInt(key string, def int) int {
	if v := os.Getenv(key); v != "" {
		if parsed, err := strconv.Atoi(v); err == nil {
			return parsed
		}
	}
	return def
}

func getEnvDuration(key string, def time.Duration) time.Duration {
	if v := os.Getenv(key); v != "" {
		if parsed, err := time.ParseDuration(v); err == nil {
			return parsed
		}
	}
	return def
}
