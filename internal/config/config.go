package config

import (
	"errors"
	"fmt"
	"os"
	"strconv"
	"strings"
	"time"
)

// Cache backend selectors.
const (
	CacheBackendPostgres = "postgres"
	CacheBackendRedis    = "redis"
)

// Config holds all service settings, populated from environment variables.
type Config struct {
	HTTPAddr        string
	LogLevel        string
	LogFormat       string
	ShutdownTimeout time.Duration

	DatabaseURL string

	KafkaBrokers       []string
	KafkaApprovalTopic string
	KafkaEventTopic    string
	KafkaGroupID       string

	OverpassURL     string
	OverpassTimeout time.Duration

	CacheBackend string
	CacheTTL     time.Duration
	RadiusMeters int

	RedisAddr     string
	RedisPassword string
	RedisDB       int
}

// Load reads configuration from environment variables, applying defaults
// where unset.
func Load() (*Config, error) {
	shutdownTimeout, err := parseDuration("SHUTDOWN_TIMEOUT", "10s")
	if err != nil {
		return nil, err
	}
	overpassTimeout, err := parseDuration("OVERPASS_TIMEOUT", "25s")
	if err != nil {
		return nil, err
	}
	cacheTTL, err := parseDuration("CACHE_TTL", "1h")
	if err != nil {
		return nil, err
	}

	radius, err := parseInt("RESOURCE_RADIUS_METERS", 10000)
	if err != nil {
		return nil, err
	}
	redisDB, err := parseInt("REDIS_DB", 0)
	if err != nil {
		return nil, err
	}

	cfg := &Config{
		HTTPAddr:        envOrDefault("HTTP_ADDR", ":8080"),
		LogLevel:        envOrDefault("LOG_LEVEL", "info"),
		LogFormat:       envOrDefault("LOG_FORMAT", "json"),
		ShutdownTimeout: shutdownTimeout,

		DatabaseURL: databaseURL(),

		KafkaBrokers:       parseBrokers(envOrDefault("KAFKA_BROKERS", "localhost:9092")),
		KafkaApprovalTopic: envOrDefault("KAFKA_APPROVAL_TOPIC", "disaster-approvals"),
		KafkaEventTopic:    envOrDefault("KAFKA_EVENT_TOPIC", "resource-events"),
		KafkaGroupID:       envOrDefault("KAFKA_GROUP_ID", "disaster-resource-service"),

		OverpassURL:     envOrDefault("OVERPASS_URL", "https://overpass-api.de/api/interpreter"),
		OverpassTimeout: overpassTimeout,

		CacheBackend: strings.ToLower(envOrDefault("CACHE_BACKEND", CacheBackendPostgres)),
		CacheTTL:     cacheTTL,
		RadiusMeters: radius,

		RedisAddr:     envOrDefault("REDIS_ADDR", "localhost:6379"),
		RedisPassword: os.Getenv("REDIS_PASSWORD"),
		RedisDB:       redisDB,
	}

	if cfg.DatabaseURL == "" {
		return nil, errors.New("DATABASE_URL is required")
	}
	if len(cfg.KafkaBrokers) == 0 {
		return nil, errors.New("KAFKA_BROKERS is required")
	}
	if cfg.KafkaApprovalTopic == "" {
		return nil, errors.New("KAFKA_APPROVAL_TOPIC is required")
	}
	if cfg.KafkaEventTopic == "" {
		return nil, errors.New("KAFKA_EVENT_TOPIC is required")
	}
	if cfg.CacheBackend != CacheBackendPostgres && cfg.CacheBackend != CacheBackendRedis {
		return nil, fmt.Errorf("invalid CACHE_BACKEND %q", cfg.CacheBackend)
	}
	if cfg.RadiusMeters <= 0 {
		return nil, errors.New("RESOURCE_RADIUS_METERS must be positive")
	}

	return cfg, nil
}

func envOrDefault(key, fallback string) string {
	if v := os.Getenv(key); v != "" {
		return v
	}
	return fallback
}

func parseBrokers(s string) []string {
	parts := strings.Split(s, ",")
	out := make([]string, 0, len(parts))
	for _, p := range parts {
		if p = strings.TrimSpace(p); p != "" {
			out = append(out, p)
		}
	}
	return out
}

func parseDuration(key, fallback string) (time.Duration, error) {
	d, err := time.ParseDuration(envOrDefault(key, fallback))
	if err != nil || d <= 0 {
		return 0, fmt.Errorf("invalid %s", key)
	}
	return d, nil
}

func parseInt(key string, fallback int) (int, error) {
	s := os.Getenv(key)
	if s == "" {
		return fallback, nil
	}
	n, err := strconv.Atoi(s)
	if err != nil {
		return 0, fmt.Errorf("invalid %s", key)
	}
	return n, nil
}

// databaseURL returns DATABASE_URL or builds a DSN from the individual
// POSTGRES_* variables the deployment manifests use.
func databaseURL() string {
	if url := os.Getenv("DATABASE_URL"); url != "" {
		return url
	}
	host := os.Getenv("POSTGRES_HOST")
	if host == "" {
		return ""
	}
	port := envOrDefault("POSTGRES_PORT", "5432")
	user := envOrDefault("POSTGRES_USER", "postgres")
	password := os.Getenv("POSTGRES_PASSWORD")
	dbname := envOrDefault("POSTGRES_DB", "disaster_resources")
	sslmode := envOrDefault("POSTGRES_SSLMODE", "disable")

	return fmt.Sprintf("postgres://%s:%s@%s:%s/%s?sslmode=%s",
		user, password, host, port, dbname, sslmode)
}
