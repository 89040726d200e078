package config

import (
	"fmt"
	"log/slog"
	"os"
	"strconv"
	"strings"
	"time"
)

// Store backends.
const (
	StoreMemory   = "memory"
	StorePostgres = "postgres"
	StoreRedis    = "redis"
)

// DevSigningKey signs tokens when DAB_DEV_MODE=true and no key is set. It is
// public, so dev mode must never face untrusted callers.
const DevSigningKey = "dev-secret-key-change-in-production"

// MinSigningKeyLength is the shortest accepted JWT_SIGNING_KEY in bytes.
const MinSigningKeyLength = 32

// Config captures process configuration read from the environment.
type Config struct {
	Server   Server
	Store    string
	Database DatabaseConfig
	Redis    RedisConfig
	Auth     AuthConfig
	Audit    AuditConfig
	LogLevel slog.Level

	// Controller is the identity allowed to mutate the named registry. It may
	// be empty when a snapshot supplies it.
	Controller   string
	SnapshotPath string
}

// Server captures HTTP server level configuration.
type Server struct {
	Addr            string
	ShutdownTimeout time.Duration
}

type DatabaseConfig struct {
	URL    string
	Driver string
}

type RedisConfig struct {
	URL          string
	PoolSize     int
	MinIdleConns int
	DialTimeout  time.Duration
	ReadTimeout  time.Duration
	WriteTimeout time.Duration
}

type AuthConfig struct {
	// JWTSigningKey is empty when bearer tokens are disabled (trusted header only).
	JWTSigningKey string
	JWTIssuer     string
	// DevMode allows the public DevSigningKey.
	DevMode bool
	// TrustCallerHeader accepts X-Caller as the caller identity. Only for
	// development or behind a proxy that sets it.
	TrustCallerHeader bool
}

type AuditConfig struct {
	KafkaBrokers []string
	KafkaTopic   string
	BufferSize   int
}

// FromEnv builds a Config from environment variables so main stays lean.
func FromEnv() (Config, error) {
	var errs []string
	parseErr := func(key string, err error) {
		errs = append(errs, fmt.Sprintf("%s: %v", key, err))
	}

	cfg := Config{
		Server: Server{
			Addr:            getEnv("DAB_ADDR", ":8080"),
			ShutdownTimeout: getDuration("DAB_SHUTDOWN_TIMEOUT", 10*time.Second, parseErr),
		},
		Store: strings.ToLower(getEnv("DAB_STORE", StoreMemory)),
		Database: DatabaseConfig{
			URL:    os.Getenv("DATABASE_URL"),
			Driver: getEnv("DATABASE_DRIVER", "pgx"),
		},
		Redis: RedisConfig{
			URL:          os.Getenv("REDIS_URL"),
			PoolSize:     getInt("REDIS_POOL_SIZE", 10, parseErr),
			MinIdleConns: getInt("REDIS_MIN_IDLE_CONNS", 2, parseErr),
			DialTimeout:  getDuration("REDIS_DIAL_TIMEOUT", 5*time.Second, parseErr),
			ReadTimeout:  getDuration("REDIS_READ_TIMEOUT", 3*time.Second, parseErr),
			WriteTimeout: getDuration("REDIS_WRITE_TIMEOUT", 3*time.Second, parseErr),
		},
		Auth: AuthConfig{
			JWTSigningKey:     os.Getenv("JWT_SIGNING_KEY"),
			JWTIssuer:         getEnv("JWT_ISSUER", "dab"),
			DevMode:           os.Getenv("DAB_DEV_MODE") == "true",
			TrustCallerHeader: os.Getenv("DAB_CALLER_HEADER_TRUSTED") == "true",
		},
		Audit: AuditConfig{
			KafkaBrokers: splitList(os.Getenv("KAFKA_BROKERS")),
			KafkaTopic:   getEnv("KAFKA_AUDIT_TOPIC", "dab.audit"),
			BufferSize:   getInt("DAB_AUDIT_BUFFER", 1024, parseErr),
		},
		Controller:   strings.TrimSpace(os.Getenv("DAB_CONTROLLER")),
		SnapshotPath: os.Getenv("DAB_SNAPSHOT_PATH"),
	}

	if err := cfg.LogLevel.UnmarshalText([]byte(getEnv("DAB_LOG_LEVEL", "info"))); err != nil {
		parseErr("DAB_LOG_LEVEL", err)
	}

	switch {
	case cfg.Auth.JWTSigningKey != "":
		if len(cfg.Auth.JWTSigningKey) < MinSigningKeyLength && !cfg.Auth.DevMode {
			errs = append(errs, fmt.Sprintf("JWT_SIGNING_KEY must be at least %d bytes", MinSigningKeyLength))
		}
	case cfg.Auth.DevMode:
		cfg.Auth.JWTSigningKey = DevSigningKey
	case !cfg.Auth.TrustCallerHeader:
		errs = append(errs, "JWT_SIGNING_KEY is required unless DAB_DEV_MODE or DAB_CALLER_HEADER_TRUSTED is set")
	}

	switch cfg.Store {
	case StoreMemory:
	case StorePostgres:
		if cfg.Database.URL == "" {
			errs = append(errs, "DATABASE_URL is required when DAB_STORE=postgres")
		}
		if cfg.Database.Driver != "pgx" && cfg.Database.Driver != "postgres" {
			errs = append(errs, fmt.Sprintf("DATABASE_DRIVER: unsupported driver %q", cfg.Database.Driver))
		}
	case StoreRedis:
		if cfg.Redis.URL == "" {
			errs = append(errs, "REDIS_URL is required when DAB_STORE=redis")
		}
	default:
		errs = append(errs, fmt.Sprintf("DAB_STORE: unknown backend %q", cfg.Store))
	}

	if len(errs) > 0 {
		return cfg, fmt.Errorf("invalid configuration: %s", strings.Join(errs, "; "))
	}
	return cfg, nil
}

func getEnv(key, fallback string) string {
	if v := os.Getenv(key); v != "" {
		return v
	}
	return fallback
}

func getInt(key string, fallback int, onErr func(string, error)) int {
	v := os.Getenv(key)
	if v == "" {
		return fallback
	}
	n, err := strconv.Atoi(v)
	if err != nil {
		onErr(key, err)
		return fallback
	}
	return n
}

func getDuration(key string, fallback time.Duration, onErr func(string, error)) time.Duration {
	v := os.Getenv(key)
	if v == "" {
		return fallback
	}
	d, err := time.ParseDuration(v)
	if err != nil {
		onErr(key, err)
		return fallback
	}
	return d
}

func splitList(v string) []string {
	var out []string
	for _, part := range strings.Split(v, ",") {
		if part = strings.TrimSpace(part); part != "" {
			out = append(out, part)
		}
	}
	return out
}
