// Package config loads process configuration from environment variables
// with flag overrides. There is no package-level config instance; every
// process constructs its own and passes it down explicitly.
package config

import (
	"flag"
	"fmt"
	"os"
	"strconv"
	"time"
)

// Error is returned when a required or malformed configuration value is
// encountered. Callers should treat it as fatal and exit 1.
type Error struct {
	Field string
	Err   error
}

func (e *Error) Error() string {
	return fmt.Sprintf("config: %s: %v", e.Field, e.Err)
}

func (e *Error) Unwrap() error { return e.Err }

// Config holds every setting shared by the serve and worker processes.
type Config struct {
	ListenAddr      string
	LogLevel        string
	JWTSecret       string
	DatabaseURL     string
	NATSURL         string
	RedisAddr       string
	RedisPassword   string
	RedisDB         int
	JudgeWorkers    int
	SessionTimeout  time.Duration
	EtcdEndpoints   []string
	InfluxURL       string
	InfluxToken     string
	InfluxOrg       string
	InfluxBucket    string
	SandboxRoot     string
	FrontendOrigin  string
}

// defaults mirror the teacher's getEnv fallback-on-empty pattern but are
// centralized here instead of scattered per process.
func defaults() Config {
	return Config{
		ListenAddr:     ":8080",
		LogLevel:       "info",
		JWTSecret:      "dev-secret-change-me",
		DatabaseURL:    "postgres://localhost:5432/judgeboard?sslmode=disable",
		NATSURL:        "nats://localhost:4222",
		RedisAddr:      "localhost:6379",
		RedisDB:        0,
		JudgeWorkers:   4,
		SessionTimeout: 5 * time.Minute,
		InfluxURL:      "http://localhost:8086",
		InfluxOrg:      "judgeboard",
		InfluxBucket:   "judging",
		SandboxRoot:    "/tmp/judgeboard-sandbox",
		FrontendOrigin: "*",
	}
}

func getEnv(key, fallback string) string {
	if v := os.Getenv(key); v != "" {
		return v
	}
	return fallback
}

func getEnvInt(key string, fallback int) (int, error) {
	v := os.Getenv(key)
	if v == "" {
		return fallback, nil
	}
	n, err := strconv.Atoi(v)
	if err != nil {
		return 0, err
	}
	return n, nil
}

// Load builds a Config from the environment, then registers flags on fs,
// parses args with it, and lets the parsed flags override individual
// fields. A nil fs skips flag handling.
func Load(fs *flag.FlagSet, args []string) (Config, error) {
	cfg := defaults()

	cfg.ListenAddr = getEnv("LISTEN_ADDR", cfg.ListenAddr)
	cfg.LogLevel = getEnv("LOG_LEVEL", cfg.LogLevel)
	cfg.JWTSecret = getEnv("JWT_SECRET", cfg.JWTSecret)
	cfg.DatabaseURL = getEnv("DATABASE_URL", cfg.DatabaseURL)
	cfg.NATSURL = getEnv("NATS_URL", cfg.NATSURL)
	cfg.RedisAddr = getEnv("REDIS_ADDR", cfg.RedisAddr)
	if host, port := os.Getenv("REDIS_HOST"), os.Getenv("REDIS_PORT"); host != "" || port != "" {
		if host == "" {
			host = "localhost"
		}
		if port == "" {
			port = "6379"
		}
		cfg.RedisAddr = host + ":" + port
	}
	cfg.RedisPassword = getEnv("REDIS_PASSWORD", cfg.RedisPassword)
	cfg.InfluxURL = getEnv("INFLUX_URL", cfg.InfluxURL)
	cfg.InfluxToken = getEnv("INFLUX_TOKEN", cfg.InfluxToken)
	cfg.InfluxOrg = getEnv("INFLUX_ORG", cfg.InfluxOrg)
	cfg.InfluxBucket = getEnv("INFLUX_BUCKET", cfg.InfluxBucket)
	cfg.SandboxRoot = getEnv("SANDBOX_ROOT", cfg.SandboxRoot)
	cfg.FrontendOrigin = getEnv("FRONTEND_URL", cfg.FrontendOrigin)

	workers, err := getEnvInt("JUDGE_WORKERS", cfg.JudgeWorkers)
	if err != nil {
		return Config{}, &Error{Field: "JUDGE_WORKERS", Err: err}
	}
	cfg.JudgeWorkers = workers

	redisDB, err := getEnvInt("REDIS_DB", cfg.RedisDB)
	if err != nil {
		return Config{}, &Error{Field: "REDIS_DB", Err: err}
	}
	cfg.RedisDB = redisDB

	if v := os.Getenv("SESSION_TIMEOUT_MINUTES"); v != "" {
		minutes, err := strconv.Atoi(v)
		if err != nil {
			return Config{}, &Error{Field: "SESSION_TIMEOUT_MINUTES", Err: err}
		}
		cfg.SessionTimeout = time.Duration(minutes) * time.Minute
	}

	if v := os.Getenv("ETCD_ENDPOINTS"); v != "" {
		cfg.EtcdEndpoints = splitNonEmpty(v, ',')
	}

	if fs != nil {
		listen := fs.String("listen", cfg.ListenAddr, "HTTP listen address")
		logLevel := fs.String("log-level", cfg.LogLevel, "log level (debug, info, warn, error)")
		workersFlag := fs.Int("workers", cfg.JudgeWorkers, "number of judge workers")
		redisURL := fs.String("redis-url", cfg.RedisAddr, "redis address (host:port)")
		dbURL := fs.String("db-url", cfg.DatabaseURL, "postgres connection string")

		if err := fs.Parse(args); err != nil {
			return Config{}, &Error{Field: "flags", Err: err}
		}

		cfg.ListenAddr = *listen
		cfg.LogLevel = *logLevel
		cfg.JudgeWorkers = *workersFlag
		cfg.RedisAddr = *redisURL
		cfg.DatabaseURL = *dbURL
	}

	if cfg.JudgeWorkers <= 0 {
		return Config{}, &Error{Field: "JUDGE_WORKERS", Err: fmt.Errorf("must be positive, got %d", cfg.JudgeWorkers)}
	}

	return cfg, nil
}

func splitNonEmpty(s string, sep byte) []string {
	var out []string
	start := 0
	for i := 0; i < len(s); i++ {
		if s[i] == sep {
			if i > start {
				out = append(out, s[start:i])
			}
			start = i + 1
		}
	}
	if start < len(s) {
		out = append(out, s[start:])
	}
	return out
}
