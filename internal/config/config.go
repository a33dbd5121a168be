package config

import (
	"errors"
	"fmt"
	"os"
	"strconv"
	"strings"
	"time"

	"taskify/internal/logger"

	"github.com/joho/godotenv"
)

const (
	StorageMemory   = "memory"
	StoragePostgres = "postgres"
)

type Config struct {
	AppPort       string
	StorageDriver string
	DatabaseURL   string
	DBMaxConns    int32
	JWTSecret     string
	JWTTTL        time.Duration

	RedisAddr     string
	RedisPassword string
	RedisDB       int

	// Rate limits: all API requests per IP, writes per user
	APIRateLimit    int
	APIRateWindow   time.Duration
	WriteRateLimit  int
	WriteRateWindow time.Duration

	LogLevel    string
	LogJSON     bool
	CORSOrigins []string
	GinMode     string
}

// Load reads the environment (and .env when present), exiting on invalid configuration.
func Load() *Config {
	_ = godotenv.Load()

	cfg, err := FromEnv()
	if err != nil {
		logger.Fatal("invalid configuration", "error", err)
	}
	return cfg
}

// FromEnv builds a Config from the process environment.
func FromEnv() (*Config, error) {
	var errs []error

	intVar := func(name string, def int) int {
		v := os.Getenv(name)
		if v == "" {
			return def
		}
		n, err := strconv.Atoi(v)
		if err != nil || n < 0 {
			errs = append(errs, fmt.Errorf("%s must be a non-negative integer, got %q", name, v))
			return def
		}
		return n
	}

	cfg := &Config{
		AppPort:         envOr("APP_PORT", "8080"),
		StorageDriver:   strings.ToLower(envOr("STORAGE_DRIVER", StoragePostgres)),
		DatabaseURL:     os.Getenv("DATABASE_URL"),
		DBMaxConns:      int32(intVar("DB_MAX_CONNS", 0)),
		JWTSecret:       os.Getenv("JWT_SECRET"),
		JWTTTL:          time.Duration(intVar("JWT_TTL_HOURS", 24)) * time.Hour,
		RedisAddr:       os.Getenv("REDIS_ADDR"),
		RedisPassword:   os.Getenv("REDIS_PASSWORD"),
		RedisDB:         intVar("REDIS_DB", 0),
		APIRateLimit:    intVar("API_RATE_LIMIT", 120),
		APIRateWindow:   time.Duration(intVar("API_RATE_WINDOW_SECONDS", 60)) * time.Second,
		WriteRateLimit:  intVar("WRITE_RATE_LIMIT", 60),
		WriteRateWindow: time.Duration(intVar("WRITE_RATE_WINDOW_SECONDS", 60)) * time.Second,
		LogLevel:        envOr("LOG_LEVEL", "info"),
		LogJSON:         os.Getenv("LOG_JSON") == "true",
		GinMode:         os.Getenv("GIN_MODE"),
	}

	// список через запятую
	for _, origin := range strings.Split(os.Getenv("CORS_ORIGINS"), ",") {
		if origin = strings.TrimSpace(origin); origin != "" {
			cfg.CORSOrigins = append(cfg.CORSOrigins, origin)
		}
	}

	switch cfg.StorageDriver {
	case StoragePostgres:
		if cfg.DatabaseURL == "" {
			errs = append(errs, errors.New("DATABASE_URL is not set"))
		}
	case StorageMemory:
	default:
		errs = append(errs, fmt.Errorf("STORAGE_DRIVER must be %q or %q, got %q", StoragePostgres, StorageMemory, cfg.StorageDriver))
	}
	if cfg.JWTSecret == "" {
		errs = append(errs, errors.New("JWT_SECRET is not set"))
	}
	if cfg.JWTTTL == 0 {
		errs = append(errs, errors.New("JWT_TTL_HOURS must be positive"))
	}

	if len(errs) > 0 {
		return nil, errors.Join(errs...)
	}
	return cfg, nil
}

func envOr(name, def string) string {
	if v := os.Getenv(name); v != "" {
		return v
	}
	return def
}
