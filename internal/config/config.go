// Package config loads the process-wide, immutable-after-start settings
// that the sync core and its HTTP/gRPC transports run under.
package config

import (
	"fmt"
	"os"
	"strconv"
)

// Config is initialized once at startup from the environment (spec.md §6)
// and never mutated afterward.
type Config struct {
	DatabaseHost     string
	DatabasePort     int
	DatabaseName     string
	DatabaseUser     string
	DatabasePassword string

	PoolMax       int
	PoolIdleMs    int
	PoolConnectMs int

	PullMaxBatch int
	PushMaxBatch int

	HTTPAddr      string
	JWTHS256Secret string
	JWTDevMode    bool

	AdminRPCAddr string
	LogLevel     string
	Env          string
}

func env(k, def string) string {
	if v := os.Getenv(k); v != "" {
		return v
	}
	return def
}

func envInt(k string, def int) int {
	v := os.Getenv(k)
	if v == "" {
		return def
	}
	n, err := strconv.Atoi(v)
	if err != nil {
		return def
	}
	return n
}

func envBool(k string, def bool) bool {
	v := os.Getenv(k)
	if v == "" {
		return def
	}
	b, err := strconv.ParseBool(v)
	if err != nil {
		return def
	}
	return b
}

// Load reads configuration from the environment, applying the defaults
// spec.md §6 specifies for each setting.
func Load() Config {
	return Config{
		DatabaseHost:     env("DATABASE_HOST", "localhost"),
		DatabasePort:     envInt("DATABASE_PORT", 5432),
		DatabaseName:     env("DATABASE_NAME", "engshopsync"),
		DatabaseUser:     env("DATABASE_USER", "engshopsync"),
		DatabasePassword: env("DATABASE_PASSWORD", ""),

		PoolMax:       envInt("POOL_MAX", 10),
		PoolIdleMs:    envInt("POOL_IDLE_MS", 30_000),
		PoolConnectMs: envInt("POOL_CONNECT_MS", 5_000),

		PullMaxBatch: envInt("PULL_MAX_BATCH", 1000),
		PushMaxBatch: envInt("PUSH_MAX_BATCH", 1000),

		HTTPAddr:       env("HTTP_ADDR", ":8080"),
		JWTHS256Secret: env("JWT_HS256_SECRET", "dev-secret-change-in-production"),
		JWTDevMode:     envBool("JWT_DEV_MODE", env("ENV", "") == "dev"),

		AdminRPCAddr: env("ADMIN_RPC_ADDR", ":9090"),
		LogLevel:     env("LOG_LEVEL", "info"),
		Env:          env("ENV", "prod"),
	}
}

// DSN builds a libpq-style connection string from the discrete fields.
// DATABASE_URL, if set, always takes precedence.
func (c Config) DSN() string {
	if url := os.Getenv("DATABASE_URL"); url != "" {
		return url
	}
	return fmt.Sprintf("postgres://%s:%s@%s:%d/%s",
		c.DatabaseUser, c.DatabasePassword, c.DatabaseHost, c.DatabasePort, c.DatabaseName)
}
