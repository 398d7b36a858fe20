// Package config loads runtime settings from the environment, optionally
// seeded from a .env file.
package config

import (
	"errors"
	"fmt"
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/joho/godotenv"
)

const (
	StorePostgres = "postgres"
	StoreMemory   = "memory"
)

type Config struct {
	HTTPAddr         string
	GRPCAddr         string // empty disables the gRPC listener
	Store            string
	DatabaseURL      string
	Migrate          bool
	ReapInterval     time.Duration
	SubscriberBuffer int
	LogLevel         string
	LogDev           bool
	ShutdownTimeout  time.Duration
}

func Default() Config {
	return Config{
		HTTPAddr:         ":8080",
		GRPCAddr:         ":50051",
		Store:            StorePostgres,
		Migrate:          true,
		ReapInterval:     30 * time.Second,
		SubscriberBuffer: 8,
		LogLevel:         "info",
		ShutdownTimeout:  5 * time.Second,
	}
}

// Load reads .env files (missing ones are ignored; real environment
// variables win) and then the environment.
func Load(envFiles ...string) (Config, error) {
	if len(envFiles) == 0 {
		envFiles = []string{".env"}
	}
	for _, f := range envFiles {
		if err := godotenv.Load(f); err != nil && !errors.Is(err, os.ErrNotExist) {
			return Config{}, fmt.Errorf("load %s: %w", f, err)
		}
	}
	return FromLookup(os.LookupEnv)
}

// FromLookup builds a Config from an environment lookup function.
func FromLookup(lookup func(string) (string, bool)) (Config, error) {
	c := Default()
	get := func(key string) (string, bool) {
		v, ok := lookup(key)
		v = strings.TrimSpace(v)
		return v, ok && v != ""
	}

	if v, ok := get("ORDERFEED_HTTP_ADDR"); ok {
		c.HTTPAddr = v
	}
	if v, ok := lookup("ORDERFEED_GRPC_ADDR"); ok {
		c.GRPCAddr = strings.TrimSpace(v)
	}
	if v, ok := get("ORDERFEED_STORE"); ok {
		c.Store = strings.ToLower(v)
	}
	if v, ok := get("DATABASE_URL"); ok {
		c.DatabaseURL = v
	}
	if v, ok := get("ORDERFEED_LOG_LEVEL"); ok {
		c.LogLevel = v
	}

	var errs []error
	parseBool := func(key string, dst *bool) {
		if v, ok := get(key); ok {
			b, err := strconv.ParseBool(v)
			if err != nil {
				errs = append(errs, fmt.Errorf("%s: %w", key, err))
				return
			}
			*dst = b
		}
	}
	parseSeconds := func(key string, dst *time.Duration) {
		if v, ok := get(key); ok {
			n, err := strconv.Atoi(v)
			if err != nil || n <= 0 {
				errs = append(errs, fmt.Errorf("%s: want a positive number of seconds, got %q", key, v))
				return
			}
			*dst = time.Duration(n) * time.Second
		}
	}

	parseBool("ORDERFEED_MIGRATE", &c.Migrate)
	parseBool("ORDERFEED_LOG_DEV", &c.LogDev)
	parseSeconds("ORDERFEED_REAP_INTERVAL_SECONDS", &c.ReapInterval)
	parseSeconds("ORDERFEED_SHUTDOWN_TIMEOUT_SECONDS", &c.ShutdownTimeout)
	if v, ok := get("ORDERFEED_SUBSCRIBER_BUFFER"); ok {
		n, err := strconv.Atoi(v)
		if err != nil || n <= 0 {
			errs = append(errs, fmt.Errorf("ORDERFEED_SUBSCRIBER_BUFFER: want a positive integer, got %q", v))
		} else {
			c.SubscriberBuffer = n
		}
	}

	if err := errors.Join(errs...); err != nil {
		return Config{}, err
	}
	return c, c.Validate()
}

func (c Config) Validate() error {
	switch c.Store {
	case StoreMemory:
	case StorePostgres:
		if c.DatabaseURL == "" {
			return errors.New("DATABASE_URL is required for the postgres store")
		}
	default:
		return fmt.Errorf("ORDERFEED_STORE: unknown store %q", c.Store)
	}
	if c.HTTPAddr == "" {
		return errors.New("ORDERFEED_HTTP_ADDR must not be empty")
	}
	return nil
}
