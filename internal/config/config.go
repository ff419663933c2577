// Package config validates the process environment this engine runs under.
// Every validation error found is accumulated and returned together,
// rather than failing fast on the first one.
package config

import (
	"fmt"
	"os"
	"strconv"
	"strings"
)

// Config holds validated environment configuration for an example process
// embedding this engine. The core engine packages themselves take explicit
// parameters; Config exists for the binaries in cmd/ (and for tests that
// want one place to read defaults from).
type Config struct {
	Port string

	PingIntervalMS   int
	PingTimeoutMS    int
	MailboxSize      int
	AdapterQueueSize int

	RedisEnabled bool
	RedisAddr    string
	RedisChannel string

	RateLimitConnPerIP string

	LogLevel    string
	Development bool
}

// Load reads and validates the environment, returning an aggregated error
// describing every problem found.
func Load() (*Config, error) {
	cfg := &Config{
		PingIntervalMS:     25000,
		PingTimeoutMS:      20000,
		MailboxSize:        16,
		AdapterQueueSize:   16,
		RedisChannel:       "socketio",
		RateLimitConnPerIP: "20-M",
		LogLevel:           "info",
	}
	var errs []string

	cfg.Port = os.Getenv("PORT")
	if cfg.Port == "" {
		cfg.Port = "8080"
	} else if port, err := strconv.Atoi(cfg.Port); err != nil || port < 1 || port > 65535 {
		errs = append(errs, fmt.Sprintf("PORT must be a valid port number between 1 and 65535 (got %q)", cfg.Port))
	}

	if v := os.Getenv("SOCKETIO_PING_INTERVAL_MS"); v != "" {
		n, err := strconv.Atoi(v)
		if err != nil || n <= 0 {
			errs = append(errs, fmt.Sprintf("SOCKETIO_PING_INTERVAL_MS must be a positive integer (got %q)", v))
		} else {
			cfg.PingIntervalMS = n
		}
	}

	if v := os.Getenv("SOCKETIO_PING_TIMEOUT_MS"); v != "" {
		n, err := strconv.Atoi(v)
		if err != nil || n <= 0 {
			errs = append(errs, fmt.Sprintf("SOCKETIO_PING_TIMEOUT_MS must be a positive integer (got %q)", v))
		} else {
			cfg.PingTimeoutMS = n
		}
	}

	if v := os.Getenv("SOCKETIO_MAILBOX_SIZE"); v != "" {
		n, err := strconv.Atoi(v)
		if err != nil || n <= 0 {
			errs = append(errs, fmt.Sprintf("SOCKETIO_MAILBOX_SIZE must be a positive integer (got %q)", v))
		} else {
			cfg.MailboxSize = n
		}
	}

	if v := os.Getenv("SOCKETIO_ADAPTER_QUEUE_SIZE"); v != "" {
		n, err := strconv.Atoi(v)
		if err != nil || n <= 0 {
			errs = append(errs, fmt.Sprintf("SOCKETIO_ADAPTER_QUEUE_SIZE must be a positive integer (got %q)", v))
		} else {
			cfg.AdapterQueueSize = n
		}
	}

	cfg.RedisEnabled = os.Getenv("REDIS_ENABLED") == "true"
	if cfg.RedisEnabled {
		cfg.RedisAddr = os.Getenv("REDIS_ADDR")
		if cfg.RedisAddr == "" {
			cfg.RedisAddr = "localhost:6379"
		} else if !isValidHostPort(cfg.RedisAddr) {
			errs = append(errs, fmt.Sprintf("REDIS_ADDR must be in format 'host:port' (got %q)", cfg.RedisAddr))
		}
		if ch := os.Getenv("REDIS_CHANNEL"); ch != "" {
			cfg.RedisChannel = ch
		}
	}

	if v := os.Getenv("RATE_LIMIT_CONN_PER_IP"); v != "" {
		cfg.RateLimitConnPerIP = v
	}

	if v := os.Getenv("LOG_LEVEL"); v != "" {
		cfg.LogLevel = v
	}
	cfg.Development = os.Getenv("GO_ENV") != "production"

	if len(errs) > 0 {
		return nil, fmt.Errorf("invalid configuration:\n  %s", strings.Join(errs, "\n  "))
	}
	return cfg, nil
}

func isValidHostPort(v string) bool {
	parts := strings.Split(v, ":")
	if len(parts) != 2 || parts[0] == "" {
		return false
	}
	port, err := strconv.Atoi(parts[1])
	return err == nil && port > 0 && port <= 65535
}
