// Package config defines runtime configuration for the EchoBoard service,
// loaded once from environment variables and treated as immutable.
package config

import (
	"os"
	"strconv"
	"strings"
	"time"
)

// Config holds every tunable the service reads at startup.
type Config struct {
	// Addr is the listen address, e.g. ":8080".
	Addr string

	// AllowedOrigins is the WebSocket origin allow-list. "*" allows all.
	AllowedOrigins []string

	// DBPath locates the SQLite store backing the persistence adapter.
	DBPath string

	// MaxMessageSize caps inbound WebSocket frames in bytes.
	MaxMessageSize int64

	// RatePerSecond and RateBurst parameterize the per-connection token
	// bucket; frames over the limit are discarded.
	RatePerSecond float64
	RateBurst     int

	// SendBuffer is the per-connection outbound queue length. A session
	// that falls this far behind is evicted rather than retried.
	SendBuffer int

	// HistoryLimit caps chat history replayed in join snapshots.
	HistoryLimit int

	// HeartbeatTimeout forces silent sessions out; SweepInterval is how
	// often each board checks.
	HeartbeatTimeout time.Duration
	SweepInterval    time.Duration

	// BoardTTL expires in-memory actors for boards nobody is using;
	// ExpirySweepInterval is the janitor cadence.
	BoardTTL            time.Duration
	ExpirySweepInterval time.Duration

	// WriteQueueSize bounds the async persistence queue.
	WriteQueueSize int

	// ShutdownTimeout bounds graceful shutdown.
	ShutdownTimeout time.Duration
}

// Default returns the configuration used when no environment is set.
func Default() Config {
	return Config{
		Addr:                ":8080",
		AllowedOrigins:      []string{"http://localhost:8080"},
		DBPath:              "echoboard.db",
		MaxMessageSize:      4096,
		RatePerSecond:       5,
		RateBurst:           10,
		SendBuffer:          256,
		HistoryLimit:        200,
		HeartbeatTimeout:    45 * time.Second,
		SweepInterval:       15 * time.Second,
		BoardTTL:            30 * time.Minute,
		ExpirySweepInterval: time.Minute,
		WriteQueueSize:      1024,
		ShutdownTimeout:     10 * time.Second,
	}
}

// FromEnv loads the configuration from environment variables, falling back
// to defaults for anything unset or unparseable.
func FromEnv() Config {
	cfg := Default()

	if port := os.Getenv("SERVER_PORT"); port != "" {
		if !strings.HasPrefix(port, ":") {
			port = ":" + port
		}
		cfg.Addr = port
	}
	if origins := os.Getenv("ALLOWED_ORIGINS"); origins != "" {
		cfg.AllowedOrigins = splitAndTrim(origins)
	}

	cfg.DBPath = envString("DB_PATH", cfg.DBPath)
	cfg.MaxMessageSize = envInt64("MAX_MESSAGE_SIZE", cfg.MaxMessageSize)
	cfg.RatePerSecond = envFloat("RATE_LIMIT_PER_SECOND", cfg.RatePerSecond)
	cfg.RateBurst = envInt("RATE_LIMIT_BURST", cfg.RateBurst)
	cfg.SendBuffer = envInt("SEND_BUFFER", cfg.SendBuffer)
	cfg.HistoryLimit = envInt("HISTORY_LIMIT", cfg.HistoryLimit)
	cfg.HeartbeatTimeout = envDuration("HEARTBEAT_TIMEOUT", cfg.HeartbeatTimeout)
	cfg.SweepInterval = envDuration("PRESENCE_SWEEP_INTERVAL", cfg.SweepInterval)
	cfg.BoardTTL = envDuration("BOARD_TTL", cfg.BoardTTL)
	cfg.ExpirySweepInterval = envDuration("EXPIRY_SWEEP_INTERVAL", cfg.ExpirySweepInterval)
	cfg.WriteQueueSize = envInt("WRITE_QUEUE_SIZE", cfg.WriteQueueSize)
	cfg.ShutdownTimeout = envDuration("SHUTDOWN_TIMEOUT", cfg.ShutdownTimeout)

	return cfg
}

func splitAndTrim(s string) []string {
	parts := strings.Split(s, ",")
	out := parts[:0]
	for _, p := range parts {
		if trimmed := strings.TrimSpace(p); trimmed != "" {
			out = append(out, trimmed)
		}
	}
	return out
}

func envString(key, fallback string) string {
	if v := os.Getenv(key); v != "" {
		return v
	}
	return fallback
}

func envInt(key string, fallback int) int {
	if v := os.Getenv(key); v != "" {
		if parsed, err := strconv.Atoi(v); err == nil && parsed > 0 {
			return parsed
		}
	}
	return fallback
}

func envInt64(key string, fallback int64) int64 {
	if v := os.Getenv(key); v != "" {
		if parsed, err := strconv.ParseInt(v, 10, 64); err == nil && parsed > 0 {
			return parsed
		}
	}
	return fallback
}

func envFloat(key string, fallback float64) float64 {
	if v := os.Getenv(key); v != "" {
		if parsed, err := strconv.ParseFloat(v, 64); err == nil && parsed > 0 {
			return parsed
		}
	}
	return fallback
}

func envDuration(key string, fallback time.Duration) time.Duration {
	if v := os.Getenv(key); v != "" {
		if parsed, err := time.ParseDuration(v); err == nil && parsed > 0 {
			return parsed
		}
	}
	return fallback
}
