package config

import (
	"fmt"
	"log/slog"
	"os"
	"strconv"
	"strings"
	"time"
)

// Backend selects how processes, listening ports and remediation signals are handled.
type Backend string

const (
	// BackendTools shells out to ps, lsof and kill.
	BackendTools Backend = "tools"
	// BackendNative talks to the OS through gopsutil and syscalls.
	BackendNative Backend = "native"
)

// Config represents runtime configuration sourced from environment variables.
type Config struct {
	LogLevel        slog.Level
	TargetFilter    string
	CompanionFilter string
	OutputPath      string
	MetricsFile     string
	Backend         Backend
	Resolve         ResolveConfig
	Collect         CollectConfig
}

// ResolveConfig captures tunables for endpoint resolution.
type ResolveConfig struct {
	MaxAttempts int
	RetryDelay  time.Duration
	Signal      string
}

// CollectConfig contains settings for snapshot collection.
type CollectConfig struct {
	CallTimeout   time.Duration
	MinClassBytes int64
	ReadLimit     int64
}

// Default returns the configuration used when no overrides are present.
func Default() Config {
	return Config{
		LogLevel:        slog.LevelInfo,
		TargetFilter:    "language-server",
		CompanionFilter: "development-service",
		OutputPath:      "lsp-report.json",
		Backend:         BackendTools,
		Resolve: ResolveConfig{
			MaxAttempts: 3,
			RetryDelay:  5 * time.Second,
			Signal:      "QUIT",
		},
		Collect: CollectConfig{
			CallTimeout:   30 * time.Second,
			MinClassBytes: 1024,
			ReadLimit:     64 << 20,
		},
	}
}

// Load parses configuration from environment variables, applying defaults.
func Load() (Config, error) {
	cfg := Default()

	if value := strings.TrimSpace(os.Getenv("LSPREPORT_LOG_LEVEL")); value != "" {
		level, err := ParseLogLevel(value)
		if err != nil {
			return Config{}, fmt.Errorf("parse LSPREPORT_LOG_LEVEL: %w", err)
		}
		cfg.LogLevel = level
	}

	if value := strings.TrimSpace(os.Getenv("LSPREPORT_TARGET_FILTER")); value != "" {
		cfg.TargetFilter = value
	}

	if value := strings.TrimSpace(os.Getenv("LSPREPORT_COMPANION_FILTER")); value != "" {
		cfg.CompanionFilter = value
	}

	if value := strings.TrimSpace(os.Getenv("LSPREPORT_OUTPUT")); value != "" {
		cfg.OutputPath = value
	}

	if value := strings.TrimSpace(os.Getenv("LSPREPORT_METRICS_FILE")); value != "" {
		cfg.MetricsFile = value
	}

	if value := strings.TrimSpace(os.Getenv("LSPREPORT_BACKEND")); value != "" {
		backend, err := ParseBackend(value)
		if err != nil {
			return Config{}, fmt.Errorf("parse LSPREPORT_BACKEND: %w", err)
		}
		cfg.Backend = backend
	}

	if value := strings.TrimSpace(os.Getenv("LSPREPORT_RESOLVE_ATTEMPTS")); value != "" {
		attempts, err := strconv.Atoi(value)
		if err != nil {
			return Config{}, fmt.Errorf("parse LSPREPORT_RESOLVE_ATTEMPTS: %w", err)
		}
		if attempts <= 0 {
			return Config{}, fmt.Errorf("LSPREPORT_RESOLVE_ATTEMPTS must be > 0")
		}
		cfg.Resolve.MaxAttempts = attempts
	}

	if value := strings.TrimSpace(os.Getenv("LSPREPORT_RESOLVE_DELAY")); value != "" {
		delay, err := time.ParseDuration(value)
		if err != nil {
			return Config{}, fmt.Errorf("parse LSPREPORT_RESOLVE_DELAY: %w", err)
		}
		if delay < 0 {
			return Config{}, fmt.Errorf("LSPREPORT_RESOLVE_DELAY must be >= 0")
		}
		cfg.Resolve.RetryDelay = delay
	}

	if value := strings.TrimSpace(os.Getenv("LSPREPORT_RESOLVE_SIGNAL")); value != "" {
		cfg.Resolve.Signal = strings.TrimPrefix(strings.ToUpper(value), "SIG")
	}

	if value := strings.TrimSpace(os.Getenv("LSPREPORT_CALL_TIMEOUT")); value != "" {
		timeout, err := time.ParseDuration(value)
		if err != nil {
			return Config{}, fmt.Errorf("parse LSPREPORT_CALL_TIMEOUT: %w", err)
		}
		if timeout < 0 {
			return Config{}, fmt.Errorf("LSPREPORT_CALL_TIMEOUT must be >= 0")
		}
		cfg.Collect.CallTimeout = timeout
	}

	if value := strings.TrimSpace(os.Getenv("LSPREPORT_MIN_CLASS_BYTES")); value != "" {
		minBytes, err := strconv.ParseInt(value, 10, 64)
		if err != nil {
			return Config{}, fmt.Errorf("parse LSPREPORT_MIN_CLASS_BYTES: %w", err)
		}
		if minBytes < 0 {
			return Config{}, fmt.Errorf("LSPREPORT_MIN_CLASS_BYTES must be >= 0")
		}
		cfg.Collect.MinClassBytes = minBytes
	}

	if value := strings.TrimSpace(os.Getenv("LSPREPORT_READ_LIMIT")); value != "" {
		limit, err := strconv.ParseInt(value, 10, 64)
		if err != nil {
			return Config{}, fmt.Errorf("parse LSPREPORT_READ_LIMIT: %w", err)
		}
		if limit <= 0 {
			return Config{}, fmt.Errorf("LSPREPORT_READ_LIMIT must be > 0")
		}
		cfg.Collect.ReadLimit = limit
	}

	return cfg, nil
}

// ParseBackend validates a backend name.
func ParseBackend(input string) (Backend, error) {
	switch Backend(strings.ToLower(strings.TrimSpace(input))) {
	case BackendTools:
		return BackendTools, nil
	case BackendNative:
		return BackendNative, nil
	default:
		return "", fmt.Errorf("unsupported backend %q", input)
	}
}

// ParseLogLevel maps a level name onto slog levels.
func ParseLogLevel(input string) (slog.Level, error) {
	switch strings.ToUpper(strings.TrimSpace(input)) {
	case "DEBUG":
		return slog.LevelDebug, nil
	case "INFO":
		return slog.LevelInfo, nil
	case "WARN", "WARNING":
		return slog.LevelWarn, nil
	case "ERROR":
		return slog.LevelError, nil
	default:
		return slog.LevelInfo, fmt.Errorf("unsupported log level %q", input)
	}
}
