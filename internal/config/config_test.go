package config

import (
	"log/slog"
	"testing"
	"time"
)

func TestLoadDefaults(t *testing.T) {
	cfg, err := Load()
	if err != nil {
		t.Fatalf("Load returned error: %v", err)
	}

	if cfg.LogLevel != slog.LevelInfo {
		t.Fatalf("unexpected LogLevel %v", cfg.LogLevel)
	}
	if cfg.TargetFilter != "language-server" {
		t.Fatalf("unexpected TargetFilter %q", cfg.TargetFilter)
	}
	if cfg.CompanionFilter != "development-service" {
		t.Fatalf("unexpected CompanionFilter %q", cfg.CompanionFilter)
	}
	if cfg.OutputPath != "lsp-report.json" {
		t.Fatalf("unexpected OutputPath %q", cfg.OutputPath)
	}
	if cfg.MetricsFile != "" {
		t.Fatalf("expected metrics export disabled by default, got %q", cfg.MetricsFile)
	}
	if cfg.Backend != BackendTools {
		t.Fatalf("unexpected Backend %q", cfg.Backend)
	}
	if cfg.Resolve.MaxAttempts != 3 {
		t.Fatalf("unexpected Resolve.MaxAttempts %d", cfg.Resolve.MaxAttempts)
	}
	if cfg.Resolve.RetryDelay != 5*time.Second {
		t.Fatalf("unexpected Resolve.RetryDelay %s", cfg.Resolve.RetryDelay)
	}
	if cfg.Resolve.Signal != "QUIT" {
		t.Fatalf("unexpected Resolve.Signal %q", cfg.Resolve.Signal)
	}
	if cfg.Collect.MinClassBytes != 1024 {
		t.Fatalf("unexpected Collect.MinClassBytes %d", cfg.Collect.MinClassBytes)
	}
	if cfg.Collect.CallTimeout != 30*time.Second {
		t.Fatalf("unexpected Collect.CallTimeout %s", cfg.Collect.CallTimeout)
	}
}

func TestLoadEnvOverrides(t *testing.T) {
	t.Setenv("LSPREPORT_LOG_LEVEL", "debug")
	t.Setenv("LSPREPORT_TARGET_FILTER", "analysis_server")
	t.Setenv("LSPREPORT_COMPANION_FILTER", "dds")
	t.Setenv("LSPREPORT_OUTPUT", "/tmp/out.json")
	t.Setenv("LSPREPORT_METRICS_FILE", "/tmp/lsp.prom")
	t.Setenv("LSPREPORT_BACKEND", "Native")
	t.Setenv("LSPREPORT_RESOLVE_ATTEMPTS", "5")
	t.Setenv("LSPREPORT_RESOLVE_DELAY", "250ms")
	t.Setenv("LSPREPORT_RESOLVE_SIGNAL", "sigusr1")
	t.Setenv("LSPREPORT_CALL_TIMEOUT", "0s")
	t.Setenv("LSPREPORT_MIN_CLASS_BYTES", "4096")
	t.Setenv("LSPREPORT_READ_LIMIT", "1048576")

	cfg, err := Load()
	if err != nil {
		t.Fatalf("Load returned error: %v", err)
	}

	if cfg.LogLevel != slog.LevelDebug {
		t.Fatalf("LogLevel override failed, got %v", cfg.LogLevel)
	}
	if cfg.TargetFilter != "analysis_server" {
		t.Fatalf("TargetFilter override failed, got %q", cfg.TargetFilter)
	}
	if cfg.CompanionFilter != "dds" {
		t.Fatalf("CompanionFilter override failed, got %q", cfg.CompanionFilter)
	}
	if cfg.OutputPath != "/tmp/out.json" {
		t.Fatalf("OutputPath override failed, got %q", cfg.OutputPath)
	}
	if cfg.MetricsFile != "/tmp/lsp.prom" {
		t.Fatalf("MetricsFile override failed, got %q", cfg.MetricsFile)
	}
	if cfg.Backend != BackendNative {
		t.Fatalf("Backend override failed, got %q", cfg.Backend)
	}
	if cfg.Resolve.MaxAttempts != 5 {
		t.Fatalf("Resolve.MaxAttempts override failed, got %d", cfg.Resolve.MaxAttempts)
	}
	if cfg.Resolve.RetryDelay != 250*time.Millisecond {
		t.Fatalf("Resolve.RetryDelay override failed, got %s", cfg.Resolve.RetryDelay)
	}
	if cfg.Resolve.Signal != "USR1" {
		t.Fatalf("Resolve.Signal override failed, got %q", cfg.Resolve.Signal)
	}
	if cfg.Collect.CallTimeout != 0 {
		t.Fatalf("Collect.CallTimeout override failed, got %s", cfg.Collect.CallTimeout)
	}
	if cfg.Collect.MinClassBytes != 4096 {
		t.Fatalf("Collect.MinClassBytes override failed, got %d", cfg.Collect.MinClassBytes)
	}
	if cfg.Collect.ReadLimit != 1<<20 {
		t.Fatalf("Collect.ReadLimit override failed, got %d", cfg.Collect.ReadLimit)
	}
}

func TestLoadInvalidEnv(t *testing.T) {
	testCases := []struct {
		name string
		key  string
		val  string
	}{
		{"InvalidLogLevel", "LSPREPORT_LOG_LEVEL", "loud"},
		{"InvalidBackend", "LSPREPORT_BACKEND", "procfs"},
		{"InvalidAttempts", "LSPREPORT_RESOLVE_ATTEMPTS", "three"},
		{"NonPositiveAttempts", "LSPREPORT_RESOLVE_ATTEMPTS", "0"},
		{"InvalidDelay", "LSPREPORT_RESOLVE_DELAY", "soon"},
		{"NegativeDelay", "LSPREPORT_RESOLVE_DELAY", "-1s"},
		{"InvalidCallTimeout", "LSPREPORT_CALL_TIMEOUT", "never"},
		{"NegativeCallTimeout", "LSPREPORT_CALL_TIMEOUT", "-5s"},
		{"InvalidMinClassBytes", "LSPREPORT_MIN_CLASS_BYTES", "1k"},
		{"NegativeMinClassBytes", "LSPREPORT_MIN_CLASS_BYTES", "-1"},
		{"InvalidReadLimit", "LSPREPORT_READ_LIMIT", "big"},
		{"NonPositiveReadLimit", "LSPREPORT_READ_LIMIT", "0"},
	}

	for _, tc := range testCases {
		t.Run(tc.name, func(t *testing.T) {
			t.Setenv(tc.key, tc.val)
			if _, err := Load(); err == nil {
				t.Fatalf("expected error for %s=%q", tc.key, tc.val)
			}
		})
	}
}
