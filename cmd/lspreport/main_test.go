package main

import (
	"context"
	"log/slog"
	"testing"
	"time"

	"github.com/skobkin/lspreport/internal/config"
)

func runCommand(t *testing.T, base config.Config, args ...string) (config.Config, error) {
	t.Helper()
	var got config.Config
	cmd := newCommand(base, func(_ context.Context, cfg config.Config) error {
		got = cfg
		return nil
	})
	err := cmd.Run(context.Background(), append([]string{"lspreport"}, args...))
	return got, err
}

func TestFlagsOverrideOnlyWhenSet(t *testing.T) {
	base := config.Default()
	base.TargetFilter = "from-env"
	base.Resolve.RetryDelay = 2 * time.Second

	cfg, err := runCommand(t, base,
		"--attempts", "5",
		"--backend", "native",
		"--signal", "TERM",
		"--log-level", "debug",
		"-o", "/tmp/out.json",
		"--min-class-bytes", "0",
	)
	if err != nil {
		t.Fatalf("run: %v", err)
	}

	if cfg.Resolve.MaxAttempts != 5 || cfg.Backend != config.BackendNative || cfg.Resolve.Signal != "TERM" {
		t.Fatalf("flags not applied: %+v", cfg)
	}
	if cfg.LogLevel != slog.LevelDebug || cfg.OutputPath != "/tmp/out.json" || cfg.Collect.MinClassBytes != 0 {
		t.Fatalf("flags not applied: %+v", cfg)
	}
	if cfg.TargetFilter != "from-env" || cfg.Resolve.RetryDelay != 2*time.Second {
		t.Fatalf("unset flags must keep base values: %+v", cfg)
	}
}

func TestFlagValidation(t *testing.T) {
	testCases := [][]string{
		{"--attempts", "0"},
		{"--backend", "carrier-pigeon"},
		{"--log-level", "loud"},
		{"--retry-delay=-1s"},
		{"--min-class-bytes=-5"},
	}
	for _, args := range testCases {
		if _, err := runCommand(t, config.Default(), args...); err == nil {
			t.Fatalf("expected error for %v", args)
		}
	}
}
