package main

import (
	"context"
	"fmt"
	"log/slog"
	"os"
	"os/signal"
	"syscall"

	"github.com/urfave/cli/v3"

	"github.com/skobkin/lspreport/internal/app"
	"github.com/skobkin/lspreport/internal/config"
	"github.com/skobkin/lspreport/internal/version"
)

var (
	buildVersion = "dev"
	buildCommit  = ""
	buildTime    = ""
)

func main() {
	version.Set(version.Info{
		Version:   buildVersion,
		Commit:    buildCommit,
		BuildTime: buildTime,
	})

	cfg, err := config.Load()
	if err != nil {
		handler := slog.NewTextHandler(os.Stderr, &slog.HandlerOptions{Level: slog.LevelError})
		slog.New(handler).Error("failed to load configuration", "err", err)
		os.Exit(1)
	}

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	cmd := newCommand(cfg, func(ctx context.Context, cfg config.Config) error {
		handler := slog.NewTextHandler(os.Stderr, &slog.HandlerOptions{Level: cfg.LogLevel})
		return app.Run(ctx, slog.New(handler), cfg)
	})

	if err := cmd.Run(ctx, os.Args); err != nil {
		handler := slog.NewTextHandler(os.Stderr, &slog.HandlerOptions{Level: slog.LevelError})
		slog.New(handler).Error("application error", "err", err)
		os.Exit(1)
	}
}

// newCommand builds the root command. Flags override values from the
// environment only when given explicitly.
func newCommand(base config.Config, run func(ctx context.Context, cfg config.Config) error) *cli.Command {
	return &cli.Command{
		Name:    "lspreport",
		Usage:   "Capture a memory report from running language servers",
		Version: version.Current().String(),
		Description: `Finds language-server processes, locates their debug-service endpoint
through the companion development-service process and writes a memory
snapshot of every reachable target to a JSON report.

Targets without an endpoint are sent a signal and re-checked a bounded
number of times before being skipped.`,
		Flags: []cli.Flag{
			&cli.StringFlag{
				Name:  "log-level",
				Usage: "log level (debug, info, warn, error)",
				Value: base.LogLevel.String(),
			},
			&cli.StringFlag{
				Name:  "target-filter",
				Usage: "substring identifying target processes",
				Value: base.TargetFilter,
			},
			&cli.StringFlag{
				Name:  "companion-filter",
				Usage: "substring identifying companion processes",
				Value: base.CompanionFilter,
			},
			&cli.StringFlag{
				Name:    "output",
				Aliases: []string{"o"},
				Usage:   "report file path",
				Value:   base.OutputPath,
			},
			&cli.StringFlag{
				Name:  "metrics-file",
				Usage: "write a Prometheus textfile to this path",
				Value: base.MetricsFile,
			},
			&cli.StringFlag{
				Name:  "backend",
				Usage: "process and port discovery backend (tools, native)",
				Value: string(base.Backend),
			},
			&cli.IntFlag{
				Name:  "attempts",
				Usage: "endpoint resolution attempts",
				Value: base.Resolve.MaxAttempts,
			},
			&cli.DurationFlag{
				Name:  "retry-delay",
				Usage: "delay between resolution attempts",
				Value: base.Resolve.RetryDelay,
			},
			&cli.StringFlag{
				Name:  "signal",
				Usage: "signal sent to targets without an endpoint",
				Value: base.Resolve.Signal,
			},
			&cli.DurationFlag{
				Name:  "call-timeout",
				Usage: "timeout for each debug-service request, 0 disables",
				Value: base.Collect.CallTimeout,
			},
			&cli.Int64Flag{
				Name:  "min-class-bytes",
				Usage: "drop allocation profile rows below this size",
				Value: base.Collect.MinClassBytes,
			},
		},
		Action: func(ctx context.Context, cmd *cli.Command) error {
			cfg, err := applyFlags(cmd, base)
			if err != nil {
				return err
			}
			return run(ctx, cfg)
		},
	}
}

func applyFlags(cmd *cli.Command, cfg config.Config) (config.Config, error) {
	if cmd.IsSet("log-level") {
		level, err := config.ParseLogLevel(cmd.String("log-level"))
		if err != nil {
			return config.Config{}, fmt.Errorf("invalid --log-level: %w", err)
		}
		cfg.LogLevel = level
	}
	if cmd.IsSet("target-filter") {
		cfg.TargetFilter = cmd.String("target-filter")
	}
	if cmd.IsSet("companion-filter") {
		cfg.CompanionFilter = cmd.String("companion-filter")
	}
	if cmd.IsSet("output") {
		cfg.OutputPath = cmd.String("output")
	}
	if cmd.IsSet("metrics-file") {
		cfg.MetricsFile = cmd.String("metrics-file")
	}
	if cmd.IsSet("backend") {
		backend, err := config.ParseBackend(cmd.String("backend"))
		if err != nil {
			return config.Config{}, fmt.Errorf("invalid --backend: %w", err)
		}
		cfg.Backend = backend
	}
	if cmd.IsSet("attempts") {
		if cmd.Int("attempts") <= 0 {
			return config.Config{}, fmt.Errorf("invalid --attempts: must be > 0")
		}
		cfg.Resolve.MaxAttempts = cmd.Int("attempts")
	}
	if cmd.IsSet("retry-delay") {
		if cmd.Duration("retry-delay") < 0 {
			return config.Config{}, fmt.Errorf("invalid --retry-delay: must be >= 0")
		}
		cfg.Resolve.RetryDelay = cmd.Duration("retry-delay")
	}
	if cmd.IsSet("signal") {
		cfg.Resolve.Signal = cmd.String("signal")
	}
	if cmd.IsSet("call-timeout") {
		if cmd.Duration("call-timeout") < 0 {
			return config.Config{}, fmt.Errorf("invalid --call-timeout: must be >= 0")
		}
		cfg.Collect.CallTimeout = cmd.Duration("call-timeout")
	}
	if cmd.IsSet("min-class-bytes") {
		if cmd.Int64("min-class-bytes") < 0 {
			return config.Config{}, fmt.Errorf("invalid --min-class-bytes: must be >= 0")
		}
		cfg.Collect.MinClassBytes = cmd.Int64("min-class-bytes")
	}
	return cfg, nil
}
