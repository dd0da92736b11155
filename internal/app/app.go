// Package app wires up and runs one diagnostic pass.
package app

import (
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"os"
	"sort"
	"time"

	"github.com/skobkin/lspreport/internal/config"
	"github.com/skobkin/lspreport/internal/metrics"
	"github.com/skobkin/lspreport/internal/output"
	"github.com/skobkin/lspreport/internal/procscan"
	"github.com/skobkin/lspreport/internal/report"
	"github.com/skobkin/lspreport/internal/resolver"
	"github.com/skobkin/lspreport/internal/snapshot"
	"github.com/skobkin/lspreport/internal/version"
	"github.com/skobkin/lspreport/internal/vmservice"
)

// Deps holds the OS-facing collaborators of a run. Nil fields are built
// from the configured backend.
type Deps struct {
	Inventory  procscan.Inventory
	Ports      procscan.PortMapper
	Remediator resolver.Remediator
	Dial       snapshot.Dialer
	Wait       func(ctx context.Context, d time.Duration) error
	Stdout     io.Writer
	Stderr     io.Writer
}

// Run bootstraps the application lifecycle.
func Run(ctx context.Context, baseLogger *slog.Logger, cfg config.Config) error {
	return RunWith(ctx, baseLogger, cfg, Deps{})
}

// RunWith is Run with explicit collaborators.
func RunWith(ctx context.Context, baseLogger *slog.Logger, cfg config.Config, deps Deps) error {
	if baseLogger == nil {
		baseLogger = slog.New(slog.NewTextHandler(io.Discard, nil))
	}
	appLogger := baseLogger.With("component", "app")

	deps, err := completeDeps(cfg, deps, baseLogger)
	if err != nil {
		return err
	}
	printer := output.New(deps.Stdout, deps.Stderr)

	procs, err := deps.Inventory.ListProcesses(ctx)
	if err != nil {
		dumpToolFailure(printer, err)
		return fmt.Errorf("list processes: %w", err)
	}
	targets := procscan.FilterByCommandSubstring(procs, cfg.TargetFilter)
	if len(targets) == 0 {
		appLogger.Info("no target processes found", "filter", cfg.TargetFilter)
		printer.NoTargets(cfg.TargetFilter)
		return nil
	}
	sort.SliceStable(targets, func(i, j int) bool { return targets[i].PID < targets[j].PID })
	appLogger.Info("found target processes", "count", len(targets))
	printer.Targets(targets)

	res, err := resolver.New(deps.Inventory, deps.Ports, deps.Remediator, resolver.Options{
		CompanionFilter: cfg.CompanionFilter,
		MaxAttempts:     cfg.Resolve.MaxAttempts,
		RetryDelay:      cfg.Resolve.RetryDelay,
		Wait:            deps.Wait,
		OnAttempt: func(_ int, ports procscan.PortOwnership, _ []int) {
			if baseLogger.Enabled(ctx, slog.LevelDebug) {
				printer.PortOwners(ports)
			}
		},
	}, baseLogger.With("component", "resolver"))
	if err != nil {
		return fmt.Errorf("init resolver: %w", err)
	}

	resolution, err := res.Resolve(ctx, targets)
	if err != nil {
		dumpToolFailure(printer, err)
		return fmt.Errorf("resolve endpoints: %w", err)
	}
	printer.PortOwners(resolution.Ports)
	printer.Resolution(resolution, targets)

	collector, err := snapshot.NewCollector(deps.Dial, cfg.Collect.MinClassBytes, baseLogger.With("component", "snapshot"))
	if err != nil {
		return fmt.Errorf("init snapshot collector: %w", err)
	}

	rep, err := collectAll(ctx, collector, resolution.Endpoints, printer, appLogger)
	if err != nil {
		return err
	}

	if err := rep.Write(cfg.OutputPath); err != nil {
		return err
	}
	appLogger.Info("report written", "path", cfg.OutputPath, "snapshots", rep.Len())
	printer.Summary(rep)
	printer.ReportWritten(cfg.OutputPath, rep.Len())

	if cfg.MetricsFile != "" {
		run := metrics.Run{
			Targets:    len(targets),
			Resolution: resolution,
			Report:     rep,
			Build:      version.Current(),
		}
		if err := metrics.WriteTextfile(cfg.MetricsFile, run); err != nil {
			return err
		}
		appLogger.Info("metrics written", "path", cfg.MetricsFile)
	}

	return nil
}

// collectAll snapshots every resolved endpoint in ascending pid order.
// Per-target failures are dropped; only cancellation aborts.
func collectAll(ctx context.Context, collector *snapshot.Collector, endpoints map[int]string, printer *output.Printer, logger *slog.Logger) (*report.Report, error) {
	pids := make([]int, 0, len(endpoints))
	for pid := range endpoints {
		pids = append(pids, pid)
	}
	sort.Ints(pids)

	rep := report.New()
	for _, pid := range pids {
		if err := ctx.Err(); err != nil {
			return nil, fmt.Errorf("collect snapshots: %w", err)
		}
		uri := endpoints[pid]
		printer.Collecting(pid, uri)

		snap, err := collector.Collect(ctx, pid, uri)
		if err != nil {
			if ctxErr := ctx.Err(); ctxErr != nil {
				return nil, fmt.Errorf("collect snapshots: %w", ctxErr)
			}
			logger.Warn("snapshot FAILED", "pid", pid, "uri", uri, "err", err)
			printer.SnapshotFailed(pid, err)
			continue
		}
		rep.Add(pid, snap)
		printer.SnapshotOK(snap)
	}
	return rep, nil
}

func completeDeps(cfg config.Config, deps Deps, logger *slog.Logger) (Deps, error) {
	if deps.Stdout == nil {
		deps.Stdout = os.Stdout
	}
	if deps.Stderr == nil {
		deps.Stderr = os.Stderr
	}
	if deps.Dial == nil {
		deps.Dial = snapshot.WebSocketDialer(vmservice.DialOptions{
			CallTimeout: cfg.Collect.CallTimeout,
			ReadLimit:   cfg.Collect.ReadLimit,
		}, logger.With("component", "vmservice"))
	}

	procLogger := logger.With("component", "procscan")
	switch cfg.Backend {
	case config.BackendNative:
		if deps.Inventory == nil {
			deps.Inventory = procscan.NewNativeInventory(procLogger)
		}
		if deps.Ports == nil {
			deps.Ports = procscan.NewNativePortMapper(procLogger)
		}
		if deps.Remediator == nil {
			rem, err := resolver.NewNativeRemediator(cfg.Resolve.Signal)
			if err != nil {
				return Deps{}, fmt.Errorf("init remediator: %w", err)
			}
			deps.Remediator = rem
		}
	case config.BackendTools, "":
		runner := procscan.ExecRunner{}
		if deps.Inventory == nil {
			deps.Inventory = procscan.NewToolInventory(runner, procLogger)
		}
		if deps.Ports == nil {
			deps.Ports = procscan.NewToolPortMapper(runner, procLogger)
		}
		if deps.Remediator == nil {
			deps.Remediator = resolver.NewToolRemediator(runner, cfg.Resolve.Signal)
		}
	default:
		return Deps{}, fmt.Errorf("unsupported backend %q", cfg.Backend)
	}
	return deps, nil
}

func dumpToolFailure(printer *output.Printer, err error) {
	var toolErr *procscan.ExternalToolError
	if errors.As(err, &toolErr) {
		printer.ToolFailure(toolErr)
	}
}
