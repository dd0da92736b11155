package procscan

import (
	"context"
	"io"
	"log/slog"
	"strconv"
	"strings"
)

// Inventory enumerates processes running on the host.
type Inventory interface {
	ListProcesses(ctx context.Context) ([]ProcessRecord, error)
}

// ToolInventory lists processes by running ps.
type ToolInventory struct {
	runner Runner
	logger *slog.Logger
}

// NewToolInventory constructs a ps-backed inventory.
func NewToolInventory(runner Runner, logger *slog.Logger) *ToolInventory {
	if runner == nil {
		runner = ExecRunner{}
	}
	if logger == nil {
		logger = slog.New(slog.NewTextHandler(io.Discard, nil))
	}
	return &ToolInventory{runner: runner, logger: logger}
}

// ListProcesses implements Inventory.
func (i *ToolInventory) ListProcesses(ctx context.Context) ([]ProcessRecord, error) {
	out, err := i.runner.Run(ctx, "ps", "-eo", "pid=,args=")
	if err != nil {
		return nil, err
	}
	records := ParsePS(out)
	i.logger.Debug("listed processes", "count", len(records))
	return records, nil
}

// ParsePS parses "pid command" pairs, one per line. Lines without a numeric
// leading pid are skipped.
func ParsePS(data []byte) []ProcessRecord {
	lines := strings.Split(string(data), "\n")
	records := make([]ProcessRecord, 0, len(lines))
	for _, line := range lines {
		line = strings.TrimSpace(line)
		if line == "" {
			continue
		}
		pidField, command, _ := strings.Cut(line, " ")
		pid, err := strconv.Atoi(pidField)
		if err != nil || pid <= 0 {
			continue
		}
		records = append(records, ProcessRecord{
			PID:         pid,
			CommandLine: strings.TrimSpace(command),
		})
	}
	return records
}

// FilterByCommandSubstring returns the records whose command line contains
// substr. The match is case-sensitive and the input order is preserved.
func FilterByCommandSubstring(records []ProcessRecord, substr string) []ProcessRecord {
	out := make([]ProcessRecord, 0)
	for _, rec := range records {
		if strings.Contains(rec.CommandLine, substr) {
			out = append(out, rec)
		}
	}
	return out
}
