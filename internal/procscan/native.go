package procscan

import (
	"context"
	"io"
	"log/slog"
	"net"

	psnet "github.com/shirou/gopsutil/v4/net"
	"github.com/shirou/gopsutil/v4/process"
)

const nativeCommand = "gopsutil"

// NativeInventory lists processes through gopsutil instead of ps.
type NativeInventory struct {
	logger *slog.Logger
}

// NewNativeInventory constructs a gopsutil-backed inventory.
func NewNativeInventory(logger *slog.Logger) *NativeInventory {
	if logger == nil {
		logger = slog.New(slog.NewTextHandler(io.Discard, nil))
	}
	return &NativeInventory{logger: logger}
}

// ListProcesses implements Inventory. Processes that vanish or deny access
// while being read are skipped.
func (i *NativeInventory) ListProcesses(ctx context.Context) ([]ProcessRecord, error) {
	procs, err := process.ProcessesWithContext(ctx)
	if err != nil {
		return nil, &ExternalToolError{Command: nativeCommand, Args: []string{"processes"}, ExitCode: -1, Err: err}
	}

	records := make([]ProcessRecord, 0, len(procs))
	for _, p := range procs {
		cmdline, err := p.CmdlineWithContext(ctx)
		if err != nil {
			i.logger.Debug("skip process", "pid", p.Pid, "err", err)
			continue
		}
		if cmdline == "" {
			continue
		}
		records = append(records, ProcessRecord{PID: int(p.Pid), CommandLine: cmdline})
	}
	i.logger.Debug("listed processes", "count", len(records))
	return records, nil
}

// NativePortMapper lists listening loopback TCP sockets through gopsutil.
type NativePortMapper struct {
	logger *slog.Logger
}

// NewNativePortMapper constructs a gopsutil-backed port mapper.
func NewNativePortMapper(logger *slog.Logger) *NativePortMapper {
	if logger == nil {
		logger = slog.New(slog.NewTextHandler(io.Discard, nil))
	}
	return &NativePortMapper{logger: logger}
}

// ListListeningPorts implements PortMapper.
func (m *NativePortMapper) ListListeningPorts(ctx context.Context) (PortOwnership, error) {
	conns, err := psnet.ConnectionsWithContext(ctx, "tcp")
	if err != nil {
		return nil, &ExternalToolError{Command: nativeCommand, Args: []string{"connections", "tcp"}, ExitCode: -1, Err: err}
	}
	ports := listeningLoopbackPorts(conns)
	m.logger.Debug("listed listening ports", "count", len(ports))
	return ports, nil
}

func listeningLoopbackPorts(conns []psnet.ConnectionStat) PortOwnership {
	ports := make(PortOwnership)
	for _, conn := range conns {
		if conn.Status != "LISTEN" || conn.Pid <= 0 || conn.Laddr.Port == 0 {
			continue
		}
		ip := net.ParseIP(conn.Laddr.IP)
		if ip == nil || !ip.IsLoopback() {
			continue
		}
		ports[int(conn.Laddr.Port)] = int(conn.Pid)
	}
	return ports
}
