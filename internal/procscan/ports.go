package procscan

import (
	"context"
	"errors"
	"io"
	"log/slog"
	"strconv"
	"strings"
)

// LoopbackMarker prefixes lsof name fields for sockets bound to the loopback host.
const LoopbackMarker = "localhost:"

// PortMapper lists listening TCP ports and their owners.
type PortMapper interface {
	ListListeningPorts(ctx context.Context) (PortOwnership, error)
}

// ToolPortMapper lists listening ports by running lsof in field output mode.
type ToolPortMapper struct {
	runner Runner
	logger *slog.Logger
}

// NewToolPortMapper constructs an lsof-backed port mapper.
func NewToolPortMapper(runner Runner, logger *slog.Logger) *ToolPortMapper {
	if runner == nil {
		runner = ExecRunner{}
	}
	if logger == nil {
		logger = slog.New(slog.NewTextHandler(io.Discard, nil))
	}
	return &ToolPortMapper{runner: runner, logger: logger}
}

// ListListeningPorts implements PortMapper.
func (m *ToolPortMapper) ListListeningPorts(ctx context.Context) (PortOwnership, error) {
	out, err := m.runner.Run(ctx, "lsof", "-P", "-iTCP", "-sTCP:LISTEN", "-F", "pn")
	if err != nil {
		// lsof exits 1 without output when nothing is listening.
		var toolErr *ExternalToolError
		if errors.As(err, &toolErr) && toolErr.ExitCode == 1 &&
			len(strings.TrimSpace(string(toolErr.Stdout))) == 0 &&
			len(strings.TrimSpace(string(toolErr.Stderr))) == 0 {
			m.logger.Debug("no listening sockets reported")
			return PortOwnership{}, nil
		}
		return nil, err
	}
	ports := ParseLsof(out)
	m.logger.Debug("listed listening ports", "count", len(ports))
	return ports, nil
}

// ParseLsof parses lsof -F pn output. A "p<pid>" line sets the current owner
// and following "n<address>" lines are attributed to it. Only loopback
// addresses are kept; malformed ports are skipped. Duplicate ports resolve to
// the last owner seen.
func ParseLsof(data []byte) PortOwnership {
	ports := make(PortOwnership)
	owner := 0
	for _, line := range strings.Split(string(data), "\n") {
		line = strings.TrimSpace(line)
		if line == "" {
			continue
		}
		switch line[0] {
		case 'p':
			pid, err := strconv.Atoi(line[1:])
			if err != nil {
				owner = 0
				continue
			}
			owner = pid
		case 'n':
			if owner <= 0 {
				continue
			}
			addr := line[1:]
			if !strings.HasPrefix(addr, LoopbackMarker) {
				continue
			}
			port, err := strconv.Atoi(strings.TrimPrefix(addr, LoopbackMarker))
			if err != nil || port <= 0 {
				continue
			}
			ports[port] = owner
		}
	}
	return ports
}
