package resolver

import (
	"context"
	"fmt"
	"os"
	"strconv"
	"strings"
	"syscall"

	"github.com/skobkin/lspreport/internal/procscan"
)

// Remediator prompts a target process to start its debug endpoint.
type Remediator interface {
	Remediate(ctx context.Context, pid int) error
}

// RemediatorFunc adapts a function to Remediator.
type RemediatorFunc func(ctx context.Context, pid int) error

// Remediate implements Remediator.
func (f RemediatorFunc) Remediate(ctx context.Context, pid int) error {
	return f(ctx, pid)
}

// RemediationError wraps a failed remediation attempt. It is never fatal.
type RemediationError struct {
	PID int
	Err error
}

func (e *RemediationError) Error() string {
	return fmt.Sprintf("remediate pid %d: %v", e.PID, e.Err)
}

func (e *RemediationError) Unwrap() error {
	return e.Err
}

// ToolRemediator signals targets through the kill tool.
type ToolRemediator struct {
	runner procscan.Runner
	signal string
}

// NewToolRemediator constructs a kill-backed remediator. signal is a name
// such as "QUIT" or "SIGQUIT".
func NewToolRemediator(runner procscan.Runner, signal string) *ToolRemediator {
	if runner == nil {
		runner = procscan.ExecRunner{}
	}
	return &ToolRemediator{runner: runner, signal: normalizeSignal(signal)}
}

// Remediate implements Remediator.
func (r *ToolRemediator) Remediate(ctx context.Context, pid int) error {
	_, err := r.runner.Run(ctx, "kill", "-"+r.signal, strconv.Itoa(pid))
	return err
}

// NativeRemediator signals targets directly through os.Process.
type NativeRemediator struct {
	signal os.Signal
}

// NewNativeRemediator constructs a syscall-backed remediator.
func NewNativeRemediator(signal string) (*NativeRemediator, error) {
	sig, ok := signalsByName[normalizeSignal(signal)]
	if !ok {
		return nil, fmt.Errorf("unsupported signal %q", signal)
	}
	return &NativeRemediator{signal: sig}, nil
}

// Remediate implements Remediator.
func (r *NativeRemediator) Remediate(_ context.Context, pid int) error {
	proc, err := os.FindProcess(pid)
	if err != nil {
		return err
	}
	return proc.Signal(r.signal)
}

var signalsByName = map[string]os.Signal{
	"HUP":  syscall.SIGHUP,
	"INT":  syscall.SIGINT,
	"QUIT": syscall.SIGQUIT,
	"KILL": syscall.SIGKILL,
	"TERM": syscall.SIGTERM,
}

func normalizeSignal(name string) string {
	name = strings.ToUpper(strings.TrimSpace(name))
	name = strings.TrimPrefix(name, "-")
	name = strings.TrimPrefix(name, "SIG")
	if name == "" {
		return "QUIT"
	}
	return name
}
