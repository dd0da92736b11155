package procscan

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"os/exec"
	"strings"
)

// Runner executes an external command and returns its captured output.
// A non-zero exit or a failure to start the command is reported as *ExternalToolError.
type Runner interface {
	Run(ctx context.Context, name string, args ...string) ([]byte, error)
}

// ExternalToolError describes a failed invocation of an OS tool.
type ExternalToolError struct {
	Command  string
	Args     []string
	ExitCode int
	Stdout   []byte
	Stderr   []byte
	Err      error
}

func (e *ExternalToolError) Error() string {
	if e.ExitCode < 0 {
		return fmt.Sprintf("run %s: %v", e.CommandLine(), e.Err)
	}
	return fmt.Sprintf("%s exited with code %d", e.CommandLine(), e.ExitCode)
}

func (e *ExternalToolError) Unwrap() error {
	return e.Err
}

// CommandLine renders the command and its arguments as typed in a shell.
func (e *ExternalToolError) CommandLine() string {
	if len(e.Args) == 0 {
		return e.Command
	}
	return e.Command + " " + strings.Join(e.Args, " ")
}

// ExecRunner runs commands through os/exec.
type ExecRunner struct{}

// Run implements Runner.
func (ExecRunner) Run(ctx context.Context, name string, args ...string) ([]byte, error) {
	var stdout, stderr bytes.Buffer
	cmd := exec.CommandContext(ctx, name, args...)
	cmd.Stdout = &stdout
	cmd.Stderr = &stderr

	if err := cmd.Run(); err != nil {
		toolErr := &ExternalToolError{
			Command:  name,
			Args:     append([]string(nil), args...),
			ExitCode: -1,
			Stdout:   stdout.Bytes(),
			Stderr:   stderr.Bytes(),
			Err:      err,
		}
		var exitErr *exec.ExitError
		if errors.As(err, &exitErr) {
			toolErr.ExitCode = exitErr.ExitCode()
		}
		return stdout.Bytes(), toolErr
	}
	return stdout.Bytes(), nil
}
