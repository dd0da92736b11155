package resolver

import (
	"context"
	"errors"
	"reflect"
	"testing"

	"github.com/skobkin/lspreport/internal/procscan"
)

func TestCompanionEndpoint(t *testing.T) {
	t.Parallel()

	testCases := []struct {
		name    string
		cmdline string
		wantWS  string
		wantErr bool
	}{
		{
			name:    "PlainPath",
			cmdline: "dart development-service --vm-service-uri=http://127.0.0.1:9229/abc",
			wantWS:  "ws://127.0.0.1:9229/abc/ws",
		},
		{
			name:    "TrailingSlashToken",
			cmdline: "/sdk/bin/dart development-service --bind-port=0 --vm-service-uri=http://127.0.0.1:40213/Xq1_8dY4wq0=/ --serve-devtools",
			wantWS:  "ws://127.0.0.1:40213/Xq1_8dY4wq0=/ws",
		},
		{
			name:    "SecureScheme",
			cmdline: "dds --vm-service-uri=https://localhost:8443/t/",
			wantWS:  "wss://localhost:8443/t/ws",
		},
		{
			name:    "Missing",
			cmdline: "dart development-service --bind-port=0",
			wantErr: true,
		},
		{
			name:    "Unparsable",
			cmdline: "dds --vm-service-uri=http://[::1",
			wantErr: true,
		},
		{
			name:    "Relative",
			cmdline: "dds --vm-service-uri=/only/a/path",
			wantErr: true,
		},
		{
			name:    "NoPort",
			cmdline: "dds --vm-service-uri=http://127.0.0.1/abc",
			wantErr: true,
		},
	}

	for _, tc := range testCases {
		t.Run(tc.name, func(t *testing.T) {
			t.Parallel()
			u, err := CompanionEndpoint(tc.cmdline)
			if tc.wantErr {
				if err == nil {
					t.Fatalf("expected error, got %v", u)
				}
				return
			}
			if err != nil {
				t.Fatalf("CompanionEndpoint: %v", err)
			}
			if got := WebSocketURI(u); got != tc.wantWS {
				t.Fatalf("unexpected ws uri %q, want %q", got, tc.wantWS)
			}
		})
	}
}

func TestCompanionEndpointMissingIsSentinel(t *testing.T) {
	t.Parallel()

	_, err := CompanionEndpoint("dart development-service")
	if !errors.Is(err, ErrNoServiceURI) {
		t.Fatalf("expected ErrNoServiceURI, got %v", err)
	}
}

type fakeRunner struct {
	calls [][]string
	err   error
}

func (f *fakeRunner) Run(_ context.Context, name string, args ...string) ([]byte, error) {
	f.calls = append(f.calls, append([]string{name}, args...))
	return nil, f.err
}

func TestToolRemediatorInvokesKill(t *testing.T) {
	t.Parallel()

	runner := &fakeRunner{}
	rem := NewToolRemediator(runner, "sigquit")
	if err := rem.Remediate(context.Background(), 4242); err != nil {
		t.Fatalf("Remediate: %v", err)
	}
	want := [][]string{{"kill", "-QUIT", "4242"}}
	if !reflect.DeepEqual(runner.calls, want) {
		t.Fatalf("unexpected kill invocation %v", runner.calls)
	}
}

func TestToolRemediatorReturnsToolError(t *testing.T) {
	t.Parallel()

	runner := &fakeRunner{err: &procscan.ExternalToolError{Command: "kill", ExitCode: 1}}
	rem := NewToolRemediator(runner, "")
	if err := rem.Remediate(context.Background(), 1); err == nil {
		t.Fatalf("expected error")
	}
	if runner.calls[0][1] != "-QUIT" {
		t.Fatalf("expected default QUIT signal, got %v", runner.calls[0])
	}
}

func TestNewNativeRemediatorRejectsUnknownSignal(t *testing.T) {
	t.Parallel()

	if _, err := NewNativeRemediator("WINCH"); err == nil {
		t.Fatalf("expected error for unsupported signal")
	}
	if _, err := NewNativeRemediator("SIGTERM"); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
}
