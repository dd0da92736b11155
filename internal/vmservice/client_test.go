package vmservice_test

import (
	"context"
	"encoding/json"
	"errors"
	"reflect"
	"testing"
	"time"

	"github.com/skobkin/lspreport/internal/vmservice"
	"github.com/skobkin/lspreport/internal/vmservice/vmservicetest"
)

func TestClientRoundTrips(t *testing.T) {
	t.Parallel()

	srv := vmservicetest.NewServer(t, map[string]vmservicetest.Handler{
		"getVM": func(json.RawMessage) (any, *vmservice.RPCError) {
			return map[string]any{
				"type":             "VM",
				"name":             "vm",
				"architectureBits": 64,
				"hostCPU":          "AMD Ryzen 9",
				"operatingSystem":  "linux",
				"startTime":        1700000000000,
				"isolates": []map[string]any{
					{"type": "@Isolate", "id": "isolates/1", "name": "main", "isolateGroupId": "isolateGroups/1"},
				},
				"systemIsolates": []map[string]any{
					{"type": "@Isolate", "id": "isolates/2", "name": "vm-service", "isSystemIsolate": true},
				},
			}, nil
		},
		"getMemoryUsage": func(params json.RawMessage) (any, *vmservice.RPCError) {
			if vmservicetest.IsolateID(params) != "isolates/1" {
				return nil, &vmservice.RPCError{Code: 105, Message: "Isolate must be runnable"}
			}
			return map[string]any{"type": "MemoryUsage", "heapUsage": 1000, "heapCapacity": 2000, "externalUsage": 30}, nil
		},
	})
	srv.Notify = map[string]any{"streamId": "GC"}

	client, err := vmservice.Dial(context.Background(), srv.URI(), vmservice.DialOptions{CallTimeout: 5 * time.Second, ReadLimit: 1 << 20}, nil)
	if err != nil {
		t.Fatalf("Dial: %v", err)
	}
	defer client.Close()

	vm, err := client.GetVM(context.Background())
	if err != nil {
		t.Fatalf("GetVM: %v", err)
	}
	if vm.ArchitectureBits != 64 || vm.HostCPU != "AMD Ryzen 9" || vm.StartTime != 1700000000000 {
		t.Fatalf("unexpected vm %+v", vm)
	}
	if len(vm.Isolates) != 1 || vm.Isolates[0].IsolateGroupID != "isolateGroups/1" {
		t.Fatalf("unexpected isolates %+v", vm.Isolates)
	}
	if len(vm.SystemIsolates) != 1 || !vm.SystemIsolates[0].IsSystemIsolate {
		t.Fatalf("unexpected system isolates %+v", vm.SystemIsolates)
	}

	usage, err := client.GetMemoryUsage(context.Background(), "isolates/1")
	if err != nil {
		t.Fatalf("GetMemoryUsage: %v", err)
	}
	if usage != (vmservice.MemoryUsage{HeapUsage: 1000, HeapCapacity: 2000, ExternalUsage: 30}) {
		t.Fatalf("unexpected usage %+v", usage)
	}

	_, err = client.GetMemoryUsage(context.Background(), "isolates/9")
	var rpcErr *vmservice.RPCError
	if !errors.As(err, &rpcErr) || rpcErr.Code != 105 {
		t.Fatalf("expected rpc error 105, got %v", err)
	}

	if _, err := client.GetProcessMemoryUsage(context.Background()); err == nil {
		t.Fatalf("expected method-not-found error")
	}

	want := []string{"getVM", "getMemoryUsage", "getMemoryUsage", "getProcessMemoryUsage"}
	if got := srv.Calls(); !reflect.DeepEqual(got, want) {
		t.Fatalf("unexpected calls %v", got)
	}

	if err := client.Close(); err != nil {
		t.Fatalf("Close: %v", err)
	}
	if err := client.Close(); err != nil {
		t.Fatalf("second Close: %v", err)
	}
}

func TestClientCallTimeout(t *testing.T) {
	t.Parallel()

	ctx, cancel := context.WithCancel(context.Background())
	srv := vmservicetest.NewServer(t, map[string]vmservicetest.Handler{
		"getVM": vmservicetest.Hang(ctx),
	})
	t.Cleanup(cancel)

	client, err := vmservice.Dial(context.Background(), srv.URI(), vmservice.DialOptions{CallTimeout: 50 * time.Millisecond}, nil)
	if err != nil {
		t.Fatalf("Dial: %v", err)
	}
	defer client.Close()

	start := time.Now()
	if _, err := client.GetVM(context.Background()); err == nil {
		t.Fatalf("expected timeout error")
	}
	if elapsed := time.Since(start); elapsed > 5*time.Second {
		t.Fatalf("call took too long: %s", elapsed)
	}
}

func TestDialFailure(t *testing.T) {
	t.Parallel()

	if _, err := vmservice.Dial(context.Background(), "ws://127.0.0.1:1/none/ws", vmservice.DialOptions{CallTimeout: time.Second}, nil); err == nil {
		t.Fatalf("expected dial error")
	}
}
