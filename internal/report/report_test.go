package report

import (
	"encoding/json"
	"os"
	"path/filepath"
	"reflect"
	"strings"
	"testing"

	"github.com/Velocidex/ordereddict"

	"github.com/skobkin/lspreport/internal/snapshot"
	"github.com/skobkin/lspreport/internal/vmservice"
)

func sampleSnapshot(pid int, heap int64) *snapshot.Snapshot {
	return &snapshot.Snapshot{
		PID: pid,
		URI: "ws://127.0.0.1:8181/tok=/ws",
		VM: snapshot.VMInfo{
			ArchitectureBits: 64,
			HostCPU:          "cpu",
			OperatingSystem:  "linux",
			StartTime:        1700000000000,
		},
		ProcessMemory: &vmservice.ProcessMemoryItem{Name: "Process", Size: 1 << 20},
		Isolates: []snapshot.Isolate{{
			ID:          "isolates/1",
			Name:        "main",
			MemoryUsage: vmservice.MemoryUsage{HeapUsage: heap, HeapCapacity: heap * 2},
			AllocationProfile: []snapshot.ClassAllocation{
				{ClassName: "_List", LibraryName: "dart.core", BytesCurrent: 4096, InstancesCurrent: 3},
			},
		}},
	}
}

func TestWriteRoundTripPreservesOrder(t *testing.T) {
	t.Parallel()

	rep := New()
	rep.Add(900, sampleSnapshot(900, 10))
	rep.Add(12, sampleSnapshot(12, 20))
	rep.Add(345, sampleSnapshot(345, 30))
	rep.Add(77, nil)

	path := filepath.Join(t.TempDir(), DefaultPath)
	if err := os.WriteFile(path, []byte("stale"), 0o644); err != nil {
		t.Fatalf("seed file: %v", err)
	}
	if err := rep.Write(path); err != nil {
		t.Fatalf("Write: %v", err)
	}

	data, err := os.ReadFile(path)
	if err != nil {
		t.Fatalf("read report: %v", err)
	}
	if !strings.HasPrefix(string(data), "{\n  \"900\": {\n    \"pid\": 900,") {
		t.Fatalf("unexpected indentation:\n%s", data)
	}

	ordered := ordereddict.NewDict()
	if err := ordered.UnmarshalJSON(data); err != nil {
		t.Fatalf("UnmarshalJSON: %v", err)
	}
	if keys := ordered.Keys(); !reflect.DeepEqual(keys, []string{"900", "12", "345"}) {
		t.Fatalf("unexpected key order %v", keys)
	}

	var decoded map[string]*snapshot.Snapshot
	if err := json.Unmarshal(data, &decoded); err != nil {
		t.Fatalf("json.Unmarshal: %v", err)
	}
	want := map[string]*snapshot.Snapshot{
		"900": sampleSnapshot(900, 10),
		"12":  sampleSnapshot(12, 20),
		"345": sampleSnapshot(345, 30),
	}
	if !reflect.DeepEqual(decoded, want) {
		t.Fatalf("round trip mismatch:\n got %+v\nwant %+v", decoded, want)
	}
}

func TestAccessors(t *testing.T) {
	t.Parallel()

	rep := New()
	if rep.Len() != 0 {
		t.Fatalf("expected empty report")
	}
	rep.Add(5, sampleSnapshot(5, 1))
	rep.Add(3, sampleSnapshot(3, 1))
	rep.Add(5, sampleSnapshot(5, 2))

	if rep.Len() != 2 || !reflect.DeepEqual(rep.PIDs(), []int{5, 3}) {
		t.Fatalf("unexpected pids %v", rep.PIDs())
	}
	snap, ok := rep.Snapshot(5)
	if !ok || snap.HeapUsage() != 2 {
		t.Fatalf("expected replaced snapshot for pid 5, got %+v", snap)
	}
	if _, ok := rep.Snapshot(99); ok {
		t.Fatalf("unexpected snapshot for pid 99")
	}
}

func TestEncodeEmpty(t *testing.T) {
	t.Parallel()

	data, err := New().Encode()
	if err != nil {
		t.Fatalf("Encode: %v", err)
	}
	if strings.TrimSpace(string(data)) != "{}" {
		t.Fatalf("unexpected empty encoding %q", data)
	}
}
