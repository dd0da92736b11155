// Package snapshot collects memory diagnostics from a debug-service endpoint.
package snapshot

import (
	"context"
	"fmt"
	"io"
	"log/slog"
	"sort"

	"github.com/skobkin/lspreport/internal/vmservice"
)

// DefaultMinClassBytes drops allocation profile rows below 1 KiB.
const DefaultMinClassBytes = 1024

// excludedIsolates are infrastructure isolates that do not reflect
// application memory.
var excludedIsolates = map[string]struct{}{
	"vm-service":     {},
	"kernel-service": {},
	"dartdev":        {},
}

// Client is the subset of the debug-service protocol the collector needs.
type Client interface {
	GetVM(ctx context.Context) (vmservice.VM, error)
	GetProcessMemoryUsage(ctx context.Context) (vmservice.ProcessMemoryUsage, error)
	GetMemoryUsage(ctx context.Context, isolateID string) (vmservice.MemoryUsage, error)
	GetAllocationProfile(ctx context.Context, isolateID string) (vmservice.AllocationProfile, error)
	Close() error
}

// Dialer opens a Client for an endpoint.
type Dialer func(ctx context.Context, uri string) (Client, error)

// WebSocketDialer returns a Dialer backed by vmservice.Dial.
func WebSocketDialer(opts vmservice.DialOptions, logger *slog.Logger) Dialer {
	return func(ctx context.Context, uri string) (Client, error) {
		client, err := vmservice.Dial(ctx, uri, opts, logger)
		if err != nil {
			return nil, err
		}
		return client, nil
	}
}

// Error reports a failed collection step for one target.
type Error struct {
	PID  int
	URI  string
	Step string
	Err  error
}

func (e *Error) Error() string {
	return fmt.Sprintf("snapshot pid %d: %s: %v", e.PID, e.Step, e.Err)
}

func (e *Error) Unwrap() error {
	return e.Err
}

// Collector assembles snapshots, one connection per target.
type Collector struct {
	dial          Dialer
	minClassBytes int64
	logger        *slog.Logger
}

// NewCollector constructs a Collector.
func NewCollector(dial Dialer, minClassBytes int64, logger *slog.Logger) (*Collector, error) {
	if dial == nil {
		return nil, fmt.Errorf("dialer is required")
	}
	if minClassBytes < 0 {
		return nil, fmt.Errorf("min class bytes must be >= 0")
	}
	if logger == nil {
		logger = slog.New(slog.NewTextHandler(io.Discard, nil))
	}
	return &Collector{dial: dial, minClassBytes: minClassBytes, logger: logger}, nil
}

// Collect connects to uri and builds the snapshot for pid. Any failing step
// abandons the whole snapshot. The connection is always released.
func (c *Collector) Collect(ctx context.Context, pid int, uri string) (*Snapshot, error) {
	logger := c.logger.With("pid", pid)
	fail := func(step string, err error) error {
		return &Error{PID: pid, URI: uri, Step: step, Err: err}
	}

	client, err := c.dial(ctx, uri)
	if err != nil {
		return nil, fail("connect", err)
	}
	defer func() {
		if err := client.Close(); err != nil {
			logger.Debug("close connection", "err", err)
		}
	}()

	vm, err := client.GetVM(ctx)
	if err != nil {
		return nil, fail("get vm", err)
	}

	processMemory, err := client.GetProcessMemoryUsage(ctx)
	if err != nil {
		return nil, fail("get process memory usage", err)
	}
	root := processMemory.Root

	snap := &Snapshot{
		PID: pid,
		URI: uri,
		VM: VMInfo{
			Name:             vm.Name,
			Version:          vm.Version,
			ArchitectureBits: vm.ArchitectureBits,
			HostCPU:          vm.HostCPU,
			TargetCPU:        vm.TargetCPU,
			OperatingSystem:  vm.OperatingSystem,
			StartTime:        vm.StartTime,
			PID:              vm.PID,
		},
		ProcessMemory: &root,
		Isolates:      make([]Isolate, 0),
	}

	for _, ref := range Isolates(vm) {
		if ref.ID == "" {
			logger.Debug("skipping isolate without id", "name", ref.Name)
			continue
		}

		usage, err := client.GetMemoryUsage(ctx, ref.ID)
		if err != nil {
			return nil, fail("get memory usage "+ref.ID, err)
		}
		profile, err := client.GetAllocationProfile(ctx, ref.ID)
		if err != nil {
			return nil, fail("get allocation profile "+ref.ID, err)
		}

		snap.Isolates = append(snap.Isolates, Isolate{
			ID:                ref.ID,
			IsolateGroupID:    ref.IsolateGroupID,
			Name:              ref.Name,
			IsSystemIsolate:   ref.IsSystemIsolate,
			MemoryUsage:       usage,
			AllocationProfile: FilterAllocations(profile.Members, c.minClassBytes),
		})
		logger.Debug("isolate collected", "isolate", ref.Name, "heap_usage", usage.HeapUsage)
	}

	return snap, nil
}

// Isolates merges the regular and system isolate lists, dropping
// infrastructure isolates by name.
func Isolates(vm vmservice.VM) []vmservice.IsolateRef {
	all := make([]vmservice.IsolateRef, 0, len(vm.Isolates)+len(vm.SystemIsolates))
	all = append(all, vm.Isolates...)
	all = append(all, vm.SystemIsolates...)

	out := all[:0]
	for _, ref := range all {
		if _, skip := excludedIsolates[ref.Name]; skip {
			continue
		}
		out = append(out, ref)
	}
	return out
}

// FilterAllocations keeps rows with at least minBytes live bytes, sorted by
// live bytes, largest first.
func FilterAllocations(members []vmservice.ClassHeapStats, minBytes int64) []ClassAllocation {
	out := make([]ClassAllocation, 0, len(members))
	for _, m := range members {
		if m.BytesCurrent < minBytes {
			continue
		}
		row := ClassAllocation{
			ClassName:            m.Class.Name,
			BytesCurrent:         m.BytesCurrent,
			AccumulatedSize:      m.AccumulatedSize,
			InstancesCurrent:     m.InstancesCurrent,
			InstancesAccumulated: m.InstancesAccumulated,
		}
		if m.Class.Library != nil {
			row.LibraryName = m.Class.Library.Name
			row.LibraryURI = m.Class.Library.URI
		}
		out = append(out, row)
	}
	sort.SliceStable(out, func(i, j int) bool {
		return out[i].BytesCurrent > out[j].BytesCurrent
	})
	return out
}
