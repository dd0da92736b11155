package snapshot

import "github.com/skobkin/lspreport/internal/vmservice"

// Snapshot is the diagnostic document collected from one target.
type Snapshot struct {
	PID           int                          `json:"pid"`
	URI           string                       `json:"uri"`
	VM            VMInfo                       `json:"vm"`
	ProcessMemory *vmservice.ProcessMemoryItem `json:"processMemory,omitempty"`
	Isolates      []Isolate                    `json:"isolates"`
}

// VMInfo holds the runtime descriptor fields kept in the report.
type VMInfo struct {
	Name             string `json:"name,omitempty"`
	Version          string `json:"version,omitempty"`
	ArchitectureBits int    `json:"architectureBits"`
	HostCPU          string `json:"hostCPU"`
	TargetCPU        string `json:"targetCPU,omitempty"`
	OperatingSystem  string `json:"operatingSystem"`
	StartTime        int64  `json:"startTime"`
	PID              int    `json:"pid,omitempty"`
}

// Isolate is the memory picture of a single isolate.
type Isolate struct {
	ID                string                `json:"id"`
	IsolateGroupID    string                `json:"isolateGroupId,omitempty"`
	Name              string                `json:"name"`
	IsSystemIsolate   bool                  `json:"isSystemIsolate"`
	MemoryUsage       vmservice.MemoryUsage `json:"memoryUsage"`
	AllocationProfile []ClassAllocation     `json:"allocationProfile"`
}

// ClassAllocation is one allocation profile row.
type ClassAllocation struct {
	ClassName            string `json:"className"`
	LibraryName          string `json:"libraryName,omitempty"`
	LibraryURI           string `json:"libraryUri,omitempty"`
	BytesCurrent         int64  `json:"bytesCurrent"`
	AccumulatedSize      int64  `json:"accumulatedSize"`
	InstancesCurrent     int64  `json:"instancesCurrent"`
	InstancesAccumulated int64  `json:"instancesAccumulated"`
}

// HeapUsage sums heap usage across isolates.
func (s *Snapshot) HeapUsage() int64 {
	var total int64
	for _, iso := range s.Isolates {
		total += iso.MemoryUsage.HeapUsage
	}
	return total
}

// ProcessMemoryBytes returns the total process memory, or zero when unknown.
func (s *Snapshot) ProcessMemoryBytes() int64 {
	if s.ProcessMemory == nil {
		return 0
	}
	return s.ProcessMemory.Size
}
