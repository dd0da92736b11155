package vmservice

// VM is the global runtime descriptor returned by getVM.
type VM struct {
	Name             string       `json:"name"`
	Version          string       `json:"version"`
	ArchitectureBits int          `json:"architectureBits"`
	HostCPU          string       `json:"hostCPU"`
	TargetCPU        string       `json:"targetCPU"`
	OperatingSystem  string       `json:"operatingSystem"`
	PID              int          `json:"pid"`
	StartTime        int64        `json:"startTime"`
	Isolates         []IsolateRef `json:"isolates"`
	SystemIsolates   []IsolateRef `json:"systemIsolates"`
}

// IsolateRef identifies an isolate. ID may be empty when the runtime reports null.
type IsolateRef struct {
	ID              string `json:"id"`
	Number          string `json:"number"`
	Name            string `json:"name"`
	IsSystemIsolate bool   `json:"isSystemIsolate"`
	IsolateGroupID  string `json:"isolateGroupId"`
}

// ProcessMemoryUsage is the response of getProcessMemoryUsage.
type ProcessMemoryUsage struct {
	Root ProcessMemoryItem `json:"root"`
}

// ProcessMemoryItem is one node of the process memory breakdown.
type ProcessMemoryItem struct {
	Name        string              `json:"name"`
	Description string              `json:"description"`
	Size        int64               `json:"size"`
	Children    []ProcessMemoryItem `json:"children"`
}

// MemoryUsage describes heap usage of a single isolate.
type MemoryUsage struct {
	HeapUsage     int64 `json:"heapUsage"`
	HeapCapacity  int64 `json:"heapCapacity"`
	ExternalUsage int64 `json:"externalUsage"`
}

// AllocationProfile is the per-class allocation histogram of an isolate.
type AllocationProfile struct {
	Members     []ClassHeapStats `json:"members"`
	MemoryUsage MemoryUsage      `json:"memoryUsage"`
}

// ClassHeapStats holds live and accumulated allocation counters for one class.
type ClassHeapStats struct {
	Class                ClassRef `json:"class"`
	BytesCurrent         int64    `json:"bytesCurrent"`
	AccumulatedSize      int64    `json:"accumulatedSize"`
	InstancesCurrent     int64    `json:"instancesCurrent"`
	InstancesAccumulated int64    `json:"instancesAccumulated"`
}

// ClassRef identifies a class.
type ClassRef struct {
	ID      string      `json:"id"`
	Name    string      `json:"name"`
	Library *LibraryRef `json:"library,omitempty"`
}

// LibraryRef identifies a library.
type LibraryRef struct {
	ID   string `json:"id"`
	Name string `json:"name"`
	URI  string `json:"uri"`
}
