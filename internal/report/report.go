// Package report merges per-target snapshots into the persisted document.
package report

import (
	"encoding/json"
	"fmt"
	"os"
	"strconv"

	"github.com/Velocidex/ordereddict"

	"github.com/skobkin/lspreport/internal/snapshot"
)

// DefaultPath is the report file name, relative to the working directory.
const DefaultPath = "lsp-report.json"

// Report maps stringified target pids to snapshots in insertion order.
// Targets whose collection failed are absent.
type Report struct {
	doc       *ordereddict.Dict
	snapshots map[int]*snapshot.Snapshot
	order     []int
}

// New returns an empty report.
func New() *Report {
	return &Report{
		doc:       ordereddict.NewDict(),
		snapshots: make(map[int]*snapshot.Snapshot),
	}
}

// Add records the snapshot for pid. A nil snapshot is ignored.
func (r *Report) Add(pid int, snap *snapshot.Snapshot) {
	if snap == nil {
		return
	}
	if _, exists := r.snapshots[pid]; !exists {
		r.order = append(r.order, pid)
	}
	r.snapshots[pid] = snap
	r.doc.Set(strconv.Itoa(pid), snap)
}

// Len returns the number of collected snapshots.
func (r *Report) Len() int {
	return len(r.order)
}

// PIDs returns the collected pids in insertion order.
func (r *Report) PIDs() []int {
	return append([]int(nil), r.order...)
}

// Snapshot returns the snapshot recorded for pid.
func (r *Report) Snapshot(pid int) (*snapshot.Snapshot, bool) {
	snap, ok := r.snapshots[pid]
	return snap, ok
}

// MarshalJSON implements json.Marshaler.
func (r *Report) MarshalJSON() ([]byte, error) {
	return r.doc.MarshalJSON()
}

// Encode renders the report with two-space indentation.
func (r *Report) Encode() ([]byte, error) {
	data, err := json.MarshalIndent(r, "", "  ")
	if err != nil {
		return nil, fmt.Errorf("encode report: %w", err)
	}
	return append(data, '\n'), nil
}

// Write encodes the report to path, replacing any existing file.
func (r *Report) Write(path string) error {
	data, err := r.Encode()
	if err != nil {
		return err
	}
	if err := os.WriteFile(path, data, 0o644); err != nil {
		return fmt.Errorf("write report %s: %w", path, err)
	}
	return nil
}
