// Package output renders run progress for a terminal.
package output

import (
	"bufio"
	"bytes"
	"fmt"
	"io"
	"sort"
	"strconv"
	"strings"

	"github.com/dustin/go-humanize"
	"github.com/olekukonko/tablewriter"

	"github.com/skobkin/lspreport/internal/procscan"
	"github.com/skobkin/lspreport/internal/report"
	"github.com/skobkin/lspreport/internal/resolver"
	"github.com/skobkin/lspreport/internal/snapshot"
)

// Printer writes progress to stdout and failure details to stderr.
type Printer struct {
	out    io.Writer
	errOut io.Writer
}

// New returns a Printer. Nil writers discard output.
func New(stdout, stderr io.Writer) *Printer {
	if stdout == nil {
		stdout = io.Discard
	}
	if stderr == nil {
		stderr = io.Discard
	}
	return &Printer{out: stdout, errOut: stderr}
}

// NoTargets announces an empty run.
func (p *Printer) NoTargets(filter string) {
	fmt.Fprintf(p.out, "No processes matching %q found, nothing to do.\n", filter)
}

// Targets lists the target processes.
func (p *Printer) Targets(targets []procscan.ProcessRecord) {
	fmt.Fprintf(p.out, "Found %d target process(es):\n", len(targets))
	for _, target := range targets {
		fmt.Fprintf(p.out, "  %d  %s\n", target.PID, target.CommandLine)
	}
}

// PortOwners prints the owner pid to listening ports table.
func (p *Printer) PortOwners(ports procscan.PortOwnership) {
	owners := ports.OwnersByPID()
	if len(owners) == 0 {
		fmt.Fprintln(p.out, "No loopback listeners found.")
		return
	}

	pids := make([]int, 0, len(owners))
	for pid := range owners {
		pids = append(pids, pid)
	}
	sort.Ints(pids)

	table := newTable(p.out, "PID", "PORTS")
	for _, pid := range pids {
		portList := make([]string, 0, len(owners[pid]))
		for _, port := range owners[pid] {
			portList = append(portList, strconv.Itoa(port))
		}
		table.Append([]string{strconv.Itoa(pid), strings.Join(portList, ", ")})
	}
	table.Render()
}

// Resolution summarises endpoint discovery.
func (p *Printer) Resolution(res resolver.Result, targets []procscan.ProcessRecord) {
	fmt.Fprintf(p.out, "Endpoint resolution %s after %d attempt(s): %d of %d resolved.\n",
		res.State, res.Attempts, len(res.Endpoints), len(targets))
	for _, pid := range res.Unresolved(targets) {
		fmt.Fprintf(p.out, "  %d  no endpoint (%d signal(s) sent)\n", pid, res.Remediations[pid])
	}
}

// Collecting announces a snapshot collection.
func (p *Printer) Collecting(pid int, uri string) {
	fmt.Fprintf(p.out, "Collecting snapshot for %d from %s ...\n", pid, uri)
}

// SnapshotOK reports a collected snapshot.
func (p *Printer) SnapshotOK(snap *snapshot.Snapshot) {
	fmt.Fprintf(p.out, "  %d  OK: %d isolate(s), heap %s, process %s\n",
		snap.PID, len(snap.Isolates), formatBytes(snap.HeapUsage()), formatBytes(snap.ProcessMemoryBytes()))
}

// SnapshotFailed reports a target whose snapshot was dropped.
func (p *Printer) SnapshotFailed(pid int, err error) {
	fmt.Fprintf(p.out, "  %d  FAILED: %v\n", pid, err)
}

// Summary prints one row per collected snapshot.
func (p *Printer) Summary(rep *report.Report) {
	if rep.Len() == 0 {
		return
	}
	table := newTable(p.out, "PID", "ISOLATES", "HEAP USED", "HEAP CAPACITY", "PROCESS")
	for _, pid := range rep.PIDs() {
		snap, _ := rep.Snapshot(pid)
		var capacity int64
		for _, iso := range snap.Isolates {
			capacity += iso.MemoryUsage.HeapCapacity
		}
		table.Append([]string{
			strconv.Itoa(pid),
			strconv.Itoa(len(snap.Isolates)),
			formatBytes(snap.HeapUsage()),
			formatBytes(capacity),
			formatBytes(snap.ProcessMemoryBytes()),
		})
	}
	table.Render()
}

// ReportWritten confirms the report file.
func (p *Printer) ReportWritten(path string, snapshots int) {
	fmt.Fprintf(p.out, "Wrote %d snapshot(s) to %s\n", snapshots, path)
}

// ToolFailure dumps a failed OS tool invocation to stderr.
func (p *Printer) ToolFailure(err *procscan.ExternalToolError) {
	fmt.Fprintf(p.errOut, "command failed: %s\n", err.CommandLine())
	if err.ExitCode >= 0 {
		fmt.Fprintf(p.errOut, "exit code: %d\n", err.ExitCode)
	} else if err.Err != nil {
		fmt.Fprintf(p.errOut, "error: %v\n", err.Err)
	}
	writePrefixed(p.errOut, "stdout: ", err.Stdout)
	writePrefixed(p.errOut, "stderr: ", err.Stderr)
}

func writePrefixed(w io.Writer, prefix string, data []byte) {
	scanner := bufio.NewScanner(bytes.NewReader(data))
	for scanner.Scan() {
		line := strings.TrimRight(scanner.Text(), "\r")
		if line == "" {
			continue
		}
		fmt.Fprintf(w, "%s%s\n", prefix, line)
	}
}

func newTable(w io.Writer, header ...string) *tablewriter.Table {
	table := tablewriter.NewWriter(w)
	table.SetHeader(header)
	table.SetAutoFormatHeaders(false)
	table.SetAutoWrapText(false)
	return table
}

func formatBytes(n int64) string {
	if n <= 0 {
		return "0 B"
	}
	return humanize.Bytes(uint64(n))
}
