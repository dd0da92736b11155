// Package metrics exports a finished run as a Prometheus text file.
package metrics

import (
	"fmt"
	"strconv"

	"github.com/prometheus/client_golang/prometheus"

	"github.com/skobkin/lspreport/internal/report"
	"github.com/skobkin/lspreport/internal/resolver"
	"github.com/skobkin/lspreport/internal/snapshot"
	"github.com/skobkin/lspreport/internal/version"
)

const namespace = "lspreport"

// Run is the outcome of one diagnostic run.
type Run struct {
	Targets    int
	Resolution resolver.Result
	Report     *report.Report
	Build      version.Info
}

// Registry builds a registry exposing run.
func Registry(run Run) (*prometheus.Registry, error) {
	registry := prometheus.NewRegistry()
	collectors := []prometheus.Collector{
		prometheus.NewGaugeFunc(prometheus.GaugeOpts{
			Namespace: namespace,
			Name:      "targets",
			Help:      "Number of target processes found.",
		}, func() float64 {
			return float64(run.Targets)
		}),
		prometheus.NewGaugeFunc(prometheus.GaugeOpts{
			Namespace: namespace,
			Name:      "endpoints_resolved",
			Help:      "Number of targets with a resolved debug-service endpoint.",
		}, func() float64 {
			return float64(len(run.Resolution.Endpoints))
		}),
		prometheus.NewGaugeFunc(prometheus.GaugeOpts{
			Namespace: namespace,
			Name:      "resolve_attempts",
			Help:      "Endpoint resolution attempts performed.",
		}, func() float64 {
			return float64(run.Resolution.Attempts)
		}),
		prometheus.NewGaugeFunc(prometheus.GaugeOpts{
			Namespace: namespace,
			Name:      "snapshots_collected",
			Help:      "Number of snapshots written to the report.",
		}, func() float64 {
			if run.Report == nil {
				return 0
			}
			return float64(run.Report.Len())
		}),
		prometheus.NewGaugeFunc(prometheus.GaugeOpts{
			Namespace:   namespace,
			Name:        "build_info",
			Help:        "Build metadata of the reporting tool.",
			ConstLabels: prometheus.Labels{"version": run.Build.Version, "commit": run.Build.Commit},
		}, func() float64 {
			return 1
		}),
	}

	if run.Report != nil {
		collectors = append(collectors, newSnapshotCollector(run.Report))
	}

	for _, collector := range collectors {
		if err := registry.Register(collector); err != nil {
			return nil, fmt.Errorf("register collector: %w", err)
		}
	}
	return registry, nil
}

// WriteTextfile writes run to path in the text exposition format.
func WriteTextfile(path string, run Run) error {
	registry, err := Registry(run)
	if err != nil {
		return err
	}
	if err := prometheus.WriteToTextfile(path, registry); err != nil {
		return fmt.Errorf("write metrics %s: %w", path, err)
	}
	return nil
}

type snapshotCollector struct {
	report   *report.Report
	process  *prometheus.Desc
	isolates []isolateMetric
}

type isolateMetric struct {
	desc    *prometheus.Desc
	extract func(iso snapshot.Isolate) float64
}

func newSnapshotCollector(rep *report.Report) *snapshotCollector {
	desc := func(name, help string) *prometheus.Desc {
		return prometheus.NewDesc(
			prometheus.BuildFQName(namespace, "isolate", name),
			help,
			[]string{"pid", "isolate", "isolate_name"},
			nil,
		)
	}

	return &snapshotCollector{
		report: rep,
		process: prometheus.NewDesc(
			prometheus.BuildFQName(namespace, "process", "memory_bytes"),
			"Total process memory reported by the runtime.",
			[]string{"pid"},
			nil,
		),
		isolates: []isolateMetric{
			{
				desc:    desc("heap_usage_bytes", "Heap bytes in use by the isolate."),
				extract: func(iso snapshot.Isolate) float64 { return float64(iso.MemoryUsage.HeapUsage) },
			},
			{
				desc:    desc("heap_capacity_bytes", "Heap capacity of the isolate in bytes."),
				extract: func(iso snapshot.Isolate) float64 { return float64(iso.MemoryUsage.HeapCapacity) },
			},
			{
				desc:    desc("external_usage_bytes", "External bytes retained by the isolate."),
				extract: func(iso snapshot.Isolate) float64 { return float64(iso.MemoryUsage.ExternalUsage) },
			},
		},
	}
}

func (c *snapshotCollector) Describe(ch chan<- *prometheus.Desc) {
	ch <- c.process
	for _, metric := range c.isolates {
		ch <- metric.desc
	}
}

func (c *snapshotCollector) Collect(ch chan<- prometheus.Metric) {
	for _, pid := range c.report.PIDs() {
		snap, ok := c.report.Snapshot(pid)
		if !ok {
			continue
		}
		pidLabel := strconv.Itoa(pid)
		if snap.ProcessMemory != nil {
			ch <- prometheus.MustNewConstMetric(c.process, prometheus.GaugeValue, float64(snap.ProcessMemory.Size), pidLabel)
		}
		for _, iso := range snap.Isolates {
			for _, metric := range c.isolates {
				ch <- prometheus.MustNewConstMetric(metric.desc, prometheus.GaugeValue, metric.extract(iso), pidLabel, iso.ID, iso.Name)
			}
		}
	}
}
