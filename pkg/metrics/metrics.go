// Package metrics collects per-run export counters in a private Prometheus
// registry and writes them in the text exposition format, for node_exporter's
// textfile collector or CI artifacts.
//
// Metric naming follows Prometheus conventions:
//   - nrx_ prefix for all metrics
//   - _total suffix for counters
//   - _seconds suffix for durations
//
// All methods are safe on a nil *Metrics, which records nothing.
package metrics

import (
	"fmt"
	"time"

	"github.com/prometheus/client_golang/prometheus"

	"github.com/netreplica/nrx/pkg/util"
)

// Resolution results.
const (
	ResultFound   = "found"
	ResultMissing = "missing"
)

// Metrics holds the collectors of one run.
type Metrics struct {
	registry *prometheus.Registry

	devices     prometheus.Counter
	links       prometheus.Counter
	interfaces  prometheus.Counter
	resolutions *prometheus.CounterVec
	cacheHits   prometheus.Counter
	artifacts   *prometheus.CounterVec
	duration    prometheus.Histogram
}

// New creates the collectors and registers them with a fresh registry.
func New() *Metrics {
	m := &Metrics{
		registry: prometheus.NewRegistry(),
		devices: prometheus.NewCounter(prometheus.CounterOpts{
			Name: "nrx_devices_total",
			Help: "Devices in the exported topology.",
		}),
		links: prometheus.NewCounter(prometheus.CounterOpts{
			Name: "nrx_links_total",
			Help: "Links in the exported topology.",
		}),
		interfaces: prometheus.NewCounter(prometheus.CounterOpts{
			Name: "nrx_interfaces_total",
			Help: "Connected interfaces in the exported topology.",
		}),
		resolutions: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "nrx_template_resolutions_total",
			Help: "Template lookups by category and result.",
		}, []string{"category", "result"}),
		cacheHits: prometheus.NewCounter(prometheus.CounterOpts{
			Name: "nrx_template_cache_hits_total",
			Help: "Template lookups answered from the resolver cache.",
		}),
		artifacts: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "nrx_artifacts_written_total",
			Help: "Files written by kind.",
		}, []string{"kind"}),
		duration: prometheus.NewHistogram(prometheus.HistogramOpts{
			Name:    "nrx_export_duration_seconds",
			Help:    "Duration of the export in seconds.",
			Buckets: []float64{0.1, 0.5, 1, 5, 15, 30, 60, 120, 300},
		}),
	}
	m.registry.MustRegister(
		m.devices,
		m.links,
		m.interfaces,
		m.resolutions,
		m.cacheHits,
		m.artifacts,
		m.duration,
	)
	return m
}

// RecordTopology records the size of the exported topology.
func (m *Metrics) RecordTopology(devices, links, interfaces int) {
	if m == nil {
		return
	}
	m.devices.Add(float64(devices))
	m.links.Add(float64(links))
	m.interfaces.Add(float64(interfaces))
}

// RecordResolutions adds n lookups of category with the given result.
func (m *Metrics) RecordResolutions(category, result string, n int) {
	if m == nil || n == 0 {
		return
	}
	m.resolutions.WithLabelValues(category, result).Add(float64(n))
}

// RecordCacheHits adds n resolver cache hits.
func (m *Metrics) RecordCacheHits(n int) {
	if m == nil {
		return
	}
	m.cacheHits.Add(float64(n))
}

// RecordArtifact counts one written file.
func (m *Metrics) RecordArtifact(kind string) {
	if m == nil {
		return
	}
	m.artifacts.WithLabelValues(kind).Inc()
}

// ObserveDuration records the export duration.
func (m *Metrics) ObserveDuration(d time.Duration) {
	if m == nil {
		return
	}
	m.duration.Observe(d.Seconds())
}

// WriteFile writes the registry to path in the text exposition format.
func (m *Metrics) WriteFile(path string) error {
	if m == nil || path == "" {
		return nil
	}
	if err := prometheus.WriteToTextfile(path, m.registry); err != nil {
		return &util.OutputError{Path: path, Err: fmt.Errorf("writing metrics: %w", err)}
	}
	return nil
}
