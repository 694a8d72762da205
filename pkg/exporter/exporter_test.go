package exporter_test

import (
	"bytes"
	"context"
	"errors"
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/sirupsen/logrus"
	logtest "github.com/sirupsen/logrus/hooks/test"

	"github.com/netreplica/nrx/internal/testutil"
	"github.com/netreplica/nrx/pkg/config"
	"github.com/netreplica/nrx/pkg/exporter"
	"github.com/netreplica/nrx/pkg/graph"
	"github.com/netreplica/nrx/pkg/metrics"
	"github.com/netreplica/nrx/pkg/netbox"
	"github.com/netreplica/nrx/pkg/util"
)

// fakeSource stands in for the NetBox client.
type fakeSource struct {
	g      *graph.Graph
	err    error
	filter netbox.Filter
}

func (f *fakeSource) FetchGraph(_ context.Context, filter netbox.Filter) (*graph.Graph, error) {
	f.filter = filter
	return f.g, f.err
}

func writeScenarioCYJS(t *testing.T) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), "scenario.cyjs")
	f, err := os.Create(path)
	if err != nil {
		t.Fatal(err)
	}
	defer f.Close()
	if err := graph.WriteCYJS(f, testutil.ScenarioGraph(t)); err != nil {
		t.Fatal(err)
	}
	return path
}

func newConfig(t *testing.T, input, output string) *config.Config {
	t.Helper()
	cfg := config.Default()
	cfg.InputSource = input
	cfg.OutputFormat = output
	cfg.OutputDir = t.TempDir()
	cfg.TemplatesPath = nil
	return cfg
}

// ============================================================================
// Template formats
// ============================================================================

func TestRunCYJSToClab(t *testing.T) {
	cfg := newConfig(t, config.InputCYJS, "clab")
	cfg.InputFile = writeScenarioCYJS(t)
	cfg.MetricsFile = filepath.Join(t.TempDir(), "nrx.prom")

	var out bytes.Buffer
	e := &exporter.Exporter{Config: cfg, Metrics: metrics.New(), Out: &out}
	res, err := e.Run(context.Background())
	if err != nil {
		t.Fatalf("Run() error = %v", err)
	}

	topoFile := filepath.Join(cfg.OutputDir, "scenario.clab.yaml")
	mapFile := filepath.Join(cfg.OutputDir, "spine1_interface_map.json")
	wantFiles := []string{mapFile, topoFile}
	if len(res.Files) != len(wantFiles) {
		t.Fatalf("Files = %v, want %v", res.Files, wantFiles)
	}
	for i, f := range wantFiles {
		if res.Files[i] != f {
			t.Errorf("Files[%d] = %q, want %q", i, res.Files[i], f)
		}
		if _, err := os.Stat(f); err != nil {
			t.Errorf("%s not written: %v", f, err)
		}
	}
	if res.Topology == nil || len(res.Topology.Devices) != 3 {
		t.Fatalf("Topology = %+v, want 3 devices", res.Topology)
	}
	if res.RunID == "" {
		t.Error("RunID is empty")
	}

	printed := out.String()
	for _, want := range []string{
		"Created clab topology",
		"Created eos interface map",
		topoFile,
		"Next: cd " + cfg.OutputDir + " && containerlab deploy -t scenario.clab.yaml",
	} {
		if !strings.Contains(printed, want) {
			t.Errorf("output missing %q:\n%s", want, printed)
		}
	}

	prom, err := os.ReadFile(cfg.MetricsFile)
	if err != nil {
		t.Fatal(err)
	}
	for _, want := range []string{
		"nrx_devices_total 3\n",
		"nrx_links_total 2\n",
		"nrx_interfaces_total 4\n",
		`nrx_artifacts_written_total{kind="topology"} 1`,
		`nrx_template_resolutions_total{category="nodes",result="found"} 2`,
	} {
		if !strings.Contains(string(prom), want) {
			t.Errorf("metrics missing %q:\n%s", want, prom)
		}
	}
}

func TestRunTopologyNameOverride(t *testing.T) {
	cfg := newConfig(t, config.InputCYJS, "d2")
	cfg.InputFile = writeScenarioCYJS(t)
	cfg.TopologyName = "fabric"

	var out bytes.Buffer
	res, err := (&exporter.Exporter{Config: cfg, Out: &out}).Run(context.Background())
	if err != nil {
		t.Fatalf("Run() error = %v", err)
	}
	if res.Render.File != "fabric.d2" {
		t.Errorf("Render.File = %q, want %q", res.Render.File, "fabric.d2")
	}
	if !strings.Contains(out.String(), "Next: cd "+cfg.OutputDir+" && d2 fabric.d2 fabric.svg") {
		t.Errorf("output = %q", out.String())
	}
}

func TestRunHintInCurrentDir(t *testing.T) {
	cfg := newConfig(t, config.InputCYJS, "clab")
	cfg.InputFile = writeScenarioCYJS(t)
	testutil.Chdir(t, cfg.OutputDir)
	cfg.OutputDir = "."

	var out bytes.Buffer
	if _, err := (&exporter.Exporter{Config: cfg, Out: &out}).Run(context.Background()); err != nil {
		t.Fatalf("Run() error = %v", err)
	}
	if !strings.Contains(out.String(), "Next: containerlab deploy -t scenario.clab.yaml\n") {
		t.Errorf("output = %q", out.String())
	}
	if strings.Contains(out.String(), "cd ") {
		t.Errorf("hint changes directory for the current one:\n%s", out.String())
	}
}

func TestRunReportsUnlinkedDevices(t *testing.T) {
	b := testutil.NewGraphBuilder(t, "lab")
	b.Device("leaf1", "sonic", "leaf")
	b.Device("spine1", "eos", "spine")
	b.Device("oob1", "linux", "server")
	b.Cable("leaf1", "Ethernet0", "spine1", "Ethernet1")
	cfg := newConfig(t, config.InputNetBox, "d2")
	logger, hook := logtest.NewNullLogger()

	var out bytes.Buffer
	e := &exporter.Exporter{Config: cfg, Source: &fakeSource{g: b.Graph()}, Out: &out, Log: logger}
	if _, err := e.Run(context.Background()); err != nil {
		t.Fatalf("Run() error = %v", err)
	}
	if !strings.Contains(out.String(), "Devices without links") || !strings.Contains(out.String(), " oob1\n") {
		t.Errorf("output does not report oob1:\n%s", out.String())
	}
	warned := false
	for _, entry := range hook.AllEntries() {
		if entry.Level == logrus.WarnLevel && entry.Message == "devices have no links" {
			warned = true
		}
	}
	if !warned {
		t.Error("no warning logged for unlinked devices")
	}
}

func TestRunUnknownFormat(t *testing.T) {
	cfg := newConfig(t, config.InputCYJS, "visio")
	cfg.InputFile = writeScenarioCYJS(t)

	_, err := (&exporter.Exporter{Config: cfg}).Run(context.Background())
	if !errors.Is(err, util.ErrInvalidConfig) {
		t.Errorf("Run() error = %v, want ErrInvalidConfig", err)
	}
}

func TestRunUserTemplateOverride(t *testing.T) {
	dir := t.TempDir()
	if err := os.MkdirAll(filepath.Join(dir, "d2", "nodes"), 0o755); err != nil {
		t.Fatal(err)
	}
	node := []byte("{{ .Name }}: custom-{{ .Platform }}\n")
	if err := os.WriteFile(filepath.Join(dir, "d2", "nodes", "sonic.tmpl"), node, 0o644); err != nil {
		t.Fatal(err)
	}
	cfg := newConfig(t, config.InputCYJS, "d2")
	cfg.InputFile = writeScenarioCYJS(t)
	cfg.TemplatesPath = []string{dir}

	res, err := (&exporter.Exporter{Config: cfg}).Run(context.Background())
	if err != nil {
		t.Fatalf("Run() error = %v", err)
	}
	doc := res.Render.Document
	if !strings.Contains(doc, "leaf1: custom-sonic") {
		t.Errorf("user node template not used:\n%s", doc)
	}
	if strings.Contains(doc, "spine1: custom") {
		t.Errorf("eos should use the built-in default node template:\n%s", doc)
	}
}

// ============================================================================
// Graph formats
// ============================================================================

func TestRunNetBoxToCYJS(t *testing.T) {
	cfg := newConfig(t, config.InputNetBox, config.OutputCYJS)
	cfg.ExportSites = []string{"scenario"}
	cfg.ExportTags = []string{"lab"}
	cfg.ExportInterfaceTags = []string{"fabric"}
	cfg.ExportConfigs = false
	src := &fakeSource{g: testutil.ScenarioGraph(t)}

	var out bytes.Buffer
	res, err := (&exporter.Exporter{Config: cfg, Source: src, Out: &out}).Run(context.Background())
	if err != nil {
		t.Fatalf("Run() error = %v", err)
	}

	if got := src.filter.Sites; len(got) != 1 || got[0] != "scenario" {
		t.Errorf("filter.Sites = %v", got)
	}
	if got := src.filter.InterfaceTags; len(got) != 1 || got[0] != "fabric" {
		t.Errorf("filter.InterfaceTags = %v", got)
	}
	if src.filter.ExportConfigs {
		t.Error("filter.ExportConfigs = true, want false")
	}
	if len(src.filter.Roles) == 0 {
		t.Error("filter.Roles is empty, want the configured device roles")
	}

	path := filepath.Join(cfg.OutputDir, "scenario.cyjs")
	g, err := graph.LoadCYJS(path)
	if err != nil {
		t.Fatalf("LoadCYJS() error = %v", err)
	}
	if g.NodeCount() != res.Graph.NodeCount() || g.EdgeCount() != res.Graph.EdgeCount() {
		t.Errorf("round trip: %d nodes %d edges, want %d and %d",
			g.NodeCount(), g.EdgeCount(), res.Graph.NodeCount(), res.Graph.EdgeCount())
	}
	if res.Topology != nil {
		t.Error("graph output should not build a topology")
	}
	if !strings.Contains(out.String(), "Created cyjs graph") {
		t.Errorf("output = %q", out.String())
	}
}

func TestRunNetBoxToGML(t *testing.T) {
	cfg := newConfig(t, config.InputNetBox, config.OutputGML)
	src := &fakeSource{g: testutil.ScenarioGraph(t)}

	if _, err := (&exporter.Exporter{Config: cfg, Source: src}).Run(context.Background()); err != nil {
		t.Fatalf("Run() error = %v", err)
	}
	data, err := os.ReadFile(filepath.Join(cfg.OutputDir, "scenario.gml"))
	if err != nil {
		t.Fatal(err)
	}
	if !strings.HasPrefix(string(data), "graph [") {
		t.Errorf("GML output starts with %q", string(data[:min(20, len(data))]))
	}
}

func TestRunInvalidGraphName(t *testing.T) {
	b := testutil.NewGraphBuilder(t, "../escape")
	b.Device("r1", "eos", "leaf")
	cfg := newConfig(t, config.InputNetBox, config.OutputCYJS)

	_, err := (&exporter.Exporter{Config: cfg, Source: &fakeSource{g: b.Graph()}}).Run(context.Background())
	if !errors.Is(err, util.ErrInvalidName) {
		t.Errorf("Run() error = %v, want ErrInvalidName", err)
	}
}

// ============================================================================
// Failures and logging
// ============================================================================

func TestRunSourceErrorStillWritesMetrics(t *testing.T) {
	cfg := newConfig(t, config.InputNetBox, "clab")
	cfg.MetricsFile = filepath.Join(t.TempDir(), "nrx.prom")
	src := &fakeSource{err: util.ErrInventory}

	_, err := (&exporter.Exporter{Config: cfg, Source: src, Metrics: metrics.New()}).Run(context.Background())
	if !errors.Is(err, util.ErrInventory) {
		t.Fatalf("Run() error = %v, want ErrInventory", err)
	}
	data, err := os.ReadFile(cfg.MetricsFile)
	if err != nil {
		t.Fatal(err)
	}
	if !strings.Contains(string(data), "nrx_export_duration_seconds_count 1") {
		t.Errorf("metrics = %s", data)
	}
}

func TestRunMissingCYJSFile(t *testing.T) {
	cfg := newConfig(t, config.InputCYJS, "clab")
	cfg.InputFile = filepath.Join(t.TempDir(), "absent.cyjs")

	if _, err := (&exporter.Exporter{Config: cfg}).Run(context.Background()); err == nil {
		t.Error("Run() error = nil, want error")
	}
}

func TestRunLogsCarryRunID(t *testing.T) {
	logger, hook := logtest.NewNullLogger()
	logger.SetLevel(logrus.DebugLevel)
	cfg := newConfig(t, config.InputCYJS, "graphite")
	cfg.InputFile = writeScenarioCYJS(t)

	res, err := (&exporter.Exporter{Config: cfg, Log: logger}).Run(context.Background())
	if err != nil {
		t.Fatalf("Run() error = %v", err)
	}
	if len(hook.AllEntries()) == 0 {
		t.Fatal("no log entries")
	}
	for _, entry := range hook.AllEntries() {
		if entry.Data["run"] != res.RunID {
			t.Errorf("entry %q run = %v, want %s", entry.Message, entry.Data["run"], res.RunID)
		}
	}
}

// ============================================================================
// Summary
// ============================================================================

func TestWriteSummary(t *testing.T) {
	cfg := newConfig(t, config.InputCYJS, "clab")
	cfg.InputFile = writeScenarioCYJS(t)
	res, err := (&exporter.Exporter{Config: cfg}).Run(context.Background())
	if err != nil {
		t.Fatal(err)
	}

	var buf bytes.Buffer
	if err := exporter.WriteSummary(&buf, res); err != nil {
		t.Fatal(err)
	}
	lines := strings.Split(strings.TrimSpace(buf.String()), "\n")
	if len(lines) != 5 {
		t.Fatalf("summary has %d lines, want 5:\n%s", len(lines), buf.String())
	}
	if fields := strings.Fields(lines[4]); len(fields) != 6 || fields[0] != "spine1" || fields[5] != "2" {
		t.Errorf("spine1 row = %q", lines[4])
	}
}

func TestWriteSummaryGraphOnly(t *testing.T) {
	res := &exporter.Result{Graph: testutil.ScenarioGraph(t)}
	var buf bytes.Buffer
	if err := exporter.WriteSummary(&buf, res); err != nil {
		t.Fatal(err)
	}
	if !strings.Contains(buf.String(), "leaf1") || !strings.Contains(buf.String(), "-") {
		t.Errorf("summary = %q", buf.String())
	}
}
