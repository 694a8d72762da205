// Package exporter runs one nrx export: read the graph from NetBox or a
// CYJS file, then either write it back out as a graph file or build the
// topology and render it through the templates of an output format.
package exporter

import (
	"bytes"
	"context"
	"fmt"
	"io"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/sirupsen/logrus"

	"github.com/netreplica/nrx/pkg/cli"
	"github.com/netreplica/nrx/pkg/config"
	"github.com/netreplica/nrx/pkg/graph"
	"github.com/netreplica/nrx/pkg/metrics"
	"github.com/netreplica/nrx/pkg/netbox"
	"github.com/netreplica/nrx/pkg/render"
	"github.com/netreplica/nrx/pkg/templates"
	"github.com/netreplica/nrx/pkg/topology"
	"github.com/netreplica/nrx/pkg/util"
)

// GraphSource fetches a graph from an inventory system.
type GraphSource interface {
	FetchGraph(ctx context.Context, f netbox.Filter) (*graph.Graph, error)
}

// Exporter holds the collaborators of a run.
type Exporter struct {
	Config  *config.Config
	Log     logrus.FieldLogger
	Metrics *metrics.Metrics
	// Out receives the "Created ..." lines and the next-step hint.
	Out io.Writer

	// Source is used for netbox input. Nil means a NetBox client built
	// from Config.
	Source GraphSource
}

// Result describes a completed run.
type Result struct {
	RunID string
	Graph *graph.Graph
	// Topology and Render are nil for graph outputs.
	Topology *topology.Topology
	Render   *render.Result
	// Files lists written paths, including the output directory.
	Files []string
}

// Run performs the export.
func (e *Exporter) Run(ctx context.Context) (*Result, error) {
	start := time.Now()
	res := &Result{RunID: uuid.NewString()}

	log := e.Log
	if log == nil {
		log = util.DiscardLogger()
	}
	log = log.WithField("run", res.RunID)
	out := e.Out
	if out == nil {
		out = io.Discard
	}

	err := e.run(ctx, res, log, out)
	e.Metrics.ObserveDuration(time.Since(start))
	if merr := e.Metrics.WriteFile(e.Config.MetricsFile); merr != nil {
		if err == nil {
			return nil, merr
		}
		log.WithError(merr).Warn("metrics not written")
	}
	if err != nil {
		return nil, err
	}
	log.WithField("elapsed", time.Since(start).Round(time.Millisecond)).Info("export complete")
	return res, nil
}

func (e *Exporter) run(ctx context.Context, res *Result, log logrus.FieldLogger, out io.Writer) error {
	cfg := e.Config
	g, err := e.loadGraph(ctx, log)
	if err != nil {
		return err
	}
	res.Graph = g
	log.WithFields(logrus.Fields{
		"graph": g.Name,
		"nodes": g.NodeCount(),
		"edges": g.EdgeCount(),
	}).Info("graph loaded")

	p := cli.NewPalette(out)
	w := render.DirWriter{Root: cfg.OutputDir}

	if cfg.IsGraphOutput() {
		file, err := e.writeGraph(g, w)
		if err != nil {
			return err
		}
		res.Files = append(res.Files, w.Path(file))
		e.Metrics.RecordArtifact("graph")
		fmt.Fprintf(out, "%s %s\n", p.Green(cli.DotPad("Created "+cfg.OutputFormat+" graph", 40)), w.Path(file))
		return nil
	}

	format, err := render.LookupFormat(cfg.OutputFormat)
	if err != nil {
		return fmt.Errorf("%w: %v", util.ErrInvalidConfig, err)
	}
	engine := templates.NewEngine(templates.SearchPath(cfg.TemplatesPath)...)
	platforms, err := templates.LoadPlatformMap(engine)
	if err != nil {
		return err
	}
	resolver := templates.NewResolver(engine, format.Name, platforms, log)
	defer e.recordResolver(resolver)

	topo, err := topology.Build(g, topology.Options{
		Levels: cfg.DeviceRoleLevels,
		Namer:  &templates.InterfaceNamer{Resolver: resolver},
		Log:    log,
	})
	if err != nil {
		return err
	}
	res.Topology = topo
	e.Metrics.RecordTopology(len(topo.Devices), len(topo.Links), topo.InterfaceCount())

	r := &render.Renderer{Format: format, Resolver: resolver, Writer: w, Log: log, Dir: cfg.OutputDir}
	rendered, err := r.Render(topo)
	if err != nil {
		return err
	}
	res.Render = rendered

	for _, a := range rendered.Artifacts {
		res.Files = append(res.Files, w.Path(a.Path))
		e.Metrics.RecordArtifact(string(a.Kind))
		fmt.Fprintf(out, "%s %s\n", p.Green(cli.DotPad(artifactLabel(format.Name, a), 40)), w.Path(a.Path))
	}
	if isolated := unlinkedDevices(topo); len(isolated) > 0 {
		log.WithField("devices", isolated).Warn("devices have no links")
		fmt.Fprintf(out, "%s %s\n", p.Yellow(cli.DotPad("Devices without links", 40)), strings.Join(isolated, ", "))
	}
	if rendered.Hint != "" {
		fmt.Fprintf(out, "%s %s\n", p.Bold("Next:"), rendered.Hint)
	}
	return nil
}

func (e *Exporter) loadGraph(ctx context.Context, log logrus.FieldLogger) (*graph.Graph, error) {
	cfg := e.Config
	switch cfg.InputSource {
	case config.InputCYJS:
		g, err := graph.LoadCYJS(cfg.InputFile)
		if err != nil {
			return nil, err
		}
		if cfg.TopologyName != "" {
			g.Name = cfg.TopologyName
		}
		return g, nil
	case config.InputNetBox:
		src := e.Source
		if src == nil {
			c, err := netbox.New(netbox.Config{
				URL:                 cfg.APIURL,
				Token:               cfg.APIToken,
				Insecure:            !cfg.TLSValidate,
				Timeout:             cfg.Timeout(),
				RequestsPerSecond:   cfg.APIParams.RequestsPerSecond,
				InterfacesBlockSize: cfg.APIParams.InterfacesBlockSize,
				CablesBlockSize:     cfg.APIParams.CablesBlockSize,
			}, util.WithOperation(log, "netbox"))
			if err != nil {
				return nil, err
			}
			src = c
		}
		return src.FetchGraph(ctx, netbox.Filter{
			Sites:         cfg.ExportSites,
			Tags:          cfg.ExportTags,
			Roles:         cfg.ExportDeviceRoles,
			InterfaceTags: cfg.ExportInterfaceTags,
			ExportConfigs: cfg.ExportConfigs,
			Name:          cfg.TopologyName,
		})
	default:
		return nil, fmt.Errorf("%w: unsupported input source %q", util.ErrInvalidConfig, cfg.InputSource)
	}
}

// writeGraph writes g as <name>.cyjs or <name>.gml and returns the file name.
func (e *Exporter) writeGraph(g *graph.Graph, w render.Writer) (string, error) {
	if !util.ValidTopologyName(g.Name) {
		return "", fmt.Errorf("%w: cannot export graph named %q", util.ErrInvalidName, g.Name)
	}
	var buf bytes.Buffer
	var err error
	switch e.Config.OutputFormat {
	case config.OutputGML:
		err = graph.WriteGML(&buf, g)
	default:
		err = graph.WriteCYJS(&buf, g)
	}
	if err != nil {
		return "", err
	}
	file := g.Name + "." + e.Config.OutputFormat
	if err := w.WriteFile(file, buf.Bytes()); err != nil {
		return "", err
	}
	return file, nil
}

func (e *Exporter) recordResolver(r *templates.Resolver) {
	st := r.Stats()
	for cat, n := range st.Resolved {
		e.Metrics.RecordResolutions(string(cat), metrics.ResultFound, n)
	}
	for cat, n := range st.Missed {
		e.Metrics.RecordResolutions(string(cat), metrics.ResultMissing, n)
	}
	e.Metrics.RecordCacheHits(st.CacheHits)
}

// unlinkedDevices returns the names of devices without connected
// interfaces, in device order.
func unlinkedDevices(topo *topology.Topology) []string {
	var names []string
	for _, d := range topo.Devices {
		if len(d.Interfaces) == 0 {
			names = append(names, d.Name)
		}
	}
	return names
}

func artifactLabel(format string, a render.Artifact) string {
	switch a.Kind {
	case render.ArtifactInterfaceMap:
		return fmt.Sprintf("Created %s interface map", a.Platform)
	case render.ArtifactStartupConfig:
		return fmt.Sprintf("Created %s startup config", a.Device)
	default:
		return fmt.Sprintf("Created %s topology", format)
	}
}

// WriteSummary prints a device table for res to w.
func WriteSummary(w io.Writer, res *Result) error {
	tbl := cli.NewTable(w, "DEVICE", "PLATFORM", "ROLE", "LEVEL", "RANK", "INTERFACES")
	if res.Topology != nil {
		for _, d := range res.Topology.Devices {
			tbl.Row(d.Name, d.Platform, d.Role,
				fmt.Sprint(d.Level), fmt.Sprint(d.Rank), fmt.Sprint(len(d.Interfaces)))
		}
	} else if res.Graph != nil {
		for _, n := range res.Graph.Devices() {
			tbl.Row(n.Device.Name, n.Device.Platform, n.Device.Role, "-", "-",
				fmt.Sprint(len(res.Graph.Neighbors(n.ID))))
		}
	}
	return tbl.Flush()
}
