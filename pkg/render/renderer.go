// Package render turns a built topology into output-format artifacts:
// rendered node blocks, per-device side files, and the primary topology
// document.
package render

import (
	"fmt"
	"path"
	"path/filepath"
	"strings"

	"github.com/sirupsen/logrus"
	"gopkg.in/yaml.v3"

	"github.com/netreplica/nrx/pkg/templates"
	"github.com/netreplica/nrx/pkg/topology"
	"github.com/netreplica/nrx/pkg/util"
)

// ArtifactKind classifies a written file.
type ArtifactKind string

const (
	ArtifactTopology      ArtifactKind = "topology"
	ArtifactInterfaceMap  ArtifactKind = "interface_map"
	ArtifactStartupConfig ArtifactKind = "startup_config"
)

// Artifact is a file written during Render.
type Artifact struct {
	Kind ArtifactKind
	// Device is empty for the topology document.
	Device   string
	Platform string
	Path     string
}

// Result is the outcome of Render.
type Result struct {
	// File is the primary document path relative to the writer root.
	File     string
	Document string
	Hint     string
	// Artifacts lists files in the order they were written; the primary
	// document is last.
	Artifacts []Artifact
}

// Renderer drives template resolution over a topology.
type Renderer struct {
	Format   Format
	Resolver *templates.Resolver
	Writer   Writer
	Log      logrus.FieldLogger

	// Dir is the output directory used in next-step hints.
	Dir string
}

// Render renders and writes every artifact for topo. A failure aborts the
// run; side artifacts written before it stay on disk.
func (r *Renderer) Render(topo *topology.Topology) (*Result, error) {
	log := r.Log
	if log == nil {
		log = util.DiscardLogger()
	}
	if !util.ValidTopologyName(topo.Name) {
		return nil, fmt.Errorf("%w: cannot export topology named %q", util.ErrInvalidName, topo.Name)
	}

	res := &Result{File: topo.Name + r.Format.Ext}
	dir := r.Dir
	if filepath.Clean(dir) == "." {
		dir = ""
	}
	tctx := TopologyContext{
		Name:    topo.Name,
		File:    res.File,
		Dir:     dir,
		Path:    filepath.Join(dir, res.File),
		Nodes:   make([]string, 0, len(topo.Devices)),
		Links:   make([]LinkContext, 0, len(topo.Links)),
		Roles:   topo.Roles,
		Devices: make([]NodeContext, 0, len(topo.Devices)),
	}

	stems := make(map[string]string, len(topo.Devices))
	for _, d := range topo.Devices {
		nctx, text, err := r.renderNode(topo.Name, d, res, stems, log)
		if err != nil {
			return nil, err
		}
		tctx.Nodes = append(tctx.Nodes, text)
		tctx.Devices = append(tctx.Devices, nctx)
	}

	for i, l := range topo.Links {
		tctx.Links = append(tctx.Links, LinkContext{
			ID: i,
			A:  newEndpointContext(l.A),
			B:  newEndpointContext(l.B),
		})
	}

	tmpl, err := r.Resolver.Topology()
	if err != nil {
		return nil, err
	}
	doc, err := tmpl.Render(tctx)
	if err != nil {
		return nil, fmt.Errorf("rendering %s topology: %w", r.Format.Name, err)
	}
	res.Document = doc

	if err := r.Writer.WriteFile(res.File, []byte(doc)); err != nil {
		return nil, err
	}
	res.Artifacts = append(res.Artifacts, Artifact{Kind: ArtifactTopology, Path: res.File})
	res.Hint = r.hint(doc, res.File, topo.Name, log)

	log.WithFields(logrus.Fields{
		"format": r.Format.Name,
		"file":   res.File,
		"nodes":  len(tctx.Nodes),
		"links":  len(tctx.Links),
	}).Info("topology rendered")
	return res, nil
}

// renderNode resolves and renders one device, writing its side artifacts
// first so their paths can be referenced from the node block. stems maps
// the file-name stems already used by side artifacts to their device.
func (r *Renderer) renderNode(topoName string, d *topology.Device, res *Result, stems map[string]string, log logrus.FieldLogger) (NodeContext, string, error) {
	dlog := util.WithDevice(log, d.Name)
	ctx := newNodeContext(topoName, d)

	node, err := r.Resolver.Resolve(templates.CategoryNodes, d.Platform, true)
	if err != nil {
		return ctx, "", fmt.Errorf("device %s: %w", d.Name, err)
	}
	ctx.Kind = node.Key

	ifmap, err := r.Resolver.Resolve(templates.CategoryInterfaceMaps, d.Platform, false)
	if err != nil {
		return ctx, "", fmt.Errorf("device %s: %w", d.Name, err)
	}
	if ifmap.Found() {
		out, err := ifmap.Template.Render(newInterfaceMapContext(d))
		if err != nil {
			return ctx, "", fmt.Errorf("rendering %s template for platform %q: %w",
				templates.CategoryInterfaceMaps, d.Platform, err)
		}
		stem, err := claimStem(stems, d.Name)
		if err != nil {
			return ctx, "", err
		}
		name := stem + "_interface_map.json"
		if err := r.Writer.WriteFile(name, []byte(out)); err != nil {
			return ctx, "", err
		}
		ctx.InterfaceMap = name
		res.Artifacts = append(res.Artifacts, Artifact{
			Kind: ArtifactInterfaceMap, Device: d.Name, Platform: ctx.PlatformName, Path: name,
		})
		dlog.Debugf("interface map written to %s", name)
	}

	if d.Config != "" && r.Format.StartupConfigs {
		stem, err := claimStem(stems, d.Name)
		if err != nil {
			return ctx, "", err
		}
		name := path.Join(util.SanitizeFileName(topoName), stem+".cfg")
		if err := r.Writer.WriteFile(name, []byte(d.Config)); err != nil {
			return ctx, "", err
		}
		ctx.StartupConfig = name
		res.Artifacts = append(res.Artifacts, Artifact{
			Kind: ArtifactStartupConfig, Device: d.Name, Platform: ctx.PlatformName, Path: name,
		})
		dlog.Debugf("startup config written to %s", name)
	}

	text, err := node.Template.Render(ctx)
	if err != nil {
		return ctx, "", fmt.Errorf("rendering %s template for platform %q: %w",
			templates.CategoryNodes, d.Platform, err)
	}
	return ctx, strings.TrimRight(text, " \t\r\n"), nil
}

// claimStem returns the side-artifact file stem of device, failing when
// another device already writes files under the same stem.
func claimStem(stems map[string]string, device string) (string, error) {
	stem := util.SanitizeFileName(device)
	if owner, ok := stems[stem]; ok && owner != device {
		return "", fmt.Errorf("%w: devices %q and %q both write files named %q",
			util.ErrInvalidName, owner, device, stem)
	}
	stems[stem] = device
	return stem, nil
}

// hint returns the next-step message embedded in the document under
// x-nrx.message, or the format's static hint.
func (r *Renderer) hint(doc, file, name string, log logrus.FieldLogger) string {
	if r.Format.EmbeddedHint {
		var meta struct {
			NRX struct {
				Message string `yaml:"message"`
			} `yaml:"x-nrx"`
		}
		if err := yaml.Unmarshal([]byte(doc), &meta); err != nil {
			log.WithError(err).Debug("rendered document is not YAML, using static hint")
		} else if msg := strings.TrimSpace(meta.NRX.Message); msg != "" {
			return msg
		}
	}
	if r.Format.Hint == nil {
		return ""
	}
	return r.Format.Hint(r.Dir, file, name)
}
