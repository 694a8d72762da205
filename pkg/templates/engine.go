// Package templates loads and renders output-format templates from an
// ordered search path and resolves which template serves a platform.
//
// Templates are Go text/template files with the slim-sprig function set
// plus toYaml, which renders a single-line value as a YAML scalar, quoting
// it only when needed.
// Layout per output format F:
//
//	F/topology.tmpl
//	F/nodes/<platform-or-kind>.tmpl
//	F/interface_names/<platform-or-kind>.tmpl
//	F/interface_maps/<platform-or-kind>.tmpl
//
// A platform_map.yaml at the root of any search-path entry maps platforms
// to per-format kinds.
package templates

import (
	"bytes"
	"errors"
	"fmt"
	"io/fs"
	"os"
	"path"
	"strings"
	"text/template"

	sprig "github.com/go-task/slim-sprig/v3"
	"gopkg.in/yaml.v3"

	"github.com/netreplica/nrx/pkg/util"
)

// Ext is the file extension of every template.
const Ext = ".tmpl"

// ErrTemplateNotFound is returned by Engine.Load when no search-path entry
// holds the requested file.
var ErrTemplateNotFound = errors.New("template not found")

// SyntaxError reports a template that exists but fails to parse.
type SyntaxError struct {
	Path   string
	Source string
	Err    error
}

func (e *SyntaxError) Error() string {
	return fmt.Sprintf("template %s in %s: syntax error: %v", e.Path, e.Source, e.Err)
}

func (e *SyntaxError) Unwrap() error { return e.Err }

// RenderError reports a failure while executing a template.
type RenderError struct {
	Path string
	Err  error
}

func (e *RenderError) Error() string {
	return fmt.Sprintf("rendering template %s: %v", e.Path, e.Err)
}

func (e *RenderError) Unwrap() []error { return []error{util.ErrTemplateRender, e.Err} }

// Source is one entry of the search path.
type Source struct {
	Name string
	FS   fs.FS
}

// DirSource returns a search-path entry for a directory on disk.
func DirSource(dir string) Source {
	return Source{Name: dir, FS: os.DirFS(dir)}
}

// Engine loads templates from an ordered search path; the first entry
// holding a file wins.
type Engine struct {
	sources []Source
	funcs   template.FuncMap
}

// NewEngine creates an engine over sources, in priority order.
func NewEngine(sources ...Source) *Engine {
	funcs := sprig.TxtFuncMap()
	funcs["toYaml"] = toYAML
	return &Engine{sources: sources, funcs: funcs}
}

func toYAML(v any) (string, error) {
	out, err := yaml.Marshal(v)
	if err != nil {
		return "", err
	}
	return strings.TrimSuffix(string(out), "\n"), nil
}

// SearchPath returns the names of the search-path entries.
func (e *Engine) SearchPath() []string {
	names := make([]string, len(e.sources))
	for i, s := range e.sources {
		names[i] = s.Name
	}
	return names
}

// Template is a parsed template bound to the path it was loaded from.
type Template struct {
	Path   string
	Source string
	t      *template.Template
}

// ReadFile returns the contents of name from the first search-path entry
// holding it, and that entry's name.
func (e *Engine) ReadFile(name string) ([]byte, string, error) {
	name = path.Clean(name)
	for _, src := range e.sources {
		data, err := fs.ReadFile(src.FS, name)
		if err == nil {
			return data, src.Name, nil
		}
		if !errors.Is(err, fs.ErrNotExist) {
			return nil, "", fmt.Errorf("reading %s in %s: %w", name, src.Name, err)
		}
	}
	return nil, "", fmt.Errorf("%w: %s", ErrTemplateNotFound, name)
}

// Load finds name on the search path and parses it.
func (e *Engine) Load(name string) (*Template, error) {
	data, source, err := e.ReadFile(name)
	if err != nil {
		return nil, err
	}
	name = path.Clean(name)
	t, err := template.New(path.Base(name)).
		Funcs(e.funcs).
		Option("missingkey=error").
		Parse(string(data))
	if err != nil {
		return nil, &SyntaxError{Path: name, Source: source, Err: err}
	}
	return &Template{Path: name, Source: source, t: t}, nil
}

// Render executes the template with ctx.
func (t *Template) Render(ctx any) (string, error) {
	var buf bytes.Buffer
	if err := t.t.Execute(&buf, ctx); err != nil {
		return "", &RenderError{Path: t.Path, Err: err}
	}
	return buf.String(), nil
}
