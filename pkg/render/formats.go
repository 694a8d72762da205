package render

import (
	"fmt"
	"path/filepath"
	"sort"
	"strings"
)

// Format describes a template-driven output format.
type Format struct {
	Name string

	// Ext is appended to the topology name to form the primary file name.
	Ext string

	// StartupConfigs is set for formats that reference device startup
	// configuration files on disk. Other formats receive the config text
	// in the node context only.
	StartupConfigs bool

	// EmbeddedHint is set for formats whose rendered document is YAML (or
	// JSON) and may carry an x-nrx.message next-step hint.
	EmbeddedHint bool

	// Hint returns the static next-step hint for file written under dir.
	Hint func(dir, file, name string) string
}

var formats = map[string]Format{
	"clab": {
		Name:           "clab",
		Ext:            ".clab.yaml",
		StartupConfigs: true,
		EmbeddedHint:   true,
		Hint: func(dir, file, _ string) string {
			return inDir(dir, "containerlab deploy -t "+file)
		},
	},
	"cml": {
		Name:         "cml",
		Ext:          ".cml.yaml",
		EmbeddedHint: true,
		Hint: func(dir, file, _ string) string {
			return fmt.Sprintf("import %s into Cisco Modeling Labs", filepath.Join(dir, file))
		},
	},
	"graphite": {
		Name:         "graphite",
		Ext:          ".graphite.json",
		EmbeddedHint: true,
		Hint: func(dir, file, _ string) string {
			return fmt.Sprintf("open %s with Graphite", filepath.Join(dir, file))
		},
	},
	"d2": {
		Name: "d2",
		Ext:  ".d2",
		Hint: func(dir, file, name string) string {
			return inDir(dir, fmt.Sprintf("d2 %s %s.svg", file, name))
		},
	},
}

// inDir prefixes cmd with a change to dir unless dir is the current one.
func inDir(dir, cmd string) string {
	if dir == "" || filepath.Clean(dir) == "." {
		return cmd
	}
	return fmt.Sprintf("cd %s && %s", dir, cmd)
}

// LookupFormat returns the template-driven format named name.
func LookupFormat(name string) (Format, error) {
	f, ok := formats[strings.ToLower(name)]
	if !ok {
		return Format{}, fmt.Errorf("unsupported output format %q, expected one of %s",
			name, strings.Join(FormatNames(), ", "))
	}
	return f, nil
}

// IsFormat reports whether name is a template-driven format.
func IsFormat(name string) bool {
	_, ok := formats[strings.ToLower(name)]
	return ok
}

// FormatNames returns the template-driven format names, sorted.
func FormatNames() []string {
	names := make([]string, 0, len(formats))
	for n := range formats {
		names = append(names, n)
	}
	sort.Strings(names)
	return names
}
