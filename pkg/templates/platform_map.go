package templates

import (
	"errors"
	"fmt"

	"gopkg.in/yaml.v3"
)

// PlatformMapFile is looked up at the root of the search path.
const PlatformMapFile = "platform_map.yaml"

// PlatformMap maps platform slugs to per-format kinds, for example
// eos -> ceos for clab.
type PlatformMap struct {
	Type      string                   `yaml:"type"`
	Version   string                   `yaml:"version"`
	Platforms map[string]PlatformKinds `yaml:"platforms"`
}

// PlatformKinds holds the kind a platform maps to, keyed by output format.
type PlatformKinds struct {
	Kinds map[string]string `yaml:"kinds"`
}

// Kind returns the kind declared for platform under format.
func (m *PlatformMap) Kind(platform, format string) (string, bool) {
	if m == nil {
		return "", false
	}
	p, ok := m.Platforms[platform]
	if !ok {
		return "", false
	}
	k, ok := p.Kinds[format]
	if !ok || k == "" {
		return "", false
	}
	return k, true
}

// ParsePlatformMap decodes a platform map document.
func ParsePlatformMap(data []byte) (*PlatformMap, error) {
	var m PlatformMap
	if err := yaml.Unmarshal(data, &m); err != nil {
		return nil, fmt.Errorf("parsing %s: %w", PlatformMapFile, err)
	}
	if m.Type != "" && m.Type != "platform_map" {
		return nil, fmt.Errorf("parsing %s: unexpected type %q", PlatformMapFile, m.Type)
	}
	if m.Platforms == nil {
		m.Platforms = make(map[string]PlatformKinds)
	}
	return &m, nil
}

// LoadPlatformMap reads the first platform map on the engine's search path.
// A search path without one yields an empty map.
func LoadPlatformMap(e *Engine) (*PlatformMap, error) {
	data, _, err := e.ReadFile(PlatformMapFile)
	if err != nil {
		if errors.Is(err, ErrTemplateNotFound) {
			return &PlatformMap{Platforms: make(map[string]PlatformKinds)}, nil
		}
		return nil, err
	}
	return ParsePlatformMap(data)
}
