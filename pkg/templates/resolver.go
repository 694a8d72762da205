package templates

import (
	"errors"
	"fmt"
	"path"
	"strings"

	"github.com/sirupsen/logrus"

	"github.com/netreplica/nrx/pkg/util"
)

// Category is a template namespace within an output format.
type Category string

const (
	CategoryNodes          Category = "nodes"
	CategoryInterfaceNames Category = "interface_names"
	CategoryInterfaceMaps  Category = "interface_maps"
	CategoryTopology       Category = "topology"
)

// DefaultPlatform is the fallback key for required templates.
const DefaultPlatform = "default"

// MissingTemplateError reports a required template that no candidate key
// resolved to.
type MissingTemplateError struct {
	Category   Category
	Platform   string
	Format     string
	Tried      []string
	SearchPath []string
}

func (e *MissingTemplateError) Error() string {
	return fmt.Sprintf("missing %s template for platform %q in format %s: tried %s; search path: %s",
		e.Category, e.Platform, e.Format,
		strings.Join(e.Tried, ", "), strings.Join(e.SearchPath, ", "))
}

func (e *MissingTemplateError) Unwrap() error { return util.ErrTemplateMissing }

// Resolution is the memoized outcome of resolving (category, platform).
// Template is nil when an optional template was not found.
type Resolution struct {
	Category Category
	Platform string
	// Key is the candidate that matched: the platform, its kind, or
	// "default".
	Key      string
	Template *Template
	Tried    []string
}

// Found reports whether a template was resolved.
func (r *Resolution) Found() bool { return r.Template != nil }

// Stats counts resolver activity for one run.
type Stats struct {
	CacheHits int
	Resolved  map[Category]int
	Missed    map[Category]int
}

type cacheKey struct {
	category Category
	platform string
	required bool
}

// Resolver picks the most specific template for a platform. Candidate
// keys, tried in order: the platform itself, its kind for the active
// format, then for required templates "default" and the kind of
// "default". Results are cached for the resolver's lifetime.
type Resolver struct {
	engine    *Engine
	format    string
	platforms *PlatformMap
	log       logrus.FieldLogger

	cache map[cacheKey]*Resolution
	stats Stats
}

// NewResolver creates a resolver for one output format.
func NewResolver(engine *Engine, format string, platforms *PlatformMap, log logrus.FieldLogger) *Resolver {
	if log == nil {
		log = util.DiscardLogger()
	}
	return &Resolver{
		engine:    engine,
		format:    format,
		platforms: platforms,
		log:       log,
		cache:     make(map[cacheKey]*Resolution),
		stats: Stats{
			Resolved: make(map[Category]int),
			Missed:   make(map[Category]int),
		},
	}
}

// Format returns the output format the resolver serves.
func (r *Resolver) Format() string { return r.format }

// candidates lists the keys to try for platform, without duplicates.
func (r *Resolver) candidates(platform string, required bool) []string {
	keys := []string{platform}
	if kind, ok := r.platforms.Kind(platform, r.format); ok {
		keys = append(keys, kind)
	}
	if required && platform != DefaultPlatform {
		keys = append(keys, DefaultPlatform)
		if kind, ok := r.platforms.Kind(DefaultPlatform, r.format); ok {
			keys = append(keys, kind)
		}
	}

	seen := make(map[string]bool, len(keys))
	out := keys[:0]
	for _, k := range keys {
		if k == "" || seen[k] {
			continue
		}
		seen[k] = true
		out = append(out, k)
	}
	return out
}

// templatePath returns F/category/key.tmpl.
func (r *Resolver) templatePath(category Category, key string) string {
	return path.Join(r.format, string(category), key+Ext)
}

// Resolve returns the template for (category, platform). A required miss
// is a *MissingTemplateError; an optional miss is a Resolution without a
// template. Syntax errors are returned whether or not the template is
// required.
func (r *Resolver) Resolve(category Category, platform string, required bool) (*Resolution, error) {
	key := cacheKey{category: category, platform: platform, required: required}
	if res, ok := r.cache[key]; ok {
		r.stats.CacheHits++
		return res, nil
	}

	res := &Resolution{Category: category, Platform: platform}
	for _, k := range r.candidates(platform, required) {
		p := r.templatePath(category, k)
		res.Tried = append(res.Tried, p)
		t, err := r.engine.Load(p)
		if err != nil {
			if errors.Is(err, ErrTemplateNotFound) {
				continue
			}
			return nil, err
		}
		res.Key = k
		res.Template = t
		break
	}

	if res.Template == nil {
		if required {
			return nil, &MissingTemplateError{
				Category:   category,
				Platform:   platform,
				Format:     r.format,
				Tried:      res.Tried,
				SearchPath: r.engine.SearchPath(),
			}
		}
		r.stats.Missed[category]++
		r.log.WithFields(logrus.Fields{
			"category": category,
			"platform": platform,
		}).Debugf("no optional template found, tried %s", strings.Join(res.Tried, ", "))
	} else {
		r.stats.Resolved[category]++
		r.log.WithFields(logrus.Fields{
			"category": category,
			"platform": platform,
			"template": res.Template.Path,
			"source":   res.Template.Source,
		}).Debug("template resolved")
	}

	r.cache[key] = res
	return res, nil
}

// Topology loads the format's top-level template. It has no fallback.
func (r *Resolver) Topology() (*Template, error) {
	p := path.Join(r.format, string(CategoryTopology)+Ext)
	t, err := r.engine.Load(p)
	if err != nil {
		if errors.Is(err, ErrTemplateNotFound) {
			return nil, &MissingTemplateError{
				Category:   CategoryTopology,
				Format:     r.format,
				Tried:      []string{p},
				SearchPath: r.engine.SearchPath(),
			}
		}
		return nil, err
	}
	r.stats.Resolved[CategoryTopology]++
	return t, nil
}

// Stats returns a copy of the resolver's counters.
func (r *Resolver) Stats() Stats {
	s := Stats{
		CacheHits: r.stats.CacheHits,
		Resolved:  make(map[Category]int, len(r.stats.Resolved)),
		Missed:    make(map[Category]int, len(r.stats.Missed)),
	}
	for k, v := range r.stats.Resolved {
		s.Resolved[k] = v
	}
	for k, v := range r.stats.Missed {
		s.Missed[k] = v
	}
	return s
}
