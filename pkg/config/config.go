// Package config loads the nrx configuration: a TOML file with upper-case
// keys, optional .env file, environment overrides, then validation.
package config

import (
	"errors"
	"fmt"
	"maps"
	"os"
	"time"

	"github.com/joho/godotenv"
	"github.com/pelletier/go-toml/v2"

	"github.com/netreplica/nrx/pkg/render"
	"github.com/netreplica/nrx/pkg/topology"
	"github.com/netreplica/nrx/pkg/util"
)

// Input sources.
const (
	InputNetBox = "netbox"
	InputCYJS   = "cyjs"
)

// Graph output formats. Template-driven formats are listed by the render
// package.
const (
	OutputCYJS = "cyjs"
	OutputGML  = "gml"
)

// DefaultDotEnv is read by LoadDotEnv when no file is named.
const DefaultDotEnv = ".env"

// APIParams tunes NetBox API access.
type APIParams struct {
	InterfacesBlockSize int     `toml:"interfaces_block_size"`
	CablesBlockSize     int     `toml:"cables_block_size"`
	RequestsPerSecond   float64 `toml:"requests_per_second"`
}

// Config is the merged configuration of one run.
type Config struct {
	APIURL      string `toml:"NB_API_URL"`
	APIToken    string `toml:"NB_API_TOKEN"`
	TLSValidate bool   `toml:"TLS_VALIDATE"`
	// APITimeout is in seconds.
	APITimeout int `toml:"API_TIMEOUT"`

	OutputFormat string `toml:"OUTPUT_FORMAT"`
	OutputDir    string `toml:"OUTPUT_DIR"`
	TopologyName string `toml:"TOPOLOGY_NAME"`

	ExportSites         []string `toml:"EXPORT_SITES"`
	ExportTags          []string `toml:"EXPORT_TAGS"`
	ExportInterfaceTags []string `toml:"EXPORT_INTERFACE_TAGS"`
	ExportDeviceRoles   []string `toml:"EXPORT_DEVICE_ROLES"`
	ExportConfigs       bool     `toml:"EXPORT_CONFIGS"`

	TemplatesPath    []string       `toml:"TEMPLATES_PATH"`
	DeviceRoleLevels map[string]int `toml:"DEVICE_ROLE_LEVELS"`
	APIParams        APIParams      `toml:"NB_API_PARAMS"`
	MetricsFile      string         `toml:"METRICS_FILE"`

	// Set from the command line only.
	InputSource string `toml:"-"`
	InputFile   string `toml:"-"`
}

// Default returns the configuration used when no file is given.
func Default() *Config {
	return &Config{
		TLSValidate:         true,
		APITimeout:          10,
		OutputFormat:        "clab",
		OutputDir:           ".",
		ExportSites:         []string{},
		ExportTags:          []string{},
		ExportInterfaceTags: []string{},
		ExportDeviceRoles:   []string{"router", "core-switch", "access-switch", "distribution-switch", "tor-switch"},
		ExportConfigs:       true,
		TemplatesPath:       []string{"."},
		DeviceRoleLevels:    maps.Clone(topology.DefaultRoleLevels),
		APIParams: APIParams{
			InterfacesBlockSize: 4,
			CablesBlockSize:     64,
			RequestsPerSecond:   10,
		},
		InputSource: InputNetBox,
	}
}

// Load reads a TOML configuration file over the defaults. An empty path
// returns the defaults.
func Load(path string) (*Config, error) {
	cfg := Default()
	if path == "" {
		return cfg, nil
	}
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("%w: unable to open configuration file %s: %v", util.ErrInvalidConfig, path, err)
	}
	if err := cfg.decode(data); err != nil {
		return nil, fmt.Errorf("%w: unable to parse configuration file %s: %v", util.ErrInvalidConfig, path, err)
	}
	return cfg, nil
}

// Parse decodes TOML configuration text over the defaults.
func Parse(data []byte) (*Config, error) {
	cfg := Default()
	if err := cfg.decode(data); err != nil {
		return nil, fmt.Errorf("%w: %v", util.ErrInvalidConfig, err)
	}
	return cfg, nil
}

func (c *Config) decode(data []byte) error {
	if err := toml.Unmarshal(data, c); err != nil {
		var de *toml.DecodeError
		if errors.As(err, &de) {
			row, col := de.Position()
			return fmt.Errorf("line %d, column %d: %v", row, col, de)
		}
		return err
	}

	var raw map[string]any
	if err := toml.Unmarshal(data, &raw); err != nil {
		return err
	}
	if _, ok := raw["EXPORT_SITES"]; ok {
		return nil
	}
	// EXPORT_SITE is the older single-site key; it may also hold a list.
	switch v := raw["EXPORT_SITE"].(type) {
	case nil:
	case string:
		if v != "" {
			c.ExportSites = []string{v}
		}
	case []any:
		sites := make([]string, 0, len(v))
		for _, s := range v {
			str, ok := s.(string)
			if !ok {
				return fmt.Errorf("EXPORT_SITE must be a string or a list of strings, got %T element", s)
			}
			sites = append(sites, str)
		}
		c.ExportSites = sites
	default:
		return fmt.Errorf("EXPORT_SITE must be a string or a list of strings, got %T", v)
	}
	return nil
}

// LoadDotEnv loads variables from dotenv files into the process
// environment without overriding variables that are already set. With no
// arguments it reads DefaultDotEnv when that file exists.
func LoadDotEnv(files ...string) error {
	if len(files) == 0 {
		if _, err := os.Stat(DefaultDotEnv); err != nil {
			return nil
		}
		files = []string{DefaultDotEnv}
	}
	if err := godotenv.Load(files...); err != nil {
		return fmt.Errorf("%w: loading environment file: %v", util.ErrInvalidConfig, err)
	}
	return nil
}

// ApplyEnv overrides the API URL and token from NB_API_URL and NB_API_TOKEN.
func (c *Config) ApplyEnv(lookup func(string) (string, bool)) {
	if lookup == nil {
		lookup = os.LookupEnv
	}
	if v, ok := lookup("NB_API_URL"); ok {
		c.APIURL = v
	}
	if v, ok := lookup("NB_API_TOKEN"); ok {
		c.APIToken = v
	}
}

// Timeout returns APITimeout as a duration.
func (c *Config) Timeout() time.Duration {
	return time.Duration(c.APITimeout) * time.Second
}

// IsGraphOutput reports whether the output is a graph file rather than a
// rendered template format.
func (c *Config) IsGraphOutput() bool {
	return c.OutputFormat == OutputCYJS || c.OutputFormat == OutputGML
}

// Validate checks the merged configuration.
func (c *Config) Validate() error {
	v := &util.ValidationBuilder{}
	if c.InputSource != InputNetBox && c.InputSource != InputCYJS {
		v.AddErrorf("input source has to be one of [%s %s], got %q", InputNetBox, InputCYJS, c.InputSource)
	}
	if !c.IsGraphOutput() && !render.IsFormat(c.OutputFormat) {
		outputs := append([]string{OutputCYJS, OutputGML}, render.FormatNames()...)
		v.AddErrorf("output format has to be one of %v, got %q", outputs, c.OutputFormat)
	}
	v.Add(c.InputSource != c.OutputFormat,
		fmt.Sprintf("input and output formats must be different, got %q", c.OutputFormat))
	v.Add(!c.IsGraphOutput() || c.InputSource == InputNetBox,
		fmt.Sprintf("only --input %s is supported for output format %q", InputNetBox, c.OutputFormat))

	switch c.InputSource {
	case InputNetBox:
		v.Add(c.APIURL != "",
			"need an API URL to connect to NetBox: use --api, NB_API_URL environment variable or key in the configuration file")
		v.Add(c.APIToken != "",
			"need an API token to connect to NetBox: use NB_API_TOKEN environment variable or key in the configuration file")
		v.Add(len(c.ExportSites) > 0 || len(c.ExportTags) > 0,
			"need a site or a tag to export: use --sites, --tags, or EXPORT_SITES / EXPORT_TAGS keys in the configuration file")
		v.Add(c.APIParams.InterfacesBlockSize > 0, "NB_API_PARAMS.interfaces_block_size must be positive")
		v.Add(c.APIParams.CablesBlockSize > 0, "NB_API_PARAMS.cables_block_size must be positive")
		v.Add(c.APIParams.RequestsPerSecond > 0, "NB_API_PARAMS.requests_per_second must be positive")
		v.Add(c.APITimeout > 0, "API_TIMEOUT must be positive")
	case InputCYJS:
		v.Add(c.InputFile != "", "provide a path to the CYJS graph using --file")
	}
	return v.Build()
}
