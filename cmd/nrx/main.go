// nrx - network topology exporter
//
// Reads a network topology from NetBox (or a CYJS graph saved by an earlier
// run) and writes it as a graph file or as a lab topology for an emulation
// tool.
//
// Examples:
//
//	nrx -c nrx.conf -s "DM-Akron" -o clab          # NetBox site to Containerlab
//	nrx -c nrx.conf --tags lab -o cyjs              # NetBox tag to a CYJS graph
//	nrx -i cyjs -f DM-Akron.cyjs -o cml             # saved graph to Cisco Modeling Labs
//	nrx -i cyjs -f DM-Akron.cyjs -o d2 -t ./mytpl   # with a user template directory
package main

import (
	"context"
	"fmt"
	"io"
	"os"
	"os/signal"
	"syscall"

	"github.com/sirupsen/logrus"
	"github.com/spf13/cobra"

	"github.com/netreplica/nrx/pkg/cli"
	"github.com/netreplica/nrx/pkg/config"
	"github.com/netreplica/nrx/pkg/exporter"
	"github.com/netreplica/nrx/pkg/metrics"
	"github.com/netreplica/nrx/pkg/util"
)

// options are the command-line flags. Empty values leave the configuration
// file untouched.
type options struct {
	configFile string
	input      string
	output     string
	api        string
	sites      string
	tags       string
	name       string
	file       string
	templates  string
	dir        string
	insecure   bool
	debug      bool
	verbose    bool
	logJSON    bool
	summary    bool

	logger *logrus.Logger
}

func main() {
	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	if err := newRootCmd(os.Stdout, os.Stderr).ExecuteContext(ctx); err != nil {
		fmt.Fprintf(os.Stderr, "%s %v\n", cli.NewPalette(os.Stderr).Red("Error:"), err)
		stop()
		os.Exit(1)
	}
}

func newRootCmd(out, errOut io.Writer) *cobra.Command {
	opts := &options{}
	cmd := &cobra.Command{
		Use:               "nrx",
		Short:             "Network topology exporter by netreplica",
		SilenceUsage:      true,
		SilenceErrors:     true,
		CompletionOptions: cobra.CompletionOptions{HiddenDefaultCmd: true},
		Args:              cobra.NoArgs,
		Long: `nrx reads a network topology from NetBox, or from a CYJS graph file,
and exports it as a graph (cyjs, gml) or renders it with templates into a
lab topology (clab, cml, graphite, d2).

  nrx [-c nrx.conf] [-i netbox|cyjs] -o <format> [-s sites | --tags tags]`,
		PersistentPreRunE: func(cmd *cobra.Command, args []string) error {
			level := "warn"
			switch {
			case opts.debug:
				level = "debug"
			case opts.verbose:
				level = "info"
			}
			logger, err := util.NewLogger(util.LogOptions{Level: level, JSON: opts.logJSON, Output: errOut})
			if err != nil {
				return err
			}
			opts.logger = logger
			return nil
		},
		RunE: func(cmd *cobra.Command, args []string) error {
			return runExport(cmd, opts, out)
		},
	}

	f := cmd.Flags()
	f.StringVarP(&opts.configFile, "config", "c", "", "configuration file")
	f.StringVarP(&opts.input, "input", "i", config.InputNetBox, "input source: netbox | cyjs")
	f.StringVarP(&opts.output, "output", "o", "", "output format: cyjs | gml | clab | cml | graphite | d2")
	f.StringVarP(&opts.api, "api", "a", "", "NetBox API URL")
	f.StringVarP(&opts.sites, "sites", "s", "", "NetBox sites to export, comma separated")
	f.StringVar(&opts.tags, "tags", "", "NetBox tags to export, comma separated")
	f.StringVarP(&opts.name, "name", "n", "", "name of the exported topology")
	f.StringVarP(&opts.file, "file", "f", "", "file with the network graph to import")
	f.StringVarP(&opts.templates, "templates", "t", "", "directory with template files, prepended to TEMPLATES_PATH")
	f.StringVarP(&opts.dir, "dir", "D", "", "output directory")
	f.BoolVarP(&opts.insecure, "insecure", "k", false, "allow insecure server connections when using TLS")
	f.BoolVar(&opts.summary, "summary", false, "print a table of exported devices")

	pf := cmd.PersistentFlags()
	pf.BoolVarP(&opts.debug, "debug", "d", false, "enable debug output")
	pf.BoolVarP(&opts.verbose, "verbose", "v", false, "enable informational output")
	pf.BoolVar(&opts.logJSON, "log-json", false, "log in JSON format")

	cmd.AddCommand(newVersionCmd(out))
	return cmd
}

// loadConfig merges the configuration file, the environment and the flags,
// in increasing order of precedence.
func loadConfig(cmd *cobra.Command, opts *options) (*config.Config, error) {
	if err := config.LoadDotEnv(); err != nil {
		return nil, err
	}
	cfg, err := config.Load(opts.configFile)
	if err != nil {
		return nil, err
	}
	cfg.ApplyEnv(nil)

	cfg.InputSource = opts.input
	cfg.InputFile = opts.file
	if opts.output != "" {
		cfg.OutputFormat = opts.output
	}
	if opts.api != "" {
		cfg.APIURL = opts.api
	}
	if cmd.Flags().Changed("sites") {
		cfg.ExportSites = util.SplitCommaSeparated(opts.sites)
	}
	if cmd.Flags().Changed("tags") {
		cfg.ExportTags = util.SplitCommaSeparated(opts.tags)
	}
	if opts.name != "" {
		cfg.TopologyName = opts.name
	}
	if opts.insecure {
		cfg.TLSValidate = false
	}
	if opts.templates != "" {
		cfg.TemplatesPath = append([]string{opts.templates}, cfg.TemplatesPath...)
	}
	if opts.dir != "" {
		cfg.OutputDir = opts.dir
	}
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return cfg, nil
}

func runExport(cmd *cobra.Command, opts *options, out io.Writer) error {
	cfg, err := loadConfig(cmd, opts)
	if err != nil {
		return err
	}
	opts.logger.WithFields(logrus.Fields{
		"input":  cfg.InputSource,
		"output": cfg.OutputFormat,
		"config": opts.configFile,
	}).Debug("configuration loaded")

	e := &exporter.Exporter{
		Config: cfg,
		Log:    opts.logger,
		Out:    out,
	}
	if cfg.MetricsFile != "" {
		e.Metrics = metrics.New()
	}
	res, err := e.Run(cmd.Context())
	if err != nil {
		return err
	}
	if opts.summary {
		fmt.Fprintln(out)
		return exporter.WriteSummary(out, res)
	}
	return nil
}
