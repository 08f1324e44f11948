package main

import (
	"context"
	"fmt"
	"strings"

	"github.com/spf13/cobra"

	"github.com/pingcap/report-engine/pkg/config"
	"github.com/pingcap/report-engine/pkg/datafactory"
	"github.com/pingcap/report-engine/pkg/logutil"
	"github.com/pingcap/report-engine/pkg/resource"
	"github.com/pingcap/report-engine/pkg/table"
)

type rootOptions struct {
	configFile      string
	dataSourcesFile string
	logLevel        string
	logFile         string
}

// newRootCmd creates the reportctl root command
func newRootCmd() *cobra.Command {
	opts := &rootOptions{}
	cmd := &cobra.Command{
		Use:   "reportctl",
		Short: "Run report queries and process reports from the command line",
		Long: `reportctl works with the data sources configured for the report engine.

It runs named or free-form queries, lists the configured data sources,
validates parameter values against a parameter sheet and prints processing
summaries of simple tabular reports.`,
		SilenceUsage: true,
		PersistentPreRunE: func(cmd *cobra.Command, args []string) error {
			return logutil.Init(opts.logLevel, opts.logFile)
		},
	}

	cmd.PersistentFlags().StringVar(&opts.configFile, "config", "", "Path to the engine configuration file (default: $REPORT_ENGINE_CONFIG, ~/.report-engine/config.toml or ./report-engine.toml)")
	cmd.PersistentFlags().StringVar(&opts.dataSourcesFile, "datasources", "datasources.yaml", "Path to the data sources file")
	cmd.PersistentFlags().StringVar(&opts.logLevel, "log-level", "warn", "Log level (debug, info, warn, error)")
	cmd.PersistentFlags().StringVar(&opts.logFile, "log-file", "", "Also write logs to this file")

	cmd.AddCommand(newQueryCmd(opts))
	cmd.AddCommand(newDataSourcesCmd(opts))
	cmd.AddCommand(newParamsCmd(opts))
	cmd.AddCommand(newProcessCmd(opts))

	return cmd
}

func (o *rootOptions) loadConfig() (*config.Properties, error) {
	if o.configFile != "" {
		return config.Load(o.configFile)
	}
	return config.Default()
}

// catalog is an initialized factory over every configured data source
type catalog struct {
	sources *config.DataSources
	factory datafactory.DataFactory
	cfg     *config.Properties
	dfc     *datafactory.FactoryContext
}

func (o *rootOptions) loadCatalog() (*config.DataSources, *config.Properties, error) {
	cfg, err := o.loadConfig()
	if err != nil {
		return nil, nil, err
	}
	ds, err := config.LoadDataSources(o.dataSourcesFile)
	if err != nil {
		return nil, nil, err
	}
	return ds, cfg, nil
}

func (o *rootOptions) openCatalog(ctx context.Context) (*catalog, error) {
	ds, cfg, err := o.loadCatalog()
	if err != nil {
		return nil, err
	}
	f, err := datafactory.CatalogFactory(ds)
	if err != nil {
		return nil, err
	}
	c := &catalog{sources: ds, factory: f, cfg: cfg, dfc: sourceContext(ds, cfg)}
	if err := f.Initialize(ctx, c.dfc); err != nil {
		f.Close()
		return nil, fmt.Errorf("failed to initialize data sources: %w", err)
	}
	return c, nil
}

// sourceContext roots resource lookups at the directory of the catalog
func sourceContext(ds *config.DataSources, cfg *config.Properties) *datafactory.FactoryContext {
	return &datafactory.FactoryContext{
		Config:    cfg,
		Resources: resource.NewFileManager(ds.BaseDir),
		Log:       logutil.Log.WithField("base_dir", ds.BaseDir),
	}
}

func (c *catalog) Close() {
	if err := c.factory.Close(); err != nil {
		logutil.Log.WithError(err).Warn("failed to close data sources")
	}
}

// parseAssignments parses key=value arguments into a data row
func parseAssignments(args []string) (*table.StaticDataRow, error) {
	values := make(map[string]any, len(args))
	for _, arg := range args {
		key, value, ok := strings.Cut(arg, "=")
		key = strings.TrimSpace(key)
		if !ok || key == "" {
			return nil, fmt.Errorf("invalid parameter %q, expected key=value", arg)
		}
		if prev, dup := values[key]; dup {
			// repeated keys build a multi-value parameter
			switch p := prev.(type) {
			case []any:
				values[key] = append(p, value)
			default:
				values[key] = []any{p, value}
			}
			continue
		}
		values[key] = value
	}
	return table.NewStaticDataRow(values), nil
}
