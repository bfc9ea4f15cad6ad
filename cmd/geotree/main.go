// Command geotree imports GeoNames feeds and spreadsheets into a
// deduplicated geographic tree and serves it over HTTP and MCP.
package main

import (
	"context"
	"fmt"
	"log/slog"
	"os"
	"os/signal"
	"syscall"

	"github.com/spf13/cobra"

	"github.com/hazyhaar/geotree/pkg/config"
	"github.com/hazyhaar/geotree/pkg/geo"
	"github.com/hazyhaar/geotree/pkg/importer"
	"github.com/hazyhaar/geotree/pkg/resolve"
)

// app carries the global flags and what PersistentPreRunE derives from them.
type app struct {
	cfgPath string
	driver  string
	dsn     string
	verbose bool

	cfg    config.Config
	logger *slog.Logger
}

func main() {
	Execute()
}

func Execute() {
	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	err := newRootCmd().ExecuteContext(ctx)
	stop()
	if err != nil {
		fmt.Fprintln(os.Stderr, err.Error())
		os.Exit(exitCode(err))
	}
}

func newRootCmd() *cobra.Command {
	a := &app{}
	cmd := &cobra.Command{
		Use:           "geotree",
		Short:         "Geographic tree importer and query server",
		SilenceUsage:  true,
		SilenceErrors: true,
		PersistentPreRunE: func(cmd *cobra.Command, args []string) error {
			return a.load()
		},
	}

	pf := cmd.PersistentFlags()
	pf.StringVar(&a.cfgPath, "config", "geotree.yaml", "path to config file")
	pf.StringVar(&a.driver, "store", "", "store driver: memory, sqlite or postgres (overrides config)")
	pf.StringVar(&a.dsn, "dsn", "", "store DSN (overrides config)")
	pf.BoolVarP(&a.verbose, "verbose", "v", false, "debug logging")

	cmd.AddCommand(newImportCmd(a))
	cmd.AddCommand(newImportSheetCmd(a))
	cmd.AddCommand(newSourcesCmd(a))
	cmd.AddCommand(newRunsCmd(a))
	cmd.AddCommand(newServeCmd(a))
	return cmd
}

func (a *app) load() error {
	level := slog.LevelInfo
	if a.verbose {
		level = slog.LevelDebug
	}
	a.logger = slog.New(slog.NewTextHandler(os.Stderr, &slog.HandlerOptions{Level: level}))

	cfg, found, err := config.Load(a.cfgPath)
	if err != nil {
		return withCode(exitUsage, err)
	}
	if !found {
		a.logger.Debug("no config file, using defaults", "path", a.cfgPath)
	}
	if a.driver != "" {
		cfg.Store.Driver = a.driver
	}
	if a.dsn != "" {
		cfg.Store.DSN = a.dsn
	}
	if err := cfg.Validate(); err != nil {
		return withCode(exitUsage, err)
	}
	a.cfg = cfg
	return nil
}

func (a *app) importOptions() importer.Options {
	return importer.Options{
		Languages:    a.cfg.Languages,
		SkipHistoric: a.cfg.SkipHistoric,
		Encoding:     a.cfg.Encoding,
	}
}

func (a *app) resolveOptions() resolve.Options {
	return resolve.Options{
		Normalize: geo.GetNormalizer(a.cfg.Normalize),
		Suffixes:  geo.NewSuffixStripper(a.cfg.Suffixes),
		Logger:    a.logger,
	}
}

func (a *app) openSources() (*importer.SourceDB, error) {
	sdb, err := importer.OpenSourceDB(a.cfg.SourcesDB)
	if err != nil {
		return nil, withCode(exitStore, err)
	}
	return sdb, nil
}
