package main

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"strings"
	"time"

	"github.com/spf13/cobra"

	"github.com/hazyhaar/geotree/pkg/importer"
)

type importOptions struct {
	source  string
	all     bool
	input   string
	asJSON  bool
	timeout time.Duration
}

func newImportCmd(a *app) *cobra.Command {
	var opts importOptions

	cmd := &cobra.Command{
		Use:   "import",
		Short: "Import GeoNames feeds into the tree",
		Long: "Import one or more registered sources in dependency order. Without --source or --all,\n" +
			"lists the available sources.",
		RunE: func(cmd *cobra.Command, args []string) error {
			return runImport(cmd.Context(), a, cmd.OutOrStdout(), opts)
		},
	}

	cmd.Flags().StringVar(&opts.source, "source", "", "comma-separated adapter IDs to import (e.g. geonames-countries)")
	cmd.Flags().BoolVar(&opts.all, "all", false, "import all registered sources")
	cmd.Flags().StringVar(&opts.input, "input", "", "directory holding already downloaded feed files")
	cmd.Flags().BoolVar(&opts.asJSON, "json", false, "print the run report as JSON")
	cmd.Flags().DurationVar(&opts.timeout, "timeout", 0, "abort the run after this long (default from config)")
	return cmd
}

func runImport(ctx context.Context, a *app, out io.Writer, opts importOptions) error {
	if opts.all && opts.source != "" {
		return withCode(exitUsage, errors.New("--source and --all are mutually exclusive"))
	}

	sdb, err := a.openSources()
	if err != nil {
		return err
	}
	defer sdb.Close()
	if err := sdb.Seed(importer.All()); err != nil {
		return withCode(exitStore, err)
	}

	if !opts.all && opts.source == "" {
		if err := printSources(out, sdb); err != nil {
			return err
		}
		fmt.Fprintln(out)
		fmt.Fprintln(out, "Usage:")
		fmt.Fprintln(out, "  geotree import --source <id>[,<id>...] [--input <dir>]")
		fmt.Fprintln(out, "  geotree import --all [--input <dir>]")
		return nil
	}

	list := importer.All()
	if !opts.all {
		list = nil
		for _, id := range strings.Split(opts.source, ",") {
			ad, err := importer.Get(strings.TrimSpace(id))
			if err != nil {
				return withCode(exitUsage, err)
			}
			list = append(list, ad)
		}
	}

	st, err := openStore(ctx, a.cfg.Store)
	if err != nil {
		return err
	}
	defer st.Close()

	timeout := opts.timeout
	if timeout <= 0 {
		timeout = a.cfg.Timeout
	}
	if timeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, timeout)
		defer cancel()
	}

	runner := &importer.Runner{
		Store:   st,
		Sources: sdb,
		Input:   opts.input,
		WorkDir: a.cfg.WorkDir,
		Logger:  a.logger,
		Options: a.importOptions(),
		Resolve: a.resolveOptions(),
	}
	report, runErr := runner.Run(ctx, list)
	if report != nil {
		if opts.asJSON {
			enc := json.NewEncoder(out)
			enc.SetEscapeHTML(false)
			enc.SetIndent("", "  ")
			if err := enc.Encode(report); err != nil {
				return fmt.Errorf("json encode: %w", err)
			}
		} else {
			printReport(out, report)
		}
	}
	if runErr != nil {
		return runErr
	}
	if n := report.Failed(); n > 0 {
		return withCode(exitFailed, fmt.Errorf("%d records failed", n))
	}
	return nil
}

func printReport(out io.Writer, r *importer.Report) {
	for _, ar := range r.Adapters {
		s := ar.Summary
		fmt.Fprintf(out, "[%s] %s  processed=%d resolved=%d failed=%d skipped=%d retried=%d  (%s)\n",
			ar.Adapter, ar.Status, s.Processed, s.Resolved, s.Failed, s.Skipped, s.Retried,
			ar.Duration.Round(time.Millisecond))
		for _, e := range ar.Errors {
			fmt.Fprintf(out, "    %s\n", e)
		}
	}
	fmt.Fprintf(out, "nodes created=%d aliases created=%d lookups=%d hits=%d duplicates=%d\n",
		r.Stats.NodesCreated, r.Stats.AliasesCreated, r.Stats.Lookups, r.Stats.Hits, r.Stats.Duplicates)
}
