package main

import (
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"

	"github.com/spf13/cobra"

	"github.com/hazyhaar/geotree/pkg/importer"
)

func newSourcesCmd(a *app) *cobra.Command {
	cmd := &cobra.Command{
		Use:   "sources",
		Short: "Manage import source URLs",
	}
	cmd.AddCommand(&cobra.Command{
		Use:   "list",
		Short: "List registered sources and their last check",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			sdb, err := seededSources(a)
			if err != nil {
				return err
			}
			defer sdb.Close()
			return printSources(cmd.OutOrStdout(), sdb)
		},
	})
	cmd.AddCommand(&cobra.Command{
		Use:   "set-url <adapter-id> <url>",
		Short: "Point a source at a new URL or local file",
		Args:  cobra.ExactArgs(2),
		RunE: func(cmd *cobra.Command, args []string) error {
			sdb, err := seededSources(a)
			if err != nil {
				return err
			}
			defer sdb.Close()
			if err := sdb.SetURL(args[0], args[1]); err != nil {
				return withCode(exitUsage, err)
			}
			fmt.Fprintf(cmd.OutOrStdout(), "%s -> %s\n", args[0], args[1])
			return nil
		},
	})
	cmd.AddCommand(&cobra.Command{
		Use:   "check",
		Short: "Check that every source URL is reachable",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			sdb, err := seededSources(a)
			if err != nil {
				return err
			}
			defer sdb.Close()
			return runCheck(cmd.Context(), cmd.OutOrStdout(), sdb, a.logger)
		},
	})
	return cmd
}

func seededSources(a *app) (*importer.SourceDB, error) {
	sdb, err := a.openSources()
	if err != nil {
		return nil, err
	}
	if err := sdb.Seed(importer.All()); err != nil {
		sdb.Close()
		return nil, withCode(exitStore, err)
	}
	return sdb, nil
}

func runCheck(ctx context.Context, out io.Writer, sdb *importer.SourceDB, logger *slog.Logger) error {
	results := importer.NewChecker(sdb, logger, 0).CheckAll(ctx)
	failed := 0
	for _, r := range results {
		state := "ok"
		if !r.OK() {
			state = "FAILED"
			failed++
		}
		fmt.Fprintf(out, "  %-22s  %-6s  %3d  %s", r.AdapterID, state, r.Status, r.URL)
		if r.Err != "" {
			fmt.Fprintf(out, "  (%s)", r.Err)
		}
		fmt.Fprintln(out)
	}
	if failed > 0 {
		return withCode(exitFailed, errors.New("some sources are unreachable"))
	}
	return nil
}

func printSources(out io.Writer, sdb *importer.SourceDB) error {
	sources, err := sdb.ListSources()
	if err != nil {
		return withCode(exitStore, err)
	}
	fmt.Fprintln(out, "Available sources:")
	fmt.Fprintln(out)
	for _, src := range sources {
		status := ""
		if src.LastStatus != nil {
			status = fmt.Sprintf("  [%d]", *src.LastStatus)
		}
		url := src.SourceURL
		if url == "" {
			url = "(built in)"
		}
		fmt.Fprintf(out, "  %-22s  %-9s  %s  (%s)%s\n", src.AdapterID, src.Kind, src.Description, url, status)
	}
	return nil
}
