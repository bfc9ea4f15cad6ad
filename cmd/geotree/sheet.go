package main

import (
	"errors"
	"fmt"

	"github.com/spf13/cobra"

	"github.com/hazyhaar/geotree/pkg/importer"
)

func newImportSheetCmd(a *app) *cobra.Command {
	var file, columns, sheet string

	cmd := &cobra.Command{
		Use:   "import-sheet",
		Short: "Import a spreadsheet using a YAML column definition",
		RunE: func(cmd *cobra.Command, args []string) error {
			if file == "" || columns == "" {
				return withCode(exitUsage, errors.New("--file and --columns are required"))
			}
			def, err := importer.LoadSheetDef(columns)
			if err != nil {
				return withCode(exitUsage, err)
			}
			if sheet != "" {
				def.Sheet = sheet
			}

			ctx := cmd.Context()
			st, err := openStore(ctx, a.cfg.Store)
			if err != nil {
				return err
			}
			defer st.Close()

			runner := &importer.Runner{
				Store:   st,
				WorkDir: a.cfg.WorkDir,
				Logger:  a.logger,
				Options: a.importOptions(),
				Resolve: a.resolveOptions(),
			}
			env := runner.Env()
			if err := importer.ImportSheet(ctx, env, file, def); err != nil {
				return err
			}

			sum := env.Batch.Summary()
			out := cmd.OutOrStdout()
			fmt.Fprintf(out, "[%s] processed=%d resolved=%d failed=%d skipped=%d retried=%d\n",
				file, sum.Processed, sum.Resolved, sum.Failed, sum.Skipped, sum.Retried)
			for _, e := range sum.Errors {
				fmt.Fprintf(out, "    %v\n", e)
			}
			if err := sum.Check(); err != nil {
				return err
			}
			if sum.Failed > 0 {
				return withCode(exitFailed, fmt.Errorf("%d rows failed", sum.Failed))
			}
			return nil
		},
	}

	cmd.Flags().StringVar(&file, "file", "", "workbook to import (.xlsx)")
	cmd.Flags().StringVar(&columns, "columns", "", "YAML column definition file")
	cmd.Flags().StringVar(&sheet, "sheet", "", "worksheet name (overrides the definition)")
	return cmd
}
