package cli

import (
	"errors"
	"fmt"
	"path/filepath"

	"github.com/spf13/cobra"

	"github.com/mappergraph/crosswalk/internal/importer"
	"github.com/mappergraph/crosswalk/internal/store"
)

// ImportOptions holds flags for the import command.
type ImportOptions struct {
	*RootOptions
	Dir string
}

// NewImportCommand creates the import command.
func NewImportCommand(rootOpts *RootOptions) *cobra.Command {
	opts := &ImportOptions{RootOptions: rootOpts}

	cmd := &cobra.Command{
		Use:   "import [files...]",
		Short: "Import CPRT workbooks into the graph database",
		Long: `Import spreadsheet workbooks into the relationship graph.

With file arguments, imports exactly those workbooks. Without arguments,
imports every .xlsx file in the configured import directory. Each file is
one transaction: a bad file rolls back alone and the batch continues.`,
		SilenceUsage:  true,
		SilenceErrors: true,
		RunE: func(cmd *cobra.Command, args []string) error {
			return runImport(opts, args, cmd)
		},
	}

	cmd.Flags().StringVar(&opts.Dir, "dir", "", "directory of workbooks to import (default from IMPORT_DIR)")

	return cmd
}

func runImport(opts *ImportOptions, args []string, cmd *cobra.Command) error {
	cfg, err := loadConfig(opts.RootOptions)
	if err != nil {
		return err
	}

	st, err := openStore(cfg)
	if err != nil {
		return err
	}
	defer st.Close()

	ctx := cmd.Context()

	// A structurally broken database fails the whole run before any file
	// is touched.
	if err := st.ValidateStructure(ctx); err != nil {
		var structural *store.StructuralError
		if errors.As(err, &structural) {
			return fmt.Errorf("cannot import: %w", structural)
		}
		return err
	}

	imp := importer.New(st, nil)

	var batch importer.BatchResult
	if len(args) > 0 {
		batch = imp.ImportBatch(ctx, args)
	} else {
		dir := opts.Dir
		if dir == "" {
			dir = cfg.Import.Dir
		}
		batch, err = imp.ImportDir(ctx, dir)
		if err != nil {
			return err
		}
	}

	printBatchSummary(cmd, batch)

	if failed := batch.Failed(); len(failed) > 0 {
		return fmt.Errorf("%d of %d file(s) failed", len(failed), len(batch.Files))
	}
	return nil
}

func printBatchSummary(cmd *cobra.Command, batch importer.BatchResult) {
	out := cmd.OutOrStdout()

	for _, f := range batch.Files {
		name := filepath.Base(f.File)
		if f.Err != nil {
			fmt.Fprintf(out, "FAILED  %s: %v\n", name, f.Err)
			continue
		}
		fmt.Fprintf(out, "ok      %s (%s): %d documents, %d elements, %d types, %d relationships",
			name, f.Variant,
			f.Counts.Documents, f.Counts.Elements,
			f.Counts.RelationshipTypes, f.Counts.Relationships)
		if len(f.Skipped) > 0 {
			fmt.Fprintf(out, ", %d skipped", len(f.Skipped))
		}
		fmt.Fprintln(out)
	}

	fmt.Fprintf(out, "\nTotals: %d documents, %d elements, %d types, %d relationships\n",
		batch.Totals.Documents, batch.Totals.Elements,
		batch.Totals.RelationshipTypes, batch.Totals.Relationships)
}
