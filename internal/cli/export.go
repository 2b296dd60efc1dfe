package cli

import (
	"fmt"
	"os"
	"strings"
	"time"

	"github.com/spf13/cobra"

	"github.com/mappergraph/crosswalk/internal/exporter"
)

// ExportOptions holds flags for the export command.
type ExportOptions struct {
	*RootOptions
	Output         string
	Format         string
	ProvenanceDocs []string
}

// NewExportCommand creates the export command.
func NewExportCommand(rootOpts *RootOptions) *cobra.Command {
	opts := &ExportOptions{RootOptions: rootOpts}

	cmd := &cobra.Command{
		Use:   "export",
		Short: "Export stored relationships to CSV or a workbook bundle",
		Long: `Export the relationship graph in human-facing identifier form.

CSV output is the flat relationship table. Excel output is the four-sheet
bundle (documents, elements, relationships, relationship_types) that can be
re-imported as-is. Use --provenance to restrict to specific mapping runs.`,
		SilenceUsage:  true,
		SilenceErrors: true,
		RunE: func(cmd *cobra.Command, args []string) error {
			return runExport(opts, cmd)
		},
	}

	cmd.Flags().StringVarP(&opts.Output, "out", "o", "", "output file (default relationships_<timestamp>.<ext>)")
	cmd.Flags().StringVar(&opts.Format, "format", "csv", "output format (csv|excel)")
	cmd.Flags().StringSliceVar(&opts.ProvenanceDocs, "provenance", nil, "restrict to these provenance document identifiers")

	return cmd
}

func runExport(opts *ExportOptions, cmd *cobra.Command) error {
	if opts.Format != "csv" && opts.Format != "excel" {
		return fmt.Errorf("invalid format %q: must be csv or excel", opts.Format)
	}

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
	exp := exporter.New(st)

	rows, err := exp.Rows(ctx, opts.ProvenanceDocs)
	if err != nil {
		return err
	}

	output := opts.Output
	if output == "" {
		ext := "csv"
		if opts.Format == "excel" {
			ext = "xlsx"
		}
		output = fmt.Sprintf("relationships_%s.%s", time.Now().Format("20060102_150405"), ext)
	}

	f, err := os.Create(output)
	if err != nil {
		return fmt.Errorf("create %s: %w", output, err)
	}
	defer f.Close()

	switch opts.Format {
	case "csv":
		err = exporter.WriteCSV(f, rows)
	default:
		err = exp.WriteWorkbook(ctx, f, rows)
	}
	if err != nil {
		return err
	}
	if err := f.Close(); err != nil {
		return fmt.Errorf("flush %s: %w", output, err)
	}

	out := cmd.OutOrStdout()
	fmt.Fprintf(out, "Exported %d relationship(s) to %s\n", len(rows), output)
	if len(opts.ProvenanceDocs) > 0 {
		fmt.Fprintf(out, "Restricted to provenance: %s\n", strings.Join(opts.ProvenanceDocs, ", "))
	}
	return nil
}
