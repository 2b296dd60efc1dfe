package cli

import (
	"errors"
	"fmt"
	"path/filepath"
	"sort"

	"github.com/spf13/cobra"

	"github.com/mappergraph/crosswalk/internal/exporter"
	"github.com/mappergraph/crosswalk/internal/resolver"
	"github.com/mappergraph/crosswalk/internal/store"
)

// EnhanceOptions holds flags for the enhance command.
type EnhanceOptions struct {
	*RootOptions
	Dir string
}

// NewEnhanceCommand creates the enhance command.
func NewEnhanceCommand(rootOpts *RootOptions) *cobra.Command {
	opts := &EnhanceOptions{RootOptions: rootOpts}

	cmd := &cobra.Command{
		Use:   "enhance [files...]",
		Short: "Annotate mapping workbooks with resolved element text",
		Long: `Insert source_text and dest_text columns into relationship workbooks,
resolved from the graph database by (document, element) identifier.

With file arguments, enhances exactly those workbooks. Without arguments,
enhances every .xlsx file in the configured mappings directory, skipping
files that are themselves enhanced outputs. The input file is never
modified; output goes to a timestamped sibling.`,
		SilenceUsage:  true,
		SilenceErrors: true,
		RunE: func(cmd *cobra.Command, args []string) error {
			return runEnhance(opts, args, cmd)
		},
	}

	cmd.Flags().StringVar(&opts.Dir, "dir", "", "directory of mapping workbooks (default from MAPPINGS_DIR)")

	return cmd
}

func runEnhance(opts *EnhanceOptions, args []string, cmd *cobra.Command) error {
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

	// Enhancing against a structurally broken database would mark every
	// endpoint unresolved; fail the whole run before touching any file.
	if err := st.ValidateStructure(ctx); err != nil {
		var structural *store.StructuralError
		if errors.As(err, &structural) {
			return fmt.Errorf("cannot enhance: %w", structural)
		}
		return err
	}

	enh := exporter.NewEnhancer(resolver.New(st, resolver.NewCache()), nil, nil)

	var results []exporter.EnhanceResult
	if len(args) > 0 {
		for _, path := range args {
			result, err := enh.EnhanceFile(ctx, path)
			if err != nil {
				return err
			}
			results = append(results, result)
		}
	} else {
		dir := opts.Dir
		if dir == "" {
			dir = cfg.Import.MappingsDir
		}
		results, err = enh.EnhanceDir(ctx, dir)
		if err != nil {
			return err
		}
	}

	if len(results) == 0 {
		fmt.Fprintln(cmd.OutOrStdout(), "No files enhanced.")
		return nil
	}

	for _, r := range results {
		printEnhanceSummary(cmd, r)
	}
	return nil
}

func printEnhanceSummary(cmd *cobra.Command, r exporter.EnhanceResult) {
	out := cmd.OutOrStdout()

	fmt.Fprintf(out, "%s -> %s\n", filepath.Base(r.Input), filepath.Base(r.Output))
	fmt.Fprintf(out, "  rows: %d", r.Summary.Rows)
	if r.Summary.UnresolvedEndpoints > 0 {
		fmt.Fprintf(out, " (%d unresolved endpoint(s))", r.Summary.UnresolvedEndpoints)
	}
	fmt.Fprintln(out)

	for _, key := range sortedKeys(r.Summary.ByType) {
		fmt.Fprintf(out, "  type %-24s %d\n", key, r.Summary.ByType[key])
	}
	for _, key := range sortedKeys(r.Summary.ByDocumentPair) {
		fmt.Fprintf(out, "  pair %-24s %d\n", key, r.Summary.ByDocumentPair[key])
	}
}

func sortedKeys(m map[string]int) []string {
	keys := make([]string, 0, len(m))
	for k := range m {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	return keys
}
