package exporter

import (
	"context"
	"fmt"
	"log/slog"
	"path/filepath"
	"strings"
	"time"

	"github.com/mappergraph/crosswalk/internal/cprt"
	"github.com/mappergraph/crosswalk/internal/resolver"
	"github.com/mappergraph/crosswalk/internal/xlsx"
)

// anchorColumn is the column the two text columns are inserted after. Its
// presence is an explicit precondition, checked before any lookups run.
const anchorColumn = "dest_title"

// enhanceRequiredColumns must all be present in the relationships sheet.
var enhanceRequiredColumns = []string{"source_element", "source_document", "dest_element", "dest_document"}

// MissingColumnsError reports a relationships sheet lacking columns the
// enhance pass depends on.
type MissingColumnsError struct {
	File    string
	Columns []string
}

func (e *MissingColumnsError) Error() string {
	return fmt.Sprintf("%s: relationships sheet missing required column(s): %s",
		e.File, strings.Join(e.Columns, ", "))
}

// Summary describes one enhanced file.
type Summary struct {
	Rows                int
	ByType              map[string]int
	ByDocumentPair      map[string]int
	UnresolvedEndpoints int
}

// EnhanceResult carries the output path and summary for one input file.
type EnhanceResult struct {
	Input   string
	Output  string
	Summary Summary
}

// Enhancer annotates relationship workbooks with the full text of each
// endpoint element, resolved by identifier lookup.
type Enhancer struct {
	resolver *resolver.Resolver
	log      *slog.Logger
	now      func() time.Time
}

// NewEnhancer returns an Enhancer. now is overridable for tests; pass nil
// for time.Now.
func NewEnhancer(res *resolver.Resolver, log *slog.Logger, now func() time.Time) *Enhancer {
	if log == nil {
		log = slog.Default()
	}
	if now == nil {
		now = time.Now
	}
	return &Enhancer{resolver: res, log: log, now: now}
}

// EnhanceFile reads a relationship workbook, inserts source_text and
// dest_text columns immediately after dest_title, and writes a timestamped
// sibling file. The input is never overwritten. Endpoints that fail to
// resolve are flagged in the summary, not fatal.
func (e *Enhancer) EnhanceFile(ctx context.Context, path string) (EnhanceResult, error) {
	wb, err := xlsx.Read(path)
	if err != nil {
		return EnhanceResult{}, err
	}

	sheet, ok := wb.Sheet("relationships")
	if !ok {
		// Downloaded mapping files capitalize the sheet name.
		sheet, ok = wb.Sheet("Relationships")
	}
	if !ok {
		return EnhanceResult{}, fmt.Errorf("%s: no relationships sheet found", filepath.Base(path))
	}
	if len(sheet.Rows) == 0 {
		return EnhanceResult{}, fmt.Errorf("%s: relationships sheet is empty", filepath.Base(path))
	}

	header := make([]string, len(sheet.Rows[0]))
	colIdx := make(map[string]int, len(header))
	for i, h := range sheet.Rows[0] {
		header[i] = cprt.CleanHeader(h)
		colIdx[header[i]] = i
	}

	var missing []string
	for _, col := range enhanceRequiredColumns {
		if _, ok := colIdx[col]; !ok {
			missing = append(missing, col)
		}
	}
	anchor, hasAnchor := colIdx[anchorColumn]
	if !hasAnchor {
		missing = append(missing, anchorColumn)
	}
	if len(missing) > 0 {
		return EnhanceResult{}, &MissingColumnsError{File: filepath.Base(path), Columns: missing}
	}

	summary := Summary{
		ByType:         make(map[string]int),
		ByDocumentPair: make(map[string]int),
	}

	outRows := [][]string{insertAfter(header, anchor, "source_text", "dest_text")}
	for _, cells := range sheet.Rows[1:] {
		get := func(col string) string {
			i := colIdx[col]
			if i < len(cells) {
				return strings.TrimSpace(cells[i])
			}
			return ""
		}

		sourceDoc, sourceElem := get("source_document"), get("source_element")
		destDoc, destElem := get("dest_document"), get("dest_element")

		source, err := e.resolver.LookupElement(ctx, sourceDoc, sourceElem)
		if err != nil {
			return EnhanceResult{}, err
		}
		dest, err := e.resolver.LookupElement(ctx, destDoc, destElem)
		if err != nil {
			return EnhanceResult{}, err
		}
		if !source.Found {
			summary.UnresolvedEndpoints++
		}
		if !dest.Found {
			summary.UnresolvedEndpoints++
		}

		// Pad short rows to the header width; rows wider than the header
		// keep their extra trailing cells.
		width := len(header)
		if len(cells) > width {
			width = len(cells)
		}
		padded := make([]string, width)
		copy(padded, cells)
		outRows = append(outRows, insertAfter(padded, anchor, source.Text, dest.Text))

		summary.Rows++
		if t, ok := colIdx["relationship_type"]; ok && t < len(cells) {
			summary.ByType[cells[t]]++
		}
		summary.ByDocumentPair[sourceDoc+" -> "+destDoc]++
	}

	stem := strings.TrimSuffix(filepath.Base(path), filepath.Ext(path))
	timestamp := e.now().Format("20060102_150405")
	output := filepath.Join(filepath.Dir(path),
		fmt.Sprintf("%s_enhanced_%s.xlsx", stem, timestamp))

	if err := xlsx.Write(output, []xlsx.Sheet{{Name: sheet.Name, Rows: outRows}}); err != nil {
		return EnhanceResult{}, err
	}

	e.log.Info("enhanced mapping file",
		"input", filepath.Base(path),
		"output", filepath.Base(output),
		"rows", summary.Rows,
		"unresolved_endpoints", summary.UnresolvedEndpoints,
	)

	return EnhanceResult{Input: path, Output: output, Summary: summary}, nil
}

// EnhanceDir enhances every workbook in dir that is not itself an enhanced
// output. Per-file failures are logged and the batch continues.
func (e *Enhancer) EnhanceDir(ctx context.Context, dir string) ([]EnhanceResult, error) {
	paths, err := filepath.Glob(filepath.Join(dir, "*.xlsx"))
	if err != nil {
		return nil, fmt.Errorf("scan %s: %w", dir, err)
	}

	var results []EnhanceResult
	for _, path := range paths {
		if strings.Contains(filepath.Base(path), "_enhanced_") {
			continue
		}
		result, err := e.EnhanceFile(ctx, path)
		if err != nil {
			e.log.Error("enhance failed", "file", filepath.Base(path), "error", err)
			continue
		}
		results = append(results, result)
	}
	return results, nil
}

// insertAfter returns row with extras spliced in immediately after index i.
func insertAfter(row []string, i int, extras ...string) []string {
	out := make([]string, 0, len(row)+len(extras))
	out = append(out, row[:i+1]...)
	out = append(out, extras...)
	out = append(out, row[i+1:]...)
	return out
}
