package cprt

import (
	"sort"

	"github.com/mappergraph/crosswalk/internal/xlsx"
)

// Detect classifies a workbook as one of the known schema variants.
// The rules are deterministic and checked in order:
//
//  1. One sheet, no baseline column, all three core relationship columns
//     present -> single-sheet.
//  2. More than one sheet and the baseline column present -> multi-sheet.
//  3. Anything else -> *UnrecognizedFormatError carrying the observed sheet
//     count and column set.
func Detect(wb *xlsx.Workbook) (Variant, error) {
	columns := make(map[string]bool)
	for _, sheet := range wb.Sheets {
		for _, h := range headerRow(sheet) {
			columns[CleanHeader(h)] = true
		}
	}

	switch {
	case wb.SheetCount() == 1 &&
		!columns[ColBaseline] &&
		columns[ColFocalElement] &&
		columns[ColFocalElementDescription] &&
		columns[ColReferenceElement]:
		return VariantSingleSheet, nil

	case wb.SheetCount() > 1 && columns[ColBaseline]:
		return VariantMultiSheet, nil
	}

	observed := make([]string, 0, len(columns))
	for c := range columns {
		if c != "" {
			observed = append(observed, c)
		}
	}
	sort.Strings(observed)
	return "", &UnrecognizedFormatError{SheetCount: wb.SheetCount(), Columns: observed}
}

func headerRow(sheet xlsx.Sheet) []string {
	if len(sheet.Rows) == 0 {
		return nil
	}
	return sheet.Rows[0]
}
