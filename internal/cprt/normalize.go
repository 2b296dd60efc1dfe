package cprt

import (
	"log/slog"
	"strings"

	"github.com/mappergraph/crosswalk/internal/xlsx"
)

// Normalize reduces a workbook to a Bundle according to its detected
// variant. Unrecognized sheet names are logged and skipped, never fatal.
func Normalize(wb *xlsx.Workbook, variant Variant, log *slog.Logger) (*Bundle, error) {
	if log == nil {
		log = slog.Default()
	}

	switch variant {
	case VariantSingleSheet:
		return normalizeSingleSheet(wb, log), nil
	case VariantMultiSheet:
		return normalizeMultiSheet(wb, log), nil
	}

	v, err := Detect(wb)
	if err != nil {
		return nil, err
	}
	return Normalize(wb, v, log)
}

// normalizeMultiSheet reads every sheet named after an entity bucket into
// that bucket's rows.
func normalizeMultiSheet(wb *xlsx.Workbook, log *slog.Logger) *Bundle {
	bundle := &Bundle{}

	for _, sheet := range wb.Sheets {
		dst := bundle.bucket(sheet.Name)
		if dst == nil {
			log.Info("skipping non-CPRT sheet", "sheet", sheet.Name)
			continue
		}

		rows := sheetRows(sheet)
		*dst = rows
		log.Info("normalized sheet", "sheet", sheet.Name, "rows", len(rows))
	}

	return bundle
}

// normalizeSingleSheet maps the flat baseline sheet's rows onto element
// rows via BaselineFieldMap. The variant carries no document or
// relationship buckets.
func normalizeSingleSheet(wb *xlsx.Workbook, log *slog.Logger) *Bundle {
	sheet := wb.Sheets[0]
	rows := BaselineFieldMap.Apply(sheetRows(sheet))
	log.Info("normalized single-sheet baseline", "sheet", sheet.Name, "rows", len(rows))
	return &Bundle{Elements: rows}
}

// sheetRows converts raw cells into row records: headers cleaned, missing
// cells defaulted to empty string, fully empty rows dropped.
func sheetRows(sheet xlsx.Sheet) []Row {
	if len(sheet.Rows) < 2 {
		return nil
	}

	header := make([]string, len(sheet.Rows[0]))
	for i, h := range sheet.Rows[0] {
		header[i] = CleanHeader(h)
	}

	records := make([]Row, 0, len(sheet.Rows)-1)
	for _, cells := range sheet.Rows[1:] {
		empty := true
		for _, v := range cells {
			if strings.TrimSpace(v) != "" {
				empty = false
				break
			}
		}
		if empty {
			continue
		}

		row := make(Row, len(header))
		for i, name := range header {
			if name == "" {
				continue
			}
			if i < len(cells) {
				row[name] = strings.TrimSpace(cells[i])
			} else {
				row[name] = ""
			}
		}
		records = append(records, row)
	}

	return records
}
