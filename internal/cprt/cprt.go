// Package cprt understands the CPRT spreadsheet interchange shape: a
// four-bucket bundle (documents, elements, relationship_types,
// relationships) plus the single-sheet baseline variant that carries only
// element rows. It classifies inbound workbooks, normalizes them into the
// canonical row shape, and renames source columns onto store field names.
package cprt

import (
	"fmt"
	"strings"
)

// Row is one normalized spreadsheet row, keyed by cleaned column header.
// Rows exist only at the spreadsheet boundary; they are converted to typed
// records immediately after normalization.
type Row map[string]string

// Get returns the first non-empty value among the named fields.
// Missing fields read as empty string, never as an error.
func (r Row) Get(fields ...string) string {
	for _, f := range fields {
		if v, ok := r[f]; ok && v != "" {
			return v
		}
	}
	return ""
}

// Bundle is the canonical four-bucket import/export shape.
type Bundle struct {
	Documents         []Row
	Elements          []Row
	RelationshipTypes []Row
	Relationships     []Row
}

// BucketNames are the sheet names recognized as CPRT entity buckets, in
// dependency order.
var BucketNames = []string{"documents", "elements", "relationship_types", "relationships"}

// bucket returns the slice for a recognized sheet name.
func (b *Bundle) bucket(name string) *[]Row {
	switch name {
	case "documents":
		return &b.Documents
	case "elements":
		return &b.Elements
	case "relationship_types":
		return &b.RelationshipTypes
	case "relationships":
		return &b.Relationships
	}
	return nil
}

// IsBundleSheet reports whether a sheet name is one of the canonical entity
// buckets. Workbooks carrying any bucket sheet are treated as canonical CPRT
// bundles without going through variant detection.
func IsBundleSheet(name string) bool {
	for _, b := range BucketNames {
		if name == b {
			return true
		}
	}
	return false
}

// CleanHeader strips embedded newlines and surrounding whitespace from a
// column header. Spreadsheet headers routinely wrap across lines.
func CleanHeader(h string) string {
	return strings.TrimSpace(strings.ReplaceAll(h, "\n", " "))
}

// FieldMap renames source spreadsheet columns onto canonical store field
// names: the key is the canonical field, the value the source column as it
// appears (cleaned) in the sheet.
type FieldMap map[string]string

// Apply maps each row through the field map. Canonical fields whose source
// column is absent default to empty string rather than failing.
func (m FieldMap) Apply(rows []Row) []Row {
	mapped := make([]Row, 0, len(rows))
	for _, row := range rows {
		out := make(Row, len(m))
		for canonical, source := range m {
			out[canonical] = row[source]
		}
		mapped = append(mapped, out)
	}
	return mapped
}

// BaselineFieldMap maps the single-sheet baseline variant's columns onto
// element fields. Only identifier, text, and type carry over; title is left
// unmapped and picks up the insert-time default. The baseline column is
// absent in that variant, so element_type resolves to empty string by
// FieldMap contract.
var BaselineFieldMap = FieldMap{
	"element_identifier": ColFocalElement,
	"text":               ColFocalElementDescription,
	"element_type":       ColBaseline,
}

// Column names that drive format detection.
const (
	ColBaseline                = "Security Control Baseline"
	ColFocalElement            = "Focal Document Element"
	ColFocalElementDescription = "Focal Document Element Description"
	ColReferenceElement        = "Reference Document Element"
)

// Variant identifies a recognized spreadsheet schema variant.
type Variant string

const (
	// VariantMultiSheet is the canonical CPRT workbook: multiple sheets,
	// baseline column present.
	VariantMultiSheet Variant = "multi-sheet"
	// VariantSingleSheet is the flat baseline mapping: one sheet, no
	// baseline column, the three core relationship columns present.
	VariantSingleSheet Variant = "single-sheet"
)

// UnrecognizedFormatError reports a workbook matching no known variant.
type UnrecognizedFormatError struct {
	SheetCount int
	Columns    []string
}

func (e *UnrecognizedFormatError) Error() string {
	return fmt.Sprintf("unrecognized spreadsheet format: %d sheet(s), columns [%s]",
		e.SheetCount, strings.Join(e.Columns, ", "))
}
