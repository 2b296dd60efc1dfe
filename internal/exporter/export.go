// Package exporter implements the read path: joining stored relationships
// back to human-facing identifiers and serializing them as a flat CSV table
// or a four-sheet CPRT bundle, plus the enhance pass that annotates existing
// mapping workbooks with element text.
package exporter

import (
	"context"
	"encoding/csv"
	"errors"
	"fmt"
	"io"

	"github.com/mappergraph/crosswalk/internal/store"
	"github.com/mappergraph/crosswalk/internal/xlsx"
)

// ErrNoRelationships reports an export request that matched nothing. It is
// a reportable empty-result condition, not a crash.
var ErrNoRelationships = errors.New("no relationships found")

// RelationshipHeader is the canonical relationship column order, shared by
// the CSV export, the bundle's relationships sheet, and the enhance input.
var RelationshipHeader = []string{
	"source_element",
	"source_document",
	"source_title",
	"dest_element",
	"dest_document",
	"dest_title",
	"relationship_type",
	"provenance_document",
	"comment",
}

// Exporter serializes stored relationships.
type Exporter struct {
	store *store.Store
}

// New returns an Exporter over the given store.
func New(s *store.Store) *Exporter {
	return &Exporter{store: s}
}

// Rows returns the canonical relationship rows, optionally filtered by
// provenance-document identifiers. Returns ErrNoRelationships when the
// filter matches nothing.
func (e *Exporter) Rows(ctx context.Context, provenanceDocs []string) ([]store.RelationshipRow, error) {
	rows, err := e.store.ExportRelationships(ctx, provenanceDocs)
	if err != nil {
		return nil, err
	}
	if len(rows) == 0 {
		return nil, ErrNoRelationships
	}
	return rows, nil
}

// WriteCSV serializes rows as the flat relationship table. Internal
// surrogate ids never appear in the output.
func WriteCSV(w io.Writer, rows []store.RelationshipRow) error {
	cw := csv.NewWriter(w)
	if err := cw.Write(RelationshipHeader); err != nil {
		return fmt.Errorf("write csv header: %w", err)
	}
	for _, r := range rows {
		record := []string{
			r.SourceElement, r.SourceDocument, r.SourceTitle,
			r.DestElement, r.DestDocument, r.DestTitle,
			r.Type, r.ProvenanceDoc, r.Comment,
		}
		if err := cw.Write(record); err != nil {
			return fmt.Errorf("write csv row: %w", err)
		}
	}
	cw.Flush()
	return cw.Error()
}

// BundleSheets builds the four-sheet CPRT bundle for the given relationship
// rows, restricted to documents, elements, and relationship types actually
// referenced by them - no orphan rows. Provenance documents are included so
// a bundle re-imports cleanly into an empty store.
func (e *Exporter) BundleSheets(ctx context.Context, rows []store.RelationshipRow) ([]xlsx.Sheet, error) {
	docIdents := make(map[string]bool)
	elementIDs := make(map[int64]bool)
	typeIdents := make(map[string]bool)
	for _, r := range rows {
		docIdents[r.SourceDocument] = true
		docIdents[r.DestDocument] = true
		docIdents[r.ProvenanceDoc] = true
		elementIDs[r.SourceElementID] = true
		elementIDs[r.DestElementID] = true
		typeIdents[r.Type] = true
	}

	docs, err := e.store.DocumentsByIdentifiers(ctx, keys(docIdents))
	if err != nil {
		return nil, err
	}
	elements, err := e.store.ElementsByIDs(ctx, int64Keys(elementIDs))
	if err != nil {
		return nil, err
	}
	types, err := e.store.RelationshipTypesByIdentifiers(ctx, keys(typeIdents))
	if err != nil {
		return nil, err
	}

	docSheet := xlsx.Sheet{Name: "documents", Rows: [][]string{
		{"document_identifier", "name", "version", "website", "type"},
	}}
	for _, d := range docs {
		docSheet.Rows = append(docSheet.Rows, []string{d.Identifier, d.Name, d.Version, d.Website, d.Type})
	}

	elementSheet := xlsx.Sheet{Name: "elements", Rows: [][]string{
		{"document_identifier", "element_type", "element_identifier", "title", "text"},
	}}
	for _, el := range elements {
		elementSheet.Rows = append(elementSheet.Rows, []string{el.DocIdentifier, el.Type, el.Identifier, el.Title, el.Text})
	}

	relationshipSheet := xlsx.Sheet{Name: "relationships", Rows: [][]string{RelationshipHeader}}
	for _, r := range rows {
		relationshipSheet.Rows = append(relationshipSheet.Rows, []string{
			r.SourceElement, r.SourceDocument, r.SourceTitle,
			r.DestElement, r.DestDocument, r.DestTitle,
			r.Type, r.ProvenanceDoc, r.Comment,
		})
	}

	typeSheet := xlsx.Sheet{Name: "relationship_types", Rows: [][]string{
		{"relationship_identifier", "description", "value"},
	}}
	for _, t := range types {
		typeSheet.Rows = append(typeSheet.Rows, []string{t.Identifier, t.Description, t.Value})
	}

	return []xlsx.Sheet{docSheet, elementSheet, relationshipSheet, typeSheet}, nil
}

// WriteWorkbook streams rows as a four-sheet bundle workbook.
func (e *Exporter) WriteWorkbook(ctx context.Context, w io.Writer, rows []store.RelationshipRow) error {
	sheets, err := e.BundleSheets(ctx, rows)
	if err != nil {
		return err
	}
	return xlsx.WriteTo(w, sheets)
}

func keys(set map[string]bool) []string {
	out := make([]string, 0, len(set))
	for k := range set {
		if k != "" {
			out = append(out, k)
		}
	}
	return out
}

func int64Keys(set map[int64]bool) []int64 {
	out := make([]int64, 0, len(set))
	for k := range set {
		out = append(out, k)
	}
	return out
}
