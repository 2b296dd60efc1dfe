// Package importer orchestrates the spreadsheet write path: detect the
// schema variant, normalize to the canonical bundle, resolve identifiers,
// and insert in dependency order, one atomic transaction per source file.
package importer

import (
	"context"
	"fmt"
	"log/slog"
	"path/filepath"
	"sort"
	"strings"

	"github.com/google/uuid"
	"github.com/jmoiron/sqlx"

	"github.com/mappergraph/crosswalk/internal/cprt"
	"github.com/mappergraph/crosswalk/internal/resolver"
	"github.com/mappergraph/crosswalk/internal/store"
	"github.com/mappergraph/crosswalk/internal/xlsx"
)

// Counts tallies rows accepted per entity type. Rows absorbed by a
// uniqueness constraint are not counted: re-importing a file yields zeros.
type Counts struct {
	Documents         int
	Elements          int
	RelationshipTypes int
	Relationships     int
}

// Add accumulates another tally.
func (c *Counts) Add(o Counts) {
	c.Documents += o.Documents
	c.Elements += o.Elements
	c.RelationshipTypes += o.RelationshipTypes
	c.Relationships += o.Relationships
}

// FileResult is the per-file outcome. Err is set when the file's
// transaction was rolled back; Skipped lists the reference-resolution
// diagnostics for rows that were passed over inside a committed file.
type FileResult struct {
	File    string
	Variant cprt.Variant
	Counts  Counts
	Skipped []string
	Err     error
}

// BatchResult aggregates a run over multiple files. A failed file never
// aborts the batch.
type BatchResult struct {
	RunID  string
	Totals Counts
	Files  []FileResult
}

// Failed returns the results of files whose transactions rolled back.
func (b BatchResult) Failed() []FileResult {
	var failed []FileResult
	for _, f := range b.Files {
		if f.Err != nil {
			failed = append(failed, f)
		}
	}
	return failed
}

// Importer runs the write path against a store.
type Importer struct {
	store *store.Store
	log   *slog.Logger
}

// New returns an Importer logging through log (slog.Default when nil).
func New(s *store.Store, log *slog.Logger) *Importer {
	if log == nil {
		log = slog.Default()
	}
	return &Importer{store: s, log: log}
}

// ImportDir imports every .xlsx workbook in dir, sorted by name for
// deterministic run order.
func (imp *Importer) ImportDir(ctx context.Context, dir string) (BatchResult, error) {
	paths, err := filepath.Glob(filepath.Join(dir, "*.xlsx"))
	if err != nil {
		return BatchResult{}, fmt.Errorf("scan %s: %w", dir, err)
	}
	if len(paths) == 0 {
		return BatchResult{}, fmt.Errorf("no .xlsx files found in %s", dir)
	}
	sort.Strings(paths)
	return imp.ImportBatch(ctx, paths), nil
}

// ImportBatch imports the given files in order. Each file is atomic; a
// failure rolls back that file only and the batch continues.
func (imp *Importer) ImportBatch(ctx context.Context, paths []string) BatchResult {
	batch := BatchResult{RunID: uuid.NewString()}
	log := imp.log.With("run_id", batch.RunID)

	for _, path := range paths {
		result := imp.importFile(ctx, path, log)
		batch.Files = append(batch.Files, result)
		if result.Err != nil {
			log.Error("file import failed, rolled back",
				"file", filepath.Base(path), "error", result.Err)
			continue
		}
		batch.Totals.Add(result.Counts)
		log.Info("file imported",
			"file", filepath.Base(path),
			"variant", string(result.Variant),
			"documents", result.Counts.Documents,
			"elements", result.Counts.Elements,
			"relationship_types", result.Counts.RelationshipTypes,
			"relationships", result.Counts.Relationships,
			"skipped", len(result.Skipped),
		)
	}

	return batch
}

// ImportFile imports a single workbook inside one transaction.
func (imp *Importer) ImportFile(ctx context.Context, path string) FileResult {
	return imp.importFile(ctx, path, imp.log)
}

func (imp *Importer) importFile(ctx context.Context, path string, log *slog.Logger) FileResult {
	result := FileResult{File: path}

	wb, err := xlsx.Read(path)
	if err != nil {
		result.Err = err
		return result
	}

	// A workbook carrying any canonical bucket sheet is a CPRT bundle and
	// needs no variant detection; everything else must classify.
	variant := cprt.VariantMultiSheet
	if !hasBundleSheet(wb) {
		variant, err = cprt.Detect(wb)
		if err != nil {
			result.Err = err
			return result
		}
	}
	result.Variant = variant

	bundle, err := cprt.Normalize(wb, variant, log)
	if err != nil {
		result.Err = err
		return result
	}

	// Insert order is mandatory: elements resolve against documents;
	// relationships resolve against elements, types, and provenance docs.
	result.Err = imp.store.WithTx(ctx, func(tx *sqlx.Tx) error {
		var err error
		if result.Counts.Documents, err = insertDocuments(ctx, tx, bundle.Documents); err != nil {
			return err
		}
		if result.Counts.Elements, err = insertElements(ctx, tx, bundle.Elements, &result.Skipped, log); err != nil {
			return err
		}
		if result.Counts.RelationshipTypes, err = insertRelationshipTypes(ctx, tx, bundle.RelationshipTypes); err != nil {
			return err
		}
		if result.Counts.Relationships, err = insertRelationships(ctx, tx, bundle.Relationships, &result.Skipped, log); err != nil {
			return err
		}
		return nil
	})
	if result.Err != nil {
		result.Counts = Counts{}
	}

	return result
}

func hasBundleSheet(wb *xlsx.Workbook) bool {
	for _, sheet := range wb.Sheets {
		if cprt.IsBundleSheet(sheet.Name) {
			return true
		}
	}
	return false
}

func insertDocuments(ctx context.Context, tx *sqlx.Tx, rows []cprt.Row) (int, error) {
	accepted := 0
	for _, row := range rows {
		doc := store.Document{
			Identifier: row.Get("document_identifier", "doc_identifier"),
			Name:       row.Get("title", "name"),
			Version:    row.Get("version"),
			Website:    row.Get("website"),
			Type:       row.Get("type"),
		}
		if doc.Version == "" {
			doc.Version = "1.0"
		}
		if doc.Type == "" {
			doc.Type = "unknown"
		}

		_, inserted, err := store.InsertDocument(ctx, tx, doc)
		if err != nil {
			return accepted, err
		}
		if inserted {
			accepted++
		}
	}
	return accepted, nil
}

func insertElements(ctx context.Context, tx *sqlx.Tx, rows []cprt.Row, skipped *[]string, log *slog.Logger) (int, error) {
	if len(rows) == 0 {
		return 0, nil
	}

	idx, err := resolver.BuildIndex(ctx, tx)
	if err != nil {
		return 0, err
	}

	accepted := 0
	for _, row := range rows {
		docIdentifier := row.Get("document_identifier", "doc_identifier")
		docID, ok := idx.Documents[docIdentifier]
		if !ok {
			diag := fmt.Sprintf("element %s: document not found (%s)",
				row.Get("element_identifier"), docIdentifier)
			*skipped = append(*skipped, diag)
			log.Warn("skipping element", "reason", diag)
			continue
		}

		elem := store.Element{
			DocumentID: docID,
			Type:       row.Get("type", "element_type"),
			Identifier: row.Get("element_identifier"),
			Title:      row.Get("title"),
			Text:       row.Get("text"),
		}
		if elem.Type == "" {
			elem.Type = "unknown"
		}
		if elem.Title == "" {
			elem.Title = "N/A"
		}

		_, inserted, err := store.InsertElement(ctx, tx, elem)
		if err != nil {
			return accepted, err
		}
		if inserted {
			accepted++
		}
	}
	return accepted, nil
}

func insertRelationshipTypes(ctx context.Context, tx *sqlx.Tx, rows []cprt.Row) (int, error) {
	accepted := 0
	for _, row := range rows {
		rt := store.RelationshipType{
			Identifier:  row.Get("relationship_identifier"),
			Description: row.Get("description"),
			Value:       row.Get("value"),
		}

		_, inserted, err := store.InsertRelationshipType(ctx, tx, rt)
		if err != nil {
			return accepted, err
		}
		if inserted {
			accepted++
		}
	}
	return accepted, nil
}

func insertRelationships(ctx context.Context, tx *sqlx.Tx, rows []cprt.Row, skipped *[]string, log *slog.Logger) (int, error) {
	if len(rows) == 0 {
		return 0, nil
	}

	// Rebuild the index so elements and documents inserted earlier in this
	// file's transaction are resolvable.
	idx, err := resolver.BuildIndex(ctx, tx)
	if err != nil {
		return 0, err
	}

	accepted := 0
	for _, row := range rows {
		refs := resolver.RelationshipRefs{
			SourceDoc:     row.Get("source_document", "source_doc_identifier"),
			SourceElement: row.Get("source_element", "source_element_identifier"),
			DestDoc:       row.Get("dest_document", "dest_doc_identifier"),
			DestElement:   row.Get("dest_element", "dest_element_identifier"),
			ProvenanceDoc: row.Get("provenance_document", "provenance_doc_identifier"),
			Type:          row.Get("relationship_type", "relationship_identifier"),
			Comment:       row.Get("comment"),
		}

		rel, missing := idx.Resolve(refs)
		if len(missing) > 0 {
			diag := "skipping relationship, missing: " + strings.Join(missing, ", ")
			*skipped = append(*skipped, diag)
			log.Warn("skipping relationship", "missing", strings.Join(missing, ", "))
			continue
		}

		inserted, err := store.InsertRelationship(ctx, tx, rel)
		if err != nil {
			return accepted, err
		}
		if inserted {
			accepted++
		}
	}
	return accepted, nil
}
