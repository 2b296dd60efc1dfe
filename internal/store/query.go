package store

import (
	"context"
	"database/sql"
	"errors"
	"fmt"

	"github.com/huandu/go-sqlbuilder"
	"github.com/jmoiron/sqlx"
)

// ErrNotFound reports a lookup that matched no row.
var ErrNotFound = errors.New("not found")

// DocumentByIdentifier returns the document with the given human-facing
// identifier, or ErrNotFound.
func (s *Store) DocumentByIdentifier(ctx context.Context, identifier string) (Document, error) {
	var d Document
	err := s.db.GetContext(ctx, &d, `
		SELECT document_id, doc_identifier, name, version, website, type
		FROM documents
		WHERE doc_identifier = ?
	`, identifier)
	if errors.Is(err, sql.ErrNoRows) {
		return Document{}, fmt.Errorf("document %q: %w", identifier, ErrNotFound)
	}
	if err != nil {
		return Document{}, fmt.Errorf("get document %q: %w", identifier, err)
	}
	return d, nil
}

// ListDocuments returns all ordinary documents ordered by name. Synthetic
// mapping documents are excluded.
func (s *Store) ListDocuments(ctx context.Context) ([]Document, error) {
	docs := []Document{}
	err := s.db.SelectContext(ctx, &docs, `
		SELECT document_id, doc_identifier, name, version, website, type
		FROM documents
		WHERE type != ?
		ORDER BY name
	`, MappingDocumentType)
	if err != nil {
		return nil, fmt.Errorf("list documents: %w", err)
	}
	return docs, nil
}

// SearchElements returns the elements of a document, optionally restricted
// to rows whose identifier, title, or text contains the search term.
// Ordered by element identifier.
func (s *Store) SearchElements(ctx context.Context, docIdentifier, search string) ([]ElementDetail, error) {
	sb := sqlbuilder.SQLite.NewSelectBuilder()
	sb.Select("d.doc_identifier", "e.element_type", "e.element_identifier", "e.title", "e.text")
	sb.From("elements e")
	sb.Join("documents d", "e.document_id = d.document_id")
	sb.Where(sb.Equal("d.doc_identifier", docIdentifier))
	if search != "" {
		term := "%" + search + "%"
		sb.Where(sb.Or(
			sb.Like("e.element_identifier", term),
			sb.Like("e.title", term),
			sb.Like("e.text", term),
		))
	}
	sb.OrderBy("e.element_identifier")

	query, args := sb.Build()
	elements := []ElementDetail{}
	if err := s.db.SelectContext(ctx, &elements, query, args...); err != nil {
		return nil, fmt.Errorf("search elements of %q: %w", docIdentifier, err)
	}
	return elements, nil
}

// ElementText returns the title and text of the element identified by the
// (document, element) identifier pair. found is false when no such element
// exists; that is not an error.
func (s *Store) ElementText(ctx context.Context, docIdentifier, elementIdentifier string) (ElementText, bool, error) {
	var et ElementText
	err := s.db.GetContext(ctx, &et, `
		SELECT e.title, e.text
		FROM elements e
		JOIN documents d ON e.document_id = d.document_id
		WHERE d.doc_identifier = ? AND e.element_identifier = ?
	`, docIdentifier, elementIdentifier)
	if errors.Is(err, sql.ErrNoRows) {
		return ElementText{}, false, nil
	}
	if err != nil {
		return ElementText{}, false, fmt.Errorf("lookup element %q in %q: %w", elementIdentifier, docIdentifier, err)
	}
	return et, true, nil
}

// ElementID resolves a (document, element) identifier pair to the element's
// surrogate id, or ErrNotFound.
func (s *Store) ElementID(ctx context.Context, docIdentifier, elementIdentifier string) (int64, error) {
	var id int64
	err := s.db.GetContext(ctx, &id, `
		SELECT e.element_id
		FROM elements e
		JOIN documents d ON e.document_id = d.document_id
		WHERE d.doc_identifier = ? AND e.element_identifier = ?
	`, docIdentifier, elementIdentifier)
	if errors.Is(err, sql.ErrNoRows) {
		return 0, fmt.Errorf("element %q in %q: %w", elementIdentifier, docIdentifier, ErrNotFound)
	}
	if err != nil {
		return 0, fmt.Errorf("lookup element %q in %q: %w", elementIdentifier, docIdentifier, err)
	}
	return id, nil
}

// RelationshipTypeID resolves a relationship-type identifier to its
// surrogate id, or ErrNotFound.
func (s *Store) RelationshipTypeID(ctx context.Context, identifier string) (int64, error) {
	var id int64
	err := s.db.GetContext(ctx, &id,
		"SELECT type_id FROM relationship_types WHERE relationship_identifier = ?", identifier)
	if errors.Is(err, sql.ErrNoRows) {
		return 0, fmt.Errorf("relationship type %q: %w", identifier, ErrNotFound)
	}
	if err != nil {
		return 0, fmt.Errorf("lookup relationship type %q: %w", identifier, err)
	}
	return id, nil
}

// ListRelationshipTypes returns the whole vocabulary ordered by identifier.
func (s *Store) ListRelationshipTypes(ctx context.Context) ([]RelationshipType, error) {
	types := []RelationshipType{}
	err := s.db.SelectContext(ctx, &types, `
		SELECT type_id, relationship_identifier, description, value
		FROM relationship_types
		ORDER BY relationship_identifier
	`)
	if err != nil {
		return nil, fmt.Errorf("list relationship types: %w", err)
	}
	return types, nil
}

// exportJoin joins every surrogate key in relationships back to its
// human-facing identifier. Kept as one statement so export, the bundle
// response, and round-trip tests all see the same shape.
const exportJoin = `
	SELECT
		se.element_identifier AS source_element,
		sd.doc_identifier     AS source_document,
		se.title              AS source_title,
		de.element_identifier AS dest_element,
		dd.doc_identifier     AS dest_document,
		de.title              AS dest_title,
		rt.relationship_identifier AS relationship_type,
		pd.doc_identifier     AS provenance_document,
		r.comment             AS comment,
		se.element_id         AS source_element_id,
		de.element_id         AS dest_element_id
	FROM relationships r
	JOIN elements se ON r.source_id = se.element_id
	JOIN documents sd ON se.document_id = sd.document_id
	JOIN elements de ON r.dest_id = de.element_id
	JOIN documents dd ON de.document_id = dd.document_id
	JOIN documents pd ON r.prov_doc_id = pd.document_id
	JOIN relationship_types rt ON r.relationship_type = rt.type_id`

// ExportRelationships returns the canonical relationship rows, optionally
// filtered to the given provenance-document identifiers. Ordered by
// (source document, source element) for deterministic output.
func (s *Store) ExportRelationships(ctx context.Context, provenanceDocs []string) ([]RelationshipRow, error) {
	query := exportJoin
	var args []any

	if len(provenanceDocs) > 0 {
		expanded, expandedArgs, err := sqlx.In(" WHERE pd.doc_identifier IN (?)", provenanceDocs)
		if err != nil {
			return nil, fmt.Errorf("export relationships: %w", err)
		}
		query += expanded
		args = expandedArgs
	}
	query += " ORDER BY sd.doc_identifier, se.element_identifier"

	rows := []RelationshipRow{}
	if err := s.db.SelectContext(ctx, &rows, query, args...); err != nil {
		return nil, fmt.Errorf("export relationships: %w", err)
	}
	return rows, nil
}

// RelationshipsForDocument returns every relationship whose source or
// destination element belongs to the given document.
func (s *Store) RelationshipsForDocument(ctx context.Context, docIdentifier string) ([]RelationshipRow, error) {
	query := exportJoin + `
	WHERE sd.doc_identifier = ? OR dd.doc_identifier = ?
	ORDER BY sd.doc_identifier, se.element_identifier`

	rows := []RelationshipRow{}
	if err := s.db.SelectContext(ctx, &rows, query, docIdentifier, docIdentifier); err != nil {
		return nil, fmt.Errorf("relationships for %q: %w", docIdentifier, err)
	}
	return rows, nil
}

// DocumentsByIdentifiers returns the documents matching the given
// identifiers, ordered by identifier. Unknown identifiers are ignored.
func (s *Store) DocumentsByIdentifiers(ctx context.Context, identifiers []string) ([]Document, error) {
	if len(identifiers) == 0 {
		return []Document{}, nil
	}

	sb := sqlbuilder.SQLite.NewSelectBuilder()
	sb.Select("document_id", "doc_identifier", "name", "version", "website", "type")
	sb.From("documents")
	sb.Where(sb.In("doc_identifier", sqlbuilder.Flatten(identifiers)...))
	sb.OrderBy("doc_identifier")

	query, args := sb.Build()
	docs := []Document{}
	if err := s.db.SelectContext(ctx, &docs, query, args...); err != nil {
		return nil, fmt.Errorf("documents by identifiers: %w", err)
	}
	return docs, nil
}

// ElementsByIDs returns element details for the given surrogate ids, ordered
// by (document identifier, element identifier).
func (s *Store) ElementsByIDs(ctx context.Context, ids []int64) ([]ElementDetail, error) {
	if len(ids) == 0 {
		return []ElementDetail{}, nil
	}

	sb := sqlbuilder.SQLite.NewSelectBuilder()
	sb.Select("d.doc_identifier", "e.element_type", "e.element_identifier", "e.title", "e.text")
	sb.From("elements e")
	sb.Join("documents d", "e.document_id = d.document_id")
	sb.Where(sb.In("e.element_id", sqlbuilder.Flatten(ids)...))
	sb.OrderBy("d.doc_identifier", "e.element_identifier")

	query, args := sb.Build()
	elements := []ElementDetail{}
	if err := s.db.SelectContext(ctx, &elements, query, args...); err != nil {
		return nil, fmt.Errorf("elements by ids: %w", err)
	}
	return elements, nil
}

// RelationshipTypesByIdentifiers returns vocabulary entries for the given
// identifiers, ordered by identifier.
func (s *Store) RelationshipTypesByIdentifiers(ctx context.Context, identifiers []string) ([]RelationshipType, error) {
	if len(identifiers) == 0 {
		return []RelationshipType{}, nil
	}

	sb := sqlbuilder.SQLite.NewSelectBuilder()
	sb.Select("type_id", "relationship_identifier", "description", "value")
	sb.From("relationship_types")
	sb.Where(sb.In("relationship_identifier", sqlbuilder.Flatten(identifiers)...))
	sb.OrderBy("relationship_identifier")

	query, args := sb.Build()
	types := []RelationshipType{}
	if err := s.db.SelectContext(ctx, &types, query, args...); err != nil {
		return nil, fmt.Errorf("relationship types by identifiers: %w", err)
	}
	return types, nil
}
