package store

import (
	"context"
	"fmt"

	"github.com/jmoiron/sqlx"
)

// DBTX is the interface for write operations.
// Satisfied by both *sqlx.DB and *sqlx.Tx, so the same inserts serve the
// one-shot API path and the per-file import transaction.
type DBTX interface {
	sqlx.ExtContext
}

// InsertDocument inserts a document, keyed by its identifier. First write
// wins: a document with the same identifier already present is left
// untouched and inserted is false. The surrogate id of the winning row is
// returned either way.
func InsertDocument(ctx context.Context, db DBTX, d Document) (id int64, inserted bool, err error) {
	res, err := db.ExecContext(ctx, `
		INSERT INTO documents (doc_identifier, name, version, website, type)
		VALUES (?, ?, ?, ?, ?)
		ON CONFLICT(doc_identifier) DO NOTHING
	`, d.Identifier, d.Name, d.Version, d.Website, d.Type)
	if err != nil {
		return 0, false, fmt.Errorf("insert document %q: %w", d.Identifier, err)
	}

	affected, err := res.RowsAffected()
	if err != nil {
		return 0, false, fmt.Errorf("insert document %q: %w", d.Identifier, err)
	}
	if affected > 0 {
		newID, err := res.LastInsertId()
		if err != nil {
			return 0, false, fmt.Errorf("insert document %q: %w", d.Identifier, err)
		}
		return newID, true, nil
	}

	err = sqlx.GetContext(ctx, db, &id,
		"SELECT document_id FROM documents WHERE doc_identifier = ?", d.Identifier)
	if err != nil {
		return 0, false, fmt.Errorf("lookup document %q after conflict: %w", d.Identifier, err)
	}
	return id, false, nil
}

// InsertElement inserts an element. Elements identical in (document,
// identifier, title, text) are deduplicated: the existing row's id is
// returned with inserted false.
func InsertElement(ctx context.Context, db DBTX, e Element) (id int64, inserted bool, err error) {
	res, err := db.ExecContext(ctx, `
		INSERT INTO elements (document_id, element_type, element_identifier, title, text)
		VALUES (?, ?, ?, ?, ?)
		ON CONFLICT(document_id, element_identifier, title, text) DO NOTHING
	`, e.DocumentID, e.Type, e.Identifier, e.Title, e.Text)
	if err != nil {
		return 0, false, fmt.Errorf("insert element %q: %w", e.Identifier, err)
	}

	affected, err := res.RowsAffected()
	if err != nil {
		return 0, false, fmt.Errorf("insert element %q: %w", e.Identifier, err)
	}
	if affected > 0 {
		newID, err := res.LastInsertId()
		if err != nil {
			return 0, false, fmt.Errorf("insert element %q: %w", e.Identifier, err)
		}
		return newID, true, nil
	}

	err = sqlx.GetContext(ctx, db, &id, `
		SELECT element_id FROM elements
		WHERE document_id = ? AND element_identifier = ? AND title = ? AND text = ?
	`, e.DocumentID, e.Identifier, e.Title, e.Text)
	if err != nil {
		return 0, false, fmt.Errorf("lookup element %q after conflict: %w", e.Identifier, err)
	}
	return id, false, nil
}

// InsertRelationshipType inserts a vocabulary entry, keyed by its
// identifier. Existing entries are never updated.
func InsertRelationshipType(ctx context.Context, db DBTX, rt RelationshipType) (id int64, inserted bool, err error) {
	res, err := db.ExecContext(ctx, `
		INSERT INTO relationship_types (relationship_identifier, description, value)
		VALUES (?, ?, ?)
		ON CONFLICT(relationship_identifier) DO NOTHING
	`, rt.Identifier, rt.Description, rt.Value)
	if err != nil {
		return 0, false, fmt.Errorf("insert relationship type %q: %w", rt.Identifier, err)
	}

	affected, err := res.RowsAffected()
	if err != nil {
		return 0, false, fmt.Errorf("insert relationship type %q: %w", rt.Identifier, err)
	}
	if affected > 0 {
		newID, err := res.LastInsertId()
		if err != nil {
			return 0, false, fmt.Errorf("insert relationship type %q: %w", rt.Identifier, err)
		}
		return newID, true, nil
	}

	err = sqlx.GetContext(ctx, db, &id,
		"SELECT type_id FROM relationship_types WHERE relationship_identifier = ?", rt.Identifier)
	if err != nil {
		return 0, false, fmt.Errorf("lookup relationship type %q after conflict: %w", rt.Identifier, err)
	}
	return id, false, nil
}

// InsertRelationship inserts an edge. The (source, dest, provenance, type)
// tuple is unique; re-asserting an existing edge returns inserted false and
// leaves the original row - including its comment - unchanged.
func InsertRelationship(ctx context.Context, db DBTX, r Relationship) (inserted bool, err error) {
	res, err := db.ExecContext(ctx, `
		INSERT INTO relationships (source_id, dest_id, prov_doc_id, relationship_type, comment)
		VALUES (?, ?, ?, ?, ?)
		ON CONFLICT(source_id, dest_id, prov_doc_id, relationship_type) DO NOTHING
	`, r.SourceID, r.DestID, r.ProvDocID, r.TypeID, r.Comment)
	if err != nil {
		return false, fmt.Errorf("insert relationship %d->%d: %w", r.SourceID, r.DestID, err)
	}

	affected, err := res.RowsAffected()
	if err != nil {
		return false, fmt.Errorf("insert relationship %d->%d: %w", r.SourceID, r.DestID, err)
	}
	return affected > 0, nil
}
