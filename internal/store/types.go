// Package store provides SQLite-backed persistence for the document
// relationship graph: documents, their elements, the relationship-type
// vocabulary, and the typed edges between elements.
package store

// Document is a standard, framework, or mapping artifact tracked by its
// human-facing identifier. Documents created to record where a mapping came
// from carry Type = MappingDocumentType.
type Document struct {
	ID         int64  `db:"document_id"`
	Identifier string `db:"doc_identifier"`
	Name       string `db:"name"`
	Version    string `db:"version"`
	Website    string `db:"website"`
	Type       string `db:"type"`
}

// MappingDocumentType marks synthetic provenance records so they can be
// excluded from ordinary document listings.
const MappingDocumentType = "mapping_document"

// Element is an addressable unit inside a document (control, requirement,
// question). Two elements identical in (document, identifier, title, text)
// are the same element; the store deduplicates them on insert.
type Element struct {
	ID         int64  `db:"element_id"`
	DocumentID int64  `db:"document_id"`
	Type       string `db:"element_type"`
	Identifier string `db:"element_identifier"`
	Title      string `db:"title"`
	Text       string `db:"text"`
}

// RelationshipType is a controlled vocabulary entry classifying an edge's
// semantics ("subset_of", "equivalent_to"). Immutable once created.
type RelationshipType struct {
	ID          int64  `db:"type_id"`
	Identifier  string `db:"relationship_identifier"`
	Description string `db:"description"`
	Value       string `db:"value"`
}

// Relationship is a directed, typed edge between two elements, attributed to
// the provenance document that asserted it. The (source, dest, provenance,
// type) tuple is unique; re-asserting the same edge is a no-op.
type Relationship struct {
	SourceID  int64  `db:"source_id"`
	DestID    int64  `db:"dest_id"`
	ProvDocID int64  `db:"prov_doc_id"`
	TypeID    int64  `db:"relationship_type"`
	Comment   string `db:"comment"`
}

// ElementText carries the descriptive fields of an element as resolved by
// identifier lookup.
type ElementText struct {
	Title string `db:"title"`
	Text  string `db:"text"`
}

// ElementDetail is an element joined back to its document identifier, as
// presented by the query API and the bundle export.
type ElementDetail struct {
	DocIdentifier string `db:"doc_identifier"`
	Type          string `db:"element_type"`
	Identifier    string `db:"element_identifier"`
	Title         string `db:"title"`
	Text          string `db:"text"`
}

// RelationshipRow is the canonical human-facing relationship record: every
// surrogate key joined back to its identifier. It is the row shape shared by
// the spreadsheet export, the enhance input, and the bundle response.
type RelationshipRow struct {
	SourceElement   string `db:"source_element"`
	SourceDocument  string `db:"source_document"`
	SourceTitle     string `db:"source_title"`
	DestElement     string `db:"dest_element"`
	DestDocument    string `db:"dest_document"`
	DestTitle       string `db:"dest_title"`
	Type            string `db:"relationship_type"`
	ProvenanceDoc   string `db:"provenance_document"`
	Comment         string `db:"comment"`
	SourceElementID int64  `db:"source_element_id"`
	DestElementID   int64  `db:"dest_element_id"`
}
