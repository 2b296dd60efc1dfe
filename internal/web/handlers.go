package web

import (
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"strings"

	"github.com/go-chi/chi/v5"
	"github.com/jmoiron/sqlx"

	"github.com/mappergraph/crosswalk/internal/exporter"
	"github.com/mappergraph/crosswalk/internal/logging"
	"github.com/mappergraph/crosswalk/internal/store"
)

// ---- response shapes ----
//
// These mirror the bundle schema in cprt_schema.json; the same shapes serve
// the individual read endpoints so clients see one vocabulary throughout.

type documentJSON struct {
	DocIdentifier string `json:"doc_identifier"`
	Name          string `json:"name"`
	Version       string `json:"version"`
	Website       string `json:"website"`
}

type elementJSON struct {
	DocIdentifier     string `json:"doc_identifier"`
	ElementType       string `json:"element_type"`
	ElementIdentifier string `json:"element_identifier"`
	Title             string `json:"title"`
	Text              string `json:"text"`
}

type relationshipTypeJSON struct {
	RelationshipIdentifier string `json:"relationship_identifier"`
	Description            string `json:"description"`
}

type relationshipJSON struct {
	SourceElementIdentifier string `json:"source_element_identifier"`
	SourceDocIdentifier     string `json:"source_doc_identifier"`
	DestElementIdentifier   string `json:"dest_element_identifier"`
	DestDocIdentifier       string `json:"dest_doc_identifier"`
	ProvenanceDocIdentifier string `json:"provenance_doc_identifier"`
	RelationshipIdentifier  string `json:"relationship_identifier"`
}

type bundleJSON struct {
	Documents         []documentJSON         `json:"documents"`
	Elements          []elementJSON          `json:"elements"`
	RelationshipTypes []relationshipTypeJSON `json:"relationship_types"`
	Relationships     []relationshipJSON     `json:"relationships"`
}

func toDocumentJSON(d store.Document) documentJSON {
	return documentJSON{
		DocIdentifier: d.Identifier,
		Name:          d.Name,
		Version:       d.Version,
		Website:       d.Website,
	}
}

func toElementJSON(e store.ElementDetail) elementJSON {
	return elementJSON{
		DocIdentifier:     e.DocIdentifier,
		ElementType:       e.Type,
		ElementIdentifier: e.Identifier,
		Title:             e.Title,
		Text:              e.Text,
	}
}

func toRelationshipJSON(r store.RelationshipRow) relationshipJSON {
	return relationshipJSON{
		SourceElementIdentifier: r.SourceElement,
		SourceDocIdentifier:     r.SourceDocument,
		DestElementIdentifier:   r.DestElement,
		DestDocIdentifier:       r.DestDocument,
		ProvenanceDocIdentifier: r.ProvenanceDoc,
		RelationshipIdentifier:  r.Type,
	}
}

// decodeAndValidate decodes the request body into dst and runs struct
// validation. Returns a client-facing error on failure.
func (s *Server) decodeAndValidate(r *http.Request, dst any) error {
	if err := json.NewDecoder(r.Body).Decode(dst); err != nil {
		return fmt.Errorf("invalid request body: %w", err)
	}
	if err := s.validate.Struct(dst); err != nil {
		return fmt.Errorf("validation failed: %w", err)
	}
	return nil
}

// ---- document reads ----

// handleListDocuments returns all documents except synthetic mapping records.
func (s *Server) handleListDocuments(w http.ResponseWriter, r *http.Request) {
	docs, err := s.store.ListDocuments(r.Context())
	if err != nil {
		s.respondError(w, r, err, http.StatusInternalServerError)
		return
	}

	out := make([]documentJSON, 0, len(docs))
	for _, d := range docs {
		out = append(out, toDocumentJSON(d))
	}
	s.respondJSON(w, http.StatusOK, out)
}

// handleDocumentElements returns the elements of one document, optionally
// filtered by a case-insensitive search term over identifier, title, and
// text.
func (s *Server) handleDocumentElements(w http.ResponseWriter, r *http.Request) {
	docIdentifier := chi.URLParam(r, "docIdentifier")

	if _, err := s.store.DocumentByIdentifier(r.Context(), docIdentifier); err != nil {
		if errors.Is(err, store.ErrNotFound) {
			s.respondError(w, r, err, http.StatusNotFound)
			return
		}
		s.respondError(w, r, err, http.StatusInternalServerError)
		return
	}

	elements, err := s.store.SearchElements(r.Context(), docIdentifier, r.URL.Query().Get("search"))
	if err != nil {
		s.respondError(w, r, err, http.StatusInternalServerError)
		return
	}

	out := make([]elementJSON, 0, len(elements))
	for _, e := range elements {
		out = append(out, toElementJSON(e))
	}
	s.respondJSON(w, http.StatusOK, out)
}

// handleDocumentID resolves a document identifier to its surrogate id, for
// clients that stage bulk relationship writes.
func (s *Server) handleDocumentID(w http.ResponseWriter, r *http.Request) {
	docIdentifier := chi.URLParam(r, "docIdentifier")

	doc, err := s.store.DocumentByIdentifier(r.Context(), docIdentifier)
	if err != nil {
		if errors.Is(err, store.ErrNotFound) {
			s.respondError(w, r, err, http.StatusNotFound)
			return
		}
		s.respondError(w, r, err, http.StatusInternalServerError)
		return
	}

	s.respondJSON(w, http.StatusOK, map[string]any{
		"doc_identifier": doc.Identifier,
		"document_id":    doc.ID,
	})
}

// handleGetDocument returns a full CPRT bundle for one document: the document
// record, all its elements, the relationship-type vocabulary, and every
// relationship touching the document. The response is checked against the
// bundle schema before it leaves the server.
func (s *Server) handleGetDocument(w http.ResponseWriter, r *http.Request) {
	docIdentifier := r.URL.Query().Get("doc_identifier")
	if docIdentifier == "" {
		s.respondError(w, r, errors.New("doc_identifier query parameter is required"), http.StatusBadRequest)
		return
	}

	doc, err := s.store.DocumentByIdentifier(r.Context(), docIdentifier)
	if err != nil {
		if errors.Is(err, store.ErrNotFound) {
			s.respondError(w, r, err, http.StatusNotFound)
			return
		}
		s.respondError(w, r, err, http.StatusInternalServerError)
		return
	}

	elements, err := s.store.SearchElements(r.Context(), docIdentifier, "")
	if err != nil {
		s.respondError(w, r, err, http.StatusInternalServerError)
		return
	}

	types, err := s.store.ListRelationshipTypes(r.Context())
	if err != nil {
		s.respondError(w, r, err, http.StatusInternalServerError)
		return
	}

	relationships, err := s.store.RelationshipsForDocument(r.Context(), docIdentifier)
	if err != nil {
		s.respondError(w, r, err, http.StatusInternalServerError)
		return
	}

	bundle := bundleJSON{
		Documents:         []documentJSON{toDocumentJSON(doc)},
		Elements:          make([]elementJSON, 0, len(elements)),
		RelationshipTypes: make([]relationshipTypeJSON, 0, len(types)),
		Relationships:     make([]relationshipJSON, 0, len(relationships)),
	}
	for _, e := range elements {
		bundle.Elements = append(bundle.Elements, toElementJSON(e))
	}
	for _, t := range types {
		bundle.RelationshipTypes = append(bundle.RelationshipTypes, relationshipTypeJSON{
			RelationshipIdentifier: t.Identifier,
			Description:            t.Description,
		})
	}
	for _, rel := range relationships {
		bundle.Relationships = append(bundle.Relationships, toRelationshipJSON(rel))
	}

	if err := validateBundle(bundle); err != nil {
		s.respondError(w, r, err, http.StatusInternalServerError)
		return
	}
	s.respondJSON(w, http.StatusOK, bundle)
}

// ---- mapping authoring ----

type createProvenanceRequest struct {
	TargetDocIdentifier string `json:"target_doc_identifier" validate:"required"`
	SourceDocIdentifier string `json:"source_doc_identifier" validate:"required"`
}

// handleCreateProvenanceDocument creates a synthetic mapping document that
// records where a hand-authored mapping between two existing documents came
// from. Both endpoints must already exist.
func (s *Server) handleCreateProvenanceDocument(w http.ResponseWriter, r *http.Request) {
	var req createProvenanceRequest
	if err := s.decodeAndValidate(r, &req); err != nil {
		s.respondError(w, r, err, http.StatusBadRequest)
		return
	}

	target, err := s.store.DocumentByIdentifier(r.Context(), req.TargetDocIdentifier)
	if err != nil {
		if errors.Is(err, store.ErrNotFound) {
			s.respondError(w, r, err, http.StatusBadRequest)
			return
		}
		s.respondError(w, r, err, http.StatusInternalServerError)
		return
	}
	source, err := s.store.DocumentByIdentifier(r.Context(), req.SourceDocIdentifier)
	if err != nil {
		if errors.Is(err, store.ErrNotFound) {
			s.respondError(w, r, err, http.StatusBadRequest)
			return
		}
		s.respondError(w, r, err, http.StatusInternalServerError)
		return
	}

	timestamp := s.now().Format("20060102_150405")
	doc := store.Document{
		Identifier: fmt.Sprintf("MAPPING_%s_TO_%s_%s", target.Identifier, source.Identifier, timestamp),
		Name:       fmt.Sprintf("Mapping: %s to %s", target.Name, source.Name),
		Version:    "1.0",
		Website:    "Generated by Document Relationship Mapper",
		Type:       store.MappingDocumentType,
	}

	id, _, err := store.InsertDocument(r.Context(), s.store.DB(), doc)
	if err != nil {
		s.respondError(w, r, err, http.StatusInternalServerError)
		return
	}

	logging.FromContext(r.Context()).Info("provenance document created",
		"provenance_doc_identifier", doc.Identifier,
		"target", target.Identifier,
		"source", source.Identifier,
	)

	s.respondJSON(w, http.StatusCreated, map[string]any{
		"provenance_doc_id":         id,
		"provenance_doc_identifier": doc.Identifier,
		"name":                      doc.Name,
	})
}

type validateRelationshipRequest struct {
	SourceElementIdentifier string `json:"source_element_identifier" validate:"required"`
	SourceDocIdentifier     string `json:"source_doc_identifier" validate:"required"`
	DestElementIdentifier   string `json:"dest_element_identifier" validate:"required"`
	DestDocIdentifier       string `json:"dest_doc_identifier" validate:"required"`
	RelationshipIdentifier  string `json:"relationship_identifier" validate:"required"`
}

// handleValidateRelationship resolves a relationship described by identifiers
// to surrogate ids without writing anything. A reference that does not
// resolve rejects the whole request with a message naming it.
func (s *Server) handleValidateRelationship(w http.ResponseWriter, r *http.Request) {
	var req validateRelationshipRequest
	if err := s.decodeAndValidate(r, &req); err != nil {
		s.respondError(w, r, err, http.StatusBadRequest)
		return
	}

	var invalid []string

	sourceID, err := s.store.ElementID(r.Context(), req.SourceDocIdentifier, req.SourceElementIdentifier)
	if err != nil {
		if !errors.Is(err, store.ErrNotFound) {
			s.respondError(w, r, err, http.StatusInternalServerError)
			return
		}
		invalid = append(invalid, fmt.Sprintf("source element (%s, %s)", req.SourceDocIdentifier, req.SourceElementIdentifier))
	}

	destID, err := s.store.ElementID(r.Context(), req.DestDocIdentifier, req.DestElementIdentifier)
	if err != nil {
		if !errors.Is(err, store.ErrNotFound) {
			s.respondError(w, r, err, http.StatusInternalServerError)
			return
		}
		invalid = append(invalid, fmt.Sprintf("dest element (%s, %s)", req.DestDocIdentifier, req.DestElementIdentifier))
	}

	typeID, err := s.store.RelationshipTypeID(r.Context(), req.RelationshipIdentifier)
	if err != nil {
		if !errors.Is(err, store.ErrNotFound) {
			s.respondError(w, r, err, http.StatusInternalServerError)
			return
		}
		invalid = append(invalid, fmt.Sprintf("relationship type (%s)", req.RelationshipIdentifier))
	}

	if len(invalid) > 0 {
		s.respondError(w, r,
			fmt.Errorf("unresolved references: %s", strings.Join(invalid, "; ")),
			http.StatusBadRequest)
		return
	}

	s.respondJSON(w, http.StatusOK, map[string]any{
		"source_element_id":    sourceID,
		"dest_element_id":      destID,
		"relationship_type_id": typeID,
	})
}

type bulkRelationship struct {
	SourceElementID    int64  `json:"source_element_id" validate:"required"`
	DestElementID      int64  `json:"dest_element_id" validate:"required"`
	RelationshipTypeID int64  `json:"relationship_type_id" validate:"required"`
	Comment            string `json:"comment"`
}

type bulkRelationshipsRequest struct {
	ProvenanceDocID int64              `json:"provenance_doc_id" validate:"required"`
	Relationships   []bulkRelationship `json:"relationships" validate:"required,min=1,dive"`
}

// handleBulkRelationships writes a batch of pre-validated relationships in
// one transaction. Edges that already exist count as skipped, not failed.
func (s *Server) handleBulkRelationships(w http.ResponseWriter, r *http.Request) {
	var req bulkRelationshipsRequest
	if err := s.decodeAndValidate(r, &req); err != nil {
		s.respondError(w, r, err, http.StatusBadRequest)
		return
	}

	var successCount int
	err := s.store.WithTx(r.Context(), func(tx *sqlx.Tx) error {
		for _, rel := range req.Relationships {
			inserted, err := store.InsertRelationship(r.Context(), tx, store.Relationship{
				SourceID:  rel.SourceElementID,
				DestID:    rel.DestElementID,
				ProvDocID: req.ProvenanceDocID,
				TypeID:    rel.RelationshipTypeID,
				Comment:   rel.Comment,
			})
			if err != nil {
				return err
			}
			if inserted {
				successCount++
			}
		}
		return nil
	})
	if err != nil {
		s.respondError(w, r, fmt.Errorf("bulk insert: %w", err), http.StatusBadRequest)
		return
	}

	logging.FromContext(r.Context()).Info("bulk relationships saved",
		"provenance_doc_id", req.ProvenanceDocID,
		"success_count", successCount,
		"total_attempted", len(req.Relationships),
	)

	s.respondJSON(w, http.StatusCreated, map[string]any{
		"success_count":   successCount,
		"total_attempted": len(req.Relationships),
	})
}

// ---- export ----

// handleExportRelationships streams the relationship table as CSV or as a
// four-sheet workbook. An empty result is 404, not an empty file.
func (s *Server) handleExportRelationships(w http.ResponseWriter, r *http.Request) {
	format := r.URL.Query().Get("format")
	if format == "" {
		format = "excel"
	}
	if format != "excel" && format != "csv" {
		s.respondError(w, r, fmt.Errorf("unsupported format %q, expected excel or csv", format), http.StatusBadRequest)
		return
	}

	var provenanceDocs []string
	if raw := r.URL.Query().Get("provenance_docs"); raw != "" {
		for _, p := range strings.Split(raw, ",") {
			if p = strings.TrimSpace(p); p != "" {
				provenanceDocs = append(provenanceDocs, p)
			}
		}
	}

	rows, err := s.exporter.Rows(r.Context(), provenanceDocs)
	if err != nil {
		if errors.Is(err, exporter.ErrNoRelationships) {
			s.respondError(w, r, err, http.StatusNotFound)
			return
		}
		s.respondError(w, r, err, http.StatusInternalServerError)
		return
	}

	timestamp := s.now().Format("20060102_150405")
	switch format {
	case "csv":
		w.Header().Set("Content-Type", "text/csv")
		w.Header().Set("Content-Disposition",
			fmt.Sprintf(`attachment; filename="relationships_%s.csv"`, timestamp))
		if err := exporter.WriteCSV(w, rows); err != nil {
			logging.FromContext(r.Context()).Error("csv export failed", "error", err)
		}
	default:
		w.Header().Set("Content-Type", "application/vnd.openxmlformats-officedocument.spreadsheetml.sheet")
		w.Header().Set("Content-Disposition",
			fmt.Sprintf(`attachment; filename="relationships_%s.xlsx"`, timestamp))
		if err := s.exporter.WriteWorkbook(r.Context(), w, rows); err != nil {
			logging.FromContext(r.Context()).Error("workbook export failed", "error", err)
		}
	}
}
