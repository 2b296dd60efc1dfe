// Package resolver maps human-facing identifiers (document code, element
// code, relationship code) to the store's surrogate keys.
//
// It serves two access patterns: cached point lookups of element text for
// the enhance pipeline, and bulk in-memory indexes built once per import
// transaction so relationship resolution never costs a query per row.
package resolver

import (
	"context"
	"fmt"
	"sync"

	"github.com/jmoiron/sqlx"

	"github.com/mappergraph/crosswalk/internal/store"
)

// ElementText is the result of a point lookup. A missing element is not an
// error: Found is false and Title/Text carry a diagnostic naming both
// identifiers, so batch callers can keep going and still produce readable
// output.
type ElementText struct {
	Title string
	Text  string
	Found bool
}

// Cache memoizes element lookups for the lifetime of one run. It is an
// explicit object handed to the Resolver - never shared across runs - so
// staleness is bounded by the run and tests stay isolated.
type Cache struct {
	mu      sync.Mutex
	entries map[string]ElementText
}

// NewCache returns an empty lookup cache.
func NewCache() *Cache {
	return &Cache{entries: make(map[string]ElementText)}
}

func (c *Cache) get(key string) (ElementText, bool) {
	c.mu.Lock()
	defer c.mu.Unlock()
	et, ok := c.entries[key]
	return et, ok
}

func (c *Cache) put(key string, et ElementText) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.entries[key] = et
}

// Len returns the number of cached lookups.
func (c *Cache) Len() int {
	c.mu.Lock()
	defer c.mu.Unlock()
	return len(c.entries)
}

// Resolver resolves identifiers against the store.
type Resolver struct {
	store *store.Store
	cache *Cache
}

// New returns a Resolver using the given cache. The cache is scoped to one
// run; already-imported data does not change underneath it.
func New(s *store.Store, cache *Cache) *Resolver {
	return &Resolver{store: s, cache: cache}
}

// LookupElement returns the title and text of the element identified by the
// (document, element) pair. Results are cached for the lifetime of the run;
// a repeat lookup never touches the store. A missing element yields a
// sentinel value, never an error.
func (r *Resolver) LookupElement(ctx context.Context, docIdentifier, elementIdentifier string) (ElementText, error) {
	key := docIdentifier + "::" + elementIdentifier
	if et, ok := r.cache.get(key); ok {
		return et, nil
	}

	text, found, err := r.store.ElementText(ctx, docIdentifier, elementIdentifier)
	if err != nil {
		return ElementText{}, err
	}

	var et ElementText
	if found {
		title := text.Title
		if title == "" {
			title = "N/A"
		}
		et = ElementText{Title: title, Text: text.Text, Found: true}
	} else {
		et = ElementText{
			Title: "Element not found",
			Text:  fmt.Sprintf("Could not locate element %s in document %s", elementIdentifier, docIdentifier),
		}
	}

	r.cache.put(key, et)
	return et, nil
}

// ElementKey addresses an element by its document and element identifiers.
type ElementKey struct {
	Doc     string
	Element string
}

// Index holds the three identifier maps built once per import transaction:
// document identifier to document id, (document, element) to element id, and
// relationship identifier to type id.
type Index struct {
	Documents map[string]int64
	Elements  map[ElementKey]int64
	Types     map[string]int64
}

// BuildIndex loads the identifier maps from the given connection or
// transaction. During an import this runs inside the file's transaction so
// rows inserted earlier in the same file are visible.
func BuildIndex(ctx context.Context, db store.DBTX) (*Index, error) {
	idx := &Index{
		Documents: make(map[string]int64),
		Elements:  make(map[ElementKey]int64),
		Types:     make(map[string]int64),
	}

	var docs []struct {
		ID         int64  `db:"document_id"`
		Identifier string `db:"doc_identifier"`
	}
	if err := sqlx.SelectContext(ctx, db, &docs,
		"SELECT document_id, doc_identifier FROM documents"); err != nil {
		return nil, fmt.Errorf("index documents: %w", err)
	}
	for _, d := range docs {
		idx.Documents[d.Identifier] = d.ID
	}

	var elems []struct {
		ID      int64  `db:"element_id"`
		Element string `db:"element_identifier"`
		Doc     string `db:"doc_identifier"`
	}
	if err := sqlx.SelectContext(ctx, db, &elems, `
		SELECT e.element_id, e.element_identifier, d.doc_identifier
		FROM elements e
		JOIN documents d ON e.document_id = d.document_id
	`); err != nil {
		return nil, fmt.Errorf("index elements: %w", err)
	}
	for _, e := range elems {
		idx.Elements[ElementKey{Doc: e.Doc, Element: e.Element}] = e.ID
	}

	var types []struct {
		ID         int64  `db:"type_id"`
		Identifier string `db:"relationship_identifier"`
	}
	if err := sqlx.SelectContext(ctx, db, &types,
		"SELECT type_id, relationship_identifier FROM relationship_types"); err != nil {
		return nil, fmt.Errorf("index relationship types: %w", err)
	}
	for _, t := range types {
		idx.Types[t.Identifier] = t.ID
	}

	return idx, nil
}

// RelationshipRefs are the human-facing references carried by one inbound
// relationship row.
type RelationshipRefs struct {
	SourceDoc     string
	SourceElement string
	DestDoc       string
	DestElement   string
	ProvenanceDoc string
	Type          string
	Comment       string
}

// Resolve maps a relationship row's references to surrogate keys. When any
// reference fails to resolve, missing lists each one ("source (...)",
// "dest (...)", "provenance doc (...)", "relationship type (...)") and the
// row should be skipped, not aborted on.
func (idx *Index) Resolve(refs RelationshipRefs) (rel store.Relationship, missing []string) {
	sourceID, okSource := idx.Elements[ElementKey{Doc: refs.SourceDoc, Element: refs.SourceElement}]
	destID, okDest := idx.Elements[ElementKey{Doc: refs.DestDoc, Element: refs.DestElement}]
	provID, okProv := idx.Documents[refs.ProvenanceDoc]
	typeID, okType := idx.Types[refs.Type]

	if !okSource {
		missing = append(missing, fmt.Sprintf("source (%s, %s)", refs.SourceDoc, refs.SourceElement))
	}
	if !okDest {
		missing = append(missing, fmt.Sprintf("dest (%s, %s)", refs.DestDoc, refs.DestElement))
	}
	if !okProv {
		missing = append(missing, fmt.Sprintf("provenance doc (%s)", refs.ProvenanceDoc))
	}
	if !okType {
		missing = append(missing, fmt.Sprintf("relationship type (%s)", refs.Type))
	}
	if len(missing) > 0 {
		return store.Relationship{}, missing
	}

	return store.Relationship{
		SourceID:  sourceID,
		DestID:    destID,
		ProvDocID: provID,
		TypeID:    typeID,
		Comment:   refs.Comment,
	}, nil
}
