package resolver

import (
	"context"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/mappergraph/crosswalk/internal/store"
)

func newTestStore(t *testing.T) *store.Store {
	t.Helper()
	s, err := store.Open(filepath.Join(t.TempDir(), "test.db"))
	require.NoError(t, err)
	t.Cleanup(func() { s.Close() })
	return s
}

func seed(t *testing.T, s *store.Store) {
	t.Helper()
	ctx := context.Background()

	docID, _, err := store.InsertDocument(ctx, s.DB(), store.Document{Identifier: "D1", Name: "Doc One", Version: "1.0", Type: "framework"})
	require.NoError(t, err)
	_, _, err = store.InsertElement(ctx, s.DB(), store.Element{DocumentID: docID, Type: "control", Identifier: "E1", Title: "Policy", Text: "Limit access"})
	require.NoError(t, err)
	_, _, err = store.InsertElement(ctx, s.DB(), store.Element{DocumentID: docID, Type: "control", Identifier: "E2", Title: "", Text: "Untitled control"})
	require.NoError(t, err)
	_, _, err = store.InsertRelationshipType(ctx, s.DB(), store.RelationshipType{Identifier: "related_to", Description: "Related"})
	require.NoError(t, err)
}

func TestLookupElement_Found(t *testing.T) {
	s := newTestStore(t)
	seed(t, s)
	r := New(s, NewCache())

	et, err := r.LookupElement(context.Background(), "D1", "E1")
	require.NoError(t, err)

	assert.True(t, et.Found)
	assert.Equal(t, "Policy", et.Title)
	assert.Equal(t, "Limit access", et.Text)
}

func TestLookupElement_EmptyTitleBecomesNA(t *testing.T) {
	s := newTestStore(t)
	seed(t, s)
	r := New(s, NewCache())

	et, err := r.LookupElement(context.Background(), "D1", "E2")
	require.NoError(t, err)

	assert.True(t, et.Found)
	assert.Equal(t, "N/A", et.Title)
}

func TestLookupElement_MissingYieldsSentinel(t *testing.T) {
	s := newTestStore(t)
	seed(t, s)
	r := New(s, NewCache())

	et, err := r.LookupElement(context.Background(), "D9", "E404")
	require.NoError(t, err, "a missing element is a value, not an error")

	assert.False(t, et.Found)
	assert.Equal(t, "Element not found", et.Title)
	assert.Equal(t, "Could not locate element E404 in document D9", et.Text)
}

func TestLookupElement_CachesPerPair(t *testing.T) {
	s := newTestStore(t)
	seed(t, s)
	cache := NewCache()
	r := New(s, cache)
	ctx := context.Background()

	first, err := r.LookupElement(ctx, "D1", "E1")
	require.NoError(t, err)
	require.Equal(t, 1, cache.Len())

	// Mutate the row behind the cache; a repeat lookup must not see it.
	_, err = s.DB().Exec("UPDATE elements SET text = 'changed' WHERE element_identifier = 'E1'")
	require.NoError(t, err)

	second, err := r.LookupElement(ctx, "D1", "E1")
	require.NoError(t, err)
	assert.Equal(t, first, second, "repeat lookup must be served from cache")
	assert.Equal(t, 1, cache.Len())

	_, err = r.LookupElement(ctx, "D1", "E2")
	require.NoError(t, err)
	assert.Equal(t, 2, cache.Len(), "distinct pairs cache separately")
}

func TestBuildIndexAndResolve(t *testing.T) {
	s := newTestStore(t)
	seed(t, s)
	ctx := context.Background()

	_, _, err := store.InsertDocument(ctx, s.DB(), store.Document{Identifier: "P", Name: "Mapping Run", Version: "1.0", Type: store.MappingDocumentType})
	require.NoError(t, err)

	idx, err := BuildIndex(ctx, s.DB())
	require.NoError(t, err)

	rel, missing := idx.Resolve(RelationshipRefs{
		SourceDoc: "D1", SourceElement: "E1",
		DestDoc: "D1", DestElement: "E2",
		ProvenanceDoc: "P",
		Type:          "related_to",
		Comment:       "same document edge",
	})
	require.Empty(t, missing)
	assert.NotZero(t, rel.SourceID)
	assert.NotZero(t, rel.DestID)
	assert.NotEqual(t, rel.SourceID, rel.DestID)
	assert.Equal(t, "same document edge", rel.Comment)
}

func TestResolve_ReportsEveryMissingReference(t *testing.T) {
	s := newTestStore(t)
	seed(t, s)

	idx, err := BuildIndex(context.Background(), s.DB())
	require.NoError(t, err)

	_, missing := idx.Resolve(RelationshipRefs{
		SourceDoc: "D1", SourceElement: "E1",
		DestDoc: "D2", DestElement: "E9",
		ProvenanceDoc: "NOPE",
		Type:          "unheard_of",
	})

	require.Len(t, missing, 3)
	assert.Equal(t, "dest (D2, E9)", missing[0])
	assert.Equal(t, "provenance doc (NOPE)", missing[1])
	assert.Equal(t, "relationship type (unheard_of)", missing[2])
}
