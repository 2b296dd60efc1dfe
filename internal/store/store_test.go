package store

import (
	"context"
	"os"
	"path/filepath"
	"testing"

	"github.com/jmoiron/sqlx"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func newTestStore(t *testing.T) *Store {
	t.Helper()
	s, err := Open(filepath.Join(t.TempDir(), "test.db"))
	require.NoError(t, err)
	t.Cleanup(func() { s.Close() })
	return s
}

func TestOpen_CreatesNewDatabase(t *testing.T) {
	path := filepath.Join(t.TempDir(), "graph.db")

	s, err := Open(path)
	require.NoError(t, err)
	defer s.Close()

	_, err = os.Stat(path)
	assert.NoError(t, err, "database file should exist")
}

func TestOpen_Idempotent(t *testing.T) {
	path := filepath.Join(t.TempDir(), "graph.db")

	for i := 0; i < 3; i++ {
		s, err := Open(path)
		require.NoError(t, err, "open iteration %d", i)
		require.NoError(t, s.Close())
	}
}

func TestOpen_PreservesDataAcrossReopen(t *testing.T) {
	path := filepath.Join(t.TempDir(), "graph.db")
	ctx := context.Background()

	s1, err := Open(path)
	require.NoError(t, err)
	_, inserted, err := InsertDocument(ctx, s1.DB(), Document{Identifier: "D1", Name: "Doc One", Version: "1.0", Type: "framework"})
	require.NoError(t, err)
	require.True(t, inserted)
	require.NoError(t, s1.Close())

	s2, err := Open(path)
	require.NoError(t, err)
	defer s2.Close()

	doc, err := s2.DocumentByIdentifier(ctx, "D1")
	require.NoError(t, err)
	assert.Equal(t, "Doc One", doc.Name)
}

func TestValidateStructure_HealthyDatabase(t *testing.T) {
	s := newTestStore(t)
	assert.NoError(t, s.ValidateStructure(context.Background()))
}

func TestValidateStructure_MissingTable(t *testing.T) {
	s := newTestStore(t)
	ctx := context.Background()

	_, err := s.DB().Exec("DROP TABLE relationships")
	require.NoError(t, err)

	err = s.ValidateStructure(ctx)
	var structural *StructuralError
	require.ErrorAs(t, err, &structural)
	assert.Contains(t, structural.Missing, "table relationships")
}

func TestInsertDocument_FirstWriteWins(t *testing.T) {
	s := newTestStore(t)
	ctx := context.Background()

	id1, inserted, err := InsertDocument(ctx, s.DB(), Document{Identifier: "D1", Name: "Original", Version: "1.0", Type: "framework"})
	require.NoError(t, err)
	assert.True(t, inserted)

	id2, inserted, err := InsertDocument(ctx, s.DB(), Document{Identifier: "D1", Name: "Replacement", Version: "2.0", Type: "framework"})
	require.NoError(t, err)
	assert.False(t, inserted, "duplicate identifier must not insert")
	assert.Equal(t, id1, id2, "conflict must return the existing id")

	doc, err := s.DocumentByIdentifier(ctx, "D1")
	require.NoError(t, err)
	assert.Equal(t, "Original", doc.Name, "existing row must be left untouched")
}

func TestInsertElement_DeduplicatesOnFullIdentity(t *testing.T) {
	s := newTestStore(t)
	ctx := context.Background()

	docID, _, err := InsertDocument(ctx, s.DB(), Document{Identifier: "D1", Name: "Doc", Version: "1.0", Type: "framework"})
	require.NoError(t, err)

	elem := Element{DocumentID: docID, Type: "control", Identifier: "AC-1", Title: "Policy", Text: "Limit access"}

	id1, inserted, err := InsertElement(ctx, s.DB(), elem)
	require.NoError(t, err)
	assert.True(t, inserted)

	id2, inserted, err := InsertElement(ctx, s.DB(), elem)
	require.NoError(t, err)
	assert.False(t, inserted)
	assert.Equal(t, id1, id2)

	// Same identifier with different text is a distinct element.
	elem.Text = "Limit access to authorized users"
	id3, inserted, err := InsertElement(ctx, s.DB(), elem)
	require.NoError(t, err)
	assert.True(t, inserted)
	assert.NotEqual(t, id1, id3)
}

func TestInsertRelationship_UniqueTuple(t *testing.T) {
	s := newTestStore(t)
	ctx := context.Background()
	ids := seedGraph(t, s)

	rel := Relationship{SourceID: ids.e1, DestID: ids.e3, ProvDocID: ids.prov, TypeID: ids.typeID, Comment: "first"}

	inserted, err := InsertRelationship(ctx, s.DB(), rel)
	require.NoError(t, err)
	assert.True(t, inserted)

	rel.Comment = "second"
	inserted, err = InsertRelationship(ctx, s.DB(), rel)
	require.NoError(t, err)
	assert.False(t, inserted, "same (source, dest, provenance, type) must be a no-op")

	rows, err := s.ExportRelationships(ctx, nil)
	require.NoError(t, err)
	require.Len(t, rows, 1)
	assert.Equal(t, "first", rows[0].Comment, "original comment must survive re-assertion")
}

func TestWithTx_RollbackOnError(t *testing.T) {
	s := newTestStore(t)
	ctx := context.Background()

	err := s.WithTx(ctx, func(tx *sqlx.Tx) error {
		_, _, err := InsertDocument(ctx, tx, Document{Identifier: "D1", Name: "Doc", Version: "1.0", Type: "framework"})
		require.NoError(t, err)
		return assert.AnError
	})
	require.ErrorIs(t, err, assert.AnError)

	_, err = s.DocumentByIdentifier(ctx, "D1")
	assert.ErrorIs(t, err, ErrNotFound, "rolled-back insert must not be visible")
}

func TestCascadeDelete_DocumentRemovesElementsAndRelationships(t *testing.T) {
	s := newTestStore(t)
	ctx := context.Background()
	ids := seedGraph(t, s)

	_, err := InsertRelationship(ctx, s.DB(), Relationship{
		SourceID: ids.e1, DestID: ids.e3, ProvDocID: ids.prov, TypeID: ids.typeID,
	})
	require.NoError(t, err)

	_, err = s.DB().Exec("DELETE FROM documents WHERE doc_identifier = 'D1'")
	require.NoError(t, err)

	var elements, relationships int
	require.NoError(t, s.DB().Get(&elements, "SELECT COUNT(*) FROM elements"))
	require.NoError(t, s.DB().Get(&relationships, "SELECT COUNT(*) FROM relationships"))
	assert.Equal(t, 1, elements, "only D2's element should remain")
	assert.Zero(t, relationships, "edges touching deleted elements must cascade")
}

type graphIDs struct {
	d1, d2, prov int64
	e1, e2, e3   int64
	typeID       int64
}

// seedGraph inserts two documents with elements, a provenance document, and
// one relationship type.
func seedGraph(t *testing.T, s *Store) graphIDs {
	t.Helper()
	ctx := context.Background()

	var ids graphIDs
	var err error

	ids.d1, _, err = InsertDocument(ctx, s.DB(), Document{Identifier: "D1", Name: "Doc One", Version: "1.0", Website: "https://one.example", Type: "framework"})
	require.NoError(t, err)
	ids.d2, _, err = InsertDocument(ctx, s.DB(), Document{Identifier: "D2", Name: "Doc Two", Version: "1.0", Website: "https://two.example", Type: "framework"})
	require.NoError(t, err)
	ids.prov, _, err = InsertDocument(ctx, s.DB(), Document{Identifier: "P", Name: "Mapping Run", Version: "1.0", Type: MappingDocumentType})
	require.NoError(t, err)

	ids.e1, _, err = InsertElement(ctx, s.DB(), Element{DocumentID: ids.d1, Type: "control", Identifier: "E1", Title: "Access Control Policy", Text: "Limit system access"})
	require.NoError(t, err)
	ids.e2, _, err = InsertElement(ctx, s.DB(), Element{DocumentID: ids.d1, Type: "control", Identifier: "E2", Title: "Audit Logging", Text: "Record auditable events"})
	require.NoError(t, err)
	ids.e3, _, err = InsertElement(ctx, s.DB(), Element{DocumentID: ids.d2, Type: "requirement", Identifier: "E3", Title: "AC-1", Text: "Policy and procedures"})
	require.NoError(t, err)

	ids.typeID, _, err = InsertRelationshipType(ctx, s.DB(), RelationshipType{Identifier: "related_to", Description: "Related"})
	require.NoError(t, err)

	return ids
}
