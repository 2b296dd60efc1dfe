package exporter

import (
	"bytes"
	"context"
	"path/filepath"
	"testing"

	"github.com/sebdah/goldie/v2"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/mappergraph/crosswalk/internal/importer"
	"github.com/mappergraph/crosswalk/internal/store"
	"github.com/mappergraph/crosswalk/internal/xlsx"
)

func newTestStore(t *testing.T) *store.Store {
	t.Helper()
	s, err := store.Open(filepath.Join(t.TempDir(), "test.db"))
	require.NoError(t, err)
	t.Cleanup(func() { s.Close() })
	return s
}

type seededIDs struct {
	e1, e2, e3 int64
	prov, typ  int64
}

func seedGraph(t *testing.T, s *store.Store) seededIDs {
	t.Helper()
	ctx := context.Background()

	d1, _, err := store.InsertDocument(ctx, s.DB(), store.Document{Identifier: "D1", Name: "Doc One", Version: "1.0", Website: "https://one.example", Type: "framework"})
	require.NoError(t, err)
	d2, _, err := store.InsertDocument(ctx, s.DB(), store.Document{Identifier: "D2", Name: "Doc Two", Version: "1.0", Website: "https://two.example", Type: "framework"})
	require.NoError(t, err)

	var ids seededIDs
	ids.prov, _, err = store.InsertDocument(ctx, s.DB(), store.Document{Identifier: "P", Name: "Mapping Run", Version: "1.0", Type: store.MappingDocumentType})
	require.NoError(t, err)

	ids.e1, _, err = store.InsertElement(ctx, s.DB(), store.Element{DocumentID: d1, Type: "control", Identifier: "E1", Title: "Access Control Policy", Text: "Limit system access"})
	require.NoError(t, err)
	ids.e2, _, err = store.InsertElement(ctx, s.DB(), store.Element{DocumentID: d1, Type: "control", Identifier: "E2", Title: "Audit Logging", Text: "Record auditable events"})
	require.NoError(t, err)
	ids.e3, _, err = store.InsertElement(ctx, s.DB(), store.Element{DocumentID: d2, Type: "requirement", Identifier: "E3", Title: "AC-1", Text: "Policy and procedures"})
	require.NoError(t, err)

	ids.typ, _, err = store.InsertRelationshipType(ctx, s.DB(), store.RelationshipType{Identifier: "related_to", Description: "Related", Value: "1"})
	require.NoError(t, err)

	return ids
}

func TestRows_EmptyGraphIsReportable(t *testing.T) {
	s := newTestStore(t)
	exp := New(s)

	_, err := exp.Rows(context.Background(), nil)
	assert.ErrorIs(t, err, ErrNoRelationships)

	seedGraph(t, s)
	_, err = exp.Rows(context.Background(), []string{"UNKNOWN"})
	assert.ErrorIs(t, err, ErrNoRelationships, "a filter matching nothing reports the same way")
}

func TestWriteCSV_Golden(t *testing.T) {
	s := newTestStore(t)
	ids := seedGraph(t, s)
	ctx := context.Background()

	_, err := store.InsertRelationship(ctx, s.DB(), store.Relationship{
		SourceID: ids.e1, DestID: ids.e3, ProvDocID: ids.prov, TypeID: ids.typ, Comment: "seed",
	})
	require.NoError(t, err)
	_, err = store.InsertRelationship(ctx, s.DB(), store.Relationship{
		SourceID: ids.e2, DestID: ids.e3, ProvDocID: ids.prov, TypeID: ids.typ,
	})
	require.NoError(t, err)

	rows, err := New(s).Rows(ctx, nil)
	require.NoError(t, err)

	var buf bytes.Buffer
	require.NoError(t, WriteCSV(&buf, rows))

	g := goldie.New(t)
	g.Assert(t, "relationships_csv", buf.Bytes())
}

func TestBundleSheets_RestrictedToReferencedRows(t *testing.T) {
	s := newTestStore(t)
	ids := seedGraph(t, s)
	ctx := context.Background()

	// An extra document and type that no exported relationship touches.
	d3, _, err := store.InsertDocument(ctx, s.DB(), store.Document{Identifier: "D3", Name: "Bystander", Version: "1.0", Type: "framework"})
	require.NoError(t, err)
	_, _, err = store.InsertElement(ctx, s.DB(), store.Element{DocumentID: d3, Type: "control", Identifier: "X1", Title: "Unused", Text: "Not referenced"})
	require.NoError(t, err)
	_, _, err = store.InsertRelationshipType(ctx, s.DB(), store.RelationshipType{Identifier: "unused_type", Description: "Never asserted"})
	require.NoError(t, err)

	_, err = store.InsertRelationship(ctx, s.DB(), store.Relationship{
		SourceID: ids.e1, DestID: ids.e3, ProvDocID: ids.prov, TypeID: ids.typ,
	})
	require.NoError(t, err)

	exp := New(s)
	rows, err := exp.Rows(ctx, nil)
	require.NoError(t, err)

	sheets, err := exp.BundleSheets(ctx, rows)
	require.NoError(t, err)
	require.Len(t, sheets, 4)

	docs := sheets[0]
	require.Equal(t, "documents", docs.Name)
	gotDocs := make([]string, 0)
	for _, row := range docs.Rows[1:] {
		gotDocs = append(gotDocs, row[0])
	}
	assert.ElementsMatch(t, []string{"D1", "D2", "P"}, gotDocs,
		"provenance included, bystander excluded")

	elements := sheets[1]
	require.Equal(t, "elements", elements.Name)
	assert.Len(t, elements.Rows, 3, "header plus the two endpoint elements")

	relationships := sheets[2]
	require.Equal(t, "relationships", relationships.Name)
	assert.Equal(t, RelationshipHeader, relationships.Rows[0])

	types := sheets[3]
	require.Equal(t, "relationship_types", types.Name)
	require.Len(t, types.Rows, 2)
	assert.Equal(t, "related_to", types.Rows[1][0])
}

func TestWriteWorkbook_RoundTripsThroughImport(t *testing.T) {
	s := newTestStore(t)
	ids := seedGraph(t, s)
	ctx := context.Background()

	_, err := store.InsertRelationship(ctx, s.DB(), store.Relationship{
		SourceID: ids.e1, DestID: ids.e3, ProvDocID: ids.prov, TypeID: ids.typ, Comment: "round trip",
	})
	require.NoError(t, err)

	exp := New(s)
	rows, err := exp.Rows(ctx, nil)
	require.NoError(t, err)
	sheets, err := exp.BundleSheets(ctx, rows)
	require.NoError(t, err)

	path := filepath.Join(t.TempDir(), "bundle.xlsx")
	require.NoError(t, xlsx.Write(path, sheets))

	fresh := newTestStore(t)
	result := importer.New(fresh, nil).ImportFile(ctx, path)
	require.NoError(t, result.Err)
	assert.Empty(t, result.Skipped, "an exported bundle must be self contained")
	assert.Equal(t, 1, result.Counts.Relationships)

	reimported, err := fresh.ExportRelationships(ctx, nil)
	require.NoError(t, err)
	require.Len(t, reimported, 1)
	assert.Equal(t, "E1", reimported[0].SourceElement)
	assert.Equal(t, "E3", reimported[0].DestElement)
	assert.Equal(t, "P", reimported[0].ProvenanceDoc)
	assert.Equal(t, "round trip", reimported[0].Comment)
}
