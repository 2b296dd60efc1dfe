package xlsx

import (
	"bytes"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestWriteRead_RoundTrip(t *testing.T) {
	path := filepath.Join(t.TempDir(), "book.xlsx")
	sheets := []Sheet{
		{Name: "documents", Rows: [][]string{
			{"doc_identifier", "name"},
			{"D1", "Doc One"},
		}},
		{Name: "elements", Rows: [][]string{
			{"doc_identifier", "element_identifier"},
			{"D1", "E1"},
		}},
	}

	require.NoError(t, Write(path, sheets))

	wb, err := Read(path)
	require.NoError(t, err)

	require.Equal(t, 2, wb.SheetCount())
	assert.Equal(t, "documents", wb.Sheets[0].Name, "no leftover default sheet, order preserved")
	assert.Equal(t, "elements", wb.Sheets[1].Name)

	docs, ok := wb.Sheet("documents")
	require.True(t, ok)
	assert.Equal(t, [][]string{{"doc_identifier", "name"}, {"D1", "Doc One"}}, docs.Rows)

	_, ok = wb.Sheet("missing")
	assert.False(t, ok)
}

func TestWriteTo_ProducesReadableWorkbook(t *testing.T) {
	var buf bytes.Buffer
	err := WriteTo(&buf, []Sheet{
		{Name: "relationships", Rows: [][]string{{"source_element"}, {"E1"}}},
	})
	require.NoError(t, err)
	assert.NotZero(t, buf.Len())

	// xlsx is a zip container; check the magic bytes rather than parsing.
	assert.Equal(t, []byte{'P', 'K'}, buf.Bytes()[:2])
}

func TestRead_MissingFile(t *testing.T) {
	_, err := Read(filepath.Join(t.TempDir(), "absent.xlsx"))
	require.Error(t, err)
	assert.Contains(t, err.Error(), "absent.xlsx")
}
