package document_test

import (
	"bytes"
	"errors"
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/Protocol-Lattice/recall/pkg/document"
)

func TestLoadText(t *testing.T) {
	doc, err := document.LoadText("notes.txt", strings.NewReader("  Paris is rainy in winter.\n"))
	require.NoError(t, err)
	assert.Equal(t, "notes.txt", doc.Name)
	assert.Equal(t, "Paris is rainy in winter.", doc.Text)
	assert.Equal(t, "text/plain", doc.MIME)

	_, err = document.LoadText("blank.txt", strings.NewReader(" \n\t"))
	assert.True(t, errors.Is(err, document.ErrEmptyDocument))
}

func TestLoadMarkdownStripsMarkup(t *testing.T) {
	src := "# Trip notes\n\nParis is **rainy** in winter.\nIt has many [museums](https://example.com).\n\n" +
		"- pack an umbrella\n- visit the Louvre\n\n```\ncode line\n```\n"
	doc, err := document.LoadMarkdown("trip.md", strings.NewReader(src))
	require.NoError(t, err)

	assert.Equal(t, "text/markdown", doc.MIME)
	assert.Contains(t, doc.Text, "Trip notes")
	assert.Contains(t, doc.Text, "Paris is rainy in winter. It has many museums.")
	assert.Contains(t, doc.Text, "pack an umbrella\n\nvisit the Louvre")
	assert.Contains(t, doc.Text, "code line")
	assert.NotContains(t, doc.Text, "**")
	assert.NotContains(t, doc.Text, "https://example.com")
}

func TestLoadDispatchesOnExtension(t *testing.T) {
	dir := t.TempDir()
	md := filepath.Join(dir, "a.md")
	require.NoError(t, os.WriteFile(md, []byte("Hello *world*"), 0o600))
	txt := filepath.Join(dir, "b.txt")
	require.NoError(t, os.WriteFile(txt, []byte("plain"), 0o600))
	bin := filepath.Join(dir, "c.docx")
	require.NoError(t, os.WriteFile(bin, []byte("zip"), 0o600))

	doc, err := document.Load(md)
	require.NoError(t, err)
	assert.Equal(t, "a.md", doc.Name)
	assert.Equal(t, "Hello world", doc.Text)

	doc, err = document.Load(txt)
	require.NoError(t, err)
	assert.Equal(t, "plain", doc.Text)

	_, err = document.Load(bin)
	assert.True(t, errors.Is(err, document.ErrUnsupportedFormat))

	_, err = document.Load(filepath.Join(dir, "missing.txt"))
	assert.Error(t, err)
}

func TestLoadPDFRejectsGarbage(t *testing.T) {
	raw := []byte("not a pdf")
	_, err := document.LoadPDF("bad.pdf", bytes.NewReader(raw), int64(len(raw)))
	assert.Error(t, err)
}
