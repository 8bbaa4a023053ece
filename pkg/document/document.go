// Package document turns files into plain text plus a display name, the input
// shape the memory service ingests.
package document

import (
	"bytes"
	"io"
	"os"
	"path/filepath"
	"strings"

	"github.com/m-mizutani/goerr/v2"
)

var (
	ErrUnsupportedFormat = goerr.New("unsupported document format")
	ErrEmptyDocument     = goerr.New("document has no extractable text")
)

// Document is extracted text with its provenance.
type Document struct {
	// Name is shown to the user and stored as the memory source.
	Name string
	Text string
	// Pages is the page count for paginated formats, zero otherwise.
	Pages int
	MIME  string
}

// Load reads path and dispatches on its extension.
func Load(path string) (Document, error) {
	raw, err := os.ReadFile(path)
	if err != nil {
		return Document{}, goerr.Wrap(err, "failed to read document", goerr.V("path", path))
	}
	name := filepath.Base(path)
	switch strings.ToLower(filepath.Ext(path)) {
	case ".pdf":
		return LoadPDF(name, bytes.NewReader(raw), int64(len(raw)))
	case ".md", ".markdown":
		return LoadMarkdown(name, bytes.NewReader(raw))
	case ".txt", ".text", ".log", "":
		return LoadText(name, bytes.NewReader(raw))
	default:
		return Document{}, goerr.Wrap(ErrUnsupportedFormat, "unknown extension", goerr.V("path", path))
	}
}

// LoadText reads plain UTF-8 text.
func LoadText(name string, r io.Reader) (Document, error) {
	raw, err := io.ReadAll(r)
	if err != nil {
		return Document{}, goerr.Wrap(err, "failed to read text", goerr.V("name", name))
	}
	text := strings.TrimSpace(string(raw))
	if text == "" {
		return Document{}, goerr.Wrap(ErrEmptyDocument, "text file is blank", goerr.V("name", name))
	}
	return Document{Name: name, Text: text, MIME: "text/plain"}, nil
}
