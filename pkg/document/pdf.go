package document

import (
	"io"
	"strings"

	"github.com/ledongthuc/pdf"
	"github.com/m-mizutani/goerr/v2"
)

// LoadPDF extracts plain text page by page and joins pages with newlines.
// Pages without a text layer are skipped.
func LoadPDF(name string, ra io.ReaderAt, size int64) (Document, error) {
	rdr, err := pdf.NewReader(ra, size)
	if err != nil {
		return Document{}, goerr.Wrap(err, "failed to open pdf", goerr.V("name", name))
	}

	n := rdr.NumPage()
	pages := make([]string, 0, n)
	for i := 1; i <= n; i++ {
		pg := rdr.Page(i)
		if pg.V.IsNull() {
			continue
		}
		txt, err := pg.GetPlainText(nil)
		if err != nil {
			continue
		}
		if s := strings.TrimSpace(txt); s != "" {
			pages = append(pages, s)
		}
	}

	out := strings.TrimSpace(strings.Join(pages, "\n"))
	if out == "" {
		return Document{}, goerr.Wrap(ErrEmptyDocument, "pdf has no text layer", goerr.V("name", name), goerr.V("pages", n))
	}
	return Document{Name: name, Text: out, Pages: n, MIME: "application/pdf"}, nil
}
