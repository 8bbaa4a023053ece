package document_test

import (
	"regexp"
	"testing"

	"github.com/stretchr/testify/assert"

	"github.com/Protocol-Lattice/recall/pkg/document"
)

func TestRedactorMasksContactDetails(t *testing.T) {
	r := document.NewRedactor()
	out, n := r.Redact("Mail jane.doe@example.com or call 555-123-4567 today.")
	assert.Equal(t, 2, n)
	assert.Equal(t, "Mail [REDACTED] or call [REDACTED] today.", out)
}

func TestRedactorExtraPatterns(t *testing.T) {
	r := document.NewRedactor(regexp.MustCompile(`ACCT-\d+`))
	doc, n := r.Apply(document.Document{Name: "a.txt", Text: "ref ACCT-42 and ACCT-7"})
	assert.Equal(t, 2, n)
	assert.Equal(t, "ref [REDACTED] and [REDACTED]", doc.Text)
	assert.Equal(t, "a.txt", doc.Name)
}

func TestRedactorLeavesCleanText(t *testing.T) {
	out, n := document.NewRedactor().Redact("nothing to hide here")
	assert.Zero(t, n)
	assert.Equal(t, "nothing to hide here", out)
}
