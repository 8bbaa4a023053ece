package document

import "regexp"

// RedactedMarker replaces every redacted span.
const RedactedMarker = "[REDACTED]"

// Redactor masks personal data before text is embedded.
type Redactor struct {
	rx []*regexp.Regexp
}

// NewRedactor masks email addresses and phone-like digit runs.
func NewRedactor(extra ...*regexp.Regexp) *Redactor {
	rx := []*regexp.Regexp{
		regexp.MustCompile(`\b[\w\.-]+@[\w\.-]+\.\w+\b`),
		regexp.MustCompile(`\b(?:\+?\d{1,3}[\s-]?)?(?:\d{3}[\s-]?){2,4}\d\b`),
	}
	return &Redactor{rx: append(rx, extra...)}
}

// Redact returns text with every match replaced and the number of matches.
func (r *Redactor) Redact(text string) (string, int) {
	count := 0
	for _, re := range r.rx {
		matches := re.FindAllStringIndex(text, -1)
		if len(matches) == 0 {
			continue
		}
		count += len(matches)
		text = re.ReplaceAllString(text, RedactedMarker)
	}
	return text, count
}

// Apply returns a copy of doc with its text redacted.
func (r *Redactor) Apply(doc Document) (Document, int) {
	var n int
	doc.Text, n = r.Redact(doc.Text)
	return doc, n
}
