// Package chunk splits text into overlapping, size-bounded segments that prefer
// paragraph, sentence and word boundaries over hard cuts.
package chunk

import (
	"unicode"

	"github.com/m-mizutani/goerr/v2"
)

const (
	DefaultSize    = 1024
	DefaultOverlap = 100
)

var ErrInvalidOptions = goerr.New("invalid chunk options")

// Chunk is one segment of a source text. Sizes are measured in runes.
type Chunk struct {
	Text    string
	Ordinal int
	// Overlap is the number of leading runes repeated from the previous chunk.
	Overlap int
}

// boundaries lists separator groups from most to least preferred. Within a
// group the latest occurrence wins.
var boundaries = [][]string{
	{"\n\n"},
	{"\n"},
	{". ", "! ", "? ", ".\t", "!\t", "?\t"},
	{" ", "\t"},
}

// Splitter holds chunking parameters. The zero value uses the defaults.
type Splitter struct {
	Size    int
	Overlap int
}

func (s Splitter) withDefaults() Splitter {
	if s.Size == 0 {
		s.Size = DefaultSize
		if s.Overlap == 0 {
			s.Overlap = DefaultOverlap
		}
	}
	return s
}

// Split applies the splitter's parameters to text.
func (s Splitter) Split(text string) ([]Chunk, error) {
	s = s.withDefaults()
	return Split(text, s.Size, s.Overlap)
}

// Split cuts text into chunks of at most size runes. Every chunk after the
// first starts with up to overlap runes copied from the end of its
// predecessor. Dropping each chunk's Overlap prefix and concatenating the rest
// reproduces text exactly.
func Split(text string, size, overlap int) ([]Chunk, error) {
	if size <= 0 || overlap < 0 || overlap >= size {
		return nil, goerr.Wrap(ErrInvalidOptions, "overlap must satisfy 0 <= overlap < size",
			goerr.V("size", size), goerr.V("overlap", overlap))
	}
	if text == "" {
		return nil, nil
	}

	runes := []rune(text)
	n := len(runes)
	if n <= size {
		return []Chunk{{Text: text, Ordinal: 0}}, nil
	}

	var (
		chunks    []Chunk
		pos       int
		prevStart int
	)
	for pos < n {
		start := pos
		if len(chunks) > 0 {
			start = overlapStart(runes, prevStart, pos, overlap)
		}
		prefix := pos - start
		budget := size - prefix

		end := n
		if pos+budget < n {
			end = pos + cutPoint(runes[pos:pos+budget])
		}

		chunks = append(chunks, Chunk{
			Text:    string(runes[start:end]),
			Ordinal: len(chunks),
			Overlap: prefix,
		})
		prevStart = start
		pos = end
	}
	return chunks, nil
}

// overlapStart picks where the next chunk begins inside the previous chunk
// [prevStart, pos). The start moves forward to a word start when one exists so
// the repeated prefix does not begin mid-word.
func overlapStart(runes []rune, prevStart, pos, overlap int) int {
	start := pos - overlap
	if start < prevStart {
		start = prevStart
	}
	if start == 0 || unicode.IsSpace(runes[start-1]) {
		return start
	}
	for j := start + 1; j < pos; j++ {
		if unicode.IsSpace(runes[j-1]) && !unicode.IsSpace(runes[j]) {
			return j
		}
	}
	return start
}

// cutPoint returns how many runes of window to keep. Boundaries that keep at
// least half the window are preferred; any boundary beats a hard cut.
func cutPoint(window []rune) int {
	minFill := len(window) / 2
	if minFill < 1 {
		minFill = 1
	}
	if cut := boundaryCut(window, minFill); cut > 0 {
		return cut
	}
	if cut := boundaryCut(window, 1); cut > 0 {
		return cut
	}
	return len(window)
}

func boundaryCut(window []rune, minFill int) int {
	for _, group := range boundaries {
		best := 0
		for _, sep := range group {
			idx := lastIndex(window, []rune(sep))
			if idx < 0 {
				continue
			}
			if cut := idx + len([]rune(sep)); cut > best {
				best = cut
			}
		}
		if best >= minFill {
			return best
		}
	}
	return 0
}

func lastIndex(rs, sep []rune) int {
	for i := len(rs) - len(sep); i >= 0; i-- {
		match := true
		for j := range sep {
			if rs[i+j] != sep[j] {
				match = false
				break
			}
		}
		if match {
			return i
		}
	}
	return -1
}
