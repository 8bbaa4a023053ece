package chunk_test

import (
	"errors"
	"strings"
	"testing"
	"unicode/utf8"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/Protocol-Lattice/recall/pkg/chunk"
)

func reconstruct(chunks []chunk.Chunk) string {
	var b strings.Builder
	for _, c := range chunks {
		b.WriteString(string([]rune(c.Text)[c.Overlap:]))
	}
	return b.String()
}

func TestSplitEmpty(t *testing.T) {
	chunks, err := chunk.Split("", 10, 2)
	require.NoError(t, err)
	assert.Empty(t, chunks)
}

func TestSplitShortTextIsSingleChunk(t *testing.T) {
	text := "Paris is rainy in winter. Paris has many museums."
	chunks, err := chunk.Split(text, 1024, 100)
	require.NoError(t, err)
	require.Len(t, chunks, 1)
	assert.Equal(t, text, chunks[0].Text)
	assert.Equal(t, 0, chunks[0].Ordinal)
	assert.Zero(t, chunks[0].Overlap)
}

func TestSplitInvalidOptions(t *testing.T) {
	for _, tc := range []struct{ size, overlap int }{{0, 0}, {-1, 0}, {10, 10}, {10, -1}, {5, 9}} {
		_, err := chunk.Split("text", tc.size, tc.overlap)
		assert.True(t, errors.Is(err, chunk.ErrInvalidOptions), "size=%d overlap=%d", tc.size, tc.overlap)
	}
}

func TestSplitReconstructsAndBoundsSize(t *testing.T) {
	texts := []string{
		strings.Repeat("The quick brown fox jumps over the lazy dog. ", 40),
		"First paragraph is here.\n\nSecond paragraph follows with more words.\n\nThird one closes it out.",
		strings.Repeat("x", 257),
		"Zürich façade naïve café. " + strings.Repeat("Ünïcödé wörds ärë fïnë. ", 20),
		"line one\nline two\nline three\nline four\nline five\nline six",
	}
	params := []struct{ size, overlap int }{{16, 0}, {16, 4}, {50, 10}, {100, 99}, {7, 3}}

	for _, text := range texts {
		for _, p := range params {
			chunks, err := chunk.Split(text, p.size, p.overlap)
			require.NoError(t, err)
			require.NotEmpty(t, chunks)

			assert.Equal(t, text, reconstruct(chunks), "size=%d overlap=%d", p.size, p.overlap)
			for i, c := range chunks {
				assert.Equal(t, i, c.Ordinal)
				assert.LessOrEqual(t, utf8.RuneCountInString(c.Text), p.size)
				assert.LessOrEqual(t, c.Overlap, p.overlap)
				assert.Greater(t, utf8.RuneCountInString(c.Text), c.Overlap, "chunk must add new text")
			}
		}
	}
}

func TestSplitOverlapRepeatsPreviousTail(t *testing.T) {
	text := strings.Repeat("alpha beta gamma delta epsilon. ", 10)
	chunks, err := chunk.Split(text, 60, 15)
	require.NoError(t, err)
	require.Greater(t, len(chunks), 1)

	for i := 1; i < len(chunks); i++ {
		prefix := string([]rune(chunks[i].Text)[:chunks[i].Overlap])
		assert.True(t, strings.HasSuffix(chunks[i-1].Text, prefix))
		assert.Greater(t, chunks[i].Overlap, 0)
	}
}

func TestSplitPrefersParagraphBoundary(t *testing.T) {
	first := strings.Repeat("a", 30) + "\n\n"
	second := strings.Repeat("b ", 20)
	chunks, err := chunk.Split(first+second, 40, 0)
	require.NoError(t, err)
	require.GreaterOrEqual(t, len(chunks), 2)
	assert.Equal(t, first, chunks[0].Text)
}

func TestSplitPrefersSentenceOverWord(t *testing.T) {
	text := "One two three four five. Six seven eight nine ten eleven twelve"
	chunks, err := chunk.Split(text, 40, 0)
	require.NoError(t, err)
	require.GreaterOrEqual(t, len(chunks), 2)
	assert.Equal(t, "One two three four five. ", chunks[0].Text)
}

func TestSplitterDefaults(t *testing.T) {
	text := strings.Repeat("word ", 500)
	chunks, err := chunk.Splitter{}.Split(text)
	require.NoError(t, err)
	require.Len(t, chunks, 3)
	for _, c := range chunks {
		assert.LessOrEqual(t, utf8.RuneCountInString(c.Text), chunk.DefaultSize)
	}
	assert.Equal(t, text, reconstruct(chunks))
}
