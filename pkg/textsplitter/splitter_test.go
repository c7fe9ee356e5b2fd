package textsplitter

import (
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/emergent-company/docpipe/pkg/textextract"
)

func TestSplitPagesWindowAdvance(t *testing.T) {
	// 2400 runes, size 1000, overlap 200 -> windows of 1000, 1000, 800.
	text := strings.Repeat("a", 2400)
	chunks := SplitPages([]textextract.PageText{{Page: 1, Text: text}}, Config{ChunkSize: 1000, ChunkOverlap: 200})

	require.Len(t, chunks, 3)
	assert.Equal(t, 1000, chunks[0].CharCount)
	assert.Equal(t, 1000, chunks[1].CharCount)
	assert.Equal(t, 800, chunks[2].CharCount)
	for i, c := range chunks {
		assert.Equal(t, i, c.Index)
		assert.Equal(t, 1, c.Page)
	}
}

func TestSplitPagesOverlapContent(t *testing.T) {
	var b strings.Builder
	for i := 0; i < 1500; i++ {
		b.WriteRune(rune('a' + i%26))
	}
	chunks := SplitPages([]textextract.PageText{{Page: 1, Text: b.String()}}, Config{ChunkSize: 1000, ChunkOverlap: 200})

	require.Len(t, chunks, 2)
	first := []rune(chunks[0].Content)
	second := []rune(chunks[1].Content)
	// Last 200 runes of the first chunk open the second.
	assert.Equal(t, string(first[800:]), string(second[:200]))
}

func TestSplitPagesShortPageSingleChunk(t *testing.T) {
	chunks := SplitPages([]textextract.PageText{{Page: 3, Text: "short page"}}, DefaultConfig())
	require.Len(t, chunks, 1)
	assert.Equal(t, "short page", chunks[0].Content)
	assert.Equal(t, 3, chunks[0].Page)
	assert.Equal(t, 0, chunks[0].Index)
}

func TestSplitPagesNoCrossPageWindows(t *testing.T) {
	pages := []textextract.PageText{
		{Page: 1, Text: strings.Repeat("x", 1200)},
		{Page: 2, Text: strings.Repeat("y", 300)},
	}
	chunks := SplitPages(pages, Config{ChunkSize: 1000, ChunkOverlap: 200})

	require.Len(t, chunks, 3)
	assert.Equal(t, 1, chunks[0].Page)
	assert.Equal(t, 1, chunks[1].Page)
	assert.Equal(t, 2, chunks[2].Page)
	assert.NotContains(t, chunks[1].Content, "y")
	assert.NotContains(t, chunks[2].Content, "x")
	// Indexes continue across pages.
	assert.Equal(t, []int{0, 1, 2}, []int{chunks[0].Index, chunks[1].Index, chunks[2].Index})
}

func TestSplitPagesUnicodeRuneCounting(t *testing.T) {
	text := strings.Repeat("é", 150)
	chunks := SplitPages([]textextract.PageText{{Page: 1, Text: text}}, Config{ChunkSize: 100, ChunkOverlap: 20})

	require.Len(t, chunks, 2)
	assert.Equal(t, 100, chunks[0].CharCount)
	assert.Equal(t, 70, chunks[1].CharCount)
}

func TestSplitPagesEmptyAndWhitespace(t *testing.T) {
	assert.Nil(t, SplitPages(nil, DefaultConfig()))
	assert.Nil(t, SplitPages([]textextract.PageText{{Page: 1, Text: "   \n  "}}, DefaultConfig()))
}

func TestSplitPagesInvalidConfigNormalized(t *testing.T) {
	text := strings.Repeat("z", 2500)
	chunks := SplitPages([]textextract.PageText{{Page: 1, Text: text}}, Config{ChunkSize: 0, ChunkOverlap: -5})
	require.NotEmpty(t, chunks)
	assert.Equal(t, 1000, chunks[0].CharCount)
}
