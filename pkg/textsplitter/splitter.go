// Package textsplitter produces fixed-size overlapping chunks from extracted
// page text, preserving page attribution. Windows never span page boundaries.
package textsplitter

import (
	"strings"

	"github.com/emergent-company/docpipe/pkg/textextract"
)

type Config struct {
	ChunkSize    int
	ChunkOverlap int
}

func DefaultConfig() Config {
	return Config{
		ChunkSize:    1000,
		ChunkOverlap: 200,
	}
}

// Chunk is one window of page text. Index is the document-wide ordinal
// starting at 0; Page is the 1-based source page.
type Chunk struct {
	Index     int
	Page      int
	Content   string
	CharCount int
}

// SplitPages chunks every page with a sliding window of ChunkSize runes that
// advances by ChunkSize-ChunkOverlap. The window resets at each page boundary
// so no chunk mixes text from two pages. Chunk indexes are continuous across
// the whole document.
func SplitPages(pages []textextract.PageText, cfg Config) []Chunk {
	if cfg.ChunkSize <= 0 {
		cfg.ChunkSize = 1000
	}
	if cfg.ChunkOverlap < 0 {
		cfg.ChunkOverlap = 0
	}
	if cfg.ChunkOverlap >= cfg.ChunkSize {
		cfg.ChunkOverlap = cfg.ChunkSize / 5
	}

	var chunks []Chunk
	index := 0
	for _, page := range pages {
		for _, content := range splitPage(page.Text, cfg) {
			chunks = append(chunks, Chunk{
				Index:     index,
				Page:      page.Page,
				Content:   content,
				CharCount: len([]rune(content)),
			})
			index++
		}
	}
	return chunks
}

// splitPage windows a single page. Step is ChunkSize-ChunkOverlap; the final
// window may be shorter than ChunkSize but is never empty after trimming.
func splitPage(text string, cfg Config) []string {
	runes := []rune(strings.TrimSpace(text))
	if len(runes) == 0 {
		return nil
	}
	if len(runes) <= cfg.ChunkSize {
		return []string{string(runes)}
	}

	step := cfg.ChunkSize - cfg.ChunkOverlap
	var out []string
	for start := 0; start < len(runes); start += step {
		end := start + cfg.ChunkSize
		if end > len(runes) {
			end = len(runes)
		}
		chunk := strings.TrimSpace(string(runes[start:end]))
		if chunk != "" {
			out = append(out, chunk)
		}
		if end == len(runes) {
			break
		}
	}
	return out
}
