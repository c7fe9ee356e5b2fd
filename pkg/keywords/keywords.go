// Package keywords extracts representative noun keywords from chunk text
// using POS tagging. Extraction is best-effort: a chunk that fails tagging
// simply yields no keywords.
package keywords

import (
	"sort"
	"strings"
	"unicode"

	"github.com/jdkato/prose/v2"
)

// DefaultMaxPerChunk is the keyword cap per chunk when none is configured.
const DefaultMaxPerChunk = 5

const minWordLength = 3

// Noun tags kept from the Penn Treebank tag set.
var nounTags = map[string]bool{
	"NN":   true,
	"NNS":  true,
	"NNP":  true,
	"NNPS": true,
}

var stopWords = map[string]bool{
	"the": true, "and": true, "for": true, "are": true, "but": true,
	"not": true, "you": true, "all": true, "can": true, "had": true,
	"her": true, "was": true, "one": true, "our": true, "out": true,
	"day": true, "get": true, "has": true, "him": true, "his": true,
	"how": true, "its": true, "may": true, "new": true, "now": true,
	"old": true, "see": true, "two": true, "way": true, "who": true,
	"did": true, "use": true, "any": true, "this": true, "that": true,
	"with": true, "from": true, "have": true, "your": true, "were": true,
	"been": true, "will": true, "they": true, "them": true, "than": true,
	"then": true, "when": true, "what": true, "which": true, "their": true,
	"there": true, "these": true, "those": true, "would": true, "could": true,
	"should": true, "about": true, "other": true, "into": true, "only": true,
	"some": true, "such": true, "time": true, "more": true, "also": true,
	"page": true, "pages": true, "document": true, "section": true,
	"figure": true, "table": true, "chapter": true,
}

type Extractor struct {
	maxPerChunk int
}

func NewExtractor(maxPerChunk int) *Extractor {
	if maxPerChunk <= 0 {
		maxPerChunk = DefaultMaxPerChunk
	}
	return &Extractor{maxPerChunk: maxPerChunk}
}

// Extract returns up to maxPerChunk nouns ranked by frequency. Ties break
// alphabetically so results are deterministic. Tagging errors yield an empty
// list, never an error.
func (e *Extractor) Extract(text string) []string {
	ranked := e.rank(text)
	if len(ranked) > e.maxPerChunk {
		ranked = ranked[:e.maxPerChunk]
	}
	return ranked
}

func (e *Extractor) rank(text string) []string {
	text = strings.TrimSpace(text)
	if text == "" {
		return nil
	}

	doc, err := prose.NewDocument(text, prose.WithSegmentation(false))
	if err != nil {
		return nil
	}

	freq := make(map[string]int)
	for _, tok := range doc.Tokens() {
		if !nounTags[tok.Tag] {
			continue
		}
		word := normalize(tok.Text)
		if word == "" {
			continue
		}
		freq[word]++
	}

	words := make([]string, 0, len(freq))
	for w := range freq {
		words = append(words, w)
	}
	sort.Slice(words, func(i, j int) bool {
		if freq[words[i]] != freq[words[j]] {
			return freq[words[i]] > freq[words[j]]
		}
		return words[i] < words[j]
	})
	return words
}

// normalize lowercases and filters candidates: too short, stop words, and
// tokens that are not purely letters are dropped.
func normalize(token string) string {
	word := strings.ToLower(strings.TrimSpace(token))
	if len([]rune(word)) < minWordLength || stopWords[word] {
		return ""
	}
	for _, r := range word {
		if !unicode.IsLetter(r) && r != '-' {
			return ""
		}
	}
	return word
}

// Merge deduplicates chunk keyword lists into a document rollup, preserving
// first-seen order and capping at max entries.
func Merge(lists [][]string, max int) []string {
	seen := make(map[string]bool)
	var out []string
	for _, list := range lists {
		for _, kw := range list {
			if seen[kw] {
				continue
			}
			seen[kw] = true
			out = append(out, kw)
			if max > 0 && len(out) >= max {
				return out
			}
		}
	}
	return out
}
