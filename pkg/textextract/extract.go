// Package textextract performs full-document text extraction from PDFs with
// an extractable text layer.
package textextract

import (
	"bytes"
	"fmt"
	"regexp"
	"strings"

	"github.com/ledongthuc/pdf"
)

// PageText is the extracted text of a single page. Pages are 1-based.
type PageText struct {
	Page int
	Text string
}

// ExtractPages extracts cleaned text for every page of the blob. Pages that
// yield no text are omitted. The underlying parser aborts on malformed
// structures; that is recovered and returned as an error.
func ExtractPages(blob []byte) (pages []PageText, err error) {
	defer func() {
		if r := recover(); r != nil {
			pages = nil
			err = fmt.Errorf("pdf text extraction panic: %v", r)
		}
	}()

	reader, err := pdf.NewReader(bytes.NewReader(blob), int64(len(blob)))
	if err != nil {
		return nil, fmt.Errorf("open pdf: %w", err)
	}

	total := reader.NumPage()
	for i := 1; i <= total; i++ {
		page := reader.Page(i)
		if page.V.IsNull() {
			continue
		}

		text, err := page.GetPlainText(nil)
		if err != nil {
			// A single unreadable page does not fail the document.
			continue
		}

		cleaned := CleanText(text)
		if cleaned == "" {
			continue
		}
		pages = append(pages, PageText{Page: i, Text: cleaned})
	}

	return pages, nil
}

var (
	multiSpace   = regexp.MustCompile(`[ \t]{2,}`)
	multiNewline = regexp.MustCompile(`\n{3,}`)
	controlChars = regexp.MustCompile("[\x00-\x08\x0b\x0c\x0e-\x1f\x7f]")
)

// CleanText normalizes extracted text: strips control characters, collapses
// runs of spaces and blank lines, trims the result.
func CleanText(text string) string {
	text = controlChars.ReplaceAllString(text, " ")
	text = strings.ReplaceAll(text, "\r\n", "\n")
	text = strings.ReplaceAll(text, "\r", "\n")
	text = multiSpace.ReplaceAllString(text, " ")
	text = multiNewline.ReplaceAllString(text, "\n\n")
	return strings.TrimSpace(text)
}

// TotalChars counts Unicode scalar values across pages.
func TotalChars(pages []PageText) int {
	total := 0
	for _, p := range pages {
		total += len([]rune(p.Text))
	}
	return total
}

// Headings harvests likely section headings: short lines that are fully
// upper-case or title-case and not sentence-like. Used for document-level
// rollups; best-effort only.
func Headings(pages []PageText, max int) []string {
	seen := make(map[string]bool)
	var out []string

	for _, p := range pages {
		for _, line := range strings.Split(p.Text, "\n") {
			line = strings.TrimSpace(line)
			if !looksLikeHeading(line) || seen[strings.ToLower(line)] {
				continue
			}
			seen[strings.ToLower(line)] = true
			out = append(out, line)
			if max > 0 && len(out) >= max {
				return out
			}
		}
	}
	return out
}

func looksLikeHeading(line string) bool {
	if line == "" || len([]rune(line)) > 80 {
		return false
	}
	if strings.HasSuffix(line, ".") || strings.HasSuffix(line, ",") {
		return false
	}
	words := strings.Fields(line)
	if len(words) == 0 || len(words) > 10 {
		return false
	}
	if line == strings.ToUpper(line) && line != strings.ToLower(line) {
		return true
	}
	// Title Case: every word longer than 3 runes starts with an upper letter.
	for _, w := range words {
		r := []rune(w)
		if len(r) <= 3 {
			continue
		}
		if r[0] < 'A' || r[0] > 'Z' {
			return false
		}
	}
	return len(words) >= 2
}
