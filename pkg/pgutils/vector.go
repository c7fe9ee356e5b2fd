// Package pgutils provides PostgreSQL helpers shared by the repositories.
package pgutils

import (
	"fmt"
	"strconv"
	"strings"
)

// FormatVector converts a float32 slice to the pgvector literal format.
// Example: []float32{0.1, 0.2, 0.3} -> "[0.1,0.2,0.3]"
func FormatVector(v []float32) string {
	if len(v) == 0 {
		return "[]"
	}

	var buf strings.Builder
	buf.Grow(len(v)*12 + 2)
	buf.WriteByte('[')

	for i, f := range v {
		if i > 0 {
			buf.WriteByte(',')
		}
		buf.WriteString(strconv.FormatFloat(float64(f), 'f', -1, 32))
	}

	buf.WriteByte(']')
	return buf.String()
}

// ParseVector parses a pgvector literal back into a float32 slice.
func ParseVector(s string) ([]float32, error) {
	s = strings.TrimSpace(s)
	if s == "" || s == "[]" {
		return nil, nil
	}
	if !strings.HasPrefix(s, "[") || !strings.HasSuffix(s, "]") {
		return nil, fmt.Errorf("malformed vector literal: %q", s)
	}

	parts := strings.Split(s[1:len(s)-1], ",")
	out := make([]float32, 0, len(parts))
	for _, p := range parts {
		f, err := strconv.ParseFloat(strings.TrimSpace(p), 32)
		if err != nil {
			return nil, fmt.Errorf("malformed vector element %q: %w", p, err)
		}
		out = append(out, float32(f))
	}
	return out, nil
}
