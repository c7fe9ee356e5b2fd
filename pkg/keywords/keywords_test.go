package keywords

import (
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestExtractRanksNounsByFrequency(t *testing.T) {
	e := NewExtractor(3)
	text := strings.Repeat("The contract covers insurance. ", 3) +
		"The contract names a beneficiary. Insurance premiums apply."

	got := e.Extract(text)
	require.NotEmpty(t, got)
	assert.LessOrEqual(t, len(got), 3)
	assert.Contains(t, got, "contract")
	assert.Contains(t, got, "insurance")
	// Most frequent noun first.
	assert.Equal(t, "contract", got[0])
}

func TestExtractEmptyAndGarbage(t *testing.T) {
	e := NewExtractor(5)
	assert.Empty(t, e.Extract(""))
	assert.Empty(t, e.Extract("   \n  "))
	assert.Empty(t, e.Extract("12 34 !! ??"))
}

func TestExtractFiltersStopWordsAndShortTokens(t *testing.T) {
	e := NewExtractor(10)
	got := e.Extract("The document describes a payment schedule on page one.")
	assert.NotContains(t, got, "the")
	assert.NotContains(t, got, "document")
	assert.NotContains(t, got, "page")
	assert.Contains(t, got, "payment")
	assert.Contains(t, got, "schedule")
}

func TestExtractCapDefaulting(t *testing.T) {
	e := NewExtractor(0)
	assert.Equal(t, DefaultMaxPerChunk, e.maxPerChunk)

	text := "Alpha beta gamma delta epsilon zeta kappa lambda sigma omega " +
		"engine turbine reactor compressor valve piston manifold gasket"
	got := e.Extract(text)
	assert.LessOrEqual(t, len(got), DefaultMaxPerChunk)
}

func TestNormalize(t *testing.T) {
	tests := []struct {
		in   string
		want string
	}{
		{"Payment", "payment"},
		{"the", ""},
		{"ab", ""},
		{"v1.2", ""},
		{"well-being", "well-being"},
		{"  Risk  ", "risk"},
	}
	for _, tt := range tests {
		assert.Equal(t, tt.want, normalize(tt.in), tt.in)
	}
}

func TestMerge(t *testing.T) {
	lists := [][]string{
		{"alpha", "beta"},
		{"beta", "gamma"},
		{"delta"},
	}
	assert.Equal(t, []string{"alpha", "beta", "gamma", "delta"}, Merge(lists, 0))
	assert.Equal(t, []string{"alpha", "beta", "gamma"}, Merge(lists, 3))
	assert.Empty(t, Merge(nil, 5))
}
