package match

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestSimilarity(t *testing.T) {
	tests := []struct {
		name string
		a, b string
		want float64
	}{
		{"identical", "golden dragon", "golden dragon", 1},
		{"disjoint", "vvvv", "zzzz", 0},
		{"one substitution", "abcd", "abzd", 0.75},
		{"prefix", "ab", "abcd", 0.5},
		{"both empty", "", "", 0},
		{"one empty", "abc", "", 0},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.InDelta(t, tt.want, Similarity(tt.a, tt.b), 1e-9)
		})
	}
}

func TestSimilarity_Symmetric(t *testing.T) {
	pairs := [][2]string{
		{"blue bottle coffee", "blue bottle"},
		{"taqueria el farolito", "el farolito"},
		{"a", "xyz"},
	}
	for _, p := range pairs {
		assert.Equal(t, Similarity(p[0], p[1]), Similarity(p[1], p[0]))
	}
}

func TestSimilarity_Unicode(t *testing.T) {
	// Rune-based, not byte-based.
	assert.InDelta(t, 1.0, Similarity("münchen", "münchen"), 1e-9)
	assert.Greater(t, Similarity("münchen", "munchen"), 0.8)
}
