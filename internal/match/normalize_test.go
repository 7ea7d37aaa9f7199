package match

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestNormalizeName(t *testing.T) {
	tests := []struct {
		name string
		in   string
		want string
	}{
		{"lowercases and trims", "  Joe's Diner ", "joe's diner"},
		{"folds diacritics", "Café MÜNCHEN", "cafe munchen"},
		{"collapses whitespace", "The   Golden\tDragon", "the golden dragon"},
		{"empty", "", ""},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.want, NormalizeName(tt.in))
		})
	}
}

func TestNormalizeAddress(t *testing.T) {
	tests := []struct {
		name string
		in   string
		want string
	}{
		{"unifies street types", "123 Main Street", "123 main st"},
		{"drops punctuation", "123 Main St., Suite 4", "123 main st ste 4"},
		{"unifies directions", "456 North Oak Avenue", "456 n oak ave"},
		{"already normalized", "123 main st", "123 main st"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.want, NormalizeAddress(tt.in))
		})
	}
}

func TestNormalizeAddress_VariantsAgree(t *testing.T) {
	a := NormalizeAddress("123 Main Street, Portland")
	b := NormalizeAddress("123 Main St Portland")
	assert.Equal(t, a, b)
}

func TestNormalizePhone(t *testing.T) {
	tests := []struct {
		name string
		in   string
		want string
	}{
		{"formatted US number", "+1 (415) 555-0100", "4155550100"},
		{"dotted", "415.555.0100", "4155550100"},
		{"bare digits", "4155550100", "4155550100"},
		{"country code only stripped at 11 digits", "14155550100", "4155550100"},
		{"non-US stays intact", "442079460958", "442079460958"},
		{"empty", "", ""},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.want, NormalizePhone(tt.in))
		})
	}
}
