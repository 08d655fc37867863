package resolve

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestNormalizeName(t *testing.T) {
	assert.Equal(t, "john a. smith", NormalizeName("Dr. John A. Smith Jr."))
	assert.Equal(t, "jane doe", NormalizeName("  Jane   Doe  "))
	assert.Equal(t, "", NormalizeName(""))
}

func TestCanonicalizeAddress(t *testing.T) {
	assert.Equal(t, "123 main street", CanonicalizeAddress("123 Main St"))
	assert.Equal(t, "456 oak avenue suite 2", CanonicalizeAddress("456 Oak Ave Suite 2"))
	assert.Equal(t, "acme corporation", CanonicalizeAddress("Acme Corp"))
}

func TestNormalizeDate(t *testing.T) {
	cases := []struct {
		raw  string
		want string
	}{
		{"2024-01-15", "2024-01-15"},
		{"1/15/2024", "2024-01-15"},
		{"3-4-2024", "2024-03-04"},
		{"2024", "2024-01-01"},
		{"January 15, 2024", "2024-01-15"},
		{"15 Jan 2024", "2024-01-15"},
		{"sometime soon", ""},
	}
	for _, tc := range cases {
		assert.Equal(t, tc.want, NormalizeDate(tc.raw), "raw %q", tc.raw)
	}
}

func TestExtractIdentifiers(t *testing.T) {
	ids := ExtractIdentifiers(map[string]any{
		"EIN":   "12-3456789",
		"color": "blue",
		"identifiers": map[string]any{
			"Ticker": "ACME",
		},
	})
	assert.Equal(t, map[string]string{
		"ein":    "12-3456789",
		"ticker": "acme",
	}, ids)
}

func TestPreprocessAttachesNormalizedView(t *testing.T) {
	candidate := &Candidate{
		EntityType: "person",
		Properties: map[string]any{
			"name":    "Mr. John Smith",
			"aliases": []any{"J. Smith"},
			"address": "123 Main St",
			"date":    "1/15/2024",
			"ein":     "12-3456789",
		},
	}
	Preprocess(candidate)

	norm := candidate.Normalized
	assert.Equal(t, "john smith", norm.Name)
	assert.Equal(t, []string{"j. smith"}, norm.Aliases)
	assert.Equal(t, "123 main street", norm.Address)
	assert.Equal(t, []string{"2024-01-15"}, norm.Dates)
	assert.Equal(t, "12-3456789", norm.Identifiers["ein"])
}
