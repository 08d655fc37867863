package resolve

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestPhoneticKeyCollapsesSpelling(t *testing.T) {
	assert.Equal(t, phoneticKey("filip"), phoneticKey("philip"))
	assert.Equal(t, "SMVT", phoneticKey("smith"))
	assert.NotEqual(t, phoneticKey("smith"), phoneticKey("jones"))
}

func TestCandidatePairsShareIdentifierBlock(t *testing.T) {
	candidates := []*Candidate{
		Preprocess(&Candidate{
			EntityType: "person",
			Properties: map[string]any{"name": "Jonathan Smythe", "ein": "12-3456789"},
		}),
		Preprocess(&Candidate{
			EntityType: "person",
			Properties: map[string]any{"name": "Acme Holdings", "ein": "12-3456789"},
		}),
		Preprocess(&Candidate{
			EntityType: "person",
			Properties: map[string]any{"name": "Zelda Quartermain"},
		}),
	}

	pairs := candidatePairs(candidates)
	require.Len(t, pairs, 1, "only the shared identifier produces a pair")
	assert.Equal(t, [2]int{0, 1}, pairs[0])
}

func TestCandidatePairsNamePrefixBlock(t *testing.T) {
	candidates := []*Candidate{
		Preprocess(&Candidate{
			EntityType: "organization",
			Properties: map[string]any{"name": "Globex Corporation"},
		}),
		Preprocess(&Candidate{
			EntityType: "organization",
			Properties: map[string]any{"name": "Globex Corp"},
		}),
		Preprocess(&Candidate{
			// Same prefix, different entity type: blocks are type-scoped.
			EntityType: "person",
			Properties: map[string]any{"name": "Glo Baker"},
		}),
	}

	pairs := candidatePairs(candidates)
	require.Len(t, pairs, 1)
	assert.Equal(t, [2]int{0, 1}, pairs[0])
}
