package bst

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func testTaxonomy() *Taxonomy {
	taxonomy := &Taxonomy{
		Domains: map[string]DomainDef{
			"code_generation": {
				TriggerPhrases:      []string{"write a function", "generate code", "implement"},
				ConfidenceThreshold: 0.9,
				Slots: map[string]SlotDef{
					"language": {
						Required:      true,
						Resolvers:     []string{ResolverKeywordMap, ResolverFileExtension, ResolverContextInference},
						KeywordMap:    map[string]string{"golang": "go", "python script": "python"},
						Clarification: "Which language should the code be in?",
					},
					"target_file": {
						Resolvers: []string{ResolverLastMentionedFile},
					},
				},
				SlotOrder: []string{"language", "target_file"},
			},
			"deployment": {
				TriggerPhrases: []string{"deploy"},
				Slots: map[string]SlotDef{
					"environment": {
						Required:   true,
						Resolvers:  []string{ResolverKeywordMap},
						KeywordMap: map[string]string{"production": "prod", "staging": "staging"},
					},
				},
			},
		},
	}
	taxonomy.applyDefaults()
	return taxonomy
}

func TestClassifyPicksHighestScoringDomain(t *testing.T) {
	taxonomy := testTaxonomy()

	result := taxonomy.Classify("please deploy to production")
	assert.Equal(t, "deployment", result.Domain)
	assert.InDelta(t, 1.1, result.Score, 1e-9)

	// Two code hits beat one deployment hit.
	result = taxonomy.Classify("implement and generate code we can deploy")
	assert.Equal(t, "code_generation", result.Domain)
	assert.InDelta(t, 2.3, result.Score, 1e-9)
}

func TestClassifyNoHitIsConversational(t *testing.T) {
	taxonomy := testTaxonomy()
	result := taxonomy.Classify("good morning, how are you?")
	assert.Equal(t, ConversationalDomain, result.Domain)
	assert.Zero(t, result.Confidence)
}

func TestClassifyIgnoresShortTriggerPhrases(t *testing.T) {
	taxonomy := &Taxonomy{
		Domains: map[string]DomainDef{
			"golang_work": {TriggerPhrases: []string{"go"}},
		},
	}
	taxonomy.applyDefaults()

	result := taxonomy.Classify("let us go outside")
	assert.Equal(t, ConversationalDomain, result.Domain,
		"phrases below the minimum length never trigger")
}

func TestClassifierConfidence(t *testing.T) {
	assert.InDelta(t, 1.1/3.0, classifierConfidence(1.1), 1e-9)
	assert.InDelta(t, 5.0/6.0, classifierConfidence(5), 1e-9)
	assert.Less(t, classifierConfidence(1000), 1.0)
}

func TestIsUnderspecified(t *testing.T) {
	assert.True(t, IsUnderspecified("now fix it"))
	assert.True(t, IsUnderspecified("do that again"))
	assert.True(t, IsUnderspecified("keep going"))
	assert.True(t, IsUnderspecified("Try again."))

	assert.False(t, IsUnderspecified("write a parser for the config format"))
	assert.False(t, IsUnderspecified(""))
	assert.False(t, IsUnderspecified("it would be great if you could audit the whole repository today"),
		"long messages are specific even with pronouns")
}

func TestLoadTaxonomyAppliesDefaults(t *testing.T) {
	path := filepath.Join(t.TempDir(), "taxonomy.json")
	raw := `{"domains": {"deployment": {"trigger_phrases": ["deploy"], "slots": {}}}}`
	require.NoError(t, os.WriteFile(path, []byte(raw), 0o644))

	taxonomy, err := LoadTaxonomy(path)
	require.NoError(t, err)
	assert.Equal(t, defaultMinTriggerWordLength, taxonomy.MinTriggerWordLength)
	assert.Equal(t, defaultBeliefTTL, taxonomy.BeliefTTLTurns)
	assert.Equal(t, defaultClarificationCap, taxonomy.ClarificationCap)
	assert.InDelta(t, defaultConfidenceThreshold, taxonomy.Domains["deployment"].ConfidenceThreshold, 1e-9)

	_, err = LoadTaxonomy(filepath.Join(t.TempDir(), "missing.json"))
	assert.Error(t, err)
}

func TestSlotNamesOrder(t *testing.T) {
	domain := DomainDef{
		Slots: map[string]SlotDef{
			"zeta": {}, "alpha": {}, "language": {}, "target_file": {},
		},
		SlotOrder: []string{"language", "target_file", "language"},
	}
	assert.Equal(t, []string{"language", "target_file", "alpha", "zeta"}, domain.SlotNames())
}
