package memory

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestContradictsVersionDivergence(t *testing.T) {
	assert.True(t, Contradicts(
		"The project uses Python version 3.11 for all services",
		"The project uses Python version 3.9 for all services"))
	assert.False(t, Contradicts(
		"Deployment runs on Node 18",
		"We standardized on Node version 20 last quarter"),
		"a claim pattern on one side only is not a conflict")
	assert.False(t, Contradicts(
		"The project uses Python version 3.11",
		"The project uses Django version 4.2"))
}

func TestContradictsTheXIsY(t *testing.T) {
	assert.True(t, Contradicts(
		"the default branch is main",
		"the default branch is master"))
	assert.False(t, Contradicts(
		"the default branch is main",
		"the default branch is main"))
}

func TestContradictsNegationBothDirections(t *testing.T) {
	assert.True(t, Contradicts("The service does not use Redis", "The service uses Redis for caching"))
	assert.True(t, Contradicts("The service uses Redis for caching", "The service does not use Redis"))
	assert.False(t, Contradicts("You should not deploy on Fridays", "You should test before merging"),
		"negation pairs require the captured token to agree")
	assert.True(t, Contradicts("We never rebase shared branches", "We always rebase shared branches"))
}

func TestContradictsCorrectionNeedsSharedWords(t *testing.T) {
	assert.True(t, Contradicts(
		"Actually the staging database host changed last week",
		"The staging database host is db-stage-1"))
	assert.False(t, Contradicts("Actually, never mind", "The staging database host is db-stage-1"))
}

func classifiedDoc(id, source, validity, utility, timestamp string) *Document {
	return &Document{
		ID:        id,
		Timestamp: timestamp,
		Classification: &Classification{
			Source:    source,
			Validity:  validity,
			Utility:   utility,
			Relevance: RelevanceActive,
		},
	}
}

func TestPickLoserSourceRankDominates(t *testing.T) {
	user := classifiedDoc("a", SourceUserAsserted, ValidityConfirmed, UtilityTactical, "2026-01-02T00:00:00Z")
	agent := classifiedDoc("b", SourceAgentInferred, ValidityInferred, UtilityLoadBearing, "2026-01-03T00:00:00Z")
	require.Same(t, agent, PickLoser(user, agent))
	require.Same(t, agent, PickLoser(agent, user))
}

func TestPickLoserValidityThenUtility(t *testing.T) {
	confirmed := classifiedDoc("a", SourceAgentInferred, ValidityConfirmed, UtilityTactical, "2026-01-01T00:00:00Z")
	inferred := classifiedDoc("b", SourceAgentInferred, ValidityInferred, UtilityTactical, "2026-01-02T00:00:00Z")
	require.Same(t, inferred, PickLoser(confirmed, inferred))

	loadBearing := classifiedDoc("c", SourceAgentInferred, ValidityInferred, UtilityLoadBearing, "2026-01-01T00:00:00Z")
	tactical := classifiedDoc("d", SourceAgentInferred, ValidityInferred, UtilityTactical, "2026-01-02T00:00:00Z")
	require.Same(t, tactical, PickLoser(loadBearing, tactical))
}

func TestPickLoserRecencyAndTie(t *testing.T) {
	older := classifiedDoc("a", SourceAgentInferred, ValidityInferred, UtilityTactical, "2026-01-01T00:00:00Z")
	newer := classifiedDoc("b", SourceAgentInferred, ValidityInferred, UtilityTactical, "2026-01-05T00:00:00Z")
	require.Same(t, older, PickLoser(older, newer))
	require.Same(t, older, PickLoser(newer, older))

	// Full tie: the first argument loses.
	twinA := classifiedDoc("a", SourceAgentInferred, ValidityInferred, UtilityTactical, "2026-01-01T00:00:00Z")
	twinB := classifiedDoc("b", SourceAgentInferred, ValidityInferred, UtilityTactical, "2026-01-01T00:00:00Z")
	require.Same(t, twinA, PickLoser(twinA, twinB))
}
