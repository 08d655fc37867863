package memory

import (
	"context"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func resultIDs(results []SearchResult) []string {
	ids := make([]string, 0, len(results))
	for _, r := range results {
		ids = append(ids, r.Doc.ID)
	}
	return ids
}

func TestRecallExcludesDeprecated(t *testing.T) {
	store := newFakeStore()
	recaller := NewRecaller(store, nil, RecallConfig{}, nil)
	ctx := context.Background()

	insertClassified(t, store, &Document{
		ID: "live", Text: "the ingest pipeline writes parquet to the lake",
		Area: AreaMain,
		Classification: &Classification{
			Validity: ValidityInferred, Relevance: RelevanceActive,
			Utility: UtilityTactical, Source: SourceAgentInferred,
		},
	})
	insertClassified(t, store, &Document{
		ID: "dead", Text: "the ingest pipeline writes parquet to the lake",
		Area: AreaMain,
		Classification: &Classification{
			Validity: ValidityDeprecated, Relevance: RelevanceActive,
			Utility: UtilityTactical, Source: SourceAgentInferred,
		},
	})

	results, err := recaller.Recall(ctx, RecallContext{
		Query: "the ingest pipeline writes parquet to the lake",
	})
	require.NoError(t, err)
	assert.Equal(t, []string{"live"}, resultIDs(results))
}

func TestRecallRoleFilterAndLoadBearingBypass(t *testing.T) {
	store := newFakeStore()
	recaller := NewRecaller(store, nil, RecallConfig{}, nil)
	ctx := context.Background()

	text := "quarterly close checklist for the ledger team"
	inDomain := insertClassified(t, store, &Document{
		ID: "fin", Text: text, Area: AreaMain,
		Classification: &Classification{
			Validity: ValidityInferred, Relevance: RelevanceActive,
			Utility: UtilityTactical, Source: SourceAgentInferred,
		},
		Lineage: &Lineage{BSTDomain: "finance"},
	})
	outOfDomain := insertClassified(t, store, &Document{
		ID: "ops", Text: text, Area: AreaMain,
		Classification: &Classification{
			Validity: ValidityInferred, Relevance: RelevanceActive,
			Utility: UtilityTactical, Source: SourceAgentInferred,
		},
		Lineage: &Lineage{BSTDomain: "devops"},
	})
	bypass := insertClassified(t, store, &Document{
		ID: "crit", Text: text, Area: AreaMain,
		Classification: &Classification{
			Validity: ValidityConfirmed, Relevance: RelevanceActive,
			Utility: UtilityLoadBearing, Source: SourceUserAsserted,
		},
		Lineage: &Lineage{BSTDomain: "devops"},
	})

	results, err := recaller.Recall(ctx, RecallContext{
		Query:       text,
		ActiveRole:  "financial_analyst",
		RoleDomains: []string{"finance"},
	})
	require.NoError(t, err)

	ids := resultIDs(results)
	assert.Contains(t, ids, inDomain.ID)
	assert.Contains(t, ids, bypass.ID, "load-bearing memories ignore the role fence")
	assert.NotContains(t, ids, outOfDomain.ID)
}

func TestRecallCreatorRoleFallback(t *testing.T) {
	store := newFakeStore()
	recaller := NewRecaller(store, nil, RecallConfig{}, nil)
	ctx := context.Background()

	text := "deployment freeze applies through the trading window"
	foreign := insertClassified(t, store, &Document{
		ID: "foreign", Text: text, Area: AreaMain,
		Classification: &Classification{
			Validity: ValidityInferred, Relevance: RelevanceActive,
			Utility: UtilityTactical, Source: SourceAgentInferred,
		},
		Lineage: &Lineage{CreatedByRole: "infra_specialist"},
	})
	unknown := insertClassified(t, store, &Document{
		ID: "unknown", Text: text, Area: AreaMain,
		Classification: &Classification{
			Validity: ValidityInferred, Relevance: RelevanceActive,
			Utility: UtilityTactical, Source: SourceAgentInferred,
		},
	})

	results, err := recaller.Recall(ctx, RecallContext{
		Query:       text,
		ActiveRole:  "financial_analyst",
		RoleDomains: []string{"finance"},
		RoleDomainsOf: func(roleID string) []string {
			if roleID == "infra_specialist" {
				return []string{"devops"}
			}
			return nil
		},
	})
	require.NoError(t, err)

	ids := resultIDs(results)
	assert.NotContains(t, ids, foreign.ID, "creator role domains disjoint from the active role")
	assert.Contains(t, ids, unknown.ID, "memories with no lineage stay visible")
}

func TestRecallRankingUtilityThenAccess(t *testing.T) {
	store := newFakeStore()
	recaller := NewRecaller(store, nil, RecallConfig{}, nil)
	ctx := context.Background()

	text := "shared subject line for ranking"
	insertClassified(t, store, &Document{
		ID: "archived", Text: text, Area: AreaMain,
		Classification: &Classification{
			Validity: ValidityInferred, Relevance: RelevanceActive,
			Utility: UtilityArchived, Source: SourceAgentInferred,
		},
	})
	insertClassified(t, store, &Document{
		ID: "hot", Text: text, Area: AreaMain,
		Classification: &Classification{
			Validity: ValidityInferred, Relevance: RelevanceActive,
			Utility: UtilityTactical, Source: SourceAgentInferred,
		},
		Lineage: &Lineage{AccessCount: 5},
	})
	insertClassified(t, store, &Document{
		ID: "cold", Text: text, Area: AreaMain,
		Classification: &Classification{
			Validity: ValidityInferred, Relevance: RelevanceActive,
			Utility: UtilityTactical, Source: SourceAgentInferred,
		},
	})
	insertClassified(t, store, &Document{
		ID: "anchor", Text: text, Area: AreaMain,
		Classification: &Classification{
			Validity: ValidityConfirmed, Relevance: RelevanceActive,
			Utility: UtilityLoadBearing, Source: SourceUserAsserted,
		},
	})

	results, err := recaller.Recall(ctx, RecallContext{Query: text})
	require.NoError(t, err)
	assert.Equal(t, []string{"anchor", "hot", "cold", "archived"}, resultIDs(results))
}

func TestRecallAreaCapsAndTouch(t *testing.T) {
	store := newFakeStore()
	log := NewCoRetrievalLog(filepath.Join(t.TempDir(), "co_retrieval_log.json"))
	recaller := NewRecaller(store, log, RecallConfig{MaxInjected: 2}, nil)
	ctx := context.Background()

	text := "identical text so similarity never breaks the tie"
	for _, id := range []string{"a1", "a2", "a3"} {
		insertClassified(t, store, &Document{
			ID: id, Text: text, Area: AreaMain,
			Classification: &Classification{
				Validity: ValidityInferred, Relevance: RelevanceActive,
				Utility: UtilityTactical, Source: SourceAgentInferred,
			},
		})
	}
	for _, id := range []string{"s1", "s2", "s3"} {
		insertClassified(t, store, &Document{
			ID: id, Text: text, Area: AreaSolutions,
			Classification: &Classification{
				Validity: ValidityInferred, Relevance: RelevanceActive,
				Utility: UtilityTactical, Source: SourceAgentInferred,
			},
		})
	}

	results, err := recaller.Recall(ctx, RecallContext{Query: text})
	require.NoError(t, err)

	// Two from the general areas, and the solutions floor of two.
	assert.Equal(t, []string{"a1", "a2", "s1", "s2"}, resultIDs(results))
	for _, r := range results {
		assert.Equal(t, 1, r.Doc.Lineage.AccessCount)
	}
	skipped, _ := store.Get("a3")
	if skipped.Lineage != nil {
		assert.Zero(t, skipped.Lineage.AccessCount)
	}

	counts, err := log.PairCounts()
	require.NoError(t, err)
	assert.Equal(t, 1, counts[pairKey("a1", "s2")])
}
