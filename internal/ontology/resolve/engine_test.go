package resolve

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestUnionFindTransitiveClosure(t *testing.T) {
	uf := newUnionFind(5)
	uf.union(0, 1)
	uf.union(1, 2)
	uf.union(3, 4)

	groups := uf.groups()
	require.Len(t, groups, 2)
	assert.Equal(t, []int{0, 1, 2}, groups[0])
	assert.Equal(t, []int{3, 4}, groups[1])
}

func TestResolveBatchMergesOnSharedIdentifier(t *testing.T) {
	engine := NewEngine(Config{Dir: t.TempDir()}, nil)

	a := &Candidate{
		EntityType: "person",
		Properties: map[string]any{
			"name":        "John A. Smith",
			"ein":         "12-3456789",
			"address":     "123 Main St",
			"date":        "2024-01-15",
			"description": "fraud investigation subject",
		},
		Provenance: Provenance{SourceID: "filings", RecordID: "r1", Confidence: 0.9},
	}
	b := &Candidate{
		EntityType: "person",
		Properties: map[string]any{
			"name":        "JOHN SMITH",
			"ein":         "12-3456789",
			"address":     "123 Main Street",
			"date":        "2024-01-15",
			"description": "fraud investigation subject",
		},
		Provenance: Provenance{SourceID: "registry", RecordID: "r2", Confidence: 0.6},
	}
	other := &Candidate{
		EntityType: "organization",
		Properties: map[string]any{"name": "Quixotic Ventures"},
		Provenance: Provenance{SourceID: "filings", RecordID: "r3", Confidence: 0.9},
	}

	result, err := engine.ResolveBatch(context.Background(), []*Candidate{a, b, other})
	require.NoError(t, err)

	require.Len(t, result.Resolved, 1)
	merged := result.Resolved[0]
	assert.Equal(t, "John A. Smith", merged.Name(), "higher-confidence provenance wins the canonical name")
	assert.Contains(t, propStrings(merged.Properties, "aliases"), "JOHN SMITH")
	assert.Len(t, merged.ProvenanceChain, 2)
	require.Len(t, merged.MergeHistory, 1)
	assert.Equal(t, a.ID(), merged.MergeHistory[0].MergedFromA)

	require.Len(t, result.Distinct, 1)
	assert.Equal(t, "Quixotic Ventures", result.Distinct[0].Name())

	require.NotEmpty(t, result.Audit)
	mergeAudits := 0
	for _, entry := range result.Audit {
		if entry.Action == "merge" {
			mergeAudits++
			assert.Equal(t, 1.0, entry.AxisScores.Identifier)
			assert.GreaterOrEqual(t, entry.CompositeScore, 0.85)
		}
	}
	assert.Equal(t, 1, mergeAudits)
}

func TestResolveBatchFlagsBorderlinePairs(t *testing.T) {
	engine := NewEngine(Config{Dir: t.TempDir()}, nil)

	// Similar names, no identifier: lands between the thresholds.
	a := &Candidate{
		EntityType: "organization",
		Properties: map[string]any{
			"name": "Meridian Holdings", "address": "400 Pine St",
			"date": "2024-03-01", "description": "shell company registry",
		},
		Provenance: Provenance{SourceID: "s", RecordID: "1", Confidence: 0.8},
	}
	b := &Candidate{
		EntityType: "organization",
		Properties: map[string]any{
			"name": "Meridian Holdings Group", "address": "400 Pine Street",
			"date": "2024-03-01", "description": "shell company registry",
		},
		Provenance: Provenance{SourceID: "s", RecordID: "2", Confidence: 0.8},
	}

	result, err := engine.ResolveBatch(context.Background(), []*Candidate{a, b})
	require.NoError(t, err)

	assert.Empty(t, result.Resolved)
	require.Len(t, result.Flagged, 1)
	assert.GreaterOrEqual(t, result.Flagged[0].Score, 0.60)
	assert.Less(t, result.Flagged[0].Score, 0.85)
	assert.Len(t, result.Distinct, 2)
}

func TestQueueRoundTripAndMarkResolved(t *testing.T) {
	engine := NewEngine(Config{Dir: t.TempDir()}, nil)

	a := &Candidate{
		EntityType: "person",
		Properties: map[string]any{"name": "Ada Lovelace"},
		Provenance: Provenance{SourceID: "notes", RecordID: "n1", Confidence: 1},
	}
	b := &Candidate{
		EntityType: "person",
		Properties: map[string]any{"name": "Charles Babbage"},
		Provenance: Provenance{SourceID: "notes", RecordID: "n2", Confidence: 1},
	}
	require.NoError(t, engine.Enqueue([]*Candidate{a, b}))

	pending, err := engine.ReadQueue(0)
	require.NoError(t, err)
	assert.Len(t, pending, 2)

	require.NoError(t, engine.MarkResolved(map[string]bool{a.ID(): true}))

	pending, err = engine.ReadQueue(0)
	require.NoError(t, err)
	require.Len(t, pending, 1)
	assert.Equal(t, "Charles Babbage", pending[0].Name())

	// Resolved rows still count as ingested for connector dedup.
	ids, err := engine.IngestedRecordIDs("notes")
	require.NoError(t, err)
	assert.True(t, ids["notes:n1"])
	assert.True(t, ids["notes:n2"])

	// Marking again is a no-op.
	require.NoError(t, engine.MarkResolved(map[string]bool{a.ID(): true}))
	pending, err = engine.ReadQueue(0)
	require.NoError(t, err)
	assert.Len(t, pending, 1)
}
