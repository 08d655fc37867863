// Package connectors ingests external sources (CSV, JSON, HTML) into the
// ontology ingestion queue as candidate entities. Record-level failures are
// counted, never fatal: a batch succeeds even when individual rows do not.
package connectors

import (
	"regexp"
	"strings"
	"time"

	"aegis/internal/ontology/resolve"
)

const defaultMaxRecords = 500

// Queue is the ingestion-queue surface connectors write to.
type Queue interface {
	Enqueue(candidates []*resolve.Candidate) error
	IngestedRecordIDs(sourceID string) (map[string]bool, error)
}

// Report summarizes one ingestion run.
type Report struct {
	Candidates []*resolve.Candidate
	Skipped    int
	Errors     int
}

var fieldKeyRe = regexp.MustCompile(`\s+`)

// fieldKey normalizes a raw column or key name to snake_case.
func fieldKey(raw string) string {
	return fieldKeyRe.ReplaceAllString(strings.ToLower(strings.TrimSpace(raw)), "_")
}

// inferEntityType guesses person, organization, or financial_instrument from
// the record's key names.
func inferEntityType(keys []string) string {
	joined := strings.ToLower(strings.Join(keys, " "))
	for _, kw := range []string{"company", "org", "corporation", "inc", "llc", "employer"} {
		if strings.Contains(joined, kw) {
			return "organization"
		}
	}
	for _, kw := range []string{"dob", "date_of_birth", "first_name", "last_name", "ssn"} {
		if strings.Contains(joined, kw) {
			return "person"
		}
	}
	for _, kw := range []string{"amount", "contribution", "contract_value", "isin", "cusip", "ticker"} {
		if strings.Contains(joined, kw) {
			return "financial_instrument"
		}
	}
	return "entity"
}

func makeCandidate(props map[string]any, entityType, sourceType, sourceID, recordID string, confidence float64) *resolve.Candidate {
	return &resolve.Candidate{
		EntityType: entityType,
		Properties: props,
		Provenance: resolve.Provenance{
			SourceID:   sourceID,
			SourceType: sourceType,
			RecordID:   recordID,
			IngestedAt: time.Now().UTC().Format(time.RFC3339),
			Confidence: confidence,
		},
	}
}

// ingestedFor loads the skip set, tolerating a nil queue.
func ingestedFor(queue Queue, sourceID string, force bool) map[string]bool {
	if queue == nil || force {
		return map[string]bool{}
	}
	ids, err := queue.IngestedRecordIDs(sourceID)
	if err != nil {
		return map[string]bool{}
	}
	return ids
}

// flush appends candidates to the queue when one is attached.
func flush(queue Queue, candidates []*resolve.Candidate) error {
	if queue == nil || len(candidates) == 0 {
		return nil
	}
	return queue.Enqueue(candidates)
}
