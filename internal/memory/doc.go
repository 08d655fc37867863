// Package memory implements the classified-memory engine: four-axis
// classification of new memories, conflict detection and resolution,
// periodic maintenance, and the role-aware recall filter.
package memory

import "time"

// Memory areas.
const (
	AreaMain      = "main"
	AreaFragments = "fragments"
	AreaSolutions = "solutions"
	AreaOntology  = "ontology"
)

// Validity axis. Deprecated is terminal: only conflict resolution and dedup
// assign it, and nothing un-assigns it.
const (
	ValidityConfirmed  = "confirmed"
	ValidityInferred   = "inferred"
	ValidityDeprecated = "deprecated"
)

// Relevance axis.
const (
	RelevanceActive  = "active"
	RelevanceDormant = "dormant"
)

// Utility axis.
const (
	UtilityLoadBearing = "load_bearing"
	UtilityTactical    = "tactical"
	UtilityArchived    = "archived"
)

// Source axis.
const (
	SourceUserAsserted      = "user_asserted"
	SourceAgentInferred     = "agent_inferred"
	SourceExternalRetrieved = "external_retrieved"
	SourceBookshelfDocument = "bookshelf_document"
)

// SourceRank orders sources for conflict resolution; higher wins.
func SourceRank(source string) int {
	switch source {
	case SourceUserAsserted:
		return 3
	case SourceExternalRetrieved:
		return 2
	case SourceAgentInferred:
		return 1
	}
	return 0
}

// ValidityRank orders validities for conflict resolution; higher wins.
func ValidityRank(validity string) int {
	switch validity {
	case ValidityConfirmed:
		return 2
	case ValidityInferred:
		return 1
	}
	return 0
}

// UtilityRank orders utilities for conflict resolution and recall ranking;
// higher wins.
func UtilityRank(utility string) int {
	switch utility {
	case UtilityLoadBearing:
		return 2
	case UtilityTactical:
		return 1
	}
	return 0
}

// Classification is the four-axis label attached to every memory.
type Classification struct {
	Validity  string `json:"validity"`
	Relevance string `json:"relevance"`
	Utility   string `json:"utility"`
	Source    string `json:"source"`
}

// Lineage records where a memory came from and how it has been used.
// Relations are stored by id only; a memory never holds a handle to another.
type Lineage struct {
	CreatedAt         string   `json:"created_at"`
	CreatedByRole     string   `json:"created_by_role,omitempty"`
	BSTDomain         string   `json:"bst_domain,omitempty"`
	ClassifiedAtCycle int      `json:"classified_at_cycle"`
	Supersedes        []string `json:"supersedes,omitempty"`
	SupersededBy      string   `json:"superseded_by,omitempty"`
	AccessCount       int      `json:"access_count"`
	LastAccessed      string   `json:"last_accessed,omitempty"`
	RelatedMemoryIDs  []string `json:"related_memory_ids,omitempty"`
	DormancyCandidate bool     `json:"dormancy_candidate,omitempty"`
	DeprecatedAt      string   `json:"deprecated_at,omitempty"`
	DeprecatedReason  string   `json:"deprecated_reason,omitempty"`
}

// OntologyInfo is attached to area=="ontology" documents: the resolved
// entity behind the memory.
type OntologyInfo struct {
	EntityID        string           `json:"entity_id"`
	EntityType      string           `json:"entity_type"`
	Properties      map[string]any   `json:"properties,omitempty"`
	ProvenanceChain []map[string]any `json:"provenance_chain,omitempty"`
	MergeHistory    []map[string]any `json:"merge_history,omitempty"`
}

// Document is one stored memory.
type Document struct {
	ID             string          `json:"id"`
	Text           string          `json:"text"`
	Area           string          `json:"area"`
	Timestamp      string          `json:"timestamp"`
	Classification *Classification `json:"classification,omitempty"`
	Lineage        *Lineage        `json:"lineage,omitempty"`
	Ontology       *OntologyInfo   `json:"ontology,omitempty"`
}

// Classified reports whether the four-axis classification is attached.
func (d *Document) Classified() bool {
	return d.Classification != nil
}

// Deprecated reports whether the memory has been retired.
func (d *Document) Deprecated() bool {
	return d.Classification != nil && d.Classification.Validity == ValidityDeprecated
}

// LoadBearing reports whether the memory is protected from deprecation and
// archival.
func (d *Document) LoadBearing() bool {
	return d.Classification != nil && d.Classification.Utility == UtilityLoadBearing
}

// Touch bumps the access counters. AccessCount is monotonic.
func (d *Document) Touch() {
	if d.Lineage == nil {
		d.Lineage = &Lineage{}
	}
	d.Lineage.AccessCount++
	d.Lineage.LastAccessed = time.Now().UTC().Format(time.RFC3339)
}
