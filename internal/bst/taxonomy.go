// Package bst is the belief state tracker: per-message intent classification
// against a domain taxonomy, slot filling through ordered resolvers, and the
// enrich / clarify / passthrough decision.
package bst

import (
	"encoding/json"
	"fmt"
	"os"
)

// Resolver names accepted in slot definitions, tried in listed order.
const (
	ResolverKeywordMap        = "keyword_map"
	ResolverFileExtension     = "file_extension_inference"
	ResolverLastMentionedFile = "last_mentioned_file"
	ResolverLastMentionedPath = "last_mentioned_path"
	ResolverLastMentionedEntity = "last_mentioned_entity"
	ResolverHistoryScan       = "history_scan"
	ResolverContextInference  = "context_inference"
)

// SlotDef configures one slot of a domain.
type SlotDef struct {
	Required bool `json:"required"`
	// RequiredWhen makes the slot conditionally required: slot name to the
	// value that activates the requirement ("*" for any non-empty value).
	RequiredWhen map[string]string `json:"required_when,omitempty"`
	Resolvers    []string          `json:"resolvers"`
	KeywordMap   map[string]string `json:"keyword_map,omitempty"`
	Default      string            `json:"default,omitempty"`
	Clarification string           `json:"clarification_question,omitempty"`
}

// DomainDef configures one intent domain.
type DomainDef struct {
	TriggerPhrases      []string           `json:"trigger_phrases"`
	ConfidenceThreshold float64            `json:"confidence_threshold"`
	Preamble            string             `json:"preamble,omitempty"`
	Slots               map[string]SlotDef `json:"slots"`
	SlotOrder           []string           `json:"slot_order,omitempty"`
}

// Taxonomy is the loaded domain catalogue.
type Taxonomy struct {
	MinTriggerWordLength int                  `json:"min_trigger_word_length"`
	BeliefTTLTurns       int                  `json:"belief_state_ttl_turns"`
	ClarificationCap     int                  `json:"clarification_cap"`
	Domains              map[string]DomainDef `json:"domains"`
}

// Defaults applied when the taxonomy file omits tuning values.
const (
	defaultMinTriggerWordLength = 3
	defaultBeliefTTL            = 6
	defaultClarificationCap     = 2
	defaultConfidenceThreshold  = 0.6
)

// LoadTaxonomy reads the taxonomy JSON from path.
func LoadTaxonomy(path string) (*Taxonomy, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("read taxonomy: %w", err)
	}
	var taxonomy Taxonomy
	if err := json.Unmarshal(data, &taxonomy); err != nil {
		return nil, fmt.Errorf("parse taxonomy: %w", err)
	}
	taxonomy.applyDefaults()
	return &taxonomy, nil
}

func (t *Taxonomy) applyDefaults() {
	if t.MinTriggerWordLength <= 0 {
		t.MinTriggerWordLength = defaultMinTriggerWordLength
	}
	if t.BeliefTTLTurns <= 0 {
		t.BeliefTTLTurns = defaultBeliefTTL
	}
	if t.ClarificationCap <= 0 {
		t.ClarificationCap = defaultClarificationCap
	}
	for name, domain := range t.Domains {
		if domain.ConfidenceThreshold <= 0 {
			domain.ConfidenceThreshold = defaultConfidenceThreshold
			t.Domains[name] = domain
		}
	}
}

// SlotNames returns the domain's slots in a stable order: the declared
// slot_order first, then any remaining names sorted.
func (d *DomainDef) SlotNames() []string {
	seen := make(map[string]bool, len(d.SlotOrder))
	var names []string
	for _, name := range d.SlotOrder {
		if _, ok := d.Slots[name]; ok && !seen[name] {
			names = append(names, name)
			seen[name] = true
		}
	}
	var rest []string
	for name := range d.Slots {
		if !seen[name] {
			rest = append(rest, name)
		}
	}
	sortStrings(rest)
	return append(names, rest...)
}

func sortStrings(s []string) {
	for i := 1; i < len(s); i++ {
		for j := i; j > 0 && s[j] < s[j-1]; j-- {
			s[j], s[j-1] = s[j-1], s[j]
		}
	}
}
