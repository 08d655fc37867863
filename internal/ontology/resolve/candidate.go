// Package resolve implements deterministic entity resolution: preprocess,
// block, score, decide, and transitively close merge chains.
package resolve

import (
	"crypto/md5"
	"encoding/hex"
	"fmt"
	"time"
)

// Provenance records where a candidate came from.
type Provenance struct {
	SourceID   string  `json:"source_id"`
	SourceType string  `json:"source_type,omitempty"`
	RecordID   string  `json:"record_id"`
	SourceURL  string  `json:"source_url,omitempty"`
	IngestedAt string  `json:"ingested_at,omitempty"`
	Confidence float64 `json:"confidence"`
}

// RelationshipHint is an unresolved edge attached to a candidate; the target
// is only a name hint until resolution.
type RelationshipHint struct {
	Type       string `json:"type"`
	TargetHint string `json:"target_hint"`
}

// Normalized holds the preprocessed view of a candidate's properties.
type Normalized struct {
	Name        string            `json:"name"`
	Aliases     []string          `json:"aliases,omitempty"`
	Address     string            `json:"address,omitempty"`
	Dates       []string          `json:"dates,omitempty"`
	Identifiers map[string]string `json:"identifiers,omitempty"`
}

// MergeStep records one merge performed during resolution.
type MergeStep struct {
	MergedFromA string  `json:"merged_from_a"`
	MergedFromB string  `json:"merged_from_b"`
	Score       float64 `json:"score"`
	Timestamp   string  `json:"timestamp"`
}

// Candidate is a pre-resolution entity record produced by a connector.
type Candidate struct {
	EntityType      string             `json:"entity_type"`
	Properties      map[string]any     `json:"properties"`
	Relationships   []RelationshipHint `json:"relationships,omitempty"`
	Provenance      Provenance         `json:"provenance"`
	ProvenanceChain []Provenance       `json:"provenance_chain,omitempty"`
	MergeHistory    []MergeStep        `json:"merge_history,omitempty"`
	Normalized      *Normalized        `json:"_normalized,omitempty"`
	Resolved        bool               `json:"_resolved,omitempty"`
}

// ID is the stable candidate id derived from provenance.
func (c *Candidate) ID() string {
	key := fmt.Sprintf("%s:%s", c.Provenance.SourceID, c.Provenance.RecordID)
	sum := md5.Sum([]byte(key))
	return hex.EncodeToString(sum[:])[:12]
}

// Name returns the raw name property.
func (c *Candidate) Name() string {
	return propString(c.Properties, "name")
}

func propString(props map[string]any, key string) string {
	if props == nil {
		return ""
	}
	switch v := props[key].(type) {
	case string:
		return v
	case fmt.Stringer:
		return v.String()
	case float64:
		return fmt.Sprintf("%v", v)
	}
	return ""
}

func propStrings(props map[string]any, key string) []string {
	if props == nil {
		return nil
	}
	raw, ok := props[key].([]any)
	if !ok {
		return nil
	}
	out := make([]string, 0, len(raw))
	for _, item := range raw {
		if s, ok := item.(string); ok && s != "" {
			out = append(out, s)
		}
	}
	return out
}

func nowStamp() string {
	return time.Now().UTC().Format(time.RFC3339)
}
