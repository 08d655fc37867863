// Package ontology stores resolved entities as classified memories and
// maintains the typed relationship graph beside them.
package ontology

import (
	"crypto/md5"
	"encoding/hex"
	"encoding/json"
	"fmt"
	"math"
	"os"
	"path/filepath"
	"strings"
	"sync"
	"time"
)

// Relationship direction filters.
const (
	DirectionOutgoing = "outgoing"
	DirectionIncoming = "incoming"
	DirectionBoth     = "both"
)

// Relationship is one typed, directed, confidence-scored edge.
type Relationship struct {
	RelID          string         `json:"rel_id"`
	Type           string         `json:"type"`
	FromEntity     string         `json:"from_entity"`
	ToEntity       string         `json:"to_entity"`
	FromEntityName string         `json:"from_entity_name"`
	ToEntityName   string         `json:"to_entity_name"`
	Properties     map[string]any `json:"properties"`
	Confidence     float64        `json:"confidence"`
	Provenance     map[string]any `json:"provenance"`
	CreatedAt      string         `json:"created_at"`
	UpdatedAt      string         `json:"updated_at"`
	Deprecated     bool           `json:"deprecated"`
}

// RelID derives the stable edge id from endpoints and type.
func RelID(from, relType, to string) string {
	sum := md5.Sum([]byte(fmt.Sprintf("%s:%s:%s", from, relType, to)))
	return "rel_" + hex.EncodeToString(sum[:])[:12]
}

// RelationshipLog is the append-only JSONL edge store. Rewrites (deprecate,
// compact, confidence updates) are whole-file and serialised.
type RelationshipLog struct {
	mu   sync.Mutex
	path string
}

// NewRelationshipLog opens the log at path; the file is created lazily.
func NewRelationshipLog(path string) *RelationshipLog {
	return &RelationshipLog{path: path}
}

// Append writes relationships at or above minConfidence, skipping edges whose
// rel_id already exists. Returns the number stored.
func (l *RelationshipLog) Append(relationships []*Relationship, minConfidence float64) (int, error) {
	if len(relationships) == 0 {
		return 0, nil
	}
	l.mu.Lock()
	defer l.mu.Unlock()

	existing, err := l.existingIDs()
	if err != nil {
		return 0, err
	}
	if err := os.MkdirAll(filepath.Dir(l.path), 0o755); err != nil {
		return 0, fmt.Errorf("create ontology dir: %w", err)
	}
	file, err := os.OpenFile(l.path, os.O_CREATE|os.O_WRONLY|os.O_APPEND, 0o644)
	if err != nil {
		return 0, fmt.Errorf("open relationships log: %w", err)
	}
	defer file.Close()

	encoder := json.NewEncoder(file)
	stored := 0
	for _, rel := range relationships {
		if rel.Confidence < minConfidence {
			continue
		}
		if rel.RelID == "" {
			rel.RelID = RelID(rel.FromEntity, rel.Type, rel.ToEntity)
		}
		if existing[rel.RelID] {
			continue
		}
		if err := encoder.Encode(rel); err != nil {
			return stored, fmt.Errorf("append relationship: %w", err)
		}
		existing[rel.RelID] = true
		stored++
	}
	return stored, nil
}

// ForEntity returns non-deprecated edges touching entityID, optionally
// filtered by type and direction.
func (l *RelationshipLog) ForEntity(entityID, relType, direction string) ([]*Relationship, error) {
	l.mu.Lock()
	defer l.mu.Unlock()

	all, err := l.readAll()
	if err != nil {
		return nil, err
	}
	var out []*Relationship
	for _, rel := range all {
		if rel.Deprecated {
			continue
		}
		if relType != "" && rel.Type != relType {
			continue
		}
		isFrom := rel.FromEntity == entityID
		isTo := rel.ToEntity == entityID
		switch direction {
		case DirectionOutgoing:
			if !isFrom {
				continue
			}
		case DirectionIncoming:
			if !isTo {
				continue
			}
		default:
			if !isFrom && !isTo {
				continue
			}
		}
		out = append(out, rel)
	}
	return out, nil
}

// ForEntities returns non-deprecated edges touching any of the given ids.
func (l *RelationshipLog) ForEntities(entityIDs map[string]bool) ([]*Relationship, error) {
	l.mu.Lock()
	defer l.mu.Unlock()

	all, err := l.readAll()
	if err != nil {
		return nil, err
	}
	var out []*Relationship
	for _, rel := range all {
		if rel.Deprecated {
			continue
		}
		if entityIDs[rel.FromEntity] || entityIDs[rel.ToEntity] {
			out = append(out, rel)
		}
	}
	return out, nil
}

// Deprecate flags an edge; compaction removes it later.
func (l *RelationshipLog) Deprecate(relID string) error {
	return l.rewriteFull(func(rel *Relationship) (*Relationship, bool) {
		if rel.RelID != relID || rel.Deprecated {
			return rel, false
		}
		rel.Deprecated = true
		rel.UpdatedAt = time.Now().UTC().Format(time.RFC3339)
		return rel, true
	})
}

// UpdateConfidence sets an edge's confidence.
func (l *RelationshipLog) UpdateConfidence(relID string, confidence float64) error {
	return l.rewriteFull(func(rel *Relationship) (*Relationship, bool) {
		if rel.RelID != relID {
			return rel, false
		}
		rel.Confidence = confidence
		rel.UpdatedAt = time.Now().UTC().Format(time.RFC3339)
		return rel, true
	})
}

// Compact drops deprecated rows. Returns the number removed.
func (l *RelationshipLog) Compact() (int, error) {
	removed := 0
	err := l.rewriteFull(func(rel *Relationship) (*Relationship, bool) {
		if rel.Deprecated {
			removed++
			return nil, true
		}
		return rel, false
	})
	return removed, err
}

// BumpConfidenceFromPairs raises edge confidence by 0.02 per co-retrieval
// co-occurrence of its endpoints, capped at 0.95. Returns edges updated.
func (l *RelationshipLog) BumpConfidenceFromPairs(pairCounts map[[2]string]int) (int, error) {
	if len(pairCounts) == 0 {
		return 0, nil
	}
	updated := 0
	err := l.rewriteFull(func(rel *Relationship) (*Relationship, bool) {
		a, b := rel.FromEntity, rel.ToEntity
		if b < a {
			a, b = b, a
		}
		count := pairCounts[[2]string{a, b}]
		if count == 0 {
			return rel, false
		}
		newConfidence := math.Min(0.95, rel.Confidence+float64(count)*0.02)
		newConfidence = math.Round(newConfidence*1000) / 1000
		if newConfidence == rel.Confidence {
			return rel, false
		}
		rel.Confidence = newConfidence
		rel.UpdatedAt = time.Now().UTC().Format(time.RFC3339)
		updated++
		return rel, true
	})
	return updated, err
}

// rewriteFull streams every row through transform; a nil result drops the
// row. The file is rewritten atomically.
func (l *RelationshipLog) rewriteFull(transform func(*Relationship) (*Relationship, bool)) error {
	l.mu.Lock()
	defer l.mu.Unlock()

	data, err := os.ReadFile(l.path)
	if os.IsNotExist(err) {
		return nil
	}
	if err != nil {
		return fmt.Errorf("read relationships log: %w", err)
	}

	var out strings.Builder
	for _, line := range strings.Split(string(data), "\n") {
		line = strings.TrimSpace(line)
		if line == "" {
			continue
		}
		var rel Relationship
		if err := json.Unmarshal([]byte(line), &rel); err != nil {
			out.WriteString(line)
			out.WriteString("\n")
			continue
		}
		result, _ := transform(&rel)
		if result == nil {
			continue
		}
		encoded, err := json.Marshal(result)
		if err != nil {
			out.WriteString(line)
			out.WriteString("\n")
			continue
		}
		out.Write(encoded)
		out.WriteString("\n")
	}

	tmp := l.path + ".tmp"
	if err := os.WriteFile(tmp, []byte(out.String()), 0o644); err != nil {
		return fmt.Errorf("rewrite relationships log: %w", err)
	}
	return os.Rename(tmp, l.path)
}

// readAll parses every row, skipping malformed lines. Caller holds the lock.
func (l *RelationshipLog) readAll() ([]*Relationship, error) {
	data, err := os.ReadFile(l.path)
	if os.IsNotExist(err) {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("read relationships log: %w", err)
	}
	var out []*Relationship
	for _, line := range strings.Split(string(data), "\n") {
		line = strings.TrimSpace(line)
		if line == "" {
			continue
		}
		var rel Relationship
		if err := json.Unmarshal([]byte(line), &rel); err != nil {
			continue
		}
		out = append(out, &rel)
	}
	return out, nil
}

func (l *RelationshipLog) existingIDs() (map[string]bool, error) {
	all, err := l.readAll()
	if err != nil {
		return nil, err
	}
	ids := make(map[string]bool, len(all))
	for _, rel := range all {
		if rel.RelID != "" {
			ids[rel.RelID] = true
		}
	}
	return ids, nil
}
