package ontology

import (
	"context"
	"crypto/sha256"
	"encoding/hex"
	"fmt"
	"strings"
	"time"

	"aegis/internal/logging"
	"aegis/internal/memory"
	"aegis/internal/ontology/resolve"
)

const (
	entityIDPrefix      = "ent_"
	maxSummaryLength    = 500
	summaryAliasLimit   = 3
	summarySourceLimit  = 3
	summaryConnectLimit = 4

	// Provenance at or above this confidence stores the entity as confirmed.
	confirmedConfidenceFloor = 0.8
)

// EntityID derives the stable id from type, name, and provenance.
func EntityID(entityType, name string, provenance resolve.Provenance) string {
	norm := strings.ToLower(strings.TrimSpace(name))
	if norm == "" {
		norm = "unknown"
	}
	key := fmt.Sprintf("%s:%s:%s:%s", entityType, norm, provenance.SourceID, provenance.RecordID)
	sum := sha256.Sum256([]byte(key))
	return entityIDPrefix + hex.EncodeToString(sum[:])[:12]
}

// EntityStore persists resolved entities as classified memories in the
// ontology area, with the relationship log supplying connection summaries.
type EntityStore struct {
	store  memory.Store
	rels   *RelationshipLog
	logger logging.Logger
}

// NewEntityStore builds an entity store over the memory layer.
func NewEntityStore(store memory.Store, rels *RelationshipLog, logger logging.Logger) *EntityStore {
	return &EntityStore{store: store, rels: rels, logger: logging.OrNop(logger)}
}

// Store writes a resolved candidate as an ontology memory. Pass entityID to
// pin the id (used by Update); empty derives it. Returns the entity id.
func (s *EntityStore) Store(ctx context.Context, entity *resolve.Candidate, entityID string) (string, error) {
	name := entity.Name()
	if name == "" {
		name = "Unknown"
	}
	if entityID == "" {
		entityID = EntityID(entity.EntityType, name, entity.Provenance)
	}

	var connections []*Relationship
	if s.rels != nil {
		found, err := s.rels.ForEntity(entityID, "", DirectionBoth)
		if err != nil {
			s.logger.Warn("ontology store: relationships for %s: %v", entityID, err)
		} else {
			connections = found
		}
	}
	summary := BuildEntitySummary(entity, connections)

	validity := memory.ValidityInferred
	if entity.Provenance.Confidence >= confirmedConfidenceFloor {
		validity = memory.ValidityConfirmed
	}

	chain := make([]map[string]any, 0, len(entity.ProvenanceChain)+1)
	if len(entity.ProvenanceChain) > 0 {
		for _, prov := range entity.ProvenanceChain {
			chain = append(chain, provenanceMap(prov))
		}
	} else if entity.Provenance != (resolve.Provenance{}) {
		chain = append(chain, provenanceMap(entity.Provenance))
	}
	history := make([]map[string]any, 0, len(entity.MergeHistory))
	for _, step := range entity.MergeHistory {
		history = append(history, map[string]any{
			"merged_from_a": step.MergedFromA,
			"merged_from_b": step.MergedFromB,
			"score":         step.Score,
			"timestamp":     step.Timestamp,
		})
	}

	now := time.Now().UTC().Format(time.RFC3339)
	doc := &memory.Document{
		Text:      summary,
		Area:      memory.AreaOntology,
		Timestamp: now,
		Classification: &memory.Classification{
			Validity:  validity,
			Relevance: memory.RelevanceActive,
			Utility:   memory.UtilityTactical,
			Source:    memory.SourceExternalRetrieved,
		},
		Lineage: &memory.Lineage{
			CreatedAt: now,
			BSTDomain: "investigation",
		},
		Ontology: &memory.OntologyInfo{
			EntityID:        entityID,
			EntityType:      entity.EntityType,
			Properties:      entity.Properties,
			ProvenanceChain: chain,
			MergeHistory:    history,
		},
	}
	if _, err := s.store.Insert(ctx, doc); err != nil {
		return "", fmt.Errorf("store entity %s: %w", entityID, err)
	}
	s.logger.Info("ontology store: stored entity %s (%s: %s)", entityID, entity.EntityType, name)
	return entityID, nil
}

// Update replaces the memory behind an entity id: delete then insert.
func (s *EntityStore) Update(ctx context.Context, entityID string, entity *resolve.Candidate) error {
	if doc, ok := s.ByEntityID(entityID); ok {
		if err := s.store.Delete(ctx, doc.ID); err != nil {
			return fmt.Errorf("delete entity %s: %w", entityID, err)
		}
	}
	_, err := s.Store(ctx, entity, entityID)
	return err
}

// ByEntityID scans the ontology area for the memory carrying an entity id.
func (s *EntityStore) ByEntityID(entityID string) (*memory.Document, bool) {
	for _, doc := range s.store.AllDocs() {
		if doc.Ontology != nil && doc.Ontology.EntityID == entityID {
			return doc, true
		}
	}
	return nil, false
}

// AllEntities returns every ontology-area document.
func (s *EntityStore) AllEntities() []*memory.Document {
	var out []*memory.Document
	for _, doc := range s.store.AllDocs() {
		if doc.Area == memory.AreaOntology && doc.Ontology != nil {
			out = append(out, doc)
		}
	}
	return out
}

// Search runs a semantic query over the ontology area, optionally filtered
// by entity type.
func (s *EntityStore) Search(ctx context.Context, query, entityType string, limit int, threshold float32) ([]*memory.Document, error) {
	if limit <= 0 {
		limit = 10
	}
	// Over-fetch to leave room for the type filter.
	results, err := s.store.Search(ctx, query, limit*2, threshold, memory.AreaOntology)
	if err != nil {
		return nil, fmt.Errorf("entity search: %w", err)
	}
	var out []*memory.Document
	for _, result := range results {
		if result.Doc.Ontology == nil {
			continue
		}
		if entityType != "" && result.Doc.Ontology.EntityType != entityType {
			continue
		}
		out = append(out, result.Doc)
		if len(out) >= limit {
			break
		}
	}
	return out, nil
}

// BuildEntitySummary renders the ≤500-char page content used for semantic
// search: name, type, key properties, aliases, sources, top connections.
func BuildEntitySummary(entity *resolve.Candidate, connections []*Relationship) string {
	props := entity.Properties
	entityType := entity.EntityType
	if entityType == "" {
		entityType = "entity"
	}
	name := entity.Name()
	if name == "" {
		name = "Unknown"
	}

	parts := []string{fmt.Sprintf("%s (%s)", name, entityType)}

	if description := propText(props, "description"); description != "" {
		if len(description) > 120 {
			description = description[:120]
		}
		parts = append(parts, description)
	} else {
		var details []string
		detailLabels := []struct{ key, label string }{
			{"type", "Type"},
			{"jurisdiction", "Jurisdiction"},
			{"role", "Role"},
			{"date_of_birth", "DOB"},
		}
		for _, entry := range detailLabels {
			if value := propText(props, entry.key); value != "" {
				details = append(details, fmt.Sprintf("%s: %s", entry.label, value))
			}
		}
		if len(details) > 0 {
			parts = append(parts, strings.Join(details, ", "))
		}
	}

	if aliases := propTexts(props, "aliases"); len(aliases) > 0 {
		if len(aliases) > summaryAliasLimit {
			aliases = aliases[:summaryAliasLimit]
		}
		parts = append(parts, "Also known as: "+strings.Join(aliases, ", "))
	}

	var sources []string
	for _, prov := range entity.ProvenanceChain {
		if prov.SourceID != "" {
			sources = append(sources, prov.SourceID)
		}
	}
	if len(sources) > 0 {
		if len(sources) > summarySourceLimit {
			sources = sources[:summarySourceLimit]
		}
		parts = append(parts, "Sources: "+strings.Join(sources, ", "))
	}

	if len(connections) > 0 {
		var rels []string
		for _, rel := range connections {
			if len(rels) >= summaryConnectLimit {
				break
			}
			target := rel.ToEntityName
			if target == "" {
				target = rel.ToEntity
			}
			if target != "" {
				rels = append(rels, fmt.Sprintf("%s: %s", rel.Type, target))
			}
		}
		if len(rels) > 0 {
			parts = append(parts, "Connections: "+strings.Join(rels, ", "))
		}
	}

	summary := strings.Join(parts, " - ")
	if len(summary) > maxSummaryLength {
		summary = summary[:maxSummaryLength]
	}
	return summary
}

func provenanceMap(prov resolve.Provenance) map[string]any {
	return map[string]any{
		"source_id":   prov.SourceID,
		"source_type": prov.SourceType,
		"record_id":   prov.RecordID,
		"ingested_at": prov.IngestedAt,
		"confidence":  prov.Confidence,
	}
}

func propText(props map[string]any, key string) string {
	if props == nil {
		return ""
	}
	if s, ok := props[key].(string); ok {
		return s
	}
	return ""
}

func propTexts(props map[string]any, key string) []string {
	if props == nil {
		return nil
	}
	raw, ok := props[key].([]any)
	if !ok {
		return nil
	}
	var out []string
	for _, item := range raw {
		if s, ok := item.(string); ok && s != "" {
			out = append(out, s)
		}
	}
	return out
}
