package ontology

import (
	"context"

	"aegis/internal/logging"
	"aegis/internal/memory"
	"aegis/internal/ontology/resolve"
)

const (
	defaultMaintenanceInterval = 25
	defaultMaxBatchSize        = 100
)

// MaintenanceConfig tunes the background ontology pass.
type MaintenanceConfig struct {
	IntervalCycles         int
	MaxBatchSize           int
	CompactDeprecated      bool
	ConfidenceUpdate       bool
	RebuildMergedSummaries bool
}

func (c *MaintenanceConfig) applyDefaults() {
	if c.IntervalCycles <= 0 {
		c.IntervalCycles = defaultMaintenanceInterval
	}
	if c.MaxBatchSize <= 0 {
		c.MaxBatchSize = defaultMaxBatchSize
	}
}

// MaintenanceReport summarizes one ontology maintenance run.
type MaintenanceReport struct {
	CandidatesDrained int
	EntitiesStored    int
	EdgesStored       int
	ConfidenceUpdates int
	CompactedEdges    int
	SummariesRebuilt  int
}

// Maintainer drains the ingestion queue through the resolver and keeps the
// graph healthy: promotion, confidence refresh, compaction, and summary
// rebuilds.
type Maintainer struct {
	engine    *resolve.Engine
	entities  *EntityStore
	rels      *RelationshipLog
	extractor *Extractor
	coLog     *memory.CoRetrievalLog
	cfg       MaintenanceConfig
	loops     int
	logger    logging.Logger
}

// NewMaintainer wires the maintenance pass.
func NewMaintainer(engine *resolve.Engine, entities *EntityStore, rels *RelationshipLog,
	extractor *Extractor, coLog *memory.CoRetrievalLog, cfg MaintenanceConfig, logger logging.Logger) *Maintainer {
	cfg.applyDefaults()
	return &Maintainer{
		engine:    engine,
		entities:  entities,
		rels:      rels,
		extractor: extractor,
		coLog:     coLog,
		cfg:       cfg,
		logger:    logging.OrNop(logger),
	}
}

// Tick counts a loop and runs the pass on the configured interval. Errors
// are logged; the turn never blocks on ontology maintenance.
func (m *Maintainer) Tick(ctx context.Context) {
	m.loops++
	if m.loops%m.cfg.IntervalCycles != 0 {
		return
	}
	report, err := m.Run(ctx)
	if err != nil {
		m.logger.Warn("ontology maintenance: %v", err)
		return
	}
	m.logger.Info("ontology maintenance: drained %d, stored %d entities, %d edges, %d confidence updates, %d compacted, %d summaries",
		report.CandidatesDrained, report.EntitiesStored, report.EdgesStored,
		report.ConfidenceUpdates, report.CompactedEdges, report.SummariesRebuilt)
}

// Run executes all phases once.
func (m *Maintainer) Run(ctx context.Context) (MaintenanceReport, error) {
	var report MaintenanceReport

	if err := m.drainQueue(ctx, &report); err != nil {
		m.logger.Warn("ontology maintenance: queue drain: %v", err)
	}
	m.promoteEdges(&report)

	if m.cfg.ConfidenceUpdate && m.coLog != nil {
		pairCounts, err := m.coLog.PairCounts()
		if err != nil {
			m.logger.Warn("ontology maintenance: co-retrieval counts: %v", err)
		} else {
			updated, err := m.rels.BumpConfidenceFromPairs(pairCounts)
			if err != nil {
				m.logger.Warn("ontology maintenance: confidence update: %v", err)
			}
			report.ConfidenceUpdates = updated
		}
	}

	if m.cfg.CompactDeprecated {
		removed, err := m.rels.Compact()
		if err != nil {
			m.logger.Warn("ontology maintenance: compaction: %v", err)
		}
		report.CompactedEdges = removed
	}

	if m.cfg.RebuildMergedSummaries {
		m.rebuildSummaries(ctx, &report)
	}
	return report, nil
}

// drainQueue resolves one batch from the ingestion queue, stores the
// resulting entities, extracts their relationships, and marks the queue.
func (m *Maintainer) drainQueue(ctx context.Context, report *MaintenanceReport) error {
	candidates, err := m.engine.ReadQueue(m.cfg.MaxBatchSize)
	if err != nil {
		return err
	}
	if len(candidates) == 0 {
		return nil
	}
	report.CandidatesDrained = len(candidates)

	result, err := m.engine.ResolveBatch(ctx, candidates)
	if err != nil {
		return err
	}

	entityIDs := make(map[*resolve.Candidate]string)
	for _, entity := range append(append([]*resolve.Candidate{}, result.Resolved...), result.Distinct...) {
		entityID, err := m.entities.Store(ctx, entity, "")
		if err != nil {
			m.logger.Warn("ontology maintenance: store entity: %v", err)
			continue
		}
		entityIDs[entity] = entityID
		report.EntitiesStored++
	}

	idFor := func(candidate *resolve.Candidate) string {
		if entityID := entityIDs[candidate]; entityID != "" {
			return entityID
		}
		return TempEntityID(candidate)
	}
	var edges []*Relationship
	edges = append(edges, m.extractor.CoOccurrence(candidates, idFor)...)
	edges = append(edges, m.extractor.PropertyBased(candidates, idFor)...)
	edges = append(edges, m.extractor.Temporal(candidates, idFor)...)
	stored, err := m.rels.Append(edges, m.extractor.MinConfidenceToSurface())
	if err != nil {
		m.logger.Warn("ontology maintenance: store edges: %v", err)
	}
	report.EdgesStored += stored

	processed := make(map[string]bool, len(candidates))
	for _, candidate := range candidates {
		processed[candidate.ID()] = true
	}
	return m.engine.MarkResolved(processed)
}

// promoteEdges lifts memory links and co-retrieval clusters into the graph.
func (m *Maintainer) promoteEdges(report *MaintenanceReport) {
	docs := m.entities.AllEntities()
	edges := m.extractor.PromoteMemoryLinks(docs)

	if m.coLog != nil {
		clusters, err := m.coLog.ClusterCandidates()
		if err != nil {
			m.logger.Warn("ontology maintenance: cluster candidates: %v", err)
		} else if len(clusters) > 0 {
			entityIDByMemoryID := make(map[string]string, len(docs))
			for _, doc := range docs {
				entityIDByMemoryID[doc.ID] = doc.Ontology.EntityID
			}
			edges = append(edges, m.extractor.PromoteClusters(clusters, entityIDByMemoryID)...)
		}
	}

	if len(edges) > 0 {
		stored, err := m.rels.Append(edges, m.extractor.MinConfidenceToSurface())
		if err != nil {
			m.logger.Warn("ontology maintenance: promote edges: %v", err)
		}
		report.EdgesStored += stored
	}
}

// rebuildSummaries refreshes page content for entities that accumulated
// merge history, so their summaries reflect the merged state.
func (m *Maintainer) rebuildSummaries(ctx context.Context, report *MaintenanceReport) {
	for _, doc := range m.entities.AllEntities() {
		if len(doc.Ontology.MergeHistory) == 0 {
			continue
		}
		entity := candidateFromDoc(doc)
		if entity == nil {
			continue
		}
		if err := m.entities.Update(ctx, doc.Ontology.EntityID, entity); err != nil {
			m.logger.Warn("ontology maintenance: rebuild summary for %s: %v", doc.Ontology.EntityID, err)
			continue
		}
		report.SummariesRebuilt++
	}
}

// candidateFromDoc reconstructs the resolve-side view of a stored entity.
func candidateFromDoc(doc *memory.Document) *resolve.Candidate {
	if doc.Ontology == nil {
		return nil
	}
	entity := &resolve.Candidate{
		EntityType: doc.Ontology.EntityType,
		Properties: doc.Ontology.Properties,
	}
	for _, raw := range doc.Ontology.ProvenanceChain {
		entity.ProvenanceChain = append(entity.ProvenanceChain, resolve.Provenance{
			SourceID:   mapString(raw, "source_id"),
			SourceType: mapString(raw, "source_type"),
			RecordID:   mapString(raw, "record_id"),
			IngestedAt: mapString(raw, "ingested_at"),
			Confidence: mapFloat(raw, "confidence"),
		})
	}
	if len(entity.ProvenanceChain) > 0 {
		entity.Provenance = entity.ProvenanceChain[0]
	}
	for _, raw := range doc.Ontology.MergeHistory {
		entity.MergeHistory = append(entity.MergeHistory, resolve.MergeStep{
			MergedFromA: mapString(raw, "merged_from_a"),
			MergedFromB: mapString(raw, "merged_from_b"),
			Score:       mapFloat(raw, "score"),
			Timestamp:   mapString(raw, "timestamp"),
		})
	}
	return entity
}

func mapString(m map[string]any, key string) string {
	if s, ok := m[key].(string); ok {
		return s
	}
	return ""
}

func mapFloat(m map[string]any, key string) float64 {
	switch v := m[key].(type) {
	case float64:
		return v
	case int:
		return float64(v)
	}
	return 0
}
