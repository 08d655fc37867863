package memory

import (
	"context"
	"fmt"
	"time"

	"aegis/internal/logging"
)

const (
	defaultDedupThreshold   = 0.90
	dedupNeighborLimit      = 6
	defaultMaxPairsPerCycle = 20
	minDedupTextLength      = 10
	defaultTagOverlap       = 3
	defaultRelatedCap       = 10
	clusterPairThreshold    = 5
)

// MaintenanceConfig tunes the background maintenance pass.
type MaintenanceConfig struct {
	DedupThreshold          float32
	MaxPairsPerCycle        int
	TagOverlapThreshold     int
	RelatedCapPerMemory     int
	ArchivalThresholdCycles int
}

func (c *MaintenanceConfig) applyDefaults() {
	if c.DedupThreshold <= 0 {
		c.DedupThreshold = defaultDedupThreshold
	}
	if c.MaxPairsPerCycle <= 0 {
		c.MaxPairsPerCycle = defaultMaxPairsPerCycle
	}
	if c.TagOverlapThreshold <= 0 {
		c.TagOverlapThreshold = defaultTagOverlap
	}
	if c.RelatedCapPerMemory <= 0 {
		c.RelatedCapPerMemory = defaultRelatedCap
	}
	if c.ArchivalThresholdCycles <= 0 {
		c.ArchivalThresholdCycles = defaultArchivalCycles
	}
}

// MaintenanceReport summarizes what one pass changed.
type MaintenanceReport struct {
	DedupDeprecated   int
	DedupFlagged      int
	RelatedLinksAdded int
	ClusterCandidates int
	DormancyFlagged   int
}

// Maintainer runs the four maintenance phases: deduplication, related-memory
// linking, cluster candidate detection, and dormancy flagging.
type Maintainer struct {
	store  Store
	log    *CoRetrievalLog
	cfg    MaintenanceConfig
	logger logging.Logger
}

// NewMaintainer builds a maintainer over the store and co-retrieval log.
func NewMaintainer(store Store, log *CoRetrievalLog, cfg MaintenanceConfig, logger logging.Logger) *Maintainer {
	cfg.applyDefaults()
	return &Maintainer{store: store, log: log, cfg: cfg, logger: logging.OrNop(logger)}
}

// Run executes all four phases. Phase errors are logged; a failing phase
// never blocks the rest.
func (m *Maintainer) Run(ctx context.Context, currentCycle int) MaintenanceReport {
	var report MaintenanceReport
	if err := m.dedup(ctx, &report); err != nil {
		m.logger.Warn("memory maintenance: dedup: %v", err)
	}
	m.linkRelated(&report)
	if err := m.detectClusters(&report); err != nil {
		m.logger.Warn("memory maintenance: clusters: %v", err)
	}
	m.flagDormant(currentCycle, &report)
	return report
}

// dedup deprecates near-duplicate pairs. Protected pairs are flagged rather
// than touched.
func (m *Maintainer) dedup(ctx context.Context, report *MaintenanceReport) error {
	seen := make(map[[2]string]bool)
	for _, doc := range m.store.AllDocs() {
		if report.DedupDeprecated+report.DedupFlagged >= m.cfg.MaxPairsPerCycle {
			break
		}
		if doc.Deprecated() || len(doc.Text) < minDedupTextLength {
			continue
		}
		results, err := m.store.Search(ctx, doc.Text, dedupNeighborLimit, m.cfg.DedupThreshold, "")
		if err != nil {
			return fmt.Errorf("dedup search: %w", err)
		}
		for _, result := range results {
			other := result.Doc
			if other.ID == doc.ID || other.Deprecated() {
				continue
			}
			key := pairKey(doc.ID, other.ID)
			if seen[key] {
				continue
			}
			seen[key] = true
			if report.DedupDeprecated+report.DedupFlagged >= m.cfg.MaxPairsPerCycle {
				break
			}
			m.resolveDuplicate(doc, other, report)
		}
	}
	return nil
}

// resolveDuplicate applies the dedup decision table to one pair.
func (m *Maintainer) resolveDuplicate(a, b *Document, report *MaintenanceReport) {
	if a.LoadBearing() || b.LoadBearing() {
		report.DedupFlagged++
		m.logger.Info("memory maintenance: duplicate pair %s/%s flagged (load-bearing)", a.ID, b.ID)
		return
	}
	sourceA, sourceB := docSource(a), docSource(b)
	if sourceA == SourceUserAsserted && sourceB == SourceUserAsserted {
		report.DedupFlagged++
		m.logger.Info("memory maintenance: duplicate pair %s/%s flagged (both user-asserted)", a.ID, b.ID)
		return
	}

	var loser, winner *Document
	switch {
	case sourceA == SourceUserAsserted:
		winner, loser = a, b
	case sourceB == SourceUserAsserted:
		winner, loser = b, a
	case docValidity(a) == ValidityConfirmed && docValidity(b) != ValidityConfirmed:
		winner, loser = a, b
	case docValidity(b) == ValidityConfirmed && docValidity(a) != ValidityConfirmed:
		winner, loser = b, a
	default:
		// Both agent-inferred: the older one loses.
		if a.Timestamp <= b.Timestamp {
			winner, loser = b, a
		} else {
			winner, loser = a, b
		}
	}

	m.deprecateDuplicate(loser, winner)
	report.DedupDeprecated++
}

func (m *Maintainer) deprecateDuplicate(loser, winner *Document) {
	if loser.Classification == nil {
		loser.Classification = &Classification{}
	}
	loser.Classification.Validity = ValidityDeprecated
	if loser.Lineage == nil {
		loser.Lineage = &Lineage{}
	}
	loser.Lineage.SupersededBy = winner.ID
	loser.Lineage.DeprecatedAt = time.Now().UTC().Format(time.RFC3339)
	loser.Lineage.DeprecatedReason = "deduplication"

	if winner.Lineage == nil {
		winner.Lineage = &Lineage{}
	}
	if !containsID(winner.Lineage.Supersedes, loser.ID) {
		winner.Lineage.Supersedes = append(winner.Lineage.Supersedes, loser.ID)
	}

	if err := m.store.Update(loser); err != nil {
		m.logger.Warn("memory maintenance: persist dedup of %s: %v", loser.ID, err)
	}
	if err := m.store.Update(winner); err != nil {
		m.logger.Warn("memory maintenance: persist dedup winner %s: %v", winner.ID, err)
	}
}

// linkRelated cross-links memories whose tag sets overlap enough.
func (m *Maintainer) linkRelated(report *MaintenanceReport) {
	docs := make([]*Document, 0)
	tags := make(map[string]map[string]bool)
	for _, doc := range m.store.AllDocs() {
		if doc.Deprecated() || !doc.Classified() {
			continue
		}
		if doc.Classification.Relevance != RelevanceActive {
			continue
		}
		docs = append(docs, doc)
		tags[doc.ID] = tagSet(doc)
	}

	changed := make(map[string]*Document)
	for i := 0; i < len(docs); i++ {
		for j := i + 1; j < len(docs); j++ {
			a, b := docs[i], docs[j]
			if tagOverlap(tags[a.ID], tags[b.ID]) < m.cfg.TagOverlapThreshold {
				continue
			}
			if m.addRelated(a, b.ID) {
				changed[a.ID] = a
				report.RelatedLinksAdded++
			}
			if m.addRelated(b, a.ID) {
				changed[b.ID] = b
				report.RelatedLinksAdded++
			}
		}
	}
	for _, doc := range changed {
		if err := m.store.Update(doc); err != nil {
			m.logger.Warn("memory maintenance: persist related links on %s: %v", doc.ID, err)
		}
	}
}

func (m *Maintainer) addRelated(doc *Document, id string) bool {
	if doc.Lineage == nil {
		doc.Lineage = &Lineage{}
	}
	if len(doc.Lineage.RelatedMemoryIDs) >= m.cfg.RelatedCapPerMemory {
		return false
	}
	if containsID(doc.Lineage.RelatedMemoryIDs, id) {
		return false
	}
	doc.Lineage.RelatedMemoryIDs = append(doc.Lineage.RelatedMemoryIDs, id)
	return true
}

func tagSet(doc *Document) map[string]bool {
	set := map[string]bool{
		"validity:" + doc.Classification.Validity:   true,
		"relevance:" + doc.Classification.Relevance: true,
		"utility:" + doc.Classification.Utility:     true,
		"source:" + doc.Classification.Source:       true,
		"area:" + doc.Area:                          true,
	}
	if doc.Lineage != nil && doc.Lineage.BSTDomain != "" {
		set["bst_domain:"+doc.Lineage.BSTDomain] = true
	}
	return set
}

func tagOverlap(a, b map[string]bool) int {
	overlap := 0
	for tag := range a {
		if b[tag] {
			overlap++
		}
	}
	return overlap
}

// detectClusters promotes frequently co-retrieved pairs to cluster
// candidates and writes them back to the log.
func (m *Maintainer) detectClusters(report *MaintenanceReport) error {
	if m.log == nil {
		return nil
	}
	counts, err := m.log.PairCounts()
	if err != nil {
		return err
	}
	var candidates []ClusterCandidate
	for pair, count := range counts {
		if count < clusterPairThreshold {
			continue
		}
		candidates = append(candidates, ClusterCandidate{
			MemoryIDs: []string{pair[0], pair[1]},
			Count:     count,
		})
	}
	report.ClusterCandidates = len(candidates)
	if len(candidates) == 0 {
		return nil
	}
	return m.log.WriteClusterCandidates(candidates)
}

// flagDormant marks aged, never-accessed memories as dormancy candidates.
// Flagging only; reclassification stays a human decision.
func (m *Maintainer) flagDormant(currentCycle int, report *MaintenanceReport) {
	for _, doc := range m.store.AllDocs() {
		if !doc.Classified() || doc.Deprecated() || doc.LoadBearing() || doc.Lineage == nil {
			continue
		}
		if doc.Classification.Relevance != RelevanceActive {
			continue
		}
		if doc.Lineage.DormancyCandidate || doc.Lineage.AccessCount > 0 {
			continue
		}
		if currentCycle-doc.Lineage.ClassifiedAtCycle < m.cfg.ArchivalThresholdCycles {
			continue
		}
		doc.Lineage.DormancyCandidate = true
		report.DormancyFlagged++
		if err := m.store.Update(doc); err != nil {
			m.logger.Warn("memory maintenance: persist dormancy flag on %s: %v", doc.ID, err)
		}
	}
}

func docSource(doc *Document) string {
	if doc.Classification == nil {
		return ""
	}
	return doc.Classification.Source
}

func docValidity(doc *Document) string {
	if doc.Classification == nil {
		return ""
	}
	return doc.Classification.Validity
}
