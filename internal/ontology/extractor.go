package ontology

import (
	"crypto/md5"
	"encoding/hex"
	"fmt"
	"math"
	"sort"
	"strings"
	"time"

	"aegis/internal/logging"
	"aegis/internal/memory"
	"aegis/internal/ontology/resolve"
)

const (
	minAddressKeyLength = 10
	minOrgKeyLength     = 3

	coOccurrenceStrong     = 0.8
	coOccurrenceWeak       = 0.5
	coOccurrenceStrongMin  = 3
	propertyConfidence     = 0.6
	memoryLinkConfidence   = 0.5
	clusterBaseConfidence  = 0.3
	clusterPerCount        = 0.05
	clusterMaxConfidence   = 0.8
)

// ExtractorConfig tunes the relationship extraction pass.
type ExtractorConfig struct {
	CoOccurrenceMinSources int
	TemporalWindowDays     int
	MinConfidenceToSurface float64
	PromoteMemoryLinks     bool
}

func (c *ExtractorConfig) applyDefaults() {
	if c.CoOccurrenceMinSources <= 0 {
		c.CoOccurrenceMinSources = 1
	}
	if c.TemporalWindowDays <= 0 {
		c.TemporalWindowDays = 30
	}
	if c.MinConfidenceToSurface <= 0 {
		c.MinConfidenceToSurface = 0.3
	}
}

// Extractor discovers typed edges between entities with five methods, each
// confidence-scored.
type Extractor struct {
	cfg    ExtractorConfig
	logger logging.Logger
}

// NewExtractor builds an extractor with defaults applied.
func NewExtractor(cfg ExtractorConfig, logger logging.Logger) *Extractor {
	cfg.applyDefaults()
	return &Extractor{cfg: cfg, logger: logging.OrNop(logger)}
}

// TempEntityID derives a provisional id for a candidate before the store
// phase assigns the stable one.
func TempEntityID(candidate *resolve.Candidate) string {
	key := fmt.Sprintf("%s:%s:%s",
		candidate.Provenance.SourceID, candidate.Provenance.RecordID, candidate.Name())
	sum := md5.Sum([]byte(key))
	return "tmp_" + hex.EncodeToString(sum[:])[:12]
}

// CoOccurrence links candidates sharing a source record with co_mentioned
// edges: 0.8 with three or more distinct sources, 0.5 otherwise.
func (e *Extractor) CoOccurrence(candidates []*resolve.Candidate, ids func(*resolve.Candidate) string) []*Relationship {
	if ids == nil {
		ids = TempEntityID
	}
	type pairInfo struct {
		sources map[string]bool
		a, b    *resolve.Candidate
	}

	recordGroups := make(map[string][]*resolve.Candidate)
	var recordOrder []string
	for _, candidate := range candidates {
		key := candidate.Provenance.SourceID + ":" + candidate.Provenance.RecordID
		if _, seen := recordGroups[key]; !seen {
			recordOrder = append(recordOrder, key)
		}
		recordGroups[key] = append(recordGroups[key], candidate)
	}

	pairs := make(map[[2]string]*pairInfo)
	var pairOrder [][2]string
	for _, key := range recordOrder {
		group := recordGroups[key]
		if len(group) < 2 {
			continue
		}
		sourceID := group[0].Provenance.SourceID
		for i := 0; i < len(group); i++ {
			for j := i + 1; j < len(group); j++ {
				idA, idB := ids(group[i]), ids(group[j])
				a, b := group[i], group[j]
				if idB < idA {
					idA, idB = idB, idA
					a, b = b, a
				}
				pair := [2]string{idA, idB}
				info, seen := pairs[pair]
				if !seen {
					info = &pairInfo{sources: make(map[string]bool), a: a, b: b}
					pairs[pair] = info
					pairOrder = append(pairOrder, pair)
				}
				info.sources[sourceID] = true
			}
		}
	}

	now := time.Now().UTC().Format(time.RFC3339)
	var out []*Relationship
	for _, pair := range pairOrder {
		info := pairs[pair]
		sourceCount := len(info.sources)
		if sourceCount < e.cfg.CoOccurrenceMinSources {
			continue
		}
		confidence := coOccurrenceWeak
		if sourceCount >= coOccurrenceStrongMin {
			confidence = coOccurrenceStrong
		}
		sources := make([]string, 0, sourceCount)
		for source := range info.sources {
			sources = append(sources, source)
		}
		sort.Strings(sources)
		out = append(out, &Relationship{
			RelID:          RelID(pair[0], "co_mentioned", pair[1]),
			Type:           "co_mentioned",
			FromEntity:     pair[0],
			ToEntity:       pair[1],
			FromEntityName: info.a.Name(),
			ToEntityName:   info.b.Name(),
			Properties: map[string]any{
				"co_occurrence_count": sourceCount,
				"source_ids":          sources,
			},
			Confidence: confidence,
			Provenance: map[string]any{"source_ids": sources},
			CreatedAt:  now,
			UpdatedAt:  now,
		})
	}
	return out
}

// PropertyBased links candidates sharing a canonical address (co_located)
// or an organization string (affiliated), both at 0.6.
func (e *Extractor) PropertyBased(candidates []*resolve.Candidate, ids func(*resolve.Candidate) string) []*Relationship {
	if ids == nil {
		ids = TempEntityID
	}
	now := time.Now().UTC().Format(time.RFC3339)
	var out []*Relationship

	addressGroups := make(map[string][]*resolve.Candidate)
	var addressOrder []string
	for _, candidate := range candidates {
		address := propText(candidate.Properties, "address")
		if address == "" {
			address = propText(candidate.Properties, "location")
		}
		canonical := resolve.CanonicalizeAddress(address)
		if len(canonical) <= minAddressKeyLength {
			continue
		}
		if _, seen := addressGroups[canonical]; !seen {
			addressOrder = append(addressOrder, canonical)
		}
		addressGroups[canonical] = append(addressGroups[canonical], candidate)
	}
	for _, address := range addressOrder {
		group := addressGroups[address]
		for i := 0; i < len(group); i++ {
			for j := i + 1; j < len(group); j++ {
				idA, idB := ids(group[i]), ids(group[j])
				out = append(out, &Relationship{
					RelID:          RelID(idA, "co_located", idB),
					Type:           "co_located",
					FromEntity:     idA,
					ToEntity:       idB,
					FromEntityName: group[i].Name(),
					ToEntityName:   group[j].Name(),
					Properties:     map[string]any{"address": address},
					Confidence:     propertyConfidence,
					Provenance:     map[string]any{},
					CreatedAt:      now,
					UpdatedAt:      now,
				})
			}
		}
	}

	orgGroups := make(map[string][]*resolve.Candidate)
	var orgOrder []string
	for _, candidate := range candidates {
		org := propText(candidate.Properties, "organization")
		if org == "" {
			org = propText(candidate.Properties, "employer")
		}
		key := strings.ToLower(strings.TrimSpace(org))
		if len(key) <= minOrgKeyLength {
			continue
		}
		if _, seen := orgGroups[key]; !seen {
			orgOrder = append(orgOrder, key)
		}
		orgGroups[key] = append(orgGroups[key], candidate)
	}
	for _, orgKey := range orgOrder {
		group := orgGroups[orgKey]
		for i := 0; i < len(group); i++ {
			for j := i + 1; j < len(group); j++ {
				idA, idB := ids(group[i]), ids(group[j])
				out = append(out, &Relationship{
					RelID:          RelID(idA, "affiliated", idB),
					Type:           "related_to",
					FromEntity:     idA,
					ToEntity:       idB,
					FromEntityName: group[i].Name(),
					ToEntityName:   group[j].Name(),
					Properties:     map[string]any{"type": "affiliated", "shared_org": orgKey},
					Confidence:     propertyConfidence,
					Provenance:     map[string]any{},
					CreatedAt:      now,
					UpdatedAt:      now,
				})
			}
		}
	}
	return out
}

// Temporal links dated candidates within the window; confidence decays with
// distance but never below 0.3.
func (e *Extractor) Temporal(candidates []*resolve.Candidate, ids func(*resolve.Candidate) string) []*Relationship {
	if ids == nil {
		ids = TempEntityID
	}
	type datedCandidate struct {
		date      string
		id        string
		candidate *resolve.Candidate
	}

	var dated []datedCandidate
	for _, candidate := range candidates {
		raw := propText(candidate.Properties, "date")
		if raw == "" {
			raw = propText(candidate.Properties, "filing_date")
		}
		if raw == "" {
			raw = propText(candidate.Properties, "effective_date")
		}
		if normalized := resolve.NormalizeDate(raw); normalized != "" {
			dated = append(dated, datedCandidate{date: normalized, id: ids(candidate), candidate: candidate})
		}
	}
	sort.Slice(dated, func(i, j int) bool { return dated[i].date < dated[j].date })

	window := float64(e.cfg.TemporalWindowDays)
	now := time.Now().UTC().Format(time.RFC3339)
	var out []*Relationship
	for i := 0; i < len(dated); i++ {
		ta, err := time.Parse("2006-01-02", dated[i].date)
		if err != nil {
			continue
		}
		for j := i + 1; j < len(dated); j++ {
			if dated[i].id == dated[j].id {
				continue
			}
			tb, err := time.Parse("2006-01-02", dated[j].date)
			if err != nil {
				continue
			}
			delta := tb.Sub(ta).Hours() / 24
			if delta < 0 {
				delta = -delta
			}
			if delta > window {
				// Sorted by date, nothing later is closer.
				break
			}
			confidence := math.Max(0.3, 0.4*(1-delta/window))
			out = append(out, &Relationship{
				RelID:          RelID(dated[i].id, "temporally_linked", dated[j].id),
				Type:           "related_to",
				FromEntity:     dated[i].id,
				ToEntity:       dated[j].id,
				FromEntityName: dated[i].candidate.Name(),
				ToEntityName:   dated[j].candidate.Name(),
				Properties: map[string]any{
					"type":       "temporally_linked",
					"date_a":     dated[i].date,
					"date_b":     dated[j].date,
					"days_apart": int(delta),
				},
				Confidence: math.Round(confidence*1000) / 1000,
				Provenance: map[string]any{},
				CreatedAt:  now,
				UpdatedAt:  now,
			})
		}
	}
	return out
}

// PromoteMemoryLinks turns related_memory_ids on ontology documents into
// related_to edges at 0.5.
func (e *Extractor) PromoteMemoryLinks(docs []*memory.Document) []*Relationship {
	if !e.cfg.PromoteMemoryLinks {
		return nil
	}
	now := time.Now().UTC().Format(time.RFC3339)
	var out []*Relationship
	for _, doc := range docs {
		if doc.Ontology == nil || doc.Ontology.EntityID == "" || doc.Lineage == nil {
			continue
		}
		entityID := doc.Ontology.EntityID
		entityName := propText(doc.Ontology.Properties, "name")
		for _, relatedID := range doc.Lineage.RelatedMemoryIDs {
			out = append(out, &Relationship{
				RelID:          RelID(entityID, "related_to", relatedID),
				Type:           "related_to",
				FromEntity:     entityID,
				ToEntity:       relatedID,
				FromEntityName: entityName,
				Properties: map[string]any{
					"type":          "memory_link",
					"promoted_from": "related_memory",
				},
				Confidence: memoryLinkConfidence,
				Provenance: map[string]any{"promoted_from": "memory_classification"},
				CreatedAt:  now,
				UpdatedAt:  now,
			})
		}
	}
	return out
}

// PromoteClusters turns co-retrieval cluster candidates into co_retrieved
// edges; confidence grows with the observation count, capped at 0.8.
func (e *Extractor) PromoteClusters(clusters []memory.ClusterCandidate, entityIDByMemoryID map[string]string) []*Relationship {
	now := time.Now().UTC().Format(time.RFC3339)
	var out []*Relationship
	for _, cluster := range clusters {
		var entityIDs []string
		for _, memoryID := range cluster.MemoryIDs {
			if entityID := entityIDByMemoryID[memoryID]; entityID != "" {
				entityIDs = append(entityIDs, entityID)
			}
		}
		if len(entityIDs) < 2 {
			continue
		}
		confidence := math.Min(clusterMaxConfidence, clusterBaseConfidence+float64(cluster.Count)*clusterPerCount)
		for i := 0; i < len(entityIDs); i++ {
			for j := i + 1; j < len(entityIDs); j++ {
				out = append(out, &Relationship{
					RelID:      RelID(entityIDs[i], "co_retrieved", entityIDs[j]),
					Type:       "related_to",
					FromEntity: entityIDs[i],
					ToEntity:   entityIDs[j],
					Properties: map[string]any{
						"type":               "co_retrieved",
						"co_retrieval_count": cluster.Count,
					},
					Confidence: math.Round(confidence*1000) / 1000,
					Provenance: map[string]any{"promoted_from": "co_retrieval_log"},
					CreatedAt:  now,
					UpdatedAt:  now,
				})
			}
		}
	}
	return out
}

// MinConfidenceToSurface is the storage floor for extracted edges.
func (e *Extractor) MinConfidenceToSurface() float64 {
	return e.cfg.MinConfidenceToSurface
}
