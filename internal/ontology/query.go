package ontology

import (
	"context"
	"fmt"
	"regexp"
	"sort"
	"strings"

	"aegis/internal/logging"
	"aegis/internal/memory"
)

const (
	minEntityNameLength   = 3
	entitySearchThreshold = 0.4

	contextEntityLimit    = 6
	contextRelLimit       = 10
	contextConnectedLimit = 5
)

// capitalizedNameRe extracts one-to-four word capitalized sequences as
// entity name candidates.
var capitalizedNameRe = regexp.MustCompile(`\b([A-Z][a-zA-Z]{1,25}(?:\s+[A-Z][a-zA-Z]{1,25}){0,3})\b`)

// QueryConfig tunes the entity-aware recall step.
type QueryConfig struct {
	MaxConnectedEntities   int
	MinConfidenceToSurface float64
}

func (c *QueryConfig) applyDefaults() {
	if c.MaxConnectedEntities <= 0 {
		c.MaxConnectedEntities = 10
	}
	if c.MinConfidenceToSurface <= 0 {
		c.MinConfidenceToSurface = 0.3
	}
}

// Querier detects known entities in a user message, expands one hop of the
// relationship graph, and renders the injectable context block.
type Querier struct {
	entities *EntityStore
	rels     *RelationshipLog
	cfg      QueryConfig
	logger   logging.Logger
}

// NewQuerier builds a querier over the entity store and relationship log.
func NewQuerier(entities *EntityStore, rels *RelationshipLog, cfg QueryConfig, logger logging.Logger) *Querier {
	cfg.applyDefaults()
	return &Querier{entities: entities, rels: rels, cfg: cfg, logger: logging.OrNop(logger)}
}

// Context returns the "# Ontology Context" block for a user message, or
// empty when no entity matches.
func (q *Querier) Context(ctx context.Context, query string) (string, error) {
	if strings.TrimSpace(query) == "" {
		return "", nil
	}

	matched := q.detectEntities(ctx, query)
	if len(matched) == 0 {
		return "", nil
	}
	q.logger.Debug("ontology query: %d entity matches", len(matched))

	matchedIDs := make(map[string]bool, len(matched))
	for _, doc := range matched {
		matchedIDs[doc.Ontology.EntityID] = true
	}

	relationships, err := q.expandRelationships(matchedIDs)
	if err != nil {
		return "", fmt.Errorf("relationship expansion: %w", err)
	}

	connected := q.connectedSummaries(matchedIDs, relationships)
	return formatContext(matched, relationships, connected), nil
}

// detectEntities matches by alias substring first, then semantic search over
// the ontology area.
func (q *Querier) detectEntities(ctx context.Context, query string) []*memory.Document {
	matched := make(map[string]*memory.Document)
	var order []string

	queryLower := strings.ToLower(query)
	for _, doc := range q.entities.AllEntities() {
		entityID := doc.Ontology.EntityID
		if entityID == "" || matched[entityID] != nil {
			continue
		}
		names := append([]string{propText(doc.Ontology.Properties, "name")},
			propTexts(doc.Ontology.Properties, "aliases")...)
		for _, name := range names {
			if len(name) < minEntityNameLength {
				continue
			}
			if strings.Contains(queryLower, strings.ToLower(name)) {
				matched[entityID] = doc
				order = append(order, entityID)
				break
			}
		}
	}

	results, err := q.entities.Search(ctx, query, "", q.cfg.MaxConnectedEntities, entitySearchThreshold)
	if err != nil {
		q.logger.Warn("ontology query: semantic search: %v", err)
	} else {
		for _, doc := range results {
			entityID := doc.Ontology.EntityID
			if entityID != "" && matched[entityID] == nil {
				matched[entityID] = doc
				order = append(order, entityID)
			}
		}
	}

	out := make([]*memory.Document, 0, len(order))
	for _, entityID := range order {
		out = append(out, matched[entityID])
	}
	return out
}

// CandidateNames extracts capitalized sequences from a query.
func CandidateNames(query string) []string {
	seen := make(map[string]bool)
	var names []string
	for _, match := range capitalizedNameRe.FindAllStringSubmatch(query, -1) {
		name := match[1]
		lower := strings.ToLower(name)
		if len(name) > minEntityNameLength && !seen[lower] {
			seen[lower] = true
			names = append(names, name)
		}
	}
	return names
}

// expandRelationships reads 1-hop edges for matched entities, highest
// confidence first, capped at the connected-entity budget.
func (q *Querier) expandRelationships(matchedIDs map[string]bool) ([]*Relationship, error) {
	if q.rels == nil {
		return nil, nil
	}
	relationships, err := q.rels.ForEntities(matchedIDs)
	if err != nil {
		return nil, err
	}
	var surfaced []*Relationship
	for _, rel := range relationships {
		if rel.Confidence >= q.cfg.MinConfidenceToSurface {
			surfaced = append(surfaced, rel)
		}
	}
	sort.SliceStable(surfaced, func(i, j int) bool {
		return surfaced[i].Confidence > surfaced[j].Confidence
	})
	if len(surfaced) > q.cfg.MaxConnectedEntities {
		surfaced = surfaced[:q.cfg.MaxConnectedEntities]
	}
	return surfaced, nil
}

// connectedSummaries collects page content for 1-hop neighbors not already
// matched.
func (q *Querier) connectedSummaries(matchedIDs map[string]bool, relationships []*Relationship) []string {
	connectedIDs := make(map[string]bool)
	for _, rel := range relationships {
		for _, entityID := range []string{rel.FromEntity, rel.ToEntity} {
			if entityID != "" && !matchedIDs[entityID] {
				connectedIDs[entityID] = true
			}
		}
	}
	if len(connectedIDs) == 0 {
		return nil
	}

	var summaries []string
	for _, doc := range q.entities.AllEntities() {
		if !connectedIDs[doc.Ontology.EntityID] {
			continue
		}
		if doc.Text != "" {
			summaries = append(summaries, doc.Text)
		}
		if len(summaries) >= q.cfg.MaxConnectedEntities {
			break
		}
	}
	return summaries
}

func formatContext(matched []*memory.Document, relationships []*Relationship, connected []string) string {
	if len(matched) == 0 && len(relationships) == 0 {
		return ""
	}
	var lines []string
	lines = append(lines, "# Ontology Context\n")

	if len(matched) > 0 {
		lines = append(lines, "## Known Entities\n")
		limit := len(matched)
		if limit > contextEntityLimit {
			limit = contextEntityLimit
		}
		for _, doc := range matched[:limit] {
			if doc.Text != "" {
				lines = append(lines, "- "+doc.Text)
			}
		}
		lines = append(lines, "")
	}

	if len(relationships) > 0 {
		lines = append(lines, "## Known Connections\n")
		limit := len(relationships)
		if limit > contextRelLimit {
			limit = contextRelLimit
		}
		for _, rel := range relationships[:limit] {
			fromName := rel.FromEntityName
			if fromName == "" {
				fromName = rel.FromEntity
			}
			toName := rel.ToEntityName
			if toName == "" {
				toName = rel.ToEntity
			}
			line := fmt.Sprintf("- %s --[%s]--> %s", fromName, rel.Type, toName)
			if role := propText(rel.Properties, "role"); role != "" {
				line += fmt.Sprintf(" (role: %s)", role)
			}
			line += fmt.Sprintf(" [confidence: %.2f]", rel.Confidence)
			lines = append(lines, line)
		}
		lines = append(lines, "")
	}

	if len(connected) > 0 {
		lines = append(lines, "## Connected Entities\n")
		limit := len(connected)
		if limit > contextConnectedLimit {
			limit = contextConnectedLimit
		}
		for _, summary := range connected[:limit] {
			lines = append(lines, "- "+summary)
		}
		lines = append(lines, "")
	}

	return strings.Join(lines, "\n")
}
