package memory

import (
	"context"
	"fmt"
	"sort"

	"aegis/internal/logging"
)

const (
	defaultMaxInjected  = 8
	solutionsMinimum    = 2
	defaultRecallFloor  = 0.3
	defaultRecallFetchK = 24
)

// RecallConfig tunes the post-recall filter.
type RecallConfig struct {
	MaxInjected         int
	SimilarityThreshold float32
}

func (c *RecallConfig) applyDefaults() {
	if c.MaxInjected <= 0 {
		c.MaxInjected = defaultMaxInjected
	}
	if c.SimilarityThreshold <= 0 {
		c.SimilarityThreshold = defaultRecallFloor
	}
}

// RecallContext carries the role view the filter needs. RoleDomainsOf maps a
// role id to its domains and may be nil when no role library is active.
type RecallContext struct {
	Query         string
	ActiveRole    string
	RoleDomains   []string
	RoleDomainsOf func(roleID string) []string
}

// Recaller runs similarity recall and applies the classification-aware
// filter before memories reach the prompt.
type Recaller struct {
	store  Store
	log    *CoRetrievalLog
	cfg    RecallConfig
	logger logging.Logger
}

// NewRecaller builds a recaller over the store.
func NewRecaller(store Store, log *CoRetrievalLog, cfg RecallConfig, logger logging.Logger) *Recaller {
	cfg.applyDefaults()
	return &Recaller{store: store, log: log, cfg: cfg, logger: logging.OrNop(logger)}
}

// Recall fetches, filters, ranks, and touches memories for the turn. Storage
// errors surface to the caller; the hook layer decides whether to degrade.
func (r *Recaller) Recall(ctx context.Context, rc RecallContext) ([]SearchResult, error) {
	results, err := r.store.Search(ctx, rc.Query, defaultRecallFetchK, r.cfg.SimilarityThreshold, "")
	if err != nil {
		return nil, fmt.Errorf("recall search: %w", err)
	}

	var eligible []SearchResult
	for _, result := range results {
		if result.Doc.Deprecated() {
			continue
		}
		if !r.roleAllows(rc, result.Doc) {
			continue
		}
		eligible = append(eligible, result)
	}

	sort.SliceStable(eligible, func(i, j int) bool {
		a, b := eligible[i], eligible[j]
		ua, ub := docUtilityRank(a.Doc), docUtilityRank(b.Doc)
		if ua != ub {
			return ua > ub
		}
		aa, ab := docAccessCount(a.Doc), docAccessCount(b.Doc)
		if aa != ab {
			return aa > ab
		}
		return a.Similarity > b.Similarity
	})

	survivors := r.applyAreaCaps(eligible)

	ids := make([]string, 0, len(survivors))
	for _, result := range survivors {
		result.Doc.Touch()
		if err := r.store.Update(result.Doc); err != nil {
			r.logger.Warn("memory recall: persist access on %s: %v", result.Doc.ID, err)
		}
		ids = append(ids, result.Doc.ID)
	}
	if r.log != nil {
		if err := r.log.Append(ids); err != nil {
			r.logger.Warn("memory recall: co-retrieval log: %v", err)
		}
	}
	return survivors, nil
}

// roleAllows applies the role-scoped visibility rule. Load-bearing memories
// are always visible.
func (r *Recaller) roleAllows(rc RecallContext, doc *Document) bool {
	if rc.ActiveRole == "" || doc.LoadBearing() {
		return true
	}
	if doc.Lineage == nil {
		return true
	}
	if doc.Lineage.BSTDomain != "" {
		return containsID(rc.RoleDomains, doc.Lineage.BSTDomain)
	}
	if doc.Lineage.CreatedByRole == "" || rc.RoleDomainsOf == nil {
		return true
	}
	creatorDomains := rc.RoleDomainsOf(doc.Lineage.CreatedByRole)
	if len(creatorDomains) == 0 {
		return true
	}
	for _, domain := range creatorDomains {
		if containsID(rc.RoleDomains, domain) {
			return true
		}
	}
	return false
}

// applyAreaCaps takes the top ranked memories per area budget: MaxInjected
// for main and fragments combined, half that (at least two) for solutions.
func (r *Recaller) applyAreaCaps(ranked []SearchResult) []SearchResult {
	solutionsCap := r.cfg.MaxInjected / 2
	if solutionsCap < solutionsMinimum {
		solutionsCap = solutionsMinimum
	}

	var out []SearchResult
	mainCount, solutionsCount := 0, 0
	for _, result := range ranked {
		if result.Doc.Area == AreaSolutions {
			if solutionsCount >= solutionsCap {
				continue
			}
			solutionsCount++
		} else {
			if mainCount >= r.cfg.MaxInjected {
				continue
			}
			mainCount++
		}
		out = append(out, result)
	}
	return out
}

func docUtilityRank(doc *Document) int {
	if doc.Classification == nil {
		return 0
	}
	return UtilityRank(doc.Classification.Utility)
}

func docAccessCount(doc *Document) int {
	if doc.Lineage == nil {
		return 0
	}
	return doc.Lineage.AccessCount
}
