package memory

import (
	"context"
	"fmt"
	"regexp"
	"strings"
	"time"

	"aegis/internal/logging"
)

const (
	defaultConflictTopK       = 5
	conflictSimilarityFloor   = 0.5
	defaultMaintenanceLoops   = 10
	defaultArchivalCycles     = 50
	reactivationAccessCount   = 3
	conflictLogCap            = 20
	minSubstringOverlapLength = 10
	wordOverlapRatio          = 0.6
)

var defaultLoadBearingKeywords = []string{
	"must", "always", "never", "requirement", "required", "critical",
	"do not", "don't", "important", "invariant",
}

var (
	urlRe = regexp.MustCompile(`https?://[^\s]+`)
	// Dates in ISO, slash, or prose form signal retrieved material.
	dateRe = regexp.MustCompile(`(?i)\b(\d{4}-\d{2}-\d{2}|\d{1,2}/\d{1,2}/\d{2,4}|(january|february|march|april|may|june|july|august|september|october|november|december)\s+\d{1,2})\b`)
)

// ClassifierConfig tunes the per-cycle classification pass.
type ClassifierConfig struct {
	LoadBearingKeywords      []string
	ConflictTopK             int
	MaintenanceIntervalLoops int
	ArchivalThresholdCycles  int
}

func (c *ClassifierConfig) applyDefaults() {
	if len(c.LoadBearingKeywords) == 0 {
		c.LoadBearingKeywords = defaultLoadBearingKeywords
	}
	if c.ConflictTopK <= 0 {
		c.ConflictTopK = defaultConflictTopK
	}
	if c.MaintenanceIntervalLoops <= 0 {
		c.MaintenanceIntervalLoops = defaultMaintenanceLoops
	}
	if c.ArchivalThresholdCycles <= 0 {
		c.ArchivalThresholdCycles = defaultArchivalCycles
	}
}

// ConflictRecord is one resolved contradiction, kept for the health report.
type ConflictRecord struct {
	WinnerID  string `json:"winner_id"`
	LoserID   string `json:"loser_id"`
	Timestamp string `json:"timestamp"`
}

// TurnContext carries the conversation state the classifier needs when
// labeling memories created during the turn.
type TurnContext struct {
	LastUserMessage string
	ActiveRole      string
	BSTDomain       string
}

// Classifier runs the four-axis classification cycle after each agent turn.
type Classifier struct {
	store     Store
	cfg       ClassifierConfig
	cycle     int
	loops     int
	conflicts []ConflictRecord
	logger    logging.Logger
}

// NewClassifier builds a classifier over the store.
func NewClassifier(store Store, cfg ClassifierConfig, logger logging.Logger) *Classifier {
	cfg.applyDefaults()
	return &Classifier{store: store, cfg: cfg, logger: logging.OrNop(logger)}
}

// Cycle returns the number of completed classification cycles.
func (c *Classifier) Cycle() int { return c.cycle }

// RunCycle classifies every unclassified document, resolves conflicts the new
// documents introduce, and periodically migrates stale tactical memories.
// Errors on individual documents are logged and do not stop the pass.
func (c *Classifier) RunCycle(ctx context.Context, turn TurnContext) {
	c.cycle++
	c.loops++

	var classified []*Document
	for _, doc := range c.store.AllDocs() {
		if doc.Classified() {
			continue
		}
		c.classify(doc, turn)
		if err := c.store.Update(doc); err != nil {
			c.logger.Warn("memory: persist classification for %s: %v", doc.ID, err)
			continue
		}
		classified = append(classified, doc)
	}

	for _, doc := range classified {
		if err := c.resolveConflicts(ctx, doc); err != nil {
			c.logger.Warn("memory: conflict pass for %s: %v", doc.ID, err)
		}
	}

	if c.loops%c.cfg.MaintenanceIntervalLoops == 0 {
		c.migrateUtility()
	}
}

// classify computes the four axes and attaches lineage. Already-classified
// documents are never touched.
func (c *Classifier) classify(doc *Document, turn TurnContext) {
	source := c.detectSource(doc, turn.LastUserMessage)

	validity := ValidityInferred
	if source == SourceUserAsserted {
		validity = ValidityConfirmed
	}

	utility := UtilityTactical
	lower := strings.ToLower(doc.Text)
	for _, keyword := range c.cfg.LoadBearingKeywords {
		if strings.Contains(lower, keyword) {
			utility = UtilityLoadBearing
			break
		}
	}

	doc.Classification = &Classification{
		Validity:  validity,
		Relevance: RelevanceActive,
		Utility:   utility,
		Source:    source,
	}
	doc.Lineage = &Lineage{
		CreatedAt:         time.Now().UTC().Format(time.RFC3339),
		CreatedByRole:     turn.ActiveRole,
		BSTDomain:         turn.BSTDomain,
		ClassifiedAtCycle: c.cycle,
	}
}

func (c *Classifier) detectSource(doc *Document, lastUserMessage string) string {
	if urlRe.MatchString(doc.Text) && dateRe.MatchString(doc.Text) {
		return SourceExternalRetrieved
	}
	if overlapsUserMessage(doc.Text, lastUserMessage) {
		return SourceUserAsserted
	}
	return SourceAgentInferred
}

// overlapsUserMessage matches a substring of at least ten characters in
// either direction, or a word-set overlap of 0.6 against the smaller side.
func overlapsUserMessage(text, userMessage string) bool {
	if userMessage == "" {
		return false
	}
	a := strings.ToLower(strings.TrimSpace(text))
	b := strings.ToLower(strings.TrimSpace(userMessage))
	shorter, longer := a, b
	if len(b) < len(a) {
		shorter, longer = b, a
	}
	if len(shorter) >= minSubstringOverlapLength && strings.Contains(longer, shorter) {
		return true
	}

	wordsA := wordSet(a)
	wordsB := wordSet(b)
	smaller := len(wordsA)
	if len(wordsB) < smaller {
		smaller = len(wordsB)
	}
	if smaller == 0 {
		return false
	}
	shared := 0
	for word := range wordsA {
		if wordsB[word] {
			shared++
		}
	}
	return float64(shared)/float64(smaller) >= wordOverlapRatio
}

// resolveConflicts searches near neighbors of the new document and deprecates
// the loser of any contradiction found.
func (c *Classifier) resolveConflicts(ctx context.Context, doc *Document) error {
	results, err := c.store.Search(ctx, doc.Text, c.cfg.ConflictTopK, conflictSimilarityFloor, "")
	if err != nil {
		return fmt.Errorf("conflict search: %w", err)
	}
	for _, result := range results {
		candidate := result.Doc
		if candidate.ID == doc.ID || candidate.Deprecated() || doc.Deprecated() {
			continue
		}
		if !Contradicts(doc.Text, candidate.Text) {
			continue
		}
		loser := PickLoser(doc, candidate)
		winner := candidate
		if loser == candidate {
			winner = doc
		}
		c.deprecate(loser, winner, "conflict_resolution")
	}
	return nil
}

// deprecate retires the loser in favor of the winner and persists both.
func (c *Classifier) deprecate(loser, winner *Document, reason string) {
	now := time.Now().UTC().Format(time.RFC3339)
	if loser.Classification == nil {
		loser.Classification = &Classification{}
	}
	loser.Classification.Validity = ValidityDeprecated
	if loser.Lineage == nil {
		loser.Lineage = &Lineage{}
	}
	loser.Lineage.SupersededBy = winner.ID
	loser.Lineage.DeprecatedAt = now
	loser.Lineage.DeprecatedReason = reason

	if winner.Lineage == nil {
		winner.Lineage = &Lineage{}
	}
	if !containsID(winner.Lineage.Supersedes, loser.ID) {
		winner.Lineage.Supersedes = append(winner.Lineage.Supersedes, loser.ID)
	}

	if err := c.store.Update(loser); err != nil {
		c.logger.Warn("memory: persist deprecation of %s: %v", loser.ID, err)
	}
	if err := c.store.Update(winner); err != nil {
		c.logger.Warn("memory: persist supersession on %s: %v", winner.ID, err)
	}

	c.conflicts = append(c.conflicts, ConflictRecord{
		WinnerID:  winner.ID,
		LoserID:   loser.ID,
		Timestamp: now,
	})
	if len(c.conflicts) > conflictLogCap {
		c.conflicts = c.conflicts[len(c.conflicts)-conflictLogCap:]
	}
	c.logger.Info("memory: conflict resolved, %s supersedes %s (%s)", winner.ID, loser.ID, reason)
}

// migrateUtility moves untouched tactical memories to archived and brings
// frequently accessed archived memories back.
func (c *Classifier) migrateUtility() {
	for _, doc := range c.store.AllDocs() {
		if !doc.Classified() || doc.Deprecated() || doc.Lineage == nil {
			continue
		}
		switch doc.Classification.Utility {
		case UtilityTactical:
			if doc.Lineage.AccessCount == 0 &&
				c.cycle-doc.Lineage.ClassifiedAtCycle >= c.cfg.ArchivalThresholdCycles {
				doc.Classification.Utility = UtilityArchived
				if err := c.store.Update(doc); err != nil {
					c.logger.Warn("memory: archive %s: %v", doc.ID, err)
				}
			}
		case UtilityArchived:
			if doc.Lineage.AccessCount >= reactivationAccessCount {
				doc.Classification.Utility = UtilityTactical
				doc.Lineage.ClassifiedAtCycle = c.cycle
				if err := c.store.Update(doc); err != nil {
					c.logger.Warn("memory: reactivate %s: %v", doc.ID, err)
				}
			}
		}
	}
}

// HealthStats summarizes the memory population for the status report.
type HealthStats struct {
	Cycle      int              `json:"cycle"`
	Total      int              `json:"total"`
	Deprecated int              `json:"deprecated"`
	ByValidity map[string]int   `json:"by_validity"`
	ByUtility  map[string]int   `json:"by_utility"`
	Conflicts  []ConflictRecord `json:"recent_conflicts,omitempty"`
}

// Health counts the population by axis and returns the recent conflict log.
func (c *Classifier) Health() HealthStats {
	stats := HealthStats{
		Cycle:      c.cycle,
		ByValidity: make(map[string]int),
		ByUtility:  make(map[string]int),
		Conflicts:  append([]ConflictRecord(nil), c.conflicts...),
	}
	for _, doc := range c.store.AllDocs() {
		stats.Total++
		if !doc.Classified() {
			continue
		}
		stats.ByValidity[doc.Classification.Validity]++
		stats.ByUtility[doc.Classification.Utility]++
		if doc.Deprecated() {
			stats.Deprecated++
		}
	}
	return stats
}

// HealthLabel condenses the stats into the single word the status report
// carries.
func (c *Classifier) HealthLabel() string {
	stats := c.Health()
	if stats.Total > 0 && stats.Deprecated*2 > stats.Total {
		return "degraded"
	}
	return "nominal"
}

func containsID(ids []string, id string) bool {
	for _, candidate := range ids {
		if candidate == id {
			return true
		}
	}
	return false
}
