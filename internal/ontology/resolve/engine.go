package resolve

import (
	"bufio"
	"context"
	"encoding/json"
	"fmt"
	"math"
	"os"
	"path/filepath"
	"strings"
	"sync"

	"golang.org/x/sync/errgroup"

	"aegis/internal/logging"
)

const (
	defaultMergeThreshold  = 0.85
	defaultReviewThreshold = 0.60
	defaultQueueReadLimit  = 500
	scoringConcurrency     = 8

	// transitiveMergeScore approximates the score recorded for members
	// joined only through the closure.
	transitiveMergeScore = 0.85
)

// File names under the ontology directory.
const (
	auditLogName      = "resolution_audit.jsonl"
	reviewQueueName   = "review_queue.jsonl"
	ingestionFileName = "ingestion_queue.jsonl"
)

// Config tunes the resolution engine.
type Config struct {
	Dir             string
	MergeThreshold  float64
	ReviewThreshold float64
	Weights         Weights
}

func (c *Config) applyDefaults() {
	if c.MergeThreshold <= 0 {
		c.MergeThreshold = defaultMergeThreshold
	}
	if c.ReviewThreshold <= 0 {
		c.ReviewThreshold = defaultReviewThreshold
	}
	if c.Weights == (Weights{}) {
		c.Weights = DefaultWeights()
	}
}

// AuditEntry is one scored pair appended to the resolution audit log.
type AuditEntry struct {
	Timestamp      string     `json:"timestamp"`
	CandidateA     string     `json:"candidate_a"`
	CandidateB     string     `json:"candidate_b"`
	CompositeScore float64    `json:"composite_score"`
	AxisScores     AxisScores `json:"axis_scores"`
	Action         string     `json:"action"`
}

// FlaggedPair is a borderline pair queued for review.
type FlaggedPair struct {
	Pair  [2]int     `json:"pair"`
	Score float64    `json:"score"`
	Axes  AxisScores `json:"axes"`
}

type reviewEntry struct {
	Timestamp  string     `json:"timestamp"`
	Status     string     `json:"status"`
	Score      float64    `json:"score"`
	Axes       AxisScores `json:"axes"`
	CandidateA string     `json:"candidate_a"`
	CandidateB string     `json:"candidate_b"`
	EntityType string     `json:"entity_type"`
}

// BatchResult is the outcome of one resolution pass.
type BatchResult struct {
	Resolved []*Candidate
	Flagged  []FlaggedPair
	Distinct []*Candidate
	Merges   [][2]int
	Audit    []AuditEntry
}

// Engine runs the deterministic resolution pipeline over candidate batches.
type Engine struct {
	cfg    Config
	logger logging.Logger
}

// NewEngine builds an engine with defaults applied.
func NewEngine(cfg Config, logger logging.Logger) *Engine {
	cfg.applyDefaults()
	return &Engine{cfg: cfg, logger: logging.OrNop(logger)}
}

// ResolveBatch preprocesses, blocks, scores, decides, and transitively
// closes a batch. Audit and review entries are appended to their logs.
func (e *Engine) ResolveBatch(ctx context.Context, candidates []*Candidate) (*BatchResult, error) {
	result := &BatchResult{}
	if len(candidates) == 0 {
		return result, nil
	}
	e.logger.Info("ontology resolve: batch of %d candidates", len(candidates))

	for _, candidate := range candidates {
		Preprocess(candidate)
	}

	pairs := candidatePairs(candidates)
	e.logger.Info("ontology resolve: %d candidate pairs after blocking", len(pairs))

	type scored struct {
		composite float64
		axes      AxisScores
	}
	scores := make([]scored, len(pairs))
	group, groupCtx := errgroup.WithContext(ctx)
	group.SetLimit(scoringConcurrency)
	for idx, pair := range pairs {
		group.Go(func() error {
			if err := groupCtx.Err(); err != nil {
				return err
			}
			composite, axes := compositeScore(candidates[pair[0]], candidates[pair[1]], e.cfg.Weights)
			scores[idx] = scored{composite: composite, axes: axes}
			return nil
		})
	}
	if err := group.Wait(); err != nil {
		return nil, fmt.Errorf("score pairs: %w", err)
	}

	var mergePairs [][2]int
	for idx, pair := range pairs {
		composite, axes := scores[idx].composite, scores[idx].axes
		action := "distinct"
		switch {
		case composite >= e.cfg.MergeThreshold:
			action = "merge"
			mergePairs = append(mergePairs, pair)
		case composite >= e.cfg.ReviewThreshold:
			action = "flag"
			result.Flagged = append(result.Flagged, FlaggedPair{Pair: pair, Score: composite, Axes: axes})
		}
		result.Audit = append(result.Audit, AuditEntry{
			Timestamp:      nowStamp(),
			CandidateA:     candidates[pair[0]].ID(),
			CandidateB:     candidates[pair[1]].ID(),
			CompositeScore: round4(composite),
			AxisScores:     roundAxes(axes),
			Action:         action,
		})
	}
	result.Merges = mergePairs

	uf := newUnionFind(len(candidates))
	for _, pair := range mergePairs {
		uf.union(pair[0], pair[1])
	}

	merged := make(map[int]bool)
	for _, group := range uf.groups() {
		if len(group) < 2 {
			continue
		}
		for _, idx := range group {
			merged[idx] = true
		}
		entity := candidates[group[0]]
		for _, idx := range group[1:] {
			entity = mergeCandidates(entity, candidates[idx], transitiveMergeScore)
		}
		result.Resolved = append(result.Resolved, entity)
	}
	for idx, candidate := range candidates {
		if !merged[idx] {
			result.Distinct = append(result.Distinct, candidate)
		}
	}

	e.logger.Info("ontology resolve: %d merged, %d flagged, %d distinct",
		len(result.Resolved), len(result.Flagged), len(result.Distinct))

	if err := appendJSONL(filepath.Join(e.cfg.Dir, auditLogName), toAny(result.Audit)); err != nil {
		e.logger.Warn("ontology resolve: audit log: %v", err)
	}
	if len(result.Flagged) > 0 {
		entries := make([]any, 0, len(result.Flagged))
		for _, flagged := range result.Flagged {
			entries = append(entries, reviewEntry{
				Timestamp:  nowStamp(),
				Status:     "pending",
				Score:      round4(flagged.Score),
				Axes:       roundAxes(flagged.Axes),
				CandidateA: candidates[flagged.Pair[0]].ID(),
				CandidateB: candidates[flagged.Pair[1]].ID(),
				EntityType: candidates[flagged.Pair[0]].EntityType,
			})
		}
		if err := appendJSONL(filepath.Join(e.cfg.Dir, reviewQueueName), entries); err != nil {
			e.logger.Warn("ontology resolve: review queue: %v", err)
		}
	}
	return result, nil
}

// mergeCandidates folds b into a. The higher-confidence provenance wins
// property conflicts; aliases and relationships accumulate; both provenances
// join the chain.
func mergeCandidates(a, b *Candidate, score float64) *Candidate {
	primary, secondary := a, b
	if b.Provenance.Confidence > a.Provenance.Confidence {
		primary, secondary = b, a
	}

	props := make(map[string]any, len(primary.Properties)+len(secondary.Properties))
	for key, value := range secondary.Properties {
		props[key] = value
	}
	for key, value := range primary.Properties {
		props[key] = value
	}

	canonical := propString(props, "name")
	seen := map[string]bool{canonical: true, "": true}
	var aliases []string
	for _, alias := range append(append(append(
		propStrings(primary.Properties, "aliases"),
		propStrings(secondary.Properties, "aliases")...),
		primary.Name()), secondary.Name()) {
		if !seen[alias] {
			seen[alias] = true
			aliases = append(aliases, alias)
		}
	}
	aliasValues := make([]any, len(aliases))
	for i, alias := range aliases {
		aliasValues[i] = alias
	}
	props["aliases"] = aliasValues

	chain := append([]Provenance(nil), a.ProvenanceChain...)
	if len(chain) == 0 {
		chain = append(chain, a.Provenance)
	}
	if len(b.ProvenanceChain) > 0 {
		chain = append(chain, b.ProvenanceChain...)
	} else {
		chain = append(chain, b.Provenance)
	}

	history := append(append([]MergeStep(nil), a.MergeHistory...), b.MergeHistory...)
	history = append(history, MergeStep{
		MergedFromA: a.ID(),
		MergedFromB: b.ID(),
		Score:       round4(score),
		Timestamp:   nowStamp(),
	})

	return &Candidate{
		EntityType:      primary.EntityType,
		Properties:      props,
		Relationships:   append(append([]RelationshipHint(nil), primary.Relationships...), secondary.Relationships...),
		Provenance:      primary.Provenance,
		ProvenanceChain: chain,
		MergeHistory:    history,
		Normalized:      primary.Normalized,
	}
}

// queueMu serialises ingestion-queue rewrites against appends.
var queueMu sync.Mutex

// ReadQueue returns up to limit unresolved candidates from the ingestion
// queue. Malformed lines are skipped.
func (e *Engine) ReadQueue(limit int) ([]*Candidate, error) {
	if limit <= 0 {
		limit = defaultQueueReadLimit
	}
	queueMu.Lock()
	defer queueMu.Unlock()

	file, err := os.Open(filepath.Join(e.cfg.Dir, ingestionFileName))
	if os.IsNotExist(err) {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("open ingestion queue: %w", err)
	}
	defer file.Close()

	var candidates []*Candidate
	scanner := bufio.NewScanner(file)
	scanner.Buffer(make([]byte, 0, 64*1024), 4*1024*1024)
	for scanner.Scan() {
		line := strings.TrimSpace(scanner.Text())
		if line == "" {
			continue
		}
		var candidate Candidate
		if err := json.Unmarshal([]byte(line), &candidate); err != nil {
			continue
		}
		if candidate.Resolved {
			continue
		}
		candidates = append(candidates, &candidate)
		if len(candidates) >= limit {
			break
		}
	}
	return candidates, scanner.Err()
}

// IngestedRecordIDs returns "source:record" keys already present in the
// queue for a source, resolved rows included. Connectors use it to skip
// records on re-ingest.
func (e *Engine) IngestedRecordIDs(sourceID string) (map[string]bool, error) {
	queueMu.Lock()
	defer queueMu.Unlock()

	file, err := os.Open(filepath.Join(e.cfg.Dir, ingestionFileName))
	if os.IsNotExist(err) {
		return map[string]bool{}, nil
	}
	if err != nil {
		return nil, fmt.Errorf("open ingestion queue: %w", err)
	}
	defer file.Close()

	ids := make(map[string]bool)
	scanner := bufio.NewScanner(file)
	scanner.Buffer(make([]byte, 0, 64*1024), 4*1024*1024)
	for scanner.Scan() {
		line := strings.TrimSpace(scanner.Text())
		if line == "" {
			continue
		}
		var candidate Candidate
		if err := json.Unmarshal([]byte(line), &candidate); err != nil {
			continue
		}
		if candidate.Provenance.SourceID == sourceID {
			ids[sourceID+":"+candidate.Provenance.RecordID] = true
		}
	}
	return ids, scanner.Err()
}

// Enqueue appends candidates to the ingestion queue.
func (e *Engine) Enqueue(candidates []*Candidate) error {
	queueMu.Lock()
	defer queueMu.Unlock()
	entries := make([]any, len(candidates))
	for i, candidate := range candidates {
		entries[i] = candidate
	}
	return appendJSONL(filepath.Join(e.cfg.Dir, ingestionFileName), entries)
}

// MarkResolved rewrites the queue flagging the given candidate ids.
func (e *Engine) MarkResolved(candidateIDs map[string]bool) error {
	queueMu.Lock()
	defer queueMu.Unlock()

	path := filepath.Join(e.cfg.Dir, ingestionFileName)
	data, err := os.ReadFile(path)
	if os.IsNotExist(err) {
		return nil
	}
	if err != nil {
		return fmt.Errorf("read ingestion queue: %w", err)
	}

	var out strings.Builder
	for _, line := range strings.Split(string(data), "\n") {
		line = strings.TrimSpace(line)
		if line == "" {
			continue
		}
		var candidate Candidate
		if err := json.Unmarshal([]byte(line), &candidate); err != nil {
			out.WriteString(line)
			out.WriteString("\n")
			continue
		}
		if candidateIDs[candidate.ID()] {
			candidate.Resolved = true
		}
		encoded, err := json.Marshal(&candidate)
		if err != nil {
			out.WriteString(line)
			out.WriteString("\n")
			continue
		}
		out.Write(encoded)
		out.WriteString("\n")
	}

	tmp := path + ".tmp"
	if err := os.WriteFile(tmp, []byte(out.String()), 0o644); err != nil {
		return fmt.Errorf("rewrite ingestion queue: %w", err)
	}
	return os.Rename(tmp, path)
}

func appendJSONL(path string, entries []any) error {
	if len(entries) == 0 {
		return nil
	}
	if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
		return fmt.Errorf("create dir for %s: %w", path, err)
	}
	file, err := os.OpenFile(path, os.O_CREATE|os.O_WRONLY|os.O_APPEND, 0o644)
	if err != nil {
		return fmt.Errorf("open %s: %w", path, err)
	}
	defer file.Close()
	encoder := json.NewEncoder(file)
	for _, entry := range entries {
		if err := encoder.Encode(entry); err != nil {
			return fmt.Errorf("append to %s: %w", path, err)
		}
	}
	return nil
}

func toAny[T any](items []T) []any {
	out := make([]any, len(items))
	for i := range items {
		out[i] = items[i]
	}
	return out
}

func round4(v float64) float64 {
	return math.Round(v*10000) / 10000
}

func roundAxes(axes AxisScores) AxisScores {
	return AxisScores{
		Name:       round4(axes.Name),
		Identifier: round4(axes.Identifier),
		Address:    round4(axes.Address),
		Date:       round4(axes.Date),
		Context:    round4(axes.Context),
	}
}
