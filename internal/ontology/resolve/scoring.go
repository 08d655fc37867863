package resolve

import (
	"strings"
	"time"
)

// AxisScores holds the per-axis similarity components of one pair.
type AxisScores struct {
	Name       float64 `json:"name"`
	Identifier float64 `json:"identifier"`
	Address    float64 `json:"address"`
	Date       float64 `json:"date"`
	Context    float64 `json:"context"`
}

// Weights is the axis weighting for the composite score.
type Weights struct {
	Name       float64 `json:"name" mapstructure:"name"`
	Identifier float64 `json:"identifier" mapstructure:"identifier"`
	Address    float64 `json:"address" mapstructure:"address"`
	Date       float64 `json:"date" mapstructure:"date"`
	Context    float64 `json:"context" mapstructure:"context"`
}

// DefaultWeights is the calibrated axis weighting.
func DefaultWeights() Weights {
	return Weights{Name: 0.35, Identifier: 0.30, Address: 0.15, Date: 0.10, Context: 0.10}
}

func (w Weights) total() float64 {
	total := w.Name + w.Identifier + w.Address + w.Date + w.Context
	if total <= 0 {
		return 1
	}
	return total
}

// compositeScore computes the weighted five-axis similarity for one pair.
func compositeScore(a, b *Candidate, weights Weights) (float64, AxisScores) {
	axes := AxisScores{
		Name:       nameScore(a.Normalized, b.Normalized),
		Identifier: identifierScore(a.Normalized, b.Normalized),
		Address:    addressScore(a.Normalized, b.Normalized),
		Date:       dateScore(a.Normalized, b.Normalized),
		Context:    contextScore(a, b),
	}
	composite := (weights.Name*axes.Name +
		weights.Identifier*axes.Identifier +
		weights.Address*axes.Address +
		weights.Date*axes.Date +
		weights.Context*axes.Context) / weights.total()
	return composite, axes
}

// nameScore is the best sequence-match ratio across names and aliases.
func nameScore(a, b *Normalized) float64 {
	if a == nil || b == nil {
		return 0
	}
	namesA := append([]string{a.Name}, a.Aliases...)
	namesB := append([]string{b.Name}, b.Aliases...)
	best := 0.0
	for _, na := range namesA {
		if na == "" {
			continue
		}
		for _, nb := range namesB {
			if nb == "" {
				continue
			}
			if score := matchRatio(na, nb); score > best {
				best = score
			}
		}
	}
	return best
}

// identifierScore is 1 when any identifier key matches exactly.
func identifierScore(a, b *Normalized) float64 {
	if a == nil || b == nil {
		return 0
	}
	for key, valueA := range a.Identifiers {
		if valueA == "" {
			continue
		}
		if valueB := b.Identifiers[key]; valueB != "" && valueA == valueB {
			return 1
		}
	}
	return 0
}

// addressScore is the Jaccard overlap of canonical address tokens.
func addressScore(a, b *Normalized) float64 {
	if a == nil || b == nil || a.Address == "" || b.Address == "" {
		return 0
	}
	return jaccard(tokenSet(a.Address), tokenSet(b.Address))
}

// dateScore is the best pairwise proximity, decaying to zero over a year.
func dateScore(a, b *Normalized) float64 {
	if a == nil || b == nil {
		return 0
	}
	best := 0.0
	for _, da := range a.Dates {
		ta, err := time.Parse("2006-01-02", da)
		if err != nil {
			continue
		}
		for _, db := range b.Dates {
			tb, err := time.Parse("2006-01-02", db)
			if err != nil {
				continue
			}
			delta := ta.Sub(tb).Hours() / 24
			if delta < 0 {
				delta = -delta
			}
			score := 1 - delta/365
			if score < 0 {
				score = 0
			}
			if score > best {
				best = score
			}
		}
	}
	return best
}

// contextScore is the Jaccard overlap of relationship hints plus descriptive
// properties.
func contextScore(a, b *Candidate) float64 {
	ta := contextTokens(a)
	tb := contextTokens(b)
	if len(ta) == 0 || len(tb) == 0 {
		return 0
	}
	return jaccard(ta, tb)
}

func contextTokens(candidate *Candidate) map[string]bool {
	tokens := make(map[string]bool)
	for _, rel := range candidate.Relationships {
		for _, token := range strings.Fields(NormalizeName(rel.TargetHint)) {
			tokens[token] = true
		}
	}
	for _, key := range []string{"description", "type", "jurisdiction"} {
		for _, token := range strings.Fields(strings.ToLower(propString(candidate.Properties, key))) {
			tokens[token] = true
		}
	}
	return tokens
}

func tokenSet(text string) map[string]bool {
	set := make(map[string]bool)
	for _, token := range strings.Fields(text) {
		set[token] = true
	}
	return set
}

func jaccard(a, b map[string]bool) float64 {
	if len(a) == 0 || len(b) == 0 {
		return 0
	}
	intersection := 0
	for token := range a {
		if b[token] {
			intersection++
		}
	}
	union := len(a) + len(b) - intersection
	return float64(intersection) / float64(union)
}

// matchRatio is the classic sequence-match ratio: twice the total matched
// length over the combined length, with matches found by recursive longest
// common substring.
func matchRatio(a, b string) float64 {
	if a == "" && b == "" {
		return 1
	}
	if a == "" || b == "" {
		return 0
	}
	matched := matchedLength(a, b)
	return 2 * float64(matched) / float64(len(a)+len(b))
}

func matchedLength(a, b string) int {
	ai, bi, size := longestCommonBlock(a, b)
	if size == 0 {
		return 0
	}
	return size +
		matchedLength(a[:ai], b[:bi]) +
		matchedLength(a[ai+size:], b[bi+size:])
}

// longestCommonBlock finds the longest common substring; earliest in a, then
// earliest in b, wins ties.
func longestCommonBlock(a, b string) (int, int, int) {
	bestA, bestB, bestSize := 0, 0, 0
	prev := make([]int, len(b)+1)
	current := make([]int, len(b)+1)
	for i := 1; i <= len(a); i++ {
		for j := 1; j <= len(b); j++ {
			if a[i-1] == b[j-1] {
				current[j] = prev[j-1] + 1
				if current[j] > bestSize {
					bestSize = current[j]
					bestA = i - bestSize
					bestB = j - bestSize
				}
			} else {
				current[j] = 0
			}
		}
		prev, current = current, prev
	}
	return bestA, bestB, bestSize
}
