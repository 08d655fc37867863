package resolve

import (
	"fmt"
	"regexp"
	"sort"
	"strings"
)

const aliasBlockLimit = 3

var (
	vowelRe        = regexp.MustCompile(`[AEIOU]`)
	phRe           = regexp.MustCompile(`PH`)
	ckRe           = regexp.MustCompile(`CK`)
	schRe          = regexp.MustCompile(`SCH`)
	nonUppercaseRe = regexp.MustCompile(`[^A-Z]`)
)

const repeatConsonants = "BDFGJKLMNPQRSTVWXYZ"

// collapseRepeats deduplicates runs of the same consonant, matching the
// pattern `([BDFGJKLMNPQRSTVWXYZ])\1+` which Go's RE2 engine cannot
// compile (no backreferences).
func collapseRepeats(s string) string {
	var b strings.Builder
	b.Grow(len(s))
	var prev byte
	for i := 0; i < len(s); i++ {
		c := s[i]
		if c == prev && strings.IndexByte(repeatConsonants, c) >= 0 {
			continue
		}
		b.WriteByte(c)
		prev = c
	}
	return b.String()
}

// phoneticKey builds a metaphone-lite encoding: vowels collapse to V, common
// digraphs collapse, repeated consonants deduplicate, first four chars kept.
func phoneticKey(name string) string {
	if len(name) < 2 {
		return name
	}
	s := strings.ToUpper(name)
	s = vowelRe.ReplaceAllString(s, "V")
	s = phRe.ReplaceAllString(s, "F")
	s = ckRe.ReplaceAllString(s, "K")
	s = schRe.ReplaceAllString(s, "S")
	s = collapseRepeats(s)
	s = nonUppercaseRe.ReplaceAllString(s, "")
	if len(s) > 4 {
		s = s[:4]
	}
	return s
}

// buildBlocks groups candidate indices by comparison key across the three
// blocking strategies.
func buildBlocks(candidates []*Candidate) map[string][]int {
	blocks := make(map[string][]int)
	for i, candidate := range candidates {
		norm := candidate.Normalized
		if norm == nil {
			continue
		}
		entityType := candidate.EntityType
		if entityType == "" {
			entityType = "entity"
		}

		for idKey, idValue := range norm.Identifiers {
			if idValue != "" {
				key := fmt.Sprintf("id:%s:%s", idKey, idValue)
				blocks[key] = append(blocks[key], i)
			}
		}

		if norm.Name != "" {
			key := fmt.Sprintf("np:%s:%s", entityType, prefix3(norm.Name))
			blocks[key] = append(blocks[key], i)
			aliases := norm.Aliases
			if len(aliases) > aliasBlockLimit {
				aliases = aliases[:aliasBlockLimit]
			}
			for _, alias := range aliases {
				if alias != "" {
					key := fmt.Sprintf("np:%s:%s", entityType, prefix3(alias))
					blocks[key] = append(blocks[key], i)
				}
			}

			if phon := phoneticKey(norm.Name); phon != "" {
				key := fmt.Sprintf("ph:%s:%s", entityType, phon)
				blocks[key] = append(blocks[key], i)
			}
		}
	}
	return blocks
}

// candidatePairs returns the sorted (i, j) pairs, i < j, sharing any block.
func candidatePairs(candidates []*Candidate) [][2]int {
	blocks := buildBlocks(candidates)
	seen := make(map[[2]int]bool)
	for _, indices := range blocks {
		if len(indices) < 2 {
			continue
		}
		for i := 0; i < len(indices); i++ {
			for j := i + 1; j < len(indices); j++ {
				a, b := indices[i], indices[j]
				if a == b {
					continue
				}
				if b < a {
					a, b = b, a
				}
				seen[[2]int{a, b}] = true
			}
		}
	}

	pairs := make([][2]int, 0, len(seen))
	for pair := range seen {
		pairs = append(pairs, pair)
	}
	sort.Slice(pairs, func(i, j int) bool {
		if pairs[i][0] != pairs[j][0] {
			return pairs[i][0] < pairs[j][0]
		}
		return pairs[i][1] < pairs[j][1]
	})
	return pairs
}

func prefix3(s string) string {
	if len(s) > 3 {
		return s[:3]
	}
	return s
}
