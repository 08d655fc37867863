package bst

import (
	"strings"
)

// ConversationalDomain is the passthrough classification for messages that
// hit no trigger phrase.
const ConversationalDomain = "conversational"

// Classification is the domain decision for one message.
type Classification struct {
	Domain     string
	Score      float64
	Confidence float64
}

// Classify scores the message against every domain's trigger phrases. Each
// hit contributes 1 plus a small weight for longer phrases; phrases shorter
// than min_trigger_word_length are ignored. Zero hits anywhere classifies
// the message as conversational.
func (t *Taxonomy) Classify(message string) Classification {
	lower := strings.ToLower(message)

	best := Classification{Domain: ConversationalDomain}
	for name, domain := range t.Domains {
		score := 0.0
		for _, phrase := range domain.TriggerPhrases {
			if len(phrase) < t.MinTriggerWordLength {
				continue
			}
			if strings.Contains(lower, strings.ToLower(phrase)) {
				score += 1 + 0.1*float64(len(strings.Fields(phrase)))
			}
		}
		if score > best.Score {
			best = Classification{Domain: name, Score: score}
		}
	}

	if best.Score == 0 {
		return Classification{Domain: ConversationalDomain}
	}
	best.Confidence = classifierConfidence(best.Score)
	return best
}

// classifierConfidence normalizes a raw score into [0, 1]: saturates at 1 as
// hits accumulate, with a floor divisor of 3 so a single weak hit cannot
// dominate.
func classifierConfidence(raw float64) float64 {
	divisor := raw + 1
	if divisor < 3 {
		divisor = 3
	}
	confidence := raw / divisor
	if confidence > 1 {
		confidence = 1
	}
	return confidence
}

// Pronouns that mark a short message as underspecified.
var underspecPronouns = map[string]bool{
	"it": true, "that": true, "this": true, "them": true,
	"those": true, "these": true, "one": true,
}

// Phrases that mark a message as a continuation of prior work.
var underspecPhrases = []string{
	"keep going", "continue", "do it", "go ahead",
	"same as before", "again", "try again", "once more",
}

// maxUnderspecWords is the length ceiling for the pronoun check.
const maxUnderspecWords = 5

// IsUnderspecified reports whether the message leans on prior context: a
// short message carrying a pronoun, or a known continuation phrase.
func IsUnderspecified(message string) bool {
	lower := strings.ToLower(strings.TrimSpace(message))
	for _, phrase := range underspecPhrases {
		if strings.Contains(lower, phrase) {
			return true
		}
	}

	words := strings.Fields(lower)
	if len(words) == 0 || len(words) > maxUnderspecWords {
		return false
	}
	for _, word := range words {
		if underspecPronouns[strings.Trim(word, ".,!?")] {
			return true
		}
	}
	return false
}
