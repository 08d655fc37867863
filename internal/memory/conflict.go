package memory

import (
	"regexp"
	"strings"
)

// Contradiction detectors. Three signals, checked in order: an explicit
// correction with shared vocabulary, the same entity carrying different
// values, and a negation facing its affirmation.

var correctionRe = regexp.MustCompile(`(?i)\b(actually|no,|correction|correct that|i meant|instead|rather|not true|that'?s wrong)\b`)

// minSharedWords gates the correction detector.
const minSharedWords = 3

var (
	usesVersionRe = regexp.MustCompile(`(?i)\buses?\s+([A-Za-z][\w.+-]*)\s+(?:version\s+)?(\d[\w.]*)`)
	nameVersionRe = regexp.MustCompile(`(?i)\b([A-Za-z][\w.+-]*)\s+version\s+([\w.]+)`)
	theXIsYRe     = regexp.MustCompile(`(?i)\bthe\s+([a-z][a-z _-]{0,30}?)\s+is\s+([\w.-]+)`)
)

// negationPair couples a negated form with its affirmation. Both regexes
// capture the subject token; a conflict needs the tokens to agree.
type negationPair struct {
	negative *regexp.Regexp
	positive *regexp.Regexp
}

var negationPairs = []negationPair{
	{regexp.MustCompile(`(?i)\bdoes not use ([\w.+-]+)`), regexp.MustCompile(`(?i)\buses? ([\w.+-]+)`)},
	{regexp.MustCompile(`(?i)\bdoesn'?t use ([\w.+-]+)`), regexp.MustCompile(`(?i)\buses? ([\w.+-]+)`)},
	{regexp.MustCompile(`(?i)\bis not ([\w.+-]+)`), regexp.MustCompile(`(?i)\bis ([\w.+-]+)`)},
	{regexp.MustCompile(`(?i)\bshould not ([\w-]+)`), regexp.MustCompile(`(?i)\bshould ([\w-]+)`)},
	{regexp.MustCompile(`(?i)\bnever ([\w-]+)`), regexp.MustCompile(`(?i)\balways ([\w-]+)`)},
}

// Contradicts reports whether the two texts contradict each other.
func Contradicts(textA, textB string) bool {
	if hasCorrection(textA, textB) || hasCorrection(textB, textA) {
		return true
	}
	if entityValueDiverges(textA, textB) {
		return true
	}
	if negationConflict(textA, textB) || negationConflict(textB, textA) {
		return true
	}
	return false
}

// hasCorrection detects an explicit correction in a that shares enough
// vocabulary with b to plausibly be about the same fact.
func hasCorrection(a, b string) bool {
	if !correctionRe.MatchString(a) {
		return false
	}
	return sharedWordCount(a, b) >= minSharedWords
}

func sharedWordCount(a, b string) int {
	wordsA := wordSet(a)
	wordsB := wordSet(b)
	shared := 0
	for word := range wordsA {
		if wordsB[word] {
			shared++
		}
	}
	return shared
}

func wordSet(text string) map[string]bool {
	set := make(map[string]bool)
	for _, word := range strings.Fields(strings.ToLower(text)) {
		word = strings.Trim(word, ".,!?;:\"'()")
		if len(word) > 2 {
			set[word] = true
		}
	}
	return set
}

// entityValueDiverges extracts (entity, value) claims from both texts and
// reports a conflict when the same entity carries different values.
func entityValueDiverges(a, b string) bool {
	claimsA := extractClaims(a)
	if len(claimsA) == 0 {
		return false
	}
	claimsB := extractClaims(b)
	for entity, valueA := range claimsA {
		if valueB, ok := claimsB[entity]; ok && !strings.EqualFold(valueA, valueB) {
			return true
		}
	}
	return false
}

func extractClaims(text string) map[string]string {
	claims := make(map[string]string)
	for _, match := range usesVersionRe.FindAllStringSubmatch(text, -1) {
		claims[strings.ToLower(match[1])] = match[2]
	}
	for _, match := range nameVersionRe.FindAllStringSubmatch(text, -1) {
		claims[strings.ToLower(match[1])] = match[2]
	}
	for _, match := range theXIsYRe.FindAllStringSubmatch(text, -1) {
		claims[strings.ToLower(strings.TrimSpace(match[1]))] = match[2]
	}
	return claims
}

// negationConflict checks every pair with the negation on side a.
func negationConflict(a, b string) bool {
	for _, pair := range negationPairs {
		negMatch := pair.negative.FindStringSubmatch(a)
		if negMatch == nil {
			continue
		}
		for _, posMatch := range pair.positive.FindAllStringSubmatch(b, -1) {
			if strings.EqualFold(negMatch[1], posMatch[1]) {
				return true
			}
		}
	}
	return false
}

// PickLoser decides which of two contradicting memories is deprecated:
// lower source rank, else lower validity rank, else lower utility rank,
// else the older document; on a full tie A loses.
func PickLoser(a, b *Document) *Document {
	if a.Classification != nil && b.Classification != nil {
		if ra, rb := SourceRank(a.Classification.Source), SourceRank(b.Classification.Source); ra != rb {
			if ra < rb {
				return a
			}
			return b
		}
		if ra, rb := ValidityRank(a.Classification.Validity), ValidityRank(b.Classification.Validity); ra != rb {
			if ra < rb {
				return a
			}
			return b
		}
		if ra, rb := UtilityRank(a.Classification.Utility), UtilityRank(b.Classification.Utility); ra != rb {
			if ra < rb {
				return a
			}
			return b
		}
	}
	if a.Timestamp > b.Timestamp {
		return b
	}
	return a
}
