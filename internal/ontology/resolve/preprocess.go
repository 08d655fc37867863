package resolve

import (
	"fmt"
	"regexp"
	"strings"
	"time"
)

var honorificRe = regexp.MustCompile(`(?i)\b(mr|mrs|ms|dr|prof|jr|sr|iii|ii|iv|esq|phd|md|dds|dvm|jd)\b\.?`)

var whitespaceRe = regexp.MustCompile(`\s+`)

// addressReplacements expands common street and company abbreviations.
var addressReplacements = []struct {
	re          *regexp.Regexp
	replacement string
}{
	{regexp.MustCompile(`(?i)\bst\b`), "street"},
	{regexp.MustCompile(`(?i)\bave\b`), "avenue"},
	{regexp.MustCompile(`(?i)\bblvd\b`), "boulevard"},
	{regexp.MustCompile(`(?i)\bdr\b`), "drive"},
	{regexp.MustCompile(`(?i)\bln\b`), "lane"},
	{regexp.MustCompile(`(?i)\brd\b`), "road"},
	{regexp.MustCompile(`(?i)\bcorp\b`), "corporation"},
	{regexp.MustCompile(`(?i)\binc\b`), "incorporated"},
	{regexp.MustCompile(`(?i)\bllc\b`), "llc"},
	{regexp.MustCompile(`(?i)\bco\b`), "company"},
	{regexp.MustCompile(`(?i)\bltd\b`), "limited"},
	{regexp.MustCompile(`(?i)\bplc\b`), "plc"},
	{regexp.MustCompile(`(?i)\bintl\b`), "international"},
}

// identifierKeys is the recognized identifier vocabulary.
var identifierKeys = map[string]bool{
	"ein": true, "duns": true, "ticker": true, "lei": true,
	"registration_number": true, "ssn_last4": true, "passport": true,
	"npi": true, "isin": true, "cusip": true, "sedol": true,
	"contract_id": true, "fec_id": true, "lobbyist_id": true,
}

// dateKeys are the property names probed for dates during preprocessing.
var dateKeys = []string{"date", "date_of_birth", "start_date", "filing_date", "effective_date"}

var (
	isoDateRe    = regexp.MustCompile(`^\d{4}-\d{2}-\d{2}$`)
	slashDateRe  = regexp.MustCompile(`^(\d{1,2})/(\d{1,2})/(\d{4})$`)
	dashDateRe   = regexp.MustCompile(`^(\d{1,2})-(\d{1,2})-(\d{4})$`)
	yearOnlyRe   = regexp.MustCompile(`^(\d{4})$`)
	textFormats  = []string{"January 2, 2006", "Jan 2, 2006", "2 January 2006", "2 Jan 2006"}
)

// NormalizeName lowercases, strips honorifics and suffixes, and collapses
// whitespace.
func NormalizeName(name string) string {
	if name == "" {
		return ""
	}
	name = strings.ToLower(strings.TrimSpace(name))
	name = honorificRe.ReplaceAllString(name, "")
	return strings.TrimSpace(whitespaceRe.ReplaceAllString(name, " "))
}

// CanonicalizeAddress expands abbreviations, lowercases, and collapses
// whitespace.
func CanonicalizeAddress(address string) string {
	if address == "" {
		return ""
	}
	address = strings.ToLower(strings.TrimSpace(address))
	for _, rule := range addressReplacements {
		address = rule.re.ReplaceAllString(address, rule.replacement)
	}
	return strings.TrimSpace(whitespaceRe.ReplaceAllString(address, " "))
}

// NormalizeDate parses known formats into ISO YYYY-MM-DD; empty on failure.
// Slash and dash forms are read month-first; a bare year becomes January 1.
func NormalizeDate(raw string) string {
	raw = strings.TrimSpace(raw)
	if raw == "" {
		return ""
	}
	if isoDateRe.MatchString(raw) {
		return raw
	}
	if m := slashDateRe.FindStringSubmatch(raw); m != nil {
		return fmt.Sprintf("%s-%s-%s", m[3], pad2(m[1]), pad2(m[2]))
	}
	if m := dashDateRe.FindStringSubmatch(raw); m != nil {
		return fmt.Sprintf("%s-%s-%s", m[3], pad2(m[1]), pad2(m[2]))
	}
	if m := yearOnlyRe.FindStringSubmatch(raw); m != nil {
		return m[1] + "-01-01"
	}
	for _, format := range textFormats {
		if parsed, err := time.Parse(format, raw); err == nil {
			return parsed.Format("2006-01-02")
		}
	}
	return ""
}

// ExtractIdentifiers harvests recognized identifier fields from properties,
// including a nested identifiers map.
func ExtractIdentifiers(props map[string]any) map[string]string {
	ids := make(map[string]string)
	for key, value := range props {
		lower := strings.ToLower(key)
		if !identifierKeys[lower] {
			continue
		}
		if s := stringValue(value); s != "" {
			ids[lower] = strings.ToLower(strings.TrimSpace(s))
		}
	}
	if nested, ok := props["identifiers"].(map[string]any); ok {
		for key, value := range nested {
			if s := stringValue(value); s != "" {
				ids[strings.ToLower(key)] = strings.ToLower(strings.TrimSpace(s))
			}
		}
	}
	return ids
}

// Preprocess attaches the normalized view to a candidate.
func Preprocess(candidate *Candidate) *Candidate {
	props := candidate.Properties
	address := propString(props, "address")
	if address == "" {
		address = propString(props, "location")
	}

	var aliases []string
	for _, alias := range propStrings(props, "aliases") {
		if normalized := NormalizeName(alias); normalized != "" {
			aliases = append(aliases, normalized)
		}
	}

	var dates []string
	for _, key := range dateKeys {
		if raw := propString(props, key); raw != "" {
			if normalized := NormalizeDate(raw); normalized != "" {
				dates = append(dates, normalized)
			}
		}
	}

	candidate.Normalized = &Normalized{
		Name:        NormalizeName(propString(props, "name")),
		Aliases:     aliases,
		Address:     CanonicalizeAddress(address),
		Dates:       dates,
		Identifiers: ExtractIdentifiers(props),
	}
	return candidate
}

func pad2(s string) string {
	if len(s) == 1 {
		return "0" + s
	}
	return s
}

func stringValue(value any) string {
	switch v := value.(type) {
	case string:
		return v
	case float64:
		if v == float64(int64(v)) {
			return fmt.Sprintf("%d", int64(v))
		}
		return fmt.Sprintf("%v", v)
	case int:
		return fmt.Sprintf("%d", v)
	case bool:
		return fmt.Sprintf("%t", v)
	}
	return ""
}
