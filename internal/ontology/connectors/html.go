package connectors

import (
	"fmt"
	"regexp"
	"strings"

	"github.com/PuerkitoBio/goquery"

	"aegis/internal/logging"
)

const (
	htmlNameCandidateCap    = 200
	htmlAddressCandidateCap = 20
	htmlAmountCandidateCap  = 10

	htmlNameConfidence    = 0.6
	htmlAddressConfidence = 0.5
	htmlAmountConfidence  = 0.4
)

// Capitalized multi-word sequences, candidate person or organization names.
var properNounRe = regexp.MustCompile(
	`\b([A-Z][a-z]{1,20}(?:\s+(?:of|the|and|&|,)?\s*[A-Z][a-z]{1,20}){0,5})\b`)

var orgSuffixRe = regexp.MustCompile(`(?i)\b(?:Inc|LLC|Corp|Corporation|Ltd|Limited|Co|Company|Group|Holdings|` +
	`Foundation|Association|Institute|Agency|Bureau|Department|Authority|` +
	`Trust|Fund|Partners|LLP|PLC|GmbH|SA|BV)\b\.?`)

var datePatterns = []*regexp.Regexp{
	regexp.MustCompile(`\b(\d{1,2})[/\-](\d{1,2})[/\-](\d{2,4})\b`),
	regexp.MustCompile(`(?i)\b(January|February|March|April|May|June|July|August|September|` +
		`October|November|December)\s+(\d{1,2}),?\s+(\d{4})\b`),
	regexp.MustCompile(`\b(\d{4})[/\-](\d{2})[/\-](\d{2})\b`),
}

var amountRe = regexp.MustCompile(`(?i)\$\s*(\d{1,3}(?:,\d{3})*(?:\.\d{2})?(?:\s*[BKMG]illion|\s*[MBK])?)` +
	`|\b(\d{1,3}(?:,\d{3})*(?:\.\d{2})?)\s*(?:USD|dollars?)\b`)

var addressRe = regexp.MustCompile(`(?i)\b(\d{1,6}\s+[A-Z][a-zA-Z\s]{2,30}(?:Street|Avenue|Boulevard|Drive|Lane|` +
	`Road|Way|Court|Place|Circle|Parkway|St|Ave|Blvd|Dr|Ln|Rd)(?:\s*,\s*[A-Z][a-zA-Z\s]+)?)\b`)

var htmlWhitespaceRe = regexp.MustCompile(`\s+`)

// Capitalized words that never start an entity name.
var commonWords = map[string]bool{
	"The": true, "This": true, "That": true, "These": true, "Those": true,
	"An": true, "A": true, "In": true, "On": true, "At": true, "By": true,
	"For": true, "With": true, "From": true, "To": true, "Of": true,
	"As": true, "Or": true, "And": true, "But": true, "Not": true, "No": true,
	"It": true, "Its": true, "Be": true, "Is": true, "Are": true, "Was": true,
	"Were": true, "Has": true, "Have": true, "Had": true, "Do": true,
	"Does": true, "Did": true, "Will": true, "Would": true, "Could": true,
	"Should": true, "May": true, "Might": true, "Can": true,
	"January": true, "February": true, "March": true, "April": true,
	"June": true, "July": true, "August": true, "September": true,
	"October": true, "November": true, "December": true,
	"Monday": true, "Tuesday": true, "Wednesday": true, "Thursday": true,
	"Friday": true, "Saturday": true, "Sunday": true,
}

// HTMLOptions tunes one scrape ingestion run.
type HTMLOptions struct {
	SourceURL     string
	PlainText     bool
	MinNameLength int
}

// HTMLStats counts raw extractions before candidate assembly.
type HTMLStats struct {
	Names     int
	Dates     int
	Amounts   int
	Addresses int
}

// HTMLConnector extracts entity candidates from scraped pages with regex
// heuristics, at reduced confidence.
type HTMLConnector struct {
	queue  Queue
	logger logging.Logger
}

// NewHTMLConnector builds the connector; queue may be nil for dry runs.
func NewHTMLConnector(queue Queue, logger logging.Logger) *HTMLConnector {
	return &HTMLConnector{queue: queue, logger: logging.OrNop(logger)}
}

// Ingest extracts candidates from HTML (or plain text) content and appends
// them to the ingestion queue.
func (c *HTMLConnector) Ingest(content, sourceID string, opts HTMLOptions) (*Report, *HTMLStats, error) {
	if opts.MinNameLength <= 0 {
		opts.MinNameLength = 4
	}

	text := content
	if !opts.PlainText {
		text = stripHTML(content)
	}
	text = htmlWhitespaceRe.ReplaceAllString(text, " ")

	names := extractNames(text, opts.MinNameLength)
	dates := extractUnique(text, datePatterns...)
	amounts := extractAmounts(text)
	addresses := extractAddresses(text)
	stats := &HTMLStats{Names: len(names), Dates: len(dates), Amounts: len(amounts), Addresses: len(addresses)}
	c.logger.Info("html connector: %d names, %d dates, %d amounts, %d addresses from source %s",
		stats.Names, stats.Dates, stats.Amounts, stats.Addresses, sourceID)

	report := &Report{}
	add := func(entityType string, props map[string]any, recordID string, confidence float64) {
		candidate := makeCandidate(props, entityType, "html_scrape", sourceID, recordID, confidence)
		candidate.Provenance.SourceURL = opts.SourceURL
		report.Candidates = append(report.Candidates, candidate)
	}

	for i, name := range capNames(names, htmlNameCandidateCap) {
		entityType := "person"
		if name.isOrg {
			entityType = "organization"
		}
		props := map[string]any{"name": name.text}
		// Page-level context rides on every name candidate.
		if len(addresses) > 0 {
			props["address"] = addresses[0]
		}
		if len(dates) > 0 {
			props["date"] = dates[0]
		}
		add(entityType, props, fmt.Sprintf("name_%d", i), htmlNameConfidence)
	}

	for i, address := range capStrings(addresses, htmlAddressCandidateCap) {
		add("location", map[string]any{"name": address, "address": address},
			fmt.Sprintf("addr_%d", i), htmlAddressConfidence)
	}

	for i, amount := range capStrings(amounts, htmlAmountCandidateCap) {
		add("financial_instrument", map[string]any{"name": "amount_" + amount, "value": amount},
			fmt.Sprintf("amount_%d", i), htmlAmountConfidence)
	}

	if err := flush(c.queue, report.Candidates); err != nil {
		return report, stats, fmt.Errorf("enqueue html candidates: %w", err)
	}
	return report, stats, nil
}

// stripHTML drops script and style subtrees and returns the document text.
func stripHTML(content string) string {
	doc, err := goquery.NewDocumentFromReader(strings.NewReader(content))
	if err != nil {
		return content
	}
	doc.Find("script, style, noscript").Remove()
	return doc.Text()
}

type extractedName struct {
	text  string
	isOrg bool
}

func extractNames(text string, minLength int) []extractedName {
	seen := make(map[string]bool)
	var results []extractedName
	for _, match := range properNounRe.FindAllStringSubmatch(text, -1) {
		name := strings.TrimSpace(match[1])
		if len(name) < minLength || commonWords[name] {
			continue
		}
		lower := strings.ToLower(name)
		if lower == "the company" || lower == "the agency" || seen[lower] {
			continue
		}
		seen[lower] = true
		results = append(results, extractedName{text: name, isOrg: orgSuffixRe.MatchString(name)})
	}
	return results
}

func extractUnique(text string, patterns ...*regexp.Regexp) []string {
	seen := make(map[string]bool)
	var results []string
	for _, pattern := range patterns {
		for _, match := range pattern.FindAllString(text, -1) {
			match = strings.TrimSpace(match)
			if match != "" && !seen[match] {
				seen[match] = true
				results = append(results, match)
			}
		}
	}
	return results
}

func extractAmounts(text string) []string {
	seen := make(map[string]bool)
	var results []string
	for _, match := range amountRe.FindAllStringSubmatch(text, -1) {
		amount := strings.TrimSpace(match[1])
		if amount == "" {
			amount = strings.TrimSpace(match[2])
		}
		if amount != "" && !seen[amount] {
			seen[amount] = true
			results = append(results, amount)
		}
	}
	return results
}

func extractAddresses(text string) []string {
	seen := make(map[string]bool)
	var results []string
	for _, match := range addressRe.FindAllStringSubmatch(text, -1) {
		address := strings.TrimSpace(match[1])
		lower := strings.ToLower(address)
		if len(address) > 10 && !seen[lower] {
			seen[lower] = true
			results = append(results, address)
		}
	}
	return results
}

func capNames(names []extractedName, limit int) []extractedName {
	if len(names) > limit {
		return names[:limit]
	}
	return names
}

func capStrings(values []string, limit int) []string {
	if len(values) > limit {
		return values[:limit]
	}
	return values
}
