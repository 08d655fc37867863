package connectors

import (
	"encoding/csv"
	"fmt"
	"io"
	"os"
	"strings"

	"aegis/internal/logging"
)

// Default column-to-property mappings, overridable per source.
var defaultCSVMappings = CSVMappings{
	NameColumns: []string{"name", "full_name", "entity_name", "company_name",
		"org_name", "person_name", "organization_name"},
	DateColumns: []string{"date", "filing_date", "effective_date", "start_date",
		"dob", "date_of_birth"},
	AmountColumns:  []string{"amount", "value", "total", "contribution", "sum"},
	AddressColumns: []string{"address", "location", "city", "state", "street"},
	OrgColumns:     []string{"company", "employer", "organization", "org", "employer_name"},
	IdentifierColumns: []string{"ein", "duns", "ticker", "registration_number",
		"id", "fec_id", "lobbyist_id"},
}

// CSVMappings names the columns tried for each entity property.
type CSVMappings struct {
	NameColumns       []string `mapstructure:"name_columns"`
	DateColumns       []string `mapstructure:"date_columns"`
	AmountColumns     []string `mapstructure:"amount_columns"`
	AddressColumns    []string `mapstructure:"address_columns"`
	OrgColumns        []string `mapstructure:"org_columns"`
	IdentifierColumns []string `mapstructure:"identifier_columns"`
}

func (m *CSVMappings) applyDefaults() {
	if len(m.NameColumns) == 0 {
		*m = defaultCSVMappings
	}
}

// CSVOptions tunes one CSV ingestion run.
type CSVOptions struct {
	EntityType    string
	Delimiter     rune
	MaxRows       int
	ForceReingest bool
	Mappings      CSVMappings
}

// CSVConnector ingests delimited files into candidate entities.
type CSVConnector struct {
	queue  Queue
	logger logging.Logger
}

// NewCSVConnector builds the connector; queue may be nil for dry runs.
func NewCSVConnector(queue Queue, logger logging.Logger) *CSVConnector {
	return &CSVConnector{queue: queue, logger: logging.OrNop(logger)}
}

// IngestFile reads a CSV/TSV file, maps columns to entity properties, and
// appends the candidates to the ingestion queue.
func (c *CSVConnector) IngestFile(path, sourceID string, opts CSVOptions) (*Report, error) {
	file, err := os.Open(path)
	if err != nil {
		return &Report{Errors: 1}, fmt.Errorf("open csv source: %w", err)
	}
	defer file.Close()
	c.logger.Info("csv connector: reading %s as source %s", path, sourceID)
	return c.Ingest(file, sourceID, opts)
}

// Ingest reads delimited records from r.
func (c *CSVConnector) Ingest(r io.Reader, sourceID string, opts CSVOptions) (*Report, error) {
	opts.Mappings.applyDefaults()
	if opts.MaxRows <= 0 {
		opts.MaxRows = defaultMaxRecords
	}

	data, err := io.ReadAll(r)
	if err != nil {
		return &Report{Errors: 1}, fmt.Errorf("read csv source: %w", err)
	}
	content := strings.TrimPrefix(string(data), "\uFEFF")

	delimiter := opts.Delimiter
	if delimiter == 0 {
		delimiter = sniffDelimiter(content)
	}

	reader := csv.NewReader(strings.NewReader(content))
	reader.Comma = delimiter
	reader.FieldsPerRecord = -1
	reader.LazyQuotes = true

	rows, err := reader.ReadAll()
	if err != nil {
		return &Report{Errors: 1}, fmt.Errorf("parse csv source: %w", err)
	}
	if len(rows) == 0 {
		return &Report{}, nil
	}

	report := &Report{}
	ingested := ingestedFor(c.queue, sourceID, opts.ForceReingest)

	header := rows[0]
	if !looksLikeHeader(header, opts.Mappings) {
		c.ingestPositional(rows, sourceID, opts, ingested, report)
	} else {
		c.ingestMapped(header, rows[1:], sourceID, opts, ingested, report)
	}

	c.logger.Info("csv connector: %d candidates, %d skipped, %d errors",
		len(report.Candidates), report.Skipped, report.Errors)
	if err := flush(c.queue, report.Candidates); err != nil {
		return report, fmt.Errorf("enqueue csv candidates: %w", err)
	}
	return report, nil
}

// ingestMapped handles files with a header row.
func (c *CSVConnector) ingestMapped(header []string, rows [][]string, sourceID string,
	opts CSVOptions, ingested map[string]bool, report *Report) {
	headerIndex := make(map[string]int, len(header))
	for i, name := range header {
		headerIndex[strings.ToLower(strings.TrimSpace(name))] = i
	}

	for rowNum, row := range rows {
		if len(report.Candidates) >= opts.MaxRows {
			break
		}
		recordID := fmt.Sprintf("row_%d", rowNum+1)
		if ingested[sourceID+":"+recordID] {
			report.Skipped++
			continue
		}

		props := mapRow(row, header, headerIndex, opts.Mappings)
		if props["name"] == nil {
			// Fall back to the first non-empty cell.
			for _, cell := range row {
				if cell = strings.TrimSpace(cell); cell != "" {
					props["name"] = cell
					break
				}
			}
		}
		if props["name"] == nil {
			report.Errors++
			continue
		}

		entityType := opts.EntityType
		if entityType == "" {
			entityType = inferEntityType(header)
		}
		report.Candidates = append(report.Candidates,
			makeCandidate(props, entityType, "csv", sourceID, recordID, 1.0))
	}
}

// ingestPositional handles headerless files: column 0 is the name, the rest
// become field_N properties at reduced confidence.
func (c *CSVConnector) ingestPositional(rows [][]string, sourceID string,
	opts CSVOptions, ingested map[string]bool, report *Report) {
	entityType := opts.EntityType
	if entityType == "" {
		entityType = "entity"
	}
	for rowNum, row := range rows {
		if len(report.Candidates) >= opts.MaxRows {
			break
		}
		recordID := fmt.Sprintf("row_%d", rowNum+1)
		if ingested[sourceID+":"+recordID] {
			report.Skipped++
			continue
		}
		if len(row) == 0 || strings.TrimSpace(row[0]) == "" {
			report.Errors++
			continue
		}
		props := map[string]any{"name": strings.TrimSpace(row[0])}
		for i, cell := range row[1:] {
			if cell = strings.TrimSpace(cell); cell != "" {
				props[fmt.Sprintf("field_%d", i+1)] = cell
			}
		}
		report.Candidates = append(report.Candidates,
			makeCandidate(props, entityType, "csv", sourceID, recordID, 0.5))
	}
}

// mapRow maps one record's cells to entity properties via the column lists.
func mapRow(row, header []string, headerIndex map[string]int, mappings CSVMappings) map[string]any {
	cell := func(columns []string) string {
		for _, column := range columns {
			if i, ok := headerIndex[strings.ToLower(column)]; ok && i < len(row) {
				if value := strings.TrimSpace(row[i]); value != "" {
					return value
				}
			}
		}
		return ""
	}

	props := map[string]any{}
	for prop, columns := range map[string][]string{
		"name":         mappings.NameColumns,
		"date":         mappings.DateColumns,
		"amount":       mappings.AmountColumns,
		"address":      mappings.AddressColumns,
		"organization": mappings.OrgColumns,
	} {
		if value := cell(columns); value != "" {
			props[prop] = value
		}
	}

	identifiers := map[string]any{}
	for _, column := range mappings.IdentifierColumns {
		key := strings.ToLower(column)
		if i, ok := headerIndex[key]; ok && i < len(row) {
			if value := strings.TrimSpace(row[i]); value != "" {
				identifiers[key] = value
			}
		}
	}
	if len(identifiers) > 0 {
		props["identifiers"] = identifiers
	}

	// Remaining non-empty cells ride along as raw properties.
	for i, name := range header {
		if i >= len(row) {
			break
		}
		value := strings.TrimSpace(row[i])
		if value == "" {
			continue
		}
		key := fieldKey(name)
		if _, taken := props[key]; !taken {
			props[key] = value
		}
	}
	return props
}

// sniffDelimiter picks the most frequent candidate delimiter in the first
// line, defaulting to comma.
func sniffDelimiter(content string) rune {
	firstLine := content
	if i := strings.IndexByte(content, '\n'); i >= 0 {
		firstLine = content[:i]
	}
	best, bestCount := ',', 0
	for _, candidate := range []rune{',', '\t', '|', ';'} {
		if count := strings.Count(firstLine, string(candidate)); count > bestCount {
			best, bestCount = candidate, count
		}
	}
	return best
}

// looksLikeHeader reports whether the first row names any mapped column.
func looksLikeHeader(row []string, mappings CSVMappings) bool {
	known := make(map[string]bool)
	for _, columns := range [][]string{
		mappings.NameColumns, mappings.DateColumns, mappings.AmountColumns,
		mappings.AddressColumns, mappings.OrgColumns, mappings.IdentifierColumns,
	} {
		for _, column := range columns {
			known[strings.ToLower(column)] = true
		}
	}
	for _, cell := range row {
		if known[strings.ToLower(strings.TrimSpace(cell))] {
			return true
		}
	}
	return false
}
