package connectors

import (
	"encoding/json"
	"fmt"
	"io"
	"os"
	"strconv"
	"strings"

	"aegis/internal/logging"
	"aegis/internal/ontology/resolve"
)

// Default key-to-property mapping, overridable per source.
var defaultJSONKeyMap = map[string][]string{
	"name": {"name", "full_name", "entity_name", "company_name", "org_name",
		"person_name", "title"},
	"description":  {"description", "summary", "bio", "about"},
	"date":         {"date", "filing_date", "date_of_birth", "start_date", "effective_date"},
	"address":      {"address", "location", "street", "city"},
	"amount":       {"amount", "value", "total", "contribution"},
	"type":         {"type", "category", "entity_type", "org_type"},
	"jurisdiction": {"jurisdiction", "country", "state", "incorporation_state"},
}

var jsonIdentifierKeys = []string{
	"ein", "duns", "ticker", "lei", "registration_number",
	"isin", "cusip", "fec_id", "lobbyist_id", "contract_id",
}

// Field names carrying an implicit relationship to another entity.
var relationshipFields = []struct{ field, relType string }{
	{"employer", "employs"},
	{"company", "employs"},
	{"organization", "employs"},
	{"parent_company", "owns"},
	{"subsidiary", "owns"},
	{"location", "located_at"},
	{"address", "located_at"},
}

// JSONOptions tunes one JSON ingestion run.
type JSONOptions struct {
	EntityType    string
	KeyMap        map[string][]string
	RecordsPath   string
	MaxRecords    int
	ForceReingest bool
}

// JSONConnector ingests JSON and JSONL sources into candidate entities.
type JSONConnector struct {
	queue  Queue
	logger logging.Logger
}

// NewJSONConnector builds the connector; queue may be nil for dry runs.
func NewJSONConnector(queue Queue, logger logging.Logger) *JSONConnector {
	return &JSONConnector{queue: queue, logger: logging.OrNop(logger)}
}

// IngestFile reads a JSON or JSONL file and appends candidates to the
// ingestion queue.
func (c *JSONConnector) IngestFile(path, sourceID string, opts JSONOptions) (*Report, error) {
	file, err := os.Open(path)
	if err != nil {
		return &Report{Errors: 1}, fmt.Errorf("open json source: %w", err)
	}
	defer file.Close()
	c.logger.Info("json connector: reading %s as source %s", path, sourceID)
	return c.Ingest(file, sourceID, opts)
}

// Ingest reads records from r. Line-delimited JSON is detected by shape;
// standard JSON may carry a dotpath to the record array.
func (c *JSONConnector) Ingest(r io.Reader, sourceID string, opts JSONOptions) (*Report, error) {
	if opts.KeyMap == nil {
		opts.KeyMap = defaultJSONKeyMap
	}
	if opts.MaxRecords <= 0 {
		opts.MaxRecords = defaultMaxRecords
	}

	data, err := io.ReadAll(r)
	if err != nil {
		return &Report{Errors: 1}, fmt.Errorf("read json source: %w", err)
	}
	content := strings.TrimSpace(string(data))

	report := &Report{}
	records := c.parseRecords(content, opts.RecordsPath, report)
	if records == nil {
		return report, nil
	}
	if len(records) > opts.MaxRecords {
		records = records[:opts.MaxRecords]
	}

	ingested := ingestedFor(c.queue, sourceID, opts.ForceReingest)
	for _, rec := range records {
		if ingested[sourceID+":"+rec.id] {
			report.Skipped++
			continue
		}
		obj, ok := rec.value.(map[string]any)
		if !ok {
			report.Errors++
			continue
		}

		props := mapJSONRecord(obj, opts.KeyMap)
		if props["name"] == nil {
			report.Errors++
			continue
		}

		entityType := opts.EntityType
		if entityType == "" {
			entityType = inferEntityType(recordKeys(obj))
		}
		candidate := makeCandidate(props, entityType, "json", sourceID, rec.id, 1.0)
		candidate.Relationships = relationshipHints(obj)
		report.Candidates = append(report.Candidates, candidate)
	}

	c.logger.Info("json connector: %d candidates, %d skipped, %d errors",
		len(report.Candidates), report.Skipped, report.Errors)
	if err := flush(c.queue, report.Candidates); err != nil {
		return report, fmt.Errorf("enqueue json candidates: %w", err)
	}
	return report, nil
}

type jsonRecord struct {
	id    string
	value any
}

// parseRecords splits content into identified records. A nil return means a
// fatal parse failure already counted on the report.
func (c *JSONConnector) parseRecords(content, recordsPath string, report *Report) []jsonRecord {
	if strings.Contains(content, "\n") && !strings.HasPrefix(content, "[") {
		var records []jsonRecord
		for lineNum, line := range strings.Split(content, "\n") {
			line = strings.TrimSpace(line)
			if line == "" {
				continue
			}
			var value any
			if err := json.Unmarshal([]byte(line), &value); err != nil {
				report.Errors++
				continue
			}
			records = append(records, jsonRecord{id: fmt.Sprintf("line_%d", lineNum+1), value: value})
		}
		return records
	}

	var data any
	if err := json.Unmarshal([]byte(content), &data); err != nil {
		c.logger.Warn("json connector: parse error: %v", err)
		report.Errors++
		return nil
	}
	if recordsPath != "" {
		data = nestedValue(data, recordsPath)
	}
	switch v := data.(type) {
	case []any:
		records := make([]jsonRecord, 0, len(v))
		for i, item := range v {
			records = append(records, jsonRecord{id: fmt.Sprintf("item_%d", i), value: item})
		}
		return records
	case map[string]any:
		return []jsonRecord{{id: "root", value: v}}
	default:
		report.Errors++
		return nil
	}
}

// nestedValue walks a dotpath like "data.items" through maps and arrays.
func nestedValue(data any, dotpath string) any {
	current := data
	for _, part := range strings.Split(dotpath, ".") {
		switch v := current.(type) {
		case map[string]any:
			current = v[part]
		case []any:
			idx, err := strconv.Atoi(part)
			if err != nil || idx < 0 || idx >= len(v) {
				return nil
			}
			current = v[idx]
		default:
			return nil
		}
		if current == nil {
			return nil
		}
	}
	return current
}

// mapJSONRecord maps record keys to entity properties, collecting identifiers
// and carrying remaining scalars along.
func mapJSONRecord(record map[string]any, keyMap map[string][]string) map[string]any {
	lookup := func(keys []string) any {
		for _, key := range keys {
			if value, ok := record[key]; ok && value != nil {
				return value
			}
			for k, v := range record {
				if v != nil && strings.EqualFold(k, key) {
					return v
				}
			}
		}
		return nil
	}

	props := map[string]any{}
	for prop, sourceKeys := range keyMap {
		value := lookup(sourceKeys)
		if value == nil {
			continue
		}
		switch v := value.(type) {
		case map[string]any, []any:
			props[prop] = v
		default:
			props[prop] = strings.TrimSpace(fmt.Sprintf("%v", v))
		}
	}

	identifiers := map[string]any{}
	for _, key := range jsonIdentifierKeys {
		value := record[key]
		if value == nil {
			value = record[strings.ToUpper(key)]
		}
		if value != nil {
			identifiers[key] = strings.TrimSpace(fmt.Sprintf("%v", value))
		}
	}
	if sub, ok := record["identifiers"].(map[string]any); ok {
		for key, value := range sub {
			identifiers[key] = value
		}
	}
	if len(identifiers) > 0 {
		props["identifiers"] = identifiers
	}

	for key, value := range record {
		clean := fieldKey(key)
		if _, taken := props[clean]; taken {
			continue
		}
		switch v := value.(type) {
		case string:
			props[clean] = strings.TrimSpace(v)
		case float64, bool:
			props[clean] = fmt.Sprintf("%v", v)
		}
	}
	return props
}

// relationshipHints pulls implicit and explicit relationship hints from a
// record.
func relationshipHints(record map[string]any) []resolve.RelationshipHint {
	var hints []resolve.RelationshipHint
	for _, entry := range relationshipFields {
		if value, ok := record[entry.field].(string); ok {
			if value = strings.TrimSpace(value); value != "" {
				hints = append(hints, resolve.RelationshipHint{Type: entry.relType, TargetHint: value})
			}
		}
	}
	if raw, ok := record["relationships"].([]any); ok {
		for _, item := range raw {
			rel, ok := item.(map[string]any)
			if !ok {
				continue
			}
			relType, _ := rel["type"].(string)
			target := rel["target"]
			if relType != "" && target != nil {
				hints = append(hints, resolve.RelationshipHint{
					Type:       relType,
					TargetHint: fmt.Sprintf("%v", target),
				})
			}
		}
	}
	return hints
}

func recordKeys(record map[string]any) []string {
	keys := make([]string, 0, len(record))
	for key := range record {
		keys = append(keys, key)
	}
	return keys
}
