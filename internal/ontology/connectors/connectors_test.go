package connectors

import (
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"aegis/internal/ontology/resolve"
)

// fakeQueue records enqueued candidates and serves them back as the
// ingested set, like the real engine does.
type fakeQueue struct {
	enqueued []*resolve.Candidate
}

func (q *fakeQueue) Enqueue(candidates []*resolve.Candidate) error {
	q.enqueued = append(q.enqueued, candidates...)
	return nil
}

func (q *fakeQueue) IngestedRecordIDs(sourceID string) (map[string]bool, error) {
	ids := make(map[string]bool)
	for _, candidate := range q.enqueued {
		if candidate.Provenance.SourceID == sourceID {
			ids[sourceID+":"+candidate.Provenance.RecordID] = true
		}
	}
	return ids, nil
}

func findByName(candidates []*resolve.Candidate, name string) *resolve.Candidate {
	for _, candidate := range candidates {
		if candidate.Name() == name {
			return candidate
		}
	}
	return nil
}

func TestInferEntityType(t *testing.T) {
	assert.Equal(t, "organization", inferEntityType([]string{"name", "employer"}))
	assert.Equal(t, "person", inferEntityType([]string{"name", "date_of_birth"}))
	assert.Equal(t, "financial_instrument", inferEntityType([]string{"ticker", "isin"}))
	assert.Equal(t, "entity", inferEntityType([]string{"name", "notes"}))
}

func TestCSVIngestMappedHeader(t *testing.T) {
	queue := &fakeQueue{}
	connector := NewCSVConnector(queue, nil)

	content := "name,employer,filing_date,ein,notes\n" +
		"John Smith,Globex,2024-01-15,12-3456789,board member\n" +
		",,,,\n"
	report, err := connector.Ingest(strings.NewReader(content), "filings", CSVOptions{})
	require.NoError(t, err)

	require.Len(t, report.Candidates, 1)
	assert.Equal(t, 1, report.Errors, "the empty row has no usable name")

	candidate := report.Candidates[0]
	assert.Equal(t, "John Smith", candidate.Name())
	assert.Equal(t, "Globex", candidate.Properties["organization"])
	assert.Equal(t, "2024-01-15", candidate.Properties["date"])
	assert.Equal(t, "board member", candidate.Properties["notes"])
	ids, _ := candidate.Properties["identifiers"].(map[string]any)
	require.NotNil(t, ids)
	assert.Equal(t, "12-3456789", ids["ein"])

	assert.Equal(t, "organization", candidate.EntityType, "employer column drives the inference")
	assert.Equal(t, "csv", candidate.Provenance.SourceType)
	assert.Equal(t, "row_1", candidate.Provenance.RecordID)
	assert.Equal(t, 1.0, candidate.Provenance.Confidence)
	assert.Len(t, queue.enqueued, 1)
}

func TestCSVIngestSkipsAlreadyIngested(t *testing.T) {
	queue := &fakeQueue{}
	connector := NewCSVConnector(queue, nil)
	content := "name,date\nAda Lovelace,2024-01-01\n"

	_, err := connector.Ingest(strings.NewReader(content), "notes", CSVOptions{})
	require.NoError(t, err)

	again, err := connector.Ingest(strings.NewReader(content), "notes", CSVOptions{})
	require.NoError(t, err)
	assert.Empty(t, again.Candidates)
	assert.Equal(t, 1, again.Skipped)

	forced, err := connector.Ingest(strings.NewReader(content), "notes", CSVOptions{ForceReingest: true})
	require.NoError(t, err)
	assert.Len(t, forced.Candidates, 1)
}

func TestCSVIngestPositionalWithoutHeader(t *testing.T) {
	connector := NewCSVConnector(nil, nil)
	content := "Alice Jones\tdirector\tSpringfield\n"

	report, err := connector.Ingest(strings.NewReader(content), "tsv", CSVOptions{})
	require.NoError(t, err)

	require.Len(t, report.Candidates, 1)
	candidate := report.Candidates[0]
	assert.Equal(t, "Alice Jones", candidate.Name())
	assert.Equal(t, "director", candidate.Properties["field_1"])
	assert.Equal(t, 0.5, candidate.Provenance.Confidence, "headerless rows are lower confidence")
}

func TestJSONIngestLineDelimited(t *testing.T) {
	queue := &fakeQueue{}
	connector := NewJSONConnector(queue, nil)
	content := `{"name":"Alice","employer":"Globex","EIN":"12-3456789"}
not json
{"name":"Bob"}`

	report, err := connector.Ingest(strings.NewReader(content), "leak", JSONOptions{EntityType: "person"})
	require.NoError(t, err)

	assert.Equal(t, 1, report.Errors)
	require.Len(t, report.Candidates, 2)

	alice := findByName(report.Candidates, "Alice")
	require.NotNil(t, alice)
	assert.Equal(t, "line_1", alice.Provenance.RecordID)
	ids, _ := alice.Properties["identifiers"].(map[string]any)
	require.NotNil(t, ids)
	assert.Equal(t, "12-3456789", ids["ein"], "upper-case identifier keys normalize")
	require.Len(t, alice.Relationships, 1)
	assert.Equal(t, "employs", alice.Relationships[0].Type)
	assert.Equal(t, "Globex", alice.Relationships[0].TargetHint)
}

func TestJSONIngestRecordsPath(t *testing.T) {
	connector := NewJSONConnector(nil, nil)
	content := `{"data":{"items":[{"name":"Carol"},{"name":"Dave"},{"notes":"no name"}]}}`

	report, err := connector.Ingest(strings.NewReader(content), "api", JSONOptions{
		EntityType:  "person",
		RecordsPath: "data.items",
	})
	require.NoError(t, err)

	assert.Equal(t, 1, report.Errors, "a record without a name is an error")
	require.Len(t, report.Candidates, 2)
	assert.Equal(t, "item_0", findByName(report.Candidates, "Carol").Provenance.RecordID)
}

func TestJSONIngestExplicitRelationships(t *testing.T) {
	connector := NewJSONConnector(nil, nil)
	content := `{"name":"Acme Holdings","relationships":[{"type":"owns","target":"Subco"}]}`

	report, err := connector.Ingest(strings.NewReader(content), "filings", JSONOptions{EntityType: "organization"})
	require.NoError(t, err)

	require.Len(t, report.Candidates, 1)
	candidate := report.Candidates[0]
	assert.Equal(t, "root", candidate.Provenance.RecordID)
	require.Len(t, candidate.Relationships, 1)
	assert.Equal(t, "owns", candidate.Relationships[0].Type)
	assert.Equal(t, "Subco", candidate.Relationships[0].TargetHint)
}

func TestHTMLIngestExtractsEntities(t *testing.T) {
	queue := &fakeQueue{}
	connector := NewHTMLConnector(queue, nil)
	content := `<html><head><script>var tracking = "ignored";</script></head><body>
<p>Regulators fined Globex Corporation after John Smith approved a
$1,500,000 payment on 1/15/2024 at 123 Main Street, Springfield.</p>
</body></html>`

	report, stats, err := connector.Ingest(content, "news", HTMLOptions{
		SourceURL: "https://example.org/article",
	})
	require.NoError(t, err)

	assert.GreaterOrEqual(t, stats.Names, 2)
	assert.Equal(t, 1, stats.Dates)
	assert.Equal(t, 1, stats.Amounts)
	assert.Equal(t, 1, stats.Addresses)

	org := findByName(report.Candidates, "Globex Corporation")
	require.NotNil(t, org)
	assert.Equal(t, "organization", org.EntityType)
	assert.Equal(t, 0.6, org.Provenance.Confidence)
	assert.Equal(t, "https://example.org/article", org.Provenance.SourceURL)
	assert.Equal(t, "1/15/2024", org.Properties["date"], "page-level date rides on name candidates")

	person := findByName(report.Candidates, "John Smith")
	require.NotNil(t, person)
	assert.Equal(t, "person", person.EntityType)

	amount := findByName(report.Candidates, "amount_1,500,000")
	require.NotNil(t, amount)
	assert.Equal(t, "financial_instrument", amount.EntityType)
	assert.Equal(t, 0.4, amount.Provenance.Confidence)

	var location *resolve.Candidate
	for _, candidate := range report.Candidates {
		if candidate.EntityType == "location" {
			location = candidate
		}
	}
	require.NotNil(t, location)
	assert.Contains(t, location.Name(), "123 Main Street")
	assert.Equal(t, "html_scrape", location.Provenance.SourceType)

	assert.NotEmpty(t, queue.enqueued)
}
