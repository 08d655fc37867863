package gateway

import (
	"encoding/json"
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestExtractMessageSpecShape(t *testing.T) {
	raw := json.RawMessage(`{
		"message": {
			"contextId": "ctx-1",
			"parts": [
				{"kind": "text", "text": "first line"},
				{"kind": "file", "text": "skipped"},
				{"type": "text", "text": "second line"},
				{"text": "third line"}
			]
		},
		"taskId": "task-1"
	}`)

	text, contextID, taskID := extractMessage(raw)
	assert.Equal(t, "first line\nsecond line\nthird line", text)
	assert.Equal(t, "ctx-1", contextID)
	assert.Equal(t, "task-1", taskID)
}

func TestExtractMessageLooseShapes(t *testing.T) {
	text, contextID, _ := extractMessage(json.RawMessage(`{"message": "  plain string  "}`))
	assert.Equal(t, "plain string", text)
	assert.Empty(t, contextID)

	text, _, _ = extractMessage(json.RawMessage(`{"text": "bare text field"}`))
	assert.Equal(t, "bare text field", text)

	text, _, _ = extractMessage(nil)
	assert.Empty(t, text)

	text, _, _ = extractMessage(json.RawMessage(`{"message": {"parts": [{"kind": "file"}]}}`))
	assert.Empty(t, text, "no usable text parts")
}

func TestExtractTaskID(t *testing.T) {
	id, includeHistory := extractTaskID(json.RawMessage(`{"id": "a", "taskId": "b", "includeHistory": true}`))
	assert.Equal(t, "a", id, "id wins over taskId")
	assert.True(t, includeHistory)

	id, includeHistory = extractTaskID(json.RawMessage(`{"taskId": "b"}`))
	assert.Equal(t, "b", id)
	assert.False(t, includeHistory)

	id, _ = extractTaskID(json.RawMessage(`not json`))
	assert.Empty(t, id)
}
