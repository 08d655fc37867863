package gateway

import (
	"encoding/json"
	"strings"
)

// sendParams is the accepted parameter shape for message/send and
// message/stream. Clients disagree on where text lives; extraction tries the
// spec-shaped parts list first, then the loose variants.
type sendParams struct {
	TaskID  string          `json:"taskId"`
	Message json.RawMessage `json:"message"`
	Text    string          `json:"text"`
}

type messageObject struct {
	ContextID string            `json:"contextId"`
	Parts     []json.RawMessage `json:"parts"`
}

type messagePart struct {
	Type string `json:"type"`
	Kind string `json:"kind"`
	Text string `json:"text"`
}

// extractMessage pulls the user text and optional context id out of raw
// send params. Text parts are joined with newlines. Returns empty text when
// nothing usable is present.
func extractMessage(raw json.RawMessage) (text, contextID, taskID string) {
	if len(raw) == 0 {
		return "", "", ""
	}

	var params sendParams
	if err := json.Unmarshal(raw, &params); err != nil {
		return "", "", ""
	}
	taskID = params.TaskID

	if len(params.Message) > 0 {
		// message as a plain string
		var asString string
		if err := json.Unmarshal(params.Message, &asString); err == nil {
			return strings.TrimSpace(asString), "", taskID
		}

		var msg messageObject
		if err := json.Unmarshal(params.Message, &msg); err == nil {
			contextID = msg.ContextID
			var texts []string
			for _, rawPart := range msg.Parts {
				var part messagePart
				if err := json.Unmarshal(rawPart, &part); err != nil {
					continue
				}
				if part.Text == "" {
					continue
				}
				// Accept {text}, {kind:"text",text}, {type:"text",text}.
				if part.Kind != "" && part.Kind != "text" {
					continue
				}
				if part.Type != "" && part.Type != "text" {
					continue
				}
				texts = append(texts, part.Text)
			}
			if len(texts) > 0 {
				return strings.TrimSpace(strings.Join(texts, "\n")), contextID, taskID
			}
		}
	}

	return strings.TrimSpace(params.Text), contextID, taskID
}

// getParams is the parameter shape for tasks/get and tasks/cancel.
type getParams struct {
	ID             string `json:"id"`
	TaskID         string `json:"taskId"`
	IncludeHistory bool   `json:"includeHistory"`
}

func extractTaskID(raw json.RawMessage) (string, bool) {
	var params getParams
	if err := json.Unmarshal(raw, &params); err != nil {
		return "", false
	}
	if params.ID != "" {
		return params.ID, params.IncludeHistory
	}
	return params.TaskID, params.IncludeHistory
}
