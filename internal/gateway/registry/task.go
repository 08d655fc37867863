// Package registry owns the task lifecycle: admission, queueing, promotion,
// cancellation, and follow-up resume. One mutex serialises every state
// transition; no I/O ever runs under it.
package registry

import (
	"time"

	"github.com/google/uuid"

	"aegis/internal/salute"
)

// TaskState is the A2A-visible lifecycle state of a task.
type TaskState string

const (
	StateSubmitted     TaskState = "submitted"
	StateWorking       TaskState = "working"
	StateInputRequired TaskState = "input-required"
	StateCompleted     TaskState = "completed"
	StateFailed        TaskState = "failed"
	StateCanceled      TaskState = "canceled"
)

// IsTerminal reports whether the state admits no further transitions.
func (s TaskState) IsTerminal() bool {
	switch s {
	case StateCompleted, StateFailed, StateCanceled:
		return true
	}
	return false
}

// HistoryEntry is one turn of the task conversation.
type HistoryEntry struct {
	Role      string    `json:"role"`
	Text      string    `json:"text"`
	Timestamp time.Time `json:"timestamp"`
}

// Part is one piece of a message or artifact on the wire.
type Part struct {
	Type string `json:"type"`
	Text string `json:"text,omitempty"`
	Data string `json:"data,omitempty"`
}

// Artifact is a produced file attached to a finished task.
type Artifact struct {
	Name     string         `json:"name"`
	Parts    []Part         `json:"parts"`
	Metadata map[string]any `json:"metadata,omitempty"`
}

// Task is the registry's internal record. Fields are mutated only by the
// registry while holding its lock; snapshots are taken for the wire.
type Task struct {
	ID        string
	ContextID string
	CreatedAt time.Time
	UpdatedAt time.Time

	State       TaskState
	MessageText string

	// AgentContextID is assigned by the inner agent on the first turn and
	// reused for follow-ups and cancels.
	AgentContextID string

	History       []HistoryEntry
	LastTelemetry *salute.Report
	PaceLevel     string
	ResultText    string
	ErrorDetail   string
	Artifacts     []Artifact
}

func newTask(messageText string) *Task {
	now := time.Now().UTC()
	return &Task{
		ID:          uuid.NewString(),
		ContextID:   uuid.NewString(),
		CreatedAt:   now,
		UpdatedAt:   now,
		State:       StateSubmitted,
		MessageText: messageText,
		PaceLevel:   salute.PacePrimary,
		History: []HistoryEntry{
			{Role: "user", Text: messageText, Timestamp: now},
		},
	}
}

// Message is the status message carried in a task snapshot.
type Message struct {
	Role  string `json:"role"`
	Parts []Part `json:"parts"`
}

// TaskStatus is the on-wire status block.
type TaskStatus struct {
	State     TaskState `json:"state"`
	Message   *Message  `json:"message,omitempty"`
	Timestamp string    `json:"timestamp"`
}

// WireMessage is one history message on the wire.
type WireMessage struct {
	Role  string `json:"role"`
	Parts []Part `json:"parts"`
}

// Snapshot is the public on-wire representation of a task.
type Snapshot struct {
	ID        string        `json:"id"`
	ContextID string        `json:"contextId"`
	Status    TaskStatus    `json:"status"`
	Artifacts []Artifact    `json:"artifacts,omitempty"`
	History   []WireMessage `json:"history,omitempty"`
}

// Snapshot renders the task for the wire. Call only via the registry, which
// copies under its lock.
func (t *Task) snapshot(includeHistory bool) Snapshot {
	snap := Snapshot{
		ID:        t.ID,
		ContextID: t.ContextID,
		Status: TaskStatus{
			State:     t.State,
			Timestamp: t.UpdatedAt.Format(time.RFC3339),
		},
	}

	if text := t.statusText(); text != "" {
		snap.Status.Message = &Message{
			Role:  "agent",
			Parts: []Part{{Type: "text", Text: text}},
		}
	}

	if len(t.Artifacts) > 0 {
		snap.Artifacts = append(snap.Artifacts, t.Artifacts...)
	}

	if includeHistory {
		for _, entry := range t.History {
			snap.History = append(snap.History, WireMessage{
				Role:  entry.Role,
				Parts: []Part{{Type: "text", Text: entry.Text}},
			})
		}
	}
	return snap
}

// statusText picks the message that accompanies the current state.
func (t *Task) statusText() string {
	switch t.State {
	case StateCompleted:
		return t.ResultText
	case StateFailed:
		return t.ErrorDetail
	case StateInputRequired:
		// The escalation reason is the newest agent turn.
		for i := len(t.History) - 1; i >= 0; i-- {
			if t.History[i].Role == "agent" {
				return t.History[i].Text
			}
		}
		return ""
	case StateWorking:
		if t.LastTelemetry != nil {
			return saluteStatusText(t.LastTelemetry)
		}
		return ""
	}
	return ""
}
