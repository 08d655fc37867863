// Package hooks runs the per-turn pipeline around the inner agent: an
// explicit ordered registry of named stages, with one typed conversation
// state threaded through. Stage failures are logged and swallowed; the agent
// never breaks over a storage failure.
package hooks

import (
	"aegis/internal/bst"
	"aegis/internal/memory"
	"aegis/internal/org"
)

// ConversationState is the single value every stage reads and writes. It
// lives for the whole conversation; per-turn fields are reset by BeginTurn.
type ConversationState struct {
	// Turn input.
	Turn             int
	UserMessage      string
	History          []bst.Turn
	Prompt           string
	CurrentTask      string
	Plan             string
	PlanStep         int
	PlanTotalSteps   int
	IterationsOnStep int
	Progress         float64
	CurrentTool      string
	WorkingDir       string
	FilesModified    []string
	FilesRead        []string
	Model            string
	TaskAborted      bool

	// Most recent tool result, recorded by the post-turn failure logger.
	LastToolName   string
	LastToolOutput string

	// Belief state, persisted across turns.
	Belief *bst.Belief

	// Intent outcome for this turn.
	Domain          string
	EnrichedMessage string
	Clarification   string

	// Control-plane outcome for this turn.
	Role             *org.RoleProfile
	AllowedPlans     []string
	PaceLevel        string
	PrevPaceLevel    string
	PaceTransitioned bool

	// Counters carried across turns.
	TurnsWithoutProgress    int
	ToolFailuresConsecutive int
	ToolFailuresTotal       int
	UnrecoverableError      bool

	// Context utilization from the watchdog.
	ContextFill float64

	// Tool-health advice and reflection prompt for injection, if any.
	Advice           string
	ReflectionPrompt string

	// Recall and ontology output for prompt injection.
	Recalled        []memory.SearchResult
	OntologyContext string

	// Memory health snapshot from the classifier.
	MemoryHealth map[string]any
}

// BeginTurn resets per-turn outputs and installs the new message, keeping the
// cross-turn state (belief, counters, previous PACE level).
func (s *ConversationState) BeginTurn(message, prompt string) {
	s.Turn++
	s.UserMessage = message
	s.Prompt = prompt
	s.Domain = ""
	s.EnrichedMessage = ""
	s.Clarification = ""
	s.Role = nil
	s.AllowedPlans = nil
	s.PrevPaceLevel = s.PaceLevel
	s.PaceTransitioned = false
	s.Advice = ""
	s.ReflectionPrompt = ""
	s.Recalled = nil
	s.OntologyContext = ""
}

// ActiveRoleID returns the selected role's id, or empty.
func (s *ConversationState) ActiveRoleID() string {
	if s.Role == nil {
		return ""
	}
	return s.Role.RoleID
}

// RoleDomains returns the selected role's BST domains, or nil.
func (s *ConversationState) RoleDomains() []string {
	if s.Role == nil {
		return nil
	}
	return s.Role.Capabilities.BSTDomains
}
