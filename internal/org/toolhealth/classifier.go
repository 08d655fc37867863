// Package toolhealth watches tool invocations: it classifies result text
// into failure kinds, tracks per-tool consecutive counters, and injects
// fallback or reflection guidance on the next call when failures pile up.
package toolhealth

import (
	"regexp"
	"sync"
)

// Failure kinds, in the order the patterns are tried.
const (
	KindTimeout    = "timeout"
	KindNotFound   = "not_found"
	KindPermission = "permission"
	KindSyntax     = "syntax"
	KindNetwork    = "network"
	KindResource   = "resource"
	KindDependency = "dependency"
	KindExecution  = "execution"
)

// errorPattern pairs a compiled pattern with its kind. Order matters: first
// match wins.
type errorPattern struct {
	re   *regexp.Regexp
	kind string
}

var errorPatterns = []errorPattern{
	{regexp.MustCompile(`(?i)timeout|timed?\s*out|deadline exceeded|connection.*reset`), KindTimeout},
	{regexp.MustCompile(`(?i)not found|no such file|does not exist|404|command not found|unknown tool`), KindNotFound},
	{regexp.MustCompile(`(?i)permission denied|access denied|forbidden|403|unauthorized|401`), KindPermission},
	{regexp.MustCompile(`(?i)syntax error|invalid argument|unexpected token|parse error|malformed|missing required`), KindSyntax},
	{regexp.MustCompile(`(?i)connection refused|network unreachable|DNS|ECONNREFUSED|could not resolve`), KindNetwork},
	{regexp.MustCompile(`(?i)out of memory|disk full|no space left|quota exceeded|resource exhausted`), KindResource},
	{regexp.MustCompile(`(?i)no module named|import error|ModuleNotFoundError|package.*not installed`), KindDependency},
	{regexp.MustCompile(`(?i)error|exception|failed|traceback`), KindExecution},
}

// Classify maps a tool's result text to a failure kind, or "" for success.
func Classify(message string) string {
	if message == "" {
		return ""
	}
	for _, pattern := range errorPatterns {
		if pattern.re.MatchString(message) {
			return pattern.kind
		}
	}
	return ""
}

// maxHistory bounds the failure log.
const maxHistory = 20

// previewLen truncates stored failure messages.
const previewLen = 150

// Failure is one logged tool failure.
type Failure struct {
	Tool           string `json:"tool"`
	Kind           string `json:"error_type"`
	MessagePreview string `json:"message_preview"`
}

// Tracker accumulates failures for one conversation. Safe for concurrent use
// although a conversation's turns run sequentially.
type Tracker struct {
	mu          sync.Mutex
	history     []Failure
	consecutive map[string]int
}

// NewTracker returns an empty tracker.
func NewTracker() *Tracker {
	return &Tracker{consecutive: make(map[string]int)}
}

// Record classifies a tool result and updates the counters. Returns the
// failure kind, or "" when the result was a success (which resets the tool's
// consecutive counter).
func (t *Tracker) Record(tool, message string) string {
	kind := Classify(message)

	t.mu.Lock()
	defer t.mu.Unlock()

	if kind == "" {
		t.consecutive[tool] = 0
		return ""
	}

	preview := message
	if len(preview) > previewLen {
		preview = preview[:previewLen]
	}
	t.history = append(t.history, Failure{Tool: tool, Kind: kind, MessagePreview: preview})
	if len(t.history) > maxHistory {
		t.history = t.history[len(t.history)-maxHistory:]
	}
	t.consecutive[tool]++
	return kind
}

// Consecutive returns the tool's consecutive failure count.
func (t *Tracker) Consecutive(tool string) int {
	t.mu.Lock()
	defer t.mu.Unlock()
	return t.consecutive[tool]
}

// MaxConsecutive returns the highest consecutive count across all tools.
// This is the PACE FSM's consecutive_tool_failures metric.
func (t *Tracker) MaxConsecutive() int {
	t.mu.Lock()
	defer t.mu.Unlock()
	maxCount := 0
	for _, count := range t.consecutive {
		if count > maxCount {
			maxCount = count
		}
	}
	return maxCount
}

// Total returns the number of failures in the bounded history.
func (t *Tracker) Total() int {
	t.mu.Lock()
	defer t.mu.Unlock()
	return len(t.history)
}

// LastKind returns the most recent failure kind for the tool, or "".
func (t *Tracker) LastKind(tool string) string {
	t.mu.Lock()
	defer t.mu.Unlock()
	for i := len(t.history) - 1; i >= 0; i-- {
		if t.history[i].Tool == tool {
			return t.history[i].Kind
		}
	}
	return ""
}

// RecentFailures returns the count of failures among the last n history
// entries.
func (t *Tracker) RecentFailures(n int) int {
	t.mu.Lock()
	defer t.mu.Unlock()
	if len(t.history) < n {
		return len(t.history)
	}
	return n
}
