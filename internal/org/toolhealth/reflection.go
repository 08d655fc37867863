package toolhealth

import (
	"fmt"
	"strings"
	"sync"
)

// reflectionThreshold is the consecutive format-error count on one tool
// before the reflection prompt fires.
const reflectionThreshold = 2

// formatErrorSignals mark an error message as a tool-format failure rather
// than an environmental one.
var formatErrorSignals = []string{
	"json", "parse", "format", "tool", "missing", "invalid",
	"expected", "syntax", "decode", "key", "argument",
	"not found", "does not exist", "command not found",
}

const reflectionPrompt = `
---
REFLECTION REQUIRED: you have failed to use tool "%s" %d consecutive times.

Before attempting any action, answer these questions in your thoughts:
1. What specifically caused the failure? Wrong args, wrong tool type, wrong approach?
2. Are you calling an agent tool as a terminal command? If so, stop and use the structured tool call instead.
3. Are you scoping actions correctly for the current task?
4. What will you do differently this time?

Only after answering these questions, output your next action.
---
`

// ReflectionTracker counts consecutive format errors per tool and produces
// the reflection prompt at the threshold. Environmental errors pass through
// untracked.
type ReflectionTracker struct {
	mu     sync.Mutex
	counts map[string]int
}

// NewReflectionTracker returns an empty tracker.
func NewReflectionTracker() *ReflectionTracker {
	return &ReflectionTracker{counts: make(map[string]int)}
}

// RecordError inspects an error message after a failed tool call. Returns
// the reflection prompt to append when the same tool's format errors reach
// the threshold, else "".
func (r *ReflectionTracker) RecordError(tool, errorText string) string {
	if tool == "" || !isFormatError(errorText) {
		return ""
	}

	r.mu.Lock()
	r.counts[tool]++
	count := r.counts[tool]
	r.mu.Unlock()

	if count >= reflectionThreshold {
		return fmt.Sprintf(reflectionPrompt, tool, count)
	}
	return ""
}

// RecordSuccess resets all counters after any successful tool invocation.
func (r *ReflectionTracker) RecordSuccess() {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.counts = make(map[string]int)
}

func isFormatError(errorText string) bool {
	lower := strings.ToLower(errorText)
	for _, signal := range formatErrorSignals {
		if strings.Contains(lower, signal) {
			return true
		}
	}
	return false
}
