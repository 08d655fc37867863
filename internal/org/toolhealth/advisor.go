package toolhealth

import "strings"

// Consecutive failures on one tool before advice fires.
const toolThreshold = 2

// Total recent failures before the step-back advice fires.
const globalThreshold = 5

// fallbackKey addresses the advice table; "any" wildcards either side.
type fallbackKey struct {
	tool string
	kind string
}

// fallbackMap is the static advice table consulted before a tool call when
// its consecutive failures reach the threshold.
var fallbackMap = map[fallbackKey]string{
	{"code_execution_tool", KindSyntax}: "The code has syntax errors. Review the code for typos, missing quotes, " +
		"unmatched brackets, or incorrect indentation before retrying.",
	{"code_execution_tool", KindDependency}: "A required package is missing. Install it first using: " +
		"pip install <package> (for Python) or npm install <package> (for Node.js), " +
		"then retry the original command.",
	{"code_execution_tool", KindTimeout}: "The command timed out. Consider: break it into smaller steps, " +
		"add a timeout flag, or check if a process is hanging.",
	{"code_execution_tool", KindPermission}: "Permission denied. Try: run with sudo, check file ownership with ls -la, " +
		"or verify you are operating in the correct directory.",
	{"code_execution_tool", KindNotFound}: "Command or file not found. Verify: correct path, correct spelling, " +
		"command is installed. Use 'which <cmd>' or 'find / -name <file>' to locate.",
	{"code_execution_tool", KindNetwork}: "Network error. Check: is the target host reachable? Is a proxy required? " +
		"Try 'ping <host>' or 'curl -v <url>' to diagnose.",
	{"code_execution_tool", KindResource}: "System resource limit hit. Check: disk space with 'df -h', " +
		"memory with 'free -m'. Clean up or free resources before retrying.",

	{"knowledge_tool", KindNotFound}: "No relevant knowledge found. Try: broaden your search terms, " +
		"use fewer keywords, or try alternative phrasing.",
	{"knowledge_tool", "any"}: "Knowledge tool failed. Consider: use code_execution_tool to search " +
		"the filesystem directly, or ask the user for clarification.",

	{"call_subordinate", KindTimeout}: "Subordinate agent timed out. Consider: simplify the delegated task, " +
		"break it into smaller subtasks, or handle it directly.",
	{"call_subordinate", "any"}: "Subordinate failed. Consider: handle the task directly instead of " +
		"delegating, or rephrase the instruction more precisely.",

	{"any", KindTimeout}:    "Operation timed out. Break the task into smaller steps and retry.",
	{"any", KindPermission}: "Access denied. Check permissions and paths before retrying.",
	{"any", KindNotFound}:   "Target not found. Verify names, paths, and spelling.",
	{"any", KindSyntax}:     "Invalid syntax or arguments. Review the command format and retry.",
	{"any", KindNetwork}:    "Network issue detected. Verify connectivity before retrying.",
	{"any", KindDependency}: "Missing dependency. Install required packages first.",
	{"any", KindExecution}: "Execution error. Review the error message carefully, " +
		"identify the root cause, and adjust your approach.",
}

// stepBackAdvice fires when failures accumulate across tools.
const stepBackAdvice = "Multiple tool failures detected. Stop and reassess your approach. " +
	"Consider: (1) Is there a simpler way to accomplish this task? " +
	"(2) Are you missing information you should ask the user about? " +
	"(3) Would a different tool or method work better?"

// Advise returns the guidance to inject before the named tool runs, or ""
// when the counters are below threshold.
func Advise(tracker *Tracker, tool string) string {
	if tracker == nil {
		return ""
	}

	var parts []string

	if tracker.Consecutive(tool) >= toolThreshold {
		if kind := tracker.LastKind(tool); kind != "" {
			if advice := lookupFallback(tool, kind); advice != "" {
				parts = append(parts, advice)
			}
		}
	}

	if tracker.RecentFailures(globalThreshold) >= globalThreshold {
		parts = append(parts, stepBackAdvice)
	}

	return strings.Join(parts, "\n")
}

// lookupFallback tries the exact key, then the tool wildcard, then the kind
// wildcard.
func lookupFallback(tool, kind string) string {
	if advice, ok := fallbackMap[fallbackKey{tool, kind}]; ok {
		return advice
	}
	if advice, ok := fallbackMap[fallbackKey{tool, "any"}]; ok {
		return advice
	}
	if advice, ok := fallbackMap[fallbackKey{"any", kind}]; ok {
		return advice
	}
	return ""
}
