// Package translate converts SALUTE telemetry into the A2A vocabulary: task
// states, status messages, escalation prompts, and failure reports. Every
// function here is pure.
package translate

import (
	"fmt"
	"strings"

	"aegis/internal/gateway/registry"
	"aegis/internal/salute"
)

// paceStateMap maps PACE escalation levels to A2A task states.
var paceStateMap = map[string]registry.TaskState{
	salute.PacePrimary:    registry.StateWorking,
	salute.PaceAlternate:  registry.StateWorking,
	salute.PaceContingent: registry.StateInputRequired,
	salute.PaceEmergency:  registry.StateFailed,
}

// SaluteToState derives the A2A task state from a SALUTE report. The agent
// state takes precedence over the PACE level for aborted and escalating.
func SaluteToState(report *salute.Report) registry.TaskState {
	if report == nil {
		return registry.StateWorking
	}
	switch report.Status.State {
	case salute.StateAborted:
		return registry.StateFailed
	case salute.StateEscalating:
		return registry.StateInputRequired
	}
	if state, ok := paceStateMap[report.Status.PaceLevel]; ok {
		return state
	}
	return registry.StateWorking
}

// StatusMessage renders a one-line human-readable progress summary.
func StatusMessage(report *salute.Report) string {
	if report == nil {
		return ""
	}

	var parts []string
	if report.Activity.HTNPlan != "" {
		parts = append(parts, fmt.Sprintf("Working on %s (step %d/%d)",
			report.Activity.HTNPlan, report.Activity.HTNStep, report.Activity.HTNTotalSteps))
	} else if report.Activity.CurrentTask != "" {
		parts = append(parts, "Working on: "+report.Activity.CurrentTask)
	}

	if report.Status.Progress > 0 {
		parts = append(parts, fmt.Sprintf("%.0f%% complete", report.Status.Progress*100))
	}
	if report.Unit.RoleName != "" {
		parts = append(parts, "role: "+report.Unit.RoleName)
	}
	if report.Activity.CurrentTool != "" {
		parts = append(parts, "using "+report.Activity.CurrentTool)
	}

	switch report.Status.PaceLevel {
	case salute.PaceAlternate:
		parts = append(parts, "retrying with alternative approach")
	case salute.PaceContingent:
		parts = append(parts, "needs guidance")
	case salute.PaceEmergency:
		parts = append(parts, "critical failure")
	}

	if len(parts) == 0 {
		return "Working"
	}
	return strings.Join(parts, ", ")
}

// WorkflowEvent is a plan-execution event consumed when synthesising the
// contingent escalation message. Only verification and retry events with a
// fail outcome are reported.
type WorkflowEvent struct {
	Type    string `json:"type"`
	Step    string `json:"step"`
	Outcome string `json:"outcome"`
}

// BuildContingentMessage explains a contingent escalation: what was being
// attempted, which recent steps failed, the failure counters, and a closing
// request for human guidance.
func BuildContingentMessage(report *salute.Report, recentEvents []WorkflowEvent) string {
	var b strings.Builder
	b.WriteString("The task has escalated to contingent status and needs guidance.\n\n")

	if report != nil {
		if report.Activity.CurrentTask != "" {
			fmt.Fprintf(&b, "Task: %s\n", report.Activity.CurrentTask)
		}
		if report.Activity.HTNPlan != "" {
			fmt.Fprintf(&b, "Workflow: %s (step %d of %d)\n",
				report.Activity.HTNPlan, report.Activity.HTNStep, report.Activity.HTNTotalSteps)
		}
	}

	var failedSteps []string
	for _, event := range recentEvents {
		if event.Outcome != "fail" {
			continue
		}
		if event.Type != "node_verified" && event.Type != "retry_triggered" {
			continue
		}
		failedSteps = append(failedSteps, event.Step)
	}
	if len(failedSteps) > 3 {
		failedSteps = failedSteps[len(failedSteps)-3:]
	}
	if len(failedSteps) > 0 {
		fmt.Fprintf(&b, "Failed steps: %s\n", strings.Join(failedSteps, ", "))
	}

	if report != nil && report.Environment.ToolFailuresTotal > 0 {
		fmt.Fprintf(&b, "Tool failures: %d consecutive, %d total\n",
			report.Environment.ToolFailuresConsecutive, report.Environment.ToolFailuresTotal)
	}

	b.WriteString("\nPlease advise how to proceed, or reply with corrected instructions.")
	return b.String()
}

// maxPartialOutput bounds the partial-output excerpt in a failure report.
const maxPartialOutput = 2000

// BuildFailureReport synthesises the error detail for a task that ended in
// PACE emergency.
func BuildFailureReport(report *salute.Report, partialOutput string) string {
	var b strings.Builder
	b.WriteString("=== Task Failure Report ===\n")

	if report != nil {
		if report.Activity.CurrentTask != "" {
			fmt.Fprintf(&b, "Task: %s\n", report.Activity.CurrentTask)
		}
		if report.Activity.HTNPlan != "" {
			fmt.Fprintf(&b, "Workflow: %s (step %d of %d)\n",
				report.Activity.HTNPlan, report.Activity.HTNStep, report.Activity.HTNTotalSteps)
		}
		fmt.Fprintf(&b, "Progress: %.0f%%\n", report.Status.Progress*100)
		fmt.Fprintf(&b, "Turns: %d elapsed, %d without progress\n",
			report.Time.TurnsElapsed, report.Time.TurnsSinceProgress)
		fmt.Fprintf(&b, "Context utilization: %.0f%%\n", report.Environment.ContextFillPct)
		fmt.Fprintf(&b, "Total tool failures: %d\n", report.Environment.ToolFailuresTotal)
	}

	if partialOutput != "" {
		excerpt := partialOutput
		if len(excerpt) > maxPartialOutput {
			excerpt = excerpt[:maxPartialOutput]
		}
		b.WriteString("\nPartial output:\n")
		b.WriteString(excerpt)
	}
	return b.String()
}
