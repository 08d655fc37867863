// Package salute defines the SALUTE telemetry report: the six-section status
// document a role emits on a fixed turn cadence and on every PACE transition.
// The on-disk JSON layout is the contract between the emitting kernel and the
// polling gateway bridge.
package salute

// PACE escalation levels, ordered primary < alternate < contingent < emergency.
const (
	PacePrimary    = "primary"
	PaceAlternate  = "alternate"
	PaceContingent = "contingent"
	PaceEmergency  = "emergency"
)

// Health values derived from the PACE level and failure counters.
const (
	HealthNominal  = "nominal"
	HealthDegraded = "degraded"
	HealthCritical = "critical"
)

// Agent states reported in the status section.
const (
	StateIdle          = "idle"
	StateActive        = "active"
	StateEscalating    = "escalating"
	StateErrorRecovery = "error_recovery"
	StateAborted       = "aborted"
)

// Status is the S section: where the task stands.
type Status struct {
	State     string  `json:"state"`
	Progress  float64 `json:"progress"`
	PaceLevel string  `json:"pace_level"`
	Health    string  `json:"health"`
}

// Activity is the A section: what is being worked on right now.
type Activity struct {
	CurrentTask            string `json:"current_task"`
	BSTDomain              string `json:"bst_domain"`
	HTNPlan                string `json:"htn_plan"`
	HTNStep                int    `json:"htn_step"`
	HTNTotalSteps          int    `json:"htn_total_steps"`
	IterationsOnCurrentStep int   `json:"iterations_on_current_step"`
	CurrentTool            string `json:"current_tool"`
}

// Location is the L section: where in the filesystem work is happening.
type Location struct {
	WorkingDir    string   `json:"working_dir"`
	FilesModified []string `json:"files_modified"`
	FilesRead     []string `json:"files_read"`
}

// Unit is the U section: which role is reporting and to whom.
type Unit struct {
	RoleID       string `json:"role_id"`
	RoleName     string `json:"role_name"`
	ReportsTo    string `json:"reports_to"`
	Organization string `json:"organization"`
}

// Time is the T section: turn accounting.
type Time struct {
	Timestamp          string `json:"timestamp"`
	TurnsElapsed       int    `json:"turns_elapsed"`
	TurnsSinceProgress int    `json:"turns_since_progress"`
}

// Environment is the E section: resource and failure counters.
type Environment struct {
	Model                   string         `json:"model"`
	ContextFillPct          float64        `json:"context_fill_pct"`
	ToolFailuresConsecutive int            `json:"tool_failures_consecutive"`
	ToolFailuresTotal       int            `json:"tool_failures_total"`
	MemoryHealth            map[string]any `json:"memory_health,omitempty"`
}

// Report is a full SALUTE document.
type Report struct {
	Status      Status      `json:"status"`
	Activity    Activity    `json:"activity"`
	Location    Location    `json:"location"`
	Unit        Unit        `json:"unit"`
	Time        Time        `json:"time"`
	Environment Environment `json:"environment"`
}

// IsTerminalPace reports whether the PACE level ends the task from the
// gateway's point of view.
func IsTerminalPace(level string) bool {
	return level == PaceEmergency
}

// PaceRank orders PACE levels for comparisons; unknown levels rank as primary.
func PaceRank(level string) int {
	switch level {
	case PaceAlternate:
		return 1
	case PaceContingent:
		return 2
	case PaceEmergency:
		return 3
	default:
		return 0
	}
}

// DeriveHealth maps the PACE level and consecutive failure count to the
// health field.
func DeriveHealth(paceLevel string, consecutiveFailures int) string {
	switch paceLevel {
	case PaceContingent, PaceEmergency:
		return HealthCritical
	}
	if paceLevel == PaceAlternate || consecutiveFailures >= 2 {
		return HealthDegraded
	}
	return HealthNominal
}
