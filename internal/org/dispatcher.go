package org

import (
	"time"

	"aegis/internal/logging"
	"aegis/internal/salute"
)

// conversationalDomain is the passthrough domain: no role, no doctrine.
const conversationalDomain = "conversational"

// defaultSaluteInterval is used when a role's doctrine does not set one.
const defaultSaluteInterval = 5

// TurnInput carries everything the dispatcher needs for one turn of the
// inner agent's loop.
type TurnInput struct {
	Domain      string
	CurrentTask string

	Plan             string
	PlanStep         int
	PlanTotalSteps   int
	IterationsOnStep int
	Progress         float64
	CurrentTool      string

	WorkingDir    string
	FilesModified []string
	FilesRead     []string

	Model       string
	TurnCount   int
	TurnsWithoutProgress int
	ContextFill          float64
	ToolFailuresConsecutive int
	ToolFailuresTotal       int
	UnrecoverableError      bool
	MemoryHealth            map[string]any

	PrevPaceLevel string
	TaskAborted   bool
}

// TurnResult is what the dispatcher hands back to the hook pipeline.
type TurnResult struct {
	Role         *RoleProfile
	AllowedPlans []string
	PaceLevel    string
	Transitioned bool
	Escalated    bool
	SaluteEmitted bool
}

// Dispatcher is the per-turn control plane entry point.
type Dispatcher struct {
	roles   *RoleLibrary
	orgDir  string
	reports *salute.Store
	pace    *PaceEvaluator
	logger  logging.Logger
}

// NewDispatcher wires the dispatcher against the organization directory, the
// role library, and the reports store.
func NewDispatcher(orgDir string, roles *RoleLibrary, reports *salute.Store, logger logging.Logger) *Dispatcher {
	logger = logging.OrNop(logger)
	return &Dispatcher{
		roles:   roles,
		orgDir:  orgDir,
		reports: reports,
		pace:    NewPaceEvaluator(logger),
		logger:  logger,
	}
}

// Dispatch runs role selection, the PACE tick, and SALUTE emission for one
// turn. A missing organization or a conversational turn is a no-op with no
// active role.
func (d *Dispatcher) Dispatch(input TurnInput) TurnResult {
	result := TurnResult{PaceLevel: salute.PacePrimary}

	org, err := d.roles.ActiveOrganization(d.orgDir)
	if err != nil {
		d.logger.Warn("active organization unreadable: %v", err)
		return result
	}
	if org == nil {
		return result
	}
	if input.Domain == "" || input.Domain == conversationalDomain {
		return result
	}

	role := d.roles.SelectRole(org, input.Domain)
	if role == nil {
		d.logger.Debug("no role covers domain %q", input.Domain)
		return result
	}
	result.Role = role
	result.AllowedPlans = role.AllowedPlans()
	if role.Organization == "" {
		role.Organization = org.OrganizationName
	}

	metrics := Metrics{
		ConsecutiveToolFailures: input.ToolFailuresConsecutive,
		TotalToolFailures:       input.ToolFailuresTotal,
		TurnsWithoutProgress:    input.TurnsWithoutProgress,
		ContextFill:             input.ContextFill,
		MaxTurns:                role.Doctrine.MaxTurnsWithoutProgress,
		UnrecoverableError:      input.UnrecoverableError,
	}
	result.PaceLevel = d.pace.Evaluate(role, metrics)

	prev := input.PrevPaceLevel
	if prev == "" {
		prev = salute.PacePrimary
	}
	if result.PaceLevel != prev {
		result.Transitioned = true
		result.Escalated = salute.PaceRank(result.PaceLevel) > salute.PaceRank(prev)
		direction := "restored"
		if result.Escalated {
			direction = "escalated"
		}
		d.logger.Info("PACE %s: %s -> %s (role %s)", direction, prev, result.PaceLevel, role.RoleID)
	}

	interval := role.Doctrine.SaluteIntervalTurns
	if interval <= 0 {
		interval = defaultSaluteInterval
	}
	if result.Transitioned || (input.TurnCount > 0 && input.TurnCount%interval == 0) {
		if err := d.emitSalute(role, input, result); err != nil {
			d.logger.Warn("salute emission failed: %v", err)
		} else {
			result.SaluteEmitted = true
		}
	}
	return result
}

// emitSalute assembles and writes the full SALUTE report for the role.
func (d *Dispatcher) emitSalute(role *RoleProfile, input TurnInput, result TurnResult) error {
	report := &salute.Report{
		Status: salute.Status{
			State:     deriveState(input, result),
			Progress:  input.Progress,
			PaceLevel: result.PaceLevel,
			Health:    salute.DeriveHealth(result.PaceLevel, input.ToolFailuresConsecutive),
		},
		Activity: salute.Activity{
			CurrentTask:             input.CurrentTask,
			BSTDomain:               input.Domain,
			HTNPlan:                 input.Plan,
			HTNStep:                 input.PlanStep,
			HTNTotalSteps:           input.PlanTotalSteps,
			IterationsOnCurrentStep: input.IterationsOnStep,
			CurrentTool:             input.CurrentTool,
		},
		Location: salute.Location{
			WorkingDir:    input.WorkingDir,
			FilesModified: input.FilesModified,
			FilesRead:     input.FilesRead,
		},
		Unit: salute.Unit{
			RoleID:       role.RoleID,
			RoleName:     role.RoleName,
			ReportsTo:    role.ReportsTo,
			Organization: role.Organization,
		},
		Time: salute.Time{
			Timestamp:          time.Now().UTC().Format(time.RFC3339),
			TurnsElapsed:       input.TurnCount,
			TurnsSinceProgress: input.TurnsWithoutProgress,
		},
		Environment: salute.Environment{
			Model:                   input.Model,
			ContextFillPct:          input.ContextFill * 100,
			ToolFailuresConsecutive: input.ToolFailuresConsecutive,
			ToolFailuresTotal:       input.ToolFailuresTotal,
			MemoryHealth:            input.MemoryHealth,
		},
	}
	return d.reports.Write(role.RoleID, report)
}

// deriveState maps the turn's condition to the SALUTE status state.
func deriveState(input TurnInput, result TurnResult) string {
	switch {
	case input.TaskAborted:
		return salute.StateAborted
	case result.Transitioned && result.Escalated:
		return salute.StateEscalating
	case input.ToolFailuresConsecutive > 0:
		return salute.StateErrorRecovery
	case input.CurrentTask == "":
		return salute.StateIdle
	default:
		return salute.StateActive
	}
}
