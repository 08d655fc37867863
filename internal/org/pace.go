package org

import (
	"aegis/internal/logging"
	"aegis/internal/salute"
)

// emergencyFailureFloor is the consecutive-failure count at which an
// unrecoverable_error trigger fires.
const emergencyFailureFloor = 8

// stagnationFactor multiplies the role's max turns without progress for the
// emergency stagnation rule.
const stagnationFactor = 1.5

// PaceEvaluator ticks the escalation ladder for a role. Compiled triggers are
// cached per role until the profile changes.
type PaceEvaluator struct {
	logger logging.Logger
}

// NewPaceEvaluator returns an evaluator.
func NewPaceEvaluator(logger logging.Logger) *PaceEvaluator {
	return &PaceEvaluator{logger: logging.OrNop(logger)}
}

// Evaluate returns the PACE level for the role given the turn's metrics.
// First match wins walking the ladder from the top: emergency, contingent,
// alternate, else primary. De-escalation is allowed; the level is recomputed
// from scratch each tick.
func (e *PaceEvaluator) Evaluate(role *RoleProfile, m Metrics) string {
	if role == nil {
		return salute.PacePrimary
	}
	if m.MaxTurns == 0 {
		m.MaxTurns = role.Doctrine.MaxTurnsWithoutProgress
	}

	if e.emergencyHolds(role, m) {
		return salute.PaceEmergency
	}
	if e.triggerHolds(role, salute.PaceContingent, m) {
		return salute.PaceContingent
	}
	if e.triggerHolds(role, salute.PaceAlternate, m) {
		return salute.PaceAlternate
	}
	return salute.PacePrimary
}

// emergencyHolds applies the two emergency rules: an unrecoverable_error
// trigger with the failure floor reached, or stagnation past 1.5x the role's
// max turns without progress.
func (e *PaceEvaluator) emergencyHolds(role *RoleProfile, m Metrics) bool {
	trigger := role.PacePlan[salute.PaceEmergency].Trigger
	if References(trigger, "unrecoverable_error") && m.ConsecutiveToolFailures >= emergencyFailureFloor {
		return true
	}
	if m.MaxTurns > 0 && float64(m.TurnsWithoutProgress) > stagnationFactor*float64(m.MaxTurns) {
		return true
	}
	return false
}

func (e *PaceEvaluator) triggerHolds(role *RoleProfile, level string, m Metrics) bool {
	entry, ok := role.PacePlan[level]
	if !ok || entry.Trigger == "" {
		return false
	}
	expr, err := ParseTrigger(entry.Trigger)
	if err != nil {
		e.logger.Warn("role %s: bad %s trigger %q: %v", role.RoleID, level, entry.Trigger, err)
		return false
	}
	return expr.Eval(m)
}
