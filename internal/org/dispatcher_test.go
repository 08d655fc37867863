package org

import (
	"encoding/json"
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"aegis/internal/salute"
)

type dispatcherFixture struct {
	dispatcher *Dispatcher
	reports    *salute.Store
	orgDir     string
}

func newDispatcherFixture(t *testing.T) *dispatcherFixture {
	t.Helper()
	rolesDir := t.TempDir()
	orgDir := t.TempDir()

	profile := map[string]any{
		"role_id":   "financial_analyst",
		"role_name": "Financial Analyst",
		"role_type": RoleSpecialist,
		"capabilities": map[string]any{
			"bst_domains": []string{"finance"},
			"tool_plans":  []string{"research", "spreadsheet"},
		},
		"doctrine": map[string]any{
			"salute_interval_turns":      2,
			"max_turns_without_progress": 10,
		},
		"pace_plan": map[string]any{
			salute.PaceContingent: map[string]any{"trigger": "consecutive_tool_failures >= 5"},
		},
		"reports_to": "operations_chief",
	}
	data, err := json.Marshal(profile)
	require.NoError(t, err)
	require.NoError(t, os.WriteFile(filepath.Join(rolesDir, "financial_analyst.json"), data, 0o644))
	writeActiveOrg(t, orgDir, "financial_analyst")

	reports := salute.NewStore(filepath.Join(t.TempDir(), "reports"))
	return &dispatcherFixture{
		dispatcher: NewDispatcher(orgDir, NewRoleLibrary(rolesDir), reports, nil),
		reports:    reports,
		orgDir:     orgDir,
	}
}

func TestDispatchConversationalIsPassthrough(t *testing.T) {
	f := newDispatcherFixture(t)

	result := f.dispatcher.Dispatch(TurnInput{Domain: conversationalDomain, TurnCount: 4})
	assert.Nil(t, result.Role)
	assert.Equal(t, salute.PacePrimary, result.PaceLevel)
	assert.False(t, result.SaluteEmitted)

	result = f.dispatcher.Dispatch(TurnInput{Domain: "", TurnCount: 4})
	assert.Nil(t, result.Role)
}

func TestDispatchNoOrganizationIsNoOp(t *testing.T) {
	rolesDir := t.TempDir()
	writeRole(t, rolesDir, "financial_analyst", RoleSpecialist, []string{"finance"}, nil)
	dispatcher := NewDispatcher(t.TempDir(), NewRoleLibrary(rolesDir), salute.NewStore(t.TempDir()), nil)

	result := dispatcher.Dispatch(TurnInput{Domain: "finance", TurnCount: 4})
	assert.Nil(t, result.Role)
	assert.Equal(t, salute.PacePrimary, result.PaceLevel)
}

func TestDispatchUncoveredDomainHasNoRole(t *testing.T) {
	f := newDispatcherFixture(t)
	result := f.dispatcher.Dispatch(TurnInput{Domain: "legal", TurnCount: 2})
	assert.Nil(t, result.Role)
}

func TestDispatchSelectsRoleAndEmitsOnInterval(t *testing.T) {
	f := newDispatcherFixture(t)

	offCadence := f.dispatcher.Dispatch(TurnInput{
		Domain:      "finance",
		CurrentTask: "reconcile ledgers",
		TurnCount:   3,
	})
	require.NotNil(t, offCadence.Role)
	assert.Equal(t, "financial_analyst", offCadence.Role.RoleID)
	assert.Equal(t, []string{"research", "spreadsheet"}, offCadence.AllowedPlans)
	assert.Equal(t, salute.PacePrimary, offCadence.PaceLevel)
	assert.False(t, offCadence.SaluteEmitted, "turn 3 misses the 2-turn cadence")

	onCadence := f.dispatcher.Dispatch(TurnInput{
		Domain:      "finance",
		CurrentTask: "reconcile ledgers",
		Model:       "sim-large",
		ContextFill: 0.25,
		TurnCount:   4,
	})
	assert.True(t, onCadence.SaluteEmitted)

	report, err := f.reports.ReadLatest("financial_analyst")
	require.NoError(t, err)
	require.NotNil(t, report)
	assert.Equal(t, salute.StateActive, report.Status.State)
	assert.Equal(t, salute.PacePrimary, report.Status.PaceLevel)
	assert.Equal(t, "finance", report.Activity.BSTDomain)
	assert.Equal(t, "financial_analyst", report.Unit.RoleID)
	assert.Equal(t, "operations_chief", report.Unit.ReportsTo)
	assert.Equal(t, "task_force", report.Unit.Organization, "organization backfills from active.json")
	assert.Equal(t, 4, report.Time.TurnsElapsed)
	assert.InDelta(t, 25.0, report.Environment.ContextFillPct, 1e-9)
}

func TestDispatchEscalationEmitsOffCadence(t *testing.T) {
	f := newDispatcherFixture(t)

	result := f.dispatcher.Dispatch(TurnInput{
		Domain:                  "finance",
		CurrentTask:             "reconcile ledgers",
		TurnCount:               3,
		ToolFailuresConsecutive: 5,
		PrevPaceLevel:           salute.PacePrimary,
	})
	assert.Equal(t, salute.PaceContingent, result.PaceLevel)
	assert.True(t, result.Transitioned)
	assert.True(t, result.Escalated)
	assert.True(t, result.SaluteEmitted, "every transition emits regardless of cadence")

	report, err := f.reports.ReadLatest("financial_analyst")
	require.NoError(t, err)
	require.NotNil(t, report)
	assert.Equal(t, salute.StateEscalating, report.Status.State)
	assert.Equal(t, salute.HealthCritical, report.Status.Health)
}

func TestDispatchDeEscalationIsNotEscalated(t *testing.T) {
	f := newDispatcherFixture(t)

	result := f.dispatcher.Dispatch(TurnInput{
		Domain:        "finance",
		CurrentTask:   "reconcile ledgers",
		TurnCount:     3,
		PrevPaceLevel: salute.PaceContingent,
	})
	assert.Equal(t, salute.PacePrimary, result.PaceLevel)
	assert.True(t, result.Transitioned)
	assert.False(t, result.Escalated)
}

func TestDeriveState(t *testing.T) {
	assert.Equal(t, salute.StateAborted,
		deriveState(TurnInput{TaskAborted: true, CurrentTask: "x"}, TurnResult{}))
	assert.Equal(t, salute.StateEscalating,
		deriveState(TurnInput{CurrentTask: "x"}, TurnResult{Transitioned: true, Escalated: true}))
	assert.Equal(t, salute.StateErrorRecovery,
		deriveState(TurnInput{CurrentTask: "x", ToolFailuresConsecutive: 1}, TurnResult{}))
	assert.Equal(t, salute.StateIdle, deriveState(TurnInput{}, TurnResult{}))
	assert.Equal(t, salute.StateActive, deriveState(TurnInput{CurrentTask: "x"}, TurnResult{}))
}
