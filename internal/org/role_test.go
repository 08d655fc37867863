package org

import (
	"encoding/json"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func writeRole(t *testing.T, dir, roleID, roleType string, domains []string, plans []string) {
	t.Helper()
	profile := map[string]any{
		"role_id":   roleID,
		"role_name": roleID,
		"role_type": roleType,
		"capabilities": map[string]any{
			"bst_domains": domains,
			"tool_plans":  plans,
		},
	}
	data, err := json.Marshal(profile)
	require.NoError(t, err)
	require.NoError(t, os.WriteFile(filepath.Join(dir, roleID+".json"), data, 0o644))
}

func writeActiveOrg(t *testing.T, dir string, roleIDs ...string) {
	t.Helper()
	org := map[string]any{
		"organization_name": "task_force",
		"hierarchy":         roleIDs,
	}
	data, err := json.Marshal(org)
	require.NoError(t, err)
	require.NoError(t, os.WriteFile(filepath.Join(dir, "active.json"), data, 0o644))
}

func TestRoleLibraryLoadsJSONAndYAML(t *testing.T) {
	dir := t.TempDir()
	writeRole(t, dir, "auditor", RoleSpecialist, []string{"finance"}, []string{"read_only"})

	yamlRole := `role_id: planner
role_name: Planner
role_type: executive
capabilities:
  bst_domains: [devops]
doctrine:
  salute_interval_turns: 3
  max_turns_without_progress: 6
`
	require.NoError(t, os.WriteFile(filepath.Join(dir, "planner.yaml"), []byte(yamlRole), 0o644))

	library := NewRoleLibrary(dir)

	auditor, err := library.Load("auditor")
	require.NoError(t, err)
	assert.True(t, auditor.CoversDomain("finance"))
	assert.Equal(t, []string{"read_only"}, auditor.AllowedPlans())

	planner, err := library.Load("planner")
	require.NoError(t, err)
	assert.Equal(t, RoleExecutive, planner.RoleType)
	assert.Equal(t, 3, planner.Doctrine.SaluteIntervalTurns)
	assert.Equal(t, 6, planner.Doctrine.MaxTurnsWithoutProgress)
	assert.Nil(t, planner.AllowedPlans(), "no tool plans means unrestricted")

	_, err = library.Load("missing")
	assert.Error(t, err)

	assert.Len(t, library.All(), 2)
}

func TestRoleLibraryCacheRevalidatesOnChange(t *testing.T) {
	dir := t.TempDir()
	writeRole(t, dir, "auditor", RoleSpecialist, []string{"finance"}, nil)
	library := NewRoleLibrary(dir)

	first, err := library.Load("auditor")
	require.NoError(t, err)
	again, err := library.Load("auditor")
	require.NoError(t, err)
	assert.Same(t, first, again, "unchanged files serve the cached profile")

	path := filepath.Join(dir, "auditor.json")
	writeRole(t, dir, "auditor", RoleExecutive, []string{"finance"}, nil)
	// Force a distinct mtime even on coarse filesystems.
	info, err := os.Stat(path)
	require.NoError(t, err)
	require.NoError(t, os.Chtimes(path, info.ModTime().Add(time.Second), info.ModTime().Add(time.Second)))

	reloaded, err := library.Load("auditor")
	require.NoError(t, err)
	assert.Equal(t, RoleExecutive, reloaded.RoleType)
}

func TestHierarchyNodeAcceptsStringsAndObjects(t *testing.T) {
	raw := `{
		"organization_name": "task_force",
		"hierarchy": [
			{"role_id": "commander_1", "subordinates": ["specialist_a", {"role_id": "specialist_b"}]},
			"executive_1"
		]
	}`
	var org Organization
	require.NoError(t, json.Unmarshal([]byte(raw), &org))

	assert.Equal(t, []string{"commander_1", "specialist_a", "specialist_b", "executive_1"}, org.RoleIDs())
}

func TestActiveOrganizationMissingIsNoOrg(t *testing.T) {
	library := NewRoleLibrary(t.TempDir())
	org, err := library.ActiveOrganization(t.TempDir())
	require.NoError(t, err)
	assert.Nil(t, org)
}

func TestSelectRolePrefersSpecialist(t *testing.T) {
	dir := t.TempDir()
	writeRole(t, dir, "commander_1", RoleCommander, []string{"finance", "devops"}, nil)
	writeRole(t, dir, "executive_1", RoleExecutive, []string{"finance"}, nil)
	writeRole(t, dir, "specialist_1", RoleSpecialist, []string{"finance"}, nil)
	library := NewRoleLibrary(dir)

	org := &Organization{Hierarchy: []HierarchyNode{
		{RoleID: "commander_1", Subordinates: []HierarchyNode{
			{RoleID: "executive_1"},
			{RoleID: "specialist_1"},
		}},
	}}

	selected := library.SelectRole(org, "finance")
	require.NotNil(t, selected)
	assert.Equal(t, "specialist_1", selected.RoleID)

	// Only the commander covers devops.
	selected = library.SelectRole(org, "devops")
	require.NotNil(t, selected)
	assert.Equal(t, "commander_1", selected.RoleID)

	assert.Nil(t, library.SelectRole(org, "legal"))
	assert.Nil(t, library.SelectRole(nil, "finance"))
	assert.Nil(t, library.SelectRole(org, ""))
}
