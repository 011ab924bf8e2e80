package roles_test

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/wardenai/warden/internal/kernel/roles"
)

const specialistJSON = `{
  "role_id": "go-debugger",
  "role_name": "Go Debugger",
  "role_type": "specialist",
  "capabilities": {"bst_domains": ["debugging"]},
  "doctrine": {"salute_interval_turns": 3, "max_turns_without_progress": 4},
  "pace_plan": {
    "alternate": {"trigger": "consecutive_tool_failures >= 2"},
    "contingent": {"trigger": "consecutive_tool_failures >= 5 OR turns_without_progress > max * 1.5"},
    "emergency": {"trigger": ""}
  }
}`

const commanderJSON = `{
  "role_id": "lead",
  "role_name": "Lead",
  "role_type": "commander",
  "capabilities": {"bst_domains": ["debugging"]},
  "doctrine": {"salute_interval_turns": 5, "max_turns_without_progress": 8},
  "pace_plan": {"alternate": {"trigger": ""}, "contingent": {"trigger": ""}, "emergency": {"trigger": ""}}
}`

func writeRole(t *testing.T, dir, name, content string) {
	t.Helper()
	require.NoError(t, os.WriteFile(filepath.Join(dir, name), []byte(content), 0o644))
}

func TestLoadValidatesAndDecodes(t *testing.T) {
	dir := t.TempDir()
	writeRole(t, dir, "go-debugger.json", specialistJSON)

	p, err := roles.Load(filepath.Join(dir, "go-debugger.json"))
	require.NoError(t, err)
	assert.Equal(t, "go-debugger", p.RoleID)
	assert.Equal(t, roles.TypeSpecialist, p.RoleType)
	assert.Equal(t, 4, p.Doctrine.MaxTurnsWithoutProgress)
}

func TestLoadRejectsMissingRequiredField(t *testing.T) {
	dir := t.TempDir()
	writeRole(t, dir, "broken.json", `{"role_id": "x"}`)
	_, err := roles.Load(filepath.Join(dir, "broken.json"))
	assert.Error(t, err)
}

func TestSelectForDomainPrefersSpecialist(t *testing.T) {
	dir := t.TempDir()
	writeRole(t, dir, "go-debugger.json", specialistJSON)
	writeRole(t, dir, "lead.json", commanderJSON)

	profiles, err := roles.LoadDir(dir)
	require.NoError(t, err)

	chosen, ok := roles.SelectForDomain([]string{"lead", "go-debugger"}, profiles, "debugging")
	require.True(t, ok)
	assert.Equal(t, "go-debugger", chosen.RoleID)
}

func TestSelectForDomainNoMatch(t *testing.T) {
	dir := t.TempDir()
	writeRole(t, dir, "go-debugger.json", specialistJSON)
	profiles, err := roles.LoadDir(dir)
	require.NoError(t, err)

	_, ok := roles.SelectForDomain([]string{"go-debugger"}, profiles, "finance")
	assert.False(t, ok)
}

func TestCompilePacePlan(t *testing.T) {
	p, err := roles.Load(writeAndReturn(t, specialistJSON))
	require.NoError(t, err)
	plan, err := roles.CompilePacePlan(p)
	require.NoError(t, err)
	assert.False(t, plan.Contingent.IsZero())
	assert.Equal(t, 8, plan.EmergencyUnrecoverableErrorMaxConsecutive)
}

func TestDeriveSkillsUnionsPlansAndCatchAllRoles(t *testing.T) {
	dir := t.TempDir()
	writeRole(t, dir, "go-debugger.json", specialistJSON)
	writeRole(t, dir, "lead.json", commanderJSON)
	profiles, err := roles.LoadDir(dir)
	require.NoError(t, err)

	// specialistJSON declares no tool_plans (unrestricted) so it should
	// surface as a catch-all role skill; give the commander a plan so both
	// code paths run in one test.
	commander := profiles["lead"]
	commander.Capabilities.ToolPlans = []string{"triage-plan"}
	profiles["lead"] = commander

	skills := roles.DeriveSkills([]string{"go-debugger", "lead"}, profiles,
		map[string]string{"triage-plan": "Triage and assign follow-up work"})

	require.Len(t, skills, 2)
	assert.Equal(t, "role:go-debugger", skills[0].ID)
	assert.Contains(t, skills[0].Tags, "debugging")
	assert.Equal(t, "triage-plan", skills[1].ID)
	assert.Equal(t, "Triage and assign follow-up work", skills[1].Description)
	assert.Contains(t, skills[1].Tags, "debugging")
}

func TestDeriveSkillsMergesDuplicatePlansAcrossRoles(t *testing.T) {
	a := roles.Profile{
		RoleID:       "a",
		RoleName:     "A",
		Capabilities: roles.Capabilities{BSTDomains: []string{"finance"}, ToolPlans: []string{"shared-plan"}},
	}
	b := roles.Profile{
		RoleID:       "b",
		RoleName:     "B",
		Capabilities: roles.Capabilities{BSTDomains: []string{"legal"}, ToolPlans: []string{"shared-plan"}},
	}
	skills := roles.DeriveSkills([]string{"a", "b"}, map[string]roles.Profile{"a": a, "b": b}, nil)

	require.Len(t, skills, 1)
	assert.ElementsMatch(t, []string{"finance", "legal"}, skills[0].Tags)
}

func writeAndReturn(t *testing.T, content string) string {
	t.Helper()
	dir := t.TempDir()
	path := filepath.Join(dir, "role.json")
	require.NoError(t, os.WriteFile(path, []byte(content), 0o644))
	return path
}
