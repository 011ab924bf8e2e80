package kernel_test

import (
	"encoding/json"
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/wardenai/warden/internal/bst"
	"github.com/wardenai/warden/internal/kernel"
	"github.com/wardenai/warden/internal/kernel/pace"
	"github.com/wardenai/warden/pkg/conversation"
)

func writeOrgFixture(t *testing.T, dir string) (orgPath, rolesDir string) {
	t.Helper()
	rolesDir = filepath.Join(dir, "roles")
	require.NoError(t, os.MkdirAll(rolesDir, 0o755))

	role := map[string]any{
		"role_id":   "go-debugger",
		"role_name": "Go Debugger",
		"role_type": "specialist",
		"capabilities": map[string]any{
			"bst_domains": []string{"debugging"},
		},
		"doctrine": map[string]any{
			"salute_interval_turns":      2,
			"max_turns_without_progress": 3,
		},
		"pace_plan": map[string]any{
			"alternate":  map[string]string{"trigger": "consecutive_tool_failures >= 1"},
			"contingent": map[string]string{"trigger": "consecutive_tool_failures >= 3"},
			"emergency":  map[string]string{"trigger": ""},
		},
	}
	roleData, err := json.Marshal(role)
	require.NoError(t, err)
	require.NoError(t, os.WriteFile(filepath.Join(rolesDir, "go-debugger.json"), roleData, 0o644))

	orgPath = filepath.Join(dir, "active.json")
	orgData, err := json.Marshal(map[string]any{
		"name":      "default",
		"hierarchy": []string{"go-debugger"},
	})
	require.NoError(t, err)
	require.NoError(t, os.WriteFile(orgPath, orgData, 0o644))
	return orgPath, rolesDir
}

func TestTickNoOpWithoutActiveOrg(t *testing.T) {
	dir := t.TempDir()
	k := kernel.New(filepath.Join(dir, "missing.json"), filepath.Join(dir, "roles"), bst.DefaultTaxonomy())
	state := conversation.New("ctx-1")

	decision, err := k.Tick(state, "it throws an error in main.go", nil, "", false)
	require.NoError(t, err)
	assert.Nil(t, decision.ActiveRole)
}

func TestTickSelectsRoleAndEscalates(t *testing.T) {
	dir := t.TempDir()
	orgPath, rolesDir := writeOrgFixture(t, dir)
	k := kernel.New(orgPath, rolesDir, bst.DefaultTaxonomy())
	state := conversation.New("ctx-2")

	decision, err := k.Tick(state, "it throws an error in main.go", nil, "connection refused", false)
	require.NoError(t, err)
	require.NotNil(t, decision.ActiveRole)
	assert.Equal(t, "go-debugger", decision.ActiveRole.RoleID)
	assert.Equal(t, pace.Alternate, decision.PACELevel)
	require.NotNil(t, decision.Transition)
	assert.True(t, decision.Transition.Escalated())

	// Two more consecutive tool failures push past the contingent
	// threshold (consecutive_tool_failures >= 3 after the third).
	_, err = k.Tick(state, "it throws an error in main.go", nil, "connection refused", false)
	require.NoError(t, err)
	decision, err = k.Tick(state, "it throws an error in main.go", nil, "connection refused", false)
	require.NoError(t, err)
	assert.Equal(t, pace.Contingent, decision.PACELevel)
}

func TestTickClearsRoleWhenDomainConversational(t *testing.T) {
	dir := t.TempDir()
	orgPath, rolesDir := writeOrgFixture(t, dir)
	k := kernel.New(orgPath, rolesDir, bst.DefaultTaxonomy())
	state := conversation.New("ctx-3")

	decision, err := k.Tick(state, "good morning", nil, "", false)
	require.NoError(t, err)
	assert.Nil(t, decision.ActiveRole)
	assert.Equal(t, "conversational", decision.BST.Domain)
}
