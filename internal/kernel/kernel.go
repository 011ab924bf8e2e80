// Package kernel implements the Org Kernel Dispatcher (K): spec.md §4.5's
// per-inner-agent-turn control plane. Per spec.md §2's data flow note, K
// (along with I, M, D, F, E, N) executes "per-turn inside the inner
// agent's loop, as pre- and post-turn hooks" — the inner agent itself is
// explicitly out of scope (§1, "treated as a black-box HTTP service").
// Kernel is therefore a library a hypothetical inner-agent harness would
// embed and call once per turn; it owns no network transport itself. It
// ties together internal/kernel/org (active.json), internal/kernel/roles
// (role selection + PACE plan compilation), internal/kernel/pace (the FSM),
// internal/kernel/toolclassifier (tool-result classification), and
// internal/bst (domain/slot classification), against the explicit
// pkg/conversation.State a caller threads through by reference.
package kernel

import (
	"github.com/wardenai/warden/internal/bst"
	"github.com/wardenai/warden/internal/kernel/org"
	"github.com/wardenai/warden/internal/kernel/pace"
	"github.com/wardenai/warden/internal/kernel/roles"
	"github.com/wardenai/warden/internal/kernel/toolclassifier"
	"github.com/wardenai/warden/pkg/conversation"
)

// Decision is everything a turn hook needs from one Tick: the BST outcome
// for prompt assembly, the selected role (and its allowed tool plans) for
// tool-palette filtering, and the current PACE level for SALUTE emission.
type Decision struct {
	BST bst.Result

	ActiveRole       *roles.Profile
	AllowedToolPlans []string // nil = unrestricted

	PACELevel  pace.Level
	Transition *pace.Transition

	ShouldEmitSALUTE bool
}

// Kernel holds the Org Kernel's read-only inputs (the mtime-cached active
// organization, the role library directory, and the intent taxonomy) plus
// the per-conversation tool classifier trackers it maintains across turns.
type Kernel struct {
	orgLoader *org.Loader
	rolesDir  string
	bstEngine *bst.Engine

	trackers map[string]*toolclassifier.Tracker
}

// New builds a Kernel reading its active-organization file from orgPath and
// its role library from rolesDir, classifying intent against tax.
func New(orgPath, rolesDir string, tax bst.Taxonomy) *Kernel {
	return &Kernel{
		orgLoader: org.NewLoader(orgPath),
		rolesDir:  rolesDir,
		bstEngine: bst.NewEngine(tax),
		trackers:  make(map[string]*toolclassifier.Tracker),
	}
}

func (k *Kernel) trackerFor(contextID string) *toolclassifier.Tracker {
	t, ok := k.trackers[contextID]
	if !ok {
		t = toolclassifier.NewTracker()
		k.trackers[contextID] = t
	}
	return t
}

// Tick runs spec.md §4.5 steps 1-6 for one inner-agent turn. message and
// history feed the Intent/Slot Engine (step 2); lastToolOutput is the most
// recent tool invocation's raw output, classified per §4.5.2 and folded
// into this turn's PACE metrics; unrecoverableError reports whether that
// tool failure was of a kind the caller considers unrecoverable, feeding
// the emergency trigger's first leg.
func (k *Kernel) Tick(state *conversation.State, message string, history []string, lastToolOutput string, unrecoverableError bool) (Decision, error) {
	active, err := k.orgLoader.Load()
	if err != nil {
		return Decision{}, err
	}
	if active == nil {
		// spec.md §4.5 step 1: absent active.json is a no-op, backward
		// compatible with inner-agent harnesses that haven't opted in.
		return Decision{}, nil
	}

	result, belief := k.bstEngine.Process(state, message, history)
	state.Belief = belief

	if result.Domain == "" || result.Domain == "conversational" {
		state.ActiveRole = nil
		state.PACE = nil
		return Decision{BST: result}, nil
	}

	profiles, err := roles.LoadDir(k.rolesDir)
	if err != nil {
		return Decision{BST: result}, err
	}
	role, ok := roles.SelectForDomain(active.Hierarchy, profiles, result.Domain)
	if !ok {
		state.ActiveRole = nil
		state.PACE = nil
		return Decision{BST: result}, nil
	}

	roleChanged := state.ActiveRole == nil || state.ActiveRole.RoleID != role.RoleID
	state.ActiveRole = &role
	if state.PACE == nil || roleChanged {
		plan, err := roles.CompilePacePlan(role)
		if err != nil {
			return Decision{BST: result, ActiveRole: &role}, err
		}
		state.PACE = pace.NewFSM(plan)
	}

	tracker := k.trackerFor(state.ContextID)
	kind := tracker.Record("inner_agent_tool", lastToolOutput)
	madeProgress := kind == toolclassifier.KindSuccess

	state.ToolFailuresConsecutive = tracker.MaxConsecutive()
	if !madeProgress {
		state.ToolFailuresTotal++
	}
	state.AdvanceTurn(madeProgress)

	metrics := pace.Metrics{
		ConsecutiveToolFailures: tracker.MaxConsecutive(),
		TurnsWithoutProgress:    state.TurnsSinceProgress,
		MaxTurnsWithoutProgress: role.Doctrine.MaxTurnsWithoutProgress,
	}
	level, transition, err := state.PACE.Tick(metrics, unrecoverableError)
	if err != nil {
		return Decision{BST: result, ActiveRole: &role}, err
	}

	due := state.DueForSALUTE(role.Doctrine.SALUTEIntervalTurns) || transition != nil
	if due {
		state.MarkSALUTEEmitted()
	}

	return Decision{
		BST:              result,
		ActiveRole:        &role,
		AllowedToolPlans:  role.Capabilities.ToolPlans,
		PACELevel:         level,
		Transition:        transition,
		ShouldEmitSALUTE:  due,
	}, nil
}
