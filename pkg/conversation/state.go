// Package conversation defines ConversationState, the single typed value
// threaded explicitly through the Org Kernel's per-turn hooks. It replaces
// the original implementation's pattern of attaching ad hoc attributes to a
// shared agent object (spec.md §9 design note: "re-architect as a single
// typed ConversationState value threaded through hooks; hooks receive it by
// reference and mutate fields explicitly; no dynamic attribute attachment").
package conversation

import (
	"time"

	"github.com/wardenai/warden/internal/kernel/pace"
	"github.com/wardenai/warden/internal/kernel/roles"
)

// BeliefState is the per-conversation Intent/Slot Engine memory, persisted
// with a TTL per spec.md §3 and §4.6.
type BeliefState struct {
	Domain             string
	Turn               int
	Slots              map[string]string
	MissingRequired    []string
	Confidence         float64
	ClarificationsAsked int
	UpdatedAt          time.Time
}

// Expired reports whether the belief is older than ttlTurns relative to
// currentTurn.
func (b BeliefState) Expired(currentTurn, ttlTurns int) bool {
	if b.Turn == 0 {
		return true
	}
	return currentTurn-b.Turn > ttlTurns
}

// State is the explicit, typed record of everything the Org Kernel and its
// sub-modules need to carry from one turn to the next within a single
// conversation. Hooks take *State and mutate it directly; nothing is stored
// as a dynamic attribute on an external object.
type State struct {
	ContextID string

	ActiveRole   *roles.Profile
	PACE         *pace.FSM
	TurnCount    int
	TurnsSinceSALUTE int
	TurnsSinceProgress int

	Belief BeliefState

	// ToolFailuresConsecutive and ToolFailuresTotal mirror the tool
	// classifier's counters for the SALUTE environment block.
	ToolFailuresConsecutive int
	ToolFailuresTotal       int

	MemoryHealth string
}

// New constructs an empty State for a fresh conversation.
func New(contextID string) *State {
	return &State{ContextID: contextID}
}

// AdvanceTurn increments the turn counters hooks consult for SALUTE cadence
// and PACE progress tracking.
func (s *State) AdvanceTurn(madeProgress bool) {
	s.TurnCount++
	s.TurnsSinceSALUTE++
	if madeProgress {
		s.TurnsSinceProgress = 0
	} else {
		s.TurnsSinceProgress++
	}
}

// DueForSALUTE reports whether the turn cadence requires an emission,
// independent of any PACE-transition-triggered emission.
func (s *State) DueForSALUTE(intervalTurns int) bool {
	if intervalTurns <= 0 {
		return false
	}
	return s.TurnsSinceSALUTE >= intervalTurns
}

// MarkSALUTEEmitted resets the cadence counter.
func (s *State) MarkSALUTEEmitted() {
	s.TurnsSinceSALUTE = 0
}
