// Package registry implements the Task Registry (Q): task lifecycle,
// admission queue, promotion, cancellation, and follow-up resume. It
// mirrors the teacher's runtime/a2a TaskStore pattern (a pluggable
// persistence interface defaulting to an in-memory map) generalized with
// the admission queue and promotion scheduler spec.md §4.2 requires.
package registry

import (
	"time"

	"github.com/google/uuid"
)

// State is a task's position in the A2A lifecycle lattice.
type State string

// Task states, per spec.md §3. Terminal states never transition further.
const (
	StateSubmitted     State = "submitted"
	StateWorking       State = "working"
	StateInputRequired State = "input-required"
	StateCompleted     State = "completed"
	StateFailed        State = "failed"
	StateCanceled      State = "canceled"
)

// IsTerminal reports whether s is one of the terminal states.
func (s State) IsTerminal() bool {
	return s == StateCompleted || s == StateFailed || s == StateCanceled
}

// HistoryEntry is a single turn in a task's message history.
type HistoryEntry struct {
	Role      string
	Text      string
	Timestamp time.Time
}

// Telemetry is the subset of a SALUTE report the Registry retains as the
// task's last-known snapshot, consumed by tasks/get and SSE status_update
// translation.
type Telemetry struct {
	State            string
	Progress         float64
	PACELevel        string
	Health           string
	CurrentTask      string
	Step             int
	TotalSteps       int
	Timestamp        time.Time
}

// Artifact is a single output artifact collected from the inner agent's
// working directory.
type Artifact struct {
	Name     string
	Parts    []ArtifactPart
	MIMEType string
	Path     string
	Size     int64
	Encoding string // "" (text) or "base64"
}

// ArtifactPart is a single content chunk of an Artifact.
type ArtifactPart struct {
	Type string // "text" | "data"
	Text string
	Data string
}

// Task is the Registry's owned record for a single unit of work. Its
// lifetime is the server session; once State is terminal it never changes
// again (history and artifacts may still be read).
type Task struct {
	ID              string
	ContextID       string
	CreatedAt       time.Time
	UpdatedAt       time.Time
	State           State
	MessageText     string
	AgentContextID  string
	History         []HistoryEntry
	LastTelemetry   *Telemetry
	PACELevel       string
	ResultText      string
	ErrorDetail     string
	Artifacts       []Artifact
}

// newTask constructs a fresh Task in state submitted, with new IDs.
func newTask(messageText string) *Task {
	now := time.Now().UTC()
	return &Task{
		ID:          uuid.NewString(),
		ContextID:   uuid.NewString(),
		CreatedAt:   now,
		UpdatedAt:   now,
		State:       StateSubmitted,
		MessageText: messageText,
		PACELevel:   "primary",
		History: []HistoryEntry{
			{Role: "user", Text: messageText, Timestamp: now},
		},
	}
}

// Snapshot is an immutable copy of a Task safe to hand to callers outside
// the registry lock.
type Snapshot struct {
	Task
}

func (t *Task) snapshot() Snapshot {
	cp := *t
	cp.History = append([]HistoryEntry(nil), t.History...)
	cp.Artifacts = append([]Artifact(nil), t.Artifacts...)
	if t.LastTelemetry != nil {
		tel := *t.LastTelemetry
		cp.LastTelemetry = &tel
	}
	return Snapshot{Task: cp}
}
