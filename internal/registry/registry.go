package registry

import (
	"context"
	"sync"
	"time"

	wardenerrors "github.com/wardenai/warden/internal/errors"
)

// OnPromoted is invoked after promote_next transitions a queued task to
// working, outside the registry lock, so the Gateway can begin dispatch
// without risking a deadlock against the lock this callback was fired
// under.
type OnPromoted func(id string)

// Registry holds the single in-memory map of tasks plus the active and
// queue lists described in spec.md §4.2. All mutations hold a single lock;
// the only I/O it performs is firing OnPromoted callbacks and mirroring
// snapshots to an optional TaskStore, both outside the lock.
type Registry struct {
	mu    sync.Mutex
	tasks map[string]*Task

	active []string // task IDs currently dispatched, len <= maxConcurrent
	queue  []string // task IDs waiting admission, FIFO, len <= maxQueued

	maxConcurrent int
	maxQueued     int

	onPromoted OnPromoted
	store      TaskStore
}

// New constructs a Registry bounded by maxConcurrent active tasks and
// maxQueued admission-queue slots.
func New(maxConcurrent, maxQueued int) *Registry {
	return &Registry{
		tasks:         make(map[string]*Task),
		maxConcurrent: maxConcurrent,
		maxQueued:     maxQueued,
	}
}

// OnTaskPromoted registers the callback fired each time promote_next moves
// a task from queue to active.
func (r *Registry) OnTaskPromoted(fn OnPromoted) {
	r.mu.Lock()
	r.onPromoted = fn
	r.mu.Unlock()
}

// SetStore wires an optional durable TaskStore (RedisTaskStore or
// MongoTaskStore). The in-memory map stays authoritative for every
// lifecycle decision; the store only mirrors snapshots for crash-recovery
// rehydration. Every mirrored write happens in its own goroutine after the
// registry lock has been released, per spec.md §5's "all I/O ... occurs
// outside the lock" — a slow or failing store never blocks a caller and
// its errors are dropped, matching the memory layer's "never break the
// agent over storage failure" motto (spec.md §7).
func (r *Registry) SetStore(store TaskStore) {
	r.mu.Lock()
	r.store = store
	r.mu.Unlock()
}

// mirror asynchronously persists snap to the configured TaskStore, if
// any. Must be called without holding the registry lock.
func (r *Registry) mirror(snap Snapshot) {
	r.mu.Lock()
	store := r.store
	r.mu.Unlock()
	if store == nil {
		return
	}
	go func() {
		_ = store.Save(context.Background(), snap)
	}()
}

// RehydrateFromStore loads every snapshot from the configured TaskStore
// into the in-memory map, used once at startup to recover Registry state
// across a restart. Tasks are restored into the active or queue list
// exactly as they were recorded; no admission-capacity re-check is
// performed since the store only ever held what the in-memory Registry
// itself accepted.
func (r *Registry) RehydrateFromStore(ctx context.Context) error {
	r.mu.Lock()
	store := r.store
	r.mu.Unlock()
	if store == nil {
		return nil
	}
	snaps, err := store.LoadAll(ctx)
	if err != nil {
		return err
	}
	r.mu.Lock()
	defer r.mu.Unlock()
	for _, snap := range snaps {
		t := snap.Task
		r.tasks[t.ID] = &t
		if !t.State.IsTerminal() {
			if t.State == StateSubmitted {
				r.queue = append(r.queue, t.ID)
			} else {
				r.active = append(r.active, t.ID)
			}
		}
	}
	return nil
}

// Create admits a new task for messageText. If the queue is already at
// capacity it returns ErrQueueFull and stores nothing. Otherwise the task
// is assigned fresh IDs and either pushed to active (state working, if
// there is capacity) or to queue (state submitted).
func (r *Registry) Create(messageText string) (Snapshot, error) {
	r.mu.Lock()
	if len(r.queue) >= r.maxQueued {
		r.mu.Unlock()
		return Snapshot{}, wardenerrors.ErrQueueFull
	}
	t := newTask(messageText)
	r.tasks[t.ID] = t
	if len(r.active) < r.maxConcurrent {
		t.State = StateWorking
		t.UpdatedAt = time.Now().UTC()
		r.active = append(r.active, t.ID)
	} else {
		r.queue = append(r.queue, t.ID)
	}
	snap := t.snapshot()
	r.mu.Unlock()
	r.mirror(snap)
	return snap, nil
}

// Get returns a snapshot of the task with the given ID.
func (r *Registry) Get(id string) (Snapshot, bool) {
	r.mu.Lock()
	defer r.mu.Unlock()
	t, ok := r.tasks[id]
	if !ok {
		return Snapshot{}, false
	}
	return t.snapshot(), true
}

// GetByContextID finds a non-terminal task whose ContextID matches, used to
// resolve follow-up message/send calls by contextId.
func (r *Registry) GetByContextID(contextID string) (Snapshot, bool) {
	r.mu.Lock()
	defer r.mu.Unlock()
	for _, t := range r.tasks {
		if t.ContextID == contextID && !t.State.IsTerminal() {
			return t.snapshot(), true
		}
	}
	return Snapshot{}, false
}

// UpdateTelemetry refreshes a non-terminal task's last known SALUTE
// snapshot and PACE level.
func (r *Registry) UpdateTelemetry(id string, tel Telemetry, paceLevel string) {
	r.mu.Lock()
	t, ok := r.tasks[id]
	if !ok || t.State.IsTerminal() {
		r.mu.Unlock()
		return
	}
	tel.Timestamp = time.Now().UTC()
	t.LastTelemetry = &tel
	t.PACELevel = paceLevel
	t.UpdatedAt = tel.Timestamp
	snap := t.snapshot()
	r.mu.Unlock()
	r.mirror(snap)
}

// AppendHistory appends a turn to the task's history.
func (r *Registry) AppendHistory(id, role, text string) {
	r.mu.Lock()
	t, ok := r.tasks[id]
	if !ok {
		r.mu.Unlock()
		return
	}
	t.History = append(t.History, HistoryEntry{Role: role, Text: text, Timestamp: time.Now().UTC()})
	t.UpdatedAt = time.Now().UTC()
	snap := t.snapshot()
	r.mu.Unlock()
	r.mirror(snap)
}

// SetAgentContextID records the inner agent's own context handle on first
// dispatch, so follow-ups reuse it.
func (r *Registry) SetAgentContextID(id, agentContextID string) {
	r.mu.Lock()
	t, ok := r.tasks[id]
	if !ok {
		r.mu.Unlock()
		return
	}
	t.AgentContextID = agentContextID
	snap := t.snapshot()
	r.mu.Unlock()
	r.mirror(snap)
}

// Complete transitions a task to completed with the given result text and
// artifacts, then promotes the next queued task.
func (r *Registry) Complete(id, resultText string, artifacts []Artifact) error {
	return r.finish(id, func(t *Task) {
		t.State = StateCompleted
		t.ResultText = resultText
		t.Artifacts = append(t.Artifacts, artifacts...)
	})
}

// Fail transitions a task to failed with the given error detail and any
// partial artifacts collected before the failure, then promotes the next
// queued task.
func (r *Registry) Fail(id, detail string, partialArtifacts []Artifact) error {
	return r.finish(id, func(t *Task) {
		t.State = StateFailed
		t.ErrorDetail = detail
		t.Artifacts = append(t.Artifacts, partialArtifacts...)
	})
}

// finish applies a terminal-state mutation, removes the task from active,
// and promotes the next queued task outside the lock.
func (r *Registry) finish(id string, mutate func(*Task)) error {
	r.mu.Lock()
	t, ok := r.tasks[id]
	if !ok {
		r.mu.Unlock()
		return wardenerrors.ErrTaskNotFound
	}
	if t.State.IsTerminal() {
		r.mu.Unlock()
		return nil
	}
	mutate(t)
	t.UpdatedAt = time.Now().UTC()
	snap := t.snapshot()
	r.removeActiveLocked(id)
	promoted, cb := r.promoteNextLocked()
	r.mu.Unlock()
	r.mirror(snap)
	if cb != nil {
		cb(promoted)
	}
	return nil
}

// Cancel returns ErrNotCancelable if the task is already terminal. Otherwise it
// removes a queued task outright, or transitions an active/input-required
// task to canceled, then promotes the next queued task. Cancel is
// authoritative for the Registry regardless of whether the inner agent
// acknowledges the advisory cancel sentinel.
func (r *Registry) Cancel(id string) error {
	r.mu.Lock()
	t, ok := r.tasks[id]
	if !ok {
		r.mu.Unlock()
		return wardenerrors.ErrTaskNotFound
	}
	if t.State.IsTerminal() {
		r.mu.Unlock()
		return wardenerrors.ErrNotCancelable
	}
	wasQueued := r.removeQueuedLocked(id)
	t.State = StateCanceled
	t.UpdatedAt = time.Now().UTC()
	if !wasQueued {
		r.removeActiveLocked(id)
	}
	snap := t.snapshot()
	promoted, cb := r.promoteNextLocked()
	r.mu.Unlock()
	r.mirror(snap)
	if cb != nil {
		cb(promoted)
	}
	return nil
}

// SetInputRequired transitions a non-terminal task to input-required and
// appends reason to its history, used when PACE escalates to contingent.
func (r *Registry) SetInputRequired(id, reason string) error {
	r.mu.Lock()
	t, ok := r.tasks[id]
	if !ok {
		r.mu.Unlock()
		return wardenerrors.ErrTaskNotFound
	}
	if t.State.IsTerminal() {
		r.mu.Unlock()
		return nil
	}
	t.State = StateInputRequired
	t.History = append(t.History, HistoryEntry{Role: "agent", Text: reason, Timestamp: time.Now().UTC()})
	t.UpdatedAt = time.Now().UTC()
	snap := t.snapshot()
	r.mu.Unlock()
	r.mirror(snap)
	return nil
}

// Resume transitions an input-required task back to working, used for
// follow-up message/send calls.
func (r *Registry) Resume(id string) error {
	r.mu.Lock()
	t, ok := r.tasks[id]
	if !ok {
		r.mu.Unlock()
		return wardenerrors.ErrTaskNotFound
	}
	if t.State != StateInputRequired {
		r.mu.Unlock()
		return nil
	}
	t.State = StateWorking
	t.UpdatedAt = time.Now().UTC()
	snap := t.snapshot()
	r.mu.Unlock()
	r.mirror(snap)
	return nil
}

// ActiveCount returns the number of tasks currently dispatched, used by
// GET /health.
func (r *Registry) ActiveCount() int {
	r.mu.Lock()
	defer r.mu.Unlock()
	return len(r.active)
}

// removeActiveLocked removes id from the active list if present. Caller
// must hold the lock.
func (r *Registry) removeActiveLocked(id string) {
	for i, aid := range r.active {
		if aid == id {
			r.active = append(r.active[:i], r.active[i+1:]...)
			return
		}
	}
}

// removeQueuedLocked removes id from the queue if present, reporting
// whether it was found there. Caller must hold the lock.
func (r *Registry) removeQueuedLocked(id string) bool {
	for i, qid := range r.queue {
		if qid == id {
			r.queue = append(r.queue[:i], r.queue[i+1:]...)
			return true
		}
	}
	return false
}

// promoteNextLocked dequeues the head of the queue while capacity allows
// and transitions it to working, returning the promoted task ID and the
// registered callback to invoke outside the lock. A task promoted here
// observes state working before its executor callback runs, satisfying
// spec.md §4.2's ordering guarantee.
func (r *Registry) promoteNextLocked() (string, OnPromoted) {
	if len(r.queue) == 0 || len(r.active) >= r.maxConcurrent {
		return "", nil
	}
	id := r.queue[0]
	r.queue = r.queue[1:]
	r.active = append(r.active, id)
	if t, ok := r.tasks[id]; ok {
		t.State = StateWorking
		t.UpdatedAt = time.Now().UTC()
	}
	return id, r.onPromoted
}
