// Package executor implements the gateway.Dispatcher the Gateway Server
// calls to begin or resume work on an admitted task. It is the concrete
// wiring of the Agent Bridge (B) and Translator (T) spec.md §2's data-flow
// line describes: "B (dispatch to inner agent) → inner agent runs → ...
// K writes SALUTE to disk → B polls SALUTE → T converts → G streams SSE
// → on terminal state, B collects artifacts → Q records result." The Org
// Kernel (K) itself runs inside the inner agent's own process (out of
// scope per spec.md §1) — this package only submits the request and polls
// the telemetry K is assumed to write, translating it into Registry state.
package executor

import (
	"context"
	"sync"
	"time"

	"github.com/wardenai/warden/internal/bridge"
	"github.com/wardenai/warden/internal/registry"
	"github.com/wardenai/warden/internal/salute"
	"github.com/wardenai/warden/internal/translator"
)

// Executor submits admitted tasks to the inner agent via the Bridge,
// concurrently polling SALUTE telemetry until the Bridge call returns or
// the telemetry itself signals an early terminal/escalated state.
type Executor struct {
	reg          *registry.Registry
	br           *bridge.Bridge
	pollInterval time.Duration

	mu       sync.Mutex
	inFlight map[string]bool
	files    map[string][]string // taskID -> last-seen files_modified, for artifact collection
}

// New builds an Executor dispatching through br against reg, polling
// telemetry every pollInterval.
func New(reg *registry.Registry, br *bridge.Bridge, pollInterval time.Duration) *Executor {
	if pollInterval <= 0 {
		pollInterval = 2 * time.Second
	}
	return &Executor{
		reg:          reg,
		br:           br,
		pollInterval: pollInterval,
		inFlight:     make(map[string]bool),
		files:        make(map[string][]string),
	}
}

// Dispatch satisfies gateway.Dispatcher. It returns promptly; the actual
// submit-and-poll work runs in a background goroutine. A task already
// in flight is not re-dispatched.
func (e *Executor) Dispatch(ctx context.Context, taskID string) {
	if !e.markInFlight(taskID) {
		return
	}
	go e.run(ctx, taskID)
}

func (e *Executor) markInFlight(taskID string) bool {
	e.mu.Lock()
	defer e.mu.Unlock()
	if e.inFlight[taskID] {
		return false
	}
	e.inFlight[taskID] = true
	return true
}

func (e *Executor) clearInFlight(taskID string) {
	e.mu.Lock()
	delete(e.inFlight, taskID)
	delete(e.files, taskID)
	e.mu.Unlock()
}

func (e *Executor) run(ctx context.Context, taskID string) {
	defer e.clearInFlight(taskID)

	snap, ok := e.reg.Get(taskID)
	if !ok || snap.State.IsTerminal() {
		return
	}
	text := latestUserText(snap)

	pollCtx, stopPolling := context.WithCancel(ctx)
	defer stopPolling()
	go e.pollTelemetry(pollCtx, taskID)

	var reply string
	var err error
	if snap.AgentContextID != "" {
		reply, err = e.br.SubmitFollowup(ctx, snap.AgentContextID, text)
	} else {
		var agentContextID string
		reply, agentContextID, err = e.br.Submit(ctx, text)
		if err == nil && agentContextID != "" {
			e.reg.SetAgentContextID(taskID, agentContextID)
		}
	}

	// The telemetry poller may already have moved the task to
	// input-required or failed while the Bridge call was in flight; in
	// that case it owns the terminal/escalated transition and we must not
	// overwrite it.
	cur, ok := e.reg.Get(taskID)
	if !ok || cur.State.IsTerminal() || cur.State == registry.StateInputRequired {
		return
	}

	if err != nil {
		e.reg.AppendHistory(taskID, "agent", err.Error())
		_ = e.reg.Fail(taskID, err.Error(), e.collectArtifacts(taskID))
		return
	}

	e.reg.AppendHistory(taskID, "agent", reply)
	_ = e.reg.Complete(taskID, reply, e.collectArtifacts(taskID))
}

func (e *Executor) collectArtifacts(taskID string) []registry.Artifact {
	e.mu.Lock()
	files := e.files[taskID]
	e.mu.Unlock()
	if len(files) == 0 {
		return nil
	}
	return translator.CollectArtifacts(files)
}

// pollTelemetry reads the latest SALUTE report on every tick (deduping by
// timestamp per spec.md §4.1's message/stream contract) and translates it
// into Registry state, stopping early if the report indicates the task has
// escalated to contingent or emergency.
func (e *Executor) pollTelemetry(ctx context.Context, taskID string) {
	ticker := time.NewTicker(e.pollInterval)
	defer ticker.Stop()

	var lastSeen time.Time
	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			snap, ok := e.reg.Get(taskID)
			if !ok || snap.State.IsTerminal() {
				return
			}
			report, err := e.br.ReadLatestTelemetry("")
			if err != nil || report == nil {
				continue
			}
			if !report.Time.Timestamp.After(lastSeen) {
				continue
			}
			lastSeen = report.Time.Timestamp

			e.mu.Lock()
			e.files[taskID] = report.Location.FilesModified
			e.mu.Unlock()

			e.reg.UpdateTelemetry(taskID, telemetryFromReport(*report), report.Status.PACELevel)

			switch translator.PACEToState(report.Status.PACELevel, report.Status.State) {
			case registry.StateInputRequired:
				msg := translator.ContingentMessage(*report, nil)
				e.reg.AppendHistory(taskID, "agent", msg)
				_ = e.reg.SetInputRequired(taskID, msg)
				return
			case registry.StateFailed:
				detail := translator.FailureReport(*report, "")
				_ = e.reg.Fail(taskID, detail, e.collectArtifacts(taskID))
				return
			}
		}
	}
}

func telemetryFromReport(r salute.Report) registry.Telemetry {
	return registry.Telemetry{
		State:       r.Status.State,
		Progress:    r.Status.Progress,
		PACELevel:   r.Status.PACELevel,
		Health:      r.Status.Health,
		CurrentTask: r.Activity.CurrentTask,
		Step:        r.Activity.Step,
		TotalSteps:  r.Activity.TotalSteps,
	}
}

func latestUserText(snap registry.Snapshot) string {
	for i := len(snap.History) - 1; i >= 0; i-- {
		if snap.History[i].Role == "user" {
			return snap.History[i].Text
		}
	}
	return snap.MessageText
}
