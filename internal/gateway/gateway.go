// Package gateway implements the A2A Task Gateway (G): the HTTP surface
// that speaks JSON-RPC 2.0 for unary calls and Server-Sent Events for
// streaming calls, backed by the Task Registry (Q) and the Agent Bridge
// (B). It is grounded on the teacher's runtime/a2a.Server — task lifecycle
// delegated to a store, AgentCard served from static config — generalized
// with the admission queue, authentication schemes, and SALUTE-driven SSE
// translation spec.md §4.1 and §4.4 require.
package gateway

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"strings"
	"sync"
	"time"

	"github.com/wardenai/warden/internal/a2a"
	"github.com/wardenai/warden/internal/bridge"
	"github.com/wardenai/warden/internal/config"
	wardenerrors "github.com/wardenai/warden/internal/errors"
	"github.com/wardenai/warden/internal/registry"
	"github.com/wardenai/warden/internal/salute"
	"github.com/wardenai/warden/internal/telemetry"
	"github.com/wardenai/warden/internal/translator"
)

// Dispatcher is implemented by executor.Executor. Dispatch begins (or resumes)
// work on taskID; it must return promptly and carry on asynchronously, since
// the Gateway calls it both from the JSON-RPC handler goroutine and from the
// Registry's promotion callback.
type Dispatcher interface {
	Dispatch(ctx context.Context, taskID string)
}

// AgentCardInfo is the static, non-task metadata the Gateway renders into
// the Agent Card discovery document.
type AgentCardInfo struct {
	Name        string
	Description string
	URL         string
	Skills      []a2a.Skill
	BSTDomains  []string
}

// Server is the Gateway's HTTP handler. It owns no task state itself —
// that lives in the Registry — and performs no inner-agent I/O itself —
// that is the Bridge's job.
type Server struct {
	cfg        config.GatewayConfig
	registry   *registry.Registry
	bridge     *bridge.Bridge
	dispatcher Dispatcher
	cardInfo   AgentCardInfo
	logger     telemetry.Logger
	metrics    telemetry.Metrics

	mux *http.ServeMux

	cardMu      sync.Mutex
	cardCached  *a2a.AgentCard
	cardCachedAt time.Time
}

// New constructs a Gateway Server wired to reg, br, and dispatcher.
func New(cfg config.GatewayConfig, reg *registry.Registry, br *bridge.Bridge, dispatcher Dispatcher, info AgentCardInfo, logger telemetry.Logger, metrics telemetry.Metrics) *Server {
	if logger == nil {
		logger = telemetry.NewNoopLogger()
	}
	if metrics == nil {
		metrics = telemetry.NewNoopMetrics()
	}
	s := &Server{
		cfg:        cfg,
		registry:   reg,
		bridge:     br,
		dispatcher: dispatcher,
		cardInfo:   info,
		logger:     logger,
		metrics:    metrics,
	}
	reg.OnTaskPromoted(func(id string) {
		s.dispatcher.Dispatch(context.Background(), id)
	})
	s.mux = http.NewServeMux()
	s.mux.HandleFunc("/.well-known/agent.json", s.handleAgentCard)
	s.mux.HandleFunc("/.well-known/a2a/agent-card", s.handleAgentCard)
	s.mux.HandleFunc("/health", s.handleHealth)
	s.mux.HandleFunc("/", s.handleRPC)
	return s
}

// ServeHTTP implements http.Handler.
func (s *Server) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	s.mux.ServeHTTP(w, r)
}

func (s *Server) handleHealth(w http.ResponseWriter, r *http.Request) {
	w.Header().Set("Content-Type", "application/json")
	_ = json.NewEncoder(w).Encode(map[string]any{
		"status":      "ok",
		"activeTasks": s.registry.ActiveCount(),
	})
}

// handleAgentCard serves the Agent Card, rebuilt at most once every 30
// seconds per spec.md §4.1.
func (s *Server) handleAgentCard(w http.ResponseWriter, r *http.Request) {
	s.cardMu.Lock()
	if s.cardCached == nil || time.Since(s.cardCachedAt) > 30*time.Second {
		s.cardCached = s.buildAgentCard()
		s.cardCachedAt = time.Now()
	}
	card := s.cardCached
	s.cardMu.Unlock()

	w.Header().Set("Content-Type", "application/json")
	_ = json.NewEncoder(w).Encode(card)
}

func (s *Server) buildAgentCard() *a2a.AgentCard {
	schemes := map[string]a2a.SecurityScheme{}
	switch s.cfg.Authentication.Scheme {
	case "api-key":
		schemes["apiKey"] = a2a.SecurityScheme{Type: "apiKey", In: "header", Name: "X-API-KEY"}
	case "bearer":
		schemes["bearer"] = a2a.SecurityScheme{Type: "http", In: "header", Name: "Authorization"}
	}
	caps := map[string]any{
		"streaming": true,
	}
	if len(s.cardInfo.BSTDomains) > 0 {
		caps["bst_domains"] = s.cardInfo.BSTDomains
	}
	return &a2a.AgentCard{
		ProtocolVersion: "1.0",
		Name:            s.cardInfo.Name,
		Description:     s.cardInfo.Description,
		URL:             s.cardInfo.URL,
		Capabilities:    caps,
		Skills:          s.cardInfo.Skills,
		SecuritySchemes: schemes,
	}
}

// handleRPC authenticates and dispatches a single JSON-RPC request to its
// method handler, or upgrades to SSE for message/stream.
func (s *Server) handleRPC(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodPost {
		http.Error(w, "method not allowed", http.StatusMethodNotAllowed)
		return
	}
	if err := s.authenticate(r); err != nil {
		s.writeError(w, nil, a2a.NewError(a2a.CodeInvalidRequest, err.Error()))
		return
	}

	var req a2a.Request
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		s.writeError(w, nil, a2a.NewError(a2a.CodeParseError, "invalid JSON-RPC request"))
		return
	}

	switch normalizeMethod(req.Method) {
	case "message/send":
		s.handleMessageSend(w, req)
	case "message/stream":
		s.handleMessageStream(w, r, req)
	case "tasks/get":
		s.handleTasksGet(w, req)
	case "tasks/cancel":
		s.handleTasksCancel(w, req)
	default:
		s.writeError(w, req.ID, a2a.NewError(a2a.CodeMethodNotFound, fmt.Sprintf("unknown method %q", req.Method)))
	}
}

// normalizeMethod accepts both the canonical lower-case A2A method names and
// PascalCase aliases (MessageSend, MessageStream, TasksGet, TasksCancel),
// per spec.md §4.1.
func normalizeMethod(method string) string {
	switch method {
	case "MessageSend":
		return "message/send"
	case "MessageStream":
		return "message/stream"
	case "TasksGet":
		return "tasks/get"
	case "TasksCancel":
		return "tasks/cancel"
	default:
		return strings.ToLower(method)
	}
}

func (s *Server) authenticate(r *http.Request) error {
	switch s.cfg.Authentication.Scheme {
	case "", "none":
		return nil
	case "api-key":
		if r.Header.Get("X-API-KEY") != s.cfg.Authentication.APIKey {
			return wardenerrors.ErrUnauthenticated
		}
	case "bearer":
		want := "Bearer " + s.cfg.Authentication.APIKey
		if r.Header.Get("Authorization") != want {
			return wardenerrors.ErrUnauthenticated
		}
	}
	return nil
}

type messageSendParams struct {
	Message   a2a.TaskMessage `json:"message"`
	ContextID string          `json:"contextId,omitempty"`
}

func extractText(msg a2a.TaskMessage) string {
	var b strings.Builder
	for _, p := range msg.Parts {
		if p.Type == "text" {
			if b.Len() > 0 {
				b.WriteString("\n")
			}
			b.WriteString(p.Text)
		}
	}
	return b.String()
}

// admitOrResume creates a new task, or — when params.ContextID names an
// existing input-required task — resumes it as a follow-up, per spec.md
// §4.2's "create vs. follow-up" distinction.
func (s *Server) admitOrResume(params messageSendParams) (registry.Snapshot, bool, error) {
	text := extractText(params.Message)
	if params.ContextID != "" {
		if snap, ok := s.registry.GetByContextID(params.ContextID); ok {
			if snap.State == registry.StateInputRequired {
				s.registry.AppendHistory(snap.ID, "user", text)
				if err := s.registry.Resume(snap.ID); err != nil {
					return registry.Snapshot{}, false, err
				}
				resumed, _ := s.registry.Get(snap.ID)
				return resumed, true, nil
			}
			return snap, true, nil
		}
	}
	snap, err := s.registry.Create(text)
	return snap, false, err
}

func (s *Server) handleMessageSend(w http.ResponseWriter, req a2a.Request) {
	var params messageSendParams
	if err := json.Unmarshal(req.Params, &params); err != nil {
		s.writeError(w, req.ID, a2a.NewError(a2a.CodeInvalidParams, "invalid message/send params"))
		return
	}

	snap, resumed, err := s.admitOrResume(params)
	if err != nil {
		s.writeError(w, req.ID, translateAdmissionError(err))
		return
	}
	s.dispatcher.Dispatch(context.Background(), snap.ID)
	_ = resumed

	s.writeResult(w, req.ID, toWireSnapshot(snap))
}

func (s *Server) handleTasksGet(w http.ResponseWriter, req a2a.Request) {
	var params struct {
		ID string `json:"id"`
	}
	if err := json.Unmarshal(req.Params, &params); err != nil {
		s.writeError(w, req.ID, a2a.NewError(a2a.CodeInvalidParams, "invalid tasks/get params"))
		return
	}
	snap, ok := s.registry.Get(params.ID)
	if !ok {
		s.writeError(w, req.ID, a2a.NewError(a2a.CodeTaskNotFound, "task not found"))
		return
	}
	s.writeResult(w, req.ID, toWireSnapshot(snap))
}

func (s *Server) handleTasksCancel(w http.ResponseWriter, req a2a.Request) {
	var params struct {
		ID string `json:"id"`
	}
	if err := json.Unmarshal(req.Params, &params); err != nil {
		s.writeError(w, req.ID, a2a.NewError(a2a.CodeInvalidParams, "invalid tasks/cancel params"))
		return
	}
	snap, ok := s.registry.Get(params.ID)
	if !ok {
		s.writeError(w, req.ID, a2a.NewError(a2a.CodeTaskNotFound, "task not found"))
		return
	}
	if snap.AgentContextID != "" {
		s.bridge.Cancel(context.Background(), snap.AgentContextID)
	}
	if err := s.registry.Cancel(params.ID); err != nil {
		s.writeError(w, req.ID, translateAdmissionError(err))
		return
	}
	snap, _ = s.registry.Get(params.ID)
	s.writeResult(w, req.ID, toWireSnapshot(snap))
}

// handleMessageStream upgrades the connection to SSE and polls the Registry
// for the task's status until it reaches a terminal state, translating each
// change via the translator package, per spec.md §4.4.
func (s *Server) handleMessageStream(w http.ResponseWriter, r *http.Request, req a2a.Request) {
	var params messageSendParams
	if err := json.Unmarshal(req.Params, &params); err != nil {
		s.writeError(w, req.ID, a2a.NewError(a2a.CodeInvalidParams, "invalid message/stream params"))
		return
	}
	snap, _, err := s.admitOrResume(params)
	if err != nil {
		s.writeError(w, req.ID, translateAdmissionError(err))
		return
	}
	s.dispatcher.Dispatch(r.Context(), snap.ID)

	sse, err := a2a.NewSSEWriter(w)
	if err != nil {
		s.writeError(w, req.ID, a2a.NewError(a2a.CodeInternalError, "streaming unsupported"))
		return
	}

	_ = sse.Send("task", toWireSnapshot(snap))

	ticker := time.NewTicker(s.cfg.PollInterval())
	defer ticker.Stop()

	lastState := snap.State
	for {
		select {
		case <-r.Context().Done():
			return
		case <-ticker.C:
			cur, ok := s.registry.Get(snap.ID)
			if !ok {
				return
			}
			if cur.State != lastState || cur.LastTelemetry != nil {
				msg := ""
				if cur.LastTelemetry != nil {
					msg = translator.StatusMessage(telemetryToReport(cur))
				}
				_ = sse.Send("status", map[string]any{
					"id":      snap.ID,
					"state":   cur.State,
					"message": msg,
					"final":   cur.State.IsTerminal(),
				})
				lastState = cur.State
			}
			if cur.State.IsTerminal() {
				_ = sse.Send("task", toWireSnapshot(cur))
				return
			}
		}
	}
}

// telemetryToReport adapts a task's last-known Registry telemetry into the
// minimal salute.Report shape translator.StatusMessage reads.
func telemetryToReport(snap registry.Snapshot) salute.Report {
	var r salute.Report
	if snap.LastTelemetry != nil {
		t := snap.LastTelemetry
		r.Status.Progress = t.Progress
		r.Status.PACELevel = t.PACELevel
		r.Status.Health = t.Health
		r.Activity.CurrentTask = t.CurrentTask
		r.Activity.Step = t.Step
		r.Activity.TotalSteps = t.TotalSteps
	}
	return r
}

func translateAdmissionError(err error) *a2a.Error {
	switch {
	case errors.Is(err, wardenerrors.ErrQueueFull):
		return a2a.NewError(a2a.CodeQueueFull, err.Error())
	case errors.Is(err, wardenerrors.ErrTaskNotFound):
		return a2a.NewError(a2a.CodeTaskNotFound, err.Error())
	case errors.Is(err, wardenerrors.ErrNotCancelable):
		return a2a.NewError(a2a.CodeNotCancelable, err.Error())
	default:
		return a2a.NewError(a2a.CodeInternalError, err.Error())
	}
}

func (s *Server) writeResult(w http.ResponseWriter, id json.RawMessage, result any) {
	w.Header().Set("Content-Type", "application/json")
	_ = json.NewEncoder(w).Encode(a2a.Response{JSONRPC: "2.0", ID: id, Result: result})
}

func (s *Server) writeError(w http.ResponseWriter, id json.RawMessage, rpcErr *a2a.Error) {
	w.Header().Set("Content-Type", "application/json")
	_ = json.NewEncoder(w).Encode(a2a.Response{JSONRPC: "2.0", ID: id, Error: rpcErr})
}

func toWireSnapshot(snap registry.Snapshot) a2a.TaskSnapshot {
	status := a2a.TaskStatus{
		State:     string(snap.State),
		Timestamp: snap.UpdatedAt.Format(time.RFC3339),
	}
	if snap.ErrorDetail != "" {
		status.Message = &a2a.TaskMessage{Role: "system", Parts: []a2a.MessagePart{{Type: "text", Text: snap.ErrorDetail}}}
	} else if snap.ResultText != "" {
		status.Message = &a2a.TaskMessage{Role: "agent", Parts: []a2a.MessagePart{{Type: "text", Text: snap.ResultText}}}
	}

	history := make([]a2a.TaskMessage, 0, len(snap.History))
	for _, h := range snap.History {
		history = append(history, a2a.TaskMessage{Role: h.Role, Parts: []a2a.MessagePart{{Type: "text", Text: h.Text}}})
	}

	artifacts := make([]a2a.Artifact, 0, len(snap.Artifacts))
	for _, art := range snap.Artifacts {
		parts := make([]a2a.MessagePart, 0, len(art.Parts))
		for _, p := range art.Parts {
			parts = append(parts, a2a.MessagePart{Type: p.Type, Text: p.Text, Data: p.Data, MIMEType: art.MIMEType})
		}
		var size *int64
		if art.Size > 0 {
			size = &art.Size
		}
		artifacts = append(artifacts, a2a.Artifact{
			Name:  art.Name,
			Parts: parts,
			Metadata: a2a.ArtifactMetadata{
				MIMEType: art.MIMEType,
				Path:     art.Path,
				Size:     size,
				Encoding: art.Encoding,
			},
		})
	}

	return a2a.TaskSnapshot{
		ID:        snap.ID,
		ContextID: snap.ContextID,
		Status:    status,
		Artifacts: artifacts,
		History:   history,
	}
}
