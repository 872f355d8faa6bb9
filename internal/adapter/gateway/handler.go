package gateway

import (
	"context"
	"encoding/json"
	"errors"
	"io"
	"log/slog"
	"net/http"
	"time"

	"uiagent/internal/domain"
)

// maxBodyBytes bounds request bodies; DOM snapshots can be large.
const maxBodyBytes = 4 << 20

// AgentRunner streams the events of one agent run.
type AgentRunner interface {
	Run(ctx context.Context, req domain.AgentRequest) <-chan domain.AgentEvent
}

// LegacyAgent answers a request without streaming.
type LegacyAgent interface {
	Respond(ctx context.Context, req domain.AgentRequest) (domain.AgentResponse, error)
}

// SessionStore holds prepared requests until their stream is opened.
type SessionStore interface {
	Create(ctx context.Context, req domain.AgentRequest) (domain.AgentRequest, error)
	Take(id string) (domain.AgentRequest, error)
	Delete(ctx context.Context, id string) bool
	Len() int
}

// ToolCatalog lists registered tools.
type ToolCatalog interface {
	FunctionSpecs() []domain.FunctionTool
	Len() int
}

// HandlerDeps holds what the HTTP handlers need. Agent is nil when the
// configured provider cannot stream; only the legacy and status routes are
// mounted then.
type HandlerDeps struct {
	Agent    AgentRunner
	Legacy   LegacyAgent
	Sessions SessionStore
	Tools    ToolCatalog
	Logger   *slog.Logger
	Pacing   time.Duration

	ProviderName string
	// ProviderHealthy is probed by /healthz; nil reports healthy.
	ProviderHealthy func(ctx context.Context) bool
}

type chatRequest struct {
	ID       string `json:"id,omitempty"`
	Message  string `json:"message"`
	Snapshot string `json:"snapshot,omitempty"`
}

type chatResponse struct {
	SessionID string `json:"sessionId"`
}

// legacyResponse is the single frame returned by POST /ai/agent.
type legacyResponse struct {
	ReplyText    string                 `json:"ReplyText"`
	Type         string                 `json:"Type"`
	Actions      []domain.ActionCommand `json:"Actions"`
	ResponseDone bool                   `json:"ResponseDone"`
}

// chatHandler stores a request and returns the id its stream is opened with.
func chatHandler(deps HandlerDeps) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		body, err := decodeChatRequest(w, r)
		if err != nil {
			writeError(w, err)
			return
		}

		req, err := deps.Sessions.Create(r.Context(), domain.AgentRequest{
			ID:       body.ID,
			Message:  body.Message,
			Snapshot: body.Snapshot,
		})
		if err != nil {
			writeError(w, err)
			return
		}
		writeJSON(w, http.StatusCreated, chatResponse{SessionID: req.ID})
	}
}

// streamHandler runs the agent for a stored request and relays its events as
// SSE frames. The session is removed on every exit path.
func streamHandler(deps HandlerDeps) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		id := r.URL.Query().Get("sessionId")
		req, err := deps.Sessions.Take(id)
		if err != nil {
			writeError(w, err)
			return
		}
		defer deps.Sessions.Delete(context.WithoutCancel(r.Context()), id)

		sw, err := newSSEWriter(w, deps.Pacing)
		if err != nil {
			deps.Logger.Error("stream unavailable", "session_id", id, "error", err)
			writeError(w, err)
			return
		}

		ctx, cancel := context.WithCancel(r.Context())
		defer cancel()

		events := deps.Agent.Run(ctx, req)
		frames, finished := 0, false
		for ev := range events {
			if _, done := ev.(domain.DoneEvent); done {
				if err := sw.WriteDone(); err == nil {
					finished = true
				}
				continue
			}
			if err := sw.WriteEvent(ctx, ev); err != nil {
				deps.Logger.Info("stream write stopped", "session_id", id, "error", err)
				cancel()
				for range events {
				}
				break
			}
			frames++
		}
		deps.Logger.Info("stream closed", "session_id", id, "frames", frames, "completed", finished)
	}
}

// legacyHandler runs a request to completion and returns one JSON object.
func legacyHandler(deps HandlerDeps) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		body, err := decodeChatRequest(w, r)
		if err != nil {
			writeError(w, err)
			return
		}

		resp, err := deps.Legacy.Respond(r.Context(), domain.AgentRequest{
			ID:       body.ID,
			Message:  body.Message,
			Snapshot: body.Snapshot,
		})
		if err != nil {
			writeError(w, err)
			return
		}

		out := legacyResponse{
			ReplyText:    resp.Reply,
			Type:         domain.TextNormal.String(),
			Actions:      resp.Actions,
			ResponseDone: true,
		}
		if len(resp.Actions) > 0 {
			out.Type = domain.ActionPlanEvent{}.Kind()
		}
		if out.Actions == nil {
			out.Actions = []domain.ActionCommand{}
		}
		writeJSON(w, http.StatusOK, out)
	}
}

func toolsHandler(deps HandlerDeps) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		specs := deps.Tools.FunctionSpecs()
		if specs == nil {
			specs = []domain.FunctionTool{}
		}
		writeJSON(w, http.StatusOK, specs)
	}
}

func decodeChatRequest(w http.ResponseWriter, r *http.Request) (chatRequest, error) {
	var body chatRequest
	dec := json.NewDecoder(http.MaxBytesReader(w, r.Body, maxBodyBytes))
	if err := dec.Decode(&body); err != nil {
		if errors.Is(err, io.EOF) {
			return body, domain.NewDomainError("gateway.decode", domain.ErrInvalidInput, "empty body")
		}
		return body, domain.NewDomainError("gateway.decode", domain.ErrInvalidInput, "malformed JSON: "+err.Error())
	}
	return body, nil
}

// statusFor maps an error onto an HTTP status.
func statusFor(err error) int {
	switch {
	case errors.Is(err, domain.ErrInvalidInput), errors.Is(err, domain.ErrSessionNotFound):
		return http.StatusBadRequest
	case errors.Is(err, domain.ErrDuplicate):
		return http.StatusConflict
	default:
		return http.StatusInternalServerError
	}
}

func writeError(w http.ResponseWriter, err error) {
	writeJSON(w, statusFor(err), map[string]string{"error": err.Error()})
}

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(v)
}
