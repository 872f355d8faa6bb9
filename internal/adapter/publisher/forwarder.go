package publisher

import (
	"context"
	"encoding/json"
	"log/slog"
	"time"
	"unicode"
	"unicode/utf8"

	"uiagent/internal/domain"
)

const publishTimeout = 5 * time.Second

// Forwarder subscribes to the event bus and republishes agent output on the
// configured channel with camelCase keys. Publish failures are logged only.
type Forwarder struct {
	pub      Publisher
	channel  string
	perEvent bool
	logger   *slog.Logger
	unsubs   []func()
}

// NewForwarder creates a forwarder. With perEvent set every agent event is
// published as it happens; otherwise only finalized responses are.
func NewForwarder(pub Publisher, channel string, perEvent bool, logger *slog.Logger) *Forwarder {
	return &Forwarder{pub: pub, channel: channel, perEvent: perEvent, logger: logger}
}

// Attach subscribes the forwarder to bus.
func (f *Forwarder) Attach(bus domain.EventBus) {
	f.unsubs = append(f.unsubs, bus.Subscribe(domain.EventAgentCompleted, f.onCompleted))
	if f.perEvent {
		f.unsubs = append(f.unsubs, bus.Subscribe(domain.EventAgentEvent, f.onAgentEvent))
	}
}

// Close detaches from the bus, waiting for queued deliveries, then closes the
// publisher.
func (f *Forwarder) Close() error {
	for _, unsub := range f.unsubs {
		unsub()
	}
	f.unsubs = nil
	return f.pub.Close()
}

type publishedAction struct {
	Type       domain.ActionType `json:"type"`
	Selector   string            `json:"selector,omitempty"`
	Value      string            `json:"value,omitempty"`
	DurationMs int               `json:"durationMs"`
}

type publishedUsage struct {
	PromptTokens     int `json:"promptTokens"`
	CompletionTokens int `json:"completionTokens"`
	TotalTokens      int `json:"totalTokens"`
}

type publishedResponse struct {
	SessionID    string            `json:"sessionId"`
	Type         string            `json:"type"`
	ReplyText    string            `json:"replyText"`
	Actions      []publishedAction `json:"actions"`
	Iterations   int               `json:"iterations"`
	Model        string            `json:"model,omitempty"`
	Usage        publishedUsage    `json:"usage"`
	ResponseDone bool              `json:"responseDone"`
}

func (f *Forwarder) onCompleted(ctx context.Context, e domain.Event) {
	var p domain.CompletedPayload
	if err := json.Unmarshal(e.Payload, &p); err != nil {
		f.logger.Warn("unreadable completed payload", "session_id", e.SessionID, "error", err)
		return
	}

	msg := publishedResponse{
		SessionID:  e.SessionID,
		Type:       "NormalResponse",
		ReplyText:  p.Reply,
		Actions:    make([]publishedAction, 0, len(p.Actions)),
		Iterations: p.Iterations,
		Model:      p.Model,
		Usage: publishedUsage{
			PromptTokens:     p.Usage.PromptTokens,
			CompletionTokens: p.Usage.CompletionTokens,
			TotalTokens:      p.Usage.TotalTokens,
		},
		ResponseDone: true,
	}
	if len(p.Actions) > 0 {
		msg.Type = "ActionPlan"
	}
	for _, a := range p.Actions {
		msg.Actions = append(msg.Actions, publishedAction(a))
	}

	data, err := json.Marshal(msg)
	if err != nil {
		f.logger.Warn("encode completed payload", "session_id", e.SessionID, "error", err)
		return
	}
	f.publish(ctx, e.SessionID, data)
}

func (f *Forwarder) onAgentEvent(ctx context.Context, e domain.Event) {
	var fields map[string]json.RawMessage
	if err := json.Unmarshal(e.Payload, &fields); err != nil {
		f.logger.Warn("unreadable agent event", "session_id", e.SessionID, "error", err)
		return
	}

	out := make(map[string]json.RawMessage, len(fields)+1)
	for k, v := range fields {
		key := lowerFirst(k)
		if key == "actions" {
			v = camelizeActions(v)
		}
		out[key] = v
	}
	sid, _ := json.Marshal(e.SessionID)
	out["sessionId"] = sid

	data, err := json.Marshal(out)
	if err != nil {
		f.logger.Warn("encode agent event", "session_id", e.SessionID, "error", err)
		return
	}
	f.publish(ctx, e.SessionID, data)
}

func (f *Forwarder) publish(ctx context.Context, sessionID string, data json.RawMessage) {
	ctx, cancel := context.WithTimeout(ctx, publishTimeout)
	defer cancel()
	if err := f.pub.Publish(ctx, f.channel, data); err != nil {
		f.logger.Warn("publish failed", "session_id", sessionID, "channel", f.channel, "error", err)
	}
}

// camelizeActions rewrites the keys of each action object; anything that is
// not an array of objects is returned unchanged.
func camelizeActions(raw json.RawMessage) json.RawMessage {
	var items []map[string]json.RawMessage
	if err := json.Unmarshal(raw, &items); err != nil {
		return raw
	}
	for i, item := range items {
		renamed := make(map[string]json.RawMessage, len(item))
		for k, v := range item {
			renamed[lowerFirst(k)] = v
		}
		items[i] = renamed
	}
	out, err := json.Marshal(items)
	if err != nil {
		return raw
	}
	return out
}

func lowerFirst(s string) string {
	r, size := utf8.DecodeRuneInString(s)
	if r == utf8.RuneError {
		return s
	}
	return string(unicode.ToLower(r)) + s[size:]
}
