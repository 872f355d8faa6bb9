package gateway

import "encoding/json"

// FrameType identifies the kind of frame sent to monitor clients.
type FrameType string

const (
	FrameTypeHello FrameType = "hello"
	FrameTypeEvent FrameType = "event"
)

// Frame is the envelope written to monitor WebSocket clients.
type Frame struct {
	Type    FrameType       `json:"type"`
	Client  string          `json:"client,omitempty"`  // hello only
	Payload json.RawMessage `json:"payload,omitempty"` // bus event
}
