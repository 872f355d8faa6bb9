package domain

import (
	"strings"
	"time"
)

// AgentRequest is a prepared chat request waiting for its streaming consumer.
type AgentRequest struct {
	ID        string    `json:"id"`
	Message   string    `json:"message"`
	Snapshot  string    `json:"snapshot,omitempty"`
	CreatedAt time.Time `json:"created_at"`
}

// Validate checks that the request carries a non-blank message.
func (r AgentRequest) Validate() error {
	if strings.TrimSpace(r.Message) == "" {
		return NewDomainError("AgentRequest.Validate", ErrInvalidInput, "message required")
	}
	return nil
}

// HasSnapshot reports whether the browser sent a DOM snapshot.
func (r AgentRequest) HasSnapshot() bool {
	return strings.TrimSpace(r.Snapshot) != ""
}
