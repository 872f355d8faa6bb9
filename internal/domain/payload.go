package domain

// CompletedPayload is the payload of EventAgentCompleted: the finalized
// response of one agent run.
type CompletedPayload struct {
	Reply      string          `json:"reply"`
	Actions    []ActionCommand `json:"actions,omitempty"`
	Iterations int             `json:"iterations"`
	Model      string          `json:"model,omitempty"`
	Usage      Usage           `json:"usage"`
}

// ToolCallPayload is the payload of the tool.call.* bus events.
type ToolCallPayload struct {
	Tool    string `json:"tool"`
	Success bool   `json:"success"`
}

// ErrorPayload is the payload of EventAgentError.
type ErrorPayload struct {
	Error string    `json:"error"`
	Code  ErrorCode `json:"code"`
}
