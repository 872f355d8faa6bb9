package usecase

import (
	"context"
	"encoding/json"
	"errors"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"uiagent/internal/domain"
)

func TestLegacyRespond(t *testing.T) {
	var got domain.ChatRequest
	llm := &scriptedProvider{chatFunc: func(_ context.Context, req domain.ChatRequest) (*domain.ChatResponse, error) {
		got = req
		return &domain.ChatResponse{
			Model: "falcon",
			Message: domain.Message{
				Role:    domain.RoleAssistant,
				Content: `Here you go: {"reply":"Saving.","actions":[{"type":"click","selector":"#save"}]}`,
			},
			Usage: domain.Usage{PromptTokens: 10, CompletionTokens: 5, TotalTokens: 15},
		}, nil
	}}
	bus := &recordingBus{}
	pb := NewPromptBuilder("falcon", 0.3, 1000, false)
	l := NewLegacyResponder(llm, pb, NewActionParser(newTestLogger()), bus, newTestLogger(), 0)

	resp, err := l.Respond(context.Background(), domain.AgentRequest{Message: "save the form"})
	require.NoError(t, err)
	assert.Equal(t, "Saving.", resp.Reply)
	require.Len(t, resp.Actions, 1)
	assert.Equal(t, domain.ActionClick, resp.Actions[0].Type)
	assert.Empty(t, got.Tools)
	assert.Equal(t, "save the form", got.Messages[1].Content)

	completed := bus.ofType(domain.EventAgentCompleted)
	require.Len(t, completed, 1)
	assert.NotEmpty(t, completed[0].SessionID)
	var payload domain.CompletedPayload
	require.NoError(t, json.Unmarshal(completed[0].Payload, &payload))
	assert.Equal(t, 15, payload.Usage.TotalTokens)
	assert.Equal(t, "falcon", payload.Model)
}

func TestLegacyRespondErrors(t *testing.T) {
	llm := &scriptedProvider{chatFunc: func(context.Context, domain.ChatRequest) (*domain.ChatResponse, error) {
		return nil, domain.ErrProviderError
	}}
	bus := &recordingBus{}
	l := NewLegacyResponder(llm, NewPromptBuilder("m", 0, 0, false), NewActionParser(newTestLogger()), bus, newTestLogger(), 0)

	_, err := l.Respond(context.Background(), domain.AgentRequest{Message: ""})
	assert.ErrorIs(t, err, domain.ErrInvalidInput)

	_, err = l.Respond(context.Background(), domain.AgentRequest{Message: "x"})
	assert.True(t, errors.Is(err, domain.ErrProviderError))
	assert.Len(t, bus.ofType(domain.EventAgentError), 1)
}
