package handlers

import (
	"context"
	"errors"
	"fmt"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/avvvet/ledgerbuddy/internal/ledger"
	"github.com/avvvet/ledgerbuddy/internal/llm"
	"github.com/avvvet/ledgerbuddy/internal/memory"
	"github.com/avvvet/ledgerbuddy/internal/models"
	"github.com/avvvet/ledgerbuddy/internal/prompts"
)

type mockLLM struct {
	content  string
	err      error
	requests []*llm.LLMRequest
}

func (m *mockLLM) Complete(_ context.Context, req *llm.LLMRequest) (*llm.LLMResponse, error) {
	m.requests = append(m.requests, req)
	if m.err != nil {
		return nil, m.err
	}
	return &llm.LLMResponse{ID: "resp-1", Content: m.content}, nil
}

type stubCatalogue struct {
	err error
}

func (stubCatalogue) Partitions() []string { return []string{"variable_expense", "income"} }

func (c stubCatalogue) Categories(context.Context) ([]ledger.Category, error) {
	if c.err != nil {
		return nil, c.err
	}
	return []ledger.Category{
		{Label: "🍜 Ăn uống", Group: "variable_expense", Active: true},
		{Label: "🎮 Giải trí", Group: "variable_expense", Active: false},
	}, nil
}

func newTestHandler(provider llm.LLMProvider, actions ActionHandler, cat Catalogue) *IntentHandler {
	h := NewIntentHandler(provider, newTestDispatcher(actions), cat, nil, nil)
	h.now = func() time.Time { return testNow }
	return h
}

func TestProcessMessage(t *testing.T) {
	provider := &mockLLM{content: "```json\n{\"intents\": [{\"type\":\"get_report\",\"month\":\"2024-03\"}]}\n```"}
	actions := newRecordingActions()
	h := newTestHandler(provider, actions, stubCatalogue{})

	out, err := h.ProcessMessage(context.Background(), &models.InboundMessage{
		ChatID: "chat-1", Text: "báo cáo tháng này", ReplyText: "✅ Đã ghi ...",
	})
	require.NoError(t, err)
	assert.True(t, out.Success)
	assert.Equal(t, "chat-1", out.ChatID)
	assert.Equal(t, "done get_report", out.Text)
	assert.Nil(t, out.ErrorCode)

	require.Len(t, provider.requests, 1)
	req := provider.requests[0]
	assert.True(t, req.JSONMode)
	prompt := req.Messages[0].Content
	assert.Contains(t, prompt, "2024-03-15")
	assert.Contains(t, prompt, "🍜 Ăn uống")
	assert.NotContains(t, prompt, "Giải trí", "inactive categories are not offered")
	assert.Contains(t, prompt, "✅ Đã ghi ...")

	require.Len(t, actions.ran, 1)
	assert.Equal(t, "chat-1", actions.session.ConversationID, "conversation defaults to the chat")
}

func TestProcessMessage_BatchFailure(t *testing.T) {
	provider := &mockLLM{content: `{"intents": [{"type":"get_budget"},{"type":"mystery"}]}`}
	h := newTestHandler(provider, newRecordingActions(), stubCatalogue{})

	out, err := h.ProcessMessage(context.Background(), &models.InboundMessage{ChatID: "chat-1", Text: "x"})
	require.NoError(t, err)
	assert.False(t, out.Success)
	require.NotNil(t, out.ErrorCode)
	assert.Equal(t, models.ErrorActionFailed, *out.ErrorCode)
	assert.Contains(t, out.Text, "done get_budget")
	assert.Contains(t, out.Text, fmt.Sprintf(prompts.ReconfirmTemplate, 2))
}

func TestProcessMessage_Errors(t *testing.T) {
	tests := []struct {
		name     string
		msg      *models.InboundMessage
		provider *mockLLM
		cat      stubCatalogue
		code     string
		text     string
	}{
		{
			name:     "missing text",
			msg:      &models.InboundMessage{ChatID: "chat-1", Text: "  "},
			provider: &mockLLM{},
			code:     models.ErrorInvalidRequest,
			text:     prompts.ApologyMessage,
		},
		{
			name:     "llm failure",
			msg:      &models.InboundMessage{ChatID: "chat-1", Text: "x"},
			provider: &mockLLM{err: errors.New("502 bad gateway")},
			code:     models.ErrorLLMFailed,
			text:     prompts.ApologyMessage,
		},
		{
			name:     "llm timeout",
			msg:      &models.InboundMessage{ChatID: "chat-1", Text: "x"},
			provider: &mockLLM{err: fmt.Errorf("llm call failed: %w", context.DeadlineExceeded)},
			code:     models.ErrorLLMTimeout,
			text:     prompts.ApologyMessage,
		},
		{
			name:     "unparseable answer",
			msg:      &models.InboundMessage{ChatID: "chat-1", Text: "x"},
			provider: &mockLLM{content: "sorry, no json"},
			code:     models.ErrorParseError,
			text:     prompts.FallbackMessage,
		},
		{
			name:     "catalogue unavailable",
			msg:      &models.InboundMessage{ChatID: "chat-1", Text: "x"},
			provider: &mockLLM{},
			cat:      stubCatalogue{err: errors.New("disk I/O error")},
			code:     models.ErrorActionFailed,
			text:     prompts.ApologyMessage,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			h := newTestHandler(tt.provider, newRecordingActions(), tt.cat)
			out, err := h.ProcessMessage(context.Background(), tt.msg)
			require.NoError(t, err)
			assert.False(t, out.Success)
			require.NotNil(t, out.ErrorCode)
			assert.Equal(t, tt.code, *out.ErrorCode)
			assert.Equal(t, tt.text, out.Text)
		})
	}
}

func TestProcessMessage_NoIntents(t *testing.T) {
	h := newTestHandler(&mockLLM{content: `{"intents": []}`}, newRecordingActions(), stubCatalogue{})

	out, err := h.ProcessMessage(context.Background(), &models.InboundMessage{ChatID: "chat-1", Text: "hmm"})
	require.NoError(t, err)
	assert.True(t, out.Success)
	assert.Equal(t, prompts.FallbackMessage, out.Text)
}

func TestProcessMessage_ExtractionKeepsContextAlive(t *testing.T) {
	now := testNow
	contexts := memory.NewManager(memory.NewLocalStore(0), memory.DefaultInactivityWindow, nil)
	contexts.SetClock(func() time.Time { return now })
	ctx := context.Background()

	_, err := contexts.Record(ctx, "chat-1", "resp-consult", "consult")
	require.NoError(t, err)

	provider := &mockLLM{content: `{"intents": [{"type":"get_budget"}]}`}
	h := NewIntentHandler(provider, newTestDispatcher(newRecordingActions()), stubCatalogue{}, contexts, nil)
	h.now = func() time.Time { return now }

	// Logging for 40 minutes, one message every 20.
	for i := 0; i < 2; i++ {
		now = now.Add(20 * time.Minute)
		_, err := h.ProcessMessage(ctx, &models.InboundMessage{ChatID: "chat-1", Text: "ngân sách"})
		require.NoError(t, err)
		assert.False(t, provider.requests[len(provider.requests)-1].Persist, "extraction is one-shot")
	}

	now = now.Add(20 * time.Minute)
	cc, err := contexts.Begin(ctx, "chat-1")
	require.NoError(t, err)
	assert.Equal(t, "resp-consult", cc.PreviousResponseID)
	assert.Equal(t, extractionKind, cc.LastInteractionKind)
}
