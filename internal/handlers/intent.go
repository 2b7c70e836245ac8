package handlers

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"strings"
	"time"

	"github.com/avvvet/ledgerbuddy/internal/ledger"
	"github.com/avvvet/ledgerbuddy/internal/llm"
	"github.com/avvvet/ledgerbuddy/internal/memory"
	"github.com/avvvet/ledgerbuddy/internal/models"
	"github.com/avvvet/ledgerbuddy/internal/prompts"
)

// Catalogue is the part of the ledger the extraction prompt describes.
type Catalogue interface {
	Partitions() []string
	Categories(ctx context.Context) ([]ledger.Category, error)
}

// ContextTracker stamps a conversation's interaction time.
type ContextTracker interface {
	Touch(ctx context.Context, conversationID, kind string) (memory.ConversationContext, error)
}

// extractionKind is recorded as the interaction kind of extraction calls.
const extractionKind = "extract"

// IntentHandler turns one chat message into intents, runs them and builds
// the reply.
type IntentHandler struct {
	provider   llm.LLMProvider
	dispatcher *Dispatcher
	catalogue  Catalogue
	contexts   ContextTracker
	logger     *slog.Logger
	now        func() time.Time
}

// NewIntentHandler creates a handler. contexts may be nil.
func NewIntentHandler(provider llm.LLMProvider, dispatcher *Dispatcher, catalogue Catalogue, contexts ContextTracker, logger *slog.Logger) *IntentHandler {
	if logger == nil {
		logger = slog.Default()
	}
	return &IntentHandler{
		provider:   provider,
		dispatcher: dispatcher,
		catalogue:  catalogue,
		contexts:   contexts,
		logger:     logger,
		now:        time.Now,
	}
}

// ProcessMessage handles one inbound message to completion. Failures are
// reported in the returned message; the error is reserved for a nil request.
func (h *IntentHandler) ProcessMessage(ctx context.Context, msg *models.InboundMessage) (*models.OutboundMessage, error) {
	if msg == nil {
		return nil, fmt.Errorf("nil inbound message")
	}
	if err := h.validateRequest(msg); err != nil {
		return h.createErrorResponse(msg, models.ErrorInvalidRequest, err.Error()), nil
	}
	if msg.ConversationID == "" {
		msg.ConversationID = msg.ChatID
	}

	prompt, err := h.buildPrompt(ctx, msg)
	if err != nil {
		h.logger.Error("failed to load categories", "chat_id", msg.ChatID, "error", err)
		return h.createErrorResponse(msg, models.ErrorActionFailed, err.Error()), nil
	}

	resp, err := h.provider.Complete(ctx, &llm.LLMRequest{
		Messages:    []llm.Message{{Role: llm.RoleUser, Content: prompt}},
		MaxTokens:   1000,
		Temperature: 0.1, // low temperature for consistent extraction
		JSONMode:    true,
	})
	if err != nil {
		code := models.ErrorLLMFailed
		if errors.Is(err, context.DeadlineExceeded) {
			code = models.ErrorLLMTimeout
		}
		h.logger.Error("intent extraction failed", "chat_id", msg.ChatID, "error", err)
		return h.createErrorResponse(msg, code, err.Error()), nil
	}
	h.touch(ctx, msg.ConversationID)

	intents, err := prompts.ParseIntents(resp.Content)
	if err != nil {
		h.logger.Warn("failed to parse intents", "chat_id", msg.ChatID, "error", err)
		return h.createErrorResponse(msg, models.ErrorParseError, "failed to understand response"), nil
	}
	h.logger.Info("intents extracted", "chat_id", msg.ChatID, "count", len(intents))

	session := models.Session{ChatID: msg.ChatID, ConversationID: msg.ConversationID}
	agg := h.dispatcher.Dispatch(ctx, session, intents, msg.Text, msg.ReplyText)
	for _, line := range agg.Logs {
		h.logger.Debug("action log", "chat_id", msg.ChatID, "line", line)
	}

	out := &models.OutboundMessage{
		ChatID:     msg.ChatID,
		Text:       agg.Reply,
		Affordance: agg.Affordance,
		Success:    agg.Success,
	}
	if len(intents) == 0 {
		out.Text = prompts.FallbackMessage
	}
	if !agg.Success {
		code := models.ErrorActionFailed
		detail := fmt.Sprintf("intent %d of %d failed", agg.FailedIndex, len(intents))
		out.ErrorCode = &code
		out.ErrorMessage = &detail
	}
	return out, nil
}

func (h *IntentHandler) touch(ctx context.Context, conversationID string) {
	if h.contexts == nil {
		return
	}
	if _, err := h.contexts.Touch(ctx, conversationID, extractionKind); err != nil {
		h.logger.Warn("failed to update conversation context", "conversation", conversationID, "error", err)
	}
}

func (h *IntentHandler) validateRequest(msg *models.InboundMessage) error {
	if msg.ChatID == "" {
		return fmt.Errorf("chat_id is required")
	}
	if strings.TrimSpace(msg.Text) == "" {
		return fmt.Errorf("text is required")
	}
	return nil
}

func (h *IntentHandler) buildPrompt(ctx context.Context, msg *models.InboundMessage) (string, error) {
	cats, err := h.catalogue.Categories(ctx)
	if err != nil {
		return "", err
	}
	labels := make([]string, 0, len(cats))
	for _, c := range cats {
		if c.Active {
			labels = append(labels, c.Label)
		}
	}
	return prompts.BuildExtractionPrompt(prompts.ExtractionInput{
		Now:        h.now(),
		Partitions: h.catalogue.Partitions(),
		Categories: labels,
		Text:       msg.Text,
		ReplyText:  msg.ReplyText,
	}), nil
}

func (h *IntentHandler) createErrorResponse(msg *models.InboundMessage, errorCode, errorMessage string) *models.OutboundMessage {
	text := prompts.ApologyMessage
	if errorCode == models.ErrorParseError {
		text = prompts.FallbackMessage
	}
	return &models.OutboundMessage{
		ChatID:       msg.ChatID,
		Text:         text,
		Success:      false,
		ErrorCode:    &errorCode,
		ErrorMessage: &errorMessage,
	}
}
