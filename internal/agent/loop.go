// Package agent implements the bounded tool-calling loop used for
// consultative and analytical questions.
package agent

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"strings"
	"time"

	"github.com/avvvet/ledgerbuddy/internal/llm"
	"github.com/avvvet/ledgerbuddy/internal/memory"
	"github.com/avvvet/ledgerbuddy/internal/models"
	"github.com/avvvet/ledgerbuddy/internal/prompts"
	"github.com/avvvet/ledgerbuddy/internal/tools"
)

// MaxSteps is the hard ceiling on model calls per run.
const MaxSteps = 7

// State is where a run is in the loop.
type State int

const (
	StateInit State = iota
	StateAwaitingModel
	StateExecutingTools
	StateDone
	StateAborted
)

func (s State) String() string {
	switch s {
	case StateInit:
		return "init"
	case StateAwaitingModel:
		return "awaiting_model"
	case StateExecutingTools:
		return "executing_tools"
	case StateDone:
		return "done"
	case StateAborted:
		return "aborted"
	}
	return fmt.Sprintf("state(%d)", int(s))
}

// Loop errors reported in Result.Error.
const (
	ErrMaxSteps       = "max steps"
	ErrLLMTransport   = "llm transport error"
	ErrMalformedReply = "malformed response"
)

// Sender delivers text to the chat. It must not wait for delivery
// confirmation.
type Sender interface {
	SendMessage(ctx context.Context, chatID, text string, affordance *models.ReplyAffordance) error
}

// ToolExecutor is the fixed catalogue the model may call.
type ToolExecutor interface {
	Definitions() []llm.ToolDef
	Execute(ctx context.Context, call llm.ToolCall) tools.Result
}

// Request represents one question handed to the loop.
type Request struct {
	ConversationID string
	ChatID         string
	Question       string
	Kind           models.IntentKind
}

// Result represents the outcome of a run.
type Result struct {
	Success  bool
	Response string
	Steps    int
	Error    string
	State    State
	// Delivered is false when Response could not be sent and still has to
	// reach the user some other way.
	Delivered bool
}

// Loop is the tool-calling agent.
type Loop struct {
	llm        llm.LLMProvider
	tools      ToolExecutor
	contexts   *memory.Manager
	sender     Sender
	partitions []string
	logger     *slog.Logger
	maxSteps   int
	now        func() time.Time
}

// NewLoop creates a new agent loop. sender may be nil, in which case
// nothing is pushed and every Result has Delivered=false.
func NewLoop(provider llm.LLMProvider, toolset ToolExecutor, contexts *memory.Manager, sender Sender, partitions []string, logger *slog.Logger) *Loop {
	if logger == nil {
		logger = slog.Default()
	}
	return &Loop{
		llm:        provider,
		tools:      toolset,
		contexts:   contexts,
		sender:     sender,
		partitions: partitions,
		logger:     logger,
		maxSteps:   MaxSteps,
		now:        time.Now,
	}
}

// Run drives one question from Init to Done or Aborted. It never returns
// an error; failures are reported in the Result and the user has already
// been told.
func (l *Loop) Run(ctx context.Context, req Request) *Result {
	convID := req.ConversationID
	if convID == "" {
		convID = req.ChatID
	}

	l.logger.Info("agent loop started",
		"conversation", convID,
		"chat_id", req.ChatID,
		"intent", req.Kind,
	)

	// Init
	cc, err := l.contexts.Begin(ctx, convID)
	if err != nil {
		// Without the stored context there is nothing to continue from.
		l.logger.Warn("failed to load conversation context", "conversation", convID, "error", err)
		cc = memory.ConversationContext{}
	}
	exchange := []llm.Message{
		{Role: llm.RoleSystem, Content: prompts.BuildConsultPrompt(l.now(), l.partitions)},
		{Role: llm.RoleUser, Content: req.Question},
	}
	defs := l.tools.Definitions()

	var buffered []string
	for step := 1; step <= l.maxSteps; step++ {
		// AwaitingModel
		resp, err := l.llm.Complete(ctx, &llm.LLMRequest{
			Messages:           exchange,
			Tools:              defs,
			PreviousResponseID: cc.PreviousResponseID,
			Persist:            true,
		})
		if err != nil {
			code := ErrLLMTransport
			if errors.Is(err, llm.ErrMalformedResponse) {
				code = ErrMalformedReply
			}
			l.logger.Error("LLM call failed", "conversation", convID, "step", step, "error", err)
			return l.fail(ctx, req, convID, step, code)
		}
		if resp == nil {
			l.logger.Error("LLM returned no response", "conversation", convID, "step", step)
			return l.fail(ctx, req, convID, step, ErrMalformedReply)
		}

		content := strings.TrimSpace(resp.Content)
		if len(resp.ToolCalls) == 0 {
			if content != "" {
				return l.done(ctx, req, convID, resp.ID, content, step)
			}
			// Empty answer: nudge once per step and let the ceiling bound it.
			l.logger.Warn("empty model response, nudging", "conversation", convID, "step", step)
			exchange = append(exchange, llm.Message{Role: llm.RoleUser, Content: prompts.NudgeMessage})
			continue
		}

		// ExecutingTools
		if content != "" {
			buffered = append(buffered, content)
		}
		calls := withCallIDs(resp.ToolCalls, step)
		exchange = append(exchange, llm.Message{Role: llm.RoleAssistant, Content: resp.Content, ToolCalls: calls})
		for _, call := range calls {
			res := l.tools.Execute(ctx, call)
			exchange = append(exchange, llm.Message{
				Role:       llm.RoleTool,
				ToolCallID: res.CallID,
				Name:       call.Name,
				Content:    res.Payload,
			})
		}
		l.logger.Debug("tool step completed", "conversation", convID, "step", step, "calls", len(calls))
	}

	// Aborted
	l.logger.Warn("agent loop hit step ceiling",
		"conversation", convID,
		"step", l.maxSteps,
		"buffered", len(buffered))
	// The last response still has unanswered tool calls, so only the
	// interaction time moves.
	l.touch(ctx, convID, req.Kind)
	delivered := l.send(ctx, req.ChatID, prompts.MaxStepsMessage)
	return &Result{
		Success:   false,
		Response:  prompts.MaxStepsMessage,
		Steps:     l.maxSteps,
		Error:     ErrMaxSteps,
		State:     StateAborted,
		Delivered: delivered,
	}
}

func (l *Loop) done(ctx context.Context, req Request, convID, responseID, text string, steps int) *Result {
	delivered := l.send(ctx, req.ChatID, text)
	if _, err := l.contexts.Record(ctx, convID, responseID, string(req.Kind)); err != nil {
		l.logger.Warn("failed to record conversation context", "conversation", convID, "error", err)
	}
	l.logger.Info("agent loop completed", "conversation", convID, "steps", steps, "response_id", responseID)
	return &Result{
		Success:   true,
		Response:  text,
		Steps:     steps,
		State:     StateDone,
		Delivered: delivered,
	}
}

func (l *Loop) fail(ctx context.Context, req Request, convID string, steps int, code string) *Result {
	l.touch(ctx, convID, req.Kind)
	delivered := l.send(ctx, req.ChatID, prompts.ApologyMessage)
	return &Result{
		Success:   false,
		Response:  prompts.ApologyMessage,
		Steps:     steps,
		Error:     code,
		State:     StateAborted,
		Delivered: delivered,
	}
}

func (l *Loop) touch(ctx context.Context, convID string, kind models.IntentKind) {
	if _, err := l.contexts.Touch(ctx, convID, string(kind)); err != nil {
		l.logger.Warn("failed to update conversation context", "conversation", convID, "error", err)
	}
}

func (l *Loop) send(ctx context.Context, chatID, text string) bool {
	if l.sender == nil {
		return false
	}
	if err := l.sender.SendMessage(ctx, chatID, text, nil); err != nil {
		l.logger.Error("failed to send agent reply", "chat_id", chatID, "error", err)
		return false
	}
	return true
}

// withCallIDs gives every call an id so each result pairs with its call.
func withCallIDs(calls []llm.ToolCall, step int) []llm.ToolCall {
	out := make([]llm.ToolCall, len(calls))
	for i, c := range calls {
		if c.ID == "" {
			c.ID = fmt.Sprintf("call_%d_%d", step, i+1)
		}
		out[i] = c
	}
	return out
}
