package llm

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"strings"

	"github.com/google/uuid"
	"github.com/tmc/langchaingo/llms"
	"github.com/tmc/langchaingo/llms/anthropic"
	"github.com/tmc/langchaingo/llms/openai"

	"github.com/avvvet/ledgerbuddy/internal/config"
	"github.com/avvvet/ledgerbuddy/internal/memory"
)

const defaultMaxTokens = 2048

// LangChainProvider completes requests through a langchaingo model. The
// underlying APIs are stateless, so the transcript of a Persist request is
// saved in the store under its response id and replayed when a later
// request names it as PreviousResponseID.
type LangChainProvider struct {
	model      llms.Model
	store      memory.Store
	maxHistory int
	logger     *slog.Logger
}

func NewLangChainProvider(model llms.Model, store memory.Store, maxHistory int, logger *slog.Logger) *LangChainProvider {
	if logger == nil {
		logger = slog.Default()
	}
	return &LangChainProvider{model: model, store: store, maxHistory: maxHistory, logger: logger}
}

// NewModel builds the langchaingo model selected by cfg.
func NewModel(cfg *config.Config) (llms.Model, error) {
	client := &http.Client{Timeout: cfg.LLMTimeout}
	switch cfg.LLMProvider {
	case config.ProviderAnthropic:
		return anthropic.New(
			anthropic.WithToken(cfg.AnthropicAPIKey),
			anthropic.WithModel(cfg.AnthropicModel),
			anthropic.WithHTTPClient(client),
		)
	case config.ProviderOpenAI:
		return openai.New(
			openai.WithToken(cfg.OpenAIAPIKey),
			openai.WithModel(cfg.OpenAIModel),
			openai.WithHTTPClient(client),
		)
	}
	return nil, fmt.Errorf("unsupported LLM provider %q", cfg.LLMProvider)
}

func transcriptKey(responseID string) string {
	return "transcript:" + responseID
}

func (p *LangChainProvider) Complete(ctx context.Context, req *LLMRequest) (*LLMResponse, error) {
	// System framing stays first, replayed history goes before the new turn.
	var exchange []Message
	rest := req.Messages
	for len(rest) > 0 && rest[0].Role == RoleSystem {
		exchange = append(exchange, rest[0])
		rest = rest[1:]
	}
	exchange = append(exchange, p.loadTranscript(ctx, req.PreviousResponseID)...)
	exchange = append(exchange, rest...)

	contents, err := toMessageContents(exchange)
	if err != nil {
		return nil, err
	}

	maxTokens := req.MaxTokens
	if maxTokens <= 0 {
		maxTokens = defaultMaxTokens
	}
	opts := []llms.CallOption{llms.WithMaxTokens(maxTokens)}
	if req.Temperature > 0 {
		opts = append(opts, llms.WithTemperature(req.Temperature))
	}
	if req.JSONMode {
		opts = append(opts, llms.WithJSONMode())
	}
	if len(req.Tools) > 0 {
		opts = append(opts, llms.WithTools(toLangChainTools(req.Tools)))
	}

	if p.logger.Enabled(ctx, config.LevelTrace) {
		p.logger.Log(ctx, config.LevelTrace, "llm request",
			"previous_response_id", req.PreviousResponseID,
			"messages", traceJSON(exchange),
			"tools", len(req.Tools))
	}

	resp, err := p.model.GenerateContent(ctx, contents, opts...)
	if err != nil {
		return nil, fmt.Errorf("llm call failed: %w", err)
	}
	out, err := fromContentResponse(resp)
	if err != nil {
		return nil, err
	}
	out.ID = uuid.NewString()

	if req.Persist {
		assistant := Message{Role: RoleAssistant, Content: out.Content, ToolCalls: out.ToolCalls}
		p.saveTranscript(ctx, out.ID, append(exchange, assistant))
	}
	if p.logger.Enabled(ctx, config.LevelTrace) {
		p.logger.Log(ctx, config.LevelTrace, "llm response",
			"response_id", out.ID,
			"content", out.Content,
			"tool_calls", traceJSON(out.ToolCalls))
	}

	p.logger.Debug("llm completion",
		"response_id", out.ID,
		"previous_response_id", req.PreviousResponseID,
		"messages", len(contents),
		"tool_calls", len(out.ToolCalls))
	return out, nil
}

// loadTranscript returns the non-system messages recorded for responseID.
// A missing transcript only loses continuity.
func (p *LangChainProvider) loadTranscript(ctx context.Context, responseID string) []Message {
	if responseID == "" || p.store == nil {
		return nil
	}
	data, err := p.store.Get(ctx, transcriptKey(responseID))
	if err != nil {
		if !errors.Is(err, memory.ErrKeyNotFound) {
			p.logger.Warn("failed to load transcript", "response_id", responseID, "error", err)
		}
		return nil
	}
	var msgs []Message
	if err := json.Unmarshal(data, &msgs); err != nil {
		p.logger.Warn("failed to parse transcript", "response_id", responseID, "error", err)
		return nil
	}
	history := make([]Message, 0, len(msgs))
	for _, m := range msgs {
		if m.Role != RoleSystem {
			history = append(history, m)
		}
	}
	return p.trim(history)
}

// trim keeps the last maxHistory messages without starting on a tool
// result whose call was cut off.
func (p *LangChainProvider) trim(history []Message) []Message {
	if p.maxHistory <= 0 || len(history) <= p.maxHistory {
		return history
	}
	history = history[len(history)-p.maxHistory:]
	for len(history) > 0 && history[0].Role == RoleTool {
		history = history[1:]
	}
	return history
}

func (p *LangChainProvider) saveTranscript(ctx context.Context, responseID string, msgs []Message) {
	if p.store == nil {
		return
	}
	data, err := json.Marshal(msgs)
	if err != nil {
		p.logger.Warn("failed to marshal transcript", "response_id", responseID, "error", err)
		return
	}
	if err := p.store.Set(ctx, transcriptKey(responseID), data); err != nil {
		p.logger.Warn("failed to save transcript", "response_id", responseID, "error", err)
	}
}

func traceJSON(v any) string {
	data, err := json.Marshal(v)
	if err != nil {
		return fmt.Sprintf("<%v>", err)
	}
	return string(data)
}

func toMessageContents(msgs []Message) ([]llms.MessageContent, error) {
	out := make([]llms.MessageContent, 0, len(msgs))
	for _, m := range msgs {
		switch m.Role {
		case RoleSystem:
			out = append(out, llms.TextParts(llms.ChatMessageTypeSystem, m.Content))
		case RoleUser:
			out = append(out, llms.TextParts(llms.ChatMessageTypeHuman, m.Content))
		case RoleAssistant:
			mc := llms.MessageContent{Role: llms.ChatMessageTypeAI}
			if m.Content != "" {
				mc.Parts = append(mc.Parts, llms.TextContent{Text: m.Content})
			}
			for _, tc := range m.ToolCalls {
				mc.Parts = append(mc.Parts, llms.ToolCall{
					ID:   tc.ID,
					Type: "function",
					FunctionCall: &llms.FunctionCall{
						Name:      tc.Name,
						Arguments: rawArguments(tc),
					},
				})
			}
			if len(mc.Parts) == 0 {
				continue
			}
			out = append(out, mc)
		case RoleTool:
			out = append(out, llms.MessageContent{
				Role: llms.ChatMessageTypeTool,
				Parts: []llms.ContentPart{llms.ToolCallResponse{
					ToolCallID: m.ToolCallID,
					Name:       m.Name,
					Content:    m.Content,
				}},
			})
		default:
			return nil, fmt.Errorf("unsupported message role %q", m.Role)
		}
	}
	return out, nil
}

func rawArguments(tc ToolCall) string {
	if tc.RawArguments != "" {
		return tc.RawArguments
	}
	if tc.Arguments == nil {
		return "{}"
	}
	data, err := json.Marshal(tc.Arguments)
	if err != nil {
		return "{}"
	}
	return string(data)
}

func toLangChainTools(defs []ToolDef) []llms.Tool {
	tools := make([]llms.Tool, 0, len(defs))
	for _, d := range defs {
		tools = append(tools, llms.Tool{
			Type: "function",
			Function: &llms.FunctionDefinition{
				Name:        d.Name,
				Description: d.Description,
				Parameters:  d.Parameters,
			},
		})
	}
	return tools
}

// fromContentResponse merges all choices into one response. Some providers
// return one choice per content block.
func fromContentResponse(resp *llms.ContentResponse) (*LLMResponse, error) {
	if resp == nil || len(resp.Choices) == 0 {
		return nil, fmt.Errorf("%w: no choices", ErrMalformedResponse)
	}
	out := &LLMResponse{}
	var text []string
	for _, c := range resp.Choices {
		if c == nil {
			continue
		}
		if strings.TrimSpace(c.Content) != "" {
			text = append(text, c.Content)
		}
		for _, tc := range c.ToolCalls {
			if tc.FunctionCall == nil {
				return nil, fmt.Errorf("%w: tool call %q without function", ErrMalformedResponse, tc.ID)
			}
			call := ToolCall{ID: tc.ID, Name: tc.FunctionCall.Name, RawArguments: tc.FunctionCall.Arguments}
			if call.RawArguments != "" {
				var args map[string]any
				if err := json.Unmarshal([]byte(call.RawArguments), &args); err == nil {
					call.Arguments = args
				}
			} else {
				call.Arguments = map[string]any{}
			}
			out.ToolCalls = append(out.ToolCalls, call)
		}
		addUsage(out, c.GenerationInfo)
	}
	out.Content = strings.Join(text, "\n")
	return out, nil
}

// addUsage reads token counts from GenerationInfo; key names differ by
// provider. Choices of one response repeat the same usage, so the largest
// value wins.
func addUsage(out *LLMResponse, info map[string]any) {
	in := firstInt(info, "InputTokens", "PromptTokens")
	outTokens := firstInt(info, "OutputTokens", "CompletionTokens")
	if in == 0 && outTokens == 0 {
		return
	}
	if out.Usage == nil {
		out.Usage = &Usage{}
	}
	out.Usage.InputTokens = max(out.Usage.InputTokens, in)
	out.Usage.OutputTokens = max(out.Usage.OutputTokens, outTokens)
}

func firstInt(info map[string]any, keys ...string) int {
	for _, k := range keys {
		switch v := info[k].(type) {
		case int:
			return v
		case int64:
			return int(v)
		case float64:
			return int(v)
		}
	}
	return 0
}
