// Package tools defines the read-only query tools available to the agent.
package tools

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/avvvet/ledgerbuddy/internal/config"
	"github.com/avvvet/ledgerbuddy/internal/ledger"
	"github.com/avvvet/ledgerbuddy/internal/llm"
	"github.com/avvvet/ledgerbuddy/internal/report"
	"github.com/avvvet/ledgerbuddy/internal/search"
)

// CatalogueVersion identifies the fixed tool set offered to the model.
const CatalogueVersion = "ledger-tools/v1"

// Tool represents a callable tool. Handlers return a JSON-serialisable
// value.
type Tool struct {
	Name        string                                                      `json:"name"`
	Description string                                                      `json:"description"`
	Parameters  map[string]any                                              `json:"parameters"`
	Handler     func(ctx context.Context, args map[string]any) (any, error) `json:"-"`
}

// Result answers exactly one tool call.
type Result struct {
	CallID  string
	Name    string
	Payload string
	Err     error
}

// Registry holds available tools. Only ledger.Reader is reachable from
// here, so no tool can mutate the ledger.
type Registry struct {
	tools        map[string]*Tool
	order        []string
	store        ledger.Reader
	engine       *search.Engine
	reports      *report.Builder
	instructions config.Instructions
	logger       *slog.Logger
	now          func() time.Time
}

// NewRegistry creates the ledger-tools/v1 catalogue.
func NewRegistry(store ledger.Reader, engine *search.Engine, reports *report.Builder, instructions config.Instructions, logger *slog.Logger) *Registry {
	if logger == nil {
		logger = slog.Default()
	}
	r := &Registry{
		tools:        make(map[string]*Tool),
		store:        store,
		engine:       engine,
		reports:      reports,
		instructions: instructions,
		logger:       logger,
		now:          time.Now,
	}
	r.registerBuiltins()
	return r
}

// SetClock replaces the time source used for default months.
func (r *Registry) SetClock(now func() time.Time) {
	r.now = now
}

// Register adds a tool to the registry.
func (r *Registry) Register(t *Tool) {
	if _, exists := r.tools[t.Name]; !exists {
		r.order = append(r.order, t.Name)
	}
	r.tools[t.Name] = t
}

// Definitions returns all tools for the LLM in registration order.
func (r *Registry) Definitions() []llm.ToolDef {
	defs := make([]llm.ToolDef, 0, len(r.order))
	for _, name := range r.order {
		t := r.tools[name]
		defs = append(defs, llm.ToolDef{Name: t.Name, Description: t.Description, Parameters: t.Parameters})
	}
	return defs
}

// Execute runs one tool call. It never fails: unknown tools, bad arguments
// and handler errors come back as an {"error": ...} payload so the model
// can see them.
func (r *Registry) Execute(ctx context.Context, call llm.ToolCall) Result {
	res := Result{CallID: call.ID, Name: call.Name}

	value, err := r.run(ctx, call)
	if err != nil {
		res.Err = err
		value = map[string]string{"error": err.Error()}
	}
	data, mErr := json.Marshal(value)
	if mErr != nil {
		res.Err = fmt.Errorf("marshal result: %w", mErr)
		data, _ = json.Marshal(map[string]string{"error": res.Err.Error()})
	}
	res.Payload = string(data)

	if res.Err != nil {
		r.logger.Warn("tool call failed", "tool", call.Name, "call_id", call.ID, "error", res.Err)
	} else {
		r.logger.Debug("tool call", "tool", call.Name, "call_id", call.ID, "bytes", len(res.Payload))
	}
	return res
}

func (r *Registry) run(ctx context.Context, call llm.ToolCall) (any, error) {
	tool := r.tools[call.Name]
	if tool == nil {
		return nil, &ErrToolUnavailable{ToolName: call.Name}
	}
	args := call.Arguments
	if args == nil {
		if call.RawArguments != "" {
			var parsed map[string]any
			if err := json.Unmarshal([]byte(call.RawArguments), &parsed); err != nil {
				return nil, fmt.Errorf("invalid arguments: %w", err)
			}
			args = parsed
		} else {
			args = map[string]any{}
		}
	}
	return tool.Handler(ctx, args)
}

// IsUnavailable reports whether err names a tool outside the catalogue.
func IsUnavailable(err error) bool {
	var u *ErrToolUnavailable
	return errors.As(err, &u)
}
