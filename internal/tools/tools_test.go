package tools

import (
	"context"
	"database/sql"
	"encoding/json"
	"testing"
	"time"

	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	_ "modernc.org/sqlite"

	"github.com/avvvet/ledgerbuddy/internal/config"
	"github.com/avvvet/ledgerbuddy/internal/ledger"
	"github.com/avvvet/ledgerbuddy/internal/llm"
	"github.com/avvvet/ledgerbuddy/internal/report"
	"github.com/avvvet/ledgerbuddy/internal/search"
)

func newTestRegistry(t *testing.T) (*Registry, *ledger.SQLStore) {
	t.Helper()
	db, err := sql.Open("sqlite", ":memory:")
	require.NoError(t, err)
	db.SetMaxOpenConns(1)
	t.Cleanup(func() { db.Close() })

	store, err := ledger.NewSQLStore(db, []string{"fixed_expense", "variable_expense", "income"})
	require.NoError(t, err)

	ctx := context.Background()
	require.NoError(t, store.Seed(ctx,
		[]ledger.Category{
			{Label: "🍜 Ăn uống", Group: "variable_expense", Active: true},
			{Label: "🎮 Giải trí", Group: "variable_expense", Active: false},
		},
		[]ledger.Fund{{Name: "Quỹ khẩn cấp", Type: "emergency", Balance: decimal.NewFromInt(15000000)}},
	))
	require.NoError(t, store.CreateBudget(ctx, ledger.Budget{Month: "2024-03", Category: "🍜 Ăn uống", Amount: decimal.NewFromInt(3000000)}))

	r := NewRegistry(store,
		search.NewEngine(store, nil),
		report.NewBuilder(store, []string{"income"}),
		config.Instructions{Family: "Gia đình 4 người."},
		nil)
	r.SetClock(func() time.Time { return time.Date(2024, 3, 15, 0, 0, 0, 0, time.Local) })
	return r, store
}

func decode(t *testing.T, res Result) map[string]any {
	t.Helper()
	var m map[string]any
	require.NoError(t, json.Unmarshal([]byte(res.Payload), &m), res.Payload)
	return m
}

func TestDefinitions_FixedCatalogue(t *testing.T) {
	r, _ := newTestRegistry(t)

	var names []string
	for _, d := range r.Definitions() {
		names = append(names, d.Name)
		assert.Equal(t, "object", d.Parameters["type"], d.Name)
	}
	assert.Equal(t, []string{
		"get_budget", "get_dashboard", "find_transaction", "get_fund_balances",
		"get_categories", "get_instructions", "search_transactions",
	}, names)
}

func TestExecute_UnknownToolIsAnErrorPayload(t *testing.T) {
	r, _ := newTestRegistry(t)

	res := r.Execute(context.Background(), llm.ToolCall{ID: "c1", Name: "delete_everything"})
	assert.Equal(t, "c1", res.CallID)
	assert.True(t, IsUnavailable(res.Err))
	assert.Equal(t, "unknown tool: delete_everything", decode(t, res)["error"])
}

func TestExecute_BadArguments(t *testing.T) {
	r, _ := newTestRegistry(t)

	res := r.Execute(context.Background(), llm.ToolCall{ID: "c1", Name: "get_budget", RawArguments: "{month"})
	assert.Error(t, res.Err)
	assert.Contains(t, decode(t, res)["error"], "invalid arguments")
}

func TestExecute_QueryTools(t *testing.T) {
	r, store := newTestRegistry(t)
	ctx := context.Background()

	id, err := store.AppendRow(ctx, "variable_expense", ledger.Row{
		Date: "2024-03-10", Description: "Pizza", Amount: decimal.NewFromInt(250000), Category: "🍜 Ăn uống", Note: "sinh nhật",
	})
	require.NoError(t, err)

	res := r.Execute(ctx, llm.ToolCall{ID: "1", Name: "get_budget", Arguments: map[string]any{}})
	require.NoError(t, res.Err)
	m := decode(t, res)
	assert.Equal(t, "2024-03", m["month"])
	assert.Len(t, m["budgets"], 1)

	res = r.Execute(ctx, llm.ToolCall{ID: "2", Name: "find_transaction", Arguments: map[string]any{"id": id}})
	require.NoError(t, res.Err)
	assert.Equal(t, "Pizza", decode(t, res)["description"])

	res = r.Execute(ctx, llm.ToolCall{ID: "3", Name: "find_transaction", Arguments: map[string]any{"id": "nope"}})
	assert.ErrorIs(t, res.Err, ledger.ErrNotFound)
	assert.Contains(t, decode(t, res)["error"], "nope")

	res = r.Execute(ctx, llm.ToolCall{ID: "4", Name: "get_categories", Arguments: map[string]any{}})
	assert.Len(t, decode(t, res)["categories"], 1)
	res = r.Execute(ctx, llm.ToolCall{ID: "5", Name: "get_categories", Arguments: map[string]any{"include_inactive": true}})
	assert.Len(t, decode(t, res)["categories"], 2)

	res = r.Execute(ctx, llm.ToolCall{ID: "6", Name: "get_fund_balances", Arguments: map[string]any{"type": "emergency"}})
	assert.Len(t, decode(t, res)["funds"], 1)

	res = r.Execute(ctx, llm.ToolCall{ID: "7", Name: "get_instructions", Arguments: map[string]any{"topic": "family"}})
	assert.Equal(t, "Gia đình 4 người.", decode(t, res)["instructions"])
	res = r.Execute(ctx, llm.ToolCall{ID: "8", Name: "get_instructions", Arguments: map[string]any{"topic": "weather"}})
	assert.Error(t, res.Err)

	res = r.Execute(ctx, llm.ToolCall{ID: "9", Name: "search_transactions", Arguments: map[string]any{"keywords": []any{"SINH NHẬT"}}})
	require.NoError(t, res.Err)
	assert.EqualValues(t, 1, decode(t, res)["total_matches"])

	res = r.Execute(ctx, llm.ToolCall{ID: "10", Name: "get_dashboard", Arguments: map[string]any{"month": "2024-03"}})
	require.NoError(t, res.Err)
	assert.Equal(t, "2024-03", decode(t, res)["month"])

	res = r.Execute(ctx, llm.ToolCall{ID: "11", Name: "get_dashboard", Arguments: map[string]any{"month": "2020-01"}})
	require.NoError(t, res.Err)
	assert.Equal(t, "no data for this month", decode(t, res)["message"])
}
