package tools

import (
	"context"
	"fmt"
	"strings"

	"github.com/avvvet/ledgerbuddy/internal/ledger"
	"github.com/avvvet/ledgerbuddy/internal/search"
)

func (r *Registry) registerBuiltins() {
	month := map[string]any{
		"type":        "string",
		"description": "Month as YYYY-MM. Defaults to the current month.",
	}

	r.Register(&Tool{
		Name:        "get_budget",
		Description: "Get the planned budget per category for a month.",
		Parameters: map[string]any{
			"type":       "object",
			"properties": map[string]any{"month": month},
		},
		Handler: r.handleGetBudget,
	})

	r.Register(&Tool{
		Name:        "get_dashboard",
		Description: "Get the monthly summary: income, expenses, net, totals per group and spending vs budget per category.",
		Parameters: map[string]any{
			"type":       "object",
			"properties": map[string]any{"month": month},
		},
		Handler: r.handleGetDashboard,
	})

	r.Register(&Tool{
		Name:        "find_transaction",
		Description: "Look up one transaction by its id.",
		Parameters: map[string]any{
			"type": "object",
			"properties": map[string]any{
				"id": map[string]any{
					"type":        "string",
					"description": "Transaction id, e.g. 20240315093000-1a2b3c4d",
				},
				"group": map[string]any{
					"type":        "string",
					"description": "Transaction group to look in. Omit to search every group.",
				},
			},
			"required": []string{"id"},
		},
		Handler: r.handleFindTransaction,
	})

	r.Register(&Tool{
		Name:        "get_fund_balances",
		Description: "Get the current balance of savings, emergency and other funds.",
		Parameters: map[string]any{
			"type": "object",
			"properties": map[string]any{
				"type": map[string]any{
					"type":        "string",
					"description": "Only funds of this type (e.g. savings, emergency). Omit for all funds.",
				},
			},
		},
		Handler: r.handleGetFundBalances,
	})

	r.Register(&Tool{
		Name:        "get_categories",
		Description: "List the category catalogue with each category's group and description.",
		Parameters: map[string]any{
			"type": "object",
			"properties": map[string]any{
				"include_inactive": map[string]any{
					"type":        "boolean",
					"description": "Also list deactivated categories.",
				},
			},
		},
		Handler: r.handleGetCategories,
	})

	r.Register(&Tool{
		Name:        "get_instructions",
		Description: "Get the household's own notes about the family, how categories are used, or how budgets are planned.",
		Parameters: map[string]any{
			"type": "object",
			"properties": map[string]any{
				"topic": map[string]any{
					"type": "string",
					"enum": []string{"family", "category", "budget"},
				},
			},
			"required": []string{"topic"},
		},
		Handler: r.handleGetInstructions,
	})

	r.Register(&Tool{
		Name:        "search_transactions",
		Description: "Search transactions by date range, group, category and keywords. Keywords are OR-combined and matched against description and note.",
		Parameters: map[string]any{
			"type": "object",
			"properties": map[string]any{
				"start_date": map[string]any{"type": "string", "description": "Inclusive start date, YYYY-MM-DD"},
				"end_date":   map[string]any{"type": "string", "description": "Inclusive end date, YYYY-MM-DD"},
				"groups":     map[string]any{"type": "array", "items": map[string]any{"type": "string"}},
				"categories": map[string]any{"type": "array", "items": map[string]any{"type": "string"}, "description": "Category names, matched loosely"},
				"keywords":   map[string]any{"type": "array", "items": map[string]any{"type": "string"}},
			},
		},
		Handler: r.handleSearchTransactions,
	})
}

// Tool handlers

func (r *Registry) handleGetBudget(ctx context.Context, args map[string]any) (any, error) {
	month, err := ledger.NormalizeMonth(stringArg(args, "month"), r.now())
	if err != nil {
		return nil, err
	}
	budgets, err := r.store.Budgets(ctx, month)
	if err != nil {
		return nil, err
	}
	if budgets == nil {
		budgets = []ledger.Budget{}
	}
	return map[string]any{"month": month, "budgets": budgets}, nil
}

func (r *Registry) handleGetDashboard(ctx context.Context, args map[string]any) (any, error) {
	month, err := ledger.NormalizeMonth(stringArg(args, "month"), r.now())
	if err != nil {
		return nil, err
	}
	d, err := r.reports.Dashboard(ctx, month)
	if err != nil {
		return nil, err
	}
	if d.Empty() {
		return map[string]any{"month": month, "message": "no data for this month"}, nil
	}
	return d, nil
}

func (r *Registry) handleFindTransaction(ctx context.Context, args map[string]any) (any, error) {
	id := stringArg(args, "id")
	if id == "" {
		return nil, fmt.Errorf("id is required")
	}
	if group := stringArg(args, "group"); group != "" {
		return r.store.FindRowByID(ctx, group, id)
	}
	return r.store.FindRow(ctx, id)
}

func (r *Registry) handleGetFundBalances(ctx context.Context, args map[string]any) (any, error) {
	funds, err := r.store.Funds(ctx, stringArg(args, "type"))
	if err != nil {
		return nil, err
	}
	if funds == nil {
		funds = []ledger.Fund{}
	}
	return map[string]any{"funds": funds}, nil
}

func (r *Registry) handleGetCategories(ctx context.Context, args map[string]any) (any, error) {
	all, err := r.store.Categories(ctx)
	if err != nil {
		return nil, err
	}
	includeInactive, _ := args["include_inactive"].(bool)
	out := make([]ledger.Category, 0, len(all))
	for _, c := range all {
		if c.Active || includeInactive {
			out = append(out, c)
		}
	}
	return map[string]any{"categories": out}, nil
}

func (r *Registry) handleGetInstructions(_ context.Context, args map[string]any) (any, error) {
	topic := stringArg(args, "topic")
	text, ok := r.instructions.Topic(topic)
	if !ok {
		return nil, fmt.Errorf("unknown topic %q, use family, category or budget", topic)
	}
	if text == "" {
		text = "No instructions recorded."
	}
	return map[string]any{"topic": topic, "instructions": text}, nil
}

func (r *Registry) handleSearchTransactions(ctx context.Context, args map[string]any) (any, error) {
	c, err := search.ParseCriteria(
		stringArg(args, "start_date"),
		stringArg(args, "end_date"),
		listArg(args, "groups"),
		listArg(args, "categories"),
		listArg(args, "keywords"),
	)
	if err != nil {
		return nil, err
	}
	return r.engine.Search(ctx, c)
}

func stringArg(args map[string]any, key string) string {
	s, _ := args[key].(string)
	return strings.TrimSpace(s)
}

// listArg accepts a JSON array of strings or a single string.
func listArg(args map[string]any, key string) []string {
	switch v := args[key].(type) {
	case []any:
		out := make([]string, 0, len(v))
		for _, item := range v {
			if s, ok := item.(string); ok {
				out = append(out, s)
			}
		}
		return out
	case []string:
		return v
	case string:
		if v == "" {
			return nil
		}
		return []string{v}
	}
	return nil
}
