// Package report computes monthly figures from the ledger and renders them
// as chat text.
package report

import (
	"context"
	"fmt"
	"sort"

	"github.com/shopspring/decimal"

	"github.com/avvvet/ledgerbuddy/internal/ledger"
)

// Dashboard summarises one month.
type Dashboard struct {
	Month      string           `json:"month"`
	Income     decimal.Decimal  `json:"income"`
	Expense    decimal.Decimal  `json:"expense"`
	Net        decimal.Decimal  `json:"net"`
	Partitions []PartitionTotal `json:"groups"`
	Categories []CategoryTotal  `json:"categories"`
	RowCount   int              `json:"row_count"`
}

// PartitionTotal is the sum of one partition's rows in the month.
type PartitionTotal struct {
	Group  string          `json:"group"`
	Income bool            `json:"income"`
	Total  decimal.Decimal `json:"total"`
	Rows   int             `json:"rows"`
}

// CategoryTotal compares spending in a category with its budget.
type CategoryTotal struct {
	Category  string          `json:"category"`
	Spent     decimal.Decimal `json:"spent"`
	Budget    decimal.Decimal `json:"budget"`
	Remaining decimal.Decimal `json:"remaining"`
	Budgeted  bool            `json:"budgeted"`
}

// Empty reports whether the month has neither rows nor budgets.
func (d *Dashboard) Empty() bool {
	return d.RowCount == 0 && len(d.Categories) == 0
}

// Builder computes dashboards. Partitions listed as income count towards
// Income; all others count as expenses.
type Builder struct {
	store  ledger.Reader
	income map[string]bool
}

func NewBuilder(store ledger.Reader, incomePartitions []string) *Builder {
	income := make(map[string]bool, len(incomePartitions))
	for _, p := range incomePartitions {
		income[p] = true
	}
	return &Builder{store: store, income: income}
}

// Dashboard builds the summary for month ("2006-01"). Rows whose date
// cannot be parsed cannot be attributed to a month and are skipped.
func (b *Builder) Dashboard(ctx context.Context, month string) (*Dashboard, error) {
	d := &Dashboard{Month: month}
	spent := make(map[string]decimal.Decimal)

	for _, p := range b.store.Partitions() {
		rows, err := b.store.ListRows(ctx, p)
		if err != nil {
			return nil, fmt.Errorf("list %s: %w", p, err)
		}
		pt := PartitionTotal{Group: p, Income: b.income[p]}
		for _, r := range rows {
			if !ledger.SameMonth(r.Date, month) {
				continue
			}
			pt.Total = pt.Total.Add(r.Amount)
			pt.Rows++
			if !pt.Income {
				spent[r.Category] = spent[r.Category].Add(r.Amount)
			}
		}
		if pt.Income {
			d.Income = d.Income.Add(pt.Total)
		} else {
			d.Expense = d.Expense.Add(pt.Total)
		}
		d.RowCount += pt.Rows
		d.Partitions = append(d.Partitions, pt)
	}
	d.Net = d.Income.Sub(d.Expense)

	budgets, err := b.store.Budgets(ctx, month)
	if err != nil {
		return nil, fmt.Errorf("budgets %s: %w", month, err)
	}
	seen := make(map[string]bool, len(budgets))
	for _, bg := range budgets {
		s := spent[bg.Category]
		d.Categories = append(d.Categories, CategoryTotal{
			Category:  bg.Category,
			Spent:     s,
			Budget:    bg.Amount,
			Remaining: bg.Amount.Sub(s),
			Budgeted:  true,
		})
		seen[bg.Category] = true
	}
	var unbudgeted []CategoryTotal
	for cat, s := range spent {
		if seen[cat] {
			continue
		}
		unbudgeted = append(unbudgeted, CategoryTotal{Category: cat, Spent: s, Remaining: s.Neg()})
	}
	sort.Slice(unbudgeted, func(i, j int) bool { return unbudgeted[i].Category < unbudgeted[j].Category })
	d.Categories = append(d.Categories, unbudgeted...)

	return d, nil
}
