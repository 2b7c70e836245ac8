package report

import (
	"fmt"
	"strings"

	"github.com/dustin/go-humanize"
	"github.com/shopspring/decimal"

	"github.com/avvvet/ledgerbuddy/internal/ledger"
	"github.com/avvvet/ledgerbuddy/internal/search"
)

// maxRowsPerCategory caps how many rows FormatSearch prints per bucket.
const maxRowsPerCategory = 5

// Money renders an amount with Vietnamese thousands separators: 1.500.000đ.
func Money(d decimal.Decimal) string {
	f, _ := d.Round(0).Float64()
	return humanize.FormatFloat("#.###,", f) + "đ"
}

// MonthLabel turns "2024-03" into "03/2024".
func MonthLabel(month string) string {
	if len(month) == len(ledger.MonthLayout) {
		return month[5:] + "/" + month[:4]
	}
	return month
}

// NoDataMessage is the reply for a period with nothing recorded.
func NoDataMessage(month string) string {
	return fmt.Sprintf("Không có dữ liệu cho tháng %s.", MonthLabel(month))
}

func FormatDashboard(d *Dashboard) string {
	if d.Empty() {
		return NoDataMessage(d.Month)
	}
	var b strings.Builder
	fmt.Fprintf(&b, "📊 Báo cáo tháng %s\n", MonthLabel(d.Month))
	fmt.Fprintf(&b, "Thu: %s\nChi: %s\nCòn lại: %s\n", Money(d.Income), Money(d.Expense), Money(d.Net))

	for _, p := range d.Partitions {
		if p.Rows == 0 {
			continue
		}
		fmt.Fprintf(&b, "• %s: %s (%d giao dịch)\n", p.Group, Money(p.Total), p.Rows)
	}

	if len(d.Categories) > 0 {
		b.WriteString("\nTheo danh mục:\n")
		for _, c := range d.Categories {
			if c.Budgeted {
				fmt.Fprintf(&b, "• %s: %s / %s%s\n", c.Category, Money(c.Spent), Money(c.Budget), overMark(c))
			} else {
				fmt.Fprintf(&b, "• %s: %s (chưa có ngân sách)\n", c.Category, Money(c.Spent))
			}
		}
	}
	return strings.TrimRight(b.String(), "\n")
}

func overMark(c CategoryTotal) string {
	if c.Remaining.IsNegative() {
		return " ⚠️ vượt " + Money(c.Remaining.Neg())
	}
	return ""
}

func FormatBudgets(month string, budgets []ledger.Budget) string {
	if len(budgets) == 0 {
		return fmt.Sprintf("Chưa có ngân sách cho tháng %s.", MonthLabel(month))
	}
	var b strings.Builder
	fmt.Fprintf(&b, "💰 Ngân sách tháng %s\n", MonthLabel(month))
	total := decimal.Zero
	for _, bg := range budgets {
		fmt.Fprintf(&b, "• %s: %s\n", bg.Category, Money(bg.Amount))
		total = total.Add(bg.Amount)
	}
	fmt.Fprintf(&b, "Tổng: %s", Money(total))
	return b.String()
}

func FormatFunds(funds []ledger.Fund) string {
	if len(funds) == 0 {
		return "Chưa có dữ liệu số dư."
	}
	var b strings.Builder
	b.WriteString("🏦 Số dư các quỹ\n")
	for _, f := range funds {
		fmt.Fprintf(&b, "• %s (%s): %s\n", f.Name, f.Type, Money(f.Balance))
	}
	return strings.TrimRight(b.String(), "\n")
}

func FormatCategories(categories []ledger.Category) string {
	if len(categories) == 0 {
		return "Chưa có danh mục nào."
	}
	var b strings.Builder
	b.WriteString("📂 Danh mục\n")
	for _, c := range categories {
		b.WriteString("• " + c.Label)
		if !c.Active {
			b.WriteString(" (đã tắt)")
		}
		if c.Description != "" {
			b.WriteString(": " + c.Description)
		}
		b.WriteString("\n")
	}
	return strings.TrimRight(b.String(), "\n")
}

func FormatSearch(res *search.Result) string {
	if res == nil || res.TotalMatches == 0 {
		return "Không tìm thấy giao dịch nào phù hợp."
	}
	var b strings.Builder
	fmt.Fprintf(&b, "🔎 Tìm thấy %d giao dịch\n", res.TotalMatches)
	for _, g := range res.Results {
		fmt.Fprintf(&b, "\n%s (%d)\n", g.Group, g.Count)
		for _, c := range g.Categories {
			total := decimal.Zero
			for _, r := range c.Rows {
				total = total.Add(r.Amount)
			}
			fmt.Fprintf(&b, "%s: %s\n", categoryName(c.Category), Money(total))
			for i, r := range c.Rows {
				if i == maxRowsPerCategory {
					fmt.Fprintf(&b, "  … và %d giao dịch khác\n", len(c.Rows)-i)
					break
				}
				fmt.Fprintf(&b, "  %s %s %s [%s]\n", r.Date, r.Description, Money(r.Amount), r.ID)
			}
		}
	}
	return strings.TrimRight(b.String(), "\n")
}

func FormatRow(r ledger.Row) string {
	s := fmt.Sprintf("%s • %s • %s", r.Date, r.Description, Money(r.Amount))
	if r.Category != "" {
		s += " • " + r.Category
	}
	if r.Note != "" {
		s += " (" + r.Note + ")"
	}
	return s
}

func categoryName(c string) string {
	if c == "" {
		return "Khác"
	}
	return c
}
