package actions

import (
	"context"
	"errors"
	"fmt"

	"github.com/avvvet/ledgerbuddy/internal/ledger"
	"github.com/avvvet/ledgerbuddy/internal/models"
	"github.com/avvvet/ledgerbuddy/internal/report"
)

func (r *Registry) handleCreateBudget(ctx context.Context, _ models.Session, intent models.Intent) (models.ActionResult, error) {
	p := intent.Payload.(models.CreateBudget)
	return r.saveBudget(ctx, "create_budget", p, true)
}

func (r *Registry) handleModifyBudget(ctx context.Context, _ models.Session, intent models.Intent) (models.ActionResult, error) {
	p := intent.Payload.(models.ModifyBudget)
	return r.saveBudget(ctx, "modify_budget", models.CreateBudget(p), false)
}

// saveBudget creates or updates one budget line. ModifyBudget converts to
// CreateBudget since both carry the same fields.
func (r *Registry) saveBudget(ctx context.Context, op string, p models.CreateBudget, create bool) (models.ActionResult, error) {
	month := p.Month
	c, err := r.resolveCategory(ctx, p.Category)
	if err != nil {
		if res, ok := expected(err, op); ok {
			return res, nil
		}
		return models.ActionResult{}, err
	}
	b := ledger.Budget{Month: month, Category: c.Label, Amount: p.Amount}

	if create {
		err = r.store.CreateBudget(ctx, b)
	} else {
		err = r.store.UpdateBudget(ctx, b)
	}
	if errors.Is(err, ledger.ErrConflict) {
		return models.Fail(
			fmt.Sprintf("Ngân sách %s tháng %s đã có. Bạn muốn sửa số tiền thì nói \"sửa ngân sách\" nhé.", c.Label, report.MonthLabel(month)),
			fmt.Sprintf("%s: %v", op, err)), nil
	}
	if err != nil {
		if res, ok := expected(err, op); ok {
			return res, nil
		}
		return models.ActionResult{}, err
	}

	verb := "Đã tạo"
	if !create {
		verb = "Đã cập nhật"
	}
	return models.OK(
		fmt.Sprintf("%s: %s %s = %s", op, month, c.Label, p.Amount),
		fmt.Sprintf("💰 %s ngân sách %s tháng %s: %s", verb, c.Label, report.MonthLabel(month), report.Money(p.Amount)),
	), nil
}

func (r *Registry) handleGetBudget(ctx context.Context, _ models.Session, intent models.Intent) (models.ActionResult, error) {
	p := intent.Payload.(models.GetBudget)
	budgets, err := r.store.Budgets(ctx, p.Month)
	if err != nil {
		return models.ActionResult{}, err
	}
	return models.OK(fmt.Sprintf("get_budget: %s, %d lines", p.Month, len(budgets)),
		report.FormatBudgets(p.Month, budgets)), nil
}

func (r *Registry) handleGetBalances(ctx context.Context, _ models.Session, intent models.Intent) (models.ActionResult, error) {
	p := intent.Payload.(models.GetBalances)
	funds, err := r.store.Funds(ctx, p.Type)
	if err != nil {
		return models.ActionResult{}, err
	}
	return models.OK(fmt.Sprintf("get_balances: %d funds", len(funds)), report.FormatFunds(funds)), nil
}

func (r *Registry) handleGetReport(ctx context.Context, _ models.Session, intent models.Intent) (models.ActionResult, error) {
	p := intent.Payload.(models.GetReport)
	d, err := r.reports.Dashboard(ctx, p.Month)
	if err != nil {
		if res, ok := expected(err, "get_report"); ok {
			return res, nil
		}
		return models.ActionResult{}, err
	}
	return models.OK(fmt.Sprintf("get_report: %s, %d rows", p.Month, d.RowCount), report.FormatDashboard(d)), nil
}

func (r *Registry) handleSearch(ctx context.Context, _ models.Session, intent models.Intent) (models.ActionResult, error) {
	p := intent.Payload.(models.Search)
	res, err := r.search.Search(ctx, p.Criteria)
	if err != nil {
		if out, ok := expected(err, "search"); ok {
			return out, nil
		}
		return models.ActionResult{}, err
	}
	return models.OK(fmt.Sprintf("search: %d matches", res.TotalMatches), report.FormatSearch(res)), nil
}

func (r *Registry) handleListCategories(ctx context.Context, _ models.Session, intent models.Intent) (models.ActionResult, error) {
	p := intent.Payload.(models.ListCategories)
	all, err := r.store.Categories(ctx)
	if err != nil {
		return models.ActionResult{}, err
	}
	var shown []ledger.Category
	for _, c := range all {
		if c.Active || p.IncludeInactive {
			shown = append(shown, c)
		}
	}
	return models.OK(fmt.Sprintf("list_categories: %d shown", len(shown)), report.FormatCategories(shown)), nil
}

func (r *Registry) handleAddCategory(ctx context.Context, _ models.Session, intent models.Intent) (models.ActionResult, error) {
	p := intent.Payload.(models.AddCategory)
	const op = "add_category"

	if p.Group != "" && !r.knownPartition(p.Group) {
		return models.Fail(fmt.Sprintf("Không tìm thấy nhóm giao dịch \"%s\".", p.Group),
			fmt.Sprintf("%s: unknown group %q", op, p.Group)), nil
	}
	err := r.store.AddCategory(ctx, ledger.Category{Label: p.Label, Group: p.Group, Active: true, Description: p.Description})
	if errors.Is(err, ledger.ErrConflict) {
		return models.Fail(fmt.Sprintf("Danh mục \"%s\" đã tồn tại.", p.Label), fmt.Sprintf("%s: %v", op, err)), nil
	}
	if err != nil {
		return models.ActionResult{}, err
	}
	return models.OK(fmt.Sprintf("%s: %q", op, p.Label), fmt.Sprintf("📂 Đã thêm danh mục \"%s\".", p.Label)), nil
}

func (r *Registry) handleActivateCategory(ctx context.Context, _ models.Session, intent models.Intent) (models.ActionResult, error) {
	p := intent.Payload.(models.ActivateCategory)
	const op = "activate_category"

	c, err := r.resolveCategory(ctx, p.Label)
	if err == nil {
		err = r.store.SetCategoryActive(ctx, c.Label, p.Active)
	}
	if err != nil {
		if res, ok := expected(err, op); ok {
			return res, nil
		}
		return models.ActionResult{}, err
	}

	state := "bật"
	if !p.Active {
		state = "tắt"
	}
	return models.OK(fmt.Sprintf("%s: %q active=%t", op, c.Label, p.Active),
		fmt.Sprintf("📂 Đã %s danh mục \"%s\".", state, c.Label)), nil
}

func (r *Registry) handleDescribeCategory(ctx context.Context, _ models.Session, intent models.Intent) (models.ActionResult, error) {
	p := intent.Payload.(models.DescribeCategory)
	const op = "describe_category"

	c, err := r.resolveCategory(ctx, p.Label)
	if err == nil {
		err = r.store.DescribeCategory(ctx, c.Label, p.Description)
	}
	if err != nil {
		if res, ok := expected(err, op); ok {
			return res, nil
		}
		return models.ActionResult{}, err
	}
	return models.OK(fmt.Sprintf("%s: %q", op, c.Label),
		fmt.Sprintf("📂 Đã cập nhật mô tả danh mục \"%s\": %s", c.Label, p.Description)), nil
}

func (r *Registry) knownPartition(group string) bool {
	for _, p := range r.store.Partitions() {
		if p == group {
			return true
		}
	}
	return false
}
