package actions

import (
	"context"
	"fmt"
	"strings"

	"github.com/avvvet/ledgerbuddy/internal/ledger"
	"github.com/avvvet/ledgerbuddy/internal/models"
	"github.com/avvvet/ledgerbuddy/internal/report"
)

// DeleteAffordanceData is the prefix of the inline "delete" button data;
// the full value is "delete:<group>:<id>".
const DeleteAffordanceData = "delete"

func deleteAffordance(group, id string) *models.ReplyAffordance {
	return &models.ReplyAffordance{
		Label: "🗑 Xóa giao dịch này",
		Data:  strings.Join([]string{DeleteAffordanceData, group, id}, ":"),
	}
}

func (r *Registry) handleAddTransaction(ctx context.Context, _ models.Session, intent models.Intent) (models.ActionResult, error) {
	p := intent.Payload.(models.AddTransaction)
	const op = "add_transaction"

	row := ledger.Row{
		Date:        p.Date,
		Description: p.Description,
		Amount:      p.Amount,
		Note:        p.Note,
	}
	if p.Category != "" {
		c, err := r.resolveCategory(ctx, p.Category)
		if err != nil {
			if res, ok := expected(err, op); ok {
				return res, nil
			}
			return models.ActionResult{}, err
		}
		if !c.Active {
			return models.Fail(
				fmt.Sprintf("Danh mục \"%s\" đang tắt. Bạn bật lại danh mục trước khi ghi nhé.", c.Label),
				fmt.Sprintf("%s: category %q inactive", op, c.Label)), nil
		}
		row.Category = c.Label
	}

	// Existing rows are read before the append so the new row is never its
	// own duplicate.
	existing, err := r.store.ListRows(ctx, p.Group)
	if err != nil {
		if res, ok := expected(err, op); ok {
			return res, nil
		}
		return models.ActionResult{}, err
	}

	id, err := r.store.AppendRow(ctx, p.Group, row)
	if err != nil {
		if res, ok := expected(err, op); ok {
			return res, nil
		}
		return models.ActionResult{}, err
	}
	row.ID = id

	msg := fmt.Sprintf("✅ Đã ghi %s: %s • %s", p.Group, report.FormatRow(row), id)
	res := models.OK(fmt.Sprintf("%s: appended %s to %s", op, id, p.Group), msg)

	if dups := r.duplicates.Find(existing, row); len(dups) > 0 {
		var b strings.Builder
		b.WriteString("⚠️ Giao dịch này có thể bị trùng với:")
		for _, d := range dups {
			fmt.Fprintf(&b, "\n• %s • %s", report.FormatRow(d), d.ID)
		}
		res.Messages = append(res.Messages, b.String())
		res.Logs = append(res.Logs, fmt.Sprintf("%s: %d possible duplicates of %s", op, len(dups), id))
		r.logger.Info("possible duplicate transaction", "id", id, "group", p.Group, "matches", len(dups))
	}
	res.Affordance = deleteAffordance(p.Group, id)
	return res, nil
}

// findRow resolves a row by its stable id, in group when given.
func (r *Registry) findRow(ctx context.Context, group, id string) (ledger.Row, error) {
	if group != "" {
		return r.store.FindRowByID(ctx, group, id)
	}
	return r.store.FindRow(ctx, id)
}

func (r *Registry) handleModifyTransaction(ctx context.Context, _ models.Session, intent models.Intent) (models.ActionResult, error) {
	p := intent.Payload.(models.ModifyTransaction)
	const op = "modify_transaction"

	changes := p.Changes
	if changes.Category != nil {
		c, err := r.resolveCategory(ctx, *changes.Category)
		if err != nil {
			if res, ok := expected(err, op); ok {
				return res, nil
			}
			return models.ActionResult{}, err
		}
		changes.Category = &c.Label
	}

	// Re-resolve by id right before mutating; row positions are never used.
	row, err := r.findRow(ctx, p.Group, p.ID)
	if err != nil {
		if res, ok := expected(err, op); ok {
			return res, nil
		}
		return models.ActionResult{}, err
	}
	if err := r.store.UpdateRow(ctx, row.Partition, row.ID, changes); err != nil {
		if res, ok := expected(err, op); ok {
			return res, nil
		}
		return models.ActionResult{}, err
	}
	updated, err := r.store.FindRowByID(ctx, row.Partition, row.ID)
	if err != nil {
		return models.ActionResult{}, err
	}

	return models.OK(
		fmt.Sprintf("%s: updated %s in %s", op, row.ID, row.Partition),
		fmt.Sprintf("✏️ Đã cập nhật giao dịch %s\nTrước: %s\nSau: %s", row.ID, report.FormatRow(row), report.FormatRow(updated)),
	), nil
}

func (r *Registry) handleDeleteTransaction(ctx context.Context, _ models.Session, intent models.Intent) (models.ActionResult, error) {
	p := intent.Payload.(models.DeleteTransaction)
	const op = "delete_transaction"

	row, err := r.findRow(ctx, p.Group, p.ID)
	if err != nil {
		if res, ok := expected(err, op); ok {
			return res, nil
		}
		return models.ActionResult{}, err
	}
	if err := r.store.DeleteRow(ctx, row.Partition, row.ID); err != nil {
		if res, ok := expected(err, op); ok {
			return res, nil
		}
		return models.ActionResult{}, err
	}

	return models.OK(
		fmt.Sprintf("%s: deleted %s from %s", op, row.ID, row.Partition),
		fmt.Sprintf("🗑 Đã xóa giao dịch %s: %s", row.ID, report.FormatRow(row)),
	), nil
}
