// Package ledger defines the row store the assistant reads and mutates:
// transaction rows split into named partitions, monthly budgets, the
// category catalogue and fund balances.
package ledger

import (
	"context"
	"errors"
	"fmt"

	"github.com/shopspring/decimal"
)

// ErrNotFound matches every NotFoundError via errors.Is.
var ErrNotFound = errors.New("not found")

// ErrConflict is returned when creating an entity that already exists.
var ErrConflict = errors.New("already exists")

// NotFoundError names the missing entity and the key that was looked up.
type NotFoundError struct {
	Entity string // "partition", "transaction", "category", "budget"
	Key    string
}

func (e *NotFoundError) Error() string {
	return fmt.Sprintf("%s %q not found", e.Entity, e.Key)
}

// Is lets errors.Is(err, ErrNotFound) match.
func (e *NotFoundError) Is(target error) bool {
	return target == ErrNotFound
}

func notFound(entity, key string) error {
	return &NotFoundError{Entity: entity, Key: key}
}

// Row is one transaction line in a partition. Date is kept as the text the
// row was written with; ParseDate interprets it.
type Row struct {
	ID          string          `json:"id"`
	Partition   string          `json:"group"`
	Date        string          `json:"date"`
	Description string          `json:"description"`
	Amount      decimal.Decimal `json:"amount"`
	Category    string          `json:"category"`
	Note        string          `json:"note,omitempty"`
	Seq         int64           `json:"-"`
}

// RowUpdate carries the fields to change; nil fields are left untouched.
type RowUpdate struct {
	Date        *string
	Description *string
	Amount      *decimal.Decimal
	Category    *string
	Note        *string
}

// Empty reports whether the update changes nothing.
func (u RowUpdate) Empty() bool {
	return u.Date == nil && u.Description == nil && u.Amount == nil && u.Category == nil && u.Note == nil
}

// Category is a catalogue entry. Labels embed decorative symbols
// ("🍜 Ăn uống") and are matched exactly once resolved.
type Category struct {
	Label       string `json:"label"`
	Group       string `json:"group,omitempty"`
	Active      bool   `json:"active"`
	Description string `json:"description,omitempty"`
}

// Budget is the planned amount for one category in one month ("2006-01").
type Budget struct {
	Month    string          `json:"month"`
	Category string          `json:"category"`
	Amount   decimal.Decimal `json:"amount"`
}

// Fund is a named balance such as a savings or emergency fund.
type Fund struct {
	Name    string          `json:"name"`
	Type    string          `json:"type"`
	Balance decimal.Decimal `json:"balance"`
}

// Reader is the read-only half of the store, the only part exposed to the
// agent's tools.
type Reader interface {
	Partitions() []string
	FindRowByID(ctx context.Context, partition, id string) (Row, error)
	FindRow(ctx context.Context, id string) (Row, error)
	ListRows(ctx context.Context, partition string) ([]Row, error)
	Categories(ctx context.Context) ([]Category, error)
	Budgets(ctx context.Context, month string) ([]Budget, error)
	Funds(ctx context.Context, fundType string) ([]Fund, error)
}

// Writer holds the mutations used by the action handlers.
type Writer interface {
	AppendRow(ctx context.Context, partition string, row Row) (string, error)
	UpdateRow(ctx context.Context, partition, id string, upd RowUpdate) error
	DeleteRow(ctx context.Context, partition, id string) error
	AddCategory(ctx context.Context, c Category) error
	SetCategoryActive(ctx context.Context, label string, active bool) error
	DescribeCategory(ctx context.Context, label, description string) error
	CreateBudget(ctx context.Context, b Budget) error
	UpdateBudget(ctx context.Context, b Budget) error
	SetFund(ctx context.Context, f Fund) error
}

// Store is the full ledger collaborator.
type Store interface {
	Reader
	Writer
}
