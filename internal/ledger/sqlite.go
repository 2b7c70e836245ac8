package ledger

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"strings"
	"time"
)

// SQLStore is the ledger backed by a SQLite database. Rows keep their
// insertion sequence so callers can fall back to write order. Partitions
// are fixed at construction.
type SQLStore struct {
	db         *sql.DB
	partitions []string
	now        func() time.Time
}

// NewSQLStore wraps an open database and creates the schema on first use.
// The caller owns the driver choice (mattn/go-sqlite3 in the service,
// modernc.org/sqlite in tests).
func NewSQLStore(db *sql.DB, partitions []string) (*SQLStore, error) {
	if len(partitions) == 0 {
		return nil, fmt.Errorf("at least one partition is required")
	}
	s := &SQLStore{
		db:         db,
		partitions: append([]string(nil), partitions...),
		now:        time.Now,
	}
	if err := s.migrate(); err != nil {
		return nil, fmt.Errorf("migrate: %w", err)
	}
	return s, nil
}

// Close closes the database connection.
func (s *SQLStore) Close() error {
	return s.db.Close()
}

func (s *SQLStore) migrate() error {
	schema := `
	CREATE TABLE IF NOT EXISTS transactions (
		seq         INTEGER PRIMARY KEY AUTOINCREMENT,
		id          TEXT NOT NULL UNIQUE,
		grp         TEXT NOT NULL,
		date        TEXT NOT NULL,
		description TEXT NOT NULL DEFAULT '',
		amount      TEXT NOT NULL,
		category    TEXT NOT NULL DEFAULT '',
		note        TEXT NOT NULL DEFAULT '',
		created_at  TEXT NOT NULL
	);
	CREATE INDEX IF NOT EXISTS idx_transactions_grp ON transactions(grp, seq);

	CREATE TABLE IF NOT EXISTS categories (
		label       TEXT PRIMARY KEY,
		grp         TEXT NOT NULL DEFAULT '',
		active      INTEGER NOT NULL DEFAULT 1,
		description TEXT NOT NULL DEFAULT ''
	);

	CREATE TABLE IF NOT EXISTS budgets (
		month    TEXT NOT NULL,
		category TEXT NOT NULL,
		amount   TEXT NOT NULL,
		PRIMARY KEY (month, category)
	);

	CREATE TABLE IF NOT EXISTS funds (
		name    TEXT PRIMARY KEY,
		type    TEXT NOT NULL,
		balance TEXT NOT NULL
	);
	`
	_, err := s.db.Exec(schema)
	return err
}

// Partitions returns the configured partition names in order.
func (s *SQLStore) Partitions() []string {
	return append([]string(nil), s.partitions...)
}

func (s *SQLStore) checkPartition(partition string) error {
	for _, p := range s.partitions {
		if p == partition {
			return nil
		}
	}
	return notFound("partition", partition)
}

const rowColumns = `id, grp, date, description, amount, category, note, seq`

func scanRow(sc interface{ Scan(...any) error }) (Row, error) {
	var r Row
	err := sc.Scan(&r.ID, &r.Partition, &r.Date, &r.Description, &r.Amount, &r.Category, &r.Note, &r.Seq)
	return r, err
}

// FindRowByID returns the row with id inside partition.
func (s *SQLStore) FindRowByID(ctx context.Context, partition, id string) (Row, error) {
	if err := s.checkPartition(partition); err != nil {
		return Row{}, err
	}
	r, err := scanRow(s.db.QueryRowContext(ctx,
		`SELECT `+rowColumns+` FROM transactions WHERE grp = ? AND id = ?`, partition, id))
	if errors.Is(err, sql.ErrNoRows) {
		return Row{}, notFound("transaction", id)
	}
	if err != nil {
		return Row{}, fmt.Errorf("find %s/%s: %w", partition, id, err)
	}
	return r, nil
}

// FindRow looks id up across every partition.
func (s *SQLStore) FindRow(ctx context.Context, id string) (Row, error) {
	r, err := scanRow(s.db.QueryRowContext(ctx,
		`SELECT `+rowColumns+` FROM transactions WHERE id = ?`, id))
	if errors.Is(err, sql.ErrNoRows) {
		return Row{}, notFound("transaction", id)
	}
	if err != nil {
		return Row{}, fmt.Errorf("find %s: %w", id, err)
	}
	return r, nil
}

// ListRows returns a partition's rows in insertion order.
func (s *SQLStore) ListRows(ctx context.Context, partition string) ([]Row, error) {
	if err := s.checkPartition(partition); err != nil {
		return nil, err
	}
	rows, err := s.db.QueryContext(ctx,
		`SELECT `+rowColumns+` FROM transactions WHERE grp = ? ORDER BY seq`, partition)
	if err != nil {
		return nil, fmt.Errorf("list %s: %w", partition, err)
	}
	defer rows.Close()

	var out []Row
	for rows.Next() {
		r, err := scanRow(rows)
		if err != nil {
			return nil, fmt.Errorf("scan %s: %w", partition, err)
		}
		out = append(out, r)
	}
	return out, rows.Err()
}

// AppendRow writes a new row and returns its id. A row without an id gets
// one from NewID.
func (s *SQLStore) AppendRow(ctx context.Context, partition string, row Row) (string, error) {
	if err := s.checkPartition(partition); err != nil {
		return "", err
	}
	now := s.now()
	if row.ID == "" {
		row.ID = NewID(now)
	}
	if row.Date == "" {
		row.Date = now.Format(DateLayout)
	}
	_, err := s.db.ExecContext(ctx,
		`INSERT INTO transactions (id, grp, date, description, amount, category, note, created_at)
		 VALUES (?, ?, ?, ?, ?, ?, ?, ?)`,
		row.ID, partition, row.Date, row.Description, row.Amount.String(), row.Category, row.Note,
		now.UTC().Format(time.RFC3339),
	)
	if err != nil {
		return "", fmt.Errorf("append %s: %w", partition, err)
	}
	return row.ID, nil
}

// UpdateRow changes the non-nil fields of upd on the row with id.
func (s *SQLStore) UpdateRow(ctx context.Context, partition, id string, upd RowUpdate) error {
	if err := s.checkPartition(partition); err != nil {
		return err
	}
	if upd.Empty() {
		_, err := s.FindRowByID(ctx, partition, id)
		return err
	}

	var (
		sets []string
		args []any
	)
	add := func(col string, v any) {
		sets = append(sets, col+" = ?")
		args = append(args, v)
	}
	if upd.Date != nil {
		add("date", *upd.Date)
	}
	if upd.Description != nil {
		add("description", *upd.Description)
	}
	if upd.Amount != nil {
		add("amount", upd.Amount.String())
	}
	if upd.Category != nil {
		add("category", *upd.Category)
	}
	if upd.Note != nil {
		add("note", *upd.Note)
	}
	args = append(args, partition, id)

	res, err := s.db.ExecContext(ctx,
		`UPDATE transactions SET `+strings.Join(sets, ", ")+` WHERE grp = ? AND id = ?`, args...)
	if err != nil {
		return fmt.Errorf("update %s/%s: %w", partition, id, err)
	}
	return affectedOrNotFound(res, "transaction", id)
}

// DeleteRow removes the row with id.
func (s *SQLStore) DeleteRow(ctx context.Context, partition, id string) error {
	if err := s.checkPartition(partition); err != nil {
		return err
	}
	res, err := s.db.ExecContext(ctx, `DELETE FROM transactions WHERE grp = ? AND id = ?`, partition, id)
	if err != nil {
		return fmt.Errorf("delete %s/%s: %w", partition, id, err)
	}
	return affectedOrNotFound(res, "transaction", id)
}

func affectedOrNotFound(res sql.Result, entity, key string) error {
	n, err := res.RowsAffected()
	if err != nil {
		return fmt.Errorf("rows affected: %w", err)
	}
	if n == 0 {
		return notFound(entity, key)
	}
	return nil
}

// Categories returns the catalogue in insertion order.
func (s *SQLStore) Categories(ctx context.Context) ([]Category, error) {
	rows, err := s.db.QueryContext(ctx,
		`SELECT label, grp, active, description FROM categories ORDER BY rowid`)
	if err != nil {
		return nil, fmt.Errorf("list categories: %w", err)
	}
	defer rows.Close()

	var out []Category
	for rows.Next() {
		var c Category
		if err := rows.Scan(&c.Label, &c.Group, &c.Active, &c.Description); err != nil {
			return nil, fmt.Errorf("scan category: %w", err)
		}
		out = append(out, c)
	}
	return out, rows.Err()
}

// AddCategory inserts a new catalogue entry.
func (s *SQLStore) AddCategory(ctx context.Context, c Category) error {
	exists, err := s.exists(ctx, `SELECT COUNT(*) FROM categories WHERE label = ?`, c.Label)
	if err != nil {
		return err
	}
	if exists {
		return fmt.Errorf("category %q: %w", c.Label, ErrConflict)
	}
	_, err = s.db.ExecContext(ctx,
		`INSERT INTO categories (label, grp, active, description) VALUES (?, ?, ?, ?)`,
		c.Label, c.Group, c.Active, c.Description)
	if err != nil {
		return fmt.Errorf("add category %q: %w", c.Label, err)
	}
	return nil
}

// SetCategoryActive toggles whether a category can receive new rows.
func (s *SQLStore) SetCategoryActive(ctx context.Context, label string, active bool) error {
	res, err := s.db.ExecContext(ctx, `UPDATE categories SET active = ? WHERE label = ?`, active, label)
	if err != nil {
		return fmt.Errorf("set category %q active: %w", label, err)
	}
	return affectedOrNotFound(res, "category", label)
}

// DescribeCategory replaces a category's description.
func (s *SQLStore) DescribeCategory(ctx context.Context, label, description string) error {
	res, err := s.db.ExecContext(ctx, `UPDATE categories SET description = ? WHERE label = ?`, description, label)
	if err != nil {
		return fmt.Errorf("describe category %q: %w", label, err)
	}
	return affectedOrNotFound(res, "category", label)
}

// Budgets returns the budget lines for month ordered by category.
func (s *SQLStore) Budgets(ctx context.Context, month string) ([]Budget, error) {
	rows, err := s.db.QueryContext(ctx,
		`SELECT month, category, amount FROM budgets WHERE month = ? ORDER BY category`, month)
	if err != nil {
		return nil, fmt.Errorf("list budgets %s: %w", month, err)
	}
	defer rows.Close()

	var out []Budget
	for rows.Next() {
		var b Budget
		if err := rows.Scan(&b.Month, &b.Category, &b.Amount); err != nil {
			return nil, fmt.Errorf("scan budget: %w", err)
		}
		out = append(out, b)
	}
	return out, rows.Err()
}

// CreateBudget adds a budget line; an existing month/category is a conflict.
func (s *SQLStore) CreateBudget(ctx context.Context, b Budget) error {
	exists, err := s.exists(ctx, `SELECT COUNT(*) FROM budgets WHERE month = ? AND category = ?`, b.Month, b.Category)
	if err != nil {
		return err
	}
	if exists {
		return fmt.Errorf("budget %s/%s: %w", b.Month, b.Category, ErrConflict)
	}
	_, err = s.db.ExecContext(ctx,
		`INSERT INTO budgets (month, category, amount) VALUES (?, ?, ?)`,
		b.Month, b.Category, b.Amount.String())
	if err != nil {
		return fmt.Errorf("create budget %s/%s: %w", b.Month, b.Category, err)
	}
	return nil
}

// UpdateBudget changes the amount of an existing budget line.
func (s *SQLStore) UpdateBudget(ctx context.Context, b Budget) error {
	res, err := s.db.ExecContext(ctx,
		`UPDATE budgets SET amount = ? WHERE month = ? AND category = ?`,
		b.Amount.String(), b.Month, b.Category)
	if err != nil {
		return fmt.Errorf("update budget %s/%s: %w", b.Month, b.Category, err)
	}
	return affectedOrNotFound(res, "budget", b.Month+" "+b.Category)
}

// Funds returns fund balances, filtered by type unless fundType is empty.
func (s *SQLStore) Funds(ctx context.Context, fundType string) ([]Fund, error) {
	query := `SELECT name, type, balance FROM funds`
	var args []any
	if fundType != "" {
		query += ` WHERE lower(type) = lower(?)`
		args = append(args, fundType)
	}
	query += ` ORDER BY type, name`

	rows, err := s.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("list funds: %w", err)
	}
	defer rows.Close()

	var out []Fund
	for rows.Next() {
		var f Fund
		if err := rows.Scan(&f.Name, &f.Type, &f.Balance); err != nil {
			return nil, fmt.Errorf("scan fund: %w", err)
		}
		out = append(out, f)
	}
	return out, rows.Err()
}

// SetFund upserts a fund balance.
func (s *SQLStore) SetFund(ctx context.Context, f Fund) error {
	_, err := s.db.ExecContext(ctx,
		`INSERT INTO funds (name, type, balance) VALUES (?, ?, ?)
		 ON CONFLICT (name) DO UPDATE SET type = excluded.type, balance = excluded.balance`,
		f.Name, f.Type, f.Balance.String())
	if err != nil {
		return fmt.Errorf("set fund %q: %w", f.Name, err)
	}
	return nil
}

// Seed inserts catalogue categories and funds that are not present yet.
// Existing entries are left as the user last edited them.
func (s *SQLStore) Seed(ctx context.Context, categories []Category, funds []Fund) error {
	for _, c := range categories {
		if _, err := s.db.ExecContext(ctx,
			`INSERT OR IGNORE INTO categories (label, grp, active, description) VALUES (?, ?, ?, ?)`,
			c.Label, c.Group, c.Active, c.Description); err != nil {
			return fmt.Errorf("seed category %q: %w", c.Label, err)
		}
	}
	for _, f := range funds {
		if _, err := s.db.ExecContext(ctx,
			`INSERT OR IGNORE INTO funds (name, type, balance) VALUES (?, ?, ?)`,
			f.Name, f.Type, f.Balance.String()); err != nil {
			return fmt.Errorf("seed fund %q: %w", f.Name, err)
		}
	}
	return nil
}

func (s *SQLStore) exists(ctx context.Context, query string, args ...any) (bool, error) {
	var n int
	if err := s.db.QueryRowContext(ctx, query, args...).Scan(&n); err != nil {
		return false, fmt.Errorf("exists: %w", err)
	}
	return n > 0, nil
}
