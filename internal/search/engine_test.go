package search

import (
	"context"
	"errors"
	"testing"

	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/avvvet/ledgerbuddy/internal/ledger"
)

// fakeReader serves fixed rows per partition.
type fakeReader struct {
	partitions []string
	rows       map[string][]ledger.Row
	categories []ledger.Category
}

func (f *fakeReader) Partitions() []string { return f.partitions }

func (f *fakeReader) FindRowByID(_ context.Context, partition, id string) (ledger.Row, error) {
	for _, r := range f.rows[partition] {
		if r.ID == id {
			return r, nil
		}
	}
	return ledger.Row{}, &ledger.NotFoundError{Entity: "transaction", Key: id}
}

func (f *fakeReader) FindRow(ctx context.Context, id string) (ledger.Row, error) {
	for _, p := range f.partitions {
		if r, err := f.FindRowByID(ctx, p, id); err == nil {
			return r, nil
		}
	}
	return ledger.Row{}, &ledger.NotFoundError{Entity: "transaction", Key: id}
}

func (f *fakeReader) ListRows(_ context.Context, partition string) ([]ledger.Row, error) {
	for _, p := range f.partitions {
		if p == partition {
			return append([]ledger.Row(nil), f.rows[partition]...), nil
		}
	}
	return nil, &ledger.NotFoundError{Entity: "partition", Key: partition}
}

func (f *fakeReader) Categories(context.Context) ([]ledger.Category, error) {
	return f.categories, nil
}

func (f *fakeReader) Budgets(context.Context, string) ([]ledger.Budget, error) { return nil, nil }

func (f *fakeReader) Funds(context.Context, string) ([]ledger.Fund, error) { return nil, nil }

func row(id, partition, date, desc, category, note string, amount int64, seq int64) ledger.Row {
	return ledger.Row{
		ID: id, Partition: partition, Date: date, Description: desc,
		Category: category, Note: note, Amount: decimal.NewFromInt(amount), Seq: seq,
	}
}

func newFixture() *fakeReader {
	return &fakeReader{
		partitions: []string{"fixed_expense", "variable_expense"},
		categories: []ledger.Category{
			{Label: "🍜 Ăn uống", Active: true},
			{Label: "🚗 Đi lại", Active: true},
			{Label: "🏠 Nhà cửa", Active: true},
		},
		rows: map[string][]ledger.Row{
			"fixed_expense": {
				row("f1", "fixed_expense", "2024-03-01", "Tiền nhà", "🏠 Nhà cửa", "", 7000000, 1),
				row("f2", "fixed_expense", "2024-02-01", "Tiền nhà", "🏠 Nhà cửa", "", 7000000, 2),
			},
			"variable_expense": {
				row("v1", "variable_expense", "2024-03-02", "Đi làm", "🚗 Đi lại", "Uber ride", 60000, 1),
				row("v2", "variable_expense", "2024-03-05", "Pizza tối", "🍜 Ăn uống", "", 250000, 2),
				row("v3", "variable_expense", "2024-03-03", "Bún chả", "🍜 Ăn uống", "", 45000, 3),
				row("v4", "variable_expense", "hôm kia", "Phở", "🍜 Ăn uống", "", 50000, 4),
				row("v5", "variable_expense", "2024-02-28", "Grab", "🚗 Đi lại", "", 40000, 5),
				row("v6", "variable_expense", "???", "Trà sữa", "🍜 Ăn uống", "", 35000, 6),
			},
		},
	}
}

func ids(res *Result) []string {
	var out []string
	for _, g := range res.Results {
		for _, c := range g.Categories {
			for _, r := range c.Rows {
				out = append(out, r.ID)
			}
		}
	}
	return out
}

func TestSearch_EmptyCriteriaReturnsEveryRowOnce(t *testing.T) {
	f := newFixture()
	e := NewEngine(f, nil)

	res, err := e.Search(context.Background(), Criteria{})
	require.NoError(t, err)

	assert.Equal(t, 8, res.TotalMatches)
	got := ids(res)
	assert.Len(t, got, 8)
	assert.ElementsMatch(t, []string{"f1", "f2", "v1", "v2", "v3", "v4", "v5", "v6"}, got)
}

func TestSearch_KeywordsAreOrCombined(t *testing.T) {
	e := NewEngine(newFixture(), nil)

	res, err := e.Search(context.Background(), Criteria{Keywords: []string{"uber"}})
	require.NoError(t, err)
	assert.Equal(t, []string{"v1"}, ids(res))

	res, err = e.Search(context.Background(), Criteria{Keywords: []string{"uber", "PIZZA"}})
	require.NoError(t, err)
	assert.ElementsMatch(t, []string{"v1", "v2"}, ids(res))
	assert.Equal(t, 2, res.TotalMatches)
}

func TestSearch_KeywordIsLiteral(t *testing.T) {
	f := newFixture()
	f.rows["variable_expense"] = append(f.rows["variable_expense"],
		row("v7", "variable_expense", "2024-03-09", "Sửa xe (thay nhớt)", "🚗 Đi lại", "", 120000, 7))
	e := NewEngine(f, nil)

	res, err := e.Search(context.Background(), Criteria{Keywords: []string{"(thay"}})
	require.NoError(t, err)
	assert.Equal(t, []string{"v7"}, ids(res))
}

func TestSearch_DateBounds(t *testing.T) {
	e := NewEngine(newFixture(), nil)
	ctx := context.Background()

	c, err := ParseCriteria("2024-03-02", "2024-03-03", nil, nil, nil)
	require.NoError(t, err)
	res, err := e.Search(ctx, c)
	require.NoError(t, err)
	assert.ElementsMatch(t, []string{"v1", "v3"}, ids(res), "bounds are inclusive")

	c, err = ParseCriteria("03/03/2024", "", nil, nil, nil)
	require.NoError(t, err)
	res, err = e.Search(ctx, c)
	require.NoError(t, err)
	assert.ElementsMatch(t, []string{"v2", "v3"}, ids(res))

	c, err = ParseCriteria("", "2024-02-28", nil, nil, nil)
	require.NoError(t, err)
	res, err = e.Search(ctx, c)
	require.NoError(t, err)
	assert.ElementsMatch(t, []string{"f2", "v5"}, ids(res))
}

func TestSearch_CategoryResolution(t *testing.T) {
	e := NewEngine(newFixture(), nil)

	res, err := e.Search(context.Background(), Criteria{Categories: []string{"ăn"}})
	require.NoError(t, err)
	require.Len(t, res.Results, 1)
	assert.Equal(t, "variable_expense", res.Results[0].Group)
	require.Len(t, res.Results[0].Categories, 1)
	assert.Equal(t, "🍜 Ăn uống", res.Results[0].Categories[0].Category)
	assert.Equal(t, 4, res.TotalMatches)

	res, err = e.Search(context.Background(), Criteria{Categories: []string{"không có"}})
	require.NoError(t, err)
	assert.Empty(t, res.Results)
	assert.Equal(t, 0, res.TotalMatches)
}

func TestSearch_OrderingNewestFirstUndatedLast(t *testing.T) {
	e := NewEngine(newFixture(), nil)

	res, err := e.Search(context.Background(), Criteria{Groups: []string{"variable_expense"}, Categories: []string{"ăn uống"}})
	require.NoError(t, err)
	require.Len(t, res.Results, 1)
	cats := res.Results[0].Categories
	require.Len(t, cats, 1)

	var got []string
	for _, r := range cats[0].Rows {
		got = append(got, r.ID)
	}
	assert.Equal(t, []string{"v2", "v3", "v4", "v6"}, got)
}

func TestSearch_GroupsBucketedByCategory(t *testing.T) {
	e := NewEngine(newFixture(), nil)

	res, err := e.Search(context.Background(), Criteria{Groups: []string{"variable_expense"}})
	require.NoError(t, err)
	require.Len(t, res.Results, 1)
	g := res.Results[0]
	assert.Equal(t, 6, g.Count)
	require.Len(t, g.Categories, 2)
	assert.Equal(t, "🚗 Đi lại", g.Categories[0].Category)
	assert.Equal(t, "v1", g.Categories[0].Rows[0].ID)
	assert.Equal(t, "🍜 Ăn uống", g.Categories[1].Category)
}

func TestSearch_ZeroMatches(t *testing.T) {
	e := NewEngine(newFixture(), nil)

	res, err := e.Search(context.Background(), Criteria{Keywords: []string{"du thuyền"}})
	require.NoError(t, err)
	assert.NotNil(t, res.Results)
	assert.Empty(t, res.Results)
	assert.Zero(t, res.TotalMatches)
}

func TestSearch_UnknownGroup(t *testing.T) {
	e := NewEngine(newFixture(), nil)

	_, err := e.Search(context.Background(), Criteria{Groups: []string{"savings"}})
	require.Error(t, err)
	assert.True(t, errors.Is(err, ledger.ErrNotFound))
}

func TestParseCriteria(t *testing.T) {
	c, err := ParseCriteria("", "", []string{"a", "a", " "}, []string{"Ăn", "ăn"}, []string{"x", "X", ""})
	require.NoError(t, err)
	assert.Equal(t, []string{"a"}, c.Groups)
	assert.Equal(t, []string{"Ăn"}, c.Categories)
	assert.Equal(t, []string{"x"}, c.Keywords)
	assert.Nil(t, c.StartDate)

	_, err = ParseCriteria("soon", "", nil, nil, nil)
	assert.Error(t, err)

	_, err = ParseCriteria("2024-03-10", "2024-03-01", nil, nil, nil)
	assert.Error(t, err)

	assert.Nil(t, Criteria{}.KeywordPattern())
	p := Criteria{Keywords: []string{"uber", "pizza"}}.KeywordPattern()
	assert.True(t, p.MatchString("Pizza hut"))
	assert.False(t, p.MatchString("phở"))
}
