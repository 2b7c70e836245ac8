package search

import (
	"context"
	"fmt"
	"log/slog"
	"regexp"
	"sort"
	"strings"
	"time"

	"github.com/avvvet/ledgerbuddy/internal/ledger"
)

// Result is the outcome of a search. Zero matches is an empty Results
// slice, not an error.
type Result struct {
	Results      []GroupMatches `json:"results"`
	TotalMatches int            `json:"total_matches"`
}

// GroupMatches holds the matches of one partition, bucketed by category.
type GroupMatches struct {
	Group      string            `json:"group"`
	Count      int               `json:"count"`
	Categories []CategoryMatches `json:"categories"`
}

// CategoryMatches lists rows of one resolved category, newest first.
type CategoryMatches struct {
	Category string       `json:"category"`
	Rows     []ledger.Row `json:"rows"`
}

// Engine runs searches against a ledger reader.
type Engine struct {
	store  ledger.Reader
	logger *slog.Logger
}

func NewEngine(store ledger.Reader, logger *slog.Logger) *Engine {
	if logger == nil {
		logger = slog.Default()
	}
	return &Engine{store: store, logger: logger}
}

// Search returns the rows matching c grouped by partition and category.
func (e *Engine) Search(ctx context.Context, c Criteria) (*Result, error) {
	groups := c.Groups
	if len(groups) == 0 {
		groups = e.store.Partitions()
	}

	// Category filters match loosely, resolved labels match exactly.
	var labels map[string]bool
	if len(c.Categories) > 0 {
		catalogue, err := e.store.Categories(ctx)
		if err != nil {
			return nil, fmt.Errorf("load categories: %w", err)
		}
		resolved := ResolveCategories(catalogue, c.Categories)
		labels = make(map[string]bool, len(resolved))
		for _, l := range resolved {
			labels[l] = true
		}
		e.logger.Debug("resolved category filter", "filters", c.Categories, "labels", resolved)
	}

	pattern := c.KeywordPattern()

	result := &Result{Results: []GroupMatches{}}
	for _, group := range groups {
		rows, err := e.store.ListRows(ctx, group)
		if err != nil {
			return nil, err
		}

		var matched []ledger.Row
		for _, r := range rows {
			if !e.matches(c, labels, pattern, r) {
				continue
			}
			matched = append(matched, r)
		}
		if len(matched) == 0 {
			continue
		}

		result.Results = append(result.Results, GroupMatches{
			Group:      group,
			Count:      len(matched),
			Categories: bucketByCategory(matched),
		})
		result.TotalMatches += len(matched)
	}

	e.logger.Debug("search completed", "groups", len(groups), "matches", result.TotalMatches)
	return result, nil
}

func (e *Engine) matches(c Criteria, labels map[string]bool, pattern *regexp.Regexp, r ledger.Row) bool {
	if c.hasDateBounds() {
		d, ok := ledger.ParseDate(r.Date)
		if !ok || !c.matchesDate(d) {
			return false
		}
	}
	if labels != nil && !labels[r.Category] {
		return false
	}
	if pattern != nil {
		text := strings.ToLower(r.Description + " " + r.Note)
		if !pattern.MatchString(text) {
			return false
		}
	}
	return true
}

// bucketByCategory groups rows by category in order of first appearance
// and sorts each bucket newest first. Rows with unparseable dates keep
// their insertion order after the dated ones.
func bucketByCategory(rows []ledger.Row) []CategoryMatches {
	index := make(map[string]int)
	var buckets []CategoryMatches
	for _, r := range rows {
		i, ok := index[r.Category]
		if !ok {
			i = len(buckets)
			index[r.Category] = i
			buckets = append(buckets, CategoryMatches{Category: r.Category})
		}
		buckets[i].Rows = append(buckets[i].Rows, r)
	}
	for i := range buckets {
		sortNewestFirst(buckets[i].Rows)
	}
	return buckets
}

func sortNewestFirst(rows []ledger.Row) {
	type keyed struct {
		row   ledger.Row
		date  time.Time
		dated bool
	}
	keyedRows := make([]keyed, len(rows))
	for i, r := range rows {
		d, ok := ledger.ParseDate(r.Date)
		keyedRows[i] = keyed{row: r, date: d, dated: ok}
	}
	sort.SliceStable(keyedRows, func(i, j int) bool {
		a, b := keyedRows[i], keyedRows[j]
		if a.dated && b.dated {
			return a.date.After(b.date)
		}
		// Dated rows first; undated rows stay in insertion order.
		return a.dated && !b.dated
	})
	for i := range keyedRows {
		rows[i] = keyedRows[i].row
	}
}
