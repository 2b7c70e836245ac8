// Package search resolves structured filters into ledger rows across
// partitions.
package search

import (
	"fmt"
	"regexp"
	"strings"
	"time"

	"github.com/avvvet/ledgerbuddy/internal/ledger"
)

// Criteria filters ledger rows. Every empty field matches everything.
type Criteria struct {
	StartDate  *time.Time
	EndDate    *time.Time
	Groups     []string
	Categories []string
	Keywords   []string
}

// ParseCriteria builds Criteria from loosely typed input such as tool
// arguments. Blank and repeated entries are dropped.
func ParseCriteria(startDate, endDate string, groups, categories, keywords []string) (Criteria, error) {
	var c Criteria
	if strings.TrimSpace(startDate) != "" {
		t, ok := ledger.ParseDate(startDate)
		if !ok {
			return Criteria{}, fmt.Errorf("invalid start date %q", startDate)
		}
		c.StartDate = &t
	}
	if strings.TrimSpace(endDate) != "" {
		t, ok := ledger.ParseDate(endDate)
		if !ok {
			return Criteria{}, fmt.Errorf("invalid end date %q", endDate)
		}
		c.EndDate = &t
	}
	if c.StartDate != nil && c.EndDate != nil && c.EndDate.Before(*c.StartDate) {
		return Criteria{}, fmt.Errorf("end date %s is before start date %s", endDate, startDate)
	}
	c.Groups = dedupe(groups, false)
	c.Categories = dedupe(categories, true)
	c.Keywords = dedupe(keywords, true)
	return c, nil
}

// KeywordPattern joins all keywords into one case-insensitive alternation.
// It returns nil when there are no keywords.
func (c Criteria) KeywordPattern() *regexp.Regexp {
	if len(c.Keywords) == 0 {
		return nil
	}
	quoted := make([]string, 0, len(c.Keywords))
	for _, k := range c.Keywords {
		quoted = append(quoted, regexp.QuoteMeta(strings.ToLower(k)))
	}
	return regexp.MustCompile(`(?i)(?:` + strings.Join(quoted, "|") + `)`)
}

// matchesDate applies inclusive bounds on the calendar day.
func (c Criteria) matchesDate(d time.Time) bool {
	day := truncateDay(d)
	if c.StartDate != nil && day.Before(truncateDay(*c.StartDate)) {
		return false
	}
	if c.EndDate != nil && day.After(truncateDay(*c.EndDate)) {
		return false
	}
	return true
}

func (c Criteria) hasDateBounds() bool {
	return c.StartDate != nil || c.EndDate != nil
}

func truncateDay(t time.Time) time.Time {
	y, m, d := t.Date()
	return time.Date(y, m, d, 0, 0, 0, 0, time.UTC)
}

func dedupe(in []string, fold bool) []string {
	var out []string
	seen := make(map[string]bool, len(in))
	for _, s := range in {
		s = strings.TrimSpace(s)
		if s == "" {
			continue
		}
		key := s
		if fold {
			key = strings.ToLower(s)
		}
		if seen[key] {
			continue
		}
		seen[key] = true
		out = append(out, s)
	}
	return out
}

// ResolveCategories maps loose filter text onto concrete catalogue labels
// by case-insensitive substring match. The result preserves catalogue
// order.
func ResolveCategories(catalogue []ledger.Category, filters []string) []string {
	if len(filters) == 0 {
		return nil
	}
	var labels []string
	for _, c := range catalogue {
		label := strings.ToLower(c.Label)
		for _, f := range filters {
			if strings.Contains(label, strings.ToLower(strings.TrimSpace(f))) {
				labels = append(labels, c.Label)
				break
			}
		}
	}
	return labels
}
