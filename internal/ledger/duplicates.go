package ledger

import (
	"strings"
	"time"
)

// DefaultMinOverlap is the shortest text that may match by containment.
const DefaultMinOverlap = 3

// DuplicateDetector flags rows that look like a repeat of a new entry:
// same calendar date, same amount, and texts where either one contains the
// other. The containment runs both ways, so "cafe" matches "cafe sáng" and
// the reverse; MinOverlap keeps very short texts from matching everything.
type DuplicateDetector struct {
	MinOverlap int
}

// NewDuplicateDetector returns a detector; minOverlap <= 0 uses the default.
func NewDuplicateDetector(minOverlap int) *DuplicateDetector {
	if minOverlap <= 0 {
		minOverlap = DefaultMinOverlap
	}
	return &DuplicateDetector{MinOverlap: minOverlap}
}

// Find returns the rows in existing that candidate likely duplicates.
func (d *DuplicateDetector) Find(existing []Row, candidate Row) []Row {
	candDate, ok := ParseDate(candidate.Date)
	if !ok {
		return nil
	}
	var out []Row
	for _, r := range existing {
		if r.ID == candidate.ID && r.ID != "" {
			continue
		}
		date, ok := ParseDate(r.Date)
		if !ok || !sameDay(date, candDate) {
			continue
		}
		if !r.Amount.Equal(candidate.Amount) {
			continue
		}
		if d.similar(rowText(r), rowText(candidate)) {
			out = append(out, r)
		}
	}
	return out
}

func (d *DuplicateDetector) similar(a, b string) bool {
	if a == b {
		return true
	}
	shorter := len([]rune(a))
	if n := len([]rune(b)); n < shorter {
		shorter = n
	}
	if shorter < d.MinOverlap {
		return false
	}
	return strings.Contains(a, b) || strings.Contains(b, a)
}

// rowText prefers the note and falls back to the description.
func rowText(r Row) string {
	text := r.Note
	if strings.TrimSpace(text) == "" {
		text = r.Description
	}
	return strings.ToLower(strings.TrimSpace(text))
}

func sameDay(a, b time.Time) bool {
	ay, am, ad := a.Date()
	by, bm, bd := b.Date()
	return ay == by && am == bm && ad == bd
}
