package ledger

import (
	"fmt"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"
)

// DateLayout is the layout rows are written with.
const DateLayout = "2006-01-02"

// MonthLayout identifies a budget/report month.
const MonthLayout = "2006-01"

var dateLayouts = []string{
	DateLayout,
	"02/01/2006",
	"2/1/2006",
	"02-01-2006",
	"2006/01/02",
}

// NewID returns a row id made of a timestamp and a random suffix. Ids are
// never derived from row offsets.
func NewID(now time.Time) string {
	return now.Format("20060102150405") + "-" + strings.ReplaceAll(uuid.NewString(), "-", "")[:8]
}

// ParseDate interprets a row or user date. Day-first layouts are tried
// after ISO.
func ParseDate(s string) (time.Time, bool) {
	s = strings.TrimSpace(s)
	if s == "" {
		return time.Time{}, false
	}
	for _, layout := range dateLayouts {
		if t, err := time.ParseInLocation(layout, s, time.Local); err == nil {
			return t, true
		}
	}
	return time.Time{}, false
}

// NormalizeDate returns s in DateLayout; an empty s means today.
func NormalizeDate(s string, now time.Time) (string, error) {
	if strings.TrimSpace(s) == "" {
		return now.Format(DateLayout), nil
	}
	t, ok := ParseDate(s)
	if !ok {
		return "", fmt.Errorf("invalid date %q", s)
	}
	return t.Format(DateLayout), nil
}

// NormalizeMonth accepts "2006-01", "01/2006" or "1/2006"; empty means the
// current month.
func NormalizeMonth(s string, now time.Time) (string, error) {
	s = strings.TrimSpace(s)
	if s == "" {
		return now.Format(MonthLayout), nil
	}
	for _, layout := range []string{MonthLayout, "01/2006", "1/2006", "01-2006"} {
		if t, err := time.Parse(layout, s); err == nil {
			return t.Format(MonthLayout), nil
		}
	}
	return "", fmt.Errorf("invalid month %q", s)
}

// SameMonth reports whether a row date falls in month ("2006-01").
func SameMonth(date, month string) bool {
	t, ok := ParseDate(date)
	return ok && t.Format(MonthLayout) == month
}

// ParseAmount reads a money amount the way people type it in chat:
// "50000", "50.000", "50,000đ", "50k", "1.5tr", "2m".
func ParseAmount(s string) (decimal.Decimal, error) {
	raw := strings.ToLower(strings.TrimSpace(s))
	raw = strings.NewReplacer(" ", "", "đ", "", "vnd", "", "₫", "").Replace(raw)
	if raw == "" {
		return decimal.Zero, fmt.Errorf("empty amount")
	}

	for _, suffix := range []struct {
		text string
		mult int64
	}{{"tr", 1_000_000}, {"m", 1_000_000}, {"k", 1_000}} {
		if strings.HasSuffix(raw, suffix.text) {
			raw = strings.TrimSuffix(raw, suffix.text)
			// With a unit suffix the separator is a decimal point: 1.5tr, 1,5tr.
			raw = strings.ReplaceAll(raw, ",", ".")
			d, err := decimal.NewFromString(raw)
			if err != nil {
				return decimal.Zero, fmt.Errorf("invalid amount %q", s)
			}
			return d.Mul(decimal.NewFromInt(suffix.mult)), nil
		}
	}

	raw = strings.NewReplacer(".", "", ",", "").Replace(raw)
	d, err := decimal.NewFromString(raw)
	if err != nil {
		return decimal.Zero, fmt.Errorf("invalid amount %q", s)
	}
	return d, nil
}
