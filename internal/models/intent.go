package models

import (
	"encoding/json"
	"errors"
	"fmt"
	"strconv"
	"strings"
	"time"

	"github.com/shopspring/decimal"

	"github.com/avvvet/ledgerbuddy/internal/ledger"
	"github.com/avvvet/ledgerbuddy/internal/search"
)

// IntentKind names the operation an intent asks for.
type IntentKind string

const (
	KindAddTransaction    IntentKind = "add_transaction"
	KindModifyTransaction IntentKind = "modify_transaction"
	KindDeleteTransaction IntentKind = "delete_transaction"
	KindGetReport         IntentKind = "get_report"
	KindComplexReport     IntentKind = "complex_report"
	KindCreateBudget      IntentKind = "create_budget"
	KindModifyBudget      IntentKind = "modify_budget"
	KindGetBudget         IntentKind = "get_budget"
	KindGetBalances       IntentKind = "get_balances"
	KindConsult           IntentKind = "consult"
	KindSearch            IntentKind = "search"
	KindListCategories    IntentKind = "list_categories"
	KindAddCategory       IntentKind = "add_category"
	KindActivateCategory  IntentKind = "activate_category"
	KindDescribeCategory  IntentKind = "describe_category"
	KindOther             IntentKind = "other"
	KindUnknown           IntentKind = "unknown"
)

// Kinds lists every kind the extractor may emit, in prompt order.
var Kinds = []IntentKind{
	KindAddTransaction, KindModifyTransaction, KindDeleteTransaction,
	KindGetReport, KindComplexReport,
	KindCreateBudget, KindModifyBudget, KindGetBudget, KindGetBalances,
	KindConsult, KindSearch,
	KindListCategories, KindAddCategory, KindActivateCategory, KindDescribeCategory,
	KindOther,
}

// Known reports whether k is one of Kinds.
func (k IntentKind) Known() bool {
	for _, known := range Kinds {
		if k == known {
			return true
		}
	}
	return false
}

// ErrUnknownKind is returned by DecodeIntent for a missing, "unknown" or
// unrecognised kind.
var ErrUnknownKind = errors.New("unknown intent kind")

// ValidationError reports a required field that is missing or unusable.
type ValidationError struct {
	Kind   IntentKind
	Field  string
	Reason string
}

func (e *ValidationError) Error() string {
	return fmt.Sprintf("%s: %s: %s", e.Kind, e.Field, e.Reason)
}

// UserMessage is the Vietnamese text shown to the user.
func (e *ValidationError) UserMessage() string {
	label, ok := fieldLabels[e.Field]
	if !ok {
		label = e.Field
	}
	if e.Reason == reasonMissing {
		return fmt.Sprintf("Thiếu thông tin: %s. Bạn vui lòng bổ sung nhé.", label)
	}
	return fmt.Sprintf("Thông tin %s không hợp lệ (%s).", label, e.Reason)
}

const reasonMissing = "required"

var fieldLabels = map[string]string{
	"group":       "nhóm giao dịch",
	"amount":      "số tiền",
	"description": "mô tả",
	"date":        "ngày",
	"id":          "mã giao dịch",
	"month":       "tháng",
	"category":    "danh mục",
	"label":       "tên danh mục",
	"changes":     "nội dung cần sửa",
	"start_date":  "ngày bắt đầu",
	"end_date":    "ngày kết thúc",
}

// RawIntent is one intent as the extractor emits it: a flat JSON object
// with "type", an optional "confirm" text and kind-specific fields.
type RawIntent struct {
	Kind             IntentKind
	ConfirmationText string
	Fields           map[string]any
}

// UnmarshalJSON reads the flat extractor shape.
func (r *RawIntent) UnmarshalJSON(data []byte) error {
	var m map[string]any
	if err := json.Unmarshal(data, &m); err != nil {
		return err
	}
	*r = RawIntent{Fields: make(map[string]any, len(m))}
	for k, v := range m {
		switch k {
		case "type":
			s, _ := v.(string)
			r.Kind = IntentKind(strings.ToLower(strings.TrimSpace(s)))
		case "confirm":
			r.ConfirmationText, _ = v.(string)
		default:
			r.Fields[k] = v
		}
	}
	return nil
}

// MarshalJSON writes the same flat shape back.
func (r RawIntent) MarshalJSON() ([]byte, error) {
	m := make(map[string]any, len(r.Fields)+2)
	for k, v := range r.Fields {
		m[k] = v
	}
	m["type"] = string(r.Kind)
	if r.ConfirmationText != "" {
		m["confirm"] = r.ConfirmationText
	}
	return json.Marshal(m)
}

// String returns a field as text. Numbers and booleans are formatted;
// anything else is empty.
func (r RawIntent) String(key string) string {
	switch v := r.Fields[key].(type) {
	case string:
		return strings.TrimSpace(v)
	case float64:
		return strconv.FormatFloat(v, 'f', -1, 64)
	case json.Number:
		return v.String()
	case bool:
		return strconv.FormatBool(v)
	}
	return ""
}

// List returns a field as a list of strings. A single string is split on
// commas.
func (r RawIntent) List(key string) []string {
	switch v := r.Fields[key].(type) {
	case []any:
		out := make([]string, 0, len(v))
		for _, item := range v {
			if s, ok := item.(string); ok && strings.TrimSpace(s) != "" {
				out = append(out, strings.TrimSpace(s))
			}
		}
		return out
	case []string:
		return v
	case string:
		var out []string
		for _, s := range strings.Split(v, ",") {
			if s = strings.TrimSpace(s); s != "" {
				out = append(out, s)
			}
		}
		return out
	}
	return nil
}

// Bool returns a field as a boolean, or def when absent or unreadable.
func (r RawIntent) Bool(key string, def bool) bool {
	switch v := r.Fields[key].(type) {
	case bool:
		return v
	case string:
		if b, err := strconv.ParseBool(strings.TrimSpace(v)); err == nil {
			return b
		}
	}
	return def
}

func (r RawIntent) has(key string) bool {
	_, ok := r.Fields[key]
	return ok
}

// Intent is a validated, typed intent. Payload is exactly one of the
// payload types below, matching Kind.
type Intent struct {
	Kind             IntentKind
	ConfirmationText string
	Payload          any
}

type AddTransaction struct {
	Group       string
	Date        string
	Description string
	Amount      decimal.Decimal
	Category    string
	Note        string
}

type ModifyTransaction struct {
	ID      string
	Group   string // optional, any partition when empty
	Changes ledger.RowUpdate
}

type DeleteTransaction struct {
	ID    string
	Group string
}

type GetReport struct {
	Month string
}

type ComplexReport struct {
	Question string
}

type CreateBudget struct {
	Month    string
	Category string
	Amount   decimal.Decimal
}

type ModifyBudget struct {
	Month    string
	Category string
	Amount   decimal.Decimal
}

type GetBudget struct {
	Month string
}

type GetBalances struct {
	Type string
}

type Consult struct {
	Question string
}

type Search struct {
	Criteria search.Criteria
}

type ListCategories struct {
	IncludeInactive bool
}

type AddCategory struct {
	Label       string
	Group       string
	Description string
}

type ActivateCategory struct {
	Label  string
	Active bool
}

type DescribeCategory struct {
	Label       string
	Description string
}

type Other struct {
	Reply string
}

// DecodeIntent validates raw and builds its typed payload. Dates and months
// are normalised against now.
func DecodeIntent(raw RawIntent, now time.Time) (Intent, error) {
	if !raw.Kind.Known() {
		return Intent{}, fmt.Errorf("%w: %q", ErrUnknownKind, raw.Kind)
	}
	d := decoder{raw: raw, now: now}
	payload := d.payload()
	if d.err != nil {
		return Intent{}, d.err
	}
	return Intent{Kind: raw.Kind, ConfirmationText: raw.ConfirmationText, Payload: payload}, nil
}

// decoder keeps the first validation error so payload builders read
// straight through.
type decoder struct {
	raw RawIntent
	now time.Time
	err error
}

func (d *decoder) fail(field, reason string) {
	if d.err == nil {
		d.err = &ValidationError{Kind: d.raw.Kind, Field: field, Reason: reason}
	}
}

func (d *decoder) required(field string) string {
	s := d.raw.String(field)
	if s == "" {
		d.fail(field, reasonMissing)
	}
	return s
}

func (d *decoder) amount(field string) decimal.Decimal {
	s := d.required(field)
	if s == "" {
		return decimal.Zero
	}
	a, err := ledger.ParseAmount(s)
	if err != nil {
		d.fail(field, err.Error())
		return decimal.Zero
	}
	if !a.IsPositive() {
		d.fail(field, "must be positive")
	}
	return a
}

func (d *decoder) date(field string) string {
	s, err := ledger.NormalizeDate(d.raw.String(field), d.now)
	if err != nil {
		d.fail(field, err.Error())
	}
	return s
}

func (d *decoder) month(field string) string {
	s, err := ledger.NormalizeMonth(d.raw.String(field), d.now)
	if err != nil {
		d.fail(field, err.Error())
	}
	return s
}

func (d *decoder) payload() any {
	r := d.raw
	switch r.Kind {
	case KindAddTransaction:
		return AddTransaction{
			Group:       d.required("group"),
			Date:        d.date("date"),
			Description: d.required("description"),
			Amount:      d.amount("amount"),
			Category:    r.String("category"),
			Note:        r.String("note"),
		}
	case KindModifyTransaction:
		return ModifyTransaction{ID: d.required("id"), Group: r.String("group"), Changes: d.changes()}
	case KindDeleteTransaction:
		return DeleteTransaction{ID: d.required("id"), Group: r.String("group")}
	case KindGetReport:
		return GetReport{Month: d.month("month")}
	case KindComplexReport:
		return ComplexReport{Question: r.String("question")}
	case KindCreateBudget:
		return CreateBudget{Month: d.month("month"), Category: d.required("category"), Amount: d.amount("amount")}
	case KindModifyBudget:
		return ModifyBudget{Month: d.month("month"), Category: d.required("category"), Amount: d.amount("amount")}
	case KindGetBudget:
		return GetBudget{Month: d.month("month")}
	case KindGetBalances:
		return GetBalances{Type: r.String("fund_type")}
	case KindConsult:
		return Consult{Question: r.String("question")}
	case KindSearch:
		c, err := search.ParseCriteria(r.String("start_date"), r.String("end_date"),
			r.List("groups"), r.List("categories"), r.List("keywords"))
		if err != nil {
			d.fail("criteria", err.Error())
		}
		return Search{Criteria: c}
	case KindListCategories:
		return ListCategories{IncludeInactive: r.Bool("include_inactive", false)}
	case KindAddCategory:
		return AddCategory{Label: d.required("label"), Group: r.String("group"), Description: r.String("description")}
	case KindActivateCategory:
		return ActivateCategory{Label: d.required("label"), Active: r.Bool("active", true)}
	case KindDescribeCategory:
		return DescribeCategory{Label: d.required("label"), Description: d.required("description")}
	case KindOther:
		return Other{Reply: r.String("reply")}
	}
	return nil
}

// changes collects the optional update fields of modify_transaction; at
// least one must be present.
func (d *decoder) changes() ledger.RowUpdate {
	var u ledger.RowUpdate
	r := d.raw
	if r.String("date") != "" {
		s := d.date("date")
		u.Date = &s
	}
	if s := r.String("description"); s != "" {
		u.Description = &s
	}
	if r.String("amount") != "" {
		a := d.amount("amount")
		u.Amount = &a
	}
	if s := r.String("category"); s != "" {
		u.Category = &s
	}
	if r.has("note") {
		s := r.String("note")
		u.Note = &s
	}
	if d.err == nil && u.Empty() {
		d.fail("changes", reasonMissing)
	}
	return u
}
