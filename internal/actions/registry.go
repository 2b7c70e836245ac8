// Package actions maps each intent kind to the handler that carries it
// out against the ledger.
package actions

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"strings"

	"github.com/avvvet/ledgerbuddy/internal/agent"
	"github.com/avvvet/ledgerbuddy/internal/ledger"
	"github.com/avvvet/ledgerbuddy/internal/models"
	"github.com/avvvet/ledgerbuddy/internal/report"
	"github.com/avvvet/ledgerbuddy/internal/search"
)

// Handler carries out one intent. Expected failures (not found, conflicts)
// come back as a failed ActionResult; a returned error is unexpected.
type Handler func(ctx context.Context, session models.Session, intent models.Intent) (models.ActionResult, error)

// Consultant answers open questions, pushing its own reply to the chat.
type Consultant interface {
	Run(ctx context.Context, req agent.Request) *agent.Result
}

// Deps are the collaborators the handlers use.
type Deps struct {
	Store      ledger.Store
	Search     *search.Engine
	Reports    *report.Builder
	Duplicates *ledger.DuplicateDetector
	Agent      Consultant
	Logger     *slog.Logger
}

// Registry is the table from IntentKind to Handler.
type Registry struct {
	handlers map[models.IntentKind]Handler
	fallback Handler

	store      ledger.Store
	search     *search.Engine
	reports    *report.Builder
	duplicates *ledger.DuplicateDetector
	agent      Consultant
	logger     *slog.Logger
}

// NewRegistry creates a registry with a handler for every known kind.
func NewRegistry(deps Deps) *Registry {
	logger := deps.Logger
	if logger == nil {
		logger = slog.Default()
	}
	dup := deps.Duplicates
	if dup == nil {
		dup = ledger.NewDuplicateDetector(ledger.DefaultMinOverlap)
	}
	r := &Registry{
		handlers:   make(map[models.IntentKind]Handler),
		store:      deps.Store,
		search:     deps.Search,
		reports:    deps.Reports,
		duplicates: dup,
		agent:      deps.Agent,
		logger:     logger,
	}
	r.fallback = r.handleNotUnderstood

	r.Register(models.KindAddTransaction, r.handleAddTransaction)
	r.Register(models.KindModifyTransaction, r.handleModifyTransaction)
	r.Register(models.KindDeleteTransaction, r.handleDeleteTransaction)
	r.Register(models.KindGetReport, r.handleGetReport)
	r.Register(models.KindComplexReport, r.handleDelegate)
	r.Register(models.KindCreateBudget, r.handleCreateBudget)
	r.Register(models.KindModifyBudget, r.handleModifyBudget)
	r.Register(models.KindGetBudget, r.handleGetBudget)
	r.Register(models.KindGetBalances, r.handleGetBalances)
	r.Register(models.KindConsult, r.handleDelegate)
	r.Register(models.KindSearch, r.handleSearch)
	r.Register(models.KindListCategories, r.handleListCategories)
	r.Register(models.KindAddCategory, r.handleAddCategory)
	r.Register(models.KindActivateCategory, r.handleActivateCategory)
	r.Register(models.KindDescribeCategory, r.handleDescribeCategory)
	r.Register(models.KindOther, r.handleOther)
	return r
}

// Register adds or replaces the handler for kind.
func (r *Registry) Register(kind models.IntentKind, h Handler) {
	r.handlers[kind] = h
}

// Handle dispatches intent to its handler, or to the "did not understand"
// fallback when none is registered.
func (r *Registry) Handle(ctx context.Context, session models.Session, intent models.Intent) (models.ActionResult, error) {
	h, ok := r.handlers[intent.Kind]
	if !ok {
		h = r.fallback
	}
	return h(ctx, session, intent)
}

func (r *Registry) handleNotUnderstood(_ context.Context, _ models.Session, intent models.Intent) (models.ActionResult, error) {
	return models.Fail(models.MsgNotUnderstood, fmt.Sprintf("no handler for intent %q", intent.Kind)), nil
}

func (r *Registry) handleOther(_ context.Context, _ models.Session, intent models.Intent) (models.ActionResult, error) {
	p := intent.Payload.(models.Other)
	reply := p.Reply
	if reply == "" {
		reply = intent.ConfirmationText
	}
	if reply == "" {
		reply = "Mình có thể giúp bạn ghi chép chi tiêu, xem báo cáo, ngân sách và trả lời câu hỏi tài chính."
	}
	return models.OK("other: replied", reply), nil
}

// notFoundResult turns a ledger not-found error into a failed result that
// names the missing key. Other errors are returned unchanged.
func notFoundResult(err error, log string) (models.ActionResult, bool) {
	var nf *ledger.NotFoundError
	if !errors.As(err, &nf) {
		return models.ActionResult{}, false
	}
	var msg string
	switch nf.Entity {
	case "partition":
		msg = fmt.Sprintf("Không tìm thấy nhóm giao dịch \"%s\".", nf.Key)
	case "transaction":
		msg = fmt.Sprintf("Không tìm thấy giao dịch có mã %s.", nf.Key)
	case "category":
		msg = fmt.Sprintf("Không tìm thấy danh mục \"%s\".", nf.Key)
	case "budget":
		msg = fmt.Sprintf("Không tìm thấy ngân sách %s.", nf.Key)
	default:
		msg = fmt.Sprintf("Không tìm thấy %s \"%s\".", nf.Entity, nf.Key)
	}
	return models.Fail(msg, fmt.Sprintf("%s: %v", log, err)), true
}

// resolveCategory finds the catalogue label a user wrote. An exact
// (case-insensitive) label wins; otherwise the loose match must be unique.
func (r *Registry) resolveCategory(ctx context.Context, name string) (ledger.Category, error) {
	all, err := r.store.Categories(ctx)
	if err != nil {
		return ledger.Category{}, err
	}
	for _, c := range all {
		if strings.EqualFold(c.Label, name) {
			return c, nil
		}
	}
	labels := search.ResolveCategories(all, []string{name})
	switch len(labels) {
	case 0:
		return ledger.Category{}, &ledger.NotFoundError{Entity: "category", Key: name}
	case 1:
		for _, c := range all {
			if c.Label == labels[0] {
				return c, nil
			}
		}
	}
	return ledger.Category{}, &ambiguousError{name: name, labels: labels}
}

type ambiguousError struct {
	name   string
	labels []string
}

func (e *ambiguousError) Error() string {
	return fmt.Sprintf("category %q matches %d labels", e.name, len(e.labels))
}

func (e *ambiguousError) message() string {
	return fmt.Sprintf("\"%s\" khớp với nhiều danh mục: %s. Bạn chọn giúp mình một danh mục nhé.",
		e.name, strings.Join(e.labels, ", "))
}

// expected converts the errors a handler can explain to the user into a
// failed result.
func expected(err error, log string) (models.ActionResult, bool) {
	if res, ok := notFoundResult(err, log); ok {
		return res, true
	}
	var amb *ambiguousError
	if errors.As(err, &amb) {
		return models.Fail(amb.message(), fmt.Sprintf("%s: %v", log, err)), true
	}
	return models.ActionResult{}, false
}
