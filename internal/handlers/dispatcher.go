package handlers

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"strings"
	"time"

	"github.com/avvvet/ledgerbuddy/internal/models"
	"github.com/avvvet/ledgerbuddy/internal/prompts"
)

// ActionHandler runs one decoded intent.
type ActionHandler interface {
	Handle(ctx context.Context, session models.Session, intent models.Intent) (models.ActionResult, error)
}

// Dispatcher executes a batch of extracted intents in order and folds their
// results into one reply. The first intent that cannot be executed stops
// the batch; later intents are never applied.
type Dispatcher struct {
	actions ActionHandler
	logger  *slog.Logger
	now     func() time.Time
}

func NewDispatcher(actions ActionHandler, logger *slog.Logger) *Dispatcher {
	if logger == nil {
		logger = slog.Default()
	}
	return &Dispatcher{actions: actions, logger: logger, now: time.Now}
}

// SetClock replaces the clock used to resolve relative dates and months.
func (d *Dispatcher) SetClock(now func() time.Time) {
	d.now = now
}

// Dispatch runs intents one by one. An empty batch succeeds with no
// messages.
func (d *Dispatcher) Dispatch(ctx context.Context, session models.Session, intents []models.RawIntent, originalText, replyText string) *models.AggregatedResult {
	session.OriginalText = originalText
	session.ReplyText = replyText

	agg := &models.AggregatedResult{Success: true, Messages: []string{}, Logs: []string{}}
	var pending []string

	for i, raw := range intents {
		pos := i + 1
		res, stop := d.runOne(ctx, session, raw, pos)

		agg.Messages = append(agg.Messages, res.Messages...)
		agg.Logs = append(agg.Logs, res.Logs...)
		if res.Affordance != nil {
			agg.Affordance = res.Affordance
		}
		if !res.Delivered {
			pending = append(pending, res.Messages...)
		}

		if stop || !res.Success {
			agg.Success = false
			agg.FailedIndex = pos
			d.logger.Warn("intent batch halted",
				"conversation", session.ConversationID,
				"index", pos,
				"intent", raw.Kind,
				"remaining", len(intents)-pos)
			break
		}
		agg.Executed++
	}

	agg.Reply = strings.Join(pending, "\n\n")
	d.logger.Info("intent batch processed",
		"conversation", session.ConversationID,
		"intents", len(intents),
		"executed", agg.Executed,
		"success", agg.Success)
	return agg
}

// runOne decodes and executes the intent at 1-based position pos. stop is
// set when the batch must halt regardless of the result's Success flag.
func (d *Dispatcher) runOne(ctx context.Context, session models.Session, raw models.RawIntent, pos int) (res models.ActionResult, stop bool) {
	intent, err := models.DecodeIntent(raw, d.now())
	if err != nil {
		var verr *models.ValidationError
		switch {
		case errors.Is(err, models.ErrUnknownKind):
			return models.Fail(fmt.Sprintf(prompts.ReconfirmTemplate, pos),
				fmt.Sprintf("intent %d: %v", pos, err)), true
		case errors.As(err, &verr):
			return models.Fail(verr.UserMessage(), fmt.Sprintf("intent %d: %v", pos, err)), true
		default:
			return models.Fail("", fmt.Sprintf("intent %d: %v", pos, err)), true
		}
	}

	defer func() {
		if p := recover(); p != nil {
			d.logger.Error("intent handler panicked",
				"conversation", session.ConversationID,
				"index", pos,
				"intent", intent.Kind,
				"panic", p)
			res = models.Fail("", fmt.Sprintf("intent %d (%s): panic: %v", pos, intent.Kind, p))
			stop = true
		}
	}()

	res, err = d.actions.Handle(ctx, session, intent)
	if err != nil {
		d.logger.Error("intent handler failed",
			"conversation", session.ConversationID,
			"index", pos,
			"intent", intent.Kind,
			"error", err)
		return models.Fail("", fmt.Sprintf("intent %d (%s): %v", pos, intent.Kind, err)), true
	}
	if len(res.Logs) == 0 {
		res.Logs = []string{fmt.Sprintf("intent %d (%s): no log", pos, intent.Kind)}
	}
	if !res.Success && len(res.Messages) == 0 {
		res.Messages = []string{models.MsgGenericFailure}
	}
	return res, false
}
