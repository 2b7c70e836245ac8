package handlers

import (
	"context"
	"encoding/json"
	"errors"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/avvvet/ledgerbuddy/internal/models"
)

var testNow = time.Date(2024, 3, 15, 9, 30, 0, 0, time.Local)

// recordingActions answers each kind with a canned result and remembers
// what ran.
type recordingActions struct {
	results map[models.IntentKind]models.ActionResult
	errs    map[models.IntentKind]error
	panics  map[models.IntentKind]bool
	ran     []models.Intent
	session models.Session
}

func newRecordingActions() *recordingActions {
	return &recordingActions{
		results: map[models.IntentKind]models.ActionResult{},
		errs:    map[models.IntentKind]error{},
		panics:  map[models.IntentKind]bool{},
	}
}

func (a *recordingActions) Handle(_ context.Context, session models.Session, intent models.Intent) (models.ActionResult, error) {
	a.ran = append(a.ran, intent)
	a.session = session
	if a.panics[intent.Kind] {
		panic("boom")
	}
	if err := a.errs[intent.Kind]; err != nil {
		return models.ActionResult{}, err
	}
	if res, ok := a.results[intent.Kind]; ok {
		return res, nil
	}
	return models.OK(string(intent.Kind), "done "+string(intent.Kind)), nil
}

func rawIntents(t *testing.T, js string) []models.RawIntent {
	t.Helper()
	var out []models.RawIntent
	require.NoError(t, json.Unmarshal([]byte(js), &out))
	return out
}

func newTestDispatcher(actions ActionHandler) *Dispatcher {
	d := NewDispatcher(actions, nil)
	d.SetClock(func() time.Time { return testNow })
	return d
}

var testSession = models.Session{ChatID: "chat-1", ConversationID: "conv-1"}

func TestDispatch_AllSucceed(t *testing.T) {
	actions := newRecordingActions()
	actions.results[models.KindAddTransaction] = models.ActionResult{
		Success:    true,
		Messages:   []string{"added"},
		Logs:       []string{"add"},
		Affordance: &models.ReplyAffordance{Label: "del", Data: "delete:variable_expense:1"},
	}
	d := newTestDispatcher(actions)

	agg := d.Dispatch(context.Background(), testSession, rawIntents(t, `[
		{"type":"add_transaction","group":"variable_expense","description":"phở","amount":"50k"},
		{"type":"get_budget"}
	]`), "ghi phở 50k rồi xem ngân sách", "")

	assert.True(t, agg.Success)
	assert.Equal(t, 2, agg.Executed)
	assert.Zero(t, agg.FailedIndex)
	assert.Equal(t, []string{"added", "done get_budget"}, agg.Messages)
	assert.Equal(t, []string{"add", "get_budget"}, agg.Logs)
	assert.Equal(t, "added\n\ndone get_budget", agg.Reply)
	require.NotNil(t, agg.Affordance)
	assert.Equal(t, "delete:variable_expense:1", agg.Affordance.Data)
	assert.Equal(t, "ghi phở 50k rồi xem ngân sách", actions.session.OriginalText)
}

func TestDispatch_Empty(t *testing.T) {
	d := newTestDispatcher(newRecordingActions())

	agg := d.Dispatch(context.Background(), testSession, nil, "", "")
	assert.True(t, agg.Success)
	assert.Empty(t, agg.Messages)
	assert.Empty(t, agg.Reply)
}

func TestDispatch_UnknownSecondIntentStopsBatch(t *testing.T) {
	actions := newRecordingActions()
	d := newTestDispatcher(actions)

	agg := d.Dispatch(context.Background(), testSession, rawIntents(t, `[
		{"type":"get_report"},
		{"type":"unknown"},
		{"type":"delete_transaction","id":"20240315093000-abcd1234"}
	]`), "", "")

	assert.False(t, agg.Success)
	assert.Equal(t, 2, agg.FailedIndex)
	assert.Equal(t, 1, agg.Executed)
	require.Len(t, actions.ran, 1, "nothing after the unknown intent runs")
	assert.Equal(t, models.KindGetReport, actions.ran[0].Kind)
	require.Len(t, agg.Messages, 2)
	assert.Contains(t, agg.Messages[1], "số 2")
}

func TestDispatch_MissingKind(t *testing.T) {
	actions := newRecordingActions()
	d := newTestDispatcher(actions)

	agg := d.Dispatch(context.Background(), testSession, rawIntents(t, `[{"amount":"50k"}]`), "", "")
	assert.False(t, agg.Success)
	assert.Contains(t, agg.Reply, "số 1")
	assert.Empty(t, actions.ran)
}

func TestDispatch_ValidationFailureHalts(t *testing.T) {
	actions := newRecordingActions()
	d := newTestDispatcher(actions)

	agg := d.Dispatch(context.Background(), testSession, rawIntents(t, `[
		{"type":"add_transaction","group":"variable_expense","description":"phở"},
		{"type":"get_budget"}
	]`), "", "")

	assert.False(t, agg.Success)
	assert.Equal(t, 1, agg.FailedIndex)
	assert.Empty(t, actions.ran)
	require.Len(t, agg.Messages, 1)
	assert.NotEmpty(t, agg.Messages[0])
}

func TestDispatch_FailedResultHalts(t *testing.T) {
	actions := newRecordingActions()
	actions.results[models.KindDeleteTransaction] = models.Fail("Không tìm thấy giao dịch có mã X.", "delete: not found")
	d := newTestDispatcher(actions)

	agg := d.Dispatch(context.Background(), testSession, rawIntents(t, `[
		{"type":"delete_transaction","id":"X"},
		{"type":"add_transaction","group":"variable_expense","description":"phở","amount":"50k"}
	]`), "", "")

	assert.False(t, agg.Success)
	assert.Equal(t, 1, agg.FailedIndex)
	assert.Len(t, actions.ran, 1)
	assert.Equal(t, "Không tìm thấy giao dịch có mã X.", agg.Reply)
}

func TestDispatch_HandlerErrorAndPanic(t *testing.T) {
	actions := newRecordingActions()
	actions.errs[models.KindGetBudget] = errors.New("database is locked")
	actions.panics[models.KindGetBalances] = true
	d := newTestDispatcher(actions)

	agg := d.Dispatch(context.Background(), testSession, rawIntents(t, `[{"type":"get_budget"},{"type":"get_report"}]`), "", "")
	assert.False(t, agg.Success)
	assert.Equal(t, []string{models.MsgGenericFailure}, agg.Messages, "internal errors are not shown to the user")
	require.Len(t, agg.Logs, 1)
	assert.Contains(t, agg.Logs[0], "intent 1")
	assert.Contains(t, agg.Logs[0], "database is locked")

	agg = d.Dispatch(context.Background(), testSession, rawIntents(t, `[{"type":"get_report"},{"type":"get_balances"}]`), "", "")
	assert.False(t, agg.Success)
	assert.Equal(t, 2, agg.FailedIndex)
	assert.Contains(t, agg.Logs[len(agg.Logs)-1], "panic")
}

func TestDispatch_DeliveredMessagesSkipReply(t *testing.T) {
	actions := newRecordingActions()
	actions.results[models.KindConsult] = models.ActionResult{
		Success: true, Messages: []string{"agent answer"}, Logs: []string{"consult"}, Delivered: true,
	}
	d := newTestDispatcher(actions)

	agg := d.Dispatch(context.Background(), testSession, rawIntents(t, `[{"type":"get_report"},{"type":"consult"}]`), "", "")
	assert.True(t, agg.Success)
	assert.Equal(t, []string{"done get_report", "agent answer"}, agg.Messages)
	assert.Equal(t, "done get_report", agg.Reply)
}
