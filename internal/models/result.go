package models

import "strings"

// ActionResult is what every intent handler returns. A failed result
// always carries at least one message and every result carries logs.
type ActionResult struct {
	Success    bool             `json:"success"`
	Messages   []string         `json:"messages"`
	Logs       []string         `json:"logs"`
	Affordance *ReplyAffordance `json:"affordance,omitempty"`
	// Delivered is set when Messages were already sent to the chat, as the
	// agent loop does for its answers.
	Delivered bool `json:"delivered,omitempty"`
}

// OK builds a successful result.
func OK(log string, messages ...string) ActionResult {
	return ActionResult{Success: true, Messages: messages, Logs: []string{logLine(log, "ok")}}
}

// Fail builds a failed result with a user-facing message.
func Fail(message, log string) ActionResult {
	if message == "" {
		message = MsgGenericFailure
	}
	return ActionResult{Success: false, Messages: []string{message}, Logs: []string{logLine(log, "failed")}}
}

func logLine(log, fallback string) string {
	if strings.TrimSpace(log) == "" {
		return fallback
	}
	return log
}

// AggregatedResult is the combined outcome of one batch of intents.
type AggregatedResult struct {
	Success    bool             `json:"success"`
	Messages   []string         `json:"messages"`
	Logs       []string         `json:"logs"`
	Reply      string           `json:"reply"`
	Affordance *ReplyAffordance `json:"affordance,omitempty"`
	Executed   int              `json:"executed"`
	// FailedIndex is the 1-based position of the intent that stopped the
	// batch, 0 when none did.
	FailedIndex int `json:"failed_index,omitempty"`
}

// User-facing messages shared by the dispatcher and handlers.
const (
	MsgGenericFailure = "Xin lỗi, đã có lỗi xảy ra. Vui lòng thử lại sau."
	MsgNotUnderstood  = "Xin lỗi, mình chưa hiểu yêu cầu của bạn. Bạn có thể nói rõ hơn không?"
)
