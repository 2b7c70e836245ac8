package models

// NATS message from the chat bridge
type InboundMessage struct {
	ChatID         string `json:"chat_id"`
	ConversationID string `json:"conversation_id,omitempty"`
	Text           string `json:"text"`
	ReplyText      string `json:"reply_text,omitempty"` // text of the message being replied to
}

// NATS reply to the chat bridge
type OutboundMessage struct {
	ChatID       string           `json:"chat_id"`
	Text         string           `json:"text"`
	Affordance   *ReplyAffordance `json:"affordance,omitempty"`
	Success      bool             `json:"success"`
	ErrorCode    *string          `json:"error_code,omitempty"`
	ErrorMessage *string          `json:"error_message,omitempty"`
}

// ReplyAffordance is an inline control attached to a reply, such as a
// button that deletes the row just added. The transport passes it through
// untouched.
type ReplyAffordance struct {
	Label string `json:"label"`
	Data  string `json:"data"`
}

// Session identifies who a batch of intents belongs to.
type Session struct {
	ChatID         string
	ConversationID string
	OriginalText   string
	ReplyText      string
}

// Error codes
const (
	ErrorLLMTimeout     = "LLM_API_TIMEOUT"
	ErrorLLMFailed      = "LLM_API_FAILED"
	ErrorParseError     = "PARSE_ERROR"
	ErrorUnknownIntent  = "UNKNOWN_INTENT"
	ErrorInvalidRequest = "INVALID_REQUEST"
	ErrorActionFailed   = "ACTION_FAILED"
)
