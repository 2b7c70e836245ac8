package prompts

import (
	"encoding/json"
	"fmt"
	"strings"
	"time"

	"github.com/avvvet/ledgerbuddy/internal/models"
)

const ExtractionPrompt = `Bạn là trợ lý tài chính cá nhân. Nhiệm vụ của bạn là đọc tin nhắn của người dùng và tách nó thành danh sách các yêu cầu (intent) có cấu trúc.

IMPORTANT RULES:
1. One message may contain several requests; emit them in the order they were mentioned
2. Every intent is a FLAT object: "type", optional "confirm" (short Vietnamese summary) and the fields of that type
3. Never invent amounts, ids or dates that are not in the message; leave the field out instead
4. Amounts stay as the user wrote them ("50k", "1.5tr", "200.000")
5. Dates are YYYY-MM-DD, months are YYYY-MM; today is %s
6. If you cannot tell what the user wants, emit {"type": "unknown"}

RESPONSE FORMAT:
You must respond with a valid JSON object in this exact format:
{
  "intents": [
    {"type": "add_transaction", "confirm": "...", "group": "...", "amount": "...", "description": "..."}
  ]
}

Intent types and fields:
%s
Transaction groups: %s

Categories:
%s
%s
User message:
%s`

var intentFields = map[models.IntentKind]string{
	models.KindAddTransaction:    "group*, amount*, description*, date, category, note",
	models.KindModifyTransaction: "id*, group, date, description, amount, category, note",
	models.KindDeleteTransaction: "id*, group",
	models.KindGetReport:         "month",
	models.KindComplexReport:     "question",
	models.KindCreateBudget:      "category*, amount*, month",
	models.KindModifyBudget:      "category*, amount*, month",
	models.KindGetBudget:         "month",
	models.KindGetBalances:       "fund_type",
	models.KindConsult:           "question",
	models.KindSearch:            "start_date, end_date, groups[], categories[], keywords[]",
	models.KindListCategories:    "include_inactive",
	models.KindAddCategory:       "label*, group, description",
	models.KindActivateCategory:  "label*, active",
	models.KindDescribeCategory:  "label*, description*",
	models.KindOther:             "reply (a short friendly answer for small talk)",
}

// ExtractionInput is what BuildExtractionPrompt needs to know about the
// ledger and the message.
type ExtractionInput struct {
	Now        time.Time
	Partitions []string
	Categories []string
	Text       string
	ReplyText  string
}

func BuildExtractionPrompt(in ExtractionInput) string {
	var kinds strings.Builder
	for _, k := range models.Kinds {
		fmt.Fprintf(&kinds, "- %s: %s\n", k, intentFields[k])
	}
	kinds.WriteString("(* = required)\n")

	categories := "(none)"
	if len(in.Categories) > 0 {
		categories = "- " + strings.Join(in.Categories, "\n- ")
	}

	reply := ""
	if in.ReplyText != "" {
		reply = fmt.Sprintf("\nThe user is replying to this earlier message (ids in it may be referenced):\n%s\n", in.ReplyText)
	}

	return fmt.Sprintf(ExtractionPrompt,
		in.Now.Format("2006-01-02 (Monday)"),
		kinds.String(),
		strings.Join(in.Partitions, ", "),
		categories,
		reply,
		in.Text)
}

const ConsultPrompt = `Bạn là cố vấn tài chính cá nhân, trả lời bằng tiếng Việt, ngắn gọn và dựa trên số liệu thật.

Hôm nay là %s. Các nhóm giao dịch: %s.

Dùng các công cụ được cung cấp để tra cứu ngân sách, báo cáo tháng, giao dịch, số dư quỹ, danh mục và hướng dẫn của gia đình. Chỉ gọi công cụ khi cần; khi đã đủ thông tin, hãy trả lời trực tiếp. Không bịa số liệu. Số tiền ghi theo dạng 1.500.000đ.`

func BuildConsultPrompt(now time.Time, partitions []string) string {
	return fmt.Sprintf(ConsultPrompt, now.Format("2006-01-02"), strings.Join(partitions, ", "))
}

// User-facing fallbacks.
const (
	FallbackMessage   = models.MsgNotUnderstood
	ApologyMessage    = models.MsgGenericFailure
	MaxStepsMessage   = "Câu hỏi này cần tra cứu quá nhiều dữ liệu. Bạn thử hỏi cụ thể hơn (ví dụ theo tháng hoặc theo danh mục) nhé."
	NudgeMessage      = "Hãy trả lời câu hỏi của người dùng dựa trên dữ liệu đã có, hoặc gọi công cụ nếu cần thêm thông tin."
	ReconfirmTemplate = "Mình chưa chắc về yêu cầu số %d. Bạn xác nhận lại giúp mình nội dung cần làm nhé, các yêu cầu phía sau chưa được thực hiện."
)

// ParseIntents reads the extraction answer. Both {"intents": [...]} and a
// bare array are accepted.
func ParseIntents(content string) ([]models.RawIntent, error) {
	trimmed := strings.TrimSpace(content)
	if strings.HasPrefix(trimmed, "[") {
		var intents []models.RawIntent
		if err := json.Unmarshal([]byte(trimmed), &intents); err != nil {
			return nil, fmt.Errorf("failed to parse JSON: %w", err)
		}
		return intents, nil
	}

	// Try to extract JSON from the response
	jsonContent := extractJSON(content)
	if jsonContent == "" {
		return nil, fmt.Errorf("no valid JSON found in response")
	}

	var response struct {
		Intents []models.RawIntent `json:"intents"`
	}
	if err := json.Unmarshal([]byte(jsonContent), &response); err != nil {
		return nil, fmt.Errorf("failed to parse JSON: %w", err)
	}
	return response.Intents, nil
}

func extractJSON(content string) string {
	// Look for JSON object in the content
	start := strings.Index(content, "{")
	if start == -1 {
		return ""
	}

	end := strings.LastIndex(content, "}")
	if end == -1 || end <= start {
		return ""
	}

	return content[start : end+1]
}
