package actions

import (
	"context"
	"fmt"

	"github.com/avvvet/ledgerbuddy/internal/agent"
	"github.com/avvvet/ledgerbuddy/internal/models"
)

// handleDelegate hands consult and complex_report intents to the agent.
// The agent sends its own reply, so the result's message is marked
// Delivered unless that send failed.
func (r *Registry) handleDelegate(ctx context.Context, session models.Session, intent models.Intent) (models.ActionResult, error) {
	var question string
	switch p := intent.Payload.(type) {
	case models.Consult:
		question = p.Question
	case models.ComplexReport:
		question = p.Question
	}
	if question == "" {
		question = session.OriginalText
	}
	if r.agent == nil {
		return models.ActionResult{}, fmt.Errorf("%s: no agent configured", intent.Kind)
	}

	res := r.agent.Run(ctx, agent.Request{
		ConversationID: session.ConversationID,
		ChatID:         session.ChatID,
		Question:       question,
		Kind:           intent.Kind,
	})

	log := fmt.Sprintf("%s: state=%s steps=%d", intent.Kind, res.State, res.Steps)
	if res.Error != "" {
		log += " error=" + res.Error
	}
	return models.ActionResult{
		Success:   res.Success,
		Messages:  []string{res.Response},
		Logs:      []string{log},
		Delivered: res.Delivered,
	}, nil
}
