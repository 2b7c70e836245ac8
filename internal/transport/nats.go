package transport

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"time"

	"github.com/nats-io/nats.go"

	"github.com/avvvet/ledgerbuddy/internal/config"
	"github.com/avvvet/ledgerbuddy/internal/models"
	"github.com/avvvet/ledgerbuddy/internal/prompts"
)

// Processor handles one inbound chat message to completion.
type Processor interface {
	ProcessMessage(ctx context.Context, msg *models.InboundMessage) (*models.OutboundMessage, error)
}

// NATSTransport receives chat messages on the inbound subject and sends
// replies back, either to the request's reply subject or to the outbound
// subject.
type NATSTransport struct {
	conn    *nats.Conn
	config  *config.Config
	logger  *slog.Logger
	timeout time.Duration
	sub     *nats.Subscription
}

func NewNATSTransport(cfg *config.Config, logger *slog.Logger) (*NATSTransport, error) {
	if logger == nil {
		logger = slog.Default()
	}
	conn, err := nats.Connect(cfg.NatsURL,
		nats.Name(cfg.ServiceName),
		nats.Timeout(cfg.NatsTimeout),
		nats.ReconnectWait(2*time.Second),
		nats.MaxReconnects(-1), // infinite reconnects
	)
	if err != nil {
		return nil, fmt.Errorf("failed to connect to NATS: %w", err)
	}

	logger.Info("connected to NATS", "url", cfg.NatsURL)

	// One message may run the extraction call plus a full tool loop.
	timeout := cfg.LLMTimeout * 8
	return &NATSTransport{
		conn:    conn,
		config:  cfg,
		logger:  logger,
		timeout: timeout,
	}, nil
}

// Start subscribes to the inbound subject. The NATS client delivers a
// subscription's messages one at a time, so each message finishes before
// the next one starts.
func (nt *NATSTransport) Start(processor Processor) error {
	sub, err := nt.conn.Subscribe(nt.config.NatsInboundSubject, func(msg *nats.Msg) {
		nt.handleMessage(msg, processor)
	})
	if err != nil {
		return fmt.Errorf("failed to subscribe to %s: %w", nt.config.NatsInboundSubject, err)
	}
	nt.sub = sub

	nt.logger.Info("subscribed", "subject", nt.config.NatsInboundSubject)
	return nil
}

func (nt *NATSTransport) handleMessage(msg *nats.Msg, processor Processor) {
	ctx, cancel := context.WithTimeout(context.Background(), nt.timeout)
	defer cancel()

	out := process(ctx, msg.Data, processor, nt.logger)
	if err := nt.reply(msg, out); err != nil {
		nt.logger.Error("failed to send reply", "chat_id", out.ChatID, "error", err)
	}
}

// process decodes data, runs it through processor and returns the reply.
// It always returns a reply, even for undecodable input.
func process(ctx context.Context, data []byte, processor Processor, logger *slog.Logger) *models.OutboundMessage {
	var in models.InboundMessage
	if err := json.Unmarshal(data, &in); err != nil {
		logger.Warn("invalid inbound message", "error", err)
		return errorReply(&in, models.ErrorInvalidRequest, "invalid message format")
	}

	logger.Info("processing message", "chat_id", in.ChatID)
	out, err := processor.ProcessMessage(ctx, &in)
	if err != nil {
		logger.Error("failed to process message", "chat_id", in.ChatID, "error", err)
		return errorReply(&in, models.ErrorActionFailed, err.Error())
	}
	return out
}

func errorReply(in *models.InboundMessage, errorCode, errorMessage string) *models.OutboundMessage {
	return &models.OutboundMessage{
		ChatID:       in.ChatID,
		Text:         prompts.ApologyMessage,
		Success:      false,
		ErrorCode:    &errorCode,
		ErrorMessage: &errorMessage,
	}
}

func (nt *NATSTransport) reply(msg *nats.Msg, out *models.OutboundMessage) error {
	data, err := json.Marshal(out)
	if err != nil {
		return fmt.Errorf("failed to marshal reply: %w", err)
	}
	if msg.Reply != "" {
		if err := msg.Respond(data); err != nil {
			return fmt.Errorf("failed to send reply: %w", err)
		}
	} else if err := nt.conn.Publish(nt.config.NatsOutboundSubject, data); err != nil {
		return fmt.Errorf("failed to publish reply: %w", err)
	}

	nt.logger.Info("reply sent", "chat_id", out.ChatID, "success", out.Success)
	return nil
}

// SendMessage pushes a message to the chat out of band, as the agent does
// with its answers. It does not wait for delivery.
func (nt *NATSTransport) SendMessage(_ context.Context, chatID, text string, affordance *models.ReplyAffordance) error {
	data, err := json.Marshal(&models.OutboundMessage{
		ChatID:     chatID,
		Text:       text,
		Affordance: affordance,
		Success:    true,
	})
	if err != nil {
		return fmt.Errorf("failed to marshal message: %w", err)
	}
	if err := nt.conn.Publish(nt.config.NatsOutboundSubject, data); err != nil {
		return fmt.Errorf("failed to publish message: %w", err)
	}
	return nil
}

func (nt *NATSTransport) Close() error {
	if nt.sub != nil {
		if err := nt.sub.Drain(); err != nil {
			nt.logger.Warn("failed to drain subscription", "error", err)
		}
	}
	if nt.conn != nil {
		nt.conn.Close()
		nt.logger.Info("NATS connection closed")
	}
	return nil
}
