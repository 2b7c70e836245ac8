// Command ledgerbuddy-cli sends one chat message to a running ledgerbuddy
// service over NATS and prints the reply.
package main

import (
	"encoding/json"
	"flag"
	"fmt"
	"os"
	"strings"
	"time"

	"github.com/joho/godotenv"
	"github.com/nats-io/nats.go"

	"github.com/avvvet/ledgerbuddy/internal/models"
)

func main() {
	_ = godotenv.Load()

	natsURL := flag.String("nats", envOr("NATS_URL", "nats://localhost:4222"), "NATS server URL")
	subject := flag.String("subject", envOr("NATS_INBOUND_SUBJECT", "ledger.message.in"), "inbound subject of the service")
	chatID := flag.String("chat", "cli", "chat id to send as")
	replyTo := flag.String("reply-to", "", "text of the earlier message this one replies to")
	timeout := flag.Duration("timeout", 3*time.Minute, "how long to wait for the reply")
	flag.Parse()

	text := strings.TrimSpace(strings.Join(flag.Args(), " "))
	if text == "" {
		fmt.Fprintln(os.Stderr, "usage: ledgerbuddy-cli [flags] <message>")
		flag.PrintDefaults()
		os.Exit(2)
	}

	nc, err := nats.Connect(*natsURL, nats.Name("ledgerbuddy-cli"))
	if err != nil {
		fmt.Fprintf(os.Stderr, "Failed to connect to NATS: %v\n", err)
		os.Exit(1)
	}
	defer nc.Close()

	// Messages the agent pushes out of band arrive on the outbound subject.
	outbound := envOr("NATS_OUTBOUND_SUBJECT", "ledger.message.out")
	sub, err := nc.Subscribe(outbound, func(m *nats.Msg) {
		var out models.OutboundMessage
		if json.Unmarshal(m.Data, &out) == nil && out.ChatID == *chatID {
			printReply(&out)
		}
	})
	if err != nil {
		fmt.Fprintf(os.Stderr, "Failed to subscribe to %s: %v\n", outbound, err)
		os.Exit(1)
	}
	defer sub.Unsubscribe()

	data, err := json.Marshal(&models.InboundMessage{ChatID: *chatID, Text: text, ReplyText: *replyTo})
	if err != nil {
		fmt.Fprintf(os.Stderr, "Failed to encode message: %v\n", err)
		os.Exit(1)
	}
	msg, err := nc.Request(*subject, data, *timeout)
	if err != nil {
		fmt.Fprintf(os.Stderr, "Request failed: %v\n", err)
		os.Exit(1)
	}

	var out models.OutboundMessage
	if err := json.Unmarshal(msg.Data, &out); err != nil {
		fmt.Fprintf(os.Stderr, "Invalid reply: %v\n", err)
		os.Exit(1)
	}
	printReply(&out)
	if !out.Success {
		os.Exit(1)
	}
}

func printReply(out *models.OutboundMessage) {
	if out.Text != "" {
		fmt.Println(out.Text)
	}
	if out.Affordance != nil {
		fmt.Printf("[%s] %s\n", out.Affordance.Label, out.Affordance.Data)
	}
	if out.ErrorCode != nil {
		detail := ""
		if out.ErrorMessage != nil {
			detail = *out.ErrorMessage
		}
		fmt.Fprintf(os.Stderr, "error %s: %s\n", *out.ErrorCode, detail)
	}
}

func envOr(key, def string) string {
	if v := os.Getenv(key); v != "" {
		return v
	}
	return def
}
