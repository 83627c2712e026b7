// Package slack implements a notifier.Notifier that mirrors lease events to
// a Slack channel through an incoming webhook.
package slack

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"slices"
	"strings"
	"time"

	"github.com/Strob0t/LeaseForge/internal/port/notifier"
)

const (
	providerName = "slack"
	// Slack renders at most ten fields per section block.
	maxFields   = 10
	sendTimeout = 10 * time.Second
)

// Notifier posts one Block Kit message per lease event to the ops channel.
type Notifier struct {
	webhookURL string
	client     *http.Client
}

// NewNotifier returns a notifier for webhookURL. An empty URL yields a
// notifier whose Send reports ErrNotConfigured.
func NewNotifier(webhookURL string) *Notifier {
	return &Notifier{
		webhookURL: webhookURL,
		client:     &http.Client{Timeout: sendTimeout},
	}
}

func (n *Notifier) Name() string { return providerName }

// Capabilities: the channel is shared, so nothing is sent per recipient.
func (n *Notifier) Capabilities() notifier.Capabilities {
	return notifier.Capabilities{RichFormatting: true}
}

type message struct {
	Text   string  `json:"text"` // fallback for push notifications
	Blocks []block `json:"blocks"`
}

type block struct {
	Type   string `json:"type"`
	Text   *text  `json:"text,omitempty"`
	Fields []text `json:"fields,omitempty"`
}

type text struct {
	Type string `json:"type"`
	Text string `json:"text"`
}

func mrkdwn(s string) text { return text{Type: "mrkdwn", Text: s} }

// Send posts the notification. Any non-2xx answer is an error so that the
// breaker in front of this notifier can count it.
func (n *Notifier) Send(ctx context.Context, nt notifier.Notification) error {
	if n.webhookURL == "" {
		return notifier.ErrNotConfigured
	}

	body, err := json.Marshal(render(nt))
	if err != nil {
		return fmt.Errorf("slack: encode: %w", err)
	}
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, n.webhookURL, bytes.NewReader(body))
	if err != nil {
		return fmt.Errorf("slack: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")

	resp, err := n.client.Do(req) //nolint:gosec // webhook URL from trusted config
	if err != nil {
		return fmt.Errorf("slack: post: %w", err)
	}
	defer func() { _ = resp.Body.Close() }()

	if resp.StatusCode/100 != 2 {
		detail, _ := io.ReadAll(io.LimitReader(resp.Body, 512))
		return fmt.Errorf("slack: webhook answered %d: %s", resp.StatusCode, strings.TrimSpace(string(detail)))
	}
	return nil
}

func render(nt notifier.Notification) message {
	title := templateTag(nt.Template) + " " + nt.Title
	msg := message{
		Text: title,
		Blocks: []block{
			{Type: "header", Text: &text{Type: "plain_text", Text: title}},
			{Type: "section", Text: ptr(mrkdwn(nt.Message))},
		},
	}

	keys := make([]string, 0, len(nt.Data))
	for k := range nt.Data {
		keys = append(keys, k)
	}
	slices.Sort(keys)
	for chunk := range slices.Chunk(keys, maxFields) {
		fields := make([]text, len(chunk))
		for i, k := range chunk {
			fields[i] = mrkdwn("*" + k + "*\n" + nt.Data[k])
		}
		msg.Blocks = append(msg.Blocks, block{Type: "section", Fields: fields})
	}
	return msg
}

func ptr[T any](v T) *T { return &v }

// templateTag maps a notification template to a short label.
func templateTag(template string) string {
	event := template[strings.LastIndexByte(template, '.')+1:]
	switch {
	case event == "fully_executed":
		return "[EXECUTED]"
	case event == "cancelled", event == "expired":
		return "[CLOSED]"
	case strings.HasPrefix(event, "signed"):
		return "[SIGNED]"
	case strings.HasPrefix(event, "change"):
		return "[CHANGES]"
	default:
		return "[LEASE]"
	}
}
