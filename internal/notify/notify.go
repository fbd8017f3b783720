// Package notify delivers user-facing messages about settled withdrawals.
// Delivery is fire-and-forget: a failed notification never affects a
// financial transition that already happened.
package notify

import (
	"context"
	"fmt"
	"log/slog"
	"net/http"
	"os"

	"github.com/go-resty/resty/v2"
	"github.com/maridaapp/settlement/internal/httpclient"
)

type Notifier interface {
	Send(ctx context.Context, userLogin, message string) error
}

// WebhookNotifier posts messages to the notification gateway webhook.
type WebhookNotifier struct {
	log    *slog.Logger
	client *resty.Client
}

func NewWebhookNotifier(webhookURL string, opts ...Option) *WebhookNotifier {
	notifier := &WebhookNotifier{
		log:    slog.New(slog.NewJSONHandler(os.Stdout, nil)),
		client: httpclient.New(httpclient.WithBaseURL(webhookURL)),
	}

	for _, opt := range opts {
		opt(notifier)
	}

	return notifier
}

type Option func(n *WebhookNotifier)

func WithLogger(logger *slog.Logger) Option {
	return func(n *WebhookNotifier) {
		n.log = logger.With(slog.String("module", "notifier"))
	}
}

func WithClient(client *resty.Client) Option {
	return func(n *WebhookNotifier) {
		n.client = client
	}
}

type notificationPayload struct {
	User    string `json:"user"`
	Message string `json:"message"`
}

func (n *WebhookNotifier) Send(ctx context.Context, userLogin, message string) error {
	resp, err := n.client.R().
		SetContext(ctx).
		SetBody(notificationPayload{
			User:    userLogin,
			Message: message,
		}).
		Post("")
	if err != nil {
		return fmt.Errorf("client.R: %w", err)
	}

	if resp.StatusCode() >= http.StatusBadRequest {
		return fmt.Errorf("notification gateway status %d", resp.StatusCode())
	}

	return nil
}

// NoopNotifier drops every message. Used when no webhook is configured.
type NoopNotifier struct{}

func (NoopNotifier) Send(_ context.Context, _, _ string) error {
	return nil
}
