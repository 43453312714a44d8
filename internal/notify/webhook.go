package notify

import (
	"context"
	"fmt"
	"net/http"

	"github.com/txsvc/stdlib/v2"

	"github.com/safetrack-gps/safetrack/internal"
	"github.com/safetrack-gps/safetrack/internal/safety"
	"github.com/safetrack-gps/safetrack/internal/settings"
)

const (
	BreachWebhookEndpoint = "BREACH_WEBHOOK_ENDPOINT"
	BreachWebhookToken    = "BREACH_WEBHOOK_TOKEN"

	webhookApiAgent = "safetrack/notify"
)

// WebhookSink delivers breach events with a single POST. The transport
// retries transient failures, but a final failure is the caller's to log;
// there is no queue behind this.
type WebhookSink struct {
	rc internal.RestClient
}

func NewWebhookSink() (*WebhookSink, error) {
	endpoint := stdlib.GetString(BreachWebhookEndpoint, "")
	if endpoint == "" {
		return nil, fmt.Errorf("missing BREACH_WEBHOOK_ENDPOINT")
	}

	ds := &settings.DialSettings{
		Endpoint:  endpoint,
		UserAgent: webhookApiAgent,
		Credentials: &settings.Credentials{
			Token: stdlib.GetString(BreachWebhookToken, ""),
		},
	}

	return &WebhookSink{
		rc: internal.RestClient{
			HttpClient: internal.NewLoggingTransport(http.DefaultTransport),
			Settings:   ds,
		},
	}, nil
}

func (s *WebhookSink) PostBreachEvent(ctx context.Context, evt *safety.BreachEvent) error {
	status, err := s.rc.POST("", evt, nil)
	if err != nil {
		return fmt.Errorf(internal.MsgStatus, "breach webhook", status)
	}
	return nil
}
