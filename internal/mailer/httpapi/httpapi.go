// Package httpapi dispatches mail through a transactional mail HTTP API.
package httpapi

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"net/http"

	"github.com/codewithrichardb/ecommerce-backend/internal/mailer"
	"github.com/codewithrichardb/ecommerce-backend/pkg/httpclient"
)

// sendRequest is the wire format expected by the mail API.
type sendRequest struct {
	From     string `json:"from"`
	To       string `json:"to"`
	Subject  string `json:"subject"`
	HTMLBody string `json:"html_body"`
}

// Sender dispatches rendered emails through a transactional mail HTTP API.
// Calls go through a circuit breaker so a degraded mail provider cannot
// stall the reminder sweep.
type Sender struct {
	client  *httpclient.CircuitBreakerClient
	baseURL string
	from    string
	apiKey  string
	logger  *slog.Logger
}

// NewSender creates a new HTTP API mail sender.
func NewSender(client *httpclient.CircuitBreakerClient, baseURL, from, apiKey string, logger *slog.Logger) *Sender {
	return &Sender{
		client:  client,
		baseURL: baseURL,
		from:    from,
		apiKey:  apiKey,
		logger:  logger,
	}
}

// Name returns the name of this sender.
func (s *Sender) Name() string {
	return "http-mail-api"
}

// Send posts the message to the mail API's send endpoint.
func (s *Sender) Send(ctx context.Context, msg *mailer.Message) error {
	payload, err := json.Marshal(sendRequest{
		From:     s.from,
		To:       msg.To,
		Subject:  msg.Subject,
		HTMLBody: msg.HTMLBody,
	})
	if err != nil {
		return fmt.Errorf("marshal mail request: %w", err)
	}

	url := s.baseURL + "/v1/send"
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, url, bytes.NewReader(payload))
	if err != nil {
		return fmt.Errorf("create mail request: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")
	req.Header.Set("Authorization", "Bearer "+s.apiKey)

	resp, err := s.client.Do(ctx, req)
	if err != nil {
		return fmt.Errorf("send mail: %w", err)
	}

	if resp.StatusCode >= 400 {
		return httpclient.ParseResponseError(resp, "mail-api")
	}
	_ = resp.Body.Close()

	s.logger.DebugContext(ctx, "mail dispatched",
		slog.String("to", msg.To),
		slog.String("subject", msg.Subject),
	)

	return nil
}
