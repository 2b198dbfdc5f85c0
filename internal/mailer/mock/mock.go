package mock

import (
	"context"
	"log/slog"
	"time"

	"github.com/codewithrichardb/ecommerce-backend/internal/mailer"
)

// MockSender is a mailer implementation that logs messages and always
// succeeds. It simulates a 10ms delay to mimic real sending latency.
type MockSender struct {
	logger *slog.Logger
}

// NewMockSender creates a new mock mail sender.
func NewMockSender(logger *slog.Logger) *MockSender {
	return &MockSender{logger: logger}
}

// Name returns the name of this sender.
func (s *MockSender) Name() string {
	return "mock-mail"
}

// Send logs the message details and simulates a 10ms sending delay.
func (s *MockSender) Send(ctx context.Context, msg *mailer.Message) error {
	// Simulate sending delay.
	time.Sleep(10 * time.Millisecond)

	s.logger.InfoContext(ctx, "mock sender: mail sent",
		slog.String("to", msg.To),
		slog.String("subject", msg.Subject),
		slog.Int("body_bytes", len(msg.HTMLBody)),
	)

	return nil
}
