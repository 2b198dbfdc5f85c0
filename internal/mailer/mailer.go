// Package mailer renders and dispatches cart recovery emails.
package mailer

import (
	"context"
	"fmt"
)

// Message is a rendered email ready for dispatch.
type Message struct {
	To       string
	Subject  string
	HTMLBody string
}

// Sender defines the interface for dispatching a rendered email.
type Sender interface {
	Name() string
	Send(ctx context.Context, msg *Message) error
}

// FormatCents renders an amount of cents as a dollar string, e.g. 4550 -> "$45.50".
func FormatCents(cents int64) string {
	sign := ""
	if cents < 0 {
		sign = "-"
		cents = -cents
	}
	return fmt.Sprintf("%s$%d.%02d", sign, cents/100, cents%100)
}
