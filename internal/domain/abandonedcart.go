package domain

import (
	"time"
)

// Abandoned cart status constants.
const (
	CartStatusActive    = "active"
	CartStatusRecovered = "recovered"
	CartStatusExpired   = "expired"
	CartStatusConverted = "converted"
)

// Recovery email type constants.
const (
	EmailTypeFirstReminder  = "first_reminder"
	EmailTypeSecondReminder = "second_reminder"
	EmailTypeFinalReminder  = "final_reminder"
	EmailTypeDiscountOffer  = "discount_offer"
)

// Recovery email status constants. An email moves pending -> sending ->
// sent -> opened -> clicked, or pending -> sending -> failed. The sending
// state exists so concurrent sweeps cannot dispatch the same email twice.
const (
	EmailStatusPending = "pending"
	EmailStatusSending = "sending"
	EmailStatusSent    = "sent"
	EmailStatusFailed  = "failed"
	EmailStatusOpened  = "opened"
	EmailStatusClicked = "clicked"
)

// MaxReminders is the number of reminder emails sent per abandoned cart.
const MaxReminders = 3

// CartExpiry is how long an abandoned cart remains recoverable.
const CartExpiry = 7 * 24 * time.Hour

// CartItem is a single line item in an abandoned cart. Price is the unit
// price in cents.
type CartItem struct {
	ProductID   string `json:"product_id"`
	ProductName string `json:"product_name"`
	Quantity    int    `json:"quantity"`
	Price       int64  `json:"price"`
	Image       string `json:"image,omitempty"`
	VariantID   string `json:"variant_id,omitempty"`
	VariantName string `json:"variant_name,omitempty"`
	Size        string `json:"size,omitempty"`
	Color       string `json:"color,omitempty"`
}

// AbandonedCart is a snapshot of a cart a shopper walked away from,
// together with its recovery state. Email is the lookup key and is stored
// lowercased. RecoveryToken is generated once at creation and never changes.
type AbandonedCart struct {
	ID              string            `json:"id"`
	UserID          string            `json:"user_id,omitempty"`
	Email           string            `json:"email"`
	Items           []CartItem        `json:"items"`
	Subtotal        int64             `json:"subtotal"`
	DiscountAmount  int64             `json:"discount_amount"`
	Total           int64             `json:"total"`
	CouponCode      string            `json:"coupon_code,omitempty"`
	Status          string            `json:"status"`
	RecoveryToken   string            `json:"recovery_token"`
	RecoveryURL     string            `json:"recovery_url"`
	ExpiresAt       time.Time         `json:"expires_at"`
	RecoveredAt     *time.Time        `json:"recovered_at,omitempty"`
	LastEmailSentAt *time.Time        `json:"last_email_sent_at,omitempty"`
	EmailsSent      int               `json:"emails_sent"`
	EmailsOpened    int               `json:"emails_opened"`
	EmailsClicked   int               `json:"emails_clicked"`
	Metadata        map[string]string `json:"metadata,omitempty"`
	CreatedAt       time.Time         `json:"created_at"`
	UpdatedAt       time.Time         `json:"updated_at"`
}

// RecoveryEmail is one scheduled reminder for an abandoned cart.
type RecoveryEmail struct {
	ID            string     `json:"id"`
	CartID        string     `json:"cart_id"`
	EmailType     string     `json:"email_type"`
	Status        string     `json:"status"`
	ScheduledFor  time.Time  `json:"scheduled_for"`
	SentAt        *time.Time `json:"sent_at,omitempty"`
	OpenedAt      *time.Time `json:"opened_at,omitempty"`
	ClickedAt     *time.Time `json:"clicked_at,omitempty"`
	Subject       string     `json:"subject"`
	CouponCode    string     `json:"coupon_code,omitempty"`
	DiscountValue int64      `json:"discount_value,omitempty"`
	CreatedAt     time.Time  `json:"created_at"`
	UpdatedAt     time.Time  `json:"updated_at"`
}

// ReminderPlan describes the next reminder to schedule for a cart.
type ReminderPlan struct {
	EmailType     string
	Subject       string
	ScheduledFor  time.Time
	IncludeCoupon bool
}

// minScheduleLead is the clamp applied when a reminder's nominal send time
// is already in the past (for example after downtime). The reminder is
// rescheduled this far into the future instead.
const minScheduleLead = 5 * time.Minute

// NextReminder returns the plan for the cart's next reminder email, or
// false when no further reminder should be scheduled. The first reminder
// is offset from the cart's creation; later reminders are offset from the
// previous send. ScheduledFor is never in the past relative to now.
func (c *AbandonedCart) NextReminder(now time.Time) (ReminderPlan, bool) {
	if c.Status != CartStatusActive || c.EmailsSent >= MaxReminders {
		return ReminderPlan{}, false
	}

	base := c.CreatedAt
	if c.LastEmailSentAt != nil {
		base = *c.LastEmailSentAt
	}

	var plan ReminderPlan
	switch c.EmailsSent {
	case 0:
		plan = ReminderPlan{
			EmailType:    EmailTypeFirstReminder,
			Subject:      "Did you forget something? Your cart is waiting!",
			ScheduledFor: c.CreatedAt.Add(1 * time.Hour),
		}
	case 1:
		plan = ReminderPlan{
			EmailType:    EmailTypeSecondReminder,
			Subject:      "Your cart is still waiting for you!",
			ScheduledFor: base.Add(24 * time.Hour),
		}
	case 2:
		plan = ReminderPlan{
			EmailType:     EmailTypeFinalReminder,
			Subject:       "Last chance to complete your purchase!",
			ScheduledFor:  base.Add(72 * time.Hour),
			IncludeCoupon: true,
		}
	}

	if plan.ScheduledFor.Before(now) {
		plan.ScheduledFor = now.Add(minScheduleLead)
	}
	return plan, true
}

// IsExpired reports whether the cart is past its recovery window.
func (c *AbandonedCart) IsExpired(now time.Time) bool {
	return now.After(c.ExpiresAt)
}

// IsTerminal reports whether the cart is in a status that never
// transitions again.
func (c *AbandonedCart) IsTerminal() bool {
	return c.Status == CartStatusRecovered ||
		c.Status == CartStatusExpired ||
		c.Status == CartStatusConverted
}
