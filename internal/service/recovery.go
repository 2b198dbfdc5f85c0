package service

import (
	"context"
	"crypto/rand"
	"encoding/hex"
	"errors"
	"fmt"
	"log/slog"
	"net/url"
	"strings"

	"github.com/google/uuid"

	"github.com/codewithrichardb/ecommerce-backend/internal/domain"
	"github.com/codewithrichardb/ecommerce-backend/internal/event"
	"github.com/codewithrichardb/ecommerce-backend/internal/mailer"
	"github.com/codewithrichardb/ecommerce-backend/internal/repository"
	"github.com/codewithrichardb/ecommerce-backend/pkg/clock"
	apperrors "github.com/codewithrichardb/ecommerce-backend/pkg/errors"
)

// RecoveryConfig carries the storefront settings the recovery service needs
// to build reminder emails and recovery links.
type RecoveryConfig struct {
	StoreName string
	BaseURL   string
	BatchSize int
}

// RecoveryService implements the business logic for abandoned cart capture,
// reminder scheduling, and recovery.
type RecoveryService struct {
	carts     repository.AbandonedCartRepository
	emails    repository.RecoveryEmailRepository
	liveCarts repository.LiveCartStore
	coupons   *CouponService
	sender    mailer.Sender
	renderer  *mailer.Renderer
	producer  *event.Producer
	clock     clock.Clock
	logger    *slog.Logger
	cfg       RecoveryConfig
}

// NewRecoveryService creates a new recovery service.
func NewRecoveryService(
	carts repository.AbandonedCartRepository,
	emails repository.RecoveryEmailRepository,
	liveCarts repository.LiveCartStore,
	coupons *CouponService,
	sender mailer.Sender,
	renderer *mailer.Renderer,
	producer *event.Producer,
	clk clock.Clock,
	logger *slog.Logger,
	cfg RecoveryConfig,
) *RecoveryService {
	if cfg.BatchSize <= 0 {
		cfg.BatchSize = 100
	}
	return &RecoveryService{
		carts:     carts,
		emails:    emails,
		liveCarts: liveCarts,
		coupons:   coupons,
		sender:    sender,
		renderer:  renderer,
		producer:  producer,
		clock:     clk,
		logger:    logger,
		cfg:       cfg,
	}
}

// SaveAbandonedCartInput holds the cart snapshot captured when a shopper
// walks away.
type SaveAbandonedCartInput struct {
	UserID     string
	Email      string
	Items      []domain.CartItem
	CouponCode string
	Metadata   map[string]string
}

// SaveAbandonedCart captures or refreshes the abandoned cart for an email
// address. An email has at most one active cart; a repeat capture replaces
// the items of the existing cart without resetting its reminder state.
func (s *RecoveryService) SaveAbandonedCart(ctx context.Context, input *SaveAbandonedCartInput) (*domain.AbandonedCart, error) {
	email := strings.ToLower(strings.TrimSpace(input.Email))
	if email == "" {
		return nil, apperrors.InvalidInput("email is required")
	}
	if len(input.Items) == 0 {
		return nil, apperrors.InvalidInput("cart must contain at least one item")
	}

	subtotal := cartSubtotal(input.Items)
	now := s.clock.Now().UTC()

	existing, err := s.carts.GetActiveByEmail(ctx, email)
	if err != nil && !errors.Is(err, apperrors.ErrNotFound) {
		return nil, fmt.Errorf("get active cart: %w", err)
	}

	if existing != nil {
		existing.UserID = input.UserID
		existing.Items = input.Items
		existing.Subtotal = subtotal
		existing.Total = subtotal
		existing.CouponCode = input.CouponCode
		if input.Metadata != nil {
			existing.Metadata = input.Metadata
		}
		existing.UpdatedAt = now

		if err := s.carts.Update(ctx, existing); err != nil {
			return nil, fmt.Errorf("update abandoned cart: %w", err)
		}

		s.logger.InfoContext(ctx, "abandoned cart refreshed",
			slog.String("cart_id", existing.ID),
			slog.String("email", email),
			slog.Int("item_count", len(existing.Items)),
		)

		return existing, nil
	}

	token, err := generateRecoveryToken()
	if err != nil {
		return nil, fmt.Errorf("generate recovery token: %w", err)
	}

	cart := &domain.AbandonedCart{
		ID:            uuid.New().String(),
		UserID:        input.UserID,
		Email:         email,
		Items:         input.Items,
		Subtotal:      subtotal,
		Total:         subtotal,
		CouponCode:    input.CouponCode,
		Status:        domain.CartStatusActive,
		RecoveryToken: token,
		RecoveryURL:   s.cfg.BaseURL + "/cart/recover/" + token,
		ExpiresAt:     now.Add(domain.CartExpiry),
		Metadata:      input.Metadata,
		CreatedAt:     now,
		UpdatedAt:     now,
	}

	if err := s.carts.Create(ctx, cart); err != nil {
		return nil, fmt.Errorf("create abandoned cart: %w", err)
	}

	cartsAbandoned.Inc()

	if _, err := s.ScheduleNextReminder(ctx, cart); err != nil {
		s.logger.ErrorContext(ctx, "failed to schedule first reminder",
			slog.String("cart_id", cart.ID),
			slog.String("error", err.Error()),
		)
	}

	if err := s.producer.PublishCartAbandoned(ctx, cart); err != nil {
		s.logger.ErrorContext(ctx, "failed to publish cart.abandoned event",
			slog.String("cart_id", cart.ID),
			slog.String("error", err.Error()),
		)
	}

	s.logger.InfoContext(ctx, "abandoned cart captured",
		slog.String("cart_id", cart.ID),
		slog.String("email", email),
		slog.Int("item_count", len(cart.Items)),
		slog.Int64("total", cart.Total),
	)

	return cart, nil
}

// GetCart retrieves an abandoned cart by its ID.
func (s *RecoveryService) GetCart(ctx context.Context, id string) (*domain.AbandonedCart, error) {
	cart, err := s.carts.GetByID(ctx, id)
	if err != nil {
		return nil, fmt.Errorf("get abandoned cart: %w", err)
	}
	return cart, nil
}

// ScheduleNextReminder creates the cart's next pending reminder and bumps
// the cart's reminder counter. Returns nil without error when the cart has
// exhausted its reminder sequence. The final reminder gets a freshly minted
// single-use coupon; if minting fails the reminder goes out without one.
func (s *RecoveryService) ScheduleNextReminder(ctx context.Context, cart *domain.AbandonedCart) (*domain.RecoveryEmail, error) {
	now := s.clock.Now().UTC()

	plan, ok := cart.NextReminder(now)
	if !ok {
		return nil, nil
	}

	email := &domain.RecoveryEmail{
		ID:           uuid.New().String(),
		CartID:       cart.ID,
		EmailType:    plan.EmailType,
		Status:       domain.EmailStatusPending,
		ScheduledFor: plan.ScheduledFor,
		Subject:      plan.Subject,
		CreatedAt:    now,
		UpdatedAt:    now,
	}

	if plan.IncludeCoupon {
		coupon, err := s.coupons.MintRecoveryCoupon(ctx)
		if err != nil {
			s.logger.ErrorContext(ctx, "failed to mint recovery coupon, sending reminder without one",
				slog.String("cart_id", cart.ID),
				slog.String("error", err.Error()),
			)
		} else {
			email.CouponCode = coupon.Code
			email.DiscountValue = coupon.DiscountValue
		}
	}

	if err := s.emails.Create(ctx, email); err != nil {
		return nil, fmt.Errorf("create recovery email: %w", err)
	}

	cart.EmailsSent++
	cart.UpdatedAt = now
	if err := s.carts.Update(ctx, cart); err != nil {
		return nil, fmt.Errorf("update cart reminder count: %w", err)
	}

	s.logger.InfoContext(ctx, "reminder scheduled",
		slog.String("cart_id", cart.ID),
		slog.String("email_id", email.ID),
		slog.String("email_type", email.EmailType),
		slog.Time("scheduled_for", email.ScheduledFor),
	)

	return email, nil
}

// ProcessDueReminders is the periodic sweep. It expires stale carts, then
// claims and dispatches every due reminder, scheduling each cart's next
// reminder after a successful send. Returns the number of reminders sent.
// Per-reminder failures are logged and do not stop the sweep.
func (s *RecoveryService) ProcessDueReminders(ctx context.Context) (int, error) {
	now := s.clock.Now().UTC()

	expired, err := s.carts.ExpireStale(ctx, now)
	if err != nil {
		return 0, fmt.Errorf("expire stale carts: %w", err)
	}
	if expired > 0 {
		s.logger.InfoContext(ctx, "expired stale carts", slog.Int("count", expired))
	}

	due, err := s.emails.ListDue(ctx, now, s.cfg.BatchSize)
	if err != nil {
		return 0, fmt.Errorf("list due reminders: %w", err)
	}

	sent := 0
	for i := range due {
		email := &due[i]

		claimed, err := s.emails.ClaimSending(ctx, email.ID)
		if err != nil {
			s.logger.ErrorContext(ctx, "failed to claim reminder",
				slog.String("email_id", email.ID),
				slog.String("error", err.Error()),
			)
			continue
		}
		if !claimed {
			// Another sweep got there first.
			continue
		}

		if err := s.dispatchReminder(ctx, email); err != nil {
			s.logger.ErrorContext(ctx, "failed to send reminder",
				slog.String("email_id", email.ID),
				slog.String("cart_id", email.CartID),
				slog.String("error", err.Error()),
			)
			remindersFailed.WithLabelValues(email.EmailType).Inc()
			if err := s.emails.MarkFailed(ctx, email.ID); err != nil {
				s.logger.ErrorContext(ctx, "failed to mark reminder failed",
					slog.String("email_id", email.ID),
					slog.String("error", err.Error()),
				)
			}
			continue
		}

		remindersSent.WithLabelValues(email.EmailType).Inc()
		sent++
	}

	if sent > 0 || len(due) > 0 {
		s.logger.InfoContext(ctx, "reminder sweep finished",
			slog.Int("due", len(due)),
			slog.Int("sent", sent),
		)
	}

	return sent, nil
}

// dispatchReminder renders and sends one claimed reminder, then records the
// send on both the reminder and its cart and schedules the cart's next one.
func (s *RecoveryService) dispatchReminder(ctx context.Context, email *domain.RecoveryEmail) error {
	cart, err := s.carts.GetByID(ctx, email.CartID)
	if err != nil {
		return fmt.Errorf("get cart for reminder: %w", err)
	}

	body, err := s.renderer.RenderReminder(s.reminderData(cart, email))
	if err != nil {
		return fmt.Errorf("render reminder: %w", err)
	}

	if err := s.sender.Send(ctx, &mailer.Message{
		To:       cart.Email,
		Subject:  email.Subject,
		HTMLBody: body,
	}); err != nil {
		return fmt.Errorf("send reminder: %w", err)
	}

	now := s.clock.Now().UTC()
	if err := s.emails.MarkSent(ctx, email.ID, now); err != nil {
		return fmt.Errorf("mark reminder sent: %w", err)
	}

	cart.LastEmailSentAt = &now
	cart.UpdatedAt = now
	if err := s.carts.Update(ctx, cart); err != nil {
		return fmt.Errorf("update cart after send: %w", err)
	}

	if _, err := s.ScheduleNextReminder(ctx, cart); err != nil {
		s.logger.ErrorContext(ctx, "failed to schedule next reminder",
			slog.String("cart_id", cart.ID),
			slog.String("error", err.Error()),
		)
	}

	s.logger.InfoContext(ctx, "reminder sent",
		slog.String("email_id", email.ID),
		slog.String("cart_id", cart.ID),
		slog.String("email_type", email.EmailType),
		slog.String("to", cart.Email),
	)

	return nil
}

// reminderData assembles the template fields for one reminder. Links route
// through the tracking endpoints so opens and clicks are attributable to
// the specific reminder.
func (s *RecoveryService) reminderData(cart *domain.AbandonedCart, email *domain.RecoveryEmail) *mailer.ReminderData {
	var discount int64
	if email.CouponCode != "" {
		discount = cart.Subtotal * email.DiscountValue / 100
	}

	recoveryURL := s.cfg.BaseURL + "/api/v1/abandoned-carts/track/click/" + email.ID +
		"?redirectUrl=" + url.QueryEscape(cart.RecoveryURL)

	data := &mailer.ReminderData{
		Subject:          email.Subject,
		StoreName:        s.cfg.StoreName,
		StoreURL:         s.cfg.BaseURL,
		Items:            cart.Items,
		Subtotal:         mailer.FormatCents(cart.Subtotal),
		Discount:         mailer.FormatCents(discount),
		Total:            mailer.FormatCents(cart.Subtotal - discount),
		RecoveryURL:      recoveryURL,
		TrackingPixelURL: s.cfg.BaseURL + "/api/v1/abandoned-carts/track/open/" + email.ID,
		CouponCode:       email.CouponCode,
	}
	if email.CouponCode != "" {
		data.CouponDiscount = fmt.Sprintf("%d%%", email.DiscountValue)
	}
	return data
}

// RecoverCart redeems a recovery token. The cart transitions to recovered
// exactly once; its items are rehydrated into the shopper's live cart so
// checkout can resume. Expired or already-settled carts yield a gone error.
func (s *RecoveryService) RecoverCart(ctx context.Context, token string) (*domain.AbandonedCart, error) {
	cart, err := s.carts.GetByToken(ctx, token)
	if err != nil {
		return nil, fmt.Errorf("get cart by token: %w", err)
	}

	now := s.clock.Now().UTC()

	if cart.IsTerminal() {
		return nil, apperrors.Gone("this recovery link has already been used or has expired")
	}
	if cart.IsExpired(now) {
		return nil, apperrors.Gone("this recovery link has expired")
	}

	recovered, err := s.carts.MarkRecovered(ctx, cart.ID, now)
	if err != nil {
		return nil, fmt.Errorf("mark cart recovered: %w", err)
	}
	if !recovered {
		return nil, apperrors.Gone("this recovery link has already been used or has expired")
	}

	cart.Status = domain.CartStatusRecovered
	cart.RecoveredAt = &now

	if err := s.liveCarts.Save(ctx, &domain.LiveCart{
		Email:         cart.Email,
		Items:         cart.Items,
		CouponCode:    cart.CouponCode,
		RecoveredFrom: cart.ID,
		RehydratedAt:  now,
	}); err != nil {
		// The cart is recovered either way; the shopper just starts with
		// an empty live cart if the cache write fails.
		s.logger.ErrorContext(ctx, "failed to rehydrate live cart",
			slog.String("cart_id", cart.ID),
			slog.String("email", cart.Email),
			slog.String("error", err.Error()),
		)
	}

	if err := s.producer.PublishCartRecovered(ctx, cart); err != nil {
		s.logger.ErrorContext(ctx, "failed to publish cart.recovered event",
			slog.String("cart_id", cart.ID),
			slog.String("error", err.Error()),
		)
	}

	cartsRecovered.Inc()

	s.logger.InfoContext(ctx, "cart recovered",
		slog.String("cart_id", cart.ID),
		slog.String("email", cart.Email),
		slog.Int64("total", cart.Total),
	)

	return cart, nil
}

// TrackOpen records that a reminder email was opened. Safe to call
// repeatedly; the reminder's status advances once, the cart's open counter
// counts every hit.
func (s *RecoveryService) TrackOpen(ctx context.Context, emailID string) error {
	email, err := s.emails.GetByID(ctx, emailID)
	if err != nil {
		return fmt.Errorf("get reminder for open: %w", err)
	}

	now := s.clock.Now().UTC()
	if err := s.emails.MarkOpened(ctx, email.ID, now); err != nil {
		return fmt.Errorf("mark reminder opened: %w", err)
	}
	if err := s.carts.IncrementOpened(ctx, email.CartID); err != nil {
		return fmt.Errorf("increment cart opens: %w", err)
	}

	s.logger.DebugContext(ctx, "reminder opened",
		slog.String("email_id", email.ID),
		slog.String("cart_id", email.CartID),
	)

	return nil
}

// TrackClick records that a reminder link was clicked and returns the
// reminder so the caller can redirect to the recovery URL.
func (s *RecoveryService) TrackClick(ctx context.Context, emailID string) (*domain.RecoveryEmail, error) {
	email, err := s.emails.GetByID(ctx, emailID)
	if err != nil {
		return nil, fmt.Errorf("get reminder for click: %w", err)
	}

	now := s.clock.Now().UTC()
	if err := s.emails.MarkClicked(ctx, email.ID, now); err != nil {
		return nil, fmt.Errorf("mark reminder clicked: %w", err)
	}
	if err := s.carts.IncrementClicked(ctx, email.CartID); err != nil {
		return nil, fmt.Errorf("increment cart clicks: %w", err)
	}

	s.logger.DebugContext(ctx, "reminder clicked",
		slog.String("email_id", email.ID),
		slog.String("cart_id", email.CartID),
	)

	return email, nil
}

// MarkConverted settles any active cart for the email as converted. Called
// when an order for that email completes. Returns the number of carts
// settled, which is zero when the shopper had no active cart.
func (s *RecoveryService) MarkConverted(ctx context.Context, emailAddr string) (int, error) {
	email := strings.ToLower(strings.TrimSpace(emailAddr))
	now := s.clock.Now().UTC()

	n, err := s.carts.MarkConvertedByEmail(ctx, email, now)
	if err != nil {
		return 0, fmt.Errorf("mark carts converted: %w", err)
	}

	if n > 0 {
		cartsConverted.Add(float64(n))
		s.logger.InfoContext(ctx, "carts converted",
			slog.String("email", email),
			slog.Int("count", n),
		)
	}

	return n, nil
}

// CartStats returns aggregate abandonment and recovery statistics.
func (s *RecoveryService) CartStats(ctx context.Context) (*repository.CartStats, error) {
	stats, err := s.carts.Stats(ctx)
	if err != nil {
		return nil, fmt.Errorf("cart stats: %w", err)
	}
	return stats, nil
}

// cartSubtotal sums line totals across the cart's items.
func cartSubtotal(items []domain.CartItem) int64 {
	var subtotal int64
	for _, item := range items {
		subtotal += item.Price * int64(item.Quantity)
	}
	return subtotal
}

// generateRecoveryToken produces a 40 character hex token.
func generateRecoveryToken() (string, error) {
	buf := make([]byte, 20)
	if _, err := rand.Read(buf); err != nil {
		return "", err
	}
	return hex.EncodeToString(buf), nil
}
