package repository

import (
	"context"
	"time"

	"github.com/codewithrichardb/ecommerce-backend/internal/domain"
)

// CouponFilter defines filter criteria for listing coupons.
type CouponFilter struct {
	Status       *string
	DiscountType *string
	Page         int
	PerPage      int
}

// CouponStats aggregates redemption numbers across all coupons.
type CouponStats struct {
	TotalCoupons       int   `json:"total_coupons"`
	ActiveCoupons      int   `json:"active_coupons"`
	TotalRedemptions   int   `json:"total_redemptions"`
	TotalDiscountGiven int64 `json:"total_discount_given"`
}

// CouponRepository defines the interface for coupon persistence operations.
type CouponRepository interface {
	// Create inserts a new coupon into the store.
	Create(ctx context.Context, coupon *domain.Coupon) error

	// GetByID retrieves a coupon by its unique identifier.
	GetByID(ctx context.Context, id string) (*domain.Coupon, error)

	// GetByCode retrieves a coupon by its code.
	GetByCode(ctx context.Context, code string) (*domain.Coupon, error)

	// List returns coupons matching the given filter along with the total count.
	List(ctx context.Context, filter CouponFilter) ([]domain.Coupon, int, error)

	// Update modifies an existing coupon in the store.
	Update(ctx context.Context, coupon *domain.Coupon) error

	// Delete removes a coupon by its ID.
	Delete(ctx context.Context, id string) error

	// IncrementUsage atomically increments the usage_count of a coupon.
	IncrementUsage(ctx context.Context, id string) error

	// RecordUsage appends a redemption to the usage ledger.
	RecordUsage(ctx context.Context, usage *domain.CouponUsage) error

	// CountUsagesByUser returns how many times the given user redeemed the coupon.
	CountUsagesByUser(ctx context.Context, couponID, userID string) (int, error)

	// Stats returns aggregate redemption statistics.
	Stats(ctx context.Context) (*CouponStats, error)
}

// ProductCount pairs a product with how often it shows up in abandoned carts.
type ProductCount struct {
	ProductID   string `json:"product_id"`
	ProductName string `json:"product_name"`
	Count       int    `json:"count"`
}

// CartStats aggregates abandonment and recovery numbers.
type CartStats struct {
	TotalCarts     int            `json:"total_carts"`
	ActiveCarts    int            `json:"active_carts"`
	RecoveredCarts int            `json:"recovered_carts"`
	ExpiredCarts   int            `json:"expired_carts"`
	ConvertedCarts int            `json:"converted_carts"`
	TotalValue     int64          `json:"total_value"`
	RecoveredValue int64          `json:"recovered_value"`
	EmailsSent     int            `json:"emails_sent"`
	EmailsOpened   int            `json:"emails_opened"`
	EmailsClicked  int            `json:"emails_clicked"`
	TopProducts    []ProductCount `json:"top_products"`
}

// AbandonedCartRepository defines the interface for abandoned cart persistence.
type AbandonedCartRepository interface {
	// Create inserts a new abandoned cart.
	Create(ctx context.Context, cart *domain.AbandonedCart) error

	// GetByID retrieves a cart by its unique identifier.
	GetByID(ctx context.Context, id string) (*domain.AbandonedCart, error)

	// GetByToken retrieves a cart by its recovery token.
	GetByToken(ctx context.Context, token string) (*domain.AbandonedCart, error)

	// GetActiveByEmail retrieves the active cart for an email, if any.
	GetActiveByEmail(ctx context.Context, email string) (*domain.AbandonedCart, error)

	// Update modifies an existing cart.
	Update(ctx context.Context, cart *domain.AbandonedCart) error

	// MarkRecovered transitions an active cart to recovered. Returns false
	// when the cart was not active, so redemption happens at most once.
	MarkRecovered(ctx context.Context, id string, at time.Time) (bool, error)

	// MarkConvertedByEmail transitions any active cart for the email to
	// converted. Returns the number of carts transitioned.
	MarkConvertedByEmail(ctx context.Context, email string, at time.Time) (int, error)

	// ExpireStale transitions active carts past their expiry to expired.
	// Returns the number of carts transitioned.
	ExpireStale(ctx context.Context, now time.Time) (int, error)

	// IncrementOpened atomically increments the cart's emails_opened counter.
	IncrementOpened(ctx context.Context, id string) error

	// IncrementClicked atomically increments the cart's emails_clicked counter.
	IncrementClicked(ctx context.Context, id string) error

	// Stats returns aggregate abandonment and recovery statistics.
	Stats(ctx context.Context) (*CartStats, error)
}

// RecoveryEmailRepository defines the interface for scheduled reminder persistence.
type RecoveryEmailRepository interface {
	// Create inserts a new scheduled reminder.
	Create(ctx context.Context, email *domain.RecoveryEmail) error

	// GetByID retrieves a reminder by its unique identifier.
	GetByID(ctx context.Context, id string) (*domain.RecoveryEmail, error)

	// ListDue returns pending reminders whose scheduled_for has passed and
	// whose cart is still active, oldest first.
	ListDue(ctx context.Context, now time.Time, limit int) ([]domain.RecoveryEmail, error)

	// ClaimSending transitions a reminder from pending to sending. Returns
	// false when the reminder was already claimed by another sweep.
	ClaimSending(ctx context.Context, id string) (bool, error)

	// MarkSent transitions a claimed reminder to sent.
	MarkSent(ctx context.Context, id string, at time.Time) error

	// MarkFailed transitions a claimed reminder to failed. Failed reminders
	// are terminal and never retried.
	MarkFailed(ctx context.Context, id string) error

	// MarkOpened advances the reminder to opened and stamps opened_at on the
	// first call. Safe to call repeatedly.
	MarkOpened(ctx context.Context, id string, at time.Time) error

	// MarkClicked advances the reminder to clicked and stamps clicked_at on
	// the first call. Safe to call repeatedly.
	MarkClicked(ctx context.Context, id string, at time.Time) error
}

// LiveCartStore defines the interface for the active cart cache that
// recovered carts are rehydrated into.
type LiveCartStore interface {
	// Save persists a live cart keyed by email.
	Save(ctx context.Context, cart *domain.LiveCart) error

	// Get retrieves a live cart by email.
	Get(ctx context.Context, email string) (*domain.LiveCart, error)

	// Delete removes a live cart by email.
	Delete(ctx context.Context, email string) error
}
