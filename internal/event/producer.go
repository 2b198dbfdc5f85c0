package event

import (
	"context"
	"fmt"
	"log/slog"
	"time"

	"github.com/codewithrichardb/ecommerce-backend/internal/domain"
	pkgkafka "github.com/codewithrichardb/ecommerce-backend/pkg/kafka"
)

// Kafka topic constants for domain events.
const (
	TopicCouponCreated = "ecommerce.coupon.created"
	TopicCouponApplied = "ecommerce.coupon.applied"
	TopicCartAbandoned = "ecommerce.cart.abandoned"
	TopicCartRecovered = "ecommerce.cart.recovered"
)

// Aggregate type constants.
const (
	AggregateTypeCoupon = "coupon"
	AggregateTypeCart   = "abandoned_cart"
)

// Source identifier for events originating from this service.
const SourceRecoveryService = "recovery-service"

// CouponCreatedData is the payload for a coupon.created event.
type CouponCreatedData struct {
	ID            string `json:"id"`
	Code          string `json:"code"`
	DiscountType  string `json:"discount_type"`
	DiscountValue int64  `json:"discount_value"`
	Status        string `json:"status"`
	Scope         string `json:"scope"`
}

// CouponAppliedData is the payload for a coupon.applied event.
type CouponAppliedData struct {
	CouponID       string `json:"coupon_id"`
	Code           string `json:"code"`
	UserID         string `json:"user_id"`
	OrderID        string `json:"order_id"`
	DiscountAmount int64  `json:"discount_amount"`
}

// CartAbandonedData is the payload for a cart.abandoned event.
type CartAbandonedData struct {
	CartID    string `json:"cart_id"`
	Email     string `json:"email"`
	UserID    string `json:"user_id,omitempty"`
	ItemCount int    `json:"item_count"`
	Total     int64  `json:"total"`
	ExpiresAt string `json:"expires_at"`
}

// CartRecoveredData is the payload for a cart.recovered event.
type CartRecoveredData struct {
	CartID     string `json:"cart_id"`
	Email      string `json:"email"`
	Total      int64  `json:"total"`
	CouponCode string `json:"coupon_code,omitempty"`
}

// Producer publishes coupon and cart domain events to Kafka.
type Producer struct {
	kafka  *pkgkafka.Producer
	logger *slog.Logger
}

// NewProducer creates a new event producer.
func NewProducer(kafka *pkgkafka.Producer, logger *slog.Logger) *Producer {
	return &Producer{
		kafka:  kafka,
		logger: logger,
	}
}

// PublishCouponCreated publishes a coupon.created event.
func (p *Producer) PublishCouponCreated(ctx context.Context, coupon *domain.Coupon) error {
	data := CouponCreatedData{
		ID:            coupon.ID,
		Code:          coupon.Code,
		DiscountType:  coupon.DiscountType,
		DiscountValue: coupon.DiscountValue,
		Status:        coupon.Status,
		Scope:         coupon.Scope,
	}

	event, err := pkgkafka.NewEvent(TopicCouponCreated, coupon.ID, AggregateTypeCoupon, SourceRecoveryService, data)
	if err != nil {
		return fmt.Errorf("create coupon.created event: %w", err)
	}

	if err := p.kafka.Publish(ctx, TopicCouponCreated, event); err != nil {
		return fmt.Errorf("publish coupon.created event: %w", err)
	}

	p.logger.DebugContext(ctx, "published coupon.created event",
		slog.String("coupon_id", coupon.ID),
		slog.String("code", coupon.Code),
	)

	return nil
}

// PublishCouponApplied publishes a coupon.applied event.
func (p *Producer) PublishCouponApplied(ctx context.Context, coupon *domain.Coupon, usage *domain.CouponUsage) error {
	data := CouponAppliedData{
		CouponID:       usage.CouponID,
		Code:           coupon.Code,
		UserID:         usage.UserID,
		OrderID:        usage.OrderID,
		DiscountAmount: usage.DiscountAmount,
	}

	event, err := pkgkafka.NewEvent(TopicCouponApplied, coupon.ID, AggregateTypeCoupon, SourceRecoveryService, data)
	if err != nil {
		return fmt.Errorf("create coupon.applied event: %w", err)
	}

	if err := p.kafka.Publish(ctx, TopicCouponApplied, event); err != nil {
		return fmt.Errorf("publish coupon.applied event: %w", err)
	}

	p.logger.DebugContext(ctx, "published coupon.applied event",
		slog.String("coupon_id", coupon.ID),
		slog.String("user_id", usage.UserID),
		slog.String("order_id", usage.OrderID),
	)

	return nil
}

// PublishCartAbandoned publishes a cart.abandoned event.
func (p *Producer) PublishCartAbandoned(ctx context.Context, cart *domain.AbandonedCart) error {
	data := CartAbandonedData{
		CartID:    cart.ID,
		Email:     cart.Email,
		UserID:    cart.UserID,
		ItemCount: len(cart.Items),
		Total:     cart.Total,
		ExpiresAt: cart.ExpiresAt.Format(time.RFC3339),
	}

	event, err := pkgkafka.NewEvent(TopicCartAbandoned, cart.ID, AggregateTypeCart, SourceRecoveryService, data)
	if err != nil {
		return fmt.Errorf("create cart.abandoned event: %w", err)
	}

	if err := p.kafka.Publish(ctx, TopicCartAbandoned, event); err != nil {
		return fmt.Errorf("publish cart.abandoned event: %w", err)
	}

	p.logger.DebugContext(ctx, "published cart.abandoned event",
		slog.String("cart_id", cart.ID),
		slog.String("email", cart.Email),
	)

	return nil
}

// PublishCartRecovered publishes a cart.recovered event.
func (p *Producer) PublishCartRecovered(ctx context.Context, cart *domain.AbandonedCart) error {
	data := CartRecoveredData{
		CartID:     cart.ID,
		Email:      cart.Email,
		Total:      cart.Total,
		CouponCode: cart.CouponCode,
	}

	event, err := pkgkafka.NewEvent(TopicCartRecovered, cart.ID, AggregateTypeCart, SourceRecoveryService, data)
	if err != nil {
		return fmt.Errorf("create cart.recovered event: %w", err)
	}

	if err := p.kafka.Publish(ctx, TopicCartRecovered, event); err != nil {
		return fmt.Errorf("publish cart.recovered event: %w", err)
	}

	p.logger.DebugContext(ctx, "published cart.recovered event",
		slog.String("cart_id", cart.ID),
		slog.String("email", cart.Email),
	)

	return nil
}
