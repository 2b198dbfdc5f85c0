package event

import (
	"context"
	"fmt"
	"log/slog"
	"time"

	pkgkafka "github.com/codewithrichardb/ecommerce-backend/pkg/kafka"
)

// Topics consumed from other services.
const (
	TopicOrderCompleted = "ecommerce.order.completed"
)

// Consumer group ID for the recovery service.
const ConsumerGroupID = "recovery-service"

// idempotencyTTL is how long processed event IDs are remembered.
const idempotencyTTL = 24 * time.Hour

// OrderCompletedData is the payload of an order.completed event.
type OrderCompletedData struct {
	OrderID        string `json:"order_id"`
	UserID         string `json:"user_id"`
	Email          string `json:"email"`
	CouponCode     string `json:"coupon_code,omitempty"`
	DiscountAmount int64  `json:"discount_amount,omitempty"`
}

// CouponRedeemer records coupon redemptions from completed orders.
type CouponRedeemer interface {
	RecordRedemption(ctx context.Context, code, userID, orderID string, discountAmount int64) error
}

// CartConverter settles abandoned carts when the shopper checks out.
type CartConverter interface {
	MarkConverted(ctx context.Context, email string) (int, error)
}

// ConsumerHandler routes incoming Kafka events to the appropriate handler.
type ConsumerHandler struct {
	coupons CouponRedeemer
	carts   CartConverter
	logger  *slog.Logger
}

// NewConsumerHandler creates a new event consumer handler.
func NewConsumerHandler(coupons CouponRedeemer, carts CartConverter, logger *slog.Logger) *ConsumerHandler {
	return &ConsumerHandler{
		coupons: coupons,
		carts:   carts,
		logger:  logger,
	}
}

// Handle processes an incoming Kafka event based on its event type.
func (h *ConsumerHandler) Handle(ctx context.Context, event *pkgkafka.Event) error {
	switch event.EventType {
	case TopicOrderCompleted:
		return h.handleOrderCompleted(ctx, event)
	default:
		h.logger.WarnContext(ctx, "unknown event type received",
			slog.String("event_type", event.EventType),
			slog.String("event_id", event.EventID),
		)
		return nil
	}
}

// handleOrderCompleted settles the shopper's abandoned cart and, when the
// order carried a coupon, writes the redemption to the usage ledger.
func (h *ConsumerHandler) handleOrderCompleted(ctx context.Context, event *pkgkafka.Event) error {
	var data OrderCompletedData
	if err := event.UnmarshalData(&data); err != nil {
		return fmt.Errorf("unmarshal order.completed data: %w", err)
	}

	h.logger.InfoContext(ctx, "received order.completed event",
		slog.String("event_id", event.EventID),
		slog.String("order_id", data.OrderID),
		slog.String("email", data.Email),
	)

	if data.CouponCode != "" {
		if err := h.coupons.RecordRedemption(ctx, data.CouponCode, data.UserID, data.OrderID, data.DiscountAmount); err != nil {
			return fmt.Errorf("record redemption for order %s: %w", data.OrderID, err)
		}
	}

	if data.Email != "" {
		if _, err := h.carts.MarkConverted(ctx, data.Email); err != nil {
			return fmt.Errorf("mark carts converted for order %s: %w", data.OrderID, err)
		}
	}

	return nil
}

// NewConsumers creates Kafka consumers for all topics the recovery service
// subscribes to. Handlers are wrapped with an idempotency guard so redelivered
// events do not double-count redemptions.
func NewConsumers(brokers []string, handler *ConsumerHandler, logger *slog.Logger) []*pkgkafka.Consumer {
	topics := []string{
		TopicOrderCompleted,
	}

	idempotent := pkgkafka.IdempotentHandler(
		pkgkafka.NewMemoryIdempotencyStore(idempotencyTTL),
		handler.Handle,
		logger,
	)

	consumers := make([]*pkgkafka.Consumer, 0, len(topics))

	for _, topic := range topics {
		cfg := pkgkafka.ConsumerConfig{
			Brokers:  brokers,
			GroupID:  ConsumerGroupID,
			Topic:    topic,
			MinBytes: 1,
			MaxBytes: 10e6,
		}

		consumer := pkgkafka.NewConsumer(cfg, idempotent, logger)
		consumers = append(consumers, consumer)
	}

	return consumers
}
