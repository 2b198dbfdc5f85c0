package service

import (
	"context"
	"crypto/rand"
	"errors"
	"fmt"
	"log/slog"
	"math/big"
	"strings"
	"time"

	"github.com/google/uuid"

	"github.com/codewithrichardb/ecommerce-backend/internal/domain"
	"github.com/codewithrichardb/ecommerce-backend/internal/event"
	"github.com/codewithrichardb/ecommerce-backend/internal/repository"
	"github.com/codewithrichardb/ecommerce-backend/pkg/clock"
	apperrors "github.com/codewithrichardb/ecommerce-backend/pkg/errors"
)

// Recovery coupon minting constants. Minted coupons give a percentage off
// the whole cart, can be redeemed once, and stay valid for seven days.
const (
	recoveryCouponPrefix   = "RECOVER"
	recoveryCouponDiscount = 10
	recoveryCouponValidity = 7 * 24 * time.Hour
	recoveryCouponAttempts = 5
)

// CouponService implements the business logic for coupon operations.
type CouponService struct {
	repo     repository.CouponRepository
	producer *event.Producer
	clock    clock.Clock
	logger   *slog.Logger
}

// NewCouponService creates a new coupon service.
func NewCouponService(repo repository.CouponRepository, producer *event.Producer, clk clock.Clock, logger *slog.Logger) *CouponService {
	return &CouponService{
		repo:     repo,
		producer: producer,
		clock:    clk,
		logger:   logger,
	}
}

// CreateCouponInput holds the parameters for creating a coupon.
type CreateCouponInput struct {
	Code              string
	Description       string
	DiscountType      string
	DiscountValue     int64
	MinOrderValue     int64
	MaxDiscountAmount int64
	StartDate         time.Time
	EndDate           *time.Time
	Status            string
	UsageLimit        int
	IndividualUseOnly bool
	ExcludeSaleItems  bool
	Scope             string
	ProductIDs        []string
	CategoryIDs       []string
	CustomerIDs       []string
	BuyXGetY          *domain.BuyXGetY
}

// UpdateCouponInput holds the parameters for partially updating a coupon.
type UpdateCouponInput struct {
	Description       *string
	DiscountValue     *int64
	MinOrderValue     *int64
	MaxDiscountAmount *int64
	StartDate         *time.Time
	EndDate           *time.Time
	Status            *string
	UsageLimit        *int
	IndividualUseOnly *bool
	ExcludeSaleItems  *bool
	ProductIDs        []string
	CategoryIDs       []string
	CustomerIDs       []string
	BuyXGetY          *domain.BuyXGetY
}

// ValidateCouponInput holds the cart context for validating a coupon.
type ValidateCouponInput struct {
	Subtotal int64
	Items    []domain.CartItem
	UserID   string
}

// CouponValidation holds the result of a coupon validation. When the coupon
// is not redeemable Valid is false and Message carries the reason.
type CouponValidation struct {
	Valid          bool   `json:"valid"`
	CouponID       string `json:"coupon_id,omitempty"`
	Code           string `json:"code,omitempty"`
	DiscountAmount int64  `json:"discount_amount"`
	Message        string `json:"message"`
}

// ApplyCouponInput holds the cart context for applying a coupon.
type ApplyCouponInput struct {
	Subtotal int64
	Items    []domain.CartItem
	UserID   string
	OrderID  string
}

// CouponApplication is the outcome of applying a coupon to a cart.
type CouponApplication struct {
	CouponID       string `json:"coupon_id"`
	Code           string `json:"code"`
	DiscountAmount int64  `json:"discount_amount"`
	Total          int64  `json:"total"`
}

// CreateCoupon creates a new coupon with the given input.
func (s *CouponService) CreateCoupon(ctx context.Context, input *CreateCouponInput) (*domain.Coupon, error) {
	code := strings.ToUpper(strings.TrimSpace(input.Code))
	if code == "" {
		return nil, apperrors.InvalidInput("coupon code is required")
	}
	if !domain.IsValidDiscountType(input.DiscountType) {
		return nil, apperrors.InvalidInput(fmt.Sprintf("invalid discount type %q, must be one of: %s", input.DiscountType, strings.Join(domain.ValidDiscountTypes(), ", ")))
	}
	if input.DiscountType != domain.DiscountTypeFreeShipping && input.DiscountValue <= 0 {
		return nil, apperrors.InvalidInput("discount value must be positive")
	}
	if input.DiscountType == domain.DiscountTypePercentage && input.DiscountValue > 100 {
		return nil, apperrors.InvalidInput("percentage discount must not exceed 100")
	}
	if input.MinOrderValue < 0 {
		return nil, apperrors.InvalidInput("min order value must not be negative")
	}
	if input.MaxDiscountAmount < 0 {
		return nil, apperrors.InvalidInput("max discount amount must not be negative")
	}
	if input.EndDate != nil && !input.EndDate.After(input.StartDate) {
		return nil, apperrors.InvalidInput("end date must be after start date")
	}

	status := input.Status
	if status == "" {
		status = domain.CouponStatusActive
	}
	if !domain.IsValidCouponStatus(status) {
		return nil, apperrors.InvalidInput(fmt.Sprintf("invalid status %q, must be one of: %s", status, strings.Join(domain.ValidCouponStatuses(), ", ")))
	}

	scope := input.Scope
	if scope == "" {
		scope = domain.CouponScopeCart
	}

	now := s.clock.Now().UTC()
	coupon := &domain.Coupon{
		ID:                uuid.New().String(),
		Code:              code,
		Description:       input.Description,
		DiscountType:      input.DiscountType,
		DiscountValue:     input.DiscountValue,
		MinOrderValue:     input.MinOrderValue,
		MaxDiscountAmount: input.MaxDiscountAmount,
		StartDate:         input.StartDate,
		EndDate:           input.EndDate,
		Status:            status,
		UsageLimit:        input.UsageLimit,
		UsageCount:        0,
		IndividualUseOnly: input.IndividualUseOnly,
		ExcludeSaleItems:  input.ExcludeSaleItems,
		Scope:             scope,
		ProductIDs:        input.ProductIDs,
		CategoryIDs:       input.CategoryIDs,
		CustomerIDs:       input.CustomerIDs,
		BuyXGetY:          input.BuyXGetY,
		CreatedAt:         now,
		UpdatedAt:         now,
	}

	if coupon.ProductIDs == nil {
		coupon.ProductIDs = []string{}
	}
	if coupon.CategoryIDs == nil {
		coupon.CategoryIDs = []string{}
	}
	if coupon.CustomerIDs == nil {
		coupon.CustomerIDs = []string{}
	}

	if err := s.repo.Create(ctx, coupon); err != nil {
		return nil, fmt.Errorf("create coupon: %w", err)
	}

	if err := s.producer.PublishCouponCreated(ctx, coupon); err != nil {
		s.logger.ErrorContext(ctx, "failed to publish coupon.created event",
			slog.String("coupon_id", coupon.ID),
			slog.String("error", err.Error()),
		)
		// Do not fail the operation if event publishing fails.
	}

	s.logger.InfoContext(ctx, "coupon created",
		slog.String("coupon_id", coupon.ID),
		slog.String("code", coupon.Code),
	)

	return coupon, nil
}

// GetCoupon retrieves a coupon by its ID.
func (s *CouponService) GetCoupon(ctx context.Context, id string) (*domain.Coupon, error) {
	coupon, err := s.repo.GetByID(ctx, id)
	if err != nil {
		return nil, fmt.Errorf("get coupon by id: %w", err)
	}
	return coupon, nil
}

// GetCouponByCode retrieves a coupon by its code.
func (s *CouponService) GetCouponByCode(ctx context.Context, code string) (*domain.Coupon, error) {
	coupon, err := s.repo.GetByCode(ctx, strings.ToUpper(strings.TrimSpace(code)))
	if err != nil {
		return nil, fmt.Errorf("get coupon by code: %w", err)
	}
	return coupon, nil
}

// ListCoupons returns a filtered, paginated list of coupons.
func (s *CouponService) ListCoupons(ctx context.Context, filter repository.CouponFilter) ([]domain.Coupon, int, error) {
	if filter.Page <= 0 {
		filter.Page = 1
	}
	if filter.PerPage <= 0 {
		filter.PerPage = 20
	}
	if filter.PerPage > 100 {
		filter.PerPage = 100
	}

	coupons, total, err := s.repo.List(ctx, filter)
	if err != nil {
		return nil, 0, fmt.Errorf("list coupons: %w", err)
	}

	return coupons, total, nil
}

// AvailableCoupons returns active coupons that are currently redeemable.
// This is the public storefront listing, so exhausted and out-of-window
// coupons are filtered out.
func (s *CouponService) AvailableCoupons(ctx context.Context) ([]domain.Coupon, error) {
	status := domain.CouponStatusActive
	coupons, _, err := s.repo.List(ctx, repository.CouponFilter{
		Status:  &status,
		Page:    1,
		PerPage: 100,
	})
	if err != nil {
		return nil, fmt.Errorf("list available coupons: %w", err)
	}

	now := s.clock.Now().UTC()
	available := make([]domain.Coupon, 0, len(coupons))
	for _, c := range coupons {
		if c.IsUsable(now) {
			available = append(available, c)
		}
	}

	return available, nil
}

// UpdateCoupon applies partial updates to an existing coupon.
func (s *CouponService) UpdateCoupon(ctx context.Context, id string, input *UpdateCouponInput) (*domain.Coupon, error) {
	coupon, err := s.repo.GetByID(ctx, id)
	if err != nil {
		return nil, fmt.Errorf("get coupon for update: %w", err)
	}

	if input.Description != nil {
		coupon.Description = *input.Description
	}

	if input.DiscountValue != nil {
		if *input.DiscountValue <= 0 {
			return nil, apperrors.InvalidInput("discount value must be positive")
		}
		coupon.DiscountValue = *input.DiscountValue
	}

	if input.MinOrderValue != nil {
		if *input.MinOrderValue < 0 {
			return nil, apperrors.InvalidInput("min order value must not be negative")
		}
		coupon.MinOrderValue = *input.MinOrderValue
	}

	if input.MaxDiscountAmount != nil {
		if *input.MaxDiscountAmount < 0 {
			return nil, apperrors.InvalidInput("max discount amount must not be negative")
		}
		coupon.MaxDiscountAmount = *input.MaxDiscountAmount
	}

	if input.StartDate != nil {
		coupon.StartDate = *input.StartDate
	}

	if input.EndDate != nil {
		coupon.EndDate = input.EndDate
	}

	if input.Status != nil {
		if !domain.IsValidCouponStatus(*input.Status) {
			return nil, apperrors.InvalidInput(fmt.Sprintf("invalid status %q, must be one of: %s", *input.Status, strings.Join(domain.ValidCouponStatuses(), ", ")))
		}
		coupon.Status = *input.Status
	}

	if input.UsageLimit != nil {
		coupon.UsageLimit = *input.UsageLimit
	}

	if input.IndividualUseOnly != nil {
		coupon.IndividualUseOnly = *input.IndividualUseOnly
	}

	if input.ExcludeSaleItems != nil {
		coupon.ExcludeSaleItems = *input.ExcludeSaleItems
	}

	if input.ProductIDs != nil {
		coupon.ProductIDs = input.ProductIDs
	}

	if input.CategoryIDs != nil {
		coupon.CategoryIDs = input.CategoryIDs
	}

	if input.CustomerIDs != nil {
		coupon.CustomerIDs = input.CustomerIDs
	}

	if input.BuyXGetY != nil {
		coupon.BuyXGetY = input.BuyXGetY
	}

	if err := s.repo.Update(ctx, coupon); err != nil {
		return nil, fmt.Errorf("update coupon: %w", err)
	}

	s.logger.InfoContext(ctx, "coupon updated",
		slog.String("coupon_id", coupon.ID),
		slog.String("code", coupon.Code),
	)

	return coupon, nil
}

// DeleteCoupon removes a coupon by its ID.
func (s *CouponService) DeleteCoupon(ctx context.Context, id string) error {
	if err := s.repo.Delete(ctx, id); err != nil {
		return fmt.Errorf("delete coupon: %w", err)
	}

	s.logger.InfoContext(ctx, "coupon deleted", slog.String("coupon_id", id))

	return nil
}

// ValidateCoupon checks whether a coupon code is redeemable for the given
// cart. An unredeemable coupon is not an error; the reason is returned in
// the validation result so the storefront can show it to the shopper.
func (s *CouponService) ValidateCoupon(ctx context.Context, code string, input *ValidateCouponInput) (*CouponValidation, error) {
	coupon, err := s.repo.GetByCode(ctx, strings.ToUpper(strings.TrimSpace(code)))
	if err != nil {
		if errors.Is(err, apperrors.ErrNotFound) {
			return &CouponValidation{Valid: false, Message: "coupon not found"}, nil
		}
		return nil, fmt.Errorf("get coupon for validation: %w", err)
	}

	now := s.clock.Now().UTC()

	if coupon.Status != domain.CouponStatusActive {
		return s.invalid(coupon, "coupon is not active"), nil
	}
	if coupon.StartDate.After(now) {
		return s.invalid(coupon, "coupon is not active yet"), nil
	}
	if coupon.EndDate != nil && coupon.EndDate.Before(now) {
		return s.invalid(coupon, "coupon has expired"), nil
	}
	if coupon.UsageLimit > 0 && coupon.UsageCount >= coupon.UsageLimit {
		return s.invalid(coupon, "coupon usage limit reached"), nil
	}

	if coupon.IndividualUseOnly && input.UserID != "" {
		used, err := s.repo.CountUsagesByUser(ctx, coupon.ID, input.UserID)
		if err != nil {
			return nil, fmt.Errorf("count coupon usages: %w", err)
		}
		if used > 0 {
			return s.invalid(coupon, "coupon has already been used"), nil
		}
	}

	if coupon.MinOrderValue > 0 && input.Subtotal < coupon.MinOrderValue {
		return s.invalid(coupon, fmt.Sprintf("order must be at least %d to use this coupon", coupon.MinOrderValue)), nil
	}

	discount := coupon.CalculateDiscount(input.Subtotal, input.Items, now)

	return &CouponValidation{
		Valid:          true,
		CouponID:       coupon.ID,
		Code:           coupon.Code,
		DiscountAmount: discount,
		Message:        "coupon is valid",
	}, nil
}

// ApplyCoupon validates a coupon against a cart and returns the discounted
// totals. The usage ledger is written later, when the order completes.
func (s *CouponService) ApplyCoupon(ctx context.Context, code string, input *ApplyCouponInput) (*CouponApplication, error) {
	validation, err := s.ValidateCoupon(ctx, code, &ValidateCouponInput{
		Subtotal: input.Subtotal,
		Items:    input.Items,
		UserID:   input.UserID,
	})
	if err != nil {
		return nil, fmt.Errorf("validate coupon for apply: %w", err)
	}
	if !validation.Valid {
		return nil, apperrors.BusinessRule(validation.Message)
	}

	coupon, err := s.repo.GetByCode(ctx, strings.ToUpper(strings.TrimSpace(code)))
	if err != nil {
		return nil, fmt.Errorf("get coupon for apply: %w", err)
	}

	usage := &domain.CouponUsage{
		CouponID:       coupon.ID,
		CouponCode:     coupon.Code,
		UserID:         input.UserID,
		OrderID:        input.OrderID,
		DiscountAmount: validation.DiscountAmount,
	}

	if err := s.producer.PublishCouponApplied(ctx, coupon, usage); err != nil {
		s.logger.ErrorContext(ctx, "failed to publish coupon.applied event",
			slog.String("coupon_id", coupon.ID),
			slog.String("error", err.Error()),
		)
	}

	s.logger.InfoContext(ctx, "coupon applied",
		slog.String("coupon_id", coupon.ID),
		slog.String("user_id", input.UserID),
		slog.Int64("discount_amount", validation.DiscountAmount),
	)

	return &CouponApplication{
		CouponID:       coupon.ID,
		Code:           coupon.Code,
		DiscountAmount: validation.DiscountAmount,
		Total:          input.Subtotal - validation.DiscountAmount,
	}, nil
}

// RecordRedemption writes a redemption to the usage ledger and increments
// the coupon's usage counter. Called when an order that carried a coupon
// completes.
func (s *CouponService) RecordRedemption(ctx context.Context, code, userID, orderID string, discountAmount int64) error {
	coupon, err := s.repo.GetByCode(ctx, strings.ToUpper(strings.TrimSpace(code)))
	if err != nil {
		return fmt.Errorf("get coupon for redemption: %w", err)
	}

	usage := &domain.CouponUsage{
		ID:             uuid.New().String(),
		CouponID:       coupon.ID,
		CouponCode:     coupon.Code,
		UserID:         userID,
		OrderID:        orderID,
		DiscountAmount: discountAmount,
		UsedAt:         s.clock.Now().UTC(),
	}

	if err := s.repo.RecordUsage(ctx, usage); err != nil {
		return fmt.Errorf("record coupon usage: %w", err)
	}

	if err := s.repo.IncrementUsage(ctx, coupon.ID); err != nil {
		return fmt.Errorf("increment coupon usage: %w", err)
	}

	couponsRedeemed.Inc()

	s.logger.InfoContext(ctx, "coupon redemption recorded",
		slog.String("coupon_id", coupon.ID),
		slog.String("order_id", orderID),
		slog.Int64("discount_amount", discountAmount),
	)

	return nil
}

// CouponStats returns aggregate redemption statistics.
func (s *CouponService) CouponStats(ctx context.Context) (*repository.CouponStats, error) {
	stats, err := s.repo.Stats(ctx)
	if err != nil {
		return nil, fmt.Errorf("coupon stats: %w", err)
	}
	return stats, nil
}

// MintRecoveryCoupon creates a single-use percentage coupon for a final
// cart reminder. Codes look like RECOVER483920; collisions are retried
// with a fresh suffix.
func (s *CouponService) MintRecoveryCoupon(ctx context.Context) (*domain.Coupon, error) {
	now := s.clock.Now().UTC()
	end := now.Add(recoveryCouponValidity)

	var lastErr error
	for attempt := 0; attempt < recoveryCouponAttempts; attempt++ {
		code, err := generateRecoveryCode()
		if err != nil {
			return nil, fmt.Errorf("generate recovery code: %w", err)
		}

		coupon := &domain.Coupon{
			ID:            uuid.New().String(),
			Code:          code,
			Description:   "Come back and finish your order",
			DiscountType:  domain.DiscountTypePercentage,
			DiscountValue: recoveryCouponDiscount,
			StartDate:     now,
			EndDate:       &end,
			Status:        domain.CouponStatusActive,
			UsageLimit:    1,
			Scope:         domain.CouponScopeCart,
			ProductIDs:    []string{},
			CategoryIDs:   []string{},
			CustomerIDs:   []string{},
			CreatedAt:     now,
			UpdatedAt:     now,
		}

		if err := s.repo.Create(ctx, coupon); err != nil {
			if errors.Is(err, apperrors.ErrAlreadyExists) {
				lastErr = err
				continue
			}
			return nil, fmt.Errorf("create recovery coupon: %w", err)
		}

		if err := s.producer.PublishCouponCreated(ctx, coupon); err != nil {
			s.logger.ErrorContext(ctx, "failed to publish coupon.created event",
				slog.String("coupon_id", coupon.ID),
				slog.String("error", err.Error()),
			)
		}

		s.logger.InfoContext(ctx, "recovery coupon minted",
			slog.String("coupon_id", coupon.ID),
			slog.String("code", coupon.Code),
		)

		return coupon, nil
	}

	return nil, fmt.Errorf("mint recovery coupon after %d attempts: %w", recoveryCouponAttempts, lastErr)
}

// invalid builds a failed validation result for a known coupon.
func (s *CouponService) invalid(coupon *domain.Coupon, message string) *CouponValidation {
	return &CouponValidation{
		Valid:    false,
		CouponID: coupon.ID,
		Code:     coupon.Code,
		Message:  message,
	}
}

// generateRecoveryCode produces RECOVER followed by six random digits.
func generateRecoveryCode() (string, error) {
	n, err := rand.Int(rand.Reader, big.NewInt(1000000))
	if err != nil {
		return "", err
	}
	return fmt.Sprintf("%s%06d", recoveryCouponPrefix, n.Int64()), nil
}
