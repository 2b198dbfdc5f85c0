package domain

import (
	"time"
)

// Coupon discount type constants.
const (
	DiscountTypePercentage   = "percentage"
	DiscountTypeFixed        = "fixed"
	DiscountTypeFreeShipping = "free_shipping"
	DiscountTypeBuyXGetY     = "buy_x_get_y"
)

// Coupon status constants.
const (
	CouponStatusActive    = "active"
	CouponStatusExpired   = "expired"
	CouponStatusScheduled = "scheduled"
	CouponStatusUsed      = "used"
	CouponStatusDisabled  = "disabled"
)

// Coupon scope constants.
const (
	CouponScopeCart     = "cart"
	CouponScopeProduct  = "product"
	CouponScopeCategory = "category"
	CouponScopeCustomer = "customer"
)

// BuyXGetY holds the configuration for buy-X-get-Y coupons. The target is
// either a product or a category; when neither is set the discount falls
// back to a flat percentage of the subtotal.
type BuyXGetY struct {
	BuyQuantity int    `json:"buy_quantity"`
	GetQuantity int    `json:"get_quantity"`
	ProductID   string `json:"product_id,omitempty"`
	CategoryID  string `json:"category_id,omitempty"`
}

// Coupon represents a discount coupon. Monetary fields are in cents;
// DiscountValue is a whole percentage for percentage-type coupons and
// cents for fixed-type coupons.
type Coupon struct {
	ID                string     `json:"id"`
	Code              string     `json:"code"`
	Description       string     `json:"description"`
	DiscountType      string     `json:"discount_type"`
	DiscountValue     int64      `json:"discount_value"`
	MinOrderValue     int64      `json:"min_order_value"`
	MaxDiscountAmount int64      `json:"max_discount_amount"`
	StartDate         time.Time  `json:"start_date"`
	EndDate           *time.Time `json:"end_date,omitempty"`
	Status            string     `json:"status"`
	UsageLimit        int        `json:"usage_limit"`
	UsageCount        int        `json:"usage_count"`
	IndividualUseOnly bool       `json:"individual_use_only"`
	ExcludeSaleItems  bool       `json:"exclude_sale_items"`
	Scope             string     `json:"scope"`
	ProductIDs        []string   `json:"product_ids,omitempty"`
	CategoryIDs       []string   `json:"category_ids,omitempty"`
	CustomerIDs       []string   `json:"customer_ids,omitempty"`
	BuyXGetY          *BuyXGetY  `json:"buy_x_get_y,omitempty"`
	CreatedAt         time.Time  `json:"created_at"`
	UpdatedAt         time.Time  `json:"updated_at"`
}

// CouponUsage is an append-only ledger entry recording a single redemption.
// CouponCode is snapshotted so the ledger stays meaningful if the coupon
// is later deleted.
type CouponUsage struct {
	ID             string    `json:"id"`
	CouponID       string    `json:"coupon_id"`
	CouponCode     string    `json:"coupon_code"`
	UserID         string    `json:"user_id"`
	OrderID        string    `json:"order_id"`
	DiscountAmount int64     `json:"discount_amount"`
	UsedAt         time.Time `json:"used_at"`
}

// ValidDiscountTypes returns the set of valid coupon discount types.
func ValidDiscountTypes() []string {
	return []string{
		DiscountTypePercentage,
		DiscountTypeFixed,
		DiscountTypeFreeShipping,
		DiscountTypeBuyXGetY,
	}
}

// IsValidDiscountType checks whether the given string is a valid discount type.
func IsValidDiscountType(t string) bool {
	for _, v := range ValidDiscountTypes() {
		if v == t {
			return true
		}
	}
	return false
}

// ValidCouponStatuses returns the set of valid coupon statuses.
func ValidCouponStatuses() []string {
	return []string{
		CouponStatusActive,
		CouponStatusExpired,
		CouponStatusScheduled,
		CouponStatusUsed,
		CouponStatusDisabled,
	}
}

// IsValidCouponStatus checks whether the given string is a valid coupon status.
func IsValidCouponStatus(status string) bool {
	for _, s := range ValidCouponStatuses() {
		if s == status {
			return true
		}
	}
	return false
}

// IsUsable reports whether the coupon can be redeemed at the given time.
// A coupon is usable when it is active, its validity window contains now
// (the end date is inclusive), and its usage limit is not exhausted.
// A zero UsageLimit means unlimited.
func (c *Coupon) IsUsable(now time.Time) bool {
	if c.Status != CouponStatusActive {
		return false
	}
	if c.StartDate.After(now) {
		return false
	}
	if c.EndDate != nil && c.EndDate.Before(now) {
		return false
	}
	if c.UsageLimit > 0 && c.UsageCount >= c.UsageLimit {
		return false
	}
	return true
}

// CalculateDiscount computes the discount in cents for the given cart.
// Returns 0 when the coupon is not usable or the subtotal is below the
// coupon minimum. The result is clamped to MaxDiscountAmount when set and
// never exceeds the subtotal.
func (c *Coupon) CalculateDiscount(subtotal int64, items []CartItem, now time.Time) int64 {
	if !c.IsUsable(now) {
		return 0
	}
	if c.MinOrderValue > 0 && subtotal < c.MinOrderValue {
		return 0
	}

	var discount int64
	switch c.DiscountType {
	case DiscountTypePercentage:
		discount = subtotal * c.DiscountValue / 100
	case DiscountTypeFixed:
		discount = c.DiscountValue
		if discount > subtotal {
			discount = subtotal
		}
	case DiscountTypeFreeShipping:
		// Shipping is priced outside the cart subtotal.
		return 0
	case DiscountTypeBuyXGetY:
		discount = c.buyXGetYDiscount(subtotal, items)
	default:
		return 0
	}

	if c.MaxDiscountAmount > 0 && discount > c.MaxDiscountAmount {
		discount = c.MaxDiscountAmount
	}
	if discount < 0 {
		return 0
	}
	if discount > subtotal {
		discount = subtotal
	}
	return discount
}

// buyXGetYDiscount gives away GetQuantity units of the target product for
// every BuyQuantity+GetQuantity units in the cart. When the coupon has no
// resolvable target the legacy flat 10% of subtotal applies.
func (c *Coupon) buyXGetYDiscount(subtotal int64, items []CartItem) int64 {
	cfg := c.BuyXGetY
	if cfg == nil || cfg.BuyQuantity <= 0 || cfg.GetQuantity <= 0 || cfg.ProductID == "" {
		return subtotal * 10 / 100
	}

	var eligibleQty int
	var unitPrice int64
	for _, item := range items {
		if item.ProductID == cfg.ProductID {
			eligibleQty += item.Quantity
			unitPrice = item.Price
		}
	}

	groupSize := cfg.BuyQuantity + cfg.GetQuantity
	freeUnits := eligibleQty / groupSize * cfg.GetQuantity
	return int64(freeUnits) * unitPrice
}
