package domain

import (
	"time"
)

// LiveCart is the active shopping cart rebuilt in the cache when a shopper
// follows a recovery link. RecoveredFrom references the abandoned cart it
// was rehydrated from.
type LiveCart struct {
	Email         string     `json:"email"`
	Items         []CartItem `json:"items"`
	CouponCode    string     `json:"coupon_code,omitempty"`
	RecoveredFrom string     `json:"recovered_from"`
	RehydratedAt  time.Time  `json:"rehydrated_at"`
}
