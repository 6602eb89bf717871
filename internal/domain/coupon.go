package domain

import "time"

type DiscountType string

const (
	DiscountPercentage   DiscountType = "PERCENTAGE"
	DiscountFixed        DiscountType = "FIXED"
	DiscountFreeShipping DiscountType = "FREE_SHIPPING"
)

// Coupon is a catalog entry as returned by the coupon backend.
type Coupon struct {
	Code          string       `json:"code"`
	Type          DiscountType `json:"discountType"`
	Value         int64        `json:"discountAmount"` // percent for PERCENTAGE, cents for FIXED
	MinCartAmount int64        `json:"minCartAmount"`  // cents
	Description   string       `json:"description,omitempty"`
	ExpiresAt     time.Time    `json:"expiresAt,omitempty"`
}

// AppliedCoupon is the at-most-one coupon attached to a session.
// Invariant: the discount it produces never drives the total below zero
// (enforced by the pricing functions, not here).
type AppliedCoupon struct {
	Code   string       `json:"code"`
	Type   DiscountType `json:"discountType"`
	Value  int64        `json:"discountAmount"`
	Source *Coupon      `json:"sourceCouponData,omitempty"`
}
