package remote

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"net/url"
	"strconv"

	"github.com/fjod/go_storefront/internal/domain"
)

type validateCouponRequest struct {
	Code       string  `json:"code"`
	CartAmount int64   `json:"cartAmount"`
	Products   []int64 `json:"products"`
}

// CouponValidation is the backend's verdict on a coupon code against the
// current cart contents.
type CouponValidation struct {
	Coupon         domain.Coupon `json:"coupon"`
	DiscountAmount int64         `json:"discountAmount"`
	FinalAmount    int64         `json:"finalAmount"`
}

// ValidateCoupon checks a code against the current cart amount and products.
// A rejected code comes back as a *ValidationError carrying the backend's
// user-facing message.
func (c *Client) ValidateCoupon(ctx context.Context, code string, cartAmount int64, products []int64) (*CouponValidation, error) {
	req := validateCouponRequest{Code: code, CartAmount: cartAmount, Products: products}
	data, err := c.do(ctx, http.MethodPost, "/coupons/validate", nil, req)
	if err != nil {
		return nil, fmt.Errorf("validate coupon failed: %w", err)
	}

	var resp CouponValidation
	if err := json.Unmarshal(data, &resp); err != nil {
		return nil, fmt.Errorf("unmarshal coupon validation failed: %w", err)
	}
	return &resp, nil
}

// AvailableCoupons lists coupons applicable to a cart of the given amount.
func (c *Client) AvailableCoupons(ctx context.Context, cartAmount int64, hasItems bool) ([]domain.Coupon, error) {
	query := url.Values{
		"cartAmount": {strconv.FormatInt(cartAmount, 10)},
		"hasItems":   {strconv.FormatBool(hasItems)},
	}

	data, err := c.do(ctx, http.MethodGet, "/coupons/available", query, nil)
	if err != nil {
		return nil, fmt.Errorf("fetch available coupons failed: %w", err)
	}

	var coupons []domain.Coupon
	if err := json.Unmarshal(data, &coupons); err != nil {
		return nil, fmt.Errorf("unmarshal coupons failed: %w", err)
	}
	return coupons, nil
}
