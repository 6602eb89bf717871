package reconcile

import (
	"context"
	"strings"

	"github.com/fjod/go_storefront/internal/pricing"
)

// ApplyCoupon validates a code against the current cart and attaches it to
// the session. At most one coupon is applied at a time; applying a second
// replaces the first. Malformed codes are rejected before any network call.
func (e *Engine) ApplyCoupon(ctx context.Context, code string) Result {
	code = strings.TrimSpace(strings.ToUpper(code))
	if code == "" {
		return fail("enter a coupon code")
	}

	items := e.Items()
	if len(items) == 0 {
		return fail("add items to your cart before applying a coupon")
	}

	subtotal := pricing.Subtotal(items)
	products := make([]int64, 0, len(items))
	for _, l := range items {
		products = append(products, l.ProductID)
	}

	applied, err := e.validator.Validate(ctx, code, subtotal, products)
	if err != nil {
		e.log.WithError(err).WithField("code", code).Info("coupon rejected")
		return fail(userMessage(err))
	}

	e.mu.Lock()
	e.coupon = applied
	e.mu.Unlock()
	return success()
}

// RemoveCoupon detaches the session's coupon. Removing when none is applied
// is a no-op, not an error.
func (e *Engine) RemoveCoupon() Result {
	e.mu.Lock()
	e.coupon = nil
	e.mu.Unlock()
	return success()
}
