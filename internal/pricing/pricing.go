package pricing

import "github.com/fjod/go_storefront/internal/domain"

// ShippingPolicy is supplied by the caller; the pricing functions never
// decide shipping themselves beyond applying this policy.
type ShippingPolicy struct {
	FreeAbove int64 // subtotal (cents) at or above which shipping is free
	FlatFee   int64 // cents, charged below the threshold
}

// Fee returns the shipping line for the given subtotal. A FreeShipping
// coupon zeroes the fee regardless of the threshold.
func (p ShippingPolicy) Fee(subtotal int64, coupon *domain.AppliedCoupon) int64 {
	if subtotal == 0 {
		return 0
	}
	if coupon != nil && coupon.Type == domain.DiscountFreeShipping {
		return 0
	}
	if subtotal >= p.FreeAbove {
		return 0
	}
	return p.FlatFee
}

// Subtotal is the sum of unitPrice * quantity over all lines.
func Subtotal(lines []domain.CartLine) int64 {
	var sum int64
	for _, l := range lines {
		sum += l.UnitPrice * int64(l.Quantity)
	}
	return sum
}

// Discount computes the item discount for the applied coupon, clamped to the
// range [0, subtotal]. FreeShipping affects only the shipping line and
// contributes no item discount.
func Discount(subtotal int64, coupon *domain.AppliedCoupon) int64 {
	if coupon == nil || subtotal <= 0 {
		return 0
	}
	switch coupon.Type {
	case domain.DiscountPercentage:
		pct := coupon.Value
		if pct <= 0 {
			return 0
		}
		if pct > 100 {
			pct = 100
		}
		d := subtotal * pct / 100
		if d > subtotal {
			d = subtotal
		}
		return d
	case domain.DiscountFixed:
		if coupon.Value <= 0 {
			return 0
		}
		if coupon.Value > subtotal {
			return subtotal
		}
		return coupon.Value
	default:
		return 0
	}
}

// Total is max(0, subtotal - discount + shipping). Display tax is NOT part
// of the total; callers that charge tax must add it explicitly.
func Total(subtotal, discount, shipping int64) int64 {
	t := subtotal - discount + shipping
	if t < 0 {
		return 0
	}
	return t
}

// DisplayTax is informational only. It must never be folded into Total
// implicitly; doing so double-counted tax in an earlier revision.
func DisplayTax(subtotal int64, rateBps int64) int64 {
	return subtotal * rateBps / 10000
}
