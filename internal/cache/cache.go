package cache

import (
	"context"
	"errors"

	"github.com/fjod/go_storefront/internal/domain"
)

// CouponCache caches the coupon catalog keyed by cart amount bucket.
type CouponCache interface {
	Get(ctx context.Context, key string) ([]domain.Coupon, error)
	Set(ctx context.Context, key string, coupons []domain.Coupon) error
	Delete(ctx context.Context, key string) error
}

var ErrCacheMiss = errors.New("cache miss")
