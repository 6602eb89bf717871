// Package coupons serves the coupon catalog, caching backend responses so
// every cart page view does not hit the coupon service.
package coupons

import (
	"context"
	"errors"
	"fmt"

	"github.com/sirupsen/logrus"
	"golang.org/x/sync/singleflight"

	"github.com/fjod/go_storefront/internal/cache"
	"github.com/fjod/go_storefront/internal/domain"
)

// CatalogSource is the backend lookup; implemented by the remote store client.
type CatalogSource interface {
	AvailableCoupons(ctx context.Context, cartAmount int64, hasItems bool) ([]domain.Coupon, error)
}

type Catalog struct {
	source CatalogSource
	cache  cache.CouponCache
	sfg    singleflight.Group // prevents cache stampede
	log    logrus.FieldLogger
}

func NewCatalog(source CatalogSource, c cache.CouponCache, log logrus.FieldLogger) *Catalog {
	return &Catalog{source: source, cache: c, log: log}
}

// bucketSize coarsens the cart amount so the cache key space stays small;
// coupon eligibility thresholds are whole-dollar amounts anyway.
const bucketSize = 1000

// Available returns coupons applicable to a cart of the given amount,
// serving from cache when possible.
func (c *Catalog) Available(ctx context.Context, cartAmount int64, hasItems bool) ([]domain.Coupon, error) {
	key := catalogKey(cartAmount, hasItems)

	v, err, _ := c.sfg.Do(key, func() (interface{}, error) {
		coupons, errGet := c.cache.Get(ctx, key)
		if errGet == nil {
			return coupons, nil
		}
		if !errors.Is(errGet, cache.ErrCacheMiss) {
			c.log.WithError(errGet).Warn("coupon cache get error") // log but continue to source
		}

		coupons, errGet = c.source.AvailableCoupons(ctx, cartAmount, hasItems)
		if errGet != nil {
			return nil, errGet
		}

		go func() {
			if errSet := c.cache.Set(context.Background(), key, coupons); errSet != nil {
				c.log.WithError(errSet).Warn("coupon cache set error")
			}
		}()

		return coupons, nil
	})
	if err != nil {
		return nil, err
	}
	return v.([]domain.Coupon), nil
}

func catalogKey(cartAmount int64, hasItems bool) string {
	bucket := cartAmount / bucketSize * bucketSize
	return fmt.Sprintf("b%d:%t", bucket, hasItems)
}
