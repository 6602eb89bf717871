package cache

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"math/rand"
	"time"

	"github.com/redis/go-redis/v9"

	"github.com/fjod/go_storefront/internal/domain"
)

func NewRedisCache(client *redis.Client) *RedisCache {
	return &RedisCache{
		client:  client,
		baseTTL: 5 * time.Minute,
	}
}

type RedisCache struct {
	client  *redis.Client
	baseTTL time.Duration
}

func (r RedisCache) Get(ctx context.Context, key string) ([]domain.Coupon, error) {
	data, err := r.client.Get(ctx, cacheKey(key)).Bytes()
	if errors.Is(err, redis.Nil) {
		return nil, ErrCacheMiss
	}
	if err != nil {
		return nil, fmt.Errorf("redis get failed: %w", err)
	}

	var coupons []domain.Coupon
	if err2 := json.Unmarshal(data, &coupons); err2 != nil {
		return nil, fmt.Errorf("unmarshal coupons failed: %w", err2)
	}
	return coupons, nil
}

func (r RedisCache) Set(ctx context.Context, key string, coupons []domain.Coupon) error {
	data, err := json.Marshal(coupons)
	if err != nil {
		return fmt.Errorf("marshal coupons failed: %w", err)
	}

	// jitter spreads expiry so one catalog change does not stampede the backend
	jitter := time.Duration(rand.Intn(60)) * time.Second
	ttl := r.baseTTL + jitter
	if errSet := r.client.Set(ctx, cacheKey(key), data, ttl).Err(); errSet != nil {
		return fmt.Errorf("redis set failed: %w", errSet)
	}
	return nil
}

func (r RedisCache) Delete(ctx context.Context, key string) error {
	if err := r.client.Del(ctx, cacheKey(key)).Err(); err != nil {
		return fmt.Errorf("redis delete failed: %w", err)
	}
	return nil
}

func cacheKey(key string) string {
	return fmt.Sprintf("coupons:%s", key)
}
