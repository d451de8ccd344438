package cache

import (
	"context"
	"errors"
	"fmt"
	"strconv"
	"time"

	"order-manager/internal/infra"

	"github.com/go-redis/redis/v8"
	"go.uber.org/zap"
	"golang.org/x/sync/singleflight"
)

// Store is the subset of *redis.Client the price cache needs.
type Store interface {
	Get(ctx context.Context, key string) *redis.StringCmd
	Set(ctx context.Context, key string, value interface{}, expiration time.Duration) *redis.StatusCmd
}

var _ Store = (*redis.Client)(nil)

// CachedPriceProvider keeps unit prices in Redis and collapses concurrent
// lookups of the same product into one upstream call. Redis errors fall
// through to the upstream provider.
type CachedPriceProvider struct {
	next          infra.PriceProvider
	store         Store
	ttl           time.Duration
	lookupTimeout time.Duration
	group         singleflight.Group
	logger        *zap.Logger
}

const defaultLookupTimeout = 5 * time.Second

func NewCachedPriceProvider(next infra.PriceProvider, store Store, ttl time.Duration, logger *zap.Logger) *CachedPriceProvider {
	return &CachedPriceProvider{
		next:          next,
		store:         store,
		ttl:           ttl,
		lookupTimeout: defaultLookupTimeout,
		logger:        logger,
	}
}

func priceKey(productID uint64) string {
	return fmt.Sprintf("price:%d", productID)
}

func (c *CachedPriceProvider) UnitPrice(ctx context.Context, productID uint64) (int64, error) {
	key := priceKey(productID)

	if c.store != nil {
		cached, err := c.store.Get(ctx, key).Result()
		if err == nil {
			if price, err := strconv.ParseInt(cached, 10, 64); err == nil {
				return price, nil
			}
		} else if !errors.Is(err, redis.Nil) {
			c.logger.Warn("price cache read failed", zap.String("key", key), zap.Error(err))
		}
	}

	// The shared lookup is detached from any one caller's cancellation; each
	// caller stops waiting when its own ctx is done.
	ch := c.group.DoChan(key, func() (interface{}, error) {
		lookupCtx, cancel := context.WithTimeout(context.WithoutCancel(ctx), c.lookupTimeout)
		defer cancel()

		price, err := c.next.UnitPrice(lookupCtx, productID)
		if err != nil {
			return int64(0), err
		}
		c.put(lookupCtx, key, price, c.ttl)
		return price, nil
	})

	select {
	case res := <-ch:
		if res.Err != nil {
			return 0, res.Err
		}
		return res.Val.(int64), nil
	case <-ctx.Done():
		return 0, ctx.Err()
	}
}

func (c *CachedPriceProvider) put(ctx context.Context, key string, price int64, ttl time.Duration) {
	if c.store == nil {
		return
	}
	if err := c.store.Set(ctx, key, strconv.FormatInt(price, 10), ttl).Err(); err != nil {
		c.logger.Warn("price cache write failed", zap.String("key", key), zap.Error(err))
	}
}

// WarmupPrices loads the given products into the cache. Individual failures
// are logged and skipped.
func (c *CachedPriceProvider) WarmupPrices(ctx context.Context, productIDs []uint64) error {
	if c.store == nil {
		return nil
	}
	for _, id := range productIDs {
		price, err := c.next.UnitPrice(ctx, id)
		if err != nil {
			c.logger.Warn("price warmup failed", zap.Uint64("product_id", id), zap.Error(err))
			continue
		}
		c.put(ctx, priceKey(id), price, c.ttl)
	}
	return ctx.Err()
}
