package redis

import (
	"context"
	"errors"
	"fmt"
	"strconv"
	"time"

	"github.com/redis/go-redis/v9"

	"github.com/wavemint/wavemint/internal/domain"
)

// PriceCache implements domain.PriceCache using Redis hashes. Each mint's
// latest spot price is stored at key "price:{mintID}" with fields "price"
// and "ts" (Unix nanosecond timestamp). The settlement pipeline refreshes it
// after every settled trade; the quote layer reads it for display only.
type PriceCache struct {
	rdb *redis.Client
}

// NewPriceCache creates a PriceCache backed by the given Client.
func NewPriceCache(c *Client) *PriceCache {
	return &PriceCache{rdb: c.Underlying()}
}

func priceKey(mintID string) string {
	return "price:" + mintID
}

// SetPrice stores the latest spot price and timestamp for a mint.
func (pc *PriceCache) SetPrice(ctx context.Context, mintID string, price float64, ts time.Time) error {
	fields := map[string]interface{}{
		"price": strconv.FormatFloat(price, 'f', -1, 64),
		"ts":    strconv.FormatInt(ts.UnixNano(), 10),
	}
	if err := pc.rdb.HSet(ctx, priceKey(mintID), fields).Err(); err != nil {
		return fmt.Errorf("redis: set price %s: %w", mintID, err)
	}
	return nil
}

// GetPrice retrieves the latest spot price and timestamp for a mint. It
// returns domain.ErrNotFound when no price has been cached yet.
func (pc *PriceCache) GetPrice(ctx context.Context, mintID string) (float64, time.Time, error) {
	vals, err := pc.rdb.HGetAll(ctx, priceKey(mintID)).Result()
	if err != nil {
		return 0, time.Time{}, fmt.Errorf("redis: get price %s: %w", mintID, err)
	}
	if len(vals) == 0 {
		return 0, time.Time{}, domain.ErrNotFound
	}

	priceStr, ok := vals["price"]
	if !ok {
		return 0, time.Time{}, domain.ErrNotFound
	}
	price, err := strconv.ParseFloat(priceStr, 64)
	if err != nil {
		return 0, time.Time{}, fmt.Errorf("redis: parse price %s: %w", mintID, err)
	}

	tsStr, ok := vals["ts"]
	if !ok {
		return 0, time.Time{}, domain.ErrNotFound
	}
	tsNano, err := strconv.ParseInt(tsStr, 10, 64)
	if err != nil {
		return 0, time.Time{}, fmt.Errorf("redis: parse ts %s: %w", mintID, err)
	}

	return price, time.Unix(0, tsNano), nil
}

// GetPrices retrieves the latest prices for multiple mints using a pipeline.
// Mints with no cached price are silently omitted from the result map.
func (pc *PriceCache) GetPrices(ctx context.Context, mintIDs []string) (map[string]float64, error) {
	if len(mintIDs) == 0 {
		return map[string]float64{}, nil
	}

	pipe := pc.rdb.Pipeline()
	cmds := make(map[string]*redis.MapStringStringCmd, len(mintIDs))
	for _, id := range mintIDs {
		cmds[id] = pipe.HGetAll(ctx, priceKey(id))
	}

	if _, err := pipe.Exec(ctx); err != nil && !errors.Is(err, redis.Nil) {
		return nil, fmt.Errorf("redis: get prices pipeline: %w", err)
	}

	result := make(map[string]float64, len(mintIDs))
	for id, cmd := range cmds {
		vals, err := cmd.Result()
		if err != nil || len(vals) == 0 {
			continue
		}
		priceStr, ok := vals["price"]
		if !ok {
			continue
		}
		price, err := strconv.ParseFloat(priceStr, 64)
		if err != nil {
			continue
		}
		result[id] = price
	}

	return result, nil
}

// Compile-time interface check.
var _ domain.PriceCache = (*PriceCache)(nil)
