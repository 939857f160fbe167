package domain

import (
	"context"
	"time"
)

// PriceCache provides fast access to the latest spot prices. Values are
// display hints derived from settled reserves; the curve row stays
// authoritative.
type PriceCache interface {
	SetPrice(ctx context.Context, mintID string, price float64, ts time.Time) error
	GetPrice(ctx context.Context, mintID string) (float64, time.Time, error)
	GetPrices(ctx context.Context, mintIDs []string) (map[string]float64, error)
}

// RateLimiter provides distributed rate limiting.
type RateLimiter interface {
	Allow(ctx context.Context, key string, limit int, window time.Duration) (bool, error)
}

// LockManager provides distributed locking.
type LockManager interface {
	Acquire(ctx context.Context, key string, ttl time.Duration) (unlock func(), err error)
}

// Signal is one message received from the bus. Channel is the concrete
// channel the message was published on, even when the subscription used a
// glob pattern.
type Signal struct {
	Channel string
	Payload []byte
}

// SignalBus carries change notifications to subscribers. Delivery is
// at-most-once best-effort; consumers treat messages as hints to re-fetch
// authoritative state, never as the state itself.
type SignalBus interface {
	Publish(ctx context.Context, channel string, payload []byte) error
	Subscribe(ctx context.Context, channel string) (<-chan Signal, error)
}

// MintTopic is the fan-out channel for one mint's ledger and trade changes.
func MintTopic(mintID string) string {
	return "mint:" + mintID
}

// WalletTopic is the fan-out channel for one wallet's personal balances.
func WalletTopic(walletID string) string {
	return "wallet:" + walletID
}
