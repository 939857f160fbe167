package domain

import (
	"context"
	"time"
)

// ListOpts provides pagination and filtering for list queries.
type ListOpts struct {
	Limit  int
	Offset int
	Since  *time.Time
	Until  *time.Time
}

// CurveStore owns the BondingCurve rows and exposes the single atomic
// read-modify-write primitive of the engine.
type CurveStore interface {
	// Create registers a new curve and, when the input carries a creator
	// allocation, its vesting schedule, in one transaction.
	Create(ctx context.Context, in CurveCreate) (BondingCurve, error)

	GetByMint(ctx context.Context, mintID string) (BondingCurve, error)
	List(ctx context.Context, opts ListOpts) ([]BondingCurve, error)
	Count(ctx context.Context) (int64, error)

	// ApplyTrade settles one trade as a single serializable unit: it locks
	// the curve row, recomputes the quote from current reserves, updates
	// reserves, tokens_sold and total_volume, inserts the Trade row, credits
	// creator earnings, and evaluates graduation. No other ApplyTrade for
	// the same mint observes an intermediate state.
	ApplyTrade(ctx context.Context, req TradeRequest, feeBps uint32) (SettlementResult, error)
}

// TradeStore reads the append-only trade ledger. Inserts happen only inside
// CurveStore.ApplyTrade.
type TradeStore interface {
	GetBySignature(ctx context.Context, signature string) (Trade, error)
	ListByMint(ctx context.Context, mintID string, opts ListOpts) ([]Trade, error)
	ListByTrader(ctx context.Context, traderID string, opts ListOpts) ([]Trade, error)
	ListBetween(ctx context.Context, since, until time.Time) ([]Trade, error)
}

// VestingStore owns the VestingSchedule rows.
type VestingStore interface {
	GetByID(ctx context.Context, id string) (VestingSchedule, error)
	ListByBeneficiary(ctx context.Context, beneficiaryID string) ([]VestingSchedule, error)

	// Claim recomputes the vested amount server-side under a per-schedule
	// row lock and, when something is claimable and the interval has
	// elapsed, atomically moves it to total_claimed.
	Claim(ctx context.Context, id string, now time.Time) (ClaimResult, error)
}

// EarningsStore reads the per-creator royalty counters. Credits happen only
// inside CurveStore.ApplyTrade.
type EarningsStore interface {
	GetByCreator(ctx context.Context, creatorID string) (CreatorEarnings, error)
}
