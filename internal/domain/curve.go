package domain

import "time"

// BondingCurve is the authoritative per-mint reserve record. One row exists
// per minted clip token and is mutated only inside a settlement transaction.
type BondingCurve struct {
	MintID           string
	SolReserves      uint64 // lamport base units
	TokenReserves    uint64 // token base units
	TokensSold       uint64 // monotonically non-decreasing
	TotalVolume      uint64 // cumulative sol consideration, both sides
	CreatorID        string
	RoyaltyBps       uint32
	RoyaltyRecipient string
	Graduated        bool
	MigrationRef     *string
	Version          int64 // bumped on every reserve mutation
	CreatedAt        time.Time
	UpdatedAt        time.Time
}

// Active reports whether the curve still prices trades through this engine.
func (c BondingCurve) Active() bool {
	return !c.Graduated
}

// CurveCreate carries everything needed to register a new mint: the initial
// reserve state plus an optional creator allocation that becomes a vesting
// schedule in the same transaction.
type CurveCreate struct {
	MintID           string
	SolReserves      uint64
	TokenReserves    uint64
	CreatorID        string
	RoyaltyBps       uint32
	RoyaltyRecipient string

	// CreatorAllocation, when non-zero, creates a vesting schedule for the
	// creator alongside the curve.
	CreatorAllocation uint64
	VestingDays       int
	ClaimIntervalDays int
}
