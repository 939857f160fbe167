package domain

import "time"

// TradeSide distinguishes curve buys from sells.
type TradeSide string

const (
	TradeSideBuy  TradeSide = "buy"
	TradeSideSell TradeSide = "sell"
)

// Valid reports whether the side is one of the two known values.
func (s TradeSide) Valid() bool {
	return s == TradeSideBuy || s == TradeSideSell
}

// Trade is one append-only ledger entry. Rows are created once per successful
// settlement and never mutated afterwards.
type Trade struct {
	ID                int64
	MintID            string
	TraderID          string
	Side              TradeSide
	TokenAmount       uint64
	SolAmount         uint64 // total consideration, not unit price
	FeeCharged        uint64
	RoyaltyPaid       uint64
	ExternalSignature string // idempotency key, unique
	CreatedAt         time.Time
}

// TradeRequest is the inbound settlement request as submitted by a client.
// Amount is sol base units for a buy and token base units for a sell.
type TradeRequest struct {
	MintID            string
	TraderID          string
	Side              TradeSide
	Amount            uint64
	ExternalSignature string
}

// SettlementResult is the authoritative outcome of a settled trade. AmountOut
// is tokens for a buy and sol for a sell, recomputed from current reserves
// inside the ledger transaction; client previews are never trusted.
type SettlementResult struct {
	Trade        Trade
	Curve        BondingCurve
	AmountOut    uint64
	FeeCharged   uint64
	RoyaltyPaid  uint64
	PlatformFee  uint64
	GraduatedNow bool
}
