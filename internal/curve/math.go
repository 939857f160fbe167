// Package curve implements the constant-product pricing math for clip token
// bonding curves. All functions are pure: integer base units in, integer base
// units out. Remaining reserves are rounded up, which floors the amount paid
// out; rounding always favors the pool so the reserve product never shrinks.
// Display-unit conversion is a presentation concern and never happens here.
package curve

import (
	"math"
	"math/big"

	"github.com/wavemint/wavemint/internal/domain"
)

// BpsDenominator is the basis-point scale used for fees and royalties.
const BpsDenominator = 10_000

// Quote is the result of pricing one trade against a reserve snapshot.
// AmountOut is tokens for a buy and sol for a sell. NewSolReserves and
// NewTokenReserves are the reserves after settling this quote: fees are
// retained in the pool, so the product of reserves grows by the fee taken.
type Quote struct {
	AmountOut        uint64
	Fee              uint64 // sol base units
	NewSolReserves   uint64
	NewTokenReserves uint64
	PriceImpactBps   uint64
}

// QuoteBuy prices a purchase of tokens for solIn against the given reserves.
// The fee is deducted from solIn before it hits the curve; the full solIn is
// added to sol reserves on settlement.
func QuoteBuy(solIn, solReserves, tokenReserves uint64, feeBps uint32) (Quote, error) {
	if solIn == 0 {
		return Quote{}, domain.ErrInvalidAmount
	}
	if feeBps >= BpsDenominator {
		return Quote{}, domain.ErrInvalidAmount
	}
	if solReserves == 0 || tokenReserves <= 1 {
		// The pool never sells its last token base unit.
		return Quote{}, domain.ErrInsufficientLiquidity
	}

	fee := mulDivFloor(solIn, uint64(feeBps), BpsDenominator)
	solAfterFee := solIn - fee

	newSol, ok := addU64(solReserves, solIn)
	if !ok {
		return Quote{}, domain.ErrArithmeticOverflow
	}

	// tokensOut = T - ceil(k / (S + solAfterFee)). The product k overflows
	// uint64 for realistic reserves, so it is computed in big.Int.
	k := mulBig(solReserves, tokenReserves)
	remaining := ceilDiv(k, solReserves+solAfterFee)
	if !remaining.IsUint64() || remaining.Uint64() > tokenReserves {
		return Quote{}, domain.ErrArithmeticOverflow
	}
	tokensOut := tokenReserves - remaining.Uint64()

	if tokensOut == 0 {
		return Quote{}, domain.ErrInvalidAmount
	}
	if tokensOut >= tokenReserves {
		return Quote{}, domain.ErrInsufficientLiquidity
	}

	return Quote{
		AmountOut:        tokensOut,
		Fee:              fee,
		NewSolReserves:   newSol,
		NewTokenReserves: tokenReserves - tokensOut,
		PriceImpactBps:   priceImpactBps(solAfterFee, tokensOut, solReserves, tokenReserves),
	}, nil
}

// QuoteSell prices a sale of tokenIn tokens back into sol. The fee is taken
// from the sol output, not from tokenIn, and stays in the pool: reserves lose
// only the net payout.
func QuoteSell(tokenIn, solReserves, tokenReserves uint64, feeBps uint32) (Quote, error) {
	if tokenIn == 0 {
		return Quote{}, domain.ErrInvalidAmount
	}
	if feeBps >= BpsDenominator {
		return Quote{}, domain.ErrInvalidAmount
	}
	if solReserves == 0 || tokenReserves == 0 {
		return Quote{}, domain.ErrInsufficientLiquidity
	}

	newTok, ok := addU64(tokenReserves, tokenIn)
	if !ok {
		return Quote{}, domain.ErrArithmeticOverflow
	}

	// solOutBeforeFee = S - ceil(k / (T + tokenIn))
	k := mulBig(solReserves, tokenReserves)
	remaining := ceilDiv(k, newTok)
	if !remaining.IsUint64() || remaining.Uint64() > solReserves {
		return Quote{}, domain.ErrInsufficientLiquidity
	}
	solOutBefore := solReserves - remaining.Uint64()

	if solOutBefore == 0 {
		return Quote{}, domain.ErrInvalidAmount
	}

	fee := mulDivFloor(solOutBefore, uint64(feeBps), BpsDenominator)
	solOut := solOutBefore - fee
	if solOut == 0 {
		return Quote{}, domain.ErrInvalidAmount
	}

	return Quote{
		AmountOut:        solOut,
		Fee:              fee,
		NewSolReserves:   solReserves - solOut,
		NewTokenReserves: newTok,
		PriceImpactBps:   priceImpactBps(solOutBefore, tokenIn, solReserves, tokenReserves),
	}, nil
}

// SplitFee divides a combined settlement fee between the creator royalty and
// the platform. The royalty share is floor(fee * royaltyBps / 10000); the
// remainder always goes to the platform.
func SplitFee(fee uint64, royaltyBps uint32) (royalty, platform uint64) {
	if royaltyBps > BpsDenominator {
		royaltyBps = BpsDenominator
	}
	royalty = mulDivFloor(fee, uint64(royaltyBps), BpsDenominator)
	return royalty, fee - royalty
}

// SpotPrice returns the instantaneous price in sol base units per token base
// unit as a float. Display only; never used in settlement arithmetic.
func SpotPrice(solReserves, tokenReserves uint64) float64 {
	if tokenReserves == 0 {
		return math.Inf(1)
	}
	return float64(solReserves) / float64(tokenReserves)
}

// priceImpactBps computes |executionPrice - spotPrice| / spotPrice in basis
// points using cross-multiplication so no division happens before the final
// quotient. solSide/tokenSide is the execution price of the trade.
func priceImpactBps(solSide, tokenSide, solReserves, tokenReserves uint64) uint64 {
	if tokenSide == 0 || solReserves == 0 {
		return 0
	}

	// exec/spot = (solSide * T) / (tokenSide * S); impact = |exec/spot - 1|.
	num := mulBig(solSide, tokenReserves)
	den := mulBig(tokenSide, solReserves)

	diff := new(big.Int).Sub(num, den)
	diff.Abs(diff)
	diff.Mul(diff, big.NewInt(BpsDenominator))
	diff.Quo(diff, den)

	if !diff.IsUint64() {
		return math.MaxUint64
	}
	return diff.Uint64()
}

func mulBig(a, b uint64) *big.Int {
	x := new(big.Int).SetUint64(a)
	y := new(big.Int).SetUint64(b)
	return x.Mul(x, y)
}

func ceilDiv(num *big.Int, d uint64) *big.Int {
	den := new(big.Int).SetUint64(d)
	q, r := new(big.Int).QuoRem(num, den, new(big.Int))
	if r.Sign() != 0 {
		q.Add(q, big.NewInt(1))
	}
	return q
}

// mulDivFloor computes floor(a*b/d) without intermediate overflow.
func mulDivFloor(a, b, d uint64) uint64 {
	r := mulBig(a, b)
	r.Quo(r, new(big.Int).SetUint64(d))
	return r.Uint64()
}

func addU64(a, b uint64) (uint64, bool) {
	s := a + b
	return s, s >= a
}
