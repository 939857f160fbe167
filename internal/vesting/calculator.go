// Package vesting implements the linear vesting calculator for creator token
// grants. Status is a pure function of a schedule and a clock reading; the
// guarded mutation lives in the store layer, which recomputes Status under a
// row lock and never trusts a client-cached value.
package vesting

import (
	"math/big"
	"time"

	"github.com/wavemint/wavemint/internal/domain"
)

const dayMs = int64(24 * time.Hour / time.Millisecond)

// Status is the point-in-time view of a vesting schedule.
type Status struct {
	TotalVested uint64 // amount unlocked by the passage of time
	Claimable   uint64 // unlocked minus already claimed
	CanClaim    bool
	NextClaimAt time.Time // zero when claimable immediately
}

// ComputeStatus evaluates the schedule at the given instant. Vesting is
// linear in whole milliseconds over duration_days; a zero-day duration vests
// the full grant immediately.
func ComputeStatus(s domain.VestingSchedule, now time.Time) Status {
	vested := totalVestedAt(s, now)

	var claimable uint64
	if vested > s.TotalClaimed {
		claimable = vested - s.TotalClaimed
	}

	st := Status{
		TotalVested: vested,
		Claimable:   claimable,
	}

	if claimable == 0 {
		return st
	}

	if s.LastClaimAt != nil {
		next := s.LastClaimAt.Add(time.Duration(s.ClaimIntervalDays) * 24 * time.Hour)
		if now.Before(next) {
			st.NextClaimAt = next
			return st
		}
	}

	st.CanClaim = true
	return st
}

// totalVestedAt returns floor(tokenAmount * elapsed / duration) in base
// units, computed with a big.Int product so large grants cannot overflow.
func totalVestedAt(s domain.VestingSchedule, now time.Time) uint64 {
	if s.DurationDays <= 0 {
		return s.TokenAmount
	}

	elapsedMs := now.Sub(s.VestingStart).Milliseconds()
	if elapsedMs <= 0 {
		return 0
	}

	durationMs := int64(s.DurationDays) * dayMs
	if elapsedMs >= durationMs {
		return s.TokenAmount
	}

	v := new(big.Int).SetUint64(s.TokenAmount)
	v.Mul(v, big.NewInt(elapsedMs))
	v.Quo(v, big.NewInt(durationMs))
	return v.Uint64()
}
