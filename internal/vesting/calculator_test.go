package vesting

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/wavemint/wavemint/internal/domain"
)

var start = time.Date(2025, 6, 1, 0, 0, 0, 0, time.UTC)

func schedule() domain.VestingSchedule {
	return domain.VestingSchedule{
		ID:                "sched-1",
		MintID:            "mint-1",
		BeneficiaryID:     "creator-1",
		TokenAmount:       1_000_000_000,
		VestingStart:      start,
		DurationDays:      21,
		ClaimIntervalDays: 2,
	}
}

func TestComputeStatus_DayTen(t *testing.T) {
	st := ComputeStatus(schedule(), start.AddDate(0, 0, 10))

	// floor(1_000_000_000 * 10 / 21)
	assert.Equal(t, uint64(476_190_476), st.TotalVested)
	assert.Equal(t, uint64(476_190_476), st.Claimable)
	assert.True(t, st.CanClaim)
}

func TestComputeStatus_IntervalGate(t *testing.T) {
	s := schedule()
	claimedAt := start.AddDate(0, 0, 10)
	s.TotalClaimed = 476_190_476
	s.LastClaimAt = &claimedAt

	// One hour after the first claim: a little more has vested, but the
	// two-day interval has not elapsed.
	st := ComputeStatus(s, claimedAt.Add(time.Hour))
	require.NotZero(t, st.Claimable)
	assert.False(t, st.CanClaim)
	assert.Equal(t, claimedAt.AddDate(0, 0, 2), st.NextClaimAt)

	// Once the interval passes, the remainder is claimable again.
	st = ComputeStatus(s, claimedAt.AddDate(0, 0, 2))
	assert.True(t, st.CanClaim)
}

func TestComputeStatus_Monotonic(t *testing.T) {
	s := schedule()
	var prev uint64
	for day := 0; day <= 25; day++ {
		st := ComputeStatus(s, start.AddDate(0, 0, day))
		require.GreaterOrEqual(t, st.Claimable, prev, "day %d", day)
		prev = st.Claimable
	}
	assert.Equal(t, s.TokenAmount, prev)
}

func TestComputeStatus_BeforeStart(t *testing.T) {
	st := ComputeStatus(schedule(), start.Add(-time.Hour))
	assert.Zero(t, st.TotalVested)
	assert.Zero(t, st.Claimable)
	assert.False(t, st.CanClaim)
}

func TestComputeStatus_ZeroDuration(t *testing.T) {
	s := schedule()
	s.DurationDays = 0

	st := ComputeStatus(s, start)
	assert.Equal(t, s.TokenAmount, st.TotalVested)
	assert.Equal(t, s.TokenAmount, st.Claimable)
	assert.True(t, st.CanClaim)
}

func TestComputeStatus_FullyClaimed(t *testing.T) {
	s := schedule()
	s.TotalClaimed = s.TokenAmount
	claimedAt := start.AddDate(0, 0, 21)
	s.LastClaimAt = &claimedAt
	s.FullyClaimed = true

	st := ComputeStatus(s, start.AddDate(0, 0, 40))
	assert.Zero(t, st.Claimable)
	assert.False(t, st.CanClaim)
}
