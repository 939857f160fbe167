package domain

import "time"

// VestingSchedule is a time-gated release plan for a creator token grant.
// Created once at mint registration when the clip carries a creator
// allocation; mutated only by successful claims; immutable once fully
// claimed.
type VestingSchedule struct {
	ID                string
	MintID            string
	BeneficiaryID     string
	TokenAmount       uint64 // total grant
	TotalClaimed      uint64
	VestingStart      time.Time
	DurationDays      int
	ClaimIntervalDays int
	LastClaimAt       *time.Time
	FullyClaimed      bool
	CreatedAt         time.Time
}

// ClaimRequest is the inbound claim request for a vesting schedule.
type ClaimRequest struct {
	ScheduleID    string
	BeneficiaryID string
}

// ClaimResult is the recorded outcome of a successful claim.
type ClaimResult struct {
	Schedule      VestingSchedule
	ClaimedAmount uint64
	ClaimedAt     time.Time
}
