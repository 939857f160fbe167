package domain

import "errors"

var (
	ErrNotFound      = errors.New("not found")
	ErrAlreadyExists = errors.New("already exists")
	ErrRateLimited   = errors.New("rate limited")
	ErrLockHeld      = errors.New("lock already held")

	// Curve math and ledger errors.
	ErrInvalidAmount         = errors.New("invalid amount")
	ErrInsufficientLiquidity = errors.New("insufficient liquidity")
	ErrInsufficientBalance   = errors.New("insufficient balance")
	ErrCurveInactive         = errors.New("curve inactive")
	ErrArithmeticOverflow    = errors.New("arithmetic overflow")

	// Settlement errors.
	ErrDuplicateSignature = errors.New("duplicate signature")
	ErrVerificationFailed = errors.New("transfer verification failed")

	// Vesting errors.
	ErrNothingToClaim = errors.New("nothing to claim")
	ErrClaimTooSoon   = errors.New("claim interval not elapsed")
)
