package domain

import "context"

// TransferProof is the verifier's view of an external value transfer.
type TransferProof struct {
	Confirmed   bool
	Amount      uint64 // base units actually moved
	FromAccount string
	ToAccount   string
}

// TransferVerifier confirms that the on-chain transfer referenced by an
// external signature actually moved the claimed value. Any non-confirmed
// result is a hard rejection.
type TransferVerifier interface {
	Verify(ctx context.Context, signature string) (TransferProof, error)
}

// Disburser triggers the outbound token transfer for a vesting claim. The
// claim is recorded before disbursement; implementations must be idempotent
// per (scheduleID, amount, claim time).
type Disburser interface {
	Disburse(ctx context.Context, mintID, beneficiaryID string, tokenAmount uint64) error
}
