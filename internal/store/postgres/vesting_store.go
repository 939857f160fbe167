package postgres

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/wavemint/wavemint/internal/domain"
	"github.com/wavemint/wavemint/internal/vesting"
)

// VestingStore implements domain.VestingStore using PostgreSQL. Claim locks
// the schedule row and recomputes the claimable amount server-side, so a
// stale client view can never over-release a grant.
type VestingStore struct {
	pool *pgxpool.Pool
}

// NewVestingStore creates a VestingStore backed by the given connection pool.
func NewVestingStore(pool *pgxpool.Pool) *VestingStore {
	return &VestingStore{pool: pool}
}

const vestingSelectCols = `id, mint_id, beneficiary_id, token_amount,
	total_claimed, vesting_start, duration_days, claim_interval_days,
	last_claim_at, fully_claimed, created_at`

func scanSchedule(row pgx.Row) (domain.VestingSchedule, error) {
	var s domain.VestingSchedule
	var amount, claimed int64
	err := row.Scan(
		&s.ID, &s.MintID, &s.BeneficiaryID, &amount, &claimed,
		&s.VestingStart, &s.DurationDays, &s.ClaimIntervalDays,
		&s.LastClaimAt, &s.FullyClaimed, &s.CreatedAt,
	)
	if err != nil {
		return domain.VestingSchedule{}, err
	}
	s.TokenAmount = uint64(amount)
	s.TotalClaimed = uint64(claimed)
	return s, nil
}

// GetByID returns one vesting schedule.
func (s *VestingStore) GetByID(ctx context.Context, id string) (domain.VestingSchedule, error) {
	row := s.pool.QueryRow(ctx,
		`SELECT `+vestingSelectCols+` FROM vesting_schedules WHERE id = $1`, id)
	sched, err := scanSchedule(row)
	if errors.Is(err, pgx.ErrNoRows) {
		return domain.VestingSchedule{}, domain.ErrNotFound
	}
	if err != nil {
		return domain.VestingSchedule{}, fmt.Errorf("postgres: get schedule %s: %w", id, err)
	}
	return sched, nil
}

// ListByBeneficiary returns all schedules granted to one beneficiary.
func (s *VestingStore) ListByBeneficiary(ctx context.Context, beneficiaryID string) ([]domain.VestingSchedule, error) {
	rows, err := s.pool.Query(ctx,
		`SELECT `+vestingSelectCols+` FROM vesting_schedules
		 WHERE beneficiary_id = $1 ORDER BY created_at ASC`,
		beneficiaryID,
	)
	if err != nil {
		return nil, fmt.Errorf("postgres: list schedules for %s: %w", beneficiaryID, err)
	}
	defer rows.Close()

	var scheds []domain.VestingSchedule
	for rows.Next() {
		sched, err := scanSchedule(rows)
		if err != nil {
			return nil, fmt.Errorf("postgres: scan schedule: %w", err)
		}
		scheds = append(scheds, sched)
	}
	return scheds, rows.Err()
}

// Claim releases the currently claimable amount under a row lock. The
// vested amount is recomputed from the locked row and the supplied clock
// reading; the update and the status check commit as one unit.
func (s *VestingStore) Claim(ctx context.Context, id string, now time.Time) (domain.ClaimResult, error) {
	tx, err := s.pool.Begin(ctx)
	if err != nil {
		return domain.ClaimResult{}, fmt.Errorf("postgres: begin claim: %w", err)
	}
	defer tx.Rollback(ctx)

	row := tx.QueryRow(ctx,
		`SELECT `+vestingSelectCols+` FROM vesting_schedules WHERE id = $1 FOR UPDATE`, id)
	sched, err := scanSchedule(row)
	if errors.Is(err, pgx.ErrNoRows) {
		return domain.ClaimResult{}, domain.ErrNotFound
	}
	if err != nil {
		return domain.ClaimResult{}, fmt.Errorf("postgres: lock schedule %s: %w", id, err)
	}

	st := vesting.ComputeStatus(sched, now)
	if st.Claimable == 0 {
		return domain.ClaimResult{}, domain.ErrNothingToClaim
	}
	if !st.CanClaim {
		return domain.ClaimResult{}, domain.ErrClaimTooSoon
	}

	newClaimed := sched.TotalClaimed + st.Claimable
	fullyClaimed := newClaimed == sched.TokenAmount

	_, err = tx.Exec(ctx, `
		UPDATE vesting_schedules SET
			total_claimed = $2, last_claim_at = $3, fully_claimed = $4
		WHERE id = $1`,
		id, int64(newClaimed), now, fullyClaimed,
	)
	if err != nil {
		return domain.ClaimResult{}, fmt.Errorf("postgres: update schedule %s: %w", id, err)
	}

	if err := tx.Commit(ctx); err != nil {
		return domain.ClaimResult{}, fmt.Errorf("postgres: commit claim %s: %w", id, err)
	}

	sched.TotalClaimed = newClaimed
	sched.LastClaimAt = &now
	sched.FullyClaimed = fullyClaimed

	return domain.ClaimResult{
		Schedule:      sched,
		ClaimedAmount: st.Claimable,
		ClaimedAt:     now,
	}, nil
}

// Compile-time interface check.
var _ domain.VestingStore = (*VestingStore)(nil)
