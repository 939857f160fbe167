package postgres

import (
	"context"
	"errors"
	"fmt"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/wavemint/wavemint/internal/domain"
)

// EarningsStore implements domain.EarningsStore using PostgreSQL. Credits
// happen only inside CurveStore.ApplyTrade; this store only reads.
type EarningsStore struct {
	pool *pgxpool.Pool
}

// NewEarningsStore creates an EarningsStore backed by the given pool.
func NewEarningsStore(pool *pgxpool.Pool) *EarningsStore {
	return &EarningsStore{pool: pool}
}

// GetByCreator returns the cumulative royalty counter for one creator. A
// creator with no settled royalties yet gets a zero row, not an error.
func (s *EarningsStore) GetByCreator(ctx context.Context, creatorID string) (domain.CreatorEarnings, error) {
	var e domain.CreatorEarnings
	var royalty int64
	err := s.pool.QueryRow(ctx, `
		SELECT creator_id, total_royalty, trade_count, updated_at
		FROM creator_earnings WHERE creator_id = $1`, creatorID,
	).Scan(&e.CreatorID, &royalty, &e.TradeCount, &e.UpdatedAt)
	if errors.Is(err, pgx.ErrNoRows) {
		return domain.CreatorEarnings{CreatorID: creatorID}, nil
	}
	if err != nil {
		return domain.CreatorEarnings{}, fmt.Errorf("postgres: get earnings %s: %w", creatorID, err)
	}
	e.TotalRoyalty = uint64(royalty)
	return e, nil
}

// Compile-time interface check.
var _ domain.EarningsStore = (*EarningsStore)(nil)
