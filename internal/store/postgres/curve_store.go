package postgres

import (
	"context"
	"errors"
	"fmt"
	"math/bits"
	"time"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/wavemint/wavemint/internal/curve"
	"github.com/wavemint/wavemint/internal/domain"
)

// uniqueViolation is the PostgreSQL SQLSTATE for unique constraint errors.
const uniqueViolation = "23505"

// CurveStore implements domain.CurveStore using PostgreSQL. ApplyTrade is the
// single mutual-exclusion point of the engine: it locks the curve row with
// SELECT ... FOR UPDATE so trades against one mint serialize while trades
// against different mints proceed independently.
type CurveStore struct {
	pool                *pgxpool.Pool
	graduationThreshold uint64
}

// NewCurveStore creates a CurveStore backed by the given connection pool.
// graduationThreshold is the sol reserve level (base units) at which curves
// freeze and migrate to an external venue.
func NewCurveStore(pool *pgxpool.Pool, graduationThreshold uint64) *CurveStore {
	return &CurveStore{pool: pool, graduationThreshold: graduationThreshold}
}

const curveSelectCols = `mint_id, sol_reserves, token_reserves, tokens_sold,
	total_volume, creator_id, royalty_bps, royalty_recipient, graduated,
	migration_ref, version, created_at, updated_at`

func scanCurve(row pgx.Row) (domain.BondingCurve, error) {
	var c domain.BondingCurve
	var sol, tok, sold, vol, royaltyBps int64
	err := row.Scan(
		&c.MintID, &sol, &tok, &sold, &vol,
		&c.CreatorID, &royaltyBps, &c.RoyaltyRecipient,
		&c.Graduated, &c.MigrationRef, &c.Version,
		&c.CreatedAt, &c.UpdatedAt,
	)
	if err != nil {
		return domain.BondingCurve{}, err
	}
	c.SolReserves = uint64(sol)
	c.TokenReserves = uint64(tok)
	c.TokensSold = uint64(sold)
	c.TotalVolume = uint64(vol)
	c.RoyaltyBps = uint32(royaltyBps)
	return c, nil
}

// Create registers a new curve row and, when the input carries a creator
// allocation, the corresponding vesting schedule, in one transaction.
func (s *CurveStore) Create(ctx context.Context, in domain.CurveCreate) (domain.BondingCurve, error) {
	if in.SolReserves == 0 || in.TokenReserves == 0 {
		return domain.BondingCurve{}, fmt.Errorf("postgres: create curve %s: %w", in.MintID, domain.ErrInvalidAmount)
	}

	tx, err := s.pool.Begin(ctx)
	if err != nil {
		return domain.BondingCurve{}, fmt.Errorf("postgres: begin create curve: %w", err)
	}
	defer tx.Rollback(ctx)

	row := tx.QueryRow(ctx, `
		INSERT INTO bonding_curves (
			mint_id, sol_reserves, token_reserves,
			creator_id, royalty_bps, royalty_recipient
		) VALUES ($1, $2, $3, $4, $5, $6)
		RETURNING `+curveSelectCols,
		in.MintID, int64(in.SolReserves), int64(in.TokenReserves),
		in.CreatorID, int64(in.RoyaltyBps), in.RoyaltyRecipient,
	)
	c, err := scanCurve(row)
	if err != nil {
		if isUniqueViolation(err) {
			return domain.BondingCurve{}, fmt.Errorf("postgres: create curve %s: %w", in.MintID, domain.ErrAlreadyExists)
		}
		return domain.BondingCurve{}, fmt.Errorf("postgres: create curve %s: %w", in.MintID, err)
	}

	if in.CreatorAllocation > 0 {
		_, err = tx.Exec(ctx, `
			INSERT INTO vesting_schedules (
				id, mint_id, beneficiary_id, token_amount,
				vesting_start, duration_days, claim_interval_days
			) VALUES ($1, $2, $3, $4, NOW(), $5, $6)`,
			uuid.New().String(), in.MintID, in.CreatorID,
			int64(in.CreatorAllocation), in.VestingDays, in.ClaimIntervalDays,
		)
		if err != nil {
			return domain.BondingCurve{}, fmt.Errorf("postgres: create vesting for %s: %w", in.MintID, err)
		}
	}

	if err := tx.Commit(ctx); err != nil {
		return domain.BondingCurve{}, fmt.Errorf("postgres: commit create curve: %w", err)
	}
	return c, nil
}

// GetByMint returns a single curve row.
func (s *CurveStore) GetByMint(ctx context.Context, mintID string) (domain.BondingCurve, error) {
	row := s.pool.QueryRow(ctx,
		`SELECT `+curveSelectCols+` FROM bonding_curves WHERE mint_id = $1`, mintID)
	c, err := scanCurve(row)
	if errors.Is(err, pgx.ErrNoRows) {
		return domain.BondingCurve{}, domain.ErrNotFound
	}
	if err != nil {
		return domain.BondingCurve{}, fmt.Errorf("postgres: get curve %s: %w", mintID, err)
	}
	return c, nil
}

// List returns curves ordered by cumulative volume.
func (s *CurveStore) List(ctx context.Context, opts domain.ListOpts) ([]domain.BondingCurve, error) {
	query := `SELECT ` + curveSelectCols + ` FROM bonding_curves ORDER BY total_volume DESC`
	args := []any{}
	if opts.Limit > 0 {
		args = append(args, opts.Limit)
		query += fmt.Sprintf(" LIMIT $%d", len(args))
	}
	if opts.Offset > 0 {
		args = append(args, opts.Offset)
		query += fmt.Sprintf(" OFFSET $%d", len(args))
	}

	rows, err := s.pool.Query(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("postgres: list curves: %w", err)
	}
	defer rows.Close()

	var curves []domain.BondingCurve
	for rows.Next() {
		c, err := scanCurve(rows)
		if err != nil {
			return nil, fmt.Errorf("postgres: scan curve: %w", err)
		}
		curves = append(curves, c)
	}
	return curves, rows.Err()
}

// Count returns the number of registered curves.
func (s *CurveStore) Count(ctx context.Context) (int64, error) {
	var n int64
	if err := s.pool.QueryRow(ctx, `SELECT COUNT(*) FROM bonding_curves`).Scan(&n); err != nil {
		return 0, fmt.Errorf("postgres: count curves: %w", err)
	}
	return n, nil
}

// ApplyTrade settles one verified trade. Reserve mutation, trade insertion,
// earnings credit and graduation check commit together or not at all. The
// quote is recomputed from the locked row; whatever the client previewed is
// irrelevant here.
func (s *CurveStore) ApplyTrade(ctx context.Context, req domain.TradeRequest, feeBps uint32) (domain.SettlementResult, error) {
	if req.Amount == 0 {
		return domain.SettlementResult{}, domain.ErrInvalidAmount
	}
	if !req.Side.Valid() {
		return domain.SettlementResult{}, domain.ErrInvalidAmount
	}

	tx, err := s.pool.BeginTx(ctx, pgx.TxOptions{IsoLevel: pgx.ReadCommitted})
	if err != nil {
		return domain.SettlementResult{}, fmt.Errorf("postgres: begin settle: %w", err)
	}
	defer tx.Rollback(ctx)

	row := tx.QueryRow(ctx,
		`SELECT `+curveSelectCols+` FROM bonding_curves WHERE mint_id = $1 FOR UPDATE`,
		req.MintID)
	c, err := scanCurve(row)
	if errors.Is(err, pgx.ErrNoRows) {
		return domain.SettlementResult{}, domain.ErrNotFound
	}
	if err != nil {
		return domain.SettlementResult{}, fmt.Errorf("postgres: lock curve %s: %w", req.MintID, err)
	}

	if c.Graduated {
		return domain.SettlementResult{}, domain.ErrCurveInactive
	}

	var q curve.Quote
	var tokenAmount, solAmount uint64
	switch req.Side {
	case domain.TradeSideBuy:
		q, err = curve.QuoteBuy(req.Amount, c.SolReserves, c.TokenReserves, feeBps)
		tokenAmount, solAmount = q.AmountOut, req.Amount
	case domain.TradeSideSell:
		q, err = curve.QuoteSell(req.Amount, c.SolReserves, c.TokenReserves, feeBps)
		tokenAmount, solAmount = req.Amount, q.AmountOut
	}
	if err != nil {
		return domain.SettlementResult{}, err
	}

	royalty, platform := curve.SplitFee(q.Fee, c.RoyaltyBps)

	newSold := c.TokensSold
	if req.Side == domain.TradeSideBuy {
		var ok bool
		if newSold, ok = addU64(c.TokensSold, tokenAmount); !ok {
			return domain.SettlementResult{}, fmt.Errorf("postgres: tokens sold %s: %w", req.MintID, domain.ErrArithmeticOverflow)
		}
	}
	newVolume, ok := addU64(c.TotalVolume, solAmount)
	if !ok {
		return domain.SettlementResult{}, fmt.Errorf("postgres: total volume %s: %w", req.MintID, domain.ErrArithmeticOverflow)
	}

	graduatedNow := q.NewSolReserves*2 >= s.graduationThreshold && s.graduationThreshold > 0

	// The migration reference is minted here, once, so the external venue
	// migration can be traced back to the settling trade.
	var migrationRef *string
	if graduatedNow {
		ref := uuid.New().String()
		migrationRef = &ref
	}

	tag, err := tx.Exec(ctx, `
		UPDATE bonding_curves SET
			sol_reserves = $2, token_reserves = $3,
			tokens_sold = $4, total_volume = $5,
			graduated = $6, migration_ref = COALESCE($8, migration_ref),
			version = version + 1, updated_at = NOW()
		WHERE mint_id = $1 AND version = $7`,
		req.MintID, int64(q.NewSolReserves), int64(q.NewTokenReserves),
		int64(newSold), int64(newVolume), graduatedNow, c.Version, migrationRef,
	)
	if err != nil {
		return domain.SettlementResult{}, fmt.Errorf("postgres: update reserves %s: %w", req.MintID, err)
	}
	if tag.RowsAffected() == 0 {
		// The row lock should make this unreachable; treat it as a retryable
		// serialization failure rather than corrupting the ledger.
		return domain.SettlementResult{}, fmt.Errorf("postgres: update reserves %s: version moved", req.MintID)
	}

	var trade domain.Trade
	err = tx.QueryRow(ctx, `
		INSERT INTO trades (
			mint_id, trader_id, side, token_amount, sol_amount,
			fee_charged, royalty_paid, external_signature
		) VALUES ($1, $2, $3, $4, $5, $6, $7, $8)
		RETURNING id, created_at`,
		req.MintID, req.TraderID, string(req.Side),
		int64(tokenAmount), int64(solAmount),
		int64(q.Fee), int64(royalty), req.ExternalSignature,
	).Scan(&trade.ID, &trade.CreatedAt)
	if err != nil {
		if isUniqueViolation(err) {
			return domain.SettlementResult{}, domain.ErrDuplicateSignature
		}
		return domain.SettlementResult{}, fmt.Errorf("postgres: insert trade %s: %w", req.ExternalSignature, err)
	}

	if royalty > 0 {
		_, err = tx.Exec(ctx, `
			INSERT INTO creator_earnings (creator_id, total_royalty, trade_count, updated_at)
			VALUES ($1, $2, 1, NOW())
			ON CONFLICT (creator_id) DO UPDATE SET
				total_royalty = creator_earnings.total_royalty + EXCLUDED.total_royalty,
				trade_count = creator_earnings.trade_count + 1,
				updated_at = NOW()`,
			c.CreatorID, int64(royalty),
		)
		if err != nil {
			return domain.SettlementResult{}, fmt.Errorf("postgres: credit royalty %s: %w", c.CreatorID, err)
		}
	}

	if err := tx.Commit(ctx); err != nil {
		return domain.SettlementResult{}, fmt.Errorf("postgres: commit settle %s: %w", req.ExternalSignature, err)
	}

	trade.MintID = req.MintID
	trade.TraderID = req.TraderID
	trade.Side = req.Side
	trade.TokenAmount = tokenAmount
	trade.SolAmount = solAmount
	trade.FeeCharged = q.Fee
	trade.RoyaltyPaid = royalty
	trade.ExternalSignature = req.ExternalSignature

	c.SolReserves = q.NewSolReserves
	c.TokenReserves = q.NewTokenReserves
	c.TokensSold = newSold
	c.TotalVolume = newVolume
	c.Graduated = graduatedNow
	if migrationRef != nil {
		c.MigrationRef = migrationRef
	}
	c.Version++
	c.UpdatedAt = time.Now().UTC()

	return domain.SettlementResult{
		Trade:        trade,
		Curve:        c,
		AmountOut:    q.AmountOut,
		FeeCharged:   q.Fee,
		RoyaltyPaid:  royalty,
		PlatformFee:  platform,
		GraduatedNow: graduatedNow,
	}, nil
}

func isUniqueViolation(err error) bool {
	var pgErr *pgconn.PgError
	return errors.As(err, &pgErr) && pgErr.Code == uniqueViolation
}

// addU64 adds two uint64 values, reporting false on wrap-around.
func addU64(a, b uint64) (uint64, bool) {
	sum, carry := bits.Add64(a, b, 0)
	return sum, carry == 0
}

// Compile-time interface check.
var _ domain.CurveStore = (*CurveStore)(nil)
