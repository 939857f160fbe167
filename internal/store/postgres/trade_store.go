package postgres

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/wavemint/wavemint/internal/domain"
)

// TradeStore implements domain.TradeStore using PostgreSQL. It is read-only:
// rows are inserted exclusively by CurveStore.ApplyTrade so the ledger and
// the trade log can never diverge.
type TradeStore struct {
	pool *pgxpool.Pool
}

// NewTradeStore creates a TradeStore backed by the given connection pool.
func NewTradeStore(pool *pgxpool.Pool) *TradeStore {
	return &TradeStore{pool: pool}
}

const tradeSelectCols = `id, mint_id, trader_id, side, token_amount,
	sol_amount, fee_charged, royalty_paid, external_signature, created_at`

func scanTrade(row pgx.Row) (domain.Trade, error) {
	var t domain.Trade
	var side string
	var tokenAmt, solAmt, fee, royalty int64
	err := row.Scan(
		&t.ID, &t.MintID, &t.TraderID, &side,
		&tokenAmt, &solAmt, &fee, &royalty,
		&t.ExternalSignature, &t.CreatedAt,
	)
	if err != nil {
		return domain.Trade{}, err
	}
	t.Side = domain.TradeSide(side)
	t.TokenAmount = uint64(tokenAmt)
	t.SolAmount = uint64(solAmt)
	t.FeeCharged = uint64(fee)
	t.RoyaltyPaid = uint64(royalty)
	return t, nil
}

func scanTradeRows(rows pgx.Rows) ([]domain.Trade, error) {
	var trades []domain.Trade
	for rows.Next() {
		t, err := scanTrade(rows)
		if err != nil {
			return nil, err
		}
		trades = append(trades, t)
	}
	return trades, rows.Err()
}

// GetBySignature returns the trade settled under the given external
// signature, or domain.ErrNotFound.
func (s *TradeStore) GetBySignature(ctx context.Context, signature string) (domain.Trade, error) {
	row := s.pool.QueryRow(ctx,
		`SELECT `+tradeSelectCols+` FROM trades WHERE external_signature = $1`, signature)
	t, err := scanTrade(row)
	if errors.Is(err, pgx.ErrNoRows) {
		return domain.Trade{}, domain.ErrNotFound
	}
	if err != nil {
		return domain.Trade{}, fmt.Errorf("postgres: get trade by signature: %w", err)
	}
	return t, nil
}

// ListByMint returns trades for one mint with pagination and optional time
// filtering, newest first.
func (s *TradeStore) ListByMint(ctx context.Context, mintID string, opts domain.ListOpts) ([]domain.Trade, error) {
	query := `SELECT ` + tradeSelectCols + ` FROM trades WHERE mint_id = $1`
	args := []any{mintID}

	if opts.Since != nil {
		args = append(args, *opts.Since)
		query += fmt.Sprintf(" AND created_at >= $%d", len(args))
	}
	if opts.Until != nil {
		args = append(args, *opts.Until)
		query += fmt.Sprintf(" AND created_at <= $%d", len(args))
	}

	query += " ORDER BY created_at DESC"

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
		return nil, fmt.Errorf("postgres: list trades by mint: %w", err)
	}
	defer rows.Close()

	trades, err := scanTradeRows(rows)
	if err != nil {
		return nil, fmt.Errorf("postgres: scan trades by mint: %w", err)
	}
	return trades, nil
}

// ListByTrader returns a trader's settlement history, newest first.
func (s *TradeStore) ListByTrader(ctx context.Context, traderID string, opts domain.ListOpts) ([]domain.Trade, error) {
	query := `SELECT ` + tradeSelectCols + ` FROM trades WHERE trader_id = $1 ORDER BY created_at DESC`
	args := []any{traderID}

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
		return nil, fmt.Errorf("postgres: list trades by trader: %w", err)
	}
	defer rows.Close()

	trades, err := scanTradeRows(rows)
	if err != nil {
		return nil, fmt.Errorf("postgres: scan trades by trader: %w", err)
	}
	return trades, nil
}

// ListBetween returns all trades in [since, until), oldest first. Used by the
// ledger snapshot exporter.
func (s *TradeStore) ListBetween(ctx context.Context, since, until time.Time) ([]domain.Trade, error) {
	rows, err := s.pool.Query(ctx,
		`SELECT `+tradeSelectCols+` FROM trades
		 WHERE created_at >= $1 AND created_at < $2
		 ORDER BY created_at ASC`,
		since, until,
	)
	if err != nil {
		return nil, fmt.Errorf("postgres: list trades between: %w", err)
	}
	defer rows.Close()
	return scanTradeRows(rows)
}

// Compile-time interface check.
var _ domain.TradeStore = (*TradeStore)(nil)
