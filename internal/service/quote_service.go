package service

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/wavemint/wavemint/internal/curve"
	"github.com/wavemint/wavemint/internal/domain"
)

// QuoteService answers price previews against live reserves. Previews are
// advisory: settlement recomputes every number from the reserves it locks,
// so a quote can go stale the moment another trade lands.
type QuoteService struct {
	curves domain.CurveStore
	prices domain.PriceCache
	feeBps uint32
	logger *slog.Logger
}

// NewQuoteService creates a QuoteService. prices is optional; without it
// spot prices are computed from the curve row on every call.
func NewQuoteService(curves domain.CurveStore, prices domain.PriceCache, feeBps uint32, logger *slog.Logger) *QuoteService {
	return &QuoteService{
		curves: curves,
		prices: prices,
		feeBps: feeBps,
		logger: logger,
	}
}

// Preview is a non-binding trade quote against current reserves.
type Preview struct {
	MintID         string           `json:"mint_id"`
	Side           domain.TradeSide `json:"side"`
	AmountIn       uint64           `json:"amount_in"`
	AmountOut      uint64           `json:"amount_out"`
	Fee            uint64           `json:"fee"`
	SpotPrice      float64          `json:"spot_price"`
	PriceImpactBps uint64           `json:"price_impact_bps"`
	QuotedAt       time.Time        `json:"quoted_at"`
}

// Quote prices a hypothetical trade against the current curve state without
// touching the ledger.
func (s *QuoteService) Quote(ctx context.Context, mintID string, side domain.TradeSide, amount uint64) (Preview, error) {
	if !side.Valid() {
		return Preview{}, fmt.Errorf("quote_service: side %q: %w", side, domain.ErrInvalidAmount)
	}

	c, err := s.curves.GetByMint(ctx, mintID)
	if err != nil {
		return Preview{}, fmt.Errorf("quote_service: curve %q: %w", mintID, err)
	}
	if !c.Active() {
		return Preview{}, fmt.Errorf("quote_service: curve %q: %w", mintID, domain.ErrCurveInactive)
	}

	var q curve.Quote
	switch side {
	case domain.TradeSideBuy:
		q, err = curve.QuoteBuy(amount, c.SolReserves, c.TokenReserves, s.feeBps)
	case domain.TradeSideSell:
		q, err = curve.QuoteSell(amount, c.SolReserves, c.TokenReserves, s.feeBps)
	}
	if err != nil {
		return Preview{}, fmt.Errorf("quote_service: %q %s %d: %w", mintID, side, amount, err)
	}

	return Preview{
		MintID:         mintID,
		Side:           side,
		AmountIn:       amount,
		AmountOut:      q.AmountOut,
		Fee:            q.Fee,
		SpotPrice:      curve.SpotPrice(c.SolReserves, c.TokenReserves),
		PriceImpactBps: q.PriceImpactBps,
		QuotedAt:       time.Now().UTC(),
	}, nil
}

// SpotPrice returns the latest price for a mint, serving from the cache when
// it is warm and falling back to the curve row otherwise.
func (s *QuoteService) SpotPrice(ctx context.Context, mintID string) (float64, time.Time, error) {
	if s.prices != nil {
		price, ts, err := s.prices.GetPrice(ctx, mintID)
		if err == nil {
			return price, ts, nil
		}
		if !errors.Is(err, domain.ErrNotFound) {
			s.logger.WarnContext(ctx, "quote_service: price cache read failed",
				slog.String("mint_id", mintID),
				slog.String("error", err.Error()),
			)
		}
	}

	c, err := s.curves.GetByMint(ctx, mintID)
	if err != nil {
		return 0, time.Time{}, fmt.Errorf("quote_service: curve %q: %w", mintID, err)
	}
	return curve.SpotPrice(c.SolReserves, c.TokenReserves), c.UpdatedAt, nil
}
