package service

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"

	"github.com/wavemint/wavemint/internal/curve"
	"github.com/wavemint/wavemint/internal/domain"
)

// CurveService handles mint registration, curve reads and creator earnings.
type CurveService struct {
	curves   domain.CurveStore
	trades   domain.TradeStore
	earnings domain.EarningsStore
	prices   domain.PriceCache
	bus      domain.SignalBus
	logger   *slog.Logger
}

// NewCurveService creates a CurveService. prices and bus are optional.
func NewCurveService(
	curves domain.CurveStore,
	trades domain.TradeStore,
	earnings domain.EarningsStore,
	prices domain.PriceCache,
	bus domain.SignalBus,
	logger *slog.Logger,
) *CurveService {
	return &CurveService{
		curves:   curves,
		trades:   trades,
		earnings: earnings,
		prices:   prices,
		bus:      bus,
		logger:   logger,
	}
}

const maxRoyaltyBps = 5_000

// Register creates a new curve for a freshly minted clip, plus its creator
// vesting schedule when the registration carries an allocation.
func (s *CurveService) Register(ctx context.Context, in domain.CurveCreate) (domain.BondingCurve, error) {
	if in.MintID == "" || in.CreatorID == "" {
		return domain.BondingCurve{}, fmt.Errorf("curve_service: missing identifiers: %w", domain.ErrInvalidAmount)
	}
	if in.SolReserves == 0 || in.TokenReserves == 0 {
		return domain.BondingCurve{}, fmt.Errorf("curve_service: empty reserves: %w", domain.ErrInvalidAmount)
	}
	if in.RoyaltyBps > maxRoyaltyBps {
		return domain.BondingCurve{}, fmt.Errorf("curve_service: royalty %d bps: %w", in.RoyaltyBps, domain.ErrInvalidAmount)
	}
	if in.CreatorAllocation > 0 && in.VestingDays <= 0 {
		return domain.BondingCurve{}, fmt.Errorf("curve_service: allocation without vesting duration: %w", domain.ErrInvalidAmount)
	}
	if in.RoyaltyRecipient == "" {
		in.RoyaltyRecipient = in.CreatorID
	}

	c, err := s.curves.Create(ctx, in)
	if err != nil {
		return domain.BondingCurve{}, fmt.Errorf("curve_service: register %q: %w", in.MintID, err)
	}

	s.logger.InfoContext(ctx, "curve_service: curve registered",
		slog.String("mint_id", c.MintID),
		slog.String("creator_id", c.CreatorID),
		slog.Uint64("sol_reserves", c.SolReserves),
		slog.Uint64("token_reserves", c.TokenReserves),
		slog.Uint64("creator_allocation", in.CreatorAllocation),
	)

	if s.bus != nil {
		evt, _ := json.Marshal(map[string]any{
			"type":       "curve_registered",
			"mint_id":    c.MintID,
			"creator_id": c.CreatorID,
			"spot_price": curve.SpotPrice(c.SolReserves, c.TokenReserves),
		})
		if pubErr := s.bus.Publish(ctx, domain.MintTopic(c.MintID), evt); pubErr != nil {
			s.logger.WarnContext(ctx, "curve_service: publish registration failed",
				slog.String("mint_id", c.MintID),
				slog.String("error", pubErr.Error()),
			)
		}
	}

	return c, nil
}

// Get returns a single curve by mint id.
func (s *CurveService) Get(ctx context.Context, mintID string) (domain.BondingCurve, error) {
	c, err := s.curves.GetByMint(ctx, mintID)
	if err != nil {
		return domain.BondingCurve{}, fmt.Errorf("curve_service: get %q: %w", mintID, err)
	}
	return c, nil
}

// CurveSummary pairs a curve with its latest spot price for listings.
type CurveSummary struct {
	Curve     domain.BondingCurve `json:"curve"`
	SpotPrice float64             `json:"spot_price"`
}

// List returns curves with spot prices, batching cache lookups and falling
// back to reserve-derived prices for cold entries.
func (s *CurveService) List(ctx context.Context, opts domain.ListOpts) ([]CurveSummary, error) {
	curves, err := s.curves.List(ctx, opts)
	if err != nil {
		return nil, fmt.Errorf("curve_service: list: %w", err)
	}

	var cached map[string]float64
	if s.prices != nil && len(curves) > 0 {
		ids := make([]string, len(curves))
		for i, c := range curves {
			ids[i] = c.MintID
		}
		cached, err = s.prices.GetPrices(ctx, ids)
		if err != nil {
			s.logger.WarnContext(ctx, "curve_service: batch price lookup failed",
				slog.String("error", err.Error()),
			)
		}
	}

	out := make([]CurveSummary, len(curves))
	for i, c := range curves {
		price, ok := cached[c.MintID]
		if !ok {
			price = curve.SpotPrice(c.SolReserves, c.TokenReserves)
		}
		out[i] = CurveSummary{Curve: c, SpotPrice: price}
	}
	return out, nil
}

// Count returns the number of registered curves.
func (s *CurveService) Count(ctx context.Context) (int64, error) {
	n, err := s.curves.Count(ctx)
	if err != nil {
		return 0, fmt.Errorf("curve_service: count: %w", err)
	}
	return n, nil
}

// Trades returns the trade history for a mint, newest first.
func (s *CurveService) Trades(ctx context.Context, mintID string, opts domain.ListOpts) ([]domain.Trade, error) {
	trades, err := s.trades.ListByMint(ctx, mintID, opts)
	if err != nil {
		return nil, fmt.Errorf("curve_service: trades for %q: %w", mintID, err)
	}
	return trades, nil
}

// Earnings returns the cumulative royalty counters for a creator. A creator
// with no settled trades gets a zero-valued record, not an error.
func (s *CurveService) Earnings(ctx context.Context, creatorID string) (domain.CreatorEarnings, error) {
	e, err := s.earnings.GetByCreator(ctx, creatorID)
	if err != nil {
		return domain.CreatorEarnings{}, fmt.Errorf("curve_service: earnings for %q: %w", creatorID, err)
	}
	return e, nil
}

// TraderHistory returns one wallet's trades across all mints, newest first.
func (s *CurveService) TraderHistory(ctx context.Context, traderID string, opts domain.ListOpts) ([]domain.Trade, error) {
	trades, err := s.trades.ListByTrader(ctx, traderID, opts)
	if err != nil {
		return nil, fmt.Errorf("curve_service: history for %q: %w", traderID, err)
	}
	return trades, nil
}
