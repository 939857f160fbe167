package service

import (
	"context"
	"log/slog"
	"testing"
	"time"

	"github.com/stretchr/testify/require"

	"github.com/wavemint/wavemint/internal/domain"
)

type fakeCurveReader struct {
	domain.CurveStore

	curves map[string]domain.BondingCurve
}

func (f *fakeCurveReader) GetByMint(_ context.Context, mintID string) (domain.BondingCurve, error) {
	c, ok := f.curves[mintID]
	if !ok {
		return domain.BondingCurve{}, domain.ErrNotFound
	}
	return c, nil
}

type staticPriceCache struct {
	domain.PriceCache

	prices map[string]float64
	ts     time.Time
}

func (f *staticPriceCache) GetPrice(_ context.Context, mintID string) (float64, time.Time, error) {
	price, ok := f.prices[mintID]
	if !ok {
		return 0, time.Time{}, domain.ErrNotFound
	}
	return price, f.ts, nil
}

func launchCurve() domain.BondingCurve {
	return domain.BondingCurve{
		MintID:        "mint-a",
		SolReserves:   25_000_000_000,
		TokenReserves: 950_000_000_000_000_000,
		UpdatedAt:     time.Now(),
	}
}

func TestQuote_Buy(t *testing.T) {
	curves := &fakeCurveReader{curves: map[string]domain.BondingCurve{"mint-a": launchCurve()}}
	svc := NewQuoteService(curves, nil, 100, slog.New(slog.DiscardHandler))

	preview, err := svc.Quote(context.Background(), "mint-a", domain.TradeSideBuy, 1_000_000_000)
	require.NoError(t, err)
	require.Equal(t, uint64(10_000_000), preview.Fee)
	require.NotZero(t, preview.AmountOut)
	require.NotZero(t, preview.PriceImpactBps)
	require.Greater(t, preview.SpotPrice, 0.0)
}

func TestQuote_SellProceedsBelowBuyCost(t *testing.T) {
	curves := &fakeCurveReader{curves: map[string]domain.BondingCurve{"mint-a": launchCurve()}}
	svc := NewQuoteService(curves, nil, 100, slog.New(slog.DiscardHandler))

	buy, err := svc.Quote(context.Background(), "mint-a", domain.TradeSideBuy, 1_000_000_000)
	require.NoError(t, err)

	// Selling the quoted tokens against unchanged reserves returns less than
	// was paid in: the fee is charged on both legs.
	sell, err := svc.Quote(context.Background(), "mint-a", domain.TradeSideSell, buy.AmountOut)
	require.NoError(t, err)
	require.Less(t, sell.AmountOut, uint64(1_000_000_000))
}

func TestQuote_GraduatedCurve(t *testing.T) {
	c := launchCurve()
	c.Graduated = true
	curves := &fakeCurveReader{curves: map[string]domain.BondingCurve{"mint-a": c}}
	svc := NewQuoteService(curves, nil, 100, slog.New(slog.DiscardHandler))

	_, err := svc.Quote(context.Background(), "mint-a", domain.TradeSideBuy, 1_000_000_000)
	require.ErrorIs(t, err, domain.ErrCurveInactive)
}

func TestQuote_UnknownMint(t *testing.T) {
	svc := NewQuoteService(&fakeCurveReader{}, nil, 100, slog.New(slog.DiscardHandler))

	_, err := svc.Quote(context.Background(), "missing", domain.TradeSideBuy, 1)
	require.ErrorIs(t, err, domain.ErrNotFound)
}

func TestSpotPrice_PrefersCache(t *testing.T) {
	curves := &fakeCurveReader{curves: map[string]domain.BondingCurve{"mint-a": launchCurve()}}
	cached := time.Now().Add(-time.Second)
	prices := &staticPriceCache{prices: map[string]float64{"mint-a": 0.042}, ts: cached}

	svc := NewQuoteService(curves, prices, 100, slog.New(slog.DiscardHandler))
	price, ts, err := svc.SpotPrice(context.Background(), "mint-a")
	require.NoError(t, err)
	require.Equal(t, 0.042, price)
	require.Equal(t, cached, ts)
}

func TestSpotPrice_FallsBackToReserves(t *testing.T) {
	curves := &fakeCurveReader{curves: map[string]domain.BondingCurve{"mint-a": launchCurve()}}
	svc := NewQuoteService(curves, &staticPriceCache{}, 100, slog.New(slog.DiscardHandler))

	price, _, err := svc.SpotPrice(context.Background(), "mint-a")
	require.NoError(t, err)
	require.Greater(t, price, 0.0)
}
