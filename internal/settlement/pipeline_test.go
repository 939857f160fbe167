package settlement

import (
	"context"
	"encoding/json"
	"errors"
	"log/slog"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/require"

	"github.com/wavemint/wavemint/internal/domain"
)

// A base58 string of 64 '1' characters decodes to 64 zero bytes, which is a
// well-formed signature for validation purposes.
func testSignature(suffix string) string {
	if suffix == "" {
		return strings.Repeat("1", 64)
	}
	return strings.Repeat("1", 64-len(suffix)) + suffix
}

type fakeCurveStore struct {
	domain.CurveStore

	mu      sync.Mutex
	applied []domain.TradeRequest
	result  domain.SettlementResult
	err     error
}

func (f *fakeCurveStore) ApplyTrade(_ context.Context, req domain.TradeRequest, _ uint32) (domain.SettlementResult, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.err != nil {
		return domain.SettlementResult{}, f.err
	}
	f.applied = append(f.applied, req)
	result := f.result
	result.Trade.MintID = req.MintID
	result.Trade.TraderID = req.TraderID
	result.Trade.Side = req.Side
	result.Trade.ExternalSignature = req.ExternalSignature
	return result, nil
}

func (f *fakeCurveStore) applyCount() int {
	f.mu.Lock()
	defer f.mu.Unlock()
	return len(f.applied)
}

type fakeTradeStore struct {
	domain.TradeStore

	known map[string]domain.Trade
}

func (f *fakeTradeStore) GetBySignature(_ context.Context, signature string) (domain.Trade, error) {
	if trade, ok := f.known[signature]; ok {
		return trade, nil
	}
	return domain.Trade{}, domain.ErrNotFound
}

type fakeVerifier struct {
	proof domain.TransferProof
	err   error
}

func (f *fakeVerifier) Verify(context.Context, string) (domain.TransferProof, error) {
	return f.proof, f.err
}

type fakeBus struct {
	mu        sync.Mutex
	published map[string][][]byte
	err       error
}

func (f *fakeBus) Publish(_ context.Context, channel string, payload []byte) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.err != nil {
		return f.err
	}
	if f.published == nil {
		f.published = make(map[string][][]byte)
	}
	f.published[channel] = append(f.published[channel], payload)
	return nil
}

func (f *fakeBus) Subscribe(context.Context, string) (<-chan domain.Signal, error) {
	return nil, errors.New("not implemented")
}

func (f *fakeBus) topicCount(channel string) int {
	f.mu.Lock()
	defer f.mu.Unlock()
	return len(f.published[channel])
}

func (f *fakeBus) topicMessages(channel string) [][]byte {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.published[channel]
}

type fakeLimiter struct {
	allowed bool
	err     error
}

func (f *fakeLimiter) Allow(context.Context, string, int, time.Duration) (bool, error) {
	return f.allowed, f.err
}

type fakePriceCache struct {
	domain.PriceCache

	mu     sync.Mutex
	prices map[string]float64
}

func (f *fakePriceCache) SetPrice(_ context.Context, mintID string, price float64, _ time.Time) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.prices == nil {
		f.prices = make(map[string]float64)
	}
	f.prices[mintID] = price
	return nil
}

func buyRequest() domain.TradeRequest {
	return domain.TradeRequest{
		MintID:            "mint-a",
		TraderID:          "trader-1",
		Side:              domain.TradeSideBuy,
		Amount:            1_000_000_000,
		ExternalSignature: testSignature(""),
	}
}

func newTestPipeline(curves *fakeCurveStore, trades *fakeTradeStore, verifier domain.TransferVerifier) *Pipeline {
	return New(curves, trades, verifier, Config{FeeBps: 100}, slog.New(slog.DiscardHandler))
}

func TestSettle_RecordsAndFansOut(t *testing.T) {
	curves := &fakeCurveStore{
		result: domain.SettlementResult{
			Curve: domain.BondingCurve{
				MintID:        "mint-a",
				SolReserves:   26_000_000_000,
				TokenReserves: 913_500_000_000_000_000,
			},
			AmountOut:  36_500_000_000_000_000,
			FeeCharged: 10_000_000,
		},
	}
	trades := &fakeTradeStore{}
	bus := &fakeBus{}
	prices := &fakePriceCache{}

	p := newTestPipeline(curves, trades, &fakeVerifier{
		proof: domain.TransferProof{Confirmed: true, Amount: 1_000_000_000},
	}).WithSignalBus(bus).WithPriceCache(prices)

	result, err := p.Settle(context.Background(), buyRequest())
	require.NoError(t, err)
	require.Equal(t, uint64(36_500_000_000_000_000), result.AmountOut)
	require.Equal(t, 1, curves.applyCount())

	require.Equal(t, 1, bus.topicCount(domain.MintTopic("mint-a")))
	require.Equal(t, 1, bus.topicCount(domain.WalletTopic("trader-1")))

	prices.mu.Lock()
	defer prices.mu.Unlock()
	require.Contains(t, prices.prices, "mint-a")
	require.Greater(t, prices.prices["mint-a"], 0.0)
}

func TestSettle_DuplicatePreCheck(t *testing.T) {
	sig := testSignature("")
	curves := &fakeCurveStore{}
	trades := &fakeTradeStore{known: map[string]domain.Trade{
		sig: {ID: 7, ExternalSignature: sig},
	}}

	p := newTestPipeline(curves, trades, &fakeVerifier{
		proof: domain.TransferProof{Confirmed: true, Amount: 1_000_000_000},
	})

	_, err := p.Settle(context.Background(), buyRequest())
	require.ErrorIs(t, err, domain.ErrDuplicateSignature)
	require.Zero(t, curves.applyCount())
}

func TestSettle_UnconfirmedTransfer(t *testing.T) {
	curves := &fakeCurveStore{}
	p := newTestPipeline(curves, &fakeTradeStore{}, &fakeVerifier{})

	_, err := p.Settle(context.Background(), buyRequest())
	require.ErrorIs(t, err, domain.ErrVerificationFailed)
	require.Zero(t, curves.applyCount())
}

func TestSettle_UnderfundedBuy(t *testing.T) {
	curves := &fakeCurveStore{}
	p := newTestPipeline(curves, &fakeTradeStore{}, &fakeVerifier{
		proof: domain.TransferProof{Confirmed: true, Amount: 999_999_999},
	})

	_, err := p.Settle(context.Background(), buyRequest())
	require.ErrorIs(t, err, domain.ErrInsufficientBalance)
	require.Zero(t, curves.applyCount())
}

func TestSettle_SellSkipsAmountCheck(t *testing.T) {
	curves := &fakeCurveStore{
		result: domain.SettlementResult{
			Curve: domain.BondingCurve{
				MintID:        "mint-a",
				SolReserves:   24_000_000_000,
				TokenReserves: 990_000_000_000_000_000,
			},
			AmountOut: 900_000_000,
		},
	}
	p := newTestPipeline(curves, &fakeTradeStore{}, &fakeVerifier{
		proof: domain.TransferProof{Confirmed: true},
	})

	req := buyRequest()
	req.Side = domain.TradeSideSell
	req.Amount = 36_000_000_000_000_000

	result, err := p.Settle(context.Background(), req)
	require.NoError(t, err)
	require.Equal(t, uint64(900_000_000), result.AmountOut)
}

func TestSettle_RateLimited(t *testing.T) {
	curves := &fakeCurveStore{}
	p := newTestPipeline(curves, &fakeTradeStore{}, &fakeVerifier{
		proof: domain.TransferProof{Confirmed: true, Amount: 1_000_000_000},
	}).WithRateLimiter(&fakeLimiter{allowed: false})

	_, err := p.Settle(context.Background(), buyRequest())
	require.ErrorIs(t, err, domain.ErrRateLimited)
	require.Zero(t, curves.applyCount())
}

func TestSettle_LimiterOutageDoesNotBlock(t *testing.T) {
	curves := &fakeCurveStore{}
	p := newTestPipeline(curves, &fakeTradeStore{}, &fakeVerifier{
		proof: domain.TransferProof{Confirmed: true, Amount: 1_000_000_000},
	}).WithRateLimiter(&fakeLimiter{err: errors.New("redis down")})

	_, err := p.Settle(context.Background(), buyRequest())
	require.NoError(t, err)
	require.Equal(t, 1, curves.applyCount())
}

func TestSettle_PublishFailureIsSwallowed(t *testing.T) {
	curves := &fakeCurveStore{
		result: domain.SettlementResult{
			Curve: domain.BondingCurve{SolReserves: 1, TokenReserves: 1},
		},
	}
	p := newTestPipeline(curves, &fakeTradeStore{}, &fakeVerifier{
		proof: domain.TransferProof{Confirmed: true, Amount: 1_000_000_000},
	}).WithSignalBus(&fakeBus{err: errors.New("bus down")})

	_, err := p.Settle(context.Background(), buyRequest())
	require.NoError(t, err)
}

func TestSettle_ValidationRejections(t *testing.T) {
	p := newTestPipeline(&fakeCurveStore{}, &fakeTradeStore{}, &fakeVerifier{})

	cases := []struct {
		name   string
		mutate func(*domain.TradeRequest)
		want   error
	}{
		{"missing mint", func(r *domain.TradeRequest) { r.MintID = "" }, domain.ErrInvalidAmount},
		{"missing trader", func(r *domain.TradeRequest) { r.TraderID = "" }, domain.ErrInvalidAmount},
		{"bad side", func(r *domain.TradeRequest) { r.Side = "hold" }, domain.ErrInvalidAmount},
		{"zero amount", func(r *domain.TradeRequest) { r.Amount = 0 }, domain.ErrInvalidAmount},
		{"empty signature", func(r *domain.TradeRequest) { r.ExternalSignature = "" }, domain.ErrVerificationFailed},
		{"short signature", func(r *domain.TradeRequest) { r.ExternalSignature = "3yZe7d" }, domain.ErrVerificationFailed},
		{"non base58", func(r *domain.TradeRequest) { r.ExternalSignature = strings.Repeat("0", 64) }, domain.ErrVerificationFailed},
	}

	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			req := buyRequest()
			tc.mutate(&req)
			_, err := p.Settle(context.Background(), req)
			require.ErrorIs(t, err, tc.want)
		})
	}
}

func TestSettle_GraduationEvent(t *testing.T) {
	migrationRef := "4f8a1f6e-22e5-4b1c-8d42-9a7bd9c0f3aa"
	curves := &fakeCurveStore{
		result: domain.SettlementResult{
			Curve: domain.BondingCurve{
				MintID:        "mint-a",
				SolReserves:   86_000_000_000,
				TokenReserves: 280_000_000_000_000_000,
				Graduated:     true,
				MigrationRef:  &migrationRef,
			},
			GraduatedNow: true,
		},
	}
	bus := &fakeBus{}
	p := newTestPipeline(curves, &fakeTradeStore{}, &fakeVerifier{
		proof: domain.TransferProof{Confirmed: true, Amount: 1_000_000_000},
	}).WithSignalBus(bus)

	_, err := p.Settle(context.Background(), buyRequest())
	require.NoError(t, err)

	// One trade event plus one graduation event on the mint topic.
	msgs := bus.topicMessages(domain.MintTopic("mint-a"))
	require.Len(t, msgs, 2)

	var event struct {
		Type         string  `json:"type"`
		MigrationRef *string `json:"migration_ref"`
	}
	require.NoError(t, json.Unmarshal(msgs[1], &event))
	require.Equal(t, "graduated", event.Type)
	require.NotNil(t, event.MigrationRef)
	require.Equal(t, migrationRef, *event.MigrationRef)
}
