// Package settlement drives a trade from submission to its recorded ledger
// entry. Requests move through Received, Verifying, Settling and Recorded;
// every rejection maps to a sentinel error so handlers can classify it.
package settlement

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/mr-tron/base58"

	"github.com/wavemint/wavemint/internal/curve"
	"github.com/wavemint/wavemint/internal/domain"
)

// Stage labels the pipeline step a request is in. It appears in logs and
// fan-out events, never in the ledger itself.
type Stage string

const (
	StageReceived  Stage = "received"
	StageVerifying Stage = "verifying"
	StageSettling  Stage = "settling"
	StageRecorded  Stage = "recorded"
)

const (
	signatureByteLen = 64

	defaultVerifyTimeout = 15 * time.Second
	defaultTraderLimit   = 30
	defaultTraderWindow  = time.Minute
	publishTimeout       = 2 * time.Second
	maxSignatureLength   = 96
	maxIdentifierLength  = 64
)

// Config tunes the pipeline.
type Config struct {
	FeeBps        uint32
	VerifyTimeout time.Duration
	TraderLimit   int
	TraderWindow  time.Duration
}

// Pipeline settles trades. The ledger write is the only step with side
// effects that must not repeat; everything after it is best-effort.
type Pipeline struct {
	curves   domain.CurveStore
	trades   domain.TradeStore
	verifier domain.TransferVerifier
	prices   domain.PriceCache
	bus      domain.SignalBus
	limiter  domain.RateLimiter
	cfg      Config
	logger   *slog.Logger
}

// New creates a Pipeline with all required collaborators. prices, bus and
// limiter are optional; a nil value disables that step.
func New(
	curves domain.CurveStore,
	trades domain.TradeStore,
	verifier domain.TransferVerifier,
	cfg Config,
	logger *slog.Logger,
) *Pipeline {
	if cfg.VerifyTimeout <= 0 {
		cfg.VerifyTimeout = defaultVerifyTimeout
	}
	if cfg.TraderLimit <= 0 {
		cfg.TraderLimit = defaultTraderLimit
	}
	if cfg.TraderWindow <= 0 {
		cfg.TraderWindow = defaultTraderWindow
	}
	return &Pipeline{
		curves:   curves,
		trades:   trades,
		verifier: verifier,
		cfg:      cfg,
		logger:   logger,
	}
}

// WithPriceCache attaches a price cache refreshed after every settlement.
func (p *Pipeline) WithPriceCache(prices domain.PriceCache) *Pipeline {
	p.prices = prices
	return p
}

// WithSignalBus attaches a fan-out bus for trade and graduation events.
func (p *Pipeline) WithSignalBus(bus domain.SignalBus) *Pipeline {
	p.bus = bus
	return p
}

// WithRateLimiter attaches a per-trader submission limiter.
func (p *Pipeline) WithRateLimiter(limiter domain.RateLimiter) *Pipeline {
	p.limiter = limiter
	return p
}

// TradeEvent is the fan-out payload published on the mint and wallet topics
// after a settlement is recorded.
type TradeEvent struct {
	Stage        Stage            `json:"stage"`
	MintID       string           `json:"mint_id"`
	TraderID     string           `json:"trader_id"`
	Side         domain.TradeSide `json:"side"`
	TokenAmount  uint64           `json:"token_amount"`
	SolAmount    uint64           `json:"sol_amount"`
	FeeCharged   uint64           `json:"fee_charged"`
	SpotPrice    float64          `json:"spot_price"`
	GraduatedNow bool             `json:"graduated_now,omitempty"`
	Signature    string           `json:"signature"`
	SettledAt    time.Time        `json:"settled_at"`
}

// Settle runs one trade request through the full pipeline and returns the
// recorded result. A request that was already settled under the same
// external signature fails with ErrDuplicateSignature and leaves the ledger
// untouched.
func (p *Pipeline) Settle(ctx context.Context, req domain.TradeRequest) (domain.SettlementResult, error) {
	if err := validateRequest(req); err != nil {
		return domain.SettlementResult{}, err
	}

	p.logger.InfoContext(ctx, "settlement: request received",
		slog.String("stage", string(StageReceived)),
		slog.String("mint_id", req.MintID),
		slog.String("trader_id", req.TraderID),
		slog.String("side", string(req.Side)),
		slog.Uint64("amount", req.Amount),
	)

	if p.limiter != nil {
		allowed, err := p.limiter.Allow(ctx, "trade:"+req.TraderID, p.cfg.TraderLimit, p.cfg.TraderWindow)
		if err != nil {
			// Limiter outages must not halt settlement.
			p.logger.WarnContext(ctx, "settlement: rate limiter unavailable",
				slog.String("trader_id", req.TraderID),
				slog.String("error", err.Error()),
			)
		} else if !allowed {
			return domain.SettlementResult{}, fmt.Errorf("settlement: trader %s: %w", req.TraderID, domain.ErrRateLimited)
		}
	}

	// Cheap duplicate pre-check. The unique index inside ApplyTrade remains
	// the authoritative guard against concurrent duplicates.
	if _, err := p.trades.GetBySignature(ctx, req.ExternalSignature); err == nil {
		return domain.SettlementResult{}, domain.ErrDuplicateSignature
	} else if !errors.Is(err, domain.ErrNotFound) {
		return domain.SettlementResult{}, fmt.Errorf("settlement: duplicate check: %w", err)
	}

	if err := p.verify(ctx, req); err != nil {
		return domain.SettlementResult{}, err
	}

	p.logger.DebugContext(ctx, "settlement: applying trade",
		slog.String("stage", string(StageSettling)),
		slog.String("mint_id", req.MintID),
		slog.String("signature", req.ExternalSignature),
	)

	result, err := p.curves.ApplyTrade(ctx, req, p.cfg.FeeBps)
	if err != nil {
		return domain.SettlementResult{}, err
	}

	p.logger.InfoContext(ctx, "settlement: recorded",
		slog.String("stage", string(StageRecorded)),
		slog.String("mint_id", req.MintID),
		slog.String("trader_id", req.TraderID),
		slog.Int64("trade_id", result.Trade.ID),
		slog.Uint64("amount_out", result.AmountOut),
		slog.Uint64("fee", result.FeeCharged),
		slog.Bool("graduated_now", result.GraduatedNow),
	)

	p.afterSettle(ctx, result)
	return result, nil
}

// verify confirms the external transfer under a bounded timeout. A buy must
// have deposited lamports into the custodial wallet, a sell must have
// deposited clip tokens into its token account; the lamport amount check
// applies to buys only because a sell's payout is quoted from the ledger.
func (p *Pipeline) verify(ctx context.Context, req domain.TradeRequest) error {
	p.logger.DebugContext(ctx, "settlement: verifying transfer",
		slog.String("stage", string(StageVerifying)),
		slog.String("signature", req.ExternalSignature),
	)

	vctx, cancel := context.WithTimeout(ctx, p.cfg.VerifyTimeout)
	defer cancel()

	proof, err := p.verifier.Verify(vctx, req.ExternalSignature)
	if err != nil {
		return fmt.Errorf("settlement: %w: %s", domain.ErrVerificationFailed, err)
	}
	if !proof.Confirmed {
		return domain.ErrVerificationFailed
	}
	if req.Side == domain.TradeSideBuy && proof.Amount < req.Amount {
		return fmt.Errorf("settlement: transfer moved %d of %d: %w",
			proof.Amount, req.Amount, domain.ErrInsufficientBalance)
	}
	return nil
}

// afterSettle refreshes the price cache and fans out trade events. Failures
// here are logged and swallowed; the ledger entry already exists.
func (p *Pipeline) afterSettle(ctx context.Context, result domain.SettlementResult) {
	spot := curve.SpotPrice(result.Curve.SolReserves, result.Curve.TokenReserves)

	pctx, cancel := context.WithTimeout(context.WithoutCancel(ctx), publishTimeout)
	defer cancel()

	if p.prices != nil {
		if err := p.prices.SetPrice(pctx, result.Curve.MintID, spot, result.Trade.CreatedAt); err != nil {
			p.logger.WarnContext(ctx, "settlement: price cache update failed",
				slog.String("mint_id", result.Curve.MintID),
				slog.String("error", err.Error()),
			)
		}
	}

	if p.bus == nil {
		return
	}

	event := TradeEvent{
		Stage:        StageRecorded,
		MintID:       result.Trade.MintID,
		TraderID:     result.Trade.TraderID,
		Side:         result.Trade.Side,
		TokenAmount:  result.Trade.TokenAmount,
		SolAmount:    result.Trade.SolAmount,
		FeeCharged:   result.FeeCharged,
		SpotPrice:    spot,
		GraduatedNow: result.GraduatedNow,
		Signature:    result.Trade.ExternalSignature,
		SettledAt:    result.Trade.CreatedAt,
	}
	payload, err := json.Marshal(event)
	if err != nil {
		p.logger.WarnContext(ctx, "settlement: marshal trade event",
			slog.String("error", err.Error()),
		)
		return
	}

	for _, topic := range []string{
		domain.MintTopic(result.Trade.MintID),
		domain.WalletTopic(result.Trade.TraderID),
	} {
		if err := p.bus.Publish(pctx, topic, payload); err != nil {
			p.logger.WarnContext(ctx, "settlement: publish failed",
				slog.String("topic", topic),
				slog.String("error", err.Error()),
			)
		}
	}

	if result.GraduatedNow {
		p.publishGraduation(ctx, pctx, result.Curve)
	}
}

func (p *Pipeline) publishGraduation(ctx, pctx context.Context, c domain.BondingCurve) {
	payload, err := json.Marshal(map[string]any{
		"type":           "graduated",
		"mint_id":        c.MintID,
		"sol_reserves":   c.SolReserves,
		"token_reserves": c.TokenReserves,
		"migration_ref":  c.MigrationRef,
	})
	if err != nil {
		return
	}
	if err := p.bus.Publish(pctx, domain.MintTopic(c.MintID), payload); err != nil {
		p.logger.WarnContext(ctx, "settlement: graduation publish failed",
			slog.String("mint_id", c.MintID),
			slog.String("error", err.Error()),
		)
	}
	p.logger.InfoContext(ctx, "settlement: curve graduated",
		slog.String("mint_id", c.MintID),
		slog.Uint64("sol_reserves", c.SolReserves),
	)
}

// validateRequest rejects malformed submissions before any I/O happens.
func validateRequest(req domain.TradeRequest) error {
	if req.MintID == "" || len(req.MintID) > maxIdentifierLength {
		return fmt.Errorf("settlement: mint id: %w", domain.ErrInvalidAmount)
	}
	if req.TraderID == "" || len(req.TraderID) > maxIdentifierLength {
		return fmt.Errorf("settlement: trader id: %w", domain.ErrInvalidAmount)
	}
	if !req.Side.Valid() {
		return fmt.Errorf("settlement: side %q: %w", req.Side, domain.ErrInvalidAmount)
	}
	if req.Amount == 0 {
		return domain.ErrInvalidAmount
	}
	if req.ExternalSignature == "" || len(req.ExternalSignature) > maxSignatureLength {
		return fmt.Errorf("settlement: signature: %w", domain.ErrVerificationFailed)
	}
	raw, err := base58.Decode(req.ExternalSignature)
	if err != nil || len(raw) != signatureByteLen {
		return fmt.Errorf("settlement: signature encoding: %w", domain.ErrVerificationFailed)
	}
	return nil
}
