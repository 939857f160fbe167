package handler

import (
	"context"
	"encoding/json"
	"log/slog"
	"net/http"

	"github.com/wavemint/wavemint/internal/domain"
)

// SettlementService defines what the trade handler needs from the pipeline.
type SettlementService interface {
	Settle(ctx context.Context, req domain.TradeRequest) (domain.SettlementResult, error)
}

// TradeHistoryService reads the trade ledger for wallet-scoped queries.
type TradeHistoryService interface {
	TraderHistory(ctx context.Context, traderID string, opts domain.ListOpts) ([]domain.Trade, error)
}

// TradeHandler serves trade submission and wallet history endpoints.
type TradeHandler struct {
	settlement SettlementService
	history    TradeHistoryService
	logger     *slog.Logger
}

// NewTradeHandler creates a TradeHandler with the given dependencies.
func NewTradeHandler(settlement SettlementService, history TradeHistoryService, logger *slog.Logger) *TradeHandler {
	return &TradeHandler{
		settlement: settlement,
		history:    history,
		logger:     logger,
	}
}

// submitTradeRequest is the JSON body for trade submission. Amount is a
// decimal base-unit string: lamports for buys, token units for sells.
type submitTradeRequest struct {
	MintID            string `json:"mint_id"`
	TraderID          string `json:"trader_id"`
	Side              string `json:"side"`
	Amount            string `json:"amount"`
	ExternalSignature string `json:"external_signature"`
}

// settlementResponse is the recorded outcome returned to the client.
type settlementResponse struct {
	Trade        domain.Trade `json:"trade"`
	AmountOut    uint64       `json:"amount_out"`
	FeeCharged   uint64       `json:"fee_charged"`
	RoyaltyPaid  uint64       `json:"royalty_paid"`
	PlatformFee  uint64       `json:"platform_fee"`
	SpotAfter    spotAfter    `json:"reserves_after"`
	GraduatedNow bool         `json:"graduated_now"`
}

type spotAfter struct {
	SolReserves   uint64 `json:"sol_reserves"`
	TokenReserves uint64 `json:"token_reserves"`
}

// SubmitTrade runs one trade through the settlement pipeline.
// POST /api/trades
func (h *TradeHandler) SubmitTrade(w http.ResponseWriter, r *http.Request) {
	var req submitTradeRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, http.StatusBadRequest, "invalid request body: "+err.Error())
		return
	}

	amount, err := parseUint(req.Amount)
	if err != nil {
		writeError(w, http.StatusBadRequest, "amount must be a decimal base-unit string")
		return
	}

	result, err := h.settlement.Settle(r.Context(), domain.TradeRequest{
		MintID:            req.MintID,
		TraderID:          req.TraderID,
		Side:              domain.TradeSide(req.Side),
		Amount:            amount,
		ExternalSignature: req.ExternalSignature,
	})
	if err != nil {
		if writeDomainError(w, err) {
			return
		}
		h.logger.ErrorContext(r.Context(), "handler: settle trade failed",
			slog.String("mint_id", req.MintID),
			slog.String("trader_id", req.TraderID),
			slog.String("error", err.Error()),
		)
		writeError(w, http.StatusInternalServerError, "failed to settle trade")
		return
	}

	writeJSON(w, http.StatusCreated, settlementResponse{
		Trade:       result.Trade,
		AmountOut:   result.AmountOut,
		FeeCharged:  result.FeeCharged,
		RoyaltyPaid: result.RoyaltyPaid,
		PlatformFee: result.PlatformFee,
		SpotAfter: spotAfter{
			SolReserves:   result.Curve.SolReserves,
			TokenReserves: result.Curve.TokenReserves,
		},
		GraduatedNow: result.GraduatedNow,
	})
}

// ListTrades returns one wallet's trades across all mints, newest first.
// GET /api/trades?trader=...&limit=50&offset=0
func (h *TradeHandler) ListTrades(w http.ResponseWriter, r *http.Request) {
	traderID := r.URL.Query().Get("trader")
	if traderID == "" {
		writeError(w, http.StatusBadRequest, "trader query parameter required")
		return
	}
	opts := parseListOpts(r)

	trades, err := h.history.TraderHistory(r.Context(), traderID, opts)
	if err != nil {
		h.logger.ErrorContext(r.Context(), "handler: list trades failed",
			slog.String("trader_id", traderID),
			slog.String("error", err.Error()),
		)
		writeError(w, http.StatusInternalServerError, "failed to list trades")
		return
	}

	if trades == nil {
		trades = []domain.Trade{}
	}
	writeJSON(w, http.StatusOK, listTradesResponse{
		Trades: trades,
		Limit:  opts.Limit,
		Offset: opts.Offset,
	})
}
