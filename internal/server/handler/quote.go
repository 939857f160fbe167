package handler

import (
	"context"
	"log/slog"
	"net/http"
	"time"

	"github.com/wavemint/wavemint/internal/domain"
	"github.com/wavemint/wavemint/internal/service"
)

// QuoteService defines the methods the quote handler requires.
type QuoteService interface {
	Quote(ctx context.Context, mintID string, side domain.TradeSide, amount uint64) (service.Preview, error)
	SpotPrice(ctx context.Context, mintID string) (float64, time.Time, error)
}

// QuoteHandler serves trade previews and spot prices.
type QuoteHandler struct {
	quotes QuoteService
	logger *slog.Logger
}

// NewQuoteHandler creates a QuoteHandler with the given service and logger.
func NewQuoteHandler(quotes QuoteService, logger *slog.Logger) *QuoteHandler {
	return &QuoteHandler{
		quotes: quotes,
		logger: logger,
	}
}

// GetQuote prices a hypothetical trade against current reserves.
// GET /api/quote?mint_id=...&side=buy&amount=1000000000
func (h *QuoteHandler) GetQuote(w http.ResponseWriter, r *http.Request) {
	q := r.URL.Query()
	mintID := q.Get("mint_id")
	if mintID == "" {
		writeError(w, http.StatusBadRequest, "mint_id query parameter required")
		return
	}
	side := domain.TradeSide(q.Get("side"))
	if !side.Valid() {
		writeError(w, http.StatusBadRequest, "side must be buy or sell")
		return
	}
	amount, err := parseUint(q.Get("amount"))
	if err != nil || amount == 0 {
		writeError(w, http.StatusBadRequest, "amount must be a positive base-unit integer")
		return
	}

	preview, err := h.quotes.Quote(r.Context(), mintID, side, amount)
	if err != nil {
		if writeDomainError(w, err) {
			return
		}
		h.logger.ErrorContext(r.Context(), "handler: quote failed",
			slog.String("mint_id", mintID),
			slog.String("error", err.Error()),
		)
		writeError(w, http.StatusInternalServerError, "failed to compute quote")
		return
	}

	writeJSON(w, http.StatusOK, preview)
}

// GetPrice returns the latest spot price for a mint.
// GET /api/curves/{mint}/price
func (h *QuoteHandler) GetPrice(w http.ResponseWriter, r *http.Request) {
	mintID := pathParam(r, "mint")
	if mintID == "" {
		writeError(w, http.StatusBadRequest, "missing mint id")
		return
	}

	price, ts, err := h.quotes.SpotPrice(r.Context(), mintID)
	if err != nil {
		if writeDomainError(w, err) {
			return
		}
		h.logger.ErrorContext(r.Context(), "handler: spot price failed",
			slog.String("mint_id", mintID),
			slog.String("error", err.Error()),
		)
		writeError(w, http.StatusInternalServerError, "failed to get price")
		return
	}

	writeJSON(w, http.StatusOK, map[string]any{
		"mint_id":   mintID,
		"price":     price,
		"timestamp": ts.UTC().Format(time.RFC3339Nano),
	})
}
