package handler

import (
	"context"
	"encoding/json"
	"log/slog"
	"net/http"

	"github.com/wavemint/wavemint/internal/domain"
	"github.com/wavemint/wavemint/internal/service"
)

// CurveService defines the methods that the curve handler requires from the
// service layer.
type CurveService interface {
	Register(ctx context.Context, in domain.CurveCreate) (domain.BondingCurve, error)
	Get(ctx context.Context, mintID string) (domain.BondingCurve, error)
	List(ctx context.Context, opts domain.ListOpts) ([]service.CurveSummary, error)
	Count(ctx context.Context) (int64, error)
	Trades(ctx context.Context, mintID string, opts domain.ListOpts) ([]domain.Trade, error)
	Earnings(ctx context.Context, creatorID string) (domain.CreatorEarnings, error)
}

// CurveHandler serves curve registration and read endpoints.
type CurveHandler struct {
	curves CurveService
	logger *slog.Logger
}

// NewCurveHandler creates a CurveHandler with the given service and logger.
func NewCurveHandler(curves CurveService, logger *slog.Logger) *CurveHandler {
	return &CurveHandler{
		curves: curves,
		logger: logger,
	}
}

// registerCurveRequest is the JSON body for curve registration. Amounts are
// decimal strings in base units so large values survive JSON number limits.
type registerCurveRequest struct {
	MintID            string `json:"mint_id"`
	SolReserves       string `json:"sol_reserves"`
	TokenReserves     string `json:"token_reserves"`
	CreatorID         string `json:"creator_id"`
	RoyaltyBps        uint32 `json:"royalty_bps"`
	RoyaltyRecipient  string `json:"royalty_recipient,omitempty"`
	CreatorAllocation string `json:"creator_allocation,omitempty"`
	VestingDays       int    `json:"vesting_days,omitempty"`
	ClaimIntervalDays int    `json:"claim_interval_days,omitempty"`
}

// RegisterCurve creates a new bonding curve for a freshly minted clip.
// POST /api/curves
func (h *CurveHandler) RegisterCurve(w http.ResponseWriter, r *http.Request) {
	var req registerCurveRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, http.StatusBadRequest, "invalid request body: "+err.Error())
		return
	}
	if req.MintID == "" || req.CreatorID == "" {
		writeError(w, http.StatusBadRequest, "mint_id and creator_id are required")
		return
	}

	in := domain.CurveCreate{
		MintID:            req.MintID,
		CreatorID:         req.CreatorID,
		RoyaltyBps:        req.RoyaltyBps,
		RoyaltyRecipient:  req.RoyaltyRecipient,
		VestingDays:       req.VestingDays,
		ClaimIntervalDays: req.ClaimIntervalDays,
	}

	var err error
	if in.SolReserves, err = parseUint(req.SolReserves); err != nil {
		writeError(w, http.StatusBadRequest, "sol_reserves must be a decimal base-unit string")
		return
	}
	if in.TokenReserves, err = parseUint(req.TokenReserves); err != nil {
		writeError(w, http.StatusBadRequest, "token_reserves must be a decimal base-unit string")
		return
	}
	if req.CreatorAllocation != "" {
		if in.CreatorAllocation, err = parseUint(req.CreatorAllocation); err != nil {
			writeError(w, http.StatusBadRequest, "creator_allocation must be a decimal base-unit string")
			return
		}
	}

	curve, err := h.curves.Register(r.Context(), in)
	if err != nil {
		if writeDomainError(w, err) {
			return
		}
		h.logger.ErrorContext(r.Context(), "handler: register curve failed",
			slog.String("mint_id", req.MintID),
			slog.String("error", err.Error()),
		)
		writeError(w, http.StatusInternalServerError, "failed to register curve")
		return
	}

	writeJSON(w, http.StatusCreated, curve)
}

// listCurvesResponse wraps the list endpoint output with metadata.
type listCurvesResponse struct {
	Curves []service.CurveSummary `json:"curves"`
	Total  int64                  `json:"total"`
	Limit  int                    `json:"limit"`
	Offset int                    `json:"offset"`
}

// ListCurves returns registered curves with spot prices.
// GET /api/curves?limit=50&offset=0
func (h *CurveHandler) ListCurves(w http.ResponseWriter, r *http.Request) {
	opts := parseListOpts(r)

	curves, err := h.curves.List(r.Context(), opts)
	if err != nil {
		h.logger.ErrorContext(r.Context(), "handler: list curves failed",
			slog.String("error", err.Error()),
		)
		writeError(w, http.StatusInternalServerError, "failed to list curves")
		return
	}

	total, err := h.curves.Count(r.Context())
	if err != nil {
		h.logger.ErrorContext(r.Context(), "handler: count curves failed",
			slog.String("error", err.Error()),
		)
		writeError(w, http.StatusInternalServerError, "failed to count curves")
		return
	}

	if curves == nil {
		curves = []service.CurveSummary{}
	}
	writeJSON(w, http.StatusOK, listCurvesResponse{
		Curves: curves,
		Total:  total,
		Limit:  opts.Limit,
		Offset: opts.Offset,
	})
}

// GetCurve returns a single curve by its mint id.
// GET /api/curves/{mint}
func (h *CurveHandler) GetCurve(w http.ResponseWriter, r *http.Request) {
	mintID := pathParam(r, "mint")
	if mintID == "" {
		writeError(w, http.StatusBadRequest, "missing mint id")
		return
	}

	curve, err := h.curves.Get(r.Context(), mintID)
	if err != nil {
		if writeDomainError(w, err) {
			return
		}
		h.logger.ErrorContext(r.Context(), "handler: get curve failed",
			slog.String("mint_id", mintID),
			slog.String("error", err.Error()),
		)
		writeError(w, http.StatusInternalServerError, "failed to get curve")
		return
	}

	writeJSON(w, http.StatusOK, curve)
}

// listTradesResponse wraps trade history output.
type listTradesResponse struct {
	Trades []domain.Trade `json:"trades"`
	Limit  int            `json:"limit"`
	Offset int            `json:"offset"`
}

// ListCurveTrades returns the trade history for a mint, newest first.
// GET /api/curves/{mint}/trades?limit=50&offset=0&since=...&until=...
func (h *CurveHandler) ListCurveTrades(w http.ResponseWriter, r *http.Request) {
	mintID := pathParam(r, "mint")
	if mintID == "" {
		writeError(w, http.StatusBadRequest, "missing mint id")
		return
	}
	opts := parseListOpts(r)

	trades, err := h.curves.Trades(r.Context(), mintID, opts)
	if err != nil {
		h.logger.ErrorContext(r.Context(), "handler: list curve trades failed",
			slog.String("mint_id", mintID),
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

// GetEarnings returns the cumulative royalty counters for a creator.
// GET /api/earnings/{creator}
func (h *CurveHandler) GetEarnings(w http.ResponseWriter, r *http.Request) {
	creatorID := pathParam(r, "creator")
	if creatorID == "" {
		writeError(w, http.StatusBadRequest, "missing creator id")
		return
	}

	earnings, err := h.curves.Earnings(r.Context(), creatorID)
	if err != nil {
		h.logger.ErrorContext(r.Context(), "handler: get earnings failed",
			slog.String("creator_id", creatorID),
			slog.String("error", err.Error()),
		)
		writeError(w, http.StatusInternalServerError, "failed to get earnings")
		return
	}
	if earnings.CreatorID == "" {
		earnings.CreatorID = creatorID
	}

	writeJSON(w, http.StatusOK, earnings)
}
