package handler

import (
	"context"
	"encoding/json"
	"log/slog"
	"net/http"

	"github.com/wavemint/wavemint/internal/domain"
	"github.com/wavemint/wavemint/internal/service"
)

// VestingService defines what the vesting handler needs from the service
// layer.
type VestingService interface {
	Status(ctx context.Context, scheduleID string) (service.ScheduleStatus, error)
	ForBeneficiary(ctx context.Context, beneficiaryID string) ([]service.ScheduleStatus, error)
	Claim(ctx context.Context, req domain.ClaimRequest) (domain.ClaimResult, error)
}

// VestingHandler serves vesting status and claim endpoints.
type VestingHandler struct {
	vesting VestingService
	logger  *slog.Logger
}

// NewVestingHandler creates a VestingHandler with the given service and logger.
func NewVestingHandler(vesting VestingService, logger *slog.Logger) *VestingHandler {
	return &VestingHandler{
		vesting: vesting,
		logger:  logger,
	}
}

// GetSchedule returns one schedule with its computed vesting position.
// GET /api/vesting/{id}
func (h *VestingHandler) GetSchedule(w http.ResponseWriter, r *http.Request) {
	id := pathParam(r, "id")
	if id == "" {
		writeError(w, http.StatusBadRequest, "missing schedule id")
		return
	}

	status, err := h.vesting.Status(r.Context(), id)
	if err != nil {
		if writeDomainError(w, err) {
			return
		}
		h.logger.ErrorContext(r.Context(), "handler: get schedule failed",
			slog.String("schedule_id", id),
			slog.String("error", err.Error()),
		)
		writeError(w, http.StatusInternalServerError, "failed to get schedule")
		return
	}

	writeJSON(w, http.StatusOK, status)
}

// listSchedulesResponse wraps the beneficiary listing output.
type listSchedulesResponse struct {
	Schedules []service.ScheduleStatus `json:"schedules"`
}

// ListSchedules returns all schedules for a beneficiary wallet.
// GET /api/vesting?beneficiary=...
func (h *VestingHandler) ListSchedules(w http.ResponseWriter, r *http.Request) {
	beneficiaryID := r.URL.Query().Get("beneficiary")
	if beneficiaryID == "" {
		writeError(w, http.StatusBadRequest, "beneficiary query parameter required")
		return
	}

	schedules, err := h.vesting.ForBeneficiary(r.Context(), beneficiaryID)
	if err != nil {
		h.logger.ErrorContext(r.Context(), "handler: list schedules failed",
			slog.String("beneficiary_id", beneficiaryID),
			slog.String("error", err.Error()),
		)
		writeError(w, http.StatusInternalServerError, "failed to list schedules")
		return
	}

	if schedules == nil {
		schedules = []service.ScheduleStatus{}
	}
	writeJSON(w, http.StatusOK, listSchedulesResponse{Schedules: schedules})
}

// claimRequest is the JSON body for a claim.
type claimRequest struct {
	BeneficiaryID string `json:"beneficiary_id"`
}

// Claim releases everything claimable on a schedule.
// POST /api/vesting/{id}/claim
func (h *VestingHandler) Claim(w http.ResponseWriter, r *http.Request) {
	id := pathParam(r, "id")
	if id == "" {
		writeError(w, http.StatusBadRequest, "missing schedule id")
		return
	}

	var req claimRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, http.StatusBadRequest, "invalid request body: "+err.Error())
		return
	}
	if req.BeneficiaryID == "" {
		writeError(w, http.StatusBadRequest, "beneficiary_id is required")
		return
	}

	result, err := h.vesting.Claim(r.Context(), domain.ClaimRequest{
		ScheduleID:    id,
		BeneficiaryID: req.BeneficiaryID,
	})
	if err != nil {
		if writeDomainError(w, err) {
			return
		}
		h.logger.ErrorContext(r.Context(), "handler: claim failed",
			slog.String("schedule_id", id),
			slog.String("error", err.Error()),
		)
		writeError(w, http.StatusInternalServerError, "failed to claim")
		return
	}

	writeJSON(w, http.StatusOK, result)
}
