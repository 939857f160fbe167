package service

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"time"

	"github.com/wavemint/wavemint/internal/domain"
	"github.com/wavemint/wavemint/internal/vesting"
)

const claimLockTTL = 30 * time.Second

// VestingService handles vesting status reads and claims. Claims take a
// distributed lock per schedule so concurrent claim attempts from the same
// beneficiary serialize before the row lock is even reached.
type VestingService struct {
	schedules domain.VestingStore
	locks     domain.LockManager
	disburser domain.Disburser
	bus       domain.SignalBus
	logger    *slog.Logger
}

// NewVestingService creates a VestingService. locks, disburser and bus are
// optional; without locks the store's row lock is the only claim guard.
func NewVestingService(
	schedules domain.VestingStore,
	locks domain.LockManager,
	disburser domain.Disburser,
	bus domain.SignalBus,
	logger *slog.Logger,
) *VestingService {
	return &VestingService{
		schedules: schedules,
		locks:     locks,
		disburser: disburser,
		bus:       bus,
		logger:    logger,
	}
}

// ScheduleStatus pairs a schedule with its computed vesting position.
type ScheduleStatus struct {
	Schedule domain.VestingSchedule `json:"schedule"`
	Status   vesting.Status         `json:"status"`
}

// Status returns the current vesting position for one schedule.
func (s *VestingService) Status(ctx context.Context, scheduleID string) (ScheduleStatus, error) {
	sched, err := s.schedules.GetByID(ctx, scheduleID)
	if err != nil {
		return ScheduleStatus{}, fmt.Errorf("vesting_service: schedule %q: %w", scheduleID, err)
	}
	return ScheduleStatus{
		Schedule: sched,
		Status:   vesting.ComputeStatus(sched, time.Now().UTC()),
	}, nil
}

// ForBeneficiary returns all schedules for a wallet with computed positions.
func (s *VestingService) ForBeneficiary(ctx context.Context, beneficiaryID string) ([]ScheduleStatus, error) {
	scheds, err := s.schedules.ListByBeneficiary(ctx, beneficiaryID)
	if err != nil {
		return nil, fmt.Errorf("vesting_service: schedules for %q: %w", beneficiaryID, err)
	}

	now := time.Now().UTC()
	out := make([]ScheduleStatus, len(scheds))
	for i, sched := range scheds {
		out[i] = ScheduleStatus{
			Schedule: sched,
			Status:   vesting.ComputeStatus(sched, now),
		}
	}
	return out, nil
}

// Claim releases everything claimable on a schedule. The claim is recorded
// in the ledger first; disbursement and fan-out run after and are
// best-effort, with failed disbursements logged for operator replay.
func (s *VestingService) Claim(ctx context.Context, req domain.ClaimRequest) (domain.ClaimResult, error) {
	sched, err := s.schedules.GetByID(ctx, req.ScheduleID)
	if err != nil {
		return domain.ClaimResult{}, fmt.Errorf("vesting_service: schedule %q: %w", req.ScheduleID, err)
	}
	if sched.BeneficiaryID != req.BeneficiaryID {
		return domain.ClaimResult{}, fmt.Errorf("vesting_service: schedule %q: %w", req.ScheduleID, domain.ErrNotFound)
	}

	if s.locks != nil {
		unlock, err := s.locks.Acquire(ctx, "claim:"+req.ScheduleID, claimLockTTL)
		if err != nil {
			return domain.ClaimResult{}, fmt.Errorf("vesting_service: claim %q: %w", req.ScheduleID, err)
		}
		defer unlock()
	}

	result, err := s.schedules.Claim(ctx, req.ScheduleID, time.Now().UTC())
	if err != nil {
		return domain.ClaimResult{}, err
	}

	s.logger.InfoContext(ctx, "vesting_service: claim recorded",
		slog.String("schedule_id", result.Schedule.ID),
		slog.String("beneficiary_id", result.Schedule.BeneficiaryID),
		slog.Uint64("claimed_amount", result.ClaimedAmount),
		slog.Uint64("total_claimed", result.Schedule.TotalClaimed),
		slog.Bool("fully_claimed", result.Schedule.FullyClaimed),
	)

	if s.disburser != nil {
		if err := s.disburser.Disburse(ctx, result.Schedule.MintID, result.Schedule.BeneficiaryID, result.ClaimedAmount); err != nil {
			s.logger.ErrorContext(ctx, "vesting_service: disbursement failed, claim recorded",
				slog.String("schedule_id", result.Schedule.ID),
				slog.Uint64("claimed_amount", result.ClaimedAmount),
				slog.String("error", err.Error()),
			)
		}
	}

	if s.bus != nil {
		evt, _ := json.Marshal(map[string]any{
			"type":           "vesting_claimed",
			"schedule_id":    result.Schedule.ID,
			"mint_id":        result.Schedule.MintID,
			"claimed_amount": result.ClaimedAmount,
			"total_claimed":  result.Schedule.TotalClaimed,
			"fully_claimed":  result.Schedule.FullyClaimed,
			"claimed_at":     result.ClaimedAt.Format(time.RFC3339Nano),
		})
		if pubErr := s.bus.Publish(ctx, domain.WalletTopic(result.Schedule.BeneficiaryID), evt); pubErr != nil {
			s.logger.WarnContext(ctx, "vesting_service: publish claim event failed",
				slog.String("schedule_id", result.Schedule.ID),
				slog.String("error", pubErr.Error()),
			)
		}
	}

	return result, nil
}
