package service

import (
	"context"
	"log/slog"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/require"

	"github.com/wavemint/wavemint/internal/domain"
)

type fakeVestingStore struct {
	mu        sync.Mutex
	schedules map[string]domain.VestingSchedule
	claimErr  error
}

func (f *fakeVestingStore) GetByID(_ context.Context, id string) (domain.VestingSchedule, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	sched, ok := f.schedules[id]
	if !ok {
		return domain.VestingSchedule{}, domain.ErrNotFound
	}
	return sched, nil
}

func (f *fakeVestingStore) ListByBeneficiary(_ context.Context, beneficiaryID string) ([]domain.VestingSchedule, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	var out []domain.VestingSchedule
	for _, sched := range f.schedules {
		if sched.BeneficiaryID == beneficiaryID {
			out = append(out, sched)
		}
	}
	return out, nil
}

func (f *fakeVestingStore) Claim(_ context.Context, id string, now time.Time) (domain.ClaimResult, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.claimErr != nil {
		return domain.ClaimResult{}, f.claimErr
	}
	sched := f.schedules[id]
	claimed := sched.TokenAmount/2 - sched.TotalClaimed
	sched.TotalClaimed += claimed
	sched.LastClaimAt = &now
	f.schedules[id] = sched
	return domain.ClaimResult{Schedule: sched, ClaimedAmount: claimed, ClaimedAt: now}, nil
}

type fakeLockManager struct {
	mu       sync.Mutex
	acquired []string
	unlocked int
	err      error
}

func (f *fakeLockManager) Acquire(_ context.Context, key string, _ time.Duration) (func(), error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.err != nil {
		return nil, f.err
	}
	f.acquired = append(f.acquired, key)
	return func() {
		f.mu.Lock()
		defer f.mu.Unlock()
		f.unlocked++
	}, nil
}

type fakeDisburser struct {
	mu    sync.Mutex
	calls []uint64
	err   error
}

func (f *fakeDisburser) Disburse(_ context.Context, _, _ string, amount uint64) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.err != nil {
		return f.err
	}
	f.calls = append(f.calls, amount)
	return nil
}

type recordingBus struct {
	mu        sync.Mutex
	published map[string][][]byte
}

func (f *recordingBus) Publish(_ context.Context, channel string, payload []byte) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.published == nil {
		f.published = make(map[string][][]byte)
	}
	f.published[channel] = append(f.published[channel], payload)
	return nil
}

func (f *recordingBus) Subscribe(context.Context, string) (<-chan domain.Signal, error) {
	return make(chan domain.Signal), nil
}

func claimableSchedule() domain.VestingSchedule {
	return domain.VestingSchedule{
		ID:                "sched-1",
		MintID:            "mint-a",
		BeneficiaryID:     "creator-1",
		TokenAmount:       1_000_000_000,
		VestingStart:      time.Now().Add(-10 * 24 * time.Hour),
		DurationDays:      21,
		ClaimIntervalDays: 2,
	}
}

func TestVestingClaim_LocksDisbursesAndPublishes(t *testing.T) {
	store := &fakeVestingStore{schedules: map[string]domain.VestingSchedule{
		"sched-1": claimableSchedule(),
	}}
	locks := &fakeLockManager{}
	disburser := &fakeDisburser{}
	bus := &recordingBus{}

	svc := NewVestingService(store, locks, disburser, bus, slog.New(slog.DiscardHandler))
	result, err := svc.Claim(context.Background(), domain.ClaimRequest{
		ScheduleID:    "sched-1",
		BeneficiaryID: "creator-1",
	})
	require.NoError(t, err)
	require.Equal(t, uint64(500_000_000), result.ClaimedAmount)

	locks.mu.Lock()
	require.Equal(t, []string{"claim:sched-1"}, locks.acquired)
	require.Equal(t, 1, locks.unlocked)
	locks.mu.Unlock()

	disburser.mu.Lock()
	require.Equal(t, []uint64{500_000_000}, disburser.calls)
	disburser.mu.Unlock()

	bus.mu.Lock()
	require.Len(t, bus.published[domain.WalletTopic("creator-1")], 1)
	bus.mu.Unlock()
}

func TestVestingClaim_WrongBeneficiary(t *testing.T) {
	store := &fakeVestingStore{schedules: map[string]domain.VestingSchedule{
		"sched-1": claimableSchedule(),
	}}
	svc := NewVestingService(store, nil, nil, nil, slog.New(slog.DiscardHandler))

	_, err := svc.Claim(context.Background(), domain.ClaimRequest{
		ScheduleID:    "sched-1",
		BeneficiaryID: "someone-else",
	})
	require.ErrorIs(t, err, domain.ErrNotFound)
}

func TestVestingClaim_LockContention(t *testing.T) {
	store := &fakeVestingStore{schedules: map[string]domain.VestingSchedule{
		"sched-1": claimableSchedule(),
	}}
	svc := NewVestingService(store, &fakeLockManager{err: domain.ErrLockHeld}, nil, nil, slog.New(slog.DiscardHandler))

	_, err := svc.Claim(context.Background(), domain.ClaimRequest{
		ScheduleID:    "sched-1",
		BeneficiaryID: "creator-1",
	})
	require.ErrorIs(t, err, domain.ErrLockHeld)
}

func TestVestingClaim_StoreRejectionPassesThrough(t *testing.T) {
	store := &fakeVestingStore{
		schedules: map[string]domain.VestingSchedule{"sched-1": claimableSchedule()},
		claimErr:  domain.ErrClaimTooSoon,
	}
	svc := NewVestingService(store, nil, nil, nil, slog.New(slog.DiscardHandler))

	_, err := svc.Claim(context.Background(), domain.ClaimRequest{
		ScheduleID:    "sched-1",
		BeneficiaryID: "creator-1",
	})
	require.ErrorIs(t, err, domain.ErrClaimTooSoon)
}

func TestVestingClaim_DisburserFailureStillRecords(t *testing.T) {
	store := &fakeVestingStore{schedules: map[string]domain.VestingSchedule{
		"sched-1": claimableSchedule(),
	}}
	disburser := &fakeDisburser{err: context.DeadlineExceeded}

	svc := NewVestingService(store, nil, disburser, nil, slog.New(slog.DiscardHandler))
	result, err := svc.Claim(context.Background(), domain.ClaimRequest{
		ScheduleID:    "sched-1",
		BeneficiaryID: "creator-1",
	})
	require.NoError(t, err)
	require.NotZero(t, result.ClaimedAmount)
}

func TestVestingStatus_ComputesPosition(t *testing.T) {
	store := &fakeVestingStore{schedules: map[string]domain.VestingSchedule{
		"sched-1": claimableSchedule(),
	}}
	svc := NewVestingService(store, nil, nil, nil, slog.New(slog.DiscardHandler))

	status, err := svc.Status(context.Background(), "sched-1")
	require.NoError(t, err)
	require.True(t, status.Status.CanClaim)
	require.NotZero(t, status.Status.Claimable)
}
