package domain

import "time"

// CreatorEarnings is a per-creator cumulative royalty counter. It is credited
// inside the settlement transaction and is distinct from vesting schedules:
// royalties accrue immediately, vested grants release over time.
type CreatorEarnings struct {
	CreatorID    string
	TotalRoyalty uint64 // lamport base units
	TradeCount   int64
	UpdatedAt    time.Time
}
